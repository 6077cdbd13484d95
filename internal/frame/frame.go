// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package frame implements the Improv serial wire format:
//
//	"IMPROV" | version | type | length | payload... | checksum
//
// The checksum is the sum of every preceding byte modulo 256. Encode and
// Decode are pure transforms; Reader layers stream reassembly and
// resynchronization on top of Decode.
package frame

import (
	"bytes"
	"errors"
	"fmt"
)

// Frame decoding errors. ErrIncomplete means "read more bytes" and is never
// a protocol violation; the rest mark the candidate frame as unusable.
var (
	ErrIncomplete         = errors.New("incomplete frame")
	ErrBadHeader          = errors.New("missing IMPROV header")
	ErrUnsupportedVersion = errors.New("unsupported protocol version")
	ErrUnknownType        = errors.New("unknown packet type")
	ErrChecksumMismatch   = errors.New("checksum mismatch")
	ErrPayloadTooLarge    = errors.New("payload too large")
	ErrTruncated          = errors.New("frame length overruns a following frame")
	ErrDesynchronized     = errors.New("byte stream desynchronized")
)

// Frame is a decoded Improv packet.
type Frame struct {
	Payload []byte
	Type    byte
}

// Encode builds a complete frame for the given packet type and payload.
func Encode(typ byte, payload []byte) ([]byte, error) {
	if !IsKnownType(typ) {
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownType, typ)
	}
	if len(payload) > MaxPayloadLength {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(payload), MaxPayloadLength)
	}

	out := make([]byte, 0, MinFrameLength+len(payload))
	out = append(out, Header...)
	out = append(out, Version, typ, byte(len(payload)))
	out = append(out, payload...)
	return append(out, CalculateChecksum(out)), nil
}

// Decode decodes the frame at the start of buf. On success it returns the
// frame and the number of bytes it occupies; trailing bytes are ignored.
func Decode(buf []byte) (Frame, int, error) {
	if len(buf) < HeaderLength {
		if !bytes.HasPrefix(Header, buf) {
			return Frame{}, 0, ErrBadHeader
		}
		return Frame{}, 0, ErrIncomplete
	}
	if !bytes.Equal(buf[:HeaderLength], Header) {
		return Frame{}, 0, ErrBadHeader
	}

	if len(buf) <= versionOffset {
		return Frame{}, 0, ErrIncomplete
	}
	if buf[versionOffset] != Version {
		return Frame{}, 0, fmt.Errorf("%w: 0x%02X", ErrUnsupportedVersion, buf[versionOffset])
	}

	if len(buf) <= typeOffset {
		return Frame{}, 0, ErrIncomplete
	}
	typ := buf[typeOffset]
	if !IsKnownType(typ) {
		return Frame{}, 0, fmt.Errorf("%w: 0x%02X", ErrUnknownType, typ)
	}

	if len(buf) <= lengthOffset {
		return Frame{}, 0, ErrIncomplete
	}
	payloadLen := int(buf[lengthOffset])
	total := payloadOffset + payloadLen + 1
	if len(buf) < total {
		return Frame{}, 0, ErrIncomplete
	}

	want := CalculateChecksum(buf[:total-1])
	if got := buf[total-1]; got != want {
		return Frame{}, 0, fmt.Errorf("%w: got 0x%02X, want 0x%02X", ErrChecksumMismatch, got, want)
	}

	payload := make([]byte, payloadLen)
	copy(payload, buf[payloadOffset:total-1])
	return Frame{Type: typ, Payload: payload}, total, nil
}

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

package frame

import (
	"bytes"
	"testing"
)

// Fuzz tests catch panics and slice bound errors in frame parsing. Serial
// lines carry firmware log output and line noise, so the decoder sees
// arbitrary bytes in practice.
//
// Run with: go test -fuzz=FuzzDecode -fuzztime=30s ./internal/frame/
// Run all: go test -fuzz=Fuzz -fuzztime=10s ./internal/frame/

func FuzzDecode(f *testing.F) {
	f.Add([]byte{0x49, 0x4D, 0x50, 0x52, 0x4F, 0x56, 0x01, 0x03, 0x02, 0x03, 0x00, 0xE6})
	f.Add([]byte{0x49, 0x4D, 0x50, 0x52, 0x4F, 0x56, 0x01, 0x01, 0x01, 0x02, 0xE2})
	f.Add([]byte("IMPROV"))
	f.Add([]byte("IMPROV\x01\x04\xFF"))
	f.Add([]byte{})
	f.Add([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF})

	f.Fuzz(func(t *testing.T, buf []byte) {
		decoded, n, err := Decode(buf)
		if err != nil {
			if n != 0 {
				t.Fatalf("consumed %d bytes on error %v", n, err)
			}
			return
		}

		if n < MinFrameLength || n > len(buf) {
			t.Fatalf("consumed %d bytes of %d", n, len(buf))
		}
		if !ValidateChecksum(buf[:n]) {
			t.Fatalf("accepted frame with bad checksum: %X", buf[:n])
		}

		reencoded, err := Encode(decoded.Type, decoded.Payload)
		if err != nil {
			t.Fatalf("re-encode failed: %v", err)
		}
		if !bytes.Equal(reencoded, buf[:n]) {
			t.Fatalf("re-encoded %X, decoded from %X", reencoded, buf[:n])
		}
	})
}

func FuzzReader(f *testing.F) {
	f.Add([]byte("log line\r\nIMPROV\x01\x01\x01\x02\xE2trailing"), uint8(3))
	f.Add([]byte("IMPROVIMPROVIMPROV"), uint8(1))
	f.Add([]byte{0x49, 0x4D, 0x50, 0x52, 0x4F, 0x56, 0x01, 0x03, 0x02, 0x03, 0x00, 0xE5}, uint8(7))

	f.Fuzz(func(t *testing.T, stream []byte, chunk uint8) {
		size := int(chunk)%16 + 1
		r := NewReader(4)

		for start := 0; start < len(stream); start += size {
			end := min(start+size, len(stream))
			r.Feed(stream[start:end])
			for {
				frm, ok, err := r.Next()
				if err != nil || !ok {
					break
				}
				if len(frm.Payload) > MaxPayloadLength {
					t.Fatalf("payload length %d", len(frm.Payload))
				}
			}
			if r.Buffered() > len(stream) {
				t.Fatalf("buffered %d bytes from a %d byte stream", r.Buffered(), len(stream))
			}
		}
	})
}

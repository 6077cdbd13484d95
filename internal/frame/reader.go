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
	"errors"
	"fmt"
)

// DefaultMaxResyncAttempts bounds how many corrupt frame candidates a single
// Next call will step over before giving up.
const DefaultMaxResyncAttempts = 32

// Reader reassembles frames from a byte stream delivered in arbitrary
// fragments. Devices running ESPHome and similar firmware share the UART
// with their log output, so bytes that cannot start a header are skipped
// without counting against the resync budget.
//
// Reader is not safe for concurrent use.
type Reader struct {
	buf       []byte
	maxResync int
	discarded int
	resyncs   int
}

// NewReader creates a reader. maxResync <= 0 selects DefaultMaxResyncAttempts.
func NewReader(maxResync int) *Reader {
	if maxResync <= 0 {
		maxResync = DefaultMaxResyncAttempts
	}
	return &Reader{
		buf:       make([]byte, 0, MaxFrameLength),
		maxResync: maxResync,
	}
}

// Feed appends raw bytes to the accumulation buffer.
func (r *Reader) Feed(p []byte) {
	r.buf = append(r.buf, p...)
}

// Next extracts the next complete frame. It returns ok=false with a nil
// error when more bytes are needed; the buffer is retained in that case.
//
// A candidate that fails checksum, version or type validation is dropped
// one byte at a time. So is an incomplete candidate when a later header in
// the buffer already starts a complete frame, which is how a corrupted
// length byte shows up. More than maxResync failures in one call returns
// ErrDesynchronized.
func (r *Reader) Next() (frm Frame, ok bool, err error) {
	attempts := 0
	for {
		r.skipNoise()
		if len(r.buf) == 0 {
			return Frame{}, false, nil
		}

		decoded, n, decodeErr := Decode(r.buf)
		if decodeErr == nil {
			r.consume(n)
			return decoded, true, nil
		}
		if errors.Is(decodeErr, ErrIncomplete) {
			if !r.completeFrameFollows() {
				return Frame{}, false, nil
			}
			decodeErr = ErrTruncated
		}

		attempts++
		r.resyncs++
		if attempts > r.maxResync {
			return Frame{}, false, fmt.Errorf("%w after %d corrupt frames: %w",
				ErrDesynchronized, r.maxResync, decodeErr)
		}
		r.consume(1)
		r.discarded++
	}
}

// completeFrameFollows reports whether any header after the first byte of
// the buffer starts a frame that decodes cleanly.
func (r *Reader) completeFrameFollows() bool {
	for off := 1; off < len(r.buf); {
		idx := bytes.Index(r.buf[off:], Header)
		if idx < 0 {
			return false
		}
		start := off + idx
		if _, _, err := Decode(r.buf[start:]); err == nil {
			return true
		}
		off = start + 1
	}
	return false
}

// Buffered returns the number of bytes waiting in the buffer.
func (r *Reader) Buffered() int {
	return len(r.buf)
}

// Discarded returns the total number of bytes dropped as noise or during
// resynchronization.
func (r *Reader) Discarded() int {
	return r.discarded
}

// Resyncs returns the total number of corrupt frame candidates skipped.
func (r *Reader) Resyncs() int {
	return r.resyncs
}

// Reset drops all buffered bytes.
func (r *Reader) Reset() {
	r.discarded += len(r.buf)
	r.buf = r.buf[:0]
}

// skipNoise advances the buffer to the next header candidate, keeping a
// trailing partial header that may be completed by the next Feed.
func (r *Reader) skipNoise() {
	idx := bytes.Index(r.buf, Header)
	switch {
	case idx == 0:
		return
	case idx > 0:
		r.consume(idx)
		r.discarded += idx
	default:
		drop := len(r.buf) - partialHeaderSuffix(r.buf)
		r.consume(drop)
		r.discarded += drop
	}
}

func (r *Reader) consume(n int) {
	if n <= 0 {
		return
	}
	r.buf = r.buf[:copy(r.buf, r.buf[n:])]
}

// partialHeaderSuffix returns the length of the longest suffix of buf that
// is a proper prefix of Header.
func partialHeaderSuffix(buf []byte) int {
	for n := min(len(buf), HeaderLength-1); n > 0; n-- {
		if bytes.HasPrefix(Header, buf[len(buf)-n:]) {
			return n
		}
	}
	return 0
}

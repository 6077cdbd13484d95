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

package testing

import (
	"io"
	"math/rand/v2"
	"time"

	"github.com/ZaparooProject/go-improv/internal/syncutil"
)

// JitterConfig configures JitteryConnection.
type JitterConfig struct {
	MaxLatency       time.Duration
	FragmentMinBytes int
	StallAfterBytes  int
	StallDuration    time.Duration
	Seed             uint64
	FragmentReads    bool
	// USBBoundaryStress splits reads at 64-byte boundaries like a
	// full-speed USB-UART bridge.
	USBBoundaryStress bool
	// EmptyReadChance is the probability in [0,1) that a read reports no
	// data even though some is buffered.
	EmptyReadChance float64
}

// DefaultJitterConfig fragments every read down to single bytes with a few
// milliseconds of latency.
func DefaultJitterConfig() JitterConfig {
	return JitterConfig{
		MaxLatency:       2 * time.Millisecond,
		FragmentReads:    true,
		FragmentMinBytes: 1,
	}
}

// JitteryConnection wraps a device to simulate USB-UART bridges (CP2102,
// CH340) delivering its output with unpredictable latency and
// fragmentation. No bytes are lost or reordered.
type JitteryConnection struct {
	backend             io.ReadWriter
	rng                 *rand.Rand
	readBuf             []byte
	config              JitterConfig
	mu                  syncutil.Mutex
	bytesReadSinceStall int
	stallTriggered      bool
}

// NewJitteryConnection wraps backend. A zero Seed picks a random one.
func NewJitteryConnection(backend io.ReadWriter, config JitterConfig) *JitteryConnection {
	seed := config.Seed
	if seed == 0 {
		seed = rand.Uint64() //nolint:gosec // test code
	}
	if config.FragmentMinBytes < 1 {
		config.FragmentMinBytes = 1
	}
	return &JitteryConnection{
		backend: backend,
		config:  config,
		rng:     rand.New(rand.NewPCG(seed, seed^0xDEADBEEF)), //nolint:gosec // test code
		readBuf: make([]byte, 0, 1024),
	}
}

// Write passes through to the backend.
func (j *JitteryConnection) Write(data []byte) (int, error) {
	return j.backend.Write(data) //nolint:wrapcheck // pass-through
}

// Read returns a random-sized prefix of the buffered backend output.
func (j *JitteryConnection) Read(buf []byte) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.config.MaxLatency > 0 {
		if delay := time.Duration(j.rng.Int64N(int64(j.config.MaxLatency) + 1)); delay > 0 {
			time.Sleep(delay)
		}
	}

	if len(j.readBuf) == 0 {
		tmp := make([]byte, 1024)
		n, err := j.backend.Read(tmp)
		if err != nil {
			return 0, err //nolint:wrapcheck // pass-through
		}
		if n == 0 {
			return 0, nil
		}
		j.readBuf = append(j.readBuf, tmp[:n]...)
	}

	if j.config.EmptyReadChance > 0 && j.rng.Float64() < j.config.EmptyReadChance {
		return 0, nil
	}

	toReturn := min(len(j.readBuf), len(buf))

	if j.config.StallAfterBytes > 0 && !j.stallTriggered {
		if j.bytesReadSinceStall >= j.config.StallAfterBytes {
			j.stallTriggered = true
			time.Sleep(j.config.StallDuration)
		} else {
			toReturn = min(toReturn, j.config.StallAfterBytes-j.bytesReadSinceStall)
		}
	}

	if j.config.USBBoundaryStress && toReturn > 0 {
		untilBoundary := 64 - j.bytesReadSinceStall%64
		toReturn = min(toReturn, untilBoundary)
	}

	if j.config.FragmentReads && toReturn > j.config.FragmentMinBytes {
		toReturn = j.config.FragmentMinBytes + j.rng.IntN(toReturn-j.config.FragmentMinBytes+1)
	}

	copy(buf, j.readBuf[:toReturn])
	j.readBuf = j.readBuf[:copy(j.readBuf, j.readBuf[toReturn:])]
	j.bytesReadSinceStall += toReturn
	return toReturn, nil
}

// Close closes the backend when it supports it.
func (j *JitteryConnection) Close() error {
	if c, ok := j.backend.(io.Closer); ok {
		return c.Close() //nolint:wrapcheck // pass-through
	}
	return nil
}

// ResetStallState re-arms the stall.
func (j *JitteryConnection) ResetStallState() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.bytesReadSinceStall = 0
	j.stallTriggered = false
}

// Buffered returns the number of bytes read from the backend but not yet
// returned.
func (j *JitteryConnection) Buffered() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.readBuf)
}

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

package improv

import (
	"github.com/ZaparooProject/go-improv/internal/syncutil"
)

// Transport is an already-open byte connection to an Improv device.
//
// Read returns (0, nil) when no data is available yet; implementations
// should block for at most a short poll interval. The session never calls
// Close: the transport belongs to whoever opened it.
type Transport interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// TransportType represents the type of transport
type TransportType string

const (
	// TransportUART represents a serial port.
	TransportUART TransportType = "uart"
	// TransportWebSocket represents a serial-to-WebSocket bridge.
	TransportWebSocket TransportType = "websocket"
	// TransportMock represents a mock transport for testing
	TransportMock TransportType = "mock"
)

// TypedTransport is implemented by transports that report their kind.
type TypedTransport interface {
	Transport
	Type() TransportType
}

// transportType returns t's kind, or "unknown".
func transportType(t Transport) TransportType {
	if typed, ok := t.(TypedTransport); ok {
		return typed.Type()
	}
	return "unknown"
}

// MockTransport is an in-memory byte pipe for testing. Bytes queued with
// Inject, or produced by the responder after each Write, are returned by
// subsequent reads.
type MockTransport struct {
	responder func(written []byte) []byte
	readErr   error
	writeErr  error
	inbound   []byte
	written   []byte
	writes    int
	reads     int
	maxRead   int
	mu        syncutil.Mutex
	closed    bool
}

// NewMockTransport creates a new mock transport
func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

// Read implements Transport. It returns (0, nil) when nothing is queued.
func (m *MockTransport) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reads++
	if m.closed {
		return 0, ErrTransportClosed
	}
	if m.readErr != nil {
		return 0, m.readErr
	}

	limit := len(p)
	if m.maxRead > 0 && m.maxRead < limit {
		limit = m.maxRead
	}
	n := copy(p[:limit], m.inbound)
	m.inbound = m.inbound[n:]
	return n, nil
}

// Write implements Transport.
func (m *MockTransport) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrTransportClosed
	}
	if m.writeErr != nil {
		return 0, m.writeErr
	}

	m.writes++
	m.written = append(m.written, p...)
	if m.responder != nil {
		m.inbound = append(m.inbound, m.responder(append([]byte(nil), p...))...)
	}
	return len(p), nil
}

// Close implements Transport
func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Type implements TypedTransport
func (*MockTransport) Type() TransportType {
	return TransportMock
}

// Test helper methods

// Inject queues bytes for reading.
func (m *MockTransport) Inject(data []byte) {
	m.mu.Lock()
	m.inbound = append(m.inbound, data...)
	m.mu.Unlock()
}

// SetResponder installs a function whose output is queued for reading
// after every Write. It receives a copy of the written bytes.
func (m *MockTransport) SetResponder(fn func(written []byte) []byte) {
	m.mu.Lock()
	m.responder = fn
	m.mu.Unlock()
}

// SetReadError makes every Read fail with err (nil clears it).
func (m *MockTransport) SetReadError(err error) {
	m.mu.Lock()
	m.readErr = err
	m.mu.Unlock()
}

// SetWriteError makes every Write fail with err (nil clears it).
func (m *MockTransport) SetWriteError(err error) {
	m.mu.Lock()
	m.writeErr = err
	m.mu.Unlock()
}

// SetMaxReadSize caps the bytes returned per Read to simulate fragmented
// serial input. Zero removes the cap.
func (m *MockTransport) SetMaxReadSize(n int) {
	m.mu.Lock()
	m.maxRead = n
	m.mu.Unlock()
}

// Written returns every byte written so far.
func (m *MockTransport) Written() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.written...)
}

// WriteCount returns the number of successful Write calls.
func (m *MockTransport) WriteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// ReadCount returns the number of Read calls.
func (m *MockTransport) ReadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// Pending returns the number of queued, unread bytes.
func (m *MockTransport) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inbound)
}

// IsClosed reports whether Close was called.
func (m *MockTransport) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

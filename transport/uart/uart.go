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

// Package uart connects to Improv devices over a serial port.
package uart

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/ZaparooProject/go-improv"
	"github.com/ZaparooProject/go-improv/internal/syncutil"
)

// DefaultBaudRate is the rate ESPHome and the Improv reference firmware use.
const DefaultBaudRate = 115200

// Transport implements improv.Transport over a serial port.
type Transport struct {
	port     serial.Port
	portName string
	mu       syncutil.Mutex
	closed   bool
}

// isWindows returns true if running on Windows
func isWindows() bool {
	return runtime.GOOS == "windows"
}

// readTimeout is how long a Read blocks before reporting no data. Windows
// drivers need longer to hand over buffered bytes.
func readTimeout() time.Duration {
	if isWindows() {
		return 100 * time.Millisecond
	}
	return 50 * time.Millisecond
}

// windowsPostWriteDelay gives Windows drivers time to flush after a write
func windowsPostWriteDelay() {
	if isWindows() {
		time.Sleep(15 * time.Millisecond)
	}
}

// New opens portName at 8N1. A baud of zero or less selects
// DefaultBaudRate.
//
// DTR and RTS are held low while opening: on most ESP32 and ESP8266
// boards they drive the reset and boot pins.
func New(portName string, baud int) (*Transport, error) {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	port, err := serial.Open(portName, &serial.Mode{
		BaudRate:          baud,
		DataBits:          8,
		Parity:            serial.NoParity,
		StopBits:          serial.OneStopBit,
		InitialStatusBits: &serial.ModemOutputBits{DTR: false, RTS: false},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open UART port %s: %w", portName, err)
	}

	t, err := newTransport(port, portName)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	return t, nil
}

func newTransport(port serial.Port, portName string) (*Transport, error) {
	if err := port.SetReadTimeout(readTimeout()); err != nil {
		return nil, fmt.Errorf("failed to set UART read timeout: %w", err)
	}
	return &Transport{
		port:     port,
		portName: portName,
	}, nil
}

// Read reads available bytes. It returns (0, nil) when the read timeout
// expires without data.
func (t *Transport) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, improv.ErrTransportClosed
	}
	n, err := t.port.Read(p)
	if err != nil {
		if isInterruptedSystemCall(err) {
			return n, nil
		}
		return n, t.wrapError("read", err)
	}
	return n, nil
}

// Write writes p and waits for the bytes to leave the output buffer.
func (t *Transport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, improv.ErrTransportClosed
	}
	n, err := t.port.Write(p)
	if err != nil {
		return n, t.wrapError("write", err)
	}
	if err := t.drainWithRetry("write"); err != nil {
		return n, err
	}
	windowsPostWriteDelay()
	return n, nil
}

// ResetInput discards bytes the device sent before the caller was
// listening, such as boot messages.
func (t *Transport) ResetInput() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return improv.ErrTransportClosed
	}
	if err := t.port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("UART reset input failed: %w", err)
	}
	return nil
}

// SetTimeout sets the read timeout
func (t *Transport) SetTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.port.SetReadTimeout(timeout); err != nil {
		return fmt.Errorf("UART set timeout failed: %w", err)
	}
	return nil
}

// Close closes the port. Closing twice is not an error.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	if err := t.port.Close(); err != nil {
		return fmt.Errorf("UART close failed: %w", err)
	}
	return nil
}

// Port returns the port name.
func (t *Transport) Port() string {
	return t.portName
}

// Type returns the transport type
func (*Transport) Type() improv.TransportType {
	return improv.TransportUART
}

func (t *Transport) wrapError(op string, err error) error {
	var portErr *serial.PortError
	if errors.As(err, &portErr) && portErr.Code() == serial.PortClosed {
		return fmt.Errorf("UART %s on %s: %w: %w", op, t.portName, improv.ErrTransportClosed, err)
	}
	return fmt.Errorf("UART %s on %s: %w", op, t.portName, err)
}

// isInterruptedSystemCall checks if an error is caused by an interrupted system call
func isInterruptedSystemCall(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "interrupted system call") ||
		strings.Contains(errStr, "eintr")
}

// drainWithRetry drains the port, retrying interrupted system calls
func (t *Transport) drainWithRetry(operation string) error {
	const maxRetries = 3
	baseDelay := 2 * time.Millisecond

	for attempt := range maxRetries {
		err := t.port.Drain()
		if err == nil {
			return nil
		}
		if !isInterruptedSystemCall(err) || attempt == maxRetries-1 {
			return fmt.Errorf("UART %s drain failed: %w", operation, err)
		}
		time.Sleep(baseDelay << attempt)
	}
	return nil
}

// PortInfo describes a serial port found on the system.
type PortInfo struct {
	Name         string
	VIDPID       string
	Product      string
	SerialNumber string
	IsUSB        bool
}

// ListPorts returns the serial ports on the system, with USB details where
// the platform provides them.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		improv.Debugf("detailed port enumeration failed, falling back to names: %v", err)
		names, listErr := serial.GetPortsList()
		if listErr != nil {
			return nil, fmt.Errorf("failed to list serial ports: %w", listErr)
		}
		ports := make([]PortInfo, 0, len(names))
		for _, name := range names {
			ports = append(ports, PortInfo{Name: name})
		}
		return ports, nil
	}

	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		info := PortInfo{
			Name:         d.Name,
			Product:      d.Product,
			SerialNumber: d.SerialNumber,
			IsUSB:        d.IsUSB,
		}
		if d.IsUSB && d.VID != "" && d.PID != "" {
			info.VIDPID = strings.ToUpper(d.VID + ":" + d.PID)
		}
		ports = append(ports, info)
	}
	return ports, nil
}

var _ improv.TypedTransport = (*Transport)(nil)

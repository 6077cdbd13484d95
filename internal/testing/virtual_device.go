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
	"bytes"
	"errors"
	"io"
	"strconv"

	"github.com/ZaparooProject/go-improv/internal/frame"
	"github.com/ZaparooProject/go-improv/internal/syncutil"
)

// Device states
const (
	StateReady        byte = 0x02
	StateProvisioning byte = 0x03
	StateProvisioned  byte = 0x04
)

// RPC commands
const (
	CmdSendWifiSettings byte = 0x01
	CmdGetCurrentState  byte = 0x02
	CmdGetDeviceInfo    byte = 0x03
	CmdGetWifiNetworks  byte = 0x04
)

// Error codes
const (
	ErrNone              byte = 0x00
	ErrInvalidRPCPacket  byte = 0x01
	ErrUnknownRPCCommand byte = 0x02
	ErrUnableToConnect   byte = 0x03
	ErrNotAuthorized     byte = 0x04
)

// VirtualNetwork is a network reported by GetWifiNetworks.
type VirtualNetwork struct {
	SSID string
	RSSI int
	Auth bool
}

// ProvisionOutcome controls how the device answers SendWifiSettings.
type ProvisionOutcome struct {
	// URLs are sent in the RPC result after a successful connection.
	URLs []string
	// Error, when not ErrNone, makes the attempt fail with that code after
	// the device reverts to Ready.
	Error byte
	// NoResult reports Provisioned without sending an RPC result.
	NoResult bool
}

// ReceivedCommand is an RPC command the device accepted.
type ReceivedCommand struct {
	Data    []byte
	Command byte
}

// VirtualDevice simulates an Improv serial device at the byte level. Writes
// are parsed as host frames and the device's answers are queued for Read.
// A Read with nothing queued returns 0 bytes and no error, the way a serial
// port with a read timeout behaves.
type VirtualDevice struct {
	rx        *frame.Reader
	scripts   map[byte][][]byte
	tx        bytes.Buffer
	noise     string
	ssid      string
	password  string
	info      []string
	networks  []VirtualNetwork
	received  []ReceivedCommand
	outcome   ProvisionOutcome
	mu        syncutil.Mutex
	state     byte
	silent    bool
	closed    bool
	newline   bool
	badFrames int
}

// NewVirtualDevice creates a Ready device with sample firmware details that
// connects successfully and redirects to http://192.168.1.50.
func NewVirtualDevice() *VirtualDevice {
	return &VirtualDevice{
		rx:      frame.NewReader(0),
		scripts: make(map[byte][][]byte),
		state:   StateReady,
		info:    []string{"ESPHome", "2024.6.0", "ESP32-C3", "Kitchen Light"},
		outcome: ProvisionOutcome{URLs: []string{"http://192.168.1.50"}},
		newline: true,
	}
}

// Write implements io.Writer; it consumes host frames.
func (v *VirtualDevice) Write(data []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return 0, io.ErrClosedPipe
	}

	v.rx.Feed(data)
	for {
		frm, ok, err := v.rx.Next()
		if err != nil {
			v.badFrames++
			v.rx.Reset()
			break
		}
		if !ok {
			break
		}
		v.handleFrame(frm)
	}
	return len(data), nil
}

// Read implements io.Reader; it returns queued device output.
func (v *VirtualDevice) Read(buf []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return 0, io.ErrClosedPipe
	}
	if v.tx.Len() == 0 {
		return 0, nil
	}
	n, err := v.tx.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, err
	}
	return n, nil
}

// Close makes further reads and writes fail with io.ErrClosedPipe.
func (v *VirtualDevice) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	return nil
}

// SetState sets the advertised provisioning state.
func (v *VirtualDevice) SetState(state byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state = state
}

// State returns the current provisioning state.
func (v *VirtualDevice) State() byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// SetDeviceInfo sets the strings returned by GetDeviceInfo.
func (v *VirtualDevice) SetDeviceInfo(info ...string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.info = append([]string(nil), info...)
}

// SetNetworks sets the scan results.
func (v *VirtualDevice) SetNetworks(networks ...VirtualNetwork) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.networks = append([]VirtualNetwork(nil), networks...)
}

// SetProvisionOutcome controls the answer to the next SendWifiSettings.
func (v *VirtualDevice) SetProvisionOutcome(outcome ProvisionOutcome) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.outcome = outcome
}

// SetSilent makes the device accept commands without answering.
func (v *VirtualDevice) SetSilent(silent bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.silent = silent
}

// SetLogNoise emits line before every packet, mimicking firmware that
// shares the UART with its log output. An empty line disables it.
func (v *VirtualDevice) SetLogNoise(line string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.noise = line
}

// SetTrailingNewline controls whether a newline follows each packet.
func (v *VirtualDevice) SetTrailingNewline(enabled bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.newline = enabled
}

// Script replaces the answer to the next cmd with raw output. Each call
// queues one scripted answer.
func (v *VirtualDevice) Script(cmd byte, raw ...[]byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.scripts[cmd] = append(v.scripts[cmd], bytes.Join(raw, nil))
}

// Inject queues raw bytes for the host to read.
func (v *VirtualDevice) Inject(raw []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.tx.Write(raw)
}

// InjectPacket queues an unsolicited packet.
func (v *VirtualDevice) InjectPacket(typ byte, payload []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.emit(typ, payload)
}

// Received returns the commands accepted so far.
func (v *VirtualDevice) Received() []ReceivedCommand {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]ReceivedCommand(nil), v.received...)
}

// Credentials returns the last Wi-Fi settings the device received.
func (v *VirtualDevice) Credentials() (ssid, password string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ssid, v.password
}

// BadFrames returns how many times the device lost sync on host input.
func (v *VirtualDevice) BadFrames() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.badFrames
}

// Pending returns the number of queued output bytes.
func (v *VirtualDevice) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.tx.Len()
}

func (v *VirtualDevice) handleFrame(frm frame.Frame) {
	if frm.Type != frame.TypeRPCCommand {
		return
	}
	if len(frm.Payload) < 2 || int(frm.Payload[1]) != len(frm.Payload)-2 {
		_ = v.emitError(ErrInvalidRPCPacket)
		return
	}

	cmd := frm.Payload[0]
	data := append([]byte(nil), frm.Payload[2:]...)
	v.received = append(v.received, ReceivedCommand{Command: cmd, Data: data})

	if v.silent {
		return
	}
	if scripted := v.scripts[cmd]; len(scripted) > 0 {
		v.tx.Write(scripted[0])
		v.scripts[cmd] = scripted[1:]
		return
	}

	switch cmd {
	case CmdSendWifiSettings:
		_ = v.handleWifiSettings(data)
	case CmdGetCurrentState:
		_ = v.handleGetCurrentState()
	case CmdGetDeviceInfo:
		_ = v.emitResult(cmd, v.info...)
	case CmdGetWifiNetworks:
		_ = v.handleGetWifiNetworks()
	default:
		_ = v.emitError(ErrUnknownRPCCommand)
	}
}

func (v *VirtualDevice) handleWifiSettings(data []byte) error {
	strs, ok := splitStrings(data)
	if !ok || len(strs) != 2 {
		return v.emitError(ErrInvalidRPCPacket)
	}
	if v.state != StateReady {
		return v.emitError(ErrNotAuthorized)
	}
	v.ssid, v.password = strs[0], strs[1]

	if err := v.emitError(ErrNone); err != nil {
		return err
	}
	if err := v.emitState(StateProvisioning); err != nil {
		return err
	}

	if v.outcome.Error != ErrNone {
		if err := v.emitState(StateReady); err != nil {
			return err
		}
		return v.emitError(v.outcome.Error)
	}

	if err := v.emitState(StateProvisioned); err != nil {
		return err
	}
	if v.outcome.NoResult {
		return nil
	}
	return v.emitResult(CmdSendWifiSettings, v.outcome.URLs...)
}

func (v *VirtualDevice) handleGetCurrentState() error {
	if err := v.emitState(v.state); err != nil {
		return err
	}
	if v.state == StateProvisioned && len(v.outcome.URLs) > 0 {
		return v.emitResult(CmdGetCurrentState, v.outcome.URLs...)
	}
	return nil
}

func (v *VirtualDevice) handleGetWifiNetworks() error {
	for _, n := range v.networks {
		auth := "NO"
		if n.Auth {
			auth = "YES"
		}
		if err := v.emitResult(CmdGetWifiNetworks, n.SSID, strconv.Itoa(n.RSSI), auth); err != nil {
			return err
		}
	}
	return v.emitResult(CmdGetWifiNetworks)
}

func (v *VirtualDevice) emitState(state byte) error {
	v.state = state
	return v.emit(frame.TypeCurrentState, []byte{state})
}

func (v *VirtualDevice) emitError(code byte) error {
	return v.emit(frame.TypeErrorState, []byte{code})
}

func (v *VirtualDevice) emitResult(cmd byte, strs ...string) error {
	payload, err := ResultPayload(cmd, strs...)
	if err != nil {
		return err
	}
	return v.emit(frame.TypeRPCResult, payload)
}

func (v *VirtualDevice) emit(typ byte, payload []byte) error {
	raw, err := frame.Encode(typ, payload)
	if err != nil {
		return err
	}
	if v.noise != "" {
		v.tx.WriteString(v.noise)
	}
	v.tx.Write(raw)
	if v.newline {
		v.tx.WriteByte('\n')
	}
	return nil
}

// ResultPayload builds an RPC result payload: command, total length, then
// length-prefixed strings.
func ResultPayload(cmd byte, strs ...string) ([]byte, error) {
	body := make([]byte, 0, frame.MaxPayloadLength)
	for _, s := range strs {
		if len(s) > 0xFF {
			return nil, frame.ErrPayloadTooLarge
		}
		body = append(body, byte(len(s)))
		body = append(body, s...)
	}
	if len(body) > frame.MaxPayloadLength-2 {
		return nil, frame.ErrPayloadTooLarge
	}
	return append([]byte{cmd, byte(len(body))}, body...), nil
}

// Frame encodes a complete packet, panicking on invalid input. It is meant
// for building fixtures.
func Frame(typ byte, payload []byte) []byte {
	raw, err := frame.Encode(typ, payload)
	if err != nil {
		panic(err)
	}
	return raw
}

// ResultFrame encodes a complete RPC result packet for fixtures.
func ResultFrame(cmd byte, strs ...string) []byte {
	payload, err := ResultPayload(cmd, strs...)
	if err != nil {
		panic(err)
	}
	return Frame(frame.TypeRPCResult, payload)
}

func splitStrings(data []byte) ([]string, bool) {
	var strs []string
	for len(data) > 0 {
		n := int(data[0])
		if len(data) < n+1 {
			return nil, false
		}
		strs = append(strs, string(data[1:n+1]))
		data = data[n+1:]
	}
	return strs, true
}

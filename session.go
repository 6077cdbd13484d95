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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ZaparooProject/go-improv/internal/frame"
	"github.com/ZaparooProject/go-improv/internal/syncutil"
)

// readBufferSize is the chunk requested from the transport per read.
const readBufferSize = 512

// DeviceInfo describes the device firmware and hardware.
type DeviceInfo struct {
	FirmwareName    string
	FirmwareVersion string
	Hardware        string
	DeviceName      string
	// Raw holds every string of the result, including ones newer
	// firmware appends after the four known fields.
	Raw []string
}

func newDeviceInfo(strs []string) *DeviceInfo {
	field := func(i int) string {
		if i < len(strs) {
			return strs[i]
		}
		return ""
	}
	return &DeviceInfo{
		FirmwareName:    field(0),
		FirmwareVersion: field(1),
		Hardware:        field(2),
		DeviceName:      field(3),
		Raw:             append([]string(nil), strs...),
	}
}

// Network is a Wi-Fi network seen by the device during a scan.
type Network struct {
	SSID         string
	RSSI         int
	AuthRequired bool
}

func parseNetwork(strs []string) (Network, error) {
	if len(strs) < 3 {
		return Network{}, fmt.Errorf("%w: network entry has %d fields, want 3", ErrInvalidPayload, len(strs))
	}
	rssi, err := strconv.Atoi(strings.TrimSpace(strs[1]))
	if err != nil {
		return Network{}, fmt.Errorf("%w: network RSSI %q", ErrInvalidPayload, strs[1])
	}
	return Network{
		SSID:         strs[0],
		RSSI:         rssi,
		AuthRequired: strings.EqualFold(strs[2], "YES"),
	}, nil
}

// ProvisionResult is the outcome of a successful provisioning attempt.
type ProvisionResult struct {
	// URLs are the strings the device returned, normally a single
	// redirect URL. Empty when the device reported Provisioned without
	// sending a result.
	URLs  []string
	State DeviceState
}

// RedirectURL returns the first result string, or "" when there is none.
func (r *ProvisionResult) RedirectURL() string {
	if len(r.URLs) == 0 {
		return ""
	}
	return r.URLs[0]
}

// Session drives the Improv protocol over one transport.
//
// At most one command is outstanding at a time. A call made while another
// is in flight fails with ErrInvalidState without writing anything.
// Responses observed while a command is pending are applied to a working
// copy of the status, committed when the command resolves with a result
// or a device error; a timeout leaves the committed status unchanged.
type Session struct {
	transport Transport
	config    *Config
	reader    *frame.Reader
	readBuf   []byte

	mu         syncutil.Mutex
	result     []string
	broken     error
	unexpected int
	status     Status
	pending    Command
	inFlight   bool
	closed     bool
}

// NewSession creates a session over an open transport.
func NewSession(transport Transport, opts ...Option) (*Session, error) {
	if transport == nil {
		return nil, fmt.Errorf("%w: nil transport", ErrInvalidConfig)
	}

	cfg := DefaultConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	Debugf("new session on %s transport %s", transportType(transport), cfg.Port)
	return &Session{
		transport: transport,
		config:    cfg,
		reader:    frame.NewReader(cfg.MaxResyncAttempts),
		readBuf:   make([]byte, readBufferSize),
	}, nil
}

// request describes one command exchange.
type request struct {
	// check validates the committed status before anything is sent.
	check func(Status) error
	// onResponse sees every correlated response after it has been applied
	// to the working status. It returns true once the command resolved.
	onResponse func(ex *exchange, r Response) (bool, error)
	data       []byte
	// settleAfter, when positive, resolves the command successfully after
	// that much time without another outcome.
	settleAfter time.Duration
	timeout     time.Duration
	cmd         Command
}

// exchange is the state staged while a command is outstanding.
type exchange struct {
	settleAt   time.Time
	result     []string
	networks   []Network
	trace      *TraceBuffer
	work       Status
	unexpected int
}

func (ex *exchange) settling() bool {
	return !ex.settleAt.IsZero()
}

func (ex *exchange) settled() bool {
	return ex.settling() && !time.Now().Before(ex.settleAt)
}

// QueryInfo requests the device information.
func (s *Session) QueryInfo(ctx context.Context) (*DeviceInfo, error) {
	var info *DeviceInfo
	_, err := s.run(ctx, request{
		cmd:     CommandGetDeviceInfo,
		timeout: s.config.Timeout,
		onResponse: func(_ *exchange, r Response) (bool, error) {
			if r.Type != PacketRPCResult {
				return false, nil
			}
			info = newDeviceInfo(r.Strings)
			return true, nil
		},
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// RequestState asks the device for its current state.
func (s *Session) RequestState(ctx context.Context) (DeviceState, error) {
	ex, err := s.run(ctx, request{
		cmd:     CommandGetCurrentState,
		timeout: s.config.Timeout,
		onResponse: func(_ *exchange, r Response) (bool, error) {
			return r.Type == PacketCurrentState, nil
		},
	})
	if err != nil {
		return StateUnknown, err
	}
	return ex.work.State, nil
}

// Provision sends Wi-Fi credentials. The device must be Ready, with or
// without an error from an earlier attempt.
//
// It resolves with the redirect URLs from the device's RPC result, or with
// no URL if the device reports Provisioned and sends no result within
// Config.ResultGrace. A device ErrorState fails it with a *DeviceError
// matching ErrProvisioningFailed.
func (s *Session) Provision(ctx context.Context, ssid, password string) (*ProvisionResult, error) {
	data, err := EncodeWifiSettings(ssid, password)
	if err != nil {
		return nil, err
	}

	ex, err := s.run(ctx, request{
		cmd:     CommandSendWifiSettings,
		data:    data,
		timeout: s.config.ProvisionTimeout,
		check: func(st Status) error {
			if st.State != StateReady {
				return fmt.Errorf("%w: provisioning requires %s, device is %s", ErrInvalidState, StateReady, st)
			}
			return nil
		},
		onResponse: func(ex *exchange, r Response) (bool, error) {
			switch {
			case r.Type == PacketRPCResult:
				ex.result = append([]string{}, r.Strings...)
				return true, nil
			case r.Type == PacketCurrentState && r.State == StateProvisioned && !ex.settling():
				ex.settleAt = time.Now().Add(s.config.ResultGrace)
			}
			return false, nil
		},
	})
	if err != nil {
		return nil, err
	}

	urls := ex.result
	if urls == nil {
		urls = []string{}
	}
	return &ProvisionResult{URLs: urls, State: ex.work.State}, nil
}

// Identify asks the device to identify itself. Silence for
// Config.IdentifyWindow counts as success; a CurrentState acknowledgement
// ends the wait early and an ErrorState fails with ErrCommandRejected.
func (s *Session) Identify(ctx context.Context) error {
	_, err := s.run(ctx, request{
		cmd:         CommandIdentify,
		timeout:     s.config.IdentifyWindow + s.config.Timeout,
		settleAfter: s.config.IdentifyWindow,
		onResponse: func(_ *exchange, r Response) (bool, error) {
			return r.Type == PacketCurrentState, nil
		},
	})
	return err
}

// ScanNetworks asks the device for the networks it can see. Devices send
// one RPC result per network followed by an empty one. Malformed entries
// are skipped.
func (s *Session) ScanNetworks(ctx context.Context) ([]Network, error) {
	ex, err := s.run(ctx, request{
		cmd:     CommandGetWifiNetworks,
		timeout: s.config.ScanTimeout,
		onResponse: func(ex *exchange, r Response) (bool, error) {
			if r.Type != PacketRPCResult {
				return false, nil
			}
			if len(r.Strings) == 0 {
				return true, nil
			}
			network, err := parseNetwork(r.Strings)
			if err != nil {
				Debugf("skipping network entry %q: %v", r.Strings, err)
				return false, nil
			}
			ex.networks = append(ex.networks, network)
			return false, nil
		},
	})
	if err != nil {
		return nil, err
	}
	if ex.networks == nil {
		return []Network{}, nil
	}
	return ex.networks, nil
}

// Status returns the last committed device status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Result returns the strings from the last successful provisioning
// attempt, or nil if there was none.
func (s *Session) Result() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return nil
	}
	return append([]string{}, s.result...)
}

// UnexpectedTransitions returns how many committed state reports were not
// legal steps from the state before them.
func (s *Session) UnexpectedTransitions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unexpected
}

// Close ends the session. Later commands fail with ErrSessionClosed. The
// transport is left open.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// run claims the in-flight slot, performs the exchange and commits or
// discards the staged state.
func (s *Session) run(ctx context.Context, req request) (*exchange, error) {
	work, err := s.begin(req)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	ex := &exchange{
		work:  work,
		trace: NewTraceBuffer(s.config.Port, s.config.TraceSize),
	}
	err = s.exchange(ctx, req, ex)
	s.finish(ex, err)
	if obs := s.config.Observer; obs != nil {
		obs.CommandFinished(s.config.Port, req.cmd, time.Since(started), err)
	}
	if err != nil {
		Debugf("%s failed: %v", req.cmd, err)
		return nil, ex.trace.WrapError(err)
	}
	return ex, nil
}

func (s *Session) begin(req request) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closed:
		return Status{}, ErrSessionClosed
	case s.broken != nil:
		return Status{}, fmt.Errorf("session unusable after earlier failure: %w", s.broken)
	case s.inFlight:
		return Status{}, fmt.Errorf("%w: %w: %s is outstanding", ErrInvalidState, ErrCommandInFlight, s.pending)
	}

	if req.check != nil {
		if err := req.check(s.status); err != nil {
			return Status{}, err
		}
	}

	s.inFlight = true
	s.pending = req.cmd
	return s.status, nil
}

func (s *Session) finish(ex *exchange, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inFlight = false
	s.pending = CommandUnknown

	var devErr *DeviceError
	if err == nil || errors.As(err, &devErr) {
		if ex.work != s.status {
			Debugf("status %s -> %s", s.status, ex.work)
		}
		s.status = ex.work
		s.unexpected += ex.unexpected
		if ex.result != nil {
			s.result = ex.result
		}
	}
	if IsFatal(err) {
		s.broken = err
	}
}

func (s *Session) exchange(ctx context.Context, req request, ex *exchange) error {
	ctx, cancel := context.WithTimeout(ctx, req.timeout)
	defer cancel()

	if err := s.drain(ex); err != nil {
		return err
	}

	out, err := Encode(req.cmd, req.data)
	if err != nil {
		return err
	}
	if err := s.send(req.cmd, out, ex); err != nil {
		return err
	}
	if req.settleAfter > 0 {
		ex.settleAt = time.Now().Add(req.settleAfter)
	}

	for {
		frm, ok, err := s.reader.Next()
		if err != nil {
			ex.trace.RecordRX(nil, "desynchronized")
			s.logReaderStats(req.cmd)
			return fmt.Errorf("waiting for %s: %w", req.cmd, err)
		}
		if ok {
			done, err := s.handleFrame(req, ex, frm)
			if err != nil || done {
				return err
			}
			continue
		}

		if ex.settled() {
			return nil
		}
		if err := s.fill(ctx, ex); err != nil {
			if !errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			if ex.settling() {
				return nil
			}
			ex.trace.RecordTimeout(req.cmd.String())
			s.logReaderStats(req.cmd)
			return fmt.Errorf("%w: no response to %s within %v", ErrTimeout, req.cmd, req.timeout)
		}
	}
}

func (s *Session) logReaderStats(cmd Command) {
	Debugf("%s: reader discarded %d bytes over %d resyncs, %d buffered",
		cmd, s.reader.Discarded(), s.reader.Resyncs(), s.reader.Buffered())
}

// drain discards input left over from earlier commands, such as late
// responses to a command that timed out.
func (s *Session) drain(ex *exchange) error {
	for range s.config.MaxDrainReads {
		n, err := s.transport.Read(s.readBuf)
		if n > 0 {
			s.reader.Feed(s.readBuf[:n])
		}
		if err != nil {
			return s.readError(err)
		}
		if n == 0 {
			break
		}
	}

	stale := 0
	for {
		frm, ok, err := s.reader.Next()
		if err != nil || !ok {
			break
		}
		stale++
		Debugf("discarding stale %s frame", PacketType(frm.Type))
	}
	if stale > 0 {
		ex.trace.RecordRX(nil, fmt.Sprintf("discarded %d stale frames", stale))
	}
	s.reader.Reset()
	return nil
}

func (s *Session) send(cmd Command, out []byte, ex *exchange) error {
	if s.config.TrailingNewline {
		out = append(out, '\n')
	}
	logged := out
	if cmd == CommandSendWifiSettings {
		logged = maskPassword(out)
	}
	ex.trace.RecordTX(logged, cmd.String())
	Debugf("TX %s: %s", cmd, formatHexBytes(logged))

	for written := 0; written < len(out); {
		n, err := s.transport.Write(out[written:])
		if err != nil {
			return NewTransportError("write", s.config.Port,
				fmt.Errorf("%w: %w", ErrTransportWrite, err), classifyIOError(err))
		}
		if n == 0 {
			return NewTransportError("write", s.config.Port,
				fmt.Errorf("%w: %w", ErrTransportWrite, io.ErrShortWrite), ErrorTypeTransient)
		}
		written += n
	}
	return nil
}

// ssidLengthOffset locates the SSID length byte of a SendWifiSettings
// frame: header, version, type, length, command, data length.
const ssidLengthOffset = frame.HeaderLength + 5

// maskPassword returns a copy of an encoded SendWifiSettings frame with
// the password bytes replaced by '*'. The checksum is left as sent.
func maskPassword(raw []byte) []byte {
	masked := bytes.Clone(raw)
	if len(masked) <= ssidLengthOffset {
		return masked
	}
	passLenAt := ssidLengthOffset + 1 + int(masked[ssidLengthOffset])
	if passLenAt >= len(masked) {
		return masked
	}
	start := passLenAt + 1
	end := min(start+int(masked[passLenAt]), len(masked))
	for i := start; i < end; i++ {
		masked[i] = '*'
	}
	return masked
}

// fill reads once from the transport, pausing for the poll interval when
// no data is available.
func (s *Session) fill(ctx context.Context, ex *exchange) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	n, err := s.transport.Read(s.readBuf)
	if n > 0 {
		s.reader.Feed(s.readBuf[:n])
	}
	if err != nil {
		return s.readError(err)
	}
	if n > 0 {
		return nil
	}

	wait := s.config.PollInterval
	if ex.settling() {
		wait = min(wait, max(time.Until(ex.settleAt), 0))
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Session) readError(err error) error {
	return NewTransportError("read", s.config.Port,
		fmt.Errorf("%w: %w", ErrTransportRead, err), classifyIOError(err))
}

// handleFrame applies one received frame. It returns true when the
// pending command resolved.
func (s *Session) handleFrame(req request, ex *exchange, frm frame.Frame) (bool, error) {
	raw, _ := frame.Encode(frm.Type, frm.Payload)
	resp, err := ParseResponse(Packet{Type: PacketType(frm.Type), Payload: frm.Payload})
	if err != nil {
		ex.trace.RecordRX(raw, "ignored: "+err.Error())
		Debugf("ignoring frame %s: %v", formatHexBytes(raw), err)
		return false, nil
	}
	ex.trace.RecordRX(raw, resp.String())
	Debugf("RX %s", resp)

	switch resp.Type {
	case PacketCurrentState, PacketErrorState:
		next, unexpected := Transition(ex.work, resp)
		if unexpected {
			ex.unexpected++
			Debugf("unexpected transition %s -> %s", ex.work, next)
		}
		ex.work = next
		if resp.Type == PacketErrorState && resp.Error != ErrorNone {
			return true, &DeviceError{Command: req.cmd, Code: resp.Error}
		}

	case PacketRPCResult:
		if resp.Command != req.cmd {
			Debugf("discarding stale %s result while waiting for %s", resp.Command, req.cmd)
			return false, nil
		}
	}

	return req.onResponse(ex, resp)
}

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

// Package websocket connects to Improv devices through a serial-to-WebSocket
// bridge. Each binary message carries raw serial bytes in either direction.
package websocket

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ZaparooProject/go-improv"
	"github.com/ZaparooProject/go-improv/internal/syncutil"
)

// Defaults for Options
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultPollTimeout      = 50 * time.Millisecond
)

// Options configures Dial.
type Options struct {
	// Username and Password enable HTTP Basic authentication when both
	// are set.
	Username string
	Password string
	// HandshakeTimeout bounds the WebSocket upgrade.
	HandshakeTimeout time.Duration
	// PollTimeout is how long Read waits for a message before reporting
	// no data.
	PollTimeout time.Duration
	// InsecureSkipVerify disables certificate checks for wss:// URLs.
	InsecureSkipVerify bool
}

// Transport implements improv.Transport over a WebSocket connection.
//
// A reader goroutine owns the connection's read side and hands messages
// to Read, since gorilla/websocket connections cannot be read again after
// a read deadline expires.
type Transport struct {
	conn     *websocket.Conn
	incoming chan []byte
	done     chan struct{}
	readErr  error
	url      string
	pending  []byte
	poll     time.Duration
	writeMu  syncutil.Mutex
	readMu   syncutil.Mutex
	closed   bool
}

// Dial connects to a ws:// or wss:// URL.
func Dial(ctx context.Context, rawURL string, opts Options) (*Transport, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	dialer := websocket.Dialer{HandshakeTimeout: opts.HandshakeTimeout}
	if u.Scheme == "wss" {
		//nolint:gosec // skipping verification is an explicit user choice
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: opts.InsecureSkipVerify}
	}

	headers := http.Header{}
	if opts.Username != "" && opts.Password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(opts.Username + ":" + opts.Password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	conn, resp, err := dialer.DialContext(ctx, rawURL, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	improv.Debugf("connected to %s", u.Redacted())
	return newTransport(conn, u.Redacted(), opts.PollTimeout), nil
}

func newTransport(conn *websocket.Conn, name string, poll time.Duration) *Transport {
	if poll <= 0 {
		poll = DefaultPollTimeout
	}
	t := &Transport{
		conn:     conn,
		url:      name,
		poll:     poll,
		incoming: make(chan []byte, 64),
		done:     make(chan struct{}),
	}
	go t.readLoop()
	return t
}

func (t *Transport) readLoop() {
	defer close(t.incoming)
	for {
		messageType, data, err := t.conn.ReadMessage()
		if err != nil {
			t.readMu.Lock()
			t.readErr = err
			t.readMu.Unlock()
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		select {
		case t.incoming <- data:
		case <-t.done:
			return
		}
	}
}

// Read returns buffered message bytes, waiting up to the poll timeout for
// the next message. It returns (0, nil) when none arrives.
func (t *Transport) Read(p []byte) (int, error) {
	if len(t.pending) > 0 {
		n := copy(p, t.pending)
		t.pending = t.pending[n:]
		return n, nil
	}

	timer := time.NewTimer(t.poll)
	defer timer.Stop()

	select {
	case msg, ok := <-t.incoming:
		if !ok {
			return 0, t.closedError()
		}
		n := copy(p, msg)
		t.pending = msg[n:]
		return n, nil
	case <-timer.C:
		return 0, nil
	}
}

// Write sends p as one binary message.
func (t *Transport) Write(p []byte) (int, error) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.closed {
		return 0, improv.ErrTransportClosed
	}
	if err := t.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, fmt.Errorf("WebSocket write to %s: %w", t.url, err)
	}
	return len(p), nil
}

// Close sends a close frame and closes the connection. Closing twice is
// not an error.
func (t *Transport) Close() error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	close(t.done)

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	if err := t.conn.Close(); err != nil {
		return fmt.Errorf("WebSocket close failed: %w", err)
	}
	return nil
}

// Type returns the transport type
func (*Transport) Type() improv.TransportType {
	return improv.TransportWebSocket
}

// URL returns the connection URL with any password redacted.
func (t *Transport) URL() string {
	return t.url
}

func (t *Transport) closedError() error {
	t.readMu.Lock()
	err := t.readErr
	t.readMu.Unlock()

	var closeErr *websocket.CloseError
	if err == nil || errors.As(err, &closeErr) || t.isClosed() {
		return fmt.Errorf("WebSocket %s: %w", t.url, improv.ErrTransportClosed)
	}
	return fmt.Errorf("WebSocket read from %s: %w", t.url, err)
}

func (t *Transport) isClosed() bool {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.closed
}

var _ improv.TypedTransport = (*Transport)(nil)

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

package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZaparooProject/go-improv"
	virt "github.com/ZaparooProject/go-improv/internal/testing"
)

// bridge serves a VirtualDevice over WebSocket, splitting each reply into
// chunk-sized binary messages.
func bridge(t *testing.T, dev *virt.VirtualDevice, chunk int, user, pass string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user != "" {
			u, p, ok := r.BasicAuth()
			if !ok || u != user || p != pass {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			_, _ = dev.Write(data)

			buf := make([]byte, 1024)
			n, _ := dev.Read(buf)
			out := buf[:n]
			for len(out) > 0 {
				size := min(chunk, len(out))
				if err := conn.WriteMessage(websocket.BinaryMessage, out[:size]); err != nil {
					return
				}
				out = out[size:]
			}
		}
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestDial_RejectsScheme(t *testing.T) {
	t.Parallel()

	_, err := Dial(context.Background(), "http://localhost:1234", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported URL scheme")
}

func TestDial_BadCredentials(t *testing.T) {
	t.Parallel()

	server := bridge(t, virt.NewVirtualDevice(), 64, "admin", "secret")
	defer server.Close()

	_, err := Dial(context.Background(), wsURL(server), Options{Username: "admin", Password: "wrong"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 401")
}

func TestTransport_SessionRoundTrip(t *testing.T) {
	t.Parallel()

	dev := virt.NewVirtualDevice()
	server := bridge(t, dev, 5, "admin", "secret")
	defer server.Close()

	transport, err := Dial(context.Background(), wsURL(server), Options{
		Username:    "admin",
		Password:    "secret",
		PollTimeout: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	defer func() { _ = transport.Close() }()

	session, err := improv.NewSession(transport,
		improv.WithPort(transport.URL()),
		improv.WithTimeout(2*time.Second),
		improv.WithPollInterval(time.Millisecond),
	)
	require.NoError(t, err)

	state, err := session.RequestState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, improv.StateReady, state)

	info, err := session.QueryInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ESPHome", info.FirmwareName)
	assert.Equal(t, "Kitchen Light", info.DeviceName)
}

func TestTransport_ReadIdleReturnsZero(t *testing.T) {
	t.Parallel()

	server := bridge(t, virt.NewVirtualDevice(), 64, "", "")
	defer server.Close()

	transport, err := Dial(context.Background(), wsURL(server), Options{PollTimeout: 5 * time.Millisecond})
	require.NoError(t, err)
	defer func() { _ = transport.Close() }()

	buf := make([]byte, 16)
	n, err := transport.Read(buf)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTransport_ReadSplitsLargeMessage(t *testing.T) {
	t.Parallel()

	dev := virt.NewVirtualDevice()
	dev.SetTrailingNewline(false)
	server := bridge(t, dev, 1024, "", "")
	defer server.Close()

	transport, err := Dial(context.Background(), wsURL(server), Options{PollTimeout: time.Second})
	require.NoError(t, err)
	defer func() { _ = transport.Close() }()

	request := virt.Frame(0x03, []byte{0x02, 0x00})
	_, err = transport.Write(request)
	require.NoError(t, err)

	want := virt.Frame(0x01, []byte{virt.StateReady})
	got := make([]byte, 0, len(want))
	small := make([]byte, 4)
	for len(got) < len(want) {
		n, readErr := transport.Read(small)
		require.NoError(t, readErr)
		require.NotZero(t, n)
		got = append(got, small[:n]...)
	}
	assert.Equal(t, want, got)
}

func TestTransport_Close(t *testing.T) {
	t.Parallel()

	server := bridge(t, virt.NewVirtualDevice(), 64, "", "")
	defer server.Close()

	transport, err := Dial(context.Background(), wsURL(server), Options{PollTimeout: 5 * time.Millisecond})
	require.NoError(t, err)

	require.NoError(t, transport.Close())
	require.NoError(t, transport.Close())

	_, err = transport.Write([]byte{0x00})
	require.ErrorIs(t, err, improv.ErrTransportClosed)

	buf := make([]byte, 8)
	require.Eventually(t, func() bool {
		_, readErr := transport.Read(buf)
		return readErr != nil
	}, time.Second, 5*time.Millisecond)

	_, err = transport.Read(buf)
	require.ErrorIs(t, err, improv.ErrTransportClosed)
	assert.Equal(t, improv.TransportWebSocket, transport.Type())
}

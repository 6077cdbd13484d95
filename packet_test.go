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
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func TestEncode_KnownVectors(t *testing.T) {
	t.Parallel()

	anthill, err := EncodeWifiSettings("anthill", "ants in my pants")
	require.NoError(t, err)
	myssid, err := EncodeWifiSettings("myssid", "hunter2")
	require.NoError(t, err)

	tests := []struct {
		name string
		want string
		data []byte
		cmd  Command
	}{
		{name: "get device info", cmd: CommandGetDeviceInfo, want: "494d50524f560103020300e6"},
		{name: "get current state", cmd: CommandGetCurrentState, want: "494d50524f560103020200e5"},
		{name: "get wifi networks", cmd: CommandGetWifiNetworks, want: "494d50524f560103020400e7"},
		{
			name: "wifi settings anthill",
			cmd:  CommandSendWifiSettings,
			data: anthill,
			want: "494d50524f5601031b011907616e7468696c6c10616e747320696e206d792070616e747312",
		},
		{
			name: "wifi settings myssid",
			cmd:  CommandSendWifiSettings,
			data: myssid,
			want: "494d50524f56010311010f066d79737369640768756e7465723270",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Encode(tt.cmd, tt.data)
			require.NoError(t, err)
			assert.Equal(t, mustHex(t, tt.want), got)
		})
	}
}

func TestEncode_Rejects(t *testing.T) {
	t.Parallel()

	_, err := Encode(CommandUnknown, nil)
	require.ErrorIs(t, err, ErrEncoding)

	_, err = Encode(CommandBadChecksum, nil)
	require.ErrorIs(t, err, ErrEncoding)

	_, err = Encode(CommandGetDeviceInfo, make([]byte, MaxCommandDataLength+1))
	require.ErrorIs(t, err, ErrEncoding)

	_, err = Encode(CommandGetDeviceInfo, make([]byte, MaxCommandDataLength))
	require.NoError(t, err)
}

func TestEncode_DecodeRoundTrip(t *testing.T) {
	t.Parallel()

	for _, cmd := range []Command{
		CommandSendWifiSettings, CommandGetCurrentState, CommandGetDeviceInfo, CommandGetWifiNetworks,
	} {
		t.Run(cmd.String(), func(t *testing.T) {
			t.Parallel()
			data := []byte{0x05, 'h', 'e', 'l', 'l', 'o'}

			raw, err := Encode(cmd, data)
			require.NoError(t, err)

			pkt, err := Decode(raw)
			require.NoError(t, err)
			assert.Equal(t, PacketRPCCommand, pkt.Type)

			rpc, err := ParseCommand(pkt.Payload)
			require.NoError(t, err)
			assert.Equal(t, cmd, rpc.Command)
			assert.Equal(t, data, rpc.Data)
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	t.Parallel()

	valid := mustHex(t, "494d50524f5601010102e2")

	corrupt := append([]byte(nil), valid...)
	corrupt[len(corrupt)-1] ^= 0xFF
	_, err := Decode(corrupt)
	require.ErrorIs(t, err, ErrChecksumMismatch)

	_, err = Decode(valid[:5])
	require.ErrorIs(t, err, ErrIncomplete)

	_, err = Decode([]byte("HELLO WORLD"))
	require.ErrorIs(t, err, ErrBadHeader)

	badVersion := append([]byte(nil), valid...)
	badVersion[6] = 0x02
	_, err = Decode(badVersion)
	require.ErrorIs(t, err, ErrUnsupportedVersion)

	badType := append([]byte(nil), valid...)
	badType[7] = 0x09
	_, err = Decode(badType)
	require.ErrorIs(t, err, ErrUnknownType)
}

func TestDecode_LengthBitFlipsFailChecksum(t *testing.T) {
	t.Parallel()

	valid := mustHex(t, "494d50524f560103020300e6")
	for bit := range 8 {
		corrupted := append([]byte(nil), valid...)
		corrupted[8] ^= 1 << bit
		_, err := Decode(corrupted)
		assert.ErrorIs(t, err, ErrChecksumMismatch, "length bit %d", bit)
	}
}

func TestEncodeWifiSettings(t *testing.T) {
	t.Parallel()

	data, err := EncodeWifiSettings("myssid", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, append(append([]byte{6}, "myssid"...), append([]byte{7}, "hunter2"...)...), data)

	ssid, password, err := ParseWifiSettings(data)
	require.NoError(t, err)
	assert.Equal(t, "myssid", ssid)
	assert.Equal(t, "hunter2", password)

	open, err := EncodeWifiSettings("cafe", "")
	require.NoError(t, err)
	assert.Equal(t, []byte{4, 'c', 'a', 'f', 'e', 0}, open)

	_, err = EncodeWifiSettings("", "secret")
	require.ErrorIs(t, err, ErrEncoding)

	_, err = EncodeWifiSettings(strings.Repeat("s", 32), strings.Repeat("p", 220))
	require.ErrorIs(t, err, ErrEncoding)
}

func TestParseWifiSettings_Malformed(t *testing.T) {
	t.Parallel()

	_, _, err := ParseWifiSettings([]byte{0x05, 'a', 'b'})
	require.ErrorIs(t, err, ErrInvalidPayload)

	_, _, err = ParseWifiSettings([]byte{0x01, 'a'})
	require.ErrorIs(t, err, ErrInvalidPayload)
}

func TestParseCommand_LengthMismatch(t *testing.T) {
	t.Parallel()

	_, err := ParseCommand([]byte{0x03})
	require.ErrorIs(t, err, ErrInvalidPayload)

	_, err = ParseCommand([]byte{0x03, 0x02, 0xAA})
	require.ErrorIs(t, err, ErrInvalidPayload)
}

func TestParseResponse(t *testing.T) {
	t.Parallel()

	result, err := EncodeResult(CommandSendWifiSettings, "http://192.168.1.50")
	require.NoError(t, err)

	tests := []struct {
		name string
		raw  []byte
		want Response
	}{
		{
			name: "current state ready",
			raw:  mustHex(t, "494d50524f5601010102e2"),
			want: Response{Type: PacketCurrentState, State: StateReady},
		},
		{
			name: "error state invalid rpc",
			raw:  mustHex(t, "494d50524f5601020101e2"),
			want: Response{Type: PacketErrorState, Error: ErrorInvalidRPCPacket},
		},
		{
			name: "rpc result",
			raw:  result,
			want: Response{
				Type:    PacketRPCResult,
				Command: CommandSendWifiSettings,
				Strings: []string{"http://192.168.1.50"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			pkt, err := Decode(tt.raw)
			require.NoError(t, err)
			got, err := ParseResponse(pkt)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseResponse_UnrecognizedErrorCodeIsKept(t *testing.T) {
	t.Parallel()

	got, err := ParseResponse(Packet{Type: PacketErrorState, Payload: []byte{0x42}})
	require.NoError(t, err)
	assert.Equal(t, ErrorCode(0x42), got.Error)
	assert.Equal(t, "ErrorCode(0x42)", got.Error.String())
}

func TestParseResponse_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		pkt  Packet
	}{
		{name: "state byte out of range", pkt: Packet{Type: PacketCurrentState, Payload: []byte{0x07}}},
		{name: "state payload too long", pkt: Packet{Type: PacketCurrentState, Payload: []byte{0x02, 0x02}}},
		{name: "empty error payload", pkt: Packet{Type: PacketErrorState}},
		{name: "rpc result length mismatch", pkt: Packet{Type: PacketRPCResult, Payload: []byte{0x03, 0x05, 0x01}}},
		{name: "rpc result string overrun", pkt: Packet{Type: PacketRPCResult, Payload: []byte{0x03, 0x02, 0x09, 'a'}}},
		{name: "host command", pkt: Packet{Type: PacketRPCCommand, Payload: []byte{0x03, 0x00}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseResponse(tt.pkt)
			require.ErrorIs(t, err, ErrInvalidPayload)
		})
	}
}

func TestEncodeResult_EmptyResult(t *testing.T) {
	t.Parallel()

	raw, err := EncodeResult(CommandGetWifiNetworks)
	require.NoError(t, err)

	pkt, err := Decode(raw)
	require.NoError(t, err)
	resp, err := ParseResponse(pkt)
	require.NoError(t, err)
	assert.Equal(t, CommandGetWifiNetworks, resp.Command)
	assert.Empty(t, resp.Strings)
}

func TestCommand_Sendable(t *testing.T) {
	t.Parallel()

	assert.Equal(t, CommandGetCurrentState, CommandIdentify)
	assert.True(t, CommandIdentify.Sendable())
	assert.False(t, CommandUnknown.Sendable())
	assert.False(t, CommandBadChecksum.Sendable())
	assert.False(t, Command(0x10).Sendable())
}

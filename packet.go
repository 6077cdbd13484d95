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
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-improv/internal/frame"
)

// MaxCommandDataLength is the largest RPC command data that fits in a
// frame: the payload also carries the command and data length bytes.
const MaxCommandDataLength = frame.MaxPayloadLength - 2

// Packet is a decoded Improv frame.
type Packet struct {
	Payload []byte
	Type    PacketType
}

// RPCCommand is a parsed RPC command payload.
type RPCCommand struct {
	Data    []byte
	Command Command
}

// Response is a device packet interpreted per its type.
type Response struct {
	// Strings holds the result strings of an RPCResult.
	Strings []string
	Type    PacketType
	// State is set for CurrentState packets.
	State DeviceState
	// Error is set for ErrorState packets.
	Error ErrorCode
	// Command is the command an RPCResult answers.
	Command Command
}

func (r Response) String() string {
	switch r.Type {
	case PacketCurrentState:
		return fmt.Sprintf("CurrentState(%s)", r.State)
	case PacketErrorState:
		return fmt.Sprintf("ErrorState(%s)", r.Error)
	case PacketRPCResult:
		return fmt.Sprintf("RPCResult(%s, %q)", r.Command, r.Strings)
	default:
		return r.Type.String()
	}
}

// EncodePacket builds a frame of any packet type.
func EncodePacket(typ PacketType, payload []byte) ([]byte, error) {
	out, err := frame.Encode(byte(typ), payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncoding, err)
	}
	return out, nil
}

// Encode builds the RPC command frame for cmd carrying data.
func Encode(cmd Command, data []byte) ([]byte, error) {
	if !cmd.Sendable() {
		return nil, fmt.Errorf("%w: %s is not a sendable command", ErrEncoding, cmd)
	}
	if len(data) > MaxCommandDataLength {
		return nil, fmt.Errorf("%w: %s data is %d bytes (max %d)",
			ErrEncoding, cmd, len(data), MaxCommandDataLength)
	}

	payload := make([]byte, 0, 2+len(data))
	payload = append(payload, byte(cmd), byte(len(data)))
	payload = append(payload, data...)
	return EncodePacket(PacketRPCCommand, payload)
}

// Decode decodes the frame at the start of b. Bytes after the frame are
// ignored. A buffer holding at least a minimal frame that still ends before
// the checksum its length field points at fails with ErrChecksumMismatch.
func Decode(b []byte) (Packet, error) {
	frm, _, err := frame.Decode(b)
	if errors.Is(err, ErrIncomplete) && len(b) >= frame.MinFrameLength {
		return Packet{}, fmt.Errorf("%w: %d byte frame ends before its checksum", ErrChecksumMismatch, len(b))
	}
	if err != nil {
		return Packet{}, err
	}
	return Packet{Type: PacketType(frm.Type), Payload: frm.Payload}, nil
}

// EncodeWifiSettings builds the SendWifiSettings command data: the ssid and
// password, each prefixed by its length.
func EncodeWifiSettings(ssid, password string) ([]byte, error) {
	if ssid == "" {
		return nil, fmt.Errorf("%w: empty SSID", ErrEncoding)
	}
	if size := 2 + len(ssid) + len(password); size > MaxCommandDataLength {
		return nil, fmt.Errorf("%w: credentials are %d bytes (max %d)", ErrEncoding, size, MaxCommandDataLength)
	}

	data := make([]byte, 0, 2+len(ssid)+len(password))
	data = append(data, byte(len(ssid)))
	data = append(data, ssid...)
	data = append(data, byte(len(password)))
	data = append(data, password...)
	return data, nil
}

// ParseWifiSettings is the inverse of EncodeWifiSettings.
func ParseWifiSettings(data []byte) (ssid, password string, err error) {
	fields, err := parseStrings(data)
	if err != nil {
		return "", "", err
	}
	if len(fields) != 2 {
		return "", "", fmt.Errorf("%w: wifi settings carry %d fields, want 2", ErrInvalidPayload, len(fields))
	}
	return fields[0], fields[1], nil
}

// ParseCommand parses an RPC command payload.
func ParseCommand(payload []byte) (RPCCommand, error) {
	if len(payload) < 2 {
		return RPCCommand{}, fmt.Errorf("%w: RPC command needs 2 bytes, got %d", ErrInvalidPayload, len(payload))
	}
	if int(payload[1]) != len(payload)-2 {
		return RPCCommand{}, fmt.Errorf("%w: RPC data length %d, have %d bytes",
			ErrInvalidPayload, payload[1], len(payload)-2)
	}
	return RPCCommand{
		Command: Command(payload[0]),
		Data:    append([]byte{}, payload[2:]...),
	}, nil
}

// ParseResponse interprets a device packet.
func ParseResponse(p Packet) (Response, error) {
	resp := Response{Type: p.Type}

	switch p.Type {
	case PacketCurrentState:
		if len(p.Payload) != 1 {
			return Response{}, fmt.Errorf("%w: current state payload is %d bytes", ErrInvalidPayload, len(p.Payload))
		}
		state, ok := parseDeviceState(p.Payload[0])
		if !ok {
			return Response{}, fmt.Errorf("%w: state byte 0x%02X", ErrInvalidPayload, p.Payload[0])
		}
		resp.State = state

	case PacketErrorState:
		if len(p.Payload) != 1 {
			return Response{}, fmt.Errorf("%w: error state payload is %d bytes", ErrInvalidPayload, len(p.Payload))
		}
		resp.Error = ErrorCode(p.Payload[0])

	case PacketRPCResult:
		rpc, err := ParseCommand(p.Payload)
		if err != nil {
			return Response{}, err
		}
		strs, err := parseStrings(rpc.Data)
		if err != nil {
			return Response{}, err
		}
		resp.Command = rpc.Command
		resp.Strings = strs

	default:
		return Response{}, fmt.Errorf("%w: %s is not a device response", ErrInvalidPayload, p.Type)
	}

	return resp, nil
}

// parseStrings splits a sequence of length-prefixed strings.
func parseStrings(data []byte) ([]string, error) {
	strs := make([]string, 0, 4)
	for off := 0; off < len(data); {
		n := int(data[off])
		off++
		if off+n > len(data) {
			return nil, fmt.Errorf("%w: string of %d bytes overruns data at offset %d", ErrInvalidPayload, n, off)
		}
		strs = append(strs, string(data[off:off+n]))
		off += n
	}
	return strs, nil
}

// encodeStrings is the inverse of parseStrings.
func encodeStrings(strs ...string) ([]byte, error) {
	var out []byte
	for _, s := range strs {
		if len(s) > 0xFF {
			return nil, fmt.Errorf("%w: string of %d bytes", ErrEncoding, len(s))
		}
		out = append(out, byte(len(s)))
		out = append(out, s...)
	}
	return out, nil
}

// EncodeResult builds an RPCResult frame answering cmd, the device side of
// ParseResponse. Hosts never send these.
func EncodeResult(cmd Command, strs ...string) ([]byte, error) {
	data, err := encodeStrings(strs...)
	if err != nil {
		return nil, err
	}
	if len(data) > MaxCommandDataLength {
		return nil, fmt.Errorf("%w: result data is %d bytes (max %d)", ErrEncoding, len(data), MaxCommandDataLength)
	}
	payload := append([]byte{byte(cmd), byte(len(data))}, data...)
	return EncodePacket(PacketRPCResult, payload)
}

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
	"fmt"

	"github.com/ZaparooProject/go-improv/internal/frame"
)

// PacketType identifies the kind of an Improv serial packet.
type PacketType byte

// Packet types
const (
	PacketCurrentState PacketType = frame.TypeCurrentState
	PacketErrorState   PacketType = frame.TypeErrorState
	PacketRPCCommand   PacketType = frame.TypeRPCCommand
	PacketRPCResult    PacketType = frame.TypeRPCResult
)

func (t PacketType) String() string {
	switch t {
	case PacketCurrentState:
		return "CurrentState"
	case PacketErrorState:
		return "ErrorState"
	case PacketRPCCommand:
		return "RPCCommand"
	case PacketRPCResult:
		return "RPCResult"
	default:
		return fmt.Sprintf("PacketType(0x%02X)", byte(t))
	}
}

// Command is an RPC command code sent by the host.
type Command byte

// RPC command codes
const (
	CommandUnknown          Command = 0x00
	CommandSendWifiSettings Command = 0x01
	CommandGetCurrentState  Command = 0x02
	CommandGetDeviceInfo    Command = 0x03
	CommandGetWifiNetworks  Command = 0x04
	CommandBadChecksum      Command = 0xFF

	// CommandIdentify shares its code with CommandGetCurrentState. Serial
	// devices acknowledge it with a CurrentState packet, and devices that
	// support identification blink or beep while doing so.
	CommandIdentify = CommandGetCurrentState
)

func (c Command) String() string {
	switch c {
	case CommandUnknown:
		return "Unknown"
	case CommandSendWifiSettings:
		return "SendWifiSettings"
	case CommandGetCurrentState:
		return "GetCurrentState"
	case CommandGetDeviceInfo:
		return "GetDeviceInfo"
	case CommandGetWifiNetworks:
		return "GetWifiNetworks"
	case CommandBadChecksum:
		return "BadChecksum"
	default:
		return fmt.Sprintf("Command(0x%02X)", byte(c))
	}
}

// Sendable reports whether the host may put c on the wire. Unknown and
// BadChecksum are only ever reported, never requested.
func (c Command) Sendable() bool {
	switch c {
	case CommandSendWifiSettings, CommandGetCurrentState, CommandGetDeviceInfo, CommandGetWifiNetworks:
		return true
	default:
		return false
	}
}

// DeviceState is the provisioning state advertised by the device.
type DeviceState byte

// Device states. StateUnknown never appears on the wire; it stands in for
// the state before the device has reported one.
const (
	StateUnknown      DeviceState = 0x00
	StateReady        DeviceState = 0x02
	StateProvisioning DeviceState = 0x03
	StateProvisioned  DeviceState = 0x04
)

func (s DeviceState) String() string {
	switch s {
	case StateUnknown:
		return "Unknown"
	case StateReady:
		return "Ready"
	case StateProvisioning:
		return "Provisioning"
	case StateProvisioned:
		return "Provisioned"
	default:
		return fmt.Sprintf("DeviceState(0x%02X)", byte(s))
	}
}

// parseDeviceState maps a CurrentState payload byte to a state.
func parseDeviceState(b byte) (DeviceState, bool) {
	switch s := DeviceState(b); s {
	case StateReady, StateProvisioning, StateProvisioned:
		return s, true
	default:
		return StateUnknown, false
	}
}

// ErrorCode is the error reported in an ErrorState packet.
type ErrorCode byte

// Error codes
const (
	ErrorNone              ErrorCode = 0x00
	ErrorInvalidRPCPacket  ErrorCode = 0x01
	ErrorUnknownRPCCommand ErrorCode = 0x02
	ErrorUnableToConnect   ErrorCode = 0x03
	ErrorNotAuthorized     ErrorCode = 0x04
	ErrorUnknown           ErrorCode = 0xFF
)

func (e ErrorCode) String() string {
	switch e {
	case ErrorNone:
		return "None"
	case ErrorInvalidRPCPacket:
		return "InvalidRPCPacket"
	case ErrorUnknownRPCCommand:
		return "UnknownRPCCommand"
	case ErrorUnableToConnect:
		return "UnableToConnect"
	case ErrorNotAuthorized:
		return "NotAuthorized"
	case ErrorUnknown:
		return "Unknown"
	default:
		return fmt.Sprintf("ErrorCode(0x%02X)", byte(e))
	}
}

// Description returns a human-readable explanation of the code.
func (e ErrorCode) Description() string {
	switch e {
	case ErrorNone:
		return "no error"
	case ErrorInvalidRPCPacket:
		return "device could not parse the RPC packet"
	case ErrorUnknownRPCCommand:
		return "device does not support the command"
	case ErrorUnableToConnect:
		return "device could not connect to the network"
	case ErrorNotAuthorized:
		return "device requires authorization first"
	default:
		return "unknown error"
	}
}

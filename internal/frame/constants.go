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

package frame

// Header starts every Improv serial packet.
var Header = []byte("IMPROV")

// Version is the only protocol version this package speaks.
const Version = 0x01

// Packet type bytes
const (
	TypeCurrentState = 0x01 // Device -> host: provisioning state
	TypeErrorState   = 0x02 // Device -> host: error code
	TypeRPCCommand   = 0x03 // Host -> device: RPC command
	TypeRPCResult    = 0x04 // Device -> host: RPC result strings
)

// Field offsets within a frame
const (
	versionOffset = 6
	typeOffset    = 7
	lengthOffset  = 8
	payloadOffset = 9
)

// Frame size limits
const (
	HeaderLength     = 6   // len("IMPROV")
	MaxPayloadLength = 255 // Length field is a single byte
	MinFrameLength   = 10  // header + version + type + length + checksum
	MaxFrameLength   = MinFrameLength + MaxPayloadLength
)

// IsKnownType reports whether typ is one of the four Improv packet types.
func IsKnownType(typ byte) bool {
	return typ >= TypeCurrentState && typ <= TypeRPCResult
}

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

import "fmt"

// Status is the host's view of the device: the last advertised state plus
// an error overlay set by ErrorState packets.
type Status struct {
	State DeviceState
	Error ErrorCode
}

// HasError reports whether the error overlay is set.
func (s Status) HasError() bool {
	return s.Error != ErrorNone
}

func (s Status) String() string {
	if s.HasError() {
		return fmt.Sprintf("%s (error: %s)", s.State, s.Error)
	}
	return s.State.String()
}

// Transition applies a device response to cur. The device is
// authoritative, so a CurrentState is always recorded; unexpected reports
// whether it was not a legal step from cur and exists for diagnostics only.
//
// ErrorState with a non-None code sets the overlay and keeps the state.
// ErrorState(None) clears the overlay; devices send it when they start
// processing a command. Any CurrentState clears the overlay. RPC results do
// not change the status.
func Transition(cur Status, resp Response) (next Status, unexpected bool) {
	switch resp.Type {
	case PacketErrorState:
		next = cur
		next.Error = resp.Error
		return next, false

	case PacketCurrentState:
		return Status{State: resp.State}, !legalStep(cur, resp.State)

	default:
		return cur, false
	}
}

func legalStep(cur Status, to DeviceState) bool {
	from := cur.State
	switch {
	case from == StateUnknown, from == to:
		return true
	case from == StateReady && to == StateProvisioning,
		from == StateProvisioning && to == StateProvisioned:
		return true
	case from == StateProvisioning && to == StateReady:
		// Failed connection attempt; the device reverts before or after
		// reporting the error.
		return true
	case to == StateReady && cur.HasError():
		return true
	default:
		return false
	}
}

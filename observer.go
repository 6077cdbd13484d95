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
	"context"
	"errors"
	"time"
)

// Observer receives the outcome of each command a session runs, including
// commands that failed. Calls happen on the goroutine that issued the
// command after the session has committed or discarded its state.
type Observer interface {
	CommandFinished(port string, cmd Command, elapsed time.Duration, err error)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(port string, cmd Command, elapsed time.Duration, err error)

// CommandFinished calls f.
func (f ObserverFunc) CommandFinished(port string, cmd Command, elapsed time.Duration, err error) {
	f(port, cmd, elapsed, err)
}

// Outcome labels for Classify
const (
	OutcomeOK        = "ok"
	OutcomeTimeout   = "timeout"
	OutcomeDevice    = "device_error"
	OutcomeTransport = "transport_error"
	OutcomeProtocol  = "protocol_error"
	OutcomeCancelled = "cancelled"
	OutcomeOther     = "other"
)

// Classify maps a command error to a short, stable outcome label.
func Classify(err error) string {
	var devErr *DeviceError
	var transportErr *TransportError
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrTimeout):
		return OutcomeTimeout
	case errors.As(err, &devErr):
		return OutcomeDevice
	case errors.Is(err, context.Canceled):
		return OutcomeCancelled
	case errors.As(err, &transportErr),
		errors.Is(err, ErrTransportClosed),
		errors.Is(err, ErrTransportRead),
		errors.Is(err, ErrTransportWrite):
		return OutcomeTransport
	case errors.Is(err, ErrDesynchronized),
		errors.Is(err, ErrInvalidPayload):
		return OutcomeProtocol
	default:
		return OutcomeOther
	}
}

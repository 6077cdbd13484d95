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
	"io"
	"runtime"
	"syscall"

	"github.com/ZaparooProject/go-improv/internal/frame"
)

// Frame errors, shared with the wire codec so callers can match them with
// errors.Is without importing internal packages.
var (
	ErrIncomplete         = frame.ErrIncomplete
	ErrBadHeader          = frame.ErrBadHeader
	ErrUnsupportedVersion = frame.ErrUnsupportedVersion
	ErrUnknownType        = frame.ErrUnknownType
	ErrChecksumMismatch   = frame.ErrChecksumMismatch
	ErrTruncated          = frame.ErrTruncated
	ErrDesynchronized     = frame.ErrDesynchronized
)

// Protocol errors
var (
	ErrEncoding       = errors.New("cannot encode packet")
	ErrInvalidPayload = errors.New("invalid packet payload")
)

// Session errors
var (
	ErrTimeout            = errors.New("timed out waiting for device")
	ErrInvalidState       = errors.New("invalid state for command")
	ErrCommandInFlight    = errors.New("another command is outstanding")
	ErrCommandRejected    = errors.New("command rejected by device")
	ErrProvisioningFailed = errors.New("provisioning failed")
	ErrSessionClosed      = errors.New("session is closed")
	ErrInvalidConfig      = errors.New("invalid configuration")
)

// Transport errors
var (
	ErrTransportClosed = errors.New("transport is closed")
	ErrTransportWrite  = errors.New("transport write failed")
	ErrTransportRead   = errors.New("transport read failed")
)

// DeviceError carries an error code reported by the device in response to
// a command. It matches ErrProvisioningFailed for SendWifiSettings and
// ErrCommandRejected for every other command.
type DeviceError struct {
	Command Command
	Code    ErrorCode
}

func (e *DeviceError) Error() string {
	kind := ErrCommandRejected
	if e.Command == CommandSendWifiSettings {
		kind = ErrProvisioningFailed
	}
	return fmt.Sprintf("%v: %s error 0x%02X (%s)", kind, e.Command, byte(e.Code), e.Code.Description())
}

// Is makes DeviceError match its category sentinel.
func (e *DeviceError) Is(target error) bool {
	switch target {
	case ErrProvisioningFailed:
		return e.Command == CommandSendWifiSettings
	case ErrCommandRejected:
		return e.Command != CommandSendWifiSettings
	default:
		return false
	}
}

// ErrorType represents the category of error for retry logic
type ErrorType int

const (
	// ErrorTypeTransient indicates a potentially retryable error
	ErrorTypeTransient ErrorType = iota
	// ErrorTypePermanent indicates a non-retryable error
	ErrorTypePermanent
	// ErrorTypeTimeout indicates a timeout error
	ErrorTypeTimeout
)

// TransportError wraps transport-level errors with additional context
type TransportError struct {
	Err       error
	Op        string
	Port      string
	Type      ErrorType
	Retryable bool
}

func (e *TransportError) Error() string {
	if e.Port != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Port, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError creates a transport error, deriving retryability from
// its type.
func NewTransportError(op, port string, err error, errType ErrorType) *TransportError {
	return &TransportError{
		Op:        op,
		Port:      port,
		Err:       err,
		Type:      errType,
		Retryable: errType == ErrorTypeTransient || errType == ErrorTypeTimeout,
	}
}

// classifyIOError picks the error type for a failed read or write.
func classifyIOError(err error) ErrorType {
	if isDeviceGoneError(err) ||
		errors.Is(err, ErrTransportClosed) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) {
		return ErrorTypePermanent
	}
	return ErrorTypeTransient
}

// IsRetryable reports whether the caller may reasonably issue the same
// command again on this session. The session never retries by itself.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}

	switch {
	case errors.Is(err, ErrTimeout),
		errors.Is(err, ErrTransportRead),
		errors.Is(err, ErrTransportWrite):
		return true
	default:
		return false
	}
}

// IsFatal reports whether the session can no longer be used and the
// connection must be reopened.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te.Type == ErrorTypePermanent
	}

	if isDeviceGoneError(err) {
		return true
	}

	switch {
	case errors.Is(err, ErrDesynchronized),
		errors.Is(err, ErrTransportClosed),
		errors.Is(err, ErrSessionClosed),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrClosedPipe):
		return true
	default:
		return false
	}
}

// Windows error codes for device disconnection detection.
const (
	errAccessDenied syscall.Errno = 5   // ERROR_ACCESS_DENIED
	errGenFailure   syscall.Errno = 31  // ERROR_GEN_FAILURE
	errNoSuchDevice syscall.Errno = 433 // ERROR_NO_SUCH_DEVICE
)

// isDeviceGoneError checks for OS-level errors raised when a USB serial
// adapter is unplugged during I/O.
func isDeviceGoneError(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}

	//nolint:exhaustive // only device-gone errno values matter here
	switch errno {
	case syscall.EIO, syscall.ENXIO, syscall.ENODEV:
		return true
	}

	if runtime.GOOS == "windows" {
		//nolint:exhaustive // only device-gone errno values matter here
		switch errno {
		case errAccessDenied, errGenFailure, errNoSuchDevice:
			return true
		}
	}
	return false
}

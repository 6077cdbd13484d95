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

// Command improv provisions Wi-Fi credentials onto devices that speak the
// Improv serial protocol and inspects their state.
//
//	improv /dev/ttyUSB0 MyNetwork -
//	improv info /dev/ttyUSB0
//	improv --url ws://bridge.local/serial scan
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/ZaparooProject/go-improv"
)

// Process exit codes
const (
	exitOK         = 0
	exitFailure    = 1
	exitConnection = 2
)

// connectionError marks failures to reach the device at all, as opposed
// to errors the device or protocol reported.
type connectionError struct {
	err error
}

func (e *connectionError) Error() string {
	return e.err.Error()
}

func (e *connectionError) Unwrap() error {
	return e.err
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var connErr *connectionError
	if errors.As(err, &connErr) {
		return exitConnection
	}
	return exitFailure
}

func main() {
	// .env is optional
	_ = godotenv.Load()

	cmd := newRootCmd()
	err := cmd.Execute()
	if closeErr := improv.CloseSessionLog(); err == nil {
		err = closeErr
	}
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
	}
	os.Exit(exitCode(err))
}

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
	"io"
	"os"
	"strings"
	"time"

	"github.com/ZaparooProject/go-improv/internal/syncutil"
	"github.com/rs/zerolog"
)

var (
	logMu syncutil.RWMutex

	// debugEnabled controls console output. The session log file, when
	// open, receives every message regardless.
	debugEnabled  = false
	consoleLogger = newConsoleLogger(os.Stderr)
)

func init() {
	if os.Getenv("IMPROV_DEBUG") != "" || os.Getenv("DEBUG") != "" {
		debugEnabled = true
	}
}

func newConsoleLogger(w io.Writer) zerolog.Logger {
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly, NoColor: w != os.Stderr}
	return zerolog.New(out).With().Timestamp().Str("lib", "improv").Logger()
}

// Debugf logs a debug message. It always goes to the session log file
// (if initialized) and to the console only when debug mode is enabled.
func Debugf(format string, args ...any) {
	logDebug(fmt.Sprintf(format, args...))
}

// Debugln logs its operands separated by spaces, like fmt.Println.
func Debugln(args ...any) {
	logDebug(strings.TrimSuffix(fmt.Sprintln(args...), "\n"))
}

func logDebug(msg string) {
	logMu.Lock()
	defer logMu.Unlock()

	if sessionLogger != nil {
		sessionLogger.Debug().Msg(msg)
	}
	if debugEnabled {
		consoleLogger.Debug().Msg(msg)
	}
}

// SetDebugEnabled allows programmatic control of console debug output
func SetDebugEnabled(enabled bool) {
	logMu.Lock()
	debugEnabled = enabled
	logMu.Unlock()
}

// DebugEnabled reports whether console debug output is on.
func DebugEnabled() bool {
	logMu.RLock()
	defer logMu.RUnlock()
	return debugEnabled
}

// SetLogOutput redirects console debug output. A nil writer restores stderr.
func SetLogOutput(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	logMu.Lock()
	consoleLogger = newConsoleLogger(w)
	logMu.Unlock()
}

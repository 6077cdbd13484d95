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
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/rs/zerolog"
)

// Session log state, guarded by logMu
var (
	sessionLogFile *os.File
	sessionLogPath string
	sessionLogger  *zerolog.Logger
)

// InitSessionLog creates a session log file in the current directory and
// returns its path for display to the user.
func InitSessionLog() (string, error) {
	return InitSessionLogIn(".")
}

// InitSessionLogIn creates a session log file named
// improv_YYYYMMDD_HHMMSS.log in dir. Each line is a JSON zerolog event.
// An already open session log is closed first.
func InitSessionLogIn(dir string) (string, error) {
	if err := CloseSessionLog(); err != nil {
		return "", err
	}

	filename := filepath.Join(dir, fmt.Sprintf("improv_%s.log", time.Now().Format("20060102_150405")))
	//nolint:gosec // filename is constructed internally
	logFile, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create session log: %w", err)
	}

	logger := zerolog.New(logFile).With().Timestamp().Logger()
	writeSessionHeader(&logger)

	logMu.Lock()
	sessionLogFile = logFile
	sessionLogPath = filename
	sessionLogger = &logger
	logMu.Unlock()

	return filename, nil
}

// CloseSessionLog closes the current session log file.
func CloseSessionLog() error {
	logMu.Lock()
	defer logMu.Unlock()

	if sessionLogFile == nil {
		return nil
	}

	sessionLogger.Info().Msg("session ended")
	err := sessionLogFile.Close()
	sessionLogFile = nil
	sessionLogPath = ""
	sessionLogger = nil
	if err != nil {
		return fmt.Errorf("failed to close session log: %w", err)
	}
	return nil
}

// GetSessionLogPath returns the current session log file path.
func GetSessionLogPath() string {
	logMu.Lock()
	defer logMu.Unlock()
	return sessionLogPath
}

// writeSessionHeader records metadata about the process.
func writeSessionHeader(logger *zerolog.Logger) {
	event := logger.Info().
		Int("pid", os.Getpid()).
		Str("os", runtime.GOOS+"/"+runtime.GOARCH).
		Str("go_version", runtime.Version()).
		Strs("args", os.Args)
	if exe, err := os.Executable(); err == nil {
		event = event.Str("executable", exe)
	}
	event.Msg("session started")
}

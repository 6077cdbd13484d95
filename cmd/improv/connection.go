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

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/ZaparooProject/go-improv"
	"github.com/ZaparooProject/go-improv/transport/uart"
	"github.com/ZaparooProject/go-improv/transport/websocket"
)

// Environment variables read by the CLI. Both may also be set in .env.
const (
	envWifiPassword   = "IMPROV_PASSWORD"
	envBridgePassword = "IMPROV_WS_PASSWORD"
)

var errNoDevice = errors.New("no device given: pass a serial port, set --url, or set port in the config file")

// promptFn reads a secret without echo. Replaced in tests.
var promptFn = promptSecret

// openTransportFn opens the raw transport. Replaced in tests.
var openTransportFn = openTransport

func openTransport(ctx context.Context, opts *options) (improv.Transport, string, error) {
	if opts.url != "" {
		wsOpts := websocket.Options{
			Username:           opts.username,
			InsecureSkipVerify: opts.insecure,
		}
		if opts.username != "" {
			password, err := resolveSecret("", envBridgePassword, "Bridge password for "+opts.username+": ")
			if err != nil {
				return nil, "", err
			}
			wsOpts.Password = password
		}
		transport, err := websocket.Dial(ctx, opts.url, wsOpts)
		if err != nil {
			return nil, "", err
		}
		return transport, transport.URL(), nil
	}

	if opts.port == "" {
		return nil, "", errNoDevice
	}
	transport, err := uart.New(opts.port, opts.baud)
	if err != nil {
		return nil, "", err
	}
	return transport, opts.port, nil
}

// connect opens the device and confirms it answers GetCurrentState,
// retrying per opts. The caller owns the returned session and must close
// both it and its transport through closeFn.
func connect(ctx context.Context, opts *options, log zerolog.Logger) (*improv.Session, func(), error) {
	var (
		session   *improv.Session
		transport improv.Transport
		reached   bool
	)
	retry := opts.retryConfig(func(attempt int, err error) {
		log.Warn().Err(err).Int("attempt", attempt).Msg("retrying")
	})

	err := improv.RetryWithConfig(ctx, retry, func(ctx context.Context) error {
		t, name, err := openTransportFn(ctx, opts)
		if err != nil {
			return err
		}
		reached = true

		s, err := improv.NewSession(t, opts.sessionOptions(name)...)
		if err != nil {
			_ = t.Close()
			return err
		}

		state, err := s.RequestState(ctx)
		if err != nil {
			_ = s.Close()
			_ = t.Close()
			return err
		}
		log.Debug().Str("port", name).Stringer("state", state).Msg("device answered")
		session, transport = s, t
		return nil
	})
	if err != nil {
		if !reached {
			return nil, nil, &connectionError{err: err}
		}
		return nil, nil, err
	}

	closeFn := func() {
		_ = session.Close()
		_ = transport.Close()
	}
	return session, closeFn, nil
}

// resolveSecret returns arg unless it is empty or "-". An empty arg falls
// back to the environment variable and then to a prompt; "-" always
// prompts.
func resolveSecret(arg, envVar, prompt string) (string, error) {
	if arg != "" && arg != "-" {
		return arg, nil
	}
	if arg == "" {
		if value, ok := os.LookupEnv(envVar); ok {
			return value, nil
		}
	}
	return promptFn(prompt)
}

func promptSecret(prompt string) (string, error) {
	_, _ = fmt.Fprint(os.Stderr, prompt)
	defer func() { _, _ = fmt.Fprintln(os.Stderr) }()

	fd := int(syscall.Stdin) //nolint:unconvert // syscall.Stdin is uintptr on Windows
	if term.IsTerminal(fd) {
		secret, err := term.ReadPassword(fd)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(secret), nil
	}
	return readLine(os.Stdin)
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

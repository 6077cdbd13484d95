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
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ZaparooProject/go-improv"
	"github.com/ZaparooProject/go-improv/metrics"
)

// app carries state shared by every command.
type app struct {
	opts     *options
	registry *prometheus.Registry
	log      zerolog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{opts: defaultOptions()}

	root := &cobra.Command{
		Use:   "improv [serial-port] <ssid> [password]",
		Short: "Provision Wi-Fi on Improv serial devices",
		Long: `improv sends Wi-Fi credentials to a device running Improv serial firmware
(ESPHome, WLED and others) and prints the URL the device reports once it
has joined the network.

Connection modes:
  Serial:    improv /dev/ttyUSB0 MyNetwork [password]
  WebSocket: improv --url ws://bridge.local/serial MyNetwork [password]

When the password argument is omitted it is read from IMPROV_PASSWORD
(which may be set in a .env file), or prompted for without echo. Pass "-"
to always prompt. Use "" for open networks.

Exit codes: 0 success, 1 device or protocol error, 2 connection error.`,
		Args:          cobra.RangeArgs(1, 3),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		RunE: a.runProvision,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.opts.configPath, "config", "c", "", "TOML configuration file")
	flags.StringVarP(&a.opts.port, "port", "p", "", "Serial port (alternative to the positional argument)")
	flags.IntVarP(&a.opts.baud, "baud", "b", a.opts.baud, "Baud rate (serial only)")
	flags.StringVarP(&a.opts.url, "url", "u", "", "WebSocket bridge URL (ws:// or wss://)")
	flags.StringVar(&a.opts.username, "user", "", "Username for bridge HTTP Basic auth; password from "+envBridgePassword)
	flags.BoolVar(&a.opts.insecure, "insecure", false, "Skip TLS certificate verification (wss:// only)")
	flags.DurationVarP(&a.opts.timeout, "timeout", "t", a.opts.timeout, "Timeout for each command")
	flags.DurationVar(&a.opts.provisionTimeout, "provision-timeout", a.opts.provisionTimeout,
		"Time allowed for the device to join the network")
	flags.DurationVar(&a.opts.scanTimeout, "scan-timeout", a.opts.scanTimeout, "Time allowed for a network scan")
	flags.DurationVar(&a.opts.identifyWindow, "identify-window", a.opts.identifyWindow,
		"How long identify waits for the device to object")
	flags.IntVarP(&a.opts.retries, "retries", "r", 0, "Retries when the device does not answer")
	flags.BoolVar(&a.opts.noNewline, "no-newline", false, "Do not send a newline after each command")
	flags.BoolVarP(&a.opts.debug, "debug", "d", false, "Print protocol traffic")
	flags.BoolVar(&a.opts.logFile, "log-file", false, "Write a JSON session log")
	flags.StringVar(&a.opts.logDir, "log-dir", a.opts.logDir, "Directory for the session log")
	flags.StringVar(&a.opts.metricsFile, "metrics-file", "",
		"Write Prometheus metrics to this file (node_exporter textfile format)")

	root.AddCommand(
		a.newStateCmd(),
		a.newInfoCmd(),
		a.newIdentifyCmd(),
		a.newScanCmd(),
		a.newPortsCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	if a.opts.configPath != "" {
		if err := a.opts.applyFile(a.opts.configPath, cmd.Flags().Changed); err != nil {
			return err
		}
	}

	level := zerolog.InfoLevel
	if a.opts.debug {
		level = zerolog.DebugLevel
		improv.SetDebugEnabled(true)
	}
	a.log = newLogger(cmd.ErrOrStderr(), level)

	if a.opts.logFile {
		path, err := improv.InitSessionLogIn(a.opts.logDir)
		if err != nil {
			return err
		}
		a.log.Info().Str("path", path).Msg("session log")
	}

	if a.opts.metricsFile != "" {
		a.registry = prometheus.NewRegistry()
		recorder, err := metrics.NewRecorder(a.registry)
		if err != nil {
			return err
		}
		a.opts.observer = recorder
	}
	return nil
}

// writeMetrics saves the metrics file when one was requested.
func (a *app) writeMetrics() {
	if a.registry == nil {
		return
	}
	if err := metrics.WriteTextfile(a.registry, a.opts.metricsFile); err != nil {
		a.log.Warn().Err(err).Msg("metrics not written")
	}
}

func newLogger(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}).
		Level(level).
		With().Timestamp().
		Logger()
}

// splitProvisionArgs separates [port] ssid [password]. Three arguments
// always start with the port. Otherwise the first argument is the port only
// when no URL or port was configured.
func splitProvisionArgs(opts *options, args []string) (port string, rest []string, err error) {
	hasDevice := opts.url != "" || opts.port != ""
	switch {
	case len(args) == 3:
		return args[0], args[1:], nil
	case hasDevice && len(args) >= 1:
		return opts.port, args, nil
	case !hasDevice && len(args) == 2:
		return args[0], args[1:], nil
	case !hasDevice:
		return "", nil, errNoDevice
	default:
		return "", nil, fmt.Errorf("expected [serial-port] <ssid> [password], got %d arguments", len(args))
	}
}

func (a *app) runProvision(cmd *cobra.Command, args []string) error {
	port, args, err := splitProvisionArgs(a.opts, args)
	if err != nil {
		return err
	}
	a.opts.port = port
	ssid := args[0]

	var passwordArg string
	if len(args) > 1 {
		passwordArg = args[1]
		if passwordArg == "" {
			passwordArg = openNetwork
		}
	}
	password, err := resolveSecret(passwordArg, envWifiPassword, "Wi-Fi password for "+ssid+": ")
	if err != nil {
		return err
	}
	if password == openNetwork {
		password = ""
	}

	return a.withSession(cmd, func(ctx context.Context, session *improv.Session) error {
		a.log.Info().Str("ssid", ssid).Msg("sending credentials")
		result, err := session.Provision(ctx, ssid, password)
		if err != nil {
			return err
		}
		printProvisioned(cmd.OutOrStdout(), ssid, result)
		return nil
	})
}

// openNetwork stands in for an explicitly empty password so that it is
// not mistaken for an omitted one.
const openNetwork = "\x00open"

// withSession connects and runs fn, cancelling on interrupt.
func (a *app) withSession(cmd *cobra.Command, fn func(context.Context, *improv.Session) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	defer a.writeMetrics()

	session, closeFn, err := connect(ctx, a.opts, a.log)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := fn(ctx, session); err != nil {
		return fmt.Errorf("%s: %w", cmd.Name(), err)
	}
	if n := session.UnexpectedTransitions(); n > 0 {
		a.log.Warn().Int("count", n).Msg("device made unexpected state transitions")
	}
	return nil
}

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
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ZaparooProject/go-improv"
	"github.com/ZaparooProject/go-improv/detection"
	_ "github.com/ZaparooProject/go-improv/detection/uart"
	"github.com/ZaparooProject/go-improv/transport/uart"
)

// devicePortArg lets query commands take the serial port positionally.
func (a *app) devicePortArg(args []string) {
	if len(args) == 1 {
		a.opts.port = args[0]
	}
}

func (a *app) newStateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state [serial-port]",
		Short: "Show the device provisioning state",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.devicePortArg(args)
			return a.withSession(cmd, func(_ context.Context, session *improv.Session) error {
				// connect already asked for the state
				printStatus(cmd.OutOrStdout(), session.Status())
				if urls := session.Result(); session.Status().State == improv.StateProvisioned && len(urls) > 0 {
					printField(cmd.OutOrStdout(), "URL", urlStyle.Render(urls[0]))
				}
				return nil
			})
		},
	}
}

func (a *app) newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info [serial-port]",
		Short: "Show firmware and hardware information",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.devicePortArg(args)
			return a.withSession(cmd, func(ctx context.Context, session *improv.Session) error {
				info, err := session.QueryInfo(ctx)
				if err != nil {
					return err
				}
				printDeviceInfo(cmd.OutOrStdout(), info)
				printStatus(cmd.OutOrStdout(), session.Status())
				return nil
			})
		},
	}
}

func (a *app) newIdentifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "identify [serial-port]",
		Short: "Ask the device to identify itself (blink, beep)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.devicePortArg(args)
			return a.withSession(cmd, func(ctx context.Context, session *improv.Session) error {
				if err := session.Identify(ctx); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Identify sent"))
				return nil
			})
		},
	}
}

func (a *app) newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan [serial-port]",
		Short: "List Wi-Fi networks visible to the device",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.devicePortArg(args)
			return a.withSession(cmd, func(ctx context.Context, session *improv.Session) error {
				networks, err := session.ScanNetworks(ctx)
				if err != nil {
					return err
				}
				printNetworks(cmd.OutOrStdout(), networks)
				return nil
			})
		},
	}
}

// listPortsFn and detectFn are replaced in tests.
var (
	listPortsFn = uart.ListPorts
	detectFn    = detection.DetectAll
)

func (a *app) newPortsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ports",
		Short: "List serial ports, optionally probing for Improv devices",
		Long: `ports lists serial ports and marks USB bridges commonly found on ESP boards.

With --detect the ports are checked for Improv devices:
  passive  report known bridges without opening them
  safe     probe known bridges with GetCurrentState
  full     probe every port and read device info`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("detect") {
				ports, err := listPortsFn()
				if err != nil {
					return &connectionError{err: err}
				}
				printPorts(cmd.OutOrStdout(), ports)
				return nil
			}
			return a.runDetect(cmd)
		},
	}
	cmd.Flags().StringVar(&a.opts.detectMode, "detect", a.opts.detectMode, "Detection mode: passive, safe or full")
	return cmd
}

func (a *app) runDetect(cmd *cobra.Command) error {
	mode, err := detection.ParseMode(a.opts.detectMode)
	if err != nil {
		return err
	}

	opts := detection.DefaultOptions()
	opts.Mode = mode
	opts.BaudRate = a.opts.baud
	opts.ProbeTimeout = a.opts.timeout
	opts.EnableCache = false
	opts.Transports = []string{string(improv.TransportUART)}

	devices, err := detectFn(cmd.Context(), &opts)
	if errors.Is(err, detection.ErrNoDevicesFound) {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("No Improv devices found"))
		return nil
	}
	if err != nil {
		return err
	}
	printDetected(cmd.OutOrStdout(), devices)
	return nil
}

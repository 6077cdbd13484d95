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
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ZaparooProject/go-improv"
	"github.com/ZaparooProject/go-improv/detection"
	"github.com/ZaparooProject/go-improv/transport/uart"
)

var (
	colorGreen  = lipgloss.Color("40")
	colorYellow = lipgloss.Color("220")
	colorRed    = lipgloss.Color("196")
	colorCyan   = lipgloss.Color("39")
	colorGray   = lipgloss.Color("244")
	colorDim    = lipgloss.Color("240")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Width(12).
			Foreground(colorGray)

	successStyle = lipgloss.NewStyle().
			Foreground(colorGreen).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(colorYellow)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)

	urlStyle = lipgloss.NewStyle().
			Foreground(colorCyan).
			Underline(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorDim)
)

func printField(w io.Writer, label, value string) {
	_, _ = fmt.Fprintln(w, labelStyle.Render(label)+value)
}

func stateStyle(state improv.DeviceState) lipgloss.Style {
	switch state {
	case improv.StateProvisioned:
		return successStyle
	case improv.StateProvisioning:
		return warnStyle
	case improv.StateReady:
		return lipgloss.NewStyle()
	default:
		return dimStyle
	}
}

func printStatus(w io.Writer, status improv.Status) {
	printField(w, "State", stateStyle(status.State).Render(status.State.String()))
	if status.HasError() {
		printField(w, "Error", errorStyle.Render(status.Error.Description()))
	}
}

func printDeviceInfo(w io.Writer, info *improv.DeviceInfo) {
	_, _ = fmt.Fprintln(w, titleStyle.Render(info.DeviceName))
	printField(w, "Firmware", info.FirmwareName+" "+info.FirmwareVersion)
	printField(w, "Hardware", info.Hardware)
	if extra := info.Raw[min(4, len(info.Raw)):]; len(extra) > 0 {
		printField(w, "Extra", strings.Join(extra, ", "))
	}
}

func printProvisioned(w io.Writer, ssid string, result *improv.ProvisionResult) {
	_, _ = fmt.Fprintln(w, successStyle.Render("Provisioned")+" "+dimStyle.Render("on "+ssid))
	if url := result.RedirectURL(); url != "" {
		printField(w, "URL", urlStyle.Render(url))
	}
}

// signalBars renders RSSI in dBm as a four step bar.
func signalBars(rssi int) string {
	bars := 0
	switch {
	case rssi >= -55:
		bars = 4
	case rssi >= -67:
		bars = 3
	case rssi >= -78:
		bars = 2
	case rssi >= -89:
		bars = 1
	}
	return strings.Repeat("▮", bars) + dimStyle.Render(strings.Repeat("▯", 4-bars))
}

func printNetworks(w io.Writer, networks []improv.Network) {
	if len(networks) == 0 {
		_, _ = fmt.Fprintln(w, dimStyle.Render("No networks found"))
		return
	}
	ssidStyle := lipgloss.NewStyle().Width(maxSSIDWidth(networks) + 2)
	for _, n := range networks {
		lock := " "
		if n.AuthRequired {
			lock = "*"
		}
		_, _ = fmt.Fprintf(w, "%s%s %s %s\n",
			ssidStyle.Render(n.SSID),
			signalBars(n.RSSI),
			dimStyle.Render(fmt.Sprintf("%8s", formatRSSI(n.RSSI))),
			lock)
	}
}

func maxSSIDWidth(networks []improv.Network) int {
	width := 4
	for _, n := range networks {
		width = max(width, lipgloss.Width(n.SSID))
	}
	return width
}

func printPorts(w io.Writer, ports []uart.PortInfo) {
	if len(ports) == 0 {
		_, _ = fmt.Fprintln(w, dimStyle.Render("No serial ports found"))
		return
	}
	for _, p := range ports {
		desc := p.Product
		if bridge, ok := detection.KnownBridge(p.VIDPID); ok {
			desc = strings.TrimSpace(desc + " " + successStyle.Render("["+bridge+"]"))
		}
		printField(w, p.Name, strings.TrimSpace(dimStyle.Render(p.VIDPID)+" "+desc))
	}
}

func printDetected(w io.Writer, devices []detection.DeviceInfo) {
	for _, d := range devices {
		name := d.Name
		if name == "" {
			name = d.Path
		}
		_, _ = fmt.Fprintln(w, titleStyle.Render(name)+" "+dimStyle.Render(d.String()))
		for _, key := range []string{
			detection.MetaState, detection.MetaFirmware, detection.MetaVersion, detection.MetaHardware,
		} {
			if v := d.Metadata[key]; v != "" {
				printField(w, "  "+key, v)
			}
		}
	}
}

func formatRSSI(rssi int) string {
	return strconv.Itoa(rssi) + " dBm"
}

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

//nolint:paralleltest // Tests mutate listPortsFn and probeDeviceFn
package uart

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZaparooProject/go-improv"
	"github.com/ZaparooProject/go-improv/detection"
	virt "github.com/ZaparooProject/go-improv/internal/testing"
	"github.com/ZaparooProject/go-improv/transport/uart"
)

func stubPorts(t *testing.T, ports []uart.PortInfo, probe func(string, detection.Mode) bool) *[]string {
	t.Helper()
	origList, origProbe := listPortsFn, probeDeviceFn
	t.Cleanup(func() {
		listPortsFn, probeDeviceFn = origList, origProbe
	})

	var probed []string
	listPortsFn = func() ([]uart.PortInfo, error) { return ports, nil }
	probeDeviceFn = func(_ context.Context, path string, _ int, mode detection.Mode) (map[string]string, bool) {
		probed = append(probed, path)
		if !probe(path, mode) {
			return nil, false
		}
		return map[string]string{
			detection.MetaState:      "ready",
			detection.MetaDeviceName: "Kitchen Light",
		}, true
	}
	return &probed
}

var testPorts = []uart.PortInfo{
	{Name: "/dev/ttyUSB0", VIDPID: "10C4:EA60", Product: "CP2102 USB to UART", IsUSB: true},
	{Name: "/dev/ttyACM0", VIDPID: "303A:1001", IsUSB: true},
	{Name: "/dev/ttyUSB1", VIDPID: "AAAA:BBBB", IsUSB: true},
	{Name: "/dev/ttyACM1", VIDPID: "2341:0043", IsUSB: true},
	{Name: "/dev/ttyS0"},
}

func TestDetect_PassiveReportsKnownBridges(t *testing.T) {
	probed := stubPorts(t, testPorts, func(string, detection.Mode) bool { return true })

	opts := detection.DefaultOptions()
	opts.Mode = detection.Passive

	devices, err := New().Detect(context.Background(), &opts)
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Empty(t, *probed)

	assert.Equal(t, "/dev/ttyUSB0", devices[0].Path)
	assert.Equal(t, "CP2102 USB to UART", devices[0].Name)
	assert.Equal(t, detection.Medium, devices[0].Confidence)
	assert.Equal(t, "10C4:EA60", devices[0].Metadata[detection.MetaVIDPID])

	assert.Equal(t, "/dev/ttyACM0", devices[1].Path)
	assert.Equal(t, "Espressif USB JTAG/serial", devices[1].Name)
}

func TestDetect_SafeProbesKnownBridgesOnly(t *testing.T) {
	probed := stubPorts(t, testPorts, func(path string, _ detection.Mode) bool {
		return path == "/dev/ttyACM0"
	})

	opts := detection.DefaultOptions()
	devices, err := New().Detect(context.Background(), &opts)
	require.NoError(t, err)

	assert.Equal(t, []string{"/dev/ttyUSB0", "/dev/ttyACM0"}, *probed)
	require.Len(t, devices, 1)
	assert.Equal(t, "/dev/ttyACM0", devices[0].Path)
	assert.Equal(t, detection.High, devices[0].Confidence)
	assert.Equal(t, "Kitchen Light", devices[0].Name)
	assert.Equal(t, "ready", devices[0].Metadata[detection.MetaState])
}

func TestDetect_FullProbesEverythingNotBlocked(t *testing.T) {
	probed := stubPorts(t, testPorts, func(string, detection.Mode) bool { return false })

	opts := detection.DefaultOptions()
	opts.Mode = detection.Full
	opts.IgnorePaths = []string{"/dev/ttyS0"}

	_, err := New().Detect(context.Background(), &opts)
	require.ErrorIs(t, err, detection.ErrNoDevicesFound)
	assert.Equal(t, []string{"/dev/ttyUSB0", "/dev/ttyACM0", "/dev/ttyUSB1"}, *probed)
}

func TestDetect_ListError(t *testing.T) {
	orig := listPortsFn
	defer func() { listPortsFn = orig }()
	listPortsFn = func() ([]uart.PortInfo, error) { return nil, errors.New("no permission") }

	opts := detection.DefaultOptions()
	_, err := New().Detect(context.Background(), &opts)
	require.ErrorContains(t, err, "no permission")
}

func TestProbeSession(t *testing.T) {
	dev := virt.NewVirtualDevice()
	session, err := improv.NewSession(dev,
		improv.WithTimeout(500*time.Millisecond),
		improv.WithPollInterval(time.Millisecond),
	)
	require.NoError(t, err)

	meta, ok := probeSession(context.Background(), session, detection.Safe)
	require.True(t, ok)
	assert.Equal(t, map[string]string{detection.MetaState: "Ready"}, meta)

	meta, ok = probeSession(context.Background(), session, detection.Full)
	require.True(t, ok)
	assert.Equal(t, "ESPHome", meta[detection.MetaFirmware])
	assert.Equal(t, "2024.6.0", meta[detection.MetaVersion])
	assert.Equal(t, "ESP32-C3", meta[detection.MetaHardware])
	assert.Equal(t, "Kitchen Light", meta[detection.MetaDeviceName])
}

func TestProbeSession_SilentPort(t *testing.T) {
	dev := virt.NewVirtualDevice()
	dev.SetSilent(true)
	session, err := improv.NewSession(dev,
		improv.WithTimeout(30*time.Millisecond),
		improv.WithPollInterval(time.Millisecond),
	)
	require.NoError(t, err)

	_, ok := probeSession(context.Background(), session, detection.Full)
	assert.False(t, ok)
}

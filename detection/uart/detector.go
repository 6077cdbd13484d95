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

// Package uart registers a detector for Improv devices on serial ports.
package uart

import (
	"context"
	"fmt"

	"github.com/ZaparooProject/go-improv"
	"github.com/ZaparooProject/go-improv/detection"
	"github.com/ZaparooProject/go-improv/transport/uart"
)

// Replaced in tests.
var (
	listPortsFn   = uart.ListPorts
	probeDeviceFn = probeDevice
)

type detector struct{}

// New creates a new UART detector
func New() detection.Detector {
	return &detector{}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return string(improv.TransportUART)
}

// Detect lists serial ports and keeps those that pass the blocklist,
// ignore list and mode rules.
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	ports, err := listPortsFn()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	var devices []detection.DeviceInfo
	for i := range ports {
		if ctx.Err() != nil {
			break
		}
		port := &ports[i]
		if port.VIDPID != "" && detection.IsBlocked(port.VIDPID, opts.Blocklist) {
			continue
		}
		if detection.IsPathIgnored(port.Name, opts.IgnorePaths) {
			continue
		}
		if device, ok := d.processPort(ctx, port, opts); ok {
			devices = append(devices, device)
		}
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

// processPort applies the mode rules to one port:
//
//	Passive: known bridges are reported at Medium confidence, nothing is sent.
//	Safe:    known bridges are probed; only devices that answer are kept.
//	Full:    every port is probed; only devices that answer are kept.
func (*detector) processPort(
	ctx context.Context,
	port *uart.PortInfo,
	opts *detection.Options,
) (detection.DeviceInfo, bool) {
	bridge, known := detection.KnownBridge(port.VIDPID)

	device := detection.DeviceInfo{
		Transport:  string(improv.TransportUART),
		Path:       port.Name,
		Name:       port.Product,
		Confidence: detection.Low,
		Metadata:   make(map[string]string),
	}
	if device.Name == "" {
		device.Name = bridge
	}
	if known {
		device.Confidence = detection.Medium
	}
	addPortMetadata(&device, port)

	switch opts.Mode {
	case detection.Passive:
		return device, known
	case detection.Safe:
		if !known {
			return detection.DeviceInfo{}, false
		}
	case detection.Full:
	default:
		return detection.DeviceInfo{}, false
	}

	probeCtx := ctx
	if opts.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		probeCtx, cancel = context.WithTimeout(ctx, opts.ProbeTimeout)
		defer cancel()
	}

	reported, ok := probeDeviceFn(probeCtx, port.Name, opts.BaudRate, opts.Mode)
	if !ok {
		return detection.DeviceInfo{}, false
	}
	for k, v := range reported {
		device.Metadata[k] = v
	}
	device.Confidence = detection.High
	if name := reported[detection.MetaDeviceName]; name != "" {
		device.Name = name
	}
	return device, true
}

func addPortMetadata(device *detection.DeviceInfo, port *uart.PortInfo) {
	if port.VIDPID != "" {
		device.Metadata[detection.MetaVIDPID] = port.VIDPID
	}
	if port.Product != "" {
		device.Metadata[detection.MetaProduct] = port.Product
	}
	if port.SerialNumber != "" {
		device.Metadata[detection.MetaSerial] = port.SerialNumber
	}
}

// probeDevice opens the port and asks for the current state. Full mode
// also requests device info. A single attempt is made per port; ports
// that are not Improv devices get as little traffic as possible.
func probeDevice(ctx context.Context, path string, baud int, mode detection.Mode) (map[string]string, bool) {
	transport, err := uart.New(path, baud)
	if err != nil {
		improv.Debugf("probe %s: %v", path, err)
		return nil, false
	}
	defer func() { _ = transport.Close() }()

	session, err := improv.NewSession(transport, improv.WithPort(path))
	if err != nil {
		return nil, false
	}
	defer func() { _ = session.Close() }()

	return probeSession(ctx, session, mode)
}

func probeSession(ctx context.Context, session *improv.Session, mode detection.Mode) (map[string]string, bool) {
	state, err := session.RequestState(ctx)
	if err != nil {
		improv.Debugf("probe: no Improv answer: %v", err)
		return nil, false
	}
	meta := map[string]string{detection.MetaState: state.String()}

	if mode != detection.Full {
		return meta, true
	}
	info, err := session.QueryInfo(ctx)
	if err != nil {
		// the device spoke Improv, so keep it
		improv.Debugf("probe: device info failed: %v", err)
		return meta, true
	}
	meta[detection.MetaFirmware] = info.FirmwareName
	meta[detection.MetaVersion] = info.FirmwareVersion
	meta[detection.MetaHardware] = info.Hardware
	meta[detection.MetaDeviceName] = info.DeviceName
	return meta, true
}

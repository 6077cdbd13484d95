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

package detection

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPathIgnored(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		devicePath  string
		ignorePaths []string
		expected    bool
	}{
		{"empty device path", "", []string{"/dev/ttyUSB0"}, false},
		{"no ignore paths", "/dev/ttyUSB0", nil, false},
		{"exact unix path", "/dev/ttyUSB0", []string{"/dev/ttyUSB0"}, true},
		{"different unix path", "/dev/ttyUSB1", []string{"/dev/ttyUSB0"}, false},
		{"exact windows port", "COM3", []string{"COM3"}, true},
		{"windows port case", "com3", []string{"COM3"}, true},
		{"cleaned path", "/dev/../dev/ttyACM0", []string{"/dev/ttyACM0"}, true},
		{"macOS callout device", "/dev/cu.usbserial-0001", []string{"/dev/cu.usbserial-0001"}, true},
		{"one of many", "/dev/ttyUSB2", []string{"COM1", "", "/dev/ttyUSB2"}, true},
		{"blank entries only", "/dev/ttyUSB0", []string{"", ""}, false},
		{"prefix is not a match", "/dev/ttyUSB10", []string{"/dev/ttyUSB1"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, IsPathIgnored(tt.devicePath, tt.ignorePaths))
		})
	}
}

func TestFilterDevices(t *testing.T) {
	t.Parallel()

	devices := []DeviceInfo{
		{Path: "/dev/ttyUSB0", Metadata: map[string]string{MetaVIDPID: "10C4:EA60"}},
		{Path: "/dev/ttyUSB1", Metadata: map[string]string{MetaVIDPID: "2341:0043"}},
		{Path: "/dev/ttyACM0"},
	}

	opts := &Options{
		IgnorePaths: []string{"/dev/ttyACM0"},
		Blocklist:   DefaultBlocklist(),
	}
	filtered := filterDevices(devices, opts)
	if assert.Len(t, filtered, 1) {
		assert.Equal(t, "/dev/ttyUSB0", filtered[0].Path)
	}

	assert.Len(t, filterDevices(devices, &Options{}), 3)
}

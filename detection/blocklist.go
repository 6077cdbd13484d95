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
	"path/filepath"
	"strings"
)

// KnownBridges maps USB VID:PID pairs of serial bridges found on ESP32 and
// ESP8266 boards to a short description. A "*" PID matches any product of
// that vendor.
var KnownBridges = map[string]string{
	"10C4:EA60": "Silicon Labs CP210x",
	"1A86:7523": "QinHeng CH340",
	"1A86:55D4": "QinHeng CH9102",
	"0403:6001": "FTDI FT232R",
	"0403:6015": "FTDI FT231X",
	"303A:*":    "Espressif USB JTAG/serial",
}

// DefaultBlocklist returns USB devices that must never be probed.
// Format: VID:PID in hexadecimal (case-insensitive).
func DefaultBlocklist() []string {
	return []string{
		"2341:0043", // Arduino Uno R3, resets on open
		"067B:2303", // Prolific PL2303, common on GPS and UPS cables
	}
}

// IsBlocked checks if a USB device is in the blocklist.
func IsBlocked(vidpid string, blocklist []string) bool {
	vidpid = normalizeVIDPID(vidpid)
	for _, blocked := range blocklist {
		if vidpid == normalizeVIDPID(blocked) {
			return true
		}
	}
	return false
}

// KnownBridge returns the description of a USB serial bridge commonly used
// on Improv capable boards.
func KnownBridge(vidpid string) (string, bool) {
	vidpid = normalizeVIDPID(vidpid)
	if vidpid == "" {
		return "", false
	}
	if name, ok := KnownBridges[vidpid]; ok {
		return name, true
	}
	vid, _, _ := strings.Cut(vidpid, ":")
	name, ok := KnownBridges[vid+":*"]
	return name, ok
}

func normalizeVIDPID(vidpid string) string {
	return strings.ToUpper(strings.TrimSpace(vidpid))
}

// ParseVIDPID extracts VID:PID from the descriptor formats reported by the
// different platforms, for example "VID:1234 PID:5678",
// "USB VID:PID=303A:1001" or "vendor=1234 product=5678".
func ParseVIDPID(descriptor string) string {
	descriptor = strings.ToUpper(descriptor)

	if idx := strings.Index(descriptor, "VID:PID="); idx >= 0 {
		rest := descriptor[idx+8:]
		vid := extractHex(rest)
		if pidIdx := strings.Index(rest, ":"); pidIdx >= 0 && vid != "" {
			if pid := extractHex(rest[pidIdx+1:]); pid != "" {
				return vid + ":" + pid
			}
		}
	}

	var vid, pid string
	if idx := strings.Index(descriptor, "VID:"); idx >= 0 {
		vid = extractHex(descriptor[idx+4:])
	} else if idx := strings.Index(descriptor, "VENDOR="); idx >= 0 {
		vid = extractHex(descriptor[idx+7:])
	} else if idx := strings.Index(descriptor, "VID="); idx >= 0 {
		vid = extractHex(descriptor[idx+4:])
	}

	if idx := strings.Index(descriptor, "PID:"); idx >= 0 {
		pid = extractHex(descriptor[idx+4:])
	} else if idx := strings.Index(descriptor, "PRODUCT="); idx >= 0 {
		pid = extractHex(descriptor[idx+8:])
	} else if idx := strings.Index(descriptor, "PID="); idx >= 0 {
		pid = extractHex(descriptor[idx+4:])
	}

	if vid != "" && pid != "" {
		return vid + ":" + pid
	}

	if strings.Count(descriptor, ":") == 1 {
		parts := strings.Split(descriptor, ":")
		if isHex(parts[0]) && isHex(parts[1]) {
			return descriptor
		}
	}

	return ""
}

// extractHex returns the first run of hex digits in s.
func extractHex(s string) string {
	var result strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || (r >= 'A' && r <= 'F') {
			_, _ = result.WriteRune(r)
		} else if result.Len() > 0 {
			break
		}
	}
	return result.String()
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'A' || r > 'F') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

// IsPathIgnored checks if a device path should be ignored. Paths are
// compared both verbatim and cleaned and lower-cased, so "COM3" matches
// "com3".
func IsPathIgnored(devicePath string, ignorePaths []string) bool {
	if devicePath == "" || len(ignorePaths) == 0 {
		return false
	}

	normalizedDevice := normalizedPath(devicePath)
	for _, ignorePath := range ignorePaths {
		if ignorePath == "" {
			continue
		}
		if devicePath == ignorePath || normalizedDevice == normalizedPath(ignorePath) {
			return true
		}
	}
	return false
}

func normalizedPath(path string) string {
	return strings.ToLower(filepath.Clean(path))
}

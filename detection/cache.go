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
	"slices"
	"time"

	"github.com/ZaparooProject/go-improv/internal/syncutil"
)

type cacheEntry struct {
	stored  time.Time
	devices []DeviceInfo
}

// resultCache holds the last detection result per transport.
type resultCache struct {
	entries map[string]cacheEntry
	mu      syncutil.RWMutex
}

var cache = &resultCache{
	entries: make(map[string]cacheEntry),
}

// getCached returns a copy of the devices cached for transport if they are
// younger than ttl.
func getCached(transport string, ttl time.Duration) ([]DeviceInfo, bool) {
	cache.mu.RLock()
	defer cache.mu.RUnlock()

	entry, exists := cache.entries[transport]
	if !exists || time.Since(entry.stored) > ttl {
		return nil, false
	}
	return cloneDevices(entry.devices), true
}

func setCached(transport string, devices []DeviceInfo) {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	cache.entries[transport] = cacheEntry{
		devices: cloneDevices(devices),
		stored:  time.Now(),
	}
}

func clearCache() {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	clear(cache.entries)
}

func clearCacheForTransport(transport string) {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	delete(cache.entries, transport)
}

// cloneDevices copies the slice and each metadata map so callers can edit
// results without touching the cache.
func cloneDevices(devices []DeviceInfo) []DeviceInfo {
	out := slices.Clone(devices)
	for i := range out {
		if out[i].Metadata == nil {
			continue
		}
		meta := make(map[string]string, len(out[i].Metadata))
		for k, v := range out[i].Metadata {
			meta[k] = v
		}
		out[i].Metadata = meta
	}
	return out
}

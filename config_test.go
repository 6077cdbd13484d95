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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.Equal(t, DefaultProvisionTimeout, cfg.ProvisionTimeout)
	assert.Equal(t, DefaultScanTimeout, cfg.ScanTimeout)
	assert.Equal(t, DefaultIdentifyWindow, cfg.IdentifyWindow)
	assert.Equal(t, DefaultResultGrace, cfg.ResultGrace)
	assert.Equal(t, 32, cfg.MaxResyncAttempts)
	assert.True(t, cfg.TrailingNewline)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mutate func(*Config)
		name   string
	}{
		{name: "zero timeout", mutate: func(c *Config) { c.Timeout = 0 }},
		{name: "negative provision timeout", mutate: func(c *Config) { c.ProvisionTimeout = -time.Second }},
		{name: "zero scan timeout", mutate: func(c *Config) { c.ScanTimeout = 0 }},
		{name: "zero identify window", mutate: func(c *Config) { c.IdentifyWindow = 0 }},
		{name: "zero poll interval", mutate: func(c *Config) { c.PollInterval = 0 }},
		{name: "grace outlasts provisioning", mutate: func(c *Config) { c.ResultGrace = c.ProvisionTimeout }},
		{name: "no drain reads", mutate: func(c *Config) { c.MaxDrainReads = 0 }},
		{name: "no resync budget", mutate: func(c *Config) { c.MaxResyncAttempts = 0 }},
		{name: "no trace", mutate: func(c *Config) { c.TraceSize = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tt.mutate(cfg)
			require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestOptions(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	for _, opt := range []Option{
		WithPort("/dev/ttyUSB0"),
		WithTimeout(time.Second),
		WithProvisionTimeout(time.Minute),
		WithScanTimeout(5 * time.Second),
		WithIdentifyWindow(2 * time.Second),
		WithResultGrace(time.Second),
		WithPollInterval(5 * time.Millisecond),
		WithTrailingNewline(false),
	} {
		require.NoError(t, opt(cfg))
	}

	assert.Equal(t, "/dev/ttyUSB0", cfg.Port)
	assert.Equal(t, time.Second, cfg.Timeout)
	assert.Equal(t, time.Minute, cfg.ProvisionTimeout)
	assert.Equal(t, 5*time.Second, cfg.ScanTimeout)
	assert.Equal(t, 2*time.Second, cfg.IdentifyWindow)
	assert.Equal(t, time.Second, cfg.ResultGrace)
	assert.Equal(t, 5*time.Millisecond, cfg.PollInterval)
	assert.False(t, cfg.TrailingNewline)
}

func TestWithConfig(t *testing.T) {
	t.Parallel()

	src := DefaultConfig()
	src.Port = "COM3"
	src.TraceSize = 4

	cfg := DefaultConfig()
	require.NoError(t, WithConfig(src)(cfg))
	assert.Equal(t, *src, *cfg)

	src.Port = "COM4"
	assert.Equal(t, "COM3", cfg.Port, "WithConfig copies")

	require.ErrorIs(t, WithConfig(nil)(cfg), ErrInvalidConfig)
}

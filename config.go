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
	"fmt"
	"time"

	"github.com/ZaparooProject/go-improv/internal/frame"
)

// Default session timing
const (
	DefaultTimeout          = 3 * time.Second
	DefaultProvisionTimeout = 30 * time.Second
	DefaultScanTimeout      = 10 * time.Second
	DefaultIdentifyWindow   = time.Second
	DefaultResultGrace      = 500 * time.Millisecond
	DefaultPollInterval     = 10 * time.Millisecond
	DefaultMaxDrainReads    = 16
	DefaultTraceSize        = 32
)

// Config contains configuration options for a Session
type Config struct {
	// Port names the connection in errors and traces.
	Port string
	// Timeout bounds every command except SendWifiSettings.
	Timeout time.Duration
	// ProvisionTimeout bounds a provisioning attempt, which includes the
	// device joining the network.
	ProvisionTimeout time.Duration
	// ScanTimeout bounds a network scan.
	ScanTimeout time.Duration
	// IdentifyWindow is how long Identify waits for an ErrorState before
	// treating silence as success.
	IdentifyWindow time.Duration
	// ResultGrace is how long Provision waits for the redirect URL after
	// the device reports Provisioned.
	ResultGrace time.Duration
	// PollInterval is the pause between reads that returned no data.
	PollInterval time.Duration
	// MaxDrainReads bounds the reads that flush stale input before a
	// command is sent.
	MaxDrainReads int
	// MaxResyncAttempts bounds the corrupt frames skipped per extraction.
	MaxResyncAttempts int
	// TraceSize is the number of frames kept for error traces.
	TraceSize int
	// Observer, when set, is told about every command the session runs.
	Observer Observer
	// TrailingNewline appends '\n' after each command frame. Firmware that
	// shares the UART with a line-buffered console needs it to flush.
	TrailingNewline bool
}

// DefaultConfig returns default session configuration
func DefaultConfig() *Config {
	return &Config{
		Timeout:           DefaultTimeout,
		ProvisionTimeout:  DefaultProvisionTimeout,
		ScanTimeout:       DefaultScanTimeout,
		IdentifyWindow:    DefaultIdentifyWindow,
		ResultGrace:       DefaultResultGrace,
		PollInterval:      DefaultPollInterval,
		MaxDrainReads:     DefaultMaxDrainReads,
		MaxResyncAttempts: frame.DefaultMaxResyncAttempts,
		TraceSize:         DefaultTraceSize,
		TrailingNewline:   true,
	}
}

// Validate checks that every duration and bound is usable.
func (c *Config) Validate() error {
	durations := []struct {
		name  string
		value time.Duration
	}{
		{"timeout", c.Timeout},
		{"provision timeout", c.ProvisionTimeout},
		{"scan timeout", c.ScanTimeout},
		{"identify window", c.IdentifyWindow},
		{"result grace", c.ResultGrace},
		{"poll interval", c.PollInterval},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %v", ErrInvalidConfig, d.name, d.value)
		}
	}

	if c.ResultGrace >= c.ProvisionTimeout {
		return fmt.Errorf("%w: result grace %v must be shorter than provision timeout %v",
			ErrInvalidConfig, c.ResultGrace, c.ProvisionTimeout)
	}
	if c.MaxDrainReads < 1 {
		return fmt.Errorf("%w: max drain reads must be at least 1, got %d", ErrInvalidConfig, c.MaxDrainReads)
	}
	if c.MaxResyncAttempts < 1 {
		return fmt.Errorf("%w: max resync attempts must be at least 1, got %d", ErrInvalidConfig, c.MaxResyncAttempts)
	}
	if c.TraceSize < 1 {
		return fmt.Errorf("%w: trace size must be at least 1, got %d", ErrInvalidConfig, c.TraceSize)
	}
	return nil
}

// Option configures a Session
type Option func(*Config) error

// WithConfig replaces the whole configuration.
func WithConfig(cfg *Config) Option {
	return func(c *Config) error {
		if cfg == nil {
			return fmt.Errorf("%w: nil config", ErrInvalidConfig)
		}
		*c = *cfg
		return nil
	}
}

// WithPort names the connection in errors and traces.
func WithPort(name string) Option {
	return func(c *Config) error {
		c.Port = name
		return nil
	}
}

// WithTimeout sets the per-command timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) error {
		c.Timeout = timeout
		return nil
	}
}

// WithProvisionTimeout sets the provisioning timeout.
func WithProvisionTimeout(timeout time.Duration) Option {
	return func(c *Config) error {
		c.ProvisionTimeout = timeout
		return nil
	}
}

// WithScanTimeout sets the network scan timeout.
func WithScanTimeout(timeout time.Duration) Option {
	return func(c *Config) error {
		c.ScanTimeout = timeout
		return nil
	}
}

// WithIdentifyWindow sets how long Identify listens for a rejection.
func WithIdentifyWindow(window time.Duration) Option {
	return func(c *Config) error {
		c.IdentifyWindow = window
		return nil
	}
}

// WithResultGrace sets how long Provision waits for a redirect URL after
// the device reports Provisioned.
func WithResultGrace(grace time.Duration) Option {
	return func(c *Config) error {
		c.ResultGrace = grace
		return nil
	}
}

// WithPollInterval sets the pause between empty reads.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Config) error {
		c.PollInterval = interval
		return nil
	}
}

// WithTrailingNewline controls the '\n' written after each command frame.
func WithTrailingNewline(enabled bool) Option {
	return func(c *Config) error {
		c.TrailingNewline = enabled
		return nil
	}
}

// WithObserver reports every command outcome to obs.
func WithObserver(obs Observer) Option {
	return func(c *Config) error {
		c.Observer = obs
		return nil
	}
}

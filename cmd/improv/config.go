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
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/ZaparooProject/go-improv"
	"github.com/ZaparooProject/go-improv/transport/uart"
)

// options holds everything a command needs to reach a device. Values come
// from built-in defaults, then the TOML file, then explicit flags.
type options struct {
	observer         improv.Observer
	configPath       string
	port             string
	url              string
	username         string
	logDir           string
	detectMode       string
	metricsFile      string
	baud             int
	retries          int
	timeout          time.Duration
	provisionTimeout time.Duration
	scanTimeout      time.Duration
	identifyWindow   time.Duration
	insecure         bool
	noNewline        bool
	debug            bool
	logFile          bool
}

func defaultOptions() *options {
	return &options{
		baud:             uart.DefaultBaudRate,
		timeout:          improv.DefaultTimeout,
		provisionTimeout: improv.DefaultProvisionTimeout,
		scanTimeout:      improv.DefaultScanTimeout,
		identifyWindow:   improv.DefaultIdentifyWindow,
		logDir:           ".",
		detectMode:       "passive",
	}
}

// fileConfig mirrors the TOML configuration file:
//
//	port = "/dev/ttyUSB0"
//	baud = 115200
//	timeout = "3s"
//	provision_timeout = "45s"
//	retries = 2
type fileConfig struct {
	Port             string `toml:"port"`
	URL              string `toml:"url"`
	Username         string `toml:"username"`
	Timeout          string `toml:"timeout"`
	ProvisionTimeout string `toml:"provision_timeout"`
	ScanTimeout      string `toml:"scan_timeout"`
	IdentifyWindow   string `toml:"identify_window"`
	LogDir           string `toml:"log_dir"`
	MetricsFile      string `toml:"metrics_file"`
	Baud             int    `toml:"baud"`
	Retries          int    `toml:"retries"`
	Insecure         bool   `toml:"insecure"`
	TrailingNewline  bool   `toml:"trailing_newline"`
	Debug            bool   `toml:"debug"`
	LogFile          bool   `toml:"log_file"`
}

// applyFile loads path into opts. Keys for which changed reports true were
// set on the command line and keep their flag value.
func (o *options) applyFile(path string, changed func(flag string) bool) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		improv.Debugf("config %s: ignoring unknown keys %v", path, undecoded)
	}

	use := func(key, flag string) bool {
		return meta.IsDefined(key) && !changed(flag)
	}

	if use("port", "port") {
		o.port = strings.TrimSpace(raw.Port)
	}
	if use("url", "url") {
		o.url = strings.TrimSpace(raw.URL)
	}
	if use("username", "user") {
		o.username = strings.TrimSpace(raw.Username)
	}
	if use("baud", "baud") {
		o.baud = raw.Baud
	}
	if use("retries", "retries") {
		o.retries = raw.Retries
	}
	if use("insecure", "insecure") {
		o.insecure = raw.Insecure
	}
	if use("trailing_newline", "no-newline") {
		o.noNewline = !raw.TrailingNewline
	}
	if use("debug", "debug") {
		o.debug = raw.Debug
	}
	if use("log_file", "log-file") {
		o.logFile = raw.LogFile
	}
	if use("log_dir", "log-dir") {
		o.logDir = strings.TrimSpace(raw.LogDir)
	}
	if use("metrics_file", "metrics-file") {
		o.metricsFile = strings.TrimSpace(raw.MetricsFile)
	}

	durations := []struct {
		target *time.Duration
		key    string
		flag   string
		value  string
	}{
		{&o.timeout, "timeout", "timeout", raw.Timeout},
		{&o.provisionTimeout, "provision_timeout", "provision-timeout", raw.ProvisionTimeout},
		{&o.scanTimeout, "scan_timeout", "scan-timeout", raw.ScanTimeout},
		{&o.identifyWindow, "identify_window", "identify-window", raw.IdentifyWindow},
	}
	for _, d := range durations {
		if !use(d.key, d.flag) {
			continue
		}
		parsed, err := time.ParseDuration(strings.TrimSpace(d.value))
		if err != nil {
			return fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.target = parsed
	}

	return nil
}

// sessionOptions converts opts into session options for the named port.
func (o *options) sessionOptions(portName string) []improv.Option {
	cfg := improv.DefaultConfig()
	cfg.Port = portName
	cfg.Timeout = o.timeout
	cfg.ProvisionTimeout = o.provisionTimeout
	cfg.ScanTimeout = o.scanTimeout
	cfg.IdentifyWindow = o.identifyWindow
	cfg.TrailingNewline = !o.noNewline
	cfg.Observer = o.observer
	return []improv.Option{improv.WithConfig(cfg)}
}

// retryConfig returns the retry policy for opening a session. Zero retries
// means a single attempt.
func (o *options) retryConfig(onRetry func(attempt int, err error)) *improv.RetryConfig {
	cfg := improv.DefaultRetryConfig()
	cfg.MaxAttempts = o.retries + 1
	cfg.RetryTimeout = time.Duration(cfg.MaxAttempts) * (o.timeout + cfg.MaxBackoff)
	cfg.OnRetry = onRetry
	return cfg
}

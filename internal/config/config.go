// Copyright 2026 The iaxolab-scope Contributors.
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

// Package config holds the acquisition file read by cmd/scoperead.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Instrument  InstrumentConfig  `yaml:"instrument"`
	Output      OutputConfig      `yaml:"output"`
	Acquisition AcquisitionConfig `yaml:"acquisition"`
	Retry       RetryConfig       `yaml:"retry"`
	Debug       DebugConfig       `yaml:"debug"`
}

// ---- INSTRUMENT ----

type InstrumentConfig struct {
	Transport string `yaml:"transport"` // tcp | serial
	Address   string `yaml:"address"`   // host[:port] or serial device
	BaudRate  int    `yaml:"baud_rate"` // serial only
	TimeoutMs int    `yaml:"timeout_ms"`
}

// ---- ACQUISITION ----

type AcquisitionConfig struct {
	Source     int `yaml:"source"`      // 0 keeps the instrument's channel
	FirstFrame int `yaml:"first_frame"` // 1-based
	Frames     int `yaml:"frames"`
}

// ---- RETRY ----

type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms"`
}

// ---- OUTPUT ----

type OutputConfig struct {
	Path        string `yaml:"path"`        // empty or "-" writes to stdout
	Compression string `yaml:"compression"` // none | zstd | lz4
}

// ---- DEBUG ----

type DebugConfig struct {
	Enabled    bool `yaml:"enabled"`
	SessionLog bool `yaml:"session_log"`
}

// Load reads a YAML configuration file. Unknown keys are rejected.
// The result is neither validated nor normalized.
func Load(path string) (*Config, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer func() { _ = f.Close() }()

	return Decode(f)
}

// Decode parses a YAML configuration. An empty document yields a zero Config.
func Decode(r io.Reader) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

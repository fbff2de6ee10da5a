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

package config

import (
	"strings"

	"github.com/lobis/iaxolab-scope/internal/export"
)

// Transport names accepted in instrument.transport.
const (
	TransportTCP    = "tcp"
	TransportSerial = "serial"
)

// Defaults applied by Normalize.
const (
	DefaultBaudRate         = 115200
	DefaultTCPTimeoutMs     = 10_000
	DefaultSerialTimeoutMs  = 30_000
	DefaultMaxAttempts      = 3
	DefaultInitialBackoffMs = 100
	DefaultMaxBackoffMs     = 2_000
)

// Normalize fills defaults. It must be called only after Validate.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	in := &cfg.Instrument
	in.Transport = strings.ToLower(in.Transport)
	if in.Transport == "" {
		in.Transport = TransportTCP
	}
	in.Address = strings.TrimSpace(in.Address)
	if in.Transport == TransportSerial && in.BaudRate == 0 {
		in.BaudRate = DefaultBaudRate
	}
	if in.TimeoutMs == 0 {
		in.TimeoutMs = DefaultTCPTimeoutMs
		if in.Transport == TransportSerial {
			in.TimeoutMs = DefaultSerialTimeoutMs
		}
	}

	acq := &cfg.Acquisition
	if acq.FirstFrame == 0 {
		acq.FirstFrame = 1
	}
	if acq.Frames == 0 {
		acq.Frames = 1
	}

	r := &cfg.Retry
	if r.MaxAttempts == 0 {
		r.MaxAttempts = DefaultMaxAttempts
	}
	if r.InitialBackoffMs == 0 {
		r.InitialBackoffMs = DefaultInitialBackoffMs
	}
	if r.MaxBackoffMs == 0 {
		r.MaxBackoffMs = max(DefaultMaxBackoffMs, r.InitialBackoffMs)
	}

	// Compression follows the file extension unless set explicitly.
	out := &cfg.Output
	if out.Compression == "" {
		out.Compression = string(export.CompressionFromPath(out.Path))
	}
	out.Compression = strings.ToLower(out.Compression)
}

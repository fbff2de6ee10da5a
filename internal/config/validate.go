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
	"errors"
	"fmt"
	"strings"

	"github.com/lobis/iaxolab-scope/internal/export"
)

var ErrInvalid = errors.New("invalid configuration")

// Validate checks configuration correctness.
// It performs declarative validation only and does not mutate cfg.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: nil config", ErrInvalid)
	}

	in := cfg.Instrument
	switch strings.ToLower(in.Transport) {
	case "", TransportTCP, TransportSerial:
	default:
		return invalid("instrument.transport %q: want %q or %q", in.Transport, TransportTCP, TransportSerial)
	}
	if strings.TrimSpace(in.Address) == "" {
		return invalid("instrument.address is required")
	}
	if in.BaudRate < 0 {
		return invalid("instrument.baud_rate must not be negative")
	}
	if in.BaudRate > 0 && strings.ToLower(in.Transport) != TransportSerial {
		return invalid("instrument.baud_rate only applies to the serial transport")
	}
	if in.TimeoutMs < 0 {
		return invalid("instrument.timeout_ms must not be negative")
	}

	acq := cfg.Acquisition
	if acq.Source < 0 {
		return invalid("acquisition.source must not be negative")
	}
	if acq.FirstFrame < 0 {
		return invalid("acquisition.first_frame must not be negative")
	}
	if acq.Frames < 0 {
		return invalid("acquisition.frames must not be negative")
	}

	r := cfg.Retry
	if r.MaxAttempts < 0 || r.InitialBackoffMs < 0 || r.MaxBackoffMs < 0 {
		return invalid("retry values must not be negative")
	}
	if r.MaxBackoffMs > 0 && r.InitialBackoffMs > r.MaxBackoffMs {
		return invalid("retry.initial_backoff_ms (%d) exceeds retry.max_backoff_ms (%d)",
			r.InitialBackoffMs, r.MaxBackoffMs)
	}

	if cfg.Output.Compression != "" {
		if _, err := export.ParseCompression(cfg.Output.Compression); err != nil {
			return invalid("output.compression: %v", err)
		}
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

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

package scope

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/lobis/iaxolab-scope/internal/syncutil"
	"github.com/lobis/iaxolab-scope/pkg/preamble"
)

// SampleWidth is the instrument's data transfer width (:WAV:WIDT).
type SampleWidth string

const (
	// WidthByte transfers one byte per sample (8-bit ADC modes).
	WidthByte SampleWidth = "BYTE"
	// WidthWord transfers two bytes per sample (10/12-bit ADC modes).
	WidthWord SampleWidth = "WORD"
)

// Capabilities describes the per-connection transfer limits of the instrument.
type Capabilities struct {
	// Width is the currently selected transfer width
	Width SampleWidth
	// MaxPoints is the per-transfer point limit (0 = unconstrained)
	MaxPoints int
}

// Config contains configuration options for a Scope
type Config struct {
	// Layout describes where the preamble fields live on the wire
	Layout *preamble.Layout
	// Timeout is the transport I/O timeout applied by New (0 = keep transport default)
	Timeout time.Duration
	// Source selects the channel before every frame read (0 = leave unchanged)
	Source int
}

// DefaultConfig returns default scope configuration
func DefaultConfig() *Config {
	return &Config{
		Layout: preamble.DefaultLayout(),
	}
}

// Option configures a Scope
type Option func(*Scope) error

// WithSource makes every frame read select channel C<ch> first.
func WithSource(ch int) Option {
	return func(s *Scope) error {
		if ch < 1 {
			return fmt.Errorf("%w: source channel must be >= 1, got %d", ErrInvalidParameter, ch)
		}
		s.config.Source = ch
		return nil
	}
}

// WithLayout overrides the preamble layout for a different firmware family.
func WithLayout(layout *preamble.Layout) Option {
	return func(s *Scope) error {
		if layout == nil {
			return fmt.Errorf("%w: nil layout", ErrInvalidParameter)
		}
		if err := layout.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidParameter, err)
		}
		s.config.Layout = layout
		return nil
	}
}

// WithTimeout sets the transport I/O timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Scope) error {
		if timeout <= 0 {
			return fmt.Errorf("%w: timeout must be positive, got %v", ErrInvalidParameter, timeout)
		}
		s.config.Timeout = timeout
		return nil
	}
}

// Scope is an owning handle on one instrument connection.
//
// Thread Safety: Scope is safe for concurrent use. The instrument keeps a
// server-side cursor (source, sequence index, start offset, window), so every
// public method holds the scope lock for its whole exchange and at most one
// acquisition is ever in flight on the connection.
type Scope struct {
	transport Transport
	config    *Config
	mu        syncutil.Mutex
}

// New creates a new Scope over the given transport
func New(transport Transport, opts ...Option) (*Scope, error) {
	if transport == nil {
		return nil, fmt.Errorf("%w: nil transport", ErrInvalidParameter)
	}

	s := &Scope{
		transport: transport,
		config:    DefaultConfig(),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if s.config.Timeout > 0 {
		if err := transport.SetTimeout(s.config.Timeout); err != nil {
			return nil, fmt.Errorf("failed to set timeout on transport: %w", err)
		}
	}

	return s, nil
}

// TransportFactory is a function type for creating transports
type TransportFactory func(address string) (Transport, error)

// Connect opens a transport with factory, wraps it in a Scope and checks
// that the instrument answers *IDN?. The transport is closed on failure.
func Connect(ctx context.Context, address string, factory TransportFactory, opts ...Option) (*Scope, string, error) {
	if factory == nil {
		return nil, "", fmt.Errorf("%w: nil transport factory", ErrInvalidParameter)
	}

	transport, err := factory(address)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open transport %s: %w", address, err)
	}

	s, err := New(transport, opts...)
	if err != nil {
		_ = transport.Close()
		return nil, "", err
	}

	idn, err := s.Identity(ctx)
	if err != nil {
		_ = transport.Close()
		return nil, "", fmt.Errorf("instrument at %s did not identify: %w", address, err)
	}
	Debugf("connected to %s: %s", address, idn)

	return s, idn, nil
}

// Transport returns the underlying transport
func (s *Scope) Transport() Transport {
	return s.transport
}

// Layout returns the preamble layout in use
func (s *Scope) Layout() *preamble.Layout {
	return s.config.Layout
}

// Identity returns the instrument's *IDN? reply.
func (s *Scope) Identity(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idn, err := s.transport.Query(ctx, cmdIdentity)
	if err != nil {
		return "", fmt.Errorf("%s: %w", cmdIdentity, err)
	}
	if idn == "" {
		return "", fmt.Errorf("%s: %w: empty reply", cmdIdentity, ErrInvalidResponse)
	}
	return idn, nil
}

// Source returns the channel number currently selected for waveform transfer.
func (s *Scope) Source(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reply, err := s.transport.Query(ctx, cmdSourceQuery)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", cmdSourceQuery, err)
	}
	return parseSource(reply)
}

// SetSource selects channel C<ch> for waveform transfer.
func (s *Scope) SetSource(ctx context.Context, ch int) error {
	if ch < 1 {
		return fmt.Errorf("%w: source channel must be >= 1, got %d", ErrInvalidParameter, ch)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.write(ctx, sourceCommand(ch))
}

// Capabilities queries the per-transfer point limit and the transfer width.
func (s *Scope) Capabilities(ctx context.Context) (Capabilities, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.capabilities(ctx)
}

func (s *Scope) capabilities(ctx context.Context) (Capabilities, error) {
	reply, err := s.transport.Query(ctx, cmdMaxPointsQuery)
	if err != nil {
		return Capabilities{}, fmt.Errorf("%s: %w", cmdMaxPointsQuery, err)
	}
	maxPoints, err := parseMaxPoints(reply)
	if err != nil {
		return Capabilities{}, err
	}

	reply, err = s.transport.Query(ctx, cmdWidthQuery)
	if err != nil {
		return Capabilities{}, fmt.Errorf("%s: %w", cmdWidthQuery, err)
	}
	width, err := parseWidth(reply)
	if err != nil {
		return Capabilities{}, err
	}

	return Capabilities{MaxPoints: maxPoints, Width: width}, nil
}

// Close closes the scope connection
func (s *Scope) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.transport != nil {
		if err := s.transport.Close(); err != nil {
			return fmt.Errorf("failed to close transport: %w", err)
		}
	}
	return nil
}

func (s *Scope) write(ctx context.Context, cmd string) error {
	if err := s.transport.Write(ctx, cmd); err != nil {
		return fmt.Errorf("%s: %w", cmd, err)
	}
	return nil
}

// replyValue drops an optional echoed command header ("MAXP 2.50E+06").
func replyValue(reply string) string {
	fields := strings.Fields(reply)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

func parseMaxPoints(reply string) (int, error) {
	value := replyValue(reply)
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w: %q", cmdMaxPointsQuery, ErrInvalidResponse, reply)
	}
	if f < 0 || math.IsInf(f, 0) || math.IsNaN(f) || f > math.MaxInt32 {
		return 0, fmt.Errorf("%s: %w: out of range %q", cmdMaxPointsQuery, ErrInvalidResponse, reply)
	}
	return int(math.Round(f)), nil
}

func parseWidth(reply string) (SampleWidth, error) {
	switch w := SampleWidth(strings.ToUpper(replyValue(reply))); w {
	case WidthByte, WidthWord:
		return w, nil
	default:
		return "", fmt.Errorf("%s: %w: %q", cmdWidthQuery, ErrInvalidResponse, reply)
	}
}

func parseSource(reply string) (int, error) {
	value := strings.ToUpper(replyValue(reply))
	if !strings.HasPrefix(value, "C") {
		return 0, fmt.Errorf("%s: %w: %q", cmdSourceQuery, ErrInvalidResponse, reply)
	}
	ch, err := strconv.Atoi(value[1:])
	if err != nil || ch < 1 {
		return 0, fmt.Errorf("%s: %w: %q", cmdSourceQuery, ErrInvalidResponse, reply)
	}
	return ch, nil
}

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

package testing

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/lobis/iaxolab-scope/internal/syncutil"
)

// TransportType mirrors scope.TransportType to avoid import cycle
type TransportType string

const (
	// TransportMock represents a mock transport for testing
	TransportMock TransportType = "mock"
)

// Errors reported by SimulatorTransport.
var (
	// ErrNoResponse is returned by ReadRaw when the simulator sent nothing
	ErrNoResponse = errors.New("simulator: no response")
	// ErrClosed is returned after Close
	ErrClosed = errors.New("simulator: transport closed")
)

// SimulatorTransport drives a VirtualScope in-process with the same
// Write/Query/ReadRaw surface as the stream transports. Replies are queued
// in order, so a Write of a query followed by ReadRaw returns that query's
// reply.
type SimulatorTransport struct {
	sim        *VirtualScope
	pending    [][]byte
	CommandLog []CommandLogEntry
	timeout    time.Duration
	mu         syncutil.Mutex
	connected  bool
}

// CommandLogEntry records a command sent to the transport
type CommandLogEntry struct {
	Timestamp time.Time
	Cmd       string
}

// NewSimulatorTransport creates a new transport backed by VirtualScope
func NewSimulatorTransport(sim *VirtualScope) *SimulatorTransport {
	return &SimulatorTransport{
		sim:        sim,
		timeout:    time.Second,
		connected:  true,
		CommandLog: make([]CommandLogEntry, 0),
	}
}

func (t *SimulatorTransport) check(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if !t.connected {
		return ErrClosed
	}
	return nil
}

// Write sends a command to the simulator and queues its reply, if any.
func (t *SimulatorTransport) Write(ctx context.Context, cmd string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.check(ctx); err != nil {
		return err
	}

	t.CommandLog = append(t.CommandLog, CommandLogEntry{Cmd: cmd, Timestamp: time.Now()})
	if reply := t.sim.Handle(cmd); reply != nil {
		t.pending = append(t.pending, reply)
	}
	return nil
}

// ReadRaw returns the next queued reply exactly as the simulator sent it.
func (t *SimulatorTransport) ReadRaw(ctx context.Context) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.check(ctx); err != nil {
		return nil, err
	}
	if len(t.pending) == 0 {
		return nil, ErrNoResponse
	}
	reply := t.pending[0]
	t.pending = t.pending[1:]
	return reply, nil
}

// Query writes cmd and returns its reply with the terminator trimmed.
func (t *SimulatorTransport) Query(ctx context.Context, cmd string) (string, error) {
	if err := t.Write(ctx, cmd); err != nil {
		return "", err
	}
	reply, err := t.ReadRaw(ctx)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(reply)), nil
}

// Close closes the transport
func (t *SimulatorTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
	return nil
}

// SetTimeout sets the read timeout
func (t *SimulatorTransport) SetTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timeout = timeout
	return nil
}

// IsConnected returns whether the transport is connected
func (t *SimulatorTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Type returns the transport type
func (*SimulatorTransport) Type() TransportType {
	return TransportMock
}

// GetSimulator returns the underlying VirtualScope for test setup
func (t *SimulatorTransport) GetSimulator() *VirtualScope {
	return t.sim
}

// ClearCommandLog clears the command log
func (t *SimulatorTransport) ClearCommandLog() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.CommandLog = make([]CommandLogEntry, 0)
}

// Commands returns the logged command strings in order
func (t *SimulatorTransport) Commands() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.CommandLog))
	for i, e := range t.CommandLog {
		out[i] = e.Cmd
	}
	return out
}

// Note: SimulatorTransport implements a Transport-compatible interface.
// Interface compliance with scope.Transport is checked where the type is
// adapted in the scope package's external tests.

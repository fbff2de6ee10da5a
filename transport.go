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
	"strings"
	"time"

	"github.com/lobis/iaxolab-scope/internal/syncutil"
)

// Transport defines the interface for communication with an instrument.
// This can be implemented by raw-socket (TCP) or serial backends.
type Transport interface {
	// Write sends a command; the transport appends the terminator
	Write(ctx context.Context, cmd string) error

	// Query sends a command and returns its textual reply, trimmed
	Query(ctx context.Context, cmd string) (string, error)

	// ReadRaw returns the next response message exactly as received
	ReadRaw(ctx context.Context) ([]byte, error)

	// SetTimeout sets the per-operation I/O timeout
	SetTimeout(timeout time.Duration) error

	// Close closes the transport connection
	Close() error

	// IsConnected returns true if the transport is connected
	IsConnected() bool

	// Type returns the transport type
	Type() TransportType
}

// TransportType represents the type of transport
type TransportType string

const (
	// TransportTCP represents a raw SCPI socket (usually port 5025).
	TransportTCP TransportType = "tcp"
	// TransportSerial represents an RS-232 or USB-CDC serial link.
	TransportSerial TransportType = "serial"
	// TransportMock represents a mock transport for testing
	TransportMock TransportType = "mock"
)

type mockReply struct {
	err  error
	data []byte
}

// MockTransport provides a mock implementation of Transport for testing.
// Raw replies are queued per command: writing the command moves its next
// queued reply to the pending list consumed by ReadRaw.
type MockTransport struct {
	queries   map[string]string
	raw       map[string][]mockReply
	errorMap  map[string]error
	callCount map[string]int
	pending   []mockReply
	commands  []string
	timeout   time.Duration
	delay     time.Duration
	mu        syncutil.RWMutex
	connected bool
}

// NewMockTransport creates a new mock transport
func NewMockTransport() *MockTransport {
	return &MockTransport{
		connected: true,
		timeout:   time.Second,
		queries:   make(map[string]string),
		raw:       make(map[string][]mockReply),
		errorMap:  make(map[string]error),
		callCount: make(map[string]int),
	}
}

func commandHead(cmd string) string {
	head, _, _ := strings.Cut(strings.TrimSpace(cmd), " ")
	return head
}

func (m *MockTransport) enter(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	m.mu.RLock()
	connected := m.connected
	delay := m.delay
	m.mu.RUnlock()

	if !connected {
		return NewTransportClosedError("mock", "mock")
	}

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Write implements Transport interface
func (m *MockTransport) Write(ctx context.Context, cmd string) error {
	if err := m.enter(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.commands = append(m.commands, cmd)
	m.callCount[commandHead(cmd)]++

	if err, exists := m.errorMap[commandHead(cmd)]; exists {
		return err
	}

	if queue := m.raw[cmd]; len(queue) > 0 {
		m.pending = append(m.pending, queue[0])
		m.raw[cmd] = queue[1:]
	}
	return nil
}

// Query implements Transport interface
func (m *MockTransport) Query(ctx context.Context, cmd string) (string, error) {
	if err := m.enter(ctx); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.commands = append(m.commands, cmd)
	m.callCount[commandHead(cmd)]++

	if err, exists := m.errorMap[commandHead(cmd)]; exists {
		return "", err
	}
	if reply, exists := m.queries[cmd]; exists {
		return reply, nil
	}
	return "", NewTimeoutError("Query", "mock")
}

// ReadRaw implements Transport interface
func (m *MockTransport) ReadRaw(ctx context.Context) ([]byte, error) {
	if err := m.enter(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.pending) == 0 {
		return nil, NewTimeoutError("ReadRaw", "mock")
	}
	reply := m.pending[0]
	m.pending = m.pending[1:]
	if reply.err != nil {
		return nil, reply.err
	}
	out := make([]byte, len(reply.data))
	copy(out, reply.data)
	return out, nil
}

// Close implements Transport interface
func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
	return nil
}

// SetTimeout implements Transport interface
func (m *MockTransport) SetTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive, got %v", ErrInvalidParameter, timeout)
	}
	m.mu.Lock()
	m.timeout = timeout
	m.mu.Unlock()
	return nil
}

// IsConnected implements Transport interface
func (m *MockTransport) IsConnected() bool {
	m.mu.RLock()
	connected := m.connected
	m.mu.RUnlock()
	return connected
}

// Type implements Transport interface
func (*MockTransport) Type() TransportType {
	return TransportMock
}

// Test helper methods

// SetQueryResponse configures the reply returned by Query for cmd
func (m *MockTransport) SetQueryResponse(cmd, reply string) {
	m.mu.Lock()
	m.queries[cmd] = reply
	m.mu.Unlock()
}

// QueueRawResponse queues a raw reply delivered after cmd is written
func (m *MockTransport) QueueRawResponse(cmd string, data []byte) {
	m.mu.Lock()
	m.raw[cmd] = append(m.raw[cmd], mockReply{data: data})
	m.mu.Unlock()
}

// QueueRawError queues a ReadRaw failure delivered after cmd is written
func (m *MockTransport) QueueRawError(cmd string, err error) {
	m.mu.Lock()
	m.raw[cmd] = append(m.raw[cmd], mockReply{err: err})
	m.mu.Unlock()
}

// SetError makes every command with the given head (e.g. ":WAV:STAR") fail
func (m *MockTransport) SetError(head string, err error) {
	m.mu.Lock()
	m.errorMap[head] = err
	m.mu.Unlock()
}

// ClearError removes error injection for a command head
func (m *MockTransport) ClearError(head string) {
	m.mu.Lock()
	delete(m.errorMap, head)
	m.mu.Unlock()
}

// SetDelay configures a delay to simulate instrument response time
func (m *MockTransport) SetDelay(delay time.Duration) {
	m.mu.Lock()
	m.delay = delay
	m.mu.Unlock()
}

// GetCallCount returns how many times a command head was sent
func (m *MockTransport) GetCallCount(head string) int {
	m.mu.RLock()
	count := m.callCount[head]
	m.mu.RUnlock()
	return count
}

// Commands returns every command written or queried, in order
func (m *MockTransport) Commands() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.commands))
	copy(out, m.commands)
	return out
}

// Reset clears the command log, call counts and pending replies
func (m *MockTransport) Reset() {
	m.mu.Lock()
	m.callCount = make(map[string]int)
	m.commands = nil
	m.pending = nil
	m.connected = true
	m.mu.Unlock()
}

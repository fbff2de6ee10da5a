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

// Package tcp implements scope.Transport over a raw SCPI socket, the
// LAN interface Siglent instruments expose on port 5025.
package tcp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	scope "github.com/lobis/iaxolab-scope"
	"github.com/lobis/iaxolab-scope/internal/wire"
)

// DefaultPort is the raw SCPI socket port.
const DefaultPort = "5025"

// DefaultTimeout bounds each exchange.
const DefaultTimeout = 10 * time.Second

// DefaultDialTimeout bounds connection establishment.
const DefaultDialTimeout = 5 * time.Second

// Option configures a Transport
type Option func(*config)

type config struct {
	timeout     time.Duration
	dialTimeout time.Duration
}

// WithTimeout sets the per-exchange timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *config) {
		c.timeout = timeout
	}
}

// WithDialTimeout sets the connection timeout.
func WithDialTimeout(timeout time.Duration) Option {
	return func(c *config) {
		c.dialTimeout = timeout
	}
}

// Transport implements the scope.Transport interface for SCPI sockets.
type Transport struct {
	conn    net.Conn
	reader  *bufio.Reader
	trace   *scope.TraceBuffer
	address string
	timeout time.Duration
	mu      sync.Mutex
	closed  bool
}

// Address appends DefaultPort when address carries no port.
func Address(address string) string {
	if _, _, err := net.SplitHostPort(address); err == nil {
		return address
	}
	return net.JoinHostPort(strings.Trim(address, "[]"), DefaultPort)
}

// New dials address (host or host:port) and returns a transport.
func New(ctx context.Context, address string, opts ...Option) (*Transport, error) {
	cfg := config{timeout: DefaultTimeout, dialTimeout: DefaultDialTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.timeout <= 0 || cfg.dialTimeout <= 0 {
		return nil, fmt.Errorf("%w: timeouts must be positive", scope.ErrInvalidParameter)
	}

	addr := Address(address)
	dialer := net.Dialer{Timeout: cfg.dialTimeout, KeepAlive: 30 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, scope.NewTransportError("Dial", addr, err, scope.ErrorTypeTransient)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	return NewWithConn(conn, addr, WithTimeout(cfg.timeout)), nil
}

// NewWithConn wraps an established connection. Invalid timeouts fall back
// to DefaultTimeout.
func NewWithConn(conn net.Conn, address string, opts ...Option) *Transport {
	cfg := config{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.timeout <= 0 {
		cfg.timeout = DefaultTimeout
	}
	return &Transport{
		conn:    conn,
		reader:  bufio.NewReaderSize(conn, 64*1024),
		trace:   scope.NewTraceBuffer(string(scope.TransportTCP), address, 16),
		address: address,
		timeout: cfg.timeout,
	}
}

// begin arms the connection deadline for one exchange and ties it to ctx.
// The returned stop func must be called when the exchange ends. Must hold mu.
func (t *Transport) begin(ctx context.Context) (func() bool, error) {
	if t.closed || t.conn == nil {
		return nil, scope.NewTransportClosedError("tcp", t.address)
	}
	if err := ctx.Err(); err != nil {
		return nil, err //nolint:wrapcheck // context errors are returned as-is
	}

	deadline := time.Now().Add(t.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := t.conn.SetDeadline(deadline); err != nil {
		return nil, scope.NewTransportWriteError("SetDeadline", t.address, err)
	}

	conn := t.conn
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	return stop, nil
}

// Write sends cmd followed by the newline terminator.
func (t *Transport) Write(ctx context.Context, cmd string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	stop, err := t.begin(ctx)
	if err != nil {
		return err
	}
	defer stop()
	return t.write(ctx, cmd)
}

func (t *Transport) write(ctx context.Context, cmd string) error {
	data := []byte(strings.TrimRight(cmd, "\r\n") + "\n")
	t.trace.RecordTX(data, "")

	if _, err := t.conn.Write(data); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return t.trace.WrapError(ctxErr)
		}
		if isTimeout(err) {
			return t.trace.WrapError(scope.NewTimeoutError("Write", t.address))
		}
		return t.trace.WrapError(scope.NewTransportWriteError("Write", t.address, err))
	}
	return nil
}

// ReadRaw reads exactly one response message, block or text line.
func (t *Transport) ReadRaw(ctx context.Context) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	stop, err := t.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer stop()
	return t.read(ctx, "ReadRaw")
}

func (t *Transport) read(ctx context.Context, op string) ([]byte, error) {
	msg, err := wire.ReadResponse(t.reader)
	if err == nil {
		t.trace.RecordRX(msg, "")
		scope.Debugf("tcp %s: received %d bytes", t.address, len(msg))
		return msg, nil
	}

	// The remainder of a message we could not frame is unusable.
	t.reader.Reset(t.conn)
	switch {
	case ctx.Err() != nil:
		t.trace.RecordTimeout(ctx.Err().Error())
		return nil, t.trace.WrapError(ctx.Err())
	case isTimeout(err):
		t.trace.RecordTimeout(fmt.Sprintf("%d bytes before timeout", len(msg)))
		return nil, t.trace.WrapError(scope.NewTimeoutError(op, t.address))
	case errors.Is(err, wire.ErrMalformedBlock):
		t.trace.RecordRX(msg, "malformed")
		return nil, t.trace.WrapError(err)
	default:
		t.trace.RecordRX(msg, "read error")
		return nil, t.trace.WrapError(scope.NewTransportReadError(op, t.address, err))
	}
}

// Query sends cmd and returns its textual reply without the terminator.
func (t *Transport) Query(ctx context.Context, cmd string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	stop, err := t.begin(ctx)
	if err != nil {
		return "", err
	}
	defer stop()

	if err := t.write(ctx, cmd); err != nil {
		return "", err
	}
	msg, err := t.read(ctx, "Query")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(msg)), nil
}

// SetTimeout sets the per-exchange timeout
func (t *Transport) SetTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive, got %v", scope.ErrInvalidParameter, timeout)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timeout = timeout
	return nil
}

// Close closes the connection
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed || t.conn == nil {
		return nil
	}
	t.closed = true
	if err := t.conn.Close(); err != nil {
		return fmt.Errorf("tcp close failed: %w", err)
	}
	return nil
}

// IsConnected returns true if the transport is connected
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil && !t.closed
}

// Type returns the transport type
func (*Transport) Type() scope.TransportType {
	return scope.TransportTCP
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

var _ scope.Transport = (*Transport)(nil)

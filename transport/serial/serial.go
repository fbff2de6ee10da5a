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

// Package serial implements scope.Transport over an RS-232 or USB-CDC
// serial link using go.bug.st/serial.
package serial

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	scope "github.com/lobis/iaxolab-scope"
	"github.com/lobis/iaxolab-scope/internal/wire"
)

// DefaultBaudRate is the rate Siglent instruments ship with.
const DefaultBaudRate = 115200

// DefaultTimeout bounds each exchange; deep-memory blocks take a while at
// serial speeds.
const DefaultTimeout = 30 * time.Second

// errReadTimeout is reported by the poll reader once the operation deadline passes.
var errReadTimeout = errors.New("serial read timeout")

// Port is the subset of serial.Port the transport uses.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
	Drain() error
}

// Option configures a Transport
type Option func(*config)

type config struct {
	baudRate int
	timeout  time.Duration
}

// WithBaudRate sets the line rate (8N1 framing is fixed).
func WithBaudRate(baud int) Option {
	return func(c *config) {
		c.baudRate = baud
	}
}

// WithTimeout sets the per-exchange timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *config) {
		c.timeout = timeout
	}
}

// Transport implements the scope.Transport interface for serial links.
type Transport struct {
	port     Port
	opCtx    context.Context //nolint:containedctx // set per exchange under mu
	deadline time.Time
	reader   *bufio.Reader
	trace    *scope.TraceBuffer
	portName string
	timeout  time.Duration
	mu       sync.Mutex
	closed   bool
}

// isWindows returns true if running on Windows
func isWindows() bool {
	return runtime.GOOS == "windows"
}

// pollInterval returns how long a single port read may block. Windows
// drivers need a longer interval to deliver data reliably.
func pollInterval() time.Duration {
	if isWindows() {
		return 100 * time.Millisecond
	}
	return 50 * time.Millisecond
}

// windowsPostWriteDelay adds Windows-specific delay after write operations
func windowsPostWriteDelay() {
	if isWindows() {
		time.Sleep(15 * time.Millisecond)
	}
}

// New opens portName at 8N1 and returns a transport.
func New(portName string, opts ...Option) (*Transport, error) {
	cfg := config{baudRate: DefaultBaudRate, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}

	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: cfg.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}

	t, err := NewWithPort(port, portName, opts...)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	return t, nil
}

// NewWithPort wraps an already opened port.
func NewWithPort(port Port, portName string, opts ...Option) (*Transport, error) {
	cfg := config{baudRate: DefaultBaudRate, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.timeout <= 0 {
		return nil, fmt.Errorf("%w: timeout must be positive", scope.ErrInvalidParameter)
	}

	if err := port.SetReadTimeout(pollInterval()); err != nil {
		return nil, fmt.Errorf("failed to set serial read timeout: %w", err)
	}

	t := &Transport{
		port:     port,
		portName: portName,
		timeout:  cfg.timeout,
		trace:    scope.NewTraceBuffer(string(scope.TransportSerial), portName, 16),
	}
	t.reader = bufio.NewReaderSize(pollReader{t}, 64*1024)
	return t, nil
}

// ListPorts returns the serial ports present on the system.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}

// pollReader turns the port's zero-byte timeout reads into a blocking read
// bounded by the current operation's deadline and context.
type pollReader struct {
	t *Transport
}

func (r pollReader) Read(p []byte) (int, error) {
	for {
		n, err := r.t.port.Read(p)
		if n > 0 || err != nil {
			return n, err //nolint:wrapcheck // classified by the caller
		}
		if r.t.opCtx != nil {
			if err := r.t.opCtx.Err(); err != nil {
				return 0, err //nolint:wrapcheck // classified by the caller
			}
		}
		if time.Now().After(r.t.deadline) {
			return 0, errReadTimeout
		}
	}
}

// begin arms the deadline for one exchange. Must hold mu.
func (t *Transport) begin(ctx context.Context) error {
	if t.closed || t.port == nil {
		return scope.NewTransportClosedError("serial", t.portName)
	}
	if err := ctx.Err(); err != nil {
		return err //nolint:wrapcheck // context errors are returned as-is
	}
	t.opCtx = ctx
	t.deadline = time.Now().Add(t.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(t.deadline) {
		t.deadline = d
	}
	return nil
}

// Write sends cmd followed by the newline terminator.
func (t *Transport) Write(ctx context.Context, cmd string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.begin(ctx); err != nil {
		return err
	}
	return t.write(cmd)
}

func (t *Transport) write(cmd string) error {
	data := []byte(strings.TrimRight(cmd, "\r\n") + "\n")
	t.trace.RecordTX(data, "")

	n, err := t.port.Write(data)
	if err != nil {
		return t.trace.WrapError(scope.NewTransportWriteError("Write", t.portName, err))
	}
	if n != len(data) {
		return t.trace.WrapError(scope.NewTransportWriteError("Write", t.portName, io.ErrShortWrite))
	}
	if err := t.drainWithRetry("write"); err != nil {
		return t.trace.WrapError(scope.NewTransportWriteError("Write", t.portName, err))
	}
	windowsPostWriteDelay()
	return nil
}

// ReadRaw reads exactly one response message, block or text line.
func (t *Transport) ReadRaw(ctx context.Context) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.begin(ctx); err != nil {
		return nil, err
	}
	return t.read("ReadRaw")
}

func (t *Transport) read(op string) ([]byte, error) {
	msg, err := wire.ReadResponse(t.reader)
	if err != nil {
		// Whatever was buffered belongs to a message we can no longer frame.
		t.reader.Reset(pollReader{t})
		return nil, t.classify(op, msg, err)
	}
	t.trace.RecordRX(msg, "")
	scope.Debugf("serial %s: received %d bytes", t.portName, len(msg))
	return msg, nil
}

func (t *Transport) classify(op string, partial []byte, err error) error {
	switch {
	case errors.Is(err, errReadTimeout):
		t.trace.RecordTimeout(fmt.Sprintf("%d bytes before timeout", len(partial)))
		return t.trace.WrapError(scope.NewTimeoutError(op, t.portName))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		t.trace.RecordTimeout(err.Error())
		return t.trace.WrapError(err)
	case errors.Is(err, wire.ErrMalformedBlock):
		t.trace.RecordRX(partial, "malformed")
		return t.trace.WrapError(err)
	default:
		t.trace.RecordRX(partial, "read error")
		return t.trace.WrapError(scope.NewTransportReadError(op, t.portName, err))
	}
}

// Query sends cmd and returns its textual reply without the terminator.
func (t *Transport) Query(ctx context.Context, cmd string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.begin(ctx); err != nil {
		return "", err
	}
	if err := t.write(cmd); err != nil {
		return "", err
	}
	msg, err := t.read("Query")
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

// Close closes the transport connection
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed || t.port == nil {
		return nil
	}
	t.closed = true
	if err := t.port.Close(); err != nil {
		return fmt.Errorf("serial close failed: %w", err)
	}
	return nil
}

// IsConnected returns true if the transport is connected
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port != nil && !t.closed
}

// Type returns the transport type
func (*Transport) Type() scope.TransportType {
	return scope.TransportSerial
}

// isInterruptedSystemCall checks if an error is caused by an interrupted system call
func isInterruptedSystemCall(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "interrupted system call") ||
		strings.Contains(errStr, "eintr")
}

// drainWithRetry performs port drain with retry logic for interrupted system calls
func (t *Transport) drainWithRetry(operation string) error {
	const maxRetries = 3
	baseDelay := 2 * time.Millisecond

	for attempt := range maxRetries {
		err := t.port.Drain()
		if err == nil {
			return nil
		}

		if isInterruptedSystemCall(err) && attempt < maxRetries-1 {
			time.Sleep(baseDelay * time.Duration(1<<attempt))
			continue
		}

		return fmt.Errorf("serial %s drain failed: %w", operation, err)
	}

	return fmt.Errorf("serial %s drain failed after %d retries", operation, maxRetries)
}

var _ scope.Transport = (*Transport)(nil)

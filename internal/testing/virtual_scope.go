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

// Package testing provides test utilities including a wire-level instrument
// simulator.
//
// The VirtualScope type implements io.ReadWriter and answers the SCPI
// waveform command subset of a Siglent-style oscilloscope: it keeps the
// server-side cursor (source, sequence index, start offset, point window,
// transfer width) that the frame reader drives, and serves preamble and data
// queries as IEEE 488.2 definite-length blocks.
package testing

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/lobis/iaxolab-scope/internal/syncutil"
	"github.com/lobis/iaxolab-scope/internal/wire"
	"github.com/lobis/iaxolab-scope/pkg/preamble"
)

// Transfer widths accepted by :WAV:WIDT.
const (
	WidthByte = "BYTE"
	WidthWord = "WORD"
)

// DefaultIdentity is the *IDN? reply of a new VirtualScope.
const DefaultIdentity = "Siglent Technologies,SDS2104X Plus,SDS2PSIM000001,1.5.2R3"

// FaultKind selects how an injected fault corrupts a reply.
type FaultKind int

const (
	// FaultDrop suppresses the reply entirely (the client times out)
	FaultDrop FaultKind = iota
	// FaultTruncate sends a block whose payload is shorter than declared
	FaultTruncate
	// FaultNoMarker sends the payload without its block header
	FaultNoMarker
)

// Fault corrupts the reply to the Nth (0-based) occurrence of Command.
type Fault struct {
	Command    string
	Occurrence int
	Kind       FaultKind
}

// SimFrame is one captured sequence frame held by the simulator.
type SimFrame struct {
	Preamble *preamble.Preamble
	// Codes are the signed ADC codes of each point
	Codes []int16
}

// VirtualScope simulates an oscilloscope at the SCPI message level.
type VirtualScope struct {
	layout     *preamble.Layout
	frames     map[int]*SimFrame
	seen       map[string]int
	idn        string
	width      string
	prefix     []byte
	faults     []Fault
	commandLog []string
	inbuf      []byte
	out        bytes.Buffer
	source     int
	sequence   int
	start      int
	points     int
	maxPoints  int
	mu         syncutil.Mutex
	echo       bool
}

// NewVirtualScope creates a simulator with no frames, channel C1 selected,
// BYTE transfers and no per-transfer point limit.
func NewVirtualScope() *VirtualScope {
	return &VirtualScope{
		layout:   preamble.DefaultLayout(),
		frames:   make(map[int]*SimFrame),
		seen:     make(map[string]int),
		idn:      DefaultIdentity,
		width:    WidthByte,
		source:   1,
		sequence: 1,
	}
}

// SetFrame stores frame n (1-based) of the sequence.
func (v *VirtualScope) SetFrame(n int, frame *SimFrame) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.frames[n] = frame
}

// SetMaxPoints sets the per-transfer point limit reported by :WAV:MAXP?.
func (v *VirtualScope) SetMaxPoints(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.maxPoints = n
}

// SetWidth sets the current transfer width.
func (v *VirtualScope) SetWidth(w string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.width = w
}

// SetLayout changes the preamble layout used to encode :WAV:PRE? replies.
func (v *VirtualScope) SetLayout(l *preamble.Layout) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.layout = l
}

// SetResponsePrefix makes every block reply start with junk bytes, the way
// some firmware echoes the command header before the '#'.
func (v *VirtualScope) SetResponsePrefix(prefix []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.prefix = append([]byte(nil), prefix...)
}

// SetEchoHeaders makes query replies carry the command header ("MAXP 1.00E+03").
func (v *VirtualScope) SetEchoHeaders(echo bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.echo = echo
}

// InjectFault registers a reply corruption.
func (v *VirtualScope) InjectFault(f Fault) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.faults = append(v.faults, f)
}

// Source returns the selected channel number.
func (v *VirtualScope) Source() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.source
}

// Width returns the current transfer width.
func (v *VirtualScope) Width() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.width
}

// CommandLog returns every command received, in order.
func (v *VirtualScope) CommandLog() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]string, len(v.commandLog))
	copy(out, v.commandLog)
	return out
}

// CommandCount returns how many commands with the given head were received.
func (v *VirtualScope) CommandCount(head string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.seen[head]
}

// Handle processes one command and returns the reply, or nil when the
// command produces none.
func (v *VirtualScope) Handle(cmd string) []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.handleLocked(strings.TrimSpace(cmd))
}

func (v *VirtualScope) handleLocked(cmd string) []byte {
	head, arg, _ := strings.Cut(cmd, " ")
	head = strings.ToUpper(head)
	occurrence := v.seen[head]
	v.seen[head]++
	v.commandLog = append(v.commandLog, cmd)

	reply := v.dispatch(head, strings.TrimSpace(arg))
	if reply == nil {
		return nil
	}
	return v.applyFault(head, occurrence, reply)
}

func (v *VirtualScope) dispatch(head, arg string) []byte {
	switch head {
	case "*IDN?":
		return line(v.idn)
	case ":WAV:SOUR":
		if ch, err := parseChannel(arg); err == nil {
			v.source = ch
		}
	case ":WAV:SOUR?":
		return v.reply("SOUR", fmt.Sprintf("C%d", v.source))
	case ":WAV:STAR":
		v.start = atoiOr(arg, v.start)
	case ":WAV:POIN":
		v.points = atoiOr(arg, v.points)
	case ":WAV:SEQ":
		frame, _, _ := strings.Cut(arg, ",")
		v.sequence = atoiOr(frame, v.sequence)
	case ":WAV:WIDT":
		if w := strings.ToUpper(arg); w == WidthByte || w == WidthWord {
			v.width = w
		}
	case ":WAV:WIDT?":
		return v.reply("WIDT", v.width)
	case ":WAV:MAXP?":
		return v.reply("MAXP", strconv.FormatFloat(float64(v.maxPoints), 'E', 2, 64))
	case ":WAV:PRE?":
		frame, ok := v.frames[v.sequence]
		if !ok {
			return nil
		}
		return v.block(v.layout.Encode(frame.Preamble))
	case ":WAV:DATA?":
		frame, ok := v.frames[v.sequence]
		if !ok {
			return nil
		}
		return v.block(v.window(frame))
	}
	return nil
}

// window encodes the points selected by the current start offset, point
// window and transfer limit in the current transfer width.
func (v *VirtualScope) window(frame *SimFrame) []byte {
	total := len(frame.Codes)
	start := min(max(v.start, 0), total)
	n := total - start
	if v.points > 0 && v.points < n {
		n = v.points
	}
	if v.maxPoints > 0 && n > v.maxPoints {
		n = v.maxPoints
	}

	wide := frame.Preamble.ADCBits > 8
	bigEndian := frame.Preamble.DataOrder == 1
	var out []byte
	for _, c := range frame.Codes[start : start+n] {
		switch {
		case v.width == WidthWord && bigEndian:
			out = append(out, byte(uint16(c)>>8), byte(c))
		case v.width == WidthWord:
			out = append(out, byte(c), byte(uint16(c)>>8))
		case wide:
			out = append(out, byte(uint16(c)>>8))
		default:
			out = append(out, byte(int8(c)))
		}
	}
	return out
}

func (v *VirtualScope) reply(header, value string) []byte {
	if v.echo {
		return line(header + " " + value)
	}
	return line(value)
}

func (v *VirtualScope) block(payload []byte) []byte {
	out := make([]byte, 0, len(v.prefix)+len(payload)+16)
	out = append(out, v.prefix...)
	return append(out, wire.BuildBlock(payload)...)
}

func (v *VirtualScope) applyFault(head string, occurrence int, reply []byte) []byte {
	for _, f := range v.faults {
		if strings.ToUpper(f.Command) != head || f.Occurrence != occurrence {
			continue
		}
		switch f.Kind {
		case FaultDrop:
			return nil
		case FaultTruncate:
			if len(reply) > 2 {
				return reply[:len(reply)/2]
			}
		case FaultNoMarker:
			if payload, err := wire.ExtractBlock(reply); err == nil {
				return append(append([]byte(nil), payload...), '\n')
			}
		}
	}
	return reply
}

// Write implements io.Writer. Complete newline-terminated commands are
// processed immediately and their replies queued for Read.
func (v *VirtualScope) Write(p []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.inbuf = append(v.inbuf, p...)
	for {
		idx := bytes.IndexByte(v.inbuf, '\n')
		if idx < 0 {
			break
		}
		cmd := strings.TrimSpace(string(v.inbuf[:idx]))
		v.inbuf = v.inbuf[idx+1:]
		if cmd == "" {
			continue
		}
		if reply := v.handleLocked(cmd); reply != nil {
			_, _ = v.out.Write(reply)
		}
	}
	return len(p), nil
}

// Read implements io.Reader. With nothing queued it returns 0, nil, like a
// serial port whose read timeout expired.
func (v *VirtualScope) Read(p []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.out.Len() == 0 {
		return 0, nil
	}
	n, err := v.out.Read(p)
	if err != nil {
		return n, fmt.Errorf("virtual scope read: %w", err)
	}
	return n, nil
}

// Serve answers newline-terminated commands read from conn until it is
// closed. It is meant to run in its own goroutine against a socket.
func (v *VirtualScope) Serve(conn io.ReadWriter) error {
	r := bufio.NewReader(conn)
	for {
		cmd, err := r.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("virtual scope serve: %w", err)
		}
		cmd = strings.TrimSpace(cmd)
		if cmd == "" {
			continue
		}
		if reply := v.Handle(cmd); reply != nil {
			if _, err := conn.Write(reply); err != nil {
				return fmt.Errorf("virtual scope serve: %w", err)
			}
		}
	}
}

func line(s string) []byte {
	return []byte(s + "\n")
}

func atoiOr(s string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fallback
	}
	return n
}

func parseChannel(arg string) (int, error) {
	arg = strings.ToUpper(strings.TrimSpace(arg))
	if !strings.HasPrefix(arg, "C") {
		return 0, fmt.Errorf("bad channel %q", arg)
	}
	ch, err := strconv.Atoi(arg[1:])
	if err != nil {
		return 0, fmt.Errorf("bad channel %q: %w", arg, err)
	}
	return ch, nil
}

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
	"bufio"
	"context"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lobis/iaxolab-scope/internal/wire"
	"github.com/lobis/iaxolab-scope/pkg/preamble"
)

func TestVirtualScope_Queries(t *testing.T) {
	t.Parallel()

	sim := NewVirtualScope()
	sim.SetMaxPoints(12_500_000)

	tests := []struct {
		cmd  string
		want string
	}{
		{cmd: "*IDN?", want: DefaultIdentity + "\n"},
		{cmd: ":WAV:MAXP?", want: "1.25E+07\n"},
		{cmd: ":WAV:WIDT?", want: "BYTE\n"},
		{cmd: ":WAV:SOUR?", want: "C1\n"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, string(sim.Handle(tt.cmd)), tt.cmd)
	}

	sim.SetEchoHeaders(true)
	assert.Equal(t, "MAXP 1.25E+07\n", string(sim.Handle(":WAV:MAXP?")))

	assert.Nil(t, sim.Handle(":WAV:SOUR C3"))
	assert.Equal(t, 3, sim.Source())
	assert.Nil(t, sim.Handle(":WAV:WIDT WORD"))
	assert.Equal(t, WidthWord, sim.Width())
	assert.Nil(t, sim.Handle(":BOGUS"))
	assert.Equal(t, 2, sim.CommandCount(":WAV:MAXP?"))
}

func TestVirtualScope_PreambleRoundTrip(t *testing.T) {
	t.Parallel()

	sim := NewVirtualScope()
	frame := RampFrame(DefaultFrameSpec(100), 0)
	sim.SetFrame(1, frame)

	payload, err := wire.ExtractBlock(sim.Handle(":WAV:PRE?"))
	require.NoError(t, err)
	require.Len(t, payload, preamble.Size)

	p, err := preamble.Parse(payload)
	require.NoError(t, err)
	assert.Equal(t, int32(100), p.PointsPerFrame)
	assert.InDelta(t, 1e-6, p.TimeDiv, 1e-18)

	assert.Nil(t, sim.Handle(":WAV:SEQ 2,0"))
	assert.Nil(t, sim.Handle(":WAV:PRE?"), "missing frame produces no reply")
}

func TestVirtualScope_DataWindow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		commands  []string
		maxPoints int
		wantStart int
		wantLen   int
	}{
		{name: "everything", wantStart: 0, wantLen: 10},
		{name: "limited by transfer", maxPoints: 4, wantStart: 0, wantLen: 4},
		{name: "second window", maxPoints: 4, commands: []string{":WAV:STAR 4"}, wantStart: 4, wantLen: 4},
		{name: "last partial window", maxPoints: 4, commands: []string{":WAV:STAR 8"}, wantStart: 8, wantLen: 2},
		{name: "point window", commands: []string{":WAV:POIN 3", ":WAV:STAR 5"}, wantStart: 5, wantLen: 3},
		{name: "start past end", commands: []string{":WAV:STAR 20"}, wantStart: 10, wantLen: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sim := NewVirtualScope()
			frame := RampFrame(DefaultFrameSpec(10), 0)
			sim.SetFrame(1, frame)
			sim.SetMaxPoints(tt.maxPoints)
			for _, c := range tt.commands {
				sim.Handle(c)
			}

			payload, err := wire.ExtractBlock(sim.Handle(":WAV:DATA?"))
			require.NoError(t, err)
			require.Len(t, payload, tt.wantLen)
			for i, b := range payload {
				assert.Equal(t, byte(int8(frame.Codes[tt.wantStart+i])), b)
			}
		})
	}
}

func TestVirtualScope_WordEncoding(t *testing.T) {
	t.Parallel()

	spec := DefaultFrameSpec(2)
	spec.ADCBits = 12
	frame := NewFrame(spec, func(i int) int16 { return []int16{0x0123, -2}[i] })

	sim := NewVirtualScope()
	sim.SetFrame(1, frame)

	payload, err := wire.ExtractBlock(sim.Handle(":WAV:DATA?"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0xFF}, payload, "BYTE mode sends the high byte of wide samples")

	sim.Handle(":WAV:WIDT WORD")
	payload, err = wire.ExtractBlock(sim.Handle(":WAV:DATA?"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x23, 0x01, 0xFE, 0xFF}, payload)

	frame.Preamble.DataOrder = 1
	payload, err = wire.ExtractBlock(sim.Handle(":WAV:DATA?"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x23, 0xFF, 0xFE}, payload)
}

func TestVirtualScope_Faults(t *testing.T) {
	t.Parallel()

	sim := NewVirtualScope()
	sim.SetFrame(1, RampFrame(DefaultFrameSpec(10), 0))
	sim.SetResponsePrefix([]byte("DAT2,"))
	sim.InjectFault(Fault{Command: ":WAV:DATA?", Occurrence: 1, Kind: FaultTruncate})
	sim.InjectFault(Fault{Command: ":WAV:DATA?", Occurrence: 2, Kind: FaultDrop})
	sim.InjectFault(Fault{Command: ":WAV:DATA?", Occurrence: 3, Kind: FaultNoMarker})

	reply := sim.Handle(":WAV:DATA?")
	assert.True(t, strings.HasPrefix(string(reply), "DAT2,#"))
	_, err := wire.ExtractBlock(reply)
	require.NoError(t, err)

	_, err = wire.ExtractBlock(sim.Handle(":WAV:DATA?"))
	require.ErrorIs(t, err, wire.ErrMalformedBlock)

	assert.Nil(t, sim.Handle(":WAV:DATA?"))

	_, err = wire.ExtractBlock(sim.Handle(":WAV:DATA?"))
	require.ErrorIs(t, err, wire.ErrMalformedBlock)

	_, err = wire.ExtractBlock(sim.Handle(":WAV:DATA?"))
	require.NoError(t, err, "faults apply to a single occurrence")
}

func TestVirtualScope_StreamThroughJitter(t *testing.T) {
	t.Parallel()

	sim := NewVirtualScope()
	frame := RampFrame(DefaultFrameSpec(300), 7)
	sim.SetFrame(1, frame)

	conn := NewJitteryConnection(sim, JitterConfig{
		FragmentReads:     true,
		FragmentMinBytes:  1,
		USBBoundaryStress: true,
		Seed:              42,
	})

	_, err := conn.Write([]byte("*IDN?\n:WAV:DATA?\n"))
	require.NoError(t, err)

	r := bufio.NewReader(readUntilData{conn})
	idn, err := wire.ReadResponse(r)
	require.NoError(t, err)
	assert.Equal(t, DefaultIdentity+"\n", string(idn))

	block, err := wire.ReadResponse(r)
	require.NoError(t, err)
	payload, err := wire.ExtractBlock(block)
	require.NoError(t, err)
	assert.Len(t, payload, 300)
}

// readUntilData retries empty reads so bufio sees a blocking stream.
type readUntilData struct{ r *JitteryConnection }

func (u readUntilData) Read(p []byte) (int, error) {
	for range 1000 {
		n, err := u.r.Read(p)
		if n > 0 || err != nil {
			return n, err
		}
	}
	return 0, nil
}

func TestVirtualScope_ServeOverPipe(t *testing.T) {
	t.Parallel()

	sim := NewVirtualScope()
	sim.SetFrame(1, RampFrame(DefaultFrameSpec(16), 0))

	client, server := net.Pipe()
	done := make(chan error, 1)
	go func() { done <- sim.Serve(server) }()

	_, err := client.Write([]byte(":WAV:STAR 0\n:WAV:DATA?\n"))
	require.NoError(t, err)

	msg, err := wire.ReadResponse(bufio.NewReader(client))
	require.NoError(t, err)
	payload, err := wire.ExtractBlock(msg)
	require.NoError(t, err)
	assert.Len(t, payload, 16)

	require.NoError(t, client.Close())
	require.NoError(t, <-done)
}

func TestSimulatorTransport(t *testing.T) {
	t.Parallel()

	sim := NewVirtualScope()
	tr := NewSimulatorTransport(sim)
	ctx := context.Background()

	idn, err := tr.Query(ctx, "*IDN?")
	require.NoError(t, err)
	assert.Equal(t, DefaultIdentity, idn)

	require.NoError(t, tr.Write(ctx, ":WAV:STAR 0"))
	_, err = tr.ReadRaw(ctx)
	require.ErrorIs(t, err, ErrNoResponse)

	assert.Equal(t, []string{"*IDN?", ":WAV:STAR 0"}, tr.Commands())
	assert.Equal(t, TransportMock, tr.Type())
	assert.Same(t, sim, tr.GetSimulator())

	tr.ClearCommandLog()
	assert.Empty(t, tr.Commands())

	require.NoError(t, tr.Close())
	assert.False(t, tr.IsConnected())
	require.ErrorIs(t, tr.Write(ctx, "*IDN?"), ErrClosed)
}

func TestSineFrame_Voltage(t *testing.T) {
	t.Parallel()

	spec := DefaultFrameSpec(8)
	spec.VOffset = 0.5
	frame := SineFrame(spec, 1, 50)

	assert.Equal(t, int16(0), frame.Codes[0])
	assert.Equal(t, int16(50), frame.Codes[2])
	assert.InDelta(t, 50.0/25-0.5, frame.Voltage(2), 1e-12)

	sim := NewVirtualScope()
	other := RampFrame(spec, 0)
	sim.LoadSequence(frame, other)
	assert.Equal(t, int32(2), other.Preamble.FramesRead)
	assert.Equal(t, int32(2), frame.Preamble.FramesTotal)
}

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

package preamble

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePreamble(t *testing.T) *Preamble {
	t.Helper()
	p := &Preamble{
		DataWidth:      1,
		DataOrder:      0,
		DataBytes:      2000,
		PointCount:     1000,
		FirstPoint:     0,
		StartPoint:     1,
		PointsPerFrame: 1000,
		FramesRead:     1,
		FramesTotal:    5,
		VScale:         0.5,
		VOffset:        -0.25,
		CodePerDiv:     7680,
		ADCBits:        12,
		SerialNumber:   42,
		SampleInterval: 1e-6,
		TriggerDelay:   -2.5e-4,
		TimeDivIndex:   21,
		Probe:          10,
	}
	require.NoError(t, p.derive())
	return p
}

func TestParse_RoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		layout *Layout
		name   string
	}{
		{name: "default_little_endian", layout: DefaultLayout()},
		{
			name: "big_endian",
			layout: func() *Layout {
				l := DefaultLayout()
				l.Order = binary.BigEndian
				return l
			}(),
		},
		{
			name: "points_as_float",
			layout: func() *Layout {
				l := DefaultLayout()
				l.PointsPerFrame.Kind = Float32
				l.PointsPerFrame.Offset = 0x78
				return l
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			want := samplePreamble(t)
			buf := tt.layout.Encode(want)
			assert.Len(t, buf, Size)

			got, err := tt.layout.Parse(buf)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestParse_DefaultHelpers(t *testing.T) {
	t.Parallel()

	want := samplePreamble(t)
	got, err := Parse(Encode(want))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestParse_ProbeCompensation(t *testing.T) {
	t.Parallel()

	p := samplePreamble(t)
	got, err := Parse(Encode(p))
	require.NoError(t, err)

	assert.InDelta(t, 5.0, got.VDiv, 1e-9)
	assert.InDelta(t, -2.5, got.Offset, 1e-9)
	assert.InDelta(t, 1e-3, got.TimeDiv, 1e-15)
}

func TestParse_FixedOffsets(t *testing.T) {
	t.Parallel()

	buf := make([]byte, Size)
	binary.LittleEndian.PutUint16(buf[0x20:], 1)
	binary.LittleEndian.PutUint32(buf[0x74:], 12500)
	binary.LittleEndian.PutUint32(buf[0x9c:], math.Float32bits(2))
	binary.LittleEndian.PutUint32(buf[0xa4:], math.Float32bits(25))
	binary.LittleEndian.PutUint16(buf[0xac:], 8)
	binary.LittleEndian.PutUint32(buf[0xb0:], math.Float32bits(4e-9))
	binary.LittleEndian.PutUint64(buf[0xb4:], math.Float64bits(-1e-6))
	binary.LittleEndian.PutUint16(buf[0x144:], 39)
	binary.LittleEndian.PutUint32(buf[0x148:], math.Float32bits(1))

	p, err := Parse(buf)
	require.NoError(t, err)
	assert.Equal(t, int16(1), p.DataWidth)
	assert.Equal(t, int32(12500), p.PointsPerFrame)
	assert.Equal(t, int32(12500), p.PointCount)
	assert.Equal(t, float32(25), p.CodePerDiv)
	assert.Equal(t, int16(8), p.ADCBits)
	assert.Equal(t, 1, p.SampleBytes())
	assert.InDelta(t, -1e-6, p.TriggerDelay, 0)
	assert.InDelta(t, 1000.0, p.TimeDiv, 0)
	assert.InDelta(t, 2.0, p.VDiv, 0)
}

func TestParse_TooShort(t *testing.T) {
	t.Parallel()

	minLen := DefaultLayout().MinLength()
	assert.Equal(t, 0x14c, minLen)

	for _, n := range []int{0, 1, 0x20, minLen - 1} {
		_, err := Parse(make([]byte, n))
		require.ErrorIs(t, err, ErrTooShort, "length %d", n)
	}

	// Exactly MinLength is enough.
	buf := make([]byte, minLen)
	_, err := Parse(buf)
	require.NoError(t, err)
}

func TestParse_InvalidTimeDivisionIndex(t *testing.T) {
	t.Parallel()

	for _, idx := range []int16{-1, 40, 41, 1000, math.MaxInt16, math.MinInt16} {
		buf := make([]byte, Size)
		binary.LittleEndian.PutUint16(buf[0x144:], uint16(idx))

		_, err := Parse(buf)
		require.ErrorIs(t, err, ErrInvalidTimeDivisionIndex, "index %d", idx)
	}
}

func TestLayout_Validate(t *testing.T) {
	t.Parallel()

	l := DefaultLayout()
	require.NoError(t, l.Validate())

	l.Probe.Offset = -4
	require.Error(t, l.Validate())

	l = DefaultLayout()
	l.VScale.Kind = Kind(9)
	_, err := l.Parse(make([]byte, Size))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "v_scale")
}

func TestLayout_NilOrderIsLittleEndian(t *testing.T) {
	t.Parallel()

	l := DefaultLayout()
	l.Order = nil
	p := samplePreamble(t)

	got, err := DefaultLayout().Parse(l.Encode(p))
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestKind_Width(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 2, Int16.Width())
	assert.Equal(t, 4, Int32.Width())
	assert.Equal(t, 4, Float32.Width())
	assert.Equal(t, 8, Float64.Width())
	assert.Equal(t, 0, Kind(-1).Width())
	assert.Equal(t, "float64", Float64.String())
}

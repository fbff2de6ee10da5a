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

package export

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	scope "github.com/lobis/iaxolab-scope"
)

func testFrame(n, points int) *scope.Frame {
	f := &scope.Frame{
		Number:  n,
		Time:    make([]float64, points),
		Voltage: make([]float64, points),
	}
	for i := range points {
		f.Time[i] = -5e-6 + float64(i)*1e-9
		f.Voltage[i] = 0.8*math.Sin(float64(i)/7) - 0.125
	}
	return f
}

func TestParseCompression(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Compression
		wantErr bool
	}{
		{in: "", want: CompressionNone},
		{in: "none", want: CompressionNone},
		{in: "ZSTD", want: CompressionZstd},
		{in: " lz4 ", want: CompressionLZ4},
		{in: "gzip", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseCompression(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnknownCompression)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompressionFromPath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, CompressionZstd, CompressionFromPath("run1.csv.zst"))
	assert.Equal(t, CompressionZstd, CompressionFromPath("RUN1.ZSTD"))
	assert.Equal(t, CompressionLZ4, CompressionFromPath("/data/run1.csv.lz4"))
	assert.Equal(t, CompressionNone, CompressionFromPath("run1.csv"))
	assert.Equal(t, CompressionNone, CompressionFromPath(""))
}

func TestWriter_RoundTrip(t *testing.T) {
	t.Parallel()

	for _, c := range []Compression{CompressionNone, CompressionZstd, CompressionLZ4} {
		t.Run(string(c), func(t *testing.T) {
			t.Parallel()

			frames := []*scope.Frame{testFrame(1, 500), testFrame(2, 300)}

			var buf bytes.Buffer
			w, err := NewWriter(&buf, c)
			require.NoError(t, err)
			for _, f := range frames {
				require.NoError(t, w.WriteFrame(f))
			}
			require.NoError(t, w.Close())
			assert.Equal(t, 800, w.Rows())

			if c != CompressionNone {
				assert.False(t, strings.HasPrefix(buf.String(), "frame,"), "output is compressed")
			}

			rows, err := ReadAll(bytes.NewReader(buf.Bytes()), c)
			require.NoError(t, err)
			require.Len(t, rows, 800)

			k := 0
			for _, f := range frames {
				for i := range f.Len() {
					require.Equal(t, f.Number, rows[k].Frame)
					require.Equal(t, i, rows[k].Index)
					require.Equal(t, f.Time[i], rows[k].Time)
					require.Equal(t, f.Voltage[i], rows[k].Voltage)
					k++
				}
			}
		})
	}
}

func TestWriter_PlainText(t *testing.T) {
	t.Parallel()

	f := &scope.Frame{Number: 3, Time: []float64{-1e-6, 0}, Voltage: []float64{0.5, -0.25}}

	var buf bytes.Buffer
	w, err := NewWriter(&buf, CompressionNone)
	require.NoError(t, err)
	require.NoError(t, w.WriteFrame(f))
	require.NoError(t, w.Close())

	assert.Equal(t, "frame,index,time,voltage\n3,0,-1e-06,0.5\n3,1,0,-0.25\n", buf.String())
}

func TestNewWriter_UnknownCompression(t *testing.T) {
	t.Parallel()

	_, err := NewWriter(&bytes.Buffer{}, Compression("brotli"))
	require.ErrorIs(t, err, ErrUnknownCompression)

	_, err = ReadAll(strings.NewReader(""), Compression("brotli"))
	require.ErrorIs(t, err, ErrUnknownCompression)
}

func TestReadAll_Malformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "wrong header", input: "a,b,c,d\n"},
		{name: "bad number", input: "frame,index,time,voltage\n1,x,0,0\n"},
		{name: "short record", input: "frame,index,time,voltage\n1,0,0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ReadAll(strings.NewReader(tt.input), CompressionNone)
			require.Error(t, err)
		})
	}
}

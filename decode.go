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
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/lobis/iaxolab-scope/pkg/preamble"
)

// HorizontalDivisions is the number of time divisions across the screen.
const HorizontalDivisions = 10

// Frame is one decoded waveform frame.
type Frame struct {
	Preamble *preamble.Preamble
	Time     []float64
	Voltage  []float64
	// Number is the 1-based sequence frame index (0 when decoded standalone)
	Number int
	// Checksum is the xxhash64 of the raw sample bytes
	Checksum uint64
}

// Len returns the number of samples in the frame
func (f *Frame) Len() int {
	return len(f.Voltage)
}

// Decode converts raw sample bytes to time/voltage pairs using p's scaling.
// Samples are signed 8-bit, or signed 16-bit when the ADC has more than 8
// bits; 16-bit byte order follows DataOrder (1 = MSB first).
func Decode(raw []byte, p *preamble.Preamble) (*Frame, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil preamble", ErrInvalidParameter)
	}
	if p.ADCBits > 16 {
		return nil, fmt.Errorf("%w: %d-bit samples", ErrUnsupportedSampleWidth, p.ADCBits)
	}

	width := p.SampleBytes()
	if len(raw)%width != 0 {
		return nil, fmt.Errorf("%w: %d bytes with %d-byte samples", ErrTruncatedSampleData, len(raw), width)
	}

	n := len(raw) / width
	frame := &Frame{
		Preamble: p,
		Time:     make([]float64, n),
		Voltage:  make([]float64, n),
		Checksum: xxhash.Sum64(raw),
	}

	var order binary.ByteOrder = binary.LittleEndian
	if p.DataOrder == 1 {
		order = binary.BigEndian
	}

	scale := p.VDiv / float64(p.CodePerDiv)
	t0 := -(p.TimeDiv * HorizontalDivisions / 2)
	interval := float64(p.SampleInterval)

	for i := range n {
		var code float64
		if width == 2 {
			code = float64(int16(order.Uint16(raw[2*i:])))
		} else {
			code = float64(int8(raw[i]))
		}
		frame.Voltage[i] = code*scale - p.Offset
		frame.Time[i] = t0 + float64(i)*interval + p.TriggerDelay
	}

	return frame, nil
}

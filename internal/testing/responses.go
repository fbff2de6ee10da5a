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
	"math"

	"github.com/lobis/iaxolab-scope/pkg/preamble"
)

// FrameSpec describes a synthetic capture for NewFrame.
type FrameSpec struct {
	Points       int
	ADCBits      int16
	DataOrder    int16
	TimeDivIndex int16
	VScale       float32
	VOffset      float32
	CodePerDiv   float32
	Probe        float32
	Interval     float32
	TriggerDelay float64
}

// DefaultFrameSpec returns an 8-bit, 1 us/div, 1 V/div, 1 GSa/s capture.
func DefaultFrameSpec(points int) FrameSpec {
	return FrameSpec{
		Points:       points,
		ADCBits:      8,
		TimeDivIndex: 12,
		VScale:       1,
		CodePerDiv:   25,
		Probe:        1,
		Interval:     1e-9,
	}
}

// NewFrame builds a frame whose preamble matches spec and whose codes are
// produced by code(i).
func NewFrame(spec FrameSpec, code func(i int) int16) *SimFrame {
	bytesPerPoint := int32(1)
	if spec.ADCBits > 8 {
		bytesPerPoint = 2
	}
	n := int32(spec.Points)

	codes := make([]int16, spec.Points)
	for i := range codes {
		codes[i] = code(i)
	}

	return &SimFrame{
		Preamble: &preamble.Preamble{
			DataWidth:      int16(bytesPerPoint - 1),
			DataOrder:      spec.DataOrder,
			DataBytes:      n * bytesPerPoint,
			PointCount:     n,
			PointsPerFrame: n,
			FramesRead:     1,
			FramesTotal:    1,
			VScale:         spec.VScale,
			VOffset:        spec.VOffset,
			CodePerDiv:     spec.CodePerDiv,
			ADCBits:        spec.ADCBits,
			SampleInterval: spec.Interval,
			TriggerDelay:   spec.TriggerDelay,
			TimeDivIndex:   spec.TimeDivIndex,
			Probe:          spec.Probe,
		},
		Codes: codes,
	}
}

// RampFrame returns a frame whose codes count up from offset, wrapped into
// the signed range of the ADC.
func RampFrame(spec FrameSpec, offset int) *SimFrame {
	span := 256
	if spec.ADCBits > 8 {
		span = 1 << spec.ADCBits
	}
	return NewFrame(spec, func(i int) int16 {
		return int16((i+offset)%span - span/2)
	})
}

// SineFrame returns a frame holding periods full cycles of a sine wave at
// amplitude codes.
func SineFrame(spec FrameSpec, periods int, amplitude float64) *SimFrame {
	return NewFrame(spec, func(i int) int16 {
		return int16(math.Round(amplitude * math.Sin(2*math.Pi*float64(periods)*float64(i)/float64(spec.Points))))
	})
}

// Voltage converts a code the way the sample decoder must.
func (f *SimFrame) Voltage(i int) float64 {
	p := f.Preamble
	vdiv := float64(p.VScale) * float64(p.Probe)
	offset := float64(p.VOffset) * float64(p.Probe)
	return float64(f.Codes[i])/float64(p.CodePerDiv)*vdiv - offset
}

// LoadSequence stores frames as 1..len(frames) and sets FramesTotal/FramesRead.
func (v *VirtualScope) LoadSequence(frames ...*SimFrame) {
	for i, f := range frames {
		f.Preamble.FramesTotal = int32(len(frames))
		f.Preamble.FramesRead = int32(i + 1)
		v.SetFrame(i+1, f)
	}
}

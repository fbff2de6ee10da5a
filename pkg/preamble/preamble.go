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

// Package preamble decodes the binary waveform descriptor ("preamble") that
// Siglent-family oscilloscopes return for :WAVeform:PREamble?.
//
// The descriptor is a fixed-layout header. Every field lives at a fixed byte
// offset with a fixed width, and the byte order is a property of the
// firmware family rather than of the host. A Layout makes both explicit:
//
//	p, err := preamble.Parse(block)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(p.VDiv, p.TimeDiv, p.PointsPerFrame)
package preamble

import (
	"errors"
)

// Size is the length of the descriptor block produced by the instrument.
const Size = 346

// Common errors.
var (
	ErrTooShort                 = errors.New("preamble: buffer too short")
	ErrInvalidTimeDivisionIndex = errors.New("preamble: invalid time division index")
)

// Preamble describes one waveform capture.
//
// Raw fields keep the widths used on the wire. VDiv, Offset and TimeDiv are
// derived when the preamble is parsed and are the values the sample decoder
// uses.
type Preamble struct {
	TriggerDelay float64 // seconds, signed
	VDiv         float64 // volts per division, probe compensated
	Offset       float64 // volts, probe compensated
	TimeDiv      float64 // seconds per division

	DataBytes      int32
	PointCount     int32
	FirstPoint     int32
	StartPoint     int32
	PointsPerFrame int32 // may exceed the per-transfer point limit
	FramesRead     int32
	FramesTotal    int32

	VScale         float32
	VOffset        float32
	CodePerDiv     float32
	SampleInterval float32 // seconds between samples
	Probe          float32

	DataWidth    int16 // 0 = 8-bit, 1 = 16-bit
	DataOrder    int16 // 0 = LSB first, 1 = MSB first
	ADCBits      int16
	SerialNumber int16
	TimeDivIndex int16
}

// SampleBytes returns the width in bytes of one sample code.
func (p *Preamble) SampleBytes() int {
	if p.ADCBits > 8 {
		return 2
	}
	return 1
}

// derive fills the probe-compensated and table-resolved values.
func (p *Preamble) derive() error {
	tdiv, err := TimeDivision(int(p.TimeDivIndex))
	if err != nil {
		return err
	}
	p.TimeDiv = tdiv
	// The single probe word scales both values once.
	p.VDiv = float64(p.VScale) * float64(p.Probe)
	p.Offset = float64(p.VOffset) * float64(p.Probe)
	return nil
}

// Parse decodes buf with DefaultLayout.
func Parse(buf []byte) (*Preamble, error) {
	return DefaultLayout().Parse(buf)
}

// Encode serializes p with DefaultLayout.
func Encode(p *Preamble) []byte {
	return DefaultLayout().Encode(p)
}

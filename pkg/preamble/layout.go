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
	"fmt"
	"math"
)

// Kind is the wire encoding of a single preamble field.
type Kind int

const (
	// Int16 is a signed 16-bit integer.
	Int16 Kind = iota
	// Int32 is a signed 32-bit integer.
	Int32
	// Float32 is an IEEE-754 single precision float.
	Float32
	// Float64 is an IEEE-754 double precision float.
	Float64
)

// Width returns the number of bytes a field of this kind occupies.
func (k Kind) Width() int {
	switch k {
	case Int16:
		return 2
	case Int32, Float32:
		return 4
	case Float64:
		return 8
	default:
		return 0
	}
}

func (k Kind) String() string {
	switch k {
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Field locates one value inside the descriptor.
type Field struct {
	Name   string
	Offset int
	Kind   Kind
}

// End returns the offset just past the field.
func (f Field) End() int {
	return f.Offset + f.Kind.Width()
}

// Layout is the typed description of the descriptor block: the byte order
// shared by all fields and the position and width of each one.
//
// Fields may be re-declared with a different kind (for example a firmware
// that reports PointsPerFrame as a float); values are converted on decode and
// encode.
type Layout struct {
	Order binary.ByteOrder

	DataWidth      Field
	DataOrder      Field
	DataBytes      Field
	PointCount     Field
	FirstPoint     Field
	StartPoint     Field
	PointsPerFrame Field
	FramesRead     Field
	FramesTotal    Field
	VScale         Field
	VOffset        Field
	CodePerDiv     Field
	ADCBits        Field
	SerialNumber   Field
	SampleInterval Field
	TriggerDelay   Field
	TimeDivIndex   Field
	Probe          Field
}

// DefaultLayout returns the layout used by the SDS2000X/SDS5000X/SDS7000
// firmware family. PointsPerFrame and PointCount share the same word: the
// instrument reports the points of one sequence frame there.
func DefaultLayout() *Layout {
	return &Layout{
		Order:          binary.LittleEndian,
		DataWidth:      Field{Name: "data_width", Offset: 0x20, Kind: Int16},
		DataOrder:      Field{Name: "data_order", Offset: 0x22, Kind: Int16},
		DataBytes:      Field{Name: "wave_array_1", Offset: 0x3c, Kind: Int32},
		PointCount:     Field{Name: "wave_array_count", Offset: 0x74, Kind: Int32},
		FirstPoint:     Field{Name: "first_point", Offset: 0x84, Kind: Int32},
		StartPoint:     Field{Name: "sparsing", Offset: 0x88, Kind: Int32},
		PointsPerFrame: Field{Name: "one_frame_pts", Offset: 0x74, Kind: Int32},
		FramesRead:     Field{Name: "read_frame", Offset: 0x90, Kind: Int32},
		FramesTotal:    Field{Name: "sum_frame", Offset: 0x94, Kind: Int32},
		VScale:         Field{Name: "v_scale", Offset: 0x9c, Kind: Float32},
		VOffset:        Field{Name: "v_offset", Offset: 0xa0, Kind: Float32},
		CodePerDiv:     Field{Name: "code_per_div", Offset: 0xa4, Kind: Float32},
		ADCBits:        Field{Name: "adc_bit", Offset: 0xac, Kind: Int16},
		SerialNumber:   Field{Name: "sn", Offset: 0xae, Kind: Int16},
		SampleInterval: Field{Name: "interval", Offset: 0xb0, Kind: Float32},
		TriggerDelay:   Field{Name: "delay", Offset: 0xb4, Kind: Float64},
		TimeDivIndex:   Field{Name: "tdiv", Offset: 0x144, Kind: Int16},
		Probe:          Field{Name: "probe", Offset: 0x148, Kind: Float32},
	}
}

// Fields returns every field in encode order.
func (l *Layout) Fields() []Field {
	return []Field{
		l.DataWidth, l.DataOrder, l.DataBytes, l.PointCount, l.FirstPoint,
		l.StartPoint, l.PointsPerFrame, l.FramesRead, l.FramesTotal,
		l.VScale, l.VOffset, l.CodePerDiv, l.ADCBits, l.SerialNumber,
		l.SampleInterval, l.TriggerDelay, l.TimeDivIndex, l.Probe,
	}
}

// MinLength is the shortest buffer Parse accepts.
func (l *Layout) MinLength() int {
	n := 0
	for _, f := range l.Fields() {
		if end := f.End(); end > n {
			n = end
		}
	}
	return n
}

// Validate reports fields that cannot be decoded.
func (l *Layout) Validate() error {
	for _, f := range l.Fields() {
		if f.Offset < 0 {
			return fmt.Errorf("preamble: field %s has negative offset %d", f.Name, f.Offset)
		}
		if f.Kind.Width() == 0 {
			return fmt.Errorf("preamble: field %s has unknown kind %v", f.Name, f.Kind)
		}
	}
	return nil
}

func (l *Layout) order() binary.ByteOrder {
	if l.Order == nil {
		return binary.LittleEndian
	}
	return l.Order
}

// Parse decodes a descriptor block that has already been unwrapped from its
// length-prefixed framing. The length is checked once before any field is
// read.
func (l *Layout) Parse(buf []byte) (*Preamble, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	if need := l.MinLength(); len(buf) < need {
		return nil, fmt.Errorf("%w: got %d bytes, need %d", ErrTooShort, len(buf), need)
	}

	p := &Preamble{
		DataWidth:      int16(l.readInt(buf, l.DataWidth)),
		DataOrder:      int16(l.readInt(buf, l.DataOrder)),
		DataBytes:      int32(l.readInt(buf, l.DataBytes)),
		PointCount:     int32(l.readInt(buf, l.PointCount)),
		FirstPoint:     int32(l.readInt(buf, l.FirstPoint)),
		StartPoint:     int32(l.readInt(buf, l.StartPoint)),
		PointsPerFrame: int32(l.readInt(buf, l.PointsPerFrame)),
		FramesRead:     int32(l.readInt(buf, l.FramesRead)),
		FramesTotal:    int32(l.readInt(buf, l.FramesTotal)),
		VScale:         float32(l.readFloat(buf, l.VScale)),
		VOffset:        float32(l.readFloat(buf, l.VOffset)),
		CodePerDiv:     float32(l.readFloat(buf, l.CodePerDiv)),
		ADCBits:        int16(l.readInt(buf, l.ADCBits)),
		SerialNumber:   int16(l.readInt(buf, l.SerialNumber)),
		SampleInterval: float32(l.readFloat(buf, l.SampleInterval)),
		TriggerDelay:   l.readFloat(buf, l.TriggerDelay),
		TimeDivIndex:   int16(l.readInt(buf, l.TimeDivIndex)),
		Probe:          float32(l.readFloat(buf, l.Probe)),
	}
	if err := p.derive(); err != nil {
		return nil, err
	}
	return p, nil
}

// Encode synthesizes the wire bytes for p. Fields sharing an offset are
// written in Fields order, so the later field wins.
func (l *Layout) Encode(p *Preamble) []byte {
	n := l.MinLength()
	if n < Size {
		n = Size
	}
	buf := make([]byte, n)

	l.putInt(buf, l.DataWidth, int64(p.DataWidth))
	l.putInt(buf, l.DataOrder, int64(p.DataOrder))
	l.putInt(buf, l.DataBytes, int64(p.DataBytes))
	l.putInt(buf, l.PointCount, int64(p.PointCount))
	l.putInt(buf, l.FirstPoint, int64(p.FirstPoint))
	l.putInt(buf, l.StartPoint, int64(p.StartPoint))
	l.putInt(buf, l.PointsPerFrame, int64(p.PointsPerFrame))
	l.putInt(buf, l.FramesRead, int64(p.FramesRead))
	l.putInt(buf, l.FramesTotal, int64(p.FramesTotal))
	l.putFloat(buf, l.VScale, float64(p.VScale))
	l.putFloat(buf, l.VOffset, float64(p.VOffset))
	l.putFloat(buf, l.CodePerDiv, float64(p.CodePerDiv))
	l.putInt(buf, l.ADCBits, int64(p.ADCBits))
	l.putInt(buf, l.SerialNumber, int64(p.SerialNumber))
	l.putFloat(buf, l.SampleInterval, float64(p.SampleInterval))
	l.putFloat(buf, l.TriggerDelay, p.TriggerDelay)
	l.putInt(buf, l.TimeDivIndex, int64(p.TimeDivIndex))
	l.putFloat(buf, l.Probe, float64(p.Probe))

	return buf
}

func (l *Layout) readInt(buf []byte, f Field) int64 {
	b := buf[f.Offset:f.End()]
	switch f.Kind {
	case Int16:
		return int64(int16(l.order().Uint16(b)))
	case Int32:
		return int64(int32(l.order().Uint32(b)))
	case Float32:
		return int64(math.Float32frombits(l.order().Uint32(b)))
	case Float64:
		return int64(math.Float64frombits(l.order().Uint64(b)))
	default:
		return 0
	}
}

func (l *Layout) readFloat(buf []byte, f Field) float64 {
	b := buf[f.Offset:f.End()]
	switch f.Kind {
	case Int16:
		return float64(int16(l.order().Uint16(b)))
	case Int32:
		return float64(int32(l.order().Uint32(b)))
	case Float32:
		return float64(math.Float32frombits(l.order().Uint32(b)))
	case Float64:
		return math.Float64frombits(l.order().Uint64(b))
	default:
		return 0
	}
}

//nolint:gosec // values are narrowed to the declared wire width on purpose
func (l *Layout) putInt(buf []byte, f Field, v int64) {
	b := buf[f.Offset:f.End()]
	switch f.Kind {
	case Int16:
		l.order().PutUint16(b, uint16(int16(v)))
	case Int32:
		l.order().PutUint32(b, uint32(int32(v)))
	case Float32:
		l.order().PutUint32(b, math.Float32bits(float32(v)))
	case Float64:
		l.order().PutUint64(b, math.Float64bits(float64(v)))
	}
}

//nolint:gosec // values are narrowed to the declared wire width on purpose
func (l *Layout) putFloat(buf []byte, f Field, v float64) {
	b := buf[f.Offset:f.End()]
	switch f.Kind {
	case Int16:
		l.order().PutUint16(b, uint16(int16(v)))
	case Int32:
		l.order().PutUint32(b, uint32(int32(v)))
	case Float32:
		l.order().PutUint32(b, math.Float32bits(float32(v)))
	case Float64:
		l.order().PutUint64(b, math.Float64bits(v))
	}
}

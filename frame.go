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
	"context"
	"fmt"

	"github.com/lobis/iaxolab-scope/internal/wire"
	"github.com/lobis/iaxolab-scope/pkg/preamble"
)

// RawFrame is one frame's preamble and its reassembled sample bytes.
type RawFrame struct {
	Preamble *preamble.Preamble
	// Width is the transfer width in force after the read
	Width SampleWidth
	Data  []byte
	// Number is the 1-based sequence frame index
	Number int
	// Chunks is the number of data transfers used
	Chunks int
}

// ChunkCount returns how many transfers are needed to read points samples
// when a single transfer carries at most maxPoints. Unknown or zero point
// counts and an unconstrained limit both mean a single read.
func ChunkCount(points, maxPoints int) int {
	if points <= 0 || maxPoints <= 0 {
		return 1
	}
	return (points + maxPoints - 1) / maxPoints
}

// ReadFrame reads sequence frame n and converts it to time/voltage samples.
// Capabilities, transfer and decoding all happen under one lock acquisition.
func (s *Scope) ReadFrame(ctx context.Context, n int) (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	caps, err := s.capabilities(ctx)
	if err != nil {
		return nil, err
	}
	frame, _, err := s.readFrame(ctx, n, caps)
	return frame, err
}

// ReadFrameRaw reads sequence frame n without decoding it.
func (s *Scope) ReadFrameRaw(ctx context.Context, n int, caps Capabilities) (*RawFrame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.readFrameRaw(ctx, n, caps)
}

// ReadSequence reads frames first..first+count-1 in order and stops at the
// first failure, returning the frames read so far together with the error.
func (s *Scope) ReadSequence(ctx context.Context, first, count int) ([]*Frame, error) {
	if count < 0 {
		return nil, fmt.Errorf("%w: negative frame count %d", ErrInvalidParameter, count)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	caps, err := s.capabilities(ctx)
	if err != nil {
		return nil, err
	}

	frames := make([]*Frame, 0, count)
	for n := first; n < first+count; n++ {
		frame, width, err := s.readFrame(ctx, n, caps)
		if err != nil {
			return frames, err
		}
		caps.Width = width
		frames = append(frames, frame)
	}
	return frames, nil
}

func (s *Scope) readFrame(ctx context.Context, n int, caps Capabilities) (*Frame, SampleWidth, error) {
	raw, err := s.readFrameRaw(ctx, n, caps)
	if err != nil {
		return nil, caps.Width, err
	}

	frame, err := Decode(raw.Data, raw.Preamble)
	if err != nil {
		return nil, raw.Width, fmt.Errorf("frame %d: %w", n, err)
	}
	frame.Number = n
	return frame, raw.Width, nil
}

func (s *Scope) readFrameRaw(ctx context.Context, n int, caps Capabilities) (*RawFrame, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: %d (frames are numbered from 1)", ErrInvalidFrameNumber, n)
	}

	if s.config.Source > 0 {
		if err := s.write(ctx, sourceCommand(s.config.Source)); err != nil {
			return nil, err
		}
	}

	if err := s.write(ctx, startCommand(0)); err != nil {
		return nil, err
	}
	if err := s.write(ctx, pointsCommand(0)); err != nil {
		return nil, err
	}
	if err := s.write(ctx, sequenceCommand(n)); err != nil {
		return nil, err
	}

	p, err := s.readPreamble(ctx)
	if err != nil {
		return nil, fmt.Errorf("frame %d: %w", n, err)
	}

	points := int(p.PointsPerFrame)
	window := points
	if caps.MaxPoints > 0 && points > caps.MaxPoints {
		window = caps.MaxPoints
		if err := s.write(ctx, pointsCommand(window)); err != nil {
			return nil, err
		}
	}

	width, err := s.selectWidth(ctx, p, caps.Width)
	if err != nil {
		return nil, fmt.Errorf("frame %d: %w", n, err)
	}

	chunks := ChunkCount(points, caps.MaxPoints)
	Debugf("frame %d: %d points, %d-bit, max %d per transfer, %d chunk(s)",
		n, points, p.ADCBits, caps.MaxPoints, chunks)

	data := make([]byte, 0, frameCapacity(points, p.SampleBytes()))
	for i := range chunks {
		if err := s.write(ctx, startCommand(i*window)); err != nil {
			return nil, fmt.Errorf("frame %d chunk %d/%d: %w", n, i+1, chunks, err)
		}
		payload, err := s.readBlock(ctx, cmdData)
		if err != nil {
			return nil, fmt.Errorf("frame %d chunk %d/%d: %w", n, i+1, chunks, err)
		}
		Debugf("frame %d chunk %d/%d: %d bytes", n, i+1, chunks, len(payload))
		data = append(data, payload...)
	}

	return &RawFrame{
		Number:   n,
		Preamble: p,
		Data:     data,
		Chunks:   chunks,
		Width:    width,
	}, nil
}

// maxFramePrealloc bounds the buffer sized from the preamble before any
// sample bytes arrive. Larger frames grow it as chunks are appended.
const maxFramePrealloc = 16 << 20

// frameCapacity is the initial data buffer size for a frame of points
// samples, clamped to maxFramePrealloc.
func frameCapacity(points, sampleBytes int) int {
	return min(max(points, 0)*sampleBytes, maxFramePrealloc)
}

// selectWidth switches to WORD transfers for >8-bit captures and back to
// BYTE for 8-bit ones, returning the width now in force.
func (s *Scope) selectWidth(ctx context.Context, p *preamble.Preamble, current SampleWidth) (SampleWidth, error) {
	switch {
	case p.ADCBits > 16:
		return current, fmt.Errorf("%w: %d-bit samples", ErrUnsupportedSampleWidth, p.ADCBits)
	case p.ADCBits > 8 && current != WidthWord:
		return WidthWord, s.write(ctx, widthCommand(WidthWord))
	case p.ADCBits <= 8 && current == WidthWord:
		return WidthByte, s.write(ctx, widthCommand(WidthByte))
	default:
		return current, nil
	}
}

func (s *Scope) readPreamble(ctx context.Context) (*preamble.Preamble, error) {
	payload, err := s.readBlock(ctx, cmdPreamble)
	if err != nil {
		return nil, err
	}
	p, err := s.config.Layout.Parse(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cmdPreamble, err)
	}
	Debugf("preamble: vdiv=%g offset=%g tdiv=%g interval=%g delay=%g code/div=%g",
		p.VDiv, p.Offset, p.TimeDiv, p.SampleInterval, p.TriggerDelay, p.CodePerDiv)
	return p, nil
}

// readBlock performs one query round trip and unwraps the binary block.
// The returned slice aliases the transport's buffer.
func (s *Scope) readBlock(ctx context.Context, query string) ([]byte, error) {
	if err := s.transport.Write(ctx, query); err != nil {
		return nil, fmt.Errorf("%s: %w", query, err)
	}
	raw, err := s.transport.ReadRaw(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", query, err)
	}
	payload, err := wire.ExtractBlock(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", query, err)
	}
	return payload, nil
}

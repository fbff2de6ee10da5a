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

//go:build !prod

package scope

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lobis/iaxolab-scope/internal/wire"
	"github.com/lobis/iaxolab-scope/pkg/preamble"
)

// testPreamble returns a preamble for an n-point capture at 1 us/div with
// 0.5 V/div, 0.25 V offset and 25 codes per division.
func testPreamble(points int32, adcBits int16) *preamble.Preamble {
	bytesPerSample := int32(1)
	if adcBits > 8 {
		bytesPerSample = 2
	}
	return &preamble.Preamble{
		DataBytes:      points * bytesPerSample,
		PointCount:     points,
		PointsPerFrame: points,
		FramesRead:     1,
		FramesTotal:    1,
		VScale:         0.5,
		VOffset:        0.25,
		CodePerDiv:     25,
		ADCBits:        adcBits,
		SampleInterval: 1e-9,
		TriggerDelay:   2e-6,
		TimeDivIndex:   12,
		Probe:          1,
	}
}

// createMockScope creates a scope over a fresh mock transport that reports
// the given per-transfer limit and width.
func createMockScope(t *testing.T, maxPoints string, width SampleWidth, opts ...Option) (*Scope, *MockTransport) {
	t.Helper()
	mock := NewMockTransport()
	mock.SetQueryResponse(cmdMaxPointsQuery, maxPoints)
	mock.SetQueryResponse(cmdWidthQuery, string(width))
	mock.SetQueryResponse(cmdIdentity, "Siglent Technologies,SDS2104X Plus,SDS2PEED000000,1.3.9R6")
	s, err := New(mock, opts...)
	require.NoError(t, err)
	return s, mock
}

// queueFrame loads one frame's preamble and data chunks into the mock.
func queueFrame(mock *MockTransport, p *preamble.Preamble, chunks ...[]byte) {
	mock.QueueRawResponse(cmdPreamble, wire.BuildBlock(preamble.Encode(p)))
	for _, c := range chunks {
		mock.QueueRawResponse(cmdData, wire.BuildBlock(c))
	}
}

// ramp returns n bytes counting up from start, wrapping at 256.
func ramp(start, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(start + i)
	}
	return out
}

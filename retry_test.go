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
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lobis/iaxolab-scope/internal/wire"
	"github.com/lobis/iaxolab-scope/pkg/preamble"
)

// quickRetry retries with microsecond backoff and no jitter.
func quickRetry(attempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       attempts,
		InitialBackoff:    time.Microsecond,
		MaxBackoff:        10 * time.Microsecond,
		BackoffMultiplier: 2,
	}
}

func TestDefaultRetryConfig_FrameReadPolicy(t *testing.T) {
	t.Parallel()

	assert.Equal(t, &RetryConfig{
		MaxAttempts:       FrameReadRetries,
		InitialBackoff:    FrameReadInitialBackoff,
		MaxBackoff:        FrameReadMaxBackoff,
		BackoffMultiplier: FrameReadBackoffMultiplier,
		Jitter:            FrameReadJitter,
		RetryTimeout:      FrameReadRetryTimeout,
	}, DefaultRetryConfig())
}

func TestCalculateNextBackoff_FrameReadSchedule(t *testing.T) {
	t.Parallel()

	cfg := DefaultRetryConfig()
	var got []time.Duration
	backoff := cfg.InitialBackoff
	for range 6 {
		got = append(got, backoff)
		backoff = calculateNextBackoff(backoff, cfg)
	}
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		1600 * time.Millisecond,
		2 * time.Second,
	}, got)

	uncapped := &RetryConfig{BackoffMultiplier: 3}
	assert.Equal(t, 9*time.Second, calculateNextBackoff(3*time.Second, uncapped))
}

func TestCalculateJitteredSleep_Bounds(t *testing.T) {
	t.Parallel()

	base := ConnectionInitialBackoff
	assert.Equal(t, base, calculateJitteredSleep(base, 0))

	for _, jitter := range []float64{ConnectionJitter, 0.5, 1} {
		ceiling := base + time.Duration(float64(base)*jitter)
		for range 50 {
			got := calculateJitteredSleep(base, jitter)
			assert.GreaterOrEqual(t, got, base)
			assert.LessOrEqual(t, got, ceiling)
		}
	}
}

func TestRetryWithConfig_ErrorClasses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err       error
		name      string
		wantCalls int
	}{
		{name: "malformed block is retried", err: fmt.Errorf("%s: %w", cmdData, ErrMalformedBlock), wantCalls: 3},
		{name: "chunk timeout is retried", err: NewTimeoutError("ReadRaw", "tcp"), wantCalls: 3},
		{name: "empty frame is retried", err: fmt.Errorf("frame 4: %w", ErrEmptyFrame), wantCalls: 3},
		{name: "truncated samples fail at once", err: ErrTruncatedSampleData, wantCalls: 1},
		{name: "short preamble fails at once", err: fmt.Errorf("%s: %w", cmdPreamble, ErrPreambleTooShort), wantCalls: 1},
		{name: "24-bit capture fails at once", err: ErrUnsupportedSampleWidth, wantCalls: 1},
		{name: "closed link fails at once", err: NewTransportClosedError("Write", "tcp"), wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			calls := 0
			err := RetryWithConfig(context.Background(), quickRetry(3), func() error {
				calls++
				return tt.err
			})
			require.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.wantCalls, calls)
		})
	}
}

func TestRetryWithConfig_ZeroAttemptsRunsOnce(t *testing.T) {
	t.Parallel()

	calls := 0
	err := RetryWithConfig(context.Background(), quickRetry(0), func() error {
		calls++
		return NewTimeoutError("ReadRaw", "mock")
	})
	require.ErrorIs(t, err, ErrTransportTimeout)
	assert.Equal(t, 1, calls)
}

func TestRetryWithConfig_CancelledBeforeFirstAttempt(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := RetryWithConfig(ctx, quickRetry(3), func() error {
		calls++
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestRetryWithConfig_RetryTimeoutReturnsLastError(t *testing.T) {
	t.Parallel()

	cfg := &RetryConfig{
		MaxAttempts:       10,
		InitialBackoff:    time.Second,
		BackoffMultiplier: 2,
		RetryTimeout:      20 * time.Millisecond,
	}

	calls := 0
	start := time.Now()
	err := RetryWithConfig(context.Background(), cfg, func() error {
		calls++
		return fmt.Errorf("%s: %w", cmdData, ErrMalformedBlock)
	})
	require.ErrorIs(t, err, ErrMalformedBlock)
	assert.False(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, 1, calls)
	assert.Less(t, time.Since(start), time.Second)
}

// TestRetryWithConfig_ChunkTwoTimeout restarts a three-chunk frame whose
// second data block never arrives.
func TestRetryWithConfig_ChunkTwoTimeout(t *testing.T) {
	t.Parallel()

	s, mock := createMockScope(t, "100", WidthByte)
	p := testPreamble(300, 8)
	mock.QueueRawResponse(cmdPreamble, wire.BuildBlock(preamble.Encode(p)))
	mock.QueueRawResponse(cmdData, wire.BuildBlock(ramp(0, 100)))
	mock.QueueRawError(cmdData, NewTimeoutError("ReadRaw", "mock"))
	queueFrame(mock, p, ramp(0, 100), ramp(100, 100), ramp(200, 100))

	var frame *Frame
	attempts := 0
	err := RetryWithConfig(context.Background(), quickRetry(3), func() error {
		attempts++
		var readErr error
		frame, readErr = s.ReadFrame(context.Background(), 1)
		return readErr
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	require.Equal(t, 300, frame.Len())
	assert.Equal(t, 5, mock.GetCallCount(":WAV:DATA?"))
}

// TestRetryWithConfig_WholeFrameRead retries a frame read whose first data
// block arrives corrupted, the way the CLI wraps ReadFrame.
func TestRetryWithConfig_WholeFrameRead(t *testing.T) {
	t.Parallel()

	s, mock := createMockScope(t, "1000", WidthByte)
	mock.QueueRawResponse(cmdPreamble, wire.BuildBlock(preamble.Encode(testPreamble(8, 8))))
	mock.QueueRawResponse(cmdData, []byte("#9000000008\x01\x02\n"))
	queueFrame(mock, testPreamble(8, 8), ramp(0, 8))

	var frame *Frame
	attempts := 0
	err := RetryWithConfig(context.Background(), quickRetry(3), func() error {
		attempts++
		var readErr error
		frame, readErr = s.ReadFrame(context.Background(), 1)
		return readErr
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 8, frame.Len())
	assert.Equal(t, 2, mock.GetCallCount(":WAV:SEQ"), "each attempt restarts from the sequence select")
}

func BenchmarkCalculateJitteredSleep(b *testing.B) {
	for range b.N {
		calculateJitteredSleep(FrameReadInitialBackoff, FrameReadJitter)
	}
}

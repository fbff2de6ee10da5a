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

import "time"

// Connection retry constants control instrument connection behavior.
// LAN instruments refuse sockets for a few seconds after power-up or after
// another client disconnects.
const (
	// DefaultConnectionRetries is the number of attempts to connect to an instrument.
	DefaultConnectionRetries = 4
	// ConnectionInitialBackoff is the initial delay between connection attempts.
	ConnectionInitialBackoff = 250 * time.Millisecond
	// ConnectionMaxBackoff is the maximum delay between connection attempts.
	ConnectionMaxBackoff = 2 * time.Second
	// ConnectionBackoffMultiplier is the exponential backoff multiplier.
	ConnectionBackoffMultiplier = 2.0
	// ConnectionJitter is the random jitter factor (0.0-1.0).
	ConnectionJitter = 0.1
	// ConnectionRetryTimeout is the overall timeout for all connection attempts.
	ConnectionRetryTimeout = 30 * time.Second
)

// Frame read retry constants back DefaultRetryConfig. Every retry repeats
// the whole chunked acquisition of the frame.
const (
	// FrameReadRetries is the number of attempts for one frame.
	FrameReadRetries = 3
	// FrameReadInitialBackoff is the delay before the first repeat.
	FrameReadInitialBackoff = 100 * time.Millisecond
	// FrameReadMaxBackoff caps the delay between repeats.
	FrameReadMaxBackoff = 2 * time.Second
	// FrameReadBackoffMultiplier is the exponential backoff multiplier.
	FrameReadBackoffMultiplier = 2.0
	// FrameReadJitter is the random jitter factor (0.0-1.0).
	FrameReadJitter = 0.1
	// FrameReadRetryTimeout bounds all attempts; deep-memory frames take
	// seconds each over serial links.
	FrameReadRetryTimeout = 2 * time.Minute
)

// ConnectionRetryConfig returns the retry policy used by ConnectWithRetry.
func ConnectionRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       DefaultConnectionRetries,
		InitialBackoff:    ConnectionInitialBackoff,
		MaxBackoff:        ConnectionMaxBackoff,
		BackoffMultiplier: ConnectionBackoffMultiplier,
		Jitter:            ConnectionJitter,
		RetryTimeout:      ConnectionRetryTimeout,
	}
}

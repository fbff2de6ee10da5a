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
)

// ReadFrameWithRetry reads frame n, repeating the whole acquisition when it
// fails with a retryable error or comes back without samples. A nil config
// means DefaultRetryConfig. On exhaustion the last error is returned.
func (s *Scope) ReadFrameWithRetry(ctx context.Context, n int, config *RetryConfig) (*Frame, error) {
	var (
		frame   *Frame
		attempt int
	)
	err := RetryWithConfig(ctx, config, func() error {
		attempt++
		f, err := s.ReadFrame(ctx, n)
		if err != nil {
			return err
		}
		if f.Len() == 0 {
			return fmt.Errorf("frame %d: %w", n, ErrEmptyFrame)
		}
		if attempt > 1 {
			Debugf("frame %d read successful on attempt %d", n, attempt)
		}
		frame = f
		return nil
	})
	if err != nil {
		return nil, err
	}
	return frame, nil
}

// ConnectWithRetry is Connect repeated under config (nil means
// ConnectionRetryConfig) while the failure is retryable, such as a refused
// socket or an unanswered *IDN?.
func ConnectWithRetry(
	ctx context.Context, address string, factory TransportFactory, config *RetryConfig, opts ...Option,
) (*Scope, string, error) {
	if config == nil {
		config = ConnectionRetryConfig()
	}

	var (
		s   *Scope
		idn string
	)
	err := RetryWithConfig(ctx, config, func() error {
		var err error
		s, idn, err = Connect(ctx, address, factory, opts...)
		return err
	})
	if err != nil {
		return nil, "", err
	}
	return s, idn, nil
}

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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeDivTable(t *testing.T) {
	t.Parallel()

	require.Len(t, TimeDivTable, 40)
	assert.InDelta(t, 100e-12, TimeDivTable[0], 0)
	assert.InDelta(t, 1000.0, TimeDivTable[len(TimeDivTable)-1], 0)

	for i := 1; i < len(TimeDivTable); i++ {
		assert.Greater(t, TimeDivTable[i], TimeDivTable[i-1], "table must be strictly increasing at %d", i)
	}
}

func TestTimeDivision(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		index   int
		want    float64
		wantErr bool
	}{
		{name: "first", index: 0, want: 100e-12},
		{name: "one_nanosecond", index: 3, want: 1e-9},
		{name: "one_microsecond", index: 12, want: 1e-6},
		{name: "one_millisecond", index: 21, want: 1e-3},
		{name: "one_second", index: 30, want: 1},
		{name: "last", index: 39, want: 1000},
		{name: "negative", index: -1, wantErr: true},
		{name: "past_end", index: 40, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := TimeDivision(tt.index)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidTimeDivisionIndex)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 0)
		})
	}
}

func TestTimeDivisionIndex(t *testing.T) {
	t.Parallel()

	for i, v := range TimeDivTable {
		idx, ok := TimeDivisionIndex(v)
		require.True(t, ok)
		assert.Equal(t, i, idx)
	}

	_, ok := TimeDivisionIndex(3e-3)
	assert.False(t, ok)
}

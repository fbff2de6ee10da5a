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

import "fmt"

// TimeDivTable lists the canonical time-per-division settings, in seconds.
// The preamble stores an index into this table rather than the value.
var TimeDivTable = [...]float64{
	100e-12, 200e-12, 500e-12,
	1e-9, 2e-9, 5e-9, 10e-9, 20e-9, 50e-9, 100e-9, 200e-9, 500e-9,
	1e-6, 2e-6, 5e-6, 10e-6, 20e-6, 50e-6, 100e-6, 200e-6, 500e-6,
	1e-3, 2e-3, 5e-3, 10e-3, 20e-3, 50e-3, 100e-3, 200e-3, 500e-3,
	1, 2, 5, 10, 20, 50, 100, 200, 500, 1000,
}

// TimeDivision resolves a time division index.
func TimeDivision(index int) (float64, error) {
	if index < 0 || index >= len(TimeDivTable) {
		return 0, fmt.Errorf("%w: %d (table has %d entries)", ErrInvalidTimeDivisionIndex, index, len(TimeDivTable))
	}
	return TimeDivTable[index], nil
}

// TimeDivisionIndex returns the table index of an exact canonical value.
func TimeDivisionIndex(tdiv float64) (int, bool) {
	for i, v := range TimeDivTable {
		if v == tdiv {
			return i, true
		}
	}
	return 0, false
}

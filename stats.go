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
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Stats summarizes the voltage samples of a frame.
type Stats struct {
	Min        float64
	Max        float64
	PeakToPeak float64
	Mean       float64
	StdDev     float64
	RMS        float64
	// DominantFrequency is the strongest non-DC spectral line in Hz
	DominantFrequency float64
}

// Stats computes summary statistics of the frame's voltage samples.
// An empty frame yields zero stats.
func (f *Frame) Stats() Stats {
	v := f.Voltage
	if len(v) == 0 {
		return Stats{}
	}

	var st Stats
	st.Min = floats.Min(v)
	st.Max = floats.Max(v)
	st.PeakToPeak = st.Max - st.Min
	if len(v) > 1 {
		st.Mean, st.StdDev = stat.MeanStdDev(v, nil)
	} else {
		st.Mean = v[0]
	}
	st.RMS = math.Sqrt(floats.Dot(v, v) / float64(len(v)))

	if f.Preamble != nil && f.Preamble.SampleInterval > 0 {
		st.DominantFrequency = dominantFrequency(v, float64(f.Preamble.SampleInterval))
	}
	return st
}

func dominantFrequency(v []float64, interval float64) float64 {
	if len(v) < 4 {
		return 0
	}

	fft := fourier.NewFFT(len(v))
	coeffs := fft.Coefficients(nil, v)

	best, bestMag := 0, 0.0
	for i := 1; i < len(coeffs); i++ {
		if mag := cmplx.Abs(coeffs[i]); mag > bestMag {
			best, bestMag = i, mag
		}
	}
	if best == 0 {
		return 0
	}
	return fft.Freq(best) / interval
}

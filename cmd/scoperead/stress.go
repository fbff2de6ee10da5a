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

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	scope "github.com/lobis/iaxolab-scope"
	"github.com/lobis/iaxolab-scope/internal/config"
)

// StressTestResult holds the outcome of a stress run on one frame.
type StressTestResult struct {
	CrashFile string
	Frame     int
	Reads     int
	Passed    int
	Failed    int
	Points    int
	Duration  time.Duration
}

// CrashReport contains all information for debugging a failed read.
type CrashReport struct {
	Timestamp        time.Time  `json:"timestamp"`
	Address          string     `json:"address"`
	Transport        string     `json:"transport"`
	Error            string     `json:"error"`
	ExpectedChecksum string     `json:"expected_checksum,omitempty"`
	ActualChecksum   string     `json:"actual_checksum,omitempty"`
	Trace            []string   `json:"trace,omitempty"`
	OperationLog     []LogEntry `json:"operation_log"`
	Frame            int        `json:"frame"`
	Iteration        int        `json:"iteration"`
	ExpectedPoints   int        `json:"expected_points,omitempty"`
	ActualPoints     int        `json:"actual_points,omitempty"`
	Retryable        bool       `json:"retryable"`
}

// LogEntry represents a single read in the log.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Checksum  string    `json:"checksum,omitempty"`
	Error     string    `json:"error,omitempty"`
	Elapsed   string    `json:"elapsed"`
	Iteration int       `json:"iteration"`
	Success   bool      `json:"success"`
}

// stressRunner re-reads one frame of a stopped acquisition. Every read must
// return exactly the samples of the first one.
type stressRunner struct {
	scope    *scope.Scope
	cfg      *config.Config
	out      io.Writer
	baseline *scope.Frame
	result   *StressTestResult
	crashDir string
	log      []LogEntry
}

func printStressTestBanner(w io.Writer, frame, count int) {
	_, _ = fmt.Fprintln(w, strings.Repeat("=", 80))
	_, _ = fmt.Fprintln(w, "                      Oscilloscope Frame Read Stress Test")
	_, _ = fmt.Fprintln(w, strings.Repeat("=", 80))
	_, _ = fmt.Fprintf(w, "Frame %d, %d reads; the acquisition must be stopped\n", frame, count)
}

func runStressTestMode(ctx context.Context, s *scope.Scope, cfg *config.Config, count int, w io.Writer) error {
	r := &stressRunner{
		scope:    s,
		cfg:      cfg,
		out:      w,
		crashDir: ".",
		result:   &StressTestResult{Frame: cfg.Acquisition.FirstFrame},
	}
	result, err := r.run(ctx, count)
	printStressSummary(w, result)
	if err != nil {
		return err
	}
	if result.Failed > 0 {
		return fmt.Errorf("stress test: %d of %d reads failed", result.Failed, result.Reads)
	}
	return nil
}

func (r *stressRunner) run(ctx context.Context, count int) (*StressTestResult, error) {
	printStressTestBanner(r.out, r.result.Frame, count)
	started := time.Now()
	defer func() { r.result.Duration = time.Since(started) }()

	baseline, err := r.scope.ReadFrame(ctx, r.result.Frame)
	if err != nil {
		return r.result, fmt.Errorf("baseline read of frame %d: %w", r.result.Frame, err)
	}
	r.baseline = baseline
	r.result.Points = baseline.Len()
	_, _ = fmt.Fprintf(r.out, "Baseline: %d points, checksum %016x\n", baseline.Len(), baseline.Checksum)

	for i := 1; i <= count; i++ {
		if err := ctx.Err(); err != nil {
			return r.result, err //nolint:wrapcheck // cancellation is reported as-is
		}
		r.readOnce(ctx, i)
	}
	return r.result, nil
}

func (r *stressRunner) readOnce(ctx context.Context, iteration int) {
	start := time.Now()
	frame, err := r.scope.ReadFrame(ctx, r.result.Frame)
	entry := LogEntry{Timestamp: start, Iteration: iteration, Elapsed: time.Since(start).String()}
	r.result.Reads++

	if err == nil {
		entry.Checksum = fmt.Sprintf("%016x", frame.Checksum)
		if frame.Checksum != r.baseline.Checksum || frame.Len() != r.baseline.Len() {
			err = errors.New("frame samples changed between reads")
		}
	}
	if err != nil {
		entry.Error = err.Error()
		r.log = append(r.log, entry)
		r.result.Failed++
		r.handleFailure(iteration, frame, err)
		return
	}

	entry.Success = true
	r.log = append(r.log, entry)
	r.result.Passed++
}

func (r *stressRunner) handleFailure(iteration int, frame *scope.Frame, err error) {
	_, _ = fmt.Fprintf(r.out, "  [FAIL] read %d: %v\n", iteration, err)
	if r.result.CrashFile != "" {
		return
	}
	report := r.createCrashReport(iteration, frame, err)
	path, werr := writeCrashReportToFile(r.crashDir, report)
	if werr != nil {
		_, _ = fmt.Fprintf(r.out, "  failed to write crash report: %v\n", werr)
		return
	}
	r.result.CrashFile = path
	_, _ = fmt.Fprintf(r.out, "  crash report: %s\n", path)
}

func (r *stressRunner) createCrashReport(iteration int, frame *scope.Frame, err error) *CrashReport {
	report := &CrashReport{
		Timestamp:        time.Now(),
		Address:          r.cfg.Instrument.Address,
		Transport:        r.cfg.Instrument.Transport,
		Frame:            r.result.Frame,
		Iteration:        iteration,
		Error:            err.Error(),
		Retryable:        scope.IsRetryable(err),
		ExpectedChecksum: fmt.Sprintf("%016x", r.baseline.Checksum),
		ExpectedPoints:   r.baseline.Len(),
		OperationLog:     r.log,
	}
	if frame != nil {
		report.ActualChecksum = fmt.Sprintf("%016x", frame.Checksum)
		report.ActualPoints = frame.Len()
	}
	if te := scope.GetTrace(err); te != nil {
		report.Trace = strings.Split(strings.TrimSpace(te.FormatTrace()), "\n")
	}
	return report
}

func writeCrashReportToFile(dir string, report *CrashReport) (string, error) {
	timestamp := report.Timestamp.Format("20060102_150405")
	filename := filepath.Join(dir, fmt.Sprintf("stress_test_crash_frame%d_%s.json", report.Frame, timestamp))

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal crash report: %w", err)
	}

	if err := os.WriteFile(filename, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write crash report: %w", err)
	}

	return filename, nil
}

func printStressSummary(w io.Writer, result *StressTestResult) {
	status := "PASS"
	if result.Failed > 0 || result.Reads == 0 {
		status = "FAIL"
	}

	_, _ = fmt.Fprintln(w, strings.Repeat("=", 80))
	_, _ = fmt.Fprintf(w, "[%s] frame %d: %d/%d reads identical, %d points, %s\n",
		status, result.Frame, result.Passed, result.Reads, result.Points,
		result.Duration.Round(time.Millisecond))
	if result.Reads > 0 && result.Duration > 0 {
		perRead := result.Duration / time.Duration(result.Reads+1)
		_, _ = fmt.Fprintf(w, "Average read time: %s\n", perRead.Round(time.Microsecond))
	}
	if result.CrashFile != "" {
		_, _ = fmt.Fprintf(w, "Crash report written: %s\n", result.CrashFile)
	}
	_, _ = fmt.Fprintln(w, strings.Repeat("=", 80))
}

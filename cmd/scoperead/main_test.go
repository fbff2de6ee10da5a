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
	"bytes"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	scope "github.com/lobis/iaxolab-scope"
	"github.com/lobis/iaxolab-scope/internal/config"
	"github.com/lobis/iaxolab-scope/internal/export"
	itesting "github.com/lobis/iaxolab-scope/internal/testing"
	"github.com/lobis/iaxolab-scope/transport/tcp"
)

func serve(t *testing.T, sim *itesting.VirtualScope) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer func() { _ = conn.Close() }()
				_ = sim.Serve(conn)
			}()
		}
	}()
	return ln.Addr().String()
}

func sequenceSim(frames ...*itesting.SimFrame) *itesting.VirtualScope {
	sim := itesting.NewVirtualScope()
	sim.LoadSequence(frames...)
	sim.SetMaxPoints(500)
	return sim
}

func TestParseFlags(t *testing.T) {
	t.Parallel()

	opts, err := parseFlags([]string{"-address", "10.0.0.2", "-frames", "4", "-compress", "lz4"})
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2", opts.address)
	assert.Equal(t, 4, opts.frames)
	assert.True(t, opts.set["address"])
	assert.True(t, opts.set["frames"])
	assert.False(t, opts.set["first"])

	_, err = parseFlags([]string{"-frames", "many"})
	require.Error(t, err)
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "scope.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
instrument:
  address: 192.168.1.20
acquisition:
  first_frame: 2
  frames: 8
output:
  path: out.csv.zst
`), 0o600))

	opts, err := parseFlags([]string{"-config", path, "-frames", "3", "-compress", "none"})
	require.NoError(t, err)
	cfg, err := loadConfig(opts)
	require.NoError(t, err)

	assert.Equal(t, "192.168.1.20", cfg.Instrument.Address)
	assert.Equal(t, config.TransportTCP, cfg.Instrument.Transport)
	assert.Equal(t, 2, cfg.Acquisition.FirstFrame)
	assert.Equal(t, 3, cfg.Acquisition.Frames)
	assert.Equal(t, "none", cfg.Output.Compression)

	opts, err = parseFlags([]string{"-frames", "2"})
	require.NoError(t, err)
	_, err = loadConfig(opts)
	require.ErrorIs(t, err, config.ErrInvalid, "an address is required")
}

func TestMain_ReadsSequenceToCompressedCSV(t *testing.T) {
	t.Parallel()

	spec := itesting.DefaultFrameSpec(1200)
	frames := []*itesting.SimFrame{
		itesting.SineFrame(spec, 4, 100),
		itesting.RampFrame(spec, 3),
		itesting.SineFrame(spec, 6, 50),
	}
	addr := serve(t, sequenceSim(frames...))
	out := filepath.Join(t.TempDir(), "run.csv.zst")

	var stdout, stderr bytes.Buffer
	code := mainWithExitCode([]string{"-address", addr, "-frames", "3", "-source", "2", "-out", out}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	assert.Contains(t, stdout.String(), "Connected: "+itesting.DefaultIdentity)
	assert.Contains(t, stdout.String(), "frame 3: 1200 points")
	assert.NotContains(t, stderr.String(), "warning")

	f, err := os.Open(out)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	rows, err := export.ReadAll(f, export.CompressionZstd)
	require.NoError(t, err)
	require.Len(t, rows, 3*1200)
	assert.Equal(t, 1, rows[0].Frame)
	assert.Equal(t, 3, rows[len(rows)-1].Frame)
	assert.Equal(t, 1199, rows[len(rows)-1].Index)
	assert.InDelta(t, frames[1].Voltage(10), rows[1200+10].Voltage, 1e-9)
}

func TestMain_WarnsOnDuplicateFrames(t *testing.T) {
	t.Parallel()

	spec := itesting.DefaultFrameSpec(300)
	addr := serve(t, sequenceSim(itesting.RampFrame(spec, 0), itesting.RampFrame(spec, 0)))

	var stdout, stderr bytes.Buffer
	code := mainWithExitCode([]string{"-address", addr, "-frames", "2"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	assert.Contains(t, stderr.String(), "warning: frame 2 is identical to frame 1")
	rows, err := export.ReadAll(&stdout, export.CompressionNone)
	require.NoError(t, err)
	assert.Len(t, rows, 600)
}

func TestMain_SkipsUnreadableFrame(t *testing.T) {
	t.Parallel()

	spec := itesting.DefaultFrameSpec(300)
	wide := spec
	wide.ADCBits = 24
	addr := serve(t, sequenceSim(
		itesting.RampFrame(spec, 0),
		itesting.NewFrame(wide, func(int) int16 { return 0 }),
		itesting.RampFrame(spec, 7),
	))

	var stdout, stderr bytes.Buffer
	code := mainWithExitCode([]string{"-address", addr, "-frames", "3"}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "warning: skipping frame 2")
	assert.Contains(t, stderr.String(), "1 of 3 frames could not be read")
	assert.Contains(t, stderr.String(), "frame 3: 300 points")

	rows, err := export.ReadAll(&stdout, export.CompressionNone)
	require.NoError(t, err)
	require.Len(t, rows, 600)
	assert.Equal(t, 3, rows[len(rows)-1].Frame)
}

func TestRunAcquisition_StopsWhenInstrumentGone(t *testing.T) {
	t.Parallel()

	mock := scope.NewMockTransport()
	mock.SetQueryResponse(":WAV:MAXP?", "1000")
	mock.SetQueryResponse(":WAV:WIDT?", "BYTE")
	mock.SetError(":WAV:PRE?", scope.NewTransportClosedError("Write", "mock"))
	s, err := scope.New(mock)
	require.NoError(t, err)

	cfg := &config.Config{
		Instrument:  config.InstrumentConfig{Address: "mock", Transport: config.TransportTCP},
		Acquisition: config.AcquisitionConfig{FirstFrame: 1, Frames: 3},
	}
	config.Normalize(cfg)

	var csvOut, info bytes.Buffer
	out, err := export.NewWriter(&csvOut, export.CompressionNone)
	require.NoError(t, err)

	err = runAcquisition(context.Background(), s, cfg, out, &info)
	require.ErrorIs(t, err, scope.ErrTransportClosed)
	assert.True(t, scope.IsFatal(err))
	assert.Contains(t, err.Error(), "frame 1")
	assert.Equal(t, 1, mock.GetCallCount(":WAV:PRE?"), "no frame after the link is gone")
	assert.NotContains(t, info.String(), "skipping")
}

func TestMain_Errors(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	deadAddr := ln.Addr().String()
	require.NoError(t, ln.Close())

	tests := []struct {
		name string
		args []string
		code int
	}{
		{name: "missing address", args: []string{"-frames", "1"}, code: 2},
		{name: "bad transport", args: []string{"-address", "x", "-transport", "gpib"}, code: 2},
		{name: "bad compression", args: []string{"-address", "x", "-compress", "rar"}, code: 2},
		{name: "unknown flag", args: []string{"-bogus"}, code: 2},
		{name: "unreachable instrument", args: []string{"-address", deadAddr}, code: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var stdout, stderr bytes.Buffer
			assert.Equal(t, tt.code, mainWithExitCode(tt.args, &stdout, &stderr))
		})
	}
}

func TestStressMode_Pass(t *testing.T) {
	t.Parallel()

	addr := serve(t, sequenceSim(itesting.SineFrame(itesting.DefaultFrameSpec(2000), 3, 80)))

	var stdout, stderr bytes.Buffer
	code := mainWithExitCode([]string{"-address", addr, "-stress", "5", "-out", "unused.csv"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "[PASS] frame 1: 5/5 reads identical, 2000 points")
	assert.NoFileExists(t, "unused.csv")
}

func TestStressRunner_WritesCrashReport(t *testing.T) {
	t.Parallel()

	sim := sequenceSim(itesting.RampFrame(itesting.DefaultFrameSpec(1500), 0))
	// Reads use 3 chunks; drop the second chunk of the second stress read.
	sim.InjectFault(itesting.Fault{Command: ":WAV:DATA?", Occurrence: 7, Kind: itesting.FaultDrop})
	addr := serve(t, sim)

	tr, err := tcp.New(context.Background(), addr, tcp.WithTimeout(100*time.Millisecond))
	require.NoError(t, err)
	s, err := scope.New(tr)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	cfg := &config.Config{
		Instrument:  config.InstrumentConfig{Address: addr, Transport: config.TransportTCP},
		Acquisition: config.AcquisitionConfig{FirstFrame: 1, Frames: 1},
	}
	var out bytes.Buffer
	r := &stressRunner{
		scope:    s,
		cfg:      cfg,
		out:      &out,
		crashDir: t.TempDir(),
		result:   &StressTestResult{Frame: 1},
	}

	result, err := r.run(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Reads)
	assert.Equal(t, 2, result.Passed)
	assert.Equal(t, 1, result.Failed)
	require.NotEmpty(t, result.CrashFile)

	data, err := os.ReadFile(result.CrashFile)
	require.NoError(t, err)
	var report CrashReport
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, 2, report.Iteration)
	assert.True(t, report.Retryable)
	assert.Contains(t, report.Error, "timeout")
	assert.NotEmpty(t, report.Trace)
	assert.Len(t, report.OperationLog, 2)
	assert.Equal(t, 1500, report.ExpectedPoints)
}

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

// Command scoperead connects to a Siglent oscilloscope, reads sequence
// frames and writes them as CSV.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	scope "github.com/lobis/iaxolab-scope"
	"github.com/lobis/iaxolab-scope/internal/config"
	"github.com/lobis/iaxolab-scope/internal/export"
	"github.com/lobis/iaxolab-scope/transport/serial"
	"github.com/lobis/iaxolab-scope/transport/tcp"
)

// options holds the command line. Zero values defer to the config file.
type options struct {
	configPath string
	address    string
	transport  string
	out        string
	compress   string
	source     int
	first      int
	frames     int
	stress     int
	debug      bool
	sessionLog bool
	listPorts  bool
	set        map[string]bool
}

func newFlagSet(opts *options) *flag.FlagSet {
	fs := flag.NewFlagSet("scoperead", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", "", "YAML acquisition config file")
	fs.StringVar(&opts.address, "address", "", "Instrument address: host[:port] for tcp, device path for serial")
	fs.StringVar(&opts.transport, "transport", "", "Transport: tcp or serial (default tcp)")
	fs.IntVar(&opts.source, "source", 0, "Channel to read (0 keeps the instrument's source)")
	fs.IntVar(&opts.first, "first", 0, "First sequence frame, 1-based (default 1)")
	fs.IntVar(&opts.frames, "frames", 0, "Number of frames to read (default 1)")
	fs.StringVar(&opts.out, "out", "", "Output CSV path (default stdout)")
	fs.StringVar(&opts.compress, "compress", "", "Output compression: none, zstd or lz4 (default from -out extension)")
	fs.IntVar(&opts.stress, "stress", 0, "Re-read the first frame this many times and verify it never changes")
	fs.BoolVar(&opts.debug, "debug", false, "Enable debug output")
	fs.BoolVar(&opts.sessionLog, "session-log", false, "Write a timestamped session log in the current directory")
	fs.BoolVar(&opts.listPorts, "list-ports", false, "List serial ports and exit")
	return fs
}

func parseFlags(args []string) (*options, error) {
	opts := &options{set: make(map[string]bool)}
	fs := newFlagSet(opts)
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}
	fs.Visit(func(f *flag.Flag) {
		opts.set[f.Name] = true
	})
	return opts, nil
}

// loadConfig reads the config file, if any, applies explicitly set flags
// on top, then validates and normalizes the result.
func loadConfig(opts *options) (*config.Config, error) {
	cfg := &config.Config{}
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if opts.set["address"] {
		cfg.Instrument.Address = opts.address
	}
	if opts.set["transport"] {
		cfg.Instrument.Transport = opts.transport
	}
	if opts.set["source"] {
		cfg.Acquisition.Source = opts.source
	}
	if opts.set["first"] {
		cfg.Acquisition.FirstFrame = opts.first
	}
	if opts.set["frames"] {
		cfg.Acquisition.Frames = opts.frames
	}
	if opts.set["out"] {
		cfg.Output.Path = opts.out
	}
	if opts.set["compress"] {
		cfg.Output.Compression = opts.compress
	}
	if opts.set["debug"] {
		cfg.Debug.Enabled = opts.debug
	}
	if opts.set["session-log"] {
		cfg.Debug.SessionLog = opts.sessionLog
	}

	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	config.Normalize(cfg)
	return cfg, nil
}

// newTransportFactory returns a factory for the configured link.
func newTransportFactory(ctx context.Context, in config.InstrumentConfig) scope.TransportFactory {
	timeout := time.Duration(in.TimeoutMs) * time.Millisecond
	return func(address string) (scope.Transport, error) {
		switch in.Transport {
		case config.TransportSerial:
			t, err := serial.New(address, serial.WithBaudRate(in.BaudRate), serial.WithTimeout(timeout))
			if err != nil {
				return nil, fmt.Errorf("failed to create serial transport: %w", err)
			}
			return t, nil
		case config.TransportTCP:
			t, err := tcp.New(ctx, address, tcp.WithTimeout(timeout))
			if err != nil {
				return nil, fmt.Errorf("failed to create tcp transport: %w", err)
			}
			return t, nil
		default:
			return nil, fmt.Errorf("unsupported transport type: %s", in.Transport)
		}
	}
}

func retryConfig(r config.RetryConfig) *scope.RetryConfig {
	rc := scope.DefaultRetryConfig()
	rc.MaxAttempts = r.MaxAttempts
	rc.InitialBackoff = time.Duration(r.InitialBackoffMs) * time.Millisecond
	rc.MaxBackoff = time.Duration(r.MaxBackoffMs) * time.Millisecond
	return rc
}

// openOutput returns the CSV destination and a func closing it.
func openOutput(path string, stdout io.Writer) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return nil, nil, fmt.Errorf("create output: %w", err)
	}
	return f, f.Close, nil
}

func printStats(w io.Writer, f *scope.Frame) {
	st := f.Stats()
	_, _ = fmt.Fprintf(w,
		"frame %d: %d points, min %.4g V, max %.4g V, pp %.4g V, mean %.4g V, rms %.4g V, f0 %.4g Hz\n",
		f.Number, f.Len(), st.Min, st.Max, st.PeakToPeak, st.Mean, st.RMS, st.DominantFrequency)
}

// runAcquisition reads the configured frames into the CSV writer. A frame
// that still fails after retries is skipped unless the link is gone.
func runAcquisition(ctx context.Context, s *scope.Scope, cfg *config.Config, out *export.Writer, info io.Writer) error {
	rc := retryConfig(cfg.Retry)
	first := cfg.Acquisition.FirstFrame
	var prev *scope.Frame
	skipped := 0

	for n := first; n < first+cfg.Acquisition.Frames; n++ {
		frame, err := s.ReadFrameWithRetry(ctx, n, rc)
		if err != nil {
			if scope.IsFatal(err) || ctx.Err() != nil {
				return fmt.Errorf("frame %d: %w", n, err)
			}
			_, _ = fmt.Fprintf(info, "warning: skipping frame %d: %v\n", n, err)
			skipped++
			continue
		}
		// A repeated checksum usually means the instrument ignored the
		// frame selection and sent the previous capture again.
		if prev != nil && frame.Checksum == prev.Checksum {
			_, _ = fmt.Fprintf(info, "warning: frame %d is identical to frame %d (checksum %016x)\n",
				n, prev.Number, frame.Checksum)
		}
		if err := out.WriteFrame(frame); err != nil {
			return fmt.Errorf("export frame %d: %w", n, err)
		}
		printStats(info, frame)
		prev = frame
	}
	if skipped > 0 {
		return fmt.Errorf("%d of %d frames could not be read", skipped, cfg.Acquisition.Frames)
	}
	return nil
}

func run(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer, stress int) error {
	if cfg.Debug.Enabled {
		scope.SetDebugEnabled(true)
	}
	if cfg.Debug.SessionLog {
		path, err := scope.InitSessionLog()
		if err != nil {
			return err
		}
		defer func() { _ = scope.CloseSessionLog() }()
		_, _ = fmt.Fprintf(stderr, "Session log: %s\n", path)
	}

	var opts []scope.Option
	if cfg.Acquisition.Source > 0 {
		opts = append(opts, scope.WithSource(cfg.Acquisition.Source))
	}

	factory := newTransportFactory(ctx, cfg.Instrument)
	s, idn, err := scope.ConnectWithRetry(ctx, cfg.Instrument.Address, factory, nil, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to oscilloscope: %w", err)
	}
	defer func() {
		if err := s.Close(); err != nil {
			_, _ = fmt.Fprintf(stderr, "Failed to close scope: %v\n", err)
		}
	}()

	// Status lines go to stdout only when the CSV does not.
	info := stdout
	if cfg.Output.Path == "" || cfg.Output.Path == "-" {
		info = stderr
	}
	_, _ = fmt.Fprintf(info, "Connected: %s\n", idn)

	if stress > 0 {
		return runStressTestMode(ctx, s, cfg, stress, info)
	}

	w, closeOut, err := openOutput(cfg.Output.Path, stdout)
	if err != nil {
		return err
	}
	defer func() { _ = closeOut() }()

	compression, err := export.ParseCompression(cfg.Output.Compression)
	if err != nil {
		return err //nolint:wrapcheck // already validated
	}
	out, err := export.NewWriter(w, compression)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}

	acqErr := runAcquisition(ctx, s, cfg, out, info)
	if err := out.Close(); err != nil && acqErr == nil {
		return fmt.Errorf("export: %w", err)
	}
	if acqErr != nil {
		return acqErr
	}
	if err := closeOut(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	return nil
}

func listPorts(w io.Writer) error {
	ports, err := serial.ListPorts()
	if err != nil {
		return err //nolint:wrapcheck // already wrapped
	}
	if len(ports) == 0 {
		_, _ = fmt.Fprintln(w, "No serial ports found")
		return nil
	}
	for _, p := range ports {
		_, _ = fmt.Fprintln(w, p)
	}
	return nil
}

func main() {
	os.Exit(mainWithExitCode(os.Args[1:], os.Stdout, os.Stderr))
}

func mainWithExitCode(args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if opts.listPorts {
		if err := listPorts(stdout); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, stdout, stderr, opts.stress); err != nil {
		if errors.Is(err, context.Canceled) {
			// User requested shutdown, exit cleanly
			return 0
		}
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

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

// Package export writes decoded frames as CSV rows
// (frame,index,time,voltage), optionally compressed with zstd or lz4.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	scope "github.com/lobis/iaxolab-scope"
)

// Compression selects the stream codec wrapped around the CSV text.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
	CompressionLZ4  Compression = "lz4"
)

// ErrUnknownCompression is returned for unsupported codec names.
var ErrUnknownCompression = errors.New("unknown compression")

// Header is the first CSV record.
var Header = []string{"frame", "index", "time", "voltage"}

// ParseCompression maps a codec name to a Compression. Empty means none.
func ParseCompression(name string) (Compression, error) {
	switch c := Compression(strings.ToLower(strings.TrimSpace(name))); c {
	case "", CompressionNone:
		return CompressionNone, nil
	case CompressionZstd, CompressionLZ4:
		return c, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCompression, name)
	}
}

// CompressionFromPath infers the codec from a file extension.
func CompressionFromPath(path string) Compression {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zst", ".zstd":
		return CompressionZstd
	case ".lz4":
		return CompressionLZ4
	default:
		return CompressionNone
	}
}

// Writer streams frames as CSV. Close must be called to flush the codec;
// it does not close the underlying writer.
type Writer struct {
	csv    *csv.Writer
	codec  io.WriteCloser
	record []string
	rows   int
}

// NewWriter writes the header and returns a frame writer on w.
func NewWriter(w io.Writer, c Compression) (*Writer, error) {
	var codec io.WriteCloser
	switch c {
	case "", CompressionNone:
	case CompressionZstd:
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("zstd encoder: %w", err)
		}
		codec, w = enc, enc
	case CompressionLZ4:
		enc := lz4.NewWriter(w)
		codec, w = enc, enc
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCompression, string(c))
	}

	ew := &Writer{csv: csv.NewWriter(w), codec: codec, record: make([]string, len(Header))}
	if err := ew.csv.Write(Header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	return ew, nil
}

// WriteFrame appends one row per sample of f.
func (w *Writer) WriteFrame(f *scope.Frame) error {
	frame := strconv.Itoa(f.Number)
	for i := range f.Len() {
		w.record[0] = frame
		w.record[1] = strconv.Itoa(i)
		w.record[2] = strconv.FormatFloat(f.Time[i], 'g', -1, 64)
		w.record[3] = strconv.FormatFloat(f.Voltage[i], 'g', -1, 64)
		if err := w.csv.Write(w.record); err != nil {
			return fmt.Errorf("frame %d row %d: %w", f.Number, i, err)
		}
	}
	w.rows += f.Len()
	return nil
}

// Rows returns the number of sample rows written so far.
func (w *Writer) Rows() int {
	return w.rows
}

// Close flushes buffered rows and finishes the compressed stream.
func (w *Writer) Close() error {
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	if w.codec != nil {
		if err := w.codec.Close(); err != nil {
			return fmt.Errorf("close codec: %w", err)
		}
	}
	return nil
}

// Row is one parsed sample.
type Row struct {
	Frame   int
	Index   int
	Time    float64
	Voltage float64
}

// ReadAll parses a stream written by Writer.
func ReadAll(r io.Reader, c Compression) ([]Row, error) {
	switch c {
	case "", CompressionNone:
	case CompressionZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("zstd decoder: %w", err)
		}
		defer dec.Close()
		r = dec
	case CompressionLZ4:
		r = lz4.NewReader(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCompression, string(c))
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)
	cr.ReuseRecord = true

	head, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if strings.Join(head, ",") != strings.Join(Header, ",") {
		return nil, fmt.Errorf("unexpected header %q", head)
	}

	var rows []Row
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return rows, fmt.Errorf("read row %d: %w", len(rows), err)
		}
		row, err := parseRow(rec)
		if err != nil {
			return rows, fmt.Errorf("row %d: %w", len(rows), err)
		}
		rows = append(rows, row)
	}
}

func parseRow(rec []string) (Row, error) {
	var (
		row Row
		err error
	)
	if row.Frame, err = strconv.Atoi(rec[0]); err != nil {
		return row, fmt.Errorf("frame: %w", err)
	}
	if row.Index, err = strconv.Atoi(rec[1]); err != nil {
		return row, fmt.Errorf("index: %w", err)
	}
	if row.Time, err = strconv.ParseFloat(rec[2], 64); err != nil {
		return row, fmt.Errorf("time: %w", err)
	}
	if row.Voltage, err = strconv.ParseFloat(rec[3], 64); err != nil {
		return row, fmt.Errorf("voltage: %w", err)
	}
	return row, nil
}

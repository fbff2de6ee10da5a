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

package wire

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

// ReadResponse reads exactly one response message from a byte stream.
//
// Text responses run up to and including the terminator. When a block marker
// is seen first, the declared payload is read in full (it may contain
// terminator bytes) followed by everything up to the next terminator. The
// returned bytes are the message as received, ready for ExtractBlock.
// Stray terminators left over from a previous message are skipped.
func ReadResponse(r *bufio.Reader) ([]byte, error) {
	var msg []byte
	for {
		c, err := r.ReadByte()
		if err != nil {
			return msg, err
		}
		if len(msg) == 0 && (c == Terminator || c == '\r') {
			continue
		}
		msg = append(msg, c)

		switch c {
		case Terminator:
			return msg, nil
		case BlockMarker:
			return readBlockBody(r, msg)
		}
	}
}

func readBlockBody(r *bufio.Reader, msg []byte) ([]byte, error) {
	d, err := r.ReadByte()
	if err != nil {
		return msg, err
	}
	msg = append(msg, d)
	digits, err := lengthDigits(d)
	if err != nil {
		return msg, err
	}

	field := make([]byte, digits)
	if _, err := io.ReadFull(r, field); err != nil {
		return msg, fmt.Errorf("read block length: %w", err)
	}
	msg = append(msg, field...)
	length, err := parseLength(field)
	if err != nil {
		return msg, err
	}

	// The buffer grows with received data, not with the declared length.
	buf := bytes.NewBuffer(msg)
	n, err := io.CopyN(buf, r, int64(length))
	msg = buf.Bytes()
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return msg, fmt.Errorf("read block payload (%d of %d bytes): %w", n, length, err)
	}

	tail, err := r.ReadBytes(Terminator)
	msg = append(msg, tail...)
	if err != nil {
		return msg, fmt.Errorf("read block terminator: %w", err)
	}
	return msg, nil
}

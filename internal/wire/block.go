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

// Package wire handles the IEEE 488.2 definite-length block framing used by
// the instrument for binary responses:
//
//	<prefix> '#' <d> <d ASCII digits: length L> <L payload bytes> <terminator>
package wire

import (
	"errors"
	"fmt"
	"strconv"
)

// Framing bytes.
const (
	BlockMarker = '#'  // Start of a definite-length block
	Terminator  = '\n' // Message terminator
)

// MaxBlockPayload bounds the payload a block header may declare. The largest
// single transfer the supported instruments produce is well below this.
const MaxBlockPayload = 256 << 20

// ErrMalformedBlock reports a block that cannot be unwrapped.
var ErrMalformedBlock = errors.New("malformed binary block")

// Header is a decoded block header.
type Header struct {
	Start  int // index of the '#' marker
	Offset int // index of the first payload byte
	Length int // declared payload length
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedBlock, fmt.Sprintf(format, args...))
}

// ParseHeader locates and decodes the block header in raw.
func ParseHeader(raw []byte) (Header, error) {
	start := -1
	for i, b := range raw {
		if b == BlockMarker {
			start = i
			break
		}
	}
	if start < 0 {
		return Header{}, malformed("missing %q marker in %d bytes", BlockMarker, len(raw))
	}

	off := start + 1
	if off >= len(raw) {
		return Header{}, malformed("header truncated after marker")
	}
	digits, err := lengthDigits(raw[off])
	if err != nil {
		return Header{}, err
	}
	off++

	if off+digits > len(raw) {
		return Header{}, malformed("length field truncated: want %d digits, have %d", digits, len(raw)-off)
	}
	length, err := parseLength(raw[off : off+digits])
	if err != nil {
		return Header{}, err
	}

	return Header{Start: start, Offset: off + digits, Length: length}, nil
}

// ExtractBlock returns the payload of the block contained in raw. Bytes
// before the marker and after the payload are discarded. The returned slice
// aliases raw.
func ExtractBlock(raw []byte) ([]byte, error) {
	h, err := ParseHeader(raw)
	if err != nil {
		return nil, err
	}
	if avail := len(raw) - h.Offset; avail < h.Length {
		return nil, malformed("payload short: declared %d bytes, have %d", h.Length, avail)
	}
	return raw[h.Offset : h.Offset+h.Length], nil
}

// BuildBlock frames payload as a terminated definite-length block.
func BuildBlock(payload []byte) []byte {
	n := strconv.Itoa(len(payload))
	out := make([]byte, 0, 2+len(n)+len(payload)+1)
	out = append(out, BlockMarker, byte('0'+len(n)))
	out = append(out, n...)
	out = append(out, payload...)
	return append(out, Terminator)
}

// lengthDigits validates the digit-count byte that follows the marker.
func lengthDigits(b byte) (int, error) {
	if b < '1' || b > '9' {
		return 0, malformed("invalid length digit count %q", b)
	}
	return int(b - '0'), nil
}

func parseLength(field []byte) (int, error) {
	length := 0
	for _, c := range field {
		if c < '0' || c > '9' {
			return 0, malformed("non-numeric length field %q", field)
		}
		length = length*10 + int(c-'0')
	}
	if length > MaxBlockPayload {
		return 0, malformed("declared length %d exceeds limit %d", length, MaxBlockPayload)
	}
	return length, nil
}

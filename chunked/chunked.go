/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package chunked implements the HTTP chunked-transfer-encoding
// filters, grounded on original_source/src/filter_chunked.h's
// encode(out, in) / decode(out, in) shape (the filter body itself was
// not retrieved; behavior follows spec.md §4.6 and RFC 7230 §4.1).
package chunked

import (
	"errors"
	"fmt"
	"strconv"

	"github/sabouaram/httpengine/chunk"
)

// ErrFraming flags any chunked-decoding framing violation; the caller
// must close the connection on this error (spec §4.6).
var ErrFraming = errors.New("chunked: framing error")

// Encode moves everything currently queued in `in` to `out` as a single
// chunked-encoding frame "<hex-len>\r\n<data>\r\n", where hex-len is the
// total queued length; the individual chunks of `in` are not framed
// separately. When in.IsClosed() and
// in.Length()==0, it appends the terminating "0\r\n\r\n" and closes
// out. File/mmap-region chunks pass through unchanged as the payload
// (steal, not copy).
func Encode(out, in *chunk.Queue) {
	if n := in.Length(); n > 0 {
		out.AppendString([]byte(fmt.Sprintf("%x\r\n", n)))
		out.StealAll(in)
		out.AppendString([]byte("\r\n"))
	}
	if in.IsClosed() && in.Length() == 0 {
		out.AppendString([]byte("0\r\n\r\n"))
		out.Close()
	}
}

type decodeState int

const (
	decodeSize decodeState = iota
	decodeData
	decodeDataCRLF
	decodeTrailer
	decodeDone
)

// Decoder incrementally decodes a chunked body. Call Decode repeatedly
// as more bytes arrive in `in`; decoded payload bytes are moved
// (stolen, not copied) into `out`.
type Decoder struct {
	state   decodeState
	remain  int64
	sizeBuf []byte
}

// NewDecoder returns a Decoder positioned at the start of the first
// size line.
func NewDecoder() *Decoder { return &Decoder{} }

// Done reports whether the terminating chunk (and any trailer) has
// been consumed.
func (d *Decoder) Done() bool { return d.state == decodeDone }

// Decode drains as much of `in` as currently forms complete chunked
// framing into `out`, returning ErrFraming on any malformed input.
func (d *Decoder) Decode(out, in *chunk.Queue) error {
	for {
		switch d.state {
		case decodeSize:
			line, ok, err := scanLine(in)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			hexPart := line
			if idx := indexByte(line, ';'); idx >= 0 {
				hexPart = line[:idx]
			}
			n, err := strconv.ParseInt(string(hexPart), 16, 64)
			if err != nil || n < 0 {
				return ErrFraming
			}
			d.remain = n
			if n == 0 {
				d.state = decodeTrailer
			} else {
				d.state = decodeData
			}

		case decodeData:
			if d.remain == 0 {
				d.state = decodeDataCRLF
				continue
			}
			n := out.StealLen(in, d.remain)
			d.remain -= n
			if n == 0 {
				return nil // need more bytes
			}

		case decodeDataCRLF:
			if in.Length() < 2 {
				return nil
			}
			var crlf []byte
			if !in.ExtractTo(2, &crlf) || crlf[0] != '\r' || crlf[1] != '\n' {
				return ErrFraming
			}
			in.Skip(2)
			d.state = decodeSize

		case decodeTrailer:
			line, ok, err := scanLine(in)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			if len(line) == 0 {
				d.state = decodeDone
				out.Close()
				return nil
			}
			// trailer header lines are skipped, not surfaced (spec §4.6)

		case decodeDone:
			return nil
		}
	}
}

func indexByte(b []byte, c byte) int {
	for i, bb := range b {
		if bb == c {
			return i
		}
	}
	return -1
}

const maxSizeLineLen = 64

// scanLine reads and consumes a CRLF-terminated line from the head of
// cq without assuming the line is present yet (returns ok=false if
// incomplete).
func scanLine(cq *chunk.Queue) ([]byte, bool, error) {
	it := cq.Iter()
	var buf []byte

	for {
		clen := it.Length()
		if clen == 0 {
			if !it.Next() {
				if len(buf) > maxSizeLineLen {
					return nil, false, ErrFraming
				}
				return nil, false, nil
			}
			continue
		}
		chunkBuf, err := it.Read(0, clen)
		if err != nil {
			return nil, false, err
		}
		buf = append(buf, chunkBuf...)
		if idx := findCRLF(buf); idx >= 0 {
			if idx > maxSizeLineLen {
				return nil, false, ErrFraming
			}
			cq.Skip(int64(idx) + 2)
			return buf[:idx], true, nil
		}
		if len(buf) > maxSizeLineLen {
			return nil, false, ErrFraming
		}
		if !it.Next() {
			return nil, false, nil
		}
	}
}

func findCRLF(b []byte) int {
	for i := 0; i+1 < len(b); i++ {
		if b[i] == '\r' && b[i+1] == '\n' {
			return i
		}
	}
	return -1
}

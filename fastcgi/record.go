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

// Package fastcgi implements the FastCGI record driver sitting on top
// of one backendpool connection, grounded on
// original_source/src/modules/fastcgi_stream.c's record framing and
// src/modules/mod_fastcgi.c's request lifecycle (spec.md §4.11).
//
// Only single-request multiplexing is implemented (requestID is always
// 1), matching the original's "FCGI_MPXS_CONNS=0" behavior for the
// indirect-handler use case this engine exercises.
package fastcgi

import (
	"encoding/binary"
	"io"
)

const (
	version1 = 1

	roleResponder = 1

	typeBeginRequest = 1
	typeAbortRequest = 2
	typeEndRequest   = 3
	typeParams       = 4
	typeStdin        = 5
	typeStdout       = 6
	typeStderr       = 7
)

const (
	flagKeepConn = 1

	statusRequestComplete = 0
	statusOverloaded      = 2
	statusUnknownRole     = 3
)

const requestID = 1

// maxRecordBody is the largest content-length a single record can
// carry; longer payloads are split across consecutive records.
const maxRecordBody = 65535

type recordHeader struct {
	version       byte
	typ           byte
	requestID     uint16
	contentLength uint16
	paddingLength byte
}

func (h recordHeader) encode() []byte {
	b := make([]byte, 8)
	b[0] = h.version
	b[1] = h.typ
	binary.BigEndian.PutUint16(b[2:4], h.requestID)
	binary.BigEndian.PutUint16(b[4:6], h.contentLength)
	b[6] = h.paddingLength
	return b
}

func readRecordHeader(r io.Reader) (recordHeader, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return recordHeader{}, err
	}
	return recordHeader{
		version:       buf[0],
		typ:           buf[1],
		requestID:     binary.BigEndian.Uint16(buf[2:4]),
		contentLength: binary.BigEndian.Uint16(buf[4:6]),
		paddingLength: buf[6],
	}, nil
}

// writeRecord emits one or more wire records carrying payload, each
// padded to an 8-byte boundary, splitting payloads over maxRecordBody
// as spec.md §4.11 requires ("STDIN records of <= 65535 bytes each").
func writeRecord(w io.Writer, typ byte, payload []byte) error {
	for {
		chunkLen := len(payload)
		if chunkLen > maxRecordBody {
			chunkLen = maxRecordBody
		}
		body := payload[:chunkLen]
		pad := (8 - chunkLen%8) % 8

		h := recordHeader{version: version1, typ: typ, requestID: requestID,
			contentLength: uint16(chunkLen), paddingLength: byte(pad)}
		if _, err := w.Write(h.encode()); err != nil {
			return err
		}
		if chunkLen > 0 {
			if _, err := w.Write(body); err != nil {
				return err
			}
		}
		if pad > 0 {
			if _, err := w.Write(make([]byte, pad)); err != nil {
				return err
			}
		}

		payload = payload[chunkLen:]
		if len(payload) == 0 {
			return nil
		}
	}
}

// readRecord reads one complete wire record (header, payload, padding).
func readRecord(r io.Reader) (typ byte, payload []byte, err error) {
	h, err := readRecordHeader(r)
	if err != nil {
		return 0, nil, err
	}
	payload = make([]byte, h.contentLength)
	if h.contentLength > 0 {
		if _, err = io.ReadFull(r, payload); err != nil {
			return 0, nil, err
		}
	}
	if h.paddingLength > 0 {
		if _, err = io.ReadFull(r, make([]byte, h.paddingLength)); err != nil {
			return 0, nil, err
		}
	}
	return h.typ, payload, nil
}

func writeBeginRequest(w io.Writer) error {
	body := make([]byte, 8)
	binary.BigEndian.PutUint16(body[0:2], roleResponder)
	body[2] = flagKeepConn
	return writeRecord(w, typeBeginRequest, body)
}

// endRequestBody is FCGI_EndRequestBody (spec.md §4.11): appStatus then
// protocolStatus, decoded from an END_REQUEST record's payload.
type endRequestBody struct {
	appStatus      uint32
	protocolStatus byte
}

func decodeEndRequest(payload []byte) endRequestBody {
	if len(payload) < 5 {
		return endRequestBody{}
	}
	return endRequestBody{
		appStatus:      binary.BigEndian.Uint32(payload[0:4]),
		protocolStatus: payload[4],
	}
}

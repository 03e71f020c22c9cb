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

package httpparser

import (
	"fmt"
	"strconv"
	"strings"

	"github/sabouaram/httpengine/chunk"
)

const (
	// MaxURILength is the maximum raw URI length before a 414 is forced
	// (spec §4.5).
	MaxURILength = 8 * 1024
	maxLineLen   = 8 * 1024
)

// State is the parser's coarse progress, exposed so callers (the VR
// state machine) can tell when header parsing has completed.
type State int

const (
	StateRequestLine State = iota
	StateHeaders
	StateDone
	StateError
)

// Request is the parsed request-line plus header block.
type Request struct {
	Method    Method
	MethodRaw string
	URI       string
	Version   Version
	Headers   Headers
	Host      string
	BytesIn   int64
}

// ErrTooLong is returned when the request line exceeds MaxURILength,
// signalling the caller to respond 414 and close.
var ErrTooLong = fmt.Errorf("httpparser: request-line exceeds %d bytes", MaxURILength)

// ErrMalformed flags any other request-line/header framing violation.
type ErrMalformed struct{ Reason string }

func (e *ErrMalformed) Error() string { return "httpparser: " + e.Reason }

// Parser incrementally consumes a chunk.Queue. Call Parse repeatedly
// as more bytes arrive; it returns (StateDone, req, nil) once the full
// header block has been consumed, or an error for a framing violation.
type Parser struct {
	state   State
	req     Request
	lastHdr *Header
}

// New returns a parser ready to read the request line.
func New() *Parser {
	return &Parser{}
}

// State reports the parser's current stage.
func (p *Parser) State() State { return p.state }

// Parse drains complete lines from cq (consuming them) until the
// header block is finished, a parse error occurs, or no complete line
// is yet available (in which case it returns StateRequestLine or
// StateHeaders with a nil error, asking the caller to wait for more
// bytes).
func (p *Parser) Parse(cq *chunk.Queue) (State, *Request, error) {
	for p.state != StateDone && p.state != StateError {
		line, ok, err := scanLine(cq, maxLineLen)
		if err != nil {
			p.state = StateError
			return p.state, nil, err
		}
		if !ok {
			return p.state, nil, nil
		}
		p.req.BytesIn += int64(len(line)) + 2

		switch p.state {
		case StateRequestLine:
			if err := p.parseRequestLine(line); err != nil {
				p.state = StateError
				return p.state, nil, err
			}
			p.state = StateHeaders
		case StateHeaders:
			if line == "" {
				if err := p.validate(); err != nil {
					p.state = StateError
					return p.state, nil, err
				}
				p.state = StateDone
				return p.state, &p.req, nil
			}
			if err := p.parseHeaderLine(line); err != nil {
				p.state = StateError
				return p.state, nil, err
			}
		}
	}
	return p.state, nil, nil
}

func (p *Parser) parseRequestLine(line string) error {
	if len(line) > MaxURILength {
		return ErrTooLong
	}
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 {
		return &ErrMalformed{Reason: "malformed request line"}
	}
	method, uri, versionTok := parts[0], parts[1], parts[2]
	if len(uri) > MaxURILength {
		return ErrTooLong
	}
	ver, ok := parseVersion(versionTok)
	if !ok {
		return &ErrMalformed{Reason: "unsupported HTTP version"}
	}
	p.req.Method = parseMethod(method)
	p.req.MethodRaw = method
	p.req.URI = uri
	p.req.Version = ver
	return nil
}

func (p *Parser) parseHeaderLine(line string) error {
	if (line[0] == ' ' || line[0] == '\t') && p.lastHdr != nil {
		foldContinuation(p.lastHdr, line)
		return nil
	}
	idx := strings.IndexByte(line, ':')
	if idx <= 0 {
		return &ErrMalformed{Reason: "malformed header line"}
	}
	name := line[:idx]
	value := strings.TrimSpace(line[idx+1:])
	p.req.Headers = append(p.req.Headers, Header{Line: line, Name: name, Value: value})
	p.lastHdr = &p.req.Headers[len(p.req.Headers)-1]
	return nil
}

func (p *Parser) validate() error {
	host, hasHost := p.req.Headers.Get("Host")
	if p.req.Version == Version11 && !hasHost {
		return &ErrMalformed{Reason: "missing Host header on HTTP/1.1"}
	}
	p.req.Host = host

	_, hasCL := p.req.Headers.Get("Content-Length")
	te, hasTE := p.req.Headers.Get("Transfer-Encoding")
	chunked := hasTE && strings.EqualFold(strings.TrimSpace(te), "chunked")

	if hasCL && chunked {
		return &ErrMalformed{Reason: "both Content-Length and chunked Transfer-Encoding present"}
	}
	if hasCL {
		cl, _ := p.req.Headers.Get("Content-Length")
		if n, err := strconv.ParseInt(strings.TrimSpace(cl), 10, 64); err != nil || n < 0 {
			return &ErrMalformed{Reason: "invalid Content-Length"}
		}
	}
	return nil
}

// scanLine looks for a CRLF-terminated line at the head of cq without
// consuming bytes beyond that line; returns ok=false if no complete
// line is present yet (need more input) up to max bytes, past which it
// errors.
func scanLine(cq *chunk.Queue, max int64) (string, bool, error) {
	it := cq.Iter()
	var buf []byte
	var scanned int64

	for {
		clen := it.Length()
		if clen == 0 {
			if !it.Next() {
				if scanned > max {
					return "", false, ErrTooLong
				}
				return "", false, nil
			}
			continue
		}
		chunkBuf, err := it.Read(0, clen)
		if err != nil {
			return "", false, err
		}
		buf = append(buf, chunkBuf...)
		scanned += int64(len(chunkBuf))
		if idx := indexCRLF(buf); idx >= 0 {
			if int64(idx) > max {
				return "", false, ErrTooLong
			}
			line := string(buf[:idx])
			cq.Skip(int64(idx) + 2)
			return line, true, nil
		}
		if scanned > max {
			return "", false, ErrTooLong
		}
		if !it.Next() {
			return "", false, nil
		}
	}
}

func indexCRLF(b []byte) int {
	for i := 0; i+1 < len(b); i++ {
		if b[i] == '\r' && b[i+1] == '\n' {
			return i
		}
	}
	return -1
}

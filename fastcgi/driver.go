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

package fastcgi

import (
	"bufio"
	"bytes"
	"net"
	"strconv"
	"strings"

	"github/sabouaram/httpengine/httpparser"
	"github/sabouaram/httpengine/logger"
	"github/sabouaram/httpengine/vr"
)

// Driver sits on top of one backend connection and drives one request
// through it (spec.md §4.11). schedule marshals every mutation of the
// VR's queues back onto the connection's owning worker loop, the same
// contract tlsfilter.Filter uses for its background goroutines.
type Driver struct {
	conn     net.Conn
	v        *vr.VR
	schedule func(func())
	log      logger.FuncLog

	// onDone fires exactly once, reporting whether the exchange
	// succeeded; the caller uses it to Put the backend connection back
	// to the pool (closed on failure, per spec.md §4.11's reset_cb).
	onDone func(failed bool)

	headerParsed bool
	headerBuf    bytes.Buffer
	stderrBuf    bytes.Buffer

	stdinDone bool
}

// New builds a Driver over conn for v; call Start once the request
// headers are available.
func New(conn net.Conn, v *vr.VR, schedule func(func()), log logger.FuncLog, onDone func(failed bool)) *Driver {
	return &Driver{conn: conn, v: v, schedule: schedule, log: log, onDone: onDone}
}

func (d *Driver) logger() logger.Logger {
	if d.log != nil {
		if l := d.log(); l != nil {
			return l
		}
	}
	return logger.GetDefault()
}

// Start sends BEGIN_REQUEST and PARAMS, installs the VR as an indirect
// handler driven by d.OnRequestBody, and spawns the response reader.
func (d *Driver) Start(req *httpparser.Request, phys vr.Physical, remoteAddr, serverAddr, serverPort string) error {
	if err := writeBeginRequest(d.conn); err != nil {
		return err
	}
	env := BuildParams(req, phys, remoteAddr, serverAddr, serverPort)
	if err := writeRecord(d.conn, typeParams, encodeParams(env)); err != nil {
		return err
	}
	if err := writeRecord(d.conn, typeParams, nil); err != nil { // terminator
		return err
	}

	d.v.HandleIndirect(d.OnRequestBody)
	go d.readLoop()
	return nil
}

// OnRequestBody is the vr.Handler installed via HandleIndirect: drains
// whatever request-body bytes are currently in v.In into STDIN
// records, emitting the zero-length terminator once the body is fully
// read (spec.md §4.11's "STDIN zero-length record on body EOF").
func (d *Driver) OnRequestBody(v *vr.VR) vr.Result {
	if d.stdinDone {
		return vr.GoOn
	}

	n := v.In.Length()
	if n > 0 {
		var buf []byte
		if !v.In.ExtractTo(n, &buf) {
			return vr.ErrorResult
		}
		v.In.Skip(n)
		if err := writeRecord(d.conn, typeStdin, buf); err != nil {
			d.logger().Warnf("fastcgi: writing STDIN: %v", err)
			return vr.ErrorResult
		}
	}

	if v.In.IsClosed() && v.In.Length() == 0 {
		d.stdinDone = true
		if err := writeRecord(d.conn, typeStdin, nil); err != nil {
			d.logger().Warnf("fastcgi: writing STDIN terminator: %v", err)
			return vr.ErrorResult
		}
	}
	return vr.GoOn
}

// readLoop blocks reading records off the backend connection until
// END_REQUEST or an I/O error, translating STDOUT into the HTTP
// response head + body and STDERR into log lines (spec.md §4.11).
func (d *Driver) readLoop() {
	r := bufio.NewReaderSize(d.conn, 4096)
	for {
		typ, payload, err := readRecord(r)
		if err != nil {
			d.finish(true, func() {
				if !d.headerParsed {
					d.v.Response.StatusCode = 502
					d.v.HandleDirect()
				}
				d.v.Out.Close()
			})
			return
		}

		switch typ {
		case typeStdout:
			d.onStdout(payload)
		case typeStderr:
			d.stderrBuf.Write(payload)
		case typeEndRequest:
			end := decodeEndRequest(payload)
			failed := end.protocolStatus != statusRequestComplete
			if d.stderrBuf.Len() > 0 {
				d.logger().Warnf("fastcgi: stderr: %s", d.stderrBuf.String())
			}
			d.finish(failed, func() {
				if !d.headerParsed {
					d.v.Response.StatusCode = 502
					d.v.HandleDirect()
				}
				d.v.Out.Close()
			})
			return
		}
	}
}

func (d *Driver) onStdout(payload []byte) {
	if len(payload) == 0 {
		return
	}
	if d.headerParsed {
		d.schedule(func() {
			d.v.Out.AppendBytes(payload)
			d.v.Joblist()
		})
		return
	}

	d.headerBuf.Write(payload)
	head, body, ok := splitHeaderBlock(d.headerBuf.Bytes())
	if !ok {
		return // header block not complete yet
	}
	d.headerParsed = true
	status, hdrs := parseCGIHeaders(head)

	d.schedule(func() {
		d.v.Response.StatusCode = status
		d.v.Response.Headers = hdrs
		d.v.HandleResponseHeaders()
		if len(body) > 0 {
			d.v.Out.AppendBytes(body)
		}
		d.v.Joblist()
	})
}

func (d *Driver) finish(failed bool, mutate func()) {
	d.schedule(func() {
		mutate()
		d.v.Joblist()
	})
	if d.onDone != nil {
		d.onDone(failed)
	}
}

// splitHeaderBlock looks for the blank-line terminator in a growing
// STDOUT accumulation, returning the header block and any body bytes
// that arrived past it.
func splitHeaderBlock(buf []byte) (head, body []byte, ok bool) {
	if i := bytes.Index(buf, []byte("\r\n\r\n")); i >= 0 {
		return buf[:i], buf[i+4:], true
	}
	if i := bytes.Index(buf, []byte("\n\n")); i >= 0 {
		return buf[:i], buf[i+2:], true
	}
	return nil, nil, false
}

// parseCGIHeaders parses a CGI/1.1 response header block: "Status:" (if
// present) sets the HTTP status code, every other line is a response
// header. There is no status line of the HTTP/1.1 request-line shape,
// so this is a small dedicated parser rather than a reuse of
// httpparser.Parser, which is grammared around a request line.
func parseCGIHeaders(block []byte) (int, httpparser.Headers) {
	status := 200
	var hdrs httpparser.Headers

	for _, line := range bytes.Split(block, []byte("\n")) {
		line = bytes.TrimRight(line, "\r")
		if len(line) == 0 {
			continue
		}
		i := bytes.IndexByte(line, ':')
		if i < 0 {
			continue
		}
		name := strings.TrimSpace(string(line[:i]))
		value := strings.TrimSpace(string(line[i+1:]))
		if strings.EqualFold(name, "Status") {
			if code, err := strconv.Atoi(strings.Fields(value)[0]); err == nil {
				status = code
			}
			continue
		}
		hdrs = append(hdrs, httpparser.Header{Line: name + ": " + value, Name: name, Value: value})
	}
	return status, hdrs
}

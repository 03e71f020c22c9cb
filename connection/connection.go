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

// Package connection implements the per-TCP-connection state machine
// (spec §4.8), grounded on original_source/src/connection.h and the
// LI_CON_STATE_* transitions in src/main/connection.c.
package connection

import (
	"net"
	"time"

	"github/sabouaram/httpengine/httpparser"
	"github/sabouaram/httpengine/stream"
	"github/sabouaram/httpengine/vr"
)

type State int

const (
	Dead State = iota
	RequestStart
	ReadRequestHeader
	HandleMainVR
	Write
	KeepAlive
	Upgraded
	Close
)

func (s State) String() string {
	switch s {
	case Dead:
		return "dead"
	case RequestStart:
		return "request_start"
	case ReadRequestHeader:
		return "read_request_header"
	case HandleMainVR:
		return "handle_main_vr"
	case Write:
		return "write"
	case KeepAlive:
		return "keep_alive"
	case Upgraded:
		return "upgraded"
	case Close:
		return "close"
	default:
		return "unknown"
	}
}

// Limits bounds keep-alive reuse of a connection (spec §4.8).
type Limits struct {
	MaxKeepAliveRequests int
	MaxKeepAliveIdle     time.Duration
	IOTimeout            time.Duration
}

// Handler installs the action root a VR runs once its request headers
// are parsed, the Go analogue of core_handle_request_header pushing
// vr->options.mainaction onto the action stack. It runs once per
// request (not once per connection), since vr.VR.Reset drops the
// previous request's action stack on every keep-alive reuse.
type Handler func(v *vr.VR)

// Conn drives one accepted socket through its request lifecycle. It
// owns the raw in/out stream nodes, the HTTP parser, and the VR for
// the request currently in flight.
type Conn struct {
	State State
	Limits

	RemoteAddr string
	LocalAddr  string
	IsSSL      bool

	RawIn, RawOut *stream.Node

	parser  *httpparser.Parser
	VR      *vr.VR
	handler Handler

	requestsServed int
	keepAlive      bool

	deadline time.Time

	onClose func(*Conn)
}

// New wires a Conn to the already-established raw stream pair (the
// socket's IOStream.StreamIn/StreamOut, or the plaintext side of a
// TLS filter), starting in RequestStart. handler may be nil, in which
// case every request runs an empty action stack, no response is
// produced and the connection stays in HandleMainVR (used by tests
// that only exercise the parser/state-machine plumbing). joblist is threaded
// into the VR (vr.New) so an indirect handler (e.g. a FastCGI dispatch
// completing on another goroutine) can re-drive OnReadable once its
// response is ready; it may also be nil, in which case vr.VR.Joblist
// is a no-op and only new socket reads re-drive the connection.
func New(rawIn, rawOut *stream.Node, limits Limits, handler Handler, joblist func(*vr.VR), onClose func(*Conn)) *Conn {
	c := &Conn{
		State:     RequestStart,
		Limits:    limits,
		RawIn:     rawIn,
		RawOut:    rawOut,
		keepAlive: true,
		handler:   handler,
		onClose:   onClose,
	}
	c.parser = httpparser.New()
	c.VR = vr.New(joblist)
	return c
}

// OnReadable is invoked when RawIn has new bytes queued; it drives the
// header parser and, once headers are complete, starts the VR's
// request-header handling (spec §4.8's ReadRequestHeader -> HandleMainVR
// edge).
func (c *Conn) OnReadable() (State, error) {
	switch c.State {
	case RequestStart:
		if c.RawIn.Out.Length() == 0 {
			return c.State, nil
		}
		c.State = ReadRequestHeader
		fallthrough
	case ReadRequestHeader:
		state, req, err := c.parser.Parse(c.RawIn.Out)
		if err != nil {
			c.failRequest(err)
			return c.State, err
		}
		if state != httpparser.StateDone {
			return c.State, nil
		}
		c.VR.Request = req
		c.applyConnectionHeader(req)
		c.State = HandleMainVR
		c.VR.RemoteAddr = c.RemoteAddr
		c.VR.ServerAddr, c.VR.ServerPort = splitHostPort(c.LocalAddr)
		if c.handler != nil {
			c.handler(c.VR)
		}
		c.VR.HandleRequestHeaders()
		fallthrough
	case HandleMainVR:
		c.VR.In.StealAll(c.RawIn.Out)
		if c.VR.IsIndirect() {
			c.VR.HandleRequestBody()
		}
		c.VR.HandleResponseBody()
		c.RawOut.Out.StealAll(c.VR.VROut)
		if c.VR.Done() {
			c.toWrite()
		}
		return c.State, nil
	default:
		return c.State, nil
	}
}

func (c *Conn) applyConnectionHeader(req *httpparser.Request) {
	if v, ok := req.Headers.Get("Connection"); ok && equalFoldTrim(v, "close") {
		c.keepAlive = false
	}
	if req.Version == httpparser.Version10 {
		if v, ok := req.Headers.Get("Connection"); !ok || !equalFoldTrim(v, "keep-alive") {
			c.keepAlive = false
		}
	}
}

func equalFoldTrim(s, target string) bool {
	trimmed := trimSpace(s)
	return len(trimmed) == len(target) && foldEqual(trimmed, target)
}

func trimSpace(s string) string {
	i, j := 0, len(s)
	for i < j && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	for j > i && (s[j-1] == ' ' || s[j-1] == '\t') {
		j--
	}
	return s[i:j]
}

func foldEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

func (c *Conn) failRequest(err error) {
	status := 400
	if err == httpparser.ErrTooLong {
		status = 414
	}
	c.VR.Response.StatusCode = status
	c.VR.HandleDirect()
	c.keepAlive = false
	c.toWrite()
}

// toWrite moves the VR's response into RawOut and advances to Write,
// per spec §4.7 Completion / §4.8's HandleMainVR -> Write edge.
func (c *Conn) toWrite() {
	c.State = Write
	c.RawOut.Out.StealAll(c.VR.VROut)
	if c.RawOut.Out.IsClosed() || c.VR.VROut.IsClosed() {
		c.RawOut.Out.Close()
	}
	c.RawOut.Notify()
}

// OnWritten is invoked once RawOut has drained; decides between
// KeepAlive, Close, or (for an indirect handler that installed raw
// streams) Upgraded.
func (c *Conn) OnWritten() {
	if c.State != Write {
		return
	}
	c.requestsServed++
	if !c.keepAlive || (c.MaxKeepAliveRequests > 0 && c.requestsServed >= c.MaxKeepAliveRequests) {
		c.State = Close
		c.shutdown()
		return
	}
	c.State = KeepAlive
	c.deadline = time.Now().Add(c.MaxKeepAliveIdle)
	c.VR.Reset()
	c.parser = httpparser.New()
}

// Deadline reports the instant set by the last OnWritten -> KeepAlive
// transition, used by the worker's keep-alive queue to order entries.
func (c *Conn) Deadline() time.Time {
	return c.deadline
}

// OnIdleTimeout is driven by the worker's keep-alive FIFO/timer.
func (c *Conn) OnIdleTimeout() {
	if c.State == KeepAlive {
		c.State = Close
		c.shutdown()
	}
}

// ResumeFromIdle is called when new bytes arrive while KeepAlive.
func (c *Conn) ResumeFromIdle() {
	if c.State == KeepAlive {
		c.State = RequestStart
	}
}

// Upgrade transitions to Upgraded for an indirect handler that took
// over the raw stream pair directly (e.g. CONNECT / WebSocket).
func (c *Conn) Upgrade() {
	c.State = Upgraded
}

func (c *Conn) shutdown() {
	c.State = Dead
	if c.onClose != nil {
		c.onClose(c)
	}
}

// splitHostPort separates a listener's bound address into the
// SERVER_ADDR/SERVER_PORT pair CGI/1.1 wants; a malformed or empty
// addr yields the address back unsplit with an empty port rather than
// an error, since this is advisory environment data, not protocol state.
func splitHostPort(addr string) (host, port string) {
	h, p, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, ""
	}
	return h, p
}

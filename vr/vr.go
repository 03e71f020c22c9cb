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

// Package vr implements the virtual-request state machine: the
// per-request object that runs the action stack, drives input/output
// filters and tracks direct vs indirect handler dispatch, grounded on
// original_source/include/lighttpd/virtualrequest.h.
package vr

import (
	"github/sabouaram/httpengine/chunk"
	"github/sabouaram/httpengine/httpparser"
)

// State mirrors vrequest_state.
type State int

const (
	Clean State = iota
	HandleRequestHeaders
	ReadContent
	HandleResponseHeaders
	WriteContent
	Error
)

func (s State) String() string {
	switch s {
	case Clean:
		return "clean"
	case HandleRequestHeaders:
		return "handle_request_headers"
	case ReadContent:
		return "read_content"
	case HandleResponseHeaders:
		return "handle_response_headers"
	case WriteContent:
		return "write_content"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Response carries the status line and header block the handler
// produced.
type Response struct {
	StatusCode int
	Headers    httpparser.Headers
}

// VR is one request flowing through a connection. vr_in/vr_out sit
// between the connection's raw queues and the filter chains; in/out
// are what the handler (direct or indirect) actually reads/writes.
type VR struct {
	State State

	Request  *httpparser.Request
	Physical Physical
	Response Response

	// Connection-derived addressing (CGI/1.1's REMOTE_ADDR/SERVER_ADDR/
	// SERVER_PORT, spec.md §4.11), set by connection.Conn right before
	// the per-request handler runs.
	RemoteAddr string
	ServerAddr string
	ServerPort string

	VRIn, VROut *chunk.Queue
	In, Out     *chunk.Queue

	FiltersIn  *FilterChain
	FiltersOut *FilterChain

	stack *ActionStack

	indirect          bool
	handleRequestBody Handler

	headWritten bool

	joblist func(*VR)
}

// Physical holds the resolved filesystem mapping for the request
// (spec §6 "physical attributes").
type Physical struct {
	Path     string
	BaseDir  string
	DocRoot  string
	RelPath  string
	PathInfo string
	Size     int64
}

// Handler is a callback an indirect dispatch installs to receive
// request-body notifications (vrequest_handler equivalent).
type Handler func(v *VR) Result

// Result is the outcome of running one action-stack step or handler
// call.
type Result int

const (
	GoOn Result = iota
	WaitForEvent
	ErrorResult
	Comeback
)

// New creates a VR in the Clean state with empty queues.
func New(joblist func(*VR)) *VR {
	return &VR{
		State:      Clean,
		VRIn:       chunk.New(),
		VROut:      chunk.New(),
		In:         chunk.New(),
		Out:        chunk.New(),
		FiltersIn:  NewFilterChain(),
		FiltersOut: NewFilterChain(),
		stack:      NewActionStack(),
		joblist:    joblist,
	}
}

// Reset returns the VR to Clean, ready for the next request on a
// keep-alive connection.
func (v *VR) Reset() {
	v.State = Clean
	v.Request = nil
	v.Physical = Physical{}
	v.Response = Response{}
	v.VRIn = chunk.New()
	v.VROut = chunk.New()
	v.In = chunk.New()
	v.Out = chunk.New()
	v.FiltersIn = NewFilterChain()
	v.FiltersOut = NewFilterChain()
	v.stack = NewActionStack()
	v.indirect = false
	v.handleRequestBody = nil
	v.headWritten = false
}

// SetActionRoot installs the action tree to run once headers are
// handled.
func (v *VR) SetActionRoot(root Action) {
	v.stack.Push(root)
}

// HandleRequestHeaders enters HandleRequestHeaders and runs the
// action stack until it completes, blocks, or errors.
func (v *VR) HandleRequestHeaders() Result {
	v.State = HandleRequestHeaders
	return v.RunStack()
}

// RunStack advances the action stack; returns GoOn once the stack is
// empty (dispatch happened), WaitForEvent if a function node asked to
// block, or ErrorResult.
func (v *VR) RunStack() Result {
	for {
		node, ok := v.stack.Top()
		if !ok {
			return GoOn
		}
		res := node.run(v)
		switch res {
		case GoOn:
			v.stack.Advance()
		case expanded:
			// List/Condition already popped themselves and pushed
			// their chosen children; loop to run the new top.
		case Comeback:
			// re-enter same node next call
			return GoOn
		case WaitForEvent:
			return WaitForEvent
		case ErrorResult:
			v.State = Error
			return ErrorResult
		}
	}
}

// HandleDirect marks the response as fully produced synchronously:
// the VR skips ReadContent and closes Out (spec §4.7).
func (v *VR) HandleDirect() {
	v.indirect = false
	v.Out.Close()
	v.State = HandleResponseHeaders
	v.writeResponseHead()
}

// HandleIndirect installs a handler that will be invoked as request
// body bytes arrive, and expects the handler to eventually connect a
// source to Out itself.
func (v *VR) HandleIndirect(onBody Handler) {
	v.indirect = true
	v.handleRequestBody = onBody
	v.State = ReadContent
}

// IsIndirect reports whether the current handler dispatch is indirect.
func (v *VR) IsIndirect() bool { return v.indirect }

// HandleRequestBody feeds newly arrived request-content to an indirect
// handler.
func (v *VR) HandleRequestBody() Result {
	if v.handleRequestBody == nil {
		return GoOn
	}
	return v.handleRequestBody(v)
}

// HandleResponseHeaders transitions into HandleResponseHeaders and
// writes the response head into VROut (once per request).
func (v *VR) HandleResponseHeaders() {
	v.State = HandleResponseHeaders
	v.writeResponseHead()
}

// HandleResponseBody runs the output filter chain over VROut pending
// in Out, moving transformed bytes to VROut.
func (v *VR) HandleResponseBody() {
	v.State = WriteContent
	v.FiltersOut.Run(v.VROut, v.Out)
}

// Done reports whether the response is fully produced and flushed
// (spec §4.7 Completion).
func (v *VR) Done() bool {
	return v.VROut.IsClosed() && v.VROut.Length() == 0
}

// Joblist re-schedules this VR for another state-machine pass, the Go
// analogue of vrequest_joblist_append.
func (v *VR) Joblist() {
	if v.joblist != nil {
		v.joblist(v)
	}
}

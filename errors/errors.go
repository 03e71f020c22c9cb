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

// Package errors provides a lightweight CodeError taxonomy modeled on
// HTTP status codes, used throughout httpengine so every subsystem can
// report failures without callers needing to type-switch on concrete
// error types.
package errors

import (
	"fmt"
	"strconv"
)

// CodeError is a numeric error code, similar in spirit to an HTTP status
// code. Each package reserves a contiguous range starting at its
// MinPkg* constant so codes never collide across packages.
type CodeError uint16

const (
	UnknownError CodeError = 0

	MinPkgChunk       CodeError = 1000
	MinPkgStream      CodeError = 1100
	MinPkgHTTPParser  CodeError = 1200
	MinPkgChunked     CodeError = 1300
	MinPkgVR          CodeError = 1400
	MinPkgConnection  CodeError = 1500
	MinPkgWorker      CodeError = 1600
	MinPkgServer      CodeError = 1700
	MinPkgTLSFilter   CodeError = 1800
	MinPkgBackendPool CodeError = 1900
	MinPkgFastCGI     CodeError = 2000
	MinPkgConfig      CodeError = 2100
	MinPkgStatCache   CodeError = 2200
)

// Kind classifies a CodeError into the taxonomy from spec §7: the kind
// determines the default client-visible behavior (status code, whether
// keep-alive survives, whether the error is fatal to the connection).
type Kind uint8

const (
	KindUnknown           Kind = iota
	KindParse                  // client input invalid -> 4xx, keep-alive disabled
	KindResourceExhausted      // out of fds/memory/backends -> 502/503
	KindUpstream               // backend reset/protocol violation -> 502 or abort
	KindIO                     // socket/disk error -> fatal to connection
	KindTimeout                // io/keepalive/backend wait or connect timeout
	KindInvariant              // internal invariant violation -> fatal to worker
)

type Message func(code CodeError) string

var registry = make(map[CodeError]Message)

// RegisterIdFctMessage registers the message function for every code a
// package owns, keyed by that package's minimum code. An Error uses the
// function registered under the largest minimum not above its code; no
// package in this module registers one, so only callers that do get
// custom messages.
func RegisterIdFctMessage(min CodeError, fct Message) {
	registry[min] = fct
}

// Error is the concrete error type returned across package boundaries.
type Error struct {
	code   CodeError
	kind   Kind
	parent error
}

func (e *Error) Error() string {
	msg := e.message()
	if e.parent != nil {
		return fmt.Sprintf("%s: %s", msg, e.parent.Error())
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.parent
}

func (e *Error) Code() CodeError {
	return e.code
}

func (e *Error) Kind() Kind {
	return e.kind
}

func (e *Error) HasParent() bool {
	return e.parent != nil
}

func (e *Error) message() string {
	var (
		best    CodeError
		bestFct Message
		found   bool
	)
	for min, fct := range registry {
		if e.code >= min && (!found || min > best) {
			best, bestFct, found = min, fct, true
		}
	}
	if found && bestFct != nil {
		if m := bestFct(e.code); m != "" {
			return m
		}
	}
	return "error code " + strconv.Itoa(e.code.Int())
}

func (c CodeError) Int() int {
	return int(c)
}

// New creates an Error of the given kind wrapping an optional parent.
func New(code CodeError, kind Kind, parent error) *Error {
	return &Error{code: code, kind: kind, parent: parent}
}

// Is reports whether err is a *Error carrying exactly this code.
func Is(err error, code CodeError) bool {
	var e *Error
	for err != nil {
		if ce, ok := err.(*Error); ok {
			e = ce
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return e != nil && e.code == code
}

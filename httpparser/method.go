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

// Package httpparser implements a table-driven incremental HTTP/1.1
// request-line/header parser that consumes directly from a
// chunk.Queue via a chunk.Iter, never copying the body and only
// assembling a token into a private buffer when it straddles a chunk
// boundary (grounded on original_source/src/http_request_parser.h and
// src/chunk_parser.h's mark/cs idiom).
package httpparser

// Method enumerates the methods request.h lists; unrecognized methods
// parse to Unset with Raw carrying the literal token.
type Method int

const (
	Unset Method = iota
	GET
	POST
	HEAD
	OPTIONS
	PROPFIND
	MKCOL
	PUT
	DELETE
	COPY
	MOVE
	PROPPATCH
	REPORT
	CHECKOUT
	CHECKIN
	VERSIONCONTROL
	UNCHECKOUT
	MKACTIVITY
	MERGE
	LOCK
	UNLOCK
	LABEL
	CONNECT
)

var methodNames = map[string]Method{
	"GET":             GET,
	"POST":            POST,
	"HEAD":            HEAD,
	"OPTIONS":         OPTIONS,
	"PROPFIND":        PROPFIND,
	"MKCOL":           MKCOL,
	"PUT":             PUT,
	"DELETE":          DELETE,
	"COPY":            COPY,
	"MOVE":            MOVE,
	"PROPPATCH":       PROPPATCH,
	"REPORT":          REPORT,
	"CHECKOUT":        CHECKOUT,
	"CHECKIN":         CHECKIN,
	"VERSION-CONTROL": VERSIONCONTROL,
	"UNCHECKOUT":      UNCHECKOUT,
	"MKACTIVITY":      MKACTIVITY,
	"MERGE":           MERGE,
	"LOCK":            LOCK,
	"UNLOCK":          UNLOCK,
	"LABEL":           LABEL,
	"CONNECT":         CONNECT,
}

func parseMethod(tok string) Method {
	if m, ok := methodNames[tok]; ok {
		return m
	}
	return Unset
}

// Version enumerates the two supported HTTP versions.
type Version int

const (
	VersionUnset Version = iota
	Version10
	Version11
)

func parseVersion(tok string) (Version, bool) {
	switch tok {
	case "HTTP/1.0":
		return Version10, true
	case "HTTP/1.1":
		return Version11, true
	default:
		return VersionUnset, false
	}
}

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

package vr

import (
	"net/http"
	"strconv"
	"time"

	"github/sabouaram/httpengine/httpparser"
)

// serverIdent is the default Server header value, grounded on
// original_source/src/main/plugin_core.c's default response headers
// (spec.md §6: headers filled in "when missing").
const serverIdent = "httpengine"

// writeResponseHead serializes the status line and header block into
// VROut exactly once, ahead of whatever body bytes HandleResponseBody
// later moves from Out. Server/Date are filled in only if an action
// didn't already set them itself.
func (v *VR) writeResponseHead() {
	if v.headWritten {
		return
	}
	v.headWritten = true

	if _, ok := v.Response.Headers.Get("Server"); !ok {
		v.Response.Headers = append(v.Response.Headers, httpparser.Header{
			Line: "Server: " + serverIdent, Name: "Server", Value: serverIdent,
		})
	}
	if _, ok := v.Response.Headers.Get("Date"); !ok {
		date := time.Now().UTC().Format(http.TimeFormat)
		v.Response.Headers = append(v.Response.Headers, httpparser.Header{
			Line: "Date: " + date, Name: "Date", Value: date,
		})
	}

	status := v.Response.StatusCode
	if status == 0 {
		status = 200
	}
	text := http.StatusText(status)
	if text == "" {
		text = "Unknown"
	}

	var head []byte
	head = append(head, "HTTP/1.1 "...)
	head = append(head, strconv.Itoa(status)...)
	head = append(head, ' ')
	head = append(head, text...)
	head = append(head, "\r\n"...)
	for _, h := range v.Response.Headers {
		head = append(head, h.Name...)
		head = append(head, ": "...)
		head = append(head, h.Value...)
		head = append(head, "\r\n"...)
	}
	head = append(head, "\r\n"...)

	v.VROut.AppendBytes(head)
}

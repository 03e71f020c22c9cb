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
	"encoding/json"

	"github/sabouaram/httpengine/httpparser"
)

// NewStatusAction is the core_handle_status equivalent
// (original_source/src/modules/mod_status.c's aggregate counters),
// collapsed to a JSON encoding of whatever snapshot() returns instead
// of that module's HTML page (explicit Non-goal). snapshot is a
// closure rather than a concrete server/worker type to avoid vr
// depending on the packages that already depend on vr (connection,
// worker, server all import vr to drive the VR state machine).
func NewStatusAction(snapshot func() interface{}) Action {
	return &FunctionAction{Call: func(v *VR) Result {
		body, err := json.Marshal(snapshot())
		if err != nil {
			v.Response.StatusCode = 500
			v.HandleDirect()
			return GoOn
		}
		v.Response.StatusCode = 200
		v.Response.Headers = append(v.Response.Headers, httpparser.Header{
			Line: "Content-Type: application/json", Name: "Content-Type", Value: "application/json",
		})
		v.Out.AppendBytes(body)
		v.HandleDirect()
		return GoOn
	}}
}

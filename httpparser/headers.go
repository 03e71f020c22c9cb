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

import "strings"

// Header is one request header line. Name and Value share the same
// backing Line string (a sub-slice of it), preserving original case
// and enabling cheap prefix matching, per spec §4.5.
type Header struct {
	Line  string
	Name  string
	Value string
}

// Headers is the ordered list of headers as they appeared on the
// wire; duplicates are preserved in order (callers fold/merge as the
// semantics of the individual header require).
type Headers []Header

// Get returns the value of the first header matching name
// case-insensitively, and whether one was found.
func (h Headers) Get(name string) (string, bool) {
	for _, hdr := range h {
		if strings.EqualFold(hdr.Name, name) {
			return hdr.Value, true
		}
	}
	return "", false
}

// Has reports whether any header matches name case-insensitively.
func (h Headers) Has(name string) bool {
	_, ok := h.Get(name)
	return ok
}

func foldContinuation(prev *Header, cont string) {
	prev.Line = prev.Line + " " + strings.TrimSpace(cont)
	prev.Value = prev.Value + " " + strings.TrimSpace(cont)
}

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

import "strings"

// NewDocRootAction builds the physical path mapping from a fixed
// document root plus the request URI's path component, grounded on
// core_handle_docroot: physical.path = docroot + uri.path, minus the
// query string core_handle_docroot never sees (its caller already
// split request.uri.path from request.uri.query before this handler
// runs).
func NewDocRootAction(docRoot string) Action {
	return &SettingAction{
		Apply: func(v *VR) {
			v.Physical.DocRoot = docRoot
			v.Physical.BaseDir = docRoot

			path := ""
			if v.Request != nil {
				path = requestPath(v.Request.URI)
			}
			v.Physical.RelPath = path

			if path == "" || path[0] != '/' {
				v.Physical.Path = docRoot + "/" + path
			} else {
				v.Physical.Path = docRoot + path
			}
		},
	}
}

// requestPath strips the query string (and any fragment a client
// mistakenly sent) from a request-target, leaving the path component
// core_handle_docroot appends to the document root.
func requestPath(uri string) string {
	if i := strings.IndexAny(uri, "?#"); i >= 0 {
		return uri[:i]
	}
	return uri
}

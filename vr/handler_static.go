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
	"errors"
	"os"
	"strconv"

	"github/sabouaram/httpengine/httpparser"
)

// StatFileSource is the filesystem stat/open collaborator a static
// handler needs; statcache.Cache satisfies it without vr importing
// statcache (which would import vr's Physical type otherwise, a cycle).
type StatFileSource interface {
	GetWithFile(path string) (os.FileInfo, *os.File, error)
}

// NewStaticAction returns the core_handle_static equivalent
// (original_source/src/main/plugin_core.c): serves v.Physical.Path
// directly off disk via the stat cache, grounded on mod_dirlist.c's
// simpler static-file sibling. Mime-type lookup is out of scope (spec
// §1 Non-goals), so every regular file gets application/octet-stream
// unless an earlier action already set Content-Type.
func NewStaticAction(stat StatFileSource) Action {
	return &FunctionAction{Call: func(v *VR) Result {
		switch v.Request.Method {
		case httpparser.GET, httpparser.HEAD:
		default:
			return GoOn
		}
		if v.Physical.Path == "" {
			return GoOn
		}

		info, f, err := stat.GetWithFile(v.Physical.Path)
		if err != nil {
			switch {
			case errors.Is(err, os.ErrNotExist):
				v.Response.StatusCode = 404
			case errors.Is(err, os.ErrPermission):
				v.Response.StatusCode = 403
			default:
				v.Response.StatusCode = 500
			}
			v.HandleDirect()
			v.Out.Close()
			return GoOn
		}

		if info.IsDir() {
			return GoOn // let an index action (or a later one) handle it
		}
		if !info.Mode().IsRegular() {
			if f != nil {
				f.Close()
			}
			v.Response.StatusCode = 403
			v.HandleDirect()
			v.Out.Close()
			return GoOn
		}

		v.Response.StatusCode = 200
		if _, ok := v.Response.Headers.Get("Content-Type"); !ok {
			v.Response.Headers = append(v.Response.Headers, httpparser.Header{
				Line: "Content-Type: application/octet-stream",
				Name: "Content-Type", Value: "application/octet-stream",
			})
		}
		v.Response.Headers = append(v.Response.Headers, httpparser.Header{
			Line:  "Content-Length: " + strconv.FormatInt(info.Size(), 10),
			Name:  "Content-Length",
			Value: strconv.FormatInt(info.Size(), 10),
		})

		if v.Request.Method == httpparser.HEAD || info.Size() == 0 {
			if f != nil {
				f.Close()
			}
		} else {
			v.Out.AppendFileFD(v.Physical.Path, 0, info.Size(), f)
		}
		v.HandleDirect()
		return GoOn
	}}
}

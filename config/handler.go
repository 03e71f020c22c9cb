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

package config

import (
	"strings"

	"github/sabouaram/httpengine/backendpool"
	"github/sabouaram/httpengine/fastcgi"
	"github/sabouaram/httpengine/logger"
	"github/sabouaram/httpengine/statcache"
	"github/sabouaram/httpengine/vr"
	"github/sabouaram/httpengine/worker"
)

// statusPath mirrors the original's own mod_status doc example
// (plugin_core.c's neighbouring mod_status.c: `req.path == "/srv-status"`).
const statusPath = "/srv-status"

// BuildHandler assembles the per-request action root every accepted
// connection installs (spec.md §4.7's "a server owns one mainaction
// tree"): document-root mapping, the status page, one routing branch
// per configured FastCGI backend (matched by BackendConfig.Suffix),
// and a static-file fallback, in that order, mirroring
// plugin_core.c's prio ordering of docroot before the per-module
// handlers it feeds.
//
// stat and snapshot may be nil, in which case the static and status
// branches never produce a response (the corresponding request falls
// through to whatever runs next; there is no default 404, so a request
// no action handles gets no response and its connection stays in
// HandleMainVR).
func (c *Config) BuildHandler(pools map[string]*backendpool.Pool, stat *statcache.Cache, snapshot func() interface{}, log logger.FuncLog) worker.RequestHandler {
	docRoot := vr.NewDocRootAction(c.DocumentRoot)

	var status vr.Action
	if snapshot != nil {
		status = &vr.ConditionAction{
			Cond: func(v *vr.VR) bool { return v.Request != nil && requestPath(v.Request.URI) == statusPath },
			Then: vr.NewStatusAction(snapshot),
		}
	}

	var static vr.Action
	if stat != nil {
		static = vr.NewStaticAction(stat)
	}

	return func(v *vr.VR, workerID int, schedule func(func())) {
		children := make([]vr.Action, 0, len(c.Backends)+3)
		children = append(children, docRoot)
		if status != nil {
			children = append(children, status)
		}
		for _, b := range c.Backends {
			if pool := pools[b.Name]; pool != nil {
				children = append(children, fastcgi.NewAction(b.Suffix, pool, workerID, schedule, log))
			}
		}
		if static != nil {
			children = append(children, static)
		}
		v.SetActionRoot(&vr.ListAction{Children: children})
	}
}

// requestPath strips the query string from a request-target, the same
// split vr.NewDocRootAction performs before mapping a physical path.
func requestPath(uri string) string {
	if i := strings.IndexAny(uri, "?#"); i >= 0 {
		return uri[:i]
	}
	return uri
}

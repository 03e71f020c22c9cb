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

package fastcgi

import (
	"context"
	"strings"

	"github/sabouaram/httpengine/backendpool"
	"github/sabouaram/httpengine/logger"
	"github/sabouaram/httpengine/vr"
)

// NewAction builds the mod_fastcgi.c equivalent (core_handle_status's
// sibling in plugin_core.c: a FunctionAction installed in the action
// tree that owns one fixed backend pool). suffix is this engine's
// config-driven stand-in for the original's config-language condition
// (`$HTTP["url"] =~ "\.php$" { fastcgi.server = ... }`, spec.md §6
// Non-goal). workerID/schedule come from the worker that is about to
// run this VR (worker.RequestHandler), since the pool lends connections
// per worker (spec.md §4.9) and any backend I/O must marshal its VR
// mutations back onto the owning worker loop.
//
// Lives in package fastcgi, not vr, to avoid vr importing backendpool
// (which would in turn need to import vr for vr.Physical, a cycle);
// fastcgi already depends on vr for the Driver.
func NewAction(suffix string, pool *backendpool.Pool, workerID int, schedule func(func()), log logger.FuncLog) vr.Action {
	return &vr.FunctionAction{Call: func(v *vr.VR) vr.Result {
		if v.Request == nil || !matchesSuffix(v.Request.URI, suffix) {
			return vr.GoOn
		}

		req := v.Request
		phys := v.Physical
		remoteAddr := v.RemoteAddr
		serverAddr := v.ServerAddr
		serverPort := v.ServerPort

		go func() {
			conn, err := pool.Get(context.Background(), workerID)
			if err != nil {
				schedule(func() {
					v.Response.StatusCode = 502
					v.HandleDirect()
					v.Joblist()
				})
				return
			}

			schedule(func() {
				d := New(conn.NetConn(), v, schedule, log, func(failed bool) {
					pool.Put(conn, failed)
				})
				if startErr := d.Start(req, phys, remoteAddr, serverAddr, serverPort); startErr != nil {
					pool.Put(conn, true)
					v.Response.StatusCode = 502
					v.HandleDirect()
					v.Joblist()
				}
			})
		}()

		return vr.WaitForEvent
	}}
}

// matchesSuffix strips the query string the same way core_handle_docroot
// does before comparing the URI's path component against suffix.
func matchesSuffix(uri, suffix string) bool {
	path := uri
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	return suffix != "" && strings.HasSuffix(path, suffix)
}

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
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github/sabouaram/httpengine/backendpool"
	"github/sabouaram/httpengine/connection"
	"github/sabouaram/httpengine/logger"
	"github/sabouaram/httpengine/server"
	"github/sabouaram/httpengine/worker"
)

// BuildServer materializes a server.Server from the parsed config:
// creates the worker pool with the configured per-connection limits
// and handler (the action-root installer every accepted connection
// runs per request, see worker.RequestHandler; built by the caller,
// since routing is application logic config.Config has no opinion on),
// then opens every listener (TLS-terminating or plain) against it. On
// any listener failure the already-opened listeners are left for the
// caller to tear down via the returned *server.Server (Shutdown closes
// whatever was opened, spec.md §4.12 "partial startup is still a
// running server").
func (c *Config) BuildServer(handler worker.RequestHandler, reg prometheus.Registerer, log logger.FuncLog) (*server.Server, error) {
	limits := connection.Limits{
		MaxKeepAliveRequests: c.Workers.MaxKeepAliveRequests,
		MaxKeepAliveIdle:     c.Workers.MaxKeepAliveIdle,
		IOTimeout:            c.Workers.IOTimeout,
	}

	srv := server.New(c.Workers.Count, limits, handler, reg, log)

	for _, l := range c.Listeners {
		if l.TLS == nil {
			if err := srv.Listen(l.network(), l.Address); err != nil {
				return srv, fmt.Errorf("config: listening on %s: %w", l.Address, err)
			}
			continue
		}

		tlsCfg, err := l.TLS.TLSConfig()
		if err != nil {
			return srv, fmt.Errorf("config: building TLS config for %s: %w", l.Address, err)
		}
		if err := srv.ListenTLS(l.network(), l.Address, tlsCfg); err != nil {
			return srv, fmt.Errorf("config: listening (tls) on %s: %w", l.Address, err)
		}
	}

	return srv, nil
}

// BuildBackendPools instantiates one backendpool.Pool per configured
// backend, keyed by name, ready for a routing action to draw
// connections from (spec.md §4.9). cb is applied to every pool; callers
// that need per-backend callbacks should build pools individually
// instead.
func (c *Config) BuildBackendPools(cb backendpool.Callbacks, reg prometheus.Registerer, log logger.FuncLog) (map[string]*backendpool.Pool, error) {
	pools := make(map[string]*backendpool.Pool, len(c.Backends))
	for _, b := range c.Backends {
		if err := b.Pool.Validate(); err != nil {
			return nil, fmt.Errorf("config: backend %q: %w", b.Name, err)
		}
		pool, err := backendpool.New(b.Pool, cb, reg, log)
		if err != nil {
			return nil, fmt.Errorf("config: backend %q: %w", b.Name, err)
		}
		pools[b.Name] = pool
	}
	return pools, nil
}

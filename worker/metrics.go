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

package worker

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics is a per-worker registration of the counters/gauges in
// spec.md §3/§8's per-worker snapshot. Registered lazily so a worker
// created without a registry (tests) never touches the default one.
type metrics struct {
	connections     prometheus.Gauge
	keepAliveDepth  prometheus.Gauge
	requestsHandled prometheus.Counter
}

func newMetrics(reg prometheus.Registerer, id int) *metrics {
	labels := prometheus.Labels{"worker": strconv.Itoa(id)}
	m := &metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "httpengine_worker_connections",
			Help:        "Connections currently owned by this worker.",
			ConstLabels: labels,
		}),
		keepAliveDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "httpengine_worker_keepalive_queue_depth",
			Help:        "Connections parked in this worker's keep-alive queue.",
			ConstLabels: labels,
		}),
		requestsHandled: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "httpengine_worker_requests_total",
			Help:        "Requests this worker has completed.",
			ConstLabels: labels,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.connections, m.keepAliveDepth, m.requestsHandled)
	}
	return m
}

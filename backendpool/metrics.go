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

package backendpool

import "github.com/prometheus/client_golang/prometheus"

// metrics is one pool's registration of the gauges/counters spec.md
// §8's TESTABLE PROPERTIES and SPEC_FULL.md's metrics section name:
// httpengine_backendpool_active/idle/waiters.
type metrics struct {
	active     prometheus.Gauge
	idle       prometheus.Gauge
	waiters    prometheus.Gauge
	opened     prometheus.Gauge
	migrations prometheus.Counter
}

func newMetrics(reg prometheus.Registerer, address string) *metrics {
	labels := prometheus.Labels{"backend": address}
	m := &metrics{
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "httpengine_backendpool_active",
			Help:        "Connections currently lent out to a VR.",
			ConstLabels: labels,
		}),
		idle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "httpengine_backendpool_idle",
			Help:        "Connections idle and reservable.",
			ConstLabels: labels,
		}),
		waiters: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "httpengine_backendpool_waiters",
			Help:        "VRs currently waiting for a connection.",
			ConstLabels: labels,
		}),
		opened: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "httpengine_backendpool_opened",
			Help:        "Connections currently open across every worker.",
			ConstLabels: labels,
		}),
		migrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "httpengine_backendpool_migrations_total",
			Help:        "Connections migrated between workers.",
			ConstLabels: labels,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.active, m.idle, m.waiters, m.opened, m.migrations)
	}
	return m
}

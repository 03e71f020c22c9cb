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

// Package worker implements the per-worker event loop: a disjoint set
// of connections, an io-timeout wait-queue, a keep-alive queue and a
// jobqueue, grounded on original_source/src/main/connection.c's
// worker-adjacent scheduling and on nabbar-golib/httpserver/run's
// start/stop/goroutine shape.
//
// Go's net.Conn.Read already blocks a goroutine (not an OS thread)
// until data is ready, so unlike the C original's single-threaded
// epoll loop, each connection here gets its own reader goroutine; the
// business-logic mutation (parsing, VR driving, queue bookkeeping)
// still runs exclusively on the worker's own loop goroutine, reached
// by handing a closure to the jobqueue and waking the loop, which
// preserves the "no shared mutable state on the hot path" invariant
// at the Connection/VR level.
package worker

import (
	"context"
	"crypto/tls"
	"net"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github/sabouaram/httpengine/connection"
	"github/sabouaram/httpengine/logger"
	"github/sabouaram/httpengine/stream"
	"github/sabouaram/httpengine/tlsfilter"
	"github/sabouaram/httpengine/vr"
)

const sweepInterval = time.Second

// RequestHandler is connection.Handler's worker-scoped counterpart: it
// additionally receives this worker's id (the reservation key a
// backendpool.Pool.Get call needs, spec.md §4.9) and its schedule
// function (w.enqueue), the marshalling point an indirect action (e.g.
// a FastCGI dispatch) must use to mutate the VR from a background
// goroutine, the same contract tlsfilter.Filter's schedule parameter
// already follows.
type RequestHandler func(v *vr.VR, workerID int, schedule func(func()))

// connState is a worker's private bookkeeping for one accepted
// connection: the wiring connection.Conn needs plus the io-timeout
// wheel token it currently holds (at most one of wheel-token /
// keep-alive-queue-membership is live at a time).
type connState struct {
	conn    *connection.Conn
	io      *stream.IOStream
	tls     *tlsfilter.Filter // nil for a plain-text connection
	netConn net.Conn
	stop    chan struct{}
	ioTok   token
}

// Worker owns one disjoint slice of the connection fleet.
type Worker struct {
	id      int
	log     logger.FuncLog
	met     *metrics
	handler RequestHandler

	jobs *jobQueue
	wake chan struct{}

	wheel     *timeoutWheel
	keepAlive *keepAliveQueue

	mu     sync.Mutex
	conns  map[*connState]struct{}
	closed bool

	requestsServed uint64
}

// New creates a Worker; reg may be nil (no metrics registration, used
// by tests), log may be nil (falls back to the package default).
// handler may be nil, installed as the action root for every request
// accepted by this worker (see RequestHandler/connection.Handler).
func New(id int, reg prometheus.Registerer, log logger.FuncLog, handler RequestHandler) *Worker {
	return &Worker{
		id:        id,
		log:       log,
		met:       newMetrics(reg, id),
		handler:   handler,
		jobs:      newJobQueue(),
		wake:      make(chan struct{}, 1),
		wheel:     newTimeoutWheel(),
		keepAlive: newKeepAliveQueue(),
		conns:     make(map[*connState]struct{}),
	}
}

func (w *Worker) logger() logger.Logger {
	if w.log != nil {
		if l := w.log(); l != nil {
			return l
		}
	}
	return logger.GetDefault()
}

// Run drives the event loop until ctx is cancelled or Stop is called.
// It never blocks on connection IO directly; that happens in the
// per-connection reader goroutines spawned by Accept.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.shutdown()
			return
		case <-w.wake:
			w.drainJobs()
		case now := <-ticker.C:
			w.sweep(now)
		}
	}
}

func (w *Worker) enqueue(j job) {
	w.jobs.push(j)
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Worker) drainJobs() {
	for _, j := range w.jobs.drain() {
		j()
	}
}

// connHandler binds w.handler to this worker's schedule function,
// producing the connection.Handler each accepted Conn installs.
func (w *Worker) connHandler() connection.Handler {
	if w.handler == nil {
		return nil
	}
	return func(v *vr.VR) { w.handler(v, w.id, w.enqueue) }
}

// connJoblist is the VR's vrequest_joblist_append equivalent: an
// indirect handler (e.g. a FastCGI dispatch finishing on its own
// goroutine) calls v.Joblist() to ask for another OnReadable pass once
// it has mutated the VR, and this re-enqueues that pass onto cs's
// owning worker loop rather than running it on the caller's goroutine.
func (w *Worker) connJoblist(cs *connState) func(*vr.VR) {
	return func(*vr.VR) { w.enqueue(func() { w.handleReadable(cs) }) }
}

// Accept wires netConn into a new Connection owned by this worker and
// starts its reader goroutine. limits bounds keep-alive reuse and the
// io-timeout per spec.md §4.8/§5.
func (w *Worker) Accept(netConn net.Conn, limits connection.Limits) *connection.Conn {
	cs := &connState{netConn: netConn, stop: make(chan struct{})}

	cs.io = stream.New(netConn, func(*stream.IOStream) { w.onIOStreamDestroy(cs) })
	rawOut := stream.NewNode(nil)
	stream.Link(rawOut, cs.io.StreamOut)

	cs.conn = connection.New(cs.io.StreamIn, rawOut, limits, w.connHandler(), w.connJoblist(cs), func(*connection.Conn) { w.onConnClosed(cs) })
	cs.conn.RemoteAddr = netConn.RemoteAddr().String()
	cs.conn.LocalAddr = netConn.LocalAddr().String()

	w.mu.Lock()
	w.conns[cs] = struct{}{}
	w.mu.Unlock()
	w.met.connections.Inc()

	if limits.IOTimeout > 0 {
		cs.ioTok = w.wheel.add(cs, time.Now().Add(limits.IOTimeout))
	}

	go w.readLoop(cs)
	return cs.conn
}

// AcceptTLS is Accept's TLS-terminating counterpart: netConn carries
// ciphertext, and a tlsfilter.Filter sits between the socket IOStream
// and the Connection, so the parser/VR/connection stack downstream
// never sees anything but plaintext (spec.md §4.10).
func (w *Worker) AcceptTLS(netConn net.Conn, tlsCfg *tls.Config, limits connection.Limits) *connection.Conn {
	cs := &connState{netConn: netConn, stop: make(chan struct{})}

	cs.io = stream.New(netConn, func(*stream.IOStream) { w.onIOStreamDestroy(cs) })
	cs.tls = tlsfilter.New(tlsCfg, cs.io.StreamIn, cs.io.StreamOut, w.enqueue,
		func() { w.enqueue(func() { w.handleReadable(cs) }) }, nil)

	cs.conn = connection.New(cs.tls.PlainIn, cs.tls.PlainOut, limits, w.connHandler(), w.connJoblist(cs), func(*connection.Conn) { w.onConnClosed(cs) })
	cs.conn.RemoteAddr = netConn.RemoteAddr().String()
	cs.conn.LocalAddr = netConn.LocalAddr().String()
	cs.conn.IsSSL = true

	w.mu.Lock()
	w.conns[cs] = struct{}{}
	w.mu.Unlock()
	w.met.connections.Inc()

	if limits.IOTimeout > 0 {
		cs.ioTok = w.wheel.add(cs, time.Now().Add(limits.IOTimeout))
	}

	go w.readLoopTLS(cs)
	return cs.conn
}

func (w *Worker) readLoop(cs *connState) {
	for {
		select {
		case <-cs.stop:
			return
		default:
		}

		cs.io.Readable()

		select {
		case <-cs.stop:
			return
		default:
		}

		w.enqueue(func() { w.handleReadable(cs) })
	}
}

// readLoopTLS is readLoop's TLS variant: the physical read still
// feeds ciphertext to cs.io.StreamIn, but it is handed to the filter
// (OnCryptReadable) instead of straight to handleReadable; the filter
// itself re-drives handleReadable once plaintext is decrypted.
func (w *Worker) readLoopTLS(cs *connState) {
	for {
		select {
		case <-cs.stop:
			return
		default:
		}

		cs.io.Readable()

		select {
		case <-cs.stop:
			return
		default:
		}

		cs.tls.OnCryptReadable()
	}
}

func (w *Worker) handleReadable(cs *connState) {
	w.mu.Lock()
	_, live := w.conns[cs]
	w.mu.Unlock()
	if !live {
		return
	}

	cs.conn.ResumeFromIdle()

	_, err := cs.conn.OnReadable()
	if err != nil {
		w.closeConn(cs)
		return
	}

	if cs.conn.State == connection.Write && cs.conn.RawOut.Out.Length() == 0 {
		cs.conn.OnWritten()
		w.requestsServed++
		w.met.requestsHandled.Inc()
	}

	w.requeue(cs)
}

// requeue moves cs between the io-timeout wheel and the keep-alive
// queue to match its post-transition state (spec.md §5: "on state
// change, the connection is re-queued").
func (w *Worker) requeue(cs *connState) {
	w.wheel.remove(cs.ioTok)
	w.keepAlive.remove(cs.conn)

	switch cs.conn.State {
	case connection.KeepAlive:
		w.keepAlive.push(cs.conn, cs.conn.Deadline())
		w.met.keepAliveDepth.Set(float64(w.keepAlive.len()))
	case connection.Dead, connection.Close:
		w.closeConn(cs)
	case connection.Upgraded:
		// raw byte stream now owned by an indirect handler; no further
		// io-timeout/keep-alive bookkeeping applies.
	default:
		if cs.conn.IOTimeout > 0 {
			cs.ioTok = w.wheel.add(cs, time.Now().Add(cs.conn.IOTimeout))
		}
	}
}

func (w *Worker) sweep(now time.Time) {
	for _, key := range w.wheel.sweep(now) {
		cs := key.(*connState)
		w.logger().Debugf("worker %d: io-timeout on connection", w.id)
		w.closeConn(cs)
	}

	expired := w.keepAlive.expired(now)
	w.met.keepAliveDepth.Set(float64(w.keepAlive.len()))
	for _, c := range expired {
		c.OnIdleTimeout()
	}
}

func (w *Worker) closeConn(cs *connState) {
	select {
	case <-cs.stop:
	default:
		close(cs.stop)
	}
	if cs.tls != nil {
		cs.tls.Close()
	}
	_ = cs.netConn.Close()
}

func (w *Worker) onConnClosed(cs *connState) {
	w.wheel.remove(cs.ioTok)
	w.keepAlive.remove(cs.conn)
	w.mu.Lock()
	delete(w.conns, cs)
	w.mu.Unlock()
	w.met.connections.Dec()
}

func (w *Worker) onIOStreamDestroy(cs *connState) {
	w.enqueue(func() { w.onConnClosed(cs) })
}

// Stop tears down every owned connection; Run's next loop iteration
// after ctx cancellation also calls this, so it is idempotent.
func (w *Worker) Stop() {
	w.shutdown()
}

func (w *Worker) shutdown() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	conns := make([]*connState, 0, len(w.conns))
	for cs := range w.conns {
		conns = append(conns, cs)
	}
	w.mu.Unlock()

	for _, cs := range conns {
		w.closeConn(cs)
	}
}

// Snapshot is the per-worker counters view spec.md §3/§8 requires for
// the server's cross-worker "collect" RPC.
type Snapshot struct {
	ID               int
	Connections      int
	KeepAliveDepth   int
	IOTimeoutPending int
	RequestsServed   uint64
}

func (w *Worker) Snapshot() Snapshot {
	w.mu.Lock()
	n := len(w.conns)
	w.mu.Unlock()
	return Snapshot{
		ID:               w.id,
		Connections:      n,
		KeepAliveDepth:   w.keepAlive.len(),
		IOTimeoutPending: w.wheel.len(),
		RequestsServed:   w.requestsServed,
	}
}

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

// Package server implements the fleet: a fixed-size pool of workers
// behind one or more listeners, the global lifecycle state machine
// and the cross-worker "collect" RPC, grounded on
// nabbar-golib/httpserver/{server,pool}.go's Server/PoolServer split
// (here folded into one type since this engine's "servers" are
// workers, not independent *http.Server instances).
package server

import (
	"context"
	"crypto/tls"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github/sabouaram/httpengine/connection"
	"github/sabouaram/httpengine/logger"
	"github/sabouaram/httpengine/worker"
)

// State mirrors spec.md §3's Server.dest_state.
type State int

const (
	Init State = iota
	Warmup
	Running
	Suspending
	Suspended
	Stopping
	Down
)

func (s State) String() string {
	switch s {
	case Init:
		return "init"
	case Warmup:
		return "warmup"
	case Running:
		return "running"
	case Suspending:
		return "suspending"
	case Suspended:
		return "suspended"
	case Stopping:
		return "stopping"
	case Down:
		return "down"
	default:
		return "unknown"
	}
}

const defaultShutdownTimeout = 10 * time.Second

// Server is a fleet of workers behind a set of listeners.
type Server struct {
	mu    sync.RWMutex
	state State

	workers []*worker.Worker
	next    int // round-robin cursor for Accept assignment

	listeners []net.Listener
	tlsCfgs   map[net.Listener]*tls.Config // non-nil entry means that listener terminates TLS
	limits    connection.Limits

	log logger.FuncLog
	reg prometheus.Registerer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Server with numWorkers workers (at least 1), none of
// them yet listening on any address. handler is installed as every
// worker's per-request action root (see worker.RequestHandler); nil
// means no handler runs and every request's action stack stays empty.
func New(numWorkers int, limits connection.Limits, handler worker.RequestHandler, reg prometheus.Registerer, log logger.FuncLog) *Server {
	if numWorkers < 1 {
		numWorkers = 1
	}
	s := &Server{
		state:  Init,
		limits: limits,
		log:    log,
		reg:    reg,
	}
	for i := 0; i < numWorkers; i++ {
		s.workers = append(s.workers, worker.New(i, reg, log, handler))
	}
	return s
}

func (s *Server) logger() logger.Logger {
	if s.log != nil {
		if l := s.log(); l != nil {
			return l
		}
	}
	return logger.GetDefault()
}

func (s *Server) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Server) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Listen binds addr and starts accepting connections, handing each
// one to the next worker in round-robin order (spec.md §2: "work is
// pinned to the worker that accepted it until an explicit migration
// point").
func (s *Server) Listen(network, addr string) error {
	ln, err := net.Listen(network, addr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.listeners = append(s.listeners, ln)
	s.mu.Unlock()

	s.wg.Add(1)
	go s.acceptLoop(ln)
	return nil
}

// ListenTLS is Listen's TLS-terminating counterpart: every connection
// accepted on addr is handed to worker.Worker.AcceptTLS instead of
// Accept, so the HTTP layer only ever sees plaintext (spec.md §4.10).
func (s *Server) ListenTLS(network, addr string, tlsCfg *tls.Config) error {
	ln, err := net.Listen(network, addr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.listeners = append(s.listeners, ln)
	if s.tlsCfgs == nil {
		s.tlsCfgs = make(map[net.Listener]*tls.Config)
	}
	s.tlsCfgs[ln] = tlsCfg
	s.mu.Unlock()

	s.wg.Add(1)
	go s.acceptLoop(ln)
	return nil
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()

	s.mu.RLock()
	tlsCfg := s.tlsCfgs[ln]
	s.mu.RUnlock()

	for {
		conn, err := ln.Accept()
		if err != nil {
			return // listener closed by Shutdown
		}
		if s.State() == Suspending || s.State() == Suspended {
			_ = conn.Close()
			continue
		}
		if tlsCfg != nil {
			s.nextWorker().AcceptTLS(conn, tlsCfg, s.limits)
		} else {
			s.nextWorker().Accept(conn, s.limits)
		}
	}
}

// Addrs returns the bound address of every active listener, in the
// order they were added.
func (s *Server) Addrs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	addrs := make([]string, 0, len(s.listeners))
	for _, ln := range s.listeners {
		addrs = append(addrs, ln.Addr().String())
	}
	return addrs
}

func (s *Server) nextWorker() *worker.Worker {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.workers[s.next%len(s.workers)]
	s.next++
	return w
}

// Start transitions Init -> Warmup -> Running and launches every
// worker's event loop.
func (s *Server) Start(ctx context.Context) {
	s.setState(Warmup)
	s.ctx, s.cancel = context.WithCancel(ctx)
	for _, w := range s.workers {
		ww := w
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			ww.Run(s.ctx)
		}()
	}
	s.setState(Running)
	s.logger().Infof("server started with %d workers", len(s.workers))
}

// Suspend stops accepting new connections on every listener while
// existing connections keep running (spec.md §3's Suspending/Suspended
// pair); Resume reverses it.
func (s *Server) Suspend() {
	s.setState(Suspending)
	s.setState(Suspended)
}

func (s *Server) Resume() {
	s.setState(Running)
}

// Shutdown closes every listener, cancels the workers' context (each
// worker drains and closes its own connections) and waits for
// everything to settle until ctx is done, or for at most
// defaultShutdownTimeout when ctx has no deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.setState(Stopping)

	s.mu.Lock()
	listeners := s.listeners
	s.listeners = nil
	s.mu.Unlock()

	for _, ln := range listeners {
		_ = ln.Close()
	}

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultShutdownTimeout)
		defer cancel()
	}

	select {
	case <-done:
	case <-ctx.Done():
	}

	s.setState(Down)
	return nil
}

// WaitNotify blocks until SIGINT/SIGTERM/SIGQUIT or ctx is done, then
// shuts down, mirroring nabbar-golib/httpserver/run's WaitNotify.
func (s *Server) WaitNotify(ctx context.Context) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer signal.Stop(quit)

	select {
	case <-quit:
	case <-ctx.Done():
	}
	_ = s.Shutdown(context.Background())
}

// Collected is the result of the cross-worker "collect" RPC (spec.md
// §3/§4.12/§8): one Snapshot per worker plus fleet-wide totals.
type Collected struct {
	State      State
	Workers    []worker.Snapshot
	TotalConns int
	TotalReqs  uint64
}

// Collect gathers every worker's Snapshot. Each Snapshot read is a
// worker-local mutex-guarded copy (worker.Worker.Snapshot), so this
// never touches another worker's state without going through its own
// synchronization, per spec.md §5.
func (s *Server) Collect() Collected {
	s.mu.RLock()
	workers := make([]*worker.Worker, len(s.workers))
	copy(workers, s.workers)
	st := s.state
	s.mu.RUnlock()

	c := Collected{State: st, Workers: make([]worker.Snapshot, 0, len(workers))}
	for _, w := range workers {
		snap := w.Snapshot()
		c.Workers = append(c.Workers, snap)
		c.TotalConns += snap.Connections
		c.TotalReqs += snap.RequestsServed
	}
	return c
}

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

// Package backendpool implements a pool of persistent outbound
// connections to a single backend address, shared across workers with
// reservation-style lending, grounded on
// original_source/src/main/backends.c's liBackendPool/liBackendWorkerPool
// split and nabbar-golib/httpserver/pool's worker-fanout idiom.
package backendpool

import (
	"context"
	"net"
	"sync"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"

	liberr "github/sabouaram/httpengine/errors"
	"github/sabouaram/httpengine/logger"
)

// softCapUnbounded is the ceiling an unbounded pool (MaxConnections <= 0)
// opens per worker before it stops racing ahead of demand.
const softCapUnbounded = 128

// Config mirrors spec.md §4.9's backend pool configuration block.
type Config struct {
	Address        string        `mapstructure:"address" yaml:"address" validate:"required"`
	MaxConnections int           `mapstructure:"maxConnections" yaml:"maxConnections"` // 0 or negative: unbounded, soft-capped per worker
	MaxRequests    int           `mapstructure:"maxRequests" yaml:"maxRequests"`       // 0: unlimited requests per connection
	IdleTimeout    time.Duration `mapstructure:"idleTimeout" yaml:"idleTimeout"`       // 0: never idle, close on every put
	ConnectTimeout time.Duration `mapstructure:"connectTimeout" yaml:"connectTimeout" validate:"required"`
	WaitTimeout    time.Duration `mapstructure:"waitTimeout" yaml:"waitTimeout" validate:"required"`
	DisableTime    time.Duration `mapstructure:"disableTime" yaml:"disableTime" validate:"required"`
	WatchForClose  bool          `mapstructure:"watchForClose" yaml:"watchForClose"`
}

func (c *Config) Validate() *liberr.Error {
	if er := validator.New().Struct(c); er != nil {
		return liberr.New(liberr.MinPkgBackendPool+1, liberr.KindParse, er)
	}
	return nil
}

func (c Config) bounded() bool { return c.MaxConnections > 0 }

// Callbacks are the pool's notifications to its client (spec.md §4.9:
// "callbacks exposed by the pool to its clients, e.g. FastCGI").
type Callbacks struct {
	New          func(*Conn)
	AttachThread func(*Conn)
	DetachThread func(*Conn)
	Close        func(*Conn)
	Free         func()
}

// Dialer is the connect path's pluggable transport, defaulting to
// net.Dialer.DialContext; tests substitute a fake to avoid real sockets.
type Dialer func(ctx context.Context, network, address string) (net.Conn, error)

type waiter struct {
	workerID int
	result   chan getResult
	done     bool
}

type getResult struct {
	conn *Conn
	err  error
}

// Pool is a single backend address's connection pool, shared by every
// worker that calls Get/Put against it.
type Pool struct {
	cfg Config
	cb  Callbacks
	log logger.FuncLog
	met *metrics

	dial Dialer

	mu           sync.Mutex
	total        int // open connections across every worker; in-flight connects are counted in pendingDials
	pendingDials int
	disabledTill time.Time
	globalWait   []*waiter // bounded pools only

	workers map[int]*workerPool
}

// New validates cfg and constructs an idle Pool; reg/log may be nil.
func New(cfg Config, cb Callbacks, reg prometheus.Registerer, log logger.FuncLog) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Pool{
		cfg:     cfg,
		cb:      cb,
		log:     log,
		met:     newMetrics(reg, cfg.Address),
		dial:    defaultDialer,
		workers: make(map[int]*workerPool),
	}
	return p, nil
}

func defaultDialer(ctx context.Context, network, address string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, network, address)
}

// SetDialer overrides the connect path; used by tests.
func (p *Pool) SetDialer(d Dialer) { p.dial = d }

func (p *Pool) logger() logger.Logger {
	if p.log != nil {
		if l := p.log(); l != nil {
			return l
		}
	}
	return logger.GetDefault()
}

func (p *Pool) workerPool(id int) *workerPool {
	p.mu.Lock()
	defer p.mu.Unlock()
	wp, ok := p.workers[id]
	if !ok {
		wp = &workerPool{id: id, pool: p}
		p.workers[id] = wp
	}
	return wp
}

func (p *Pool) isDisabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Now().Before(p.disabledTill)
}

// Get lends a connection to workerID, blocking until one is reservable,
// wait_timeout elapses, ctx is cancelled, or the pool is health-gated
// off (spec.md §4.9's get(vr) Success/Wait/Timeout lending protocol,
// collapsed into one blocking call: Go's per-request goroutine can
// afford to block where the original's single event loop could not).
func (p *Pool) Get(ctx context.Context, workerID int) (*Conn, error) {
	if p.isDisabled() {
		return nil, ErrDisabled
	}

	wp := p.workerPool(workerID)

	wp.mu.Lock()
	if c := wp.tryTakeIdle(); c != nil {
		wp.mu.Unlock()
		p.met.idle.Dec()
		p.met.active.Inc()
		return c, nil
	}
	w := &waiter{workerID: workerID, result: make(chan getResult, 1)}
	wp.waitQ = append(wp.waitQ, w)
	wp.mu.Unlock()

	if p.cfg.bounded() {
		p.mu.Lock()
		p.globalWait = append(p.globalWait, w)
		p.mu.Unlock()
	}

	p.met.waiters.Inc()
	defer p.met.waiters.Dec()

	p.distribute(workerID)

	timer := time.NewTimer(p.cfg.WaitTimeout)
	defer timer.Stop()

	select {
	case r := <-w.result:
		return r.conn, r.err
	case <-timer.C:
		p.cancelWaiter(wp, w)
		return nil, ErrTimeout
	case <-ctx.Done():
		p.cancelWaiter(wp, w)
		return nil, ctx.Err()
	}
}

func (p *Pool) cancelWaiter(wp *workerPool, w *waiter) {
	wp.mu.Lock()
	for i, q := range wp.waitQ {
		if q == w {
			wp.waitQ = append(wp.waitQ[:i], wp.waitQ[i+1:]...)
			break
		}
	}
	wp.mu.Unlock()

	if p.cfg.bounded() {
		p.mu.Lock()
		for i, q := range p.globalWait {
			if q == w {
				p.globalWait = append(p.globalWait[:i], p.globalWait[i+1:]...)
				break
			}
		}
		p.mu.Unlock()
	}
}

// Put returns bcon to the lender (spec.md §4.9's put(bcon, close?)): it
// closes the connection if asked, exhausted, or idling is disabled,
// otherwise parks it idle on its owning worker and tries to satisfy the
// next waiter.
func (p *Pool) Put(c *Conn, forceClose bool) {
	c.mu.Lock()
	c.requests++
	reqs := c.requests
	bad := c.closed
	c.mu.Unlock()

	closeIt := forceClose || bad || p.cfg.IdleTimeout == 0 ||
		(p.cfg.MaxRequests > 0 && reqs >= p.cfg.MaxRequests)

	wp := p.workerPool(c.workerID)

	if closeIt {
		wp.mu.Lock()
		wp.remove(c)
		wp.mu.Unlock()
		p.closeConn(c)
		p.distribute(c.workerID)
		return
	}

	wp.mu.Lock()
	wp.toIdle(c)
	wp.mu.Unlock()
	p.met.active.Dec()
	p.met.idle.Inc()

	if p.cfg.WatchForClose {
		c.startWatch()
	}

	p.distribute(c.workerID)
}

func (p *Pool) closeConn(c *Conn) {
	c.stopWatch()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	_ = c.netConn.Close()
	p.mu.Lock()
	p.total--
	p.mu.Unlock()
	p.met.active.Dec()
	p.met.opened.Dec()
	if p.cb.Close != nil {
		p.cb.Close(c)
	}
}

// Shutdown closes every owned connection and invokes the Free callback
// (spec.md §4.9's free(pool)).
func (p *Pool) Shutdown() {
	p.mu.Lock()
	ids := make([]int, 0, len(p.workers))
	for id := range p.workers {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	for _, id := range ids {
		wp := p.workerPool(id)
		wp.mu.Lock()
		conns := append([]*Conn(nil), wp.conns...)
		wp.mu.Unlock()
		for _, c := range conns {
			p.closeConn(c)
		}
	}
	if p.cb.Free != nil {
		p.cb.Free()
	}
}

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

import (
	"context"
	"time"
)

// distribute implements spec.md §4.9's S_backend_pool_distribute: pair
// waiters with idle connections, then open new connections or steal
// idle ones from other workers to cover any shortfall.
func (p *Pool) distribute(originWorker int) {
	if p.cfg.bounded() {
		p.distributeBounded(originWorker)
		return
	}
	p.distributeUnbounded(originWorker)
}

// distributeUnbounded only ever considers the origin worker's own
// wait-queue and idle connections: an unbounded pool has no shared
// budget to arbitrate across workers.
func (p *Pool) distributeUnbounded(workerID int) {
	wp := p.workerPool(workerID)

	wp.mu.Lock()
	for len(wp.waitQ) > 0 {
		c := wp.tryTakeIdle()
		if c == nil {
			break
		}
		w := wp.popWaiter()
		wp.mu.Unlock()
		p.met.idle.Dec()
		p.met.active.Inc()
		deliver(w, c, nil)
		wp.mu.Lock()
	}
	need := len(wp.waitQ) - wp.pendingDials
	owned := len(wp.conns) + wp.pendingDials
	wp.mu.Unlock()

	for i := 0; i < need && owned < softCapUnbounded; i++ {
		wp.mu.Lock()
		wp.pendingDials++
		wp.mu.Unlock()
		owned++
		go p.dialOne(workerID)
	}
}

// distributeBounded drains the global queue (Get has already queued each
// waiter on its origin worker's local queue too), pairs every worker's
// waiters with that worker's idle connections, then steals idle
// connections from other workers (migration) before opening brand new
// ones up to max_connections - total.
func (p *Pool) distributeBounded(originWorker int) {
	p.mu.Lock()
	p.globalWait = nil
	ids := make([]int, 0, len(p.workers))
	for id := range p.workers {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	var leftover []*waiter
	for _, wid := range ids {
		wp := p.workerPool(wid)
		wp.mu.Lock()
		for len(wp.waitQ) > 0 {
			c := wp.tryTakeIdle()
			if c == nil {
				break
			}
			w := wp.popWaiter()
			wp.mu.Unlock()
			p.met.idle.Dec()
			p.met.active.Inc()
			deliver(w, c, nil)
			wp.mu.Lock()
		}
		for _, w := range wp.waitQ {
			leftover = append(leftover, w)
		}
		wp.mu.Unlock()
	}

	for _, w := range leftover {
		if stolen := p.stealIdleFrom(w.workerID); stolen != nil {
			dest := p.workerPool(w.workerID)
			dest.mu.Lock()
			c := dest.tryTakeIdle()
			dest.mu.Unlock()
			if c != nil {
				p.met.idle.Dec()
				p.met.active.Inc()
				deliver(w, c, nil)
				continue
			}
		}
	}

	p.mu.Lock()
	openable := p.cfg.MaxConnections - p.total - p.pendingDials
	if openable > 0 {
		p.pendingDials += openable
	} else {
		openable = 0
	}
	p.mu.Unlock()

	for i := 0; i < openable; i++ {
		go p.dialOne(originWorker)
	}
}

func deliver(w *waiter, c *Conn, err error) {
	if w == nil {
		return
	}
	w.result <- getResult{conn: c, err: err}
}

// stealIdleFrom picks an idle connection from any worker other than
// dst, migrating it across event loops (spec.md §4.9 Migration: detach
// from the source, mark reserved in transit, attach on the target).
func (p *Pool) stealIdleFrom(dst int) *Conn {
	p.mu.Lock()
	candidates := make([]int, 0, len(p.workers))
	for id := range p.workers {
		if id != dst {
			candidates = append(candidates, id)
		}
	}
	p.mu.Unlock()

	for _, id := range candidates {
		src := p.workerPool(id)
		src.mu.Lock()
		idx := src.idleStart()
		if idx >= len(src.conns) {
			src.mu.Unlock()
			continue
		}
		c := src.conns[idx]
		src.toReserved(c)
		src.mu.Unlock()

		p.migrate(c, src, dst)
		return c
	}
	return nil
}

// migrate moves c from src to the workerPool for dst, invoking
// DetachThread/AttachThread exactly once each (spec.md §4.9: "a
// connection can only be attached to the event loop of one worker at a
// time"). c sits in src's reserved segment for the duration, per spec.
func (p *Pool) migrate(c *Conn, src *workerPool, dst int) {
	if p.cb.DetachThread != nil {
		p.cb.DetachThread(c)
	}

	src.mu.Lock()
	src.remove(c)
	src.mu.Unlock()

	target := p.workerPool(dst)
	target.mu.Lock()
	target.insertIdle(c)
	target.mu.Unlock()

	if p.cb.AttachThread != nil {
		p.cb.AttachThread(c)
	}
	p.met.migrations.Inc()
}

// dialOne performs the non-blocking connect path (spec.md §4.9's
// "connect(sock_addr) is non-blocking... on connect timeout the whole
// pool is marked failed"). Go's net.Dialer already hides the
// watcher/SO_ERROR dance behind DialContext; ConnectTimeout bounds it
// the same way the original's connect_timeout bounds its watcher.
func (p *Pool) dialOne(workerID int) {
	defer func() {
		wp := p.workerPool(workerID)
		wp.mu.Lock()
		if wp.pendingDials > 0 {
			wp.pendingDials--
		}
		wp.mu.Unlock()
		p.mu.Lock()
		if p.pendingDials > 0 {
			p.pendingDials--
		}
		p.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.ConnectTimeout)
	defer cancel()

	nc, err := p.dial(ctx, "tcp", p.cfg.Address)
	if err != nil {
		p.onConnectFailure(err)
		return
	}

	c := &Conn{pool: p, workerID: workerID, netConn: nc}
	p.mu.Lock()
	p.total++
	p.mu.Unlock()
	p.met.opened.Inc()

	wp := p.workerPool(workerID)
	wp.mu.Lock()
	wp.insertIdle(c)
	wp.mu.Unlock()
	p.met.idle.Inc()

	if p.cb.New != nil {
		p.cb.New(c)
	}

	p.distribute(workerID)
}

// onConnectFailure gates the whole pool off for disable_time and fails
// every outstanding waiter with Timeout, per spec.md §4.9's connect
// path: "the whole pool is marked failed".
func (p *Pool) onConnectFailure(err error) {
	p.logger().Warnf("backendpool: connect to %s failed: %v", p.cfg.Address, err)

	p.mu.Lock()
	p.disabledTill = time.Now().Add(p.cfg.DisableTime)
	global := p.globalWait
	p.globalWait = nil
	ids := make([]int, 0, len(p.workers))
	for id := range p.workers {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	for _, w := range global {
		deliver(w, nil, ErrDisabled)
	}
	for _, id := range ids {
		wp := p.workerPool(id)
		wp.mu.Lock()
		local := wp.waitQ
		wp.waitQ = nil
		wp.mu.Unlock()
		for _, w := range local {
			deliver(w, nil, ErrDisabled)
		}
	}
}

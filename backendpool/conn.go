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
	"errors"
	"net"
	"sync"
	"time"
)

var (
	// ErrDisabled is returned by Get while the pool is health-gated off
	// (ts_disabled_till in the future).
	ErrDisabled = errors.New("backendpool: disabled until backoff elapses")
	// ErrTimeout is returned by Get when wait_timeout elapses with no
	// connection reservable.
	ErrTimeout = errors.New("backendpool: wait timeout")

	timeInPast = time.Unix(1, 0)
	noDeadline = time.Time{}
)

// segment is a Conn's position in its workerPool's ordered connection
// vector (spec.md §4.9's ordering invariant: active prefix, then
// reserved, then idle).
type segment uint8

const (
	segActive segment = iota
	segReserved
	segIdle
)

// Conn is one persistent outbound connection lent out by a Pool.
type Conn struct {
	pool     *Pool
	workerID int
	netConn  net.Conn

	mu       sync.Mutex
	ndx      int // index into the owning workerPool.conns
	segment  segment
	requests int
	closed   bool

	watchStop chan struct{}
}

// NetConn exposes the raw socket for a caller (e.g. the fastcgi driver)
// to read/write once the connection has been lent out via Get.
func (c *Conn) NetConn() net.Conn { return c.netConn }

// Requests is the number of times this connection has been returned
// via Put.
func (c *Conn) Requests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests
}

// startWatch arms a background read so an idle connection notices the
// backend closing it or sending unsolicited bytes (spec.md §4.9's
// optional watch_for_close); Get disarms it via stopWatch before
// handing the connection back out, since SetReadDeadline(now) is the
// only way to unblock the watch goroutine's Read without racing real
// traffic.
func (c *Conn) startWatch() {
	c.mu.Lock()
	if c.watchStop != nil {
		c.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	c.watchStop = stop
	c.mu.Unlock()

	go func() {
		buf := make([]byte, 1)
		_, err := c.netConn.Read(buf)
		select {
		case <-stop:
			return // disarmed by stopWatch; not a real close
		default:
		}
		if err != nil {
			c.pool.onWatchClosed(c)
		}
	}()
}

func (c *Conn) stopWatch() {
	c.mu.Lock()
	stop := c.watchStop
	c.watchStop = nil
	c.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	_ = c.netConn.SetReadDeadline(timeInPast)
	_ = c.netConn.SetReadDeadline(noDeadline)
}

func (p *Pool) onWatchClosed(c *Conn) {
	wp := p.workerPool(c.workerID)
	wp.mu.Lock()
	wp.remove(c)
	wp.mu.Unlock()
	p.met.idle.Dec()
	p.closeConn(c)
}

// workerPool is one worker's private share of the pool: the ordered
// connection vector and, for unbounded pools, the local wait-queue
// (spec.md §4.9's per-worker sub-pool state).
type workerPool struct {
	id   int
	pool *Pool

	mu    sync.Mutex
	conns []*Conn

	activeN   int
	reservedN int

	waitQ        []*waiter
	pendingDials int
}

func (wp *workerPool) idleStart() int { return wp.activeN + wp.reservedN }

// swap exchanges two slots and keeps each Conn's cached index in sync,
// the O(1) primitive every segment transition below is built from.
func (wp *workerPool) swap(i, j int) {
	if i == j {
		return
	}
	wp.conns[i], wp.conns[j] = wp.conns[j], wp.conns[i]
	wp.conns[i].ndx = i
	wp.conns[j].ndx = j
}

// insertIdle appends a freshly connected or migrated-in Conn to the
// idle tail.
func (wp *workerPool) insertIdle(c *Conn) {
	c.ndx = len(wp.conns)
	c.segment = segIdle
	c.workerID = wp.id
	wp.conns = append(wp.conns, c)
}

// tryTakeIdle promotes the first idle connection straight to active,
// the common case of Get's lending protocol.
func (wp *workerPool) tryTakeIdle() *Conn {
	idx := wp.idleStart()
	if idx >= len(wp.conns) {
		return nil
	}
	c := wp.conns[idx]
	wp.swap(idx, wp.activeN)
	wp.activeN++
	c.segment = segActive
	return c
}

// toReserved demotes an idle connection into the reserved segment, the
// "in transit" state a migration leaves a connection in until the
// target worker attaches it (spec.md §4.9 Migration).
func (wp *workerPool) toReserved(c *Conn) {
	tail := wp.idleStart()
	wp.swap(c.ndx, tail)
	wp.reservedN++
	c.segment = segReserved
}

// toIdle demotes c from whichever segment it is in back to idle,
// hopping through the reserved segment when starting from active (the
// same swap-with-boundary move spec.md §4.9 names as O(1)).
func (wp *workerPool) toIdle(c *Conn) {
	switch c.segment {
	case segActive:
		wp.swap(c.ndx, wp.activeN-1)
		wp.activeN--
		fallthrough
	case segReserved:
		if wp.reservedN > 0 {
			tail := wp.activeN + wp.reservedN - 1
			wp.swap(c.ndx, tail)
			wp.reservedN--
		}
	}
	c.segment = segIdle
}

// remove ejects c from the vector entirely (closed connection or
// completed outbound migration), always via the idle tail so the
// active/reserved boundaries never need an O(n) shift.
func (wp *workerPool) remove(c *Conn) {
	if c.ndx < 0 || c.ndx >= len(wp.conns) || wp.conns[c.ndx] != c {
		return
	}
	wp.toIdle(c)
	last := len(wp.conns) - 1
	wp.swap(c.ndx, last)
	wp.conns[last] = nil
	wp.conns = wp.conns[:last]
}

func (wp *workerPool) idleCount() int { return len(wp.conns) - wp.idleStart() }

func (wp *workerPool) popWaiter() *waiter {
	if len(wp.waitQ) == 0 {
		return nil
	}
	w := wp.waitQ[0]
	wp.waitQ = wp.waitQ[1:]
	return w
}

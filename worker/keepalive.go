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
	"container/list"
	"time"

	"github/sabouaram/httpengine/connection"
)

// keepAliveQueue holds idle keep-alive connections ordered by
// deadline, per spec.md's "keep-alive queue (sorted by deadline)".
// Every connection in the queue shares the same MaxKeepAliveIdle, so
// insertion order already is deadline order; this avoids a heap.
type keepAliveQueue struct {
	l     *list.List
	elems map[*connection.Conn]*list.Element
}

type keepAliveEntry struct {
	conn     *connection.Conn
	deadline time.Time
}

func newKeepAliveQueue() *keepAliveQueue {
	return &keepAliveQueue{l: list.New(), elems: make(map[*connection.Conn]*list.Element)}
}

func (q *keepAliveQueue) push(c *connection.Conn, deadline time.Time) {
	if e, ok := q.elems[c]; ok {
		q.l.Remove(e)
	}
	e := q.l.PushBack(keepAliveEntry{conn: c, deadline: deadline})
	q.elems[c] = e
}

func (q *keepAliveQueue) remove(c *connection.Conn) {
	if e, ok := q.elems[c]; ok {
		q.l.Remove(e)
		delete(q.elems, c)
	}
}

// expired pops every entry whose deadline has passed now, in deadline
// order, removing them from the queue.
func (q *keepAliveQueue) expired(now time.Time) []*connection.Conn {
	var out []*connection.Conn
	for e := q.l.Front(); e != nil; {
		next := e.Next()
		ent := e.Value.(keepAliveEntry)
		if ent.deadline.After(now) {
			break
		}
		out = append(out, ent.conn)
		delete(q.elems, ent.conn)
		q.l.Remove(e)
		e = next
	}
	return out
}

func (q *keepAliveQueue) len() int {
	return q.l.Len()
}

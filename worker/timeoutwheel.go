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
)

// timeoutWheel buckets entries by an integer second timestamp so an
// expiry sweep visits each bucket once (O(number of buckets)) and
// touches only the entries of expired buckets.
type timeoutWheel struct {
	buckets map[int64]*list.List
}

// token is the O(1)-removal handle returned by add: it names the
// bucket and the list element within it.
type token struct {
	bucket int64
	elem   *list.Element
}

type wheelEntry struct {
	key interface{}
}

func newTimeoutWheel() *timeoutWheel {
	return &timeoutWheel{buckets: make(map[int64]*list.List)}
}

func bucketFor(deadline time.Time) int64 {
	return deadline.Unix()
}

// add re-queues key under deadline's second bucket, returning a token
// usable to remove it before expiry (spec.md §5: "on state change, the
// connection is re-queued (or removed for idle/upgraded states)").
func (w *timeoutWheel) add(key interface{}, deadline time.Time) token {
	b := bucketFor(deadline)
	l, ok := w.buckets[b]
	if !ok {
		l = list.New()
		w.buckets[b] = l
	}
	e := l.PushBack(wheelEntry{key: key})
	return token{bucket: b, elem: e}
}

// remove drops a previously-added token; safe to call on a zero token.
func (w *timeoutWheel) remove(t token) {
	if t.elem == nil {
		return
	}
	if l, ok := w.buckets[t.bucket]; ok {
		l.Remove(t.elem)
		if l.Len() == 0 {
			delete(w.buckets, t.bucket)
		}
	}
}

// sweep returns every key whose bucket's timestamp is <= now's second
// and removes those buckets, per the "sweeps expired ones" contract.
func (w *timeoutWheel) sweep(now time.Time) []interface{} {
	cutoff := now.Unix()
	var expired []interface{}
	for b, l := range w.buckets {
		if b > cutoff {
			continue
		}
		for e := l.Front(); e != nil; e = e.Next() {
			expired = append(expired, e.Value.(wheelEntry).key)
		}
		delete(w.buckets, b)
	}
	return expired
}

func (w *timeoutWheel) len() int {
	n := 0
	for _, l := range w.buckets {
		n += l.Len()
	}
	return n
}

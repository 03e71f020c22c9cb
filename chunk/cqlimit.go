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

package chunk

import "sync"

// Notify is called whenever a CQLimit flips between locked and unlocked.
// ctx is opaque data the owner attached via SetContext; it is never
// inspected here.
type Notify func(locked bool, ctx interface{})

// CQLimit is a shared memory budget token: one or more ChunkQueues can
// reference the same CQLimit (spec §4.2), and each append/steal/skip
// that moves bytes into or out of a queue using it adjusts `current`.
// Crossing the limit threshold flips `locked` and fires Notify exactly
// once per flip (grounded on chunk.c's cqlimit_lock/cqlimit_unlock).
type CQLimit struct {
	mu sync.Mutex

	refcount int
	limit    int64 // <= 0 means unlimited
	current  int64
	locked   bool

	notify Notify
	ctx    interface{}
}

// NewCQLimit returns an unlimited CQLimit with refcount 1.
func NewCQLimit() *CQLimit {
	return &CQLimit{refcount: 1, limit: -1}
}

func (l *CQLimit) acquire() *CQLimit {
	l.mu.Lock()
	l.refcount++
	l.mu.Unlock()
	return l
}

func (l *CQLimit) release() {
	l.mu.Lock()
	l.refcount--
	done := l.refcount <= 0
	l.mu.Unlock()
	_ = done
}

// Reset clears limit/current back to the unlimited zero state. The
// caller must ensure current is already 0 (no queue still references
// this token with outstanding bytes) and no notify is registered,
// mirroring the asserts in cqlimit_reset.
func (l *CQLimit) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.current = 0
	l.limit = -1
	l.notify = nil
}

// SetNotify installs the flip callback and its opaque context.
func (l *CQLimit) SetNotify(n Notify, ctx interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notify = n
	l.ctx = ctx
}

// SetLimit changes the byte budget (<=0 meaning unlimited) and
// re-evaluates the locked state exactly once, firing Notify only if it
// flips (spec §4.2 Operations: SetLimit).
func (l *CQLimit) SetLimit(limit int64) {
	l.mu.Lock()
	l.limit = limit
	l.reevaluate()
	l.mu.Unlock()
}

// update applies a signed delta to current and re-evaluates lock state.
// Called by ChunkQueue on every append/steal/skip that crosses this
// token.
func (l *CQLimit) update(delta int64) {
	l.mu.Lock()
	l.current += delta
	if l.current < 0 {
		l.current = 0
	}
	l.reevaluate()
	l.mu.Unlock()
}

// reevaluate must be called with mu held; flips locked at most once and
// fires notify only on a flip.
func (l *CQLimit) reevaluate() {
	if l.locked {
		if l.limit <= 0 || l.current < l.limit {
			l.locked = false
			if l.notify != nil {
				l.notify(false, l.ctx)
			}
		}
	} else {
		if l.limit > 0 && l.current >= l.limit {
			l.locked = true
			if l.notify != nil {
				l.notify(true, l.ctx)
			}
		}
	}
}

// Locked reports whether the budget is currently exhausted.
func (l *CQLimit) Locked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.locked
}

// Available returns -1 for unlimited, 0 for full, or the remaining
// byte budget.
func (l *CQLimit) Available() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.limit <= 0 {
		return -1
	}
	avail := l.limit - l.current
	if avail < 0 {
		return 0
	}
	return avail
}

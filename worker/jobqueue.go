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

import "sync"

// job is a deferred per-request callback (spec.md's jobqueue entry),
// almost always a VR or Connection resume. Declared as an alias (not a
// defined type) so that w.enqueue stays directly assignable to the
// func(func()) schedule parameters worker.RequestHandler and
// tlsfilter.New both take.
type job = func()

// jobQueue is a plain mutex-guarded FIFO, drained once per loop
// iteration between IO and timer processing. Single-writer-many
// (cross-worker async-notify can enqueue; only the owning loop
// drains), so it needs its own lock unlike the rest of a Worker's
// state which is only ever touched by the owning goroutine.
type jobQueue struct {
	mu   sync.Mutex
	jobs []job
}

func newJobQueue() *jobQueue {
	return &jobQueue{}
}

func (q *jobQueue) push(j job) {
	q.mu.Lock()
	q.jobs = append(q.jobs, j)
	q.mu.Unlock()
}

// drain removes and returns every pending job, leaving the queue
// empty; jobs queued during drain's execution run on the *next* pass,
// never recursively within the same drain.
func (q *jobQueue) drain() []job {
	q.mu.Lock()
	jobs := q.jobs
	q.jobs = nil
	q.mu.Unlock()
	return jobs
}

func (q *jobQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

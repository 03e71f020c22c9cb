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

package vr

import "github/sabouaram/httpengine/chunk"

// FilterResult mirrors the filters struct's pending/waitforevent bits
// (spec §4.7: "a filter can mark itself pending or waitforevent").
type FilterResult struct {
	Pending      bool
	WaitForEvent bool
}

// FilterFunc transforms bytes from in into out. A filter that needs to
// keep partial state between calls holds it itself; the chain passes
// only these two queues.
type FilterFunc func(out, in *chunk.Queue) FilterResult

// FilterChain runs an ordered list of filters, threading bytes from
// the chain's `in` to its `out` using zero-copy steal_len when a
// filter performs no byte-level transform (the identity filter).
type FilterChain struct {
	filters []FilterFunc
}

func NewFilterChain() *FilterChain {
	return &FilterChain{}
}

// Append adds f to the end of the chain.
func (c *FilterChain) Append(f FilterFunc) {
	c.filters = append(c.filters, f)
}

// Run drives every filter in order once, stopping early if any filter
// reports WaitForEvent. Returns true once the whole chain is idle
// (nothing pending).
func (c *FilterChain) Run(out, in *chunk.Queue) bool {
	if len(c.filters) == 0 {
		out.StealAll(in)
		if in.IsClosed() {
			out.Close()
		}
		return true
	}

	cur := in
	idle := true
	for i, f := range c.filters {
		var stage *chunk.Queue
		if i == len(c.filters)-1 {
			stage = out
		} else {
			stage = chunk.New()
		}
		res := f(stage, cur)
		if res.Pending {
			idle = false
		}
		if res.WaitForEvent {
			return false
		}
		cur = stage
	}
	return idle
}

// Identity is the zero-copy pass-through filter used when a chain
// stage performs no transform.
func Identity(out, in *chunk.Queue) FilterResult {
	out.StealAll(in)
	if in.IsClosed() {
		out.Close()
	}
	return FilterResult{}
}

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

// Package atomicvalue provides a generic, type-safe wrapper around
// sync/atomic.Value, grounded on nabbar-golib/atomic/value.go's
// Value[T] idiom: every mutable cross-goroutine field in worker,
// connection and server is stored this way instead of behind a mutex,
// matching spec §5's "no shared mutable state on the hot path" rule.
package atomicvalue

import "sync/atomic"

// Value holds a single value of type T, safe for concurrent use. The
// zero Value is usable and reports its zero T until Store is called.
type Value[T any] struct {
	v atomic.Value
}

type box[T any] struct {
	val T
}

// New creates a Value already initialized to v.
func New[T any](v T) *Value[T] {
	r := &Value[T]{}
	r.Store(v)
	return r
}

func (a *Value[T]) Store(v T) {
	a.v.Store(box[T]{val: v})
}

func (a *Value[T]) Load() T {
	var zero T
	i := a.v.Load()
	if i == nil {
		return zero
	}
	b, ok := i.(box[T])
	if !ok {
		return zero
	}
	return b.val
}

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

// Package ctxstore provides a typed, string-keyed, concurrency-safe
// value store bound to a parent context, grounded on
// nabbar-golib/context/{context,map}.go's libctx.Config[K] idiom. Server
// and worker use it to hold the read-only-after-handle_prepare option
// snapshot (spec §3 "Server") without a bespoke struct per option.
package ctxstore

import (
	"context"
	"sync"
)

// Store is a typed key-value map layered over a cancellable context.
type Store struct {
	parent func() context.Context
	mu     sync.RWMutex
	values map[string]interface{}

	ctx context.Context
	cnl context.CancelFunc
}

// New creates a Store whose cancellation context derives from parent().
// If parent is nil, context.Background is used.
func New(parent func() context.Context) *Store {
	s := &Store{parent: parent, values: make(map[string]interface{})}
	s.reset()
	return s
}

func (s *Store) reset() {
	base := context.Background()
	if s.parent != nil {
		if p := s.parent(); p != nil {
			base = p
		}
	}
	s.ctx, s.cnl = context.WithCancel(base)
}

func (s *Store) GetContext() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ctx
}

func (s *Store) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cnl != nil {
		s.cnl()
	}
}

func (s *Store) Store(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

func (s *Store) Load(key string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

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

package stream

import (
	"errors"
	"io"
	"net"
	"sync"

	"golang.org/x/time/rate"
)

const ioReadChunk = 16 * 1024 * 4 // 64 KiB per readable event, spec §4.4

// IOStream bridges a net.Conn (or any ReadWriteCloser with a deadline)
// to a pair of stream Nodes: StreamIn.Out receives bytes read off the
// wire, StreamOut.source is drained onto the wire. Throttles are
// optional token buckets (golang.org/x/time/rate) applied per read or
// write burst.
type IOStream struct {
	mu sync.Mutex

	conn net.Conn

	StreamIn  *Node // produces into Out: bytes read from the socket
	StreamOut *Node // consumes from Out (via its source): bytes to write

	throttleIn  *rate.Limiter
	throttleOut *rate.Limiter

	readActive  bool
	writeActive bool
	closed      bool

	onDestroy func(*IOStream)
}

// New wraps conn; onDestroy, if non-nil, is invoked once when the
// stream transitions to Destroy (e.g. to hand the fd to a worker's
// closing-sockets drain queue, per spec §4.4).
func New(conn net.Conn, onDestroy func(*IOStream)) *IOStream {
	s := &IOStream{conn: conn, onDestroy: onDestroy, readActive: true}
	s.StreamIn = NewNode(s.onInEvent)
	s.StreamOut = NewNode(s.onOutEvent)
	return s
}

// SetThrottle installs token-bucket limiters; either may be nil for
// unlimited.
func (s *IOStream) SetThrottle(in, out *rate.Limiter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.throttleIn = in
	s.throttleOut = out
}

func (s *IOStream) onInEvent(n *Node, ev Event) {
	switch ev {
	case ConnectedDest:
		s.readActive = true
	case DisconnectedDest:
		s.readActive = false
	}
}

func (s *IOStream) onOutEvent(n *Node, ev Event) {
	switch ev {
	case ConnectedSource:
		s.writeActive = true
	case NewData:
		s.flushWrite()
	case DisconnectedSource:
		s.writeActive = false
	}
}

// Readable is driven by the worker's event loop when the fd is
// readable. It reads up to 64 KiB, respecting the CQLimit on
// StreamIn.Out and an optional throttle, then notifies the dest.
func (s *IOStream) Readable() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || !s.readActive {
		return
	}

	max := int64(ioReadChunk)
	if avail := s.StreamIn.Out.LimitAvailable(); avail >= 0 && avail < max {
		max = avail
	}
	if max <= 0 {
		return // locked by CQLimit; re-armed via the limit's notify callback
	}
	if s.throttleIn != nil {
		burst := int64(s.throttleIn.Burst())
		if burst > 0 && burst < max {
			max = burst
		}
	}

	buf := make([]byte, max)
	n, err := s.conn.Read(buf)
	if n > 0 {
		s.StreamIn.Out.AppendBytes(buf[:n])
		s.StreamIn.Notify()
	}
	if err != nil {
		if isEAGAIN(err) {
			return // re-armed by the loop on next readable event
		}
		if err == io.EOF {
			s.StreamIn.Out.Close()
			s.StreamIn.Notify()
			s.maybeShutdown()
			return
		}
		s.destroyLocked()
	}
}

// Writable is driven by the worker's event loop when the fd is
// writable.
func (s *IOStream) Writable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushWrite()
}

func (s *IOStream) flushWrite() {
	if s.closed || !s.writeActive {
		return
	}
	src := s.StreamOut.Source()
	if src == nil {
		return
	}

	for src.Out.Length() > 0 {
		var buf []byte
		if !src.Out.ExtractTo(minInt64(src.Out.Length(), ioReadChunk), &buf) {
			s.destroyLocked()
			return
		}
		n, err := s.conn.Write(buf)
		if n > 0 {
			src.Out.Skip(int64(n))
		}
		if err != nil {
			if isEAGAIN(err) {
				return
			}
			if isBenignClose(err) {
				s.destroyLocked()
				return
			}
			s.destroyLocked()
			return
		}
		if n < len(buf) {
			return // short write, re-arm for next writable event
		}
	}

	if src.Out.IsClosed() && src.Out.Length() == 0 {
		s.maybeShutdown()
	}
}

func (s *IOStream) maybeShutdown() {
	if tc, ok := s.conn.(interface{ CloseWrite() error }); ok {
		_ = tc.CloseWrite()
	}
	if !s.readActive {
		s.destroyLocked()
	}
}

func (s *IOStream) destroyLocked() {
	if s.closed {
		return
	}
	s.closed = true
	_ = s.conn.Close()
	if s.onDestroy != nil {
		s.onDestroy(s)
	}
	s.StreamIn.Destroy()
	s.StreamOut.Destroy()
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func isEAGAIN(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}

func isBenignClose(err error) bool {
	return errors.Is(err, net.ErrClosed)
}

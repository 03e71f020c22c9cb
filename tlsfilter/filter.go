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

// Package tlsfilter implements the TLS filter as a stream-pair
// transform: ciphertext on the outside (talking to the socket),
// plaintext on the inside (talking to the HTTP parser/writer), in the
// shape of original_source/src/modules/gnutls_filter.c. The standard
// library exposes no bare record-layer encrypt/decrypt primitive, so
// the session itself is driven by a pipe-bridged *tls.Conn: one pipe
// endpoint is handed to crypto/tls as its "network", the other is
// pumped by this package between the stream graph's chunk queues and
// the blocking tls.Conn Read/Write calls, the same bridging technique
// worker uses for net.Conn (a goroutine per blocking call, mutation
// handed back to the owning loop via schedule).
package tlsfilter

import (
	"crypto/tls"
	"net"
	"sync"

	"github/sabouaram/httpengine/stream"
)

const readChunk = 16 * 1024

// Filter is one TLS session wrapped around a ciphertext stream pair
// and a plaintext stream pair.
type Filter struct {
	cryptIn *stream.Node // shared with the socket IOStream's StreamIn; polled via OnCryptReadable

	CryptOut *stream.Node // source: ciphertext destined for the socket

	PlainIn      *stream.Node // filled with decrypted application data
	PlainOut     *stream.Node // source: plaintext to encrypt and send
	plainOutSink *stream.Node // handler-bearing dest that PlainOut is Linked into

	schedule     func(func())
	onPlainReady func()
	onHandshake  func(tls.ConnectionState)

	netSide net.Conn
	appSide net.Conn
	tlsConn *tls.Conn

	cryptWriteCh chan []byte
	plainWriteCh chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

// New wires a Filter around cryptIn (the Node new ciphertext arrives
// on, normally an IOStream.StreamIn shared directly like a worker's
// RawIn) and cryptOutSink (the Node outgoing ciphertext should reach,
// normally an IOStream.StreamOut). schedule marshals a closure onto
// the owning worker loop, matching worker's jobqueue; onPlainReady is
// invoked (via schedule) whenever PlainIn has new bytes, so the owner
// can re-drive connection.OnReadable the way it does for a plain
// socket. onHandshake, if non-nil, fires once the TLS handshake
// completes.
func New(cfg *tls.Config, cryptIn, cryptOutSink *stream.Node, schedule func(func()), onPlainReady func(), onHandshake func(tls.ConnectionState)) *Filter {
	netSide, appSide := net.Pipe()

	f := &Filter{
		cryptIn:      cryptIn,
		schedule:     schedule,
		onPlainReady: onPlainReady,
		onHandshake:  onHandshake,
		netSide:      netSide,
		appSide:      appSide,
		tlsConn:      tls.Server(netSide, cfg),
		cryptWriteCh: make(chan []byte, 64),
		plainWriteCh: make(chan []byte, 64),
		closed:       make(chan struct{}),
	}

	f.CryptOut = stream.NewNode(nil)
	stream.Link(f.CryptOut, cryptOutSink)

	f.PlainIn = stream.NewNode(nil)
	f.plainOutSink = stream.NewNode(f.onPlainOutEvent)
	f.PlainOut = stream.NewNode(nil)
	stream.Link(f.PlainOut, f.plainOutSink)

	go f.appReadLoop()
	go f.appWriteLoop()
	go f.tlsReadLoop()
	go f.plainWriteLoop()

	return f
}

// OnCryptReadable drains whatever the socket-side IOStream appended
// to cryptIn.Out since the last call and hands it to the TLS session,
// the same polling shape connection.OnReadable uses for a plain RawIn.
func (f *Filter) OnCryptReadable() {
	if f.cryptIn.Out.Length() == 0 {
		if f.cryptIn.Out.IsClosed() {
			f.Close()
		}
		return
	}

	var buf []byte
	if !f.cryptIn.Out.ExtractTo(f.cryptIn.Out.Length(), &buf) {
		f.Close()
		return
	}
	f.cryptIn.Out.SkipAll()

	select {
	case f.cryptWriteCh <- buf:
	case <-f.closed:
	}
}

// appReadLoop pumps ciphertext the TLS session wrote to its pipe
// endpoint onto CryptOut, where the real socket IOStream drains it.
func (f *Filter) appReadLoop() {
	buf := make([]byte, readChunk)
	for {
		n, err := f.appSide.Read(buf)
		if n > 0 {
			b := append([]byte(nil), buf[:n]...)
			f.schedule(func() {
				f.CryptOut.Out.AppendBytes(b)
				f.CryptOut.Notify()
			})
		}
		if err != nil {
			return
		}
	}
}

// appWriteLoop feeds ciphertext that arrived from the socket into the
// TLS session's pipe endpoint.
func (f *Filter) appWriteLoop() {
	for {
		select {
		case b := <-f.cryptWriteCh:
			if _, err := f.appSide.Write(b); err != nil {
				return
			}
		case <-f.closed:
			return
		}
	}
}

// tlsReadLoop drives the handshake, then decrypted application data
// onto PlainIn.
func (f *Filter) tlsReadLoop() {
	if err := f.tlsConn.Handshake(); err != nil {
		f.schedule(func() {
			f.PlainIn.Out.Close()
			if f.onPlainReady != nil {
				f.onPlainReady()
			}
		})
		return
	}

	if f.onHandshake != nil {
		state := f.tlsConn.ConnectionState()
		f.schedule(func() { f.onHandshake(state) })
	}

	buf := make([]byte, readChunk)
	for {
		n, err := f.tlsConn.Read(buf)
		if n > 0 {
			b := append([]byte(nil), buf[:n]...)
			f.schedule(func() {
				f.PlainIn.Out.AppendBytes(b)
				if f.onPlainReady != nil {
					f.onPlainReady()
				}
			})
		}
		if err != nil {
			f.schedule(func() {
				f.PlainIn.Out.Close()
				if f.onPlainReady != nil {
					f.onPlainReady()
				}
			})
			return
		}
	}
}

// plainWriteLoop feeds plaintext queued for encryption into the TLS
// session.
func (f *Filter) plainWriteLoop() {
	for {
		select {
		case b := <-f.plainWriteCh:
			if _, err := f.tlsConn.Write(b); err != nil {
				return
			}
		case <-f.closed:
			return
		}
	}
}

// onPlainOutEvent fires when the owner (e.g. connection.Conn.toWrite)
// moves response bytes into PlainOut and calls Notify, mirroring
// IOStream.onOutEvent's NewData handling.
func (f *Filter) onPlainOutEvent(n *stream.Node, ev stream.Event) {
	if ev != stream.NewData {
		return
	}
	src := n.Source()
	if src == nil {
		return
	}

	for src.Out.Length() > 0 {
		var buf []byte
		if !src.Out.ExtractTo(src.Out.Length(), &buf) {
			f.Close()
			return
		}
		src.Out.SkipAll()

		select {
		case f.plainWriteCh <- buf:
		case <-f.closed:
			return
		}
	}

	if src.Out.IsClosed() {
		f.Close()
	}
}

// Close tears down the TLS session and both pipe endpoints; safe to
// call more than once.
func (f *Filter) Close() {
	f.closeOnce.Do(func() {
		close(f.closed)
		// Close the pipe endpoints first: net.Pipe unblocks any
		// in-flight Read/Write on either side immediately, so the
		// tlsConn.Close() below (which tries to send close_notify)
		// fails fast instead of blocking for a reader that may
		// already be gone.
		_ = f.appSide.Close()
		_ = f.netSide.Close()
		_ = f.tlsConn.Close()
	})
}

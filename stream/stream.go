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

// Package stream implements the event-driven dataflow graph nodes that
// carry bytes between sockets, filters and the virtual-request state
// machine: Node, the Plug relay, and the IOStream socket adapter.
package stream

import "github/sabouaram/httpengine/chunk"

// Event is the algebra a Node's callback is invoked with.
type Event uint8

const (
	NewData Event = iota
	ConnectedSource
	ConnectedDest
	DisconnectedSource
	DisconnectedDest
	NewCQLimit
	Destroy
)

func (e Event) String() string {
	switch e {
	case NewData:
		return "new_data"
	case ConnectedSource:
		return "connected_source"
	case ConnectedDest:
		return "connected_dest"
	case DisconnectedSource:
		return "disconnected_source"
	case DisconnectedDest:
		return "disconnected_dest"
	case NewCQLimit:
		return "new_cqlimit"
	case Destroy:
		return "destroy"
	default:
		return "unknown"
	}
}

// Handler reacts to events delivered to a Node. It must not block.
type Handler func(n *Node, ev Event)

// Node is one point in the stream graph: an `out` queue other nodes
// can read from, and pointers to an upstream source / downstream dest
// that are notified of mutation. Wiring two nodes together is a Link
// call, which synchronously delivers Connected* and, if there is
// already buffered data, a NewData (spec §4.3: "connect... atomic at
// event level").
type Node struct {
	Out *chunk.Queue

	source *Node
	dest   *Node

	handler  Handler
	attached bool
}

// NewNode returns a detached node with an empty output queue.
func NewNode(h Handler) *Node {
	return &Node{Out: chunk.New(), handler: h}
}

func (n *Node) emit(ev Event) {
	if n.handler != nil {
		n.handler(n, ev)
	}
}

// Notify signals the destination (if linked) that new data may be
// available on n.Out.
func (n *Node) Notify() {
	if n.dest != nil {
		n.dest.emit(NewData)
	}
}

// Link wires src as the data source for dst: dst.source = src,
// src.dest = dst, then delivers ConnectedSource/ConnectedDest and an
// initial NewData so each side can drain whatever is already queued.
func Link(src, dst *Node) {
	src.dest = dst
	dst.source = src
	src.emit(ConnectedDest)
	dst.emit(ConnectedSource)
	if src.Out.Length() > 0 || src.Out.IsClosed() {
		dst.emit(NewData)
	}
}

// Unlink tears down a Link, delivering Disconnected* to both sides.
func Unlink(src, dst *Node) {
	if src.dest == dst {
		src.dest = nil
	}
	if dst.source == src {
		dst.source = nil
	}
	src.emit(DisconnectedDest)
	dst.emit(DisconnectedSource)
}

// Source returns the linked upstream node, or nil.
func (n *Node) Source() *Node { return n.source }

// Dest returns the linked downstream node, or nil.
func (n *Node) Dest() *Node { return n.dest }

// Attach marks the node as owned by a running worker loop (its
// watchers, if any, are live). Detach is required before a backend
// connection migrates between workers (spec §4.9 migration).
func (n *Node) Attach() { n.attached = true }

// Detach marks the node dormant. It only changes what Attached
// reports; events are still delivered to the node's handler.
func (n *Node) Detach() { n.attached = false }

func (n *Node) Attached() bool { return n.attached }

// PropagateLimit forwards a NewCQLimit event to the downstream node;
// used when a node installs or replaces its Out queue's CQLimit and
// the dest needs to observe the new token (spec §4.3).
func (n *Node) PropagateLimit() {
	if n.dest != nil {
		n.dest.emit(NewCQLimit)
	}
}

// Destroy detaches the node from any peers and delivers a final
// Destroy event; the node's Out queue is left as it is.
func (n *Node) Destroy() {
	if n.source != nil {
		n.source.dest = nil
	}
	if n.dest != nil {
		n.dest.source = nil
	}
	n.emit(Destroy)
}

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

// Plug is a no-op relay node used as a splice point before the real
// upstream of a connection is known (spec §4.3: "used as a splice
// point when the concrete upstream is not yet known"). It forwards
// NewData straight through without buffering.
type Plug struct {
	*Node
}

// NewPlug returns a Plug wired to simply cascade NewData to its dest.
func NewPlug() *Plug {
	p := &Plug{}
	p.Node = NewNode(p.onEvent)
	return p
}

func (p *Plug) onEvent(n *Node, ev Event) {
	switch ev {
	case NewData:
		n.Notify()
	case DisconnectedSource, DisconnectedDest, Destroy:
		// nothing privately owned to release
	}
}

// ReplaceWithSource swaps this plug out for real as the source of the
// plug's dest: the dest is unlinked from the plug and linked to real.
// It returns that dest, or nil if the plug had none. The plug's own
// source, if any, is left linked to the plug.
func (p *Plug) ReplaceWithSource(real *Node) *Node {
	old := p.dest
	if old != nil {
		Unlink(p.Node, old)
		Link(real, old)
	}
	return old
}

package stream_test

import (
	"testing"

	"github/sabouaram/httpengine/stream"
)

func TestLinkDeliversConnectedAndInitialData(t *testing.T) {
	var srcEvents, dstEvents []stream.Event

	src := stream.NewNode(func(n *stream.Node, ev stream.Event) { srcEvents = append(srcEvents, ev) })
	dst := stream.NewNode(func(n *stream.Node, ev stream.Event) { dstEvents = append(dstEvents, ev) })

	src.Out.AppendString([]byte("buffered"))
	stream.Link(src, dst)

	if len(srcEvents) != 1 || srcEvents[0] != stream.ConnectedDest {
		t.Fatalf("src events = %v", srcEvents)
	}
	if len(dstEvents) != 2 || dstEvents[0] != stream.ConnectedSource || dstEvents[1] != stream.NewData {
		t.Fatalf("dst events = %v", dstEvents)
	}
}

func TestUnlinkDeliversDisconnected(t *testing.T) {
	var srcEvents, dstEvents []stream.Event
	src := stream.NewNode(func(n *stream.Node, ev stream.Event) { srcEvents = append(srcEvents, ev) })
	dst := stream.NewNode(func(n *stream.Node, ev stream.Event) { dstEvents = append(dstEvents, ev) })

	stream.Link(src, dst)
	stream.Unlink(src, dst)

	if src.Dest() != nil || dst.Source() != nil {
		t.Fatalf("expected both sides unlinked")
	}
	if srcEvents[len(srcEvents)-1] != stream.DisconnectedDest {
		t.Fatalf("src last event = %v", srcEvents[len(srcEvents)-1])
	}
	if dstEvents[len(dstEvents)-1] != stream.DisconnectedSource {
		t.Fatalf("dst last event = %v", dstEvents[len(dstEvents)-1])
	}
}

func TestPlugForwardsNewData(t *testing.T) {
	var got []stream.Event
	dst := stream.NewNode(func(n *stream.Node, ev stream.Event) { got = append(got, ev) })

	p := stream.NewPlug()
	stream.Link(p.Node, dst)
	p.Out.AppendString([]byte("x"))
	p.Notify()

	found := false
	for _, e := range got {
		if e == stream.NewData {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected NewData to reach dst, got %v", got)
	}
}

func TestAttachDetach(t *testing.T) {
	n := stream.NewNode(nil)
	if n.Attached() {
		t.Fatalf("new node should start detached")
	}
	n.Attach()
	if !n.Attached() {
		t.Fatalf("expected attached")
	}
	n.Detach()
	if n.Attached() {
		t.Fatalf("expected detached")
	}
}

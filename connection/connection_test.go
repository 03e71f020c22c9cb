package connection_test

import (
	"testing"
	"time"

	"github/sabouaram/httpengine/connection"
	"github/sabouaram/httpengine/stream"
)

func newConn() *connection.Conn {
	rawIn := stream.NewNode(nil)
	rawOut := stream.NewNode(nil)
	limits := connection.Limits{MaxKeepAliveRequests: 100, MaxKeepAliveIdle: 5 * time.Second}
	return connection.New(rawIn, rawOut, limits, nil, nil, nil)
}

func TestNewConnStartsAtRequestStart(t *testing.T) {
	c := newConn()
	if c.State != connection.RequestStart {
		t.Fatalf("expected RequestStart, got %v", c.State)
	}
}

func TestParsesHeadersAndEntersHandleMainVR(t *testing.T) {
	c := newConn()
	c.RawIn.Out.AppendString([]byte("GET / HTTP/1.1\r\nHost: h\r\n\r\n"))

	state, err := c.OnReadable()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != connection.HandleMainVR {
		t.Fatalf("expected HandleMainVR, got %v", state)
	}
}

func TestMalformedRequestLineClosesConnection(t *testing.T) {
	c := newConn()
	c.RawIn.Out.AppendString([]byte("NOTREAL\r\n\r\n"))

	_, err := c.OnReadable()
	if err == nil {
		t.Fatalf("expected parse error")
	}
	if c.State != connection.Write {
		t.Fatalf("expected Write after failed parse, got %v", c.State)
	}
}

func TestKeepAliveRequestLimitForcesClose(t *testing.T) {
	c := newConn()
	c.MaxKeepAliveRequests = 1
	c.State = connection.Write
	c.OnWritten()
	if c.State != connection.Dead {
		t.Fatalf("expected connection closed after hitting request limit, got %v", c.State)
	}
}

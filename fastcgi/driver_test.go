package fastcgi_test

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"net"
	"sync"
	"testing"
	"time"

	"github/sabouaram/httpengine/fastcgi"
	"github/sabouaram/httpengine/httpparser"
	"github/sabouaram/httpengine/vr"
)

const (
	fcgiVersion1        = 1
	fcgiBeginRequest    = 1
	fcgiEndRequest      = 3
	fcgiParams          = 4
	fcgiStdin           = 5
	fcgiStdout          = 6
	fcgiRequestComplete = 0
)

type fakeHeader struct {
	version, typ          byte
	requestID, contentLen uint16
	padLen                byte
}

func readFakeHeader(r *bufio.Reader) (fakeHeader, error) {
	var buf [8]byte
	if _, err := readFull(r, buf[:]); err != nil {
		return fakeHeader{}, err
	}
	return fakeHeader{
		version:    buf[0],
		typ:        buf[1],
		requestID:  binary.BigEndian.Uint16(buf[2:4]),
		contentLen: binary.BigEndian.Uint16(buf[4:6]),
		padLen:     buf[6],
	}, nil
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func writeFakeRecord(w net.Conn, typ byte, payload []byte) {
	pad := (8 - len(payload)%8) % 8
	hdr := make([]byte, 8)
	hdr[0] = fcgiVersion1
	hdr[1] = typ
	binary.BigEndian.PutUint16(hdr[2:4], 1)
	binary.BigEndian.PutUint16(hdr[4:6], uint16(len(payload)))
	hdr[6] = byte(pad)
	w.Write(hdr)
	if len(payload) > 0 {
		w.Write(payload)
	}
	if pad > 0 {
		w.Write(make([]byte, pad))
	}
}

// fakeResponder plays the backend side of the protocol: reads
// BEGIN_REQUEST/PARAMS/STDIN, ignores params, waits for the STDIN
// terminator, then replies with one STDOUT record carrying a CGI
// header block + body, followed by END_REQUEST.
func fakeResponder(t *testing.T, conn net.Conn, body string) {
	r := bufio.NewReader(conn)
	for {
		h, err := readFakeHeader(r)
		if err != nil {
			return
		}
		payload := make([]byte, h.contentLen)
		if h.contentLen > 0 {
			readFull(r, payload)
		}
		if h.padLen > 0 {
			readFull(r, make([]byte, h.padLen))
		}
		if h.typ == fcgiStdin && h.contentLen == 0 {
			break
		}
	}

	out := "Status: 200 OK\r\nContent-Type: text/plain\r\n\r\n" + body
	writeFakeRecord(conn, fcgiStdout, []byte(out))
	writeFakeRecord(conn, fcgiStdout, nil)

	end := make([]byte, 8)
	binary.BigEndian.PutUint32(end[0:4], 0)
	end[4] = fcgiRequestComplete
	writeFakeRecord(conn, fcgiEndRequest, end)

	conn.Close()
}

func TestDriverRoundTripsSimpleResponse(t *testing.T) {
	client, server := net.Pipe()
	go fakeResponder(t, server, "hello from backend")

	var mu sync.Mutex
	schedule := func(fn func()) {
		mu.Lock()
		defer mu.Unlock()
		fn()
	}

	doneCh := make(chan bool, 1)
	v := vr.New(func(*vr.VR) {})
	d := fastcgi.New(client, v, schedule, nil, func(failed bool) { doneCh <- failed })

	req := &httpparser.Request{
		MethodRaw: "GET",
		URI:       "/index.html",
		Version:   httpparser.Version11,
		Host:      "example.com",
	}
	if err := d.Start(req, vr.Physical{Path: "/var/www/index.html", DocRoot: "/var/www"}, "127.0.0.1", "127.0.0.1", "80"); err != nil {
		t.Fatalf("start: %v", err)
	}

	v.In.Close() // empty request body, signals EOF to OnRequestBody
	if res := v.HandleRequestBody(); res != vr.GoOn {
		t.Fatalf("expected GoOn from indirect handler, got %v", res)
	}

	select {
	case failed := <-doneCh:
		if failed {
			t.Fatalf("expected a clean completion")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for driver completion")
	}

	mu.Lock()
	defer mu.Unlock()
	if v.Response.StatusCode != 200 {
		t.Fatalf("expected status 200, got %d", v.Response.StatusCode)
	}
	if ct, ok := v.Response.Headers.Get("Content-Type"); !ok || ct != "text/plain" {
		t.Fatalf("expected Content-Type: text/plain, got %q ok=%v", ct, ok)
	}
	if !v.Out.IsClosed() {
		t.Fatalf("expected Out to be closed once END_REQUEST arrives")
	}

	var got []byte
	n := v.Out.Length()
	if !v.Out.ExtractTo(n, &got) {
		t.Fatalf("failed extracting response body")
	}
	if !bytes.Equal(got, []byte("hello from backend")) {
		t.Fatalf("unexpected body: %q", got)
	}
}

func TestDriverReportsFailureOnBackendIOError(t *testing.T) {
	client, server := net.Pipe()

	// Drain the BEGIN_REQUEST/PARAMS writes then vanish before any
	// response is produced, forcing readLoop's readRecord to error out.
	drained := make(chan struct{})
	go func() {
		buf := make([]byte, 4096)
		for {
			if _, err := server.Read(buf); err != nil {
				close(drained)
				return
			}
		}
	}()

	var mu sync.Mutex
	schedule := func(fn func()) {
		mu.Lock()
		defer mu.Unlock()
		fn()
	}

	doneCh := make(chan bool, 1)
	v := vr.New(func(*vr.VR) {})
	d := fastcgi.New(client, v, schedule, nil, func(failed bool) { doneCh <- failed })

	req := &httpparser.Request{MethodRaw: "GET", URI: "/", Version: httpparser.Version11, Host: "example.com"}
	if err := d.Start(req, vr.Physical{}, "127.0.0.1", "127.0.0.1", "80"); err != nil {
		t.Fatalf("start: %v", err)
	}

	server.Close()
	<-drained

	select {
	case failed := <-doneCh:
		if !failed {
			t.Fatalf("expected failure when the backend connection dies mid-flight")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for driver completion")
	}
}

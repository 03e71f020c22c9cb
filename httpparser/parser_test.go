package httpparser_test

import (
	"testing"

	"github/sabouaram/httpengine/chunk"
	"github/sabouaram/httpengine/httpparser"
)

func TestParseSimpleGet(t *testing.T) {
	cq := chunk.New()
	cq.AppendString([]byte("GET /index.html HTTP/1.1\r\nHost: example.com\r\nConnection: keep-alive\r\n\r\n"))

	p := httpparser.New()
	state, req, err := p.Parse(cq)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != httpparser.StateDone {
		t.Fatalf("expected StateDone, got %v", state)
	}
	if req.Method != httpparser.GET || req.URI != "/index.html" || req.Version != httpparser.Version11 {
		t.Fatalf("unexpected parse: %+v", req)
	}
	if req.Host != "example.com" {
		t.Fatalf("expected host example.com, got %q", req.Host)
	}
}

func TestParseAcrossChunkBoundary(t *testing.T) {
	cq := chunk.New()
	cq.AppendString([]byte("GET /a HTTP/1.1\r\nHo"))
	cq.AppendString([]byte("st: example.com\r\n\r\n"))

	p := httpparser.New()
	state, req, err := p.Parse(cq)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != httpparser.StateDone {
		t.Fatalf("expected done, got %v", state)
	}
	if req.Host != "example.com" {
		t.Fatalf("host across boundary not assembled: %q", req.Host)
	}
}

func TestParseIncompleteReturnsNilWithoutError(t *testing.T) {
	cq := chunk.New()
	cq.AppendString([]byte("GET /a HTTP/1.1\r\n"))

	p := httpparser.New()
	state, req, err := p.Parse(cq)
	if err != nil || req != nil {
		t.Fatalf("expected to wait for more data, got state=%v req=%v err=%v", state, req, err)
	}
}

func TestMissingHostOnHTTP11Rejected(t *testing.T) {
	cq := chunk.New()
	cq.AppendString([]byte("GET / HTTP/1.1\r\n\r\n"))

	p := httpparser.New()
	_, _, err := p.Parse(cq)
	if err == nil {
		t.Fatalf("expected error for missing Host")
	}
}

func TestContentLengthAndChunkedBothPresentRejected(t *testing.T) {
	cq := chunk.New()
	cq.AppendString([]byte("POST / HTTP/1.1\r\nHost: h\r\nContent-Length: 4\r\nTransfer-Encoding: chunked\r\n\r\n"))

	p := httpparser.New()
	_, _, err := p.Parse(cq)
	if err == nil {
		t.Fatalf("expected error for conflicting framing headers")
	}
}

func TestOverlongURIRejected(t *testing.T) {
	cq := chunk.New()
	long := make([]byte, httpparser.MaxURILength+10)
	for i := range long {
		long[i] = 'a'
	}
	cq.AppendString(append([]byte("GET /"), append(long, []byte(" HTTP/1.1\r\n\r\n")...)...))

	p := httpparser.New()
	_, _, err := p.Parse(cq)
	if err != httpparser.ErrTooLong {
		t.Fatalf("expected ErrTooLong, got %v", err)
	}
}

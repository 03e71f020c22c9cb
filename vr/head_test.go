package vr_test

import (
	"bytes"
	"testing"

	"github/sabouaram/httpengine/httpparser"
	"github/sabouaram/httpengine/vr"
)

func TestHandleDirectSerializesStatusLineAndDefaultHeaders(t *testing.T) {
	v := vr.New(nil)
	v.Response.StatusCode = 404
	v.HandleDirect()

	var got []byte
	n := v.VROut.Length()
	if !v.VROut.ExtractTo(n, &got) {
		t.Fatalf("failed extracting head bytes")
	}
	if !bytes.HasPrefix(got, []byte("HTTP/1.1 404 Not Found\r\n")) {
		t.Fatalf("unexpected status line: %q", got)
	}
	if !bytes.Contains(got, []byte("Server: httpengine\r\n")) {
		t.Fatalf("expected default Server header, got %q", got)
	}
	if !bytes.Contains(got, []byte("Date: ")) {
		t.Fatalf("expected a Date header, got %q", got)
	}
	if !bytes.HasSuffix(got, []byte("\r\n\r\n")) {
		t.Fatalf("expected blank-line terminator, got %q", got)
	}
}

func TestHandleDirectDoesNotOverrideExplicitServerHeader(t *testing.T) {
	v := vr.New(nil)
	v.Response.StatusCode = 200
	v.Response.Headers = append(v.Response.Headers, httpparser.Header{
		Line: "Server: custom/1.0", Name: "Server", Value: "custom/1.0",
	})
	v.HandleDirect()

	var got []byte
	n := v.VROut.Length()
	v.VROut.ExtractTo(n, &got)
	if bytes.Count(got, []byte("Server:")) != 1 {
		t.Fatalf("expected exactly one Server header, got %q", got)
	}
	if !bytes.Contains(got, []byte("Server: custom/1.0\r\n")) {
		t.Fatalf("expected the explicit Server header to survive, got %q", got)
	}
}

func TestWriteResponseHeadRunsOnlyOnce(t *testing.T) {
	v := vr.New(nil)
	v.HandleDirect()
	before := v.VROut.Length()
	v.HandleDirect() // second call must be a no-op
	if v.VROut.Length() != before {
		t.Fatalf("expected writeResponseHead to run exactly once, length grew from %d to %d", before, v.VROut.Length())
	}
}

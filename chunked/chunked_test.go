package chunked_test

import (
	"testing"

	"github/sabouaram/httpengine/chunk"
	"github/sabouaram/httpengine/chunked"
)

func TestEncodeSingleChunkAndTerminator(t *testing.T) {
	in := chunk.New()
	in.AppendString([]byte("hello"))
	in.Close()

	out := chunk.New()
	chunked.Encode(out, in)

	var got []byte
	out.ExtractTo(out.Length(), &got)
	want := "5\r\nhello\r\n0\r\n\r\n"
	if string(got) != want {
		t.Fatalf("got %q want %q", got, want)
	}
	if !out.IsClosed() {
		t.Fatalf("expected out closed")
	}
}

func TestDecodeSingleChunk(t *testing.T) {
	in := chunk.New()
	in.AppendString([]byte("5\r\nhello\r\n0\r\n\r\n"))

	out := chunk.New()
	d := chunked.NewDecoder()
	if err := d.Decode(out, in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Done() {
		t.Fatalf("expected decode done")
	}
	var got []byte
	out.ExtractTo(out.Length(), &got)
	if string(got) != "hello" {
		t.Fatalf("got %q", got)
	}
}

func TestDecodeAcrossMultipleCalls(t *testing.T) {
	in := chunk.New()
	in.AppendString([]byte("3\r\nfoo"))

	out := chunk.New()
	d := chunked.NewDecoder()
	if err := d.Decode(out, in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Done() {
		t.Fatalf("should not be done yet")
	}

	in.AppendString([]byte("\r\n0\r\n\r\n"))
	if err := d.Decode(out, in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Done() {
		t.Fatalf("expected done after trailing data arrives")
	}
	var got []byte
	out.ExtractTo(out.Length(), &got)
	if string(got) != "foo" {
		t.Fatalf("got %q", got)
	}
}

func TestDecodeMalformedSizeLine(t *testing.T) {
	in := chunk.New()
	in.AppendString([]byte("zzz\r\n"))

	out := chunk.New()
	d := chunked.NewDecoder()
	if err := d.Decode(out, in); err != chunked.ErrFraming {
		t.Fatalf("expected ErrFraming, got %v", err)
	}
}

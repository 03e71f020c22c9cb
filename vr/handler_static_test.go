package vr_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github/sabouaram/httpengine/httpparser"
	"github/sabouaram/httpengine/statcache"
	"github/sabouaram/httpengine/vr"
)

func newRequest(method httpparser.Method) *httpparser.Request {
	return &httpparser.Request{Method: method, MethodRaw: "GET", URI: "/f.html", Version: httpparser.Version11, Host: "example.com"}
}

func TestStaticActionServesRegularFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.html")
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	cache := statcache.New(statcache.Config{TTL: time.Minute})
	v := vr.New(nil)
	v.Request = newRequest(httpparser.GET)
	v.Physical = vr.Physical{Path: path, DocRoot: dir}
	v.SetActionRoot(vr.NewStaticAction(cache))

	if res := v.HandleRequestHeaders(); res != vr.GoOn {
		t.Fatalf("expected GoOn, got %v", res)
	}
	if v.Response.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", v.Response.StatusCode)
	}
	if !v.Out.IsClosed() {
		t.Fatalf("expected Out closed by HandleDirect")
	}
	if v.Out.Length() != int64(len("hello world")) {
		t.Fatalf("expected out length %d, got %d", len("hello world"), v.Out.Length())
	}
	if ct, ok := v.Response.Headers.Get("Content-Type"); !ok || ct != "application/octet-stream" {
		t.Fatalf("expected default content-type, got %q ok=%v", ct, ok)
	}
}

func TestStaticActionReturns404ForMissingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "missing.html")

	cache := statcache.New(statcache.Config{TTL: time.Minute})
	v := vr.New(nil)
	v.Request = newRequest(httpparser.GET)
	v.Physical = vr.Physical{Path: path, DocRoot: dir}
	v.SetActionRoot(vr.NewStaticAction(cache))

	v.HandleRequestHeaders()
	if v.Response.StatusCode != 404 {
		t.Fatalf("expected 404, got %d", v.Response.StatusCode)
	}
}

func TestStaticActionLeavesDirectoriesForLaterAction(t *testing.T) {
	dir := t.TempDir()

	cache := statcache.New(statcache.Config{TTL: time.Minute})
	v := vr.New(nil)
	v.Request = newRequest(httpparser.GET)
	v.Physical = vr.Physical{Path: dir, DocRoot: dir}
	v.SetActionRoot(vr.NewStaticAction(cache))

	if res := v.HandleRequestHeaders(); res != vr.GoOn {
		t.Fatalf("expected GoOn, got %v", res)
	}
	if v.IsIndirect() || v.Out.IsClosed() {
		t.Fatalf("expected the directory to be left unhandled for a later action")
	}
}

func TestStaticActionSkipsBodyForHeadRequest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.html")
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	cache := statcache.New(statcache.Config{TTL: time.Minute})
	v := vr.New(nil)
	v.Request = newRequest(httpparser.HEAD)
	v.Physical = vr.Physical{Path: path, DocRoot: dir}
	v.SetActionRoot(vr.NewStaticAction(cache))

	v.HandleRequestHeaders()
	if v.Response.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", v.Response.StatusCode)
	}
	if v.Out.Length() != 0 {
		t.Fatalf("expected no body queued for HEAD, got length %d", v.Out.Length())
	}
	if cl, ok := v.Response.Headers.Get("Content-Length"); !ok || cl != "11" {
		t.Fatalf("expected Content-Length: 11, got %q ok=%v", cl, ok)
	}
}

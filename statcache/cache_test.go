package statcache_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github/sabouaram/httpengine/statcache"
)

func TestGetReturnsFileInfoForExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.html")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	c := statcache.New(statcache.Config{TTL: time.Minute})
	info, err := c.Get(path)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if info.Size() != 5 {
		t.Fatalf("expected size 5, got %d", info.Size())
	}
}

func TestGetCachesNegativeLookup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "missing.html")

	c := statcache.New(statcache.Config{TTL: time.Minute})
	if _, err := c.Get(path); !os.IsNotExist(err) {
		t.Fatalf("expected ENOENT, got %v", err)
	}

	// Creating the file after a cached negative lookup should not be
	// observed until the TTL window elapses.
	if err := os.WriteFile(path, []byte("now exists"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := c.Get(path); !os.IsNotExist(err) {
		t.Fatalf("expected cached ENOENT to still apply, got %v", err)
	}
}

func TestInvalidateForcesFreshStat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.html")

	c := statcache.New(statcache.Config{TTL: time.Minute})
	if _, err := c.Get(path); !os.IsNotExist(err) {
		t.Fatalf("expected ENOENT, got %v", err)
	}

	if err := os.WriteFile(path, []byte("now exists"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	c.Invalidate(path)

	info, err := c.Get(path)
	if err != nil {
		t.Fatalf("get after invalidate: %v", err)
	}
	if info.Size() != len("now exists") {
		t.Fatalf("unexpected size %d", info.Size())
	}
}

func TestZeroTTLDisablesCaching(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.html")
	if err := os.WriteFile(path, []byte("a"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	c := statcache.New(statcache.Config{TTL: 0})
	if _, err := c.Get(path); err != nil {
		t.Fatalf("get: %v", err)
	}

	if err := os.WriteFile(path, []byte("ab"), 0o644); err != nil {
		t.Fatalf("rewrite file: %v", err)
	}
	info, err := c.Get(path)
	if err != nil {
		t.Fatalf("get after rewrite: %v", err)
	}
	if info.Size() != 2 {
		t.Fatalf("expected ttl=0 to always re-stat, got size %d", info.Size())
	}
}

func TestGetWithFileOpensRegularFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.html")
	if err := os.WriteFile(path, []byte("content"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	c := statcache.New(statcache.Config{TTL: time.Minute})
	info, f, err := c.GetWithFile(path)
	if err != nil {
		t.Fatalf("get with file: %v", err)
	}
	defer f.Close()
	if info.Size() != int64(len("content")) {
		t.Fatalf("unexpected size %d", info.Size())
	}
	buf := make([]byte, 7)
	if _, err := f.Read(buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(buf) != "content" {
		t.Fatalf("unexpected content %q", buf)
	}
}

func TestGetWithFileSkipsOpenForDirectory(t *testing.T) {
	dir := t.TempDir()

	c := statcache.New(statcache.Config{TTL: time.Minute})
	info, f, err := c.GetWithFile(dir)
	if err != nil {
		t.Fatalf("get with file: %v", err)
	}
	if f != nil {
		t.Fatalf("expected no open file handle for a directory")
	}
	if !info.IsDir() {
		t.Fatalf("expected IsDir")
	}
}

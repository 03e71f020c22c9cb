package vr_test

import (
	"testing"

	"github/sabouaram/httpengine/httpparser"
	"github/sabouaram/httpengine/vr"
)

func TestDocRootActionMapsPathUnderDocRoot(t *testing.T) {
	v := vr.New(nil)
	v.Request = &httpparser.Request{URI: "/a/b.txt"}
	v.SetActionRoot(vr.NewDocRootAction("/srv/www"))

	if res := v.HandleRequestHeaders(); res != vr.GoOn {
		t.Fatalf("expected GoOn, got %v", res)
	}
	if v.Physical.Path != "/srv/www/a/b.txt" {
		t.Fatalf("unexpected physical path: %q", v.Physical.Path)
	}
	if v.Physical.DocRoot != "/srv/www" {
		t.Fatalf("unexpected doc root: %q", v.Physical.DocRoot)
	}
}

func TestDocRootActionStripsQueryString(t *testing.T) {
	v := vr.New(nil)
	v.Request = &httpparser.Request{URI: "/search?q=go"}
	v.SetActionRoot(vr.NewDocRootAction("/srv/www"))
	v.HandleRequestHeaders()

	if v.Physical.Path != "/srv/www/search" {
		t.Fatalf("unexpected physical path: %q", v.Physical.Path)
	}
	if v.Physical.RelPath != "/search" {
		t.Fatalf("unexpected rel path: %q", v.Physical.RelPath)
	}
}

package vr_test

import (
	"encoding/json"
	"testing"

	"github/sabouaram/httpengine/vr"
)

type statusFixture struct {
	Connections int `json:"connections"`
}

func TestStatusActionEncodesSnapshotAsJSON(t *testing.T) {
	v := vr.New(nil)
	v.SetActionRoot(vr.NewStatusAction(func() interface{} {
		return statusFixture{Connections: 3}
	}))

	if res := v.HandleRequestHeaders(); res != vr.GoOn {
		t.Fatalf("expected GoOn, got %v", res)
	}
	if v.Response.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", v.Response.StatusCode)
	}
	if ct, ok := v.Response.Headers.Get("Content-Type"); !ok || ct != "application/json" {
		t.Fatalf("expected application/json, got %q ok=%v", ct, ok)
	}
	if !v.Out.IsClosed() {
		t.Fatalf("expected Out closed")
	}

	var got []byte
	n := v.Out.Length()
	if !v.Out.ExtractTo(n, &got) {
		t.Fatalf("failed extracting body")
	}
	var decoded statusFixture
	if err := json.Unmarshal(got, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Connections != 3 {
		t.Fatalf("expected connections=3, got %d", decoded.Connections)
	}
}

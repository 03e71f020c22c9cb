package errors_test

import (
	"errors"
	"testing"

	liberr "github/sabouaram/httpengine/errors"
)

func TestCodeErrorMessage(t *testing.T) {
	const code liberr.CodeError = liberr.MinPkgChunk + 1
	liberr.RegisterIdFctMessage(liberr.MinPkgChunk, func(c liberr.CodeError) string {
		if c == code {
			return "chunk test failure"
		}
		return ""
	})

	e := liberr.New(code, liberr.KindParse, nil)
	if got := e.Error(); got != "chunk test failure" {
		t.Fatalf("unexpected message: %q", got)
	}
}

func TestErrorWrapsParent(t *testing.T) {
	parent := errors.New("boom")
	e := liberr.New(liberr.MinPkgStream, liberr.KindIO, parent)

	if !e.HasParent() {
		t.Fatal("expected HasParent to be true")
	}
	if !errors.Is(e, parent) {
		t.Fatal("expected errors.Is to unwrap to parent")
	}
}

func TestIsMatchesCode(t *testing.T) {
	e := liberr.New(liberr.MinPkgWorker, liberr.KindTimeout, nil)
	if !liberr.Is(e, liberr.MinPkgWorker) {
		t.Fatal("expected Is to match own code")
	}
	if liberr.Is(e, liberr.MinPkgServer) {
		t.Fatal("expected Is to reject different code")
	}
}

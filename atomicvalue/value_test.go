package atomicvalue_test

import (
	"sync"
	"testing"

	"github/sabouaram/httpengine/atomicvalue"
)

func TestValueZero(t *testing.T) {
	var v atomicvalue.Value[int]
	if got := v.Load(); got != 0 {
		t.Fatalf("expected zero value, got %d", got)
	}
}

func TestValueStoreLoad(t *testing.T) {
	v := atomicvalue.New("initial")
	if got := v.Load(); got != "initial" {
		t.Fatalf("expected 'initial', got %q", got)
	}
	v.Store("updated")
	if got := v.Load(); got != "updated" {
		t.Fatalf("expected 'updated', got %q", got)
	}
}

func TestValueConcurrentAccess(t *testing.T) {
	v := atomicvalue.New(0)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			v.Store(n)
			_ = v.Load()
		}(i)
	}
	wg.Wait()
}

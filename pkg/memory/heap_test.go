package memory

import (
	"errors"
	"testing"
)

func TestHeapRefCounting(t *testing.T) {
	h := NewHeap()
	a, _ := h.NewObject("a")
	b, _ := h.NewObject("b")

	h.IncRef(a)
	if err := h.DecRef(a); err != nil || a.Freed() {
		t.Fatalf("one reference should remain: %v", err)
	}
	live := h.LiveObjects()
	if len(live) != 2 || live[0] != a || live[1] != b {
		t.Errorf("expected allocation order, got %v", live)
	}

	_ = h.DecRef(a)
	if !a.Freed() || h.Live() != 1 {
		t.Errorf("a should be freed, live=%d", h.Live())
	}
	if err := h.DecRef(a); !errors.Is(err, ErrReleased) {
		t.Errorf("expected ErrReleased, got %v", err)
	}
	if err := h.DecRef(nil); err != nil {
		t.Errorf("nil release is a no-op, got %v", err)
	}
}

func TestHeapFailAfter(t *testing.T) {
	h := NewHeap()
	h.FailAfter(2)
	for i := 0; i < 2; i++ {
		if _, err := h.NewObject(i); err != nil {
			t.Fatalf("allocation %d: %v", i, err)
		}
	}
	if _, err := h.NewObject(2); !errors.Is(err, ErrAllocationFailure) {
		t.Errorf("expected ErrAllocationFailure, got %v", err)
	}
	if h.Allocations() != 2 {
		t.Errorf("expected 2 allocations, got %d", h.Allocations())
	}
}

func TestValueRefs(t *testing.T) {
	h := NewHeap()
	s, _ := h.NewObject("s")
	v := TupleValue(IntValue(1), TupleValue(ObjectValue(s), FloatValue(2)))
	if refs := v.Refs(); len(refs) != 1 || refs[0] != s {
		t.Errorf("expected the nested component, got %v", refs)
	}
	if ObjectValue(nil).Defined {
		t.Error("nil object is undefined")
	}
	if got := v.String(); got != "(1, (<s #1>, 2))" {
		t.Errorf("unexpected rendering %q", got)
	}
	if Undefined.Refs() != nil {
		t.Error("undefined values own nothing")
	}
}

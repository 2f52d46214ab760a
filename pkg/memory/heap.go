package memory

import (
	"errors"
	"fmt"

	"github.com/emirpasic/gods/sets/linkedhashset"
)

// Reference-counted heap
//
// Every object starts with one reference owned by its creator. IncRef
// and DecRef move that count; when it reaches zero the object's
// finalizer runs (for class instances: untrack, then clear every field)
// and the object leaves the live set.
//
// The host serializes execution, so the heap takes no locks.

var (
	// ErrAllocationFailure is returned when the allocator has no memory
	ErrAllocationFailure = errors.New("allocation failed")

	// ErrReleased is returned when a reference is dropped from a freed object
	ErrReleased = errors.New("object already released")
)

// Object is a heap cell: either a native class instance or a plain host
// object standing in for strings, lists and the like
type Object struct {
	ID       int
	RefCount int
	Type     *TypeObject // nil for plain host objects
	Payload  interface{}

	fields []Value
	vtable *VTable

	// Open attribute set extension slots
	Dict     *Object
	WeakList *Object

	tracked  bool
	freed    bool
	finalize func(*Object)
}

// Freed reports whether the object's memory was released
func (o *Object) Freed() bool { return o.freed }

// Tracked reports whether the cycle collector knows about the object
func (o *Object) Tracked() bool { return o.tracked }

func (o *Object) String() string {
	if o.Type != nil {
		return fmt.Sprintf("<%s #%d>", o.Type.Name, o.ID)
	}
	return fmt.Sprintf("<%v #%d>", o.Payload, o.ID)
}

// Heap allocates objects and tracks which are still live
type Heap struct {
	live      *linkedhashset.Set
	nextID    int
	allocs    int
	failAfter int
}

// NewHeap creates an empty heap whose allocations never fail
func NewHeap() *Heap {
	return &Heap{live: linkedhashset.New(), failAfter: -1}
}

// FailAfter makes every allocation after the next n fail. A negative n
// restores normal behaviour.
func (h *Heap) FailAfter(n int) {
	if n < 0 {
		h.failAfter = -1
		return
	}
	h.failAfter = h.allocs + n
}

func (h *Heap) alloc() (*Object, error) {
	if h.failAfter >= 0 && h.allocs >= h.failAfter {
		return nil, ErrAllocationFailure
	}
	h.allocs++
	h.nextID++
	o := &Object{ID: h.nextID, RefCount: 1}
	h.live.Add(o)
	return o, nil
}

// NewObject allocates a plain host object carrying payload
func (h *Heap) NewObject(payload interface{}) (*Object, error) {
	o, err := h.alloc()
	if err != nil {
		return nil, err
	}
	o.Payload = payload
	return o, nil
}

// IncRef takes a new reference
func (h *Heap) IncRef(o *Object) {
	if o != nil {
		o.RefCount++
	}
}

// DecRef drops a reference and frees the object when none remain
func (h *Heap) DecRef(o *Object) error {
	if o == nil {
		return nil
	}
	if o.freed {
		return fmt.Errorf("memory: %s: %w", o, ErrReleased)
	}
	o.RefCount--
	if o.RefCount > 0 {
		return nil
	}
	if o.finalize != nil {
		o.finalize(o)
	}
	o.freed = true
	h.live.Remove(o)
	return nil
}

func (h *Heap) incRefs(v Value) {
	for _, o := range v.Refs() {
		h.IncRef(o)
	}
}

func (h *Heap) decRefs(v Value) {
	for _, o := range v.Refs() {
		// a field only ever holds live references
		_ = h.DecRef(o)
	}
}

// Live returns the number of objects not yet freed
func (h *Heap) Live() int {
	return h.live.Size()
}

// LiveObjects returns the live objects in allocation order
func (h *Heap) LiveObjects() []*Object {
	out := make([]*Object, 0, h.live.Size())
	for _, v := range h.live.Values() {
		out = append(out, v.(*Object))
	}
	return out
}

// Allocations returns the number of successful allocations so far
func (h *Heap) Allocations() int {
	return h.allocs
}

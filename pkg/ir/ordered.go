package ir

import "github.com/emirpasic/gods/maps/linkedhashmap"

// OrderedMap is a string-keyed map that iterates in insertion order.
// Re-putting an existing key keeps its original position.
type OrderedMap[V any] struct {
	m *linkedhashmap.Map
}

// NewOrderedMap creates an empty ordered map
func NewOrderedMap[V any]() *OrderedMap[V] {
	return &OrderedMap[V]{m: linkedhashmap.New()}
}

// Put inserts or replaces a value
func (o *OrderedMap[V]) Put(key string, value V) {
	o.m.Put(key, value)
}

// Get returns the value stored under key
func (o *OrderedMap[V]) Get(key string) (V, bool) {
	var zero V
	if o == nil {
		return zero, false
	}
	v, ok := o.m.Get(key)
	if !ok {
		return zero, false
	}
	return v.(V), true
}

// Has reports whether key is present
func (o *OrderedMap[V]) Has(key string) bool {
	_, ok := o.Get(key)
	return ok
}

// Len returns the number of entries
func (o *OrderedMap[V]) Len() int {
	if o == nil {
		return 0
	}
	return o.m.Size()
}

// Keys returns the keys in insertion order
func (o *OrderedMap[V]) Keys() []string {
	if o == nil {
		return nil
	}
	keys := make([]string, 0, o.m.Size())
	it := o.m.Iterator()
	for it.Next() {
		keys = append(keys, it.Key().(string))
	}
	return keys
}

// Each calls fn for every entry in insertion order
func (o *OrderedMap[V]) Each(fn func(key string, value V)) {
	if o == nil {
		return
	}
	it := o.m.Iterator()
	for it.Next() {
		fn(it.Key().(string), it.Value().(V))
	}
}

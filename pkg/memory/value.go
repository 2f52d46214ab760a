package memory

import (
	"fmt"
	"strings"
)

// Instance field values
//
// The emitted C marks a field that was never assigned with an in-band
// sentinel (NULL, CPY_LL_INT_ERROR, ...). The model keeps the same
// states explicit: a Value is either Defined or not, and only a defined
// value owns references.

// Value is a tagged optional holding one field's contents
type Value struct {
	Defined bool
	Int     int64
	Float   float64
	Bool    bool
	Obj     *Object
	Items   []Value // tuple components
}

// Undefined is the value of a field that holds no data
var Undefined = Value{}

// IntValue wraps an unboxed integer
func IntValue(v int64) Value { return Value{Defined: true, Int: v} }

// FloatValue wraps an unboxed float
func FloatValue(v float64) Value { return Value{Defined: true, Float: v} }

// BoolValue wraps an unboxed truth value
func BoolValue(v bool) Value { return Value{Defined: true, Bool: v} }

// ObjectValue wraps a reference. The value owns whatever reference the
// caller hands over with it.
func ObjectValue(o *Object) Value {
	if o == nil {
		return Undefined
	}
	return Value{Defined: true, Obj: o}
}

// TupleValue builds an unboxed composite
func TupleValue(items ...Value) Value {
	return Value{Defined: true, Items: items}
}

// Refs returns every object reference owned by v, components included
func (v Value) Refs() []*Object {
	if !v.Defined {
		return nil
	}
	var out []*Object
	if v.Obj != nil {
		out = append(out, v.Obj)
	}
	for _, item := range v.Items {
		out = append(out, item.Refs()...)
	}
	return out
}

func (v Value) String() string {
	switch {
	case !v.Defined:
		return "<undefined>"
	case v.Obj != nil:
		return v.Obj.String()
	case v.Items != nil:
		parts := make([]string, len(v.Items))
		for i, item := range v.Items {
			parts[i] = item.String()
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case v.Float != 0:
		return fmt.Sprintf("%g", v.Float)
	case v.Bool:
		return "true"
	default:
		return fmt.Sprintf("%d", v.Int)
	}
}

package ir

import (
	"fmt"
	"strings"
)

// RType describes how a value of some source type is represented natively
type RType struct {
	Name       string
	CType      string // C spelling, e.g. "PyObject *" or "int64_t"
	RefCounted bool
	Unboxed    bool
	Undefined  string // C expression of the not-yet-initialized sentinel
	Size       int
	Align      int

	// Boxed types other than plain object are checked with this predicate
	// before a cast succeeds (e.g. "PyUnicode_Check").
	CheckFn string

	// Tuple components; non-empty only for composite types
	Items []*RType

	// Set for instance types of native classes
	Class *ClassIR

	code string
}

// IsTuple reports whether the type is a composite (tuple) type
func (t *RType) IsTuple() bool {
	return t != nil && len(t.Items) > 0
}

// IsObject reports whether the type is the generic boxed object type
func (t *RType) IsObject() bool {
	return t == ObjectRType
}

// Code is a short mnemonic used to build tuple struct names
func (t *RType) Code() string {
	return t.code
}

func (t *RType) String() string {
	if t == nil {
		return "<nil>"
	}
	return t.Name
}

// Builtin types
var (
	ObjectRType = &RType{Name: "object", CType: "PyObject *", RefCounted: true, Undefined: "NULL", Size: 8, Align: 8, code: "O"}
	StrRType    = &RType{Name: "str", CType: "PyObject *", RefCounted: true, Undefined: "NULL", Size: 8, Align: 8, CheckFn: "PyUnicode_Check", code: "O"}
	IntRType    = &RType{Name: "int", CType: "int64_t", Unboxed: true, Undefined: "CPY_LL_INT_ERROR", Size: 8, Align: 8, code: "L"}
	FloatRType  = &RType{Name: "float", CType: "double", Unboxed: true, Undefined: "CPY_FLOAT_ERROR", Size: 8, Align: 8, code: "F"}
	BoolRType   = &RType{Name: "bool", CType: "char", Unboxed: true, Undefined: "2", Size: 1, Align: 1, code: "C"}

	// None is returned by initializers; its error value doubles as the
	// hard-failure status of the combined constructor.
	NoneRType = &RType{Name: "None", CType: "char", Unboxed: true, Undefined: "2", Size: 1, Align: 1, code: "C"}
)

var builtinTypes = map[string]*RType{
	"object": ObjectRType,
	"str":    StrRType,
	"int":    IntRType,
	"float":  FloatRType,
	"bool":   BoolRType,
	"None":   NoneRType,
}

// BuiltinType looks up a builtin type by its source name
func BuiltinType(name string) (*RType, bool) {
	t, ok := builtinTypes[name]
	return t, ok
}

// NewTupleRType creates an unboxed composite type. The tuple is reference
// counted iff any component is.
func NewTupleRType(items ...*RType) *RType {
	var names []string
	code := fmt.Sprintf("T%d", len(items))
	rc := false
	size, align := 0, 1
	for _, item := range items {
		names = append(names, item.Name)
		code += item.code
		if item.RefCounted {
			rc = true
		}
		size = alignUp(size, item.Align) + item.Size
		if item.Align > align {
			align = item.Align
		}
	}
	return &RType{
		Name:       "tuple[" + strings.Join(names, ", ") + "]",
		CType:      "tuple_" + code,
		RefCounted: rc,
		Unboxed:    true,
		Size:       alignUp(size, align),
		Align:      align,
		Items:      items,
		code:       code,
	}
}

// NewInstanceRType creates the boxed type of instances of a native class
func NewInstanceRType(cl *ClassIR) *RType {
	return &RType{
		Name:       cl.Name,
		CType:      "PyObject *",
		RefCounted: true,
		Undefined:  "NULL",
		Size:       8,
		Align:      8,
		Class:      cl,
		code:       "O",
	}
}

// SameType reports whether two types share a native representation and
// static identity
func SameType(a, b *RType) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if a.IsTuple() && b.IsTuple() {
		if len(a.Items) != len(b.Items) {
			return false
		}
		for i := range a.Items {
			if !SameType(a.Items[i], b.Items[i]) {
				return false
			}
		}
		return true
	}
	if a.Class != nil || b.Class != nil {
		return a.Class == b.Class
	}
	return a.Name == b.Name
}

func alignUp(n, align int) int {
	if align <= 1 {
		return n
	}
	return (n + align - 1) / align * align
}

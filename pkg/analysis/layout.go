package analysis

import (
	"errors"
	"fmt"

	"github.com/emirpasic/gods/sets/linkedhashset"

	"nativeclass/pkg/ir"
)

// Sizes of the fixed object header on a 64-bit host
const (
	PointerSize      = 8
	ObjectHeaderSize = 16                             // PyObject_HEAD: refcount + type pointer
	InstanceHeader   = ObjectHeaderSize + PointerSize // plus the vtable pointer
)

// ErrDuplicateAttribute is returned when two classes in a base chain
// declare the same attribute with different types
var ErrDuplicateAttribute = errors.New("attribute declared twice in base chain")

// SizeBase says what the fixed part of an instance is measured from
type SizeBase int

const (
	SizeStruct  SizeBase = iota // the class's own generated struct
	SizeForeign                 // an opaque host builtin struct
	SizeObject                  // a bare object header (traits)
)

// Field is one attribute slot in the instance struct
type Field struct {
	Name   string
	Type   *ir.RType
	Owner  *ir.ClassIR
	Offset int
}

// Layout is the memory layout of a class's instances
type Layout struct {
	Class       *ir.ClassIR
	Base        SizeBase
	ForeignBase string
	Fields      []Field

	// HasDict is set when an open attribute set requires the dict and
	// weak-reference pointers after the fixed struct
	HasDict bool

	// Numeric sizes; zero when the base is opaque
	Size          int
	DictOffset    int
	WeakrefOffset int
	BasicSize     int
}

// PlanLayout computes the instance layout of cl. Attributes are collected
// base-to-derived over the non-trait part of the MRO; the first occurrence
// of a name wins.
func PlanLayout(cl *ir.ClassIR) (*Layout, error) {
	l := &Layout{Class: cl, HasDict: cl.HasOpenAttributes()}

	switch {
	case cl.BuiltinBase != "":
		l.Base = SizeForeign
		l.ForeignBase = cl.BuiltinBase
	case cl.IsTrait:
		l.Base = SizeObject
		l.Size = ObjectHeaderSize
	default:
		l.Base = SizeStruct
		fields, err := collectFields(cl)
		if err != nil {
			return nil, err
		}
		offset := InstanceHeader
		for i := range fields {
			offset = alignUp(offset, fields[i].Type.Align)
			fields[i].Offset = offset
			offset += fields[i].Type.Size
		}
		l.Fields = fields
		l.Size = alignUp(offset, PointerSize)
	}

	if l.HasDict && l.Size > 0 {
		l.DictOffset = l.Size
		l.WeakrefOffset = l.Size + PointerSize
		l.BasicSize = l.Size + 2*PointerSize
	} else {
		l.BasicSize = l.Size
	}
	return l, nil
}

func collectFields(cl *ir.ClassIR) ([]Field, error) {
	var fields []Field
	seen := linkedhashset.New()
	types := make(map[string]*ir.RType)
	for i := len(cl.MRO) - 1; i >= 0; i-- {
		base := cl.MRO[i]
		if base.IsTrait {
			continue
		}
		var err error
		base.Attributes.Each(func(name string, t *ir.RType) {
			if err != nil {
				return
			}
			if seen.Contains(name) {
				if !ir.SameType(types[name], t) {
					err = fmt.Errorf("analysis: %s: %w: %s is %s in one ancestor and %s in %s",
						cl.Name, ErrDuplicateAttribute, name, types[name], t, base.Name)
				}
				return
			}
			seen.Add(name)
			types[name] = t
			fields = append(fields, Field{Name: name, Type: t, Owner: base})
		})
		if err != nil {
			return nil, err
		}
	}
	return fields, nil
}

// Field looks up a field by attribute name
func (l *Layout) Field(name string) (Field, bool) {
	for _, f := range l.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// RefCountedFields returns the fields the collector must visit
func (l *Layout) RefCountedFields() []Field {
	var out []Field
	for _, f := range l.Fields {
		if f.Type.RefCounted {
			out = append(out, f)
		}
	}
	return out
}

// BaseSizeExpr is the C expression for the fixed part of an instance
func (l *Layout) BaseSizeExpr(structName string) string {
	switch l.Base {
	case SizeForeign:
		return fmt.Sprintf("sizeof(%s)", l.ForeignBase)
	case SizeObject:
		return "sizeof(PyObject)"
	default:
		return fmt.Sprintf("sizeof(%s)", structName)
	}
}

// DictOffsetExpr places the dict pointer right after the fixed struct
func (l *Layout) DictOffsetExpr(structName string) string {
	return l.BaseSizeExpr(structName)
}

// WeakrefOffsetExpr places the weak-reference pointer after the dict pointer
func (l *Layout) WeakrefOffsetExpr(structName string) string {
	return fmt.Sprintf("%s + sizeof(PyObject *)", l.BaseSizeExpr(structName))
}

// BasicSizeExpr is the total instance size expression
func (l *Layout) BasicSizeExpr(structName string) string {
	if l.HasDict {
		return fmt.Sprintf("%s + 2*sizeof(PyObject *)", l.BaseSizeExpr(structName))
	}
	return l.BaseSizeExpr(structName)
}

func alignUp(n, align int) int {
	if align <= 1 {
		return n
	}
	return (n + align - 1) / align * align
}

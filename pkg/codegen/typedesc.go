package codegen

import (
	"errors"
	"fmt"

	"nativeclass/pkg/ir"
)

// ErrFieldAssigned is returned when a type descriptor field is set twice
var ErrFieldAssigned = errors.New("type descriptor field already assigned")

// TypeDescriptor collects the slot assignments of one class and emits them
// as a single designated-initializer record. Each field is written once;
// emission follows assignment order.
type TypeDescriptor struct {
	Name   string
	fields *ir.OrderedMap[string]
}

// NewTypeDescriptor creates an empty record for the type object name
func NewTypeDescriptor(name string) *TypeDescriptor {
	return &TypeDescriptor{Name: name, fields: ir.NewOrderedMap[string]()}
}

// Set assigns a field
func (d *TypeDescriptor) Set(field, value string) error {
	if old, ok := d.fields.Get(field); ok {
		return fmt.Errorf("codegen: %s.%s: %w (%s, now %s)", d.Name, field, ErrFieldAssigned, old, value)
	}
	d.fields.Put(field, value)
	return nil
}

// Get returns the value of a field
func (d *TypeDescriptor) Get(field string) (string, bool) {
	return d.fields.Get(field)
}

// Fields returns the assigned field names in order
func (d *TypeDescriptor) Fields() []string {
	return d.fields.Keys()
}

// Emit writes the template record and the pointer module initialization
// hands to the host
func (d *TypeDescriptor) Emit(e *Emitter) {
	e.Emit("static PyTypeObject %s_template_ = {", d.Name)
	e.EmitLine("PyVarObject_HEAD_INIT(NULL, 0)")
	d.fields.Each(func(field, value string) {
		e.Emit(".%s = %s,", field, value)
	})
	e.EmitLine("};")
	e.Emit("static PyTypeObject *%s_template = &%s_template_;", d.Name, d.Name)
}

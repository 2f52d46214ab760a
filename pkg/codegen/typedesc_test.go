package codegen

import (
	"errors"
	"strings"
	"testing"
)

func TestTypeDescriptorSetOnce(t *testing.T) {
	d := NewTypeDescriptor("CPyType_Point")
	if err := d.Set("tp_name", "\"Point\""); err != nil {
		t.Fatal(err)
	}
	err := d.Set("tp_name", "\"Other\"")
	if !errors.Is(err, ErrFieldAssigned) {
		t.Fatalf("expected ErrFieldAssigned, got %v", err)
	}
	if v, _ := d.Get("tp_name"); v != "\"Point\"" {
		t.Errorf("first assignment should stick, got %s", v)
	}
}

func TestTypeDescriptorEmitOrder(t *testing.T) {
	d := NewTypeDescriptor("CPyType_Point")
	for _, f := range [][2]string{
		{"tp_name", "\"Point\""},
		{"tp_new", "Point_new"},
		{"tp_basicsize", "sizeof(PointObject)"},
	} {
		if err := d.Set(f[0], f[1]); err != nil {
			t.Fatal(err)
		}
	}

	e := NewEmitter(nil)
	d.Emit(e)
	want := "static PyTypeObject CPyType_Point_template_ = {\n" +
		"    PyVarObject_HEAD_INIT(NULL, 0)\n" +
		"    .tp_name = \"Point\",\n" +
		"    .tp_new = Point_new,\n" +
		"    .tp_basicsize = sizeof(PointObject),\n" +
		"};\n" +
		"static PyTypeObject *CPyType_Point_template = &CPyType_Point_template_;\n"
	if got := e.String(); got != want {
		t.Errorf("unexpected record:\n%s", textDiff(want, got))
	}
	if got := strings.Join(d.Fields(), ","); got != "tp_name,tp_new,tp_basicsize" {
		t.Errorf("fields out of order: %s", got)
	}
}

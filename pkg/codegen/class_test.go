package codegen

import (
	"errors"
	"strings"
	"testing"

	"nativeclass/pkg/analysis"
	"nativeclass/pkg/ir"
)

func loadShapes(t *testing.T) *ir.Module {
	t.Helper()
	mod, err := ir.LoadFile("../ir/testdata/shapes.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return mod
}

func generate(t *testing.T, mod *ir.Module, name string) (string, *ClassOutput, *Stats) {
	t.Helper()
	cl := mod.Class(name)
	if cl == nil {
		t.Fatalf("no class %s", name)
	}
	stats := NewStats()
	e := NewEmitter(NewNames(mod.Name))
	out, err := GenerateClass(cl, e, stats)
	if err != nil {
		t.Fatalf("generate %s: %v", name, err)
	}
	return e.String(), out, stats
}

func expectContains(t *testing.T, out string, wants ...string) {
	t.Helper()
	for _, want := range wants {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q", want)
		}
	}
}

func expectMissing(t *testing.T, out string, unwanted ...string) {
	t.Helper()
	for _, u := range unwanted {
		if strings.Contains(out, u) {
			t.Errorf("unexpected %q", u)
		}
	}
}

func TestGenerateClassTypeDecl(t *testing.T) {
	mod := loadShapes(t)
	names := NewNames(mod.Name)
	c, h := NewEmitter(names), NewEmitter(names)
	if err := GenerateClassTypeDecl(mod.Class("Point"), c, h); err != nil {
		t.Fatal(err)
	}

	if got := strings.TrimSpace(c.String()); got != "PyTypeObject *CPyType_Point;" {
		t.Errorf("unexpected C declaration %q", got)
	}
	header := h.String()
	expectContains(t, header,
		"extern PyTypeObject *CPyType_Point;",
		"typedef struct {\n    PyObject_HEAD\n    CPyVTableItem *vtable;\n    int64_t _x;\n    int64_t _y;\n} PointObject;",
		"int64_t native_Point_getx(PointObject *self);",
		"bool native_Point_sety(PointObject *self, int64_t value);",
		"PyObject *CPyDef_Point(int64_t cpy_r_x, int64_t cpy_r_y);",
	)

	t.Run("TraitHasNoConstructor", func(t *testing.T) {
		c, h := NewEmitter(names), NewEmitter(names)
		if err := GenerateClassTypeDecl(mod.Class("Sized"), c, h); err != nil {
			t.Fatal(err)
		}
		expectMissing(t, h.String(), "CPyDef_Sized(")
	})
}

func TestGeneratePoint(t *testing.T) {
	mod := loadShapes(t)
	out, res, stats := generate(t, mod, "Point")

	t.Run("Descriptor", func(t *testing.T) {
		expectContains(t, out,
			"static PyTypeObject CPyType_Point_template_ = {",
			"PyVarObject_HEAD_INIT(NULL, 0)",
			".tp_name = \"Point\",",
			".tp_new = Point_new,",
			".tp_dealloc = (destructor)Point_dealloc,",
			".tp_traverse = (traverseproc)Point_traverse,",
			".tp_clear = (inquiry)Point_clear,",
			".tp_getset = Point_getseters,",
			".tp_methods = Point_methods,",
			".tp_init = Point_init,",
			".tp_basicsize = sizeof(PointObject),",
			".tp_flags = Py_TPFLAGS_DEFAULT | Py_TPFLAGS_HEAPTYPE | Py_TPFLAGS_BASETYPE | Py_TPFLAGS_HAVE_GC,",
			"static PyTypeObject *CPyType_Point_template = &CPyType_Point_template_;",
		)
		expectMissing(t, out, "tp_dictoffset", "tp_as_mapping", "tp_richcompare")
	})

	t.Run("VTable", func(t *testing.T) {
		expectContains(t, out,
			"static CPyVTableItem Point_vtable[] = {\n"+
				"    (CPyVTableItem)native_Point_getx,\n"+
				"    (CPyVTableItem)native_Point_setx,\n"+
				"    (CPyVTableItem)native_Point_gety,\n"+
				"    (CPyVTableItem)native_Point_sety,\n"+
				"    (CPyVTableItem)CPyDef_Point_____init__,\n"+
				"    (CPyVTableItem)CPyDef_Point___norm,\n"+
				"};",
			"self->vtable = Point_vtable;",
		)
	})

	t.Run("Setup", func(t *testing.T) {
		expectContains(t, out,
			"self = (PointObject *)CPyType_Point->tp_alloc(CPyType_Point, 0);",
			"self->_x = CPY_LL_INT_ERROR;",
			"self->_y = CPY_LL_INT_ERROR;",
		)
		expectMissing(t, out, "__mypyc_defaults_setup")
	})

	t.Run("Constructor", func(t *testing.T) {
		expectContains(t, out,
			"PyObject *CPyDef_Point(int64_t cpy_r_x, int64_t cpy_r_y)\n{",
			"PyObject *self = Point_setup();",
			"char res = CPyDef_Point_____init__(self, cpy_r_x, cpy_r_y);",
			"if (res == 2) {",
		)
		if res.Constructor != "CPyDef_Point" {
			t.Errorf("constructor entry point %q", res.Constructor)
		}
	})

	t.Run("GCHooksSkipUnboxed", func(t *testing.T) {
		expectMissing(t, out, "Py_VISIT", "Py_CLEAR")
		expectContains(t, out,
			"static int\nPoint_traverse(PointObject *self, visitproc visit, void *arg)\n{\n    return 0;\n}",
			"PyObject_GC_UnTrack(self);\n    Point_clear(self);\n    Py_TYPE(self)->tp_free((PyObject *)self);",
		)
	})

	t.Run("NativeAccessors", func(t *testing.T) {
		expectContains(t, out,
			"int64_t native_Point_getx(PointObject *self)\n{\n    return self->_x;\n}",
			"bool native_Point_setx(PointObject *self, int64_t value)\n{\n    self->_x = value;\n    return 1;\n}",
		)
	})

	t.Run("HostAccessors", func(t *testing.T) {
		expectContains(t, out,
			"{\"x\",\n     (getter)Point_getx, (setter)Point_setx,\n     NULL, NULL},",
			"PyObject *retval = PyLong_FromLongLong(self->_x);",
			"int64_t tmp = CPyLong_AsInt64(value);",
			"self->_x = CPY_LL_INT_ERROR;",
		)
	})

	t.Run("Fixup", func(t *testing.T) {
		expectContains(t, out, "static bool\nCPyDef_Point_trait_vtable_setup(void)\n{\n    return 1;\n}")
		if res.Fixup != "CPyDef_Point_trait_vtable_setup" {
			t.Errorf("fixup entry point %q", res.Fixup)
		}
	})

	if stats.ClassesEmitted != 1 || stats.NativeAccessors != 4 || stats.VTableEntries != 6 {
		t.Errorf("unexpected stats: %s", stats.Summary())
	}
}

func TestGenerateReferenceCountedAccessors(t *testing.T) {
	mod := loadShapes(t)
	out, _, _ := generate(t, mod, "Shape")

	expectContains(t, out,
		// native getter: error on sentinel, new reference otherwise
		"PyObject *native_Shape_getname(ShapeObject *self)\n{\n"+
			"    if (self->_name == NULL) {\n"+
			"        PyErr_SetString(PyExc_AttributeError, \"attribute 'name' of 'Shape' undefined\");\n"+
			"    } else {\n"+
			"        Py_INCREF(self->_name);\n"+
			"    }\n"+
			"    return self->_name;\n}",
		// native setter: release a defined old value, steal the new one
		"bool native_Shape_setname(ShapeObject *self, PyObject *value)\n{\n"+
			"    if (self->_name != NULL) {\n"+
			"        Py_DECREF(self->_name);\n"+
			"    }\n"+
			"    self->_name = value;\n"+
			"    return 1;\n}",
		"Py_VISIT(self->_name);",
		"Py_CLEAR(self->_name);",
		"if (PyUnicode_Check(value))",
	)
}

func TestGenerateSubclassVTable(t *testing.T) {
	mod := loadShapes(t)
	out, _, _ := generate(t, mod, "Square")

	expectContains(t, out, "static CPyVTableItem Square_vtable[] = {\n"+
		"    (CPyVTableItem)native_Shape_getname,\n"+
		"    (CPyVTableItem)native_Shape_setname,\n"+
		"    (CPyVTableItem)native_Shape_getsides,\n"+
		"    (CPyVTableItem)native_Shape_setsides,\n"+
		"    (CPyVTableItem)CPyDef_Square___area,\n"+
		"    (CPyVTableItem)CPyDef_Shape___describe,\n"+
		"    (CPyVTableItem)native_Square_getside,\n"+
		"    (CPyVTableItem)native_Square_setside,\n"+
		"    (CPyVTableItem)CPyDef_Square___scale,\n"+
		"};")
	// accessors cover inherited fields too
	expectContains(t, out, "PyObject *native_Square_getname(SquareObject *self)")
}

func TestGenerateTraitHeader(t *testing.T) {
	mod := loadShapes(t)

	t.Run("Box", func(t *testing.T) {
		out, res, stats := generate(t, mod, "Box")
		expectContains(t, out,
			"static CPyVTableItem Box_Sized_trait_vtable[] = {\n    (CPyVTableItem)CPyDef_Box___size,\n};",
			"static CPyVTableItem Box_vtable[] = {\n"+
				"    /* Array of trait vtables */\n"+
				"    NULL, NULL, /* Sized */\n"+
				"    /* Start of real vtable */\n",
			"self->vtable = Box_vtable + 2;",
			"static bool\nCPyDef_Box_trait_vtable_setup(void)\n{\n"+
				"    Box_vtable[0] = (CPyVTableItem)CPyType_Sized;\n"+
				"    Box_vtable[1] = (CPyVTableItem)Box_Sized_trait_vtable;\n"+
				"    return 1;\n}",
		)
		if stats.TraitTables != 1 || res.Fixup != "CPyDef_Box_trait_vtable_setup" {
			t.Errorf("unexpected result %+v, %s", res, stats.Summary())
		}
	})

	t.Run("TwoTraits", func(t *testing.T) {
		out, _, _ := generate(t, mod, "Canvas")
		expectContains(t, out,
			"self->vtable = Canvas_vtable + 4;",
			"Canvas_vtable[2] = (CPyVTableItem)CPyType_Colored;",
			"Canvas_vtable[3] = (CPyVTableItem)Canvas_Colored_trait_vtable;",
			"if (CPyDef_Canvas_____mypyc_defaults_setup((PyObject *)self) != 1) {",
		)
	})

	t.Run("TraitItself", func(t *testing.T) {
		out, res, stats := generate(t, mod, "Sized")
		expectMissing(t, out, "Sized_vtable[]", "Sized_setup", "tp_new", "Py_TPFLAGS_HAVE_GC")
		expectContains(t, out, ".tp_basicsize = sizeof(PyObject),", "CPyDef_Sized_trait_vtable_setup(void)")
		if res.Constructor != "" || stats.TraitsEmitted != 1 {
			t.Errorf("traits have no constructor: %+v", res)
		}
	})
}

func TestGenerateOpenAttributes(t *testing.T) {
	mod := loadShapes(t)
	out, _, _ := generate(t, mod, "Circle")

	expectContains(t, out,
		"static PyMemberDef Circle_members[] = {",
		"{\"__dict__\", T_OBJECT_EX, sizeof(CircleObject), 0, NULL},",
		"{\"__weakref__\", T_OBJECT_EX, sizeof(CircleObject) + sizeof(PyObject *), 0, NULL},",
		".tp_members = Circle_members,",
		".tp_basicsize = sizeof(CircleObject) + 2*sizeof(PyObject *),",
		".tp_dictoffset = sizeof(CircleObject),",
		".tp_weaklistoffset = sizeof(CircleObject) + sizeof(PyObject *),",
		"Py_VISIT(*((PyObject **)((char *)self + sizeof(CircleObject))));",
		"Py_VISIT(*((PyObject **)((char *)self + sizeof(CircleObject) + sizeof(PyObject *))));",
		"Py_CLEAR(*((PyObject **)((char *)self + sizeof(CircleObject))));",
	)

	t.Run("TupleFields", func(t *testing.T) {
		expectContains(t, out,
			"self->_center = (tuple_T2FF) { CPY_FLOAT_ERROR, CPY_FLOAT_ERROR };",
			"if (self->_tag.f0 == NULL && self->_tag.f1 == CPY_LL_INT_ERROR) {",
			"Py_VISIT(self->_tag.f0);",
			"PyObject *retval = PyTuple_New(2);",
		)
		// the float pair owns nothing, so no composite check guards its getter
		expectMissing(t, out, "self->_center.f0 == CPY_FLOAT_ERROR &&", "Py_VISIT(self->_center")
	})
}

func TestGenerateProtocolSlots(t *testing.T) {
	mod := loadShapes(t)
	out, res, stats := generate(t, mod, "Vector")

	expectContains(t, out,
		".tp_init = Vector_init,",
		".tp_hash = CPyDunder___hash__Vector,",
		".tp_repr = CPyDef_Vector_____repr__,",
		".tp_iter = CPyDef_Vector_____iter__,",
		".tp_as_mapping = &Vector_as_mapping,",
		".tp_as_number = &Vector_as_number,",
		".tp_as_async = &Vector_as_async,",
		".tp_richcompare = CPyDunder___richcompare__Vector,",
	)
	expectMissing(t, out, ".tp_call", ".tp_str", ".tp_descr_get", ".am_aiter")

	t.Run("InitAdapter", func(t *testing.T) {
		expectContains(t, out, "PyObject *res = CPyPy_Vector_____init__(self, args, kwds);")
	})

	t.Run("HashAdapter", func(t *testing.T) {
		expectContains(t, out,
			"static Py_ssize_t\nCPyDunder___hash__Vector(PyObject *self)",
			"int64_t retval = CPyDef_Vector_____hash__(self);",
			"if (val == -1)\n        return -2;",
		)
	})

	t.Run("SideTables", func(t *testing.T) {
		expectContains(t, out,
			"static PyMappingMethods Vector_as_mapping = {\n    .mp_subscript = CPyDunder___getitem__Vector,\n};",
			"static PyNumberMethods Vector_as_number = {\n    .nb_bool = CPyDunder___bool__Vector,\n};",
			"static PyAsyncMethods Vector_as_async = {\n    .am_await = CPyDef_Vector_____await__,\n};",
			"CPyDunder___getitem__Vector(PyObject *self, PyObject *obj_index)",
			"int64_t arg_index = CPyLong_AsInt64(obj_index);",
			"double retval = CPyDef_Vector_____getitem__(self, arg_index);",
			"PyObject *retbox = PyFloat_FromDouble(retval);",
		)
	})

	t.Run("RichCompare", func(t *testing.T) {
		expectContains(t, out,
			"case Py_EQ: {",
			"PyObject *retval = CPyDef_Vector_____eq__(obj_lhs, arg_other);",
			"case Py_LT: {",
			"return Py_NotImplemented;",
		)
		expectMissing(t, out, "case Py_NE:")
	})

	t.Run("MethodsTable", func(t *testing.T) {
		expectContains(t, out,
			"{\"of\",\n     (PyCFunction)CPyPy_Vector___of,\n     METH_VARARGS | METH_KEYWORDS | METH_STATIC, NULL},",
			"{NULL}  /* Sentinel */",
		)
		expectMissing(t, out, "(PyCFunction)CPyPy_Vector___length", "(PyCFunction)CPyPy_Vector_____mypyc_setter__first")
	})

	t.Run("Properties", func(t *testing.T) {
		expectContains(t, out,
			"{\"length\",\n     (getter)Vector_getlength,\n     NULL, NULL, NULL},",
			"{\"first\",\n     (getter)Vector_getfirst,\n     (setter)Vector_setfirst,\n     NULL, NULL},",
			"int64_t retval = CPyDef_Vector___length((PyObject *) self);",
			"if (CPyDef_Vector_____mypyc_setter__first((PyObject *) self, tmp) == 2)",
		)
	})

	if len(res.Warnings) != 0 {
		t.Errorf("unexpected warnings %v", res.Warnings)
	}
	if stats.SideTables != 3 || stats.Adapters != 5 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestGenerateForeignBase(t *testing.T) {
	mod := loadShapes(t)
	out, res, _ := generate(t, mod, "Failure")

	expectContains(t, out,
		".tp_basicsize = sizeof(PyBaseExceptionObject),",
		".tp_str = CPyDef_Failure_____str__,",
		".tp_flags = Py_TPFLAGS_DEFAULT | Py_TPFLAGS_HEAPTYPE | Py_TPFLAGS_BASETYPE,",
	)
	expectMissing(t, out, "Failure_setup", "Failure_vtable[]", ".tp_new")
	if res.Constructor != "" {
		t.Errorf("foreign-base classes have no native constructor")
	}
}

func TestGenerateSynthesizedClass(t *testing.T) {
	mod := loadShapes(t)
	out, res, _ := generate(t, mod, "Env")

	expectMissing(t, out, "tp_getset", "(getter)Env_getvalue", "PyGetSetDef")
	expectContains(t, out, "PyObject *native_Env_getvalue(EnvObject *self)")
	if len(res.Warnings) != 1 {
		t.Errorf("expected one warning, got %v", res.Warnings)
	}
}

func TestGenerateClassErrors(t *testing.T) {
	base := ir.NewClassIR("Base", "m")
	base.Attributes.Put("a", ir.IntRType)
	derived := ir.NewClassIR("Derived", "m")
	derived.Base = base
	derived.MRO = []*ir.ClassIR{derived, base}
	derived.Attributes.Put("a", ir.StrRType)

	_, err := GenerateClass(derived, NewEmitter(NewNames("m")), nil)
	if !errors.Is(err, analysis.ErrDuplicateAttribute) {
		t.Fatalf("expected ErrDuplicateAttribute, got %v", err)
	}
}

func TestGenerateInstanceTypedAttributes(t *testing.T) {
	mod := loadShapes(t)
	holder := ir.NewClassIR("Holder", mod.Name)
	holder.Attributes.Put("shape", mod.Class("Shape").RType())
	holder.Attributes.Put("point", mod.Class("Point").RType())

	e := NewEmitter(NewNames(mod.Name))
	if _, err := GenerateClass(holder, e, NewStats()); err != nil {
		t.Fatal(err)
	}
	out := e.String()

	// Square and Circle instances must pass a Shape-typed setter
	expectContains(t, out,
		"if (PyObject_TypeCheck(value, CPyType_Shape))",
		"if (Py_TYPE(value) == CPyType_Point)",
	)
	expectMissing(t, out, "Py_TYPE(value) == CPyType_Shape")
}

package codegen

import (
	"fmt"

	"nativeclass/pkg/ir"
)

func undefinedMessage(attr, class string) string {
	return fmt.Sprintf("\"attribute '%s' of '%s' undefined\"", attr, class)
}

// declareNativeAccessors emits prototypes of the native getter/setter
// pair of every field so other classes in the unit can reach them
func (g *classGen) declareNativeAccessors(e *Emitter) {
	for _, f := range g.layout.Fields {
		e.Emit("%s%s(%s *self);", CTypeSpaced(f.Type), g.names.NativeGetterName(g.cl, f.Name), g.structName)
		e.Emit("bool %s(%s *self, %svalue);", g.names.NativeSetterName(g.cl, f.Name), g.structName, CTypeSpaced(f.Type))
	}
}

// generateNativeAccessors emits the native getter/setter pairs. The getter
// returns a new reference, or the sentinel with AttributeError set; the
// setter consumes the caller's reference.
func (g *classGen) generateNativeAccessors() {
	e := g.e
	for _, f := range g.layout.Fields {
		field := "self->" + Attr(f.Name)

		e.Emit("%s%s(%s *self)", CTypeSpaced(f.Type), g.names.NativeGetterName(g.cl, f.Name), g.structName)
		e.EmitLine("{")
		if f.Type.RefCounted {
			e.Emit("if (%s) {", UndefinedCheckCond(f.Type, field, "=="))
			e.Emit("PyErr_SetString(PyExc_AttributeError, %s);", undefinedMessage(f.Name, g.cl.Name))
			e.EmitLine("} else {")
			e.EmitIncRef(field, f.Type)
			e.EmitLine("}")
		}
		e.Emit("return %s;", field)
		e.EmitLine("}")
		e.Blank()

		e.Emit("bool %s(%s *self, %svalue)", g.names.NativeSetterName(g.cl, f.Name), g.structName, CTypeSpaced(f.Type))
		e.EmitLine("{")
		g.emitReleaseIfDefined(field, f.Type)
		e.Emit("%s = value;", field)
		e.EmitLines("return 1;", "}")
		e.Blank()
		g.stats.NativeAccessors += 2
	}
}

func (g *classGen) emitReleaseIfDefined(field string, t *ir.RType) {
	if !t.RefCounted {
		return
	}
	g.e.Emit("if (%s) {", UndefinedCheckCond(t, field, "!="))
	g.e.EmitDecRef(field, t)
	g.e.EmitLine("}")
}

func (g *classGen) hostGetterHeader(name string) string {
	return fmt.Sprintf("%s(%s *self, void *closure)", g.names.GetterName(g.cl, name), g.structName)
}

func (g *classGen) hostSetterHeader(name string) string {
	return fmt.Sprintf("%s(%s *self, PyObject *value, void *closure)", g.names.SetterName(g.cl, name), g.structName)
}

// generateGetsetDeclarations forward-declares the host accessors so the
// getset table can precede their bodies
func (g *classGen) generateGetsetDeclarations() {
	e := g.e
	for _, f := range g.layout.Fields {
		e.EmitLine("static PyObject *")
		e.Emit("%s;", g.hostGetterHeader(f.Name))
		e.EmitLine("static int")
		e.Emit("%s;", g.hostSetterHeader(f.Name))
	}
	g.cl.Properties.Each(func(name string, prop *ir.Property) {
		e.EmitLine("static PyObject *")
		e.Emit("%s;", g.hostGetterHeader(name))
		if prop.Setter != nil {
			e.EmitLine("static int")
			e.Emit("%s;", g.hostSetterHeader(name))
		}
	})
}

func (g *classGen) generateGetsetTable(name string) {
	e := g.e
	e.Emit("static PyGetSetDef %s[] = {", name)
	for _, f := range g.layout.Fields {
		e.Emit("{\"%s\",", f.Name)
		e.Emit(" (getter)%s, (setter)%s,", g.names.GetterName(g.cl, f.Name), g.names.SetterName(g.cl, f.Name))
		e.EmitLine(" NULL, NULL},")
	}
	g.cl.Properties.Each(func(pname string, prop *ir.Property) {
		e.Emit("{\"%s\",", pname)
		e.Emit(" (getter)%s,", g.names.GetterName(g.cl, pname))
		if prop.Setter != nil {
			e.Emit(" (setter)%s,", g.names.SetterName(g.cl, pname))
			e.EmitLine(" NULL, NULL},")
		} else {
			e.EmitLine(" NULL, NULL, NULL},")
		}
	})
	e.EmitLine("{NULL}  /* Sentinel */")
	e.EmitLine("};")
}

// generateGetsets emits the host accessor bodies for fields and properties
func (g *classGen) generateGetsets() {
	for _, f := range g.layout.Fields {
		g.generateGetter(f.Name, f.Type)
		g.e.Blank()
		g.generateSetter(f.Name, f.Type)
		g.e.Blank()
		g.stats.HostAccessors += 2
	}
	g.cl.Properties.Each(func(name string, prop *ir.Property) {
		g.generateReadonlyGetter(name, prop.Getter)
		g.e.Blank()
		g.stats.HostAccessors++
		if prop.Setter != nil {
			g.generatePropertySetter(name, prop.Setter)
			g.e.Blank()
			g.stats.HostAccessors++
		}
	})
}

func (g *classGen) generateGetter(attr string, t *ir.RType) {
	e := g.e
	field := "self->" + Attr(attr)
	e.EmitLine("static PyObject *")
	e.EmitLine(g.hostGetterHeader(attr))
	e.EmitLine("{")
	if t.RefCounted {
		e.Emit("if (%s) {", UndefinedCheckCond(t, field, "=="))
		e.EmitLine("PyErr_SetString(PyExc_AttributeError,")
		e.Emit("    %s);", undefinedMessage(attr, g.cl.Name))
		e.EmitLine("return NULL;")
		e.EmitLine("}")
	}
	e.EmitIncRef(field, t)
	e.EmitBox(field, "retval", t, true)
	e.EmitLine("return retval;")
	e.EmitLine("}")
}

// generateSetter converts the new value first so a failed conversion
// leaves the old one in place
func (g *classGen) generateSetter(attr string, t *ir.RType) {
	e := g.e
	field := "self->" + Attr(attr)
	e.EmitLine("static int")
	e.EmitLine(g.hostSetterHeader(attr))
	e.EmitLine("{")
	e.EmitLine("if (value != NULL) {")
	failure := []string{"return -1;"}
	switch {
	case t.Unboxed:
		e.EmitUnbox("value", "tmp", t, failure, true)
	case t.IsObject():
		e.EmitLine("PyObject *tmp = value;")
	default:
		e.EmitCast("value", "tmp", t, true)
		e.EmitLines("if (!tmp)", "    return -1;")
	}
	e.EmitIncRef("tmp", t)
	g.emitReleaseIfDefined(field, t)
	e.Emit("%s = tmp;", field)
	e.EmitLine("} else {")
	g.emitReleaseIfDefined(field, t)
	e.Emit("%s = %s;", field, CUndefinedValue(t))
	e.EmitLine("}")
	e.EmitLine("return 0;")
	e.EmitLine("}")
}

func (g *classGen) generateReadonlyGetter(name string, fn *ir.FuncIR) {
	e := g.e
	e.EmitLine("static PyObject *")
	e.EmitLine(g.hostGetterHeader(name))
	e.EmitLine("{")
	ret := fn.Sig.Ret
	if ret.Unboxed {
		e.Emit("%sretval = %s((PyObject *) self);", CTypeSpaced(ret), g.names.NativeName(fn))
		e.EmitErrorCheck("retval", ret, []string{"return NULL;"})
		e.EmitBox("retval", "retbox", ret, true)
		e.EmitLine("return retbox;")
	} else {
		e.Emit("return %s((PyObject *) self);", g.names.NativeName(fn))
	}
	e.EmitLine("}")
}

func (g *classGen) generatePropertySetter(name string, fn *ir.FuncIR) {
	e := g.e
	argType := fn.Sig.Args[1].Type
	e.EmitLine("static int")
	e.EmitLine(g.hostSetterHeader(name))
	e.EmitLine("{")
	e.EmitLine("if (value == NULL) {")
	e.Emit("PyErr_SetString(PyExc_AttributeError, \"can't delete property '%s'\");", name)
	e.EmitLine("return -1;")
	e.EmitLine("}")
	arg := "value"
	switch {
	case argType.Unboxed:
		e.EmitUnbox("value", "tmp", argType, []string{"return -1;"}, true)
		arg = "tmp"
	case !argType.IsObject():
		e.EmitCast("value", "tmp", argType, true)
		e.EmitLines("if (!tmp)", "    return -1;")
		arg = "tmp"
	}
	e.Emit("if (%s((PyObject *) self, %s) == 2)", g.names.NativeName(fn), arg)
	e.EmitLine("    return -1;")
	e.EmitLine("return 0;")
	e.EmitLine("}")
}

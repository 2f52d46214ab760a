package codegen

import (
	"fmt"
	"strings"

	"nativeclass/pkg/ir"
)

// Status codes returned by native initializers
const (
	InitFailure     = 0
	InitSuccess     = 1
	InitHardFailure = 2
)

func (g *classGen) setupName() string    { return g.prefix + "_setup" }
func (g *classGen) newName() string      { return g.prefix + "_new" }
func (g *classGen) traverseName() string { return g.prefix + "_traverse" }
func (g *classGen) clearName() string    { return g.prefix + "_clear" }
func (g *classGen) deallocName() string  { return g.prefix + "_dealloc" }

// extensionSlots returns the dict and weak-reference slot expressions, or
// nil when the class has no open attribute set
func (g *classGen) extensionSlots() []string {
	if !g.layout.HasDict {
		return nil
	}
	return []string{
		selfOffsetExpr(g.layout.DictOffsetExpr(g.structName)),
		selfOffsetExpr(g.layout.WeakrefOffsetExpr(g.structName)),
	}
}

// generateSetup emits the allocator: a zeroed instance with its dispatch
// table attached and every field at its sentinel, then the defaults
// initializer if any class in the chain defines one
func (g *classGen) generateSetup() {
	e := g.e
	e.EmitLine("static PyObject *")
	e.Emit("%s(void)", g.setupName())
	e.EmitLine("{")
	e.Emit("%s *self;", g.structName)
	e.Emit("self = (%s *)%s->tp_alloc(%s, 0);", g.structName, g.typeStruct, g.typeStruct)
	e.EmitLine("if (self == NULL)")
	e.EmitLine("    return NULL;")
	e.Emit("self->vtable = %s;", g.vtableExpr())
	for _, f := range g.layout.Fields {
		e.Emit("self->%s = %s;", Attr(f.Name), CUndefinedValue(f.Type))
	}
	if defaults, _ := g.cl.GetMethod(ir.DefaultsMethod); defaults != nil {
		// a false result and the bool error value both fail setup
		e.Emit("if (%s((PyObject *)self) != %d) {", g.names.NativeName(defaults), InitSuccess)
		e.EmitLine("Py_DECREF(self);")
		e.EmitLine("return NULL;")
		e.EmitLine("}")
	}
	e.EmitLine("return (PyObject *)self;")
	e.EmitLine("}")
	g.stats.LifecycleRoutines++
}

// generateNew emits tp_new. Only the class itself may be instantiated
// through it; host-side subclasses would not get a native layout.
func (g *classGen) generateNew() {
	e := g.e
	e.EmitLine("static PyObject *")
	e.Emit("%s(PyTypeObject *type, PyObject *args, PyObject *kwds)", g.newName())
	e.EmitLine("{")
	e.Emit("if (type != %s) {", g.typeStruct)
	e.EmitLine("PyErr_SetString(PyExc_TypeError, \"interpreted classes cannot inherit from compiled\");")
	e.EmitLine("return NULL;")
	e.EmitLine("}")
	e.Emit("return %s();", g.setupName())
	e.EmitLine("}")
	g.stats.LifecycleRoutines++
}

// generateConstructor emits the combined constructor used by native call
// sites. A hard initializer failure releases the instance; an ordinary
// failure has already been reported and the instance is returned as is.
func (g *classGen) generateConstructor() {
	e := g.e
	ctor := g.ctor
	e.EmitLine(e.NativeFunctionHeader(ctor))
	e.EmitLine("{")
	e.Emit("PyObject *self = %s();", g.setupName())
	e.EmitLine("if (self == NULL)")
	e.EmitLine("    return NULL;")
	if init, _ := g.cl.GetMethod(ir.InitMethod); init != nil {
		args := []string{"self"}
		for _, arg := range ctor.Sig.Args {
			args = append(args, RegPrefix+sanitizeIdent(arg.Name))
		}
		e.Emit("char res = %s(%s);", g.names.NativeName(init), strings.Join(args, ", "))
		e.Emit("if (res == %d) {", InitHardFailure)
		e.EmitLine("Py_DECREF(self);")
		e.EmitLine("return NULL;")
		e.EmitLine("}")
	}
	e.EmitLine("return self;")
	e.EmitLine("}")
	g.stats.LifecycleRoutines++
}

// generateTraverse emits the collector's mark callback
func (g *classGen) generateTraverse() {
	e := g.e
	e.EmitLine("static int")
	e.Emit("%s(%s *self, visitproc visit, void *arg)", g.traverseName(), g.structName)
	e.EmitLine("{")
	for _, f := range g.layout.Fields {
		e.EmitGCVisit("self->"+Attr(f.Name), f.Type)
	}
	for _, slot := range g.extensionSlots() {
		e.EmitGCVisit(slot, ir.ObjectRType)
	}
	e.EmitLine("return 0;")
	e.EmitLine("}")
	g.stats.LifecycleRoutines++
}

// generateClear emits the collector's cycle-breaking callback
func (g *classGen) generateClear() {
	e := g.e
	e.EmitLine("static int")
	e.Emit("%s(%s *self)", g.clearName(), g.structName)
	e.EmitLine("{")
	for _, f := range g.layout.Fields {
		e.EmitGCClear("self->"+Attr(f.Name), f.Type)
	}
	for _, slot := range g.extensionSlots() {
		e.EmitGCClear(slot, ir.ObjectRType)
	}
	e.EmitLine("return 0;")
	e.EmitLine("}")
	g.stats.LifecycleRoutines++
}

func (g *classGen) generateDealloc() {
	e := g.e
	e.EmitLine("static void")
	e.Emit("%s(%s *self)", g.deallocName(), g.structName)
	e.EmitLine("{")
	e.EmitLine("PyObject_GC_UnTrack(self);")
	e.Emit("%s(self);", g.clearName())
	e.EmitLine("Py_TYPE(self)->tp_free((PyObject *)self);")
	e.EmitLine("}")
	g.stats.LifecycleRoutines++
}

// declareForward forward-declares the fixup and lifecycle routines so
// slot fields and the unit's fixup entry point can refer to them
func (g *classGen) declareForward() {
	e := g.e
	e.Emit("static bool %s(void);", g.fixupName())
	if !g.full {
		return
	}
	e.Emit("static PyObject *%s(void);", g.setupName())
	e.Emit("static PyObject *%s(PyTypeObject *type, PyObject *args, PyObject *kwds);", g.newName())
	e.Emit("static int %s(%s *self, visitproc visit, void *arg);", g.traverseName(), g.structName)
	e.Emit("static int %s(%s *self);", g.clearName(), g.structName)
	e.Emit("static void %s(%s *self);", g.deallocName(), g.structName)
	e.Emit("%s;", e.NativeFunctionHeader(g.ctor))
}

func castSlot(kind, name string) string {
	return fmt.Sprintf("(%s)%s", kind, name)
}

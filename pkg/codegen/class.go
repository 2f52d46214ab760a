package codegen

import (
	"fmt"
	"strings"

	"nativeclass/pkg/analysis"
	"nativeclass/pkg/ir"
)

// ClassOutput names the entry points generated for one class that the
// rest of the compilation unit must wire up
type ClassOutput struct {
	Class      *ir.ClassIR
	TypeStruct string

	// Fixup must be called once at module load, after every type object
	// of the unit exists and before the first instance is built
	Fixup string

	// Constructor is the combined native constructor; empty for traits
	// and classes with a foreign base
	Constructor string

	Warnings []string
}

type classGen struct {
	cl     *ir.ClassIR
	e      *Emitter
	names  *Names
	stats  *Stats
	layout *analysis.Layout
	vtable *analysis.VTablePlan
	slots  *analysis.SlotPlan
	desc   *TypeDescriptor
	ctor   *ir.FuncIR

	prefix     string
	structName string
	typeStruct string

	full         bool // own struct, lifecycle routines and dispatch table
	needsGetsets bool
}

func newClassGen(cl *ir.ClassIR, names *Names, stats *Stats) (*classGen, error) {
	if stats == nil {
		stats = NewStats()
	}
	layout, err := analysis.PlanLayout(cl)
	if err != nil {
		return nil, err
	}
	vtable, err := analysis.PlanVTable(cl, layout)
	if err != nil {
		return nil, err
	}
	ctor := cl.Ctor
	if ctor == nil && !cl.IsTrait {
		ctor = defaultCtor(cl)
	}
	g := &classGen{
		cl:           cl,
		names:        names,
		stats:        stats,
		layout:       layout,
		vtable:       vtable,
		slots:        analysis.BindSlots(cl),
		ctor:         ctor,
		prefix:       names.NamePrefix(cl),
		structName:   names.StructName(cl),
		typeStruct:   names.TypeStructName(cl),
		full:         cl.IsFull(),
		needsGetsets: !cl.IsGenerated,
	}
	g.desc = NewTypeDescriptor(g.typeStruct)
	return g, nil
}

// defaultCtor mirrors the resolved initializer's parameters without self
func defaultCtor(cl *ir.ClassIR) *ir.FuncIR {
	ctor := &ir.FuncIR{Name: cl.Name, Module: cl.Module, Sig: ir.FuncSignature{Ret: cl.RType()}}
	if init, _ := cl.GetMethod(ir.InitMethod); init != nil && len(init.Sig.Args) > 0 {
		ctor.Sig.Args = append(ctor.Sig.Args, init.Sig.Args[1:]...)
	}
	return ctor
}

// GenerateClassTypeDecl emits the declarations other translation units
// and classes need: the type object pointer definition into c, and its
// extern declaration, instance struct and native accessor and
// constructor prototypes into h
func GenerateClassTypeDecl(cl *ir.ClassIR, c, h *Emitter) error {
	g, err := newClassGen(cl, h.Names(), nil)
	if err != nil {
		return err
	}
	c.Emit("PyTypeObject *%s;", g.typeStruct)
	h.Emit("extern PyTypeObject *%s;", g.typeStruct)
	h.Blank()
	GenerateObjectStruct(h, g.layout)
	h.Blank()
	if g.full {
		g.declareNativeAccessors(h)
		h.Emit("%s;", h.NativeFunctionHeader(g.ctor))
	}
	return nil
}

// GenerateClass emits everything a class needs at runtime into e: slot
// adapters and side tables, lifecycle routines, dispatch tables,
// accessors, the methods and getset tables, the type descriptor record and
// the vtable fixup routine.
func GenerateClass(cl *ir.ClassIR, e *Emitter, stats *Stats) (*ClassOutput, error) {
	g, err := newClassGen(cl, e.Names(), stats)
	if err != nil {
		return nil, err
	}
	g.e = e
	return g.generate()
}

func (g *classGen) generate() (*ClassOutput, error) {
	e := g.e
	out := &ClassOutput{Class: g.cl, TypeStruct: g.typeStruct, Fixup: g.fixupName()}
	out.Warnings = append(out.Warnings, g.slots.Warnings...)

	getsetsName := g.prefix + "_getseters"
	methodsName := g.prefix + "_methods"
	membersName := g.prefix + "_members"

	var err error
	set := func(field, value string) {
		if err == nil {
			err = g.desc.Set(field, value)
		}
	}

	set("tp_name", fmt.Sprintf("\"%s\"", g.cl.Name))
	if g.full {
		set("tp_new", g.newName())
		set("tp_dealloc", castSlot("destructor", g.deallocName()))
		set("tp_traverse", castSlot("traverseproc", g.traverseName()))
		set("tp_clear", castSlot("inquiry", g.clearName()))
	}
	if g.needsGetsets {
		set("tp_getset", getsetsName)
	} else {
		out.Warnings = append(out.Warnings, fmt.Sprintf("%s is compiler-generated; host attribute access omitted", g.cl.Name))
	}
	set("tp_methods", methodsName)
	if err != nil {
		return nil, err
	}

	e.Blank()
	g.declareForward()
	e.Blank()
	if err := g.bindSlots(); err != nil {
		return nil, err
	}

	if g.layout.HasDict {
		dictOffset := g.layout.DictOffsetExpr(g.structName)
		weakOffset := g.layout.WeakrefOffsetExpr(g.structName)
		e.Emit("static PyMemberDef %s[] = {", membersName)
		e.Emit("{\"__dict__\", T_OBJECT_EX, %s, 0, NULL},", dictOffset)
		e.Emit("{\"__weakref__\", T_OBJECT_EX, %s, 0, NULL},", weakOffset)
		e.EmitLine("{0}")
		e.EmitLine("};")
		e.Blank()
		set("tp_members", membersName)
		set("tp_basicsize", g.layout.BasicSizeExpr(g.structName))
		set("tp_dictoffset", dictOffset)
		set("tp_weaklistoffset", weakOffset)
	} else {
		set("tp_basicsize", g.layout.BasicSizeExpr(g.structName))
	}
	if err != nil {
		return nil, err
	}

	if g.full {
		g.generateNew()
		e.Blank()
		g.generateTraverse()
		e.Blank()
		g.generateClear()
		e.Blank()
		g.generateDealloc()
		e.Blank()
		g.generateNativeAccessors()
		g.generateVTables()
		e.Blank()
	}
	if g.needsGetsets {
		g.generateGetsetDeclarations()
		e.Blank()
		g.generateGetsetTable(getsetsName)
		e.Blank()
	}
	g.generateMethodsTable(methodsName)
	e.Blank()

	flags := []string{"Py_TPFLAGS_DEFAULT", "Py_TPFLAGS_HEAPTYPE", "Py_TPFLAGS_BASETYPE"}
	if g.full {
		flags = append(flags, "Py_TPFLAGS_HAVE_GC")
	}
	if err := g.desc.Set("tp_flags", strings.Join(flags, " | ")); err != nil {
		return nil, err
	}
	g.desc.Emit(e)
	e.Blank()

	g.generateTraitVTableSetup()
	e.Blank()
	if g.full {
		g.generateSetup()
		e.Blank()
		g.generateConstructor()
		e.Blank()
		out.Constructor = g.names.NativeName(g.ctor)
	}
	if g.needsGetsets {
		g.generateGetsets()
	}

	if g.cl.IsTrait {
		g.stats.TraitsEmitted++
	} else {
		g.stats.ClassesEmitted++
	}
	return out, nil
}

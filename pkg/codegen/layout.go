package codegen

import (
	"fmt"

	"nativeclass/pkg/analysis"
	"nativeclass/pkg/ir"
)

// GenerateObjectStruct emits the instance struct of a class: the object
// header, the dispatch table pointer and one member per planned field
func GenerateObjectStruct(e *Emitter, layout *analysis.Layout) {
	e.EmitLines(
		"typedef struct {",
		"PyObject_HEAD",
		"CPyVTableItem *vtable;",
	)
	for _, f := range layout.Fields {
		e.Emit("%s%s;", CTypeSpaced(f.Type), Attr(f.Name))
	}
	e.Emit("} %s;", e.Names().StructName(layout.Class))
}

// GenerateTupleStruct emits the by-value struct of a tuple type, members
// named f0, f1, ...
func GenerateTupleStruct(e *Emitter, t *ir.RType) {
	e.Emit("#ifndef MYPYC_DECLARED_%s", t.CType)
	e.Emit("#define MYPYC_DECLARED_%s", t.CType)
	e.Emit("typedef struct %s {", t.CType)
	for i, item := range t.Items {
		e.Emit("%sf%d;", CTypeSpaced(item), i)
	}
	e.Emit("} %s;", t.CType)
	e.EmitLine("#endif")
}

// CollectTupleTypes returns every tuple type reachable from the fields of
// the given classes, components before the tuples containing them
func CollectTupleTypes(classes []*ir.ClassIR) []*ir.RType {
	var out []*ir.RType
	seen := make(map[string]bool)
	var visit func(t *ir.RType)
	visit = func(t *ir.RType) {
		if !t.IsTuple() || seen[t.CType] {
			return
		}
		for _, item := range t.Items {
			visit(item)
		}
		seen[t.CType] = true
		out = append(out, t)
	}
	for _, cl := range classes {
		cl.Attributes.Each(func(_ string, t *ir.RType) { visit(t) })
		cl.Methods.Each(func(_ string, fn *ir.FuncIR) {
			for _, arg := range fn.Sig.Args {
				visit(arg.Type)
			}
			if fn.Sig.Ret != nil {
				visit(fn.Sig.Ret)
			}
		})
	}
	return out
}

// selfOffsetExpr addresses the pointer-sized slot at offset from self
func selfOffsetExpr(offset string) string {
	return fmt.Sprintf("*((PyObject **)((char *)self + %s))", offset)
}

package codegen

import (
	"strings"

	"nativeclass/pkg/ir"
)

// generateMethodsTable emits the PyMethodDef table of the methods the
// class defines. Property accessors are reached through the getset table
// instead.
func (g *classGen) generateMethodsTable(name string) {
	e := g.e
	e.Emit("static PyMethodDef %s[] = {", name)
	g.cl.Methods.Each(func(_ string, fn *ir.FuncIR) {
		if fn.IsPropGetter || fn.IsPropSetter {
			return
		}
		flags := []string{"METH_VARARGS", "METH_KEYWORDS"}
		switch fn.Kind {
		case ir.FuncStatic:
			flags = append(flags, "METH_STATIC")
		case ir.FuncClass:
			flags = append(flags, "METH_CLASS")
		}
		e.Emit("{\"%s\",", fn.Name)
		e.Emit(" (PyCFunction)%s,", g.names.WrapperName(fn))
		e.Emit(" %s, NULL},", strings.Join(flags, " | "))
		g.stats.MethodDefs++
	})
	e.EmitLine("{NULL}  /* Sentinel */")
	e.EmitLine("};")
}

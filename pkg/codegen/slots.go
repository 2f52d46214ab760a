package codegen

import (
	"fmt"
	"strings"

	"nativeclass/pkg/analysis"
	"nativeclass/pkg/ir"
)

func (g *classGen) dunderName(method string) string {
	return DunderPrefix + method + g.prefix
}

// slotValue returns the expression to install for a bound slot, emitting
// an adapter first when the slot's convention differs from the method's
func (g *classGen) slotValue(b analysis.SlotBinding) string {
	switch b.Strategy {
	case analysis.StrategyNative:
		return g.names.NativeName(b.Method)
	case analysis.StrategyWrapper:
		return g.names.WrapperName(b.Method)
	case analysis.StrategyInit:
		return g.generateInitAdapter(b.Method)
	case analysis.StrategyHash:
		return g.generateHashAdapter(b.Method)
	case analysis.StrategyDunder:
		return g.generateDunderAdapter(b.Method)
	case analysis.StrategyBool:
		return g.generateBoolAdapter(b.Method)
	case analysis.StrategyDescrGet:
		return g.generateDescrGetAdapter(b.Method)
	default:
		panic(fmt.Sprintf("codegen: unhandled slot strategy %s", b.Strategy))
	}
}

// bindSlots installs every bound slot into the type descriptor, emitting
// side tables and adapters on the way
func (g *classGen) bindSlots() error {
	for _, b := range g.slots.Slots {
		if err := g.desc.Set(b.Slot, g.slotValue(b)); err != nil {
			return err
		}
		g.stats.SlotsBound++
	}
	for _, st := range g.slots.SideTables {
		fields := make([][2]string, 0, len(st.Slots))
		for _, b := range st.Slots {
			fields = append(fields, [2]string{b.Slot, g.slotValue(b)})
			g.stats.SlotsBound++
		}
		name := fmt.Sprintf("%s_%s", g.prefix, st.Name)
		g.e.Emit("static %s %s = {", st.CType, name)
		for _, f := range fields {
			g.e.Emit(".%s = %s,", f[0], f[1])
		}
		g.e.EmitLine("};")
		g.stats.SideTables++
		if err := g.desc.Set(st.Field(), "&"+name); err != nil {
			return err
		}
	}
	if len(g.slots.RichCompare) > 0 {
		if err := g.desc.Set("tp_richcompare", g.generateRichCompareAdapter()); err != nil {
			return err
		}
		g.stats.SlotsBound++
	}
	return nil
}

// generateInitAdapter turns the object-returning wrapper of __init__ into
// tp_init's status code: NULL becomes -1, anything else 0
func (g *classGen) generateInitAdapter(fn *ir.FuncIR) string {
	name := g.prefix + "_init"
	e := g.e
	e.EmitLine("static int")
	e.Emit("%s(PyObject *self, PyObject *args, PyObject *kwds)", name)
	e.EmitLine("{")
	e.Emit("PyObject *res = %s(self, args, kwds);", g.names.WrapperName(fn))
	e.EmitLine("if (res == NULL)")
	e.EmitLine("    return -1;")
	e.EmitLine("Py_DECREF(res);")
	e.EmitLine("return 0;")
	e.EmitLine("}")
	e.Blank()
	g.stats.Adapters++
	return name
}

// generateHashAdapter narrows the result to Py_ssize_t. -1 is reserved by
// the host for errors, so a hash of -1 becomes -2.
func (g *classGen) generateHashAdapter(fn *ir.FuncIR) string {
	name := g.dunderName(fn.Name)
	e := g.e
	ret := fn.Sig.Ret
	e.EmitLine("static Py_ssize_t")
	e.Emit("%s(PyObject *self)", name)
	e.EmitLine("{")
	e.Emit("%sretval = %s(self);", CTypeSpaced(ret), g.names.NativeName(fn))
	e.EmitErrorCheck("retval", ret, []string{"return -1;"})
	if ret == ir.IntRType {
		e.EmitLine("Py_ssize_t val = (Py_ssize_t)retval;")
	} else {
		e.EmitBox("retval", "retbox", ret, true)
		e.EmitLine("Py_ssize_t val = PyLong_AsSsize_t(retbox);")
		e.EmitLine("Py_DECREF(retbox);")
		e.EmitLine("if (val == -1 && PyErr_Occurred())")
		e.EmitLine("    return -1;")
	}
	e.EmitLine("if (val == -1)")
	e.EmitLine("    return -2;")
	e.EmitLine("return val;")
	e.EmitLine("}")
	e.Blank()
	g.stats.Adapters++
	return name
}

// emitAdaptedCall converts borrowed object arguments to the method's
// native parameter types, calls it and leaves a new object reference in
// retbox. argFailure runs on a conversion error, callFailure when the
// call itself fails.
func (g *classGen) emitAdaptedCall(fn *ir.FuncIR, self string, args []string, argFailure, callFailure []string) {
	e := g.e
	callArgs := []string{self}
	for i, arg := range fn.Sig.Args[1:] {
		src := args[i]
		dest := "arg_" + sanitizeIdent(arg.Name)
		switch {
		case arg.Type.IsObject():
			e.Emit("PyObject *%s = %s;", dest, src)
		case arg.Type.Unboxed:
			e.EmitUnbox(src, dest, arg.Type, argFailure, true)
		default:
			e.EmitCast(src, dest, arg.Type, true)
			e.Emit("if (%s == NULL) {", dest)
			e.EmitLines(argFailure...)
			e.EmitLine("}")
		}
		callArgs = append(callArgs, dest)
	}
	ret := fn.Sig.Ret
	e.Emit("%sretval = %s(%s);", CTypeSpaced(ret), g.names.NativeName(fn), strings.Join(callArgs, ", "))
	e.EmitErrorCheck("retval", ret, callFailure)
	e.EmitBox("retval", "retbox", ret, true)
}

// generateDunderAdapter adapts a one-argument method returning any native
// type to a binary PyObject slot such as mp_subscript
func (g *classGen) generateDunderAdapter(fn *ir.FuncIR) string {
	name := g.dunderName(fn.Name)
	e := g.e
	params := []string{"PyObject *self"}
	var srcs []string
	for _, arg := range fn.Sig.Args[1:] {
		src := "obj_" + sanitizeIdent(arg.Name)
		params = append(params, "PyObject *"+src)
		srcs = append(srcs, src)
	}
	e.EmitLine("static PyObject *")
	e.Emit("%s(%s)", name, strings.Join(params, ", "))
	e.EmitLine("{")
	fail := []string{"return NULL;"}
	g.emitAdaptedCall(fn, "self", srcs, fail, fail)
	e.EmitLine("return retbox;")
	e.EmitLine("}")
	e.Blank()
	g.stats.Adapters++
	return name
}

// generateBoolAdapter maps the native truth value onto nb_bool's 1/0/-1
func (g *classGen) generateBoolAdapter(fn *ir.FuncIR) string {
	name := g.dunderName(fn.Name)
	e := g.e
	ret := fn.Sig.Ret
	e.EmitLine("static int")
	e.Emit("%s(PyObject *self)", name)
	e.EmitLine("{")
	e.Emit("%sval = %s(self);", CTypeSpaced(ret), g.names.NativeName(fn))
	e.EmitErrorCheck("val", ret, []string{"return -1;"})
	switch {
	case ret == ir.BoolRType:
		e.EmitLine("return val;")
	case ret == ir.IntRType || ret == ir.FloatRType:
		e.EmitLine("return val != 0;")
	default:
		e.EmitBox("val", "valbox", ret, true)
		e.EmitLine("int truth = PyObject_IsTrue(valbox);")
		e.EmitLine("Py_DECREF(valbox);")
		e.EmitLine("return truth;")
	}
	e.EmitLine("}")
	e.Blank()
	g.stats.Adapters++
	return name
}

// generateDescrGetAdapter passes None for a missing instance, which the
// host signals with NULL when the descriptor is read from the class
func (g *classGen) generateDescrGetAdapter(fn *ir.FuncIR) string {
	name := g.dunderName(fn.Name)
	e := g.e
	e.EmitLine("static PyObject *")
	e.Emit("%s(PyObject *self, PyObject *instance, PyObject *owner)", name)
	e.EmitLine("{")
	e.EmitLine("instance = instance ? instance : Py_None;")
	e.EmitLine("owner = owner ? owner : Py_None;")
	fail := []string{"return NULL;"}
	g.emitAdaptedCall(fn, "self", []string{"instance", "owner"}, fail, fail)
	e.EmitLine("return retbox;")
	e.EmitLine("}")
	e.Blank()
	g.stats.Adapters++
	return name
}

// generateRichCompareAdapter folds every comparison method into the one
// tp_richcompare slot. Unsupported operators and operands of the wrong
// type yield NotImplemented so the host can try the reflected operation.
func (g *classGen) generateRichCompareAdapter() string {
	name := g.dunderName("__richcompare__")
	e := g.e
	e.EmitLine("static PyObject *")
	e.Emit("%s(PyObject *obj_lhs, PyObject *obj_rhs, int op)", name)
	e.EmitLine("{")
	e.EmitLine("switch (op) {")
	notImplemented := []string{"PyErr_Clear();", "Py_INCREF(Py_NotImplemented);", "return Py_NotImplemented;"}
	for _, cmp := range g.slots.RichCompare {
		e.Emit("case %s: {", cmp.Op)
		g.emitAdaptedCall(cmp.Method, "obj_lhs", []string{"obj_rhs"}, notImplemented, []string{"return NULL;"})
		e.EmitLine("return retbox;")
		e.EmitLine("}")
	}
	e.EmitLine("}")
	e.EmitLine("Py_INCREF(Py_NotImplemented);")
	e.EmitLine("return Py_NotImplemented;")
	e.EmitLine("}")
	e.Blank()
	g.stats.Adapters++
	return name
}

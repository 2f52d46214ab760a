package codegen

import (
	"fmt"
	"strings"

	"nativeclass/pkg/ir"
)

const indentWidth = 4

// Emitter is a line sink that tracks brace nesting. A line ending in '{'
// opens a level and a line starting with '}' closes one.
type Emitter struct {
	names  *Names
	lines  []string
	indent int
}

// NewEmitter creates an emitter that resolves symbols through names
func NewEmitter(names *Names) *Emitter {
	if names == nil {
		names = NewNames()
	}
	return &Emitter{names: names}
}

// Names returns the name generator shared with the rest of the unit
func (e *Emitter) Names() *Names {
	return e.names
}

// EmitLine appends one line at the current indentation
func (e *Emitter) EmitLine(line string) {
	if strings.HasPrefix(line, "}") && e.indent > 0 {
		e.indent--
	}
	if line == "" {
		e.lines = append(e.lines, "")
	} else {
		e.lines = append(e.lines, strings.Repeat(" ", e.indent*indentWidth)+line)
	}
	if strings.HasSuffix(line, "{") {
		e.indent++
	}
}

// EmitLines appends several lines
func (e *Emitter) EmitLines(lines ...string) {
	for _, l := range lines {
		e.EmitLine(l)
	}
}

// Emit formats and appends one line
func (e *Emitter) Emit(format string, args ...interface{}) {
	e.EmitLine(fmt.Sprintf(format, args...))
}

// EmitRaw appends preformatted text verbatim, bypassing indentation
func (e *Emitter) EmitRaw(text string) {
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return
	}
	e.lines = append(e.lines, strings.Split(text, "\n")...)
}

// Blank appends an empty line
func (e *Emitter) Blank() {
	e.EmitLine("")
}

// Lines returns the emitted lines without trailing newlines
func (e *Emitter) Lines() []string {
	return e.lines
}

// String joins the emitted lines
func (e *Emitter) String() string {
	if len(e.lines) == 0 {
		return ""
	}
	return strings.Join(e.lines, "\n") + "\n"
}

// CTypeSpaced returns the C type ready to be followed by an identifier
func CTypeSpaced(t *ir.RType) string {
	if strings.HasSuffix(t.CType, "*") {
		return t.CType
	}
	return t.CType + " "
}

// CUndefinedValue is the sentinel expression of a type. Tuples get a
// compound literal of their component sentinels.
func CUndefinedValue(t *ir.RType) string {
	if !t.IsTuple() {
		return t.Undefined
	}
	return fmt.Sprintf("(%s) %s", t.CType, tupleInitializer(t))
}

func tupleInitializer(t *ir.RType) string {
	parts := make([]string, len(t.Items))
	for i, item := range t.Items {
		if item.IsTuple() {
			parts[i] = tupleInitializer(item)
		} else {
			parts[i] = item.Undefined
		}
	}
	return "{ " + strings.Join(parts, ", ") + " }"
}

// TupleUndefinedCheckCond builds the composite sentinel test of a tuple
// value. With "==" every component must hold its sentinel; with "!=" any
// component differing is enough.
func TupleUndefinedCheckCond(t *ir.RType, expr, compare string) string {
	join := " && "
	if compare == "!=" {
		join = " || "
	}
	conds := make([]string, len(t.Items))
	for i, item := range t.Items {
		field := fmt.Sprintf("%s.f%d", expr, i)
		if item.IsTuple() {
			conds[i] = "(" + TupleUndefinedCheckCond(item, field, compare) + ")"
		} else {
			conds[i] = fmt.Sprintf("%s %s %s", field, compare, item.Undefined)
		}
	}
	return strings.Join(conds, join)
}

// UndefinedCheckCond compares expr against the sentinel of t
func UndefinedCheckCond(t *ir.RType, expr, compare string) string {
	if t.IsTuple() {
		return TupleUndefinedCheckCond(t, expr, compare)
	}
	return fmt.Sprintf("%s %s %s", expr, compare, t.Undefined)
}

// refLeaves lists the reference-counted scalar parts of a value
func refLeaves(t *ir.RType, expr string) []string {
	if !t.RefCounted {
		return nil
	}
	if !t.IsTuple() {
		return []string{expr}
	}
	var out []string
	for i, item := range t.Items {
		out = append(out, refLeaves(item, fmt.Sprintf("%s.f%d", expr, i))...)
	}
	return out
}

// EmitIncRef takes a new reference to every owned part of dest
func (e *Emitter) EmitIncRef(dest string, t *ir.RType) {
	for _, leaf := range refLeaves(t, dest) {
		e.Emit("Py_INCREF(%s);", leaf)
	}
}

// EmitDecRef releases every owned part of dest
func (e *Emitter) EmitDecRef(dest string, t *ir.RType) {
	leaves := refLeaves(t, dest)
	for _, leaf := range leaves {
		if t.IsTuple() {
			e.Emit("Py_XDECREF(%s);", leaf)
		} else {
			e.Emit("Py_DECREF(%s);", leaf)
		}
	}
}

// EmitGCVisit reports every owned reference of target to the collector
func (e *Emitter) EmitGCVisit(target string, t *ir.RType) {
	for _, leaf := range refLeaves(t, target) {
		e.Emit("Py_VISIT(%s);", leaf)
	}
}

// EmitGCClear drops every owned reference of target and leaves it holding
// its sentinel
func (e *Emitter) EmitGCClear(target string, t *ir.RType) {
	if !t.RefCounted {
		return
	}
	if !t.IsTuple() {
		e.Emit("Py_CLEAR(%s);", target)
		return
	}
	e.EmitLine("{")
	e.Emit("%stmp = %s;", CTypeSpaced(t), target)
	e.Emit("%s = %s;", target, CUndefinedValue(t))
	for _, leaf := range refLeaves(t, "tmp") {
		e.Emit("Py_XDECREF(%s);", leaf)
	}
	e.EmitLine("}")
}

func declare(declareDest bool, t *ir.RType, dest string) string {
	if declareDest {
		return CTypeSpaced(t) + dest
	}
	return dest
}

// EmitBox converts an unboxed value to a new object reference. Boxed
// values are passed through; their reference is transferred.
func (e *Emitter) EmitBox(src, dest string, t *ir.RType, declareDest bool) {
	lhs := dest
	if declareDest {
		lhs = "PyObject *" + dest
	}
	switch {
	case t.IsTuple():
		e.Emit("%s = PyTuple_New(%d);", lhs, len(t.Items))
		e.Emit("if (%s == NULL)", dest)
		e.EmitLine("    CPyError_OutOfMemory();")
		for i, item := range t.Items {
			tmp := fmt.Sprintf("%s_f%d", dest, i)
			e.EmitBox(fmt.Sprintf("%s.f%d", src, i), tmp, item, true)
			e.Emit("PyTuple_SET_ITEM(%s, %d, %s);", dest, i, tmp)
		}
	case !t.Unboxed:
		e.Emit("%s = %s;", lhs, src)
	case t == ir.IntRType:
		e.Emit("%s = PyLong_FromLongLong(%s);", lhs, src)
	case t == ir.FloatRType:
		e.Emit("%s = PyFloat_FromDouble(%s);", lhs, src)
	case t == ir.BoolRType:
		e.Emit("%s = %s ? Py_True : Py_False;", lhs, src)
		e.Emit("Py_INCREF(%s);", dest)
	case t == ir.NoneRType:
		e.Emit("%s = Py_None;", lhs)
		e.Emit("Py_INCREF(%s);", dest)
	default:
		e.Emit("%s = NULL; /* cannot box %s */", lhs, t)
	}
}

// EmitUnbox converts a borrowed object to its native value, running
// failure (one or more C statements) when the object has the wrong type.
// Owned parts of the result are still borrowed from src.
func (e *Emitter) EmitUnbox(src, dest string, t *ir.RType, failure []string, declareDest bool) {
	switch {
	case t.IsTuple():
		e.Emit("%s;", declare(declareDest, t, dest))
		e.Emit("if (!PyTuple_Check(%s) || PyTuple_GET_SIZE(%s) != %d) {", src, src, len(t.Items))
		e.Emit("CPy_TypeError(\"%s\", %s);", t.Name, src)
		e.EmitLines(failure...)
		e.EmitLine("} else {")
		for i, item := range t.Items {
			itemSrc := fmt.Sprintf("PyTuple_GET_ITEM(%s, %d)", src, i)
			tmp := fmt.Sprintf("%s_f%d", dest, i)
			if item.Unboxed {
				e.EmitUnbox(itemSrc, tmp, item, failure, true)
			} else {
				e.EmitCast(itemSrc, tmp, item, true)
				e.Emit("if (%s == NULL) {", tmp)
				e.EmitLines(failure...)
				e.EmitLine("}")
			}
			e.Emit("%s.f%d = %s;", dest, i, tmp)
		}
		e.EmitLine("}")
	case t == ir.IntRType:
		e.Emit("%s = CPyLong_AsInt64(%s);", declare(declareDest, t, dest), src)
		e.Emit("if (%s == CPY_LL_INT_ERROR && PyErr_Occurred()) {", dest)
		e.EmitLines(failure...)
		e.EmitLine("}")
	case t == ir.FloatRType:
		e.Emit("%s = PyFloat_AsDouble(%s);", declare(declareDest, t, dest), src)
		e.Emit("if (%s == -1.0 && PyErr_Occurred()) {", dest)
		e.EmitLines(failure...)
		e.EmitLine("}")
	case t == ir.BoolRType:
		e.Emit("%s;", declare(declareDest, t, dest))
		e.Emit("if (!PyBool_Check(%s)) {", src)
		e.Emit("CPy_TypeError(\"bool\", %s);", src)
		e.EmitLines(failure...)
		e.EmitLine("} else")
		e.Emit("    %s = %s == Py_True;", dest, src)
	case t == ir.NoneRType:
		e.Emit("%s;", declare(declareDest, t, dest))
		e.Emit("if (%s != Py_None) {", src)
		e.Emit("CPy_TypeError(\"None\", %s);", src)
		e.EmitLines(failure...)
		e.EmitLine("} else")
		e.Emit("    %s = 1;", dest)
	default:
		e.EmitCast(src, dest, t, declareDest)
		e.Emit("if (%s == NULL) {", dest)
		e.EmitLines(failure...)
		e.EmitLine("}")
	}
}

// EmitCast checks a borrowed object against a boxed type. dest is NULL
// (with an exception set) on mismatch.
func (e *Emitter) EmitCast(src, dest string, t *ir.RType, declareDest bool) {
	lhs := dest
	if declareDest {
		lhs = "PyObject *" + dest
	}
	var check string
	switch {
	case t.Class != nil && t.Class.HasSubclasses():
		check = fmt.Sprintf("PyObject_TypeCheck(%s, %s)", src, e.names.TypeStructName(t.Class))
	case t.Class != nil:
		check = fmt.Sprintf("Py_TYPE(%s) == %s", src, e.names.TypeStructName(t.Class))
	case t.CheckFn != "":
		check = fmt.Sprintf("%s(%s)", t.CheckFn, src)
	default:
		e.Emit("%s = %s;", lhs, src)
		return
	}
	e.Emit("%s;", lhs)
	e.Emit("if (%s)", check)
	e.Emit("    %s = %s;", dest, src)
	e.EmitLine("else {")
	e.Emit("CPy_TypeError(\"%s\", %s);", t.Name, src)
	e.Emit("%s = NULL;", dest)
	e.EmitLine("}")
}

// EmitErrorCheck runs failure when value holds the error result of a
// native call returning t
func (e *Emitter) EmitErrorCheck(value string, t *ir.RType, failure []string) {
	switch {
	case !t.Unboxed:
		e.Emit("if (%s == NULL) {", value)
	case t.IsTuple():
		e.Emit("if ((%s) && PyErr_Occurred()) {", TupleUndefinedCheckCond(t, value, "=="))
	case t == ir.BoolRType || t == ir.NoneRType:
		e.Emit("if (%s == %s) {", value, t.Undefined)
	default:
		e.Emit("if (%s == %s && PyErr_Occurred()) {", value, t.Undefined)
	}
	e.EmitLines(failure...)
	e.EmitLine("}")
}

// NativeFunctionHeader is the C prototype (without ';') of a function's
// native entry point
func (e *Emitter) NativeFunctionHeader(fn *ir.FuncIR) string {
	args := make([]string, len(fn.Sig.Args))
	for i, arg := range fn.Sig.Args {
		args[i] = CTypeSpaced(arg.Type) + RegPrefix + sanitizeIdent(arg.Name)
	}
	params := "void"
	if len(args) > 0 {
		params = strings.Join(args, ", ")
	}
	ret := ir.ObjectRType
	if fn.Sig.Ret != nil {
		ret = fn.Sig.Ret
	}
	return fmt.Sprintf("%s%s(%s)", CTypeSpaced(ret), e.names.NativeName(fn), params)
}

// WrapperFunctionHeader is the C prototype of a function's host wrapper
func (e *Emitter) WrapperFunctionHeader(fn *ir.FuncIR) string {
	return fmt.Sprintf("PyObject *%s(PyObject *self, PyObject *args, PyObject *kw)", e.names.WrapperName(fn))
}

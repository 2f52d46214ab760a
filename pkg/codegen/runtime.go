package codegen

import (
	"fmt"
	"io"
	"strings"

	"nativeclass/pkg/ir"
)

// RuntimeGenerator generates the C support code shared by every class of
// a compilation unit
type RuntimeGenerator struct {
	w io.Writer
}

// NewRuntimeGenerator creates a new runtime generator
func NewRuntimeGenerator(w io.Writer) *RuntimeGenerator {
	return &RuntimeGenerator{w: w}
}

func (g *RuntimeGenerator) emit(format string, args ...interface{}) {
	fmt.Fprintf(g.w, format, args...)
}

// GenerateHeader generates includes, the dispatch cell type and the
// undefined sentinels of unboxed types
func (g *RuntimeGenerator) GenerateHeader() {
	g.emit(`/* Native class support */

#include <Python.h>
#include <structmember.h>
#include <stdbool.h>
#include <stdint.h>
#include <stdio.h>
#include <stdlib.h>

/* One dispatch table cell: a function pointer, or in a trait header a
   type object or secondary table */
typedef void *CPyVTableItem;

/* Undefined sentinels. A native call returning one of these with an
   exception set has failed. */
#define CPY_LL_INT_ERROR ((int64_t)-113)
#define CPY_FLOAT_ERROR (-113.0)

`)
}

// GenerateErrors generates the helpers emitted code uses to report
// conversion failures
func (g *RuntimeGenerator) GenerateErrors() {
	g.emit(`static inline void CPyError_OutOfMemory(void) {
    fprintf(stderr, "fatal: out of memory\n");
    fflush(stderr);
    abort();
}

static inline void CPy_TypeError(const char *expected, PyObject *value) {
    PyErr_Format(PyExc_TypeError, "%%s object expected; got %%s",
                 expected, value == Py_None ? "None" : Py_TYPE(value)->tp_name);
}

`)
}

// GenerateConversions generates unboxing helpers
func (g *RuntimeGenerator) GenerateConversions() {
	g.emit(`static inline int64_t CPyLong_AsInt64(PyObject *o) {
    if (!PyLong_Check(o)) {
        CPy_TypeError("int", o);
        return CPY_LL_INT_ERROR;
    }
    int overflow;
    long long v = PyLong_AsLongLongAndOverflow(o, &overflow);
    if (overflow != 0) {
        PyErr_SetString(PyExc_OverflowError, "int too large to convert to int64");
        return CPY_LL_INT_ERROR;
    }
    if (v == -1 && PyErr_Occurred())
        return CPY_LL_INT_ERROR;
    return (int64_t)v;
}

`)
}

// GenerateTraitLookup generates the trait dispatch helper. The header of
// a primary table sits just before the pointer stored in instances, one
// (type, table) pair per trait, so the search walks backwards in steps of
// two. Only valid after the class's fixup routine ran.
func (g *RuntimeGenerator) GenerateTraitLookup() {
	g.emit(`static inline CPyVTableItem *CPy_FindTraitVtable(PyTypeObject *trait, CPyVTableItem *vtable) {
    int i;
    for (i = -2; ; i -= 2) {
        if ((PyTypeObject *)vtable[i] == trait)
            return (CPyVTableItem *)vtable[i + 1];
    }
}

`)
}

// GenerateTupleTypes generates the by-value structs of tuple types
func (g *RuntimeGenerator) GenerateTupleTypes(tuples []*ir.RType) {
	if len(tuples) == 0 {
		return
	}
	e := NewEmitter(nil)
	for _, t := range tuples {
		GenerateTupleStruct(e, t)
	}
	g.emit("%s\n", e.String())
}

// GenerateAll generates the complete prelude
func (g *RuntimeGenerator) GenerateAll(tuples []*ir.RType) {
	g.GenerateHeader()
	g.GenerateErrors()
	g.GenerateConversions()
	g.GenerateTraitLookup()
	g.GenerateTupleTypes(tuples)
}

// GenerateRuntime generates the prelude and returns it as a string
func GenerateRuntime(tuples []*ir.RType) string {
	var sb strings.Builder
	gen := NewRuntimeGenerator(&sb)
	gen.GenerateAll(tuples)
	return sb.String()
}

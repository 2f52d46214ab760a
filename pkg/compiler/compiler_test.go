package compiler

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"nativeclass/pkg/ir"
)

const shapesFile = "../ir/testdata/shapes.yaml"

// skipIfNoGCC skips the test if gcc is not available
func skipIfNoGCC(t *testing.T) {
	if _, err := exec.LookPath("gcc"); err != nil {
		t.Skip("gcc not available")
	}
}

// pythonIncludes returns the host headers' include flags, skipping the
// test when no development headers are installed
func pythonIncludes(t *testing.T) []string {
	out, err := exec.Command("python3-config", "--includes").Output()
	if err != nil {
		t.Skip("python3-config not available")
	}
	flags := strings.Fields(string(out))
	for _, f := range flags {
		dir := strings.TrimPrefix(f, "-I")
		if _, err := os.Stat(filepath.Join(dir, "Python.h")); err == nil {
			return flags
		}
	}
	t.Skip("Python.h not found")
	return nil
}

func compileShapes(t *testing.T, opts Options) *Result {
	t.Helper()
	res, err := New(opts).CompileFile(shapesFile)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return res
}

func TestCompileUnit(t *testing.T) {
	res := compileShapes(t, Options{})

	if res.Group != "shapes" || res.FixupEntryPoint != "shapes_fixup_vtables" {
		t.Errorf("unexpected group %s / %s", res.Group, res.FixupEntryPoint)
	}

	t.Run("HeaderDeclarations", func(t *testing.T) {
		for _, want := range []string{
			"#ifndef MYPYC_NATIVE_SHAPES_H",
			"typedef void *CPyVTableItem;",
			"#ifndef MYPYC_DECLARED_tuple_T2FF",
			"extern PyTypeObject *CPyType_Point;",
			"extern PyTypeObject *CPyType_Sized;",
			"} CircleObject;",
			"double CPyDef_Point___norm(PyObject *cpy_r_self);",
			"PyObject *CPyPy_Point___norm(PyObject *self, PyObject *args, PyObject *kw);",
			"int64_t CPyDef_Vector___length(PyObject *cpy_r_self);",
			"int shapes_fixup_vtables(void);",
			"#endif /* MYPYC_NATIVE_SHAPES_H */",
		} {
			if !strings.Contains(res.Header, want) {
				t.Errorf("header missing %q", want)
			}
		}
		if strings.Contains(res.Header, "CPyPy_Vector___length") {
			t.Error("property getters have no host wrapper")
		}
	})

	t.Run("DeclarationsBeforeDefinitions", func(t *testing.T) {
		lastDecl := strings.LastIndex(res.Source, "PyTypeObject *CPyType_Env;")
		firstDef := strings.Index(res.Source, "static PyTypeObject CPyType_")
		if lastDecl < 0 || firstDef < 0 || lastDecl > firstDef {
			t.Errorf("type declarations must precede the first descriptor (%d, %d)", lastDecl, firstDef)
		}
		if !strings.HasPrefix(res.Source, "#include \"shapes.h\"") {
			t.Error("source should include its header")
		}
	})

	t.Run("FixupEntryPoint", func(t *testing.T) {
		mod, err := ir.LoadFile(shapesFile)
		if err != nil {
			t.Fatal(err)
		}
		if len(res.Fixups) != len(mod.Classes) {
			t.Fatalf("expected one fixup per class, got %v", res.Fixups)
		}
		for _, f := range res.Fixups {
			if n := strings.Count(res.Source, "if (!"+f+"())"); n != 1 {
				t.Errorf("%s called %d times", f, n)
			}
		}
		entry := res.Source[strings.Index(res.Source, "int shapes_fixup_vtables(void)"):]
		if !strings.Contains(entry, "    if (!CPyDef_Box_trait_vtable_setup())\n        return -1;") {
			t.Errorf("unexpected entry point:\n%s", entry)
		}
	})

	t.Run("Constructors", func(t *testing.T) {
		got := strings.Join(res.Constructors, ",")
		want := "CPyDef_Point,CPyDef_Box,CPyDef_Shape,CPyDef_Square,CPyDef_Circle,CPyDef_Canvas,CPyDef_Vector,CPyDef_Env"
		if got != want {
			t.Errorf("expected %s, got %s", want, got)
		}
	})

	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "Env") {
		t.Errorf("expected the Env warning only, got %v", res.Warnings)
	}
	if res.Stats.ClassesEmitted != 9 || res.Stats.TraitsEmitted != 2 {
		t.Errorf("unexpected stats: %s", res.Stats.Summary())
	}
}

func TestCompileOptions(t *testing.T) {
	t.Run("GroupName", func(t *testing.T) {
		res := compileShapes(t, Options{GroupName: "geo"})
		if res.FixupEntryPoint != "geo_fixup_vtables" || !strings.Contains(res.Source, "#include \"geo.h\"") {
			t.Errorf("group name ignored: %s", res.FixupEntryPoint)
		}
	})

	t.Run("ModuleName", func(t *testing.T) {
		res := compileShapes(t, Options{ModuleName: "pkg.shapes"})
		if res.Group != "pkg___shapes" {
			t.Errorf("got group %s", res.Group)
		}
	})

	t.Run("ExternalRuntime", func(t *testing.T) {
		res := compileShapes(t, Options{ExternalRuntime: "CPy.h"})
		if !strings.Contains(res.Header, "#include <CPy.h>") {
			t.Error("missing runtime include")
		}
		if strings.Contains(res.Header, "CPy_FindTraitVtable") {
			t.Error("prelude should not be embedded")
		}
		if !strings.Contains(res.Header, "typedef struct tuple_T2OL {") {
			t.Error("tuple structs are still needed")
		}
	})
}

func TestCompileErrors(t *testing.T) {
	if _, err := New(Options{}).Compile(&ir.Module{Name: "empty"}); err == nil {
		t.Error("expected error for a module without classes")
	}

	base := ir.NewClassIR("Base", "m")
	base.Attributes.Put("a", ir.IntRType)
	derived := ir.NewClassIR("Derived", "m")
	derived.Base = base
	derived.MRO = []*ir.ClassIR{derived, base}
	derived.Attributes.Put("a", ir.FloatRType)
	_, err := New(Options{}).Compile(&ir.Module{Name: "m", Classes: []*ir.ClassIR{base, derived}})
	if err == nil || !strings.Contains(err.Error(), "Derived") {
		t.Errorf("expected error naming Derived, got %v", err)
	}
}

func TestResultWrite(t *testing.T) {
	res := compileShapes(t, Options{})
	dir := t.TempDir()
	if err := res.Write(dir); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"shapes.h", "shapes.c"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if len(data) == 0 {
			t.Errorf("%s is empty", name)
		}
	}
}

func TestCompileSyntax(t *testing.T) {
	skipIfNoGCC(t)
	includes := pythonIncludes(t)

	res := compileShapes(t, Options{})
	dir := t.TempDir()
	if err := res.Write(dir); err != nil {
		t.Fatal(err)
	}

	args := append([]string{"-fsyntax-only", "-Wno-unused-function"}, includes...)
	args = append(args, filepath.Join(dir, "shapes.c"))
	if out, err := exec.Command("gcc", args...).CombinedOutput(); err != nil {
		t.Fatalf("gcc rejected generated code: %v\n%s", err, out)
	}
}

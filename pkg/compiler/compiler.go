package compiler

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"nativeclass/pkg/codegen"
	"nativeclass/pkg/ir"
)

// Options configures a compilation unit
type Options struct {
	// ModuleName replaces the descriptor's module name when deriving
	// the default group name
	ModuleName string

	// GroupName prefixes the unit's fixup entry point and output files.
	// Defaults to the module name with dots mangled.
	GroupName string

	// ExternalRuntime, when set, is included by the header instead of
	// embedding the support prelude. Tuple structs are still emitted.
	ExternalRuntime string
}

// Result is one generated compilation unit
type Result struct {
	Group  string
	Header string
	Source string

	// FixupEntryPoint runs every class's fixup routine. Call it once
	// after all type objects of the unit have been created.
	FixupEntryPoint string
	Fixups          []string

	Constructors []string
	Classes      []*codegen.ClassOutput
	Stats        *codegen.Stats
	Warnings     []string
}

// Compiler turns module descriptors into C source
type Compiler struct {
	opts Options
}

// New creates a compiler
func New(opts Options) *Compiler {
	return &Compiler{opts: opts}
}

func (c *Compiler) groupName(mod *ir.Module) string {
	if c.opts.GroupName != "" {
		return c.opts.GroupName
	}
	name := c.opts.ModuleName
	if name == "" {
		name = mod.Name
	}
	if name == "" {
		name = "native"
	}
	return strings.ReplaceAll(name, ".", "___")
}

// moduleNames lists every module contributing a class, which decides
// whether symbols need module qualification
func moduleNames(mod *ir.Module) []string {
	var out []string
	seen := make(map[string]bool)
	for _, name := range append([]string{mod.Name}, classModules(mod)...) {
		if name != "" && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

func classModules(mod *ir.Module) []string {
	out := make([]string, len(mod.Classes))
	for i, cl := range mod.Classes {
		out[i] = cl.Module
	}
	return out
}

// CompileFile loads a YAML module descriptor and compiles it
func (c *Compiler) CompileFile(path string) (*Result, error) {
	mod, err := ir.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return c.Compile(mod)
}

// Compile generates the header and source of every class in mod.
// Declarations of all classes precede the first definition so classes
// may refer to each other in any order.
func (c *Compiler) Compile(mod *ir.Module) (*Result, error) {
	if mod == nil || len(mod.Classes) == 0 {
		return nil, fmt.Errorf("compiler: no classes to compile")
	}
	group := c.groupName(mod)
	names := codegen.NewNames(moduleNames(mod)...)
	res := &Result{
		Group:           group,
		FixupEntryPoint: group + "_fixup_vtables",
		Stats:           codegen.NewStats(),
	}

	h := codegen.NewEmitter(names)
	src := codegen.NewEmitter(names)
	guard := "MYPYC_NATIVE_" + strings.ToUpper(group) + "_H"
	h.Emit("#ifndef %s", guard)
	h.Emit("#define %s", guard)
	h.Blank()

	tuples := codegen.CollectTupleTypes(mod.Classes)
	if c.opts.ExternalRuntime != "" {
		h.Emit("#include <%s>", c.opts.ExternalRuntime)
		h.Blank()
		h.EmitRaw(tupleStructs(tuples))
	} else {
		h.EmitRaw(codegen.GenerateRuntime(tuples))
	}
	h.Blank()

	src.Emit("#include \"%s.h\"", group)
	src.Blank()

	for _, cl := range mod.Classes {
		if err := codegen.GenerateClassTypeDecl(cl, src, h); err != nil {
			return nil, fmt.Errorf("compiler: %s: %w", cl.Name, err)
		}
	}
	h.Blank()
	for _, cl := range mod.Classes {
		declareMethods(h, cl)
	}
	h.Emit("int %s(void);", res.FixupEntryPoint)
	h.Blank()
	h.Emit("#endif /* %s */", guard)

	for _, cl := range mod.Classes {
		out, err := codegen.GenerateClass(cl, src, res.Stats)
		if err != nil {
			return nil, fmt.Errorf("compiler: %s: %w", cl.Name, err)
		}
		res.Classes = append(res.Classes, out)
		res.Fixups = append(res.Fixups, out.Fixup)
		if out.Constructor != "" {
			res.Constructors = append(res.Constructors, out.Constructor)
		}
		res.Warnings = append(res.Warnings, out.Warnings...)
	}
	generateFixupEntryPoint(src, res.FixupEntryPoint, res.Fixups)

	res.Header = h.String()
	res.Source = src.String()
	return res, nil
}

// declareMethods declares the native and wrapper entry points of every
// method; their bodies come from the ordinary function back end
func declareMethods(h *codegen.Emitter, cl *ir.ClassIR) {
	cl.Methods.Each(func(_ string, fn *ir.FuncIR) {
		h.Emit("%s;", h.NativeFunctionHeader(fn))
		if !fn.IsPropGetter && !fn.IsPropSetter {
			h.Emit("%s;", h.WrapperFunctionHeader(fn))
		}
	})
}

func generateFixupEntryPoint(e *codegen.Emitter, name string, fixups []string) {
	e.Emit("int %s(void)", name)
	e.EmitLine("{")
	for _, f := range fixups {
		e.Emit("if (!%s())", f)
		e.EmitLine("    return -1;")
	}
	e.EmitLine("return 0;")
	e.EmitLine("}")
}

func tupleStructs(tuples []*ir.RType) string {
	e := codegen.NewEmitter(nil)
	for _, t := range tuples {
		codegen.GenerateTupleStruct(e, t)
	}
	return e.String()
}

// Write stores the unit as <group>.h and <group>.c under dir
func (r *Result) Write(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, r.Group+".h"), []byte(r.Header), 0644); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, r.Group+".c"), []byte(r.Source), 0644)
}

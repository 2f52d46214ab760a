package codegen

import (
	"strings"
	"unicode"

	"nativeclass/pkg/ir"
)

// Prefixes of generated C symbols
const (
	NativePrefix  = "CPyDef_"    // native-convention function bodies
	WrapperPrefix = "CPyPy_"     // host-convention wrappers
	TypePrefix    = "CPyType_"   // type object pointers
	DunderPrefix  = "CPyDunder_" // slot adapters
	RegPrefix     = "cpy_r_"     // native function parameters
	AttrPrefix    = "_"          // struct fields
)

var cKeywords = map[string]struct{}{
	"auto": {}, "break": {}, "case": {}, "char": {}, "const": {}, "continue": {},
	"default": {}, "do": {}, "double": {}, "else": {}, "enum": {}, "extern": {},
	"float": {}, "for": {}, "goto": {}, "if": {}, "inline": {}, "int": {},
	"long": {}, "register": {}, "restrict": {}, "return": {}, "short": {},
	"signed": {}, "sizeof": {}, "static": {}, "struct": {}, "switch": {},
	"typedef": {}, "union": {}, "unsigned": {}, "void": {}, "volatile": {},
	"while": {},
}

func sanitizeIdent(name string) string {
	out := cleanIdent(name)
	if _, ok := cKeywords[out]; ok {
		return "_" + out
	}
	return out
}

// cleanIdent replaces every character that cannot appear in a C
// identifier
func cleanIdent(name string) string {
	if name == "" {
		return "_"
	}
	var b strings.Builder
	for i, r := range name {
		if r == '_' || (r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r))) {
			if i == 0 && unicode.IsDigit(r) {
				b.WriteByte('_')
			}
			b.WriteRune(r)
			continue
		}
		b.WriteByte('_')
	}
	return b.String()
}

// Names derives C identifiers for classes, functions and attributes.
// Names are only module-qualified when more than one module shares the
// compilation unit.
type Names struct {
	qualify bool
}

// NewNames creates a name generator for the given modules
func NewNames(modules ...string) *Names {
	seen := make(map[string]bool)
	for _, m := range modules {
		seen[m] = true
	}
	return &Names{qualify: len(seen) > 1}
}

// PrivateName returns a unit-unique C name for a module-level symbol
func (n *Names) PrivateName(module, partial string) string {
	if n == nil || !n.qualify || module == "" {
		return sanitizeIdent(partial)
	}
	return sanitizeIdent(strings.ReplaceAll(module, ".", "___") + "___" + partial)
}

// NamePrefix is the stem shared by every symbol generated for a class
func (n *Names) NamePrefix(cl *ir.ClassIR) string {
	return n.PrivateName(cl.Module, cl.Name)
}

// StructName is the instance struct typedef of a class
func (n *Names) StructName(cl *ir.ClassIR) string {
	return n.NamePrefix(cl) + "Object"
}

// TypeStructName is the global holding the class's live type object
func (n *Names) TypeStructName(cl *ir.ClassIR) string {
	return TypePrefix + n.NamePrefix(cl)
}

// FuncCName is the unprefixed C name of a function
func (n *Names) FuncCName(fn *ir.FuncIR) string {
	return n.PrivateName(fn.Module, fn.ShortName())
}

// NativeName is the native-convention entry point of a function
func (n *Names) NativeName(fn *ir.FuncIR) string {
	return NativePrefix + n.FuncCName(fn)
}

// WrapperName is the host-convention wrapper of a function
func (n *Names) WrapperName(fn *ir.FuncIR) string {
	return WrapperPrefix + n.FuncCName(fn)
}

// NativeGetterName is the native getter of attr on cl
func (n *Names) NativeGetterName(cl *ir.ClassIR, attr string) string {
	return n.PrivateName(cl.Module, "native_"+cl.Name+"_get"+attr)
}

// NativeSetterName is the native setter of attr on cl
func (n *Names) NativeSetterName(cl *ir.ClassIR, attr string) string {
	return n.PrivateName(cl.Module, "native_"+cl.Name+"_set"+attr)
}

// GetterName is the host-facing getter of an attribute or property
func (n *Names) GetterName(cl *ir.ClassIR, attr string) string {
	return n.PrivateName(cl.Module, cl.Name+"_get"+attr)
}

// SetterName is the host-facing setter of an attribute or property
func (n *Names) SetterName(cl *ir.ClassIR, attr string) string {
	return n.PrivateName(cl.Module, cl.Name+"_set"+attr)
}

// Attr is the struct field holding an attribute
func Attr(name string) string {
	return AttrPrefix + cleanIdent(name)
}

package ir

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownType is returned when a descriptor names a type that is
// neither builtin nor a class of the module
var ErrUnknownType = errors.New("unknown type")

// Module is a set of class descriptors compiled together
type Module struct {
	Name    string
	Classes []*ClassIR
}

// Class finds a class by name
func (m *Module) Class(name string) *ClassIR {
	for _, cl := range m.Classes {
		if cl.Name == name {
			return cl
		}
	}
	return nil
}

type moduleDoc struct {
	Module  string     `yaml:"module"`
	Classes []classDoc `yaml:"classes"`
}

type classDoc struct {
	Name        string        `yaml:"name"`
	Bases       []string      `yaml:"bases"`
	Traits      []string      `yaml:"traits"`
	Trait       bool          `yaml:"trait"`
	Dict        bool          `yaml:"dict"`
	BuiltinBase string        `yaml:"builtin_base"`
	Generated   bool          `yaml:"generated"`
	Attributes  []attrDoc     `yaml:"attributes"`
	Methods     []methodDoc   `yaml:"methods"`
	Properties  []propertyDoc `yaml:"properties"`
}

type attrDoc struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

type methodDoc struct {
	Name string    `yaml:"name"`
	Args []attrDoc `yaml:"args"`
	Ret  string    `yaml:"ret"`
	Kind string    `yaml:"kind"`
}

type propertyDoc struct {
	Name   string `yaml:"name"`
	Type   string `yaml:"type"`
	Setter bool   `yaml:"setter"`
}

// LoadFile reads a YAML module descriptor from disk
func LoadFile(path string) (*Module, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ir: open %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

// Load decodes a YAML module descriptor, resolves every type and base
// reference, and computes dispatch entries. The returned descriptors are
// complete and must not be mutated afterwards.
func Load(r io.Reader) (*Module, error) {
	var doc moduleDoc
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("ir: decode descriptor: %w", err)
	}
	if doc.Module == "" {
		return nil, fmt.Errorf("ir: descriptor has no module name")
	}

	l := &loader{module: doc.Module, classes: make(map[string]*ClassIR), docs: make(map[string]*classDoc)}
	mod := &Module{Name: doc.Module}
	for i := range doc.Classes {
		cd := &doc.Classes[i]
		if cd.Name == "" {
			return nil, fmt.Errorf("ir: class #%d has no name", i+1)
		}
		if _, dup := l.classes[cd.Name]; dup {
			return nil, fmt.Errorf("ir: duplicate class %s", cd.Name)
		}
		cl := NewClassIR(cd.Name, doc.Module)
		cl.IsTrait = cd.Trait
		cl.HasDict = cd.Dict
		cl.BuiltinBase = cd.BuiltinBase
		cl.IsGenerated = cd.Generated
		l.classes[cd.Name] = cl
		l.docs[cd.Name] = cd
		mod.Classes = append(mod.Classes, cl)
	}

	for _, cl := range mod.Classes {
		if err := l.resolveBases(cl, nil); err != nil {
			return nil, err
		}
	}
	for _, cl := range mod.Classes {
		if err := l.resolveMembers(cl); err != nil {
			return nil, err
		}
	}
	for _, cl := range mod.Classes {
		if !cl.IsTrait {
			l.buildCtor(cl)
		}
		if err := ComputeVTable(cl); err != nil {
			return nil, err
		}
	}
	return mod, nil
}

type loader struct {
	module  string
	classes map[string]*ClassIR
	docs    map[string]*classDoc
	done    map[*ClassIR]bool
}

func (l *loader) lookupClass(name string) (*ClassIR, error) {
	cl, ok := l.classes[name]
	if !ok {
		return nil, fmt.Errorf("ir: unknown class %s", name)
	}
	return cl, nil
}

func (l *loader) resolveBases(cl *ClassIR, visiting []string) error {
	if l.done == nil {
		l.done = make(map[*ClassIR]bool)
	}
	if l.done[cl] {
		return nil
	}
	for _, v := range visiting {
		if v == cl.Name {
			return fmt.Errorf("ir: inheritance cycle through %s", strings.Join(append(visiting, cl.Name), " -> "))
		}
	}
	visiting = append(visiting, cl.Name)
	cd := l.docs[cl.Name]

	var parents []*ClassIR
	for _, name := range append(append([]string{}, cd.Bases...), cd.Traits...) {
		base, err := l.lookupClass(name)
		if err != nil {
			return fmt.Errorf("ir: %s: %w", cl.Name, err)
		}
		if err := l.resolveBases(base, visiting); err != nil {
			return err
		}
		if base.IsTrait {
			cl.Traits = append(cl.Traits, base)
		} else {
			if cl.IsTrait {
				return fmt.Errorf("ir: trait %s cannot inherit from class %s", cl.Name, base.Name)
			}
			if cl.Base != nil {
				return fmt.Errorf("ir: %s has more than one non-trait base (%s, %s)", cl.Name, cl.Base.Name, base.Name)
			}
			cl.Base = base
			base.Children = append(base.Children, cl)
		}
		parents = append(parents, base)
	}
	if cl.IsTrait && len(cl.Traits) > 0 {
		cl.Base = cl.Traits[0]
	}
	if cl.Base != nil && cl.Base.BuiltinBase != "" && cl.BuiltinBase == "" {
		cl.BuiltinBase = cl.Base.BuiltinBase
	}

	mro := []*ClassIR{cl}
	seen := map[*ClassIR]bool{cl: true}
	for _, p := range parents {
		for _, c := range p.MRO {
			if !seen[c] {
				seen[c] = true
				mro = append(mro, c)
			}
		}
	}
	cl.MRO = mro
	l.done[cl] = true
	return nil
}

func (l *loader) resolveMembers(cl *ClassIR) error {
	cd := l.docs[cl.Name]
	if len(cd.Attributes) > 0 {
		if cl.IsTrait {
			return fmt.Errorf("ir: trait %s cannot declare attributes", cl.Name)
		}
		if cl.BuiltinBase != "" {
			return fmt.Errorf("ir: %s has foreign base %s and cannot declare attributes", cl.Name, cl.BuiltinBase)
		}
	}
	for _, ad := range cd.Attributes {
		t, err := l.parseType(ad.Type)
		if err != nil {
			return fmt.Errorf("ir: %s.%s: %w", cl.Name, ad.Name, err)
		}
		if cl.Attributes.Has(ad.Name) {
			return fmt.Errorf("ir: %s: duplicate attribute %s", cl.Name, ad.Name)
		}
		cl.Attributes.Put(ad.Name, t)
	}
	for _, md := range cd.Methods {
		fn, err := l.buildMethod(cl, md)
		if err != nil {
			return err
		}
		cl.Methods.Put(fn.Name, fn)
	}
	for _, pd := range cd.Properties {
		t, err := l.parseType(pd.Type)
		if err != nil {
			return fmt.Errorf("ir: %s.%s: %w", cl.Name, pd.Name, err)
		}
		self := RuntimeArg{Name: "self", Type: cl.RType()}
		getter := &FuncIR{
			Name:         pd.Name,
			ClassName:    cl.Name,
			Module:       l.module,
			Sig:          FuncSignature{Args: []RuntimeArg{self}, Ret: t},
			IsPropGetter: true,
		}
		prop := &Property{Getter: getter}
		cl.Methods.Put(getter.Name, getter)
		if pd.Setter {
			prop.Setter = &FuncIR{
				Name:         "__mypyc_setter__" + pd.Name,
				ClassName:    cl.Name,
				Module:       l.module,
				Sig:          FuncSignature{Args: []RuntimeArg{self, {Name: "value", Type: t}}, Ret: NoneRType},
				IsPropSetter: true,
			}
			cl.Methods.Put(prop.Setter.Name, prop.Setter)
		}
		cl.Properties.Put(pd.Name, prop)
	}
	return nil
}

func (l *loader) buildMethod(cl *ClassIR, md methodDoc) (*FuncIR, error) {
	if md.Name == "" {
		return nil, fmt.Errorf("ir: %s: method without name", cl.Name)
	}
	fn := &FuncIR{Name: md.Name, ClassName: cl.Name, Module: l.module}
	switch md.Kind {
	case "", "normal":
		fn.Kind = FuncNormal
		fn.Sig.Args = append(fn.Sig.Args, RuntimeArg{Name: "self", Type: cl.RType()})
	case "static":
		fn.Kind = FuncStatic
	case "class":
		fn.Kind = FuncClass
		fn.Sig.Args = append(fn.Sig.Args, RuntimeArg{Name: "cls", Type: ObjectRType})
	default:
		return nil, fmt.Errorf("ir: %s.%s: unknown method kind %q", cl.Name, md.Name, md.Kind)
	}
	for _, ad := range md.Args {
		t, err := l.parseType(ad.Type)
		if err != nil {
			return nil, fmt.Errorf("ir: %s.%s(%s): %w", cl.Name, md.Name, ad.Name, err)
		}
		fn.Sig.Args = append(fn.Sig.Args, RuntimeArg{Name: ad.Name, Type: t})
	}
	ret := md.Ret
	if ret == "" {
		ret = "None"
	}
	t, err := l.parseType(ret)
	if err != nil {
		return nil, fmt.Errorf("ir: %s.%s: %w", cl.Name, md.Name, err)
	}
	fn.Sig.Ret = t
	return fn, nil
}

// buildCtor derives the combined constructor: same arguments as the
// resolved initializer without self, returning a new instance
func (l *loader) buildCtor(cl *ClassIR) {
	ctor := &FuncIR{Name: cl.Name, Module: l.module, Sig: FuncSignature{Ret: cl.RType()}}
	if init, _ := cl.GetMethod(InitMethod); init != nil && len(init.Sig.Args) > 0 {
		ctor.Sig.Args = append(ctor.Sig.Args, init.Sig.Args[1:]...)
	}
	cl.Ctor = ctor
}

func (l *loader) parseType(spec string) (*RType, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return ObjectRType, nil
	}
	if t, ok := BuiltinType(spec); ok {
		return t, nil
	}
	if strings.HasPrefix(spec, "tuple[") && strings.HasSuffix(spec, "]") {
		inner := spec[len("tuple[") : len(spec)-1]
		var items []*RType
		for _, part := range splitTopLevel(inner) {
			t, err := l.parseType(part)
			if err != nil {
				return nil, err
			}
			items = append(items, t)
		}
		if len(items) == 0 {
			return nil, fmt.Errorf("%w: empty tuple", ErrUnknownType)
		}
		return NewTupleRType(items...), nil
	}
	if cl, ok := l.classes[spec]; ok {
		return cl.RType(), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownType, spec)
}

func splitTopLevel(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '[':
			depth++
		case ']':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	if strings.TrimSpace(s[start:]) != "" {
		parts = append(parts, s[start:])
	}
	return parts
}

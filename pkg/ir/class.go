package ir

// Reserved method names consulted during instance construction
const (
	InitMethod     = "__init__"
	DefaultsMethod = "__mypyc_defaults_setup"
)

// ClassIR is the frozen descriptor of a native class or trait.
//
// MRO holds the class itself followed by its ancestors in lookup order;
// traits may appear in it and are skipped wherever layout is concerned.
// A ClassIR is built once by the front end (or Load) and only read here.
type ClassIR struct {
	Name   string
	Module string

	Attributes *OrderedMap[*RType]
	Methods    *OrderedMap[*FuncIR]
	Properties *OrderedMap[*Property]

	Base   *ClassIR   // primary base, nil for roots
	MRO    []*ClassIR // self first
	Traits []*ClassIR // directly implemented traits

	// Children lists the classes of the unit whose primary base is this
	// class. Load fills it; hand-built hierarchies must too.
	Children []*ClassIR

	VTableEntries []VTableEntry
	vtableIndex   map[string]int

	IsTrait     bool
	HasDict     bool   // open attribute set
	BuiltinBase string // foreign (host builtin) base struct, e.g. "PyBaseExceptionObject"
	IsGenerated bool   // compiler-synthesized, no host-facing accessors

	Ctor *FuncIR

	rtype *RType
}

// NewClassIR creates an empty class descriptor whose MRO is just itself
func NewClassIR(name, module string) *ClassIR {
	cl := &ClassIR{
		Name:       name,
		Module:     module,
		Attributes: NewOrderedMap[*RType](),
		Methods:    NewOrderedMap[*FuncIR](),
		Properties: NewOrderedMap[*Property](),
	}
	cl.MRO = []*ClassIR{cl}
	return cl
}

// RType returns the instance type of the class
func (cl *ClassIR) RType() *RType {
	if cl.rtype == nil {
		cl.rtype = NewInstanceRType(cl)
	}
	return cl.rtype
}

// OwnMethod returns a method only if the class itself defines it
func (cl *ClassIR) OwnMethod(name string) (*FuncIR, bool) {
	return cl.Methods.Get(name)
}

// GetMethod resolves a method along the MRO and returns it together with
// the class that defines it
func (cl *ClassIR) GetMethod(name string) (*FuncIR, *ClassIR) {
	for _, c := range cl.MRO {
		if fn, ok := c.Methods.Get(name); ok {
			return fn, c
		}
	}
	return nil, nil
}

// HasOpenAttributes reports whether any class in the MRO has an open
// attribute set, which requires the dict/weakref extension
func (cl *ClassIR) HasOpenAttributes() bool {
	for _, c := range cl.MRO {
		if c.HasDict {
			return true
		}
	}
	return false
}

// AllTraits returns every trait in the MRO (excluding the class itself)
// followed by any directly implemented trait not already listed
func (cl *ClassIR) AllTraits() []*ClassIR {
	var out []*ClassIR
	seen := make(map[*ClassIR]bool)
	for _, c := range cl.MRO[1:] {
		if c.IsTrait && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	for _, t := range cl.Traits {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// IsFull reports whether the class gets a native struct, lifecycle
// routines and a dispatch table of its own
func (cl *ClassIR) IsFull() bool {
	return !cl.IsTrait && cl.BuiltinBase == ""
}

// HasSubclasses reports whether an instance typed as cl may belong to
// another native class
func (cl *ClassIR) HasSubclasses() bool {
	return cl.IsTrait || len(cl.Children) > 0
}

// VTableIndex returns the dispatch-table position of a method
func (cl *ClassIR) VTableIndex(name string) (int, bool) {
	idx, ok := cl.vtableIndex[name]
	return idx, ok
}

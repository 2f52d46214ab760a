package ir

import "fmt"

// EntryKind tags a dispatch-table entry
type EntryKind int

const (
	EntryMethod EntryKind = iota
	EntryAttr
)

// VTableEntry is one slot of a dispatch table: either a method, or the
// native getter or setter of an attribute
type VTableEntry struct {
	Kind     EntryKind
	Class    *ClassIR // class that owns the method or accessor
	Name     string
	Method   *FuncIR // EntryMethod only
	IsSetter bool    // EntryAttr only
}

// MethodEntry creates a method dispatch entry
func MethodEntry(cl *ClassIR, fn *FuncIR) VTableEntry {
	return VTableEntry{Kind: EntryMethod, Class: cl, Name: fn.Name, Method: fn}
}

// AttrEntry creates an attribute accessor entry
func AttrEntry(cl *ClassIR, attr string, setter bool) VTableEntry {
	return VTableEntry{Kind: EntryAttr, Class: cl, Name: attr, IsSetter: setter}
}

// SameSlot reports whether two entries occupy the same semantic slot,
// allowing the target to be overridden
func (e VTableEntry) SameSlot(o VTableEntry) bool {
	return e.Kind == o.Kind && e.Name == o.Name && e.IsSetter == o.IsSetter
}

func (e VTableEntry) String() string {
	if e.Kind == EntryMethod {
		return fmt.Sprintf("%s.%s", e.Class.Name, e.Name)
	}
	if e.IsSetter {
		return fmt.Sprintf("%s.%s<set>", e.Class.Name, e.Name)
	}
	return fmt.Sprintf("%s.%s<get>", e.Class.Name, e.Name)
}

// ComputeVTable fills in the dispatch entries of a class. The base's
// entries come first (methods replaced by overrides), then a getter/setter
// pair per own attribute, then methods not already present.
func ComputeVTable(cl *ClassIR) error {
	if cl.vtableIndex != nil {
		return nil
	}
	index := make(map[string]int)
	var entries []VTableEntry

	if cl.Base != nil {
		if err := ComputeVTable(cl.Base); err != nil {
			return err
		}
		for _, e := range cl.Base.VTableEntries {
			if e.Kind == EntryMethod {
				fn, owner := cl.GetMethod(e.Name)
				if fn == nil {
					return fmt.Errorf("ir: %s: inherited method %s not resolvable", cl.Name, e.Name)
				}
				if fn != e.Method {
					e = MethodEntry(owner, fn)
				}
			}
			entries = append(entries, e)
		}
		for name, idx := range cl.Base.vtableIndex {
			index[name] = idx
		}
	}
	for _, t := range cl.AllTraits() {
		if err := ComputeVTable(t); err != nil {
			return err
		}
	}

	if !cl.IsTrait {
		for _, attr := range cl.Attributes.Keys() {
			if _, ok := index[attr]; ok {
				continue
			}
			index[attr] = len(entries)
			entries = append(entries, AttrEntry(cl, attr, false), AttrEntry(cl, attr, true))
		}
	}
	cl.Methods.Each(func(name string, fn *FuncIR) {
		if _, ok := index[name]; ok {
			return
		}
		index[name] = len(entries)
		entries = append(entries, MethodEntry(cl, fn))
	})

	cl.VTableEntries = entries
	cl.vtableIndex = index
	return nil
}

// SetVTable installs precomputed dispatch entries
func (cl *ClassIR) SetVTable(entries []VTableEntry) {
	cl.VTableEntries = entries
	cl.vtableIndex = make(map[string]int)
	for i, e := range entries {
		if _, ok := cl.vtableIndex[e.Name]; !ok {
			cl.vtableIndex[e.Name] = i
		}
	}
}

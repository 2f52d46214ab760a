package analysis

import (
	"errors"
	"fmt"

	"nativeclass/pkg/ir"
)

// ErrVTablePrefix is returned when a class's dispatch entries do not
// start with its base's entries
var ErrVTablePrefix = errors.New("dispatch table does not extend base table")

// TraitTable is the secondary dispatch table of one (class, trait) pair
type TraitTable struct {
	Trait   *ir.ClassIR
	Entries []ir.VTableEntry
}

// VTablePlan describes the primary table of a class and the secondary
// tables reached through its header.
//
// The primary table is laid out as
//
//	[trait0 type cell, trait0 table cell, trait1 type cell, ... | entries...]
//
// and call sites only ever see the part after the header.
type VTablePlan struct {
	Class   *ir.ClassIR
	Entries []ir.VTableEntry
	Traits  []TraitTable
}

// HeaderLen is the number of indirection cells before the first entry
func (p *VTablePlan) HeaderLen() int {
	return 2 * len(p.Traits)
}

// Len is the total number of cells including the header
func (p *VTablePlan) Len() int {
	return p.HeaderLen() + len(p.Entries)
}

// PlanVTable validates the dispatch entries of cl against its base and
// specialises each implemented trait's entries to cl
func PlanVTable(cl *ir.ClassIR, layout *Layout) (*VTablePlan, error) {
	if err := ir.ComputeVTable(cl); err != nil {
		return nil, err
	}
	if err := checkPrefix(cl); err != nil {
		return nil, err
	}
	plan := &VTablePlan{Class: cl, Entries: cl.VTableEntries}
	if cl.IsTrait {
		return plan, nil
	}
	for _, trait := range cl.AllTraits() {
		table := TraitTable{Trait: trait}
		for _, e := range trait.VTableEntries {
			resolved, err := resolveTraitEntry(cl, layout, trait, e)
			if err != nil {
				return nil, err
			}
			table.Entries = append(table.Entries, resolved)
		}
		plan.Traits = append(plan.Traits, table)
	}
	return plan, nil
}

func checkPrefix(cl *ir.ClassIR) error {
	base := cl.Base
	if base == nil {
		return nil
	}
	if len(cl.VTableEntries) < len(base.VTableEntries) {
		return fmt.Errorf("analysis: %s: %w: %d entries, base %s has %d",
			cl.Name, ErrVTablePrefix, len(cl.VTableEntries), base.Name, len(base.VTableEntries))
	}
	for i, e := range base.VTableEntries {
		if !cl.VTableEntries[i].SameSlot(e) {
			return fmt.Errorf("analysis: %s: %w: slot %d is %s, base has %s",
				cl.Name, ErrVTablePrefix, i, cl.VTableEntries[i], e)
		}
	}
	return nil
}

func resolveTraitEntry(cl *ir.ClassIR, layout *Layout, trait *ir.ClassIR, e ir.VTableEntry) (ir.VTableEntry, error) {
	switch e.Kind {
	case ir.EntryMethod:
		fn, owner := cl.GetMethod(e.Name)
		if fn == nil {
			return ir.VTableEntry{}, fmt.Errorf("analysis: %s does not implement %s.%s", cl.Name, trait.Name, e.Name)
		}
		return ir.MethodEntry(owner, fn), nil
	default:
		if layout == nil {
			return ir.VTableEntry{}, fmt.Errorf("analysis: %s: no layout to resolve %s.%s", cl.Name, trait.Name, e.Name)
		}
		if _, ok := layout.Field(e.Name); !ok {
			return ir.VTableEntry{}, fmt.Errorf("analysis: %s has no attribute %s required by %s", cl.Name, e.Name, trait.Name)
		}
		return ir.AttrEntry(cl, e.Name, e.IsSetter), nil
	}
}

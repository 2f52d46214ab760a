package memory

import (
	"errors"
	"fmt"

	"nativeclass/pkg/ir"
)

// Dispatch tables with a trait header
//
// A class implementing N traits owns one primary table laid out as
//
//	[type(T0), table(T0), type(T1), table(T1), ... | entry0, entry1, ...]
//
// Instances point at entry0, so ordinary dispatch never sees the header.
// The header cells are placeholders until the class's fixup routine
// writes each trait's type object and secondary table into them.

var (
	// ErrNotFixedUp is returned when a trait lookup hits a placeholder cell
	ErrNotFixedUp = errors.New("vtable header not fixed up")

	// ErrAlreadyFixedUp is returned when a class's fixup runs twice
	ErrAlreadyFixedUp = errors.New("vtable fixup already ran")
)

// CellKind tags the content of one table cell
type CellKind int

const (
	CellPlaceholder CellKind = iota
	CellType
	CellTable
	CellEntry
)

func (k CellKind) String() string {
	switch k {
	case CellPlaceholder:
		return "placeholder"
	case CellType:
		return "type"
	case CellTable:
		return "table"
	case CellEntry:
		return "entry"
	default:
		return "unknown"
	}
}

// Cell is one slot of a dispatch table
type Cell struct {
	Kind  CellKind
	Type  *TypeObject
	Table *VTable
	Entry ir.VTableEntry
}

// VTable is a primary or secondary dispatch table
type VTable struct {
	Cells []Cell

	// Start is the index instances point at: twice the trait count for
	// primary tables, zero for secondary ones
	Start int
}

func newVTable(traits int, entries []ir.VTableEntry) *VTable {
	v := &VTable{Cells: make([]Cell, 2*traits, 2*traits+len(entries)), Start: 2 * traits}
	for _, e := range entries {
		v.Cells = append(v.Cells, Cell{Kind: CellEntry, Entry: e})
	}
	return v
}

// Len is the number of dispatch entries past the header
func (v *VTable) Len() int {
	return len(v.Cells) - v.Start
}

// Header returns the trait indirection cells
func (v *VTable) Header() []Cell {
	return v.Cells[:v.Start]
}

// Entry returns the i-th dispatch entry, counted from the visible start
func (v *VTable) Entry(i int) (ir.VTableEntry, error) {
	if i < 0 || i >= v.Len() {
		return ir.VTableEntry{}, fmt.Errorf("memory: vtable index %d out of range [0, %d)", i, v.Len())
	}
	return v.Cells[v.Start+i].Entry, nil
}

// Entries returns every dispatch entry past the header
func (v *VTable) Entries() []ir.VTableEntry {
	out := make([]ir.VTableEntry, 0, v.Len())
	for _, c := range v.Cells[v.Start:] {
		out = append(out, c.Entry)
	}
	return out
}

// FixedUp reports whether every header cell has been written
func (v *VTable) FixedUp() bool {
	for _, c := range v.Header() {
		if c.Kind == CellPlaceholder {
			return false
		}
	}
	return true
}

// FindTrait walks the header backwards from the visible start, two cells
// at a time, until it finds trait's type cell
func (v *VTable) FindTrait(trait *TypeObject) (*VTable, error) {
	for i := v.Start - 2; i >= 0; i -= 2 {
		if v.Cells[i].Kind == CellPlaceholder {
			return nil, ErrNotFixedUp
		}
		if v.Cells[i].Type == trait {
			return v.Cells[i+1].Table, nil
		}
	}
	return nil, fmt.Errorf("memory: trait %s not implemented", trait.Name)
}

package analysis

import (
	"fmt"

	"nativeclass/pkg/ir"
)

// Strategy says how a protocol method is installed into its slot
type Strategy int

const (
	// StrategyNative installs the native function pointer unchanged
	StrategyNative Strategy = iota
	// StrategyWrapper installs the host-convention wrapper of the method
	StrategyWrapper
	// StrategyInit adapts an object-returning initializer to a status code
	StrategyInit
	// StrategyHash narrows the result to Py_ssize_t and remaps -1
	StrategyHash
	// StrategyDunder unboxes arguments and boxes the result
	StrategyDunder
	// StrategyBool converts the truth value to an int status
	StrategyBool
	// StrategyDescrGet substitutes None for a missing instance
	StrategyDescrGet
)

func (s Strategy) String() string {
	switch s {
	case StrategyNative:
		return "native"
	case StrategyWrapper:
		return "wrapper"
	case StrategyInit:
		return "init"
	case StrategyHash:
		return "hash"
	case StrategyDunder:
		return "dunder"
	case StrategyBool:
		return "bool"
	case StrategyDescrGet:
		return "descr_get"
	default:
		return "unknown"
	}
}

// AnyArity marks a slot whose adapter accepts any argument count
const AnyArity = -1

// SlotDef maps a protocol method name to a type-descriptor slot. Arity is
// the number of arguments after self the slot's calling convention passes.
type SlotDef struct {
	Method   string
	Slot     string
	Strategy Strategy
	Arity    int
}

// SideTableDef is a grouped protocol family stored in a separate struct
// hanging off the type descriptor
type SideTableDef struct {
	Name  string // suffix of the table symbol and of the tp_ field
	CType string
	Slots []SlotDef
}

// Field is the type-descriptor field holding the table pointer
func (d SideTableDef) Field() string {
	return "tp_" + d.Name
}

// SlotDefs is the closed set of protocol methods wired into the type
// descriptor itself
var SlotDefs = []SlotDef{
	{ir.InitMethod, "tp_init", StrategyInit, AnyArity},
	{"__call__", "tp_call", StrategyWrapper, AnyArity},
	{"__str__", "tp_str", StrategyNative, 0},
	{"__repr__", "tp_repr", StrategyNative, 0},
	{"__next__", "tp_iternext", StrategyNative, 0},
	{"__iter__", "tp_iter", StrategyNative, 0},
	{"__hash__", "tp_hash", StrategyHash, 0},
	{"__get__", "tp_descr_get", StrategyDescrGet, 2},
}

// SideTables lists the optional protocol families
var SideTables = []SideTableDef{
	{"as_mapping", "PyMappingMethods", []SlotDef{
		{"__getitem__", "mp_subscript", StrategyDunder, 1},
	}},
	{"as_number", "PyNumberMethods", []SlotDef{
		{"__bool__", "nb_bool", StrategyBool, 0},
	}},
	{"as_async", "PyAsyncMethods", []SlotDef{
		{"__await__", "am_await", StrategyNative, 0},
		{"__aiter__", "am_aiter", StrategyNative, 0},
		{"__anext__", "am_anext", StrategyNative, 0},
	}},
}

// RichCompareOps maps comparison methods to the host's operator codes.
// All of them share the single tp_richcompare slot.
var RichCompareOps = []struct {
	Method string
	Op     string
}{
	{"__eq__", "Py_EQ"},
	{"__ne__", "Py_NE"},
	{"__lt__", "Py_LT"},
	{"__le__", "Py_LE"},
	{"__gt__", "Py_GT"},
	{"__ge__", "Py_GE"},
}

// SlotBinding is a protocol method selected for a slot
type SlotBinding struct {
	SlotDef
	Method *ir.FuncIR
}

// SideTableBinding is a side table with at least one bound slot
type SideTableBinding struct {
	SideTableDef
	Slots []SlotBinding
}

// CompareBinding is one comparison method folded into tp_richcompare
type CompareBinding struct {
	Op     string
	Method *ir.FuncIR
}

// SlotPlan is the result of binding a class's protocol methods
type SlotPlan struct {
	Slots       []SlotBinding
	SideTables  []SideTableBinding
	RichCompare []CompareBinding

	// Warnings name protocol methods left unbound because their
	// signature cannot fit the slot
	Warnings []string
}

// Empty reports whether no slot at all was bound
func (p *SlotPlan) Empty() bool {
	return len(p.Slots) == 0 && len(p.SideTables) == 0 && len(p.RichCompare) == 0
}

// BindSlots selects the protocol methods cl defines itself. Inherited
// methods are left to the host's default slot inheritance.
func BindSlots(cl *ir.ClassIR) *SlotPlan {
	plan := &SlotPlan{}
	plan.Slots = plan.bindTable(cl, SlotDefs)
	for _, def := range SideTables {
		if slots := plan.bindTable(cl, def.Slots); len(slots) > 0 {
			plan.SideTables = append(plan.SideTables, SideTableBinding{SideTableDef: def, Slots: slots})
		}
	}
	for _, op := range RichCompareOps {
		fn, ok := cl.OwnMethod(op.Method)
		if !ok {
			continue
		}
		if msg := arityMismatch(cl, fn, "tp_richcompare", 1); msg != "" {
			plan.Warnings = append(plan.Warnings, msg)
			continue
		}
		plan.RichCompare = append(plan.RichCompare, CompareBinding{Op: op.Op, Method: fn})
	}
	return plan
}

func (p *SlotPlan) bindTable(cl *ir.ClassIR, defs []SlotDef) []SlotBinding {
	var out []SlotBinding
	for _, def := range defs {
		fn, ok := cl.OwnMethod(def.Method)
		if !ok {
			continue
		}
		if msg := arityMismatch(cl, fn, def.Slot, def.Arity); msg != "" {
			p.Warnings = append(p.Warnings, msg)
			continue
		}
		out = append(out, SlotBinding{SlotDef: def, Method: fn})
	}
	return out
}

func arityMismatch(cl *ir.ClassIR, fn *ir.FuncIR, slot string, arity int) string {
	if fn.Kind != ir.FuncNormal {
		return fmt.Sprintf("%s.%s is not an instance method; %s left unbound", cl.Name, fn.Name, slot)
	}
	if arity == AnyArity {
		return ""
	}
	if got := len(fn.Sig.Args) - 1; got != arity {
		return fmt.Sprintf("%s.%s takes %d argument(s) but %s passes %d; slot left unbound",
			cl.Name, fn.Name, got, slot, arity)
	}
	return ""
}

package memory

import (
	"errors"
	"fmt"

	"github.com/emirpasic/gods/maps/linkedhashmap"

	"nativeclass/pkg/analysis"
	"nativeclass/pkg/ir"
)

// Executable model of the generated class runtime
//
// A Runtime registers class descriptors the way module initialization
// creates type objects, runs the per-class vtable fixups, and then
// executes the lifecycle routines (setup, new, constructor, traverse,
// clear, dealloc) and the native attribute accessors with the same
// ownership rules as the emitted C. Method bodies are supplied as Go
// functions.

// InitStatus is the three-way result of an initializer. The emitted C
// encodes Failure, Success and HardFailure as 0, 1 and 2.
type InitStatus int

const (
	InitFailure InitStatus = iota
	InitSuccess
	InitHardFailure
)

func (s InitStatus) String() string {
	switch s {
	case InitFailure:
		return "failure"
	case InitSuccess:
		return "success"
	case InitHardFailure:
		return "hard failure"
	default:
		return fmt.Sprintf("InitStatus(%d)", int(s))
	}
}

var (
	// ErrDefaultsFailure is returned by Setup when the defaults initializer
	// fails; the partially built instance has been released
	ErrDefaultsFailure = errors.New("attribute defaults initialization failed")

	// ErrInitFailure accompanies an instance whose initializer reported an
	// ordinary failure. The instance is handed back untouched.
	ErrInitFailure = errors.New("initializer failed")

	// ErrInitHardFailure is returned when the initializer requested the
	// release of the half-built instance
	ErrInitHardFailure = errors.New("initializer failed hard")

	// ErrNotConstructible is returned for traits and foreign-base classes
	ErrNotConstructible = errors.New("class has no native constructor")

	// ErrNoImplementation is returned when a dispatched method has no body
	ErrNoImplementation = errors.New("method has no implementation")
)

// AttributeUndefinedError is returned when reading a reference-counted
// attribute that holds no value
type AttributeUndefinedError struct {
	Attr  string
	Class string
}

func (e *AttributeUndefinedError) Error() string {
	return fmt.Sprintf("attribute '%s' of '%s' undefined", e.Attr, e.Class)
}

// ForeignSubclassError is returned when construction is reached through
// a type other than the compiled class itself
type ForeignSubclassError struct {
	Class     string
	Requested string
}

func (e *ForeignSubclassError) Error() string {
	return fmt.Sprintf("interpreted classes cannot inherit from compiled (%s via %s)", e.Class, e.Requested)
}

// MethodFunc is the Go body of a native method
type MethodFunc func(rt *Runtime, self *Object, args []Value) (Value, error)

// InitFunc is the Go body of an initializer or defaults initializer
type InitFunc func(rt *Runtime, self *Object, args []Value) InitStatus

// TypeObject is the runtime type of one class or trait
type TypeObject struct {
	Name   string
	Class  *ir.ClassIR
	Layout *analysis.Layout
	Plan   *analysis.VTablePlan

	// VTable is nil for traits and classes with a foreign base
	VTable      *VTable
	traitTables []*VTable

	fieldIndex map[string]int
	fixedUp    bool
}

// Full reports whether instances are built by the native lifecycle
func (tp *TypeObject) Full() bool {
	return tp.Class.IsFull()
}

// FieldIndex returns the storage slot of an attribute
func (tp *TypeObject) FieldIndex(attr string) (int, bool) {
	i, ok := tp.fieldIndex[attr]
	return i, ok
}

// TraitTable returns the secondary table of one implemented trait
func (tp *TypeObject) TraitTable(trait *ir.ClassIR) *VTable {
	for i, tt := range tp.Plan.Traits {
		if tt.Trait == trait {
			return tp.traitTables[i]
		}
	}
	return nil
}

// Runtime holds the type objects and method bodies of a loaded module
type Runtime struct {
	Heap *Heap

	types   *linkedhashmap.Map // *ir.ClassIR -> *TypeObject
	methods map[*ir.FuncIR]MethodFunc
	inits   map[*ir.FuncIR]InitFunc
}

// NewRuntime creates a runtime allocating from heap, or from a fresh
// heap when nil
func NewRuntime(heap *Heap) *Runtime {
	if heap == nil {
		heap = NewHeap()
	}
	return &Runtime{
		Heap:    heap,
		types:   linkedhashmap.New(),
		methods: make(map[*ir.FuncIR]MethodFunc),
		inits:   make(map[*ir.FuncIR]InitFunc),
	}
}

// Register creates the type object of cl with placeholder header cells
func (rt *Runtime) Register(cl *ir.ClassIR) (*TypeObject, error) {
	if tp, ok := rt.TypeOf(cl); ok {
		return tp, nil
	}
	layout, err := analysis.PlanLayout(cl)
	if err != nil {
		return nil, err
	}
	plan, err := analysis.PlanVTable(cl, layout)
	if err != nil {
		return nil, err
	}
	tp := &TypeObject{
		Name:       cl.Name,
		Class:      cl,
		Layout:     layout,
		Plan:       plan,
		fieldIndex: make(map[string]int),
	}
	for i, f := range layout.Fields {
		tp.fieldIndex[f.Name] = i
	}
	if cl.IsFull() {
		tp.VTable = newVTable(len(plan.Traits), plan.Entries)
		for _, tt := range plan.Traits {
			tp.traitTables = append(tp.traitTables, newVTable(0, tt.Entries))
		}
	}
	rt.types.Put(cl, tp)
	return tp, nil
}

// RegisterModule registers every class of mod in order
func (rt *Runtime) RegisterModule(mod *ir.Module) error {
	for _, cl := range mod.Classes {
		if _, err := rt.Register(cl); err != nil {
			return err
		}
	}
	return nil
}

// TypeOf returns the registered type object of cl
func (rt *Runtime) TypeOf(cl *ir.ClassIR) (*TypeObject, bool) {
	v, ok := rt.types.Get(cl)
	if !ok {
		return nil, false
	}
	return v.(*TypeObject), true
}

// Type finds a registered type object by class name
func (rt *Runtime) Type(name string) (*TypeObject, bool) {
	_, v := rt.types.Find(func(_ interface{}, v interface{}) bool {
		return v.(*TypeObject).Name == name
	})
	if v == nil {
		return nil, false
	}
	return v.(*TypeObject), true
}

func (rt *Runtime) ownFunc(tp *TypeObject, method string) (*ir.FuncIR, error) {
	fn, ok := tp.Class.OwnMethod(method)
	if !ok {
		return nil, fmt.Errorf("memory: %s does not define %s", tp.Name, method)
	}
	return fn, nil
}

// Define supplies the body of a method tp's class defines
func (rt *Runtime) Define(tp *TypeObject, method string, fn MethodFunc) error {
	f, err := rt.ownFunc(tp, method)
	if err != nil {
		return err
	}
	rt.methods[f] = fn
	return nil
}

// DefineInit supplies the body of __init__ or the defaults initializer
func (rt *Runtime) DefineInit(tp *TypeObject, method string, fn InitFunc) error {
	f, err := rt.ownFunc(tp, method)
	if err != nil {
		return err
	}
	rt.inits[f] = fn
	return nil
}

// FixupVTable writes the live trait type objects and secondary tables into
// tp's header. It must run once, after every trait type object exists.
func (rt *Runtime) FixupVTable(tp *TypeObject) error {
	if tp.fixedUp {
		return fmt.Errorf("memory: %s: %w", tp.Name, ErrAlreadyFixedUp)
	}
	if tp.VTable != nil {
		for i, tt := range tp.Plan.Traits {
			traitType, ok := rt.TypeOf(tt.Trait)
			if !ok {
				return fmt.Errorf("memory: %s: trait %s has no type object", tp.Name, tt.Trait.Name)
			}
			tp.VTable.Cells[2*i] = Cell{Kind: CellType, Type: traitType}
			tp.VTable.Cells[2*i+1] = Cell{Kind: CellTable, Table: tp.traitTables[i]}
		}
	}
	tp.fixedUp = true
	return nil
}

// Ready runs the fixup of every registered type not fixed up yet, in
// registration order
func (rt *Runtime) Ready() error {
	it := rt.types.Iterator()
	for it.Next() {
		tp := it.Value().(*TypeObject)
		if tp.fixedUp {
			continue
		}
		if err := rt.FixupVTable(tp); err != nil {
			return err
		}
	}
	return nil
}

// Setup allocates an instance with every field undefined and runs the
// defaults initializer found along the base chain
func (rt *Runtime) Setup(tp *TypeObject) (*Object, error) {
	if !tp.Full() {
		return nil, fmt.Errorf("memory: %s: %w", tp.Name, ErrNotConstructible)
	}
	o, err := rt.Heap.alloc()
	if err != nil {
		return nil, fmt.Errorf("memory: setup %s: %w", tp.Name, err)
	}
	o.Type = tp
	o.vtable = tp.VTable
	o.fields = make([]Value, len(tp.Layout.Fields))
	o.tracked = true
	o.finalize = rt.dealloc

	if fn, _ := tp.Class.GetMethod(ir.DefaultsMethod); fn != nil {
		body, ok := rt.inits[fn]
		if !ok {
			_ = rt.Heap.DecRef(o)
			return nil, fmt.Errorf("memory: %s.%s: %w", tp.Name, fn.Name, ErrNoImplementation)
		}
		if body(rt, o, nil) != InitSuccess {
			_ = rt.Heap.DecRef(o)
			// reported to callers as an allocation failure
			return nil, fmt.Errorf("memory: setup %s: %w: %w", tp.Name, ErrDefaultsFailure, ErrAllocationFailure)
		}
	}
	return o, nil
}

// New is the construction entry reached through the host type protocol.
// Only the compiled class itself may be instantiated this way.
func (rt *Runtime) New(tp, requested *TypeObject) (*Object, error) {
	if requested != tp {
		return nil, &ForeignSubclassError{Class: tp.Name, Requested: requested.Name}
	}
	return rt.Setup(tp)
}

// Construct is the combined constructor used by native call sites.
//
// On an ordinary initializer failure the instance is returned together
// with ErrInitFailure and remains owned by the caller. A hard failure
// releases the instance first.
func (rt *Runtime) Construct(tp *TypeObject, args ...Value) (*Object, error) {
	o, err := rt.Setup(tp)
	if err != nil {
		return nil, err
	}
	fn, _ := tp.Class.GetMethod(ir.InitMethod)
	if fn == nil {
		return o, nil
	}
	body, ok := rt.inits[fn]
	if !ok {
		_ = rt.Heap.DecRef(o)
		return nil, fmt.Errorf("memory: %s.%s: %w", tp.Name, fn.Name, ErrNoImplementation)
	}
	switch body(rt, o, args) {
	case InitSuccess:
		return o, nil
	case InitHardFailure:
		_ = rt.Heap.DecRef(o)
		return nil, fmt.Errorf("memory: construct %s: %w", tp.Name, ErrInitHardFailure)
	default:
		return o, fmt.Errorf("memory: construct %s: %w", tp.Name, ErrInitFailure)
	}
}

func (rt *Runtime) field(o *Object, attr string) (int, analysis.Field, error) {
	if o.Type == nil {
		return 0, analysis.Field{}, fmt.Errorf("memory: %s is not a native instance", o)
	}
	i, ok := o.Type.fieldIndex[attr]
	if !ok {
		return 0, analysis.Field{}, fmt.Errorf("memory: '%s' object has no attribute '%s'", o.Type.Name, attr)
	}
	return i, o.Type.Layout.Fields[i], nil
}

// GetAttr is the native getter. The caller receives a new reference to
// every object the value holds.
func (rt *Runtime) GetAttr(o *Object, attr string) (Value, error) {
	i, f, err := rt.field(o, attr)
	if err != nil {
		return Undefined, err
	}
	v := o.fields[i]
	if f.Type.RefCounted && !v.Defined {
		return Undefined, &AttributeUndefinedError{Attr: attr, Class: o.Type.Name}
	}
	rt.Heap.incRefs(v)
	return v, nil
}

// SetAttr is the native setter. It consumes the caller's references held
// by v and releases the previous value.
func (rt *Runtime) SetAttr(o *Object, attr string, v Value) error {
	i, f, err := rt.field(o, attr)
	if err != nil {
		return err
	}
	if f.Type.IsTuple() && v.Defined && len(v.Items) != len(f.Type.Items) {
		return fmt.Errorf("memory: %s.%s expects %d components, got %d", o.Type.Name, attr, len(f.Type.Items), len(v.Items))
	}
	old := o.fields[i]
	o.fields[i] = v
	rt.Heap.decRefs(old)
	return nil
}

// DelAttr releases an attribute and leaves it undefined
func (rt *Runtime) DelAttr(o *Object, attr string) error {
	return rt.SetAttr(o, attr, Undefined)
}

// Traverse reports every owned reference of o to visit: each defined
// reference-counted field, then the extension slots
func (rt *Runtime) Traverse(o *Object, visit func(*Object)) {
	for _, v := range o.fields {
		for _, ref := range v.Refs() {
			visit(ref)
		}
	}
	if o.Type != nil && o.Type.Layout.HasDict {
		for _, slot := range []*Object{o.Dict, o.WeakList} {
			if slot != nil {
				visit(slot)
			}
		}
	}
}

// Clear breaks cycles through o by releasing every owned reference. Each
// slot is reset before its old contents are released.
func (rt *Runtime) Clear(o *Object) {
	for i, v := range o.fields {
		if len(v.Refs()) == 0 {
			continue
		}
		o.fields[i] = Undefined
		rt.Heap.decRefs(v)
	}
	if o.Type != nil && o.Type.Layout.HasDict {
		dict, weak := o.Dict, o.WeakList
		o.Dict, o.WeakList = nil, nil
		_ = rt.Heap.DecRef(dict)
		_ = rt.Heap.DecRef(weak)
	}
}

func (rt *Runtime) dealloc(o *Object) {
	o.tracked = false
	rt.Clear(o)
}

// VTableStart is the offset of the table pointer o carries from the start
// of its class's primary table
func (o *Object) VTableStart() int {
	if o.vtable == nil {
		return 0
	}
	return o.vtable.Start
}

// Call dispatches method through o's primary table
func (rt *Runtime) Call(o *Object, method string, args ...Value) (Value, error) {
	if o.vtable == nil {
		return Undefined, fmt.Errorf("memory: %s has no dispatch table", o)
	}
	idx, ok := o.Type.Class.VTableIndex(method)
	if !ok {
		return Undefined, fmt.Errorf("memory: %s has no method %s", o.Type.Name, method)
	}
	entry, err := o.vtable.Entry(idx)
	if err != nil {
		return Undefined, err
	}
	return rt.invoke(entry, o, args)
}

// CallTrait dispatches a trait method through the header cells
func (rt *Runtime) CallTrait(o *Object, trait *TypeObject, method string, args ...Value) (Value, error) {
	if o.vtable == nil {
		return Undefined, fmt.Errorf("memory: %s has no dispatch table", o)
	}
	table, err := o.vtable.FindTrait(trait)
	if err != nil {
		return Undefined, fmt.Errorf("memory: %s as %s: %w", o.Type.Name, trait.Name, err)
	}
	idx, ok := trait.Class.VTableIndex(method)
	if !ok {
		return Undefined, fmt.Errorf("memory: trait %s has no method %s", trait.Name, method)
	}
	entry, err := table.Entry(idx)
	if err != nil {
		return Undefined, err
	}
	return rt.invoke(entry, o, args)
}

func (rt *Runtime) invoke(entry ir.VTableEntry, o *Object, args []Value) (Value, error) {
	if entry.Kind == ir.EntryAttr {
		if entry.IsSetter {
			if len(args) != 1 {
				return Undefined, fmt.Errorf("memory: setter %s takes 1 argument", entry)
			}
			return BoolValue(true), rt.SetAttr(o, entry.Name, args[0])
		}
		return rt.GetAttr(o, entry.Name)
	}
	body, ok := rt.methods[entry.Method]
	if !ok {
		return Undefined, fmt.Errorf("memory: %s: %w", entry, ErrNoImplementation)
	}
	return body(rt, o, args)
}

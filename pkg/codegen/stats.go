package codegen

import (
	"fmt"
	"strings"
)

// Stats counts what class generation emitted
type Stats struct {
	// Descriptors
	ClassesEmitted int // non-trait classes
	TraitsEmitted  int

	// Dispatch
	VTableEntries int // primary table entries, header excluded
	TraitTables   int // secondary per-trait tables

	// Protocol slots
	SlotsBound int // slot fields filled from protocol methods
	SideTables int // as_mapping / as_number / as_async tables
	Adapters   int // calling-convention adapters

	// Attribute access
	NativeAccessors int // native getters and setters
	HostAccessors   int // getset functions for fields and properties
	MethodDefs      int // PyMethodDef entries

	LifecycleRoutines int // setup, new, constructor, traverse, clear, dealloc
}

// NewStats creates a new statistics tracker
func NewStats() *Stats {
	return &Stats{}
}

// TotalRoutines returns the number of C functions generated
func (s *Stats) TotalRoutines() int {
	return s.Adapters + s.NativeAccessors + s.HostAccessors + s.LifecycleRoutines +
		s.ClassesEmitted + s.TraitsEmitted // one fixup routine each
}

// String returns a formatted statistics report
func (s *Stats) String() string {
	var sb strings.Builder

	sb.WriteString("=== Class Generation Statistics ===\n\n")

	sb.WriteString("Descriptors:\n")
	sb.WriteString(fmt.Sprintf("  Classes:             %d\n", s.ClassesEmitted))
	sb.WriteString(fmt.Sprintf("  Traits:              %d\n", s.TraitsEmitted))

	sb.WriteString("\nDispatch Tables:\n")
	sb.WriteString(fmt.Sprintf("  VTable entries:      %d\n", s.VTableEntries))
	sb.WriteString(fmt.Sprintf("  Trait tables:        %d\n", s.TraitTables))

	sb.WriteString("\nProtocol Slots:\n")
	sb.WriteString(fmt.Sprintf("  Slots bound:         %d\n", s.SlotsBound))
	sb.WriteString(fmt.Sprintf("  Side tables:         %d\n", s.SideTables))
	sb.WriteString(fmt.Sprintf("  Adapters:            %d\n", s.Adapters))

	sb.WriteString("\nAttribute Access:\n")
	sb.WriteString(fmt.Sprintf("  Native accessors:    %d\n", s.NativeAccessors))
	sb.WriteString(fmt.Sprintf("  Host accessors:      %d\n", s.HostAccessors))
	sb.WriteString(fmt.Sprintf("  Method defs:         %d\n", s.MethodDefs))

	sb.WriteString("\nLifecycle:\n")
	sb.WriteString(fmt.Sprintf("  Routines:            %d\n", s.LifecycleRoutines))

	sb.WriteString(fmt.Sprintf("\n=== Total: %d routines ===\n", s.TotalRoutines()))

	return sb.String()
}

// Summary returns a one-line summary
func (s *Stats) Summary() string {
	if s.ClassesEmitted+s.TraitsEmitted == 0 {
		return "No classes generated"
	}
	return fmt.Sprintf("Generated: %d classes, %d traits, %d vtable entries, %d trait tables, %d slots (total: %d routines)",
		s.ClassesEmitted, s.TraitsEmitted, s.VTableEntries, s.TraitTables, s.SlotsBound, s.TotalRoutines())
}

// Merge combines stats from another Stats
func (s *Stats) Merge(other *Stats) {
	if other == nil {
		return
	}

	s.ClassesEmitted += other.ClassesEmitted
	s.TraitsEmitted += other.TraitsEmitted
	s.VTableEntries += other.VTableEntries
	s.TraitTables += other.TraitTables
	s.SlotsBound += other.SlotsBound
	s.SideTables += other.SideTables
	s.Adapters += other.Adapters
	s.NativeAccessors += other.NativeAccessors
	s.HostAccessors += other.HostAccessors
	s.MethodDefs += other.MethodDefs
	s.LifecycleRoutines += other.LifecycleRoutines
}

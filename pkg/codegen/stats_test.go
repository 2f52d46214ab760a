package codegen

import (
	"strings"
	"testing"
)

func TestStatsSummary(t *testing.T) {
	s := NewStats()
	if got := s.Summary(); got != "No classes generated" {
		t.Errorf("empty summary: %s", got)
	}

	s.ClassesEmitted = 2
	s.TraitsEmitted = 1
	s.Adapters = 3
	s.LifecycleRoutines = 12
	if got := s.TotalRoutines(); got != 18 {
		t.Errorf("expected 18 routines, got %d", got)
	}
	if !strings.Contains(s.Summary(), "2 classes, 1 traits") {
		t.Errorf("unexpected summary: %s", s.Summary())
	}
	if !strings.Contains(s.String(), "=== Total: 18 routines ===") {
		t.Errorf("unexpected report:\n%s", s.String())
	}
}

func TestStatsMerge(t *testing.T) {
	mod := loadShapes(t)
	total := NewStats()
	for _, name := range []string{"Point", "Box"} {
		_, _, stats := generate(t, mod, name)
		total.Merge(stats)
	}
	total.Merge(nil)

	if total.ClassesEmitted != 2 {
		t.Errorf("expected 2 classes, got %d", total.ClassesEmitted)
	}
	if total.TraitTables != 1 {
		t.Errorf("expected 1 trait table, got %d", total.TraitTables)
	}
	// Point: x, y, __init__, norm; Box: label, size
	if total.VTableEntries != 9 {
		t.Errorf("expected 9 vtable entries, got %d", total.VTableEntries)
	}
}

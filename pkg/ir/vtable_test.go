package ir

import "testing"

func TestComputeVTable(t *testing.T) {
	mod := loadShapes(t)
	shape := mod.Class("Shape")
	square := mod.Class("Square")

	t.Run("BaseOrder", func(t *testing.T) {
		want := []string{"Shape.name<get>", "Shape.name<set>", "Shape.sides<get>", "Shape.sides<set>", "Shape.area", "Shape.describe"}
		if len(shape.VTableEntries) != len(want) {
			t.Fatalf("expected %d entries, got %v", len(want), shape.VTableEntries)
		}
		for i, e := range shape.VTableEntries {
			if e.String() != want[i] {
				t.Errorf("entry %d: expected %s, got %s", i, want[i], e)
			}
		}
	})

	t.Run("SubclassPrefix", func(t *testing.T) {
		if len(square.VTableEntries) <= len(shape.VTableEntries) {
			t.Fatalf("Square should extend Shape's table")
		}
		for i, e := range shape.VTableEntries {
			if !square.VTableEntries[i].SameSlot(e) {
				t.Errorf("slot %d differs: %s vs %s", i, square.VTableEntries[i], e)
			}
		}
		area := square.VTableEntries[4]
		if area.Class != square {
			t.Errorf("area should be overridden by Square, got %s", area)
		}
		describe := square.VTableEntries[5]
		if describe.Class != shape {
			t.Errorf("describe should stay inherited, got %s", describe)
		}
	})

	t.Run("Index", func(t *testing.T) {
		idx, ok := square.VTableIndex("scale")
		if !ok || square.VTableEntries[idx].Name != "scale" {
			t.Errorf("scale index wrong: %d %v", idx, ok)
		}
		if idx, _ := square.VTableIndex("side"); !square.VTableEntries[idx+1].IsSetter {
			t.Errorf("attribute setter should follow getter")
		}
	})

	t.Run("Trait", func(t *testing.T) {
		sized := mod.Class("Sized")
		if len(sized.VTableEntries) != 1 || sized.VTableEntries[0].Name != "size" {
			t.Errorf("trait table should hold only size: %v", sized.VTableEntries)
		}
	})
}

func TestSetVTable(t *testing.T) {
	cl := NewClassIR("A", "m")
	fn := &FuncIR{Name: "f", ClassName: "A", Module: "m"}
	cl.Methods.Put("f", fn)
	cl.SetVTable([]VTableEntry{MethodEntry(cl, fn)})
	if err := ComputeVTable(cl); err != nil {
		t.Fatal(err)
	}
	if idx, ok := cl.VTableIndex("f"); !ok || idx != 0 {
		t.Errorf("expected f at 0")
	}
}

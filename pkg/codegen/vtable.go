package codegen

import (
	"fmt"

	"nativeclass/pkg/ir"
)

func (g *classGen) vtableName() string {
	return g.prefix + "_vtable"
}

func (g *classGen) traitVTableName(trait *ir.ClassIR) string {
	return fmt.Sprintf("%s_%s_trait_vtable", g.prefix, g.names.NamePrefix(trait))
}

// vtableExpr is the table pointer stored in instances. Call sites index
// from here; the trait header sits at negative offsets.
func (g *classGen) vtableExpr() string {
	if n := g.vtable.HeaderLen(); n > 0 {
		return fmt.Sprintf("%s + %d", g.vtableName(), n)
	}
	return g.vtableName()
}

func (g *classGen) vtableItem(entry ir.VTableEntry) string {
	if entry.Kind == ir.EntryMethod {
		return fmt.Sprintf("(CPyVTableItem)%s,", g.names.NativeName(entry.Method))
	}
	if entry.IsSetter {
		return fmt.Sprintf("(CPyVTableItem)%s,", g.names.NativeSetterName(entry.Class, entry.Name))
	}
	return fmt.Sprintf("(CPyVTableItem)%s,", g.names.NativeGetterName(entry.Class, entry.Name))
}

// generateVTables emits one secondary table per implemented trait and
// then the primary table. Header cells are placeholders until the fixup
// routine runs.
func (g *classGen) generateVTables() {
	e := g.e
	for _, tt := range g.vtable.Traits {
		e.Emit("static CPyVTableItem %s[] = {", g.traitVTableName(tt.Trait))
		for _, entry := range tt.Entries {
			e.EmitLine(g.vtableItem(entry))
		}
		if len(tt.Entries) == 0 {
			e.EmitLine("NULL")
		}
		e.EmitLine("};")
		g.stats.TraitTables++
	}

	e.Emit("static CPyVTableItem %s[] = {", g.vtableName())
	if len(g.vtable.Traits) > 0 {
		e.EmitLine("/* Array of trait vtables */")
		for _, tt := range g.vtable.Traits {
			e.Emit("NULL, NULL, /* %s */", tt.Trait.Name)
		}
		e.EmitLine("/* Start of real vtable */")
	}
	for _, entry := range g.vtable.Entries {
		e.EmitLine(g.vtableItem(entry))
	}
	if g.vtable.Len() == 0 {
		e.EmitLine("NULL")
	}
	e.EmitLine("};")
	g.stats.VTableEntries += len(g.vtable.Entries)
}

func (g *classGen) fixupName() string {
	return NativePrefix + g.prefix + "_trait_vtable_setup"
}

// generateTraitVTableSetup emits the per-class fixup routine. It writes
// each trait's live type object and secondary table into the header and
// must run once, after every type object exists and before the first
// instance is built.
func (g *classGen) generateTraitVTableSetup() {
	e := g.e
	e.EmitLine("static bool")
	e.Emit("%s(void)", g.fixupName())
	e.EmitLine("{")
	if g.full {
		for i, tt := range g.vtable.Traits {
			e.Emit("%s[%d] = (CPyVTableItem)%s;", g.vtableName(), 2*i, g.names.TypeStructName(tt.Trait))
			e.Emit("%s[%d] = (CPyVTableItem)%s;", g.vtableName(), 2*i+1, g.traitVTableName(tt.Trait))
		}
	}
	e.EmitLine("return 1;")
	e.EmitLine("}")
}

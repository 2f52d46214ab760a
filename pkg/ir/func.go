package ir

// FuncKind distinguishes instance, static and class methods
type FuncKind int

const (
	FuncNormal FuncKind = iota
	FuncStatic
	FuncClass
)

// RuntimeArg is a single formal parameter
type RuntimeArg struct {
	Name string
	Type *RType
}

// FuncSignature is the native calling signature of a function
type FuncSignature struct {
	Args []RuntimeArg
	Ret  *RType
}

// FuncIR describes a compiled function or method. Bodies are produced
// elsewhere; only the declaration is needed to wire pointers.
type FuncIR struct {
	Name      string
	ClassName string // empty for module-level functions
	Module    string
	Sig       FuncSignature
	Kind      FuncKind

	IsPropGetter bool
	IsPropSetter bool
}

// ShortName is the unmangled C-level name before module prefixing
func (f *FuncIR) ShortName() string {
	if f.ClassName == "" {
		return f.Name
	}
	return f.ClassName + "___" + f.Name
}

// Property pairs a getter with an optional setter
type Property struct {
	Getter *FuncIR
	Setter *FuncIR
}

// Package loader resolves one or more xil.Image module files into a linked
// graph of runtime types and methods (component F): it interns strings,
// instantiates types, resolves cross-module references, decodes
// signatures, lays out fields and vtables, and binds foreign/runtime
// methods. The output is consumed by xil/vmrt to run a program.
package loader

import "github.com/xi-lang/xil"

// BuiltinKind tags a BuiltinType's variant. It extends xil.EleKind with
// the two runtime-only variants the loader resolves Class/ValueType
// tokens into.
type BuiltinKind int

const (
	BuiltinVoid BuiltinKind = iota
	BuiltinBool
	BuiltinChar
	BuiltinI1
	BuiltinU1
	BuiltinI2
	BuiltinU2
	BuiltinI4
	BuiltinU4
	BuiltinI8
	BuiltinU8
	BuiltinR4
	BuiltinR8
	BuiltinString
	BuiltinByRef
	BuiltinSZArray
	BuiltinClass // resolved reference type: Inner is unused, Class is set
	BuiltinValue // resolved value type: Inner is unused, Class is set
)

// BuiltinType is the loader's resolved form of the signature grammar
// (§3.4): EleKind's Class/ValueType element kinds are replaced by a direct
// pointer to the LinkedType they name.
type BuiltinType struct {
	Kind  BuiltinKind
	Inner *BuiltinType // ByRef, SZArray
	Class *LinkedType  // Class, ValueType
}

// Size returns the in-memory footprint, in bytes, of a value of this
// type when stored inline (as an instance field, local, or eval-stack
// Value payload). Reference-shaped types (Class, SZArray, String) are a
// single pointer width; ByRef is likewise pointer width.
func (t BuiltinType) Size(ptrSize int) int {
	switch t.Kind {
	case BuiltinBool, BuiltinI1, BuiltinU1:
		return 1
	case BuiltinI2, BuiltinU2, BuiltinChar:
		return 2
	case BuiltinI4, BuiltinU4, BuiltinR4:
		return 4
	case BuiltinI8, BuiltinU8, BuiltinR8:
		return 8
	case BuiltinValue:
		if t.Class != nil {
			return t.Class.BasicInstanceSize
		}
		return 0
	default: // Class, String, SZArray, ByRef; Void also lands here
		return ptrSize
	}
}

// MethodImplKind selects how a LinkedMethod's body is realized (§3.4).
type MethodImplKind int

const (
	ImplIL MethodImplKind = iota
	ImplRuntime
	ImplForeign
)

// RuntimeFunc is the signature every VM-internal call (component F step 7)
// is bound to. args/ret are raw eval-stack-shaped slot bytes; xil/vmrt
// defines the concrete marshalling.
type RuntimeFunc func(args [][]byte) ([]byte, error)

// MethodImpl is the tagged union of how a method body is provided.
type MethodImpl struct {
	Kind MethodImplKind

	// ImplIL
	Code xil.CodeRow

	// ImplRuntime
	Runtime RuntimeFunc

	// ImplForeign
	ForeignScope  string // ModuleRef name; the bridge resolves it on the first call, not at load time
	ForeignSymbol string
}

// EEState is the subset of LinkedType's execution-engine bookkeeping
// (§3.4) that isn't structural: an Initialized flag, which neither the
// loader nor xil/vmrt sets (static initializers run once, in Interp.Run),
// and whether the type behaves as a value type (per Options.IsValueType).
type EEState struct {
	Initialized bool
	IsValue     bool
}

// LinkedField is a field after layout (§4.4 step 6).
type LinkedField struct {
	Parent *LinkedType
	Name   string
	Flags  uint32
	Type   BuiltinType
	Offset int // instance offset, or offset within Parent.StaticArea if static
	Static bool
}

// LinkedMethod is a method after signature decode and layout (§4.4 steps
// 4, 6, 7).
type LinkedMethod struct {
	Parent  *LinkedType
	Name    string
	SigKey  string // §6.3 canonical signature string, used as the methods map key
	HasThis bool
	Ret     BuiltinType
	Params  []BuiltinType
	Locals  []BuiltinType // declared local-variable shape, from the body's standalone-sig
	Flags   uint32
	Impl    MethodImpl

	VtblSlot        int // -1 if never assigned a slot (static methods have none)
	ArgsFrameSize   int
	LocalsFrameSize int
}

// LinkedType is a type after the full loader pipeline (§3.4).
type LinkedType struct {
	Name    string // simple name, as declared
	Flags   uint32
	Extends *LinkedType
	Module  *LoadedImage

	Fields  map[string]*LinkedField
	Methods map[string]*LinkedMethod // keyed by §6.3 signature string

	BasicInstanceSize int
	StaticArea        []byte
	Vtbl              []*LinkedMethod

	EE EEState

	// fieldOrder/methodOrder preserve declaration order for layout and
	// for diagnostics; Fields/Methods above are keyed maps for lookup.
	fieldOrder  []string
	methodOrder []string
}

// Fullname is the type's module-qualified name, used as the §6.3 "O"/"N"
// tag payload and for ValueType-predicate matching.
func (t *LinkedType) Fullname() string {
	if t.Module == nil {
		return t.Name
	}
	return t.Module.Name + "::" + t.Name
}

// LoadedImage is the loader's per-image bookkeeping (§3.4), keyed by the
// image's canonical module name.
type LoadedImage struct {
	Name  string
	Image *xil.Image

	// StrPool maps this image's local str_heap index to the interned,
	// process-wide string (phase 1). Since strings are immutable and
	// compared by value, "interning" here means sharing Go string values
	// rather than maintaining a separate global table indirection.
	StrPool []string

	TypeDefList []*LinkedType // indexed like Image.TypeDefs
	TypeRefResolved []*LinkedType // indexed like Image.TypeRefs

	MethodList []*LinkedMethod // indexed like Image.Methods
	FieldList  []*LinkedField  // indexed like Image.Fields

	// MemberRefResolved holds, per Image.MemberRefs entry, either a
	// *LinkedField or a *LinkedMethod.
	MemberRefResolved []interface{}

	UsrStrInterned []*string // not populated: vmrt's ldstr keeps its own per-image cache (Interp.usrStrs)
}

package xil

// Table row definitions (§3.1). Field-level comments describe the column's
// meaning the way the corpus's own metadata-table rows are documented, even
// where (unlike the corpus) the column is an index into one of this
// format's own heaps/tables rather than a generic metadata token.

// ModuleRow is the image's single Module entry (tag Module, §3.3).
type ModuleRow struct {
	// Name is an index into str_heap.
	Name uint32
	// Entrypoint is a 1-based index into code[], or 0 if this module
	// declares no entry method (a library image).
	Entrypoint uint32
}

func (m ModuleRow) encode(w *writer) {
	w.u32(m.Name)
	w.u32(m.Entrypoint)
}

func decodeModuleRow(r *reader) (ModuleRow, error) {
	var m ModuleRow
	var err error
	if m.Name, err = r.u32(); err != nil {
		return m, err
	}
	if m.Entrypoint, err = r.u32(); err != nil {
		return m, err
	}
	return m, nil
}

// ModuleRefRow names another image this module depends on (tag ModuleRef).
type ModuleRefRow struct {
	// Name is an index into str_heap; resolved to a canonical image name
	// by the loader.
	Name uint32
}

func (m ModuleRefRow) encode(w *writer) { w.u32(m.Name) }

func decodeModuleRefRow(r *reader) (ModuleRefRow, error) {
	n, err := r.u32()
	return ModuleRefRow{Name: n}, err
}

// TypeDefRow is a type defined in this module (tag TypeDef). Field and
// method ownership is encoded by range: this row owns fields[Fields,
// next.Fields) and methods[Methods, next.Methods), per §3.1/§4.2.
type TypeDefRow struct {
	Flags uint32
	// Name is an index into str_heap.
	Name uint32
	// Extends is a token (TypeDef or TypeRef) naming the base type, or
	// NullToken for a type with no explicit base.
	Extends Token
	// Fields is the 1-based index of the first field[] row this type
	// owns.
	Fields uint32
	// Methods is the 1-based index of the first method[] row this type
	// owns.
	Methods uint32
}

func (t TypeDefRow) encode(w *writer) {
	w.u32(t.Flags)
	w.u32(t.Name)
	writeToken(w, t.Extends)
	w.u32(t.Fields)
	w.u32(t.Methods)
}

func decodeTypeDefRow(r *reader) (TypeDefRow, error) {
	var t TypeDefRow
	var err error
	if t.Flags, err = r.u32(); err != nil {
		return t, err
	}
	if t.Name, err = r.u32(); err != nil {
		return t, err
	}
	if t.Extends, err = readToken(r); err != nil {
		return t, err
	}
	if t.Fields, err = r.u32(); err != nil {
		return t, err
	}
	if t.Methods, err = r.u32(); err != nil {
		return t, err
	}
	return t, nil
}

// TypeRefRow names a type defined in another module (tag TypeRef).
type TypeRefRow struct {
	// ResolutionScope is a ModuleRef token (naming the image to search)
	// or a TypeRef token (naming an enclosing type, for nested types).
	ResolutionScope Token
	// Name is an index into str_heap.
	Name uint32
}

func (t TypeRefRow) encode(w *writer) {
	writeToken(w, t.ResolutionScope)
	w.u32(t.Name)
}

func decodeTypeRefRow(r *reader) (TypeRefRow, error) {
	var t TypeRefRow
	var err error
	if t.ResolutionScope, err = readToken(r); err != nil {
		return t, err
	}
	if t.Name, err = r.u32(); err != nil {
		return t, err
	}
	return t, nil
}

// TypeSpecRow is a constructed-type signature (tag TypeSpec) — the wire
// format's table order (§6.1) includes typespec[] but §3.1 leaves its row
// shape unspecified; this mirrors the minimal ECMA-335 TypeSpec row, a
// single signature blob index, since every use of a TypeSpec in this
// toolchain is a SZArray/ByRef/ValueType EleType that needs no extra
// column.
type TypeSpecRow struct {
	// Sig is an index into blob_heap of an EleType-shaped signature.
	Sig uint32
}

func (t TypeSpecRow) encode(w *writer) { w.u32(t.Sig) }

func decodeTypeSpecRow(r *reader) (TypeSpecRow, error) {
	s, err := r.u32()
	return TypeSpecRow{Sig: s}, err
}

// FieldRow is a field definition (tag Field), owned by exactly one
// TypeDef via the containing type's Fields range.
type FieldRow struct {
	Flags uint32
	// Name is an index into str_heap.
	Name uint32
	// Sig is an index into blob_heap of a field signature (§3.2).
	Sig uint32
}

func (f FieldRow) encode(w *writer) {
	w.u32(f.Flags)
	w.u32(f.Name)
	w.u32(f.Sig)
}

func decodeFieldRow(r *reader) (FieldRow, error) {
	var f FieldRow
	var err error
	if f.Flags, err = r.u32(); err != nil {
		return f, err
	}
	if f.Name, err = r.u32(); err != nil {
		return f, err
	}
	if f.Sig, err = r.u32(); err != nil {
		return f, err
	}
	return f, nil
}

// MethodRow is a method definition (tag Method), owned by exactly one
// TypeDef via the containing type's Methods range.
type MethodRow struct {
	Flags     uint32
	ImplFlags uint32
	// Name is an index into str_heap.
	Name uint32
	// Sig is an index into blob_heap of a method signature (§3.2).
	Sig uint32
	// FirstParam is the 1-based index of the first param[] row belonging
	// to this method (0 if none declare attributes).
	FirstParam uint32
	// Body is a 1-based index into code[], or 0 for abstract/foreign/
	// runtime methods.
	Body uint32
}

func (m MethodRow) encode(w *writer) {
	w.u32(m.Flags)
	w.u32(m.ImplFlags)
	w.u32(m.Name)
	w.u32(m.Sig)
	w.u32(m.FirstParam)
	w.u32(m.Body)
}

func decodeMethodRow(r *reader) (MethodRow, error) {
	var m MethodRow
	var err error
	if m.Flags, err = r.u32(); err != nil {
		return m, err
	}
	if m.ImplFlags, err = r.u32(); err != nil {
		return m, err
	}
	if m.Name, err = r.u32(); err != nil {
		return m, err
	}
	if m.Sig, err = r.u32(); err != nil {
		return m, err
	}
	if m.FirstParam, err = r.u32(); err != nil {
		return m, err
	}
	if m.Body, err = r.u32(); err != nil {
		return m, err
	}
	return m, nil
}

// MemberRefRow is a reference to a field or method defined elsewhere (tag
// MemberRef).
type MemberRefRow struct {
	// Parent is a tagged token: TypeDef, TypeRef, ModuleRef, or Method.
	Parent Token
	// Name is an index into str_heap.
	Name uint32
	// Sig is an index into blob_heap of a field or method signature.
	Sig uint32
}

func (m MemberRefRow) encode(w *writer) {
	writeToken(w, m.Parent)
	w.u32(m.Name)
	w.u32(m.Sig)
}

func decodeMemberRefRow(r *reader) (MemberRefRow, error) {
	var m MemberRefRow
	var err error
	if m.Parent, err = readToken(r); err != nil {
		return m, err
	}
	if m.Name, err = r.u32(); err != nil {
		return m, err
	}
	if m.Sig, err = r.u32(); err != nil {
		return m, err
	}
	return m, nil
}

// ParamRow attaches attributes (and, for sequence 0, return-value
// attributes) to a method's parameter (tag Param).
type ParamRow struct {
	Flags uint32
	// Sequence is 0 for return-value attributes, or the 1-based
	// parameter position.
	Sequence uint32
	// Name is an index into str_heap.
	Name uint32
}

func (p ParamRow) encode(w *writer) {
	w.u32(p.Flags)
	w.u32(p.Sequence)
	w.u32(p.Name)
}

func decodeParamRow(r *reader) (ParamRow, error) {
	var p ParamRow
	var err error
	if p.Flags, err = r.u32(); err != nil {
		return p, err
	}
	if p.Sequence, err = r.u32(); err != nil {
		return p, err
	}
	if p.Name, err = r.u32(); err != nil {
		return p, err
	}
	return p, nil
}

// ImplMapRow binds a field or method to a symbol in a foreign module (tag
// ImplMap).
type ImplMapRow struct {
	// Member is a tagged token: Field or Method.
	Member Token
	// Name is an index into str_heap naming the foreign symbol.
	Name uint32
	// Scope is a 1-based index into modref[], naming the foreign module.
	Scope uint32
	Flags uint32
}

func (i ImplMapRow) encode(w *writer) {
	writeToken(w, i.Member)
	w.u32(i.Name)
	w.u32(i.Scope)
	w.u32(i.Flags)
}

func decodeImplMapRow(r *reader) (ImplMapRow, error) {
	var i ImplMapRow
	var err error
	if i.Member, err = readToken(r); err != nil {
		return i, err
	}
	if i.Name, err = r.u32(); err != nil {
		return i, err
	}
	if i.Scope, err = r.u32(); err != nil {
		return i, err
	}
	if i.Flags, err = r.u32(); err != nil {
		return i, err
	}
	return i, nil
}

// StandaloneSigRow holds a local-variable signature for a method body
// (tag StandaloneSig).
type StandaloneSigRow struct {
	// Sig is an index into blob_heap of a local-vars signature (§3.2).
	Sig uint32
}

func (s StandaloneSigRow) encode(w *writer) { w.u32(s.Sig) }

func decodeStandaloneSigRow(r *reader) (StandaloneSigRow, error) {
	s, err := r.u32()
	return StandaloneSigRow{Sig: s}, err
}

// CodeRow is a fat method body (§3.1 "Code").
type CodeRow struct {
	MaxStack uint16
	// Locals is a 1-based index into standalone_sig[], or 0 if the
	// method declares no locals.
	Locals   uint32
	Bytecode []byte
}

func (c CodeRow) encode(w *writer) {
	w.u16(c.MaxStack)
	w.u32(c.Locals)
	w.u32(uint32(len(c.Bytecode)))
	w.rawBytes(c.Bytecode)
}

func decodeCodeRow(r *reader) (CodeRow, error) {
	var c CodeRow
	var err error
	if c.MaxStack, err = r.u16(); err != nil {
		return c, err
	}
	if c.Locals, err = r.u32(); err != nil {
		return c, err
	}
	n, err := r.u32()
	if err != nil {
		return c, err
	}
	b, err := r.bytes(int(n))
	if err != nil {
		return c, err
	}
	c.Bytecode = append([]byte(nil), b...)
	return c, nil
}

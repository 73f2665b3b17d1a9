package loader

import (
	"github.com/xi-lang/xil"
)

// internStrings is phase 1. Every string in this implementation is an
// immutable Go string compared by value, so "interning into a global
// process-wide pool" reduces to giving the image's local str_heap a
// stable, directly indexable home — no separate dedup table is needed
// for correctness, only for the identity-equality tokens use.
func internStrings(li *LoadedImage) {
	li.StrPool = append([]string(nil), li.Image.StrHeap...)
}

// instantiateTypeDefs is phase 2: allocate a LinkedType per TypeDef row
// with empty field/method maps; resolution of bases and members happens
// in later phases.
func instantiateTypeDefs(li *LoadedImage) {
	li.TypeDefList = make([]*LinkedType, len(li.Image.TypeDefs))
	for i, td := range li.Image.TypeDefs {
		name, _ := strAt(li.Image, td.Name)
		li.TypeDefList[i] = &LinkedType{
			Name:    name,
			Flags:   td.Flags,
			Module:  li,
			Fields:  map[string]*LinkedField{},
			Methods: map[string]*LinkedMethod{},
		}
	}
}

// resolveTypeRefs is phase 3: resolve every TypeRef row to the LinkedType
// it names, following the resolution-scope chain for nested types.
// Unresolved typerefs are fatal.
func resolveTypeRefs(li *LoadedImage, loaded map[string]*LoadedImage) error {
	n := len(li.Image.TypeRefs)
	li.TypeRefResolved = make([]*LinkedType, n)
	resolving := make([]bool, n)

	var resolve func(idx int) (*LinkedType, error)
	resolve = func(idx int) (*LinkedType, error) {
		if li.TypeRefResolved[idx] != nil {
			return li.TypeRefResolved[idx], nil
		}
		if resolving[idx] {
			return nil, linkErr(li.Name, "typeref", ErrModuleCycle)
		}
		resolving[idx] = true

		tr := li.Image.TypeRefs[idx]
		name, err := strAt(li.Image, tr.Name)
		if err != nil {
			return nil, linkErr(li.Name, "typeref.name", err)
		}

		var searchSpace []*LinkedType
		switch tr.ResolutionScope.Tag() {
		case xil.TagModuleRef:
			modIdx := tr.ResolutionScope.Index()
			if modIdx == 0 || int(modIdx) > len(li.Image.ModRefs) {
				return nil, linkErr(li.Name, "typeref.scope", xil.ErrNullToken)
			}
			modName, err := strAt(li.Image, li.Image.ModRefs[modIdx-1].Name)
			if err != nil {
				return nil, linkErr(li.Name, "typeref.scope", err)
			}
			target, ok := loaded[modName]
			if !ok {
				return nil, linkErr(li.Name, "typeref.scope:"+modName, ErrModuleNotFound)
			}
			searchSpace = target.TypeDefList
		case xil.TagTypeRef:
			parentIdx := int(tr.ResolutionScope.Index()) - 1
			if parentIdx < 0 || parentIdx >= n {
				return nil, linkErr(li.Name, "typeref.scope", xil.ErrNullToken)
			}
			parent, err := resolve(parentIdx)
			if err != nil {
				return nil, err
			}
			// Nested-type search: the enclosing type's own module, by
			// simple name. This toolchain does not model a distinct
			// outer/inner relationship beyond name lookup within the
			// enclosing type's module.
			if parent.Module != nil {
				searchSpace = parent.Module.TypeDefList
			}
		default:
			return nil, linkErr(li.Name, "typeref.scope", ErrTypeRefUnresolved)
		}

		for _, t := range searchSpace {
			if t.Name == name {
				li.TypeRefResolved[idx] = t
				return t, nil
			}
		}
		return nil, linkErr(li.Name, "typeref:"+name, ErrTypeRefUnresolved)
	}

	for idx := range li.Image.TypeRefs {
		if _, err := resolve(idx); err != nil {
			return err
		}
	}
	return nil
}

// resolveTypeToken resolves a TypeDef/TypeRef-tagged token within li's
// own context (a TypeDef token indexes li's own table; a TypeRef token
// indexes li.TypeRefResolved, already populated by resolveTypeRefs).
func resolveTypeToken(li *LoadedImage, tok xil.Token) (*LinkedType, error) {
	if tok.IsNull() {
		return nil, nil
	}
	switch tok.Tag() {
	case xil.TagTypeDef:
		idx := int(tok.Index()) - 1
		if idx < 0 || idx >= len(li.TypeDefList) {
			return nil, xil.ErrNullToken
		}
		return li.TypeDefList[idx], nil
	case xil.TagTypeRef:
		idx := int(tok.Index()) - 1
		if idx < 0 || idx >= len(li.TypeRefResolved) {
			return nil, xil.ErrNullToken
		}
		return li.TypeRefResolved[idx], nil
	default:
		return nil, ErrTypeRefUnresolved
	}
}

// resolveExtends links each TypeDef's Extends token to the LinkedType it
// names, now that both TypeDef and TypeRef tables are addressable.
func resolveExtends(li *LoadedImage, loaded map[string]*LoadedImage) error {
	for i, td := range li.Image.TypeDefs {
		if td.Extends.IsNull() {
			continue
		}
		base, err := resolveTypeToken(li, td.Extends)
		if err != nil {
			return linkErr(li.Name, "typedef.extends", err)
		}
		li.TypeDefList[i].Extends = base
	}
	return nil
}

// convertEleType turns a wire EleType into a loader BuiltinType,
// resolving Class/ValueType tokens through resolveTypeToken.
func convertEleType(et xil.EleType, li *LoadedImage) (BuiltinType, error) {
	switch et.Kind {
	case xil.EleVoid:
		return BuiltinType{Kind: BuiltinVoid}, nil
	case xil.EleBool:
		return BuiltinType{Kind: BuiltinBool}, nil
	case xil.EleChar:
		return BuiltinType{Kind: BuiltinChar}, nil
	case xil.EleI1:
		return BuiltinType{Kind: BuiltinI1}, nil
	case xil.EleU1:
		return BuiltinType{Kind: BuiltinU1}, nil
	case xil.EleI2:
		return BuiltinType{Kind: BuiltinI2}, nil
	case xil.EleU2:
		return BuiltinType{Kind: BuiltinU2}, nil
	case xil.EleI4:
		return BuiltinType{Kind: BuiltinI4}, nil
	case xil.EleU4:
		return BuiltinType{Kind: BuiltinU4}, nil
	case xil.EleI8:
		return BuiltinType{Kind: BuiltinI8}, nil
	case xil.EleU8:
		return BuiltinType{Kind: BuiltinU8}, nil
	case xil.EleR4:
		return BuiltinType{Kind: BuiltinR4}, nil
	case xil.EleR8:
		return BuiltinType{Kind: BuiltinR8}, nil
	case xil.EleString:
		return BuiltinType{Kind: BuiltinString}, nil
	case xil.EleByRef:
		inner, err := convertEleType(*et.Inner, li)
		if err != nil {
			return BuiltinType{}, err
		}
		return BuiltinType{Kind: BuiltinByRef, Inner: &inner}, nil
	case xil.EleSZArray:
		inner, err := convertEleType(*et.Inner, li)
		if err != nil {
			return BuiltinType{}, err
		}
		return BuiltinType{Kind: BuiltinSZArray, Inner: &inner}, nil
	case xil.EleClass:
		lt, err := resolveTypeToken(li, et.Tok)
		if err != nil {
			return BuiltinType{}, err
		}
		return BuiltinType{Kind: BuiltinClass, Class: lt}, nil
	case xil.EleValueType:
		lt, err := resolveTypeToken(li, et.Tok)
		if err != nil {
			return BuiltinType{}, err
		}
		return BuiltinType{Kind: BuiltinValue, Class: lt}, nil
	case xil.EleGenericInst:
		return BuiltinType{}, ErrGenericsUnsupported
	default:
		return BuiltinType{}, ErrTypeRefUnresolved
	}
}

// fieldRange/methodRange compute the [start, end) row range a TypeDef
// owns, per §4.2: the exclusive bound is the next TypeDef's first_* or
// the table length.
func fieldRange(li *LoadedImage, typeIdx int) (int, int) {
	start := int(li.Image.TypeDefs[typeIdx].Fields)
	end := len(li.Image.Fields) + 1
	if typeIdx+1 < len(li.Image.TypeDefs) {
		end = int(li.Image.TypeDefs[typeIdx+1].Fields)
	}
	return start, end
}

func methodRange(li *LoadedImage, typeIdx int) (int, int) {
	start := int(li.Image.TypeDefs[typeIdx].Methods)
	end := len(li.Image.Methods) + 1
	if typeIdx+1 < len(li.Image.TypeDefs) {
		end = int(li.Image.TypeDefs[typeIdx+1].Methods)
	}
	return start, end
}

// decodeSignatures is phase 4: parse every field and method signature
// blob, attach the decoded LinkedField/LinkedMethod to its owning
// TypeDef (via the §4.2 range convention), and compute each method's
// frame sizes.
func decodeSignatures(li *LoadedImage, opts *Options) error {
	li.FieldList = make([]*LinkedField, len(li.Image.Fields))
	li.MethodList = make([]*LinkedMethod, len(li.Image.Methods))

	for i, row := range li.Image.Fields {
		name, err := strAt(li.Image, row.Name)
		if err != nil {
			return linkErr(li.Name, "field.name", err)
		}
		blob, err := blobAt(li.Image, row.Sig)
		if err != nil {
			return linkErr(li.Name, "field.sig", err)
		}
		fsig, err := xil.DecodeFieldSig(blob)
		if err != nil {
			return linkErr(li.Name, "field.sig", err)
		}
		ty, err := convertEleType(fsig.Type, li)
		if err != nil {
			return linkErr(li.Name, "field.sig", err)
		}
		li.FieldList[i] = &LinkedField{
			Name:   name,
			Flags:  row.Flags,
			Type:   ty,
			Static: row.Flags&xil.FieldStatic != 0,
		}
	}

	for i, row := range li.Image.Methods {
		name, err := strAt(li.Image, row.Name)
		if err != nil {
			return linkErr(li.Name, "method.name", err)
		}
		blob, err := blobAt(li.Image, row.Sig)
		if err != nil {
			return linkErr(li.Name, "method.sig", err)
		}
		msig, err := xil.DecodeMethodSig(blob)
		if err != nil {
			return linkErr(li.Name, "method.sig", err)
		}
		ret, err := convertEleType(msig.Ret, li)
		if err != nil {
			return linkErr(li.Name, "method.sig.ret", err)
		}
		params := make([]BuiltinType, len(msig.Params))
		for j, p := range msig.Params {
			params[j], err = convertEleType(p, li)
			if err != nil {
				return linkErr(li.Name, "method.sig.param", err)
			}
		}
		sigKey, err := buildSigKey(msig.HasThis, params)
		if err != nil {
			return linkErr(li.Name, "method.sig", err)
		}

		lm := &LinkedMethod{
			Name:    name,
			SigKey:  sigKey,
			HasThis: msig.HasThis,
			Ret:     ret,
			Params:  params,
			Flags:   row.Flags,
			VtblSlot: -1,
		}

		frame := 0
		if msig.HasThis {
			frame += ptrSize
		}
		for _, p := range params {
			frame += align8(p.Size(ptrSize))
		}
		lm.ArgsFrameSize = frame

		if row.Body != 0 {
			code, err := codeAt(li.Image, row.Body)
			if err != nil {
				return linkErr(li.Name, "method.body", err)
			}
			lm.Impl = MethodImpl{Kind: ImplIL, Code: code}
			locals := 0
			if code.Locals != 0 {
				svRow, err := standaloneSigAt(li.Image, code.Locals)
				if err != nil {
					return linkErr(li.Name, "method.locals", err)
				}
				lvBlob, err := blobAt(li.Image, svRow.Sig)
				if err != nil {
					return linkErr(li.Name, "method.locals", err)
				}
				lv, err := xil.DecodeLocalVarsSig(lvBlob)
				if err != nil {
					return linkErr(li.Name, "method.locals", err)
				}
				lm.Locals = make([]BuiltinType, len(lv.Vars))
				for i, v := range lv.Vars {
					bt, err := convertEleType(v, li)
					if err != nil {
						return linkErr(li.Name, "method.locals", err)
					}
					lm.Locals[i] = bt
					locals += align8(bt.Size(ptrSize))
				}
			}
			lm.LocalsFrameSize = locals
		} else if xil.CodeType(row.ImplFlags) == xil.MethodImplRuntime {
			lm.Impl = MethodImpl{Kind: ImplRuntime}
		}
		// Foreign bindings are attached in phase 5 from the ImplMap
		// table; abstract methods are left with a zero MethodImpl.

		li.MethodList[i] = lm
	}

	for i := range li.Image.TypeDefs {
		t := li.TypeDefList[i]
		fs, fe := fieldRange(li, i)
		for fi := fs; fi < fe; fi++ {
			if fi < 1 || fi > len(li.FieldList) {
				return linkErr(li.Name, "typedef.fields", xil.ErrTableOrder)
			}
			f := li.FieldList[fi-1]
			f.Parent = t
			t.Fields[f.Name] = f
			t.fieldOrder = append(t.fieldOrder, f.Name)
		}
		ms, me := methodRange(li, i)
		for mi := ms; mi < me; mi++ {
			if mi < 1 || mi > len(li.MethodList) {
				return linkErr(li.Name, "typedef.methods", xil.ErrTableOrder)
			}
			m := li.MethodList[mi-1]
			m.Parent = t
			t.Methods[m.SigKey] = m
			t.methodOrder = append(t.methodOrder, m.SigKey)
		}
	}

	return nil
}

// align8 rounds n up to an 8-byte boundary, matching the "8-byte
// granularity" frame-size rule of §4.4 step 4; a non-positive n yields 8,
// so an empty frame still occupies one 8-byte unit.
func align8(n int) int {
	if n <= 0 {
		return 8
	}
	return (n + 7) &^ 7
}

// resolveMemberRefs is phase 5: resolve every MemberRef to the field or
// method it names in its parent type, and process the ImplMap table,
// marking directly-named methods Foreign.
func resolveMemberRefs(li *LoadedImage, loaded map[string]*LoadedImage) error {
	li.MemberRefResolved = make([]interface{}, len(li.Image.MemberRefs))
	for i, mr := range li.Image.MemberRefs {
		name, err := strAt(li.Image, mr.Name)
		if err != nil {
			return linkErr(li.Name, "memberref.name", err)
		}
		blob, err := blobAt(li.Image, mr.Sig)
		if err != nil {
			return linkErr(li.Name, "memberref.sig", err)
		}

		parentType, err := memberRefParentType(li, mr.Parent, loaded)
		if err != nil {
			return linkErr(li.Name, "memberref:"+name, err)
		}

		// Try field signature first, then method; a MemberRef's blob is
		// unambiguous because DecodeFieldSig requires the 0x06 lead byte.
		if fsig, ferr := xil.DecodeFieldSig(blob); ferr == nil {
			f, ok := parentType.Fields[name]
			if !ok {
				return linkErr(li.Name, "memberref:"+name, ErrMemberRefUnresolved)
			}
			_ = fsig
			li.MemberRefResolved[i] = f
			continue
		}
		msig, err := xil.DecodeMethodSig(blob)
		if err != nil {
			return linkErr(li.Name, "memberref:"+name, err)
		}
		params := make([]BuiltinType, len(msig.Params))
		for j, p := range msig.Params {
			params[j], err = convertEleType(p, li)
			if err != nil {
				return linkErr(li.Name, "memberref:"+name, err)
			}
		}
		key, err := buildSigKey(msig.HasThis, params)
		if err != nil {
			return linkErr(li.Name, "memberref:"+name, err)
		}
		m, ok := parentType.Methods[key]
		if !ok {
			return linkErr(li.Name, "memberref:"+name, ErrMemberRefUnresolved)
		}
		li.MemberRefResolved[i] = m
	}

	for _, im := range li.Image.ImplMaps {
		symbol, err := strAt(li.Image, im.Name)
		if err != nil {
			return linkErr(li.Name, "implmap.name", err)
		}
		scopeName, err := strAt(li.Image, li.Image.ModRefs[im.Scope-1].Name)
		if err != nil {
			return linkErr(li.Name, "implmap.scope", err)
		}
		if im.Member.Tag() != xil.TagMethod {
			return linkErr(li.Name, "implmap.member", ErrMemberRefUnresolved)
		}
		idx := int(im.Member.Index()) - 1
		if idx < 0 || idx >= len(li.MethodList) {
			return linkErr(li.Name, "implmap.member", xil.ErrNullToken)
		}
		li.MethodList[idx].Impl = MethodImpl{
			Kind:          ImplForeign,
			ForeignScope:  scopeName,
			ForeignSymbol: symbol,
		}
	}

	return nil
}

// memberRefParentType resolves a MemberRef's Parent token to the
// LinkedType whose Fields/Methods maps should be searched. A ModuleRef
// parent (naming free functions/fields at module scope rather than a
// type) is not otherwise modeled by this table set, so it is resolved
// by searching every type declared directly in that module.
func memberRefParentType(li *LoadedImage, parent xil.Token, loaded map[string]*LoadedImage) (*LinkedType, error) {
	switch parent.Tag() {
	case xil.TagTypeDef, xil.TagTypeRef:
		return resolveTypeToken(li, parent)
	case xil.TagMethod:
		idx := int(parent.Index()) - 1
		if idx < 0 || idx >= len(li.MethodList) {
			return nil, xil.ErrNullToken
		}
		return li.MethodList[idx].Parent, nil
	case xil.TagModuleRef:
		idx := int(parent.Index()) - 1
		if idx < 0 || idx >= len(li.Image.ModRefs) {
			return nil, xil.ErrNullToken
		}
		modName, err := strAt(li.Image, li.Image.ModRefs[idx].Name)
		if err != nil {
			return nil, err
		}
		target, ok := loaded[modName]
		if !ok || len(target.TypeDefList) == 0 {
			return nil, ErrModuleNotFound
		}
		return &LinkedType{
			Fields:  mergeFields(target.TypeDefList),
			Methods: mergeMethods(target.TypeDefList),
		}, nil
	default:
		return nil, ErrMemberRefUnresolved
	}
}

func mergeFields(types []*LinkedType) map[string]*LinkedField {
	out := map[string]*LinkedField{}
	for _, t := range types {
		for k, v := range t.Fields {
			out[k] = v
		}
	}
	return out
}

func mergeMethods(types []*LinkedType) map[string]*LinkedMethod {
	out := map[string]*LinkedMethod{}
	for _, t := range types {
		for k, v := range t.Methods {
			out[k] = v
		}
	}
	return out
}

func blobAt(img *xil.Image, idx uint32) ([]byte, error) {
	if idx == 0 || int(idx) > len(img.BlobHeap) {
		return nil, xil.ErrNullToken
	}
	return img.BlobHeap[idx-1], nil
}

func codeAt(img *xil.Image, idx uint32) (xil.CodeRow, error) {
	if idx == 0 || int(idx) > len(img.Code) {
		return xil.CodeRow{}, xil.ErrNullToken
	}
	return img.Code[idx-1], nil
}

func standaloneSigAt(img *xil.Image, idx uint32) (xil.StandaloneSigRow, error) {
	if idx == 0 || int(idx) > len(img.StandaloneSigs) {
		return xil.StandaloneSigRow{}, xil.ErrNullToken
	}
	return img.StandaloneSigs[idx-1], nil
}

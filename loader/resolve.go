package loader

import "github.com/xi-lang/xil"

// ResolveType resolves a TypeDef/TypeRef-tagged token within li's own
// context, for callers outside this package (xil/vmrt's newobj/newarr/
// ldelem/initobj/cpobj handling).
func ResolveType(li *LoadedImage, tok xil.Token) (*LinkedType, error) {
	return resolveTypeToken(li, tok)
}

// ResolveMethod resolves a Method- or MemberRef-tagged token to the
// LinkedMethod it names.
func ResolveMethod(li *LoadedImage, tok xil.Token) (*LinkedMethod, error) {
	switch tok.Tag() {
	case xil.TagMethod:
		idx := int(tok.Index()) - 1
		if idx < 0 || idx >= len(li.MethodList) {
			return nil, xil.ErrNullToken
		}
		return li.MethodList[idx], nil
	case xil.TagMemberRef:
		idx := int(tok.Index()) - 1
		if idx < 0 || idx >= len(li.MemberRefResolved) {
			return nil, xil.ErrNullToken
		}
		m, ok := li.MemberRefResolved[idx].(*LinkedMethod)
		if !ok {
			return nil, ErrMemberRefUnresolved
		}
		return m, nil
	default:
		return nil, ErrMemberRefUnresolved
	}
}

// ResolveField resolves a Field- or MemberRef-tagged token to the
// LinkedField it names.
func ResolveField(li *LoadedImage, tok xil.Token) (*LinkedField, error) {
	switch tok.Tag() {
	case xil.TagField:
		idx := int(tok.Index()) - 1
		if idx < 0 || idx >= len(li.FieldList) {
			return nil, xil.ErrNullToken
		}
		return li.FieldList[idx], nil
	case xil.TagMemberRef:
		idx := int(tok.Index()) - 1
		if idx < 0 || idx >= len(li.MemberRefResolved) {
			return nil, xil.ErrNullToken
		}
		f, ok := li.MemberRefResolved[idx].(*LinkedField)
		if !ok {
			return nil, ErrMemberRefUnresolved
		}
		return f, nil
	default:
		return nil, ErrMemberRefUnresolved
	}
}

// UsrString returns the interned user-string heap entry a ldstr token
// names. ldstr's token carries no declared tag of its own (usr_str isn't
// one of the tables §3.3 assigns a tag to); by convention this
// implementation's compiler emits the raw 1-based usr_str_heap index in
// the token's index field and leaves the tag byte zero.
func UsrString(li *LoadedImage, tok xil.Token) (string, error) {
	idx := int(tok.Index())
	if idx == 0 || idx > len(li.Image.UsrStrHeap) {
		return "", xil.ErrNullToken
	}
	return li.Image.UsrStrHeap[idx-1], nil
}

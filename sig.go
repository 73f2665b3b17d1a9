package xil

import "fmt"

// EleKind is the one-byte tag of an element type used throughout the
// signature grammar (§3.2). Values Void..R8 and ByRef/Class match the
// original IR's byte tags exactly; String/ValueType/SZArray/GenericInst
// are named in the grammar but never given explicit byte values upstream,
// so this implementation assigns them unused codes in the same space.
type EleKind uint8

const (
	EleVoid        EleKind = 0x01
	EleBool        EleKind = 0x02
	EleChar        EleKind = 0x03
	EleI1          EleKind = 0x04
	EleU1          EleKind = 0x05
	EleI2          EleKind = 0x06
	EleU2          EleKind = 0x07
	EleI4          EleKind = 0x08
	EleU4          EleKind = 0x09
	EleI8          EleKind = 0x0A
	EleU8          EleKind = 0x0B
	EleR4          EleKind = 0x0C
	EleR8          EleKind = 0x0D
	EleString      EleKind = 0x0E
	EleByRef       EleKind = 0x10
	EleValueType   EleKind = 0x11
	EleClass       EleKind = 0x12
	EleGenericInst EleKind = 0x15
	EleSZArray     EleKind = 0x1D
)

func (k EleKind) String() string {
	switch k {
	case EleVoid:
		return "void"
	case EleBool:
		return "bool"
	case EleChar:
		return "char"
	case EleI1:
		return "i1"
	case EleU1:
		return "u1"
	case EleI2:
		return "i2"
	case EleU2:
		return "u2"
	case EleI4:
		return "i4"
	case EleU4:
		return "u4"
	case EleI8:
		return "i8"
	case EleU8:
		return "u8"
	case EleR4:
		return "r4"
	case EleR8:
		return "r8"
	case EleString:
		return "string"
	case EleByRef:
		return "byref"
	case EleValueType:
		return "valuetype"
	case EleClass:
		return "class"
	case EleGenericInst:
		return "genericinst"
	case EleSZArray:
		return "szarray"
	default:
		return fmt.Sprintf("EleKind(0x%02x)", uint8(k))
	}
}

// EleType is one node of the signature grammar's element-type tree.
// Class and ValueType carry a TypeDef/TypeRef Token; ByRef and SZArray
// carry an Inner element type.
type EleType struct {
	Kind  EleKind
	Inner *EleType
	Tok   Token
}

// Simple element-type constructors for the scalar kinds.
func Simple(k EleKind) EleType { return EleType{Kind: k} }

// ByRef wraps inner as a by-reference element type.
func ByRef(inner EleType) EleType { return EleType{Kind: EleByRef, Inner: &inner} }

// SZArray wraps inner as a single-dimension array element type.
func SZArray(inner EleType) EleType { return EleType{Kind: EleSZArray, Inner: &inner} }

// ClassType builds a Class element type referring to tok (a TypeDef or
// TypeRef token).
func ClassType(tok Token) EleType { return EleType{Kind: EleClass, Tok: tok} }

// ValueTypeType builds a ValueType element type referring to tok.
func ValueTypeType(tok Token) EleType { return EleType{Kind: EleValueType, Tok: tok} }

func (e EleType) encode(w *writer) {
	w.u8(uint8(e.Kind))
	switch e.Kind {
	case EleByRef, EleSZArray:
		e.Inner.encode(w)
	case EleClass, EleValueType:
		writeToken(w, e.Tok)
	}
}

func decodeEleType(r *reader) (EleType, error) {
	b, err := r.u8()
	if err != nil {
		return EleType{}, err
	}
	k := EleKind(b)
	switch k {
	case EleVoid, EleBool, EleChar, EleI1, EleU1, EleI2, EleU2, EleI4, EleU4,
		EleI8, EleU8, EleR4, EleR8, EleString, EleGenericInst:
		return EleType{Kind: k}, nil
	case EleByRef, EleSZArray:
		inner, err := decodeEleType(r)
		if err != nil {
			return EleType{}, err
		}
		return EleType{Kind: k, Inner: &inner}, nil
	case EleClass, EleValueType:
		tok, err := readToken(r)
		if err != nil {
			return EleType{}, err
		}
		return EleType{Kind: k, Tok: tok}, nil
	default:
		return EleType{}, ErrUnknownTag
	}
}

// Signature kind tags that open a field or local-vars signature blob.
const (
	sigKindField     = 0x06
	sigKindLocalVars = 0x07
)

// Method signature calling-convention bit: set when the method is an
// instance method and an implicit `self` occupies argument slot 0.
const MethodSigHasThis uint8 = 0x20

// FieldSig is the decoded form of a field signature blob (§3.2: `0x06
// <EleType>`).
type FieldSig struct {
	Type EleType
}

// EncodeFieldSig serializes a field signature blob.
func EncodeFieldSig(s FieldSig) []byte {
	w := newWriter()
	w.u8(sigKindField)
	s.Type.encode(w)
	return w.bytesOut()
}

// DecodeFieldSig parses a field signature blob.
func DecodeFieldSig(blob []byte) (FieldSig, error) {
	r := newReader(blob)
	tag, err := r.u8()
	if err != nil {
		return FieldSig{}, err
	}
	if tag != sigKindField {
		return FieldSig{}, ErrBadSignature
	}
	t, err := decodeEleType(r)
	if err != nil {
		return FieldSig{}, err
	}
	return FieldSig{Type: t}, nil
}

// LocalVarsSig is the decoded form of a method body's local-variable
// signature (§3.2: `0x07 <count-u32> <EleType>+`), referenced by a
// StandaloneSig row.
type LocalVarsSig struct {
	Vars []EleType
}

// EncodeLocalVarsSig serializes a local-vars signature blob.
func EncodeLocalVarsSig(s LocalVarsSig) []byte {
	w := newWriter()
	w.u8(sigKindLocalVars)
	w.u32(uint32(len(s.Vars)))
	for _, v := range s.Vars {
		v.encode(w)
	}
	return w.bytesOut()
}

// DecodeLocalVarsSig parses a local-vars signature blob.
func DecodeLocalVarsSig(blob []byte) (LocalVarsSig, error) {
	r := newReader(blob)
	tag, err := r.u8()
	if err != nil {
		return LocalVarsSig{}, err
	}
	if tag != sigKindLocalVars {
		return LocalVarsSig{}, ErrBadSignature
	}
	n, err := r.u32()
	if err != nil {
		return LocalVarsSig{}, err
	}
	vars := make([]EleType, 0, n)
	for i := uint32(0); i < n; i++ {
		v, err := decodeEleType(r)
		if err != nil {
			return LocalVarsSig{}, err
		}
		vars = append(vars, v)
	}
	return LocalVarsSig{Vars: vars}, nil
}

// MethodSig is the decoded form of a method signature blob (§3.2:
// `<calling-conv-byte> <param-count-u32> <ret-EleType> <param-EleType>{n}`).
// Unlike field/local-vars signatures, method signatures carry no leading
// kind tag — callers always know a blob is a method signature from the
// table column that referenced it (Method.Sig or MemberRef.Sig).
type MethodSig struct {
	HasThis bool
	Params  []EleType
	Ret     EleType
}

// EncodeMethodSig serializes a method signature blob.
func EncodeMethodSig(s MethodSig) []byte {
	w := newWriter()
	cc := uint8(0)
	if s.HasThis {
		cc = MethodSigHasThis
	}
	w.u8(cc)
	w.u32(uint32(len(s.Params)))
	s.Ret.encode(w)
	for _, p := range s.Params {
		p.encode(w)
	}
	return w.bytesOut()
}

// DecodeMethodSig parses a method signature blob.
func DecodeMethodSig(blob []byte) (MethodSig, error) {
	r := newReader(blob)
	cc, err := r.u8()
	if err != nil {
		return MethodSig{}, err
	}
	n, err := r.u32()
	if err != nil {
		return MethodSig{}, err
	}
	ret, err := decodeEleType(r)
	if err != nil {
		return MethodSig{}, err
	}
	params := make([]EleType, 0, n)
	for i := uint32(0); i < n; i++ {
		p, err := decodeEleType(r)
		if err != nil {
			return MethodSig{}, err
		}
		params = append(params, p)
	}
	return MethodSig{HasThis: cc&MethodSigHasThis != 0, Params: params, Ret: ret}, nil
}

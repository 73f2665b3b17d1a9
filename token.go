package xil

import "fmt"

// Tag identifies which table a Token's index refers to. Values follow the
// ECMA-335 metadata table numbering (Module=0, TypeRef=1, TypeDef=2, ...),
// reused here as the tag space for this toolchain's smaller table set.
type Tag uint8

const (
	TagModule        Tag = 0x00
	TagTypeRef       Tag = 0x01
	TagTypeDef       Tag = 0x02
	TagField         Tag = 0x04
	TagMethod        Tag = 0x06
	TagParam         Tag = 0x08
	TagMemberRef     Tag = 0x0A
	TagStandaloneSig Tag = 0x11
	TagModuleRef     Tag = 0x1A
	TagTypeSpec      Tag = 0x1B
	TagImplMap       Tag = 0x1C
)

var tagNames = map[Tag]string{
	TagModule:        "Module",
	TagTypeRef:       "TypeRef",
	TagTypeDef:       "TypeDef",
	TagField:         "Field",
	TagMethod:        "Method",
	TagParam:         "Param",
	TagMemberRef:     "MemberRef",
	TagStandaloneSig: "StandaloneSig",
	TagModuleRef:     "ModuleRef",
	TagTypeSpec:      "TypeSpec",
	TagImplMap:       "ImplMap",
}

func (t Tag) String() string {
	if n, ok := tagNames[t]; ok {
		return n
	}
	return fmt.Sprintf("Tag(0x%02x)", uint8(t))
}

// Token is a 32-bit tagged reference into one of an image's tables: the low
// 8 bits select the table, the high 24 bits are a 1-based row index. A zero
// index is null and is fatal to dereference.
type Token uint32

// NewToken builds a Token from a tag and a 1-based row index. index 0 is
// the null token regardless of tag.
func NewToken(tag Tag, index uint32) Token {
	return Token(uint32(tag) | (index << 8))
}

// NullToken is the zero value of Token, valid for token fields like
// TypeDef.Extends that may be legitimately absent.
const NullToken Token = 0

// Tag returns the token's table tag.
func (t Token) Tag() Tag { return Tag(t & 0xFF) }

// Index returns the token's 1-based row index (0 = null).
func (t Token) Index() uint32 { return uint32(t) >> 8 }

// IsNull reports whether the token's index is zero.
func (t Token) IsNull() bool { return t.Index() == 0 }

func (t Token) String() string {
	if t.IsNull() {
		return fmt.Sprintf("%s#null", t.Tag())
	}
	return fmt.Sprintf("%s#%d", t.Tag(), t.Index())
}

func readToken(r *reader) (Token, error) {
	v, err := r.u32()
	if err != nil {
		return 0, err
	}
	return Token(v), nil
}

func writeToken(w *writer, t Token) { w.u32(uint32(t)) }

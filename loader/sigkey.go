package loader

import (
	"fmt"
	"strings"
)

// StringTypeFullname is the canonical built-in string type's fullname,
// used as the "O"/"N" tag payload for EleString-shaped values and by
// xil/vmrt's ldstr handling.
const StringTypeFullname = "std::String"

// ValueTypeBaseFullname is the base type whose presence in a type's
// Extends chain marks it as a value type by the default convention
// (§9 Open Question: ValueType detection).
const ValueTypeBaseFullname = "std::ValueType"

// tagChar renders one BuiltinType as its §6.3 signature-string tag. The
// scalar letters beyond the spec's worked example (Z bool, B byte, C
// char, I i32, D f64, V void, O class, [ array, & byref) are this
// implementation's own extension to the full EleType grammar — JVM
// descriptor style (J=i8, F=r4, lowercase for the unsigned/short
// variants the spec's prose doesn't separately name).
func tagChar(t BuiltinType) (string, error) {
	switch t.Kind {
	case BuiltinVoid:
		return "V", nil
	case BuiltinBool:
		return "Z", nil
	case BuiltinChar:
		return "C", nil
	case BuiltinI1:
		return "y", nil
	case BuiltinU1:
		return "B", nil
	case BuiltinI2:
		return "s", nil
	case BuiltinU2:
		return "t", nil
	case BuiltinI4:
		return "I", nil
	case BuiltinU4:
		return "u", nil
	case BuiltinI8:
		return "J", nil
	case BuiltinU8:
		return "k", nil
	case BuiltinR4:
		return "F", nil
	case BuiltinR8:
		return "D", nil
	case BuiltinString:
		return "O" + StringTypeFullname + ";", nil
	case BuiltinClass:
		return "O" + t.Class.Fullname() + ";", nil
	case BuiltinValue:
		return "N" + t.Class.Fullname() + ";", nil
	case BuiltinByRef:
		inner, err := tagChar(*t.Inner)
		if err != nil {
			return "", err
		}
		return "&" + inner, nil
	case BuiltinSZArray:
		inner, err := tagChar(*t.Inner)
		if err != nil {
			return "", err
		}
		return "[" + inner, nil
	default:
		return "", fmt.Errorf("loader: no signature-string tag for %v", t.Kind)
	}
}

// buildSigKey renders a method's §6.3 canonical signature string: "s"/"i"
// for static/instance, then one tag per parameter. The return type is
// deliberately excluded (as is the method name; the return
// type is still checked for equality separately during vtable-slot
// reuse, §4.4 step 6).
func buildSigKey(hasThis bool, params []BuiltinType) (string, error) {
	var sb strings.Builder
	if hasThis {
		sb.WriteByte('i')
	} else {
		sb.WriteByte('s')
	}
	for _, p := range params {
		c, err := tagChar(p)
		if err != nil {
			return "", err
		}
		sb.WriteString(c)
	}
	return sb.String(), nil
}

package asm

import (
	"fmt"
	"strings"

	"github.com/xi-lang/xil"
)

var scalarKinds = map[string]xil.EleKind{
	"void":   xil.EleVoid,
	"bool":   xil.EleBool,
	"char":   xil.EleChar,
	"i1":     xil.EleI1,
	"u1":     xil.EleU1,
	"i2":     xil.EleI2,
	"u2":     xil.EleU2,
	"i4":     xil.EleI4,
	"u4":     xil.EleU4,
	"i8":     xil.EleI8,
	"u8":     xil.EleU8,
	"r4":     xil.EleR4,
	"r8":     xil.EleR8,
	"string": xil.EleString,
}

var scalarNames = func() map[xil.EleKind]string {
	m := make(map[xil.EleKind]string, len(scalarKinds))
	for name, k := range scalarKinds {
		m[k] = name
	}
	return m
}()

// parseType parses one <type> token (see doc.go) against the set of
// classes declared so far in mb, resolving class:/valuetype: references
// by name.
func (mb *moduleBuilder) parseType(tok string) (xil.EleType, error) {
	if k, ok := scalarKinds[tok]; ok {
		return xil.Simple(k), nil
	}
	switch {
	case strings.HasPrefix(tok, "byref:"):
		inner, err := mb.parseType(strings.TrimPrefix(tok, "byref:"))
		if err != nil {
			return xil.EleType{}, err
		}
		return xil.ByRef(inner), nil
	case strings.HasPrefix(tok, "szarray:"):
		inner, err := mb.parseType(strings.TrimPrefix(tok, "szarray:"))
		if err != nil {
			return xil.EleType{}, err
		}
		return xil.SZArray(inner), nil
	case strings.HasPrefix(tok, "class:"):
		name, err := unquote(strings.TrimPrefix(tok, "class:"))
		if err != nil {
			return xil.EleType{}, err
		}
		tref, err := mb.classToken(name)
		if err != nil {
			return xil.EleType{}, err
		}
		return xil.ClassType(tref), nil
	case strings.HasPrefix(tok, "valuetype:"):
		name, err := unquote(strings.TrimPrefix(tok, "valuetype:"))
		if err != nil {
			return xil.EleType{}, err
		}
		tref, err := mb.classToken(name)
		if err != nil {
			return xil.EleType{}, err
		}
		return xil.ValueTypeType(tref), nil
	default:
		return xil.EleType{}, fmt.Errorf("unrecognized type token %q", tok)
	}
}

// formatType is parseType's inverse, used by the disassembler.
func formatType(t xil.EleType, classNames map[uint32]string) string {
	if name, ok := scalarNames[t.Kind]; ok {
		return name
	}
	switch t.Kind {
	case xil.EleByRef:
		return "byref:" + formatType(*t.Inner, classNames)
	case xil.EleSZArray:
		return "szarray:" + formatType(*t.Inner, classNames)
	case xil.EleClass:
		return fmt.Sprintf("class:%q", classNames[t.Tok.Index()])
	case xil.EleValueType:
		return fmt.Sprintf("valuetype:%q", classNames[t.Tok.Index()])
	default:
		return t.Kind.String()
	}
}

// splitParams splits a "(p1,p2)" or "()" parameter-list field into its
// comma-separated parts, trimmed of whitespace. An empty list yields nil.
func splitParams(field string) ([]string, error) {
	if len(field) < 2 || field[0] != '(' || field[len(field)-1] != ')' {
		return nil, fmt.Errorf("expected a parenthesized parameter list, got %q", field)
	}
	inner := strings.TrimSpace(field[1 : len(field)-1])
	if inner == "" {
		return nil, nil
	}
	parts := strings.Split(inner, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts, nil
}

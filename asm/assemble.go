package asm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xi-lang/xil"
)

// moduleBuilder accumulates table rows and heap entries while Assemble
// walks the source, the way the teacher's own table-row decoders build
// up an Image one row at a time, just in the opposite (text-to-binary)
// direction.
type moduleBuilder struct {
	modName string

	modRefNames []string
	modRefIndex map[string]uint32 // name -> 1-based modref[] index

	classNames []string          // 1-based TypeDef index -> name
	classIndex map[string]uint32 // name -> 1-based TypeDef index
	typeDefs   []xil.TypeDefRow

	strIndex map[string]uint32 // interned str_heap, 1-based
	strHeap  []string

	usrStrIndex map[string]uint32 // interned usr_str_heap, 1-based
	usrStrHeap  []string

	blobHeap [][]byte

	fields         []xil.FieldRow
	methods        []xil.MethodRow
	implMaps       []xil.ImplMapRow
	standaloneSigs []xil.StandaloneSigRow
	code           []xil.CodeRow

	methodLookup map[string]uint32 // "Type::method" -> 1-based method[] index
	fieldLookup  map[string]uint32 // "Type::field" -> 1-based field[] index

	entrypointBody uint32
}

func newModuleBuilder() *moduleBuilder {
	return &moduleBuilder{
		modRefIndex:  map[string]uint32{},
		classIndex:   map[string]uint32{},
		strIndex:     map[string]uint32{},
		usrStrIndex:  map[string]uint32{},
		methodLookup: map[string]uint32{},
		fieldLookup:  map[string]uint32{},
	}
}

func (mb *moduleBuilder) internStr(s string) uint32 {
	if idx, ok := mb.strIndex[s]; ok {
		return idx
	}
	mb.strHeap = append(mb.strHeap, s)
	idx := uint32(len(mb.strHeap))
	mb.strIndex[s] = idx
	return idx
}

func (mb *moduleBuilder) internUsrStr(s string) uint32 {
	if idx, ok := mb.usrStrIndex[s]; ok {
		return idx
	}
	mb.usrStrHeap = append(mb.usrStrHeap, s)
	idx := uint32(len(mb.usrStrHeap))
	mb.usrStrIndex[s] = idx
	return idx
}

func (mb *moduleBuilder) internBlob(b []byte) uint32 {
	mb.blobHeap = append(mb.blobHeap, b)
	return uint32(len(mb.blobHeap))
}

func (mb *moduleBuilder) classToken(name string) (xil.Token, error) {
	idx, ok := mb.classIndex[name]
	if !ok {
		return 0, fmt.Errorf("reference to undeclared class %q", name)
	}
	return xil.NewToken(xil.TagTypeDef, idx), nil
}

// Assemble parses src (the grammar documented in doc.go) into a binary
// Image.
func Assemble(src string) (*xil.Image, error) {
	lines, err := scanLines(src)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 || lines[0].fields[0] != ".mod" {
		return nil, fmt.Errorf("asm: source must begin with .mod")
	}

	mb := newModuleBuilder()
	i := 0

	name, err := unquote(lines[i].fields[1])
	if err != nil {
		return nil, fmt.Errorf("asm: line %d: .mod: %w", lines[i].no, err)
	}
	mb.modName = name
	i++

	for i < len(lines) && lines[i].fields[0] == ".modref" {
		ref, err := unquote(lines[i].fields[1])
		if err != nil {
			return nil, fmt.Errorf("asm: line %d: .modref: %w", lines[i].no, err)
		}
		mb.modRefNames = append(mb.modRefNames, ref)
		mb.modRefIndex[ref] = uint32(len(mb.modRefNames))
		i++
	}

	for i < len(lines) {
		if lines[i].fields[0] != ".class" {
			return nil, fmt.Errorf("asm: line %d: expected .class, got %q", lines[i].no, lines[i].fields[0])
		}
		var err error
		i, err = mb.parseClass(lines, i)
		if err != nil {
			return nil, err
		}
	}

	return mb.build(), nil
}

func (mb *moduleBuilder) parseClass(lines []sourceLine, i int) (int, error) {
	hdr := lines[i]
	if len(hdr.fields) < 5 || hdr.fields[3] != "extends" {
		return 0, fmt.Errorf("asm: line %d: malformed .class header", hdr.no)
	}
	flags, err := parseHex32(hdr.fields[1])
	if err != nil {
		return 0, fmt.Errorf("asm: line %d: %w", hdr.no, err)
	}
	name, err := unquote(hdr.fields[2])
	if err != nil {
		return 0, fmt.Errorf("asm: line %d: %w", hdr.no, err)
	}

	var extends xil.Token
	extFields := hdr.fields[4:]
	switch {
	case len(extFields) == 1 && extFields[0] == "null":
		extends = xil.NullToken
	case len(extFields) == 1:
		base, err := unquote(extFields[0])
		if err != nil {
			return 0, fmt.Errorf("asm: line %d: extends: %w", hdr.no, err)
		}
		extends, err = mb.classToken(base)
		if err != nil {
			return 0, fmt.Errorf("asm: line %d: extends: %w", hdr.no, err)
		}
	default:
		return 0, fmt.Errorf("asm: line %d: malformed extends clause", hdr.no)
	}

	row := xil.TypeDefRow{
		Flags:   flags,
		Name:    mb.internStr(name),
		Extends: extends,
		Fields:  uint32(len(mb.fields)) + 1,
		Methods: uint32(len(mb.methods)) + 1,
	}
	mb.typeDefs = append(mb.typeDefs, row)
	mb.classNames = append(mb.classNames, name)
	mb.classIndex[name] = uint32(len(mb.typeDefs))

	i++
	for i < len(lines) && lines[i].fields[0] != ".endclass" {
		switch lines[i].fields[0] {
		case ".field":
			var err error
			i, err = mb.parseField(lines, i, name)
			if err != nil {
				return 0, err
			}
		case ".method":
			var err error
			i, err = mb.parseMethod(lines, i, name)
			if err != nil {
				return 0, err
			}
		default:
			return 0, fmt.Errorf("asm: line %d: expected .field, .method or .endclass, got %q", lines[i].no, lines[i].fields[0])
		}
	}
	if i >= len(lines) {
		return 0, fmt.Errorf("asm: class %q: missing .endclass", name)
	}
	return i + 1, nil
}

func (mb *moduleBuilder) parseField(lines []sourceLine, i int, className string) (int, error) {
	f := lines[i]
	if len(f.fields) != 4 {
		return 0, fmt.Errorf("asm: line %d: malformed .field", f.no)
	}
	flags, err := parseHex32(f.fields[1])
	if err != nil {
		return 0, fmt.Errorf("asm: line %d: %w", f.no, err)
	}
	name, err := unquote(f.fields[2])
	if err != nil {
		return 0, fmt.Errorf("asm: line %d: %w", f.no, err)
	}
	typ, err := mb.parseType(f.fields[3])
	if err != nil {
		return 0, fmt.Errorf("asm: line %d: field type: %w", f.no, err)
	}
	row := xil.FieldRow{
		Flags: flags,
		Name:  mb.internStr(name),
		Sig:   mb.internBlob(xil.EncodeFieldSig(xil.FieldSig{Type: typ})),
	}
	mb.fields = append(mb.fields, row)
	mb.fieldLookup[className+"::"+name] = uint32(len(mb.fields))
	return i + 1, nil
}

func (mb *moduleBuilder) parseMethod(lines []sourceLine, i int, className string) (int, error) {
	hdr := lines[i]
	if len(hdr.fields) < 5 {
		return 0, fmt.Errorf("asm: line %d: malformed .method header", hdr.no)
	}
	flags, err := parseHex32(hdr.fields[1])
	if err != nil {
		return 0, fmt.Errorf("asm: line %d: %w", hdr.no, err)
	}
	implFlags, err := parseHex32(hdr.fields[2])
	if err != nil {
		return 0, fmt.Errorf("asm: line %d: %w", hdr.no, err)
	}
	name, err := unquote(hdr.fields[3])
	if err != nil {
		return 0, fmt.Errorf("asm: line %d: %w", hdr.no, err)
	}
	paramsField := hdr.fields[4]
	if len(hdr.fields) < 7 || hdr.fields[5] != "->" {
		return 0, fmt.Errorf("asm: line %d: malformed method signature, want (params) -> ret", hdr.no)
	}
	retField := hdr.fields[6]

	paramToks, err := splitParams(paramsField)
	if err != nil {
		return 0, fmt.Errorf("asm: line %d: %w", hdr.no, err)
	}
	hasThis := false
	if len(paramToks) > 0 && paramToks[0] == "this" {
		hasThis = true
		paramToks = paramToks[1:]
	}
	params := make([]xil.EleType, len(paramToks))
	for j, tok := range paramToks {
		params[j], err = mb.parseType(tok)
		if err != nil {
			return 0, fmt.Errorf("asm: line %d: param %d: %w", hdr.no, j, err)
		}
	}
	ret, err := mb.parseType(retField)
	if err != nil {
		return 0, fmt.Errorf("asm: line %d: return type: %w", hdr.no, err)
	}

	i++
	var locals []xil.EleType
	entrypoint := false
	var implmapRef, implmapSymbol string
	hasImplmap := false
	var maxStack uint16
	var instrs []pendingInstr

	for i < len(lines) && lines[i].fields[0] != ".endmethod" {
		line := lines[i]
		switch line.fields[0] {
		case ".locals":
			if len(line.fields) != 2 {
				return 0, fmt.Errorf("asm: line %d: malformed .locals", line.no)
			}
			for _, tok := range strings.Split(line.fields[1], ",") {
				t, err := mb.parseType(strings.TrimSpace(tok))
				if err != nil {
					return 0, fmt.Errorf("asm: line %d: local: %w", line.no, err)
				}
				locals = append(locals, t)
			}
			i++
		case ".entrypoint":
			entrypoint = true
			i++
		case ".maxstack":
			if len(line.fields) != 2 {
				return 0, fmt.Errorf("asm: line %d: malformed .maxstack", line.no)
			}
			v, err := strconv.ParseUint(line.fields[1], 10, 16)
			if err != nil {
				return 0, fmt.Errorf("asm: line %d: .maxstack: %w", line.no, err)
			}
			maxStack = uint16(v)
			i++
		case ".implmap":
			if len(line.fields) != 3 {
				return 0, fmt.Errorf("asm: line %d: malformed .implmap", line.no)
			}
			implmapRef, err = unquote(line.fields[1])
			if err != nil {
				return 0, fmt.Errorf("asm: line %d: .implmap: %w", line.no, err)
			}
			implmapSymbol, err = unquote(line.fields[2])
			if err != nil {
				return 0, fmt.Errorf("asm: line %d: .implmap: %w", line.no, err)
			}
			hasImplmap = true
			i++
		default:
			pi, err := mb.parseInstructionLine(line)
			if err != nil {
				return 0, err
			}
			instrs = append(instrs, pi)
			i++
		}
	}
	if i >= len(lines) {
		return 0, fmt.Errorf("asm: method %q: missing .endmethod", name)
	}

	row := xil.MethodRow{
		Flags:     flags,
		ImplFlags: implFlags,
		Name:      mb.internStr(name),
		Sig: mb.internBlob(xil.EncodeMethodSig(xil.MethodSig{
			HasThis: hasThis,
			Params:  params,
			Ret:     ret,
		})),
	}

	if len(instrs) > 0 {
		bytecode, err := resolveBytecode(instrs)
		if err != nil {
			return 0, fmt.Errorf("asm: method %q: %w", name, err)
		}
		var localsIdx uint32
		if len(locals) > 0 {
			blob := mb.internBlob(xil.EncodeLocalVarsSig(xil.LocalVarsSig{Vars: locals}))
			mb.standaloneSigs = append(mb.standaloneSigs, xil.StandaloneSigRow{Sig: blob})
			localsIdx = uint32(len(mb.standaloneSigs))
		}
		mb.code = append(mb.code, xil.CodeRow{MaxStack: maxStack, Locals: localsIdx, Bytecode: bytecode})
		row.Body = uint32(len(mb.code))
	}

	mb.methods = append(mb.methods, row)
	methodIdx := uint32(len(mb.methods))
	mb.methodLookup[className+"::"+name] = methodIdx

	if entrypoint {
		mb.entrypointBody = row.Body
	}
	if hasImplmap {
		scopeIdx, ok := mb.modRefIndex[implmapRef]
		if !ok {
			return 0, fmt.Errorf("asm: method %q: .implmap references undeclared modref %q", name, implmapRef)
		}
		mb.implMaps = append(mb.implMaps, xil.ImplMapRow{
			Member: xil.NewToken(xil.TagMethod, methodIdx),
			Name:   mb.internStr(implmapSymbol),
			Scope:  scopeIdx,
		})
	}

	return i + 1, nil
}

func (mb *moduleBuilder) build() *xil.Image {
	modNameIdx := mb.internStr(mb.modName)
	modRefRows := make([]xil.ModuleRefRow, len(mb.modRefNames))
	for j, ref := range mb.modRefNames {
		modRefRows[j] = xil.ModuleRefRow{Name: mb.internStr(ref)}
	}

	return &xil.Image{
		Minor: xil.CurrentMinorVersion,
		Major: xil.CurrentMajorVersion,
		Module: xil.ModuleRow{
			Name:       modNameIdx,
			Entrypoint: mb.entrypointBody,
		},
		ModRefs:        modRefRows,
		TypeDefs:       mb.typeDefs,
		Fields:         mb.fields,
		Methods:        mb.methods,
		ImplMaps:       mb.implMaps,
		StandaloneSigs: mb.standaloneSigs,
		Code:           mb.code,
		StrHeap:        mb.strHeap,
		UsrStrHeap:     mb.usrStrHeap,
		BlobHeap:       mb.blobHeap,
	}
}

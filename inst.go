package xil

import "fmt"

// Mnemonic identifies one opcode of the instruction set (§4.3). Byte
// values mirror the real ECMA-335 CIL opcode table wherever this
// toolchain's opcode matches one exactly (nop, the ldarg/ldloc/stloc
// families, branches, arithmetic, call/callvirt/newobj, field access,
// array access); opcodes this grammar adds beyond the original IR
// (ldarga.s, ldloca.s, the fat ldloca, ldflda, ldsflda, ldelema,
// ldelem.ref/stelem.ref, initobj, cpobj) use their real CIL byte values,
// except where noted below (initobj) that they diverge from the real table.
type Mnemonic uint8

const (
	OpNop Mnemonic = iota

	OpLdArg0
	OpLdArg1
	OpLdArg2
	OpLdArg3
	OpLdArgS
	OpLdArgaS
	OpStArgS

	OpLdLoc0
	OpLdLoc1
	OpLdLoc2
	OpLdLoc3
	OpLdLocS
	OpLdLocaS
	OpLdLoc  // fat, u16 operand
	OpLdLoca // fat, u16 operand

	OpStLoc0
	OpStLoc1
	OpStLoc2
	OpStLoc3
	OpStLocS
	OpStLoc // fat, u16 operand

	OpLdNull
	OpLdcI4M1
	OpLdcI40
	OpLdcI41
	OpLdcI42
	OpLdcI43
	OpLdcI44
	OpLdcI45
	OpLdcI46
	OpLdcI47
	OpLdcI48
	OpLdcI4S
	OpLdcI4

	OpDup
	OpPop

	OpCall
	OpCallVirt
	OpNewObj
	OpRet

	OpBr
	OpBrFalse
	OpBrTrue
	OpBEq
	OpBGe
	OpBGt
	OpBLe
	OpBLt

	OpCEq // fat
	OpCGt // fat
	OpCLt // fat

	OpAdd
	OpSub
	OpMul
	OpDiv
	OpRem
	OpNeg

	OpLdFld
	OpLdFlda
	OpStFld
	OpLdSFld
	OpLdSFlda
	OpStSFld

	OpLdStr

	OpNewArr
	OpLdLen
	OpLdElemI4
	OpStElemI4
	OpLdElemRef
	OpStElemRef
	OpLdElem
	OpLdElema
	OpStElem

	OpInitObj
	OpCpObj

	opCount
)

// OperandKind classifies how an instruction's trailing bytes are decoded.
type OperandKind int

const (
	OperandNone   OperandKind = iota
	OperandU8                 // ldarg.s / ldarga.s / starg.s / ldloc.s / ldloca.s / stloc.s
	OperandI8                 // ldc.i4.s
	OperandU16                // fat ldloc / ldloca / stloc
	OperandBranch             // signed i32, PC-relative from the byte after the operand
	OperandI32                // ldc.i4 literal
	OperandToken              // u32 token
)

type opInfo struct {
	name    string
	fat     bool
	b1      byte
	b2      byte // only meaningful when fat
	operand OperandKind
}

var opTable = [opCount]opInfo{
	OpNop: {name: "nop", b1: 0x00, operand: OperandNone},

	OpLdArg0:  {name: "ldarg.0", b1: 0x02, operand: OperandNone},
	OpLdArg1:  {name: "ldarg.1", b1: 0x03, operand: OperandNone},
	OpLdArg2:  {name: "ldarg.2", b1: 0x04, operand: OperandNone},
	OpLdArg3:  {name: "ldarg.3", b1: 0x05, operand: OperandNone},
	OpLdArgS:  {name: "ldarg.s", b1: 0x0E, operand: OperandU8},
	OpLdArgaS: {name: "ldarga.s", b1: 0x0F, operand: OperandU8},
	OpStArgS:  {name: "starg.s", b1: 0x10, operand: OperandU8},

	OpLdLoc0:  {name: "ldloc.0", b1: 0x06, operand: OperandNone},
	OpLdLoc1:  {name: "ldloc.1", b1: 0x07, operand: OperandNone},
	OpLdLoc2:  {name: "ldloc.2", b1: 0x08, operand: OperandNone},
	OpLdLoc3:  {name: "ldloc.3", b1: 0x09, operand: OperandNone},
	OpLdLocS:  {name: "ldloc.s", b1: 0x11, operand: OperandU8},
	OpLdLocaS: {name: "ldloca.s", b1: 0x12, operand: OperandU8},
	OpLdLoc:   {name: "ldloc", fat: true, b1: 0xFE, b2: 0x0C, operand: OperandU16},
	OpLdLoca:  {name: "ldloca", fat: true, b1: 0xFE, b2: 0x0D, operand: OperandU16},

	OpStLoc0: {name: "stloc.0", b1: 0x0A, operand: OperandNone},
	OpStLoc1: {name: "stloc.1", b1: 0x0B, operand: OperandNone},
	OpStLoc2: {name: "stloc.2", b1: 0x0C, operand: OperandNone},
	OpStLoc3: {name: "stloc.3", b1: 0x0D, operand: OperandNone},
	OpStLocS: {name: "stloc.s", b1: 0x13, operand: OperandU8},
	OpStLoc:  {name: "stloc", fat: true, b1: 0xFE, b2: 0x0E, operand: OperandU16},

	OpLdNull:  {name: "ldnull", b1: 0x14, operand: OperandNone},
	OpLdcI4M1: {name: "ldc.i4.m1", b1: 0x15, operand: OperandNone},
	OpLdcI40:  {name: "ldc.i4.0", b1: 0x16, operand: OperandNone},
	OpLdcI41:  {name: "ldc.i4.1", b1: 0x17, operand: OperandNone},
	OpLdcI42:  {name: "ldc.i4.2", b1: 0x18, operand: OperandNone},
	OpLdcI43:  {name: "ldc.i4.3", b1: 0x19, operand: OperandNone},
	OpLdcI44:  {name: "ldc.i4.4", b1: 0x1A, operand: OperandNone},
	OpLdcI45:  {name: "ldc.i4.5", b1: 0x1B, operand: OperandNone},
	OpLdcI46:  {name: "ldc.i4.6", b1: 0x1C, operand: OperandNone},
	OpLdcI47:  {name: "ldc.i4.7", b1: 0x1D, operand: OperandNone},
	OpLdcI48:  {name: "ldc.i4.8", b1: 0x1E, operand: OperandNone},
	OpLdcI4S:  {name: "ldc.i4.s", b1: 0x1F, operand: OperandI8},
	OpLdcI4:   {name: "ldc.i4", b1: 0x20, operand: OperandI32},

	OpDup: {name: "dup", b1: 0x25, operand: OperandNone},
	OpPop: {name: "pop", b1: 0x26, operand: OperandNone},

	OpCall:     {name: "call", b1: 0x28, operand: OperandToken},
	OpCallVirt: {name: "callvirt", b1: 0x6F, operand: OperandToken},
	OpNewObj:   {name: "newobj", b1: 0x73, operand: OperandToken},
	OpRet:      {name: "ret", b1: 0x2A, operand: OperandNone},

	OpBr:      {name: "br", b1: 0x38, operand: OperandBranch},
	OpBrFalse: {name: "brfalse", b1: 0x39, operand: OperandBranch},
	OpBrTrue:  {name: "brtrue", b1: 0x3A, operand: OperandBranch},
	OpBEq:     {name: "beq", b1: 0x3B, operand: OperandBranch},
	OpBGe:     {name: "bge", b1: 0x3C, operand: OperandBranch},
	OpBGt:     {name: "bgt", b1: 0x3D, operand: OperandBranch},
	OpBLe:     {name: "ble", b1: 0x3E, operand: OperandBranch},
	OpBLt:     {name: "blt", b1: 0x3F, operand: OperandBranch},

	OpCEq: {name: "ceq", fat: true, b1: 0xFE, b2: 0x01, operand: OperandNone},
	OpCGt: {name: "cgt", fat: true, b1: 0xFE, b2: 0x02, operand: OperandNone},
	OpCLt: {name: "clt", fat: true, b1: 0xFE, b2: 0x04, operand: OperandNone},

	OpAdd: {name: "add", b1: 0x58, operand: OperandNone},
	OpSub: {name: "sub", b1: 0x59, operand: OperandNone},
	OpMul: {name: "mul", b1: 0x5A, operand: OperandNone},
	OpDiv: {name: "div", b1: 0x5B, operand: OperandNone},
	OpRem: {name: "rem", b1: 0x5D, operand: OperandNone},
	OpNeg: {name: "neg", b1: 0x65, operand: OperandNone},

	OpLdFld:   {name: "ldfld", b1: 0x7B, operand: OperandToken},
	OpLdFlda:  {name: "ldflda", b1: 0x7C, operand: OperandToken},
	OpStFld:   {name: "stfld", b1: 0x7D, operand: OperandToken},
	OpLdSFld:  {name: "ldsfld", b1: 0x7E, operand: OperandToken},
	OpLdSFlda: {name: "ldsflda", b1: 0x7F, operand: OperandToken},
	OpStSFld:  {name: "stsfld", b1: 0x80, operand: OperandToken},

	OpLdStr: {name: "ldstr", b1: 0x72, operand: OperandToken},

	OpNewArr:    {name: "newarr", b1: 0x8D, operand: OperandToken},
	OpLdLen:     {name: "ldlen", b1: 0x8E, operand: OperandNone},
	OpLdElemI4:  {name: "ldelem.i4", b1: 0x94, operand: OperandNone},
	OpStElemI4:  {name: "stelem.i4", b1: 0x9E, operand: OperandNone},
	OpLdElemRef: {name: "ldelem.ref", b1: 0x9A, operand: OperandNone},
	OpStElemRef: {name: "stelem.ref", b1: 0xA2, operand: OperandNone},
	OpLdElem:    {name: "ldelem", b1: 0xA3, operand: OperandToken},
	OpLdElema:   {name: "ldelema", b1: 0x8F, operand: OperandToken},
	OpStElem:    {name: "stelem", b1: 0xA4, operand: OperandToken},

	// initobj/cpobj are grouped by §4.3 with the single-byte-opcode +
	// 4-byte-token family; the real CIL table instead fat-prefixes
	// initobj, which this implementation does not follow.
	OpInitObj: {name: "initobj", b1: 0x79, operand: OperandToken},
	OpCpObj:   {name: "cpobj", b1: 0x70, operand: OperandToken},
}

var (
	decodeByte1 = map[byte]Mnemonic{}
	decodeFat   = map[byte]Mnemonic{}
)

func init() {
	for m := Mnemonic(0); m < opCount; m++ {
		info := opTable[m]
		if info.fat {
			decodeFat[info.b2] = m
		} else {
			decodeByte1[info.b1] = m
		}
	}
}

func (m Mnemonic) String() string {
	if m < opCount {
		return opTable[m].name
	}
	return fmt.Sprintf("Mnemonic(%d)", uint8(m))
}

// Size returns the exact encoded size in bytes of an instruction with
// this mnemonic (§8 invariant 2).
func (m Mnemonic) Size() int {
	info := opTable[m]
	head := 1
	if info.fat {
		head = 2
	}
	switch info.operand {
	case OperandNone:
		return head
	case OperandU8, OperandI8:
		return head + 1
	case OperandU16:
		return head + 2
	case OperandBranch, OperandI32, OperandToken:
		return head + 4
	default:
		return head
	}
}

// Instruction is one decoded bytecode instruction together with its
// operand, if any. Only the field matching the opcode's OperandKind is
// meaningful.
type Instruction struct {
	Op  Mnemonic
	U8  uint8
	I8  int8
	U16 uint16
	I32 int32 // ldc.i4 literal, or a branch's PC-relative offset
	Tok Token
}

// Encode appends the instruction's bytes to w.
func (inst Instruction) Encode(w *writer) {
	info := opTable[inst.Op]
	w.u8(info.b1)
	if info.fat {
		w.u8(info.b2)
	}
	switch info.operand {
	case OperandU8:
		w.u8(inst.U8)
	case OperandI8:
		w.u8(uint8(inst.I8))
	case OperandU16:
		w.u16(inst.U16)
	case OperandBranch, OperandI32:
		w.i32(inst.I32)
	case OperandToken:
		writeToken(w, inst.Tok)
	}
}

// DecodeInstruction reads one instruction from r, returning it.
func DecodeInstruction(r *reader) (Instruction, error) {
	b1, err := r.u8()
	if err != nil {
		return Instruction{}, err
	}
	var m Mnemonic
	if b1 == 0xFE {
		b2, err := r.u8()
		if err != nil {
			return Instruction{}, err
		}
		var ok bool
		if m, ok = decodeFat[b2]; !ok {
			return Instruction{}, ErrUnknownOpcode
		}
	} else {
		var ok bool
		if m, ok = decodeByte1[b1]; !ok {
			return Instruction{}, ErrUnknownOpcode
		}
	}
	inst := Instruction{Op: m}
	info := opTable[m]
	switch info.operand {
	case OperandU8:
		v, err := r.u8()
		if err != nil {
			return Instruction{}, err
		}
		inst.U8 = v
	case OperandI8:
		v, err := r.u8()
		if err != nil {
			return Instruction{}, err
		}
		inst.I8 = int8(v)
	case OperandU16:
		v, err := r.u16()
		if err != nil {
			return Instruction{}, err
		}
		inst.U16 = v
	case OperandBranch, OperandI32:
		v, err := r.i32()
		if err != nil {
			return Instruction{}, err
		}
		inst.I32 = v
	case OperandToken:
		tok, err := readToken(r)
		if err != nil {
			return Instruction{}, err
		}
		inst.Tok = tok
	}
	return inst, nil
}

// Mnemonic returns the human-readable name of the opcode, as used by
// xil/asm's disassembler.
func (inst Instruction) Mnemonic() string { return inst.Op.String() }

// EncodeInstructionAppend appends inst's encoded bytes to buf and returns
// the extended slice. Exported so xil/asm can build a method body's
// bytecode without access to this package's internal writer type.
func EncodeInstructionAppend(buf []byte, inst Instruction) []byte {
	w := newWriter()
	inst.Encode(w)
	return append(buf, w.bytesOut()...)
}

// DecodeInstructionAt decodes one instruction from code starting at
// offset, returning the instruction and the offset of the byte
// immediately following it. Exported so xil/vmrt and xil/asm can step a
// method body's bytecode without access to this package's internal
// cursor type.
func DecodeInstructionAt(code []byte, offset int) (Instruction, int, error) {
	if offset < 0 || offset > len(code) {
		return Instruction{}, offset, ErrTruncated
	}
	r := newReader(code[offset:])
	inst, err := DecodeInstruction(r)
	if err != nil {
		return Instruction{}, offset, err
	}
	return inst, offset + r.pos, nil
}

package asm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xi-lang/xil"
)

// allMnemonics enumerates every exported Mnemonic constant so this
// package can build a name->Mnemonic table without reaching into xil's
// unexported opcode table.
var allMnemonics = []xil.Mnemonic{
	xil.OpNop,
	xil.OpLdArg0, xil.OpLdArg1, xil.OpLdArg2, xil.OpLdArg3, xil.OpLdArgS, xil.OpLdArgaS, xil.OpStArgS,
	xil.OpLdLoc0, xil.OpLdLoc1, xil.OpLdLoc2, xil.OpLdLoc3, xil.OpLdLocS, xil.OpLdLocaS, xil.OpLdLoc, xil.OpLdLoca,
	xil.OpStLoc0, xil.OpStLoc1, xil.OpStLoc2, xil.OpStLoc3, xil.OpStLocS, xil.OpStLoc,
	xil.OpLdNull,
	xil.OpLdcI4M1, xil.OpLdcI40, xil.OpLdcI41, xil.OpLdcI42, xil.OpLdcI43, xil.OpLdcI44, xil.OpLdcI45, xil.OpLdcI46, xil.OpLdcI47, xil.OpLdcI48,
	xil.OpLdcI4S, xil.OpLdcI4,
	xil.OpDup, xil.OpPop,
	xil.OpCall, xil.OpCallVirt, xil.OpNewObj, xil.OpRet,
	xil.OpBr, xil.OpBrFalse, xil.OpBrTrue, xil.OpBEq, xil.OpBGe, xil.OpBGt, xil.OpBLe, xil.OpBLt,
	xil.OpCEq, xil.OpCGt, xil.OpCLt,
	xil.OpAdd, xil.OpSub, xil.OpMul, xil.OpDiv, xil.OpRem, xil.OpNeg,
	xil.OpLdFld, xil.OpLdFlda, xil.OpStFld, xil.OpLdSFld, xil.OpLdSFlda, xil.OpStSFld,
	xil.OpLdStr,
	xil.OpNewArr, xil.OpLdLen, xil.OpLdElemI4, xil.OpStElemI4, xil.OpLdElemRef, xil.OpStElemRef, xil.OpLdElem, xil.OpLdElema, xil.OpStElem,
	xil.OpInitObj, xil.OpCpObj,
}

var mnemonicByName = func() map[string]xil.Mnemonic {
	m := make(map[string]xil.Mnemonic, len(allMnemonics))
	for _, mn := range allMnemonics {
		m[mn.String()] = mn
	}
	return m
}()

// operandCategory classifies how parseInstructionLine must read an
// instruction's trailing text, mirroring (from the outside) the
// OperandKind grouping inst.go's opTable assigns internally.
type operandCategory int

const (
	catNone operandCategory = iota
	catU8
	catI8
	catU16
	catI32
	catBranch
	catTokenMethod
	catTokenField
	catTokenStr
	catTokenType
)

func categoryOf(mn xil.Mnemonic) operandCategory {
	switch mn {
	case xil.OpLdArgS, xil.OpLdArgaS, xil.OpStArgS, xil.OpLdLocS, xil.OpLdLocaS, xil.OpStLocS:
		return catU8
	case xil.OpLdcI4S:
		return catI8
	case xil.OpLdLoc, xil.OpLdLoca, xil.OpStLoc:
		return catU16
	case xil.OpLdcI4:
		return catI32
	case xil.OpBr, xil.OpBrFalse, xil.OpBrTrue, xil.OpBEq, xil.OpBGe, xil.OpBGt, xil.OpBLe, xil.OpBLt:
		return catBranch
	case xil.OpCall, xil.OpCallVirt, xil.OpNewObj:
		return catTokenMethod
	case xil.OpLdFld, xil.OpLdFlda, xil.OpStFld, xil.OpLdSFld, xil.OpLdSFlda, xil.OpStSFld:
		return catTokenField
	case xil.OpLdStr:
		return catTokenStr
	case xil.OpNewArr, xil.OpLdElem, xil.OpLdElema, xil.OpStElem, xil.OpInitObj, xil.OpCpObj:
		return catTokenType
	default:
		return catNone
	}
}

// pendingInstr is one method-body instruction before branch targets are
// resolved to concrete byte offsets.
type pendingInstr struct {
	label       string // label defined at this instruction, if any
	inst        xil.Instruction
	branchLabel string // set (instead of inst.I32) for catBranch instructions
	lineNo      int
}

func (mb *moduleBuilder) parseInstructionLine(line sourceLine) (pendingInstr, error) {
	fields := line.fields
	label := ""
	if strings.HasSuffix(fields[0], ":") {
		label = strings.TrimSuffix(fields[0], ":")
		fields = fields[1:]
	}
	if len(fields) == 0 {
		return pendingInstr{}, fmt.Errorf("asm: line %d: empty instruction", line.no)
	}
	mn, ok := mnemonicByName[fields[0]]
	if !ok {
		return pendingInstr{}, fmt.Errorf("asm: line %d: unknown mnemonic %q", line.no, fields[0])
	}
	operands := fields[1:]
	inst := xil.Instruction{Op: mn}
	pi := pendingInstr{label: label, lineNo: line.no}

	needOperand := func(n int) error {
		if len(operands) != n {
			return fmt.Errorf("asm: line %d: %s expects %d operand(s), got %d", line.no, mn, n, len(operands))
		}
		return nil
	}

	switch categoryOf(mn) {
	case catNone:
		if err := needOperand(0); err != nil {
			return pendingInstr{}, err
		}
	case catU8:
		if err := needOperand(1); err != nil {
			return pendingInstr{}, err
		}
		v, err := strconv.ParseUint(operands[0], 10, 8)
		if err != nil {
			return pendingInstr{}, fmt.Errorf("asm: line %d: %w", line.no, err)
		}
		inst.U8 = uint8(v)
	case catI8:
		if err := needOperand(1); err != nil {
			return pendingInstr{}, err
		}
		v, err := strconv.ParseInt(operands[0], 10, 8)
		if err != nil {
			return pendingInstr{}, fmt.Errorf("asm: line %d: %w", line.no, err)
		}
		inst.I8 = int8(v)
	case catU16:
		if err := needOperand(1); err != nil {
			return pendingInstr{}, err
		}
		v, err := strconv.ParseUint(operands[0], 10, 16)
		if err != nil {
			return pendingInstr{}, fmt.Errorf("asm: line %d: %w", line.no, err)
		}
		inst.U16 = uint16(v)
	case catI32:
		if err := needOperand(1); err != nil {
			return pendingInstr{}, err
		}
		v, err := strconv.ParseInt(operands[0], 10, 32)
		if err != nil {
			return pendingInstr{}, fmt.Errorf("asm: line %d: %w", line.no, err)
		}
		inst.I32 = int32(v)
	case catBranch:
		if err := needOperand(1); err != nil {
			return pendingInstr{}, err
		}
		pi.branchLabel = operands[0]
	case catTokenMethod:
		if err := needOperand(1); err != nil {
			return pendingInstr{}, err
		}
		key, err := unquote(operands[0])
		if err != nil {
			return pendingInstr{}, fmt.Errorf("asm: line %d: %w", line.no, err)
		}
		idx, ok := mb.methodLookup[key]
		if !ok {
			return pendingInstr{}, fmt.Errorf("asm: line %d: undeclared method %q", line.no, key)
		}
		inst.Tok = xil.NewToken(xil.TagMethod, idx)
	case catTokenField:
		if err := needOperand(1); err != nil {
			return pendingInstr{}, err
		}
		key, err := unquote(operands[0])
		if err != nil {
			return pendingInstr{}, fmt.Errorf("asm: line %d: %w", line.no, err)
		}
		idx, ok := mb.fieldLookup[key]
		if !ok {
			return pendingInstr{}, fmt.Errorf("asm: line %d: undeclared field %q", line.no, key)
		}
		inst.Tok = xil.NewToken(xil.TagField, idx)
	case catTokenStr:
		if err := needOperand(1); err != nil {
			return pendingInstr{}, err
		}
		lit, err := unquote(operands[0])
		if err != nil {
			return pendingInstr{}, fmt.Errorf("asm: line %d: %w", line.no, err)
		}
		inst.Tok = xil.NewToken(0, mb.internUsrStr(lit))
	case catTokenType:
		if err := needOperand(1); err != nil {
			return pendingInstr{}, err
		}
		name, err := unquote(operands[0])
		if err != nil {
			return pendingInstr{}, fmt.Errorf("asm: line %d: %w", line.no, err)
		}
		tok, err := mb.classToken(name)
		if err != nil {
			return pendingInstr{}, fmt.Errorf("asm: line %d: %w", line.no, err)
		}
		inst.Tok = tok
	}

	pi.inst = inst
	return pi, nil
}

// resolveBytecode lays out instrs sequentially, resolves each branch's
// label to a signed PC-relative offset from the byte after the branch
// instruction (matching vmrt/dispatch.go's `next + inst.I32`), and
// encodes the result.
func resolveBytecode(instrs []pendingInstr) ([]byte, error) {
	offsets := make([]int, len(instrs))
	labels := make(map[string]int, len(instrs))
	pos := 0
	for i, pi := range instrs {
		offsets[i] = pos
		if pi.label != "" {
			labels[pi.label] = pos
		}
		pos += pi.inst.Op.Size()
	}

	out := make([]byte, 0, pos)
	for i, pi := range instrs {
		inst := pi.inst
		if pi.branchLabel != "" {
			target, ok := labels[pi.branchLabel]
			if !ok {
				return nil, fmt.Errorf("line %d: undefined label %q", pi.lineNo, pi.branchLabel)
			}
			next := offsets[i] + inst.Op.Size()
			inst.I32 = int32(target - next)
		}
		out = xil.EncodeInstructionAppend(out, inst)
	}
	return out, nil
}

// Copyright the xil authors.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package vmrt_test

import (
	"testing"

	"github.com/xi-lang/xil"
)

// TestInvariant_BranchTargetOnInstructionBoundary re-decodes a branch
// body and checks that a taken branch's target (p + size(inst) + delta)
// lands exactly on the start of another decoded instruction, never mid-
// instruction.
func TestInvariant_BranchTargetOnInstructionBoundary(t *testing.T) {
	body := assembleBody([]labeledInstr{
		{inst: xil.Instruction{Op: xil.OpLdcI40}},
		{inst: xil.Instruction{Op: xil.OpBrFalse}, branchTo: "L"},
		{inst: xil.Instruction{Op: xil.OpLdcI41}},
		{inst: xil.Instruction{Op: xil.OpRet}},
		{label: "L", inst: xil.Instruction{Op: xil.OpLdcI42}},
		{inst: xil.Instruction{Op: xil.OpRet}},
	})

	// Decode every instruction, recording each one's start offset.
	starts := map[int]xil.Instruction{}
	for off := 0; off < len(body); {
		inst, next, err := xil.DecodeInstructionAt(body, off)
		if err != nil {
			t.Fatalf("decode at %d: %v", off, err)
		}
		starts[off] = inst
		off = next
	}

	brFalseOff := 1 // ldc.i4.0 is one byte
	inst := starts[brFalseOff]
	if inst.Op != xil.OpBrFalse {
		t.Fatalf("expected brfalse at offset %d, got %v", brFalseOff, inst.Op)
	}
	next := brFalseOff + inst.Op.Size()
	target := next + int(inst.I32)
	if _, ok := starts[target]; !ok {
		t.Fatalf("branch target %d does not land on an instruction boundary", target)
	}
	if starts[target].Op != xil.OpLdcI42 {
		t.Fatalf("branch target %d: want ldc.i4.2, got %v", target, starts[target].Op)
	}
}

// TestInvariant_StFldLdFldRoundtrip: a newly constructed instance has a
// field stored with stfld and loaded back with ldfld, round-tripping the
// exact value bit-for-bit.
func TestInvariant_StFldLdFldRoundtrip(t *testing.T) {
	var p pools
	nameBox := p.str("Box")
	nameV := p.str("v")
	nameCtor := p.str(".ctor")
	nameSet := p.str("Set")
	nameGet := p.str("Get")
	nameProgram := p.str("Program")
	nameMain := p.str("Main")
	p.str("invfld")

	fieldSigIdx := p.blob(xil.EncodeFieldSig(xil.FieldSig{Type: xil.Simple(xil.EleI4)}))
	ctorSigIdx := p.blob(xil.EncodeMethodSig(xil.MethodSig{HasThis: true, Ret: xil.Simple(xil.EleVoid)}))
	setSigIdx := p.blob(xil.EncodeMethodSig(xil.MethodSig{
		HasThis: true,
		Params:  []xil.EleType{xil.Simple(xil.EleI4)},
		Ret:     xil.Simple(xil.EleVoid),
	}))
	getSigIdx := p.blob(xil.EncodeMethodSig(xil.MethodSig{HasThis: true, Ret: xil.Simple(xil.EleI4)}))
	mainSigIdx := p.blob(xil.EncodeMethodSig(xil.MethodSig{Ret: xil.Simple(xil.EleI4)}))

	fieldTok := xil.NewToken(xil.TagField, 1)

	ctorBody := assembleBody([]labeledInstr{{inst: xil.Instruction{Op: xil.OpRet}}})
	setBody := assembleBody([]labeledInstr{
		{inst: xil.Instruction{Op: xil.OpLdArg0}},
		{inst: xil.Instruction{Op: xil.OpLdArg1}},
		{inst: xil.Instruction{Op: xil.OpStFld, Tok: fieldTok}},
		{inst: xil.Instruction{Op: xil.OpRet}},
	})
	getBody := assembleBody([]labeledInstr{
		{inst: xil.Instruction{Op: xil.OpLdArg0}},
		{inst: xil.Instruction{Op: xil.OpLdFld, Tok: fieldTok}},
		{inst: xil.Instruction{Op: xil.OpRet}},
	})
	mainBody := assembleBody([]labeledInstr{
		{inst: xil.Instruction{Op: xil.OpNewObj, Tok: xil.NewToken(xil.TagMethod, 1)}},
		{inst: xil.Instruction{Op: xil.OpDup}},
		{inst: xil.Instruction{Op: xil.OpLdcI4S, I8: 9}},
		{inst: xil.Instruction{Op: xil.OpCall, Tok: xil.NewToken(xil.TagMethod, 2)}},
		{inst: xil.Instruction{Op: xil.OpCall, Tok: xil.NewToken(xil.TagMethod, 3)}},
		{inst: xil.Instruction{Op: xil.OpRet}},
	})

	img := &xil.Image{
		Minor:  xil.CurrentMinorVersion,
		Major:  xil.CurrentMajorVersion,
		Module: xil.ModuleRow{Name: 8, Entrypoint: 4},
		TypeDefs: []xil.TypeDefRow{
			{Name: nameBox, Fields: 1, Methods: 1},
			{Name: nameProgram, Fields: 2, Methods: 4},
		},
		Fields: []xil.FieldRow{
			{Name: nameV, Sig: fieldSigIdx},
		},
		Methods: []xil.MethodRow{
			{Name: nameCtor, Sig: ctorSigIdx, Body: 1},
			{Name: nameSet, Sig: setSigIdx, Body: 2},
			{Name: nameGet, Sig: getSigIdx, Body: 3},
			{Name: nameMain, Sig: mainSigIdx, Body: 4},
		},
		Code: []xil.CodeRow{
			{MaxStack: 8, Bytecode: ctorBody},
			{MaxStack: 8, Bytecode: setBody},
			{MaxStack: 8, Bytecode: getBody},
			{MaxStack: 8, Bytecode: mainBody},
		},
		StrHeap:  p.strs,
		BlobHeap: p.blobs,
	}

	ret := runEntry(t, "invfld", img)
	if ret.AsI32() != 9 {
		t.Fatalf("stfld/ldfld roundtrip: want 9, got %d", ret.AsI32())
	}
}

// TestInvariant_NewArrLdLen: an array allocated with a length of n
// reports ldlen == n.
func TestInvariant_NewArrLdLen(t *testing.T) {
	var p pools
	nameMain := p.str("Main")
	nameProgram := p.str("Program")
	p.str("invarr")

	body := assembleBody([]labeledInstr{
		{inst: xil.Instruction{Op: xil.OpLdcI4S, I8: 11}},
		{inst: xil.Instruction{Op: xil.OpNewArr, Tok: xil.NullToken}},
		{inst: xil.Instruction{Op: xil.OpLdLen}},
		{inst: xil.Instruction{Op: xil.OpRet}},
	})
	sigIdx := p.blob(xil.EncodeMethodSig(xil.MethodSig{Ret: xil.Simple(xil.EleI4)}))

	img := &xil.Image{
		Minor:  xil.CurrentMinorVersion,
		Major:  xil.CurrentMajorVersion,
		Module: xil.ModuleRow{Name: 3, Entrypoint: 1},
		TypeDefs: []xil.TypeDefRow{
			{Name: nameProgram, Fields: 1, Methods: 1},
		},
		Methods: []xil.MethodRow{
			{Name: nameMain, Sig: sigIdx, Body: 1},
		},
		Code:     []xil.CodeRow{{MaxStack: 8, Bytecode: body}},
		StrHeap:  p.strs,
		BlobHeap: p.blobs,
	}

	ret := runEntry(t, "invarr", img)
	if ret.AsI32() != 11 {
		t.Fatalf("newarr/ldlen: want 11, got %d", ret.AsI32())
	}
}

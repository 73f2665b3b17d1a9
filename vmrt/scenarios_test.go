// Copyright the xil authors.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package vmrt_test

import (
	"testing"

	"github.com/xi-lang/xil"
	"github.com/xi-lang/xil/loader"
	"github.com/xi-lang/xil/vmrt"
)

// pools accumulates str_heap/usr_str_heap/blob_heap entries for a
// hand-built image, handing back the 1-based index each table uses.
type pools struct {
	strs  []string
	usrs  []string
	blobs [][]byte
}

func (p *pools) str(s string) uint32 {
	p.strs = append(p.strs, s)
	return uint32(len(p.strs))
}

func (p *pools) usr(s string) uint32 {
	p.usrs = append(p.usrs, s)
	return uint32(len(p.usrs))
}

func (p *pools) blob(b []byte) uint32 {
	p.blobs = append(p.blobs, b)
	return uint32(len(p.blobs))
}

// labeledInstr is one not-yet-laid-out method body instruction, mirroring
// xil/asm's pendingInstr: branches reference a label instead of carrying
// their PC-relative offset directly.
type labeledInstr struct {
	label    string
	inst     xil.Instruction
	branchTo string
}

// assembleBody lays out instrs sequentially and resolves branch labels to
// PC-relative offsets the same way xil/asm's resolveBytecode does, without
// going through the xil/asm package itself.
func assembleBody(instrs []labeledInstr) []byte {
	offsets := make([]int, len(instrs))
	labels := make(map[string]int, len(instrs))
	pos := 0
	for i, li := range instrs {
		offsets[i] = pos
		if li.label != "" {
			labels[li.label] = pos
		}
		pos += li.inst.Op.Size()
	}

	out := make([]byte, 0, pos)
	for i, li := range instrs {
		inst := li.inst
		if li.branchTo != "" {
			next := offsets[i] + inst.Op.Size()
			inst.I32 = int32(labels[li.branchTo] - next)
		}
		out = xil.EncodeInstructionAppend(out, inst)
	}
	return out
}

// TestScenarioS1_IntegerAdd: ldc.i4.3, ldc.i4.4, add, ret returning I4 ->
// the return slot contains 7.
func TestScenarioS1_IntegerAdd(t *testing.T) {
	var p pools
	nameMain := p.str("Main")
	nameProgram := p.str("Program")
	p.str("s1")

	body := assembleBody([]labeledInstr{
		{inst: xil.Instruction{Op: xil.OpLdcI43}},
		{inst: xil.Instruction{Op: xil.OpLdcI44}},
		{inst: xil.Instruction{Op: xil.OpAdd}},
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

	ret := runEntry(t, "s1", img)
	if ret.AsI32() != 7 {
		t.Fatalf("S1: want 7, got %d", ret.AsI32())
	}
}

// TestScenarioS2_ArrayRoundtrip: newarr I4 5, dup, ldc.i4.2, ldc.i4.9,
// stelem.i4, ldc.i4.2, ldelem.i4, ret -> returns 9. The array's length is
// pushed explicitly (ldc.i4.5) ahead of newarr, since this opcode table's
// newarr takes its element count from the stack rather than an immediate.
func TestScenarioS2_ArrayRoundtrip(t *testing.T) {
	var p pools
	nameMain := p.str("Main")
	nameProgram := p.str("Program")
	p.str("s2")

	body := assembleBody([]labeledInstr{
		{inst: xil.Instruction{Op: xil.OpLdcI45}},
		{inst: xil.Instruction{Op: xil.OpNewArr, Tok: xil.NullToken}},
		{inst: xil.Instruction{Op: xil.OpDup}},
		{inst: xil.Instruction{Op: xil.OpLdcI42}},
		{inst: xil.Instruction{Op: xil.OpLdcI4S, I8: 9}},
		{inst: xil.Instruction{Op: xil.OpStElemI4}},
		{inst: xil.Instruction{Op: xil.OpLdcI42}},
		{inst: xil.Instruction{Op: xil.OpLdElemI4}},
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

	ret := runEntry(t, "s2", img)
	if ret.AsI32() != 9 {
		t.Fatalf("S2: want 9, got %d", ret.AsI32())
	}
}

// TestScenarioS3_VirtualDispatch: class A{virtual f->42}, class B:A{override
// f->7}; callvirt f on a B via an A-typed call site returns 7.
func TestScenarioS3_VirtualDispatch(t *testing.T) {
	var p pools
	nameA := p.str("A")
	nameB := p.str("B")
	nameF := p.str("f")
	nameCtor := p.str(".ctor")
	nameProgram := p.str("Program")
	nameMain := p.str("Main")
	p.str("s3")

	instanceI4Ret := xil.EncodeMethodSig(xil.MethodSig{HasThis: true, Ret: xil.Simple(xil.EleI4)})
	ctorSig := xil.EncodeMethodSig(xil.MethodSig{HasThis: true, Ret: xil.Simple(xil.EleVoid)})
	staticI4Ret := xil.EncodeMethodSig(xil.MethodSig{Ret: xil.Simple(xil.EleI4)})

	fASig := p.blob(instanceI4Ret)
	fBSig := p.blob(instanceI4Ret)
	ctorSigIdx := p.blob(ctorSig)
	mainSigIdx := p.blob(staticI4Ret)

	fABody := assembleBody([]labeledInstr{
		{inst: xil.Instruction{Op: xil.OpLdcI4S, I8: 42}},
		{inst: xil.Instruction{Op: xil.OpRet}},
	})
	fBBody := assembleBody([]labeledInstr{
		{inst: xil.Instruction{Op: xil.OpLdcI4S, I8: 7}},
		{inst: xil.Instruction{Op: xil.OpRet}},
	})
	ctorBody := assembleBody([]labeledInstr{
		{inst: xil.Instruction{Op: xil.OpRet}},
	})
	// B::.ctor is invoked via newobj's implicit self; its token names the
	// constructor, so callvirt below still resolves statically against
	// A::f and dispatches virtually through the B instance's own vtable.
	mainBody := assembleBody([]labeledInstr{
		{inst: xil.Instruction{Op: xil.OpNewObj, Tok: xil.NewToken(xil.TagMethod, 3)}},
		{inst: xil.Instruction{Op: xil.OpCallVirt, Tok: xil.NewToken(xil.TagMethod, 1)}},
		{inst: xil.Instruction{Op: xil.OpRet}},
	})

	img := &xil.Image{
		Minor:  xil.CurrentMinorVersion,
		Major:  xil.CurrentMajorVersion,
		Module: xil.ModuleRow{Name: 7, Entrypoint: 4},
		TypeDefs: []xil.TypeDefRow{
			{Name: nameA, Fields: 1, Methods: 1},
			{Name: nameB, Extends: xil.NewToken(xil.TagTypeDef, 1), Fields: 1, Methods: 2},
			{Name: nameProgram, Fields: 1, Methods: 4},
		},
		Methods: []xil.MethodRow{
			{Name: nameF, Sig: fASig, Body: 1},
			{Name: nameF, Sig: fBSig, Body: 2},
			{Name: nameCtor, Sig: ctorSigIdx, Body: 3},
			{Name: nameMain, Sig: mainSigIdx, Body: 4},
		},
		Code: []xil.CodeRow{
			{MaxStack: 8, Bytecode: fABody},
			{MaxStack: 8, Bytecode: fBBody},
			{MaxStack: 8, Bytecode: ctorBody},
			{MaxStack: 8, Bytecode: mainBody},
		},
		StrHeap:  p.strs,
		BlobHeap: p.blobs,
	}

	ret := runEntry(t, "s3", img)
	if ret.AsI32() != 7 {
		t.Fatalf("S3: want 7, got %d", ret.AsI32())
	}
}

// TestScenarioS6_Branch: ldc.i4.0, brfalse L, ldc.i4.1, ret; L: ldc.i4.2,
// ret -> returns 2.
func TestScenarioS6_Branch(t *testing.T) {
	var p pools
	nameMain := p.str("Main")
	nameProgram := p.str("Program")
	p.str("s6")

	body := assembleBody([]labeledInstr{
		{inst: xil.Instruction{Op: xil.OpLdcI40}},
		{inst: xil.Instruction{Op: xil.OpBrFalse}, branchTo: "L"},
		{inst: xil.Instruction{Op: xil.OpLdcI41}},
		{inst: xil.Instruction{Op: xil.OpRet}},
		{label: "L", inst: xil.Instruction{Op: xil.OpLdcI42}},
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

	ret := runEntry(t, "s6", img)
	if ret.AsI32() != 2 {
		t.Fatalf("S6: want 2, got %d", ret.AsI32())
	}
}

// runEntry loads img as the root module rootName and invokes its entry
// method, failing the test on any load or execution error.
func runEntry(t *testing.T, rootName string, img *xil.Image) vmrt.Slot {
	t.Helper()
	prog, err := loader.Load(rootName, img, nil)
	if err != nil {
		t.Fatalf("loader.Load: %v", err)
	}
	interp := vmrt.NewInterp(prog, loader.StringTypeFullname, nil)
	ret, _, err := interp.Invoke(prog.Entry, nil, nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	return ret
}

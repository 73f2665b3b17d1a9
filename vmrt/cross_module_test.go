// Copyright the xil authors.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package vmrt_test

import (
	"encoding/binary"
	"fmt"
	"strings"
	"testing"

	"github.com/xi-lang/xil"
	"github.com/xi-lang/xil/loader"
	"github.com/xi-lang/xil/vmrt"
)

// TestScenarioS4_CrossModuleMemberRef builds two images: m1 exports a
// static Lib::g returning 5, m2 references it through a TypeRef/MemberRef
// pair resolved via a ModuleRef, and calls it from its entry method.
func TestScenarioS4_CrossModuleMemberRef(t *testing.T) {
	var p1 pools
	nameG := p1.str("g")
	nameLib := p1.str("Lib")
	p1.str("m1")

	m1Body := assembleBody([]labeledInstr{
		{inst: xil.Instruction{Op: xil.OpLdcI4S, I8: 5}},
		{inst: xil.Instruction{Op: xil.OpRet}},
	})
	m1SigIdx := p1.blob(xil.EncodeMethodSig(xil.MethodSig{Ret: xil.Simple(xil.EleI4)}))

	m1 := &xil.Image{
		Minor:  xil.CurrentMinorVersion,
		Major:  xil.CurrentMajorVersion,
		Module: xil.ModuleRow{Name: 3, Entrypoint: 0},
		TypeDefs: []xil.TypeDefRow{
			{Name: nameLib, Fields: 1, Methods: 1},
		},
		Methods: []xil.MethodRow{
			{Name: nameG, Sig: m1SigIdx, Body: 1},
		},
		Code:     []xil.CodeRow{{MaxStack: 8, Bytecode: m1Body}},
		StrHeap:  p1.strs,
		BlobHeap: p1.blobs,
	}

	var p2 pools
	nameLib2 := p2.str("Lib")
	nameG2 := p2.str("g")
	nameProgram := p2.str("Program")
	nameMain := p2.str("Main")
	p2.str("m1")
	p2.str("m2")

	m2SigIdx := p2.blob(xil.EncodeMethodSig(xil.MethodSig{Ret: xil.Simple(xil.EleI4)}))
	memberRefSigIdx := p2.blob(xil.EncodeMethodSig(xil.MethodSig{Ret: xil.Simple(xil.EleI4)}))

	m2Body := assembleBody([]labeledInstr{
		{inst: xil.Instruction{Op: xil.OpCall, Tok: xil.NewToken(xil.TagMemberRef, 1)}},
		{inst: xil.Instruction{Op: xil.OpRet}},
	})

	m2 := &xil.Image{
		Minor:   xil.CurrentMinorVersion,
		Major:   xil.CurrentMajorVersion,
		Module:  xil.ModuleRow{Name: 6, Entrypoint: 1},
		ModRefs: []xil.ModuleRefRow{{Name: 5}},
		TypeRefs: []xil.TypeRefRow{
			{ResolutionScope: xil.NewToken(xil.TagModuleRef, 1), Name: nameLib2},
		},
		MemberRefs: []xil.MemberRefRow{
			{Parent: xil.NewToken(xil.TagTypeRef, 1), Name: nameG2, Sig: memberRefSigIdx},
		},
		TypeDefs: []xil.TypeDefRow{
			{Name: nameProgram, Fields: 1, Methods: 1},
		},
		Methods: []xil.MethodRow{
			{Name: nameMain, Sig: m2SigIdx, Body: 1},
		},
		Code:     []xil.CodeRow{{MaxStack: 8, Bytecode: m2Body}},
		StrHeap:  p2.strs,
		BlobHeap: p2.blobs,
	}

	resolve := func(name string) (*xil.Image, error) {
		if name == "m1" {
			return m1, nil
		}
		return nil, fmt.Errorf("unknown module %q", name)
	}

	prog, err := loader.Load("m2", m2, &loader.Options{Resolve: resolve})
	if err != nil {
		t.Fatalf("loader.Load: %v", err)
	}
	interp := vmrt.NewInterp(prog, loader.StringTypeFullname, nil)
	ret, _, err := interp.Invoke(prog.Entry, nil, nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if ret.AsI32() != 5 {
		t.Fatalf("S4: want 5, got %d", ret.AsI32())
	}
}

// fakeBridge is a test-local vmrt.NativeBridge standing in for
// xil/native's real plugin-backed Bridge, which needs a compiled .so and
// so can't be exercised from a unit test. It decodes the packed String
// argument straight out of the interpreter's own heap.
type fakeBridge struct {
	heap *vmrt.Heap
	out  strings.Builder
}

func (b *fakeBridge) Invoke(scope, symbol string, args []byte, retSize int) ([]byte, error) {
	if scope != "io" || symbol != "write" {
		return nil, fmt.Errorf("fakeBridge: unexpected foreign call %s.%s", scope, symbol)
	}
	ptr := vmrt.Ptr(binary.BigEndian.Uint64(args))
	n := b.heap.StrLen(ptr)
	raw := b.heap.Bytes(ptr, 0, n*4)
	for i := 0; i < n; i++ {
		b.out.WriteRune(rune(binary.BigEndian.Uint32(raw[i*4:])))
	}
	return nil, nil
}

// TestScenarioS5_ForeignCall: ldstr "hi", call a foreign-bound
// Program::Write(string), ret — the fake bridge records "hi" and the
// entry method returns without error.
func TestScenarioS5_ForeignCall(t *testing.T) {
	var p pools
	nameProgram := p.str("Program")
	nameWrite := p.str("Write")
	nameMain := p.str("Main")
	p.str("io")
	p.str("write")
	p.str("s5")
	hiIdx := p.usr("hi")

	writeSigIdx := p.blob(xil.EncodeMethodSig(xil.MethodSig{
		Params: []xil.EleType{xil.Simple(xil.EleString)},
		Ret:    xil.Simple(xil.EleVoid),
	}))
	mainSigIdx := p.blob(xil.EncodeMethodSig(xil.MethodSig{Ret: xil.Simple(xil.EleVoid)}))

	mainBody := assembleBody([]labeledInstr{
		{inst: xil.Instruction{Op: xil.OpLdStr, Tok: xil.NewToken(0, hiIdx)}},
		{inst: xil.Instruction{Op: xil.OpCall, Tok: xil.NewToken(xil.TagMethod, 1)}},
		{inst: xil.Instruction{Op: xil.OpRet}},
	})

	img := &xil.Image{
		Minor:   xil.CurrentMinorVersion,
		Major:   xil.CurrentMajorVersion,
		Module:  xil.ModuleRow{Name: 6, Entrypoint: 1},
		ModRefs: []xil.ModuleRefRow{{Name: 4}},
		TypeDefs: []xil.TypeDefRow{
			{Name: nameProgram, Fields: 1, Methods: 1},
		},
		Methods: []xil.MethodRow{
			{Name: nameWrite, Sig: writeSigIdx, Body: 0},
			{Name: nameMain, Sig: mainSigIdx, Body: 1},
		},
		ImplMaps: []xil.ImplMapRow{
			{Member: xil.NewToken(xil.TagMethod, 1), Name: 5, Scope: 1},
		},
		Code:       []xil.CodeRow{{MaxStack: 8, Bytecode: mainBody}},
		StrHeap:    p.strs,
		UsrStrHeap: p.usrs,
		BlobHeap:   p.blobs,
	}

	ioImg := &xil.Image{
		Minor:  xil.CurrentMinorVersion,
		Major:  xil.CurrentMajorVersion,
		Module: xil.ModuleRow{Name: 1, Entrypoint: 0},
		StrHeap: []string{"io"},
	}
	resolve := func(name string) (*xil.Image, error) {
		if name == "io" {
			return ioImg, nil
		}
		return nil, fmt.Errorf("unknown module %q", name)
	}

	prog, err := loader.Load("s5", img, &loader.Options{Resolve: resolve})
	if err != nil {
		t.Fatalf("loader.Load: %v", err)
	}

	bridge := &fakeBridge{}
	interp := vmrt.NewInterp(prog, loader.StringTypeFullname, &vmrt.Options{Bridge: bridge})
	bridge.heap = interp.Heap

	if _, _, err := interp.Invoke(prog.Entry, nil, nil); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got := bridge.out.String(); got != "hi" {
		t.Fatalf("S5: want captured output %q, got %q", "hi", got)
	}
}

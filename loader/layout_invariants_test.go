// Copyright the xil authors.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package loader_test

import (
	"testing"

	"github.com/xi-lang/xil"
	"github.com/xi-lang/xil/loader"
)

// TestInvariant_FieldOffsetInheritance checks that a field a derived type
// does not redeclare keeps the exact offset it was given in its declaring
// base type, and that a genuinely new derived field is laid out past the
// end of the inherited instance size (§8 invariant 7).
func TestInvariant_FieldOffsetInheritance(t *testing.T) {
	var strs []string
	var blobs [][]byte
	str := func(s string) uint32 {
		strs = append(strs, s)
		return uint32(len(strs))
	}
	blob := func(b []byte) uint32 {
		blobs = append(blobs, b)
		return uint32(len(blobs))
	}

	nameA := str("A")
	nameAField := str("a")
	nameF := str("f")
	nameB := str("B")
	nameBField := str("b")
	nameG := str("g")
	nameC := str("C")
	str("layoutinv")

	fieldSigIdx := blob(xil.EncodeFieldSig(xil.FieldSig{Type: xil.Simple(xil.EleI4)}))
	sigFIdx := blob(xil.EncodeMethodSig(xil.MethodSig{HasThis: true, Ret: xil.Simple(xil.EleI4)}))
	sigGIdx := blob(xil.EncodeMethodSig(xil.MethodSig{
		HasThis: true,
		Params:  []xil.EleType{xil.Simple(xil.EleI4)},
		Ret:     xil.Simple(xil.EleI4),
	}))

	ldarg0Fld := func(fieldRow uint32) []byte {
		body := xil.EncodeInstructionAppend(nil, xil.Instruction{Op: xil.OpLdArg0})
		body = xil.EncodeInstructionAppend(body, xil.Instruction{Op: xil.OpLdFld, Tok: xil.NewToken(xil.TagField, fieldRow)})
		body = xil.EncodeInstructionAppend(body, xil.Instruction{Op: xil.OpRet})
		return body
	}
	aF := ldarg0Fld(1)
	bF := ldarg0Fld(1) // override reads the inherited field "a", same offset
	bG := xil.EncodeInstructionAppend(nil, xil.Instruction{Op: xil.OpLdArg0})
	bG = xil.EncodeInstructionAppend(bG, xil.Instruction{Op: xil.OpLdArg1})
	bG = xil.EncodeInstructionAppend(bG, xil.Instruction{Op: xil.OpRet})
	cF2 := xil.EncodeInstructionAppend(nil, xil.Instruction{Op: xil.OpLdcI40})
	cF2 = xil.EncodeInstructionAppend(cF2, xil.Instruction{Op: xil.OpRet})

	img := &xil.Image{
		Minor:  xil.CurrentMinorVersion,
		Major:  xil.CurrentMajorVersion,
		Module: xil.ModuleRow{Name: 8, Entrypoint: 0},
		TypeDefs: []xil.TypeDefRow{
			{Name: nameA, Fields: 1, Methods: 1},
			{Name: nameB, Extends: xil.NewToken(xil.TagTypeDef, 1), Fields: 2, Methods: 2},
			{Name: nameC, Extends: xil.NewToken(xil.TagTypeDef, 2), Fields: 3, Methods: 4},
		},
		Fields: []xil.FieldRow{
			{Name: nameAField, Sig: fieldSigIdx},
			{Name: nameBField, Sig: fieldSigIdx},
		},
		Methods: []xil.MethodRow{
			{Name: nameF, Sig: sigFIdx, Body: 1},
			{Name: nameF, Sig: sigFIdx, Body: 2},
			{Name: nameG, Sig: sigGIdx, Body: 3},
			{Name: nameF, Sig: sigFIdx, Body: 4, Flags: xil.MethodNewSlot},
		},
		Code: []xil.CodeRow{
			{MaxStack: 8, Bytecode: aF},
			{MaxStack: 8, Bytecode: bF},
			{MaxStack: 8, Bytecode: bG},
			{MaxStack: 8, Bytecode: cF2},
		},
		StrHeap:  strs,
		BlobHeap: blobs,
	}

	prog, err := loader.Load("layoutinv", img, nil)
	if err != nil {
		t.Fatalf("loader.Load: %v", err)
	}

	types := prog.Images["layoutinv"].TypeDefList
	a, b, c := types[0], types[1], types[2]

	af := a.Fields["a"]
	if af == nil || af.Offset != 0 {
		t.Fatalf("A.a offset = %v, want 0", af)
	}
	if a.BasicInstanceSize != 4 {
		t.Fatalf("A.BasicInstanceSize = %d, want 4", a.BasicInstanceSize)
	}

	bf := b.Fields["b"]
	if bf == nil {
		t.Fatalf("B.b missing")
	}
	if bf.Offset != a.BasicInstanceSize {
		t.Fatalf("B.b offset = %d, want %d (past inherited A)", bf.Offset, a.BasicInstanceSize)
	}
	if b.BasicInstanceSize != a.BasicInstanceSize+4 {
		t.Fatalf("B.BasicInstanceSize = %d, want %d", b.BasicInstanceSize, a.BasicInstanceSize+4)
	}
	if _, ok := b.Fields["a"]; ok {
		t.Fatalf("B.Fields should not redeclare inherited field \"a\"")
	}
	if c.BasicInstanceSize != b.BasicInstanceSize {
		t.Fatalf("C.BasicInstanceSize = %d, want %d (no new fields)", c.BasicInstanceSize, b.BasicInstanceSize)
	}

	// TestInvariant_VtableSlotMonotonicity, inlined: B's override of A::f
	// reuses A's slot 0; B's new method g gets slot 1; C's NewSlot-flagged
	// override of f gets a fresh slot instead of reusing slot 0 (§8
	// invariant 8).
	af0 := a.Vtbl
	if len(af0) != 1 {
		t.Fatalf("A.Vtbl len = %d, want 1", len(af0))
	}
	aSlot := af0[0].VtblSlot
	if aSlot != 0 {
		t.Fatalf("A::f slot = %d, want 0", aSlot)
	}

	bfm := b.Methods[af0[0].SigKey]
	if bfm == nil || bfm.Name != "f" {
		t.Fatalf("B.Methods missing override of f")
	}
	if bfm.VtblSlot != aSlot {
		t.Fatalf("B::f (override) slot = %d, want reused slot %d", bfm.VtblSlot, aSlot)
	}
	if len(b.Vtbl) < 1 || b.Vtbl[aSlot] != bfm {
		t.Fatalf("B.Vtbl[%d] should be B's override, not A's", aSlot)
	}

	bgm := b.Methods[sigKeyFor(b, "g")]
	if bgm == nil {
		t.Fatalf("B.Methods missing g")
	}
	if bgm.VtblSlot != 1 {
		t.Fatalf("B::g slot = %d, want 1 (fresh)", bgm.VtblSlot)
	}
	if len(b.Vtbl) != 2 {
		t.Fatalf("B.Vtbl len = %d, want 2", len(b.Vtbl))
	}

	cfm := sigKeyFor(c, "f")
	cf2 := c.Methods[cfm]
	if cf2 == nil {
		t.Fatalf("C.Methods missing f2")
	}
	if cf2.VtblSlot == aSlot {
		t.Fatalf("C::f (MethodNewSlot) reused slot %d, want a fresh one", aSlot)
	}
	if cf2.VtblSlot != len(b.Vtbl) {
		t.Fatalf("C::f (MethodNewSlot) slot = %d, want %d (appended)", cf2.VtblSlot, len(b.Vtbl))
	}
	if c.Vtbl[aSlot] != bfm {
		t.Fatalf("C.Vtbl[%d] should still be B's override, untouched by C's NewSlot method", aSlot)
	}
}

func sigKeyFor(t *loader.LinkedType, name string) string {
	for key, m := range t.Methods {
		if m.Name == name {
			return key
		}
	}
	return ""
}

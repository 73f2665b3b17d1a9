// Copyright the xil authors.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package xil_test

import (
	"reflect"
	"testing"

	"github.com/xi-lang/xil"
)

// TestInvariant_ImageSerdeRoundtrip checks that encoding an image and
// decoding the result reproduces every table, heap, and header field
// exactly (§8 invariant 1).
func TestInvariant_ImageSerdeRoundtrip(t *testing.T) {
	body := xil.EncodeInstructionAppend(nil, xil.Instruction{Op: xil.OpLdcI43})
	body = xil.EncodeInstructionAppend(body, xil.Instruction{Op: xil.OpLdcI44})
	body = xil.EncodeInstructionAppend(body, xil.Instruction{Op: xil.OpAdd})
	body = xil.EncodeInstructionAppend(body, xil.Instruction{Op: xil.OpRet})

	sig := xil.EncodeMethodSig(xil.MethodSig{Ret: xil.Simple(xil.EleI4)})
	fieldSig := xil.EncodeFieldSig(xil.FieldSig{Type: xil.Simple(xil.EleI4)})
	localsSig := xil.EncodeLocalVarsSig(xil.LocalVarsSig{Vars: []xil.EleType{xil.Simple(xil.EleI4)}})

	original := &xil.Image{
		Minor:  xil.CurrentMinorVersion,
		Major:  xil.CurrentMajorVersion,
		Module: xil.ModuleRow{Name: 1, Entrypoint: 1},
		ModRefs: []xil.ModuleRefRow{
			{Name: 2},
		},
		TypeDefs: []xil.TypeDefRow{
			{Flags: 0x1, Name: 3, Extends: xil.NewToken(xil.TagTypeRef, 1), Fields: 1, Methods: 1},
		},
		TypeRefs: []xil.TypeRefRow{
			{ResolutionScope: xil.NewToken(xil.TagModuleRef, 1), Name: 4},
		},
		TypeSpecs: []xil.TypeSpecRow{
			{Sig: 3},
		},
		Fields: []xil.FieldRow{
			{Flags: 0, Name: 5, Sig: 1},
		},
		Methods: []xil.MethodRow{
			{Flags: 0, ImplFlags: 0, Name: 6, Sig: 2, FirstParam: 0, Body: 1},
		},
		MemberRefs: []xil.MemberRefRow{
			{Parent: xil.NewToken(xil.TagTypeDef, 1), Name: 7, Sig: 2},
		},
		ImplMaps: []xil.ImplMapRow{
			{Member: xil.NewToken(xil.TagMethod, 1), Name: 8, Scope: 1, Flags: 0},
		},
		Params: []xil.ParamRow{
			{Flags: 1, Sequence: 1, Name: 9},
		},
		StandaloneSigs: []xil.StandaloneSigRow{
			{Sig: 3},
		},
		StrHeap:    []string{"m", "io", "T", "Base", "v", "g", "h", "write", "p"},
		UsrStrHeap: []string{"hi"},
		BlobHeap:   [][]byte{fieldSig, sig, localsSig},
		Code: []xil.CodeRow{
			{MaxStack: 8, Locals: 1, Bytecode: body},
		},
	}

	encoded := original.Encode()
	decoded, err := xil.DecodeImage(encoded, nil)
	if err != nil {
		t.Fatalf("DecodeImage: %v", err)
	}

	checkEqual(t, "Minor", decoded.Minor, original.Minor)
	checkEqual(t, "Major", decoded.Major, original.Major)
	checkEqual(t, "Module", decoded.Module, original.Module)
	checkEqual(t, "ModRefs", decoded.ModRefs, original.ModRefs)
	checkEqual(t, "TypeDefs", decoded.TypeDefs, original.TypeDefs)
	checkEqual(t, "TypeRefs", decoded.TypeRefs, original.TypeRefs)
	checkEqual(t, "TypeSpecs", decoded.TypeSpecs, original.TypeSpecs)
	checkEqual(t, "Fields", decoded.Fields, original.Fields)
	checkEqual(t, "Methods", decoded.Methods, original.Methods)
	checkEqual(t, "MemberRefs", decoded.MemberRefs, original.MemberRefs)
	checkEqual(t, "ImplMaps", decoded.ImplMaps, original.ImplMaps)
	checkEqual(t, "Params", decoded.Params, original.Params)
	checkEqual(t, "StandaloneSigs", decoded.StandaloneSigs, original.StandaloneSigs)
	checkEqual(t, "StrHeap", decoded.StrHeap, original.StrHeap)
	checkEqual(t, "UsrStrHeap", decoded.UsrStrHeap, original.UsrStrHeap)
	checkEqual(t, "BlobHeap", decoded.BlobHeap, original.BlobHeap)
	checkEqual(t, "Code", decoded.Code, original.Code)
}

func checkEqual(t *testing.T, field string, got, want interface{}) {
	t.Helper()
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("roundtrip %s mismatch:\n got:  %#v\n want: %#v", field, got, want)
	}
}

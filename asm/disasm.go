package asm

import (
	"fmt"
	"strings"

	"github.com/xi-lang/xil"
)

// Disassemble renders img back to the textual grammar documented in
// doc.go. It is intended for inspection (cmd/xic's `-S` flag)
// rather than round-tripping — a disassembled-then-reassembled image is
// not guaranteed to be byte-identical to the original, since Assemble
// re-interns heap entries and re-numbers labels.
func Disassemble(img *xil.Image) string {
	var b strings.Builder

	classNames := make(map[uint32]string, len(img.TypeDefs))
	for i, t := range img.TypeDefs {
		classNames[uint32(i)+1] = heapStr(img, t.Name)
	}

	fmt.Fprintf(&b, ".mod %q\n", heapStr(img, img.Module.Name))
	for _, ref := range img.ModRefs {
		fmt.Fprintf(&b, ".modref %q\n", heapStr(img, ref.Name))
	}
	b.WriteString("\n")

	for i, t := range img.TypeDefs {
		disasmClass(&b, img, uint32(i)+1, t, classNames)
	}

	return b.String()
}

func heapStr(img *xil.Image, idx uint32) string {
	if idx == 0 || int(idx) > len(img.StrHeap) {
		return ""
	}
	return img.StrHeap[idx-1]
}

func disasmClass(b *strings.Builder, img *xil.Image, idx uint32, t xil.TypeDefRow, classNames map[uint32]string) {
	extends := "null"
	if !t.Extends.IsNull() {
		extends = fmt.Sprintf("%q", classNames[t.Extends.Index()])
	}
	fmt.Fprintf(b, ".class 0x%04x %q extends %s\n", t.Flags, classNames[idx], extends)

	fieldsEnd := uint32(len(img.Fields)) + 1
	methodsEnd := uint32(len(img.Methods)) + 1
	if int(idx) < len(img.TypeDefs) {
		next := img.TypeDefs[idx]
		fieldsEnd, methodsEnd = next.Fields, next.Methods
	}

	for fi := t.Fields; fi < fieldsEnd; fi++ {
		disasmField(b, img, img.Fields[fi-1], classNames)
	}
	for mi := t.Methods; mi < methodsEnd; mi++ {
		disasmMethod(b, img, mi, img.Methods[mi-1], classNames)
	}

	b.WriteString(".endclass\n\n")
}

func disasmField(b *strings.Builder, img *xil.Image, f xil.FieldRow, classNames map[uint32]string) {
	sig, err := xil.DecodeFieldSig(img.BlobHeap[f.Sig-1])
	typ := "?"
	if err == nil {
		typ = formatType(sig.Type, classNames)
	}
	fmt.Fprintf(b, "  .field 0x%04x %q %s\n", f.Flags, heapStr(img, f.Name), typ)
}

func disasmMethod(b *strings.Builder, img *xil.Image, idx uint32, m xil.MethodRow, classNames map[uint32]string) {
	sig, err := xil.DecodeMethodSig(img.BlobHeap[m.Sig-1])
	var params []string
	ret := "?"
	if err == nil {
		if sig.HasThis {
			params = append(params, "this")
		}
		for _, p := range sig.Params {
			params = append(params, formatType(p, classNames))
		}
		ret = formatType(sig.Ret, classNames)
	}
	fmt.Fprintf(b, "  .method 0x%04x 0x%04x %q (%s) -> %s\n",
		m.Flags, m.ImplFlags, heapStr(img, m.Name), strings.Join(params, ","), ret)

	if m.Body == 0 {
		for _, im := range img.ImplMaps {
			if im.Member.Tag() == xil.TagMethod && im.Member.Index() == idx {
				scope := ""
				if int(im.Scope) >= 1 && int(im.Scope) <= len(img.ModRefs) {
					scope = heapStr(img, img.ModRefs[im.Scope-1].Name)
				}
				fmt.Fprintf(b, "    .implmap %q %q\n", scope, heapStr(img, im.Name))
			}
		}
		b.WriteString("  .endmethod\n")
		return
	}

	code := img.Code[m.Body-1]
	if code.MaxStack != 0 {
		fmt.Fprintf(b, "    .maxstack %d\n", code.MaxStack)
	}
	if code.Locals != 0 {
		locals, err := xil.DecodeLocalVarsSig(img.BlobHeap[code.Locals-1])
		if err == nil {
			names := make([]string, len(locals.Vars))
			for i, v := range locals.Vars {
				names[i] = formatType(v, classNames)
			}
			fmt.Fprintf(b, "    .locals %s\n", strings.Join(names, ","))
		}
	}

	labels := branchTargets(code.Bytecode)
	offset := 0
	for offset < len(code.Bytecode) {
		inst, next, err := xil.DecodeInstructionAt(code.Bytecode, offset)
		if err != nil {
			fmt.Fprintf(b, "    ; decode error at offset %d: %v\n", offset, err)
			break
		}
		disasmInstruction(b, img, labels, offset, next, inst, classNames)
		offset = next
	}

	b.WriteString("  .endmethod\n")
}

// branchTargets walks code once to find every byte offset a branch
// instruction targets, so disasmMethod can emit a label only where one
// is actually referenced.
func branchTargets(code []byte) map[int]bool {
	targets := map[int]bool{}
	offset := 0
	for offset < len(code) {
		inst, next, err := xil.DecodeInstructionAt(code, offset)
		if err != nil {
			break
		}
		if isBranch(inst.Op) {
			targets[next+int(inst.I32)] = true
		}
		offset = next
	}
	return targets
}

func isBranch(mn xil.Mnemonic) bool {
	switch mn {
	case xil.OpBr, xil.OpBrFalse, xil.OpBrTrue, xil.OpBEq, xil.OpBGe, xil.OpBGt, xil.OpBLe, xil.OpBLt:
		return true
	default:
		return false
	}
}

func disasmInstruction(b *strings.Builder, img *xil.Image, labels map[int]bool, offset, next int, inst xil.Instruction, classNames map[uint32]string) {
	prefix := "    "
	if labels[offset] {
		prefix = fmt.Sprintf("IL_%04X: ", offset)
	}
	switch {
	case isBranch(inst.Op):
		fmt.Fprintf(b, "%s%s IL_%04X\n", prefix, inst.Op, next+int(inst.I32))
	case inst.Op == xil.OpLdStr:
		lit := ""
		if int(inst.Tok.Index()) >= 1 && int(inst.Tok.Index()) <= len(img.UsrStrHeap) {
			lit = img.UsrStrHeap[inst.Tok.Index()-1]
		}
		fmt.Fprintf(b, "%s%s %q\n", prefix, inst.Op, lit)
	case inst.Op == xil.OpCall || inst.Op == xil.OpCallVirt || inst.Op == xil.OpNewObj ||
		inst.Op == xil.OpLdFld || inst.Op == xil.OpLdFlda || inst.Op == xil.OpStFld ||
		inst.Op == xil.OpLdSFld || inst.Op == xil.OpLdSFlda || inst.Op == xil.OpStSFld:
		fmt.Fprintf(b, "%s%s %q\n", prefix, inst.Op, memberName(img, inst.Tok))
	case inst.Op == xil.OpNewArr || inst.Op == xil.OpLdElem || inst.Op == xil.OpLdElema ||
		inst.Op == xil.OpStElem || inst.Op == xil.OpInitObj || inst.Op == xil.OpCpObj:
		fmt.Fprintf(b, "%s%s %q\n", prefix, inst.Op, classNames[inst.Tok.Index()])
	case inst.Op == xil.OpLdArgS || inst.Op == xil.OpLdArgaS || inst.Op == xil.OpStArgS ||
		inst.Op == xil.OpLdLocS || inst.Op == xil.OpLdLocaS || inst.Op == xil.OpStLocS:
		fmt.Fprintf(b, "%s%s %d\n", prefix, inst.Op, inst.U8)
	case inst.Op == xil.OpLdcI4S:
		fmt.Fprintf(b, "%s%s %d\n", prefix, inst.Op, inst.I8)
	case inst.Op == xil.OpLdLoc || inst.Op == xil.OpLdLoca || inst.Op == xil.OpStLoc:
		fmt.Fprintf(b, "%s%s %d\n", prefix, inst.Op, inst.U16)
	case inst.Op == xil.OpLdcI4:
		fmt.Fprintf(b, "%s%s %d\n", prefix, inst.Op, inst.I32)
	default:
		fmt.Fprintf(b, "%s%s\n", prefix, inst.Op)
	}
}

// memberName resolves a Method/Field/MemberRef token used by call/ldfld/
// etc. to the "Type::name" form parseInstructionLine's catTokenMethod/
// catTokenField cases expect on reassembly. MemberRef targets (methods or
// fields declared in another module) have no locally-declared owning
// type to qualify with, so they're rendered under their MemberRef's own
// name only.
func memberName(img *xil.Image, tok xil.Token) string {
	idx := tok.Index()
	switch tok.Tag() {
	case xil.TagMethod:
		for ti, t := range img.TypeDefs {
			end := uint32(len(img.Methods)) + 1
			if ti+1 < len(img.TypeDefs) {
				end = img.TypeDefs[ti+1].Methods
			}
			if idx >= t.Methods && idx < end {
				return heapStr(img, img.TypeDefs[ti].Name) + "::" + heapStr(img, img.Methods[idx-1].Name)
			}
		}
	case xil.TagField:
		for ti, t := range img.TypeDefs {
			end := uint32(len(img.Fields)) + 1
			if ti+1 < len(img.TypeDefs) {
				end = img.TypeDefs[ti+1].Fields
			}
			if idx >= t.Fields && idx < end {
				return heapStr(img, img.TypeDefs[ti].Name) + "::" + heapStr(img, img.Fields[idx-1].Name)
			}
		}
	case xil.TagMemberRef:
		if int(idx) >= 1 && int(idx) <= len(img.MemberRefs) {
			return heapStr(img, img.MemberRefs[idx-1].Name)
		}
	}
	return fmt.Sprintf("%s", tok)
}

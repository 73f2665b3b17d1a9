// Copyright the xil authors.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package xil

import "testing"

// TestInvariant_InstructionSizeMatchesEncodedBytes checks, for every
// mnemonic in the opcode table, that Mnemonic.Size() agrees with the
// actual number of bytes EncodeInstructionAppend writes and
// DecodeInstructionAt consumes (§8 invariant 2).
func TestInvariant_InstructionSizeMatchesEncodedBytes(t *testing.T) {
	for m := Mnemonic(0); m < opCount; m++ {
		inst := Instruction{Op: m}
		switch opTable[m].operand {
		case OperandU8:
			inst.U8 = 0xAB
		case OperandI8:
			inst.I8 = -5
		case OperandU16:
			inst.U16 = 0x1234
		case OperandBranch, OperandI32:
			inst.I32 = 12345
		case OperandToken:
			inst.Tok = NewToken(TagMethod, 1)
		}

		buf := EncodeInstructionAppend(nil, inst)
		if len(buf) != m.Size() {
			t.Fatalf("%s: Size()=%d but encoded %d bytes", m, m.Size(), len(buf))
		}

		decoded, next, err := DecodeInstructionAt(buf, 0)
		if err != nil {
			t.Fatalf("%s: decode: %v", m, err)
		}
		if next != len(buf) {
			t.Fatalf("%s: decode consumed %d bytes of %d", m, next, len(buf))
		}
		if decoded.Op != m {
			t.Fatalf("%s: decoded mnemonic %s", m, decoded.Op)
		}
	}
}

// Package asm implements a minimal line-oriented textual assembler and
// disassembler for the module image format (component K). Since the
// source-language grammar is explicitly out of scope, this is the only
// front-end that gives cmd/xic something concrete to compile: one
// `.class`/`.field`/`.method` directive per declaration, one instruction
// per line, labels resolved to PC-relative branch offsets.
//
// Grammar (one directive or instruction per line; `;` starts a
// line comment):
//
//	.mod "ModuleName"
//	.modref "OtherModuleName"              ; repeatable
//
//	.class <flags-hex> "TypeName" extends <extends>
//	  .field <flags-hex> "FieldName" <type>
//	  .method <flags-hex> <implflags-hex> "MethodName" (<params>) -> <ret>
//	    .locals <type>[,<type>...]
//	    .entrypoint
//	    .implmap "ModRefName" "Symbol"
//	    IL_0000: ldarg.0
//	    IL_0001: ret
//	  .endmethod
//	.endclass
//
// <extends> is `null` or a locally-declared class name in quotes (a
// class earlier in the same file). Cross-module type references are out
// of scope for this assembler — see package-level Non-goals in
// SPEC_FULL.md's Open Question resolutions; the `.modref` directive
// exists only to name a foreign scope for `.implmap`, not to support a
// TypeRef into another module's type.
//
// <type> is one of the scalar keywords (void, bool, char, i1, u1, i2, u2,
// i4, u4, i8, u8, r4, r8, string) or a compound form: `byref:<type>`,
// `szarray:<type>`, `class:"Name"`, `valuetype:"Name"`. A type-reference
// name resolves only against classes declared earlier in the same file —
// this assembler does not resolve cross-module TypeRefs, since nothing in
// this toolchain's foreign-call surface (the native bridge, §4.8) needs
// more than a ModuleRef name to bind to, and every other cross-module
// use is out of scope for a hand-written fixture language.
//
// (<params>) is a comma-separated list of <type>, optionally led by the
// literal `this` to mark an instance method's implicit receiver slot.
//
// A method body's `.locals` line is a comma-separated list of <type> in
// declaration order; `ldarg.s`/`ldloc.s`/... operands and `call`/
// `ldfld`/... operands are written as parseInstructionLine (instr.go)
// reads them.
package asm

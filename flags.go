package xil

// Flag bit values reused from the ECMA-335 metadata attribute tables (the
// same convention the table row comments elsewhere in this package are
// drawn from), trimmed to the handful of bits this toolchain's loader and
// interpreter actually branch on.

// FieldFlags bits (subset of ECMA-335 FieldAttributes).
const (
	// FieldStatic marks a field as belonging to the type's static area
	// rather than to each instance.
	FieldStatic uint32 = 0x0010
)

// MethodFlags bits (subset of ECMA-335 MethodAttributes).
const (
	// MethodStatic marks a method as having no implicit `self` receiver.
	// Redundant with the HasThis bit of the method's own signature, but
	// kept on the row for layout phases that haven't decoded the
	// signature blob yet.
	MethodStatic uint32 = 0x0010

	// MethodAbstract marks a method with no body; such methods must not
	// point into the code table (§3.1 invariant) and are never bound at
	// load time — only a concrete override is ever invoked.
	MethodAbstract uint32 = 0x0040

	// MethodNewSlot forces vtable layout (§4.4 step 6) to allocate a new
	// slot even when a base method of identical signature exists, rather
	// than reusing (overriding) the base's slot.
	MethodNewSlot uint32 = 0x0100
)

// MethodImplFlags bits (subset of ECMA-335 MethodImplAttributes). The low
// two bits select how the method body is realized.
const (
	methodImplCodeTypeMask uint32 = 0x0003

	// MethodImplIL means the method's Body field names a code[] entry to
	// interpret directly.
	MethodImplIL uint32 = 0x0000

	// MethodImplRuntime means the method has no IL body and is bound to
	// one of the VM's built-in internal calls during loader phase 7.
	MethodImplRuntime uint32 = 0x0003
)

// CodeType extracts the low-order code-type bits from a MethodImplFlags
// value.
func CodeType(implFlags uint32) uint32 { return implFlags & methodImplCodeTypeMask }

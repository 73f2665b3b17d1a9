package xil

// BridgeStatus is the result code a foreign-function bridge plugin reports
// back to the VM for one call (§4.8.1), mirroring the two-variant result the
// original toolchain's native bridge used to signal a missing symbol
// without resorting to a panic across the FFI boundary.
type BridgeStatus int

const (
	// BridgeOk indicates the call completed and ret holds a valid result
	// (if the callee has a non-void return).
	BridgeOk BridgeStatus = iota
	// BridgeNoFunc indicates the plugin has no symbol matching the
	// requested name.
	BridgeNoFunc
)

func (s BridgeStatus) String() string {
	switch s {
	case BridgeOk:
		return "ok"
	case BridgeNoFunc:
		return "no_func"
	default:
		return "unknown"
	}
}

package loader

import (
	"errors"
	"fmt"
)

// Sentinel Link-kind errors (§7 "Link"), fatal at load time.
var (
	ErrModuleCycle      = errors.New("loader: module dependency graph has a cycle")
	ErrTypeRefUnresolved = errors.New("loader: typeref did not resolve to a typedef")
	ErrMemberRefUnresolved = errors.New("loader: memberref did not resolve to a field or method")
	ErrLayoutConflict   = errors.New("loader: base/derived signature mismatch during layout")
	ErrRuntimeUnbound   = errors.New("loader: runtime method left unbound after binding phase")
	ErrForeignUnbound   = errors.New("loader: foreign method scope did not resolve to a bridge")
	ErrModuleNotFound   = errors.New("loader: moduleref did not resolve via the configured resolver")
	ErrGenericsUnsupported = errors.New("loader: generic instantiations are not executed at runtime")
)

// LinkError wraps an underlying Link-kind error with the module and
// entity it occurred on, so cmd/* can print one precise diagnostic line.
type LinkError struct {
	Module string
	Where  string
	Err    error
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("loader: link error in %s/%s: %v", e.Module, e.Where, e.Err)
}

func (e *LinkError) Unwrap() error { return e.Err }

func linkErr(module, where string, err error) *LinkError {
	return &LinkError{Module: module, Where: where, Err: err}
}

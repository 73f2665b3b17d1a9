// Copyright the xil authors.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package native_test

import (
	"errors"
	"testing"

	"github.com/xi-lang/xil/native"
)

// TestBridge_Invoke_NotFound checks that calling a foreign scope with no
// matching `<scope>.so` under any search directory fails with
// ErrBridgeNotFound rather than a panic or an opaque error.
func TestBridge_Invoke_NotFound(t *testing.T) {
	b := native.NewBridge([]string{t.TempDir()}, nil)
	_, err := b.Invoke("nosuchscope", "write", nil, 0)
	if err == nil {
		t.Fatalf("Invoke: want error, got nil")
	}
	if !errors.Is(err, native.ErrBridgeNotFound) {
		t.Fatalf("Invoke: want ErrBridgeNotFound, got %v", err)
	}
}

// TestBridge_Invoke_CachesFailure checks that a second call for the same
// unresolved scope returns the same failure without a new search.
func TestBridge_Invoke_CachesFailure(t *testing.T) {
	b := native.NewBridge([]string{t.TempDir()}, nil)
	_, err1 := b.Invoke("ghost", "f", nil, 0)
	_, err2 := b.Invoke("ghost", "f", nil, 0)
	if err1 == nil || err2 == nil {
		t.Fatalf("Invoke: want errors on both calls, got %v / %v", err1, err2)
	}
	if !errors.Is(err1, native.ErrBridgeNotFound) || !errors.Is(err2, native.ErrBridgeNotFound) {
		t.Fatalf("Invoke: want ErrBridgeNotFound on both calls")
	}
}

// Copyright the xil authors.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/xi-lang/xil/asm"
)

// TestRun_LoadsAndExecutesImage checks the end-to-end driver path: an
// assembled image on disk loads and runs to completion with no error.
func TestRun_LoadsAndExecutesImage(t *testing.T) {
	src := `
.mod "smoke"

.class 0x0 "Program" extends null
  .method 0x10 0x0 "Main" () -> i4
    .entrypoint
    ldc.i4.1
    ret
  .endmethod
.endclass
`
	img, err := asm.Assemble(src)
	if err != nil {
		t.Fatalf("asm.Assemble: %v", err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "smoke.xilimg")
	if err := os.WriteFile(path, img.Encode(), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := run(path, "", false); err != nil {
		t.Fatalf("run: %v", err)
	}
}

// TestRun_MissingFile checks that a nonexistent entry path fails with a
// wrapped open error rather than a panic.
func TestRun_MissingFile(t *testing.T) {
	if err := run(filepath.Join(t.TempDir(), "nope.xilimg"), "", false); err == nil {
		t.Fatalf("run: want an error for a missing entry image, got nil")
	}
}

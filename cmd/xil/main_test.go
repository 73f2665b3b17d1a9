// Copyright the xil authors.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"path/filepath"
	"testing"
)

// TestRun_AssemblesLoadsAndExecutes checks the combined driver path: a
// .il source file is assembled, loaded and run in one call with no
// intermediate file ever touching disk.
func TestRun_AssemblesLoadsAndExecutes(t *testing.T) {
	dir := t.TempDir()
	src := `
.mod "smoke"

.class 0x0 "Program" extends null
  .method 0x10 0x0 "Main" () -> i4
    .entrypoint
    ldc.i4.2
    ldc.i4.3
    add
    ret
  .endmethod
.endclass
`
	srcPath := filepath.Join(dir, "smoke.il")
	if err := os.WriteFile(srcPath, []byte(src), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := run(srcPath, "", false); err != nil {
		t.Fatalf("run: %v", err)
	}
}

// TestRun_MissingSource checks that a nonexistent source path fails
// cleanly instead of panicking.
func TestRun_MissingSource(t *testing.T) {
	if err := run(filepath.Join(t.TempDir(), "nope.il"), "", false); err == nil {
		t.Fatalf("run: want an error for a missing source file, got nil")
	}
}

// Copyright the xil authors.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/xi-lang/xil"
	"github.com/xi-lang/xil/cmd/internal/root"
)

// TestRun_AssemblesAndWritesImage checks the end-to-end driver path: a
// .il source file on disk produces a loadable .xilimg next to it.
func TestRun_AssemblesAndWritesImage(t *testing.T) {
	dir := t.TempDir()
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
	srcPath := filepath.Join(dir, "smoke"+root.SourceExt)
	if err := os.WriteFile(srcPath, []byte(src), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := run(srcPath, "", false); err != nil {
		t.Fatalf("run: %v", err)
	}

	outPath := filepath.Join(dir, "smoke"+root.ImageExt)
	img, err := xil.OpenImage(outPath, nil)
	if err != nil {
		t.Fatalf("OpenImage(%s): %v", outPath, err)
	}
	defer img.Close()
	if len(img.Methods) != 1 {
		t.Fatalf("written image has %d methods, want 1", len(img.Methods))
	}
}

// TestRun_AssembleErrorPropagates checks that a malformed source file
// fails run() with a diagnostic instead of writing a partial image.
func TestRun_AssembleErrorPropagates(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "bad"+root.SourceExt)
	if err := os.WriteFile(srcPath, []byte(".mod \"bad\"\nnotaclass\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := run(srcPath, "", false); err == nil {
		t.Fatalf("run: want an assemble error, got nil")
	}
	if _, err := os.Stat(filepath.Join(dir, "bad"+root.ImageExt)); err == nil {
		t.Fatalf("run: should not have written an image for a failed assemble")
	}
}

// Copyright the xil authors.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Command xic assembles a textual IL source file into a binary module
// image (component K, §6.5).
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xi-lang/xil/asm"
	"github.com/xi-lang/xil/cmd/internal/root"
)

func main() {
	var outDir string
	var dumpAsm bool

	cmd := &cobra.Command{
		Use:           "xic <root.il>",
		Short:         "Assembles a textual IL file into a binary module image",
		Version:       "0.1.0",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], outDir, dumpAsm)
		},
	}

	root.ExtFlag(cmd) // accepted for driver-surface symmetry with xivm/xil; xic itself resolves nothing
	cmd.Flags().StringVarP(&outDir, "output", "o", "", "output directory (default: alongside input)")
	cmd.Flags().BoolVarP(&dumpAsm, "disassemble", "S", false, "print the disassembly of the result to stdout")

	if err := cmd.Execute(); err != nil {
		root.Fail(err)
	}
}

func run(srcPath, outDir string, dumpAsm bool) error {
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return fmt.Errorf("xic: %w", err)
	}

	img, err := asm.Assemble(string(data))
	if err != nil {
		return fmt.Errorf("xic: %w", err)
	}

	if outDir == "" {
		outDir = filepath.Dir(srcPath)
	}
	base := strings.TrimSuffix(filepath.Base(srcPath), root.SourceExt)
	outPath := filepath.Join(outDir, base+root.ImageExt)

	if err := os.WriteFile(outPath, img.Encode(), 0o644); err != nil {
		return fmt.Errorf("xic: writing %s: %w", outPath, err)
	}
	fmt.Fprintf(os.Stdout, "xic: wrote %s\n", outPath)

	if dumpAsm {
		fmt.Fprint(os.Stdout, asm.Disassemble(img))
	}
	return nil
}

// Copyright the xil authors.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Command xil is the combined driver: it assembles a textual IL file
// to a temporary image and immediately loads and runs it, composing
// cmd/xic and cmd/xivm in one step (§6.5).
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/xi-lang/xil"
	"github.com/xi-lang/xil/asm"
	"github.com/xi-lang/xil/cmd/internal/root"
	"github.com/xi-lang/xil/loader"
	"github.com/xi-lang/xil/native"
	"github.com/xi-lang/xil/vmrt"
)

func main() {
	cmd := &cobra.Command{
		Use:           "xil <root.il>",
		Short:         "Assembles and runs a textual IL file in one step",
		Version:       "0.1.0",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	extPaths := root.ExtFlag(cmd)
	diagnose := root.DiagnoseFlag(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return run(args[0], *extPaths, *diagnose)
	}

	if err := cmd.Execute(); err != nil {
		root.Fail(err)
	}
}

func run(srcPath, extPathsRaw string, diagnose bool) error {
	src, err := os.ReadFile(srcPath)
	if err != nil {
		return fmt.Errorf("xil: %w", err)
	}

	asmStart := time.Now()
	img, err := asm.Assemble(string(src))
	asmElapsed := time.Since(asmStart)
	if err != nil {
		return fmt.Errorf("xil: %w", err)
	}

	rootName, err := moduleName(img)
	if err != nil {
		return fmt.Errorf("xil: %w", err)
	}

	extPaths := root.ParseExtPaths(extPathsRaw)
	bridge := native.NewBridge(extPaths, nil)

	loadStart := time.Now()
	prog, err := loader.Load(rootName, img, &loader.Options{
		Resolve: root.NewResolver(extPaths),
	})
	loadElapsed := time.Since(loadStart)
	if err != nil {
		return err
	}

	interp := vmrt.NewInterp(prog, loader.StringTypeFullname, &vmrt.Options{Bridge: bridge})

	execStart := time.Now()
	runErr := interp.Run()
	execElapsed := time.Since(execStart)

	if diagnose {
		fmt.Fprintf(os.Stderr, "xil: assemble: %s\n", asmElapsed)
		fmt.Fprintf(os.Stderr, "xil: module load: %s\n", loadElapsed)
		fmt.Fprintf(os.Stderr, "xil: static init + entry exec: %s\n", execElapsed)
		fmt.Fprintf(os.Stderr, "xil: static initializers run: %d\n", len(prog.StaticInits))
	}

	return runErr
}

func moduleName(img *xil.Image) (string, error) {
	idx := img.Module.Name
	if idx == 0 || int(idx) > len(img.StrHeap) {
		return "", xil.ErrNullToken
	}
	return img.StrHeap[idx-1], nil
}

// Copyright the xil authors.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Command xivm loads a binary module image and its transitive
// ModuleRefs, and runs static initializers and the entry method
// (component I, §6.5). It exits with status 0 when they complete; the
// entry method's return value is discarded and does not become the exit
// status. A fatal error exits through root.Fail with a non-zero code.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/xi-lang/xil"
	"github.com/xi-lang/xil/cmd/internal/root"
	"github.com/xi-lang/xil/loader"
	"github.com/xi-lang/xil/native"
	"github.com/xi-lang/xil/vmrt"
)

func main() {
	cmd := &cobra.Command{
		Use:           "xivm <entry.xilimg>",
		Short:         "Loads and runs a module image",
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

func run(entryPath, extPathsRaw string, diagnose bool) error {
	img, err := xil.OpenImage(entryPath, nil)
	if err != nil {
		return fmt.Errorf("xivm: %w", err)
	}
	defer img.Close()

	rootName, err := moduleName(img)
	if err != nil {
		return fmt.Errorf("xivm: %w", err)
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
		fmt.Fprintf(os.Stderr, "xivm: module load: %s\n", loadElapsed)
		fmt.Fprintf(os.Stderr, "xivm: static init + entry exec: %s\n", execElapsed)
		fmt.Fprintf(os.Stderr, "xivm: static initializers run: %d\n", len(prog.StaticInits))
	}

	return runErr
}

// moduleName reads the entry image's own Module.Name out of its string
// heap, so Load has a stable key for the root of the ModuleRef graph
// even though nothing on disk names the file by module name.
func moduleName(img *xil.Image) (string, error) {
	idx := img.Module.Name
	if idx == 0 || int(idx) > len(img.StrHeap) {
		return "", xil.ErrNullToken
	}
	return img.StrHeap[idx-1], nil
}

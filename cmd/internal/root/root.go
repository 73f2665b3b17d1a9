// Copyright the xil authors.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package root holds the flags, module resolver, and error-to-exit-code
// plumbing shared by cmd/xic, cmd/xivm and cmd/xil, the way a single
// cobra.Command tree would share persistent flags across subcommands.
package root

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xi-lang/xil"
	"github.com/xi-lang/xil/loader"
	"github.com/xi-lang/xil/vmrt"
)

// ImageExt is the file extension a binary module image is written under
// and searched for by the resolver (§6.5).
const ImageExt = ".xilimg"

// SourceExt is the textual assembler source extension cmd/xic and cmd/xil
// expect their root argument to carry.
const SourceExt = ".il"

// ExtFlag registers the `-i`/`--import` external module search path flag,
// shared verbatim across all three drivers (§6.5).
func ExtFlag(cmd *cobra.Command) *string {
	return cmd.Flags().StringP("import", "i", "", "external module search paths, ';'-separated")
}

// DiagnoseFlag registers the `-d`/`--diagnose` flag shared by xivm and xil.
func DiagnoseFlag(cmd *cobra.Command) *bool {
	return cmd.Flags().BoolP("diagnose", "d", false, "print load/exec diagnostics to stderr")
}

// ParseExtPaths splits a `-i` flag value on ';', dropping empty segments
// (mirroring the original driver's `ext_paths.split(';')` convention).
func ParseExtPaths(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(raw, ";") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// NewResolver builds a loader.Resolver that looks for "<name><ImageExt>"
// under each of extPaths in order, the way xivm's `-i` search path
// resolves a ModuleRef to an on-disk image.
func NewResolver(extPaths []string) loader.Resolver {
	return func(name string) (*xil.Image, error) {
		for _, dir := range extPaths {
			path := filepath.Join(dir, name+ImageExt)
			if _, err := os.Stat(path); err != nil {
				continue
			}
			return xil.OpenImage(path, nil)
		}
		return nil, fmt.Errorf("root: module %q not found under %v", name, extPaths)
	}
}

// ExitCode maps a fatal error returned by xil/loader or xil/vmrt to a
// process exit code: 0 for success, 1 for any fatal trap or link error,
// 2 for any other error (usage errors, I/O errors such as a missing
// file).
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var linkErr *loader.LinkError
	var trapErr *vmrt.TrapError
	var fmtErr *xil.FormatError
	if errors.As(err, &linkErr) || errors.As(err, &trapErr) || errors.As(err, &fmtErr) {
		return 1
	}
	return 2
}

// Fail prints err to stderr and exits with ExitCode(err). Exists so all
// three main()s report errors the same way the teacher's pedumper.go did
// (`fmt.Println(err); os.Exit(1)`), just with a precise code per error kind.
func Fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(ExitCode(err))
}

package loader

import (
	"fmt"

	"golang.org/x/mod/semver"

	"github.com/xi-lang/xil"
)

// checkVersion compares an image's (major, minor) against the
// implementation's expected pair by synthesizing "v<major>.<minor>.0"
// strings and delegating to golang.org/x/mod/semver (§4.1.1). A lower
// minor with an equal major is forward-compatible and only produces a
// diagnostic; any major mismatch is likewise non-fatal per §4.1. Load
// logs the returned diagnostic string as a warning through
// Options.Logger; it is not kept anywhere else.
func checkVersion(img *xil.Image) (diagnostic string, ok bool) {
	got := synthVersion(img.Major, img.Minor)
	want := synthVersion(xil.CurrentMajorVersion, xil.CurrentMinorVersion)
	cmp := semver.Compare(got, want)
	if cmp == 0 {
		return "", true
	}
	return fmt.Sprintf("image version %s does not match expected %s", got, want), false
}

func synthVersion(major, minor uint16) string {
	return fmt.Sprintf("v%d.%d.0", major, minor)
}

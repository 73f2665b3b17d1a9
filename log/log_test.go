// Copyright the xil authors.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package log_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/xi-lang/xil/log"
)

// TestStdLogger_FormatsLevelAndMessage checks the tagged-line shape a
// human reads off stdout: "[level] message".
func TestStdLogger_FormatsLevelAndMessage(t *testing.T) {
	var buf bytes.Buffer
	l := log.NewStdLogger(&buf)
	l.Log(log.LevelWarn, "disk almost full")

	out := buf.String()
	if !strings.Contains(out, "[warn ]") {
		t.Fatalf("want a [warn ] tag, got %q", out)
	}
	if !strings.Contains(out, "disk almost full") {
		t.Fatalf("want the message body, got %q", out)
	}
}

// TestFilter_DropsBelowMinLevel checks that NewFilter silently drops
// records under its configured level and passes the rest through.
func TestFilter_DropsBelowMinLevel(t *testing.T) {
	var buf bytes.Buffer
	base := log.NewStdLogger(&buf)
	filtered := log.NewFilter(base, log.FilterLevel(log.LevelWarn))

	filtered.Log(log.LevelDebug, "noisy")
	filtered.Log(log.LevelInfo, "also noisy")
	if buf.Len() != 0 {
		t.Fatalf("sub-threshold records should be dropped, got %q", buf.String())
	}

	filtered.Log(log.LevelError, "real problem")
	if !strings.Contains(buf.String(), "real problem") {
		t.Fatalf("want the error record to pass through, got %q", buf.String())
	}
}

// TestHelper_NilSafe checks that a nil *Helper (the zero value of an
// unconfigured logging dependency) silently no-ops instead of panicking,
// so components can hold an optional Helper without a nil check at every
// call site.
func TestHelper_NilSafe(t *testing.T) {
	var h *log.Helper
	h.Infof("should not panic: %d", 42)
}

// TestHelper_FormatsArgs checks that Helper's printf-style methods apply
// format verbs against their arguments before reaching the Logger, and
// leave a plain string untouched when there are no arguments.
func TestHelper_FormatsArgs(t *testing.T) {
	var buf bytes.Buffer
	h := log.NewHelper(log.NewStdLogger(&buf))

	h.Errorf("failed after %d retries", 3)
	if !strings.Contains(buf.String(), "failed after 3 retries") {
		t.Fatalf("want formatted message, got %q", buf.String())
	}

	buf.Reset()
	h.Debugf("plain message with a literal %% sign left alone")
	if !strings.Contains(buf.String(), "plain message with a literal %% sign left alone") {
		t.Fatalf("want the literal format string passed through unformatted, got %q", buf.String())
	}
}

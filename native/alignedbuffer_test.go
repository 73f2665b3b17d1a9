// Copyright the xil authors.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package native

import (
	"bytes"
	"testing"

	"golang.org/x/sys/unix"
)

// TestAlignedBuffer_FastPath checks that an argument frame no larger
// than one native page is passed through unchanged, with no mmap and no
// cleanup required.
func TestAlignedBuffer_FastPath(t *testing.T) {
	args := []byte{1, 2, 3, 4}
	buf, cleanup, err := alignedBuffer(args)
	if err != nil {
		t.Fatalf("alignedBuffer: %v", err)
	}
	if cleanup != nil {
		t.Fatalf("fast path should not need cleanup")
	}
	if &buf[0] != &args[0] {
		t.Fatalf("fast path should return the original backing array")
	}
}

// TestAlignedBuffer_MmapPath checks that a frame larger than one native
// page is copied into a page-rounded mmap'd region with identical
// content, and that cleanup unmaps it without error.
func TestAlignedBuffer_MmapPath(t *testing.T) {
	pageSize := unix.Getpagesize()
	args := make([]byte, pageSize+37)
	for i := range args {
		args[i] = byte(i)
	}

	buf, cleanup, err := alignedBuffer(args)
	if err != nil {
		t.Fatalf("alignedBuffer: %v", err)
	}
	if cleanup == nil {
		t.Fatalf("mmap path should return a cleanup func")
	}
	defer cleanup()

	if len(buf) != len(args) {
		t.Fatalf("buf len = %d, want %d", len(buf), len(args))
	}
	if !bytes.Equal(buf, args) {
		t.Fatalf("mmap'd buffer content does not match the original args")
	}
}

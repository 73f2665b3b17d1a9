// Package xil implements the binary module image format shared by the
// compiler, loader and interpreter: byte serialization (§4.1), signature
// blobs (§3.2), tokens (§3.3), table rows (§3.1), the instruction set
// (§4.3), and the in-memory Image that ties them together (§4.2).
//
// Section references throughout this package and xil/loader, xil/vmrt,
// xil/native and xil/asm refer to the module format/VM specification this
// toolchain implements.
package xil

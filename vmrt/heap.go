// Package vmrt is the bytecode interpreter (components G, H, I): a
// bump-allocated managed heap, a typed evaluation stack, activation
// frames, and the dispatch loop that drives them from a loader.Program.
package vmrt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/xi-lang/xil/loader"
)

// ErrHeapExhausted is fatal: there is no GC and no heap growth once the
// arena configured at Heap construction is full.
var ErrHeapExhausted = errors.New("vmrt: heap exhausted")

// objHeaderSize is sizeof(ObjHeader): an 8-byte flag word followed by an
// 8-byte vtable pointer slot (stored as an index into Heap.types, not a
// real pointer, since this is a Go-hosted arena rather than raw memory).
const (
	objHeaderSize = 16
	arrHeaderSize = objHeaderSize + 8 // + len word
	strHeaderSize = objHeaderSize + 8 // + len word, UTF-32 payload follows
)

// Ptr is an offset into the Heap arena, one past the object's header —
// exactly what client code (the interpreter) is given back and expected
// to pass to accessors. Zero is the null reference.
type Ptr uint64

// Heap is a single contiguous bump-allocated arena (§4.5). Out-of-space
// is fatal; there is no collector and no compaction.
type Heap struct {
	data  []byte
	next  int
	types []*loader.LinkedType // header "vtbl" field indexes into this
}

// NewHeap allocates an arena of the given size in bytes.
func NewHeap(size int) *Heap {
	return &Heap{data: make([]byte, size)}
}

func (h *Heap) typeIndex(t *loader.LinkedType) uint64 {
	for i, existing := range h.types {
		if existing == t {
			return uint64(i)
		}
	}
	h.types = append(h.types, t)
	return uint64(len(h.types) - 1)
}

func (h *Heap) alloc(headerAndBodySize int) (int, error) {
	if h.next+headerAndBodySize > len(h.data) {
		return 0, ErrHeapExhausted
	}
	start := h.next
	h.next += headerAndBodySize
	return start, nil
}

// NewObj writes an ObjHeader for t and returns a pointer to the first
// byte of its instance payload.
func (h *Heap) NewObj(t *loader.LinkedType) (Ptr, error) {
	size := objHeaderSize + t.BasicInstanceSize
	start, err := h.alloc(size)
	if err != nil {
		return 0, err
	}
	binary.BigEndian.PutUint64(h.data[start:], 0) // flag
	binary.BigEndian.PutUint64(h.data[start+8:], h.typeIndex(t))
	return Ptr(start + objHeaderSize), nil
}

// NewArr writes an ArrHeader for an array of n elements of elemSize
// bytes each, and returns a pointer to the first element.
func (h *Heap) NewArr(elemType *loader.LinkedType, elemSize, n int) (Ptr, error) {
	size := arrHeaderSize + elemSize*n
	start, err := h.alloc(size)
	if err != nil {
		return 0, err
	}
	binary.BigEndian.PutUint64(h.data[start:], 0)
	binary.BigEndian.PutUint64(h.data[start+8:], h.typeIndex(elemType))
	binary.BigEndian.PutUint64(h.data[start+16:], uint64(n))
	return Ptr(start + arrHeaderSize), nil
}

// NewStrFromUTF8 counts code points in src, writes a StrHeader, and
// stores the payload as UTF-32 code points (§3.5: "UTF-32").
func (h *Heap) NewStrFromUTF8(strType *loader.LinkedType, src string) (Ptr, error) {
	n := utf8.RuneCountInString(src)
	size := strHeaderSize + n*4
	start, err := h.alloc(size)
	if err != nil {
		return 0, err
	}
	binary.BigEndian.PutUint64(h.data[start:], 0)
	binary.BigEndian.PutUint64(h.data[start+8:], h.typeIndex(strType))
	binary.BigEndian.PutUint64(h.data[start+16:], uint64(n))
	off := start + strHeaderSize
	for _, r := range src {
		binary.BigEndian.PutUint32(h.data[off:], uint32(r))
		off += 4
	}
	return Ptr(start + strHeaderSize), nil
}

// ObjType returns the LinkedType recorded in p's ObjHeader — used for
// virtual dispatch and for reference-equality/cast checks (§3.5).
func (h *Heap) ObjType(p Ptr) *loader.LinkedType {
	idx := binary.BigEndian.Uint64(h.data[int(p)-objHeaderSize+8:])
	return h.types[idx]
}

// ArrLen returns the element count recorded in p's ArrHeader.
func (h *Heap) ArrLen(p Ptr) int {
	return int(binary.BigEndian.Uint64(h.data[int(p)-arrHeaderSize+16:]))
}

// StrLen returns the code-point count recorded in p's StrHeader.
func (h *Heap) StrLen(p Ptr) int {
	return int(binary.BigEndian.Uint64(h.data[int(p)-strHeaderSize+16:]))
}

// Bytes exposes the n raw bytes of the instance/element payload starting
// at p+offset, for field and element accessors.
func (h *Heap) Bytes(p Ptr, offset, n int) []byte {
	start := int(p) + offset
	return h.data[start : start+n]
}

// CheckElemBounds returns a fatal error if idx is outside [0, ArrLen(p)).
func (h *Heap) CheckElemBounds(p Ptr, idx int) error {
	if idx < 0 || idx >= h.ArrLen(p) {
		return fmt.Errorf("vmrt: array index %d out of bounds (len %d)", idx, h.ArrLen(p))
	}
	return nil
}

// ElemOffset returns the byte offset of element idx within p's element
// array, given each element's size.
func ElemOffset(idx, elemSize int) int { return idx * elemSize }

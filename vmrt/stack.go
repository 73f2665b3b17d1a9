package vmrt

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/xi-lang/xil/loader"
)

// SlotTag discriminates an eval-stack slot's payload (§3.6).
type SlotTag uint8

const (
	TagUninit SlotTag = iota
	TagI32
	TagI64
	TagINative
	TagF32
	TagF64
	TagRef
	TagValue
	TagAddr // interior pointer: ldloca/ldarga/ldflda/ldsflda/ldelema result
)

// Slot is one eval-stack entry: a tag and enough bytes to hold the
// widest scalar or a Ptr. Value-typed slots additionally carry
// basic_instance_size payload bytes, held by EvalStack in a list
// parallel to its slots; Slot.Type names which LinkedType that payload
// belongs to. TagAddr slots carry a Go byte-slice view directly aliasing
// the owning storage (a local/arg buffer, a static area, or heap bytes) —
// Go slices already share a backing array, so no separate pointer
// arithmetic is needed for the interior-pointer operand consumed by
// cpobj/initobj.
type Slot struct {
	Tag     SlotTag
	Bits    uint64             // I32/I64/INative/F32(as bits)/F64(as bits)/Ref(as Ptr)
	Type    *loader.LinkedType // set only when Tag == TagValue
	Addr    []byte             // set only when Tag == TagAddr
	AddrType loader.BuiltinType // the pointee's declared type, for TagAddr
}

func I32Slot(v int32) Slot   { return Slot{Tag: TagI32, Bits: uint64(uint32(v))} }
func I64Slot(v int64) Slot   { return Slot{Tag: TagI64, Bits: uint64(v)} }
func NativeSlot(v int64) Slot { return Slot{Tag: TagINative, Bits: uint64(v)} }
func F32Slot(v float32) Slot { return Slot{Tag: TagF32, Bits: uint64(math.Float32bits(v))} }
func F64Slot(v float64) Slot { return Slot{Tag: TagF64, Bits: math.Float64bits(v)} }
func AddrSlot(b []byte, t loader.BuiltinType) Slot { return Slot{Tag: TagAddr, Addr: b, AddrType: t} }
func RefSlot(p Ptr) Slot     { return Slot{Tag: TagRef, Bits: uint64(p)} }

func (s Slot) AsI32() int32      { return int32(uint32(s.Bits)) }
func (s Slot) AsI64() int64      { return int64(s.Bits) }
func (s Slot) AsNative() int64   { return int64(s.Bits) }
func (s Slot) AsF32() float32    { return math.Float32frombits(uint32(s.Bits)) }
func (s Slot) AsF64() float64    { return math.Float64frombits(s.Bits) }
func (s Slot) AsRef() Ptr        { return Ptr(s.Bits) }

// ErrStackUnderflow is fatal: popping an empty eval stack is a bytecode
// contract violation the interpreter does not attempt to recover from.
var ErrStackUnderflow = errors.New("vmrt: eval stack underflow")

// EvalStack is a method activation's operand stack (§4.6). Value-typed
// slots carry their payload in payloads, at the same index as the slot, mirroring the "payload held below the slot" rule
// without requiring a single contiguous byte buffer.
type EvalStack struct {
	slots    []Slot
	payloads [][]byte // parallel to slots; nil except for TagValue entries
}

// NewEvalStack returns an empty stack. capacity is advisory (MaxStack).
func NewEvalStack(capacity int) *EvalStack {
	return &EvalStack{slots: make([]Slot, 0, capacity), payloads: make([][]byte, 0, capacity)}
}

func (s *EvalStack) Push(v Slot) {
	s.slots = append(s.slots, v)
	s.payloads = append(s.payloads, nil)
}

// PushValue pushes a value-typed slot together with its payload bytes,
// copied so later mutation of the source doesn't alias the stack.
func (s *EvalStack) PushValue(t *loader.LinkedType, payload []byte) {
	s.slots = append(s.slots, Slot{Tag: TagValue, Type: t})
	cp := append([]byte(nil), payload...)
	s.payloads = append(s.payloads, cp)
}

func (s *EvalStack) Pop() (Slot, []byte, error) {
	n := len(s.slots)
	if n == 0 {
		return Slot{}, nil, ErrStackUnderflow
	}
	v, p := s.slots[n-1], s.payloads[n-1]
	s.slots = s.slots[:n-1]
	s.payloads = s.payloads[:n-1]
	return v, p, nil
}

func (s *EvalStack) Peek() (Slot, []byte, error) {
	n := len(s.slots)
	if n == 0 {
		return Slot{}, nil, ErrStackUnderflow
	}
	return s.slots[n-1], s.payloads[n-1], nil
}

// Dup duplicates the top slot and its payload, if any (§4.6: "dup copies
// both slot and its payload").
func (s *EvalStack) Dup() error {
	v, p, err := s.Peek()
	if err != nil {
		return err
	}
	s.slots = append(s.slots, v)
	s.payloads = append(s.payloads, append([]byte(nil), p...))
	return nil
}

func (s *EvalStack) Len() int { return len(s.slots) }

// PromoteNumeric applies the I32 ⊕ INative → INative rule (§4.7); mixing
// int and float is a fatal contract violation.
func PromoteNumeric(a, b Slot) (SlotTag, error) {
	if a.Tag == b.Tag {
		return a.Tag, nil
	}
	isFloat := func(t SlotTag) bool { return t == TagF32 || t == TagF64 }
	if isFloat(a.Tag) != isFloat(b.Tag) {
		return 0, errors.New("vmrt: cannot mix integer and floating-point operands")
	}
	if a.Tag == TagI32 && b.Tag == TagINative {
		return TagINative, nil
	}
	if a.Tag == TagINative && b.Tag == TagI32 {
		return TagINative, nil
	}
	if a.Tag == TagF32 && b.Tag == TagF64 {
		return TagF64, nil
	}
	if a.Tag == TagF64 && b.Tag == TagF32 {
		return TagF64, nil
	}
	return 0, errors.New("vmrt: incompatible operand tags")
}

// slotForBuiltin constructs a zero-valued eval-stack slot matching bt's
// storage tag. Locals/Args do not use it: newSlotArea zeroes their byte
// buffers directly.
func slotForBuiltin(bt loader.BuiltinType) Slot {
	switch bt.Kind {
	case loader.BuiltinR4:
		return Slot{Tag: TagF32}
	case loader.BuiltinR8:
		return Slot{Tag: TagF64}
	case loader.BuiltinI8, loader.BuiltinU8:
		return Slot{Tag: TagI64}
	case loader.BuiltinClass, loader.BuiltinString, loader.BuiltinSZArray, loader.BuiltinByRef:
		return Slot{Tag: TagRef}
	case loader.BuiltinValue:
		return Slot{Tag: TagValue, Type: bt.Class}
	default:
		return Slot{Tag: TagI32}
	}
}

// coerceStore narrows an I32-tagged store value to the low bytes a
// smaller declared width expects (§4.6: "I32 slot stored to a U1 field
// writes the low byte").
func coerceStore(dst loader.BuiltinType, v Slot) []byte {
	buf := make([]byte, dst.Size(ptrSizeConst))
	switch dst.Kind {
	case loader.BuiltinBool, loader.BuiltinI1, loader.BuiltinU1:
		buf[0] = byte(v.Bits)
	case loader.BuiltinI2, loader.BuiltinU2, loader.BuiltinChar:
		binary.BigEndian.PutUint16(buf, uint16(v.Bits))
	case loader.BuiltinI4, loader.BuiltinU4:
		binary.BigEndian.PutUint32(buf, uint32(v.Bits))
	case loader.BuiltinR4:
		binary.BigEndian.PutUint32(buf, uint32(v.Bits))
	case loader.BuiltinI8, loader.BuiltinU8, loader.BuiltinR8:
		binary.BigEndian.PutUint64(buf, v.Bits)
	default: // Ref-shaped: Class, String, SZArray, ByRef
		binary.BigEndian.PutUint64(buf, v.Bits)
	}
	return buf
}

// loadSlot widens dst-typed raw bytes back into an eval-stack slot.
func loadSlot(src loader.BuiltinType, raw []byte) Slot {
	switch src.Kind {
	case loader.BuiltinBool, loader.BuiltinU1:
		return I32Slot(int32(raw[0]))
	case loader.BuiltinI1:
		return I32Slot(int32(int8(raw[0])))
	case loader.BuiltinU2, loader.BuiltinChar:
		return I32Slot(int32(binary.BigEndian.Uint16(raw)))
	case loader.BuiltinI2:
		return I32Slot(int32(int16(binary.BigEndian.Uint16(raw))))
	case loader.BuiltinI4:
		return I32Slot(int32(binary.BigEndian.Uint32(raw)))
	case loader.BuiltinU4:
		return I32Slot(int32(binary.BigEndian.Uint32(raw)))
	case loader.BuiltinR4:
		return F32Slot(math.Float32frombits(binary.BigEndian.Uint32(raw)))
	case loader.BuiltinI8, loader.BuiltinU8:
		return I64Slot(int64(binary.BigEndian.Uint64(raw)))
	case loader.BuiltinR8:
		return F64Slot(math.Float64frombits(binary.BigEndian.Uint64(raw)))
	default: // Ref-shaped
		return RefSlot(Ptr(binary.BigEndian.Uint64(raw)))
	}
}

const ptrSizeConst = 8

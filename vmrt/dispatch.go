package vmrt

import (
	"encoding/binary"

	"github.com/xi-lang/xil"
	"github.com/xi-lang/xil/loader"
)

const refSize = 8 // REF_SIZE (§4.7)

// step executes one instruction and advances or redirects frame.IP. When
// the method returns (ret), done is true and ret/retPayload hold its
// result.
func (in *Interp) step(frame *ActivationRecord, inst xil.Instruction, next int) (Slot, []byte, bool, error) {
	switch inst.Op {
	case xil.OpNop:
		frame.IP = next

	case xil.OpLdArg0, xil.OpLdArg1, xil.OpLdArg2, xil.OpLdArg3:
		idx := int(inst.Op - xil.OpLdArg0)
		v, err := frame.Args.Load(idx)
		if err != nil {
			return Slot{}, nil, false, err
		}
		frame.Stack.Push(v)
		frame.IP = next
	case xil.OpLdArgS:
		v, err := frame.Args.Load(int(inst.U8))
		if err != nil {
			return Slot{}, nil, false, err
		}
		frame.Stack.Push(v)
		frame.IP = next
	case xil.OpLdArgaS:
		v, err := frame.Args.Loada(int(inst.U8))
		if err != nil {
			return Slot{}, nil, false, err
		}
		frame.Stack.Push(v)
		frame.IP = next
	case xil.OpStArgS:
		v, _, err := frame.Stack.Pop()
		if err != nil {
			return Slot{}, nil, false, err
		}
		if err := frame.Args.Store(int(inst.U8), v); err != nil {
			return Slot{}, nil, false, err
		}
		frame.IP = next

	case xil.OpLdLoc0, xil.OpLdLoc1, xil.OpLdLoc2, xil.OpLdLoc3:
		idx := int(inst.Op - xil.OpLdLoc0)
		v, err := frame.Locals.Load(idx)
		if err != nil {
			return Slot{}, nil, false, err
		}
		frame.Stack.Push(v)
		frame.IP = next
	case xil.OpLdLocS:
		v, err := frame.Locals.Load(int(inst.U8))
		if err != nil {
			return Slot{}, nil, false, err
		}
		frame.Stack.Push(v)
		frame.IP = next
	case xil.OpLdLocaS:
		v, err := frame.Locals.Loada(int(inst.U8))
		if err != nil {
			return Slot{}, nil, false, err
		}
		frame.Stack.Push(v)
		frame.IP = next
	case xil.OpLdLoc:
		v, err := frame.Locals.Load(int(inst.U16))
		if err != nil {
			return Slot{}, nil, false, err
		}
		frame.Stack.Push(v)
		frame.IP = next
	case xil.OpLdLoca:
		v, err := frame.Locals.Loada(int(inst.U16))
		if err != nil {
			return Slot{}, nil, false, err
		}
		frame.Stack.Push(v)
		frame.IP = next

	case xil.OpStLoc0, xil.OpStLoc1, xil.OpStLoc2, xil.OpStLoc3:
		idx := int(inst.Op - xil.OpStLoc0)
		v, _, err := frame.Stack.Pop()
		if err != nil {
			return Slot{}, nil, false, err
		}
		if err := frame.Locals.Store(idx, v); err != nil {
			return Slot{}, nil, false, err
		}
		frame.IP = next
	case xil.OpStLocS:
		v, _, err := frame.Stack.Pop()
		if err != nil {
			return Slot{}, nil, false, err
		}
		if err := frame.Locals.Store(int(inst.U8), v); err != nil {
			return Slot{}, nil, false, err
		}
		frame.IP = next
	case xil.OpStLoc:
		v, _, err := frame.Stack.Pop()
		if err != nil {
			return Slot{}, nil, false, err
		}
		if err := frame.Locals.Store(int(inst.U16), v); err != nil {
			return Slot{}, nil, false, err
		}
		frame.IP = next

	case xil.OpLdNull:
		frame.Stack.Push(RefSlot(0))
		frame.IP = next
	case xil.OpLdcI4M1, xil.OpLdcI40, xil.OpLdcI41, xil.OpLdcI42, xil.OpLdcI43,
		xil.OpLdcI44, xil.OpLdcI45, xil.OpLdcI46, xil.OpLdcI47, xil.OpLdcI48:
		v := int32(inst.Op) - int32(xil.OpLdcI40)
		frame.Stack.Push(I32Slot(v))
		frame.IP = next
	case xil.OpLdcI4S:
		frame.Stack.Push(I32Slot(int32(inst.I8)))
		frame.IP = next
	case xil.OpLdcI4:
		frame.Stack.Push(I32Slot(inst.I32))
		frame.IP = next

	case xil.OpDup:
		if err := frame.Stack.Dup(); err != nil {
			return Slot{}, nil, false, err
		}
		frame.IP = next
	case xil.OpPop:
		if _, _, err := frame.Stack.Pop(); err != nil {
			return Slot{}, nil, false, err
		}
		frame.IP = next

	case xil.OpCall:
		return Slot{}, nil, false, in.doCall(frame, inst.Tok, next, false)
	case xil.OpCallVirt:
		return Slot{}, nil, false, in.doCall(frame, inst.Tok, next, true)
	case xil.OpNewObj:
		return Slot{}, nil, false, in.doNewObj(frame, inst.Tok, next)

	case xil.OpRet:
		if frame.Method.Ret.Kind == loader.BuiltinVoid {
			return Slot{}, nil, true, nil
		}
		v, p, err := frame.Stack.Pop()
		if err != nil {
			return Slot{}, nil, false, err
		}
		return v, p, true, nil

	case xil.OpBr:
		frame.IP = next + int(inst.I32)
	case xil.OpBrFalse, xil.OpBrTrue:
		v, _, err := frame.Stack.Pop()
		if err != nil {
			return Slot{}, nil, false, err
		}
		truthy := slotTruthy(v)
		if (inst.Op == xil.OpBrTrue) == truthy {
			frame.IP = next + int(inst.I32)
		} else {
			frame.IP = next
		}
	case xil.OpBEq, xil.OpBGe, xil.OpBGt, xil.OpBLe, xil.OpBLt:
		a, _, err := frame.Stack.Pop()
		if err != nil {
			return Slot{}, nil, false, err
		}
		b, _, err := frame.Stack.Pop()
		if err != nil {
			return Slot{}, nil, false, err
		}
		cmp, err := compareSlots(b, a)
		if err != nil {
			return Slot{}, nil, false, err
		}
		var take bool
		switch inst.Op {
		case xil.OpBEq:
			take = cmp == 0
		case xil.OpBGe:
			take = cmp >= 0
		case xil.OpBGt:
			take = cmp > 0
		case xil.OpBLe:
			take = cmp <= 0
		case xil.OpBLt:
			take = cmp < 0
		}
		if take {
			frame.IP = next + int(inst.I32)
		} else {
			frame.IP = next
		}

	case xil.OpCEq, xil.OpCGt, xil.OpCLt:
		a, _, err := frame.Stack.Pop()
		if err != nil {
			return Slot{}, nil, false, err
		}
		b, _, err := frame.Stack.Pop()
		if err != nil {
			return Slot{}, nil, false, err
		}
		cmp, err := compareSlots(b, a)
		if err != nil {
			return Slot{}, nil, false, err
		}
		var res bool
		switch inst.Op {
		case xil.OpCEq:
			res = cmp == 0
		case xil.OpCGt:
			res = cmp > 0
		case xil.OpCLt:
			res = cmp < 0
		}
		frame.Stack.Push(I32Slot(boolToI32(res)))
		frame.IP = next

	case xil.OpAdd, xil.OpSub, xil.OpMul, xil.OpDiv, xil.OpRem:
		b, _, err := frame.Stack.Pop()
		if err != nil {
			return Slot{}, nil, false, err
		}
		a, _, err := frame.Stack.Pop()
		if err != nil {
			return Slot{}, nil, false, err
		}
		res, err := arith(inst.Op, a, b)
		if err != nil {
			return Slot{}, nil, false, err
		}
		frame.Stack.Push(res)
		frame.IP = next
	case xil.OpNeg:
		a, _, err := frame.Stack.Pop()
		if err != nil {
			return Slot{}, nil, false, err
		}
		res, err := negate(a)
		if err != nil {
			return Slot{}, nil, false, err
		}
		frame.Stack.Push(res)
		frame.IP = next

	case xil.OpLdFld:
		return Slot{}, nil, false, in.doLdFld(frame, inst.Tok, next, false)
	case xil.OpLdFlda:
		return Slot{}, nil, false, in.doLdFld(frame, inst.Tok, next, true)
	case xil.OpStFld:
		return Slot{}, nil, false, in.doStFld(frame, inst.Tok, next)
	case xil.OpLdSFld:
		return Slot{}, nil, false, in.doLdSFld(frame, inst.Tok, next, false)
	case xil.OpLdSFlda:
		return Slot{}, nil, false, in.doLdSFld(frame, inst.Tok, next, true)
	case xil.OpStSFld:
		return Slot{}, nil, false, in.doStSFld(frame, inst.Tok, next)

	case xil.OpLdStr:
		return Slot{}, nil, false, in.doLdStr(frame, inst.Tok, next)

	case xil.OpNewArr:
		return Slot{}, nil, false, in.doNewArr(frame, inst.Tok, next)
	case xil.OpLdLen:
		p, _, err := frame.Stack.Pop()
		if err != nil {
			return Slot{}, nil, false, err
		}
		ptr := p.AsRef()
		if ptr == 0 {
			return Slot{}, nil, false, ErrNullReference
		}
		frame.Stack.Push(I32Slot(int32(in.Heap.ArrLen(ptr))))
		frame.IP = next
	case xil.OpLdElemI4, xil.OpStElemI4:
		return Slot{}, nil, false, in.doElemFixed(frame, inst.Op, next, 4)
	case xil.OpLdElemRef, xil.OpStElemRef:
		return Slot{}, nil, false, in.doElemFixed(frame, inst.Op, next, refSize)
	case xil.OpLdElem:
		return Slot{}, nil, false, in.doLdElem(frame, inst.Tok, next)
	case xil.OpStElem:
		return Slot{}, nil, false, in.doStElem(frame, inst.Tok, next)
	case xil.OpLdElema:
		return Slot{}, nil, false, in.doLdElema(frame, inst.Tok, next)

	case xil.OpInitObj:
		return Slot{}, nil, false, in.doInitObj(frame, inst.Tok, next)
	case xil.OpCpObj:
		return Slot{}, nil, false, in.doCpObj(frame, inst.Tok, next)

	default:
		return Slot{}, nil, false, xil.ErrUnknownOpcode
	}
	return Slot{}, nil, false, nil
}

func slotTruthy(v Slot) bool {
	switch v.Tag {
	case TagRef:
		return v.AsRef() != 0
	case TagF32:
		return v.AsF32() != 0
	case TagF64:
		return v.AsF64() != 0
	default:
		return v.Bits != 0
	}
}

func boolToI32(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

// compareSlots returns -1/0/1 for a compared to b, after applying the
// I32/INative promotion rule; mixing int and float is fatal (§4.7).
func compareSlots(a, b Slot) (int, error) {
	tag, err := PromoteNumeric(a, b)
	if err != nil {
		return 0, err
	}
	switch tag {
	case TagF32:
		af, bf := a.AsF32(), b.AsF32()
		return cmpFloat(float64(af), float64(bf)), nil
	case TagF64:
		return cmpFloat(a.AsF64(), b.AsF64()), nil
	case TagRef:
		return cmpInt(int64(a.AsRef()), int64(b.AsRef())), nil
	default:
		return cmpInt(a.AsI64(), b.AsI64()), nil
	}
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func arith(op xil.Mnemonic, a, b Slot) (Slot, error) {
	tag, err := PromoteNumeric(a, b)
	if err != nil {
		return Slot{}, err
	}
	switch tag {
	case TagF32:
		af, bf := float64(a.AsF32()), float64(b.AsF32())
		r, err := arithFloat(op, af, bf)
		if err != nil {
			return Slot{}, err
		}
		return F32Slot(float32(r)), nil
	case TagF64:
		r, err := arithFloat(op, a.AsF64(), b.AsF64())
		if err != nil {
			return Slot{}, err
		}
		return F64Slot(r), nil
	case TagI64:
		r, err := arithInt(op, a.AsI64(), b.AsI64())
		if err != nil {
			return Slot{}, err
		}
		return I64Slot(r), nil
	case TagINative:
		r, err := arithInt(op, a.AsNative(), b.AsNative())
		if err != nil {
			return Slot{}, err
		}
		return NativeSlot(r), nil
	default: // I32
		r, err := arithInt(op, int64(a.AsI32()), int64(b.AsI32()))
		if err != nil {
			return Slot{}, err
		}
		return I32Slot(int32(r)), nil
	}
}

func arithInt(op xil.Mnemonic, a, b int64) (int64, error) {
	switch op {
	case xil.OpAdd:
		return a + b, nil
	case xil.OpSub:
		return a - b, nil
	case xil.OpMul:
		return a * b, nil
	case xil.OpDiv:
		if b == 0 {
			return 0, ErrDivideByZero
		}
		return a / b, nil
	case xil.OpRem:
		if b == 0 {
			return 0, ErrDivideByZero
		}
		return a % b, nil
	default:
		return 0, ErrTypeMismatch
	}
}

func arithFloat(op xil.Mnemonic, a, b float64) (float64, error) {
	switch op {
	case xil.OpAdd:
		return a + b, nil
	case xil.OpSub:
		return a - b, nil
	case xil.OpMul:
		return a * b, nil
	case xil.OpDiv:
		return a / b, nil // IEEE-754 semantics: may yield Inf/NaN (§4.7)
	case xil.OpRem:
		return mod(a, b), nil
	default:
		return 0, ErrTypeMismatch
	}
}

func mod(a, b float64) float64 {
	if b == 0 {
		return a / b // NaN
	}
	q := a / b
	q = float64(int64(q))
	return a - q*b
}

func negate(a Slot) (Slot, error) {
	switch a.Tag {
	case TagI32:
		return I32Slot(-a.AsI32()), nil
	case TagI64:
		return I64Slot(-a.AsI64()), nil
	case TagINative:
		return NativeSlot(-a.AsNative()), nil
	case TagF32:
		return F32Slot(-a.AsF32()), nil
	case TagF64:
		return F64Slot(-a.AsF64()), nil
	default:
		return Slot{}, ErrTypeMismatch
	}
}

// doCall handles call (direct) and callvirt (vtable-dispatched).
func (in *Interp) doCall(frame *ActivationRecord, tok xil.Token, next int, virtual bool) error {
	target, err := loader.ResolveMethod(frame.Image, tok)
	if err != nil {
		return err
	}
	argTypes := argTypesWithThis(target)
	args := make([]Slot, len(argTypes))
	payloads := make([][]byte, len(argTypes))
	for i := len(argTypes) - 1; i >= 0; i-- {
		v, p, err := frame.Stack.Pop()
		if err != nil {
			return err
		}
		args[i], payloads[i] = v, p
	}

	actual := target
	if virtual {
		selfPtr := args[0].AsRef()
		if selfPtr == 0 {
			return ErrNullReference
		}
		recvType := in.Heap.ObjType(selfPtr)
		if target.VtblSlot >= 0 && target.VtblSlot < len(recvType.Vtbl) {
			actual = recvType.Vtbl[target.VtblSlot]
		}
	}

	ret, retPayload, err := in.Invoke(actual, args, payloads)
	if err != nil {
		return err
	}
	if actual.Ret.Kind != loader.BuiltinVoid {
		if ret.Tag == TagValue {
			frame.Stack.PushValue(ret.Type, retPayload)
		} else {
			frame.Stack.Push(ret)
		}
	}
	frame.IP = next
	return nil
}

func (in *Interp) doNewObj(frame *ActivationRecord, tok xil.Token, next int) error {
	ctor, err := loader.ResolveMethod(frame.Image, tok)
	if err != nil {
		return err
	}
	ptr, err := in.Heap.NewObj(ctor.Parent)
	if err != nil {
		return err
	}
	n := len(ctor.Params)
	args := make([]Slot, n+1)
	payloads := make([][]byte, n+1)
	for i := n; i >= 1; i-- {
		v, p, err := frame.Stack.Pop()
		if err != nil {
			return err
		}
		args[i], payloads[i] = v, p
	}
	args[0] = RefSlot(ptr)
	if _, _, err := in.Invoke(ctor, args, payloads); err != nil {
		return err
	}
	frame.Stack.Push(RefSlot(ptr))
	frame.IP = next
	return nil
}

func (in *Interp) doLdFld(frame *ActivationRecord, tok xil.Token, next int, addr bool) error {
	f, err := loader.ResolveField(frame.Image, tok)
	if err != nil {
		return err
	}
	v, _, err := frame.Stack.Pop()
	if err != nil {
		return err
	}
	ptr := v.AsRef()
	if ptr == 0 {
		return ErrNullReference
	}
	size := f.Type.Size(ptrSizeConst)
	raw := in.Heap.Bytes(ptr, f.Offset, size)
	if addr {
		frame.Stack.Push(AddrSlot(raw, f.Type))
	} else if f.Type.Kind == loader.BuiltinValue {
		frame.Stack.PushValue(f.Type.Class, raw)
	} else {
		frame.Stack.Push(loadSlot(f.Type, raw))
	}
	frame.IP = next
	return nil
}

func (in *Interp) doStFld(frame *ActivationRecord, tok xil.Token, next int) error {
	f, err := loader.ResolveField(frame.Image, tok)
	if err != nil {
		return err
	}
	v, payload, err := frame.Stack.Pop()
	if err != nil {
		return err
	}
	r, _, err := frame.Stack.Pop()
	if err != nil {
		return err
	}
	ptr := r.AsRef()
	if ptr == 0 {
		return ErrNullReference
	}
	size := f.Type.Size(ptrSizeConst)
	dst := in.Heap.Bytes(ptr, f.Offset, size)
	if v.Tag == TagValue {
		copy(dst, payload)
	} else {
		copy(dst, coerceStore(f.Type, v))
	}
	frame.IP = next
	return nil
}

func (in *Interp) doLdSFld(frame *ActivationRecord, tok xil.Token, next int, addr bool) error {
	f, err := loader.ResolveField(frame.Image, tok)
	if err != nil {
		return err
	}
	size := f.Type.Size(ptrSizeConst)
	raw := f.Parent.StaticArea[f.Offset : f.Offset+size]
	if addr {
		frame.Stack.Push(AddrSlot(raw, f.Type))
	} else if f.Type.Kind == loader.BuiltinValue {
		frame.Stack.PushValue(f.Type.Class, raw)
	} else {
		frame.Stack.Push(loadSlot(f.Type, raw))
	}
	frame.IP = next
	return nil
}

func (in *Interp) doStSFld(frame *ActivationRecord, tok xil.Token, next int) error {
	f, err := loader.ResolveField(frame.Image, tok)
	if err != nil {
		return err
	}
	v, payload, err := frame.Stack.Pop()
	if err != nil {
		return err
	}
	size := f.Type.Size(ptrSizeConst)
	dst := f.Parent.StaticArea[f.Offset : f.Offset+size]
	if v.Tag == TagValue {
		copy(dst, payload)
	} else {
		copy(dst, coerceStore(f.Type, v))
	}
	frame.IP = next
	return nil
}

func (in *Interp) doLdStr(frame *ActivationRecord, tok xil.Token, next int) error {
	li := frame.Image
	cache, ok := in.usrStrs[li]
	if !ok {
		cache = map[uint32]Ptr{}
		in.usrStrs[li] = cache
	}
	idx := tok.Index()
	if ptr, ok := cache[idx]; ok {
		frame.Stack.Push(RefSlot(ptr))
		frame.IP = next
		return nil
	}
	s, err := loader.UsrString(li, tok)
	if err != nil {
		return err
	}
	ptr, err := in.Heap.NewStrFromUTF8(in.stringType, s)
	if err != nil {
		return err
	}
	cache[idx] = ptr
	frame.Stack.Push(RefSlot(ptr))
	frame.IP = next
	return nil
}

func (in *Interp) doNewArr(frame *ActivationRecord, tok xil.Token, next int) error {
	elemType, err := loader.ResolveType(frame.Image, tok)
	if err != nil {
		return err
	}
	n, _, err := frame.Stack.Pop()
	if err != nil {
		return err
	}
	elemSize := elemInstanceSize(elemType)
	ptr, err := in.Heap.NewArr(elemType, elemSize, int(n.AsI32()))
	if err != nil {
		return err
	}
	frame.Stack.Push(RefSlot(ptr))
	frame.IP = next
	return nil
}

// elemInstanceSize returns the per-element width an array of t stores:
// basic_instance_size for value-typed elements (payload copy), REF_SIZE
// for reference-typed elements (§4.7).
func elemInstanceSize(t *loader.LinkedType) int {
	if t == nil || !t.EE.IsValue {
		return refSize
	}
	return t.BasicInstanceSize
}

func (in *Interp) doElemFixed(frame *ActivationRecord, op xil.Mnemonic, next int, size int) error {
	if op == xil.OpLdElemI4 || op == xil.OpLdElemRef {
		idx, _, err := frame.Stack.Pop()
		if err != nil {
			return err
		}
		r, _, err := frame.Stack.Pop()
		if err != nil {
			return err
		}
		ptr := r.AsRef()
		if ptr == 0 {
			return ErrNullReference
		}
		i := int(idx.AsI32())
		if err := in.Heap.CheckElemBounds(ptr, i); err != nil {
			return err
		}
		raw := in.Heap.Bytes(ptr, ElemOffset(i, size), size)
		if op == xil.OpLdElemI4 {
			frame.Stack.Push(I32Slot(int32(binary.BigEndian.Uint32(raw))))
		} else {
			frame.Stack.Push(RefSlot(Ptr(binary.BigEndian.Uint64(raw))))
		}
		frame.IP = next
		return nil
	}

	v, _, err := frame.Stack.Pop()
	if err != nil {
		return err
	}
	idx, _, err := frame.Stack.Pop()
	if err != nil {
		return err
	}
	r, _, err := frame.Stack.Pop()
	if err != nil {
		return err
	}
	ptr := r.AsRef()
	if ptr == 0 {
		return ErrNullReference
	}
	i := int(idx.AsI32())
	if err := in.Heap.CheckElemBounds(ptr, i); err != nil {
		return err
	}
	raw := in.Heap.Bytes(ptr, ElemOffset(i, size), size)
	if op == xil.OpStElemI4 {
		binary.BigEndian.PutUint32(raw, uint32(v.AsI32()))
	} else {
		binary.BigEndian.PutUint64(raw, uint64(v.AsRef()))
	}
	frame.IP = next
	return nil
}

func (in *Interp) doLdElem(frame *ActivationRecord, tok xil.Token, next int) error {
	elemType, err := loader.ResolveType(frame.Image, tok)
	if err != nil {
		return err
	}
	idx, _, err := frame.Stack.Pop()
	if err != nil {
		return err
	}
	r, _, err := frame.Stack.Pop()
	if err != nil {
		return err
	}
	ptr := r.AsRef()
	if ptr == 0 {
		return ErrNullReference
	}
	i := int(idx.AsI32())
	if err := in.Heap.CheckElemBounds(ptr, i); err != nil {
		return err
	}
	size := elemInstanceSize(elemType)
	raw := in.Heap.Bytes(ptr, ElemOffset(i, size), size)
	if elemType != nil && elemType.EE.IsValue {
		frame.Stack.PushValue(elemType, raw)
	} else {
		frame.Stack.Push(RefSlot(Ptr(binary.BigEndian.Uint64(raw))))
	}
	frame.IP = next
	return nil
}

func (in *Interp) doStElem(frame *ActivationRecord, tok xil.Token, next int) error {
	elemType, err := loader.ResolveType(frame.Image, tok)
	if err != nil {
		return err
	}
	v, payload, err := frame.Stack.Pop()
	if err != nil {
		return err
	}
	idx, _, err := frame.Stack.Pop()
	if err != nil {
		return err
	}
	r, _, err := frame.Stack.Pop()
	if err != nil {
		return err
	}
	ptr := r.AsRef()
	if ptr == 0 {
		return ErrNullReference
	}
	i := int(idx.AsI32())
	if err := in.Heap.CheckElemBounds(ptr, i); err != nil {
		return err
	}
	size := elemInstanceSize(elemType)
	raw := in.Heap.Bytes(ptr, ElemOffset(i, size), size)
	if v.Tag == TagValue {
		copy(raw, payload)
	} else {
		binary.BigEndian.PutUint64(raw, uint64(v.AsRef()))
	}
	frame.IP = next
	return nil
}

func (in *Interp) doLdElema(frame *ActivationRecord, tok xil.Token, next int) error {
	elemType, err := loader.ResolveType(frame.Image, tok)
	if err != nil {
		return err
	}
	idx, _, err := frame.Stack.Pop()
	if err != nil {
		return err
	}
	r, _, err := frame.Stack.Pop()
	if err != nil {
		return err
	}
	ptr := r.AsRef()
	if ptr == 0 {
		return ErrNullReference
	}
	i := int(idx.AsI32())
	if err := in.Heap.CheckElemBounds(ptr, i); err != nil {
		return err
	}
	size := elemInstanceSize(elemType)
	raw := in.Heap.Bytes(ptr, ElemOffset(i, size), size)
	addrType := loader.BuiltinType{Kind: loader.BuiltinClass, Class: elemType}
	if elemType != nil && elemType.EE.IsValue {
		addrType = loader.BuiltinType{Kind: loader.BuiltinValue, Class: elemType}
	}
	frame.Stack.Push(AddrSlot(raw, addrType))
	frame.IP = next
	return nil
}

func (in *Interp) doInitObj(frame *ActivationRecord, tok xil.Token, next int) error {
	t, err := loader.ResolveType(frame.Image, tok)
	if err != nil {
		return err
	}
	a, _, err := frame.Stack.Pop()
	if err != nil {
		return err
	}
	size := elemInstanceSize(t)
	if size > len(a.Addr) {
		size = len(a.Addr)
	}
	for i := range a.Addr[:size] {
		a.Addr[i] = 0
	}
	frame.IP = next
	return nil
}

func (in *Interp) doCpObj(frame *ActivationRecord, tok xil.Token, next int) error {
	t, err := loader.ResolveType(frame.Image, tok)
	if err != nil {
		return err
	}
	src, _, err := frame.Stack.Pop()
	if err != nil {
		return err
	}
	dst, _, err := frame.Stack.Pop()
	if err != nil {
		return err
	}
	size := elemInstanceSize(t)
	copy(dst.Addr[:size], src.Addr[:size])
	frame.IP = next
	return nil
}

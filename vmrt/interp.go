package vmrt

import (
	"os"

	"github.com/xi-lang/xil"
	"github.com/xi-lang/xil/loader"
	"github.com/xi-lang/xil/log"
)

// NativeBridge dispatches a foreign-linked call (§4.8) to a per-module
// bridge entry point. Implementations live in xil/native; vmrt only
// depends on this interface to avoid a package cycle.
type NativeBridge interface {
	Invoke(scope, symbol string, args []byte, retSize int) ([]byte, error)
}

// DefaultMaxStack bounds a frame's eval stack when a method body doesn't
// otherwise constrain it; CodeRow.MaxStack overrides this per method.
const DefaultMaxStack = 256

// Interp runs a loader.Program to completion (component I).
type Interp struct {
	Prog   *loader.Program
	Heap   *Heap
	Bridge NativeBridge
	log    *log.Helper

	stringType *loader.LinkedType
	usrStrs    map[*loader.LoadedImage]map[uint32]Ptr
}

// Options configures an Interp.
type Options struct {
	HeapSize int // bytes; defaults to 1<<20 if zero
	Bridge   NativeBridge
	Logger   log.Logger
}

// NewInterp builds an interpreter for prog. stringFullname names the
// canonical String type (§3.5); it must be reachable as a TypeDef in one
// of prog's images, matched by LinkedType.Fullname.
func NewInterp(prog *loader.Program, stringFullname string, opts *Options) *Interp {
	if opts == nil {
		opts = &Options{}
	}
	size := opts.HeapSize
	if size == 0 {
		size = 1 << 20
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewFilter(log.NewStdLogger(os.Stdout), log.FilterLevel(log.LevelError))
	}
	helper := log.NewHelper(logger)

	in := &Interp{
		Prog:    prog,
		Heap:    NewHeap(size),
		Bridge:  opts.Bridge,
		log:     helper,
		usrStrs: map[*loader.LoadedImage]map[uint32]Ptr{},
	}
	for _, li := range prog.Images {
		for _, t := range li.TypeDefList {
			if t.Fullname() == stringFullname {
				in.stringType = t
			}
		}
	}
	return in
}

// Run executes every static initializer in order, then the entry method,
// if any (§4.7: "Static initialization").
func (in *Interp) Run() error {
	for _, ctor := range in.Prog.StaticInits {
		frame := NewActivationRecord(ctor, nil, nil, frameMaxStack(ctor))
		if _, _, err := in.runFrame(frame); err != nil {
			return err
		}
		if frame.Stack.Len() != 0 {
			return &TrapError{Method: ctor.Name, IP: frame.IP, Err: ErrStaticNotEmpty}
		}
	}
	if in.Prog.Entry == nil {
		return nil
	}
	_, _, err := in.Invoke(in.Prog.Entry, nil, nil)
	return err
}

func frameMaxStack(m *loader.LinkedMethod) int {
	if m.Impl.Kind == loader.ImplIL && m.Impl.Code.MaxStack > 0 {
		return int(m.Impl.Code.MaxStack)
	}
	return DefaultMaxStack
}

// Invoke calls m with the given already-evaluated arguments (self first,
// if m.HasThis), dispatching to IL interpretation, a bound runtime
// function, or the native bridge as m.Impl.Kind demands.
func (in *Interp) Invoke(m *loader.LinkedMethod, args []Slot, argPayloads [][]byte) (Slot, []byte, error) {
	switch m.Impl.Kind {
	case loader.ImplRuntime:
		if m.Impl.Runtime == nil {
			return Slot{}, nil, &TrapError{Method: m.Name, Err: ErrUnboundRuntime}
		}
		raw := make([][]byte, len(args))
		argTypes := argTypesWithThis(m)
		for i, a := range args {
			if i < len(argTypes) {
				raw[i] = coerceStore(argTypes[i], a)
			}
		}
		ret, err := m.Impl.Runtime(raw)
		if err != nil {
			return Slot{}, nil, &TrapError{Method: m.Name, Err: err}
		}
		if m.Ret.Kind == loader.BuiltinVoid {
			return Slot{}, nil, nil
		}
		return loadSlot(m.Ret, ret), nil, nil

	case loader.ImplForeign:
		if in.Bridge == nil {
			return Slot{}, nil, &TrapError{Method: m.Name, Err: ErrNoFunc}
		}
		argTypes := argTypesWithThis(m)
		packed := make([]byte, 0, m.ArgsFrameSize)
		for i, a := range args {
			if i < len(argTypes) {
				packed = append(packed, coerceStore(argTypes[i], a)...)
			}
		}
		retSize := 0
		if m.Ret.Kind != loader.BuiltinVoid {
			retSize = m.Ret.Size(ptrSizeConst)
		}
		ret, err := in.Bridge.Invoke(m.Impl.ForeignScope, m.Impl.ForeignSymbol, packed, retSize)
		if err != nil {
			return Slot{}, nil, &TrapError{Method: m.Name, Err: err}
		}
		if retSize == 0 {
			return Slot{}, nil, nil
		}
		return loadSlot(m.Ret, ret), nil, nil

	default: // ImplIL
		frame := NewActivationRecord(m, args, argPayloads, frameMaxStack(m))
		return in.runFrame(frame)
	}
}

// argTypesWithThis returns m's parameter shape including the implicit
// self slot, in the same order Invoke's args are supplied.
func argTypesWithThis(m *loader.LinkedMethod) []loader.BuiltinType {
	if !m.HasThis {
		return m.Params
	}
	out := make([]loader.BuiltinType, 0, len(m.Params)+1)
	out = append(out, loader.BuiltinType{Kind: loader.BuiltinByRef})
	return append(out, m.Params...)
}

// runFrame steps frame's bytecode to completion and returns its return
// value (zero Slot for void methods).
func (in *Interp) runFrame(frame *ActivationRecord) (Slot, []byte, error) {
	for {
		if frame.IP >= len(frame.Bytecode) {
			return Slot{}, nil, &TrapError{Method: frame.Method.Name, IP: frame.IP, Err: xil.ErrTruncated}
		}
		inst, next, err := xil.DecodeInstructionAt(frame.Bytecode, frame.IP)
		if err != nil {
			return Slot{}, nil, &TrapError{Method: frame.Method.Name, IP: frame.IP, Err: err}
		}
		ret, retPayload, done, err := in.step(frame, inst, next)
		if err != nil {
			return Slot{}, nil, &TrapError{Method: frame.Method.Name, IP: frame.IP, Err: err}
		}
		if done {
			return ret, retPayload, nil
		}
	}
}

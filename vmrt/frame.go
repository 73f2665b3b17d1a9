package vmrt

import (
	"fmt"

	"github.com/xi-lang/xil/loader"
)

// slotArea is the Locals/Args abstraction (§4.6): a fixed list of
// declared BuiltinTypes, each backed by its own raw byte buffer sized to
// its storage width, with typed load/loada/store.
type slotArea struct {
	types []loader.BuiltinType
	data  [][]byte
}

func newSlotArea(types []loader.BuiltinType) *slotArea {
	a := &slotArea{types: types, data: make([][]byte, len(types))}
	for i, t := range types {
		a.data[i] = make([]byte, t.Size(ptrSizeConst))
	}
	return a
}

func (a *slotArea) checkIndex(i int) error {
	if i < 0 || i >= len(a.types) {
		return fmt.Errorf("vmrt: slot index %d out of range (len %d)", i, len(a.types))
	}
	return nil
}

// Load reads slot i as an eval-stack Slot.
func (a *slotArea) Load(i int) (Slot, error) {
	if err := a.checkIndex(i); err != nil {
		return Slot{}, err
	}
	return loadSlot(a.types[i], a.data[i]), nil
}

// Loada returns an interior-pointer Slot over slot i's own backing
// buffer (ldarga.s/ldloca.s/ldloca), for use by cpobj/initobj.
func (a *slotArea) Loada(i int) (Slot, error) {
	if err := a.checkIndex(i); err != nil {
		return Slot{}, err
	}
	return AddrSlot(a.data[i], a.types[i]), nil
}

// Store writes v (coerced to slot i's declared width) into slot i.
func (a *slotArea) Store(i int, v Slot) error {
	if err := a.checkIndex(i); err != nil {
		return err
	}
	copy(a.data[i], coerceStore(a.types[i], v))
	return nil
}

// ActivationRecord is one method call's execution state (§4.6): its
// instruction pointer, the bytecode it's stepping through, its eval
// stack, and Locals/Args. Its return value is handed back by the caller
// of runFrame, not stored in the record.
type ActivationRecord struct {
	Method   *loader.LinkedMethod
	Image    *loader.LoadedImage // the image owning Method, for token resolution
	Bytecode []byte
	IP       int

	Stack  *EvalStack
	Locals *slotArea
	Args   *slotArea
}

// NewActivationRecord builds a fresh frame for m. argValues are already
// evaluated call-site argument values (self first, if HasThis), in
// declared order.
func NewActivationRecord(m *loader.LinkedMethod, argValues []Slot, argPayloads [][]byte, maxStack int) *ActivationRecord {
	argTypes := make([]loader.BuiltinType, 0, len(m.Params)+1)
	if m.HasThis {
		argTypes = append(argTypes, loader.BuiltinType{Kind: loader.BuiltinByRef})
	}
	argTypes = append(argTypes, m.Params...)

	args := newSlotArea(argTypes)
	for i, v := range argValues {
		if i >= len(argTypes) {
			break
		}
		_ = args.Store(i, v)
		if v.Tag == TagValue && i < len(argPayloads) {
			args.data[i] = append([]byte(nil), argPayloads[i]...)
		}
	}

	return &ActivationRecord{
		Method:   m,
		Image:    m.Parent.Module,
		Bytecode: m.Impl.Code.Bytecode,
		Stack:    NewEvalStack(maxStack),
		Locals:   newSlotArea(m.Locals),
		Args:     args,
	}
}

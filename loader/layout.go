package loader

import "github.com/xi-lang/xil"

// ptrSize is this implementation's fixed pointer width, used for sizing
// reference-shaped fields and frame slots throughout layout.
const ptrSize = 8

// layoutImage is phase 6 (§4.4 step 6): assign instance field offsets
// (inheriting the base type's layout and BasicInstanceSize), grow each
// type's static area, and assign vtable slots — reusing a base method's
// slot when the derived method has an identical signature key and
// return type and was not declared MethodNewSlot, otherwise allocating a
// fresh slot. Also computes each type's EE.IsValue via Options.IsValueType
// (default: "std::ValueType" appears in the Extends chain).
func layoutImage(li *LoadedImage, opts *Options) error {
	visiting := map[*LinkedType]bool{}

	var layoutType func(t *LinkedType) error
	layoutType = func(t *LinkedType) error {
		if t.Vtbl != nil || t.BasicInstanceSize != 0 || len(t.StaticArea) != 0 {
			return nil // already laid out (e.g. resolved as another image's base)
		}
		if visiting[t] {
			return linkErr(li.Name, "layout:"+t.Name, ErrLayoutConflict)
		}
		visiting[t] = true
		defer delete(visiting, t)

		instanceSize := 0
		var baseVtbl []*LinkedMethod
		if t.Extends != nil {
			if t.Extends.Module != nil && t.Extends.Module != t.Module {
				// Base lives in an already-fully-loaded dependency image;
				// nothing to do.
			} else if err := layoutType(t.Extends); err != nil {
				return err
			}
			instanceSize = t.Extends.BasicInstanceSize
			baseVtbl = t.Extends.Vtbl
		}

		t.EE.IsValue = isValueType(t, opts)

		for _, name := range t.fieldOrder {
			f := t.Fields[name]
			sz := f.Type.Size(ptrSize)
			if f.Static {
				f.Offset = len(t.StaticArea)
				t.StaticArea = append(t.StaticArea, make([]byte, sz)...)
				continue
			}
			// Shadowing a base field of the same name keeps the base's
			// offset and size; a genuinely new field grows the type.
			if base := findBaseField(t.Extends, name); base != nil {
				f.Offset = base.Offset
				continue
			}
			f.Offset = instanceSize
			instanceSize += sz
		}
		t.BasicInstanceSize = instanceSize

		t.Vtbl = append([]*LinkedMethod(nil), baseVtbl...)
		// Walk the type's own MethodList rows rather than the Methods map:
		// two methods with the same signature key (e.g. `.ctor` and an
		// instance method taking no arguments) share one map entry.
		for _, m := range t.Module.MethodList {
			if m.Parent != t {
				continue
			}
			if !m.HasThis {
				m.VtblSlot = -1
				continue
			}
			reuse := -1
			if m.Flags&xil.MethodNewSlot == 0 {
				for i, bm := range t.Vtbl {
					if bm != nil && bm.SigKey == m.SigKey && bm.Name == m.Name &&
						sameBuiltinType(bm.Ret, m.Ret) {
						reuse = i
						break
					}
				}
			}
			if reuse >= 0 {
				m.VtblSlot = reuse
				t.Vtbl[reuse] = m
			} else {
				m.VtblSlot = len(t.Vtbl)
				t.Vtbl = append(t.Vtbl, m)
			}
		}

		return nil
	}

	for _, t := range li.TypeDefList {
		if err := layoutType(t); err != nil {
			return err
		}
	}
	return nil
}

func findBaseField(base *LinkedType, name string) *LinkedField {
	for b := base; b != nil; b = b.Extends {
		if f, ok := b.Fields[name]; ok {
			return f
		}
	}
	return nil
}

func sameBuiltinType(a, b BuiltinType) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case BuiltinClass, BuiltinValue:
		return a.Class == b.Class
	case BuiltinByRef, BuiltinSZArray:
		if a.Inner == nil || b.Inner == nil {
			return a.Inner == b.Inner
		}
		return sameBuiltinType(*a.Inner, *b.Inner)
	default:
		return true
	}
}

// isValueType applies Options.IsValueType (or the default std::ValueType
// convention) to t's Extends chain.
func isValueType(t *LinkedType, opts *Options) bool {
	for b := t; b != nil; b = b.Extends {
		if opts.isValueType(b.Fullname()) {
			return true
		}
		if b.Fullname() == ValueTypeBaseFullname {
			return true
		}
	}
	return false
}

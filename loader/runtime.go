package loader

import "fmt"

// bindRuntime is phase 7 (§4.4 step 7): every method whose ImplFlags
// marked it ImplRuntime during decodeSignatures is matched against
// opts.Runtime by a "TypeFullname#sigKey#methodName" key and bound.
// A runtime method left unmatched is fatal — there is no fallback
// interpretation for a method with no code body and no bound native
// function.
func bindRuntime(li *LoadedImage, opts *Options) error {
	for _, t := range li.TypeDefList {
		for _, key := range t.methodOrder {
			m := t.Methods[key]
			if m.Impl.Kind != ImplRuntime {
				continue
			}
			fn, ok := opts.Runtime[runtimeKey(t.Fullname(), m)]
			if !ok {
				return linkErr(li.Name, "runtime:"+t.Fullname()+"::"+m.Name, ErrRuntimeUnbound)
			}
			m.Impl.Runtime = fn
		}
	}
	return nil
}

// runtimeKey builds the lookup key bindRuntime and cmd/xivm's registration
// helper both use for a given method.
func runtimeKey(typeFullname string, m *LinkedMethod) string {
	return fmt.Sprintf("%s#%s#%s", typeFullname, m.SigKey, m.Name)
}

package loader

import (
	"fmt"
	"os"

	"github.com/xi-lang/xil"
	"github.com/xi-lang/xil/log"
)

// staticCtorName is the conventional name of a type's static initializer
// method (no declared surface syntax names it directly; the compiler
// emits it under this name, mirroring the CLR/original toolchain's
// `.cctor` convention).
const staticCtorName = ".cctor"

// Resolver fetches the image for a named module (a ModuleRef's Name),
// since filesystem/package-path wiring is outside this toolchain's core
// (§1 non-goals) — cmd/xivm supplies one backed by its -i search path.
type Resolver func(name string) (*xil.Image, error)

// TrustPolicy gates §3.7 signature verification.
type TrustPolicy struct {
	// Require rejects unsigned images outright when true.
	Require bool
}

// Options configures Load.
type Options struct {
	Resolve Resolver

	// IsValueType decides, for a type with no declared ValueType base,
	// whether it is nonetheless a value type. Defaults to checking for a
	// base type whose Fullname is "std::ValueType" (§9 Open Question).
	IsValueType func(fullname string) bool

	Trust *TrustPolicy

	// Runtime maps "TypeFullname#signatureKey#methodName" to the
	// built-in implementation bound during phase 7.
	Runtime map[string]RuntimeFunc

	Logger log.Logger
}

func (o *Options) isValueType(fullname string) bool {
	if o.IsValueType != nil {
		return o.IsValueType(fullname)
	}
	return false
}

func (o *Options) helper() *log.Helper {
	if o == nil || o.Logger == nil {
		return log.NewHelper(log.NewFilter(log.NewStdLogger(os.Stdout), log.FilterLevel(log.LevelWarn)))
	}
	return log.NewHelper(o.Logger)
}

// Program is the fully linked result of Load: every loaded image, the
// entry method, and the ordered static initializers to run before it.
type Program struct {
	Images      map[string]*LoadedImage
	RootName    string
	Entry       *LinkedMethod
	StaticInits []*LinkedMethod
}

// Load resolves rootName/root and its transitive ModuleRef graph into a
// Program, running all seven loader phases (§4.4).
func Load(rootName string, root *xil.Image, opts *Options) (*Program, error) {
	if opts == nil {
		opts = &Options{}
	}
	log := opts.helper()

	order, images, err := discoverAndOrder(rootName, root, opts)
	if err != nil {
		return nil, err
	}

	loaded := make(map[string]*LoadedImage, len(order))
	for _, name := range order {
		img := images[name]

		if opts.Trust != nil {
			if err := verifyTrust(img, opts.Trust); err != nil {
				return nil, linkErr(name, "signature", err)
			}
		}
		if diag, ok := checkVersion(img); !ok {
			log.Warnf("%s: %s", name, diag)
		}

		li := &LoadedImage{Name: name, Image: img}
		internStrings(li) // phase 1
		instantiateTypeDefs(li) // phase 2
		loaded[name] = li
	}

	// Phase 3: resolve TypeRefs. Requires every image's TypeDefList to
	// already exist (done above), since a TypeRef's resolution scope may
	// name any already-loaded image.
	for _, name := range order {
		if err := resolveTypeRefs(loaded[name], loaded); err != nil {
			return nil, err
		}
	}

	// Resolve each TypeDef's Extends token now that both TypeDef and
	// TypeRef tables of every image are addressable.
	for _, name := range order {
		if err := resolveExtends(loaded[name], loaded); err != nil {
			return nil, err
		}
	}

	// Phase 4: decode signatures.
	for _, name := range order {
		if err := decodeSignatures(loaded[name], opts); err != nil {
			return nil, err
		}
	}

	// Phase 5: resolve MemberRefs (and ImplMap foreign bindings).
	for _, name := range order {
		if err := resolveMemberRefs(loaded[name], loaded); err != nil {
			return nil, err
		}
	}

	// Phase 6: layout.
	for _, name := range order {
		if err := layoutImage(loaded[name], opts); err != nil {
			return nil, err
		}
	}

	// Phase 7: bind runtime methods.
	for _, name := range order {
		if err := bindRuntime(loaded[name], opts); err != nil {
			return nil, err
		}
	}

	prog := &Program{Images: loaded, RootName: rootName}
	entry, err := findEntry(loaded[rootName])
	if err != nil {
		return nil, err
	}
	prog.Entry = entry
	prog.StaticInits = collectStaticInits(loaded, order)

	return prog, nil
}

// discoverAndOrder walks the ModuleRef graph from root, fetching each
// dependency via opts.Resolve, and returns a topological order
// (dependencies first). A cycle is fatal (§4.4).
func discoverAndOrder(rootName string, root *xil.Image, opts *Options) ([]string, map[string]*xil.Image, error) {
	images := map[string]*xil.Image{rootName: root}
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := map[string]int{}
	var order []string

	var visit func(name string, img *xil.Image) error
	visit = func(name string, img *xil.Image) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return linkErr(name, "moduleref graph", ErrModuleCycle)
		}
		state[name] = visiting
		for _, mr := range img.ModRefs {
			depName, err := strAt(img, mr.Name)
			if err != nil {
				return linkErr(name, "modref", err)
			}
			dep, ok := images[depName]
			if !ok {
				if opts.Resolve == nil {
					return linkErr(name, "modref:"+depName, ErrModuleNotFound)
				}
				dep, err = opts.Resolve(depName)
				if err != nil {
					return linkErr(name, "modref:"+depName, fmt.Errorf("%w: %v", ErrModuleNotFound, err))
				}
				images[depName] = dep
			}
			if err := visit(depName, dep); err != nil {
				return err
			}
		}
		state[name] = done
		order = append(order, name)
		return nil
	}

	if err := visit(rootName, root); err != nil {
		return nil, nil, err
	}
	return order, images, nil
}

func verifyTrust(img *xil.Image, policy *TrustPolicy) error {
	if !img.Signed() {
		if policy.Require {
			return xil.ErrSignatureInvalid
		}
		return nil
	}
	return xil.VerifyDetachedSignature(img.EncodeUnsigned(), img.Signature)
}

func findEntry(li *LoadedImage) (*LinkedMethod, error) {
	if li.Image.Module.Entrypoint == 0 {
		return nil, nil
	}
	for i, m := range li.Image.Methods {
		if m.Body == li.Image.Module.Entrypoint {
			return li.MethodList[i], nil
		}
	}
	return nil, linkErr(li.Name, "entrypoint", ErrMemberRefUnresolved)
}

// collectStaticInits gathers every type's `.cctor`, across all loaded
// images in dependency order and in each image's type declaration order,
// matching the loader's documented contract of running static
// initializers before entry.
func collectStaticInits(loaded map[string]*LoadedImage, order []string) []*LinkedMethod {
	var inits []*LinkedMethod
	for _, name := range order {
		for _, t := range loaded[name].TypeDefList {
			for _, methodName := range t.methodOrder {
				m := t.Methods[methodName]
				if m.Name == staticCtorName {
					inits = append(inits, m)
					break
				}
			}
		}
	}
	return inits
}

func strAt(img *xil.Image, idx uint32) (string, error) {
	if idx == 0 || int(idx) > len(img.StrHeap) {
		return "", xil.ErrNullToken
	}
	return img.StrHeap[idx-1], nil
}

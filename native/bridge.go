// Package native implements the foreign-function bridge (component J):
// it resolves a ModuleRef name used as an ImplMap.scope (§4.8) to a Go
// plugin and forwards a call across that boundary. xil/vmrt depends only
// on the vmrt.NativeBridge interface, never on this package directly, so
// a program that never calls a foreign method pays nothing for it.
package native

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"plugin"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/xi-lang/xil"
	"github.com/xi-lang/xil/log"
)

// nativeBridgeFunc is the symbol every bridge plugin must export under
// the name "NativeBridge" (§4.8.1).
type nativeBridgeFunc func(symbol string, args []byte, ret []byte) (xil.BridgeStatus, error)

const pluginSuffix = ".so"

var (
	// ErrBridgeNotFound means no `<scope>.so` plugin exists under any
	// configured search directory.
	ErrBridgeNotFound = errors.New("xil/native: no plugin found for foreign scope")
	// ErrBridgeSymbol means the plugin opened but has no NativeBridge
	// export.
	ErrBridgeSymbol = errors.New("xil/native: plugin has no NativeBridge symbol")
	// ErrBridgeSignature means the plugin's NativeBridge export has the
	// wrong function signature.
	ErrBridgeSignature = errors.New("xil/native: plugin's NativeBridge symbol has the wrong signature")
	// ErrNoSuchSymbol means the plugin loaded but reported BridgeNoFunc
	// for the requested symbol name.
	ErrNoSuchSymbol = errors.New("bridge reported no matching symbol")
)

// Bridge implements vmrt.NativeBridge by resolving each foreign scope to
// a Go plugin loaded from one of a list of search directories (the
// `-i` paths passed to cmd/xivm and cmd/xil, §4.8.1 option 2).
type Bridge struct {
	searchDirs []string
	log        *log.Helper

	mu      sync.Mutex
	plugins map[string]nativeBridgeFunc
	failed  map[string]error
}

// NewBridge builds a Bridge that looks for `<scope>.so` under each of
// searchDirs, in order, the first time that scope is called.
func NewBridge(searchDirs []string, logger log.Logger) *Bridge {
	if logger == nil {
		logger = log.NewStdLogger(os.Stdout)
	}
	return &Bridge{
		searchDirs: searchDirs,
		log:        log.NewHelper(logger),
		plugins:    map[string]nativeBridgeFunc{},
		failed:     map[string]error{},
	}
}

func (b *Bridge) resolve(scope string) (nativeBridgeFunc, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if fn, ok := b.plugins[scope]; ok {
		return fn, nil
	}
	if err, ok := b.failed[scope]; ok {
		return nil, err
	}
	fn, err := b.load(scope)
	if err != nil {
		b.failed[scope] = err
		return nil, err
	}
	b.plugins[scope] = fn
	return fn, nil
}

func (b *Bridge) load(scope string) (nativeBridgeFunc, error) {
	name := scope + pluginSuffix
	for _, dir := range b.searchDirs {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		p, err := plugin.Open(path)
		if err != nil {
			return nil, fmt.Errorf("xil/native: opening %s: %w", path, err)
		}
		sym, err := p.Lookup("NativeBridge")
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrBridgeSymbol, path, err)
		}
		fn, ok := sym.(func(string, []byte, []byte) (xil.BridgeStatus, error))
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrBridgeSignature, path)
		}
		b.log.Infof("loaded bridge %q from %s", scope, path)
		return nativeBridgeFunc(fn), nil
	}
	return nil, fmt.Errorf("%w: %q (searched %v)", ErrBridgeNotFound, scope, b.searchDirs)
}

// Invoke implements vmrt.NativeBridge. Argument frames larger than one
// native page are copied into an anonymous mmap'd, page-aligned region
// before the call, so a plugin never has to special-case a caller's
// original buffer alignment.
func (b *Bridge) Invoke(scope, symbol string, args []byte, retSize int) ([]byte, error) {
	fn, err := b.resolve(scope)
	if err != nil {
		return nil, err
	}

	argBuf, cleanup, err := alignedBuffer(args)
	if err != nil {
		return nil, err
	}
	if cleanup != nil {
		defer cleanup()
	}

	ret := make([]byte, retSize)
	status, err := fn(symbol, argBuf, ret)
	if err != nil {
		return nil, fmt.Errorf("xil/native: %s.%s: %w", scope, symbol, err)
	}
	if status == xil.BridgeNoFunc {
		return nil, fmt.Errorf("xil/native: %s.%s: %w", scope, symbol, ErrNoSuchSymbol)
	}
	return ret, nil
}

// alignedBuffer returns args unchanged when it already fits in one
// native page; larger frames are copied into a freshly mmap'd region
// sized up to the next page boundary. cleanup is nil on the fast path
// and otherwise unmaps the region once the caller is done with it.
func alignedBuffer(args []byte) (buf []byte, cleanup func(), err error) {
	pageSize := unix.Getpagesize()
	if len(args) <= pageSize {
		return args, nil, nil
	}
	size := ((len(args) + pageSize - 1) / pageSize) * pageSize
	region, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, fmt.Errorf("xil/native: mmap %d bytes: %w", size, err)
	}
	copy(region, args)
	return region[:len(args)], func() { _ = unix.Munmap(region) }, nil
}

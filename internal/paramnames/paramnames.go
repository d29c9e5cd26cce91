// Package paramnames recovers function parameter names from the DWARF debug
// information of the running executable. Results, failures included, are
// cached per function; the debug data itself is loaded at most once.
package paramnames

import (
	"debug/dwarf"
	"debug/elf"
	"debug/macho"
	"errors"
	"fmt"
	"os"
	"reflect"
	"runtime"
	"strings"
	"sync"
)

// ErrNoDebugInfo is returned when the executable carries no usable DWARF data.
var ErrNoDebugInfo = errors.New("paramnames: no DWARF debug information")

// ErrNotFound is returned when the function or some parameter name is absent.
var ErrNotFound = errors.New("paramnames: parameter names not found")

type result struct {
	names []string
	err   error
}

var (
	loadOnce sync.Once
	data     *dwarf.Data
	loadErr  error

	cache sync.Map // function name -> result
)

// Lookup returns the parameter names of fn, which must be a func value.
func Lookup(fn reflect.Value) ([]string, error) {
	if fn.Kind() != reflect.Func || fn.IsNil() {
		return nil, fmt.Errorf("paramnames: not a function: %s", fn.Kind())
	}
	f := runtime.FuncForPC(fn.Pointer())
	if f == nil {
		return nil, ErrNotFound
	}
	name := f.Name()
	if v, ok := cache.Load(name); ok {
		r := v.(result)
		return r.names, r.err
	}
	names, err := lookupByName(name, fn.Type().NumIn())
	v, _ := cache.LoadOrStore(name, result{names: names, err: err})
	r := v.(result)
	return r.names, r.err
}

// FuncName returns the runtime name of fn, used in error messages.
func FuncName(fn reflect.Value) string {
	if fn.Kind() != reflect.Func || fn.IsNil() {
		return "<nil>"
	}
	if f := runtime.FuncForPC(fn.Pointer()); f != nil {
		return f.Name()
	}
	return "<unknown>"
}

func load() (*dwarf.Data, error) {
	loadOnce.Do(func() {
		exe, err := os.Executable()
		if err != nil {
			loadErr = fmt.Errorf("%w: %v", ErrNoDebugInfo, err)
			return
		}
		data, loadErr = openDWARF(exe)
	})
	return data, loadErr
}

func openDWARF(path string) (*dwarf.Data, error) {
	if f, err := elf.Open(path); err == nil {
		defer f.Close()
		d, err := f.DWARF()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoDebugInfo, err)
		}
		return d, nil
	}
	if f, err := macho.Open(path); err == nil {
		defer f.Close()
		d, err := f.DWARF()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoDebugInfo, err)
		}
		return d, nil
	}
	return nil, fmt.Errorf("%w: unsupported executable format", ErrNoDebugInfo)
}

func lookupByName(name string, arity int) ([]string, error) {
	d, err := load()
	if err != nil {
		return nil, err
	}
	r := d.Reader()
	for {
		e, err := r.Next()
		if err != nil {
			return nil, fmt.Errorf("paramnames: reading DWARF: %w", err)
		}
		if e == nil {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		if e.Tag != dwarf.TagSubprogram {
			continue
		}
		if n, _ := e.Val(dwarf.AttrName).(string); n != name || !e.Children {
			if e.Children {
				r.SkipChildren()
			}
			continue
		}
		names, err := readParams(r)
		if err != nil {
			return nil, err
		}
		if len(names) != arity {
			return nil, fmt.Errorf("%w: %s has %d named parameters, want %d", ErrNotFound, name, len(names), arity)
		}
		return names, nil
	}
}

// readParams collects formal parameter names of the subprogram whose children
// r is positioned on. Go marks results with DW_AT_variable_parameter.
func readParams(r *dwarf.Reader) ([]string, error) {
	var names []string
	depth := 1
	for depth > 0 {
		e, err := r.Next()
		if err != nil {
			return nil, fmt.Errorf("paramnames: reading DWARF: %w", err)
		}
		if e == nil {
			break
		}
		if e.Tag == 0 {
			depth--
			continue
		}
		if depth == 1 && e.Tag == dwarf.TagFormalParameter {
			if isResult, _ := e.Val(dwarf.AttrVarParam).(bool); !isResult {
				n, _ := e.Val(dwarf.AttrName).(string)
				if n == "" || n == "_" || strings.HasPrefix(n, "~") {
					return nil, fmt.Errorf("%w: unnamed parameter", ErrNotFound)
				}
				names = append(names, n)
			}
		}
		if e.Children {
			depth++
		}
	}
	return names, nil
}

package types

import (
	"reflect"
	"strconv"
	"strings"
)

func isNamedGeneric(rt reflect.Type) bool {
	return rt.Name() != "" && strings.IndexByte(rt.Name(), '[') > 0
}

// OriginOf returns the generic origin identifier of rt.
func OriginOf(rt reflect.Type) string { return originOf(rt) }

func originOf(rt reflect.Type) string {
	if name := rt.Name(); name != "" {
		if i := strings.IndexByte(name, '['); i > 0 {
			name = name[:i]
		}
		if rt.PkgPath() == "" {
			return name
		}
		return rt.PkgPath() + "." + name
	}
	switch rt.Kind() {
	case reflect.Slice:
		return "[]"
	case reflect.Array:
		return "[" + strconv.Itoa(rt.Len()) + "]"
	case reflect.Map:
		return "map"
	case reflect.Pointer:
		return "*"
	case reflect.Chan:
		return "chan"
	}
	return rt.String()
}

// qualifiedString renders rt the way the runtime spells type arguments inside
// instantiated names: package paths in full.
func qualifiedString(rt reflect.Type) string {
	if name := rt.Name(); name != "" {
		if rt.PkgPath() == "" {
			return name
		}
		return rt.PkgPath() + "." + name
	}
	switch rt.Kind() {
	case reflect.Pointer:
		return "*" + qualifiedString(rt.Elem())
	case reflect.Slice:
		return "[]" + qualifiedString(rt.Elem())
	case reflect.Array:
		return "[" + strconv.Itoa(rt.Len()) + "]" + qualifiedString(rt.Elem())
	case reflect.Map:
		return "map[" + qualifiedString(rt.Key()) + "]" + qualifiedString(rt.Elem())
	}
	return rt.String()
}

func classArgs(rt reflect.Type) []Type {
	if rt == nil {
		return nil
	}
	if isNamedGeneric(rt) {
		return recoverArgs(rt)
	}
	if rt.Name() != "" {
		return nil
	}
	switch rt.Kind() {
	case reflect.Slice, reflect.Array, reflect.Pointer, reflect.Chan:
		return []Type{Of(rt.Elem())}
	case reflect.Map:
		return []Type{Of(rt.Key()), Of(rt.Elem())}
	}
	return nil
}

var predeclared = func() map[string]reflect.Type {
	m := map[string]reflect.Type{}
	for _, v := range []any{
		false, "", int(0), int8(0), int16(0), int32(0), int64(0),
		uint(0), uint8(0), uint16(0), uint32(0), uint64(0), uintptr(0),
		float32(0), float64(0), complex64(0), complex128(0),
	} {
		rt := reflect.TypeOf(v)
		m[rt.Name()] = rt
	}
	m["interface {}"] = emptyInterface
	m["error"] = reflect.TypeOf((*error)(nil)).Elem()
	return m
}()

// recoverArgs reads the type arguments of a named generic instantiation from
// its name and maps each one to a type reachable from rt. Arguments that name
// no reachable type degrade to Any.
func recoverArgs(rt reflect.Type) []Type {
	name := rt.Name()
	open := strings.IndexByte(name, '[')
	if open < 0 || !strings.HasSuffix(name, "]") {
		return nil
	}
	parts := splitTopLevel(name[open+1 : len(name)-1])
	known := map[string]reflect.Type{}
	collectReachable(rt, known, 0, map[reflect.Type]bool{})
	out := make([]Type, len(parts))
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if t, ok := predeclared[p]; ok {
			out[i] = Of(t)
		} else if t, ok := known[p]; ok {
			out[i] = Of(t)
		} else {
			out[i] = anyType
		}
	}
	return out
}

func splitTopLevel(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '[', '(', '{':
			depth++
		case ']', ')', '}':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

const reachDepth = 4

func collectReachable(rt reflect.Type, known map[string]reflect.Type, depth int, seen map[reflect.Type]bool) {
	if rt == nil || seen[rt] || depth > reachDepth {
		return
	}
	seen[rt] = true
	known[qualifiedString(rt)] = rt
	switch rt.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Array, reflect.Chan:
		collectReachable(rt.Elem(), known, depth, seen)
	case reflect.Map:
		collectReachable(rt.Key(), known, depth, seen)
		collectReachable(rt.Elem(), known, depth, seen)
	case reflect.Func:
		for i := 0; i < rt.NumIn(); i++ {
			collectReachable(rt.In(i), known, depth, seen)
		}
		for i := 0; i < rt.NumOut(); i++ {
			collectReachable(rt.Out(i), known, depth, seen)
		}
	case reflect.Struct:
		for i := 0; i < rt.NumField(); i++ {
			collectReachable(rt.Field(i).Type, known, depth+1, seen)
		}
	}
	if rt.Kind() != reflect.Interface && rt.Kind() != reflect.Pointer {
		pt := reflect.PointerTo(rt)
		for i := 0; i < pt.NumMethod(); i++ {
			collectReachable(pt.Method(i).Type, known, depth+1, seen)
		}
	}
}

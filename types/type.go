// Package types models fully expanded type descriptors and resolves declared
// generic shapes against the concrete types they are used in.
//
// A Type is interned: two Types are structurally equal exactly when they are
// ==, so Types can key caches directly. Types built from reflect.Type values
// are always concrete. Var, Wildcard, GenericArray and Parameterized shapes
// describe declared, possibly generic types (factory patterns, views) and are
// turned into concrete descriptors by Expand.
package types

import (
	"reflect"
	"strconv"
	"strings"
	"sync"
)

// Kind classifies a Type.
type Kind uint8

const (
	KindInvalid Kind = iota
	// KindAny is the universal type; it also stands in for anything that
	// could not be resolved.
	KindAny
	// KindClass is a concrete type backed by a reflect.Type.
	KindClass
	// KindParameterized is a generic origin applied to arguments.
	KindParameterized
	// KindVar is a type parameter of a generic origin.
	KindVar
	// KindWildcard is a bounded "some type".
	KindWildcard
	// KindGenericArray is a slice whose element is a declared shape.
	KindGenericArray
)

func (k Kind) String() string {
	switch k {
	case KindAny:
		return "any"
	case KindClass:
		return "class"
	case KindParameterized:
		return "parameterized"
	case KindVar:
		return "var"
	case KindWildcard:
		return "wildcard"
	case KindGenericArray:
		return "generic_array"
	default:
		return "invalid"
	}
}

// Type is an interned type descriptor. The zero Type is invalid.
type Type struct{ n *node }

type node struct {
	kind Kind
	rt   reflect.Type

	origin string
	name   string
	owner  string
	index  int
	bounds []Type
	lower  []Type
	elem   Type
	key    string

	argsOnce sync.Once
	args     []Type
}

var (
	emptyInterface = reflect.TypeOf((*any)(nil)).Elem()

	classes sync.Map // reflect.Type -> *node
	shapes  sync.Map // structural key -> *node

	// byOrigin indexes named generic instantiations seen so far so that
	// Parameterized shapes can be realized into concrete classes.
	originMu sync.RWMutex
	byOrigin = map[string][]*node{}

	anyType = Type{&node{kind: KindAny, rt: emptyInterface, origin: "any", key: "any"}}
)

// Any returns the universal type.
func Any() Type { return anyType }

// Of returns the descriptor of rt. The empty interface maps to Any.
func Of(rt reflect.Type) Type {
	if rt == nil || rt == emptyInterface {
		return anyType
	}
	if v, ok := classes.Load(rt); ok {
		return Type{v.(*node)}
	}
	n := &node{kind: KindClass, rt: rt, origin: originOf(rt)}
	n.key = "C:" + qualifiedString(rt)
	if v, loaded := classes.LoadOrStore(rt, n); loaded {
		return Type{v.(*node)}
	}
	if isNamedGeneric(rt) {
		originMu.Lock()
		byOrigin[n.origin] = append(byOrigin[n.origin], n)
		originMu.Unlock()
	}
	return Type{n}
}

// For returns the descriptor of T.
func For[T any]() Type { return Of(reflect.TypeOf((*T)(nil)).Elem()) }

func intern(n *node) Type {
	if v, loaded := shapes.LoadOrStore(n.key, n); loaded {
		return Type{v.(*node)}
	}
	return Type{n}
}

// Var declares type parameter number index of the generic origin owner.
// Bounds are consulted, first one first, when no binding is found.
func Var(owner string, index int, name string, bounds ...Type) Type {
	var b strings.Builder
	b.WriteString("V:")
	b.WriteString(owner)
	b.WriteByte('#')
	b.WriteString(strconv.Itoa(index))
	writeKeys(&b, bounds)
	n := &node{kind: KindVar, owner: owner, index: index, name: name, bounds: bounds, key: b.String()}
	n.argsOnce.Do(func() {})
	return intern(n)
}

// VarOf is Var with the owner taken from a sample instantiation of the
// generic type.
func VarOf(sample reflect.Type, index int, name string, bounds ...Type) Type {
	return Var(OriginOf(sample), index, name, bounds...)
}

// Wildcard declares "some type" bounded above by upper and below by lower.
func Wildcard(upper []Type, lower []Type) Type {
	var b strings.Builder
	b.WriteString("W:")
	writeKeys(&b, upper)
	b.WriteByte('/')
	writeKeys(&b, lower)
	n := &node{kind: KindWildcard, bounds: upper, lower: lower, key: b.String()}
	n.argsOnce.Do(func() {})
	return intern(n)
}

// GenericArray declares a slice of a declared component shape.
func GenericArray(component Type) Type {
	if component.Concrete() {
		return Slice(component)
	}
	n := &node{kind: KindGenericArray, elem: component, key: "A:" + component.Key()}
	n.argsOnce.Do(func() {})
	return intern(n)
}

// Parameterized applies a generic origin to arguments.
func Parameterized(origin string, args ...Type) Type {
	if t, ok := realize(origin, args); ok {
		return t
	}
	var b strings.Builder
	b.WriteString("P:")
	b.WriteString(origin)
	writeKeys(&b, args)
	n := &node{kind: KindParameterized, origin: origin, key: b.String()}
	n.argsOnce.Do(func() { n.args = append([]Type(nil), args...) })
	return intern(n)
}

// Slice returns the slice shape with element elem.
func Slice(elem Type) Type { return Parameterized("[]", elem) }

// Map returns the map shape with the given key and value.
func Map(key, value Type) Type { return Parameterized("map", key, value) }

// Pointer returns the pointer shape to elem.
func Pointer(elem Type) Type { return Parameterized("*", elem) }

func writeKeys(b *strings.Builder, ts []Type) {
	b.WriteByte('[')
	for i, t := range ts {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(t.Key())
	}
	b.WriteByte(']')
}

// realize turns an origin plus concrete arguments into a Class when Go can
// produce (builtin composites) or has already produced (named generics) it.
func realize(origin string, args []Type) (Type, bool) {
	for _, a := range args {
		if a.Kind() != KindClass && a.Kind() != KindAny {
			return Type{}, false
		}
	}
	switch origin {
	case "[]":
		if len(args) == 1 {
			return Of(reflect.SliceOf(args[0].RawType())), true
		}
	case "*":
		if len(args) == 1 {
			return Of(reflect.PointerTo(args[0].RawType())), true
		}
	case "map":
		if len(args) == 2 && args[0].RawType().Comparable() {
			return Of(reflect.MapOf(args[0].RawType(), args[1].RawType())), true
		}
	default:
		originMu.RLock()
		cands := append([]*node(nil), byOrigin[origin]...)
		originMu.RUnlock()
		for _, c := range cands {
			ca := Type{c}.Args()
			if len(ca) != len(args) {
				continue
			}
			same := true
			for i := range ca {
				if ca[i] != args[i] {
					same = false
					break
				}
			}
			if same {
				return Type{c}, true
			}
		}
	}
	return Type{}, false
}

// Valid reports whether t is a non-zero Type.
func (t Type) Valid() bool { return t.n != nil }

// Kind reports the descriptor kind.
func (t Type) Kind() Kind {
	if t.n == nil {
		return KindInvalid
	}
	return t.n.kind
}

// Key returns the structural identity key.
func (t Type) Key() string {
	if t.n == nil {
		return "invalid"
	}
	return t.n.key
}

// Concrete reports whether t contains no type variable or wildcard.
func (t Type) Concrete() bool {
	switch t.Kind() {
	case KindAny, KindClass:
		return true
	case KindParameterized:
		for _, a := range t.Args() {
			if !a.Concrete() {
				return false
			}
		}
		return true
	}
	return false
}

// RawType is the reflect.Type behind t; Any maps to the empty interface and
// declared shapes without a Go realization map to nil.
func (t Type) RawType() reflect.Type {
	if t.n == nil {
		return nil
	}
	return t.n.rt
}

// Origin is the generic origin identifier: the qualified name without type
// arguments for named types, or "[]", "[N]", "map", "*", "chan" for
// unnamed composites.
func (t Type) Origin() string {
	if t.n == nil {
		return ""
	}
	return t.n.origin
}

// Args returns the type arguments. For unnamed composites these are the
// element (and key) types; for named generic instantiations they are the
// recovered type arguments.
func (t Type) Args() []Type {
	if t.n == nil {
		return nil
	}
	t.n.argsOnce.Do(func() { t.n.args = classArgs(t.n.rt) })
	return t.n.args
}

// TypeArgumentAt returns argument i, or Any when there is none.
func (t Type) TypeArgumentAt(i int) Type {
	args := t.Args()
	if i < 0 || i >= len(args) {
		return anyType
	}
	return args[i]
}

// Name is the declared name of a Var.
func (t Type) Name() string {
	if t.n == nil {
		return ""
	}
	return t.n.name
}

// Bounds returns Var bounds or Wildcard upper bounds.
func (t Type) Bounds() []Type {
	if t.n == nil {
		return nil
	}
	return t.n.bounds
}

// Elem is the component of a GenericArray.
func (t Type) Elem() Type {
	if t.n == nil {
		return Type{}
	}
	return t.n.elem
}

func (t Type) String() string {
	switch t.Kind() {
	case KindAny:
		return "any"
	case KindClass:
		return t.n.rt.String()
	case KindParameterized:
		parts := make([]string, 0, len(t.n.args))
		for _, a := range t.Args() {
			parts = append(parts, a.String())
		}
		switch t.n.origin {
		case "[]":
			return "[]" + strings.Join(parts, "")
		case "*":
			return "*" + strings.Join(parts, "")
		case "map":
			if len(parts) == 2 {
				return "map[" + parts[0] + "]" + parts[1]
			}
		}
		return t.n.origin + "[" + strings.Join(parts, ",") + "]"
	case KindVar:
		return t.n.name
	case KindWildcard:
		if len(t.n.bounds) > 0 {
			return "some " + t.n.bounds[0].String()
		}
		return "?"
	case KindGenericArray:
		return "[]" + t.n.elem.String()
	}
	return "invalid"
}

// Qualified renders t with full package paths, the form used as a type
// identifier on the wire.
func (t Type) Qualified() string {
	if t.Kind() == KindClass {
		return qualifiedString(t.n.rt)
	}
	return t.String()
}

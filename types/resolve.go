package types

import (
	"reflect"
	"sync"
)

type memoKey struct{ declared, context *node }

var memo sync.Map // memoKey -> Type

// Expand resolves declared relative to the concrete context in which it is
// used. Type variables are bound by walking the embedding graph of context
// toward the generic origin that declares them. Wildcards become their first
// upper bound (lower bounds are ignored) or Any; variables nobody binds become
// their first bound or Any; generic arrays become slices of the expanded
// component. Expand never fails: the result is always concrete, if
// occasionally less precise than the declaration.
func Expand(declared, context Type) Type {
	if !declared.Valid() {
		return anyType
	}
	if declared.Kind() == KindAny || declared.Kind() == KindClass {
		return declared
	}
	k := memoKey{declared.n, context.n}
	if v, ok := memo.Load(k); ok {
		return v.(Type)
	}
	r := &expander{context: context, active: map[*node]bool{}}
	out := r.expand(declared)
	v, _ := memo.LoadOrStore(k, out)
	return v.(Type)
}

type expander struct {
	context Type
	// active guards against bounds that mention their own variable.
	active map[*node]bool
}

func (e *expander) expand(t Type) Type {
	switch t.Kind() {
	case KindAny, KindClass:
		return t
	case KindVar:
		if e.active[t.n] {
			return anyType
		}
		if b, ok := Bind(t, e.context); ok {
			return b
		}
		if len(t.n.bounds) > 0 {
			e.active[t.n] = true
			defer delete(e.active, t.n)
			return e.expand(t.n.bounds[0])
		}
		return anyType
	case KindWildcard:
		if len(t.n.bounds) > 0 {
			return e.expand(t.n.bounds[0])
		}
		return anyType
	case KindGenericArray:
		return Slice(e.expand(t.n.elem))
	case KindParameterized:
		args := t.Args()
		out := make([]Type, len(args))
		for i, a := range args {
			out[i] = e.expand(a)
		}
		return Parameterized(t.n.origin, out...)
	}
	return anyType
}

// Bind returns the concrete argument bound to variable v in context, if the
// embedding graph of context reaches v's generic origin.
func Bind(v Type, context Type) (Type, bool) {
	if v.Kind() != KindVar || !context.Valid() {
		return Type{}, false
	}
	owner, index := v.n.owner, v.n.index
	seen := map[*node]bool{}
	queue := []Type{context}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if !cur.Valid() || seen[cur.n] {
			continue
		}
		seen[cur.n] = true
		if cur.Origin() == owner && (cur.Kind() == KindClass || cur.Kind() == KindParameterized) {
			args := cur.Args()
			if index < len(args) && args[index].Concrete() {
				return args[index], true
			}
			return Type{}, false
		}
		queue = append(queue, supertypes(cur)...)
	}
	return Type{}, false
}

// supertypes lists the types a struct embeds, the Go analogue of the
// inheritance edges from a type toward its ancestors.
func supertypes(t Type) []Type {
	rt := t.RawType()
	if rt == nil {
		return nil
	}
	for rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	if rt.Kind() != reflect.Struct {
		return nil
	}
	var out []Type
	for i := 0; i < rt.NumField(); i++ {
		if f := rt.Field(i); f.Anonymous {
			out = append(out, Of(f.Type))
		}
	}
	return out
}

// FieldType returns the expanded type of the (possibly promoted) field at
// index within context.
func FieldType(context Type, index []int) Type {
	rt := context.RawType()
	if rt == nil {
		return anyType
	}
	for _, i := range index {
		for rt.Kind() == reflect.Pointer {
			rt = rt.Elem()
		}
		if rt.Kind() != reflect.Struct || i >= rt.NumField() {
			return anyType
		}
		rt = rt.Field(i).Type
	}
	return Expand(Of(rt), context)
}

// DeclaredBy returns the struct that declares the field at index within
// context, i.e. the type reached by all but the last index step.
func DeclaredBy(context Type, index []int) reflect.Type {
	rt := context.RawType()
	if rt == nil || len(index) == 0 {
		return rt
	}
	rt = FieldType(context, index[:len(index)-1]).RawType()
	for rt != nil && rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	return rt
}

// Match compares a against b. Strict matching requires identical raw types
// and arguments. Non-strict matching lets a's raw type be a subtype of b's
// (assignable to it, or implementing it when b is an interface), lets Any on
// either side satisfy anything, and treats variables and wildcards in b as
// patterns satisfied by anything within their bounds.
func Match(a, b Type, strict bool) bool {
	if strict {
		return matchStrict(a, b)
	}
	return matchLoose(a, b)
}

func matchStrict(a, b Type) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	switch a.Kind() {
	case KindAny:
		return true
	case KindClass:
		return a.n.rt == b.n.rt
	case KindParameterized:
		return a.n.origin == b.n.origin && argsMatch(a.Args(), b.Args(), true)
	case KindVar:
		return a.n.owner == b.n.owner && a.n.index == b.n.index
	case KindWildcard:
		return argsMatch(a.n.bounds, b.n.bounds, true) && argsMatch(a.n.lower, b.n.lower, true)
	case KindGenericArray:
		return matchStrict(a.n.elem, b.n.elem)
	}
	return false
}

func matchLoose(a, b Type) bool {
	if !a.Valid() || !b.Valid() {
		return false
	}
	switch {
	case a.Kind() == KindAny || b.Kind() == KindAny:
		return true
	case b.Kind() == KindVar || b.Kind() == KindWildcard:
		if len(b.n.bounds) == 0 {
			return true
		}
		return matchLoose(a, b.n.bounds[0])
	case a.Kind() == KindVar || a.Kind() == KindWildcard:
		if len(a.n.bounds) == 0 {
			return false
		}
		return matchLoose(a.n.bounds[0], b)
	case a.Kind() == KindGenericArray || b.Kind() == KindGenericArray:
		return matchLoose(sliceElem(a), sliceElem(b))
	}
	if a.Kind() == KindClass && b.Kind() == KindClass {
		ar, br := a.n.rt, b.n.rt
		if ar == br || ar.AssignableTo(br) {
			return true
		}
		if br.Kind() == reflect.Interface && reflect.PointerTo(ar).Implements(br) {
			return true
		}
	}
	if a.Origin() != b.Origin() {
		return false
	}
	bargs := b.Args()
	if len(bargs) == 0 {
		return true
	}
	return argsMatch(a.Args(), bargs, false)
}

func sliceElem(t Type) Type {
	if t.Kind() == KindGenericArray {
		return t.n.elem
	}
	if t.Origin() == "[]" {
		return t.TypeArgumentAt(0)
	}
	return Type{}
}

func argsMatch(a, b []Type, strict bool) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Match(a[i], b[i], strict) {
			return false
		}
	}
	return true
}

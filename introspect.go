package jsonbind

import (
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"sort"
	"unsafe"

	"go.uber.org/zap"

	"github.com/reoring/jsonbind/internal/paramnames"
	"github.com/reoring/jsonbind/types"
)

// creatorSpec is a creator registered on the Builder.
type creatorSpec struct {
	fn       reflect.Value
	out      reflect.Type
	names    []string
	primary  bool
	priority int
	order    int
}

// introspect runs the resolver chains over rt and assembles its descriptor.
// Property converters are resolved through res, so self-referential types
// resolve to forward handles.
func (res *resolution) introspect(rt reflect.Type) (*BeanDescriptor, error) {
	e := res.e
	ctxType := types.Of(rt)

	var accs, muts []candidate
	for _, c := range fieldCandidates(rt, ctxType) {
		m := c.member
		isAcc, isMut := e.chains.accessor(m), e.chains.mutator(m)
		if !isAcc && !isMut {
			continue
		}
		c.Name = e.chains.name(m)
		// Each role gets its own metadata; merging edits it in place.
		if isAcc {
			a := c.candidate
			a.Meta = memberMeta(m, e.directives)
			accs = append(accs, a)
		}
		if isMut {
			w := c.candidate
			w.Meta = memberMeta(m, e.directives)
			muts = append(muts, w)
		}
	}
	for _, node := range embeddingTree(rt) {
		if !reachablePath(rt, node.path) {
			continue
		}
		for _, meth := range declaredMethods(node.t) {
			m := Member{Kind: MemberMethod, Owner: rt, Declaring: node.t, GoName: meth.Name, Func: meth.Type}
			isAcc, isMut := e.chains.accessor(m), e.chains.mutator(m)
			if !isAcc && !isMut {
				continue
			}
			// A member included for both roles takes the role its shape allows.
			if getter, setter := getterShape(meth.Type), setterShape(meth.Type); isAcc && isMut && (getter || setter) {
				isAcc, isMut = getter, setter
			}
			base := candidate{Property: Property{
				Name:      e.chains.name(m),
				Declaring: node.t,
				Concrete:  rt,
				Priority:  PriorityMethod,
				Member:    meth.Name,
				embed:     node.path,
			}}
			if isAcc {
				if !getterShape(meth.Type) {
					return nil, &Error{Code: CodeInvalidDefinition, Type: rt.String(), Member: meth.Name + meth.Type.String(), Message: "accessor must take no arguments and return a value and an optional error"}
				}
				c := base
				c.Meta = memberMeta(m, e.directives)
				c.Type = types.Expand(types.Of(meth.Type.Out(0)), ctxType)
				c.get = methodGetter(rt, boundMethod{node.path, meth.Index}, meth)
				accs = append(accs, c)
			}
			if isMut {
				if !setterShape(meth.Type) {
					return nil, &Error{Code: CodeInvalidDefinition, Type: rt.String(), Member: meth.Name + meth.Type.String(), Message: "mutator must take one argument and return nothing or an error"}
				}
				c := base
				c.Meta = memberMeta(m, e.directives)
				c.Type = types.Expand(types.Of(meth.Type.In(1)), ctxType)
				c.set = methodSetter(rt, boundMethod{node.path, meth.Index}, meth)
				muts = append(muts, c)
			}
		}
	}

	accMap, err := mergeCandidates(rt, "accessor", accs)
	if err != nil {
		return nil, err
	}
	mutMap, err := mergeCandidates(rt, "mutator", muts)
	if err != nil {
		return nil, err
	}
	creator, err := res.selectCreator(rt)
	if err != nil {
		return nil, err
	}
	return res.assemble(rt, accMap, mutMap, creator)
}

// assemble binds converters and creator properties into the final descriptor.
func (res *resolution) assemble(rt reflect.Type, accMap, mutMap map[string]candidate, creator *Creator) (*BeanDescriptor, error) {
	d := &BeanDescriptor{
		Type:     rt,
		Mutators: map[string]*Mutator{},
		ordinary: map[string]*Mutator{},
		Creator:  creator,
		strict:   res.e.cfg.Strict,
		engine:   res.e,
	}
	for _, name := range sortedNames(accMap) {
		c := accMap[name]
		conv, err := res.resolve(request{t: c.Type, ctx: c.contextKey()})
		if err != nil {
			return nil, propertyError(err, rt, name)
		}
		d.Accessors = append(d.Accessors, &Accessor{Property: c.Property, get: c.get, conv: conv})
	}
	for _, name := range sortedNames(mutMap) {
		c := mutMap[name]
		conv, err := res.resolve(request{t: c.Type, ctx: c.contextKey()})
		if err != nil {
			return nil, propertyError(err, rt, name)
		}
		m := &Mutator{Property: c.Property, set: c.set, conv: conv, creatorIndex: -1}
		d.Mutators[name] = m
		d.ordinary[name] = m
	}
	if creator != nil {
		for i := range creator.Params {
			p := &creator.Params[i]
			if ord, ok := d.ordinary[p.Name]; ok {
				p.mergeMeta(ord.Meta)
			}
			conv, err := res.resolve(request{t: p.Type, ctx: p.contextKey()})
			if err != nil {
				return nil, propertyError(err, rt, p.Name)
			}
			d.Mutators[p.Name] = &Mutator{Property: *p, conv: conv, creatorIndex: i}
		}
	}
	res.e.log.Debug("bean descriptor built",
		zap.String("type", rt.String()),
		zap.Strings("accessors", sortedNames(accMap)),
		zap.Strings("mutators", sortedNames(d.Mutators)),
		zap.String("creator", creatorSignature(creator)),
	)
	return d, nil
}

func propertyError(err error, owner reflect.Type, name string) error {
	if e, ok := AsError(err); ok && e.Property == "" {
		cp := *e
		cp.Property = name
		if cp.Type == "" {
			cp.Type = owner.String()
		}
		return &cp
	}
	return err
}

func creatorSignature(c *Creator) string {
	if c == nil {
		return "<none>"
	}
	return c.Signature
}

type fieldCandidate struct {
	candidate
	member Member
}

// fieldCandidates lists the exported fields reachable from rt, embedded
// structs flattened. Unlike Go's own promotion, same-named fields of unrelated
// embedded structs are all reported so the merge can reject them.
func fieldCandidates(rt reflect.Type, ctxType types.Type) []fieldCandidate {
	var out []fieldCandidate
	for _, node := range embeddingTree(rt) {
		if node.t.Kind() != reflect.Struct {
			continue
		}
		for i := 0; i < node.t.NumField(); i++ {
			sf := node.t.Field(i)
			if sf.Anonymous && isStructType(sf.Type) {
				continue
			}
			index := append(append([]int(nil), node.path...), i)
			if !sf.IsExported() || !reachable(rt, index) {
				continue
			}
			out = append(out, newFieldCandidate(rt, ctxType, sf, index))
		}
	}
	return out
}

func newFieldCandidate(rt reflect.Type, ctxType types.Type, sf reflect.StructField, index []int) fieldCandidate {
	declaring := types.DeclaredBy(ctxType, index)
	ft := sf.Type
	return fieldCandidate{
		member: Member{Kind: MemberField, Owner: rt, Declaring: declaring, GoName: sf.Name, Tag: sf.Tag, Type: ft},
		candidate: candidate{
			Property: Property{
				Type:      types.FieldType(ctxType, index),
				Declaring: declaring,
				Concrete:  rt,
				Priority:  PriorityField,
				Member:    sf.Name,
				embed:     index[:len(index)-1],
			},
			get: func(bean reflect.Value) (reflect.Value, error) {
				if v, ok := fieldByIndex(bean, index, false); ok {
					return v, nil
				}
				return reflect.Zero(ft), nil
			},
			set: func(bean, v reflect.Value) error {
				f, ok := fieldByIndex(bean, index, true)
				if !ok {
					return fmt.Errorf("field %s is not settable", sf.Name)
				}
				fv, ok := fit(v, ft)
				if !ok {
					return fmt.Errorf("cannot assign %s to %s", v.Type(), ft)
				}
				f.Set(fv)
				return nil
			},
		},
	}
}

// embeddedType is one node of the embedding tree of a struct: the struct
// itself at the empty path, then every embedded type with the field path
// leading to it.
type embeddedType struct {
	t    reflect.Type
	path []int
}

// embeddingTree lists rt and every type it embeds, transitively and
// depth first. A type is not entered again while it is already on the path.
func embeddingTree(rt reflect.Type) []embeddedType {
	out := []embeddedType{{t: rt}}
	onPath := map[reflect.Type]bool{rt: true}
	var walk func(t reflect.Type, path []int)
	walk = func(t reflect.Type, path []int) {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.Anonymous {
				continue
			}
			ft := f.Type
			if ft.Kind() == reflect.Pointer {
				ft = ft.Elem()
			}
			if onPath[ft] {
				continue
			}
			p := append(append([]int(nil), path...), i)
			out = append(out, embeddedType{t: ft, path: p})
			if ft.Kind() == reflect.Struct {
				onPath[ft] = true
				walk(ft, p)
				delete(onPath, ft)
			}
		}
	}
	if rt.Kind() == reflect.Struct {
		walk(rt, nil)
	}
	return out
}

func isStructType(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct
}

// reachable rejects fields promoted through unexported embedded pointers,
// which cannot be allocated through reflection.
func reachable(rt reflect.Type, index []int) bool {
	return reachablePath(rt, index[:len(index)-1])
}

func reachablePath(rt reflect.Type, path []int) bool {
	t := rt
	for _, i := range path {
		f := t.Field(i)
		if f.Type.Kind() == reflect.Pointer {
			if !f.IsExported() {
				return false
			}
			t = f.Type.Elem()
		} else {
			t = f.Type
		}
	}
	return true
}

// fieldByIndex walks index from bean. Nil embedded pointers are allocated
// when alloc is set; otherwise the walk stops with ok == false.
func fieldByIndex(bean reflect.Value, index []int, alloc bool) (reflect.Value, bool) {
	v := bean
	for i, x := range index {
		if i > 0 && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				if !alloc || !v.CanSet() {
					return reflect.Value{}, false
				}
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(x)
	}
	return v, true
}

// declaresMethod tells t's own methods from the wrappers the compiler
// generates for methods promoted into t.
func declaresMethod(t reflect.Type, name string) bool {
	if !embedsMethod(t, name) {
		return true
	}
	for _, mt := range []reflect.Type{t, reflect.PointerTo(t)} {
		m, ok := mt.MethodByName(name)
		if !ok || !m.Func.IsValid() {
			continue
		}
		f := runtime.FuncForPC(m.Func.Pointer())
		if f == nil {
			continue
		}
		if file, _ := f.FileLine(f.Entry()); file != "<autogenerated>" {
			return true
		}
	}
	return false
}

// embedsMethod reports whether a type embedded directly in t has a method
// called name.
func embedsMethod(t reflect.Type, name string) bool {
	if t.Kind() != reflect.Struct {
		return false
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.Anonymous {
			continue
		}
		ft := f.Type
		if ft.Kind() != reflect.Pointer && ft.Kind() != reflect.Interface {
			ft = reflect.PointerTo(ft)
		}
		if _, ok := ft.MethodByName(name); ok {
			return true
		}
	}
	return false
}

// declaredMethods lists the exported methods t declares itself, receiver
// first. Methods of an interface take the interface as their receiver.
func declaredMethods(t reflect.Type) []reflect.Method {
	var out []reflect.Method
	if t.Kind() == reflect.Interface {
		for i := 0; i < t.NumMethod(); i++ {
			m := t.Method(i)
			if !m.IsExported() {
				continue
			}
			in := []reflect.Type{t}
			for j := 0; j < m.Type.NumIn(); j++ {
				in = append(in, m.Type.In(j))
			}
			outs := make([]reflect.Type, m.Type.NumOut())
			for j := range outs {
				outs[j] = m.Type.Out(j)
			}
			m.Type = reflect.FuncOf(in, outs, m.Type.IsVariadic())
			out = append(out, m)
		}
		return out
	}
	pt := reflect.PointerTo(t)
	for i := 0; i < pt.NumMethod(); i++ {
		if m := pt.Method(i); declaresMethod(t, m.Name) {
			out = append(out, m)
		}
	}
	return out
}

// boundMethod is a method of the embedded type found at path, by its index
// in that type's method set.
type boundMethod struct {
	path  []int
	index int
}

// call invokes the method on the value embedded in bean. It reports false
// when a nil embedded pointer stands in the way and alloc is unset, or when
// the embedded interface is nil. Getters then read the zero value.
func (bm boundMethod) call(bean reflect.Value, alloc bool, args []reflect.Value) ([]reflect.Value, bool) {
	if len(bm.path) == 0 {
		return bean.Addr().Method(bm.index).Call(args), true
	}
	f, ok := fieldByIndex(bean, bm.path, alloc)
	if !ok {
		return nil, false
	}
	// Methods of values reached through unexported embedded fields cannot be
	// called through reflection; rebuild the value from its address.
	f = reflect.NewAt(f.Type(), unsafe.Pointer(f.UnsafeAddr())).Elem()
	switch f.Kind() {
	case reflect.Interface:
		if f.IsNil() {
			return nil, false
		}
		return f.Method(bm.index).Call(args), true
	case reflect.Pointer:
		if f.IsNil() {
			if !alloc {
				return nil, false
			}
			f.Set(reflect.New(f.Type().Elem()))
		}
		return f.Method(bm.index).Call(args), true
	}
	return f.Addr().Method(bm.index).Call(args), true
}

func methodGetter(rt reflect.Type, bm boundMethod, meth reflect.Method) func(reflect.Value) (reflect.Value, error) {
	return func(bean reflect.Value) (out reflect.Value, err error) {
		defer func() {
			if p := recover(); p != nil {
				err = &Error{Code: CodeAccessorFailed, Type: rt.String(), Member: meth.Name, Message: fmt.Sprint("panic: ", p)}
			}
		}()
		res, ok := bm.call(bean, false, nil)
		if !ok {
			return reflect.Zero(meth.Type.Out(0)), nil
		}
		if len(res) == 2 && !res[1].IsNil() {
			return reflect.Value{}, &Error{Code: CodeAccessorFailed, Type: rt.String(), Member: meth.Name, Cause: res[1].Interface().(error)}
		}
		return res[0], nil
	}
}

func methodSetter(rt reflect.Type, bm boundMethod, meth reflect.Method) func(bean, v reflect.Value) error {
	in := meth.Type.In(1)
	return func(bean, v reflect.Value) (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = &Error{Code: CodeMutatorFailed, Type: rt.String(), Member: meth.Name, Message: fmt.Sprint("panic: ", p)}
			}
		}()
		arg, ok := fit(v, in)
		if !ok {
			return &Error{Code: CodeMutatorFailed, Type: rt.String(), Member: meth.Name, Message: "cannot pass " + v.Type().String()}
		}
		res, ok := bm.call(bean, true, []reflect.Value{arg})
		if !ok {
			return &Error{Code: CodeMutatorFailed, Type: rt.String(), Member: meth.Name, Message: "embedded interface is nil"}
		}
		if len(res) == 1 && !res[0].IsNil() {
			return &Error{Code: CodeMutatorFailed, Type: rt.String(), Member: meth.Name, Cause: res[0].Interface().(error)}
		}
		return nil
	}
}

// selectCreator runs the creator candidates of rt through the chains and
// picks one: the single primary, else the fewest parameters.
func (res *resolution) selectCreator(rt reflect.Type) (*Creator, error) {
	e := res.e
	specs := append([]creatorSpec(nil), e.creators[rt]...)
	if !e.noZeroCreator[rt] {
		specs = append(specs, creatorSpec{out: rt, priority: -1, order: len(specs)})
	}
	var accepted []*Creator
	for _, s := range specs {
		c, err := res.creatorFrom(rt, s)
		if err != nil {
			return nil, err
		}
		if c != nil {
			accepted = append(accepted, c)
		}
	}
	if len(accepted) == 0 {
		return nil, nil
	}
	var primaries []*Creator
	for _, c := range accepted {
		if c.Primary {
			primaries = append(primaries, c)
		}
	}
	switch len(primaries) {
	case 0:
	case 1:
		return primaries[0], nil
	default:
		return nil, &Error{Code: CodeAmbiguousCreator, Type: rt.String(), Member: primaries[0].Signature + " vs " + primaries[1].Signature, Message: "more than one primary creator"}
	}
	sort.SliceStable(accepted, func(i, j int) bool {
		a, b := accepted[i], accepted[j]
		if len(a.Params) != len(b.Params) {
			return len(a.Params) < len(b.Params)
		}
		return a.Priority > b.Priority
	})
	return accepted[0], nil
}

func (res *resolution) creatorFrom(rt reflect.Type, s creatorSpec) (*Creator, error) {
	e := res.e
	if !s.fn.IsValid() {
		m := Member{Kind: MemberCreator, Owner: rt, Declaring: rt, GoName: zeroCreatorName}
		if !e.chains.creator(m) {
			return nil, nil
		}
		return &Creator{Signature: "new(" + rt.String() + ")", Priority: s.priority, out: rt}, nil
	}
	ft := s.fn.Type()
	sig := paramnames.FuncName(s.fn) + " " + ft.String()
	m := Member{Kind: MemberCreator, Owner: rt, Declaring: rt, GoName: paramnames.FuncName(s.fn), Func: ft}
	if !e.chains.creator(m) {
		return nil, nil
	}
	names := s.names
	if len(names) == 0 && ft.NumIn() > 0 {
		looked, err := paramnames.Lookup(s.fn)
		if err != nil {
			if e.cfg.FailOnMissingParamNames {
				return nil, &Error{Code: CodeMissingParamNames, Type: rt.String(), Member: sig, Message: "parameter names unavailable", Cause: err}
			}
			e.log.Warn("creator dropped: parameter names unavailable",
				zap.String("type", rt.String()), zap.String("creator", sig), zap.Error(err))
			return nil, nil
		}
		names = looked
	}
	if len(names) != ft.NumIn() {
		return nil, &Error{Code: CodeInvalidDefinition, Type: rt.String(), Member: sig, Message: fmt.Sprintf("%d parameter names for %d parameters", len(names), ft.NumIn())}
	}
	c := &Creator{Signature: sig, Priority: s.priority, Primary: s.primary, fn: s.fn, out: rt}
	ctxType := types.Of(rt)
	seen := map[string]bool{}
	for i, raw := range names {
		pm := Member{Kind: MemberParameter, Owner: rt, Declaring: rt, GoName: raw, Type: ft.In(i), Index: i, Func: ft}
		name := e.chains.name(pm)
		if seen[name] {
			return nil, &Error{Code: CodeInvalidDefinition, Type: rt.String(), Member: sig, Property: name, Message: "duplicate creator parameter name"}
		}
		seen[name] = true
		c.Params = append(c.Params, Property{
			Name:      name,
			Type:      types.Expand(types.Of(ft.In(i)), ctxType),
			Declaring: rt,
			Concrete:  rt,
			Meta:      memberMeta(pm, e.directives),
			Member:    raw,
		})
	}
	return c, nil
}

// create invokes the creator and returns an addressable instance.
func (c *Creator) create(args []reflect.Value) (out reflect.Value, err error) {
	if !c.fn.IsValid() {
		return reflect.New(c.out).Elem(), nil
	}
	defer func() {
		if p := recover(); p != nil {
			err = &Error{Code: CodeConstructionFailed, Type: c.out.String(), Member: c.Signature, Message: fmt.Sprint("panic: ", p)}
		}
	}()
	res := c.fn.Call(args)
	if len(res) == 2 && !res[1].IsNil() {
		return reflect.Value{}, &Error{Code: CodeConstructionFailed, Type: c.out.String(), Member: c.Signature, Cause: res[1].Interface().(error)}
	}
	v := res[0]
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return reflect.Value{}, &Error{Code: CodeConstructionFailed, Type: c.out.String(), Member: c.Signature, Message: "creator returned nil"}
		}
		return v.Elem(), nil
	}
	p := reflect.New(c.out).Elem()
	p.Set(v)
	return p, nil
}

var errNotCreator = errors.New("creator must be a non-variadic func returning T, *T, (T, error) or (*T, error) for a struct T")

// creatorOutput validates fn as a creator and returns the struct it builds.
func creatorOutput(fn reflect.Value) (reflect.Type, error) {
	if fn.Kind() != reflect.Func || fn.IsNil() {
		return nil, errNotCreator
	}
	ft := fn.Type()
	if ft.IsVariadic() || ft.NumOut() == 0 || ft.NumOut() > 2 || (ft.NumOut() == 2 && ft.Out(1) != errorType) {
		return nil, errNotCreator
	}
	out := ft.Out(0)
	if out.Kind() == reflect.Pointer {
		out = out.Elem()
	}
	if out.Kind() != reflect.Struct {
		return nil, errNotCreator
	}
	return out, nil
}

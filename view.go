package jsonbind

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/reoring/jsonbind/types"
)

// View is an alternate set of accessors and mutators for one struct type.
// Substituting a view leaves the type's own descriptor untouched.
type View struct {
	name    string
	t       reflect.Type
	getters []viewMember
	setters []viewMember
	err     error
}

type viewMember struct {
	name string
	fn   reflect.Value
}

// NewView starts an empty view of T named name.
func NewView[T any](name string) *View {
	return &View{name: name, t: reflect.TypeOf((*T)(nil)).Elem()}
}

// Name returns the view name properties select it by.
func (v *View) Name() string { return v.name }

func (v *View) clone() *View {
	cp := *v
	cp.getters = slices.Clone(v.getters)
	cp.setters = slices.Clone(v.setters)
	return &cp
}

// Get adds a property read by fn, which is func(T) V or func(*T) V,
// optionally returning an error as well.
func (v *View) Get(name string, fn any) *View {
	f := reflect.ValueOf(fn)
	ft := f.Type()
	if f.Kind() != reflect.Func || !v.receiver(ft) || !getterShape(ft) {
		v.fail(fmt.Errorf("view %s: getter %q must be func(%s) V or func(*%s) V", v.name, name, v.t, v.t))
		return v
	}
	v.getters = append(v.getters, viewMember{name: name, fn: f})
	return v
}

// Set adds a property written by fn, which is func(*T, V), optionally
// returning an error.
func (v *View) Set(name string, fn any) *View {
	f := reflect.ValueOf(fn)
	ft := f.Type()
	if f.Kind() != reflect.Func || ft.NumIn() == 0 || ft.In(0) != reflect.PointerTo(v.t) || !setterShape(ft) {
		v.fail(fmt.Errorf("view %s: setter %q must be func(*%s, V)", v.name, name, v.t))
		return v
	}
	v.setters = append(v.setters, viewMember{name: name, fn: f})
	return v
}

func (v *View) receiver(ft reflect.Type) bool {
	return ft.NumIn() == 1 && (ft.In(0) == v.t || ft.In(0) == reflect.PointerTo(v.t))
}

func (v *View) fail(err error) {
	if v.err == nil {
		v.err = err
	}
}

func callGetter(fn reflect.Value, bean reflect.Value, owner reflect.Type, name string) (out reflect.Value, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &Error{Code: CodeAccessorFailed, Type: owner.String(), Property: name, Message: fmt.Sprint("panic: ", p)}
		}
	}()
	arg := bean
	if fn.Type().In(0).Kind() == reflect.Pointer {
		arg = bean.Addr()
	}
	res := fn.Call([]reflect.Value{arg})
	if len(res) == 2 && !res[1].IsNil() {
		return reflect.Value{}, &Error{Code: CodeAccessorFailed, Type: owner.String(), Property: name, Cause: res[1].Interface().(error)}
	}
	return res[0], nil
}

func callSetter(fn reflect.Value, bean, v reflect.Value, owner reflect.Type, name string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &Error{Code: CodeMutatorFailed, Type: owner.String(), Property: name, Message: fmt.Sprint("panic: ", p)}
		}
	}()
	arg, ok := fit(v, fn.Type().In(1))
	if !ok {
		return &Error{Code: CodeMutatorFailed, Type: owner.String(), Property: name, Message: "cannot pass " + v.Type().String()}
	}
	res := fn.Call([]reflect.Value{bean.Addr(), arg})
	if len(res) == 1 && !res[0].IsNil() {
		return &Error{Code: CodeMutatorFailed, Type: owner.String(), Property: name, Cause: res[0].Interface().(error)}
	}
	return nil
}

// viewStage substitutes the view selected by the property context, or the
// type's default view.
func viewStage(req request, res *resolution, next func() (Converter, error)) (Converter, error) {
	rt := req.t.RawType()
	if rt == nil || rt.Kind() != reflect.Struct {
		return next()
	}
	var v *View
	if name := req.ctx.view; name != "" {
		named, ok := res.e.views[name]
		if !ok {
			return nil, &Error{Code: CodeInvalidDefinition, Type: rt.String(), Member: name, Message: "no view registered under that name"}
		}
		if named.t == rt {
			v = named
		}
	}
	if v == nil {
		v = res.e.defaultViews[rt]
	}
	if v == nil {
		return next()
	}
	d, err := res.viewDescriptor(v)
	if err != nil {
		return nil, err
	}
	return &beanConverter{desc: d}, nil
}

func (res *resolution) viewDescriptor(v *View) (*BeanDescriptor, error) {
	rt := v.t
	ctxType := types.Of(rt)
	accs := map[string]candidate{}
	for _, g := range v.getters {
		accs[g.name] = candidate{
			Property: Property{Name: g.name, Type: types.Expand(types.Of(g.fn.Type().Out(0)), ctxType), Declaring: rt, Concrete: rt, Priority: PriorityMethod, Member: v.name + "." + g.name},
			get: func(bean reflect.Value) (reflect.Value, error) {
				return callGetter(g.fn, bean, rt, g.name)
			},
		}
	}
	muts := map[string]candidate{}
	for _, s := range v.setters {
		muts[s.name] = candidate{
			Property: Property{Name: s.name, Type: types.Expand(types.Of(s.fn.Type().In(1)), ctxType), Declaring: rt, Concrete: rt, Priority: PriorityMethod, Member: v.name + "." + s.name},
			set: func(bean, val reflect.Value) error {
				return callSetter(s.fn, bean, val, rt, s.name)
			},
		}
	}
	creator, err := res.selectCreator(rt)
	if err != nil {
		return nil, err
	}
	return res.assemble(rt, accs, muts, creator)
}

package jsonbind

import (
	"fmt"
	"reflect"

	"github.com/reoring/jsonbind/codec"
	"github.com/reoring/jsonbind/stream"
	"github.com/reoring/jsonbind/types"
)

// Converter reads and writes values of exactly one type. Converters are shared
// by every caller of an Engine and must be safe for concurrent use.
//
// Deserialize is entered with the reader positioned on the value to read and
// must consume exactly that value. The returned value has the converter's
// type, or a type assignable to it.
type Converter interface {
	Serialize(v reflect.Value, w stream.ValueWriter, ctx *Context) error
	Deserialize(r stream.ValueReader, ctx *Context) (reflect.Value, error)
}

// NullAware is implemented by converters that handle null themselves. The
// null adapter leaves them unwrapped.
type NullAware interface {
	NullAware() bool
}

// Provider resolves converters from inside a factory. Lookups made through a
// Provider take part in the cycle guard of the resolution that invoked the
// factory.
type Provider interface {
	Converter(t types.Type) (Converter, error)
}

// Factory produces a converter for t, or returns (nil, nil) when it does not
// handle t.
type Factory interface {
	Create(t types.Type, p Provider) (Converter, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(t types.Type, p Provider) (Converter, error)

func (f FactoryFunc) Create(t types.Type, p Provider) (Converter, error) { return f(t, p) }

// Typed adapts a pair of typed functions into a Converter for T.
func Typed[T any](
	serialize func(v T, w stream.ValueWriter, ctx *Context) error,
	deserialize func(r stream.ValueReader, ctx *Context) (T, error),
) Converter {
	return &typedConverter[T]{ser: serialize, de: deserialize}
}

type typedConverter[T any] struct {
	ser func(T, stream.ValueWriter, *Context) error
	de  func(stream.ValueReader, *Context) (T, error)
}

func (c *typedConverter[T]) Serialize(v reflect.Value, w stream.ValueWriter, ctx *Context) error {
	t, ok := v.Interface().(T)
	if !ok {
		return &Error{Code: CodeInvalidType, Type: types.For[T]().String(), Path: w.Path(), Message: "unexpected value of type " + v.Type().String()}
	}
	return c.ser(t, w, ctx)
}

func (c *typedConverter[T]) Deserialize(r stream.ValueReader, ctx *Context) (reflect.Value, error) {
	t, err := c.de(r, ctx)
	if err != nil {
		return reflect.Value{}, err
	}
	out := reflect.New(reflect.TypeOf((*T)(nil)).Elem()).Elem()
	out.Set(reflect.ValueOf(&t).Elem())
	return out, nil
}

// StringConverter adapts a string codec into a Converter writing T as a JSON
// string. Decode failures are reported as invalid_value with the raw string.
func StringConverter[T any](c codec.StringCodec[T]) Converter {
	return &stringCodecConverter[T]{codec: c}
}

type stringCodecConverter[T any] struct {
	codec codec.StringCodec[T]
}

func (c *stringCodecConverter[T]) Serialize(v reflect.Value, w stream.ValueWriter, _ *Context) error {
	s, err := c.codec.Encode(v.Interface().(T))
	if err != nil {
		return &Error{Code: CodeInvalidValue, Type: types.For[T]().String(), Path: w.Path(), Message: "encode failed", Cause: err}
	}
	return w.WriteString(s)
}

func (c *stringCodecConverter[T]) Deserialize(r stream.ValueReader, _ *Context) (reflect.Value, error) {
	path := r.Path()
	s, err := r.ValueAsString()
	if err != nil {
		return reflect.Value{}, wrapReadError(err, types.For[T]().String())
	}
	t, err := c.codec.Decode(s)
	if err != nil {
		return reflect.Value{}, &Error{Code: CodeInvalidValue, Type: types.For[T]().String(), Path: path, Value: s, Message: "malformed value", Cause: err}
	}
	return reflect.ValueOf(&t).Elem(), nil
}

// visit identifies a reference currently on the serialization path.
type visit struct {
	ptr uintptr
	typ reflect.Type
	len int
}

// Context carries per-call state through one Serialize or Deserialize run.
// It is never shared between calls.
type Context struct {
	engine   *Engine
	depth    int
	maxDepth int
	visiting map[visit]struct{}
}

func (e *Engine) newContext() *Context {
	limit := e.cfg.MaxDepth
	if limit <= 0 {
		limit = defaultWriteDepth
	}
	return &Context{engine: e, maxDepth: limit}
}

const defaultWriteDepth = 10000

// Engine returns the engine running the call.
func (c *Context) Engine() *Engine { return c.engine }

// enter records v on the serialization path. Revisiting a pointer, map or
// slice already on the path is a cycle; nesting beyond the depth limit is
// max_depth. The returned func must be called when v is done.
func (c *Context) enter(v reflect.Value, path string) (func(), error) {
	c.depth++
	if c.depth > c.maxDepth {
		c.depth--
		return nil, &Error{Code: CodeMaxDepth, Type: v.Type().String(), Path: path, Message: fmt.Sprintf("nesting exceeds %d", c.maxDepth)}
	}
	var key visit
	tracked := false
	switch v.Kind() {
	case reflect.Pointer, reflect.Map:
		if !v.IsNil() {
			key, tracked = visit{ptr: v.Pointer(), typ: v.Type()}, true
		}
	case reflect.Slice:
		if !v.IsNil() && v.Len() > 0 {
			key, tracked = visit{ptr: v.Pointer(), typ: v.Type(), len: v.Len()}, true
		}
	}
	if !tracked {
		return c.leaveDepth, nil
	}
	if c.visiting == nil {
		c.visiting = map[visit]struct{}{}
	}
	if _, seen := c.visiting[key]; seen {
		c.depth--
		return nil, &Error{Code: CodeCycle, Type: v.Type().String(), Path: path, Message: "value refers back to itself"}
	}
	c.visiting[key] = struct{}{}
	return func() {
		delete(c.visiting, key)
		c.depth--
	}, nil
}

func (c *Context) leaveDepth() { c.depth-- }

// fit adapts v to the static type t: invalid values become the zero value and
// assignable or convertible values are re-typed.
func fit(v reflect.Value, t reflect.Type) (reflect.Value, bool) {
	if !v.IsValid() {
		return reflect.Zero(t), true
	}
	if v.Type() == t {
		return v, true
	}
	if v.Type().AssignableTo(t) {
		out := reflect.New(t).Elem()
		out.Set(v)
		return out, true
	}
	if v.Kind() != reflect.Pointer && v.CanAddr() && v.Addr().Type().AssignableTo(t) {
		out := reflect.New(t).Elem()
		out.Set(v.Addr())
		return out, true
	}
	if v.Kind() != reflect.Pointer && reflect.PointerTo(v.Type()).AssignableTo(t) {
		p := reflect.New(v.Type())
		p.Elem().Set(v)
		out := reflect.New(t).Elem()
		out.Set(p)
		return out, true
	}
	if v.Type().ConvertibleTo(t) && v.Kind() == t.Kind() {
		return v.Convert(t), true
	}
	return reflect.Value{}, false
}

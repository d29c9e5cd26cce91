package jsonbind

import (
	"reflect"
	"strings"

	"go.uber.org/zap"

	"github.com/reoring/jsonbind/stream"
)

// BeanDescriptor is the compiled read/write plan of a struct type. It is
// built once per type and never mutated afterwards.
type BeanDescriptor struct {
	Type reflect.Type
	// Accessors are ordered by name; that order is the serialization order.
	Accessors []*Accessor
	// Mutators maps names to ordinary mutators and creator properties.
	Mutators map[string]*Mutator
	// Creator is nil for serialize-only types.
	Creator *Creator

	ordinary map[string]*Mutator
	strict   bool
	engine   *Engine
}

// Constructible reports whether the descriptor can create instances.
func (d *BeanDescriptor) Constructible() bool { return d.Creator != nil }

// addressable returns v itself when it can be addressed, or an addressable copy.
func addressable(v reflect.Value) reflect.Value {
	if v.CanAddr() {
		return v
	}
	p := reflect.New(v.Type()).Elem()
	p.Set(v)
	return p
}

// Serialize writes bean as an object, accessors in name order.
func (d *BeanDescriptor) Serialize(bean reflect.Value, w stream.ValueWriter, ctx *Context) error {
	bean = addressable(bean)
	leave, err := ctx.enter(bean, w.Path())
	if err != nil {
		return err
	}
	defer leave()
	if err := w.BeginObject(); err != nil {
		return wrapWriteError(err, d.Type.String(), w.Path())
	}
	for _, a := range d.Accessors {
		v, err := a.get(bean)
		if err != nil {
			return propertyError(err, d.Type, a.Name)
		}
		if err := w.WriteName(a.Name); err != nil {
			return wrapWriteError(err, d.Type.String(), w.Path())
		}
		if err := a.conv.Serialize(v, w, ctx); err != nil {
			return propertyError(err, d.Type, a.Name)
		}
	}
	return wrapWriteError(w.EndObject(), d.Type.String(), w.Path())
}

type bufferedValue struct {
	name  string
	m     *Mutator
	value reflect.Value
}

// Deserialize reads an object into a new instance. With a no-argument
// creator values are applied as they stream in; otherwise they are buffered
// until the creator can be invoked.
func (d *BeanDescriptor) Deserialize(r stream.ValueReader, ctx *Context) (reflect.Value, error) {
	if d.Creator == nil {
		return reflect.Value{}, &Error{Code: CodeNotConstructible, Type: d.Type.String(), Path: r.Path(), Message: "no creator available"}
	}
	if len(d.Creator.Params) == 0 {
		inst, err := d.Creator.create(nil)
		if err != nil {
			return reflect.Value{}, err
		}
		return inst, d.readInto(r, ctx, inst, d.Mutators)
	}
	return d.createFromBuffer(r, ctx)
}

// DeserializeInto reads an object onto an existing addressable instance using
// ordinary mutators only.
func (d *BeanDescriptor) DeserializeInto(r stream.ValueReader, ctx *Context, target reflect.Value) error {
	if !target.CanAddr() || target.Type() != d.Type {
		return &Error{Code: CodeInvalidType, Type: d.Type.String(), Message: "target must be an addressable " + d.Type.String()}
	}
	return d.readInto(r, ctx, target, d.ordinary)
}

func (d *BeanDescriptor) readInto(r stream.ValueReader, ctx *Context, inst reflect.Value, muts map[string]*Mutator) error {
	if err := r.BeginObject(); err != nil {
		return wrapReadError(err, d.Type.String())
	}
	for {
		more, err := r.HasNext()
		if err != nil {
			return wrapReadError(err, d.Type.String())
		}
		if !more {
			break
		}
		if _, err := r.Next(); err != nil {
			return wrapReadError(err, d.Type.String())
		}
		name := r.Name()
		m, ok := muts[name]
		if !ok {
			if err := d.unknown(r, name); err != nil {
				return err
			}
			continue
		}
		v, err := m.conv.Deserialize(r, ctx)
		if err != nil {
			return propertyError(err, d.Type, name)
		}
		if err := d.apply(m, inst, v, r.Path()); err != nil {
			return err
		}
	}
	return wrapReadError(r.EndObject(), d.Type.String())
}

func (d *BeanDescriptor) unknown(r stream.ValueReader, name string) error {
	if d.strict {
		return &Error{Code: CodeUnknownProperty, Type: d.Type.String(), Property: name, Path: r.Path(), Message: "no mutator named " + name}
	}
	return wrapReadError(r.SkipValue(), d.Type.String())
}

func (d *BeanDescriptor) apply(m *Mutator, inst, v reflect.Value, path string) error {
	if m.set == nil {
		return nil
	}
	if err := m.set(inst, v); err != nil {
		if e, ok := AsError(err); ok {
			cp := *e
			cp.Property, cp.Path = m.Name, path
			return &cp
		}
		return &Error{Code: CodeMutatorFailed, Type: d.Type.String(), Property: m.Name, Member: m.Member, Path: path, Cause: err}
	}
	return nil
}

// createFromBuffer makes a single pass over the object, then invokes the
// creator with the buffered arguments and applies the rest in encounter order.
func (d *BeanDescriptor) createFromBuffer(r stream.ValueReader, ctx *Context) (reflect.Value, error) {
	path := r.Path()
	if err := r.BeginObject(); err != nil {
		return reflect.Value{}, wrapReadError(err, d.Type.String())
	}
	var buf []bufferedValue
	for {
		more, err := r.HasNext()
		if err != nil {
			return reflect.Value{}, wrapReadError(err, d.Type.String())
		}
		if !more {
			break
		}
		if _, err := r.Next(); err != nil {
			return reflect.Value{}, wrapReadError(err, d.Type.String())
		}
		name := r.Name()
		m, ok := d.Mutators[name]
		if !ok {
			if err := d.unknown(r, name); err != nil {
				return reflect.Value{}, err
			}
			continue
		}
		v, err := m.conv.Deserialize(r, ctx)
		if err != nil {
			return reflect.Value{}, propertyError(err, d.Type, name)
		}
		buf = append(buf, bufferedValue{name: name, m: m, value: v})
	}
	if err := r.EndObject(); err != nil {
		return reflect.Value{}, wrapReadError(err, d.Type.String())
	}

	params := d.Creator.Params
	ft := d.Creator.fn.Type()
	args := make([]reflect.Value, len(params))
	var rest []bufferedValue
	for _, b := range buf {
		if i := b.m.creatorIndex; i >= 0 {
			a, ok := fit(b.value, ft.In(i))
			if !ok {
				return reflect.Value{}, &Error{Code: CodeInvalidType, Type: d.Type.String(), Property: b.name, Member: d.Creator.Signature, Path: path, Message: "argument does not fit parameter type " + ft.In(i).String()}
			}
			args[i] = a
			continue
		}
		rest = append(rest, b)
	}
	var unfilled []string
	for i := range args {
		if args[i].IsValid() {
			continue
		}
		if d.engine.cfg.FailOnMissingCreatorArgs {
			return reflect.Value{}, &Error{Code: CodeMissingCreatorArg, Type: d.Type.String(), Property: params[i].Name, Member: d.Creator.Signature, Path: path, Message: "no value for creator argument"}
		}
		args[i] = reflect.Zero(ft.In(i))
		unfilled = append(unfilled, params[i].Name)
	}
	if len(unfilled) > 0 {
		d.engine.log.Debug("creator arguments defaulted to zero values",
			zap.String("type", d.Type.String()), zap.String("creator", d.Creator.Signature), zap.Strings("arguments", unfilled))
	}
	inst, err := d.Creator.create(args)
	if err != nil {
		if e, ok := AsError(err); ok && e.Path == "" {
			e.Path = path
		}
		return reflect.Value{}, err
	}
	for _, b := range rest {
		if err := d.apply(b.m, inst, b.value, path+"/"+pointerEscaper.Replace(b.name)); err != nil {
			return reflect.Value{}, err
		}
	}
	return inst, nil
}

var pointerEscaper = strings.NewReplacer("~", "~0", "/", "~1")

// beanConverter adapts a descriptor to Converter.
type beanConverter struct {
	desc *BeanDescriptor
}

func (c *beanConverter) Serialize(v reflect.Value, w stream.ValueWriter, ctx *Context) error {
	return c.desc.Serialize(v, w, ctx)
}

func (c *beanConverter) Deserialize(r stream.ValueReader, ctx *Context) (reflect.Value, error) {
	return c.desc.Deserialize(r, ctx)
}

// Descriptor exposes the plan behind a bean converter.
func (c *beanConverter) Descriptor() *BeanDescriptor { return c.desc }

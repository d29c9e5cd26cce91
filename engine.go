package jsonbind

import (
	"bytes"
	"io"
	"reflect"
	"sync"

	"github.com/tidwall/jsonc"
	"go.uber.org/zap"

	"github.com/reoring/jsonbind/internal/engine"
	"github.com/reoring/jsonbind/stream"
	"github.com/reoring/jsonbind/types"
)

// Engine resolves, caches and runs converters. It is immutable once built and
// safe for concurrent use.
type Engine struct {
	cfg    settings
	log    *zap.Logger
	driver stream.Driver
	stages []stage

	registry      *registry
	named         map[string]Converter
	views         map[string]*View
	defaultViews  map[reflect.Type]*View
	aliases       *aliasTable
	noMetadata    map[reflect.Type]bool
	nullDefaults  map[reflect.Type]reflect.Value
	creators      map[reflect.Type][]creatorSpec
	noZeroCreator map[reflect.Type]bool
	chains        chains
	directives    directiveResolver

	converters  sync.Map // request -> Converter
	descriptors sync.Map // reflect.Type -> descriptorResult
}

// ProvideConverter returns the converter for t, resolving and caching it on
// first use. Declared shapes are expanded first.
func (e *Engine) ProvideConverter(t types.Type) (Converter, error) {
	if !t.Valid() {
		t = types.Any()
	}
	if !t.Concrete() {
		t = types.Expand(t, types.Type{})
	}
	req := request{t: t}
	if c, ok := e.converters.Load(req); ok {
		return c.(Converter), nil
	}
	res := e.newResolution()
	c, err := res.resolve(req)
	if err != nil {
		return nil, err
	}
	res.publish()
	if v, ok := e.converters.Load(req); ok {
		return v.(Converter), nil
	}
	return c, nil
}

// ConverterFor is ProvideConverter for a reflect.Type.
func (e *Engine) ConverterFor(rt reflect.Type) (Converter, error) {
	return e.ProvideConverter(types.Of(rt))
}

// BuildBeanDescriptor returns the descriptor of the struct type t, for callers
// that read into instances they already hold.
func (e *Engine) BuildBeanDescriptor(t types.Type) (*BeanDescriptor, error) {
	rt := t.RawType()
	if rt == nil || rt.Kind() != reflect.Struct {
		return nil, &Error{Code: CodeInvalidType, Type: t.String(), Message: "bean descriptors describe struct types"}
	}
	if v, ok := e.descriptors.Load(rt); ok {
		r := v.(descriptorResult)
		return r.desc, r.err
	}
	res := e.newResolution()
	req := request{t: types.Of(rt)}
	f := &forwardConverter{t: req.t}
	res.inProgress[req] = f
	d, err := res.descriptor(rt)
	delete(res.inProgress, req)
	if err != nil {
		return nil, err
	}
	c, err := res.resolve(req)
	if err != nil {
		return nil, err
	}
	f.target = c
	res.publish()
	if v, ok := e.descriptors.Load(rt); ok {
		return v.(descriptorResult).desc, nil
	}
	return d, nil
}

// NewReader opens a value reader over in with the engine's driver and read
// policies (max depth, duplicate keys, input size).
func (e *Engine) NewReader(in io.Reader) *stream.Reader {
	src := e.driver.NewTokenSource(in)
	src = engine.WrapWithEnforcement(src, engine.EnforceOptions{
		OnDuplicate: toEngineDup(e.cfg.Duplicates),
		MaxDepth:    e.cfg.MaxDepth,
		MaxBytes:    e.cfg.MaxBytes,
		IssueSink: func(si engine.SimpleIssue) {
			e.log.Warn("input issue", zap.String("code", si.Code), zap.String("path", si.Path), zap.String("message", si.Message))
		},
	})
	return stream.NewReader(src)
}

// NewWriter opens a value writer over out with the engine's output options.
func (e *Engine) NewWriter(out io.Writer) *stream.Writer {
	return stream.NewWriter(out, stream.WriterOptions{Indent: e.cfg.Indent, SkipNull: e.cfg.SkipNull})
}

func toEngineDup(s Severity) engine.DuplicateStrictness {
	switch s {
	case Fail:
		return engine.DupError
	case Warn:
		return engine.DupWarn
	default:
		return engine.DupIgnore
	}
}

// Marshal encodes v using the converter of its dynamic type.
func (e *Engine) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.Serialize(v, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Serialize writes v to out.
func (e *Engine) Serialize(v any, out io.Writer) error {
	if v == nil {
		return e.write(reflect.ValueOf(&v).Elem(), types.Any(), out)
	}
	rv := reflect.ValueOf(v)
	return e.write(rv, types.Of(rv.Type()), out)
}

func (e *Engine) write(v reflect.Value, t types.Type, out io.Writer) error {
	conv, err := e.ProvideConverter(t)
	if err != nil {
		return err
	}
	w := e.NewWriter(out)
	if err := conv.Serialize(v, w, e.newContext()); err != nil {
		return err
	}
	return wrapWriteError(w.Flush(), t.String(), "")
}

// Unmarshal decodes data into the value ptr points to.
func (e *Engine) Unmarshal(data []byte, ptr any) error {
	return e.Deserialize(bytes.NewReader(data), ptr)
}

// UnmarshalJSONC is Unmarshal for JSON with comments and trailing commas.
func (e *Engine) UnmarshalJSONC(data []byte, ptr any) error {
	return e.Unmarshal(jsonc.ToJSON(data), ptr)
}

// Deserialize reads one value from in into the value ptr points to. Data
// after the value is an error.
func (e *Engine) Deserialize(in io.Reader, ptr any) error {
	target, err := targetOf(ptr)
	if err != nil {
		return err
	}
	return e.read(in, target, types.Of(target.Type()))
}

func targetOf(ptr any) (reflect.Value, error) {
	rv := reflect.ValueOf(ptr)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return reflect.Value{}, &Error{Code: CodeInvalidType, Message: "target must be a non-nil pointer"}
	}
	return rv.Elem(), nil
}

func (e *Engine) read(in io.Reader, target reflect.Value, t types.Type) error {
	conv, err := e.ProvideConverter(t)
	if err != nil {
		return err
	}
	r := e.NewReader(in)
	if _, err := r.Next(); err != nil {
		return wrapReadError(err, t.String())
	}
	v, err := conv.Deserialize(r, e.newContext())
	if err != nil {
		return wrapReadError(err, t.String())
	}
	if err := r.End(); err != nil {
		return wrapReadError(err, t.String())
	}
	fv, ok := fit(v, target.Type())
	if !ok {
		return &Error{Code: CodeInvalidType, Type: t.String(), Message: "converter produced " + v.Type().String()}
	}
	target.Set(fv)
	return nil
}

// DeserializeInto reads an object onto the existing struct ptr points to,
// using ordinary mutators only. Fields absent from the input keep their
// values. Non-struct targets are read as Deserialize does.
func (e *Engine) DeserializeInto(in io.Reader, ptr any) error {
	target, err := targetOf(ptr)
	if err != nil {
		return err
	}
	if target.Kind() != reflect.Struct {
		return e.read(in, target, types.Of(target.Type()))
	}
	d, err := e.BuildBeanDescriptor(types.Of(target.Type()))
	if err != nil {
		return err
	}
	r := e.NewReader(in)
	if _, err := r.Next(); err != nil {
		return wrapReadError(err, target.Type().String())
	}
	if r.ValueType() == stream.TypeNull {
		return wrapReadError(r.End(), target.Type().String())
	}
	if e.cfg.TypeMetadata {
		if _, _, err := r.PeekMetadata(e.cfg.MetadataKey); err != nil {
			return wrapReadError(err, target.Type().String())
		}
	}
	if err := d.DeserializeInto(r, e.newContext(), target); err != nil {
		return err
	}
	return wrapReadError(r.End(), target.Type().String())
}

// Decode reads data as a T.
func Decode[T any](e *Engine, data []byte) (T, error) {
	var out T
	err := e.read(bytes.NewReader(data), reflect.ValueOf(&out).Elem(), types.For[T]())
	return out, err
}

// Encode writes v using the converter of the static type T, so interface
// types keep their runtime dispatch and discriminators.
func Encode[T any](e *Engine, v T) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.write(reflect.ValueOf(&v).Elem(), types.For[T](), &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

package jsonbind

import (
	"reflect"
	"strconv"

	"go.uber.org/zap"

	"github.com/reoring/jsonbind/stream"
	"github.com/reoring/jsonbind/types"
)

// nullStage handles null centrally unless the inner converter is null-aware.
// A registered null default always takes over.
func nullStage(req request, res *resolution, next func() (Converter, error)) (Converter, error) {
	c, err := next()
	if err != nil {
		return nil, err
	}
	rt := req.t.RawType()
	if rt == nil {
		return c, nil
	}
	def, hasDef := res.e.nullDefaults[rt]
	if na, ok := c.(NullAware); ok && na.NullAware() && !hasDef {
		return c, nil
	}
	return &nullConverter{inner: c, t: rt, def: def}, nil
}

type nullConverter struct {
	inner Converter
	t     reflect.Type
	def   reflect.Value
}

func isNil(v reflect.Value) bool {
	if !v.IsValid() {
		return true
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}

func (c *nullConverter) Serialize(v reflect.Value, w stream.ValueWriter, ctx *Context) error {
	if isNil(v) {
		return wrapWriteError(w.WriteNull(), c.t.String(), w.Path())
	}
	return c.inner.Serialize(v, w, ctx)
}

func (c *nullConverter) Deserialize(r stream.ValueReader, ctx *Context) (reflect.Value, error) {
	if r.ValueType() != stream.TypeNull {
		return c.inner.Deserialize(r, ctx)
	}
	if err := r.SkipValue(); err != nil {
		return reflect.Value{}, wrapReadError(err, c.t.String())
	}
	out := reflect.New(c.t).Elem()
	if c.def.IsValid() {
		out.Set(c.def)
	}
	return out, nil
}

// runtimeStage dispatches interface-typed values to the converter of their
// dynamic type on write.
func runtimeStage(req request, res *resolution, next func() (Converter, error)) (Converter, error) {
	c, err := next()
	if err != nil {
		return nil, err
	}
	rt := req.t.RawType()
	if rt == nil || rt.Kind() != reflect.Interface {
		return c, nil
	}
	return &runtimeConverter{static: c, t: rt}, nil
}

type runtimeConverter struct {
	static Converter
	t      reflect.Type
}

func (c *runtimeConverter) Serialize(v reflect.Value, w stream.ValueWriter, ctx *Context) error {
	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			return c.static.Serialize(v, w, ctx)
		}
		v = v.Elem()
	}
	if v.Type() == c.t {
		return c.static.Serialize(v, w, ctx)
	}
	dyn, err := ctx.engine.ProvideConverter(types.Of(v.Type()))
	if err != nil {
		return err
	}
	return dyn.Serialize(v, w, ctx)
}

func (c *runtimeConverter) Deserialize(r stream.ValueReader, ctx *Context) (reflect.Value, error) {
	return c.static.Deserialize(r, ctx)
}

// metadataStage writes and reads the type discriminator of struct payloads
// and lets objects naming another type delegate to it.
func metadataStage(req request, res *resolution, next func() (Converter, error)) (Converter, error) {
	c, err := next()
	if err != nil {
		return nil, err
	}
	rt := req.t.RawType()
	if rt == nil || (rt.Kind() != reflect.Struct && rt.Kind() != reflect.Interface) || res.e.noMetadata[rt] {
		return c, nil
	}
	mc := &metadataConverter{inner: c, t: rt, key: res.e.cfg.MetadataKey, aliases: res.e.aliases, log: res.e.log}
	if rt.Kind() == reflect.Struct {
		mc.alias = res.e.aliases.aliasOf(rt)
	}
	return mc, nil
}

type metadataConverter struct {
	inner   Converter
	t       reflect.Type
	key     string
	alias   string
	aliases *aliasTable
	log     *zap.Logger
}

func (c *metadataConverter) Serialize(v reflect.Value, w stream.ValueWriter, ctx *Context) error {
	if c.alias != "" {
		w.SetMetadata(c.key, c.alias)
	}
	return c.inner.Serialize(v, w, ctx)
}

func (c *metadataConverter) Deserialize(r stream.ValueReader, ctx *Context) (reflect.Value, error) {
	if r.ValueType() != stream.TypeObject {
		return c.inner.Deserialize(r, ctx)
	}
	path := r.Path()
	name, ok, err := r.PeekMetadata(c.key)
	if err != nil {
		return reflect.Value{}, wrapReadError(err, c.t.String())
	}
	if !ok {
		return c.inner.Deserialize(r, ctx)
	}
	target, ok := c.aliases.lookup(name)
	if !ok {
		return reflect.Value{}, &Error{Code: CodeUnknownDiscriminator, Type: c.t.String(), Path: path, Value: name, Message: "discriminator names no registered type"}
	}
	if target == c.t {
		return c.inner.Deserialize(r, ctx)
	}
	if !compatible(target, c.t) {
		return reflect.Value{}, &Error{Code: CodeInvalidType, Type: c.t.String(), Path: path, Value: name, Message: target.String() + " cannot stand in for " + c.t.String()}
	}
	c.log.Debug("type metadata delegation", zap.String("static", c.t.String()), zap.String("target", target.String()), zap.String("path", path))
	conv, err := ctx.engine.ProvideConverter(types.Of(target))
	if err != nil {
		return reflect.Value{}, err
	}
	v, err := conv.Deserialize(r, ctx)
	if err != nil {
		return reflect.Value{}, err
	}
	out, ok := fit(v, c.t)
	if !ok {
		return reflect.Value{}, &Error{Code: CodeInvalidType, Type: c.t.String(), Path: path, Value: name, Message: "delegate produced " + v.Type().String()}
	}
	return out, nil
}

func compatible(target, static reflect.Type) bool {
	if static.Kind() != reflect.Interface {
		return false
	}
	return target.Implements(static) || reflect.PointerTo(target).Implements(static)
}

// contextualStage applies property-level overrides: a named converter, or
// quoting of scalar values.
func contextualStage(req request, res *resolution, next func() (Converter, error)) (Converter, error) {
	if name := req.ctx.converter; name != "" {
		c, ok := res.e.named[name]
		if !ok {
			return nil, &Error{Code: CodeNoConverter, Type: req.t.String(), Member: name, Message: "no converter registered under that name"}
		}
		return c, nil
	}
	if rt := req.t.RawType(); req.ctx.quoted && rt != nil && quotable(rt.Kind()) {
		return &quotedConverter{t: rt}, nil
	}
	return next()
}

func quotable(k reflect.Kind) bool {
	switch k {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// quotedConverter writes booleans and numbers as JSON strings.
type quotedConverter struct {
	t reflect.Type
}

func (*quotedConverter) NullAware() bool { return true }

func (c *quotedConverter) Serialize(v reflect.Value, w stream.ValueWriter, _ *Context) error {
	var s string
	switch v.Kind() {
	case reflect.Bool:
		s = strconv.FormatBool(v.Bool())
	case reflect.Float32:
		s = strconv.FormatFloat(v.Float(), 'g', -1, 32)
	case reflect.Float64:
		s = strconv.FormatFloat(v.Float(), 'g', -1, 64)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		s = strconv.FormatUint(v.Uint(), 10)
	default:
		s = strconv.FormatInt(v.Int(), 10)
	}
	return wrapWriteError(w.WriteString(s), c.t.String(), w.Path())
}

func (c *quotedConverter) Deserialize(r stream.ValueReader, _ *Context) (reflect.Value, error) {
	path := r.Path()
	if r.ValueType() != stream.TypeString {
		return reflect.Value{}, &Error{Code: CodeInvalidType, Type: c.t.String(), Path: path, Message: "expected quoted value, got " + r.ValueType().String()}
	}
	s, err := r.ValueAsString()
	if err != nil {
		return reflect.Value{}, wrapReadError(err, c.t.String())
	}
	out := reflect.New(c.t).Elem()
	if err := setScalarText(out, s); err != nil {
		return reflect.Value{}, scalarTextError(err, c.t, path, s)
	}
	return out, nil
}

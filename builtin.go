package jsonbind

import (
	"encoding"
	"encoding/json"
	"errors"
	"reflect"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/reoring/jsonbind/codec"
	"github.com/reoring/jsonbind/stream"
)

var (
	timeType          = reflect.TypeOf(time.Time{})
	durationType      = reflect.TypeOf(time.Duration(0))
	uuidType          = reflect.TypeOf(uuid.UUID{})
	numberType        = reflect.TypeOf(json.Number(""))
	textMarshaler     = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
	textUnmarshaler   = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
	errNotTextMarshal = errors.New("value does not implement encoding.TextMarshaler")
)

// builtin picks the converter for types the registry does not cover.
func (res *resolution) builtin(req request) (Converter, error) {
	t := req.t
	rt := t.RawType()
	if rt == nil {
		return nil, &Error{Code: CodeNoConverter, Type: t.String(), Message: "type has no Go realization"}
	}
	switch rt {
	case timeType:
		return StringConverter(codec.TimeRFC3339()), nil
	case durationType:
		return durationConverter{}, nil
	case uuidType:
		return StringConverter(codec.UUID()), nil
	case numberType:
		return numberConverter{}, nil
	}
	if rt == emptyInterface {
		return &anyConverter{mode: res.e.cfg.NumberMode}, nil
	}
	if isText(rt) {
		return &textConverter{t: rt}, nil
	}
	switch rt.Kind() {
	case reflect.Bool:
		return &boolConverter{t: rt}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return &intConverter{t: rt}, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return &uintConverter{t: rt}, nil
	case reflect.Float32, reflect.Float64:
		return &floatConverter{t: rt}, nil
	case reflect.String:
		return &stringConverter{t: rt}, nil
	case reflect.Slice:
		if rt.Elem().Kind() == reflect.Uint8 && !isText(rt.Elem()) {
			return &bytesConverter{t: rt}, nil
		}
		return res.sliceConverter(req, rt)
	case reflect.Array:
		return res.arrayConverter(req, rt)
	case reflect.Map:
		return res.mapConverter(req, rt)
	case reflect.Pointer:
		return res.pointerConverter(req, rt)
	case reflect.Interface:
		return &interfaceConverter{t: rt}, nil
	case reflect.Struct:
		d, err := res.descriptor(rt)
		if err != nil {
			return nil, err
		}
		return &beanConverter{desc: d}, nil
	}
	return nil, &Error{Code: CodeNoConverter, Type: rt.String(), Message: "no converter for kind " + rt.Kind().String()}
}

var emptyInterface = reflect.TypeOf((*any)(nil)).Elem()

// isText reports whether rt round-trips through encoding.TextMarshaler.
func isText(rt reflect.Type) bool {
	if rt.Kind() == reflect.Interface {
		return false
	}
	return (rt.Implements(textMarshaler) || reflect.PointerTo(rt).Implements(textMarshaler)) &&
		reflect.PointerTo(rt).Implements(textUnmarshaler)
}

func scalarTextError(err error, t reflect.Type, path, raw string) error {
	code := CodeInvalidValue
	var ne *strconv.NumError
	if errors.As(err, &ne) && errors.Is(ne.Err, strconv.ErrRange) || errors.Is(err, errOverflow) {
		code = CodeOverflow
	}
	return &Error{Code: code, Type: t.String(), Path: path, Value: raw, Message: "cannot parse value", Cause: err}
}

var errOverflow = errors.New("value out of range")

// setScalarText parses s into the bool, integer or float held by out.
func setScalarText(out reflect.Value, s string) error {
	switch out.Kind() {
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}
		out.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return err
		}
		if out.OverflowInt(n) {
			return errOverflow
		}
		out.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return err
		}
		if out.OverflowUint(n) {
			return errOverflow
		}
		out.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(s, out.Type().Bits())
		if err != nil {
			return err
		}
		out.SetFloat(f)
	case reflect.String:
		out.SetString(s)
	default:
		return errors.New("unsupported kind " + out.Kind().String())
	}
	return nil
}

// Primitive converters are null-aware: null is not a bool, number or string.

type boolConverter struct{ t reflect.Type }

func (*boolConverter) NullAware() bool { return true }

func (c *boolConverter) Serialize(v reflect.Value, w stream.ValueWriter, _ *Context) error {
	return wrapWriteError(w.WriteBool(v.Bool()), c.t.String(), w.Path())
}

func (c *boolConverter) Deserialize(r stream.ValueReader, _ *Context) (reflect.Value, error) {
	b, err := r.ValueAsBool()
	if err != nil {
		return reflect.Value{}, wrapReadError(err, c.t.String())
	}
	out := reflect.New(c.t).Elem()
	out.SetBool(b)
	return out, nil
}

type intConverter struct{ t reflect.Type }

func (*intConverter) NullAware() bool { return true }

func (c *intConverter) Serialize(v reflect.Value, w stream.ValueWriter, _ *Context) error {
	return wrapWriteError(w.WriteInt64(v.Int()), c.t.String(), w.Path())
}

func (c *intConverter) Deserialize(r stream.ValueReader, _ *Context) (reflect.Value, error) {
	path := r.Path()
	n, err := r.ValueAsInt64()
	if err != nil {
		return reflect.Value{}, wrapReadError(err, c.t.String())
	}
	out := reflect.New(c.t).Elem()
	if out.OverflowInt(n) {
		return reflect.Value{}, &Error{Code: CodeOverflow, Type: c.t.String(), Path: path, Value: strconv.FormatInt(n, 10), Message: "value out of range"}
	}
	out.SetInt(n)
	return out, nil
}

type uintConverter struct{ t reflect.Type }

func (*uintConverter) NullAware() bool { return true }

func (c *uintConverter) Serialize(v reflect.Value, w stream.ValueWriter, _ *Context) error {
	return wrapWriteError(w.WriteUint64(v.Uint()), c.t.String(), w.Path())
}

func (c *uintConverter) Deserialize(r stream.ValueReader, _ *Context) (reflect.Value, error) {
	path := r.Path()
	n, err := r.ValueAsUint64()
	if err != nil {
		return reflect.Value{}, wrapReadError(err, c.t.String())
	}
	out := reflect.New(c.t).Elem()
	if out.OverflowUint(n) {
		return reflect.Value{}, &Error{Code: CodeOverflow, Type: c.t.String(), Path: path, Value: strconv.FormatUint(n, 10), Message: "value out of range"}
	}
	out.SetUint(n)
	return out, nil
}

type floatConverter struct{ t reflect.Type }

func (*floatConverter) NullAware() bool { return true }

func (c *floatConverter) Serialize(v reflect.Value, w stream.ValueWriter, _ *Context) error {
	if c.t.Kind() == reflect.Float32 {
		f := v.Float()
		if f != f {
			return &Error{Code: CodeInvalidValue, Type: c.t.String(), Path: w.Path(), Message: "NaN is not representable"}
		}
		if err := w.WriteNumber(strconv.FormatFloat(f, 'g', -1, 32)); err != nil {
			return &Error{Code: CodeInvalidValue, Type: c.t.String(), Path: w.Path(), Cause: err}
		}
		return nil
	}
	if err := w.WriteFloat64(v.Float()); err != nil {
		return &Error{Code: CodeInvalidValue, Type: c.t.String(), Path: w.Path(), Cause: err}
	}
	return nil
}

func (c *floatConverter) Deserialize(r stream.ValueReader, _ *Context) (reflect.Value, error) {
	path := r.Path()
	f, err := r.ValueAsFloat64()
	if err != nil {
		return reflect.Value{}, wrapReadError(err, c.t.String())
	}
	out := reflect.New(c.t).Elem()
	if out.OverflowFloat(f) {
		return reflect.Value{}, &Error{Code: CodeOverflow, Type: c.t.String(), Path: path, Value: strconv.FormatFloat(f, 'g', -1, 64), Message: "value out of range"}
	}
	out.SetFloat(f)
	return out, nil
}

type stringConverter struct{ t reflect.Type }

func (*stringConverter) NullAware() bool { return true }

func (c *stringConverter) Serialize(v reflect.Value, w stream.ValueWriter, _ *Context) error {
	return wrapWriteError(w.WriteString(v.String()), c.t.String(), w.Path())
}

func (c *stringConverter) Deserialize(r stream.ValueReader, _ *Context) (reflect.Value, error) {
	if vt := r.ValueType(); vt != stream.TypeString {
		return reflect.Value{}, &Error{Code: CodeInvalidType, Type: c.t.String(), Path: r.Path(), Message: "cannot read " + vt.String() + " as string"}
	}
	s, err := r.ValueAsString()
	if err != nil {
		return reflect.Value{}, wrapReadError(err, c.t.String())
	}
	out := reflect.New(c.t).Elem()
	out.SetString(s)
	return out, nil
}

type bytesConverter struct{ t reflect.Type }

func (c *bytesConverter) Serialize(v reflect.Value, w stream.ValueWriter, _ *Context) error {
	return wrapWriteError(w.WriteBytes(v.Bytes()), c.t.String(), w.Path())
}

func (c *bytesConverter) Deserialize(r stream.ValueReader, _ *Context) (reflect.Value, error) {
	path := r.Path()
	b, err := r.ValueAsBytes()
	if err != nil {
		e := wrapReadError(err, c.t.String())
		if be, ok := AsError(e); ok && be.Path == "" {
			be.Path = path
		}
		return reflect.Value{}, e
	}
	return reflect.ValueOf(b).Convert(c.t), nil
}

// durationConverter writes Go duration strings and also reads integer
// nanoseconds.
type durationConverter struct{}

var durationCodec = codec.Duration()

func (durationConverter) Serialize(v reflect.Value, w stream.ValueWriter, _ *Context) error {
	s, _ := durationCodec.Encode(time.Duration(v.Int()))
	return wrapWriteError(w.WriteString(s), durationType.String(), w.Path())
}

func (durationConverter) Deserialize(r stream.ValueReader, _ *Context) (reflect.Value, error) {
	path := r.Path()
	if r.ValueType() == stream.TypeInteger {
		n, err := r.ValueAsInt64()
		if err != nil {
			return reflect.Value{}, wrapReadError(err, durationType.String())
		}
		return reflect.ValueOf(time.Duration(n)), nil
	}
	s, err := r.ValueAsString()
	if err != nil {
		return reflect.Value{}, wrapReadError(err, durationType.String())
	}
	d, err := durationCodec.Decode(s)
	if err != nil {
		return reflect.Value{}, &Error{Code: CodeInvalidValue, Type: durationType.String(), Path: path, Value: s, Message: "malformed duration", Cause: err}
	}
	return reflect.ValueOf(d), nil
}

// numberConverter writes json.Number literals verbatim.
type numberConverter struct{}

func (numberConverter) Serialize(v reflect.Value, w stream.ValueWriter, _ *Context) error {
	s := v.String()
	if s == "" {
		s = "0"
	}
	if err := w.WriteNumber(s); err != nil {
		return &Error{Code: CodeInvalidValue, Type: numberType.String(), Path: w.Path(), Value: s, Cause: err}
	}
	return nil
}

func (numberConverter) Deserialize(r stream.ValueReader, _ *Context) (reflect.Value, error) {
	path := r.Path()
	switch r.ValueType() {
	case stream.TypeInteger, stream.TypeDouble:
		s, err := r.ValueAsNumber()
		if err != nil {
			return reflect.Value{}, wrapReadError(err, numberType.String())
		}
		return reflect.ValueOf(json.Number(s)), nil
	case stream.TypeString:
		s, err := r.ValueAsString()
		if err != nil {
			return reflect.Value{}, wrapReadError(err, numberType.String())
		}
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			return reflect.Value{}, &Error{Code: CodeInvalidValue, Type: numberType.String(), Path: path, Value: s, Message: "not a number", Cause: err}
		}
		return reflect.ValueOf(json.Number(s)), nil
	}
	return reflect.Value{}, &Error{Code: CodeInvalidType, Type: numberType.String(), Path: path, Message: "cannot read " + r.ValueType().String() + " as number"}
}

// textConverter covers types implementing encoding.TextMarshaler and
// encoding.TextUnmarshaler.
type textConverter struct{ t reflect.Type }

func (c *textConverter) Serialize(v reflect.Value, w stream.ValueWriter, _ *Context) error {
	m, ok := v.Interface().(encoding.TextMarshaler)
	if !ok {
		m, ok = addressable(v).Addr().Interface().(encoding.TextMarshaler)
	}
	if !ok {
		return &Error{Code: CodeInvalidType, Type: c.t.String(), Path: w.Path(), Cause: errNotTextMarshal}
	}
	text, err := m.MarshalText()
	if err != nil {
		return &Error{Code: CodeInvalidValue, Type: c.t.String(), Path: w.Path(), Message: "MarshalText failed", Cause: err}
	}
	return wrapWriteError(w.WriteString(string(text)), c.t.String(), w.Path())
}

func (c *textConverter) Deserialize(r stream.ValueReader, _ *Context) (reflect.Value, error) {
	path := r.Path()
	if vt := r.ValueType(); vt != stream.TypeString {
		return reflect.Value{}, &Error{Code: CodeInvalidType, Type: c.t.String(), Path: path, Message: "cannot read " + vt.String() + " as text"}
	}
	s, err := r.ValueAsString()
	if err != nil {
		return reflect.Value{}, wrapReadError(err, c.t.String())
	}
	p := reflect.New(c.t)
	if err := p.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(s)); err != nil {
		return reflect.Value{}, &Error{Code: CodeInvalidValue, Type: c.t.String(), Path: path, Value: s, Message: "UnmarshalText failed", Cause: err}
	}
	return p.Elem(), nil
}

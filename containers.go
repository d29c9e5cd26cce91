package jsonbind

import (
	"encoding"
	"encoding/json"
	"reflect"
	"sort"
	"strconv"

	"github.com/reoring/jsonbind/stream"
	"github.com/reoring/jsonbind/types"
)

func (res *resolution) elem(req request, rt reflect.Type) (Converter, error) {
	c, err := res.resolve(request{t: types.Of(rt), ctx: req.ctx.elementKey()})
	if err != nil {
		return nil, err
	}
	return c, nil
}

type sliceConverter struct {
	t    reflect.Type
	elem Converter
}

func (res *resolution) sliceConverter(req request, rt reflect.Type) (Converter, error) {
	ec, err := res.elem(req, rt.Elem())
	if err != nil {
		return nil, err
	}
	return &sliceConverter{t: rt, elem: ec}, nil
}

func (c *sliceConverter) Serialize(v reflect.Value, w stream.ValueWriter, ctx *Context) error {
	leave, err := ctx.enter(v, w.Path())
	if err != nil {
		return err
	}
	defer leave()
	return writeArray(v, c.elem, c.t, w, ctx)
}

func writeArray(v reflect.Value, elem Converter, t reflect.Type, w stream.ValueWriter, ctx *Context) error {
	if err := w.BeginArray(); err != nil {
		return wrapWriteError(err, t.String(), w.Path())
	}
	for i := 0; i < v.Len(); i++ {
		if err := elem.Serialize(v.Index(i), w, ctx); err != nil {
			return err
		}
	}
	return wrapWriteError(w.EndArray(), t.String(), w.Path())
}

func (c *sliceConverter) Deserialize(r stream.ValueReader, ctx *Context) (reflect.Value, error) {
	if err := r.BeginArray(); err != nil {
		return reflect.Value{}, wrapReadError(err, c.t.String())
	}
	out := reflect.MakeSlice(c.t, 0, 4)
	et := c.t.Elem()
	for {
		more, err := r.HasNext()
		if err != nil {
			return reflect.Value{}, wrapReadError(err, c.t.String())
		}
		if !more {
			break
		}
		if _, err := r.Next(); err != nil {
			return reflect.Value{}, wrapReadError(err, c.t.String())
		}
		path := r.Path()
		ev, err := c.elem.Deserialize(r, ctx)
		if err != nil {
			return reflect.Value{}, err
		}
		fv, ok := fit(ev, et)
		if !ok {
			return reflect.Value{}, &Error{Code: CodeInvalidType, Type: c.t.String(), Path: path, Message: "element of type " + ev.Type().String()}
		}
		out = reflect.Append(out, fv)
	}
	return out, wrapReadError(r.EndArray(), c.t.String())
}

type arrayConverter struct {
	t    reflect.Type
	elem Converter
}

func (res *resolution) arrayConverter(req request, rt reflect.Type) (Converter, error) {
	ec, err := res.elem(req, rt.Elem())
	if err != nil {
		return nil, err
	}
	return &arrayConverter{t: rt, elem: ec}, nil
}

func (c *arrayConverter) Serialize(v reflect.Value, w stream.ValueWriter, ctx *Context) error {
	return writeArray(v, c.elem, c.t, w, ctx)
}

// Deserialize fills the array in order; surplus elements are skipped and
// missing ones stay zero.
func (c *arrayConverter) Deserialize(r stream.ValueReader, ctx *Context) (reflect.Value, error) {
	if err := r.BeginArray(); err != nil {
		return reflect.Value{}, wrapReadError(err, c.t.String())
	}
	out := reflect.New(c.t).Elem()
	et := c.t.Elem()
	for i := 0; ; i++ {
		more, err := r.HasNext()
		if err != nil {
			return reflect.Value{}, wrapReadError(err, c.t.String())
		}
		if !more {
			break
		}
		if _, err := r.Next(); err != nil {
			return reflect.Value{}, wrapReadError(err, c.t.String())
		}
		if i >= c.t.Len() {
			if err := r.SkipValue(); err != nil {
				return reflect.Value{}, wrapReadError(err, c.t.String())
			}
			continue
		}
		path := r.Path()
		ev, err := c.elem.Deserialize(r, ctx)
		if err != nil {
			return reflect.Value{}, err
		}
		fv, ok := fit(ev, et)
		if !ok {
			return reflect.Value{}, &Error{Code: CodeInvalidType, Type: c.t.String(), Path: path, Message: "element of type " + ev.Type().String()}
		}
		out.Index(i).Set(fv)
	}
	return out, wrapReadError(r.EndArray(), c.t.String())
}

// mapConverter writes maps as objects with keys sorted by their encoded form.
type mapConverter struct {
	t   reflect.Type
	val Converter
}

func (res *resolution) mapConverter(req request, rt reflect.Type) (Converter, error) {
	if !validMapKey(rt.Key()) {
		return nil, &Error{Code: CodeNoConverter, Type: rt.String(), Message: "unsupported map key type " + rt.Key().String()}
	}
	vc, err := res.elem(req, rt.Elem())
	if err != nil {
		return nil, err
	}
	return &mapConverter{t: rt, val: vc}, nil
}

func validMapKey(kt reflect.Type) bool {
	switch kt.Kind() {
	case reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	}
	return isText(kt)
}

func encodeKey(k reflect.Value) (string, error) {
	if k.Kind() == reflect.String {
		return k.String(), nil
	}
	if m, ok := k.Interface().(encoding.TextMarshaler); ok {
		b, err := m.MarshalText()
		return string(b), err
	}
	switch k.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(k.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(k.Uint(), 10), nil
	}
	if m, ok := addressable(k).Addr().Interface().(encoding.TextMarshaler); ok {
		b, err := m.MarshalText()
		return string(b), err
	}
	return "", errNotTextMarshal
}

func decodeKey(kt reflect.Type, s string) (reflect.Value, error) {
	out := reflect.New(kt).Elem()
	if kt.Kind() == reflect.String {
		out.SetString(s)
		return out, nil
	}
	if u, ok := out.Addr().Interface().(encoding.TextUnmarshaler); ok {
		return out, u.UnmarshalText([]byte(s))
	}
	return out, setScalarText(out, s)
}

func (c *mapConverter) Serialize(v reflect.Value, w stream.ValueWriter, ctx *Context) error {
	leave, err := ctx.enter(v, w.Path())
	if err != nil {
		return err
	}
	defer leave()
	type entry struct {
		name string
		key  reflect.Value
	}
	entries := make([]entry, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		name, err := encodeKey(iter.Key())
		if err != nil {
			return &Error{Code: CodeInvalidValue, Type: c.t.String(), Path: w.Path(), Message: "cannot encode map key", Cause: err}
		}
		entries = append(entries, entry{name: name, key: iter.Key()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })
	if err := w.BeginObject(); err != nil {
		return wrapWriteError(err, c.t.String(), w.Path())
	}
	for _, e := range entries {
		if err := w.WriteName(e.name); err != nil {
			return wrapWriteError(err, c.t.String(), w.Path())
		}
		if err := c.val.Serialize(v.MapIndex(e.key), w, ctx); err != nil {
			return err
		}
	}
	return wrapWriteError(w.EndObject(), c.t.String(), w.Path())
}

func (c *mapConverter) Deserialize(r stream.ValueReader, ctx *Context) (reflect.Value, error) {
	if err := r.BeginObject(); err != nil {
		return reflect.Value{}, wrapReadError(err, c.t.String())
	}
	out := reflect.MakeMap(c.t)
	kt, vt := c.t.Key(), c.t.Elem()
	for {
		more, err := r.HasNext()
		if err != nil {
			return reflect.Value{}, wrapReadError(err, c.t.String())
		}
		if !more {
			break
		}
		if _, err := r.Next(); err != nil {
			return reflect.Value{}, wrapReadError(err, c.t.String())
		}
		path, name := r.Path(), r.Name()
		key, err := decodeKey(kt, name)
		if err != nil {
			return reflect.Value{}, scalarTextError(err, kt, path, name)
		}
		ev, err := c.val.Deserialize(r, ctx)
		if err != nil {
			return reflect.Value{}, err
		}
		fv, ok := fit(ev, vt)
		if !ok {
			return reflect.Value{}, &Error{Code: CodeInvalidType, Type: c.t.String(), Path: path, Message: "value of type " + ev.Type().String()}
		}
		out.SetMapIndex(key, fv)
	}
	return out, wrapReadError(r.EndObject(), c.t.String())
}

type pointerConverter struct {
	t    reflect.Type
	elem Converter
}

func (res *resolution) pointerConverter(req request, rt reflect.Type) (Converter, error) {
	ec, err := res.elem(req, rt.Elem())
	if err != nil {
		return nil, err
	}
	return &pointerConverter{t: rt, elem: ec}, nil
}

func (c *pointerConverter) Serialize(v reflect.Value, w stream.ValueWriter, ctx *Context) error {
	leave, err := ctx.enter(v, w.Path())
	if err != nil {
		return err
	}
	defer leave()
	return c.elem.Serialize(v.Elem(), w, ctx)
}

func (c *pointerConverter) Deserialize(r stream.ValueReader, ctx *Context) (reflect.Value, error) {
	path := r.Path()
	ev, err := c.elem.Deserialize(r, ctx)
	if err != nil {
		return reflect.Value{}, err
	}
	et := c.t.Elem()
	if ev.IsValid() && ev.Type() == et && ev.CanAddr() {
		return ev.Addr(), nil
	}
	fv, ok := fit(ev, et)
	if !ok {
		return reflect.Value{}, &Error{Code: CodeInvalidType, Type: c.t.String(), Path: path, Message: "value of type " + ev.Type().String()}
	}
	p := reflect.New(et)
	p.Elem().Set(fv)
	return p, nil
}

// interfaceConverter is the static converter of non-empty interfaces. Values
// are written through their dynamic type; reading needs a discriminator.
type interfaceConverter struct{ t reflect.Type }

func (c *interfaceConverter) Serialize(v reflect.Value, w stream.ValueWriter, ctx *Context) error {
	return &Error{Code: CodeInvalidType, Type: c.t.String(), Path: w.Path(), Message: "runtime type resolution is disabled"}
}

func (c *interfaceConverter) Deserialize(r stream.ValueReader, _ *Context) (reflect.Value, error) {
	return reflect.Value{}, &Error{Code: CodeNotConstructible, Type: c.t.String(), Path: r.Path(), Message: "interface value needs a type discriminator"}
}

// anyConverter maps the empty interface onto natural JSON values:
// map[string]any, []any, string, bool, nil and numbers per NumberMode.
type anyConverter struct{ mode NumberMode }

func (c *anyConverter) Serialize(v reflect.Value, w stream.ValueWriter, ctx *Context) error {
	if v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	if !v.IsValid() {
		return wrapWriteError(w.WriteNull(), "any", w.Path())
	}
	switch x := v.Interface().(type) {
	case string:
		return wrapWriteError(w.WriteString(x), "any", w.Path())
	case bool:
		return wrapWriteError(w.WriteBool(x), "any", w.Path())
	case float64:
		if err := w.WriteFloat64(x); err != nil {
			return &Error{Code: CodeInvalidValue, Type: "any", Path: w.Path(), Cause: err}
		}
		return nil
	case json.Number:
		return numberConverter{}.Serialize(v, w, ctx)
	case int, int8, int16, int32, int64:
		return wrapWriteError(w.WriteInt64(v.Int()), "any", w.Path())
	case uint, uint8, uint16, uint32, uint64:
		return wrapWriteError(w.WriteUint64(v.Uint()), "any", w.Path())
	case []any:
		leave, err := ctx.enter(v, w.Path())
		if err != nil {
			return err
		}
		defer leave()
		return writeArray(v, c, v.Type(), w, ctx)
	case map[string]any:
		leave, err := ctx.enter(v, w.Path())
		if err != nil {
			return err
		}
		defer leave()
		if err := w.BeginObject(); err != nil {
			return wrapWriteError(err, "any", w.Path())
		}
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := w.WriteName(k); err != nil {
				return wrapWriteError(err, "any", w.Path())
			}
			if err := c.Serialize(v.MapIndex(reflect.ValueOf(k)), w, ctx); err != nil {
				return err
			}
		}
		return wrapWriteError(w.EndObject(), "any", w.Path())
	}
	return &Error{Code: CodeInvalidType, Type: "any", Path: w.Path(), Message: "not a natural JSON value: " + v.Type().String()}
}

func (c *anyConverter) Deserialize(r stream.ValueReader, ctx *Context) (reflect.Value, error) {
	out := reflect.New(emptyInterface).Elem()
	v, err := c.read(r)
	if err != nil {
		return reflect.Value{}, err
	}
	if v != nil {
		out.Set(reflect.ValueOf(v))
	}
	return out, nil
}

func (c *anyConverter) read(r stream.ValueReader) (any, error) {
	switch r.ValueType() {
	case stream.TypeNull:
		return nil, wrapReadError(r.SkipValue(), "any")
	case stream.TypeBoolean:
		b, err := r.ValueAsBool()
		return b, wrapReadError(err, "any")
	case stream.TypeString:
		s, err := r.ValueAsString()
		return s, wrapReadError(err, "any")
	case stream.TypeInteger, stream.TypeDouble:
		if c.mode == NumberJSONNumber {
			s, err := r.ValueAsNumber()
			return json.Number(s), wrapReadError(err, "any")
		}
		f, err := r.ValueAsFloat64()
		return f, wrapReadError(err, "any")
	case stream.TypeArray:
		if err := r.BeginArray(); err != nil {
			return nil, wrapReadError(err, "any")
		}
		out := []any{}
		for {
			more, err := r.HasNext()
			if err != nil {
				return nil, wrapReadError(err, "any")
			}
			if !more {
				break
			}
			if _, err := r.Next(); err != nil {
				return nil, wrapReadError(err, "any")
			}
			v, err := c.read(r)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, wrapReadError(r.EndArray(), "any")
	default:
		if err := r.BeginObject(); err != nil {
			return nil, wrapReadError(err, "any")
		}
		out := map[string]any{}
		for {
			more, err := r.HasNext()
			if err != nil {
				return nil, wrapReadError(err, "any")
			}
			if !more {
				break
			}
			if _, err := r.Next(); err != nil {
				return nil, wrapReadError(err, "any")
			}
			name := r.Name()
			v, err := c.read(r)
			if err != nil {
				return nil, err
			}
			out[name] = v
		}
		return out, wrapReadError(r.EndObject(), "any")
	}
}

package jsonbind

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reoring/jsonbind/stream"
	"github.com/reoring/jsonbind/types"
)

type animal interface{ Sound() string }

type dog struct{ Name string }

func (dog) Sound() string { return "woof" }

type cat struct{ Lives int }

func (cat) Sound() string { return "meow" }

type bird struct{ Wings int }

func (bird) Sound() string { return "tweet" }

func zooEngine(t *testing.T, extra ...func(*Builder)) *Engine {
	b := NewBuilder().WithTypeMetadata(true).Alias("dog", dog{}).Alias("cat", cat{})
	for _, f := range extra {
		f(b)
	}
	return mustEngine(t, b)
}

func TestDiscriminatorsRoundTrip(t *testing.T) {
	e := zooEngine(t)
	out, err := Encode[[]animal](e, []animal{dog{Name: "rex"}, cat{Lives: 9}})
	require.NoError(t, err)
	assert.Equal(t, `[{"@type":"dog","name":"rex"},{"@type":"cat","lives":9}]`, string(out))

	back, err := Decode[[]animal](e, out)
	require.NoError(t, err)
	assert.Equal(t, []animal{dog{Name: "rex"}, cat{Lives: 9}}, back)
}

func TestDiscriminatorFailures(t *testing.T) {
	e := zooEngine(t)
	_, err := Decode[[]animal](e, []byte(`[{"@type":"cow"}]`))
	be, ok := AsError(err)
	require.True(t, ok, "%v", err)
	assert.Equal(t, CodeUnknownDiscriminator, be.Code)
	assert.Equal(t, "cow", be.Value)
	assert.Equal(t, "/0", be.Path)

	_, err = Decode[animal](e, []byte(`{"name":"rex"}`))
	assert.True(t, HasCode(err, CodeNotConstructible), "%v", err)

	_, err = Decode[dog](e, []byte(`{"@type":"cat","lives":1}`))
	assert.True(t, HasCode(err, CodeInvalidType), "a struct cannot stand in for another struct")
}

func TestQualifiedNamesAndOptOut(t *testing.T) {
	e := zooEngine(t, func(b *Builder) {
		b.RegisterType(bird{}).NoTypeMetadata(cat{})
	})
	out, err := Encode[[]animal](e, []animal{bird{Wings: 2}, cat{Lives: 1}})
	require.NoError(t, err)
	assert.Equal(t, `[{"@type":"github.com/reoring/jsonbind.bird","wings":2},{"lives":1}]`, string(out))

	back, err := Decode[animal](e, []byte(`{"@type":"github.com/reoring/jsonbind.bird","wings":3}`))
	require.NoError(t, err)
	assert.Equal(t, bird{Wings: 3}, back)
}

func TestMetadataKey(t *testing.T) {
	e := zooEngine(t, func(b *Builder) { b.WithMetadataKey("kind") })
	out, err := Encode[animal](e, dog{Name: "a"})
	require.NoError(t, err)
	assert.Equal(t, `{"kind":"dog","name":"a"}`, string(out))

	strict := zooEngine(t, func(b *Builder) { b.WithStrict(true) })
	v, err := Decode[animal](strict, []byte(`{"@type":"dog","name":"b"}`))
	require.NoError(t, err, "the discriminator is not a property")
	assert.Equal(t, dog{Name: "b"}, v)
}

func TestRuntimeTypeDisabled(t *testing.T) {
	e := mustEngine(t, NewBuilder().WithRuntimeType(false))
	_, err := Encode[animal](e, dog{Name: "a"})
	assert.True(t, HasCode(err, CodeInvalidType), "%v", err)

	on := mustEngine(t, NewBuilder())
	out, err := Encode[animal](on, dog{Name: "a"})
	require.NoError(t, err)
	assert.Equal(t, `{"name":"a"}`, string(out))
}

type credentials struct {
	Name     string
	Password string
}

type envelope struct {
	User credentials `jsonbind:"view=public"`
	Raw  credentials
}

func publicView() *View {
	return NewView[credentials]("public").
		Get("name", func(c credentials) string { return c.Name }).
		Set("name", func(c *credentials, n string) { c.Name = strings.TrimSpace(n) })
}

func TestNamedView(t *testing.T) {
	e := mustEngine(t, NewBuilder().View(publicView()))
	out, err := e.Marshal(envelope{User: credentials{"a", "p"}, Raw: credentials{"b", "q"}})
	require.NoError(t, err)
	assert.Equal(t, `{"raw":{"name":"b","password":"q"},"user":{"name":"a"}}`, string(out))

	var v envelope
	require.NoError(t, e.Unmarshal([]byte(`{"user":{"name":" z ","password":"leak"}}`), &v))
	assert.Equal(t, credentials{Name: "z"}, v.User)
}

func TestDefaultView(t *testing.T) {
	e := mustEngine(t, NewBuilder().DefaultView(publicView()))
	out, err := e.Marshal(credentials{"a", "p"})
	require.NoError(t, err)
	assert.Equal(t, `{"name":"a"}`, string(out))

	d, err := e.BuildBeanDescriptor(types.For[credentials]())
	require.NoError(t, err)
	assert.Len(t, d.Accessors, 2, "the type's own plan is untouched")

	off := mustEngine(t, NewBuilder().WithViews(false).DefaultView(publicView()))
	out, err = off.Marshal(credentials{"a", "p"})
	require.NoError(t, err)
	assert.Equal(t, `{"name":"a","password":"p"}`, string(out))
}

type badView struct {
	C credentials `jsonbind:"view=nope"`
}

func TestViewErrors(t *testing.T) {
	_, err := mustEngine(t, NewBuilder()).Marshal(badView{})
	assert.True(t, HasCode(err, CodeInvalidDefinition), "%v", err)

	_, err = NewBuilder().View(NewView[credentials]("broken").Get("name", func(int) string { return "" })).Build()
	assert.True(t, HasCode(err, CodeInvalidDefinition))
}

type priced struct {
	Price int `jsonbind:"converter=cents"`
	Qty   int
}

var cents = Typed[int](
	func(v int, w stream.ValueWriter, _ *Context) error {
		return w.WriteString(fmt.Sprintf("%d.%02d", v/100, v%100))
	},
	func(r stream.ValueReader, _ *Context) (int, error) {
		s, err := r.ValueAsString()
		if err != nil {
			return 0, err
		}
		whole, frac, _ := strings.Cut(s, ".")
		n, err := strconv.Atoi(whole + frac)
		if err != nil {
			return 0, &Error{Code: CodeInvalidValue, Path: r.Path(), Value: s, Cause: err}
		}
		return n, nil
	},
)

func TestNamedConverter(t *testing.T) {
	e := mustEngine(t, NewBuilder().NamedConverter("cents", cents))
	out, err := e.Marshal(priced{Price: 1234, Qty: 2})
	require.NoError(t, err)
	assert.Equal(t, `{"price":"12.34","qty":2}`, string(out))

	var p priced
	require.NoError(t, e.Unmarshal(out, &p))
	assert.Equal(t, priced{Price: 1234, Qty: 2}, p)

	_, err = mustEngine(t, NewBuilder()).Marshal(priced{})
	be, ok := AsError(err)
	require.True(t, ok, "%v", err)
	assert.Equal(t, CodeNoConverter, be.Code)
	assert.Equal(t, "price", be.Property)
}

type quoted struct {
	B bool   `json:",string"`
	N int    `json:",string"`
	S string `json:",string"`
}

func TestQuotedScalars(t *testing.T) {
	e := mustEngine(t, NewBuilder())
	out, err := e.Marshal(quoted{B: true, N: 42, S: "x"})
	require.NoError(t, err)
	assert.Equal(t, `{"b":"true","n":"42","s":"x"}`, string(out))

	var q quoted
	require.NoError(t, e.Unmarshal(out, &q))
	assert.Equal(t, quoted{B: true, N: 42, S: "x"}, q)

	assert.True(t, HasCode(e.Unmarshal([]byte(`{"n":42}`), &q), CodeInvalidType))
	assert.True(t, HasCode(e.Unmarshal([]byte(`{"n":"4x"}`), &q), CodeInvalidValue))
}

type counter struct{ N int }

func TestNullDefault(t *testing.T) {
	e := mustEngine(t, NewBuilder().NullDefault(42))
	var c counter
	require.NoError(t, e.Unmarshal([]byte(`{"n":null}`), &c))
	assert.Equal(t, 42, c.N)

	_, err := NewBuilder().NullDefault(nil).Build()
	assert.True(t, HasCode(err, CodeInvalidDefinition))
}

func TestEngineKeepsItsConfiguration(t *testing.T) {
	b := NewBuilder()
	e := mustEngine(t, b)
	b.NullDefault(42).Exclude(counter{}, "N")

	var c counter
	err := e.Unmarshal([]byte(`{"n":null}`), &c)
	assert.True(t, HasCode(err, CodeInvalidType), "%v", err)
	out, err := e.Marshal(counter{N: 1})
	require.NoError(t, err)
	assert.Equal(t, `{"n":1}`, string(out))

	zb := NewBuilder().WithTypeMetadata(true).Alias("dog", dog{})
	ze := mustEngine(t, zb)
	zb.Alias("cat", cat{})
	out, err = Encode[[]animal](ze, []animal{cat{Lives: 1}})
	require.NoError(t, err)
	assert.Equal(t, `[{"@type":"github.com/reoring/jsonbind.cat","lives":1}]`, string(out))

	_, err = zb.Build()
	require.NoError(t, err, "building again reuses the same configuration")
}

type celsius float64

type optional[T any] struct {
	Value T
	Set   bool
}

type holder struct {
	A optional[int]
	B optional[string]
}

type optionalConverter struct {
	t     reflect.Type
	inner Converter
}

func (c *optionalConverter) Serialize(v reflect.Value, w stream.ValueWriter, ctx *Context) error {
	if !v.Field(1).Bool() {
		return w.WriteNull()
	}
	return c.inner.Serialize(v.Field(0), w, ctx)
}

func (c *optionalConverter) Deserialize(r stream.ValueReader, ctx *Context) (reflect.Value, error) {
	v, err := c.inner.Deserialize(r, ctx)
	if err != nil {
		return reflect.Value{}, err
	}
	out := reflect.New(c.t).Elem()
	out.Field(0).Set(v)
	out.Field(1).SetBool(true)
	return out, nil
}

type level int

func (l level) String() string { return "L" + strconv.Itoa(int(l)) }

type leveled struct{ Lvl level }

func TestRegistry(t *testing.T) {
	temp := Typed[celsius](
		func(v celsius, w stream.ValueWriter, _ *Context) error {
			return w.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 64) + "C")
		},
		func(r stream.ValueReader, _ *Context) (celsius, error) {
			s, err := r.ValueAsString()
			if err != nil {
				return 0, err
			}
			f, err := strconv.ParseFloat(strings.TrimSuffix(s, "C"), 64)
			return celsius(f), err
		},
	)
	optionals := FactoryFunc(func(t types.Type, p Provider) (Converter, error) {
		inner, err := p.Converter(t.TypeArgumentAt(0))
		if err != nil {
			return nil, err
		}
		return &optionalConverter{t: t.RawType(), inner: inner}, nil
	})
	var seen []string
	stringers := FactoryFunc(func(t types.Type, _ Provider) (Converter, error) {
		seen = append(seen, t.String())
		return Typed[fmt.Stringer](
			func(v fmt.Stringer, w stream.ValueWriter, _ *Context) error { return w.WriteString(v.String()) },
			nil,
		), nil
	})
	e := mustEngine(t, NewBuilder().
		RegisterConverter(types.For[celsius](), temp).
		RegisterOriginFactory(types.For[optional[int]]().Origin(), optionals).
		RegisterMatchFactory(types.For[fmt.Stringer](), stringers))

	out, err := e.Marshal(celsius(21.5))
	require.NoError(t, err)
	assert.Equal(t, `"21.5C"`, string(out))
	c, err := Decode[celsius](e, out)
	require.NoError(t, err)
	assert.Equal(t, celsius(21.5), c)

	out, err = e.Marshal(holder{A: optional[int]{Value: 3, Set: true}})
	require.NoError(t, err)
	assert.Equal(t, `{"a":3,"b":null}`, string(out))
	h, err := Decode[holder](e, []byte(`{"b":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, holder{B: optional[string]{Value: "x", Set: true}}, h)

	out, err = e.Marshal(leveled{Lvl: 2})
	require.NoError(t, err)
	assert.Equal(t, `{"lvl":"L2"}`, string(out))
	assert.Contains(t, seen, "jsonbind.level")
}

func TestProvideConverterIsShared(t *testing.T) {
	e := mustEngine(t, NewBuilder())
	a, err := e.ProvideConverter(types.For[[]person]())
	require.NoError(t, err)
	b, err := e.ConverterFor(reflect.TypeOf([]person(nil)))
	require.NoError(t, err)
	assert.Same(t, a, b)

	_, err = e.ProvideConverter(types.Var("x", 0, "T", types.Of(reflect.TypeOf((*chan int)(nil)).Elem())))
	assert.Error(t, err)
}

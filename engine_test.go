package jsonbind

import (
	"encoding/json"
	"net/netip"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/reoring/jsonbind/source/gojson"
	"github.com/reoring/jsonbind/types"
)

type address struct {
	Street string
	City   string `json:"city_name"`
}

type person struct {
	Name   string
	Age    int
	Tags   []string
	Home   *address
	Scores map[string]int
	Secret string `json:"-"`
	hidden int
}

func mustEngine(t *testing.T, b *Builder) *Engine {
	t.Helper()
	e, err := b.Build()
	require.NoError(t, err)
	return e
}

func TestRoundTrip(t *testing.T) {
	e := mustEngine(t, NewBuilder())
	in := person{
		Name:   "Ada",
		Age:    36,
		Tags:   []string{"math", "engines"},
		Home:   &address{Street: "1 Main", City: "London"},
		Scores: map[string]int{"b": 2, "a": 1},
		Secret: "x",
		hidden: 7,
	}
	out, err := e.Marshal(in)
	require.NoError(t, err)
	assert.Equal(t, `{"age":36,"home":{"city_name":"London","street":"1 Main"},"name":"Ada","scores":{"a":1,"b":2},"tags":["math","engines"]}`, string(out))

	var back person
	require.NoError(t, e.Unmarshal(out, &back))
	in.Secret, in.hidden = "", 0
	assert.Equal(t, in, back)
}

func TestNullsAndAbsentFields(t *testing.T) {
	e := mustEngine(t, NewBuilder())
	var p person
	require.NoError(t, e.Unmarshal([]byte(`{"name":"n","home":null,"tags":null}`), &p))
	assert.Nil(t, p.Home)
	assert.Nil(t, p.Tags)

	err := e.Unmarshal([]byte(`{"age":null}`), &p)
	require.Error(t, err)
	assert.True(t, HasCode(err, CodeInvalidType), err.Error())

	out, err := e.Marshal(person{Name: "n"})
	require.NoError(t, err)
	assert.Equal(t, `{"age":0,"home":null,"name":"n","scores":null,"tags":null}`, string(out))

	skip := mustEngine(t, NewBuilder().WithSkipNull(true))
	out, err = skip.Marshal(person{Name: "n"})
	require.NoError(t, err)
	assert.Equal(t, `{"age":0,"name":"n"}`, string(out))
}

type node struct {
	Value int
	Next  *node
}

func TestSelfReferentialType(t *testing.T) {
	e := mustEngine(t, NewBuilder())
	list := &node{Value: 1, Next: &node{Value: 2}}
	out, err := e.Marshal(list)
	require.NoError(t, err)
	assert.Equal(t, `{"next":{"next":null,"value":2},"value":1}`, string(out))

	var back *node
	require.NoError(t, e.Unmarshal(out, &back))
	assert.Equal(t, list, back)
}

func TestCycleIsReported(t *testing.T) {
	e := mustEngine(t, NewBuilder())
	a, b, c := &node{Value: 1}, &node{Value: 2}, &node{Value: 3}
	a.Next, b.Next, c.Next = b, c, a
	_, err := e.Marshal(a)
	require.Error(t, err)
	be, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeCycle, be.Code)
	assert.Equal(t, "/next/next/next", be.Path)

	shared := &node{Value: 9}
	_, err = e.Marshal([]*node{shared, shared})
	assert.NoError(t, err, "repeated references off the current path are not cycles")
}

type page[T any] struct {
	Items []T
	Total int
}

type listing[T any] struct {
	page[T]
	Cursor string
}

func TestGenericTypes(t *testing.T) {
	e := mustEngine(t, NewBuilder())
	got, err := Decode[listing[address]](e, []byte(`{"items":[{"street":"a"}],"total":1,"cursor":"c"}`))
	require.NoError(t, err)
	assert.Equal(t, []address{{Street: "a"}}, got.Items)
	assert.Equal(t, 1, got.Total)
	assert.Equal(t, "c", got.Cursor)

	d, err := e.BuildBeanDescriptor(types.For[listing[int]]())
	require.NoError(t, err)
	var itemType types.Type
	for _, a := range d.Accessors {
		if a.Name == "items" {
			itemType = a.Type
			assert.Equal(t, "page", strings.SplitN(a.Declaring.Name(), "[", 2)[0])
		}
	}
	assert.Equal(t, types.For[[]int](), itemType)
}

type scalars struct {
	When   time.Time
	Wait   time.Duration
	ID     uuid.UUID
	Raw    []byte
	Num    json.Number
	Addr   netip.Addr
	Small  int8
	Ratio  float32
	Counts [2]int
	ByID   map[int]string
	Any    any
}

func TestBuiltinScalars(t *testing.T) {
	e := mustEngine(t, NewBuilder())
	in := scalars{
		When:   time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Wait:   90 * time.Second,
		ID:     uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"),
		Raw:    []byte("hi"),
		Num:    "12345678901234567890",
		Addr:   netip.MustParseAddr("10.0.0.1"),
		Small:  -3,
		Ratio:  0.5,
		Counts: [2]int{1, 2},
		ByID:   map[int]string{10: "a", 2: "b"},
		Any:    map[string]any{"k": []any{true, "v"}},
	}
	out, err := e.Marshal(in)
	require.NoError(t, err)
	assert.Equal(t, `{"addr":"10.0.0.1","any":{"k":[true,"v"]},"byID":{"10":"a","2":"b"},"counts":[1,2],"id":"6ba7b810-9dad-11d1-80b4-00c04fd430c8","num":12345678901234567890,"ratio":0.5,"raw":"aGk=","small":-3,"wait":"1m30s","when":"2024-01-02T03:04:05Z"}`, string(out))

	var back scalars
	require.NoError(t, e.Unmarshal(out, &back))
	assert.Equal(t, in, back)

	require.NoError(t, e.Unmarshal([]byte(`{"wait":1000}`), &back))
	assert.Equal(t, time.Microsecond, back.Wait)
}

func TestScalarErrors(t *testing.T) {
	e := mustEngine(t, NewBuilder())
	var s scalars
	cases := map[string]string{
		`{"small":300}`:          CodeOverflow,
		`{"small":"1"}`:          CodeInvalidType,
		`{"id":"nope"}`:          CodeInvalidValue,
		`{"when":"yesterday"}`:   CodeInvalidValue,
		`{"byID":{"x":"a"}}`:     CodeInvalidValue,
		`{"raw":"!!"}`:           CodeInvalidValue,
		`{"small":1.5}`:          CodeInvalidValue,
		`{"counts":{}}`:          CodeInvalidType,
		`{"small":1`:             CodeParseError,
		`{"small":1} trailing`:   CodeParseError,
		`{"small":1} {"more":1}`: CodeParseError,
	}
	for in, code := range cases {
		err := e.Unmarshal([]byte(in), &s)
		require.Error(t, err, in)
		assert.True(t, HasCode(err, code), "%s: %v", in, err)
	}
}

func TestErrorCarriesPath(t *testing.T) {
	e := mustEngine(t, NewBuilder())
	var p person
	err := e.Unmarshal([]byte(`{"home":{"street":5}}`), &p)
	be, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, "/home/street", be.Path)
	assert.Equal(t, CodeInvalidType, be.Code)
}

func TestNumberModes(t *testing.T) {
	e := mustEngine(t, NewBuilder())
	v, err := Decode[any](e, []byte(`{"n":1.50}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"n": 1.5}, v)

	n := mustEngine(t, NewBuilder().WithNumberMode(NumberJSONNumber))
	v, err = Decode[any](n, []byte(`{"n":1.50}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"n": json.Number("1.50")}, v)
	out, err := Encode(n, v)
	require.NoError(t, err)
	assert.Equal(t, `{"n":1.50}`, string(out))
}

func TestIndent(t *testing.T) {
	e := mustEngine(t, NewBuilder().WithIndent("  "))
	out, err := e.Marshal(address{Street: "s"})
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"city_name\": \"\",\n  \"street\": \"s\"\n}", string(out))
}

func TestDeserializeInto(t *testing.T) {
	e := mustEngine(t, NewBuilder())
	p := person{Name: "keep", Age: 1}
	require.NoError(t, e.DeserializeInto(strings.NewReader(`{"age":2}`), &p))
	assert.Equal(t, "keep", p.Name)
	assert.Equal(t, 2, p.Age)

	err := e.DeserializeInto(strings.NewReader(`{}`), p)
	assert.True(t, HasCode(err, CodeInvalidType))
}

func TestUnmarshalJSONC(t *testing.T) {
	e := mustEngine(t, NewBuilder())
	var a address
	require.NoError(t, e.UnmarshalJSONC([]byte("{\n // street only\n \"street\": \"s\",\n}"), &a))
	assert.Equal(t, "s", a.Street)
}

func TestPolicies(t *testing.T) {
	dup := mustEngine(t, NewBuilder().WithDuplicateKeys(Fail))
	var m map[string]int
	err := dup.Unmarshal([]byte(`{"a":1,"a":2}`), &m)
	assert.True(t, HasCode(err, CodeDuplicateKey), "%v", err)

	core, logs := observer.New(zapcore.WarnLevel)
	warn := mustEngine(t, NewBuilder().WithDuplicateKeys(Warn).WithLogger(zap.New(core)))
	require.NoError(t, warn.Unmarshal([]byte(`{"a":1,"a":2}`), &m))
	assert.Equal(t, 2, m["a"])
	require.Equal(t, 1, logs.FilterMessage("input issue").Len())
	assert.Equal(t, "/a", logs.All()[0].ContextMap()["path"])

	deep := mustEngine(t, NewBuilder().WithMaxDepth(2))
	var v any
	err = deep.Unmarshal([]byte(`[[[1]]]`), &v)
	assert.True(t, HasCode(err, CodeMaxDepth), "%v", err)
	_, err = deep.Marshal([][][]int{{{1}}})
	assert.True(t, HasCode(err, CodeMaxDepth), "%v", err)

	small := mustEngine(t, NewBuilder().WithMaxBytes(6))
	var ints []int
	err = small.Unmarshal([]byte(`[1,2,3,4,5,6,7,8,9]`), &ints)
	assert.True(t, HasCode(err, CodeMaxBytes), "%v", err)
	require.NoError(t, small.Unmarshal([]byte(`[1,2]`), &ints))
	assert.Equal(t, []int{1, 2}, ints)
}

func TestGoJSONDriver(t *testing.T) {
	e := mustEngine(t, NewBuilder().WithJSONDriver(gojson.Driver()))
	var p person
	require.NoError(t, e.Unmarshal([]byte(`{"name":"g","tags":["a"],"home":{"street":"s"}}`), &p))
	assert.Equal(t, "g", p.Name)
	assert.Equal(t, "s", p.Home.Street)

	_, err := NewBuilder().WithConfig(Config{Driver: "bogus"}).Build()
	assert.True(t, HasCode(err, CodeInvalidDefinition))
}

func TestTargetMustBePointer(t *testing.T) {
	e := mustEngine(t, NewBuilder())
	var p person
	assert.True(t, HasCode(e.Unmarshal([]byte(`{}`), p), CodeInvalidType))
	assert.True(t, HasCode(e.Unmarshal([]byte(`{}`), nil), CodeInvalidType))
}

func TestConcurrentResolutionPublishesOnce(t *testing.T) {
	e := mustEngine(t, NewBuilder())
	const n = 16
	convs := make([]Converter, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := e.ConverterFor(types.For[listing[person]]().RawType())
			if err == nil {
				convs[i] = c
			}
		}()
	}
	wg.Wait()
	for _, c := range convs {
		require.NotNil(t, c)
		assert.Same(t, convs[0], c)
	}
}

package types

import (
	"bytes"
	"io"
	"reflect"
	"testing"
)

type Container[E any] struct{ Items E }

type Box[T any] struct {
	Container[[]T]
	Label string
}

type Pair[K comparable, V any] struct {
	Key   K
	Value V
}

func TestInterning(t *testing.T) {
	if Of(reflect.TypeOf([]int{})) != Slice(For[int]()) {
		t.Fatal("slice shape not realized to the class")
	}
	if Map(For[string](), For[bool]()) != For[map[string]bool]() {
		t.Fatal("map shape not realized")
	}
	if Pointer(For[int]()) != For[*int]() {
		t.Fatal("pointer shape not realized")
	}
	if For[any]() != Any() {
		t.Fatal("empty interface is not Any")
	}
	v1 := Var("x.T", 0, "T")
	v2 := Var("x.T", 0, "T")
	if v1 != v2 {
		t.Fatal("identical vars not interned")
	}
	if Wildcard([]Type{For[int]()}, nil) == Wildcard(nil, nil) {
		t.Fatal("distinct wildcards collapsed")
	}
}

func TestConcrete(t *testing.T) {
	if !For[Box[int]]().Concrete() {
		t.Fatal("class should be concrete")
	}
	v := Var("x.T", 0, "T")
	if v.Concrete() || GenericArray(v).Concrete() || Parameterized("x.Y", v).Concrete() {
		t.Fatal("declared shapes should not be concrete")
	}
	if GenericArray(For[int]()) != For[[]int]() {
		t.Fatal("concrete generic array should be a slice class")
	}
}

func TestRecoveredArgs(t *testing.T) {
	args := For[Pair[string, []int]]().Args()
	if len(args) != 2 || args[0] != For[string]() || args[1] != For[[]int]() {
		t.Fatalf("args = %v", args)
	}
	if For[Pair[string, int]]().Origin() != OriginOf(reflect.TypeOf(Pair[bool, bool]{})) {
		t.Fatal("instantiations should share an origin")
	}
}

func TestExpandBindsThroughEmbedding(t *testing.T) {
	sample := reflect.TypeOf(Container[int]{})
	e := VarOf(sample, 0, "E")
	got := Expand(e, For[Box[string]]())
	if got != For[[]string]() {
		t.Fatalf("Expand = %v", got)
	}
	if got := Expand(Slice(e), For[Box[bool]]()); got != For[[][]bool]() {
		t.Fatalf("Expand slice = %v", got)
	}
}

func TestExpandFallbacks(t *testing.T) {
	if got := Expand(Var("x.T", 0, "T", For[int]()), Any()); got != For[int]() {
		t.Fatalf("unbound var with bound = %v", got)
	}
	if got := Expand(Var("x.T", 0, "T"), Any()); got != Any() {
		t.Fatalf("unbound var = %v", got)
	}
	if got := Expand(Wildcard([]Type{For[string]()}, []Type{For[int]()}), Any()); got != For[string]() {
		t.Fatalf("wildcard = %v", got)
	}
	if got := Expand(GenericArray(Wildcard(nil, nil)), Any()); got != For[[]any]() {
		t.Fatalf("generic array = %v", got)
	}
	if got := Expand(Type{}, Any()); got != Any() {
		t.Fatalf("invalid = %v", got)
	}
}

func TestFieldType(t *testing.T) {
	box := For[Box[int]]()
	items, ok := reflect.TypeOf(Box[int]{}).FieldByName("Items")
	if !ok {
		t.Fatal("no promoted field")
	}
	if got := FieldType(box, items.Index); got != For[[]int]() {
		t.Fatalf("FieldType = %v", got)
	}
	if got := DeclaredBy(box, items.Index); got != reflect.TypeOf(Container[[]int]{}) {
		t.Fatalf("DeclaredBy = %v", got)
	}
}

func TestMatch(t *testing.T) {
	buf, w := For[*bytes.Buffer](), For[io.Writer]()
	if !Match(buf, w, false) {
		t.Fatal("implementation should match interface loosely")
	}
	if Match(buf, w, true) {
		t.Fatal("strict match should need identity")
	}
	if !Match(For[int](), Var("x.T", 0, "T"), false) {
		t.Fatal("unbounded var matches anything")
	}
	if Match(For[string](), Var("x.T", 0, "T", For[int]()), false) {
		t.Fatal("var bound not honored")
	}
	if !Match(For[[]int](), GenericArray(Var("x.T", 0, "T")), false) {
		t.Fatal("slice should match generic array of var")
	}
	if !Match(For[Pair[string, int]](), Parameterized(For[Pair[string, int]]().Origin(), For[string](), Wildcard(nil, nil)), false) {
		t.Fatal("parameterized pattern with wildcard should match")
	}
}

func TestString(t *testing.T) {
	if got := Slice(Var("x.T", 0, "T")).String(); got != "[]T" {
		t.Fatalf("String = %q", got)
	}
	if got := Wildcard([]Type{For[int]()}, nil).String(); got != "some int" {
		t.Fatalf("String = %q", got)
	}
	if got := For[Box[int]]().Qualified(); got != "github.com/reoring/jsonbind/types.Box[int]" {
		t.Fatalf("Qualified = %q", got)
	}
}

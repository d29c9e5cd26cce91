package paramnames

import (
	"errors"
	"reflect"
	"testing"
)

//go:noinline
func pair(width int, height string) string { return height }

func TestLookup(t *testing.T) {
	names, err := Lookup(reflect.ValueOf(pair))
	if errors.Is(err, ErrNoDebugInfo) {
		t.Skip("test binary has no DWARF data")
	}
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || names[0] != "width" || names[1] != "height" {
		t.Fatalf("names = %v", names)
	}
	again, _ := Lookup(reflect.ValueOf(pair))
	if &again[0] != &names[0] {
		t.Fatal("second lookup not served from cache")
	}
}

func TestLookupRejectsNonFunc(t *testing.T) {
	if _, err := Lookup(reflect.ValueOf(3)); err == nil {
		t.Fatal("expected error")
	}
}

func TestFuncName(t *testing.T) {
	if got := FuncName(reflect.ValueOf(pair)); got != "github.com/reoring/jsonbind/internal/paramnames.pair" {
		t.Fatalf("name = %q", got)
	}
	if got := FuncName(reflect.Value{}); got != "<nil>" {
		t.Fatalf("zero = %q", got)
	}
}

package source

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/reoring/jsonbind/stream"
)

func drain(t *testing.T, src stream.TokenSource) []stream.Token {
	t.Helper()
	var out []stream.Token
	for {
		tok, err := src.NextToken()
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, tok)
	}
}

func TestDriversAgree(t *testing.T) {
	in := `{"a":[1,2.5,"s",true,null],"b":{"c":"d"},"e":12345678901234567890}`
	var want []stream.Token
	for _, name := range Names() {
		d, err := ByName(name)
		if err != nil {
			t.Fatal(err)
		}
		got := drain(t, d.NewTokenSource(strings.NewReader(in)))
		for i := range got {
			got[i].Offset = 0
		}
		if want == nil {
			want = got
			continue
		}
		if len(got) != len(want) {
			t.Fatalf("%s: %d tokens, want %d", name, len(got), len(want))
		}
		for i := range got {
			if got[i] != want[i] {
				t.Fatalf("%s: token %d = %+v, want %+v", name, i, got[i], want[i])
			}
		}
	}
	if want[1].Kind != stream.KindKey || want[1].String != "a" {
		t.Fatalf("object key not framed: %+v", want[1])
	}
	if last := want[len(want)-2]; last.Kind != stream.KindNumber || last.Number != "12345678901234567890" {
		t.Fatalf("number literal lost: %+v", last)
	}
}

func TestByNameUnknown(t *testing.T) {
	if _, err := ByName("nope"); err == nil {
		t.Fatal("expected error")
	}
}

package stream_test

import (
	"errors"
	"io"
	"testing"

	jsonsrc "github.com/reoring/jsonbind/source/json"
	"github.com/reoring/jsonbind/stream"
)

func newReader(s string) *stream.Reader { return stream.NewReader(jsonsrc.NewBytes([]byte(s))) }

func TestReaderWalksObject(t *testing.T) {
	r := newReader(`{"a":1,"b":[true,"x"],"c":null,"d":2.5}`)
	if vt, err := r.Next(); err != nil || vt != stream.TypeObject {
		t.Fatalf("Next = %v, %v", vt, err)
	}
	if err := r.BeginObject(); err != nil {
		t.Fatal(err)
	}
	var names []string
	for {
		more, err := r.HasNext()
		if err != nil {
			t.Fatal(err)
		}
		if !more {
			break
		}
		vt, err := r.Next()
		if err != nil {
			t.Fatal(err)
		}
		names = append(names, r.Name())
		switch r.Name() {
		case "a":
			if vt != stream.TypeInteger {
				t.Fatalf("a type = %v", vt)
			}
			if n, err := r.ValueAsInt64(); err != nil || n != 1 {
				t.Fatalf("a = %d, %v", n, err)
			}
		case "b":
			if r.Path() != "/b" {
				t.Fatalf("path = %q", r.Path())
			}
			if err := r.SkipValue(); err != nil {
				t.Fatal(err)
			}
		case "c":
			if vt != stream.TypeNull {
				t.Fatalf("c type = %v", vt)
			}
		case "d":
			if vt != stream.TypeDouble {
				t.Fatalf("d type = %v", vt)
			}
			if f, err := r.ValueAsFloat64(); err != nil || f != 2.5 {
				t.Fatalf("d = %v, %v", f, err)
			}
		}
	}
	if err := r.EndObject(); err != nil {
		t.Fatal(err)
	}
	if err := r.End(); err != nil {
		t.Fatal(err)
	}
	if len(names) != 4 {
		t.Fatalf("names = %v", names)
	}
}

func TestReaderArrayPaths(t *testing.T) {
	r := newReader(`[[1],[2,"x"]]`)
	_, _ = r.Next()
	_ = r.BeginArray()
	_, _ = r.Next()
	_ = r.SkipValue()
	_, _ = r.Next()
	_ = r.BeginArray()
	_, _ = r.Next()
	_, _ = r.Next()
	if got := r.Path(); got != "/1/1" {
		t.Fatalf("path = %q", got)
	}
	_, err := r.ValueAsInt64()
	var ve *stream.ValueError
	if !errors.As(err, &ve) || ve.Got != stream.TypeString || ve.Path != "/1/1" {
		t.Fatalf("err = %v", err)
	}
}

func TestReaderEndDrainsContainer(t *testing.T) {
	r := newReader(`{"a":{"deep":[1,2,3]},"b":2}`)
	_, _ = r.Next()
	_ = r.BeginObject()
	if err := r.EndObject(); err != nil {
		t.Fatal(err)
	}
	if err := r.End(); err != nil {
		t.Fatal(err)
	}
}

func TestReaderTrailingData(t *testing.T) {
	r := newReader(`1 2`)
	_, _ = r.Next()
	_, _ = r.ValueAsInt64()
	var se *stream.SyntaxError
	if err := r.End(); !errors.As(err, &se) {
		t.Fatalf("End = %v, want SyntaxError", err)
	}
}

func TestReaderTruncated(t *testing.T) {
	r := newReader(`{"a":[1,`)
	_, _ = r.Next()
	err := r.SkipValue()
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("err = %v", err)
	}
}

func TestReaderPeekMetadata(t *testing.T) {
	r := newReader(`{"@type":"dog","name":"rex"}`)
	_, _ = r.Next()
	v, ok, err := r.PeekMetadata("@type")
	if err != nil || !ok || v != "dog" {
		t.Fatalf("PeekMetadata = %q, %v, %v", v, ok, err)
	}
	_ = r.BeginObject()
	_, _ = r.Next()
	if r.Name() != "name" {
		t.Fatalf("first entry after metadata = %q", r.Name())
	}
}

func TestReaderPeekMetadataAbsent(t *testing.T) {
	r := newReader(`{"name":"rex"}`)
	_, _ = r.Next()
	if _, ok, err := r.PeekMetadata("@type"); ok || err != nil {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	_ = r.BeginObject()
	_, _ = r.Next()
	if r.Name() != "name" {
		t.Fatalf("entry lost: %q", r.Name())
	}
}

func TestReaderOverflow(t *testing.T) {
	r := newReader(`99999999999999999999`)
	_, _ = r.Next()
	_, err := r.ValueAsInt64()
	var ve *stream.ValueError
	if !errors.As(err, &ve) || !ve.Overflow {
		t.Fatalf("err = %v", err)
	}
}

func TestReaderBytes(t *testing.T) {
	r := newReader(`"aGk="`)
	_, _ = r.Next()
	b, err := r.ValueAsBytes()
	if err != nil || string(b) != "hi" {
		t.Fatalf("bytes = %q, %v", b, err)
	}
}

func TestReaderEmpty(t *testing.T) {
	r := newReader(``)
	if _, err := r.Next(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("err = %v", err)
	}
}

package codec

import (
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestTimeRFC3339(t *testing.T) {
	c := TimeRFC3339()
	tm, err := c.Decode("2024-02-03T04:05:06.500+09:00")
	if err != nil {
		t.Fatal(err)
	}
	s, _ := c.Encode(tm)
	if s != "2024-02-02T19:05:06.5Z" {
		t.Fatalf("encode = %q", s)
	}
	if _, err := c.Decode("yesterday"); err == nil {
		t.Fatal("expected error")
	} else {
		var fe *FormatError
		if !errors.As(err, &fe) || fe.Value != "yesterday" {
			t.Fatalf("err = %v", err)
		}
	}
}

func TestUUID(t *testing.T) {
	c := UUID()
	u, err := c.Decode("{6ba7b810-9dad-11d1-80b4-00c04fd430c8}")
	if err != nil {
		t.Fatal(err)
	}
	if s, _ := c.Encode(u); s != "6ba7b810-9dad-11d1-80b4-00c04fd430c8" {
		t.Fatalf("encode = %q", s)
	}
	if u != uuid.NameSpaceDNS {
		t.Fatalf("decoded %v", u)
	}
	if _, err := c.Decode("not-a-uuid"); err == nil {
		t.Fatal("expected error")
	}
}

func TestDuration(t *testing.T) {
	c := Duration()
	d, err := c.Decode("1h30m")
	if err != nil || d != 90*time.Minute {
		t.Fatalf("decode = %v, %v", d, err)
	}
	if s, _ := c.Encode(d); s != "1h30m0s" {
		t.Fatalf("encode = %q", s)
	}
}

func TestFunc(t *testing.T) {
	c := Func(func(n int) (string, error) { return strconv.Itoa(n), nil }, strconv.Atoi)
	if s, _ := c.Encode(42); s != "42" {
		t.Fatalf("encode = %q", s)
	}
	if n, err := c.Decode("7"); err != nil || n != 7 {
		t.Fatalf("decode = %d, %v", n, err)
	}
}

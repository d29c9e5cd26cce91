package engine

import (
	"errors"
	"io"
	"testing"

	jsonsrc "github.com/reoring/jsonbind/source/json"
	"github.com/reoring/jsonbind/stream"
)

func drainAll(src stream.TokenSource) error {
	for {
		if _, err := src.NextToken(); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

func TestWrapDisabledReturnsInner(t *testing.T) {
	inner := jsonsrc.NewBytes([]byte(`{}`))
	if got := WrapWithEnforcement(inner, EnforceOptions{}); got != inner {
		t.Fatal("expected inner source when nothing is enabled")
	}
}

func TestDuplicateError(t *testing.T) {
	src := WrapWithEnforcement(jsonsrc.NewBytes([]byte(`{"x":{"a":1,"a":2}}`)), EnforceOptions{OnDuplicate: DupError})
	err := drainAll(src)
	var ie IssueError
	if !errors.As(err, &ie) {
		t.Fatalf("err = %v", err)
	}
	if ie.Code != "duplicate_key" || ie.Path != "/x/a" {
		t.Fatalf("issue = %+v", ie.SimpleIssue)
	}
}

func TestDuplicateWarnSinks(t *testing.T) {
	var got []SimpleIssue
	src := WrapWithEnforcement(jsonsrc.NewBytes([]byte(`[{"a":1,"a":2},{"a":3}]`)), EnforceOptions{
		OnDuplicate: DupWarn,
		IssueSink:   func(si SimpleIssue) { got = append(got, si) },
	})
	if err := drainAll(src); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Path != "/0/a" {
		t.Fatalf("issues = %+v", got)
	}
}

func TestMaxDepth(t *testing.T) {
	src := WrapWithEnforcement(jsonsrc.NewBytes([]byte(`{"a":[{"b":1}]}`)), EnforceOptions{MaxDepth: 2})
	err := drainAll(src)
	var ie IssueError
	if !errors.As(err, &ie) || ie.Code != "max_depth" || ie.Path != "/a/0" {
		t.Fatalf("err = %v", err)
	}
}

func TestMaxBytes(t *testing.T) {
	in := []byte(`[1,2,3,4,5,6,7,8,9]`)
	err := drainAll(WrapWithEnforcement(jsonsrc.NewBytes(in), EnforceOptions{MaxBytes: 6}))
	var ie IssueError
	if !errors.As(err, &ie) || ie.Code != "max_bytes" {
		t.Fatalf("err = %v", err)
	}
	if err := drainAll(WrapWithEnforcement(jsonsrc.NewBytes(in), EnforceOptions{MaxBytes: int64(len(in))})); err != nil {
		t.Fatalf("input at the limit: %v", err)
	}
}

func TestDetectDuplicateKeysCap(t *testing.T) {
	in := `{"a":1,"a":2,"a":3,"a":4}`
	issues, err := DetectDuplicateKeys(jsonsrc.NewBytes([]byte(in)), EnforceOptions{}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(issues) != 3 || issues[2].Code != "truncated" {
		t.Fatalf("issues = %+v", issues)
	}
	issues, _ = DetectDuplicateKeys(jsonsrc.NewBytes([]byte(in)), EnforceOptions{}, -1)
	if len(issues) != 3 {
		t.Fatalf("unlimited issues = %d", len(issues))
	}
	issues, _ = DetectDuplicateKeys(jsonsrc.NewBytes([]byte(in)), EnforceOptions{}, 0)
	if len(issues) != 0 {
		t.Fatalf("disabled issues = %d", len(issues))
	}
}

func TestDetectStopsAtMaxDepth(t *testing.T) {
	issues, err := DetectDuplicateKeys(jsonsrc.NewBytes([]byte(`[[[1]]]`)), EnforceOptions{MaxDepth: 2}, -1)
	if err != nil {
		t.Fatal(err)
	}
	if len(issues) != 1 || issues[0].Code != "max_depth" {
		t.Fatalf("issues = %+v", issues)
	}
}

func TestDetectStopsAtMaxBytes(t *testing.T) {
	issues, err := DetectDuplicateKeys(jsonsrc.NewBytes([]byte(`{"a":1,"a":2,"bbbbbbbbbb":3}`)), EnforceOptions{MaxBytes: 16}, -1)
	if err != nil {
		t.Fatal(err)
	}
	if len(issues) != 2 || issues[0].Code != "duplicate_key" || issues[1].Code != "max_bytes" {
		t.Fatalf("issues = %+v", issues)
	}
}

// Package engine applies token-level enforcement (nesting depth, duplicate
// keys, input size) to a stream.TokenSource before values are bound.
package engine

import (
	"strconv"
	"strings"

	"github.com/reoring/jsonbind/stream"
)

// DuplicateStrictness controls duplicate key handling.
type DuplicateStrictness int

const (
	DupIgnore DuplicateStrictness = iota
	DupWarn
	DupError
)

// SimpleIssue is a lightweight issue emitted by enforcement.
type SimpleIssue struct {
	Code    string
	Path    string
	Message string
}

// IssueError is a fatal enforcement issue surfaced as an error.
type IssueError struct{ SimpleIssue }

func (e IssueError) Error() string { return e.Message + " at " + e.Path }

// EnforceOptions controls runtime enforcement behavior.
type EnforceOptions struct {
	OnDuplicate DuplicateStrictness
	MaxDepth    int
	// MaxBytes caps the input offset; it needs a source that reports
	// Location.
	MaxBytes int64
	// IssueSink receives non-fatal issues (duplicate keys under DupWarn).
	IssueSink func(SimpleIssue)
}

// Enabled reports whether any check is active.
func (o EnforceOptions) Enabled() bool {
	return o.OnDuplicate != DupIgnore || o.MaxDepth > 0 || o.MaxBytes > 0
}

type frame struct {
	object     bool
	keys       map[string]struct{}
	path       string
	nextIndex  int
	pendingKey string
}

type enforcingSource struct {
	inner stream.TokenSource
	opt   EnforceOptions
	stack []frame
}

// WrapWithEnforcement returns a TokenSource applying opt, or inner itself when
// nothing is enabled.
func WrapWithEnforcement(inner stream.TokenSource, opt EnforceOptions) stream.TokenSource {
	if !opt.Enabled() {
		return inner
	}
	return &enforcingSource{inner: inner, opt: opt}
}

func (e *enforcingSource) NextToken() (stream.Token, error) {
	tok, err := e.inner.NextToken()
	if err != nil {
		return stream.Token{}, err
	}
	path := e.pathFor(tok)

	switch tok.Kind {
	case stream.KindBeginObject, stream.KindBeginArray:
		f := frame{object: tok.Kind == stream.KindBeginObject, path: path}
		if f.object {
			f.keys = make(map[string]struct{})
		}
		e.stack = append(e.stack, f)
		if e.opt.MaxDepth > 0 && len(e.stack) > e.opt.MaxDepth {
			return stream.Token{}, e.fatal(SimpleIssue{Code: "max_depth", Path: normalizePath(path), Message: "max depth exceeded"})
		}
	case stream.KindEndObject, stream.KindEndArray:
		if n := len(e.stack); n > 0 {
			e.stack = e.stack[:n-1]
		}
	case stream.KindKey:
		if n := len(e.stack); n > 0 && e.stack[n-1].object {
			top := &e.stack[n-1]
			if e.opt.OnDuplicate != DupIgnore {
				if _, dup := top.keys[tok.String]; dup {
					si := SimpleIssue{Code: "duplicate_key", Path: normalizePath(path), Message: "key '" + tok.String + "' duplicated"}
					if e.opt.OnDuplicate == DupError {
						return stream.Token{}, e.fatal(si)
					}
					if e.opt.IssueSink != nil {
						e.opt.IssueSink(si)
					}
				}
				top.keys[tok.String] = struct{}{}
			}
			top.pendingKey = tok.String
		}
	}

	if e.opt.MaxBytes > 0 {
		if off := e.Location(); off >= 0 && off > e.opt.MaxBytes {
			return stream.Token{}, e.fatal(SimpleIssue{Code: "max_bytes", Path: normalizePath(path), Message: "max bytes exceeded"})
		}
	}
	return tok, nil
}

func (e *enforcingSource) fatal(si SimpleIssue) error {
	if e.opt.IssueSink != nil {
		e.opt.IssueSink(si)
	}
	return IssueError{si}
}

// pathFor computes the JSON Pointer of the value a token opens or belongs to.
func (e *enforcingSource) pathFor(tok stream.Token) string {
	n := len(e.stack)
	if n == 0 {
		return ""
	}
	top := &e.stack[n-1]
	switch tok.Kind {
	case stream.KindKey:
		return joinPointer(top.path, tok.String)
	case stream.KindEndObject, stream.KindEndArray:
		return top.path
	}
	if top.object {
		return joinPointer(top.path, top.pendingKey)
	}
	p := joinPointer(top.path, strconv.Itoa(top.nextIndex))
	top.nextIndex++
	return p
}

func (e *enforcingSource) Location() int64 { return e.inner.Location() }

func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	return p
}

var pointerEscaper = strings.NewReplacer("~", "~0", "/", "~1")

func joinPointer(base, token string) string {
	return base + "/" + pointerEscaper.Replace(token)
}

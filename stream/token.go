package stream

import "io"

// Kind represents token kinds produced by a TokenSource.
type Kind int

const (
	KindBeginObject Kind = iota
	KindEndObject
	KindBeginArray
	KindEndArray
	KindKey
	KindString
	KindNumber
	KindBool
	KindNull
)

func (k Kind) String() string {
	switch k {
	case KindBeginObject:
		return "begin_object"
	case KindEndObject:
		return "end_object"
	case KindBeginArray:
		return "begin_array"
	case KindEndArray:
		return "end_array"
	case KindKey:
		return "key"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindNull:
		return "null"
	default:
		return "unknown"
	}
}

// Token represents a streaming token with approximate input offset.
// Number is kept as text; converters decide how to interpret it.
type Token struct {
	Kind   Kind
	String string
	Number string
	Bool   bool
	Offset int64 // -1 when unknown
}

// TokenSource is the minimal interface a JSON tokenizer must provide.
// NextToken returns io.EOF once the input is exhausted.
type TokenSource interface {
	NextToken() (Token, error)
	Location() int64 // byte offset; -1 if unknown
}

// Driver turns raw JSON input into a TokenSource. Implementations live under
// source/ and can be swapped per engine.
type Driver interface {
	NewTokenSource(r io.Reader) TokenSource
	Name() string
}

// Framer tracks container nesting for decoders whose Token() API does not
// distinguish object keys from string values.
type Framer struct {
	stack []framerFrame
}

type framerFrame struct {
	object       bool
	expectingKey bool
}

// Open records a container start and returns its begin token.
func (f *Framer) Open(object bool, offset int64) Token {
	f.stack = append(f.stack, framerFrame{object: object, expectingKey: object})
	if object {
		return Token{Kind: KindBeginObject, Offset: offset}
	}
	return Token{Kind: KindBeginArray, Offset: offset}
}

// Close records a container end and returns its end token.
func (f *Framer) Close(object bool, offset int64) Token {
	if n := len(f.stack); n > 0 {
		f.stack = f.stack[:n-1]
	}
	f.valueDone()
	if object {
		return Token{Kind: KindEndObject, Offset: offset}
	}
	return Token{Kind: KindEndArray, Offset: offset}
}

// Str classifies a string as an object key or a string value.
func (f *Framer) Str(s string, offset int64) Token {
	if n := len(f.stack); n > 0 {
		top := &f.stack[n-1]
		if top.object && top.expectingKey {
			top.expectingKey = false
			return Token{Kind: KindKey, String: s, Offset: offset}
		}
	}
	f.valueDone()
	return Token{Kind: KindString, String: s, Offset: offset}
}

// Scalar records a non-string scalar value and returns tok unchanged.
func (f *Framer) Scalar(tok Token) Token {
	f.valueDone()
	return tok
}

func (f *Framer) valueDone() {
	if n := len(f.stack); n > 0 {
		top := &f.stack[n-1]
		if top.object && !top.expectingKey {
			top.expectingKey = true
		}
	}
}

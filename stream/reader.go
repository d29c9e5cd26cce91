package stream

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ValueType reports the kind of the value under the reader cursor.
type ValueType int

const (
	TypeNull ValueType = iota
	TypeString
	TypeInteger
	TypeDouble
	TypeBoolean
	TypeArray
	TypeObject
)

func (t ValueType) String() string {
	switch t {
	case TypeNull:
		return "null"
	case TypeString:
		return "string"
	case TypeInteger:
		return "integer"
	case TypeDouble:
		return "double"
	case TypeBoolean:
		return "boolean"
	case TypeArray:
		return "array"
	case TypeObject:
		return "object"
	default:
		return "unknown"
	}
}

// ValueReader is the cursor API converters consume. A converter's Deserialize
// is entered with the cursor on the value it must read and must consume
// exactly that value (by a ValueAs* call, SkipValue, or Begin/End pairs).
type ValueReader interface {
	BeginObject() error
	EndObject() error
	BeginArray() error
	EndArray() error
	// HasNext reports whether the current container has another entry.
	HasNext() (bool, error)
	// Next advances to the next entry of the current container (or to the
	// top-level value) and reports its type.
	Next() (ValueType, error)
	// Name returns the key of the current object entry.
	Name() string
	ValueType() ValueType
	ValueAsString() (string, error)
	ValueAsInt64() (int64, error)
	ValueAsUint64() (uint64, error)
	ValueAsFloat64() (float64, error)
	ValueAsBool() (bool, error)
	ValueAsBytes() ([]byte, error)
	// ValueAsNumber returns the literal text of a number value.
	ValueAsNumber() (string, error)
	// SkipValue discards the current value, nested containers included.
	SkipValue() error
	// PeekMetadata consumes the first entry of the current object when its key
	// equals key and its value is a string. The object itself stays current.
	PeekMetadata(key string) (string, bool, error)
	// Path renders the JSON Pointer of the current value.
	Path() string
}

// SyntaxError reports malformed or truncated input.
type SyntaxError struct {
	Path   string
	Offset int64
	Msg    string
	Err    error
}

func (e *SyntaxError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("stream: %s at %s: %v", e.Msg, pathOrRoot(e.Path), e.Err)
	}
	return fmt.Sprintf("stream: %s at %s", e.Msg, pathOrRoot(e.Path))
}

func (e *SyntaxError) Unwrap() error { return e.Err }

// ValueError reports a value that cannot be read as the requested kind.
type ValueError struct {
	Path     string
	Want     string
	Got      ValueType
	Raw      string
	Overflow bool
	Err      error
}

func (e *ValueError) Error() string {
	if e.Raw != "" {
		return fmt.Sprintf("stream: cannot read %s %q as %s at %s", e.Got, e.Raw, e.Want, pathOrRoot(e.Path))
	}
	return fmt.Sprintf("stream: cannot read %s as %s at %s", e.Got, e.Want, pathOrRoot(e.Path))
}

func (e *ValueError) Unwrap() error { return e.Err }

// ErrNoValue is returned when a value accessor is called without a current value.
var ErrNoValue = errors.New("stream: no current value")

type rframe struct {
	object bool
	name   string
	index  int
}

// Reader implements ValueReader over a TokenSource with one token of lookahead.
type Reader struct {
	src     TokenSource
	stack   []rframe
	cur     Token
	pending bool // cur holds the first token of an unconsumed value
	started bool
	peeked  Token
	hasPeek bool
}

var _ ValueReader = (*Reader)(nil)

// NewReader constructs a Reader over src.
func NewReader(src TokenSource) *Reader { return &Reader{src: src} }

func (r *Reader) read() (Token, error) {
	if r.hasPeek {
		r.hasPeek = false
		return r.peeked, nil
	}
	tok, err := r.src.NextToken()
	if err != nil {
		if errors.Is(err, io.EOF) && (len(r.stack) > 0 || r.pending) {
			return Token{}, &SyntaxError{Path: r.Path(), Offset: r.src.Location(), Msg: "unexpected end of input", Err: io.ErrUnexpectedEOF}
		}
		return Token{}, err
	}
	return tok, nil
}

func (r *Reader) unread(tok Token) {
	r.peeked = tok
	r.hasPeek = true
}

func (r *Reader) peek() (Token, error) {
	tok, err := r.read()
	if err != nil {
		return Token{}, err
	}
	r.unread(tok)
	return tok, nil
}

func (r *Reader) syntax(msg string) error {
	return &SyntaxError{Path: r.Path(), Offset: r.src.Location(), Msg: msg}
}

func (r *Reader) Next() (ValueType, error) {
	if r.pending {
		if err := r.SkipValue(); err != nil {
			return TypeNull, err
		}
	}
	if len(r.stack) == 0 {
		if r.started {
			return TypeNull, r.syntax("no more top-level values")
		}
		r.started = true
		tok, err := r.read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return TypeNull, &SyntaxError{Msg: "empty input", Offset: -1, Err: io.ErrUnexpectedEOF}
			}
			return TypeNull, err
		}
		return r.load(tok)
	}
	top := &r.stack[len(r.stack)-1]
	tok, err := r.read()
	if err != nil {
		return TypeNull, err
	}
	if top.object {
		if tok.Kind == KindEndObject {
			r.unread(tok)
			return TypeNull, r.syntax("no more entries in object")
		}
		if tok.Kind != KindKey {
			return TypeNull, r.syntax("expected object key, got " + tok.Kind.String())
		}
		top.name = tok.String
		if tok, err = r.read(); err != nil {
			return TypeNull, err
		}
	} else {
		if tok.Kind == KindEndArray {
			r.unread(tok)
			return TypeNull, r.syntax("no more elements in array")
		}
		top.index++
	}
	return r.load(tok)
}

func (r *Reader) load(tok Token) (ValueType, error) {
	switch tok.Kind {
	case KindBeginObject, KindBeginArray, KindString, KindNumber, KindBool, KindNull:
	default:
		return TypeNull, r.syntax("unexpected " + tok.Kind.String())
	}
	r.cur = tok
	r.pending = true
	return r.ValueType(), nil
}

func (r *Reader) HasNext() (bool, error) {
	if len(r.stack) == 0 {
		return !r.started, nil
	}
	if r.pending {
		if err := r.SkipValue(); err != nil {
			return false, err
		}
	}
	tok, err := r.peek()
	if err != nil {
		return false, err
	}
	return tok.Kind != KindEndObject && tok.Kind != KindEndArray, nil
}

func (r *Reader) Name() string {
	if n := len(r.stack); n > 0 && r.stack[n-1].object {
		return r.stack[n-1].name
	}
	return ""
}

func (r *Reader) ValueType() ValueType {
	switch r.cur.Kind {
	case KindBeginObject:
		return TypeObject
	case KindBeginArray:
		return TypeArray
	case KindString:
		return TypeString
	case KindNumber:
		if strings.ContainsAny(r.cur.Number, ".eE") {
			return TypeDouble
		}
		return TypeInteger
	case KindBool:
		return TypeBoolean
	default:
		return TypeNull
	}
}

func (r *Reader) begin(kind Kind, object bool) error {
	if !r.pending {
		return ErrNoValue
	}
	if r.cur.Kind != kind {
		want := "array"
		if object {
			want = "object"
		}
		return &ValueError{Path: r.Path(), Want: want, Got: r.ValueType()}
	}
	r.pending = false
	r.stack = append(r.stack, rframe{object: object})
	return nil
}

func (r *Reader) BeginObject() error { return r.begin(KindBeginObject, true) }
func (r *Reader) BeginArray() error  { return r.begin(KindBeginArray, false) }

// end drains any remaining entries of the current container and pops it.
func (r *Reader) end(object bool) error {
	n := len(r.stack)
	if n == 0 || r.stack[n-1].object != object {
		return r.syntax("mismatched container end")
	}
	for {
		more, err := r.HasNext()
		if err != nil {
			return err
		}
		if !more {
			break
		}
		if _, err := r.Next(); err != nil {
			return err
		}
		if err := r.SkipValue(); err != nil {
			return err
		}
	}
	tok, err := r.read()
	if err != nil {
		return err
	}
	if (object && tok.Kind != KindEndObject) || (!object && tok.Kind != KindEndArray) {
		return r.syntax("unexpected " + tok.Kind.String())
	}
	r.stack = r.stack[:n-1]
	return nil
}

func (r *Reader) EndObject() error { return r.end(true) }
func (r *Reader) EndArray() error  { return r.end(false) }

func (r *Reader) SkipValue() error {
	if !r.pending {
		return ErrNoValue
	}
	r.pending = false
	if r.cur.Kind != KindBeginObject && r.cur.Kind != KindBeginArray {
		return nil
	}
	depth := 1
	for depth > 0 {
		tok, err := r.read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return &SyntaxError{Path: r.Path(), Msg: "unexpected end of input", Offset: -1, Err: io.ErrUnexpectedEOF}
			}
			return err
		}
		switch tok.Kind {
		case KindBeginObject, KindBeginArray:
			depth++
		case KindEndObject, KindEndArray:
			depth--
		}
	}
	return nil
}

func (r *Reader) PeekMetadata(key string) (string, bool, error) {
	if !r.pending || r.cur.Kind != KindBeginObject {
		return "", false, nil
	}
	tok, err := r.read()
	if err != nil {
		return "", false, err
	}
	if tok.Kind != KindKey || tok.String != key {
		r.unread(tok)
		return "", false, nil
	}
	val, err := r.read()
	if err != nil {
		return "", false, err
	}
	if val.Kind != KindString {
		return "", false, &ValueError{Path: r.Path() + "/" + escapePointer(key), Want: "string", Got: kindValueType(val)}
	}
	return val.String, true, nil
}

func (r *Reader) consume(want string, kinds ...Kind) (Token, error) {
	if !r.pending {
		return Token{}, ErrNoValue
	}
	for _, k := range kinds {
		if r.cur.Kind == k {
			r.pending = false
			return r.cur, nil
		}
	}
	return Token{}, &ValueError{Path: r.Path(), Want: want, Got: r.ValueType(), Raw: rawText(r.cur)}
}

func (r *Reader) ValueAsString() (string, error) {
	tok, err := r.consume("string", KindString, KindNumber, KindBool)
	if err != nil {
		return "", err
	}
	switch tok.Kind {
	case KindNumber:
		return tok.Number, nil
	case KindBool:
		return strconv.FormatBool(tok.Bool), nil
	}
	return tok.String, nil
}

func (r *Reader) ValueAsInt64() (int64, error) {
	tok, err := r.consume("integer", KindNumber)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(tok.Number, 10, 64)
	if err != nil {
		return 0, r.numberError("integer", tok, err)
	}
	return n, nil
}

func (r *Reader) ValueAsUint64() (uint64, error) {
	tok, err := r.consume("unsigned integer", KindNumber)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(tok.Number, 10, 64)
	if err != nil {
		return 0, r.numberError("unsigned integer", tok, err)
	}
	return n, nil
}

func (r *Reader) ValueAsFloat64() (float64, error) {
	tok, err := r.consume("double", KindNumber)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(tok.Number, 64)
	if err != nil {
		return 0, r.numberError("double", tok, err)
	}
	return f, nil
}

func (r *Reader) numberError(want string, tok Token, err error) error {
	var ne *strconv.NumError
	overflow := errors.As(err, &ne) && errors.Is(ne.Err, strconv.ErrRange)
	return &ValueError{Path: r.Path(), Want: want, Got: kindValueType(tok), Raw: tok.Number, Overflow: overflow, Err: err}
}

func (r *Reader) ValueAsBool() (bool, error) {
	tok, err := r.consume("boolean", KindBool)
	if err != nil {
		return false, err
	}
	return tok.Bool, nil
}

func (r *Reader) ValueAsBytes() ([]byte, error) {
	tok, err := r.consume("base64 string", KindString)
	if err != nil {
		return nil, err
	}
	b, err := base64.StdEncoding.DecodeString(tok.String)
	if err != nil {
		return nil, &ValueError{Path: r.Path(), Want: "base64 string", Got: TypeString, Raw: tok.String, Err: err}
	}
	return b, nil
}

func (r *Reader) ValueAsNumber() (string, error) {
	tok, err := r.consume("number", KindNumber)
	if err != nil {
		return "", err
	}
	return tok.Number, nil
}

// End verifies that no data follows the top-level value.
func (r *Reader) End() error {
	if r.pending {
		if err := r.SkipValue(); err != nil {
			return err
		}
	}
	if len(r.stack) > 0 {
		return r.syntax("unterminated container")
	}
	if _, err := r.read(); err == nil {
		return &SyntaxError{Offset: r.src.Location(), Msg: "trailing data after top-level value"}
	} else if !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (r *Reader) Path() string {
	var b strings.Builder
	for _, f := range r.stack {
		b.WriteByte('/')
		if f.object {
			b.WriteString(escapePointer(f.name))
		} else {
			b.WriteString(strconv.Itoa(f.index - 1))
		}
	}
	return b.String()
}

func kindValueType(tok Token) ValueType {
	r := Reader{cur: tok}
	return r.ValueType()
}

func rawText(tok Token) string {
	switch tok.Kind {
	case KindString:
		return tok.String
	case KindNumber:
		return tok.Number
	case KindBool:
		return strconv.FormatBool(tok.Bool)
	}
	return ""
}

var pointerEscaper = strings.NewReplacer("~", "~0", "/", "~1")

func escapePointer(s string) string { return pointerEscaper.Replace(s) }

func pathOrRoot(p string) string {
	if p == "" {
		return "/"
	}
	return p
}

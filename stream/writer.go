package stream

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	j "github.com/goccy/go-json"
)

// ValueWriter is the streaming output API converters drive.
type ValueWriter interface {
	BeginObject() error
	EndObject() error
	BeginArray() error
	EndArray() error
	WriteName(name string) error
	WriteString(s string) error
	WriteInt64(n int64) error
	WriteUint64(n uint64) error
	WriteFloat64(f float64) error
	WriteBool(b bool) error
	WriteBytes(b []byte) error
	// WriteNumber writes a number literal verbatim.
	WriteNumber(text string) error
	WriteNull() error
	// SetMetadata arms a discriminator entry. It is emitted as the first member
	// of the object begun by the next value write; if that value is not an
	// object the entry is discarded.
	SetMetadata(name, value string)
	// Path renders the JSON Pointer of the value being written.
	Path() string
}

// ErrWriterState is returned when calls arrive in an order that cannot form JSON.
var ErrWriterState = errors.New("stream: invalid writer state")

// WriterOptions configures output formatting.
type WriterOptions struct {
	// Indent enables pretty printing with the given indent unit.
	Indent string
	// SkipNull drops object members whose value is null.
	SkipNull bool
}

type wframe struct {
	object  bool
	count   int
	name    string
	hasName bool
}

const flushThreshold = 32 << 10

// Writer implements ValueWriter, buffering output until Flush.
type Writer struct {
	out      io.Writer
	opt      WriterOptions
	buf      []byte
	stack    []wframe
	rootDone bool

	metaName  string
	metaValue string
	hasMeta   bool
}

var _ ValueWriter = (*Writer)(nil)

// NewWriter constructs a Writer emitting to out.
func NewWriter(out io.Writer, opt WriterOptions) *Writer {
	return &Writer{out: out, opt: opt, buf: make([]byte, 0, 512)}
}

// Flush writes buffered output to the underlying io.Writer.
func (w *Writer) Flush() error {
	if len(w.buf) == 0 {
		return nil
	}
	_, err := w.out.Write(w.buf)
	w.buf = w.buf[:0]
	return err
}

func (w *Writer) stateErr(msg string) error {
	return fmt.Errorf("%w: %s at %s", ErrWriterState, msg, pathOrRoot(w.Path()))
}

func (w *Writer) newline(depth int) {
	if w.opt.Indent == "" {
		return
	}
	w.buf = append(w.buf, '\n')
	for i := 0; i < depth; i++ {
		w.buf = append(w.buf, w.opt.Indent...)
	}
}

// beforeValue emits the separator and pending member name for a value.
func (w *Writer) beforeValue() error {
	if len(w.stack) == 0 {
		if w.rootDone {
			return w.stateErr("multiple top-level values")
		}
		w.rootDone = true
		return nil
	}
	top := &w.stack[len(w.stack)-1]
	if top.object && !top.hasName {
		return w.stateErr("object member without name")
	}
	if top.count > 0 {
		w.buf = append(w.buf, ',')
	}
	w.newline(len(w.stack))
	if top.object {
		w.buf = appendQuoted(w.buf, top.name)
		w.buf = append(w.buf, ':')
		if w.opt.Indent != "" {
			w.buf = append(w.buf, ' ')
		}
		top.hasName = false
	}
	top.count++
	return nil
}

func (w *Writer) scalar(emit func([]byte) ([]byte, error)) error {
	w.hasMeta = false
	if err := w.beforeValue(); err != nil {
		return err
	}
	b, err := emit(w.buf)
	if err != nil {
		return err
	}
	w.buf = b
	if len(w.buf) > flushThreshold {
		return w.Flush()
	}
	return nil
}

func (w *Writer) BeginObject() error {
	if err := w.beforeValue(); err != nil {
		return err
	}
	w.buf = append(w.buf, '{')
	w.stack = append(w.stack, wframe{object: true})
	if w.hasMeta {
		w.hasMeta = false
		top := &w.stack[len(w.stack)-1]
		top.name, top.hasName = w.metaName, true
		return w.WriteString(w.metaValue)
	}
	return nil
}

func (w *Writer) EndObject() error { return w.end(true, '}') }

func (w *Writer) BeginArray() error {
	w.hasMeta = false
	if err := w.beforeValue(); err != nil {
		return err
	}
	w.buf = append(w.buf, '[')
	w.stack = append(w.stack, wframe{})
	return nil
}

func (w *Writer) EndArray() error { return w.end(false, ']') }

func (w *Writer) end(object bool, c byte) error {
	n := len(w.stack)
	if n == 0 || w.stack[n-1].object != object {
		return w.stateErr("mismatched container end")
	}
	top := w.stack[n-1]
	if top.hasName {
		return w.stateErr("member name without value")
	}
	w.stack = w.stack[:n-1]
	if top.count > 0 {
		w.newline(len(w.stack))
	}
	w.buf = append(w.buf, c)
	return nil
}

func (w *Writer) WriteName(name string) error {
	n := len(w.stack)
	if n == 0 || !w.stack[n-1].object {
		return w.stateErr("name outside object")
	}
	top := &w.stack[n-1]
	if top.hasName {
		return w.stateErr("consecutive names")
	}
	top.name, top.hasName = name, true
	return nil
}

func (w *Writer) WriteNull() error {
	if n := len(w.stack); w.opt.SkipNull && n > 0 && w.stack[n-1].object && w.stack[n-1].hasName {
		w.hasMeta = false
		w.stack[n-1].hasName = false
		return nil
	}
	return w.scalar(func(b []byte) ([]byte, error) { return append(b, "null"...), nil })
}

func (w *Writer) WriteString(s string) error {
	return w.scalar(func(b []byte) ([]byte, error) { return appendQuoted(b, s), nil })
}

func (w *Writer) WriteInt64(n int64) error {
	return w.scalar(func(b []byte) ([]byte, error) { return strconv.AppendInt(b, n, 10), nil })
}

func (w *Writer) WriteUint64(n uint64) error {
	return w.scalar(func(b []byte) ([]byte, error) { return strconv.AppendUint(b, n, 10), nil })
}

func (w *Writer) WriteFloat64(f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("stream: unsupported float value %v at %s", f, pathOrRoot(w.Path()))
	}
	return w.scalar(func(b []byte) ([]byte, error) {
		enc, err := j.Marshal(f)
		if err != nil {
			return b, err
		}
		return append(b, enc...), nil
	})
}

func (w *Writer) WriteBool(v bool) error {
	return w.scalar(func(b []byte) ([]byte, error) { return strconv.AppendBool(b, v), nil })
}

func (w *Writer) WriteBytes(p []byte) error {
	return w.scalar(func(b []byte) ([]byte, error) {
		b = append(b, '"')
		b = base64.StdEncoding.AppendEncode(b, p)
		return append(b, '"'), nil
	})
}

func (w *Writer) WriteNumber(text string) error {
	if text == "" {
		return fmt.Errorf("stream: empty number literal at %s", pathOrRoot(w.Path()))
	}
	if _, err := strconv.ParseFloat(text, 64); err != nil {
		var ne *strconv.NumError
		if !errors.As(err, &ne) || !errors.Is(ne.Err, strconv.ErrRange) {
			return fmt.Errorf("stream: invalid number literal %q at %s", text, pathOrRoot(w.Path()))
		}
	}
	return w.scalar(func(b []byte) ([]byte, error) { return append(b, text...), nil })
}

func (w *Writer) SetMetadata(name, value string) {
	w.metaName, w.metaValue, w.hasMeta = name, value, true
}

func (w *Writer) Path() string {
	var b strings.Builder
	for _, f := range w.stack {
		b.WriteByte('/')
		if f.object {
			b.WriteString(escapePointer(f.name))
		} else {
			b.WriteString(strconv.Itoa(f.count))
		}
	}
	return b.String()
}

// appendQuoted escapes s as a JSON string; go-json applies the same escaping
// rules as encoding/json.
func appendQuoted(b []byte, s string) []byte {
	enc, err := j.Marshal(s)
	if err != nil {
		return strconv.AppendQuote(b, s)
	}
	return append(b, enc...)
}

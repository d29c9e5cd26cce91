// Package codec holds string wire codecs: bidirectional conversions between a
// Go value and its JSON string form. The engine adapts them into converters.
package codec

import "fmt"

// StringCodec converts between T and a JSON string.
type StringCodec[T any] interface {
	Encode(v T) (string, error)
	Decode(s string) (T, error)
}

// Func builds a StringCodec from a pair of functions.
func Func[T any](encode func(T) (string, error), decode func(string) (T, error)) StringCodec[T] {
	return &funcCodec[T]{encode: encode, decode: decode}
}

type funcCodec[T any] struct {
	encode func(T) (string, error)
	decode func(string) (T, error)
}

func (c *funcCodec[T]) Encode(v T) (string, error) { return c.encode(v) }
func (c *funcCodec[T]) Decode(s string) (T, error) { return c.decode(s) }

// FormatError reports a string that does not match the expected format.
type FormatError struct {
	Format string
	Value  string
	Err    error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("codec: invalid %s %q: %v", e.Format, e.Value, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

package json

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strconv"

	"github.com/reoring/jsonbind/stream"
)

// Driver returns a stream.Driver backed by encoding/json.
func Driver() stream.Driver { return driver{} }

type driver struct{}

func (driver) NewTokenSource(r io.Reader) stream.TokenSource { return NewReader(r) }
func (driver) Name() string                                  { return "encoding/json" }

type jsonSource struct {
	dec        *json.Decoder
	framer     stream.Framer
	lastOffset int64
}

// NewReader wraps an io.Reader into a stream.TokenSource for JSON.
func NewReader(r io.Reader) stream.TokenSource {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return &jsonSource{dec: dec, lastOffset: -1}
}

// NewBytes wraps a byte slice into a stream.TokenSource for JSON.
func NewBytes(b []byte) stream.TokenSource { return NewReader(bytes.NewReader(b)) }

func (s *jsonSource) NextToken() (stream.Token, error) {
	tok, err := s.dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return stream.Token{}, io.EOF
		}
		return stream.Token{}, err
	}
	s.lastOffset = s.dec.InputOffset()

	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			return s.framer.Open(true, s.lastOffset), nil
		case '}':
			return s.framer.Close(true, s.lastOffset), nil
		case '[':
			return s.framer.Open(false, s.lastOffset), nil
		case ']':
			return s.framer.Close(false, s.lastOffset), nil
		}
	case string:
		return s.framer.Str(v, s.lastOffset), nil
	case bool:
		return s.framer.Scalar(stream.Token{Kind: stream.KindBool, Bool: v, Offset: s.lastOffset}), nil
	case json.Number:
		return s.framer.Scalar(stream.Token{Kind: stream.KindNumber, Number: string(v), Offset: s.lastOffset}), nil
	case float64:
		return s.framer.Scalar(stream.Token{Kind: stream.KindNumber, Number: formatFloat(v), Offset: s.lastOffset}), nil
	}
	return s.framer.Scalar(stream.Token{Kind: stream.KindNull, Offset: s.lastOffset}), nil
}

func (s *jsonSource) Location() int64 { return s.lastOffset }

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }

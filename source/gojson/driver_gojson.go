package gojson

import (
	"bytes"
	"errors"
	"io"
	"strconv"

	j "github.com/goccy/go-json"

	"github.com/reoring/jsonbind/stream"
)

// Driver returns a stream.Driver backed by goccy/go-json.
func Driver() stream.Driver { return driverGoJSON{} }

type driverGoJSON struct{}

func (driverGoJSON) NewTokenSource(r io.Reader) stream.TokenSource { return NewReader(r) }
func (driverGoJSON) Name() string                                  { return "go-json" }

type source struct {
	dec        *j.Decoder
	framer     stream.Framer
	lastOffset int64
}

// NewReader wraps an io.Reader into a stream.TokenSource for JSON using go-json.
func NewReader(r io.Reader) stream.TokenSource {
	dec := j.NewDecoder(r)
	dec.UseNumber()
	return &source{dec: dec, lastOffset: -1}
}

// NewBytes wraps a byte slice into a stream.TokenSource for JSON using go-json.
func NewBytes(b []byte) stream.TokenSource { return NewReader(bytes.NewReader(b)) }

func (s *source) NextToken() (stream.Token, error) {
	tok, err := s.dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return stream.Token{}, io.EOF
		}
		return stream.Token{}, err
	}
	s.lastOffset = s.dec.InputOffset()
	off := s.lastOffset
	switch v := tok.(type) {
	case j.Delim:
		switch v {
		case '{':
			return s.framer.Open(true, off), nil
		case '}':
			return s.framer.Close(true, off), nil
		case '[':
			return s.framer.Open(false, off), nil
		case ']':
			return s.framer.Close(false, off), nil
		}
	case string:
		return s.framer.Str(v, off), nil
	case bool:
		return s.framer.Scalar(stream.Token{Kind: stream.KindBool, Bool: v, Offset: off}), nil
	case j.Number:
		return s.framer.Scalar(stream.Token{Kind: stream.KindNumber, Number: string(v), Offset: off}), nil
	case float64:
		return s.framer.Scalar(stream.Token{Kind: stream.KindNumber, Number: strconv.FormatFloat(v, 'g', -1, 64), Offset: off}), nil
	}
	return s.framer.Scalar(stream.Token{Kind: stream.KindNull, Offset: off}), nil
}

func (s *source) Location() int64 { return s.lastOffset }

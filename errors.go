package jsonbind

import (
	"errors"
	"fmt"
	"strings"

	"github.com/reoring/jsonbind/internal/engine"
	"github.com/reoring/jsonbind/stream"
)

// Error codes (exported consts for IDE completion and type safety by convention)
const (
	// Resolution
	CodeNoConverter = "no_converter"
	// Descriptor build
	CodeAmbiguousCreator  = "ambiguous_creator"
	CodeAmbiguousProperty = "ambiguous_property"
	CodeMissingParamNames = "missing_param_names"
	CodeInvalidDefinition = "invalid_definition"
	// Construction
	CodeConstructionFailed = "construction_failed"
	CodeMutatorFailed      = "mutator_failed"
	CodeAccessorFailed     = "accessor_failed"
	CodeNotConstructible   = "not_constructible"
	CodeMissingCreatorArg  = "missing_creator_arg"
	// Schema mismatch
	CodeUnknownProperty = "unknown_property"
	// Conversion
	CodeInvalidType          = "invalid_type"
	CodeInvalidValue         = "invalid_value"
	CodeOverflow             = "overflow"
	CodeUnknownDiscriminator = "unknown_discriminator"
	// Stream and policy
	CodeCycle        = "cycle"
	CodeMaxDepth     = "max_depth"
	CodeMaxBytes     = "max_bytes"
	CodeParseError   = "parse_error"
	CodeDuplicateKey = "duplicate_key"
	CodeWriteError   = "write_error"
)

// Error is the single error type surfaced by the engine. It carries enough
// context (type, property, member signature, JSON Pointer) to diagnose a
// failure without the raw stream position.
type Error struct {
	Code     string
	Type     string // owning or target type
	Property string // property name, when known
	Member   string // member or creator signature, when relevant
	Path     string // JSON Pointer of the value being converted
	Value    string // offending raw value, when relevant
	Message  string
	Cause    error
}

func (e *Error) Error() string {
	b := &strings.Builder{}
	b.WriteString("jsonbind: ")
	b.WriteString(e.Code)
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	var ctx []string
	if e.Type != "" {
		ctx = append(ctx, "type="+e.Type)
	}
	if e.Property != "" {
		ctx = append(ctx, "property="+e.Property)
	}
	if e.Member != "" {
		ctx = append(ctx, "member="+e.Member)
	}
	if e.Value != "" {
		ctx = append(ctx, fmt.Sprintf("value=%q", e.Value))
	}
	if e.Path != "" {
		ctx = append(ctx, "path="+e.Path)
	}
	if len(ctx) > 0 {
		fmt.Fprintf(b, " (%s)", strings.Join(ctx, ", "))
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches another *Error by code, so errors.Is(err, &Error{Code: c}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code && t.Type == "" && t.Property == ""
}

// AsError extracts the engine Error from err using errors.As internally.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// HasCode reports whether err carries an engine Error with the given code.
func HasCode(err error, code string) bool {
	e, ok := AsError(err)
	return ok && e.Code == code
}

func newError(code string, t fmt.Stringer, msg string) *Error {
	e := &Error{Code: code, Message: msg}
	if t != nil {
		e.Type = t.String()
	}
	return e
}

// wrapReadError maps stream and enforcement failures onto engine errors.
func wrapReadError(err error, target string) error {
	if err == nil {
		return nil
	}
	if _, ok := AsError(err); ok {
		return err
	}
	var ve *stream.ValueError
	if errors.As(err, &ve) {
		code := CodeInvalidType
		switch {
		case ve.Overflow:
			code = CodeOverflow
		case ve.Err != nil:
			code = CodeInvalidValue
		}
		return &Error{Code: code, Type: target, Path: ve.Path, Value: ve.Raw, Message: "cannot read " + ve.Got.String() + " as " + ve.Want, Cause: ve.Err}
	}
	var ie engine.IssueError
	if errors.As(err, &ie) {
		return &Error{Code: ie.Code, Type: target, Path: ie.Path, Message: ie.Message}
	}
	var se *stream.SyntaxError
	if errors.As(err, &se) {
		return &Error{Code: CodeParseError, Type: target, Path: se.Path, Message: se.Msg, Cause: se.Err}
	}
	return &Error{Code: CodeParseError, Type: target, Message: "malformed input", Cause: err}
}

func wrapWriteError(err error, target string, path string) error {
	if err == nil {
		return nil
	}
	if _, ok := AsError(err); ok {
		return err
	}
	return &Error{Code: CodeWriteError, Type: target, Path: path, Cause: err}
}

package jsonbind

// NumberMode dictates how numbers are materialized when the target is an
// untyped value (any, map[string]any, []any).
type NumberMode int

const (
	NumberFloat64    NumberMode = iota // Fast mode (with potential precision loss).
	NumberJSONNumber                   // Preserve the literal as json.Number.
)

// Severity expresses how a policy violation is treated.
type Severity int

const (
	Ignore Severity = iota
	Warn
	Fail
)

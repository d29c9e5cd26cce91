package jsonbind

import (
	"maps"
	"reflect"
	"sort"
	"strings"

	"github.com/reoring/jsonbind/types"
)

// Verdict is a resolver's answer. Unknown defers to the next resolver.
type Verdict int8

const (
	Unknown Verdict = iota
	Yes
	No
)

func (v Verdict) String() string {
	switch v {
	case Yes:
		return "yes"
	case No:
		return "no"
	default:
		return "unknown"
	}
}

// MemberKind classifies the candidate presented to resolvers.
type MemberKind int

const (
	MemberField MemberKind = iota
	MemberMethod
	MemberCreator
	MemberParameter
)

// Member is a candidate struct member, method, creator or creator parameter
// presented to the resolver chains.
type Member struct {
	Kind MemberKind
	// Owner is the type being introspected; Declaring is the type whose
	// declaration the member comes from (an embedded struct for promoted ones).
	Owner     reflect.Type
	Declaring reflect.Type
	// GoName is the field or method identifier, the creator's function name,
	// or the raw parameter name.
	GoName string
	Tag    reflect.StructTag
	// Func is the method (receiver first) or creator signature.
	Func reflect.Type
	// Type is the field or parameter type.
	Type reflect.Type
	// Index is the parameter position for MemberParameter.
	Index int
}

// Priorities used when candidates from the same declaring type collide.
const (
	PriorityField  = 0
	PriorityMethod = 10
)

// Property is what accessors, mutators and creator parameters share.
type Property struct {
	Name      string
	Type      types.Type
	Declaring reflect.Type
	// Concrete is the most-derived type the property was found on.
	Concrete reflect.Type
	Priority int
	// Meta holds options collected from tags and directives ("string",
	// "converter", "view", "omitempty"), merged across shadowed candidates.
	Meta map[string]string
	// Member is the Go identifier the property was derived from.
	Member string

	embed []int
}

// Option returns the metadata entry for key.
func (p *Property) Option(key string) (string, bool) {
	v, ok := p.Meta[key]
	return v, ok
}

func (p *Property) mergeMeta(from map[string]string) {
	if len(from) == 0 {
		return
	}
	// Copy first: the map may be shared with the candidate of another role.
	meta := maps.Clone(p.Meta)
	if meta == nil {
		meta = map[string]string{}
	}
	for k, v := range from {
		if _, ok := meta[k]; !ok {
			meta[k] = v
		}
	}
	p.Meta = meta
}

// contextKey is the part of the metadata that changes converter resolution.
func (p *Property) contextKey() contextKey {
	var k contextKey
	k.converter = p.Meta[optConverter]
	k.view = p.Meta[optView]
	_, k.quoted = p.Meta[optString]
	return k
}

// Accessor reads one named property from a bean.
type Accessor struct {
	Property
	get  func(bean reflect.Value) (reflect.Value, error)
	conv Converter
}

// Get reads the property from bean, which must be addressable.
func (a *Accessor) Get(bean reflect.Value) (reflect.Value, error) { return a.get(bean) }

// Converter returns the converter bound to the property.
func (a *Accessor) Converter() Converter { return a.conv }

// Mutator writes one named property. Creator properties are pseudo-mutators
// that fill a creator argument instead of touching the instance.
type Mutator struct {
	Property
	set          func(bean, v reflect.Value) error
	conv         Converter
	creatorIndex int
}

// IsCreatorProperty reports whether the mutator feeds a creator argument.
func (m *Mutator) IsCreatorProperty() bool { return m.creatorIndex >= 0 }

// Set applies v to bean, which must be addressable.
func (m *Mutator) Set(bean, v reflect.Value) error {
	if m.set == nil {
		return &Error{Code: CodeInvalidDefinition, Type: m.Concrete.String(), Property: m.Name, Message: "creator property has no ordinary mutator"}
	}
	return m.set(bean, v)
}

// Converter returns the converter bound to the property.
func (m *Mutator) Converter() Converter { return m.conv }

// Creator instantiates a bean from positional, named arguments.
type Creator struct {
	Signature string
	Params    []Property
	Priority  int
	Primary   bool

	fn  reflect.Value // invalid for the zero-value creator
	out reflect.Type
}

const zeroCreatorName = "new"

// candidate is one member accepted by the resolver chain, before merging.
type candidate struct {
	Property
	get func(bean reflect.Value) (reflect.Value, error)
	set func(bean, v reflect.Value) error
}

// embedRelation compares two embedding paths. A path that is a prefix of the
// other belongs to the more derived declaration.
func embedRelation(a, b []int) (aWins, related bool) {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false, false
		}
	}
	return len(a) < len(b), true
}

// mergeCandidates folds same-named candidates into one winner: the more
// derived declaration wins, then the higher priority. Unrelated declarations
// are ambiguous.
func mergeCandidates(owner reflect.Type, role string, cands []candidate) (map[string]candidate, error) {
	out := map[string]candidate{}
	for _, c := range cands {
		cur, ok := out[c.Name]
		if !ok {
			out[c.Name] = c
			continue
		}
		winner, loser := cur, c
		switch cWins, related := embedRelation(c.embed, cur.embed); {
		case !related:
			return nil, &Error{
				Code:     CodeAmbiguousProperty,
				Type:     owner.String(),
				Property: c.Name,
				Member:   cur.Declaring.String() + "." + cur.Member + " vs " + c.Declaring.String() + "." + c.Member,
				Message:  role + " declared by unrelated embedded types",
			}
		case cWins:
			winner, loser = c, cur
		case len(c.embed) == len(cur.embed) && c.Priority > cur.Priority:
			winner, loser = c, cur
		}
		winner.mergeMeta(loser.Meta)
		out[c.Name] = winner
	}
	return out, nil
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// lowerLead lowers the leading run of capitals, keeping the last one when it
// starts the next word: URLPath becomes urlPath, ID becomes id.
func lowerLead(s string) string {
	run := 0
	for run < len(s) && s[run] >= 'A' && s[run] <= 'Z' {
		run++
	}
	switch {
	case run == 0:
		return s
	case run == len(s):
		return strings.ToLower(s)
	case run > 1:
		run--
	}
	return strings.ToLower(s[:run]) + s[run:]
}

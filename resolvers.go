package jsonbind

import (
	"reflect"
	"strings"
)

// PropertyResolver classifies members. The first resolver in the chain that
// answers anything but Unknown decides.
type PropertyResolver interface {
	Accessor(m Member) Verdict
	Mutator(m Member) Verdict
	Creator(m Member) Verdict
}

// NameResolver computes the external name of an accepted member. Returning
// false defers to the next resolver.
type NameResolver interface {
	Name(m Member) (string, bool)
}

// Tag and directive option keys.
const (
	optName      = "name"
	optInclude   = "include"
	optExclude   = "exclude"
	optReadOnly  = "readonly"
	optWriteOnly = "writeonly"
	optString    = "string"
	optConverter = "converter"
	optView      = "view"
	optOmitEmpty = "omitempty"
)

// parseOptions splits "name=x,include,converter=y" into a map. Bare words map
// to the empty string.
func parseOptions(s string) map[string]string {
	if s == "" {
		return nil
	}
	out := map[string]string{}
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		k, v, _ := strings.Cut(p, "=")
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out
}

// jsonTag returns the name and options of a json struct tag; "-" excludes.
func jsonTag(tag reflect.StructTag) (name string, opts map[string]string, excluded bool) {
	jt, ok := tag.Lookup("json")
	if !ok {
		return "", nil, false
	}
	if jt == "-" {
		return "", nil, true
	}
	name, rest, _ := strings.Cut(jt, ",")
	opts = map[string]string{}
	for _, o := range strings.Split(rest, ",") {
		switch o {
		case optString, optOmitEmpty:
			opts[o] = ""
		}
	}
	return name, opts, false
}

// tagResolver reads jsonbind and json struct tags. jsonbind options outrank
// json ones.
type tagResolver struct{}

func (tagResolver) verdict(m Member, role string) Verdict {
	if m.Kind != MemberField {
		return Unknown
	}
	opts := parseOptions(m.Tag.Get("jsonbind"))
	if _, ok := opts[optExclude]; ok {
		return No
	}
	if _, ok := opts[optReadOnly]; ok && role == "mutator" {
		return No
	}
	if _, ok := opts[optWriteOnly]; ok && role == "accessor" {
		return No
	}
	if _, ok := opts[optInclude]; ok {
		return Yes
	}
	if _, _, excluded := jsonTag(m.Tag); excluded {
		return No
	}
	return Unknown
}

func (r tagResolver) Accessor(m Member) Verdict { return r.verdict(m, "accessor") }
func (r tagResolver) Mutator(m Member) Verdict  { return r.verdict(m, "mutator") }
func (tagResolver) Creator(Member) Verdict      { return Unknown }

func (tagResolver) Name(m Member) (string, bool) {
	if m.Kind != MemberField {
		return "", false
	}
	if n := parseOptions(m.Tag.Get("jsonbind"))[optName]; n != "" {
		return n, true
	}
	if n, _, _ := jsonTag(m.Tag); n != "" {
		return n, true
	}
	return "", false
}

type directiveKey struct {
	owner  reflect.Type
	member string
}

// directiveResolver applies Builder member directives. A directive on a
// declaring type also applies where that type is embedded.
type directiveResolver struct {
	opts map[directiveKey]map[string]string
}

func (d directiveResolver) lookup(m Member) map[string]string {
	if o, ok := d.opts[directiveKey{m.Owner, m.GoName}]; ok {
		return o
	}
	if m.Declaring != nil && m.Declaring != m.Owner {
		return d.opts[directiveKey{m.Declaring, m.GoName}]
	}
	return nil
}

func (d directiveResolver) verdict(m Member, role string) Verdict {
	opts := d.lookup(m)
	if opts == nil {
		return Unknown
	}
	if _, ok := opts[optExclude]; ok {
		return No
	}
	if _, ok := opts[optReadOnly]; ok && role == "mutator" {
		return No
	}
	if _, ok := opts[optWriteOnly]; ok && role == "accessor" {
		return No
	}
	if _, ok := opts[optInclude]; ok {
		return Yes
	}
	return Unknown
}

func (d directiveResolver) Accessor(m Member) Verdict { return d.verdict(m, "accessor") }
func (d directiveResolver) Mutator(m Member) Verdict  { return d.verdict(m, "mutator") }
func (d directiveResolver) Creator(m Member) Verdict  { return d.verdict(m, "creator") }

func (d directiveResolver) Name(m Member) (string, bool) {
	if n := d.lookup(m)[optName]; n != "" {
		return n, true
	}
	return "", false
}

// conventionResolver is the catch-all: exported fields are read and written,
// GetX and IsX methods are accessors, SetX methods are mutators, and every
// registered creator is a candidate. It never answers Unknown.
type conventionResolver struct{}

func (conventionResolver) Accessor(m Member) Verdict {
	switch m.Kind {
	case MemberField:
		return Yes
	case MemberMethod:
		if _, ok := accessorName(m.GoName, m.Func); ok {
			return Yes
		}
	}
	return No
}

func (conventionResolver) Mutator(m Member) Verdict {
	switch m.Kind {
	case MemberField:
		return Yes
	case MemberMethod:
		if _, ok := mutatorName(m.GoName, m.Func); ok {
			return Yes
		}
	}
	return No
}

func (conventionResolver) Creator(Member) Verdict { return Yes }

func (conventionResolver) Name(m Member) (string, bool) {
	switch m.Kind {
	case MemberField:
		return lowerLead(m.GoName), true
	case MemberMethod:
		if n, ok := accessorName(m.GoName, m.Func); ok {
			return n, true
		}
		if n, ok := mutatorName(m.GoName, m.Func); ok {
			return n, true
		}
		return lowerLead(trimAny(m.GoName, "Get", "Is", "Set")), true
	}
	return m.GoName, true
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// getterShape reports whether fn (receiver first) takes nothing and returns a
// value, optionally followed by an error.
func getterShape(fn reflect.Type) bool {
	if fn == nil || fn.NumIn() != 1 {
		return false
	}
	switch fn.NumOut() {
	case 1:
		return fn.Out(0) != errorType
	case 2:
		return fn.Out(1) == errorType
	}
	return false
}

// setterShape reports whether fn (receiver first) takes one value and returns
// nothing or an error.
func setterShape(fn reflect.Type) bool {
	if fn == nil || fn.NumIn() != 2 {
		return false
	}
	return fn.NumOut() == 0 || (fn.NumOut() == 1 && fn.Out(0) == errorType)
}

func accessorName(method string, fn reflect.Type) (string, bool) {
	if !getterShape(fn) {
		return "", false
	}
	if rest, ok := prefixed(method, "Get"); ok {
		return lowerLead(rest), true
	}
	if rest, ok := prefixed(method, "Is"); ok && fn.Out(0).Kind() == reflect.Bool {
		return lowerLead(rest), true
	}
	return "", false
}

func mutatorName(method string, fn reflect.Type) (string, bool) {
	if !setterShape(fn) {
		return "", false
	}
	if rest, ok := prefixed(method, "Set"); ok {
		return lowerLead(rest), true
	}
	return "", false
}

func prefixed(s, prefix string) (string, bool) {
	rest, ok := strings.CutPrefix(s, prefix)
	if !ok || rest == "" || rest[0] < 'A' || rest[0] > 'Z' {
		return "", false
	}
	return rest, true
}

func trimAny(s string, prefixes ...string) string {
	for _, p := range prefixes {
		if rest, ok := prefixed(s, p); ok {
			return rest
		}
	}
	return s
}

// chains bundles the resolver chains of an engine.
type chains struct {
	props []PropertyResolver
	names []NameResolver
}

func (c chains) decide(m Member, ask func(PropertyResolver, Member) Verdict) bool {
	for _, r := range c.props {
		if v := ask(r, m); v != Unknown {
			return v == Yes
		}
	}
	return false
}

func (c chains) accessor(m Member) bool {
	return c.decide(m, PropertyResolver.Accessor)
}

func (c chains) mutator(m Member) bool {
	return c.decide(m, PropertyResolver.Mutator)
}

func (c chains) creator(m Member) bool {
	return c.decide(m, PropertyResolver.Creator)
}

func (c chains) name(m Member) string {
	for _, r := range c.names {
		if n, ok := r.Name(m); ok && n != "" {
			return n
		}
	}
	return m.GoName
}

// memberMeta collects the resolution-relevant options of a member from its
// tags and directives.
func memberMeta(m Member, d directiveResolver) map[string]string {
	out := map[string]string{}
	if m.Kind == MemberField {
		_, jopts, _ := jsonTag(m.Tag)
		for k, v := range jopts {
			out[k] = v
		}
		for k, v := range parseOptions(m.Tag.Get("jsonbind")) {
			out[k] = v
		}
	}
	for k, v := range d.lookup(m) {
		out[k] = v
	}
	for _, k := range []string{optName, optInclude, optExclude, optReadOnly, optWriteOnly} {
		delete(out, k)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

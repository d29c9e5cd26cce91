package jsonbind

import (
	"maps"
	"slices"

	"github.com/reoring/jsonbind/types"
)

type matchFactory struct {
	pattern types.Type
	f       Factory
}

// registry holds user converters and factories consulted before built-ins.
type registry struct {
	exact     map[types.Type]Converter
	factories map[types.Type]Factory
	origins   map[string]Factory
	matches   []matchFactory
}

func newRegistry() *registry {
	return &registry{
		exact:     map[types.Type]Converter{},
		factories: map[types.Type]Factory{},
		origins:   map[string]Factory{},
	}
}

func (r *registry) clone() *registry {
	return &registry{
		exact:     maps.Clone(r.exact),
		factories: maps.Clone(r.factories),
		origins:   maps.Clone(r.origins),
		matches:   slices.Clone(r.matches),
	}
}

// terminal consults the registry in order: exact converter, exact factory,
// origin factory, pattern factories, then built-ins and the bean fallback.
func (res *resolution) terminal(req request) (Converter, error) {
	reg := res.e.registry
	t := req.t
	if c, ok := reg.exact[t]; ok {
		return c, nil
	}
	if f, ok := reg.factories[t]; ok {
		if c, err := f.Create(t, res); c != nil || err != nil {
			return c, factoryError(err, t)
		}
	}
	if f, ok := reg.origins[t.Origin()]; ok {
		if c, err := f.Create(t, res); c != nil || err != nil {
			return c, factoryError(err, t)
		}
	}
	for _, m := range reg.matches {
		if !types.Match(t, m.pattern, false) {
			continue
		}
		if c, err := m.f.Create(t, res); c != nil || err != nil {
			return c, factoryError(err, t)
		}
	}
	return res.builtin(req)
}

func factoryError(err error, t types.Type) error {
	if err == nil {
		return nil
	}
	if _, ok := AsError(err); ok {
		return err
	}
	return &Error{Code: CodeNoConverter, Type: t.String(), Message: "factory failed", Cause: err}
}

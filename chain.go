package jsonbind

import (
	"reflect"

	"github.com/reoring/jsonbind/stream"
	"github.com/reoring/jsonbind/types"
)

// contextKey is the property context a converter is requested in. The zero
// value is a bare type request.
type contextKey struct {
	converter string
	view      string
	quoted    bool
}

// elementKey is the context passed to container elements: views carry over,
// property-level overrides do not.
func (k contextKey) elementKey() contextKey { return contextKey{view: k.view} }

type request struct {
	t   types.Type
	ctx contextKey
}

// stage decorates or replaces the converter the rest of the chain produces.
type stage func(req request, res *resolution, next func() (Converter, error)) (Converter, error)

// resolution is the state of one top-level converter resolution. Converters
// built here are published to the engine cache only when it completes.
type resolution struct {
	e          *Engine
	inProgress map[request]*forwardConverter
	built      map[request]Converter
	descs      map[reflect.Type]*BeanDescriptor
}

func (e *Engine) newResolution() *resolution {
	return &resolution{
		e:          e,
		inProgress: map[request]*forwardConverter{},
		built:      map[request]Converter{},
		descs:      map[reflect.Type]*BeanDescriptor{},
	}
}

// Converter implements Provider for factories.
func (res *resolution) Converter(t types.Type) (Converter, error) {
	return res.resolve(request{t: t})
}

func (res *resolution) resolve(req request) (Converter, error) {
	if c, ok := res.e.converters.Load(req); ok {
		return c.(Converter), nil
	}
	if c, ok := res.built[req]; ok {
		return c, nil
	}
	if f, ok := res.inProgress[req]; ok {
		return f, nil
	}
	f := &forwardConverter{t: req.t}
	res.inProgress[req] = f
	c, err := res.run(req, 0)
	delete(res.inProgress, req)
	if err != nil {
		return nil, err
	}
	f.target = c
	res.built[req] = c
	return c, nil
}

func (res *resolution) run(req request, i int) (Converter, error) {
	stages := res.e.stages
	if i == len(stages) {
		return res.terminal(req)
	}
	return stages[i](req, res, func() (Converter, error) { return res.run(req, i+1) })
}

// publish stores every converter built by res, keeping instances someone
// else published first.
func (res *resolution) publish() {
	for req, c := range res.built {
		res.e.converters.LoadOrStore(req, c)
	}
	for rt, d := range res.descs {
		res.e.descriptors.LoadOrStore(rt, descriptorResult{desc: d})
	}
}

// forwardConverter stands in for a converter still being resolved. It is
// bound before the resolution publishes anything.
type forwardConverter struct {
	t      types.Type
	target Converter
}

func (f *forwardConverter) Serialize(v reflect.Value, w stream.ValueWriter, ctx *Context) error {
	if f.target == nil {
		return &Error{Code: CodeNoConverter, Type: f.t.String(), Message: "unresolved forward reference"}
	}
	return f.target.Serialize(v, w, ctx)
}

func (f *forwardConverter) Deserialize(r stream.ValueReader, ctx *Context) (reflect.Value, error) {
	if f.target == nil {
		return reflect.Value{}, &Error{Code: CodeNoConverter, Type: f.t.String(), Message: "unresolved forward reference"}
	}
	return f.target.Deserialize(r, ctx)
}

type descriptorResult struct {
	desc *BeanDescriptor
	err  error
}

// descriptor returns the bean descriptor of rt. Failures are cached for the
// life of the engine.
func (res *resolution) descriptor(rt reflect.Type) (*BeanDescriptor, error) {
	if v, ok := res.e.descriptors.Load(rt); ok {
		r := v.(descriptorResult)
		return r.desc, r.err
	}
	if d, ok := res.descs[rt]; ok {
		return d, nil
	}
	d, err := res.introspect(rt)
	if err != nil {
		if _, ok := AsError(err); !ok {
			err = &Error{Code: CodeInvalidDefinition, Type: rt.String(), Cause: err}
		}
		v, _ := res.e.descriptors.LoadOrStore(rt, descriptorResult{err: err})
		r := v.(descriptorResult)
		return r.desc, r.err
	}
	res.descs[rt] = d
	return d, nil
}

// stagesFor assembles the chain in its fixed order; optional stages are left
// out when disabled.
func stagesFor(cfg settings) []stage {
	out := []stage{nullStage}
	if cfg.RuntimeType {
		out = append(out, runtimeStage)
	}
	if cfg.TypeMetadata {
		out = append(out, metadataStage)
	}
	if cfg.Views {
		out = append(out, viewStage)
	}
	return append(out, contextualStage)
}

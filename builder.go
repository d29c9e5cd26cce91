package jsonbind

import (
	"errors"
	"fmt"
	"maps"
	"reflect"
	"slices"

	"go.uber.org/zap"

	"github.com/reoring/jsonbind/source"
	"github.com/reoring/jsonbind/stream"
	"github.com/reoring/jsonbind/types"
)

// settings is the resolved engine configuration.
type settings struct {
	Strict                   bool
	SkipNull                 bool
	RuntimeType              bool
	TypeMetadata             bool
	Views                    bool
	MetadataKey              string
	MaxDepth                 int
	MaxBytes                 int64
	Duplicates               Severity
	NumberMode               NumberMode
	Indent                   string
	FailOnMissingParamNames  bool
	FailOnMissingCreatorArgs bool
	Driver                   string
}

func defaultSettings() settings {
	return settings{RuntimeType: true, Views: true, MetadataKey: "@type", Driver: "json"}
}

// Builder collects engine configuration. It is not safe for concurrent use
// and should be discarded after Build.
type Builder struct {
	cfg    settings
	log    *zap.Logger
	driver stream.Driver
	errs   []error

	registry      *registry
	named         map[string]Converter
	views         map[string]*View
	defaultViews  map[reflect.Type]*View
	aliases       *aliasTable
	cfgAliases    map[string]string
	noMetadata    map[reflect.Type]bool
	nullDefaults  map[reflect.Type]reflect.Value
	creators      map[reflect.Type][]creatorSpec
	noZeroCreator map[reflect.Type]bool
	directives    map[directiveKey]map[string]string
	props         []PropertyResolver
	names         []NameResolver
}

// NewBuilder returns a Builder with default settings: lenient reads, runtime
// type dispatch on, type metadata off, the encoding/json driver.
func NewBuilder() *Builder {
	return &Builder{
		cfg:           defaultSettings(),
		registry:      newRegistry(),
		named:         map[string]Converter{},
		views:         map[string]*View{},
		defaultViews:  map[reflect.Type]*View{},
		aliases:       newAliasTable(),
		cfgAliases:    map[string]string{},
		noMetadata:    map[reflect.Type]bool{},
		nullDefaults:  map[reflect.Type]reflect.Value{},
		creators:      map[reflect.Type][]creatorSpec{},
		noZeroCreator: map[reflect.Type]bool{},
		directives:    map[directiveKey]map[string]string{},
	}
}

func (b *Builder) fail(err error) *Builder {
	b.errs = append(b.errs, err)
	return b
}

// sampleType maps a sample to the type it stands for. Pointers to structs and
// interfaces stand for their element; reflect.Type and types.Type are taken
// as given.
func sampleType(sample any) reflect.Type {
	switch s := sample.(type) {
	case reflect.Type:
		return s
	case types.Type:
		return s.RawType()
	}
	rt := reflect.TypeOf(sample)
	if rt != nil && rt.Kind() == reflect.Pointer {
		if k := rt.Elem().Kind(); k == reflect.Struct || k == reflect.Interface {
			return rt.Elem()
		}
	}
	return rt
}

func (b *Builder) WithStrict(on bool) *Builder       { b.cfg.Strict = on; return b }
func (b *Builder) WithSkipNull(on bool) *Builder     { b.cfg.SkipNull = on; return b }
func (b *Builder) WithRuntimeType(on bool) *Builder  { b.cfg.RuntimeType = on; return b }
func (b *Builder) WithTypeMetadata(on bool) *Builder { b.cfg.TypeMetadata = on; return b }
func (b *Builder) WithViews(on bool) *Builder        { b.cfg.Views = on; return b }
func (b *Builder) WithMetadataKey(key string) *Builder {
	if key == "" {
		return b.fail(errors.New("metadata key must not be empty"))
	}
	b.cfg.MetadataKey = key
	return b
}
func (b *Builder) WithMaxDepth(n int) *Builder              { b.cfg.MaxDepth = n; return b }
func (b *Builder) WithMaxBytes(n int64) *Builder            { b.cfg.MaxBytes = n; return b }
func (b *Builder) WithDuplicateKeys(s Severity) *Builder    { b.cfg.Duplicates = s; return b }
func (b *Builder) WithNumberMode(m NumberMode) *Builder     { b.cfg.NumberMode = m; return b }
func (b *Builder) WithIndent(indent string) *Builder        { b.cfg.Indent = indent; return b }
func (b *Builder) WithLogger(l *zap.Logger) *Builder        { b.log = l; return b }
func (b *Builder) WithJSONDriver(d stream.Driver) *Builder  { b.driver = d; return b }
func (b *Builder) WithFailOnMissingParamNames(on bool) *Builder {
	b.cfg.FailOnMissingParamNames = on
	return b
}

// WithFailOnMissingCreatorArgs makes absent creator arguments an error
// instead of zero values.
func (b *Builder) WithFailOnMissingCreatorArgs(on bool) *Builder {
	b.cfg.FailOnMissingCreatorArgs = on
	return b
}

// WithConfig applies a loaded Config over the current settings.
func (b *Builder) WithConfig(c Config) *Builder {
	s, err := c.settings()
	if err != nil {
		return b.fail(err)
	}
	b.cfg = s
	for alias, name := range c.Aliases {
		b.cfgAliases[alias] = name
	}
	return b
}

// CreatorOption configures a registered creator.
type CreatorOption func(*creatorSpec)

// Primary marks the creator as the one to use.
func Primary() CreatorOption { return func(s *creatorSpec) { s.primary = true } }

// ParamNames names the creator parameters in order, bypassing debug
// information lookup.
func ParamNames(names ...string) CreatorOption {
	return func(s *creatorSpec) { s.names = append([]string(nil), names...) }
}

// CreatorPriority breaks ties between creators with as many parameters.
func CreatorPriority(p int) CreatorOption { return func(s *creatorSpec) { s.priority = p } }

// Creator registers fn as a way to build the struct it returns. fn returns
// T, *T, (T, error) or (*T, error).
func (b *Builder) Creator(fn any, opts ...CreatorOption) *Builder {
	v := reflect.ValueOf(fn)
	out, err := creatorOutput(v)
	if err != nil {
		return b.fail(fmt.Errorf("creator %T: %w", fn, err))
	}
	s := creatorSpec{fn: v, out: out, order: len(b.creators[out])}
	for _, o := range opts {
		o(&s)
	}
	if len(s.names) > 0 && len(s.names) != v.Type().NumIn() {
		return b.fail(fmt.Errorf("creator %T: %d names for %d parameters", fn, len(s.names), v.Type().NumIn()))
	}
	b.creators[out] = append(b.creators[out], s)
	return b
}

// DisableZeroCreator stops the zero value from serving as the implicit
// no-argument creator of sample's type.
func (b *Builder) DisableZeroCreator(sample any) *Builder {
	b.noZeroCreator[sampleType(sample)] = true
	return b
}

// RegisterConverter binds c to exactly t.
func (b *Builder) RegisterConverter(t types.Type, c Converter) *Builder {
	b.registry.exact[t] = c
	return b
}

// RegisterFactory binds f to exactly t.
func (b *Builder) RegisterFactory(t types.Type, f Factory) *Builder {
	b.registry.factories[t] = f
	return b
}

// RegisterOriginFactory binds f to every instantiation of a generic origin
// (see types.OriginOf), or to every slice ("[]"), map ("map") or pointer ("*").
func (b *Builder) RegisterOriginFactory(origin string, f Factory) *Builder {
	b.registry.origins[origin] = f
	return b
}

// RegisterMatchFactory offers f every type matching pattern non-strictly:
// subtypes, implementations, and anything within variable bounds.
func (b *Builder) RegisterMatchFactory(pattern types.Type, f Factory) *Builder {
	b.registry.matches = append(b.registry.matches, matchFactory{pattern: pattern, f: f})
	return b
}

// NamedConverter registers c for properties tagged converter=name.
func (b *Builder) NamedConverter(name string, c Converter) *Builder {
	b.named[name] = c
	return b
}

// Alias binds a discriminator alias to sample's type.
func (b *Builder) Alias(alias string, sample any) *Builder {
	if err := b.aliases.alias(alias, sampleType(sample)); err != nil {
		return b.fail(err)
	}
	return b
}

// RegisterType makes types resolvable by their qualified name in
// discriminators.
func (b *Builder) RegisterType(samples ...any) *Builder {
	for _, s := range samples {
		b.aliases.register(sampleType(s))
	}
	return b
}

// NoTypeMetadata opts sample's type out of discriminators.
func (b *Builder) NoTypeMetadata(sample any) *Builder {
	b.noMetadata[sampleType(sample)] = true
	return b
}

// NullDefault makes null read as value for value's type.
func (b *Builder) NullDefault(value any) *Builder {
	v := reflect.ValueOf(value)
	if !v.IsValid() {
		return b.fail(errors.New("null default must not be nil"))
	}
	b.nullDefaults[v.Type()] = v
	return b
}

// View registers v under its name; DefaultView also makes it the default for
// its type.
func (b *Builder) View(v *View) *Builder {
	if v.err != nil {
		return b.fail(v.err)
	}
	b.views[v.name] = v
	return b
}

func (b *Builder) DefaultView(v *View) *Builder {
	b.View(v)
	b.defaultViews[v.t] = v
	return b
}

// Annotate attaches tag-style options ("name=x,include,converter=y") to a
// member of sample's type, by Go name. It also covers methods, which carry
// no tags.
func (b *Builder) Annotate(sample any, member, options string) *Builder {
	k := directiveKey{sampleType(sample), member}
	if b.directives[k] == nil {
		b.directives[k] = map[string]string{}
	}
	for key, v := range parseOptions(options) {
		b.directives[k][key] = v
	}
	return b
}

func (b *Builder) Include(sample any, member string) *Builder {
	return b.Annotate(sample, member, optInclude)
}

func (b *Builder) Exclude(sample any, member string) *Builder {
	return b.Annotate(sample, member, optExclude)
}

func (b *Builder) Rename(sample any, member, name string) *Builder {
	return b.Annotate(sample, member, optName+"="+name)
}

// PropertyResolver adds r ahead of the convention resolver. Tags and
// directives still come first.
func (b *Builder) PropertyResolver(r PropertyResolver) *Builder {
	b.props = append(b.props, r)
	return b
}

// NameResolver adds r ahead of the naming convention.
func (b *Builder) NameResolver(r NameResolver) *Builder {
	b.names = append(b.names, r)
	return b
}

// Build validates the configuration and returns the engine. The engine takes
// its own copy of the configuration; later changes to b do not reach it.
func (b *Builder) Build() (*Engine, error) {
	errs := append([]error(nil), b.errs...)
	aliases := b.aliases.clone()
	for alias, name := range b.cfgAliases {
		rt, ok := aliases.lookup(name)
		if !ok {
			errs = append(errs, fmt.Errorf("alias %q: type %q is not registered", alias, name))
			continue
		}
		if err := aliases.alias(alias, rt); err != nil {
			errs = append(errs, err)
		}
	}
	driver := b.driver
	if driver == nil {
		d, err := source.ByName(b.cfg.Driver)
		if err != nil {
			errs = append(errs, err)
		}
		driver = d
	}
	if len(errs) > 0 {
		return nil, &Error{Code: CodeInvalidDefinition, Message: "invalid engine configuration", Cause: errors.Join(errs...)}
	}
	log := b.log
	if log == nil {
		log = zap.NewNop()
	}
	directives := directiveResolver{opts: make(map[directiveKey]map[string]string, len(b.directives))}
	for k, o := range b.directives {
		directives.opts[k] = maps.Clone(o)
	}
	creators := make(map[reflect.Type][]creatorSpec, len(b.creators))
	for rt, specs := range b.creators {
		creators[rt] = slices.Clone(specs)
	}
	views, defaultViews := cloneViews(b.views, b.defaultViews)
	props := append([]PropertyResolver{tagResolver{}, directives}, b.props...)
	names := append([]NameResolver{tagResolver{}, directives}, b.names...)
	e := &Engine{
		cfg:           b.cfg,
		log:           log,
		driver:        driver,
		stages:        stagesFor(b.cfg),
		registry:      b.registry.clone(),
		named:         maps.Clone(b.named),
		views:         views,
		defaultViews:  defaultViews,
		aliases:       aliases,
		noMetadata:    maps.Clone(b.noMetadata),
		nullDefaults:  maps.Clone(b.nullDefaults),
		creators:      creators,
		noZeroCreator: maps.Clone(b.noZeroCreator),
		chains: chains{
			props: append(props, conventionResolver{}),
			names: append(names, conventionResolver{}),
		},
		directives: directives,
	}
	log.Debug("engine built",
		zap.String("driver", driver.Name()),
		zap.Bool("strict", b.cfg.Strict),
		zap.Bool("runtimeType", b.cfg.RuntimeType),
		zap.Bool("typeMetadata", b.cfg.TypeMetadata))
	return e, nil
}

// cloneViews copies the registered views. A view registered both by name and
// as a default stays one view.
func cloneViews(named map[string]*View, defaults map[reflect.Type]*View) (map[string]*View, map[reflect.Type]*View) {
	copies := map[*View]*View{}
	cp := func(v *View) *View {
		if c, ok := copies[v]; ok {
			return c
		}
		c := v.clone()
		copies[v] = c
		return c
	}
	outNamed := make(map[string]*View, len(named))
	for name, v := range named {
		outNamed[name] = cp(v)
	}
	outDefaults := make(map[reflect.Type]*View, len(defaults))
	for rt, v := range defaults {
		outDefaults[rt] = cp(v)
	}
	return outNamed, outDefaults
}

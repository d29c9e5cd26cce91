package jsonbind

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

// Config is the file and environment form of the engine settings. Fields
// absent from both keep their DefaultConfig values.
type Config struct {
	Strict                   bool              `yaml:"strict" env:"JSONBIND_STRICT"`
	SkipNull                 bool              `yaml:"skipNull" env:"JSONBIND_SKIP_NULL"`
	RuntimeType              bool              `yaml:"runtimeType" env:"JSONBIND_RUNTIME_TYPE"`
	TypeMetadata             bool              `yaml:"typeMetadata" env:"JSONBIND_TYPE_METADATA"`
	Views                    bool              `yaml:"views" env:"JSONBIND_VIEWS"`
	MetadataKey              string            `yaml:"metadataKey" env:"JSONBIND_METADATA_KEY"`
	MaxDepth                 int               `yaml:"maxDepth" env:"JSONBIND_MAX_DEPTH"`
	MaxBytes                 int64             `yaml:"maxBytes" env:"JSONBIND_MAX_BYTES"`
	DuplicateKeys            string            `yaml:"duplicateKeys" env:"JSONBIND_DUPLICATE_KEYS"`
	NumberMode               string            `yaml:"numberMode" env:"JSONBIND_NUMBER_MODE"`
	Indent                   string            `yaml:"indent" env:"JSONBIND_INDENT"`
	FailOnMissingParamNames  bool              `yaml:"failOnMissingParamNames" env:"JSONBIND_FAIL_ON_MISSING_PARAM_NAMES"`
	FailOnMissingCreatorArgs bool              `yaml:"failOnMissingCreatorArgs" env:"JSONBIND_FAIL_ON_MISSING_CREATOR_ARGS"`
	Driver                   string            `yaml:"driver" env:"JSONBIND_DRIVER"`
	Aliases                  map[string]string `yaml:"aliases"`
}

// DefaultConfig mirrors NewBuilder's defaults.
func DefaultConfig() Config {
	s := defaultSettings()
	return Config{
		RuntimeType:   s.RuntimeType,
		Views:         s.Views,
		MetadataKey:   s.MetadataKey,
		DuplicateKeys: "ignore",
		NumberMode:    "float64",
		Driver:        s.Driver,
	}
}

// ParseConfig decodes YAML over the defaults. Unknown keys are rejected.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("jsonbind: parse config: %w", err)
	}
	return cfg, nil
}

// LoadConfig reads the YAML file at path (skipped when path is empty) and
// applies JSONBIND_* environment overrides.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("jsonbind: read config: %w", err)
		}
		if cfg, err = ParseConfig(data); err != nil {
			return Config{}, err
		}
	}
	return cfg.WithEnv()
}

// WithEnv overlays JSONBIND_* environment variables onto c.
func (c Config) WithEnv() (Config, error) {
	if err := envdecode.Decode(&c); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("jsonbind: config from environment: %w", err)
	}
	return c, nil
}

func (c Config) settings() (settings, error) {
	s := settings{
		Strict:                   c.Strict,
		SkipNull:                 c.SkipNull,
		RuntimeType:              c.RuntimeType,
		TypeMetadata:             c.TypeMetadata,
		Views:                    c.Views,
		MetadataKey:              c.MetadataKey,
		MaxDepth:                 c.MaxDepth,
		MaxBytes:                 c.MaxBytes,
		Indent:                   c.Indent,
		FailOnMissingParamNames:  c.FailOnMissingParamNames,
		FailOnMissingCreatorArgs: c.FailOnMissingCreatorArgs,
		Driver:                   c.Driver,
	}
	if s.MetadataKey == "" {
		s.MetadataKey = defaultSettings().MetadataKey
	}
	if s.Driver == "" {
		s.Driver = defaultSettings().Driver
	}
	switch strings.ToLower(c.DuplicateKeys) {
	case "", "ignore":
		s.Duplicates = Ignore
	case "warn":
		s.Duplicates = Warn
	case "error", "fail":
		s.Duplicates = Fail
	default:
		return settings{}, fmt.Errorf("jsonbind: duplicateKeys: unknown policy %q", c.DuplicateKeys)
	}
	switch strings.ToLower(c.NumberMode) {
	case "", "float64":
		s.NumberMode = NumberFloat64
	case "json-number", "jsonnumber", "number":
		s.NumberMode = NumberJSONNumber
	default:
		return settings{}, fmt.Errorf("jsonbind: numberMode: unknown mode %q", c.NumberMode)
	}
	return s, nil
}

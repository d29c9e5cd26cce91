package jsonbind

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
strict: true
duplicateKeys: warn
numberMode: json-number
maxDepth: 8
maxBytes: 4096
aliases:
  d: github.com/reoring/jsonbind.dog
`))
	require.NoError(t, err)
	assert.True(t, cfg.Strict)
	assert.True(t, cfg.RuntimeType, "unset keys keep their defaults")
	assert.Equal(t, "@type", cfg.MetadataKey)
	assert.Equal(t, map[string]string{"d": "github.com/reoring/jsonbind.dog"}, cfg.Aliases)

	s, err := cfg.settings()
	require.NoError(t, err)
	assert.Equal(t, Warn, s.Duplicates)
	assert.Equal(t, NumberJSONNumber, s.NumberMode)
	assert.Equal(t, 8, s.MaxDepth)
	assert.Equal(t, int64(4096), s.MaxBytes)

	empty, err := ParseConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), empty)

	_, err = ParseConfig([]byte("strcit: true\n"))
	assert.ErrorContains(t, err, "strcit")
}

func TestConfigValidation(t *testing.T) {
	for _, c := range []Config{
		{DuplicateKeys: "sometimes"},
		{NumberMode: "decimal"},
		{Driver: "xml"},
	} {
		_, err := NewBuilder().WithConfig(c).Build()
		assert.True(t, HasCode(err, CodeInvalidDefinition), "%+v: %v", c, err)
	}
}

func TestLoadConfigWithEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jsonbind.yaml")
	require.NoError(t, os.WriteFile(path, []byte("skipNull: true\nmetadataKey: kind\n"), 0o600))
	t.Setenv("JSONBIND_STRICT", "true")
	t.Setenv("JSONBIND_METADATA_KEY", "type")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.True(t, cfg.SkipNull)
	assert.True(t, cfg.Strict)
	assert.Equal(t, "type", cfg.MetadataKey, "environment wins over the file")

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestConfigAliases(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TypeMetadata = true
	cfg.Aliases = map[string]string{"pooch": "github.com/reoring/jsonbind.dog"}

	_, err := NewBuilder().WithConfig(cfg).Build()
	assert.True(t, HasCode(err, CodeInvalidDefinition), "aliased types must be registered")

	e := mustEngine(t, NewBuilder().WithConfig(cfg).RegisterType(dog{}))
	out, err := Encode[animal](e, dog{Name: "rex"})
	require.NoError(t, err)
	assert.Equal(t, `{"@type":"pooch","name":"rex"}`, string(out))
}

func TestEngineDetectDuplicateKeys(t *testing.T) {
	e := mustEngine(t, NewBuilder())
	issues, err := e.DetectDuplicateKeys(bytes.NewReader([]byte(`{"a":1,"a":2,"b":[{"c":1,"c":2}]}`)), -1)
	require.NoError(t, err)
	require.Len(t, issues, 2)
	assert.Equal(t, Issue{Code: CodeDuplicateKey, Path: "/a", Message: "key 'a' duplicated"}, issues[0])
	assert.Equal(t, "/b/0/c", issues[1].Path)

	capped, err := e.DetectDuplicateKeys(bytes.NewReader([]byte(`{"a":1,"a":2,"a":3}`)), 1)
	require.NoError(t, err)
	require.Len(t, capped, 2)
	assert.Equal(t, "truncated", capped[1].Code)

	_, err = e.DetectDuplicateKeys(bytes.NewReader([]byte(`{"a":1,]`)), -1)
	assert.True(t, HasCode(err, CodeParseError), "%v", err)
}

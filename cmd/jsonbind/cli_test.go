package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(strings.NewReader(stdin), &out, &errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestFmtSortsAndIndents(t *testing.T) {
	out, err := run(t, `{"b":1.50,"a":[true,null]}`, "fmt")
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": [\n    true,\n    null\n  ],\n  \"b\": 1.50\n}\n", out)
}

func TestFmtCompact(t *testing.T) {
	out, err := run(t, `{ "x" : 12345678901234567890 }`, "fmt", "--indent", "")
	require.NoError(t, err)
	assert.Equal(t, "{\"x\":12345678901234567890}\n", out)
}

func TestFmtJSONC(t *testing.T) {
	in := "{\n  // comment\n  \"a\": 1,\n}"
	_, err := run(t, in, "fmt")
	require.Error(t, err)

	out, err := run(t, in, "fmt", "--jsonc", "--indent", "")
	require.NoError(t, err)
	assert.Equal(t, "{\"a\":1}\n", out)
}

func TestFmtRejectsTrailingData(t *testing.T) {
	_, err := run(t, `{} {}`, "fmt")
	require.Error(t, err)
}

func TestFmtReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	require.NoError(t, os.WriteFile(path, []byte(`[1,2]`), 0o600))
	out, err := run(t, "", "fmt", "--indent", "", path)
	require.NoError(t, err)
	assert.Equal(t, "[1,2]\n", out)
}

func TestCheckReportsDuplicates(t *testing.T) {
	out, err := run(t, `{"a":1,"a":2,"b":{"c":1,"c":2}}`, "check")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 issue")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "duplicate_key\t/a"), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "duplicate_key\t/b/c"), lines[1])
}

func TestCheckClean(t *testing.T) {
	out, err := run(t, `{"a":{"b":[1,2]}}`, "check")
	require.NoError(t, err)
	assert.Equal(t, "ok\n", out)
}

func TestCheckMaxDepth(t *testing.T) {
	out, err := run(t, `{"a":{"b":{"c":1}}}`, "check", "--max-depth", "2")
	require.Error(t, err)
	assert.Contains(t, out, "max_depth")
}

func TestCheckMaxBytes(t *testing.T) {
	out, err := run(t, `{"a":[1,2,3,4,5,6,7,8,9]}`, "check", "--max-bytes", "10")
	require.Error(t, err)
	assert.Contains(t, out, "max_bytes")
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jsonbind.yaml")
	require.NoError(t, os.WriteFile(path, []byte("indent: \"\\t\"\n"), 0o600))
	out, err := run(t, `{"a":1}`, "fmt", "--config", path, "--indent", "\t")
	require.NoError(t, err)
	assert.Equal(t, "{\n\t\"a\": 1\n}\n", out)

	require.NoError(t, os.WriteFile(path, []byte("bogus: 1\n"), 0o600))
	_, err = run(t, `{}`, "fmt", "--config", path)
	require.Error(t, err)
}

func TestUnknownDriver(t *testing.T) {
	_, err := run(t, `{}`, "fmt", "--driver", "nope")
	require.Error(t, err)
}

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/go-hashdiff/internal/hdf5"
)

func writeFixture(t *testing.T, path string, values []float64, history string) {
	t.Helper()
	f, err := hdf5.Create(osfs.New("/"), filepath.ToSlash(path))
	require.NoError(t, err)
	require.NoError(t, f.Root().SetAttr("history", history))
	_, err = f.Root().CreateDataset("temperature", values, hdf5.WithAttribute("units", "K"))
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestGenerateAndCompare(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.h5")
	b := filepath.Join(dir, "b.h5")
	ref := filepath.Join(dir, "a.json")
	writeFixture(t, a, []float64{1, 2}, "run A")
	writeFixture(t, b, []float64{1, 2}, "run B")

	_, _, err := run(t, "generate", a, "-o", ref)
	require.NoError(t, err)
	data, err := os.ReadFile(ref)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"/temperature"`)

	out, _, err := run(t, "compare", b, ref)
	require.NoError(t, err)
	assert.Contains(t, out, "match: 2 paths compared")
}

func TestCompareMismatch(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.h5")
	b := filepath.Join(dir, "b.h5")
	ref := filepath.Join(dir, "a.json")
	writeFixture(t, a, []float64{1, 2}, "run A")
	writeFixture(t, b, []float64{1, 2.1}, "run A")

	_, _, err := run(t, "generate", a, "--output", ref)
	require.NoError(t, err)

	out, _, err := run(t, "compare", b, ref)
	require.ErrorIs(t, err, errMismatch)
	assert.Equal(t, 1, exitCode(err))
	assert.Contains(t, out, "/temperature")
	assert.Contains(t, out, "changed")

	_, _, err = run(t, "compare", "--skip-path", "/temperature", b, ref)
	assert.NoError(t, err)
}

func TestGenerateToStdout(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.h5")
	writeFixture(t, a, []float64{3}, "run A")

	out, _, err := run(t, "generate", "--skip-attribute", "units", a)
	require.NoError(t, err)
	assert.Contains(t, out, `"/": "`)
	assert.Contains(t, out, `"/temperature": "`)
}

func TestInspect(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.h5")
	writeFixture(t, a, []float64{3, 4}, "run A")

	out, _, err := run(t, "inspect", a)
	require.NoError(t, err)
	assert.Contains(t, out, `Group "/"`)
	assert.Contains(t, out, `  Variable "/temperature"`)
	assert.Contains(t, out, "@units = K")
}

func TestCommandErrors(t *testing.T) {
	dir := t.TempDir()
	csv := filepath.Join(dir, "table.csv")
	require.NoError(t, os.WriteFile(csv, []byte("a,b\n1,2\n"), 0o644))

	tests := []struct {
		name string
		args []string
	}{
		{"unsupported format", []string{"generate", csv}},
		{"bad format flag", []string{"generate", "--format", "grib", csv}},
		{"bad log level", []string{"generate", "--log-level", "loud", csv}},
		{"missing filters", []string{"generate", "--filters", filepath.Join(dir, "none.toml"), csv}},
		{"missing reference", []string{"compare", csv, filepath.Join(dir, "none.json")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := run(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, 2, exitCode(err))
		})
	}
}

func TestFiltersFlag(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.h5")
	b := filepath.Join(dir, "b.h5")
	ref := filepath.Join(dir, "a.json")
	table := filepath.Join(dir, "filters.toml")
	writeFixture(t, a, []float64{1}, "run A")
	writeFixture(t, b, []float64{1}, "run B")
	require.NoError(t, os.WriteFile(table, []byte("version = 1\n"), 0o644))

	_, _, err := run(t, "generate", "--filters", table, a, "-o", ref)
	require.NoError(t, err)

	_, _, err = run(t, "compare", "--filters", table, b, ref)
	require.ErrorIs(t, err, errMismatch)
}

func TestParseLevel(t *testing.T) {
	lvl, err := parseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", lvl.String())

	_, err = newLogger(&bytes.Buffer{}, "info", "xml")
	assert.Error(t, err)
}

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richinsley/ivbridge"
)

func newTestRegistry(t *testing.T) *ivbridge.Registry {
	t.Helper()
	reg := ivbridge.NewRegistry()
	require.NoError(t, reg.Register(ivbridge.LinkedBackend()))
	require.NoError(t, reg.Register(ivbridge.SerializedBackend()))
	return reg
}

func run(t *testing.T, reg *ivbridge.Registry, stdin []byte, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() { ivbridge.SetLogger(nil) })
	cmd := newRootCmd(reg)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(bytes.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const sampleDoc = `name: sample
point: !tuple [1, 2]
weights: !tensor {dtype: int16, shape: [2], data: [3, -4]}
tags: [a, null, true]
`

func TestBackendsCommand(t *testing.T) {
	reg := newTestRegistry(t)
	out, err := run(t, reg, nil, "backends")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "  linked"), lines[0])
	assert.Contains(t, lines[0], "zero-copy=true")
	assert.Contains(t, lines[1], "unknown=reject")

	_, err = run(t, reg, nil, "--backend", "serialized", "eval", "1")
	require.NoError(t, err)
	out, err = run(t, reg, nil, "backends")
	require.NoError(t, err)
	assert.Contains(t, out, "* serialized")
}

func TestRoundtripCommand(t *testing.T) {
	path := writeFile(t, "sample.yaml", sampleDoc)
	want, err := ivbridge.ParseValueYAML([]byte(sampleDoc))
	require.NoError(t, err)

	for _, backend := range []string{"linked", "serialized"} {
		t.Run(backend, func(t *testing.T) {
			out, err := run(t, newTestRegistry(t), nil, "--backend", backend, "--format", "yaml", "roundtrip", path)
			require.NoError(t, err)
			got, err := ivbridge.ParseValueYAML([]byte(out))
			require.NoError(t, err)
			assert.True(t, want.Equal(got), "got %s", got)
		})
	}
}

func TestRoundtripCommandWritesFramesWhenPiped(t *testing.T) {
	path := writeFile(t, "sample.yaml", sampleDoc)
	out, err := run(t, newTestRegistry(t), nil, "roundtrip", path)
	require.NoError(t, err)

	vs, err := ivbridge.NewFrameReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, vs, 1)
	want, err := ivbridge.ParseValueYAML([]byte(sampleDoc))
	require.NoError(t, err)
	assert.True(t, want.Equal(vs[0]))
}

func TestEvalCommand(t *testing.T) {
	lib := writeFile(t, "lib.star", "def double(x):\n    return x * 2\n")
	out, err := run(t, newTestRegistry(t), nil, "--format", "yaml", "eval", "--load", lib, "double(21)")
	require.NoError(t, err)
	assert.Equal(t, "42\n", out)

	out, err = run(t, newTestRegistry(t), nil, "--format", "yaml", "eval", "(1, 'x', [2.5])")
	require.NoError(t, err)
	assert.Equal(t, "!tuple [1, x, [2.5]]\n", out)
}

func TestEvalCommandReportsTraceback(t *testing.T) {
	lib := writeFile(t, "boom.star", "def boom():\n    fail(\"no\")\n")
	_, err := run(t, newTestRegistry(t), nil, "eval", "-l", lib, "boom()")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EvalError: fail: no")
	assert.Contains(t, err.Error(), "Traceback")
	assert.Contains(t, err.Error(), "in boom")
}

func TestInspectCommand(t *testing.T) {
	path := writeFile(t, "sample.yaml", "!tuple [1, two]\n")
	out, err := run(t, newTestRegistry(t), nil, "inspect", path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, `(1, "two")`+"\n"), out)
	assert.Contains(t, out, "(ivbridge.Value)")
}

func TestDecodeCommand(t *testing.T) {
	var frames bytes.Buffer
	fw := ivbridge.NewFrameWriter(&frames)
	require.NoError(t, fw.Write(ivbridge.Int(1)))
	require.NoError(t, fw.Write(ivbridge.List(ivbridge.String("a"), ivbridge.None())))
	require.NoError(t, fw.Flush())
	want := "1\n---\n- a\n- null\n"

	out, err := run(t, newTestRegistry(t), frames.Bytes(), "decode", "-")
	require.NoError(t, err)
	assert.Equal(t, want, out)

	path := writeFile(t, "values.bin", frames.String())
	out, err = run(t, newTestRegistry(t), nil, "decode", path)
	require.NoError(t, err)
	assert.Equal(t, want, out)

	_, err = run(t, newTestRegistry(t), frames.Bytes()[:frames.Len()-1], "decode", "-")
	assert.Error(t, err)
}

func TestBenchCommand(t *testing.T) {
	cfg := writeFile(t, "ivbridge.yaml", "backend: serialized\ninterpreters: 2\niterations: 5\nmax_objects: 64\n")
	out, err := run(t, newTestRegistry(t), nil, "--config", cfg, "bench")
	require.NoError(t, err)
	assert.Contains(t, out, "backend=serialized")
	assert.Contains(t, out, "round_trips=10")
}

func TestCommandErrors(t *testing.T) {
	tests := map[string][]string{
		"unknown backend":   {"--backend", "cpython", "eval", "1"},
		"unknown format":    {"--format", "xml", "eval", "1"},
		"bad log level":     {"--log-level", "loud", "backends"},
		"missing config":    {"--config", filepath.Join(t.TempDir(), "none.yaml"), "backends"},
		"missing file":      {"roundtrip", filepath.Join(t.TempDir(), "none.yaml")},
		"unknown shape":     {"--format", "yaml", "eval", "len"},
		"wrong arg count":   {"eval"},
		"unconvertible int": {"--format", "yaml", "eval", "1 << 70"},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := run(t, newTestRegistry(t), nil, args...)
			assert.Error(t, err)
		})
	}
}

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeProgram(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prog.weave")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "weave version")
}

func TestCheckCommand(t *testing.T) {
	good := writeProgram(t, "field light\nloop 2 { resolve light.threshold }")
	out, err := execute(t, "check", "--log-level", "error", good)
	require.NoError(t, err)
	assert.Contains(t, out, "2 statements, loop depth 1")

	bad := writeProgram(t, "tension light <> threshold => move(1.0)")
	out, err = execute(t, "check", "--log-level", "error", bad)
	require.Error(t, err)
	assert.Contains(t, out, "1:16")
}

func TestRunCommand_MemorySession(t *testing.T) {
	path := writeProgram(t, "metaweave turn rotate")
	out, err := execute(t, "run", "--log-level", "error", "--quiet=false", "-n", "2", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Defined new primitive: turn as rotate")
}

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dinhngtu/uvtester/utils"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	prev := utils.Logger()
	t.Cleanup(func() {
		utils.SetLogger(prev)
		debugFlag, logFile = false, ""
	})

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestDisasm(t *testing.T) {
	out, err := execute(t, "disasm", "--method", "imul", "--depth", "2", "--conv", "sysv")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "; imul depth=2 pause=0 sysv"), out)
	assert.Contains(t, out, "0000  4889f9")
	assert.Contains(t, out, "imul ")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(out), "ret"), out)
}

func TestDisasmWin64SkipsArgumentMoves(t *testing.T) {
	out, err := execute(t, "disasm", "--conv", "win64", "--method", "imul_imm", "--imm-seed", "7")
	require.NoError(t, err)
	assert.Contains(t, out, "stream=0x7")
	assert.NotContains(t, out, "mov rcx, rdi")
}

func TestDisasmRejectsBadInput(t *testing.T) {
	_, err := execute(t, "disasm", "--method", "fma")
	assert.Error(t, err)
	_, err = execute(t, "disasm", "--conv", "fastcall")
	assert.Error(t, err)
	_, err = execute(t, "disasm", "--method", "imul_tree", "--depth", "9")
	assert.Error(t, err)
}

func TestRunSimBackend(t *testing.T) {
	out, err := execute(t, "run", "--backend", "sim", "--cpus", "0",
		"--passes", "5", "--iters", "3", "--sleep", "0", "--duration", "30ms")
	require.NoError(t, err)
	assert.Contains(t, out, "method:\t\timul\n")
	assert.Contains(t, out, "passes:\t\t5\n")
	assert.Contains(t, out, "iters:\t\t3\n")
	assert.Contains(t, out, "cpus:\t\t[0]\n")
}

func TestRunFlagsOverrideConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "uvtester.yaml")
	require.NoError(t, os.WriteFile(path, []byte("method: imul_tree\ndepth: 3\npasses: 100\nbackend: sim\nsleep: 0\n"), 0o644))

	out, err := execute(t, "run", "--config", path, "--passes", "4", "--cpus", "0", "--duration", "20ms")
	require.NoError(t, err)
	assert.Contains(t, out, "method:\t\timul_tree\n")
	assert.Contains(t, out, "depth:\t\t3\n")
	assert.Contains(t, out, "passes:\t\t4\n")
	assert.Contains(t, out, "backend:\tsim\n")
}

func TestRunRejectsInvalidConfiguration(t *testing.T) {
	_, err := execute(t, "run", "--backend", "sim", "--passes=-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")

	_, err = execute(t, "run", "--backend", "sim", "--cpus", "0-x")
	assert.Error(t, err)

	_, err = execute(t, "run", "--config", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestInfo(t *testing.T) {
	out, err := execute(t, "info")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "=== System Information ===\n"), out)
}

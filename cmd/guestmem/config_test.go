package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otelwasm/guestmem/runtime"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig("", nil)
	require.NoError(t, err)

	assert.Empty(t, cfg.Path)
	assert.Equal(t, "auto", cfg.ABI.Name)
	assert.Equal(t, runtime.TypeWazero, cfg.Runtime.Type)
	assert.Equal(t, runtime.ModeInterpreter, cfg.Runtime.Mode)
	assert.Zero(t, cfg.CallTimeout)
	assert.True(t, cfg.Runtime.CloseOnContextDone, "Ctrl-C must interrupt a running guest")
}

func TestLoadConfigCloseOnContextDone(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, "runtime:\n  close_on_context_done: false\n"), nil)
	require.NoError(t, err)
	assert.False(t, cfg.Runtime.CloseOnContextDone)

	t.Setenv("GUESTMEM_RUNTIME__CLOSE_ON_CONTEXT_DONE", "false")
	cfg, err = loadConfig("", nil)
	require.NoError(t, err)
	assert.False(t, cfg.Runtime.CloseOnContextDone)
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfig(t, `
path: guest.wasm
call_timeout: 2s
abi:
  name: rust
runtime:
  mode: compiled
  memory_limit_pages: 16
  env:
    - GREETING=hi
`)

	cfg, err := loadConfig(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "guest.wasm", cfg.Path)
	assert.Equal(t, 2*time.Second, cfg.CallTimeout)
	assert.Equal(t, "rust", cfg.ABI.Name)
	assert.Equal(t, runtime.ModeCompiled, cfg.Runtime.Mode)
	assert.Equal(t, uint32(16), cfg.Runtime.MemoryLimitPages)
	assert.Equal(t, []string{"GREETING=hi"}, cfg.Runtime.Env)
	assert.True(t, cfg.Runtime.CloseOnContextDone, "a timeout needs close on context done")
}

func TestLoadConfigPrecedence(t *testing.T) {
	path := writeConfig(t, `
path: from-file.wasm
abi:
  name: c
runtime:
  mode: compiled
`)
	t.Setenv("GUESTMEM_PATH", "from-env.wasm")
	t.Setenv("GUESTMEM_ABI__NAME", "rust")
	t.Setenv("GUESTMEM_RUNTIME__MEMORY_LIMIT_PAGES", "4")
	t.Setenv("GUESTMEM_RUNTIME__ENV", "A=1,B=2")
	t.Setenv("GUESTMEM_CALL_TIMEOUT", "500ms")

	cfg, err := loadConfig(path, map[string]any{"abi.name": "default"})
	require.NoError(t, err)

	assert.Equal(t, "from-env.wasm", cfg.Path)
	assert.Equal(t, "default", cfg.ABI.Name)
	assert.Equal(t, runtime.ModeCompiled, cfg.Runtime.Mode)
	assert.Equal(t, uint32(4), cfg.Runtime.MemoryLimitPages)
	assert.Equal(t, []string{"A=1", "B=2"}, cfg.Runtime.Env)
	assert.Equal(t, 500*time.Millisecond, cfg.CallTimeout)
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "unknown key", content: "pth: guest.wasm\n"},
		{name: "invalid mode", content: "runtime:\n  mode: jit\n"},
		{name: "invalid duration", content: "call_timeout: soon\n"},
		{name: "invalid yaml", content: "runtime: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadConfig(writeConfig(t, tt.content), nil)
			assert.Error(t, err)
		})
	}

	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "path", envKey("GUESTMEM_PATH"))
	assert.Equal(t, "call_timeout", envKey("GUESTMEM_CALL_TIMEOUT"))
	assert.Equal(t, "runtime.memory_limit_pages", envKey("GUESTMEM_RUNTIME__MEMORY_LIMIT_PAGES"))
}

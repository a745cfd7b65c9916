package wazero

import (
	"context"

	"github.com/tetratelabs/wazero"

	"github.com/otelwasm/guestmem/runtime"
)

// newWazeroRuntime creates a new Wazero runtime instance
func newWazeroRuntime(cfg *runtime.Config) (runtime.Runtime, error) {
	if cfg == nil {
		cfg = &runtime.Config{}
		cfg.Default()
	}

	var wrc wazero.RuntimeConfig
	switch cfg.Mode {
	case runtime.ModeCompiled:
		wrc = wazero.NewRuntimeConfigCompiler()
	default:
		wrc = wazero.NewRuntimeConfigInterpreter()
	}

	wrc = wrc.WithCloseOnContextDone(cfg.CloseOnContextDone)
	if cfg.MemoryLimitPages > 0 {
		wrc = wrc.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}

	return &wazeroRuntime{
		runtime: wazero.NewRuntimeWithConfig(context.Background(), wrc),
		config:  cfg,
	}, nil
}

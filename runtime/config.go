package runtime

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

const (
	// TypeWazero is the registry name of the wazero adapter.
	TypeWazero = "wazero"

	// ModeInterpreter runs guests in wazero's interpreter.
	ModeInterpreter = "interpreter"
	// ModeCompiled compiles guests ahead of time to native code.
	ModeCompiled = "compiled"

	// MaxMemoryPages is the largest page count a 32-bit linear memory can address.
	MaxMemoryPages = 65536
)

// Config is the configuration of the WASM runtime.
type Config struct {
	// Type selects the registered runtime implementation.
	Type string `mapstructure:"type" json:"type,omitempty"`

	// Mode selects how the runtime executes guest code.
	Mode string `mapstructure:"mode" json:"mode,omitempty" validate:"omitempty,oneof=interpreter compiled" jsonschema:"enum=interpreter,enum=compiled"`

	// CloseOnContextDone makes guest calls abort when their context is
	// cancelled or its deadline passes.
	CloseOnContextDone bool `mapstructure:"close_on_context_done" json:"close_on_context_done,omitempty"`

	// MemoryLimitPages caps the guest's linear memory, in 64KiB pages.
	// Zero keeps the runtime default.
	MemoryLimitPages uint32 `mapstructure:"memory_limit_pages" json:"memory_limit_pages,omitempty" validate:"lte=65536" jsonschema:"maximum=65536"`

	// WASI instantiates wasi_snapshot_preview1 for guests that import it.
	WASI bool `mapstructure:"wasi" json:"wasi,omitempty"`

	// Env is the environment exposed to WASI guests, as KEY=VALUE pairs.
	Env []string `mapstructure:"env" json:"env,omitempty" validate:"dive,contains=="`

	// StartFunctions are called after instantiation when the guest exports them.
	StartFunctions []string `mapstructure:"start_functions" json:"start_functions,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Default fills unset fields with their default values.
func (cfg *Config) Default() {
	if cfg.Type == "" {
		cfg.Type = TypeWazero
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeInterpreter
	}
	if cfg.StartFunctions == nil {
		cfg.StartFunctions = []string{"_initialize"}
	}
}

// Validate validates the configuration
func (cfg *Config) Validate() error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("runtime: %w: %w", ErrInvalidConfiguration, err)
	}
	return nil
}

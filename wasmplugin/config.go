package wasmplugin

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/otelwasm/guestmem/runtime"
)

// ABIConfig selects the exports used for the passing-data exchange.
type ABIConfig struct {
	// Name is one of the known ABIs, or "auto" (the default) to detect it
	// from the module's exports.
	Name string `mapstructure:"name" json:"name,omitempty" validate:"omitempty,oneof=auto default c rust" jsonschema:"enum=auto,enum=default,enum=c,enum=rust"`

	// PointerExport and TransformExport override Name when both are set.
	PointerExport   string `mapstructure:"pointer_export" json:"pointer_export,omitempty" validate:"required_with=TransformExport"`
	TransformExport string `mapstructure:"transform_export" json:"transform_export,omitempty" validate:"required_with=PointerExport"`
}

// Config defines the configuration of a guest plugin
type Config struct {
	// Path to the WASM module file
	Path string `mapstructure:"path" json:"path,omitempty"`

	// Runtime is the configuration of WASM plugin runtime.
	Runtime runtime.Config `mapstructure:"runtime" json:"runtime"`

	// ABI selects the guest exports.
	ABI ABIConfig `mapstructure:"abi" json:"abi"`

	// CallTimeout bounds a whole Transform, guest calls included. Zero
	// means no limit.
	CallTimeout time.Duration `mapstructure:"call_timeout" json:"call_timeout,omitempty" validate:"gte=0" jsonschema:"oneof_type=string;integer"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Default fills unset fields with their default values.
func (cfg *Config) Default() {
	cfg.Runtime.Default()
	if cfg.ABI.Name == "" {
		cfg.ABI.Name = abiAuto
	}
	if cfg.CallTimeout > 0 {
		// Without this wazero would not interrupt a running guest.
		cfg.Runtime.CloseOnContextDone = true
	}
}

// Validate validates the configuration
func (cfg *Config) Validate() error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("wasm: invalid config: %w", err)
	}
	return nil
}

package wasmplugin

import (
	"fmt"
	"slices"

	"github.com/otelwasm/guestmem/runtime"
)

const (
	abiAuto   = "auto"
	abiCustom = "custom"
)

// ABI names the two guest exports of the passing-data exchange: a
// zero-argument function returning the scratch buffer offset, and a
// transform taking the input length and returning the result length.
type ABI struct {
	Name            string
	PointerExport   string
	TransformExport string
}

var (
	// ABIDefault is the ABI of guests built for this module.
	ABIDefault = ABI{Name: "default", PointerExport: "get_buffer_pointer", TransformExport: "transform"}
	// ABIC is the ABI of the C "strings wasm is cool" guest.
	ABIC = ABI{Name: "c", PointerExport: "getBufferPointer", TransformExport: "addWasmIsCool"}
	// ABIRust is the ABI of the Rust passing-data guest.
	ABIRust = ABI{Name: "rust", PointerExport: "get_wasm_memory_buffer_pointer", TransformExport: "add_wasm_is_cool"}

	knownABIs = []ABI{ABIDefault, ABIC, ABIRust}

	pointerParams   = []runtime.ValueType{}
	pointerResults  = []runtime.ValueType{runtime.ValueTypeI32}
	transformParams = []runtime.ValueType{runtime.ValueTypeI32}
	transformResult = []runtime.ValueType{runtime.ValueTypeI32}
)

func (a ABI) String() string {
	return fmt.Sprintf("%s(%s, %s)", a.Name, a.PointerExport, a.TransformExport)
}

// LookupABI returns the known ABI with the given name.
func LookupABI(name string) (ABI, bool) {
	for _, abi := range knownABIs {
		if abi.Name == name {
			return abi, true
		}
	}
	return ABI{}, false
}

// DetectABI returns the first known ABI whose exports are all present.
func DetectABI(exports []string) (ABI, bool) {
	for _, abi := range knownABIs {
		if slices.Contains(exports, abi.PointerExport) && slices.Contains(exports, abi.TransformExport) {
			return abi, true
		}
	}
	return ABI{}, false
}

// resolveABI picks the ABI for a module from cfg, falling back to detection.
func resolveABI(cfg ABIConfig, exports []string) (ABI, error) {
	if cfg.PointerExport != "" && cfg.TransformExport != "" {
		return ABI{Name: abiCustom, PointerExport: cfg.PointerExport, TransformExport: cfg.TransformExport}, nil
	}
	if cfg.Name != "" && cfg.Name != abiAuto {
		abi, ok := LookupABI(cfg.Name)
		if !ok {
			return ABI{}, fmt.Errorf("wasm: unknown ABI %q: %w", cfg.Name, ErrABINotDetected)
		}
		return abi, nil
	}
	abi, ok := DetectABI(exports)
	if !ok {
		return ABI{}, fmt.Errorf("wasm: no known export pair among %v: %w", exports, ErrABINotDetected)
	}
	return abi, nil
}

// checkExports verifies that mod exports the functions of abi with the
// signatures the exchange relies on.
func checkExports(mod runtime.ModuleInstance, abi ABI) error {
	checks := []struct {
		name    string
		params  []runtime.ValueType
		results []runtime.ValueType
	}{
		{abi.PointerExport, pointerParams, pointerResults},
		{abi.TransformExport, transformParams, transformResult},
	}
	for _, c := range checks {
		fn := mod.Function(c.name)
		if fn == nil {
			return fmt.Errorf("wasm: %s is not exported: %w", c.name, ErrRequiredFunctionNotExported)
		}
		if !runtime.SignatureMatches(fn, c.params, c.results) {
			return fmt.Errorf("wasm: %s has signature %s, want %s: %w",
				c.name,
				runtime.FormatSignature(fn.ParamTypes(), fn.ResultTypes()),
				runtime.FormatSignature(c.params, c.results),
				ErrSignatureMismatch)
		}
	}
	return nil
}

// Package runtime provides an abstraction layer for WebAssembly runtime engines.
//
// It is the narrow contract through which the host reaches the engine that
// compiles, instantiates and invokes guest modules. Nothing above this
// package touches engine types directly.
package runtime

import "context"

// Runtime represents a Wasm runtime engine
type Runtime interface {
	// Compile compiles the given Wasm binary into a CompiledModule
	Compile(ctx context.Context, binary []byte) (CompiledModule, error)
	// InstantiateWithHost creates module instance with host functions and runtime-specific setup
	InstantiateWithHost(ctx context.Context, module CompiledModule, hostModule *HostModule) (ModuleInstance, Context, error)
	// Close closes the runtime and releases all resources
	Close(ctx context.Context) error
}

// CompiledModule represents a compiled Wasm module, ready for instantiation
type CompiledModule interface {
	// ExportedFunctions lists the names of the functions the module exports
	ExportedFunctions() []string
	// Close releases the resources associated with the compiled module
	Close(ctx context.Context) error
}

// ModuleInstance represents an instantiated Wasm module
type ModuleInstance interface {
	// Function returns a handle to an exported function
	// Returns nil if the function is not found
	Function(name string) FunctionInstance
	// Memory returns the memory instance of the module
	// Returns nil if the module does not export memory
	Memory() Memory
	// Close closes the instance and releases its resources
	Close(ctx context.Context) error
}

// FunctionInstance represents an exported function from a Wasm module
type FunctionInstance interface {
	// Call executes the function with the given parameters
	Call(ctx context.Context, params ...uint64) ([]uint64, error)
	// ParamTypes returns the parameter types of the function
	ParamTypes() []ValueType
	// ResultTypes returns the result types of the function
	ResultTypes() []ValueType
}

// Memory represents the linear memory of a Wasm module instance.
//
// Slices returned by Read alias the engine's buffer and are only valid until
// the next call into the guest.
type Memory interface {
	// Read reads 'size' bytes from the memory at 'offset'
	Read(offset uint32, size uint32) ([]byte, bool)
	// Write writes 'data' to the memory at 'offset'
	Write(offset uint32, data []byte) bool
	// Size returns the current size of the memory in bytes
	Size() uint32
}

// Context holds runtime-specific state (WASI, host modules, etc.)
// This is opaque to callers and managed entirely by runtime adapters
type Context interface {
	// WithRuntimeContext returns ctx decorated with whatever state the
	// runtime needs to be present when calling into the guest.
	WithRuntimeContext(ctx context.Context) context.Context
	// Close releases runtime-specific resources
	Close(ctx context.Context) error
}

package wazero

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/stealthrocket/wasi-go"
	wasigo "github.com/stealthrocket/wasi-go/imports"
	"github.com/stealthrocket/wasi-go/imports/wasi_snapshot_preview1"
	"github.com/stealthrocket/wazergo"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/otelwasm/guestmem/runtime"
)

const (
	// guestExportMemory is the name of the memory export in the guest module
	guestExportMemory = "memory"
	// wasmEdgeV2Extension is the WASI extension name
	wasmEdgeV2Extension = "wasmedgev2"
)

// wazeroRuntime implements runtime.Runtime using Wazero
type wazeroRuntime struct {
	runtime wazero.Runtime
	config  *runtime.Config
}

// wazeroCompiledModule implements runtime.CompiledModule for Wazero
type wazeroCompiledModule struct {
	module wazero.CompiledModule
}

// wazeroModuleInstance implements runtime.ModuleInstance for Wazero
type wazeroModuleInstance struct {
	instance api.Module
}

// wazeroFunctionInstance implements runtime.FunctionInstance for Wazero
type wazeroFunctionInstance struct {
	function api.Function
}

// wazeroMemory implements runtime.Memory for Wazero
type wazeroMemory struct {
	memory api.Memory
}

// wazeroContext implements runtime.Context for Wazero. sys and
// wasiP1HostModule are nil when WASI is disabled.
type wazeroContext struct {
	sys              wasi.System
	wasiP1HostModule *wasi_snapshot_preview1.Module
}

// Compile compiles the given Wasm binary into a CompiledModule
func (r *wazeroRuntime) Compile(ctx context.Context, binary []byte) (runtime.CompiledModule, error) {
	compiled, err := r.runtime.CompileModule(ctx, binary)
	if err != nil {
		return nil, fmt.Errorf("wazero compile error: %w: %w", runtime.ErrModuleCompileFailed, err)
	}

	if _, ok := compiled.ExportedMemories()[guestExportMemory]; !ok {
		compiled.Close(ctx)
		return nil, fmt.Errorf("wasm: guest doesn't export memory[%s]: %w", guestExportMemory, runtime.ErrMemoryExportNotFound)
	}

	runtime.Logger().Debug("compiled guest module",
		zap.Int("size", len(binary)),
		zap.Int("exported_functions", len(compiled.ExportedFunctions())),
	)

	return &wazeroCompiledModule{module: compiled}, nil
}

// InstantiateWithHost creates module instance with host functions and runtime-specific setup
func (r *wazeroRuntime) InstantiateWithHost(ctx context.Context, module runtime.CompiledModule, hostModule *runtime.HostModule) (runtime.ModuleInstance, runtime.Context, error) {
	wazeroModule, ok := module.(*wazeroCompiledModule)
	if !ok {
		return nil, nil, fmt.Errorf("invalid module type for wazero runtime: %w", runtime.ErrInvalidConfiguration)
	}

	runtimeCtx := &wazeroContext{}
	if r.config.WASI {
		var err error
		ctx, runtimeCtx, err = r.instantiateWASI(ctx, wazeroModule)
		if err != nil {
			return nil, nil, err
		}
	}

	if !hostModule.Empty() {
		if _, err := r.instantiateHostModule(ctx, hostModule); err != nil {
			return nil, nil, multierr.Append(
				fmt.Errorf("host module instantiation failed: %w: %w", runtime.ErrModuleInstantiateFailed, err),
				runtimeCtx.Close(ctx),
			)
		}
	}

	config := wazero.NewModuleConfig().
		WithStartFunctions(r.config.StartFunctions...).
		WithStdout(os.Stdout).
		WithStderr(os.Stderr)

	instance, err := r.runtime.InstantiateModule(ctx, wazeroModule.module, config)
	if err != nil {
		return nil, nil, multierr.Append(
			fmt.Errorf("guest module instantiation failed: %w: %w", runtime.ErrModuleInstantiateFailed, err),
			runtimeCtx.Close(ctx),
		)
	}

	runtime.Logger().Debug("instantiated guest module",
		zap.String("name", instance.Name()),
		zap.Bool("wasi", r.config.WASI),
		zap.Uint32("memory_size", instance.Memory().Size()),
	)

	return &wazeroModuleInstance{instance: instance}, runtimeCtx, nil
}

func (r *wazeroRuntime) instantiateWASI(ctx context.Context, module *wazeroCompiledModule) (context.Context, *wazeroContext, error) {
	ctx, sys, err := wasigo.NewBuilder().
		WithSocketsExtension(wasmEdgeV2Extension, module.module).
		WithEnv(r.config.Env...).
		Instantiate(ctx, r.runtime)
	if err != nil {
		return nil, nil, fmt.Errorf("wasi instantiation failed: %w", err)
	}

	// Extract the wasi host module instance from the context as a workaround
	// to avoid panic when calling wasi functions with different context than the one used to instantiate the host module.
	wasiP1HostModule, ok := moduleInstanceFor[*wasi_snapshot_preview1.Module](ctx)
	if !ok {
		sys.Close(ctx)
		return nil, nil, fmt.Errorf("failed to retrieve wasi host module instance: %w", runtime.ErrInvalidConfiguration)
	}

	return ctx, &wazeroContext{sys: sys, wasiP1HostModule: wasiP1HostModule}, nil
}

// Close closes the runtime and releases all resources
func (r *wazeroRuntime) Close(ctx context.Context) error {
	return r.runtime.Close(ctx)
}

// ExportedFunctions lists the exported function names in sorted order
func (m *wazeroCompiledModule) ExportedFunctions() []string {
	defs := m.module.ExportedFunctions()
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close releases the resources associated with the compiled module
func (m *wazeroCompiledModule) Close(ctx context.Context) error {
	return m.module.Close(ctx)
}

// Function returns a handle to an exported function
func (m *wazeroModuleInstance) Function(name string) runtime.FunctionInstance {
	fn := m.instance.ExportedFunction(name)
	if fn == nil {
		return nil
	}
	return &wazeroFunctionInstance{function: fn}
}

// Memory returns the memory instance of the module
func (m *wazeroModuleInstance) Memory() runtime.Memory {
	memory := m.instance.Memory()
	if memory == nil {
		return nil
	}
	return &wazeroMemory{memory: memory}
}

// Close closes the instance and releases its resources
func (m *wazeroModuleInstance) Close(ctx context.Context) error {
	return m.instance.Close(ctx)
}

// Call executes the function with the given parameters
func (f *wazeroFunctionInstance) Call(ctx context.Context, params ...uint64) ([]uint64, error) {
	return f.function.Call(ctx, params...)
}

func (f *wazeroFunctionInstance) ParamTypes() []runtime.ValueType {
	return fromAPIValueTypes(f.function.Definition().ParamTypes())
}

func (f *wazeroFunctionInstance) ResultTypes() []runtime.ValueType {
	return fromAPIValueTypes(f.function.Definition().ResultTypes())
}

// Read reads 'size' bytes from the memory at 'offset'
func (mem *wazeroMemory) Read(offset uint32, size uint32) ([]byte, bool) {
	return mem.memory.Read(offset, size)
}

// Write writes 'data' to the memory at 'offset'
func (mem *wazeroMemory) Write(offset uint32, data []byte) bool {
	return mem.memory.Write(offset, data)
}

// Size returns the current memory size in bytes
func (mem *wazeroMemory) Size() uint32 {
	return mem.memory.Size()
}

// Close releases runtime-specific resources
func (c *wazeroContext) Close(ctx context.Context) error {
	if c.sys == nil {
		return nil
	}
	return c.sys.Close(ctx)
}

// WithRuntimeContext returns a context configured for runtime-specific operations
func (c *wazeroContext) WithRuntimeContext(ctx context.Context) context.Context {
	if c.wasiP1HostModule == nil {
		return ctx
	}
	return withModuleInstance(ctx, c.wasiP1HostModule)
}

// instantiateHostModule creates and instantiates the host module with exported functions
func (r *wazeroRuntime) instantiateHostModule(ctx context.Context, hostModule *runtime.HostModule) (api.Module, error) {
	builder := r.runtime.NewHostModuleBuilder(hostModule.Name)

	for _, hostFunc := range hostModule.Functions {
		wazeroImpl := hostFunc.Function.GetImplementation(runtime.TypeWazero)
		if wazeroImpl == nil {
			return nil, fmt.Errorf("no wazero implementation for host function %s: %w", hostFunc.FunctionName, runtime.ErrHostFunctionNotFound)
		}

		wazeroFunc, ok := wazeroImpl.(func(context.Context, api.Module, []uint64))
		if !ok {
			return nil, fmt.Errorf("invalid wazero function signature for %s: %w", hostFunc.FunctionName, runtime.ErrHostFunctionNotFound)
		}

		builder = builder.NewFunctionBuilder().
			WithGoModuleFunction(api.GoModuleFunc(wazeroFunc), toAPIValueTypes(hostFunc.ParamTypes), toAPIValueTypes(hostFunc.ResultTypes)).
			Export(hostFunc.FunctionName)
	}

	return builder.Instantiate(ctx)
}

func toAPIValueTypes(types []runtime.ValueType) []api.ValueType {
	out := make([]api.ValueType, len(types))
	for i, vt := range types {
		out[i] = convertValueType(vt)
	}
	return out
}

func fromAPIValueTypes(types []api.ValueType) []runtime.ValueType {
	out := make([]runtime.ValueType, len(types))
	for i, vt := range types {
		switch vt {
		case api.ValueTypeI64:
			out[i] = runtime.ValueTypeI64
		case api.ValueTypeF32:
			out[i] = runtime.ValueTypeF32
		case api.ValueTypeF64:
			out[i] = runtime.ValueTypeF64
		default:
			out[i] = runtime.ValueTypeI32
		}
	}
	return out
}

// convertValueType converts runtime.ValueType to api.ValueType
func convertValueType(vt runtime.ValueType) api.ValueType {
	switch vt {
	case runtime.ValueTypeI32:
		return api.ValueTypeI32
	case runtime.ValueTypeI64:
		return api.ValueTypeI64
	case runtime.ValueTypeF32:
		return api.ValueTypeF32
	case runtime.ValueTypeF64:
		return api.ValueTypeF64
	default:
		return api.ValueTypeI32 // default fallback
	}
}

// moduleInstanceFor returns the module instance from the context that contains the internal
// state required for WASI host functions.
// NOTE: wasi-go returns context containing internal state when initializing the host module,
// and the same context is required when calling wasi functions exposed by wasi-go.
func moduleInstanceFor[T wazergo.Module](ctx context.Context) (res T, ok bool) {
	res, ok = ctx.Value((*wazergo.ModuleInstance[T])(nil)).(T)
	return
}

// withModuleInstance returns a Go context inheriting from ctx and containing the
// state needed for module instantiated from wazero host module to properly bind
// their methods to their receiver (e.g. the module instance).
func withModuleInstance[T wazergo.Module](ctx context.Context, instance T) context.Context {
	return context.WithValue(ctx, (*wazergo.ModuleInstance[T])(nil), instance)
}

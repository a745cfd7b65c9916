// Package wasmplugin loads a guest module and drives the passing-data
// exchange: write a buffer into guest memory, let the guest transform it,
// and read the result back.
package wasmplugin

import (
	"context"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/otelwasm/guestmem/guestmem"
	"github.com/otelwasm/guestmem/runtime"
	_ "github.com/otelwasm/guestmem/runtime/wazero" // Register Wazero runtime
)

// Plugin is an instantiated guest module. Its methods are safe for
// concurrent use; calls into the guest are serialized.
type Plugin struct {
	mu sync.Mutex

	runtime        runtime.Runtime
	runtimeContext runtime.Context
	module         runtime.ModuleInstance
	region         *guestmem.Region

	abi         ABI
	callTimeout time.Duration
	logger      *zap.Logger
	metrics     *metrics
}

type options struct {
	logger     *zap.Logger
	registerer prometheus.Registerer
}

// Option configures a Plugin.
type Option func(*options)

// WithLogger sets the logger used for plugin and guest log output.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithRegisterer registers the plugin metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// New reads the module at cfg.Path and instantiates it.
func New(ctx context.Context, cfg *Config, opts ...Option) (*Plugin, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("wasm: %w", ErrPathRequired)
	}
	binary, err := os.ReadFile(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("wasm: error reading module: %w", err)
	}
	return NewFromBytes(ctx, binary, cfg, opts...)
}

// NewFromBytes instantiates the module in binary.
func NewFromBytes(ctx context.Context, binary []byte, cfg *Config, opts ...Option) (*Plugin, error) {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	cfg.Default()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m, err := newMetrics(o.registerer)
	if err != nil {
		return nil, err
	}

	rt, err := runtime.NewRuntime(&cfg.Runtime)
	if err != nil {
		return nil, fmt.Errorf("wasm: error creating runtime: %w", err)
	}

	p, err := instantiate(ctx, rt, binary, cfg, o, m)
	if err != nil {
		return nil, multierr.Append(err, rt.Close(ctx))
	}
	return p, nil
}

func instantiate(ctx context.Context, rt runtime.Runtime, binary []byte, cfg *Config, o options, m *metrics) (*Plugin, error) {
	compiled, err := rt.Compile(ctx, binary)
	if err != nil {
		return nil, fmt.Errorf("wasm: error compiling module: %w", err)
	}

	abi, err := resolveABI(cfg.ABI, compiled.ExportedFunctions())
	if err != nil {
		return nil, err
	}

	mod, runtimeContext, err := rt.InstantiateWithHost(ctx, compiled, newHostModule(o.logger))
	if err != nil {
		return nil, fmt.Errorf("wasm: error instantiating module: %w", err)
	}

	if err := checkExports(mod, abi); err != nil {
		return nil, multierr.Append(err, runtimeContext.Close(ctx))
	}

	region, err := guestmem.Bind(mod, guestmem.WithCallContext(runtimeContext.WithRuntimeContext))
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("wasm: %w", err), runtimeContext.Close(ctx))
	}

	o.logger.Debug("guest module ready",
		zap.Stringer("abi", abi),
		zap.Uint32("memory_size", region.Size()),
		zap.Duration("call_timeout", cfg.CallTimeout),
	)

	return &Plugin{
		runtime:        rt,
		runtimeContext: runtimeContext,
		module:         mod,
		region:         region,
		abi:            abi,
		callTimeout:    cfg.CallTimeout,
		logger:         o.logger,
		metrics:        m,
	}, nil
}

// ABI returns the exports the plugin uses.
func (p *Plugin) ABI() ABI {
	return p.abi
}

// MemorySize returns the current size of the guest memory in bytes.
func (p *Plugin) MemorySize() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.region.Size()
}

// Transform writes input into the guest buffer, calls the transform export
// and returns the guest's result decoded as UTF-8.
func (p *Plugin) Transform(ctx context.Context, input string) (string, error) {
	var out string
	err := p.exchange(ctx, []byte(input), func(ptr guestmem.Pointer, n uint32) (int, error) {
		s, err := p.region.ReadUTF8(ptr, n)
		out = s
		return len(s), err
	})
	return out, err
}

// TransformBytes is Transform for payloads that are not text.
func (p *Plugin) TransformBytes(ctx context.Context, input []byte) ([]byte, error) {
	var out []byte
	err := p.exchange(ctx, input, func(ptr guestmem.Pointer, n uint32) (int, error) {
		b, err := p.region.ReadBytes(ptr, n)
		out = b
		return len(b), err
	})
	return out, err
}

// exchange runs one round of the protocol. The buffer pointer is fetched
// again after transform since the guest may have grown memory or moved the
// result.
func (p *Plugin) exchange(ctx context.Context, input []byte, read func(guestmem.Pointer, uint32) (int, error)) (err error) {
	if uint64(len(input)) > math.MaxUint32 {
		return fmt.Errorf("wasm: %d bytes: %w", len(input), ErrInputTooLarge)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.callTimeout)
		defer cancel()
	}

	var written, readBytes int
	defer func() {
		p.metrics.observe(written, readBytes, err)
	}()

	ptr, err := p.region.RefreshPointer(ctx, p.abi.PointerExport)
	if err != nil {
		return fmt.Errorf("wasm: error fetching buffer pointer: %w", err)
	}
	if err := p.region.Write(ptr, input); err != nil {
		return fmt.Errorf("wasm: error writing input: %w", err)
	}
	written = len(input)

	results, err := p.region.Call(ctx, p.abi.TransformExport, uint64(len(input)))
	if err != nil {
		return fmt.Errorf("wasm: error calling %s: %w", p.abi.TransformExport, err)
	}
	if len(results) != 1 {
		return fmt.Errorf("wasm: %s returned %d results: %w", p.abi.TransformExport, len(results), guestmem.ErrUnexpectedResults)
	}
	resultLen := uint32(results[0])

	ptr, err = p.region.RefreshPointer(ctx, p.abi.PointerExport)
	if err != nil {
		return fmt.Errorf("wasm: error fetching buffer pointer: %w", err)
	}
	readBytes, err = read(ptr, resultLen)
	if err != nil {
		return fmt.Errorf("wasm: error reading result: %w", err)
	}

	p.logger.Debug("transformed guest buffer",
		zap.Stringer("pointer", ptr),
		zap.Int("input_len", len(input)),
		zap.Uint32("result_len", resultLen),
	)
	return nil
}

// Window is a slice of guest memory around the buffer pointer.
type Window struct {
	// Start is the offset of Bytes[0].
	Start uint32
	// Pointer is the buffer offset the guest reported.
	Pointer uint32
	Bytes   []byte
}

// Peek returns up to before bytes preceding and after bytes following the
// buffer pointer. The window is cut at the memory boundaries.
func (p *Plugin) Peek(ctx context.Context, before, after uint32) (Window, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ptr, err := p.region.RefreshPointer(ctx, p.abi.PointerExport)
	if err != nil {
		return Window{}, fmt.Errorf("wasm: error fetching buffer pointer: %w", err)
	}

	start := ptr.Offset() - min(before, ptr.Offset())
	size := uint64(p.region.Size())
	end := min(uint64(ptr.Offset())+uint64(after), size)
	if uint64(start) > end {
		return Window{}, fmt.Errorf("wasm: buffer pointer %d beyond memory size %d: %w", ptr.Offset(), size, guestmem.ErrOutOfBounds)
	}

	from, err := ptr.Add(int64(start) - int64(ptr.Offset()))
	if err != nil {
		return Window{}, err
	}
	b, err := p.region.ReadBytes(from, uint32(end-uint64(start)))
	if err != nil {
		return Window{}, fmt.Errorf("wasm: error reading window: %w", err)
	}
	return Window{Start: start, Pointer: ptr.Offset(), Bytes: b}, nil
}

// Shutdown closes the WASM runtime and system
func (p *Plugin) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var err error
	if p.runtimeContext != nil {
		if closeErr := p.runtimeContext.Close(ctx); closeErr != nil {
			err = multierr.Append(err, fmt.Errorf("wasm: error closing runtime context: %w", closeErr))
		}
	}
	if p.runtime != nil {
		if closeErr := p.runtime.Close(ctx); closeErr != nil {
			err = multierr.Append(err, fmt.Errorf("wasm: error closing runtime: %w", closeErr))
		}
	}
	return err
}

package guestmem

import (
	"context"
	"fmt"

	"github.com/otelwasm/guestmem/runtime"
)

// Region is a generation-tracked view over the linear memory of one module
// instance. The runtime owns the memory; the Region only borrows it.
type Region struct {
	mod        runtime.ModuleInstance
	mem        runtime.Memory
	generation uint64
	callCtx    func(context.Context) context.Context
}

// Option configures a Region.
type Option func(*Region)

// WithCallContext decorates the context of every guest call, for example
// with runtime state the engine needs during the call.
func WithCallContext(fn func(context.Context) context.Context) Option {
	return func(r *Region) {
		r.callCtx = fn
	}
}

// Bind returns a Region over the memory of mod.
func Bind(mod runtime.ModuleInstance, opts ...Option) (*Region, error) {
	if mod == nil {
		return nil, fmt.Errorf("guestmem: bind: nil module: %w", ErrNoMemory)
	}
	mem := mod.Memory()
	if mem == nil {
		return nil, fmt.Errorf("guestmem: bind: %w", ErrNoMemory)
	}

	r := &Region{mod: mod, mem: mem}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Size returns the current memory size in bytes. It is read from the runtime
// on every call and may change across guest calls.
func (r *Region) Size() uint32 {
	return r.mem.Size()
}

// Generation returns the current generation. It advances on every guest call.
func (r *Region) Generation() uint64 {
	return r.generation
}

// Invalidate advances the generation, making every previously captured
// Pointer stale. Call it after anything outside Call that may have resized
// or rewritten the memory.
func (r *Region) Invalidate() {
	r.generation++
}

// Call invokes the named guest export. The generation advances once the call
// returns, whether it succeeded or trapped, since the host cannot tell
// whether the guest moved its data.
func (r *Region) Call(ctx context.Context, export string, params ...uint64) ([]uint64, error) {
	fn := r.mod.Function(export)
	if fn == nil {
		return nil, &CallError{Export: export, Err: ErrExportNotFound}
	}

	if r.callCtx != nil {
		ctx = r.callCtx(ctx)
	}
	ctx = withRegion(ctx, r)

	defer r.Invalidate()
	results, err := fn.Call(ctx, params...)
	if err != nil {
		return nil, &CallError{Export: export, Err: err}
	}
	return results, nil
}

// RefreshPointer calls a zero-argument export returning an i32 offset and
// captures it at the generation current after that call.
func (r *Region) RefreshPointer(ctx context.Context, export string) (Pointer, error) {
	results, err := r.Call(ctx, export)
	if err != nil {
		return Pointer{}, err
	}
	if len(results) != 1 {
		return Pointer{}, &CallError{
			Export: export,
			Err:    fmt.Errorf("%w: got %d, want 1", ErrUnexpectedResults, len(results)),
		}
	}
	return r.Capture(uint32(results[0]), 0), nil
}

// RefreshSlice calls a zero-argument export returning an i64 that packs an
// offset and an element count as offset<<32 | count.
func (r *Region) RefreshSlice(ctx context.Context, export string) (Pointer, error) {
	results, err := r.Call(ctx, export)
	if err != nil {
		return Pointer{}, err
	}
	if len(results) != 1 {
		return Pointer{}, &CallError{
			Export: export,
			Err:    fmt.Errorf("%w: got %d, want 1", ErrUnexpectedResults, len(results)),
		}
	}
	packed := results[0]
	return r.Capture(uint32(packed>>32), uint32(packed)), nil
}

// Capture wraps an offset and count at the current generation. It is meant
// for host functions, whose pointer arguments come straight from the guest
// during an in-flight call; everything else should use RefreshPointer.
func (r *Region) Capture(offset, count uint32) Pointer {
	return Pointer{
		region:     r,
		offset:     offset,
		count:      count,
		generation: r.generation,
	}
}

type regionKey struct{}

func withRegion(ctx context.Context, r *Region) context.Context {
	return context.WithValue(ctx, regionKey{}, r)
}

// FromContext returns the Region whose Call is in flight, for use inside
// host functions.
func FromContext(ctx context.Context) (*Region, bool) {
	r, ok := ctx.Value(regionKey{}).(*Region)
	return r, ok
}

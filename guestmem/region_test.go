package guestmem

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBind(t *testing.T) {
	_, err := Bind(nil)
	assert.ErrorIs(t, err, ErrNoMemory)

	_, err = Bind(&fakeModule{})
	assert.ErrorIs(t, err, ErrNoMemory)

	r, err := Bind(&fakeModule{mem: &fakeMemory{buf: make([]byte, 42)}})
	require.NoError(t, err)
	assert.Equal(t, uint32(42), r.Size())
	assert.Equal(t, uint64(0), r.Generation())
}

func TestCall(t *testing.T) {
	ctx := context.Background()

	t.Run("missing export does not advance the generation", func(t *testing.T) {
		r, _ := newFakeRegion(16)
		_, err := r.Call(ctx, "missing")
		require.ErrorIs(t, err, ErrExportNotFound)
		var callErr *CallError
		require.ErrorAs(t, err, &callErr)
		assert.Equal(t, "missing", callErr.Export)
		assert.Equal(t, uint64(0), r.Generation())
	})

	t.Run("trap is wrapped and advances the generation", func(t *testing.T) {
		r, _ := newFakeRegion(16)
		_, err := r.Call(ctx, "trap")
		require.ErrorIs(t, err, errTrap)
		var callErr *CallError
		require.ErrorAs(t, err, &callErr)
		assert.Equal(t, "trap", callErr.Export)
		assert.Equal(t, uint64(1), r.Generation())
	})

	t.Run("each call advances the generation once", func(t *testing.T) {
		r, _ := newFakeRegion(16)
		for i := 1; i <= 3; i++ {
			_, err := r.Call(ctx, "noop")
			require.NoError(t, err)
			assert.Equal(t, uint64(i), r.Generation())
		}
	})

	t.Run("call context is decorated", func(t *testing.T) {
		type key struct{}
		var sawValue, sawRegion bool
		mod := &fakeModule{
			mem: &fakeMemory{buf: make([]byte, 16)},
			funcs: map[string]fakeFunction{
				"check": func(ctx context.Context, _ []uint64) ([]uint64, error) {
					sawValue = ctx.Value(key{}) == "runtime state"
					_, sawRegion = FromContext(ctx)
					return nil, nil
				},
			},
		}
		r, err := Bind(mod, WithCallContext(func(ctx context.Context) context.Context {
			return context.WithValue(ctx, key{}, "runtime state")
		}))
		require.NoError(t, err)

		_, err = r.Call(ctx, "check")
		require.NoError(t, err)
		assert.True(t, sawValue)
		assert.True(t, sawRegion)
	})
}

func TestRefreshPointer(t *testing.T) {
	ctx := context.Background()

	t.Run("captures at the post-call generation", func(t *testing.T) {
		r, _ := newFakeRegion(64)
		p, err := r.RefreshPointer(ctx, "ptr")
		require.NoError(t, err)
		assert.Equal(t, uint32(16), p.Offset())
		assert.Equal(t, uint32(0), p.Count())
		assert.Equal(t, r.Generation(), p.Generation())
		assert.Equal(t, PointerValid, p.State())
	})

	t.Run("rejects wrong result count", func(t *testing.T) {
		r, _ := newFakeRegion(64)
		p, err := r.RefreshPointer(ctx, "noop")
		require.ErrorIs(t, err, ErrUnexpectedResults)
		assert.True(t, p.IsZero())
	})

	t.Run("propagates call errors", func(t *testing.T) {
		r, _ := newFakeRegion(64)
		_, err := r.RefreshPointer(ctx, "absent")
		require.ErrorIs(t, err, ErrExportNotFound)
	})
}

func TestRefreshSlice(t *testing.T) {
	mod := &fakeModule{
		mem: &fakeMemory{buf: make([]byte, 64)},
		funcs: map[string]fakeFunction{
			"slice": func(context.Context, []uint64) ([]uint64, error) {
				return []uint64{uint64(20)<<32 | 7}, nil
			},
		},
	}
	r, err := Bind(mod)
	require.NoError(t, err)
	copy(mod.mem.buf[20:], "payload")

	p, err := r.RefreshSlice(context.Background(), "slice")
	require.NoError(t, err)
	assert.Equal(t, uint32(20), p.Offset())
	assert.Equal(t, uint32(7), p.Count())

	s, err := r.ReadSliceUTF8(p)
	require.NoError(t, err)
	assert.Equal(t, "payload", s)
}

func TestCaptureInsideHostCall(t *testing.T) {
	var logged string
	mod := &fakeModule{mem: &fakeMemory{buf: make([]byte, 64)}}
	mod.funcs = map[string]fakeFunction{
		// Stands in for a guest export that calls a host import with a
		// pointer to its message.
		"emit": func(ctx context.Context, _ []uint64) ([]uint64, error) {
			copy(mod.mem.buf[32:], "from guest")
			r, ok := FromContext(ctx)
			if !ok {
				return nil, errors.New("no region in context")
			}
			msg, err := r.ReadUTF8(r.Capture(32, 10), 10)
			if err != nil {
				return nil, err
			}
			logged = msg
			return nil, nil
		},
	}
	r, err := Bind(mod)
	require.NoError(t, err)

	_, err = r.Call(context.Background(), "emit")
	require.NoError(t, err)
	assert.Equal(t, "from guest", logged)
}

func TestFromContextWithoutCall(t *testing.T) {
	r, ok := FromContext(context.Background())
	assert.False(t, ok)
	assert.Nil(t, r)
}

func TestPointerAdd(t *testing.T) {
	r, _ := newFakeRegion(64)
	p := r.Capture(10, 3)

	q, err := p.Add(5)
	require.NoError(t, err)
	assert.Equal(t, uint32(15), q.Offset())
	assert.Equal(t, p.Generation(), q.Generation())
	assert.Equal(t, uint32(3), q.Count())

	q, err = p.Add(-10)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), q.Offset())

	_, err = p.Add(-11)
	assert.ErrorIs(t, err, ErrOutOfBounds)

	_, err = r.Capture(math.MaxUint32, 0).Add(1)
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestPointerString(t *testing.T) {
	r, _ := newFakeRegion(64)
	assert.Equal(t, "<unbound>", Pointer{}.String())
	assert.Equal(t, "0x10[4]@0", r.Capture(16, 4).String())

	assert.Equal(t, "unbound", PointerUnbound.String())
	assert.Equal(t, "valid", PointerValid.String())
	assert.Equal(t, "stale", PointerStale.String())
	assert.Equal(t, "PointerState(9)", PointerState(9).String())
}

func TestMemoryErrorMessages(t *testing.T) {
	r, _ := newFakeRegion(8)
	p := r.Capture(6, 0)

	err := r.Write(p, []byte("abc"))
	assert.EqualError(t, err, "guestmem: write [6, 9) exceeds memory size 8: out of bounds")

	r.Invalidate()
	_, err = r.ReadBytes(p, 1)
	assert.EqualError(t, err, "guestmem: read at 6: stale pointer (captured at generation 0, region is at 1)")
}

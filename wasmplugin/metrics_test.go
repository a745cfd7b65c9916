package wasmplugin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otelwasm/guestmem/guestmem"
	"github.com/otelwasm/guestmem/internal/guestbin"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := newTestPlugin(t, guestbin.Default(), nil, WithRegisterer(reg))
	ctx := context.Background()

	_, err := p.Transform(ctx, "Did you know")
	require.NoError(t, err)
	_, err = p.TransformBytes(ctx, bytes.Repeat([]byte{'x'}, guestbin.PageSize))
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.transforms.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.transforms.WithLabelValues("error")))
	assert.Equal(t, 12.0, testutil.ToFloat64(p.metrics.bytes.WithLabelValues("in")))
	assert.Equal(t, 26.0, testutil.ToFloat64(p.metrics.bytes.WithLabelValues("out")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.errors.WithLabelValues("out_of_bounds")))

	n, err := testutil.GatherAndCount(reg, "guestmem_transforms_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMetricsSharedRegisterer(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := newTestPlugin(t, guestbin.Default(), nil, WithRegisterer(reg))
	second := newTestPlugin(t, guestbin.Default(), nil, WithRegisterer(reg))
	ctx := context.Background()

	_, err := first.Transform(ctx, "a")
	require.NoError(t, err)
	_, err = second.Transform(ctx, "b")
	require.NoError(t, err)

	assert.Same(t, first.metrics.transforms, second.metrics.transforms)
	assert.Equal(t, 2.0, testutil.ToFloat64(second.metrics.transforms.WithLabelValues("success")))

	n, err := testutil.GatherAndCount(reg, "guestmem_transforms_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMetricsRegisterConflict(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGauge(prometheus.GaugeOpts{Name: "guestmem_errors_total", Help: "x"}))

	_, err := NewFromBytes(context.Background(), guestbin.Default(), &Config{}, WithRegisterer(reg))
	require.Error(t, err)
}

func TestMetricsWithoutRegisterer(t *testing.T) {
	m, err := newMetrics(nil)
	require.NoError(t, err)
	m.observe(3, 5, nil)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transforms.WithLabelValues("success")))
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&guestmem.MemoryError{Op: "read", Err: guestmem.ErrStalePointer}, "stale_pointer"},
		{fmt.Errorf("wasm: %w", &guestmem.MemoryError{Op: "write", Err: guestmem.ErrOutOfBounds}), "out_of_bounds"},
		{&guestmem.UTF8Error{Index: 1}, "invalid_utf8"},
		{&guestmem.CallError{Export: "transform", Err: errors.New("trap")}, "call"},
		{errors.New("other"), "other"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, errorKind(tt.err), "%v", tt.err)
	}
}

package wasmplugin

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/otelwasm/guestmem/guestmem"
)

type metrics struct {
	transforms *prometheus.CounterVec
	bytes      *prometheus.CounterVec
	errors     *prometheus.CounterVec
}

// newMetrics creates the plugin metrics. They are only registered when reg
// is non-nil. Plugins sharing a registerer share the collectors already
// registered there.
func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		transforms: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "guestmem",
			Name:      "transforms_total",
			Help:      "Total number of guest transforms by outcome.",
		}, []string{"outcome"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "guestmem",
			Name:      "transferred_bytes_total",
			Help:      "Bytes copied between host and guest memory.",
		}, []string{"direction"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "guestmem",
			Name:      "errors_total",
			Help:      "Guest memory access and call failures by kind.",
		}, []string{"kind"}),
	}
	if reg == nil {
		return m, nil
	}

	var err error
	if m.transforms, err = register(reg, m.transforms); err != nil {
		return nil, err
	}
	if m.bytes, err = register(reg, m.bytes); err != nil {
		return nil, err
	}
	if m.errors, err = register(reg, m.errors); err != nil {
		return nil, err
	}
	return m, nil
}

// register registers c with reg, returning the collector that was already
// registered under the same descriptor if there is one.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(T); ok {
			return existing, nil
		}
	}
	return c, fmt.Errorf("wasm: error registering metrics: %w", err)
}

func (m *metrics) observe(written, read int, err error) {
	m.bytes.WithLabelValues("in").Add(float64(written))
	m.bytes.WithLabelValues("out").Add(float64(read))
	if err == nil {
		m.transforms.WithLabelValues("success").Inc()
		return
	}
	m.transforms.WithLabelValues("error").Inc()
	m.errors.WithLabelValues(errorKind(err)).Inc()
}

// errorKind classifies err for the errors_total label.
func errorKind(err error) string {
	var callErr *guestmem.CallError
	switch {
	case errors.Is(err, guestmem.ErrStalePointer):
		return "stale_pointer"
	case errors.Is(err, guestmem.ErrOutOfBounds):
		return "out_of_bounds"
	case errors.Is(err, guestmem.ErrInvalidUTF8):
		return "invalid_utf8"
	case errors.As(err, &callErr):
		return "call"
	default:
		return "other"
	}
}

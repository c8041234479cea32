package observability

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// register adds c to reg. When an equal collector is already registered the
// existing one is returned so several stations can share a registry.
func register[C prometheus.Collector](reg prometheus.Registerer, c C, name string) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if !errors.As(err, &are) {
		var zero C
		return zero, err
	}
	existing, ok := are.ExistingCollector.(C)
	if !ok {
		var zero C
		return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
	}
	return existing, nil
}

func registerCounter(reg prometheus.Registerer, c prometheus.Counter, name string) (prometheus.Counter, error) {
	return register(reg, c, name)
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	return register(reg, h, name)
}

func registerGauge(reg prometheus.Registerer, g prometheus.Gauge, name string) (prometheus.Gauge, error) {
	return register(reg, g, name)
}

func registerGaugeVec(reg prometheus.Registerer, v *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	return register(reg, v, name)
}

func registerCounterVec(reg prometheus.Registerer, v *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	return register(reg, v, name)
}

func registerHistogramVec(reg prometheus.Registerer, v *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	return register(reg, v, name)
}

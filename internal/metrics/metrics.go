package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var Observer = &Metrics{
	mutex:      new(sync.RWMutex),
	prometheus: NewPrometheusMetrics(),
}

func init() {
	prometheus.MustRegister(Observer.prometheus.Fits)
	prometheus.MustRegister(Observer.prometheus.Iterations)
}

type Metrics struct {
	mutex      *sync.RWMutex
	prometheus Prometheus
}

// TrackFit counts a completed fit together with the iterations it consumed,
// labeled by the terminal state.
func (m *Metrics) TrackFit(state string, iterations int) {
	m.prometheus.Fits.WithLabelValues(state).Inc()
	m.prometheus.Iterations.WithLabelValues(state).Add(float64(iterations))
}

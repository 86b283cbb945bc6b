package metrics

import "github.com/prometheus/client_golang/prometheus"

type Prometheus struct {
	Fits       *prometheus.CounterVec
	Iterations *prometheus.CounterVec
}

func NewPrometheusMetrics() Prometheus {
	return Prometheus{
		Fits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gaussmix",
				Name:      "fits",
			}, []string{"state"}),
		Iterations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gaussmix",
				Name:      "iterations",
			}, []string{"state"}),
	}
}

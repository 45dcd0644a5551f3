package trace

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	spansEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptkit_spans_emitted_total",
		Help: "Terminal spans emitted by generation decorators.",
	}, []string{"provider"})

	generationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptkit_generation_errors_total",
		Help: "Wrapped generation calls that returned an error.",
	}, []string{"provider"})
)

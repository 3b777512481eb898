package evolve

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the Prometheus collectors updated by a Scheduler.
type Metrics struct {
	Generations           prometheus.Counter
	BestFitness           prometheus.Gauge
	MeanFitness           prometheus.Gauge
	Species               prometheus.Gauge
	EvaluationFailures    *prometheus.CounterVec
	EvaluationDuration    prometheus.Histogram
	DegenerateGenerations prometheus.Counter
}

// NewMetrics creates the scheduler collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Generations: factory.NewCounter(prometheus.CounterOpts{
			Name: "neat_generations_total",
			Help: "Total generations completed",
		}),
		BestFitness: factory.NewGauge(prometheus.GaugeOpts{
			Name: "neat_best_fitness",
			Help: "Best raw fitness of the most recent generation",
		}),
		MeanFitness: factory.NewGauge(prometheus.GaugeOpts{
			Name: "neat_mean_fitness",
			Help: "Mean raw fitness of the most recent generation",
		}),
		Species: factory.NewGauge(prometheus.GaugeOpts{
			Name: "neat_species",
			Help: "Number of species after speciation",
		}),
		EvaluationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "neat_evaluation_failures_total",
			Help: "Total failed evaluations by reason",
		}, []string{"reason"}),
		EvaluationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "neat_evaluation_duration_seconds",
			Help:    "Duration of a single genome evaluation in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10), // 0.1ms to ~26s
		}),
		DegenerateGenerations: factory.NewCounter(prometheus.CounterOpts{
			Name: "neat_degenerate_generations_total",
			Help: "Generations that had to reseed the population",
		}),
	}
}

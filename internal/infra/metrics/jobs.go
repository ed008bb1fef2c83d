package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(jobsCreatedTotal, jobsProcessedTotal, jobProcessingMs, jobDuplicateDeliveries)
}

var (
	jobsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generation_jobs_created_total",
			Help: "Total jobs created, labeled by topic.",
		},
		[]string{"topic"},
	)

	jobsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generation_jobs_processed_total",
			Help: "Total jobs reaching a terminal state, labeled by status and topic.",
		},
		[]string{"status", "topic"},
	)

	jobProcessingMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "generation_job_processing_ms",
			Help:    "Job processing time distribution in milliseconds.",
			Buckets: []float64{100, 250, 500, 1000, 2500, 5000, 10000, 20000, 45000, 90000},
		},
		[]string{"topic"},
	)

	jobDuplicateDeliveries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "generation_job_duplicate_deliveries_total",
			Help: "Trigger events observed for jobs no longer pending (redeliveries).",
		},
	)
)

func IncJobCreated(topic string) {
	jobsCreatedTotal.WithLabelValues(norm(topic)).Inc()
}

func IncJobProcessed(status, topic string) {
	jobsProcessedTotal.WithLabelValues(norm(status), norm(topic)).Inc()
}

func ObserveJobProcessing(topic string, ms int64) {
	jobProcessingMs.WithLabelValues(norm(topic)).Observe(float64(ms))
}

func IncDuplicateDelivery() { jobDuplicateDeliveries.Inc() }

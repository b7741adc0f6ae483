package runner

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wehubfusion/datacleaner/pkg/data"
	"github.com/wehubfusion/datacleaner/pkg/job"
)

// MetricsListener exports run statistics as Prometheus metrics
type MetricsListener struct {
	ListenerAdaptor

	rows            *prometheus.CounterVec
	componentErrors *prometheus.CounterVec
	jobs            *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	active          prometheus.Gauge
}

// Job outcome label values
const (
	OutcomeSuccess   = "success"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// NewMetricsListener creates the collectors and registers them with reg.
// A nil reg uses the default registerer.
func NewMetricsListener(reg prometheus.Registerer) (*MetricsListener, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	l := &MetricsListener{
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "datacleaner",
			Name:      "rows_processed_total",
			Help:      "Rows pushed through the component chain.",
		}, []string{"job"}),
		componentErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "datacleaner",
			Name:      "component_errors_total",
			Help:      "Errors raised by components.",
		}, []string{"job", "component"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "datacleaner",
			Name:      "jobs_total",
			Help:      "Finished runs by outcome.",
		}, []string{"job", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "datacleaner",
			Name:      "job_duration_seconds",
			Help:      "Duration of runs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"job"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "datacleaner",
			Name:      "jobs_active",
			Help:      "Runs currently in progress.",
		}),
	}
	for _, c := range []prometheus.Collector{l.rows, l.componentErrors, l.jobs, l.duration, l.active} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return l, nil
}

func (l *MetricsListener) JobBegin(*job.AnalysisJob, JobMetrics) {
	l.active.Inc()
}

func (l *MetricsListener) JobSuccess(aj *job.AnalysisJob, m JobMetrics) {
	l.finish(aj, m, OutcomeSuccess)
}

func (l *MetricsListener) JobFailed(aj *job.AnalysisJob, m JobMetrics, _ error) {
	l.finish(aj, m, OutcomeFailed)
}

func (l *MetricsListener) JobCancelled(aj *job.AnalysisJob, m JobMetrics) {
	l.finish(aj, m, OutcomeCancelled)
}

func (l *MetricsListener) ErrorInComponent(aj *job.AnalysisJob, cj job.ComponentJob, _ data.InputRow, _ error) {
	l.componentErrors.WithLabelValues(aj.Name(), cj.Name()).Inc()
}

func (l *MetricsListener) finish(aj *job.AnalysisJob, m JobMetrics, outcome string) {
	l.active.Dec()
	l.rows.WithLabelValues(aj.Name()).Add(float64(m.RowsProcessed))
	l.jobs.WithLabelValues(aj.Name(), outcome).Inc()
	l.duration.WithLabelValues(aj.Name()).Observe(m.Duration.Seconds())
}

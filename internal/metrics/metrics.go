package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg       *prometheus.Registry
	Processed prometheus.Counter
	Errors    prometheus.Counter

	ValidationPassed prometheus.Counter
	ValidationFailed prometheus.Counter
	Forwarded        prometheus.Counter

	Registered       prometheus.Counter
	RegistrySkipped  prometheus.Counter
	RegistryUpdated  prometheus.Counter
	PersistLatency   prometheus.Histogram
	LastCommitAgeSec prometheus.Gauge
	SnapshotAgeSec   prometheus.Gauge
}

func NewRegistry(role string) *Registry {
	r := prometheus.NewRegistry()
	labels := prometheus.Labels{"role": role}

	processed := prometheus.NewCounter(prometheus.CounterOpts{Name: "osp_processed_total", ConstLabels: labels})
	errs := prometheus.NewCounter(prometheus.CounterOpts{Name: "osp_errors_total", ConstLabels: labels})
	vPassed := prometheus.NewCounter(prometheus.CounterOpts{Name: "osp_validation_passed_total", ConstLabels: labels})
	vFailed := prometheus.NewCounter(prometheus.CounterOpts{Name: "osp_validation_failed_total", ConstLabels: labels})
	forwarded := prometheus.NewCounter(prometheus.CounterOpts{Name: "osp_forwarded_total", ConstLabels: labels})
	registered := prometheus.NewCounter(prometheus.CounterOpts{Name: "osp_registered_total", ConstLabels: labels})
	skipped := prometheus.NewCounter(prometheus.CounterOpts{Name: "osp_registry_skipped_total", ConstLabels: labels})
	updated := prometheus.NewCounter(prometheus.CounterOpts{Name: "osp_registry_updated_total", ConstLabels: labels})
	persistLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "osp_persist_latency_seconds",
		ConstLabels: labels,
		Buckets:     prometheus.DefBuckets,
	})
	commitAge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "osp_last_commit_age_seconds", ConstLabels: labels})
	snapAge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "osp_last_snapshot_age_seconds", ConstLabels: labels})

	r.MustRegister(processed, errs, vPassed, vFailed, forwarded, registered, skipped, updated, persistLatency, commitAge, snapAge)
	return &Registry{
		reg:              r,
		Processed:        processed,
		Errors:           errs,
		ValidationPassed: vPassed,
		ValidationFailed: vFailed,
		Forwarded:        forwarded,
		Registered:       registered,
		RegistrySkipped:  skipped,
		RegistryUpdated:  updated,
		PersistLatency:   persistLatency,
		LastCommitAgeSec: commitAge,
		SnapshotAgeSec:   snapAge,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }

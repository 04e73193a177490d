// Package metrics holds the Prometheus instruments for document scanning.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/joseph-ayodele/idscan/constants"
)

const namespace = "idscan"

// Processing stages reported by ProcessFailure.
const (
	StageLoad     = "load"
	StageOCR      = "ocr"
	StageValidate = "validate"
	StagePersist  = "persist"
)

// Metrics is nil-safe: every method on a nil *Metrics is a no-op.
type Metrics struct {
	extractions     *prometheus.CounterVec
	fieldsNotFound  *prometheus.CounterVec
	ocrDuration     prometheus.Histogram
	processFailures *prometheus.CounterVec
}

// New creates the instruments and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		extractions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractions_total",
			Help:      "Identity field extractions run, by document type.",
		}, []string{"document_type"}),
		fieldsNotFound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fields_not_found_total",
			Help:      "Fields left at the Not Found sentinel, by document type and field.",
		}, []string{"document_type", "field"}),
		ocrDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ocr_duration_seconds",
			Help:      "Wall time of text recognition per image.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}),
		processFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_failures_total",
			Help:      "Failed file processing runs, by stage.",
		}, []string{"stage"}),
	}
	for _, c := range []prometheus.Collector{m.extractions, m.fieldsNotFound, m.ocrDuration, m.processFailures} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveExtraction counts one extraction and each field it could not resolve.
func (m *Metrics) ObserveExtraction(docType constants.DocumentType, undetected []constants.Field) {
	if m == nil {
		return
	}
	m.extractions.WithLabelValues(string(docType)).Inc()
	for _, f := range undetected {
		m.fieldsNotFound.WithLabelValues(string(docType), string(f)).Inc()
	}
}

func (m *Metrics) ObserveOCR(d time.Duration) {
	if m == nil {
		return
	}
	m.ocrDuration.Observe(d.Seconds())
}

func (m *Metrics) ProcessFailure(stage string) {
	if m == nil {
		return
	}
	m.processFailures.WithLabelValues(stage).Inc()
}

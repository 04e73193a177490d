package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/idscan/constants"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.ObserveExtraction(constants.Passport, nil)
	m.ObserveExtraction(constants.Passport, []constants.Field{constants.FieldName})
	m.ObserveExtraction(constants.License, []constants.Field{constants.FieldName, constants.FieldExpirationDate})
	m.ObserveOCR(1500 * time.Millisecond)
	m.ProcessFailure(StageOCR)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.extractions.WithLabelValues("passport")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.extractions.WithLabelValues("license")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fieldsNotFound.WithLabelValues("license", "expiration_date")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.processFailures.WithLabelValues("ocr")))

	expected := `
# HELP idscan_fields_not_found_total Fields left at the Not Found sentinel, by document type and field.
# TYPE idscan_fields_not_found_total counter
idscan_fields_not_found_total{document_type="license",field="expiration_date"} 1
idscan_fields_not_found_total{document_type="license",field="name"} 1
idscan_fields_not_found_total{document_type="passport",field="name"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "idscan_fields_not_found_total"))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ocrDuration))
}

func TestMetrics_DoubleRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveExtraction(constants.Passport, constants.Fields())
		m.ObserveOCR(time.Second)
		m.ProcessFailure(StagePersist)
	})
}

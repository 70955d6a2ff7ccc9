package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ribasimcore/internal/metrics"
)

func TestRecordStepAccepted(t *testing.T) {
	m := metrics.InitMetrics("ribasim_test", "steps")
	m.RecordStep(true, 2*time.Millisecond, 123.0)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.StepsTotal.WithLabelValues("accepted")))
	assert.Equal(t, float64(123), testutil.ToFloat64(m.CurrentTime))
}

func TestRecordStepRejectedIncrementsCounter(t *testing.T) {
	m := metrics.InitMetrics("ribasim_test", "steps2")
	m.RecordStep(false, time.Millisecond, 0)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RejectedSteps))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.StepsTotal.WithLabelValues("rejected")))
}

func TestRecordShortagePerPriority(t *testing.T) {
	m := metrics.InitMetrics("ribasim_test", "alloc")
	m.RecordShortage("main", 1, 0.0)
	m.RecordShortage("main", 2, 4.5)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.AllocationShortage.WithLabelValues("main", "1")))
	assert.Equal(t, 4.5, testutil.ToFloat64(m.AllocationShortage.WithLabelValues("main", "2")))
}

func TestGetLazyInitializes(t *testing.T) {
	require.NotPanics(t, func() {
		_ = metrics.Get()
	})
}

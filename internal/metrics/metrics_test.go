package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Observe("squat", false, false)
	m.Observe("squat", true, false)
	m.Observe("squat", false, true)
	m.Observe("push-up", false, false)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.Frames.WithLabelValues("squat")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SkippedFrames.WithLabelValues("squat")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reps.WithLabelValues("squat")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Frames.WithLabelValues("push-up")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 3)
}

func TestObserveNil(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() { m.Observe("squat", true, true) })
}

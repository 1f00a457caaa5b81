package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/raaihank/llm-anonymizer/internal/privacy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderObservesEngine(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := New(reg)

	detectors := privacy.NewRegistry()
	require.NoError(t, detectors.Register("id", privacy.DetectorFunc(func(context.Context, string) ([]privacy.Match, error) {
		return privacy.Literals("id", "42", "7"), nil
	})))
	require.NoError(t, detectors.Register("name", privacy.DetectorFunc(func(context.Context, string) ([]privacy.Match, error) {
		return nil, errors.New("unavailable")
	})))

	opts := privacy.DefaultOptions()
	opts.Observer = rec
	a, err := privacy.New(detectors, opts, nil)
	require.NoError(t, err)

	masked := a.Hide("order 42 item 7")
	a.Fill(masked)

	assert.Equal(t, 1.0, testutil.ToFloat64(rec.HideTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.FillTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(rec.Placeholders.WithLabelValues("id")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.DetectorDegraded.WithLabelValues("name")))
	assert.Equal(t, 0.0, testutil.ToFloat64(rec.DetectorDegraded.WithLabelValues("id")))
	assert.Equal(t, 2, testutil.CollectAndCount(rec.DetectorDuration))
}

func TestRecorderIsolatedRegistries(t *testing.T) {
	a := New(prometheus.NewRegistry())
	b := New(prometheus.NewRegistry())

	a.Restored(time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(a.FillTotal))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.FillTotal))
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}

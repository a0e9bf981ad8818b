// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metrics

import (
	"testing"

	"github.com/luxfi/alto/wire"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersAllMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)
	require.NotNil(t, m.FinalizedHeight)
	require.NotNil(t, m.FetchLatency)
}

func TestNewFailsOnDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)

	_, err = New(reg)
	require.Error(t, err)
}

func TestAveragerReadsZeroBeforeAnyObservation(t *testing.T) {
	reg := prometheus.NewRegistry()
	avg, err := NewAverager("test_metric", "a test metric", reg)
	require.NoError(t, err)
	require.Equal(t, float64(0), avg.Read())
}

func TestAveragerComputesRunningAverage(t *testing.T) {
	reg := prometheus.NewRegistry()
	avg, err := NewAverager("test_metric2", "a test metric", reg)
	require.NoError(t, err)

	avg.Observe(10)
	avg.Observe(20)
	avg.Observe(30)
	require.Equal(t, float64(20), avg.Read())
}

func TestNewAveragerWithErrsRecordsFailureInsteadOfPanicking(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewAverager("dup_metric", "dup", reg)
	require.NoError(t, err)

	var errs wire.Errs
	avg := NewAveragerWithErrs("dup_metric", "dup", reg, &errs)
	require.NotNil(t, avg)
	require.True(t, errs.Errored())

	// A failed averager is still safe to observe/read (no registered
	// collectors behind it).
	avg.Observe(5)
	require.Equal(t, float64(5), avg.Read())
}

// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package metrics wraps the prometheus gauges/counters the syncer and
// finalizer publish, in the same registerer-passed-in style as this
// package's adjacent metric.go (NewAverager(name, help, reg)).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every gauge/counter the marshal core publishes
// (spec.md §5, §4.7.1, §4.8).
type Metrics struct {
	FinalizedHeight     prometheus.Gauge
	ContiguousHeight    prometheus.Gauge
	OutstandingNotarize prometheus.Gauge
	RequestedBlocks     prometheus.Gauge
	ArchivePrunes       prometheus.Counter
	ResolverRetries     prometheus.Counter
	IndexerUploadErrors prometheus.Counter
	FetchLatency        Averager
}

// New registers every metric with reg and returns the bundle.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		FinalizedHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "alto_finalized_height",
			Help: "Height of the most recently finalized block.",
		}),
		ContiguousHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "alto_contiguous_height",
			Help: "Highest height the finalizer has contiguously processed from genesis.",
		}),
		OutstandingNotarize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "alto_outstanding_notarize",
			Help: "Number of views the syncer is waiting on a notarized block fetch for.",
		}),
		RequestedBlocks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "alto_requested_blocks",
			Help: "Number of heights the syncer is waiting on a finalized block fetch for.",
		}),
		ArchivePrunes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alto_archive_prunes_total",
			Help: "Number of prunable-archive prune operations performed.",
		}),
		ResolverRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alto_resolver_retries_total",
			Help: "Number of resolver fetch retries issued.",
		}),
		IndexerUploadErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alto_indexer_upload_errors_total",
			Help: "Number of indexer uploads that failed and were dropped.",
		}),
	}
	for _, c := range []prometheus.Collector{
		m.FinalizedHeight, m.ContiguousHeight, m.OutstandingNotarize,
		m.RequestedBlocks, m.ArchivePrunes, m.ResolverRetries, m.IndexerUploadErrors,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	avg, err := NewAverager("alto_resolver_fetch_latency_ms", "resolver fetch latency in milliseconds", reg)
	if err != nil {
		return nil, err
	}
	m.FetchLatency = avg
	return m, nil
}

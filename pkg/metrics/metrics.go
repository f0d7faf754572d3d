// Copyright 2025 The neocore Authors
//
// Package metrics exposes the core's counters and gauges through
// prometheus/client_golang, the way the rest of this lineage instruments its
// services. Unlike a package-level prometheus.DefaultRegisterer singleton,
// NewMetrics takes its own *prometheus.Registry so a test (or a process that
// restarts a consensus instance) can construct a fresh, non-colliding set.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every counter/gauge the consensus and ledger packages report
// against. Fields are exported so callers can .Inc()/.Set() them directly.
type Metrics struct {
	// Consensus
	ConsensusHeight        prometheus.Gauge
	ConsensusView          prometheus.Gauge
	ConsensusRoundsStarted prometheus.Counter
	ViewChangesTotal       prometheus.Counter
	CommitsTotal           prometheus.Counter
	MessagesReceivedTotal  *prometheus.CounterVec
	MessagesSentTotal      *prometheus.CounterVec

	// Witness verification
	WitnessVerifyTotal    *prometheus.CounterVec
	WitnessVerifyDuration prometheus.Histogram

	// Ledger
	BlocksPersistedTotal       prometheus.Counter
	TransactionsPersistedTotal prometheus.Counter
	ConflictRejectionsTotal    prometheus.Counter
	LedgerPersistDuration      prometheus.Histogram

	// MPT
	MPTCacheSize prometheus.Gauge
	MPTCommits   prometheus.Counter
}

// NewMetrics constructs a Metrics instance and registers every collector
// against reg. Passing a fresh *prometheus.Registry per instance (instead of
// prometheus.DefaultRegisterer) keeps repeated construction — as happens
// across a test suite, or a validator node restarting its consensus
// instance in-process — from panicking on duplicate registration.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		ConsensusHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "neocore",
			Subsystem: "consensus",
			Name:      "height",
			Help:      "Current consensus height.",
		}),
		ConsensusView: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "neocore",
			Subsystem: "consensus",
			Name:      "view",
			Help:      "Current view number within the consensus height.",
		}),
		ConsensusRoundsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "neocore",
			Subsystem: "consensus",
			Name:      "rounds_started_total",
			Help:      "Number of consensus rounds started, across all heights and views.",
		}),
		ViewChangesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "neocore",
			Subsystem: "consensus",
			Name:      "view_changes_total",
			Help:      "Number of view changes committed to.",
		}),
		CommitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "neocore",
			Subsystem: "consensus",
			Name:      "commits_total",
			Help:      "Number of blocks committed by the consensus state machine.",
		}),
		MessagesReceivedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "neocore",
			Subsystem: "consensus",
			Name:      "messages_received_total",
			Help:      "Consensus messages received, by message type.",
		}, []string{"type"}),
		MessagesSentTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "neocore",
			Subsystem: "consensus",
			Name:      "messages_sent_total",
			Help:      "Consensus messages sent, by message type.",
		}, []string{"type"}),
		WitnessVerifyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "neocore",
			Subsystem: "witness",
			Name:      "verify_total",
			Help:      "Witness verifications, by script shape and outcome.",
		}, []string{"shape", "outcome"}),
		WitnessVerifyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "neocore",
			Subsystem: "witness",
			Name:      "verify_duration_seconds",
			Help:      "Time spent verifying a single witness.",
			Buckets:   prometheus.DefBuckets,
		}),
		BlocksPersistedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "neocore",
			Subsystem: "ledger",
			Name:      "blocks_persisted_total",
			Help:      "Blocks persisted to the ledger store.",
		}),
		TransactionsPersistedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "neocore",
			Subsystem: "ledger",
			Name:      "transactions_persisted_total",
			Help:      "Transactions persisted to the ledger store, Full records only.",
		}),
		ConflictRejectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "neocore",
			Subsystem: "ledger",
			Name:      "conflict_rejections_total",
			Help:      "Transactions rejected as conflicting with a persisted conflict stub.",
		}),
		LedgerPersistDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "neocore",
			Subsystem: "ledger",
			Name:      "persist_duration_seconds",
			Help:      "Time spent running OnPersist+PostPersist for a single block.",
			Buckets:   prometheus.DefBuckets,
		}),
		MPTCacheSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "neocore",
			Subsystem: "mpt",
			Name:      "cache_size",
			Help:      "Number of nodes currently held in the trie's reference-counted cache.",
		}),
		MPTCommits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "neocore",
			Subsystem: "mpt",
			Name:      "commits_total",
			Help:      "Number of trie commit operations flushed to storage.",
		}),
	}

	reg.MustRegister(
		m.ConsensusHeight,
		m.ConsensusView,
		m.ConsensusRoundsStarted,
		m.ViewChangesTotal,
		m.CommitsTotal,
		m.MessagesReceivedTotal,
		m.MessagesSentTotal,
		m.WitnessVerifyTotal,
		m.WitnessVerifyDuration,
		m.BlocksPersistedTotal,
		m.TransactionsPersistedTotal,
		m.ConflictRejectionsTotal,
		m.LedgerPersistDuration,
		m.MPTCacheSize,
		m.MPTCommits,
	)

	return m
}

// Package metrics exposes counters for the dispatch pipeline.
// Notification-triggered failures are never visible to the notifier, so
// these counters and the logs are the only place they surface.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DispatchCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "airtable_sync_dispatch_cycles_total",
		Help: "Dispatch cycles by outcome.",
	}, []string{"outcome"})

	BatchesPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "airtable_sync_batches_published_total",
		Help: "Change batches published to the topic bridge.",
	})

	SnapshotFetches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "airtable_sync_snapshot_fetches_total",
		Help: "Schema snapshots fetched during dispatch cycles.",
	})

	CredentialFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "airtable_sync_credential_fallbacks_total",
		Help: "Stored credentials rejected by upstream during payload fetch.",
	})
)

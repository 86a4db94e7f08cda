// Copyright 2025 The indexer-kadena Authors
// This file is part of indexer-kadena.
//
// indexer-kadena is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// indexer-kadena is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with indexer-kadena. If not, see <http://www.gnu.org/licenses/>.

// Package metrics registers the ingestion counters on the default
// Prometheus registry. Scraping is wired elsewhere.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BlocksMaterialized counts blocks persisted per source pipeline.
	BlocksMaterialized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "indexer_blocks_materialized_total",
		Help: "Blocks persisted, labelled by source pipeline.",
	}, []string{"source"})

	// DuplicateBlocks counts idempotent duplicate-hash insert attempts.
	DuplicateBlocks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "indexer_duplicate_blocks_total",
		Help: "Block inserts skipped on the unique hash constraint.",
	})

	// PagesCommitted counts archive pages committed by the backfiller.
	PagesCommitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "indexer_archive_pages_committed_total",
		Help: "Archive listing pages committed.",
	})

	// GapsRepaired counts missing ranges repaired by the gap filler.
	GapsRepaired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "indexer_gaps_repaired_total",
		Help: "Missing height ranges repaired.",
	})

	// StreamEvents counts block updates received on the tip stream.
	StreamEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "indexer_stream_events_total",
		Help: "Block updates received on the event stream.",
	})

	// StreamDuplicates counts tip updates dropped by the dedup set.
	StreamDuplicates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "indexer_stream_duplicates_total",
		Help: "Tip updates dropped as already observed.",
	})

	// Published counts dispatch records released to subscribers.
	Published = promauto.NewCounter(prometheus.CounterOpts{
		Name: "indexer_dispatches_published_total",
		Help: "Dispatch records released to subscribers.",
	})

	// SyncErrors counts retry exhaustions recorded for later sweeps.
	SyncErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "indexer_sync_errors_total",
		Help: "Fetch ranges that exhausted their retries.",
	})

	// GuardsReconciled counts guard snapshots written per cycle.
	GuardsReconciled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "indexer_guards_reconciled_total",
		Help: "Account guard snapshots rebuilt.",
	})
)

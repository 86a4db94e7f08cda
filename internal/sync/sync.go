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

// Package sync hosts the ingestion pipelines: the archive backfiller, the
// tip streamer, the gap filler and the guards reconciler. They share one
// materialiser, one sync-status ledger and one publication bus, and talk to
// their collaborators through the narrow interfaces below so each pipeline
// is testable in isolation.
package sync

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/0xneves/indexer-kadena/internal/chainweb"
	"github.com/0xneves/indexer-kadena/internal/dispatch"
	"github.com/0xneves/indexer-kadena/internal/storage"
)

// DB hands out transactions on the shared pool.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Materializer is the shared block write path.
type Materializer interface {
	Materialize(ctx context.Context, q storage.Querier, source string, raw *chainweb.BlockUpdate) (*dispatch.DispatchInfo, error)
}

// ObjectStore lists and fetches archived block envelopes.
type ObjectStore interface {
	List(ctx context.Context, prefix string, maxKeys int32, startAfter string) ([]string, error)
	Get(ctx context.Context, key string) ([]byte, error)
}

// CursorStore is the sync-status ledger surface the backfiller advances.
type CursorStore interface {
	FindLastCursor(ctx context.Context, chainID uint32, network, prefix, source string) (*storage.SyncStatus, error)
	SaveCursor(ctx context.Context, q storage.Querier, st *storage.SyncStatus) error
}

// GapStore is the ledger and error-table surface of the gap filler.
type GapStore interface {
	CursorStore
	LastSyncForAllChains(ctx context.Context, network string, sources []string) ([]storage.SyncStatus, error)
	NextMissingRanges(ctx context.Context, network string, chainID uint32, minHeight, maxHeight uint64, limit int) ([]storage.HeightRange, error)
	InsertSyncError(ctx context.Context, e *storage.SyncError) error
	DeleteSyncError(ctx context.Context, id int64) error
	ListSyncErrors(ctx context.Context, network string) ([]storage.SyncError, error)
	ClearResolvedStreamingErrors(ctx context.Context) (int64, error)
}

// BlockSource resolves cut and height ranges against the node.
type BlockSource interface {
	GetCut(ctx context.Context) (*chainweb.Cut, error)
	FetchBlocks(ctx context.Context, chainID uint32, minHeight, maxHeight uint64) ([]chainweb.BlockUpdate, error)
}

// StreamSource delivers tip blocks until the context ends.
type StreamSource interface {
	StreamBlockUpdates(ctx context.Context, ch chan<- chainweb.BlockUpdate) error
}

// StreamErrorStore records streamed blocks that failed persistence.
type StreamErrorStore interface {
	InsertStreamingError(ctx context.Context, e *storage.StreamingError) error
}

// GuardStore is the repository surface of the guards reconciler.
type GuardStore interface {
	TruncateGuards(ctx context.Context) error
	InsertGuards(ctx context.Context, q storage.Querier, guards []storage.GuardRow) error
	BalancesAfter(ctx context.Context, afterID int64, limit int) ([]storage.Balance, error)
}

// GuardSource queries the node for an account's current guard.
type GuardSource interface {
	FetchGuard(ctx context.Context, chainID uint32, account, module string) (*chainweb.Guard, error)
}

// rollback discards a transaction, tolerating the already-closed case after
// a successful commit.
func rollback(ctx context.Context, tx pgx.Tx) {
	_ = tx.Rollback(ctx)
}

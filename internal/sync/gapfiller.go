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

package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"

	"github.com/0xneves/indexer-kadena/internal/metrics"
	"github.com/0xneves/indexer-kadena/internal/storage"
)

const (
	// rangesPerTick bounds how many missing intervals one chain repairs per
	// cycle, so a deep hole cannot starve the other chains.
	rangesPerTick = 5

	// retrySweepEvery schedules the sync-error retry sweep, counted in
	// ticks.
	retrySweepEvery = 12

	cursorPrefixAPI = "api"
)

// GapFiller periodically compares indexed heights against the node's cut
// and repairs missing intervals. Each repaired chunk is one transaction;
// exhausted fetches become sync_errors rows swept on a slower cadence.
type GapFiller struct {
	db      DB
	store   GapStore
	client  BlockSource
	mat     Materializer
	bus     Publisher
	network string

	chainCount uint32
	minHeight  uint64
	chunk      uint64
	interval   time.Duration

	log log.Logger
}

// NewGapFiller wires a gap filler. chunk is the maximum heights fetched per
// node request, interval the pause between cycles.
func NewGapFiller(db DB, store GapStore, client BlockSource, mat Materializer, bus Publisher,
	network string, chainCount uint32, minHeight, chunk uint64, interval time.Duration) *GapFiller {
	return &GapFiller{
		db:         db,
		store:      store,
		client:     client,
		mat:        mat,
		bus:        bus,
		network:    network,
		chainCount: chainCount,
		minHeight:  minHeight,
		chunk:      chunk,
		interval:   interval,
		log:        log.New("area", "gapfill"),
	}
}

// Run cycles until the context ends. Cancellation is honoured between
// cycles; a cycle in flight completes its current transactions.
func (f *GapFiller) Run(ctx context.Context) error {
	f.logResume(ctx)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for tickNo := 0; ; tickNo++ {
		f.tick(ctx)
		if tickNo%retrySweepEvery == retrySweepEvery-1 {
			f.sweepErrors(ctx)
		}
		f.clearResolved(ctx)

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// logResume reports each chain's highest recorded progress once at startup,
// so a restarted daemon shows where repair work picks up from.
func (f *GapFiller) logResume(ctx context.Context) {
	statuses, err := f.store.LastSyncForAllChains(ctx, f.network,
		[]string{storage.SourceArchive, storage.SourceAPI, storage.SourceStreaming})
	if err != nil {
		f.log.Warn("Reading sync progress failed", "err", err)
		return
	}
	if len(statuses) == 0 {
		f.log.Info("No recorded sync progress, starting fresh")
		return
	}
	for _, st := range statuses {
		if st.ToHeight != nil {
			f.log.Info("Resuming chain", "chain", st.ChainID, "height", *st.ToHeight, "source", st.Source)
		}
	}
}

// tick repairs each chain once, all chains in parallel.
func (f *GapFiller) tick(ctx context.Context) {
	cut, err := f.client.GetCut(ctx)
	if err != nil {
		f.log.Warn("Cut unavailable, skipping cycle", "err", err)
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	for chainID := uint32(0); chainID < f.chainCount; chainID++ {
		chainID := chainID
		tip, ok := cut.TipHeight(chainID)
		if !ok {
			continue
		}
		g.Go(func() error {
			f.fillChain(gctx, chainID, tip)
			return nil
		})
	}
	_ = g.Wait()
}

// fillChain repairs up to rangesPerTick missing intervals below the chain
// tip. Failures are recorded and do not stop the remaining ranges.
func (f *GapFiller) fillChain(ctx context.Context, chainID uint32, tip uint64) {
	if tip == 0 {
		return
	}
	ranges, err := f.store.NextMissingRanges(ctx, f.network, chainID, f.minHeight, tip-1, rangesPerTick)
	if err != nil {
		f.log.Error("Gap detection failed", "chain", chainID, "err", err)
		return
	}

	for _, r := range ranges {
		for from := r.From; from <= r.To; from += f.chunk {
			if ctx.Err() != nil {
				return
			}
			to := from + f.chunk - 1
			if to > r.To {
				to = r.To
			}
			if err := f.fillRange(ctx, chainID, from, to); err != nil {
				f.recordFailure(ctx, chainID, from, to, err)
				continue
			}
			metrics.GapsRepaired.Inc()
		}
	}
}

// fillRange fetches [from, to] from the node and commits it as one unit,
// advancing the height cursor with it.
func (f *GapFiller) fillRange(ctx context.Context, chainID uint32, from, to uint64) error {
	updates, err := f.client.FetchBlocks(ctx, chainID, from, to)
	if err != nil {
		return fmt.Errorf("fetch %d..%d: %w", from, to, err)
	}

	tx, err := f.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer rollback(ctx, tx)

	batch := f.bus.NewBatch()
	for i := range updates {
		info, err := f.mat.Materialize(ctx, tx, storage.SourceAPI, &updates[i])
		if err != nil {
			batch.Discard()
			return fmt.Errorf("materialize %s: %w", updates[i].Header.Hash, err)
		}
		if info != nil {
			batch.Append(*info)
		}
	}
	if err := f.store.SaveCursor(ctx, tx, &storage.SyncStatus{
		Network:    f.network,
		ChainID:    chainID,
		Prefix:     cursorPrefixAPI,
		Source:     storage.SourceAPI,
		FromHeight: &from,
		ToHeight:   &to,
	}); err != nil {
		batch.Discard()
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		batch.Discard()
		return err
	}

	published := batch.Len()
	batch.Publish()
	metrics.Published.Add(float64(published))
	f.log.Debug("Repaired range", "chain", chainID, "from", from, "to", to,
		"blocks", len(updates), "published", published)
	return nil
}

func (f *GapFiller) recordFailure(ctx context.Context, chainID uint32, from, to uint64, cause error) {
	metrics.SyncErrors.Inc()
	f.log.Warn("Range failed, recorded for retry", "chain", chainID, "from", from, "to", to, "err", cause)
	if err := f.store.InsertSyncError(ctx, &storage.SyncError{
		Network:    f.network,
		ChainID:    chainID,
		FromHeight: from,
		ToHeight:   to,
		Source:     storage.SourceAPI,
	}); err != nil {
		f.log.Error("Recording sync error failed", "chain", chainID, "err", err)
	}
}

// sweepErrors retries every recorded failed range; rows disappear only on
// success so persistent faults stay visible.
func (f *GapFiller) sweepErrors(ctx context.Context) {
	errs, err := f.store.ListSyncErrors(ctx, f.network)
	if err != nil {
		f.log.Error("Listing sync errors failed", "err", err)
		return
	}
	for _, e := range errs {
		if ctx.Err() != nil {
			return
		}
		if err := f.fillRange(ctx, e.ChainID, e.FromHeight, e.ToHeight); err != nil {
			f.log.Warn("Retry still failing", "chain", e.ChainID, "from", e.FromHeight, "to", e.ToHeight, "err", err)
			continue
		}
		if err := f.store.DeleteSyncError(ctx, e.ID); err != nil {
			f.log.Error("Clearing sync error failed", "id", e.ID, "err", err)
		}
	}
}

func (f *GapFiller) clearResolved(ctx context.Context) {
	n, err := f.store.ClearResolvedStreamingErrors(ctx)
	if err != nil {
		f.log.Error("Clearing streaming errors failed", "err", err)
		return
	}
	if n > 0 {
		f.log.Info("Streaming errors resolved", "count", n)
	}
}

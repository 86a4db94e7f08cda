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
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"

	"github.com/0xneves/indexer-kadena/internal/chainweb"
	"github.com/0xneves/indexer-kadena/internal/dispatch"
	"github.com/0xneves/indexer-kadena/internal/metrics"
	"github.com/0xneves/indexer-kadena/internal/storage"
)

// pageConcurrency bounds concurrent object fetches within one listing page.
const pageConcurrency = 20

// Backfiller replays the historical archive chain by chain. Each listing
// page is one database transaction: all blocks of the page plus the cursor
// advance commit together, so a crash resumes exactly at the last committed
// key and never re-announces blocks of a rolled-back page.
type Backfiller struct {
	db      DB
	cursors CursorStore
	objects ObjectStore
	mat     Materializer
	bus     Publisher
	network string
	maxKeys int32

	// maxIterations caps pages per chain for tests; zero means unbounded.
	maxIterations int

	log log.Logger
}

// Publisher is the slice of the bus the pipelines publish through.
type Publisher interface {
	NewBatch() *dispatch.Batch
}

// NewBackfiller wires an archive backfiller.
func NewBackfiller(db DB, cursors CursorStore, objects ObjectStore, mat Materializer, bus Publisher, network string, maxKeys int32) *Backfiller {
	return &Backfiller{
		db:      db,
		cursors: cursors,
		objects: objects,
		mat:     mat,
		bus:     bus,
		network: network,
		maxKeys: maxKeys,
		log:     log.New("area", "backfill"),
	}
}

// Run walks the archive for one chain until the listing is exhausted or the
// context ends.
func (b *Backfiller) Run(ctx context.Context, chainID uint32) error {
	prefix := b.prefixFor(chainID)
	logger := b.log.New("chain", chainID)

	for iter := 0; b.maxIterations == 0 || iter < b.maxIterations; iter++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		advanced, err := b.runPage(ctx, chainID, prefix)
		if err != nil {
			logger.Error("Archive page failed", "prefix", prefix, "err", err)
			return err
		}
		if !advanced {
			logger.Info("Archive exhausted", "prefix", prefix)
			return nil
		}
	}
	return nil
}

// runPage processes one listing page. It reports whether the listing may
// hold further keys beyond this page.
func (b *Backfiller) runPage(ctx context.Context, chainID uint32, prefix string) (bool, error) {
	cursor, err := b.cursors.FindLastCursor(ctx, chainID, b.network, prefix, storage.SourceArchive)
	if err != nil {
		return false, err
	}
	startAfter := ""
	if cursor != nil && cursor.Key != nil {
		startAfter = *cursor.Key
	}

	keys, err := b.objects.List(ctx, prefix, b.maxKeys, startAfter)
	if err != nil {
		return false, err
	}
	if len(keys) == 0 {
		return false, nil
	}

	updates, err := b.fetchPage(ctx, keys)
	if err != nil {
		return false, err
	}

	tx, err := b.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer rollback(ctx, tx)

	batch := b.bus.NewBatch()
	for i, u := range updates {
		info, err := b.mat.Materialize(ctx, tx, storage.SourceArchive, u)
		if err != nil {
			batch.Discard()
			return false, fmt.Errorf("materialize %s: %w", keys[i], err)
		}
		if info != nil {
			batch.Append(*info)
		}
	}

	last := keys[len(keys)-1]
	first := updates[0].Header.Height
	tip := updates[len(updates)-1].Header.Height
	if err := b.cursors.SaveCursor(ctx, tx, &storage.SyncStatus{
		Network:    b.network,
		ChainID:    chainID,
		Prefix:     prefix,
		Source:     storage.SourceArchive,
		Key:        &last,
		FromHeight: &first,
		ToHeight:   &tip,
	}); err != nil {
		batch.Discard()
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		batch.Discard()
		return false, err
	}

	published := batch.Len()
	batch.Publish()
	metrics.PagesCommitted.Inc()
	metrics.Published.Add(float64(published))
	b.log.Info("Archive page committed", "chain", chainID, "keys", len(keys),
		"published", published, "cursor", last)

	// A short page means the listing ran out behind the last key.
	return len(keys) == int(b.maxKeys), nil
}

// fetchPage downloads and decodes the page's objects concurrently; the
// result keeps listing order so cursor semantics stay monotonic.
func (b *Backfiller) fetchPage(ctx context.Context, keys []string) ([]*chainweb.BlockUpdate, error) {
	updates := make([]*chainweb.BlockUpdate, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pageConcurrency)
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			data, err := b.objects.Get(gctx, key)
			if err != nil {
				return fmt.Errorf("get %s: %w", key, err)
			}
			var u chainweb.BlockUpdate
			if err := json.Unmarshal(data, &u); err != nil {
				return fmt.Errorf("decode %s: %w", key, err)
			}
			updates[i] = &u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return updates, nil
}

func (b *Backfiller) prefixFor(chainID uint32) string {
	return fmt.Sprintf("%s/chain-%d/header/", b.network, chainID)
}

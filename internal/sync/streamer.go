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
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"

	"github.com/0xneves/indexer-kadena/internal/chainweb"
	"github.com/0xneves/indexer-kadena/internal/metrics"
	"github.com/0xneves/indexer-kadena/internal/storage"
)

const (
	// streamBuffer absorbs bursts between SSE delivery and persistence.
	streamBuffer = 256

	// dedupFlushEvery bounds the memory of the seen-hash set. Flushing may
	// let a late duplicate through; the unique hash constraint catches it.
	dedupFlushEvery = 10 * time.Minute

	// guardsEvery schedules the account guard reconciliation.
	guardsEvery = time.Hour
)

// GuardsRunner runs one reconciliation cycle.
type GuardsRunner interface {
	Run(ctx context.Context) error
}

// Streamer follows the node's block update stream and persists each tip
// block in its own transaction. Failures are recorded for the repair sweep
// instead of stopping the stream.
type Streamer struct {
	db     DB
	source StreamSource
	mat    Materializer
	errs   StreamErrorStore
	bus    Publisher
	guards GuardsRunner
	log    log.Logger

	seen mapset.Set[string]
}

// NewStreamer wires a tip streamer. guards may be nil to disable the
// periodic reconciliation.
func NewStreamer(db DB, source StreamSource, mat Materializer, errs StreamErrorStore, bus Publisher, guards GuardsRunner) *Streamer {
	return &Streamer{
		db:     db,
		source: source,
		mat:    mat,
		errs:   errs,
		bus:    bus,
		guards: guards,
		log:    log.New("area", "stream"),
		seen:   mapset.NewSet[string](),
	}
}

// Run consumes the stream until the context ends. The underlying source
// reconnects on its own; Run only returns on cancellation.
func (s *Streamer) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	ch := make(chan chainweb.BlockUpdate, streamBuffer)
	g.Go(func() error {
		return s.source.StreamBlockUpdates(ctx, ch)
	})

	if s.guards != nil {
		g.Go(func() error {
			s.runGuards(ctx)
			ticker := time.NewTicker(guardsEvery)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					s.runGuards(ctx)
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		})
	}

	g.Go(func() error {
		flush := time.NewTicker(dedupFlushEvery)
		defer flush.Stop()
		for {
			select {
			case u := <-ch:
				s.handleUpdate(ctx, &u)
			case <-flush.C:
				s.seen.Clear()
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})

	return g.Wait()
}

func (s *Streamer) handleUpdate(ctx context.Context, u *chainweb.BlockUpdate) {
	metrics.StreamEvents.Inc()
	if !s.seen.Add(u.Header.Hash) {
		metrics.StreamDuplicates.Inc()
		s.log.Trace("Dropping duplicate tip", "hash", u.Header.Hash, "chain", u.Header.ChainID)
		return
	}

	if err := s.persist(ctx, u); err != nil {
		s.log.Warn("Streamed block failed, recorded for repair",
			"hash", u.Header.Hash, "chain", u.Header.ChainID, "height", u.Header.Height, "err", err)
		msg := err.Error()
		if insErr := s.errs.InsertStreamingError(ctx, &storage.StreamingError{
			Hash:    u.Header.Hash,
			ChainID: u.Header.ChainID,
			Height:  u.Header.Height,
			Message: msg,
		}); insErr != nil {
			s.log.Error("Recording streaming error failed", "hash", u.Header.Hash, "err", insErr)
		}
	}
}

// persist writes one streamed block in its own transaction and publishes it
// after commit.
func (s *Streamer) persist(ctx context.Context, u *chainweb.BlockUpdate) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer rollback(ctx, tx)

	info, err := s.mat.Materialize(ctx, tx, storage.SourceStreaming, u)
	if err != nil {
		return err
	}
	if info == nil {
		// Already indexed by another pipeline; nothing to commit or announce.
		return nil
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	batch := s.bus.NewBatch()
	batch.Append(*info)
	batch.Publish()
	metrics.Published.Inc()
	return nil
}

func (s *Streamer) runGuards(ctx context.Context) {
	if err := s.guards.Run(ctx); err != nil && ctx.Err() == nil {
		s.log.Error("Guard reconciliation aborted", "err", err)
	}
}

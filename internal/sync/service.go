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
	"errors"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"

	"github.com/0xneves/indexer-kadena/internal/chainweb"
	"github.com/0xneves/indexer-kadena/internal/config"
	"github.com/0xneves/indexer-kadena/internal/dispatch"
	"github.com/0xneves/indexer-kadena/internal/materialize"
	"github.com/0xneves/indexer-kadena/internal/objstore"
	"github.com/0xneves/indexer-kadena/internal/storage"
)

// Service assembles the pipelines around one store, one node client and one
// bus, and runs them as a unit.
type Service struct {
	cfg     *config.Config
	store   *storage.Store
	client  *chainweb.Client
	objects *objstore.Store // nil disables the archive backfiller
	bus     *dispatch.Bus
	mat     *materialize.Materializer
	log     log.Logger
}

// NewService wires the daemons. objects may be nil when no archive bucket
// is configured.
func NewService(cfg *config.Config, store *storage.Store, client *chainweb.Client, objects *objstore.Store, bus *dispatch.Bus) *Service {
	return &Service{
		cfg:     cfg,
		store:   store,
		client:  client,
		objects: objects,
		bus:     bus,
		mat:     materialize.New(store, cfg.Network),
		log:     log.New("area", "service"),
	}
}

// Bus exposes the publication bus for subscribers outside the pipelines.
func (s *Service) Bus() *dispatch.Bus { return s.bus }

// Run starts every configured pipeline and blocks until the context ends or
// one of them fails. The backfiller finishing its archive walk is normal and
// does not stop the service.
func (s *Service) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if s.objects != nil {
		backfiller := NewBackfiller(s.store, s.store, s.objects, s.mat, s.bus, s.cfg.Network, s.cfg.MaxKeys)
		for chainID := uint32(0); chainID < s.cfg.ChainCount; chainID++ {
			chainID := chainID
			g.Go(func() error {
				err := backfiller.Run(ctx, chainID)
				if err != nil && !errors.Is(err, context.Canceled) {
					s.log.Error("Backfill stopped", "chain", chainID, "err", err)
				}
				// Exhausting the archive is completion, not failure.
				return nil
			})
		}
	} else {
		s.log.Info("No archive bucket configured, backfill disabled")
	}

	guards := NewGuardsReconciler(s.store, s.store, s.client)
	streamer := NewStreamer(s.store, s.client, s.mat, s.store, s.bus, guards)
	g.Go(func() error { return streamer.Run(ctx) })

	gapFiller := NewGapFiller(s.store, s.store, s.client, s.mat, s.bus,
		s.cfg.Network, s.cfg.ChainCount, s.cfg.MinHeight, s.cfg.FetchInterval, s.cfg.SleepInterval)
	g.Go(func() error { return gapFiller.Run(ctx) })

	s.log.Info("Ingestion pipelines started", "network", s.cfg.Network,
		"chains", s.cfg.ChainCount, "archive", s.objects != nil)

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

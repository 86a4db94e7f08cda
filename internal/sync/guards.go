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
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"

	"github.com/0xneves/indexer-kadena/internal/metrics"
	"github.com/0xneves/indexer-kadena/internal/storage"
)

const (
	// guardBatchSize pages the balance table during reconciliation.
	guardBatchSize = 1000

	// guardConcurrency bounds in-flight guard lookups per batch.
	guardConcurrency = 50
)

// GuardsReconciler rebuilds the account guard snapshot from the balance
// ledger. A cycle truncates the table and walks every balance row; each
// batch commits on its own, and any failed lookup aborts the cycle so a
// half-queried batch is never written.
type GuardsReconciler struct {
	db     DB
	store  GuardStore
	source GuardSource
	log    log.Logger
}

// NewGuardsReconciler wires a reconciler over the node's local Pact
// endpoint.
func NewGuardsReconciler(db DB, store GuardStore, source GuardSource) *GuardsReconciler {
	return &GuardsReconciler{
		db:     db,
		store:  store,
		source: source,
		log:    log.New("area", "guards"),
	}
}

// Run executes one full reconciliation cycle.
func (g *GuardsReconciler) Run(ctx context.Context) error {
	if err := g.store.TruncateGuards(ctx); err != nil {
		return fmt.Errorf("truncate guards: %w", err)
	}

	var (
		afterID int64
		total   int
	)
	for {
		balances, err := g.store.BalancesAfter(ctx, afterID, guardBatchSize)
		if err != nil {
			return err
		}
		if len(balances) == 0 {
			break
		}

		rows, err := g.resolveBatch(ctx, balances)
		if err != nil {
			return err
		}
		if err := g.writeBatch(ctx, rows); err != nil {
			return err
		}

		total += len(rows)
		metrics.GuardsReconciled.Add(float64(len(rows)))
		afterID = balances[len(balances)-1].ID
	}

	g.log.Info("Guard reconciliation complete", "guards", total)
	return nil
}

// resolveBatch queries the node for each distinct (account, chain, module)
// identity in the batch. Token rows of the same identity collapse into one
// lookup. Any failed lookup fails the batch.
func (g *GuardsReconciler) resolveBatch(ctx context.Context, balances []storage.Balance) ([]storage.GuardRow, error) {
	type identity struct {
		account string
		chainID uint32
		module  string
	}
	seen := make(map[identity]bool, len(balances))
	var idents []identity
	for _, b := range balances {
		id := identity{account: b.Account, chainID: b.ChainID, module: b.Module}
		if b.Account == "" || seen[id] {
			continue
		}
		seen[id] = true
		idents = append(idents, id)
	}

	var (
		mu   sync.Mutex
		rows []storage.GuardRow
	)
	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(guardConcurrency)
	for _, id := range idents {
		id := id
		eg.Go(func() error {
			guard, err := g.source.FetchGuard(egctx, id.chainID, id.account, id.module)
			if err != nil {
				return fmt.Errorf("guard %s on chain %d: %w", id.account, id.chainID, err)
			}
			if guard == nil {
				// Account no longer exists on-chain; skip the row.
				return nil
			}
			mu.Lock()
			rows = append(rows, storage.GuardRow{
				Account:   id.account,
				ChainID:   id.chainID,
				Module:    id.module,
				Keys:      guard.Keys,
				Predicate: guard.Predicate,
			})
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return rows, nil
}

func (g *GuardsReconciler) writeBatch(ctx context.Context, rows []storage.GuardRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := g.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer rollback(ctx, tx)

	if err := g.store.InsertGuards(ctx, tx, rows); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

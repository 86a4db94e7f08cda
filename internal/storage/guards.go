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

package storage

import (
	"context"
	"encoding/json"
)

// TruncateGuards empties the guard table ahead of a reconciliation cycle.
// The reconciler is the table's only writer.
func (s *Store) TruncateGuards(ctx context.Context) error {
	_, err := s.q().Exec(ctx, `TRUNCATE guards`)
	return err
}

// InsertGuards bulk-inserts one reconciled batch inside q. Conflicting
// identities keep the newest snapshot.
func (s *Store) InsertGuards(ctx context.Context, q Querier, guards []GuardRow) error {
	for _, g := range guards {
		keys, err := json.Marshal(g.Keys)
		if err != nil {
			return err
		}
		if _, err := q.Exec(ctx, `
			INSERT INTO guards (account, chainid, module, keys, predicate)
			VALUES ($1,$2,$3,$4,$5)
			ON CONFLICT ON CONSTRAINT guards_identity_key
			DO UPDATE SET keys = EXCLUDED.keys, predicate = EXCLUDED.predicate`,
			g.Account, g.ChainID, g.Module, keys, g.Predicate); err != nil {
			return err
		}
	}
	return nil
}

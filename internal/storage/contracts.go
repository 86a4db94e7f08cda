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

import "context"

// EnsureContract registers a token module on first observation and returns
// its id. Re-observations keep the existing row.
func (s *Store) EnsureContract(ctx context.Context, q Querier, network, moduleName string, chainID uint32, contractType string) (int64, error) {
	var id int64
	err := q.QueryRow(ctx, `
		INSERT INTO contracts (network, modulename, chainid, type)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT ON CONSTRAINT contracts_identity_key
		DO UPDATE SET modulename = EXCLUDED.modulename
		RETURNING id`,
		network, moduleName, chainID, contractType).Scan(&id)
	return id, err
}

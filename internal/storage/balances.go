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

	"github.com/shopspring/decimal"
)

// ApplyBalanceDelta adds delta to the running balance of one ledger key,
// creating the row on first observation.
func (s *Store) ApplyBalanceDelta(ctx context.Context, q Querier, account string, chainID uint32, module, tokenID string, delta decimal.Decimal) error {
	_, err := q.Exec(ctx, `
		INSERT INTO balances (account, chainid, module, tokenid, balance)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT ON CONSTRAINT balances_identity_key
		DO UPDATE SET balance = balances.balance + EXCLUDED.balance`,
		account, chainID, module, tokenID, delta)
	return err
}

// BalancesAfter pages the balance table in id-ascending order for the
// guards reconciler.
func (s *Store) BalancesAfter(ctx context.Context, afterID int64, limit int) ([]Balance, error) {
	rows, err := s.q().Query(ctx, `
		SELECT id, account, chainid, module, tokenid, balance
		FROM balances WHERE id > $1 ORDER BY id ASC LIMIT $2`,
		afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Balance
	for rows.Next() {
		var b Balance
		if err := rows.Scan(&b.ID, &b.Account, &b.ChainID, &b.Module, &b.TokenID, &b.Balance); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

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
	"strings"
)

// BlockEvents pages the events of one block hash for the query API. The
// cursors follow the convention of every other listing here: after selects
// rows with id greater than the cursor, before selects rows with id less
// than it.
func (s *Store) BlockEvents(ctx context.Context, blockHash string, after, before *int64, limit int) ([]Event, error) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(`
		SELECT id, transaction_id, requestkey, chainid, orderindex,
		       module, name, qualname, params, blockhash, height
		FROM events WHERE blockhash = $1`)
	args = append(args, blockHash)
	if after != nil {
		args = append(args, *after)
		sb.WriteString(` AND id > $2`)
	}
	if before != nil {
		args = append(args, *before)
		if after != nil {
			sb.WriteString(` AND id < $3`)
		} else {
			sb.WriteString(` AND id < $2`)
		}
	}
	args = append(args, limit)
	switch len(args) {
	case 2:
		sb.WriteString(` ORDER BY id ASC LIMIT $2`)
	case 3:
		sb.WriteString(` ORDER BY id ASC LIMIT $3`)
	case 4:
		sb.WriteString(` ORDER BY id ASC LIMIT $4`)
	}

	rows, err := s.q().Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.RequestKey, &e.ChainID, &e.OrderIndex,
			&e.Module, &e.Name, &e.QualName, &e.Params, &e.BlockHash, &e.Height); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

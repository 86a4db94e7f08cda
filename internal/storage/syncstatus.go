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
	"errors"

	"github.com/jackc/pgx/v5"
)

// FindLastCursor loads the progress cursor of one pipeline identity, or nil
// when no work has been recorded yet.
func (s *Store) FindLastCursor(ctx context.Context, chainID uint32, network, prefix, source string) (*SyncStatus, error) {
	st := SyncStatus{Network: network, ChainID: chainID, Prefix: prefix, Source: source}
	err := s.q().QueryRow(ctx, `
		SELECT id, key, fromheight, toheight
		FROM sync_statuses
		WHERE network = $1 AND chainid = $2 AND prefix = $3 AND source = $4`,
		network, chainID, prefix, source).Scan(&st.ID, &st.Key, &st.FromHeight, &st.ToHeight)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// SaveCursor upserts a cursor inside the caller's transaction, so progress
// commits or reverts together with the work it describes.
func (s *Store) SaveCursor(ctx context.Context, q Querier, st *SyncStatus) error {
	_, err := q.Exec(ctx, `
		INSERT INTO sync_statuses (network, chainid, prefix, source, key, fromheight, toheight)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT ON CONSTRAINT sync_statuses_identity_key
		DO UPDATE SET key = EXCLUDED.key, fromheight = EXCLUDED.fromheight, toheight = EXCLUDED.toheight`,
		st.Network, st.ChainID, st.Prefix, st.Source, st.Key, st.FromHeight, st.ToHeight)
	return err
}

// LastSyncForAllChains reports the highest recorded toheight per chain over
// the given sources.
func (s *Store) LastSyncForAllChains(ctx context.Context, network string, sources []string) ([]SyncStatus, error) {
	rows, err := s.q().Query(ctx, `
		SELECT DISTINCT ON (chainid) id, chainid, prefix, source, key, fromheight, toheight
		FROM sync_statuses
		WHERE network = $1 AND source = ANY($2) AND toheight IS NOT NULL
		ORDER BY chainid, toheight DESC`,
		network, sources)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SyncStatus
	for rows.Next() {
		st := SyncStatus{Network: network}
		if err := rows.Scan(&st.ID, &st.ChainID, &st.Prefix, &st.Source, &st.Key, &st.FromHeight, &st.ToHeight); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// NextMissingRanges detects up to limit contiguous unfilled height intervals
// of one chain, lowest first. Bounds come from the caller: minHeight is the
// ingestion floor, maxHeight the current tip minus one.
func (s *Store) NextMissingRanges(ctx context.Context, network string, chainID uint32, minHeight, maxHeight uint64, limit int) ([]HeightRange, error) {
	if minHeight >= maxHeight {
		return nil, nil
	}

	oldest, newest, ok, err := s.HeightBounds(ctx, network, chainID, minHeight, maxHeight)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []HeightRange{{From: minHeight, To: maxHeight}}, nil
	}

	rows, err := s.q().Query(ctx, `
		WITH heights AS (
			SELECT DISTINCT height FROM blocks
			WHERE network = $1 AND chainid = $2 AND height >= $3 AND height <= $4
		), gaps AS (
			SELECT height + 1 AS gap_from,
			       lead(height) OVER (ORDER BY height) - 1 AS gap_to
			FROM heights
		)
		SELECT gap_from, gap_to FROM gaps
		WHERE gap_to >= gap_from
		ORDER BY gap_from ASC
		LIMIT $5`,
		network, chainID, minHeight, maxHeight, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var interior []HeightRange
	for rows.Next() {
		var r HeightRange
		if err := rows.Scan(&r.From, &r.To); err != nil {
			return nil, err
		}
		interior = append(interior, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return boundGaps(minHeight, maxHeight, oldest, newest, interior, limit), nil
}

// boundGaps completes the interior gaps with the leading interval below the
// oldest indexed height and the trailing interval above the newest one. The
// window query sees neither: lead() has no row to pair either end with.
func boundGaps(minHeight, maxHeight, oldest, newest uint64, interior []HeightRange, limit int) []HeightRange {
	var out []HeightRange
	if oldest > minHeight {
		out = append(out, HeightRange{From: minHeight, To: oldest - 1})
	}
	out = append(out, interior...)
	if newest < maxHeight {
		out = append(out, HeightRange{From: newest + 1, To: maxHeight})
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

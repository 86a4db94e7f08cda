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

// InsertSyncError records a range whose fetch exhausted its retries, for
// operator visibility and the retry sweep.
func (s *Store) InsertSyncError(ctx context.Context, e *SyncError) error {
	_, err := s.q().Exec(ctx, `
		INSERT INTO sync_errors (network, chainid, fromheight, toheight, source)
		VALUES ($1,$2,$3,$4,$5)`,
		e.Network, e.ChainID, e.FromHeight, e.ToHeight, e.Source)
	return err
}

// DeleteSyncError removes a recorded failure after a successful retry.
func (s *Store) DeleteSyncError(ctx context.Context, id int64) error {
	_, err := s.q().Exec(ctx, `DELETE FROM sync_errors WHERE id = $1`, id)
	return err
}

// ListSyncErrors returns every recorded failure for a network, oldest first.
func (s *Store) ListSyncErrors(ctx context.Context, network string) ([]SyncError, error) {
	rows, err := s.q().Query(ctx, `
		SELECT id, network, chainid, fromheight, toheight, source, created_at
		FROM sync_errors WHERE network = $1 ORDER BY id ASC`, network)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SyncError
	for rows.Next() {
		var e SyncError
		if err := rows.Scan(&e.ID, &e.Network, &e.ChainID, &e.FromHeight, &e.ToHeight, &e.Source, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// InsertStreamingError records a streamed block that failed persistence.
func (s *Store) InsertStreamingError(ctx context.Context, e *StreamingError) error {
	_, err := s.q().Exec(ctx, `
		INSERT INTO streaming_errors (hash, chainid, height, message)
		VALUES ($1,$2,$3,$4)`, e.Hash, e.ChainID, e.Height, e.Message)
	return err
}

// ClearResolvedStreamingErrors drops streaming errors whose block has since
// been indexed through another path.
func (s *Store) ClearResolvedStreamingErrors(ctx context.Context) (int64, error) {
	tag, err := s.q().Exec(ctx, `
		DELETE FROM streaming_errors se
		WHERE EXISTS (SELECT 1 FROM blocks b WHERE b.hash = se.hash)`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

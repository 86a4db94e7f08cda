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

// InsertBlock persists one block and returns its id. A duplicate hash comes
// back as ErrDuplicate with no row written.
func (s *Store) InsertBlock(ctx context.Context, q Querier, b *Block) (int64, error) {
	var id int64
	err := q.QueryRow(ctx, `
		INSERT INTO blocks (network, chainid, height, hash, parent, creationtime, epoch,
			flags, weight, target, nonce, payloadhash, adjacents, minerdata,
			transactionshash, outputshash, coinbase, transactionscount)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		RETURNING id`,
		b.Network, b.ChainID, b.Height, b.Hash, b.Parent, b.CreationTime, b.EpochStart,
		b.FeatureFlags, b.Weight, b.Target, b.Nonce, b.PayloadHash, b.Adjacents, b.MinerData,
		b.TransactionsHash, b.OutputsHash, b.Coinbase, b.TransactionsCount,
	).Scan(&id)
	if err != nil {
		return 0, mapUnique(err)
	}
	return id, nil
}

// HasBlock reports whether a hash is already indexed.
func (s *Store) HasBlock(ctx context.Context, hash string) (bool, error) {
	var one int
	err := s.q().QueryRow(ctx, `SELECT 1 FROM blocks WHERE hash = $1`, hash).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// BlocksAtHeight lists every stored block of a chain at one height. More
// than one row means a fork was observed there.
func (s *Store) BlocksAtHeight(ctx context.Context, q Querier, network string, chainID uint32, height uint64) ([]Block, error) {
	rows, err := q.Query(ctx, `
		SELECT id, hash, parent, weight, height, canonical
		FROM blocks WHERE network = $1 AND chainid = $2 AND height = $3`,
		network, chainID, height)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Block
	for rows.Next() {
		b := Block{Network: network, ChainID: chainID}
		if err := rows.Scan(&b.ID, &b.Hash, &b.Parent, &b.Weight, &b.Height, &b.Canonical); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// HeightBounds returns the lowest and highest indexed heights of a chain
// inside [minHeight, maxHeight]; ok is false when the window holds no
// blocks.
func (s *Store) HeightBounds(ctx context.Context, network string, chainID uint32, minHeight, maxHeight uint64) (uint64, uint64, bool, error) {
	var lo, hi *uint64
	err := s.q().QueryRow(ctx, `
		SELECT min(height), max(height) FROM blocks
		WHERE network = $1 AND chainid = $2 AND height >= $3 AND height <= $4`,
		network, chainID, minHeight, maxHeight).Scan(&lo, &hi)
	if err != nil {
		return 0, 0, false, err
	}
	if lo == nil || hi == nil {
		return 0, 0, false, nil
	}
	return *lo, *hi, true, nil
}

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

package materialize

import (
	"context"
	"encoding/base64"
	"math/big"

	"github.com/0xneves/indexer-kadena/internal/storage"
)

// canonicalize resolves a fork at (chainID, height): the heaviest block
// wins, ties break on the lexicographically greater hash, and the walk
// continues forward along parent links for as long as siblings exist.
func (m *Materializer) canonicalize(ctx context.Context, q storage.Querier, chainID uint32, height uint64, siblings []storage.Block) error {
	winner := heaviest(siblings)
	m.log.Info("Reorg detected", "chain", chainID, "height", height, "winner", winner.Hash, "forks", len(siblings))

	for {
		for _, b := range siblings {
			if err := m.store.SetCanonicalByBlock(ctx, q, b.ID, b.Hash == winner.Hash); err != nil {
				return err
			}
		}

		height++
		next, err := m.store.BlocksAtHeight(ctx, q, m.network, chainID, height)
		if err != nil {
			return err
		}
		child := childOf(next, winner.Hash)
		if child == nil || len(next) < 2 {
			// Either the fork point is the tip, or the chain is single
			// again above it; nothing left to flip.
			if child != nil {
				return m.store.SetCanonicalByBlock(ctx, q, child.ID, true)
			}
			return nil
		}
		siblings, winner = next, *child
	}
}

// heaviest picks the block with the greatest weight; equal weights fall
// back to the lexicographically greater hash so the choice is stable across
// observers.
func heaviest(blocks []storage.Block) storage.Block {
	best := blocks[0]
	bestWeight := decodeWeight(best.Weight)
	for _, b := range blocks[1:] {
		w := decodeWeight(b.Weight)
		switch w.Cmp(bestWeight) {
		case 1:
			best, bestWeight = b, w
		case 0:
			if b.Hash > best.Hash {
				best = b
			}
		}
	}
	return best
}

// adoptBranch runs after a sole block lands at a height. When its parent
// lost an earlier fork, the new block moves the weight frontier onto the
// losing branch, so canonical status is walked back along the parent links
// until it rejoins the canonical chain.
func (m *Materializer) adoptBranch(ctx context.Context, q storage.Querier, chainID uint32, height uint64, parentHash string) error {
	for height > 0 {
		height--
		siblings, err := m.store.BlocksAtHeight(ctx, q, m.network, chainID, height)
		if err != nil {
			return err
		}
		parent := byHash(siblings, parentHash)
		if parent == nil || parent.Canonical {
			return nil
		}
		m.log.Info("Reanchoring canonical branch", "chain", chainID, "height", height, "winner", parent.Hash)
		for _, b := range siblings {
			if err := m.store.SetCanonicalByBlock(ctx, q, b.ID, b.Hash == parent.Hash); err != nil {
				return err
			}
		}
		parentHash = parent.Parent
	}
	return nil
}

func byHash(blocks []storage.Block, hash string) *storage.Block {
	for i := range blocks {
		if blocks[i].Hash == hash {
			return &blocks[i]
		}
	}
	return nil
}

func childOf(blocks []storage.Block, parentHash string) *storage.Block {
	for i := range blocks {
		if blocks[i].Parent == parentHash {
			return &blocks[i]
		}
	}
	return nil
}

// weightB64Len is the length of an unpadded base64url rendering of the
// 256-bit weight the node emits.
const weightB64Len = 43

// decodeWeight interprets a header weight. The node emits an unpadded
// base64url little-endian 256-bit value; plain decimal strings are accepted
// for robustness, but never at wire length, where an all-digit string is
// still base64url. Undecodable weights compare as zero.
func decodeWeight(s string) *big.Int {
	if len(s) != weightB64Len {
		if v, ok := new(big.Int).SetString(s, 10); ok {
			return v
		}
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return new(big.Int)
	}
	// Little-endian to big-endian.
	for i, j := 0, len(raw)-1; i < j; i, j = i+1, j-1 {
		raw[i], raw[j] = raw[j], raw[i]
	}
	return new(big.Int).SetBytes(raw)
}

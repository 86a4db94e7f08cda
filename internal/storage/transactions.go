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
)

// InsertTransaction persists one transaction row and returns its id.
func (s *Store) InsertTransaction(ctx context.Context, q Querier, t *Transaction) (int64, error) {
	var id int64
	err := q.QueryRow(ctx, `
		INSERT INTO transactions (block_id, requestkey, hash, sender, chainid,
			creationtime, result, logs, num_events, txid, canonical)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING id`,
		t.BlockID, t.RequestKey, t.Hash, t.Sender, t.ChainID,
		t.CreationTime, t.Result, t.Logs, t.NumEvents, t.TxID, t.Canonical,
	).Scan(&id)
	if err != nil {
		return 0, mapUnique(err)
	}
	return id, nil
}

// InsertSigner persists one signer of a transaction.
func (s *Store) InsertSigner(ctx context.Context, q Querier, sg *Signer) error {
	_, err := q.Exec(ctx, `
		INSERT INTO signers (transaction_id, pubkey, address, orderindex, clist)
		VALUES ($1,$2,$3,$4,$5)`,
		sg.TransactionID, sg.PubKey, sg.Address, sg.OrderIndex, sg.CList)
	return err
}

// InsertEvent persists one event, preserving its order index.
func (s *Store) InsertEvent(ctx context.Context, q Querier, e *Event) error {
	_, err := q.Exec(ctx, `
		INSERT INTO events (transaction_id, requestkey, chainid, orderindex,
			module, name, qualname, params, blockhash, height)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		e.TransactionID, e.RequestKey, e.ChainID, e.OrderIndex,
		e.Module, e.Name, e.QualName, e.Params, e.BlockHash, e.Height)
	return mapUnique(err)
}

// InsertTransfer persists one derived transfer.
func (s *Store) InsertTransfer(ctx context.Context, q Querier, t *Transfer) error {
	_, err := q.Exec(ctx, `
		INSERT INTO transfers (transaction_id, contract_id, amount, from_acct, to_acct,
			chainid, modulehash, modulename, requestkey, payloadhash, type,
			hastokenid, tokenid, network, canonical)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		t.TransactionID, t.ContractID, t.Amount, t.FromAcct, t.ToAcct,
		t.ChainID, t.ModuleHash, t.ModuleName, t.RequestKey, t.PayloadHash, t.Type,
		t.HasTokenID, t.TokenID, t.Network, t.Canonical)
	return err
}

// SetCanonicalByBlock flips the canonical flag of one block and of every
// transaction and transfer belonging to it. Used by the reorg walk.
func (s *Store) SetCanonicalByBlock(ctx context.Context, q Querier, blockID int64, canonical bool) error {
	if _, err := q.Exec(ctx, `
		UPDATE blocks SET canonical = $2 WHERE id = $1`, blockID, canonical); err != nil {
		return err
	}
	if _, err := q.Exec(ctx, `
		UPDATE transactions SET canonical = $2 WHERE block_id = $1`, blockID, canonical); err != nil {
		return err
	}
	_, err := q.Exec(ctx, `
		UPDATE transfers SET canonical = $2
		WHERE transaction_id IN (SELECT id FROM transactions WHERE block_id = $1)`,
		blockID, canonical)
	return err
}

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

// Package materialize turns raw header/payload pairs into relational rows.
// It is the only write path for blocks and their derived facts; every
// pipeline funnels through Materialize inside its own transaction.
package materialize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/log"
	"github.com/shopspring/decimal"

	"github.com/0xneves/indexer-kadena/internal/chainweb"
	"github.com/0xneves/indexer-kadena/internal/dispatch"
	"github.com/0xneves/indexer-kadena/internal/metrics"
	"github.com/0xneves/indexer-kadena/internal/storage"
)

// coinbaseSender marks the synthetic transaction carrying a block's
// coinbase output.
const coinbaseSender = "coinbase"

// Store is the slice of the repository the materialiser writes through.
// Matched by *storage.Store.
type Store interface {
	InsertBlock(ctx context.Context, q storage.Querier, b *storage.Block) (int64, error)
	InsertTransaction(ctx context.Context, q storage.Querier, t *storage.Transaction) (int64, error)
	InsertSigner(ctx context.Context, q storage.Querier, sg *storage.Signer) error
	InsertEvent(ctx context.Context, q storage.Querier, e *storage.Event) error
	InsertTransfer(ctx context.Context, q storage.Querier, t *storage.Transfer) error
	ApplyBalanceDelta(ctx context.Context, q storage.Querier, account string, chainID uint32, module, tokenID string, delta decimal.Decimal) error
	EnsureContract(ctx context.Context, q storage.Querier, network, moduleName string, chainID uint32, contractType string) (int64, error)
	BlocksAtHeight(ctx context.Context, q storage.Querier, network string, chainID uint32, height uint64) ([]storage.Block, error)
	SetCanonicalByBlock(ctx context.Context, q storage.Querier, blockID int64, canonical bool) error
}

// Materializer decodes and persists blocks for one network.
type Materializer struct {
	store   Store
	network string
	log     log.Logger
}

// New creates a materialiser bound to one network.
func New(store Store, network string) *Materializer {
	return &Materializer{
		store:   store,
		network: network,
		log:     log.New("area", "materialize"),
	}
}

// Materialize persists one block with its transactions, signers, events,
// transfers and balance updates inside the caller's transaction q. The
// returned DispatchInfo is nil when the block was already indexed; any
// error obliges the caller to roll back.
func (m *Materializer) Materialize(ctx context.Context, q storage.Querier, source string, raw *chainweb.BlockUpdate) (*dispatch.DispatchInfo, error) {
	header := &raw.Header
	payload := &raw.PayloadWithOutputs

	block, err := m.blockRow(header, payload)
	if err != nil {
		return nil, err
	}
	blockID, err := m.store.InsertBlock(ctx, q, block)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			metrics.DuplicateBlocks.Inc()
			m.log.Debug("Block already indexed", "hash", header.Hash, "chain", header.ChainID, "source", source)
			return nil, nil
		}
		return nil, fmt.Errorf("insert block %s: %w", header.Hash, err)
	}

	info := &dispatch.DispatchInfo{
		Hash:    header.Hash,
		ChainID: header.ChainID,
		Height:  header.Height,
	}
	seenEvents := make(map[string]struct{})

	for i, pair := range payload.Transactions {
		tx, out, err := chainweb.DecodeTxPair(pair)
		if err != nil {
			return nil, fmt.Errorf("block %s tx %d: %w", header.Hash, i, err)
		}
		if err := m.persistTransaction(ctx, q, blockID, header, tx, out, info, seenEvents); err != nil {
			return nil, fmt.Errorf("block %s tx %s: %w", header.Hash, tx.Hash, err)
		}
	}

	if err := m.persistCoinbase(ctx, q, blockID, header, payload, info, seenEvents); err != nil {
		return nil, fmt.Errorf("block %s coinbase: %w", header.Hash, err)
	}

	// A second block at this height means a fork: recompute the canonical
	// branch before the transaction commits.
	siblings, err := m.store.BlocksAtHeight(ctx, q, m.network, header.ChainID, header.Height)
	if err != nil {
		return nil, err
	}
	if len(siblings) > 1 {
		if err := m.canonicalize(ctx, q, header.ChainID, header.Height, siblings); err != nil {
			return nil, fmt.Errorf("canonicalize chain %d height %d: %w", header.ChainID, header.Height, err)
		}
	} else if err := m.adoptBranch(ctx, q, header.ChainID, header.Height, header.Parent); err != nil {
		return nil, fmt.Errorf("adopt branch chain %d height %d: %w", header.ChainID, header.Height, err)
	}

	metrics.BlocksMaterialized.WithLabelValues(source).Inc()
	m.log.Debug("Materialized block", "hash", header.Hash, "chain", header.ChainID,
		"height", header.Height, "txs", len(payload.Transactions), "source", source)
	return info, nil
}

func (m *Materializer) blockRow(header *chainweb.Header, payload *chainweb.PayloadWithOutputs) (*storage.Block, error) {
	creation, err := header.CreationSeconds()
	if err != nil {
		return nil, err
	}
	epoch, err := header.EpochSeconds()
	if err != nil {
		return nil, err
	}
	adjacents, err := json.Marshal(header.Adjacents)
	if err != nil {
		return nil, err
	}
	return &storage.Block{
		Network:           m.network,
		ChainID:           header.ChainID,
		Height:            header.Height,
		Hash:              header.Hash,
		Parent:            header.Parent,
		CreationTime:      creation,
		EpochStart:        epoch,
		FeatureFlags:      chainweb.FlagsToSigned(header.FeatureFlags),
		Weight:            header.Weight,
		Target:            header.Target,
		Nonce:             header.Nonce,
		PayloadHash:       header.PayloadHash,
		Adjacents:         adjacents,
		MinerData:         []byte(payload.MinerData),
		TransactionsHash:  payload.TransactionsHash,
		OutputsHash:       payload.OutputsHash,
		Coinbase:          []byte(payload.Coinbase),
		TransactionsCount: len(payload.Transactions),
	}, nil
}

func (m *Materializer) persistTransaction(ctx context.Context, q storage.Querier, blockID int64, header *chainweb.Header, tx *chainweb.SignedTx, out *chainweb.TxOutput, info *dispatch.DispatchInfo, seen map[string]struct{}) error {
	cmd, err := tx.ParseCommand()
	if err != nil {
		return err
	}
	row := &storage.Transaction{
		BlockID:      blockID,
		RequestKey:   out.ReqKey,
		Hash:         tx.Hash,
		Sender:       cmd.Meta.Sender,
		ChainID:      header.ChainID,
		CreationTime: numberToSeconds(cmd.Meta.CreationTime),
		Result:       out.Result,
		Logs:         out.Logs,
		NumEvents:    len(out.Events),
		TxID:         out.TxID,
		Canonical:    true,
	}
	txID, err := m.store.InsertTransaction(ctx, q, row)
	if err != nil {
		return err
	}

	for i, signer := range cmd.Signers {
		idx := i
		var addr *string
		if signer.Address != "" {
			a := signer.Address
			addr = &a
		}
		if err := m.store.InsertSigner(ctx, q, &storage.Signer{
			TransactionID: txID,
			PubKey:        signer.PubKey,
			Address:       addr,
			OrderIndex:    &idx,
			CList:         signer.CList,
		}); err != nil {
			return err
		}
	}

	return m.persistOutputs(ctx, q, txID, header, out, info, seen)
}

func (m *Materializer) persistCoinbase(ctx context.Context, q storage.Querier, blockID int64, header *chainweb.Header, payload *chainweb.PayloadWithOutputs, info *dispatch.DispatchInfo, seen map[string]struct{}) error {
	out, err := chainweb.DecodeCoinbase(payload.Coinbase)
	if err != nil {
		return err
	}
	creation, _ := header.CreationSeconds()
	row := &storage.Transaction{
		BlockID:      blockID,
		RequestKey:   out.ReqKey,
		Hash:         out.ReqKey,
		Sender:       coinbaseSender,
		ChainID:      header.ChainID,
		CreationTime: creation,
		Result:       out.Result,
		Logs:         out.Logs,
		NumEvents:    len(out.Events),
		TxID:         out.TxID,
		Canonical:    true,
	}
	txID, err := m.store.InsertTransaction(ctx, q, row)
	if err != nil {
		return err
	}
	return m.persistOutputs(ctx, q, txID, header, out, info, seen)
}

// persistOutputs writes the events of one output and their derived facts,
// and folds request key and event kinds into the dispatch record.
func (m *Materializer) persistOutputs(ctx context.Context, q storage.Querier, txID int64, header *chainweb.Header, out *chainweb.TxOutput, info *dispatch.DispatchInfo, seen map[string]struct{}) error {
	info.RequestKeys = append(info.RequestKeys, out.ReqKey)

	for i, ev := range out.Events {
		params, err := json.Marshal(ev.Params)
		if err != nil {
			return err
		}
		qualified := ev.Qualified()
		if err := m.store.InsertEvent(ctx, q, &storage.Event{
			TransactionID: txID,
			RequestKey:    out.ReqKey,
			ChainID:       header.ChainID,
			OrderIndex:    i,
			Module:        ev.Module.String(),
			Name:          ev.Name,
			QualName:      qualified,
			Params:        params,
			BlockHash:     header.Hash,
			Height:        header.Height,
		}); err != nil {
			return err
		}
		if _, ok := seen[qualified]; !ok {
			seen[qualified] = struct{}{}
			info.QualifiedEventNames = append(info.QualifiedEventNames, qualified)
		}
		if err := m.deriveTransfer(ctx, q, txID, header, out, &ev); err != nil {
			return err
		}
	}
	return nil
}

// numberToSeconds parses a preserved time value, tolerating the fractional
// form some producers emit.
func numberToSeconds(n json.Number) int64 {
	if n == "" {
		return 0
	}
	if v, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		return v
	}
	if f, err := n.Float64(); err == nil {
		return int64(f)
	}
	return 0
}

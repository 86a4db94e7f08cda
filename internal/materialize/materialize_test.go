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
	"encoding/json"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/0xneves/indexer-kadena/internal/chainweb"
	"github.com/0xneves/indexer-kadena/internal/storage"
)

// memStore is an in-memory stand-in for the repository, keyed the way the
// schema constrains the real tables.
type memStore struct {
	nextID    int64
	blocks    []storage.Block
	txs       []storage.Transaction
	signers   []storage.Signer
	events    []storage.Event
	transfers []storage.Transfer
	balances  map[string]decimal.Decimal
	contracts map[string]int64
	canonical map[int64]bool
}

func newMemStore() *memStore {
	return &memStore{
		balances:  make(map[string]decimal.Decimal),
		contracts: make(map[string]int64),
		canonical: make(map[int64]bool),
	}
}

func (m *memStore) id() int64 { m.nextID++; return m.nextID }

func (m *memStore) InsertBlock(_ context.Context, _ storage.Querier, b *storage.Block) (int64, error) {
	for _, existing := range m.blocks {
		if existing.Hash == b.Hash {
			return 0, storage.ErrDuplicate
		}
	}
	row := *b
	row.ID = m.id()
	m.blocks = append(m.blocks, row)
	m.canonical[row.ID] = true
	return row.ID, nil
}

func (m *memStore) InsertTransaction(_ context.Context, _ storage.Querier, t *storage.Transaction) (int64, error) {
	row := *t
	row.ID = m.id()
	m.txs = append(m.txs, row)
	return row.ID, nil
}

func (m *memStore) InsertSigner(_ context.Context, _ storage.Querier, sg *storage.Signer) error {
	m.signers = append(m.signers, *sg)
	return nil
}

func (m *memStore) InsertEvent(_ context.Context, _ storage.Querier, e *storage.Event) error {
	m.events = append(m.events, *e)
	return nil
}

func (m *memStore) InsertTransfer(_ context.Context, _ storage.Querier, t *storage.Transfer) error {
	m.transfers = append(m.transfers, *t)
	return nil
}

func (m *memStore) ApplyBalanceDelta(_ context.Context, _ storage.Querier, account string, chainID uint32, module, tokenID string, delta decimal.Decimal) error {
	key := fmt.Sprintf("%s|%d|%s|%s", account, chainID, module, tokenID)
	m.balances[key] = m.balances[key].Add(delta)
	return nil
}

func (m *memStore) EnsureContract(_ context.Context, _ storage.Querier, network, moduleName string, chainID uint32, contractType string) (int64, error) {
	key := fmt.Sprintf("%s|%s|%d", network, moduleName, chainID)
	if id, ok := m.contracts[key]; ok {
		return id, nil
	}
	id := m.id()
	m.contracts[key] = id
	return id, nil
}

func (m *memStore) BlocksAtHeight(_ context.Context, _ storage.Querier, network string, chainID uint32, height uint64) ([]storage.Block, error) {
	var out []storage.Block
	for _, b := range m.blocks {
		if b.Network == network && b.ChainID == chainID && b.Height == height {
			b.Canonical = m.canonical[b.ID]
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memStore) SetCanonicalByBlock(_ context.Context, _ storage.Querier, blockID int64, canonical bool) error {
	m.canonical[blockID] = canonical
	return nil
}

func (m *memStore) balanceOf(account, module string) decimal.Decimal {
	return m.balances[fmt.Sprintf("%s|0|%s|", account, module)]
}

// signedTxJSON builds a wire-form signed transaction envelope.
func signedTxJSON(t *testing.T, hash, sender string) []byte {
	t.Helper()
	inner, err := json.Marshal(map[string]any{
		"networkId": "testnet04",
		"payload":   map[string]any{"exec": map[string]any{"code": "(coin.transfer)", "data": map[string]any{}}},
		"signers":   []any{map[string]any{"pubKey": "pk-" + sender, "clist": []any{}}},
		"meta": map[string]any{
			"chainId": "0", "sender": sender, "gasLimit": 2500,
			"gasPrice": 1e-8, "ttl": 600, "creationTime": 1700000000,
		},
		"nonce": "n-" + hash,
	})
	require.NoError(t, err)
	envelope, err := json.Marshal(map[string]any{
		"hash": hash,
		"sigs": []any{map[string]any{"sig": "sig-" + hash}},
		"cmd":  string(inner),
	})
	require.NoError(t, err)
	return envelope
}

func transferOutputJSON(t *testing.T, reqKey, from, to string, amount string) []byte {
	t.Helper()
	out, err := json.Marshal(map[string]any{
		"reqKey": reqKey,
		"txId":   7,
		"result": map[string]any{"status": "success"},
		"gas":    500,
		"events": []any{map[string]any{
			"module":     "coin",
			"name":       "TRANSFER",
			"params":     []any{from, to, json.RawMessage(amount)},
			"moduleHash": "mh-coin",
		}},
	})
	require.NoError(t, err)
	return out
}

func coinbaseJSON(t *testing.T, reqKey, miner string) chainweb.Base64JSON {
	t.Helper()
	out, err := json.Marshal(map[string]any{
		"reqKey": reqKey,
		"txId":   1,
		"result": map[string]any{"status": "success"},
		"gas":    0,
		"events": []any{map[string]any{
			"module":     "coin",
			"name":       "TRANSFER",
			"params":     []any{"", miner, json.RawMessage(`1.0`)},
			"moduleHash": "mh-coin",
		}},
	})
	require.NoError(t, err)
	return chainweb.Base64JSON(out)
}

func testBlock(t *testing.T, hash string, height uint64, parent, weight string, pairs ...[2]chainweb.Base64JSON) *chainweb.BlockUpdate {
	t.Helper()
	return &chainweb.BlockUpdate{
		Header: chainweb.Header{
			Hash:         hash,
			ChainID:      0,
			Height:       height,
			Parent:       parent,
			CreationTime: "1700000000",
			EpochStart:   "1699990000",
			FeatureFlags: 0,
			Weight:       weight,
			PayloadHash:  "ph-" + hash,
		},
		PayloadWithOutputs: chainweb.PayloadWithOutputs{
			Transactions: pairs,
			MinerData:    chainweb.Base64JSON(`{"account":"miner"}`),
			Coinbase:     coinbaseJSON(t, "cb-"+hash, "miner"),
		},
	}
}

func transferBlock(t *testing.T, hash string, height uint64) *chainweb.BlockUpdate {
	pair := [2]chainweb.Base64JSON{
		signedTxJSON(t, "tx-"+hash, "alice"),
		transferOutputJSON(t, "rk-"+hash, "alice", "bob", "3.5"),
	}
	return testBlock(t, hash, height, "parent-"+hash, "100", pair)
}

func TestMaterializePersistsBlock(t *testing.T) {
	store := newMemStore()
	m := New(store, "testnet04")

	info, err := m.Materialize(context.Background(), nil, storage.SourceStreaming, transferBlock(t, "b1", 10))
	require.NoError(t, err)
	require.NotNil(t, info)

	require.Len(t, store.blocks, 1)
	require.Equal(t, "b1", store.blocks[0].Hash)
	require.Equal(t, 1, store.blocks[0].TransactionsCount)

	// One user transaction plus the synthetic coinbase.
	require.Len(t, store.txs, 2)
	require.Equal(t, "alice", store.txs[0].Sender)
	require.Equal(t, "coinbase", store.txs[1].Sender)
	require.Equal(t, "cb-b1", store.txs[1].RequestKey)

	require.Len(t, store.signers, 1)
	require.Equal(t, "pk-alice", store.signers[0].PubKey)

	require.Len(t, store.events, 2)
	require.Equal(t, "coin.TRANSFER", store.events[0].QualName)

	require.Equal(t, "b1", info.Hash)
	require.Equal(t, uint64(10), info.Height)
	require.Equal(t, []string{"rk-b1", "cb-b1"}, info.RequestKeys)
	// Same kind emitted twice still dispatches once.
	require.Equal(t, []string{"coin.TRANSFER"}, info.QualifiedEventNames)
}

func TestMaterializeDuplicateIsIdempotent(t *testing.T) {
	store := newMemStore()
	m := New(store, "testnet04")
	ctx := context.Background()

	first, err := m.Materialize(ctx, nil, storage.SourceArchive, transferBlock(t, "dup", 5))
	require.NoError(t, err)
	require.NotNil(t, first)
	txCount := len(store.txs)

	second, err := m.Materialize(ctx, nil, storage.SourceAPI, transferBlock(t, "dup", 5))
	require.NoError(t, err)
	require.Nil(t, second)
	require.Len(t, store.blocks, 1)
	require.Len(t, store.txs, txCount)
}

func TestTransferBalancesConserve(t *testing.T) {
	store := newMemStore()
	m := New(store, "testnet04")

	_, err := m.Materialize(context.Background(), nil, storage.SourceStreaming, transferBlock(t, "bal", 3))
	require.NoError(t, err)

	require.Len(t, store.transfers, 2) // user transfer + coinbase mint
	require.True(t, store.balanceOf("bob", "coin").Equal(decimal.RequireFromString("3.5")))
	require.True(t, store.balanceOf("alice", "coin").Equal(decimal.RequireFromString("-3.5")))
	// alice -> bob nets to zero; the coinbase mint credits the miner only.
	sum := store.balanceOf("alice", "coin").Add(store.balanceOf("bob", "coin"))
	require.True(t, sum.IsZero())
	require.True(t, store.balanceOf("miner", "coin").Equal(decimal.NewFromInt(1)))
}

func TestMalformedTransferSkippedNotFatal(t *testing.T) {
	store := newMemStore()
	m := New(store, "testnet04")

	pair := [2]chainweb.Base64JSON{
		signedTxJSON(t, "tx-odd", "alice"),
		transferOutputJSON(t, "rk-odd", "alice", "bob", `{"guard":{}}`),
	}
	info, err := m.Materialize(context.Background(), nil, storage.SourceStreaming,
		testBlock(t, "odd", 4, "p", "1", pair))
	require.NoError(t, err)
	require.NotNil(t, info)

	// The event row persists, the derived transfer does not.
	require.Len(t, store.events, 2)
	require.Len(t, store.transfers, 1) // coinbase only
	require.True(t, store.balanceOf("bob", "coin").IsZero())
}

func TestTokenTransferClassifiedNonFungible(t *testing.T) {
	store := newMemStore()
	m := New(store, "testnet04")

	out, err := json.Marshal(map[string]any{
		"reqKey": "rk-nft",
		"result": map[string]any{"status": "success"},
		"events": []any{map[string]any{
			"module":     map[string]any{"namespace": "marmalade-v2", "name": "ledger"},
			"name":       "TRANSFER",
			"params":     []any{"alice", "bob", json.RawMessage(`1`), "t:token-1"},
			"moduleHash": "mh-nft",
		}},
	})
	require.NoError(t, err)
	pair := [2]chainweb.Base64JSON{signedTxJSON(t, "tx-nft", "alice"), out}

	_, err = m.Materialize(context.Background(), nil, storage.SourceStreaming,
		testBlock(t, "nft", 8, "p", "1", pair))
	require.NoError(t, err)

	var nft *storage.Transfer
	for i := range store.transfers {
		if store.transfers[i].RequestKey == "rk-nft" {
			nft = &store.transfers[i]
		}
	}
	require.NotNil(t, nft)
	require.Equal(t, storage.TransferNonFungible, nft.Type)
	require.True(t, nft.HasTokenID)
	require.Equal(t, "t:token-1", *nft.TokenID)
}

func TestForkCanonicalizesHeaviest(t *testing.T) {
	store := newMemStore()
	m := New(store, "testnet04")
	ctx := context.Background()

	_, err := m.Materialize(ctx, nil, storage.SourceStreaming, testBlock(t, "light", 20, "p19", "10"))
	require.NoError(t, err)
	_, err = m.Materialize(ctx, nil, storage.SourceStreaming, testBlock(t, "heavy", 20, "p19", "20"))
	require.NoError(t, err)

	var lightID, heavyID int64
	for _, b := range store.blocks {
		switch b.Hash {
		case "light":
			lightID = b.ID
		case "heavy":
			heavyID = b.ID
		}
	}
	require.False(t, store.canonical[lightID])
	require.True(t, store.canonical[heavyID])
}

func TestLateChildReanchorsLosingBranch(t *testing.T) {
	store := newMemStore()
	m := New(store, "testnet04")
	ctx := context.Background()

	_, err := m.Materialize(ctx, nil, storage.SourceStreaming, testBlock(t, "loser", 40, "p39", "10"))
	require.NoError(t, err)
	_, err = m.Materialize(ctx, nil, storage.SourceStreaming, testBlock(t, "winner", 40, "p39", "20"))
	require.NoError(t, err)

	// A sole child extending the lighter branch arrives later; its
	// cumulative weight moves the frontier past the old winner, so the
	// branch it sits on becomes canonical again.
	_, err = m.Materialize(ctx, nil, storage.SourceStreaming, testBlock(t, "child", 41, "loser", "30"))
	require.NoError(t, err)

	ids := map[string]int64{}
	for _, b := range store.blocks {
		ids[b.Hash] = b.ID
	}
	require.True(t, store.canonical[ids["child"]])
	require.True(t, store.canonical[ids["loser"]])
	require.False(t, store.canonical[ids["winner"]])
}

func TestForkTieBreaksOnHash(t *testing.T) {
	store := newMemStore()
	m := New(store, "testnet04")
	ctx := context.Background()

	_, err := m.Materialize(ctx, nil, storage.SourceStreaming, testBlock(t, "aaa", 30, "p29", "10"))
	require.NoError(t, err)
	_, err = m.Materialize(ctx, nil, storage.SourceStreaming, testBlock(t, "zzz", 30, "p29", "10"))
	require.NoError(t, err)

	for _, b := range store.blocks {
		require.Equal(t, b.Hash == "zzz", store.canonical[b.ID], b.Hash)
	}
}

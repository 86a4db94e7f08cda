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

package sync

import (
	"context"
	"encoding/json"
	"fmt"
	stdsync "sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/0xneves/indexer-kadena/internal/chainweb"
	"github.com/0xneves/indexer-kadena/internal/dispatch"
	"github.com/0xneves/indexer-kadena/internal/storage"
)

// fakeTx satisfies pgx.Tx for the methods the pipelines touch; everything
// else panics through the embedded nil interface.
type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

type fakeDB struct {
	mu  stdsync.Mutex
	txs []*fakeTx
}

func (d *fakeDB) Begin(context.Context) (pgx.Tx, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	tx := &fakeTx{}
	d.txs = append(d.txs, tx)
	return tx, nil
}

func (d *fakeDB) lastTx() *fakeTx {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.txs) == 0 {
		return nil
	}
	return d.txs[len(d.txs)-1]
}

type matCall struct {
	source string
	hash   string
}

// fakeMat records materialisation calls and simulates duplicates and
// failures by block hash.
type fakeMat struct {
	mu         stdsync.Mutex
	calls      []matCall
	failOn     map[string]error
	duplicates map[string]bool
}

func (m *fakeMat) Materialize(_ context.Context, _ storage.Querier, source string, raw *chainweb.BlockUpdate) (*dispatch.DispatchInfo, error) {
	hash := raw.Header.Hash
	if err := m.failOn[hash]; err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.calls = append(m.calls, matCall{source: source, hash: hash})
	m.mu.Unlock()
	if m.duplicates[hash] {
		return nil, nil
	}
	return &dispatch.DispatchInfo{Hash: hash, ChainID: raw.Header.ChainID, Height: raw.Header.Height}, nil
}

func (m *fakeMat) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// fakeCursors is an in-memory sync-status ledger keyed by pipeline identity.
type fakeCursors struct {
	mu    stdsync.Mutex
	saved []storage.SyncStatus
}

func cursorKey(chainID uint32, network, prefix, source string) string {
	return fmt.Sprintf("%s|%d|%s|%s", network, chainID, prefix, source)
}

func (c *fakeCursors) FindLastCursor(_ context.Context, chainID uint32, network, prefix, source string) (*storage.SyncStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	want := cursorKey(chainID, network, prefix, source)
	for i := len(c.saved) - 1; i >= 0; i-- {
		st := c.saved[i]
		if cursorKey(st.ChainID, st.Network, st.Prefix, st.Source) == want {
			out := st
			return &out, nil
		}
	}
	return nil, nil
}

func (c *fakeCursors) SaveCursor(_ context.Context, _ storage.Querier, st *storage.SyncStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saved = append(c.saved, *st)
	return nil
}

// fakeObjects pages a fixed key listing and serves canned block envelopes.
type fakeObjects struct {
	mu      stdsync.Mutex
	pages   map[string][]string // startAfter -> keys
	objects map[string][]byte
	listed  []string // startAfter values observed
}

func (o *fakeObjects) List(_ context.Context, _ string, _ int32, startAfter string) ([]string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.listed = append(o.listed, startAfter)
	return o.pages[startAfter], nil
}

func (o *fakeObjects) Get(_ context.Context, key string) ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	data, ok := o.objects[key]
	if !ok {
		return nil, fmt.Errorf("no such key %s", key)
	}
	return data, nil
}

func envelope(t *testing.T, hash string, chainID uint32, height uint64) []byte {
	t.Helper()
	data, err := json.Marshal(chainweb.BlockUpdate{
		Header: chainweb.Header{Hash: hash, ChainID: chainID, Height: height},
	})
	require.NoError(t, err)
	return data
}

func collect(t *testing.T, ch <-chan dispatch.DispatchInfo, n int) []string {
	t.Helper()
	var hashes []string
	for i := 0; i < n; i++ {
		select {
		case di := <-ch:
			hashes = append(hashes, di.Hash)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d of %d dispatches", i, n)
		}
	}
	return hashes
}

func assertNoDispatch(t *testing.T, ch <-chan dispatch.DispatchInfo) {
	t.Helper()
	select {
	case di := <-ch:
		t.Fatalf("unexpected dispatch %q", di.Hash)
	case <-time.After(50 * time.Millisecond):
	}
}

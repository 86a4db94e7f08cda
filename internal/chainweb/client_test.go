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

package chainweb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetCut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chainweb/0.0/testnet04/cut", r.URL.Path)
		fmt.Fprint(w, `{"hashes":{"0":{"hash":"tip0","height":1234}}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "testnet04")
	cut, err := c.GetCut(context.Background())
	require.NoError(t, err)

	h, ok := cut.TipHeight(0)
	require.True(t, ok)
	require.Equal(t, uint64(1234), h)
}

func TestRetryOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"hashes":{}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "mainnet01")
	_, err := c.GetCut(context.Background())
	require.NoError(t, err)
	require.Equal(t, int32(3), calls.Load())
}

func TestRetryGivesUpOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewClient(srv.URL, "mainnet01")
	_, err := c.GetCut(ctx)
	require.Error(t, err)
}

func TestBranchHeadersPagination(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chainweb/0.0/mainnet01/chain/2/header/branch", r.URL.Path)
		require.Equal(t, "application/json;blockheader-encoding=object", r.Header.Get("Accept"))
		switch calls.Add(1) {
		case 1:
			require.Empty(t, r.URL.Query().Get("next"))
			fmt.Fprint(w, `{"items":[{"hash":"a","chainId":2,"height":10},{"hash":"b","chainId":2,"height":11}],"next":"cursor-1"}`)
		default:
			require.Equal(t, "cursor-1", r.URL.Query().Get("next"))
			fmt.Fprint(w, `{"items":[{"hash":"c","chainId":2,"height":12}],"next":null}`)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "mainnet01")
	headers, err := c.BranchHeaders(context.Background(), 2, 10, 12)
	require.NoError(t, err)
	require.Len(t, headers, 3)
	require.Equal(t, "c", headers[2].Hash)
}

func TestBranchHeadersInvertedInterval(t *testing.T) {
	c := NewClient("http://unused", "mainnet01")
	headers, err := c.BranchHeaders(context.Background(), 0, 20, 10)
	require.NoError(t, err)
	require.Empty(t, headers)
}

func TestFetchBlocks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/chainweb/0.0/mainnet01/chain/0/header/branch":
			fmt.Fprint(w, `{"items":[{"hash":"blk1","chainId":0,"height":5,"payloadHash":"ph1"}],"next":null}`)
		case "/chainweb/0.0/mainnet01/chain/0/payload/ph1/outputs":
			fmt.Fprint(w, `{"transactions":[],"minerData":"e30=","coinbase":"e30=","transactionsHash":"th","outputsHash":"oh","payloadHash":"ph1"}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "mainnet01")
	updates, err := c.FetchBlocks(context.Background(), 0, 5, 5)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	require.Equal(t, "blk1", updates[0].Header.Hash)
	require.Equal(t, "ph1", updates[0].PayloadWithOutputs.PayloadHash)
}

func TestFetchGuard(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chainweb/0.0/mainnet01/chain/1/pact/api/v1/local", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var envelope struct {
			Cmd string `json:"cmd"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&envelope))
		var cmd Command
		require.NoError(t, json.Unmarshal([]byte(envelope.Cmd), &cmd))
		require.NotNil(t, cmd.Payload.Exec)
		require.Contains(t, cmd.Payload.Exec.Code, `(coin.details "alice")`)

		fmt.Fprint(w, `{"result":{"status":"success","data":{"balance":1.5,"guard":{"keys":["k1","k2"],"pred":"keys-all"}}}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "mainnet01")
	guard, err := c.FetchGuard(context.Background(), 1, "alice", "coin")
	require.NoError(t, err)
	require.NotNil(t, guard)
	require.Equal(t, []string{"k1", "k2"}, guard.Keys)
	require.Equal(t, "keys-all", guard.Predicate)
}

func TestFetchGuardMissingAccount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result":{"status":"failure","error":{"message":"row not found"}}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "mainnet01")
	guard, err := c.FetchGuard(context.Background(), 0, "ghost", "coin")
	require.NoError(t, err)
	require.Nil(t, guard)
}

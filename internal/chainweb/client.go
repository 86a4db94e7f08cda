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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/semaphore"
)

// nodeConcurrency caps in-flight requests against the node across every
// pipeline sharing the client.
const nodeConcurrency = 50

// Retry policy for transient node failures.
const (
	retryBase     = 500 * time.Millisecond
	retryFactor   = 2
	retryMax      = 30 * time.Second
	retryAttempts = 8
)

// headerPageLimit bounds one branch-header page request.
const headerPageLimit = 360

// HTTPError is a non-2xx node response. Client callers treat it as transient
// and retry under the shared backoff policy.
type HTTPError struct {
	Status int
	URL    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("node returned %d for %s", e.Status, e.URL)
}

// Client is the Chainweb service API client. It is stateless and safe for
// concurrent use; a weighted semaphore enforces the global request cap.
type Client struct {
	base    string
	network string
	hc      *http.Client
	sem     *semaphore.Weighted
	log     log.Logger
}

// NewClient creates a node client for one network.
func NewClient(base, network string) *Client {
	return &Client{
		base:    base,
		network: network,
		hc:      &http.Client{Timeout: 60 * time.Second},
		sem:     semaphore.NewWeighted(nodeConcurrency),
		log:     log.New("area", "chainweb"),
	}
}

// Network returns the network id the client was built for.
func (c *Client) Network() string { return c.network }

func (c *Client) url(format string, args ...interface{}) string {
	return c.base + "/chainweb/0.0/" + c.network + fmt.Sprintf(format, args...)
}

// do runs one request under the concurrency cap and decodes the JSON body
// into out. Non-2xx statuses surface as *HTTPError.
func (c *Client) do(ctx context.Context, req *http.Request, out interface{}) error {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.sem.Release(1)

	resp, err := c.hc.Do(req.WithContext(ctx))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return &HTTPError{Status: resp.StatusCode, URL: req.URL.String()}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// retry wraps op in the shared bounded exponential backoff policy.
func (c *Client) retry(ctx context.Context, op func() error) error {
	pol := backoff.NewExponentialBackOff()
	pol.InitialInterval = retryBase
	pol.Multiplier = retryFactor
	pol.MaxInterval = retryMax
	pol.MaxElapsedTime = 0
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(pol, retryAttempts-1), ctx))
}

// GetCut fetches the current cut, the per-chain frontier snapshot.
func (c *Client) GetCut(ctx context.Context) (*Cut, error) {
	var cut Cut
	err := c.retry(ctx, func() error {
		req, err := http.NewRequest(http.MethodGet, c.url("/cut"), nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		return c.do(ctx, req, &cut)
	})
	if err != nil {
		return nil, err
	}
	return &cut, nil
}

type branchPage struct {
	Items []Header `json:"items"`
	Next  *string  `json:"next"`
	Limit int      `json:"limit"`
}

// BranchHeaders fetches the headers of one chain in [minHeight, maxHeight],
// following pagination until the interval is covered. An inverted interval
// yields an empty slice.
func (c *Client) BranchHeaders(ctx context.Context, chainID uint32, minHeight, maxHeight uint64) ([]Header, error) {
	if minHeight > maxHeight {
		return nil, nil
	}
	var headers []Header
	next := ""
	for {
		var page branchPage
		err := c.retry(ctx, func() error {
			url := c.url("/chain/%d/header/branch?minheight=%d&maxheight=%d&limit=%d", chainID, minHeight, maxHeight, headerPageLimit)
			if next != "" {
				url += "&next=" + next
			}
			req, err := http.NewRequest(http.MethodGet, url, nil)
			if err != nil {
				return backoff.Permanent(err)
			}
			req.Header.Set("Accept", "application/json;blockheader-encoding=object")
			return c.do(ctx, req, &page)
		})
		if err != nil {
			return nil, err
		}
		headers = append(headers, page.Items...)
		if page.Next == nil || *page.Next == "" || len(page.Items) == 0 {
			return headers, nil
		}
		next = *page.Next
	}
}

// PayloadWithOutputs fetches the payload of a block by its payload hash.
func (c *Client) PayloadWithOutputs(ctx context.Context, chainID uint32, payloadHash string) (*PayloadWithOutputs, error) {
	var payload PayloadWithOutputs
	err := c.retry(ctx, func() error {
		req, err := http.NewRequest(http.MethodGet, c.url("/chain/%d/payload/%s/outputs", chainID, payloadHash), nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		return c.do(ctx, req, &payload)
	})
	if err != nil {
		return nil, err
	}
	return &payload, nil
}

// FetchBlocks resolves a height interval into full header/payload pairs.
// This is the gap-fill fetch path: headers via the branch endpoint, one
// payload request per header.
func (c *Client) FetchBlocks(ctx context.Context, chainID uint32, minHeight, maxHeight uint64) ([]BlockUpdate, error) {
	headers, err := c.BranchHeaders(ctx, chainID, minHeight, maxHeight)
	if err != nil {
		return nil, err
	}
	updates := make([]BlockUpdate, 0, len(headers))
	for _, h := range headers {
		payload, err := c.PayloadWithOutputs(ctx, chainID, h.PayloadHash)
		if err != nil {
			return nil, fmt.Errorf("payload %s: %w", h.PayloadHash, err)
		}
		updates = append(updates, BlockUpdate{Header: h, PayloadWithOutputs: *payload})
	}
	return updates, nil
}

// PactLocal runs a read-only Pact command against one chain.
func (c *Client) PactLocal(ctx context.Context, chainID uint32, cmd []byte) (json.RawMessage, error) {
	var result json.RawMessage
	err := c.retry(ctx, func() error {
		req, err := http.NewRequest(http.MethodPost, c.url("/chain/%d/pact/api/v1/local", chainID), bytes.NewReader(cmd))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		return c.do(ctx, req, &result)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// FetchGuard queries the current guard of an account under a token module.
// A missing account row is not an error; the guard is nil.
func (c *Client) FetchGuard(ctx context.Context, chainID uint32, account, module string) (*Guard, error) {
	code := fmt.Sprintf("(%s.details %q)", module, account)
	cmd, err := localCommand(c.network, chainID, code)
	if err != nil {
		return nil, err
	}
	raw, err := c.PactLocal(ctx, chainID, cmd)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Result struct {
			Status string `json:"status"`
			Data   struct {
				Guard *Guard `json:"guard"`
			} `json:"data"`
		} `json:"result"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("invalid local result: %w", err)
	}
	if resp.Result.Status != "success" {
		return nil, nil
	}
	return resp.Result.Data.Guard, nil
}

// localCommand assembles an unsigned exec command for /local.
func localCommand(network string, chainID uint32, code string) ([]byte, error) {
	inner, err := json.Marshal(map[string]interface{}{
		"networkId": network,
		"payload": map[string]interface{}{
			"exec": map[string]interface{}{"code": code, "data": map[string]interface{}{}},
		},
		"signers": []interface{}{},
		"meta": map[string]interface{}{
			"chainId":      fmt.Sprintf("%d", chainID),
			"sender":       "indexer",
			"gasLimit":     150000,
			"gasPrice":     1e-8,
			"ttl":          600,
			"creationTime": time.Now().Unix(),
		},
		"nonce": fmt.Sprintf("indexer:%d", time.Now().UnixNano()),
	})
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]interface{}{
		"hash": "",
		"sigs": []interface{}{},
		"cmd":  string(inner),
	})
}

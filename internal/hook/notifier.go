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

package hook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/0xneves/indexer-kadena/internal/dispatch"
)

const notifierBuffer = 256

// Notifier forwards published blocks to a peer's /new-block endpoint.
// Delivery is best effort: a failed POST is logged and dropped, never
// retried, and never blocks the bus.
type Notifier struct {
	bus *dispatch.Bus
	url string
	hc  *http.Client
	log log.Logger
}

// NewNotifier builds a notifier posting to url.
func NewNotifier(bus *dispatch.Bus, url string) *Notifier {
	return &Notifier{
		bus: bus,
		url: url,
		hc:  &http.Client{Timeout: 10 * time.Second},
		log: log.New("area", "hook"),
	}
}

// Run subscribes to the bus and posts each block until the context ends.
func (n *Notifier) Run(ctx context.Context) error {
	ch := make(chan dispatch.DispatchInfo, notifierBuffer)
	sub := n.bus.SubscribeNewBlocks(ch)
	defer sub.Unsubscribe()

	for {
		select {
		case di := <-ch:
			n.post(ctx, &di)
		case err := <-sub.Err():
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (n *Notifier) post(ctx context.Context, di *dispatch.DispatchInfo) {
	body, err := json.Marshal(di)
	if err != nil {
		n.log.Error("Encoding notification failed", "hash", di.Hash, "err", err)
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		n.log.Error("Building notification failed", "hash", di.Hash, "err", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.hc.Do(req)
	if err != nil {
		n.log.Warn("Block notification failed", "hash", di.Hash, "url", n.url, "err", err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		n.log.Warn("Block notification rejected", "hash", di.Hash, "status", resp.StatusCode)
	}
}

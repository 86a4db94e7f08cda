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
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// blockHeaderEvent is the event type carrying new blocks on the update
// stream.
const blockHeaderEvent = "BlockHeader"

// reconnectWait is the pause before redialling a dropped update stream.
const reconnectWait = 5 * time.Second

// StreamBlockUpdates consumes the node's server-sent block update stream and
// delivers decoded header/payload pairs on ch. The connection is redialled
// on any error until the context is cancelled; ordering across reconnects is
// not guaranteed and the caller deduplicates.
func (c *Client) StreamBlockUpdates(ctx context.Context, ch chan<- BlockUpdate) error {
	for {
		if err := c.streamOnce(ctx, ch); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Warn("Block update stream dropped, reconnecting", "err", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectWait):
		}
	}
}

func (c *Client) streamOnce(ctx context.Context, ch chan<- BlockUpdate) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/block/updates"), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &HTTPError{Status: resp.StatusCode, URL: req.URL.String()}
	}
	c.log.Info("Block update stream connected")

	// Minimal event-stream framing: "event:" and "data:" fields accumulate
	// until a blank line terminates the event. Comment lines (":") are
	// keepalives and ignored.
	var (
		scanner = bufio.NewScanner(resp.Body)
		event   string
		data    strings.Builder
	)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if event == blockHeaderEvent && data.Len() > 0 {
				var update BlockUpdate
				if err := json.Unmarshal([]byte(data.String()), &update); err != nil {
					c.log.Error("Undecodable block update", "err", err)
				} else {
					select {
					case ch <- update:
					case <-ctx.Done():
						return ctx.Err()
					}
				}
			}
			event = ""
			data.Reset()
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return nil
}

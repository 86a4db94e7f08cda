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

package dispatch

import (
	"sync"

	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"
)

// subBuffer is the channel depth of the internal feed taps backing filtered
// subscriptions.
const subBuffer = 128

// Bus is the in-process publication fan-out. Publication order to any
// subscriber is the order in which source transactions commit their batches.
type Bus struct {
	feed event.FeedOf[DispatchInfo]
	log  log.Logger

	mu   sync.RWMutex
	tips map[uint32]uint64 // highest published height per chain
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		log:  log.New("area", "dispatch"),
		tips: make(map[uint32]uint64),
	}
}

// Tip returns the highest height published for a chain so far.
func (b *Bus) Tip(chainID uint32) uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.tips[chainID]
}

func (b *Bus) publish(di DispatchInfo) {
	b.mu.Lock()
	if di.Height > b.tips[di.ChainID] {
		b.tips[di.ChainID] = di.Height
	}
	b.mu.Unlock()
	sent := b.feed.Send(di)
	b.log.Trace("Published block", "hash", di.Hash, "chain", di.ChainID, "height", di.Height, "subscribers", sent)
}

// Batch buffers dispatches alongside one database transaction. Append is
// non-blocking and unbounded; nothing reaches subscribers before Publish.
type Batch struct {
	bus   *Bus
	items []DispatchInfo
}

// NewBatch opens a buffer tied to the caller's transaction lifecycle.
func (b *Bus) NewBatch() *Batch {
	return &Batch{bus: b}
}

// Append buffers one dispatch record.
func (t *Batch) Append(di DispatchInfo) {
	t.items = append(t.items, di)
}

// Len reports the number of buffered records.
func (t *Batch) Len() int { return len(t.items) }

// Publish releases the buffered records to all subscribers, in append
// order. Call after the owning transaction committed.
func (t *Batch) Publish() {
	for _, di := range t.items {
		t.bus.publish(di)
	}
	t.items = nil
}

// Discard drops the buffer. Call after rollback.
func (t *Batch) Discard() {
	t.items = nil
}

// SubscribeNewBlocks delivers every published block.
func (b *Bus) SubscribeNewBlocks(ch chan<- DispatchInfo) event.Subscription {
	return b.feed.Subscribe(ch)
}

// SubscribeNewBlocksFromDepth delivers blocks only once the publishing
// chain has advanced depth heights past them, i.e. the block has at least
// depth confirmations.
func (b *Bus) SubscribeNewBlocksFromDepth(depth uint64, ch chan<- DispatchInfo) event.Subscription {
	inner := make(chan DispatchInfo, subBuffer)
	sub := b.feed.Subscribe(inner)
	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer sub.Unsubscribe()
		var pending []DispatchInfo
		for {
			select {
			case di := <-inner:
				pending = append(pending, di)
				rest := pending[:0]
				for _, p := range pending {
					if b.Tip(p.ChainID) >= p.Height+depth {
						select {
						case ch <- p:
						case <-quit:
							return nil
						}
						continue
					}
					rest = append(rest, p)
				}
				pending = rest
			case err := <-sub.Err():
				return err
			case <-quit:
				return nil
			}
		}
	})
}

// SubscribeEvents delivers blocks that emitted an event of the qualified
// kind (module.name).
func (b *Bus) SubscribeEvents(qualified string, ch chan<- DispatchInfo) event.Subscription {
	return b.subscribeFiltered(ch, func(di *DispatchInfo) bool { return di.HasEvent(qualified) })
}

// SubscribeTransaction delivers the block containing the given request key.
func (b *Bus) SubscribeTransaction(requestKey string, ch chan<- DispatchInfo) event.Subscription {
	return b.subscribeFiltered(ch, func(di *DispatchInfo) bool { return di.HasRequestKey(requestKey) })
}

func (b *Bus) subscribeFiltered(ch chan<- DispatchInfo, match func(*DispatchInfo) bool) event.Subscription {
	inner := make(chan DispatchInfo, subBuffer)
	sub := b.feed.Subscribe(inner)
	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer sub.Unsubscribe()
		for {
			select {
			case di := <-inner:
				if !match(&di) {
					continue
				}
				select {
				case ch <- di:
				case <-quit:
					return nil
				}
			case err := <-sub.Err():
				return err
			case <-quit:
				return nil
			}
		}
	})
}

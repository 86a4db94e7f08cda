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

// Package chainweb speaks the Chainweb node wire formats: the service HTTP
// API, the block-update event stream and the JSON envelopes both carry.
package chainweb

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
)

// Header is a Chainweb block header in its JSON object encoding.
//
// CreationTime and EpochStart arrive as decimal strings or numbers depending
// on the producer; both are preserved verbatim until a consumer parses them.
type Header struct {
	Hash         string            `json:"hash"`
	ChainID      uint32            `json:"chainId"`
	Height       uint64            `json:"height"`
	Parent       string            `json:"parent"`
	CreationTime json.Number       `json:"creationTime"`
	EpochStart   json.Number       `json:"epochStart"`
	FeatureFlags uint64            `json:"featureFlags"`
	Weight       string            `json:"weight"`
	Target       string            `json:"target"`
	Nonce        string            `json:"nonce"`
	PayloadHash  string            `json:"payloadHash"`
	Adjacents    map[string]string `json:"adjacents"`
	Version      string            `json:"chainwebVersion"`
}

// CreationSeconds parses the preserved creation time string into int64
// seconds. See the encoding rules: times travel as strings and are only
// interpreted at the persistence boundary.
func (h *Header) CreationSeconds() (int64, error) {
	return parseSeconds(h.CreationTime)
}

// EpochSeconds parses the preserved epoch start string into int64 seconds.
func (h *Header) EpochSeconds() (int64, error) {
	return parseSeconds(h.EpochStart)
}

func parseSeconds(n json.Number) (int64, error) {
	if n == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(n.String(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: %w", n.String(), err)
	}
	return v, nil
}

// FlagsToSigned reinterprets the unsigned 64-bit feature flag word as a
// signed value via two's-complement wrap. The relational store only has a
// signed 64-bit column; FlagsToUnsigned is the inverse.
func FlagsToSigned(u uint64) int64 { return int64(u) }

// FlagsToUnsigned is the inverse of FlagsToSigned.
func FlagsToUnsigned(i int64) uint64 { return uint64(i) }

// Base64JSON is a JSON string field holding standard padded base64 whose
// decoded bytes are themselves UTF-8 JSON. Unmarshalling yields the inner
// bytes; marshalling re-encodes them, so a decode/encode round-trip
// preserves the wire form.
type Base64JSON []byte

func (b *Base64JSON) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid base64 payload field: %w", err)
	}
	*b = raw
	return nil
}

func (b Base64JSON) MarshalJSON() ([]byte, error) {
	return json.Marshal(base64.StdEncoding.EncodeToString(b))
}

// PayloadWithOutputs is the payload body served by the node, with the
// execution outputs merged in. Transactions come as [command, output] pairs;
// all four embedded fields are base64-wrapped JSON.
type PayloadWithOutputs struct {
	Transactions     [][2]Base64JSON `json:"transactions"`
	MinerData        Base64JSON      `json:"minerData"`
	Coinbase         Base64JSON      `json:"coinbase"`
	TransactionsHash string          `json:"transactionsHash"`
	OutputsHash      string          `json:"outputsHash"`
	PayloadHash      string          `json:"payloadHash"`
}

// BlockUpdate is one header/payload pair, as delivered by the block-update
// stream and as reconstructed by the archive and gap-fill paths.
type BlockUpdate struct {
	Header             Header             `json:"header"`
	PayloadWithOutputs PayloadWithOutputs `json:"payloadWithOutputs"`
}

// Cut is a consistent snapshot of the per-chain frontier.
type Cut struct {
	Hashes map[string]CutHash `json:"hashes"`
	Origin json.RawMessage    `json:"origin,omitempty"`
	Weight string             `json:"weight,omitempty"`
	ID     string             `json:"id,omitempty"`
}

// CutHash is one chain's tip within a cut.
type CutHash struct {
	Hash   string `json:"hash"`
	Height uint64 `json:"height"`
}

// TipHeight returns the tip height recorded for a chain, and whether the cut
// knows the chain at all.
func (c *Cut) TipHeight(chainID uint32) (uint64, bool) {
	h, ok := c.Hashes[strconv.FormatUint(uint64(chainID), 10)]
	if !ok {
		return 0, false
	}
	return h.Height, true
}

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
	"time"

	"github.com/shopspring/decimal"
)

// Cursor sources recorded in sync_statuses.
const (
	SourceArchive   = "ARCHIVE"
	SourceAPI       = "API"
	SourceBackfill  = "BACKFILL"
	SourceStreaming = "STREAMING"
)

// Transfer classification.
const (
	TransferFungible    = "fungible"
	TransferNonFungible = "non-fungible"
)

// Block is one persisted header with its decoded payload attributes. Blocks
// are immutable after insert; forks mean (chainid, height) is not unique,
// only hash is.
type Block struct {
	ID                int64
	Network           string
	ChainID           uint32
	Height            uint64
	Hash              string
	Parent            string
	CreationTime      int64
	EpochStart        int64
	FeatureFlags      int64 // two's-complement image of the unsigned wire value
	Weight            string
	Target            string
	Nonce             string
	PayloadHash       string
	Adjacents         []byte
	MinerData         []byte
	TransactionsHash  string
	OutputsHash       string
	Coinbase          []byte
	TransactionsCount int
	Canonical         bool
}

// Transaction belongs to one block. Canonical tracks whether the containing
// block currently lies on the heaviest branch.
type Transaction struct {
	ID           int64
	BlockID      int64
	RequestKey   string
	Hash         string
	Sender       string
	ChainID      uint32
	CreationTime int64
	Result       []byte
	Logs         *string
	NumEvents    int
	TxID         *int64
	Canonical    bool
}

// Event belongs to one transaction, ordered by OrderIndex. Block hash and
// height are denormalised for subscription filtering.
type Event struct {
	ID            int64
	TransactionID int64
	RequestKey    string
	ChainID       uint32
	OrderIndex    int
	Module        string
	Name          string
	QualName      string
	Params        []byte
	BlockHash     string
	Height        uint64
}

// Transfer is a derived row per observed TRANSFER event.
type Transfer struct {
	ID            int64
	TransactionID int64
	ContractID    *int64
	Amount        decimal.Decimal
	FromAcct      string
	ToAcct        string
	ChainID       uint32
	ModuleHash    string
	ModuleName    string
	RequestKey    string
	PayloadHash   string
	Type          string
	HasTokenID    bool
	TokenID       *string
	Network       string
	Canonical     bool
}

// Signer is one signing key of a transaction.
type Signer struct {
	ID            int64
	TransactionID int64
	PubKey        string
	Address       *string
	OrderIndex    *int
	CList         []byte
}

// Balance is the running ledger per (account, chain, module, token).
type Balance struct {
	ID      int64
	Account string
	ChainID uint32
	Module  string
	TokenID string // empty for plain fungible balances
	Balance decimal.Decimal
}

// GuardRow is one reconciled account guard snapshot.
type GuardRow struct {
	Account   string
	ChainID   uint32
	Module    string
	Keys      []string
	Predicate string
}

// Contract is a token module observed on some chain.
type Contract struct {
	ID         int64
	Network    string
	ModuleName string
	ChainID    uint32
	Symbol     *string
	Decimals   *int
	Type       string
}

// SyncStatus is one progress cursor per (network, chain, prefix, source).
// Archive cursors use Key; height-ranged sources use FromHeight/ToHeight.
type SyncStatus struct {
	ID         int64
	Network    string
	ChainID    uint32
	Prefix     string
	Source     string
	Key        *string
	FromHeight *uint64
	ToHeight   *uint64
}

// SyncError records a range whose fetch exhausted its retries.
type SyncError struct {
	ID         int64
	Network    string
	ChainID    uint32
	FromHeight uint64
	ToHeight   uint64
	Source     string
	CreatedAt  time.Time
}

// StreamingError records a streamed block that failed persistence.
type StreamingError struct {
	ID      int64
	Hash    string
	ChainID uint32
	Height  uint64
	Message string
}

// HeightRange is a contiguous missing-height interval, inclusive.
type HeightRange struct {
	From uint64
	To   uint64
}

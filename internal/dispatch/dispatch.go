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

// Package dispatch fans materialised-block notifications out to
// subscription channels. Batches buffer against a database transaction:
// they reach subscribers on commit and evaporate on rollback.
package dispatch

import "slices"

// DispatchInfo is the minimal record published per materialised block.
type DispatchInfo struct {
	Hash                string   `json:"hash"`
	ChainID             uint32   `json:"chainId"`
	Height              uint64   `json:"height"`
	RequestKeys         []string `json:"requestKeys"`
	QualifiedEventNames []string `json:"qualifiedEventNames"`
}

// HasEvent reports whether the block emitted an event of the qualified kind.
func (d *DispatchInfo) HasEvent(qualified string) bool {
	return slices.Contains(d.QualifiedEventNames, qualified)
}

// HasRequestKey reports whether the block contains the request key.
func (d *DispatchInfo) HasRequestKey(key string) bool {
	return slices.Contains(d.RequestKeys, key)
}

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

	"github.com/0xneves/indexer-kadena/internal/chainweb"
	"github.com/0xneves/indexer-kadena/internal/storage"
)

// transferEvent is the Pact event name producing transfer rows.
const transferEvent = "TRANSFER"

// nftModules classifies known non-fungible token ledgers.
var nftModules = map[string]bool{
	"marmalade.ledger":    true,
	"marmalade-v2.ledger": true,
}

// deriveTransfer turns one TRANSFER event into a transfer row and the two
// balance mutations it implies. Non-TRANSFER events and malformed argument
// lists are ignored; schema oddities on this path must not sink the block.
func (m *Materializer) deriveTransfer(ctx context.Context, q storage.Querier, txID int64, header *chainweb.Header, out *chainweb.TxOutput, ev *chainweb.PactEvent) error {
	if ev.Name != transferEvent || len(ev.Params) < 3 {
		return nil
	}
	from, okFrom := chainweb.DecodeString(ev.Params[0])
	to, okTo := chainweb.DecodeString(ev.Params[1])
	if !okFrom || !okTo {
		return nil
	}
	amount, err := chainweb.DecodeAmount(ev.Params[2])
	if err != nil || amount.IsNegative() {
		m.log.Debug("Skipping malformed transfer amount", "requestKey", out.ReqKey, "err", err)
		return nil
	}

	module := ev.Module.String()
	transferType := storage.TransferFungible
	if nftModules[module] {
		transferType = storage.TransferNonFungible
	}

	// Token-transfer variant carries the token id as a fourth argument.
	var tokenID *string
	balanceToken := ""
	if len(ev.Params) >= 4 {
		if tok, ok := chainweb.DecodeString(ev.Params[3]); ok {
			tokenID = &tok
			balanceToken = tok
			transferType = storage.TransferNonFungible
		}
	}

	contractID, err := m.store.EnsureContract(ctx, q, m.network, module, header.ChainID, transferType)
	if err != nil {
		return err
	}

	if err := m.store.InsertTransfer(ctx, q, &storage.Transfer{
		TransactionID: txID,
		ContractID:    &contractID,
		Amount:        amount,
		FromAcct:      from,
		ToAcct:        to,
		ChainID:       header.ChainID,
		ModuleHash:    ev.ModuleHash,
		ModuleName:    module,
		RequestKey:    out.ReqKey,
		PayloadHash:   header.PayloadHash,
		Type:          transferType,
		HasTokenID:    tokenID != nil,
		TokenID:       tokenID,
		Network:       m.network,
		Canonical:     true,
	}); err != nil {
		return err
	}

	// Mint and burn events leave one side empty; only real accounts carry
	// ledger rows.
	if from != "" {
		if err := m.store.ApplyBalanceDelta(ctx, q, from, header.ChainID, module, balanceToken, amount.Neg()); err != nil {
			return err
		}
	}
	if to != "" {
		if err := m.store.ApplyBalanceDelta(ctx, q, to, header.ChainID, module, balanceToken, amount); err != nil {
			return err
		}
	}
	return nil
}

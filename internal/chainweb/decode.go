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
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// SignedTx is the outer command envelope: the request key, the signatures
// and the command itself as an escaped JSON string.
type SignedTx struct {
	Hash string `json:"hash"`
	Sigs []struct {
		Sig string `json:"sig"`
	} `json:"sigs"`
	Cmd string `json:"cmd"`
}

// Command is the decoded inner command.
type Command struct {
	NetworkID string     `json:"networkId"`
	Payload   Payload    `json:"payload"`
	Signers   []TxSigner `json:"signers"`
	Meta      TxMeta     `json:"meta"`
	Nonce     string     `json:"nonce"`
}

// TxSigner is one signing key with its capability list.
type TxSigner struct {
	PubKey  string          `json:"pubKey"`
	Scheme  string          `json:"scheme,omitempty"`
	Address string          `json:"addr,omitempty"`
	CList   json.RawMessage `json:"clist,omitempty"`
}

// TxMeta is the public command metadata.
type TxMeta struct {
	ChainID      string      `json:"chainId"`
	Sender       string      `json:"sender"`
	GasLimit     int64       `json:"gasLimit"`
	GasPrice     json.Number `json:"gasPrice"`
	TTL          json.Number `json:"ttl"`
	CreationTime json.Number `json:"creationTime"`
}

// ExecPayload is the execution variant of a command payload.
type ExecPayload struct {
	Code string          `json:"code"`
	Data json.RawMessage `json:"data"`
}

// ContPayload is the continuation variant of a command payload.
type ContPayload struct {
	PactID   string          `json:"pactId"`
	Step     int             `json:"step"`
	Rollback bool            `json:"rollback"`
	Proof    *string         `json:"proof"`
	Data     json.RawMessage `json:"data"`
}

// Payload is the tagged command payload variant. Exactly one of Exec or Cont
// is set; the variant is decided by the presence of a code field.
type Payload struct {
	Exec *ExecPayload
	Cont *ContPayload
}

func (p *Payload) UnmarshalJSON(data []byte) error {
	var tagged struct {
		Exec *ExecPayload `json:"exec"`
		Cont *ContPayload `json:"cont"`
	}
	if err := json.Unmarshal(data, &tagged); err != nil {
		return err
	}
	p.Exec, p.Cont = tagged.Exec, tagged.Cont
	if p.Exec != nil || p.Cont != nil {
		return nil
	}
	// Untagged form: the presence of code selects execution.
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	if _, ok := flat["code"]; ok {
		p.Exec = new(ExecPayload)
		return json.Unmarshal(data, p.Exec)
	}
	p.Cont = new(ContPayload)
	return json.Unmarshal(data, p.Cont)
}

func (p Payload) MarshalJSON() ([]byte, error) {
	switch {
	case p.Exec != nil:
		return json.Marshal(struct {
			Exec *ExecPayload `json:"exec"`
		}{p.Exec})
	case p.Cont != nil:
		return json.Marshal(struct {
			Cont *ContPayload `json:"cont"`
		}{p.Cont})
	}
	return []byte("null"), nil
}

// ParseCommand unwraps the escaped command string of a signed transaction.
func (tx *SignedTx) ParseCommand() (*Command, error) {
	var cmd Command
	if err := json.Unmarshal([]byte(tx.Cmd), &cmd); err != nil {
		return nil, fmt.Errorf("invalid command for %s: %w", tx.Hash, err)
	}
	return &cmd, nil
}

// TxOutput is the execution output paired with a command, or the coinbase
// output of a block.
type TxOutput struct {
	ReqKey       string          `json:"reqKey"`
	TxID         *int64          `json:"txId"`
	Result       json.RawMessage `json:"result"`
	Gas          int64           `json:"gas"`
	Logs         *string         `json:"logs"`
	Events       []PactEvent     `json:"events"`
	Continuation json.RawMessage `json:"continuation"`
	Metadata     json.RawMessage `json:"metaData"`
}

// ModuleName identifies a Pact module, optionally namespaced. The node emits
// either an object {namespace, name} or a bare string.
type ModuleName struct {
	Namespace string
	Name      string
}

func (m *ModuleName) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		m.Namespace, m.Name = "", s
		return nil
	}
	var obj struct {
		Namespace *string `json:"namespace"`
		Name      string  `json:"name"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	// Replace, never merge: a null or absent namespace clears any value a
	// previous decode into the same receiver left behind.
	m.Namespace = ""
	if obj.Namespace != nil {
		m.Namespace = *obj.Namespace
	}
	m.Name = obj.Name
	return nil
}

func (m ModuleName) MarshalJSON() ([]byte, error) {
	if m.Namespace == "" {
		return json.Marshal(m.Name)
	}
	ns := m.Namespace
	return json.Marshal(struct {
		Namespace *string `json:"namespace"`
		Name      string  `json:"name"`
	}{&ns, m.Name})
}

// String renders the dotted module form used in qualified event names.
func (m ModuleName) String() string {
	if m.Namespace == "" {
		return m.Name
	}
	return m.Namespace + "." + m.Name
}

// PactEvent is one event emitted during command execution.
type PactEvent struct {
	Module     ModuleName        `json:"module"`
	Name       string            `json:"name"`
	Params     []json.RawMessage `json:"params"`
	ModuleHash string            `json:"moduleHash"`
}

// Qualified returns the module.name identifier of the event kind.
func (e *PactEvent) Qualified() string {
	return e.Module.String() + "." + e.Name
}

// DecodeTxPair decodes one [command, output] payload pair.
func DecodeTxPair(pair [2]Base64JSON) (*SignedTx, *TxOutput, error) {
	var tx SignedTx
	if err := json.Unmarshal(pair[0], &tx); err != nil {
		return nil, nil, fmt.Errorf("invalid transaction command: %w", err)
	}
	var out TxOutput
	if err := json.Unmarshal(pair[1], &out); err != nil {
		return nil, nil, fmt.Errorf("invalid transaction output: %w", err)
	}
	return &tx, &out, nil
}

// DecodeCoinbase decodes the coinbase output of a payload.
func DecodeCoinbase(raw Base64JSON) (*TxOutput, error) {
	var out TxOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("invalid coinbase: %w", err)
	}
	return &out, nil
}

// DecodeAmount interprets an event parameter as a decimal amount. Pact
// serialises amounts as plain numbers, {"decimal": "..."} or {"int": ...}.
func DecodeAmount(raw json.RawMessage) (decimal.Decimal, error) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return decimal.NewFromString(n.String())
	}
	var wrapped struct {
		Decimal *string     `json:"decimal"`
		Int     json.Number `json:"int"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return decimal.Zero, fmt.Errorf("not an amount: %s", raw)
	}
	if wrapped.Decimal != nil {
		return decimal.NewFromString(*wrapped.Decimal)
	}
	if wrapped.Int != "" {
		return decimal.NewFromString(wrapped.Int.String())
	}
	return decimal.Zero, fmt.Errorf("not an amount: %s", raw)
}

// DecodeString interprets an event parameter as a plain string, for account
// names and token identifiers.
func DecodeString(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// Guard is an account guard as returned by coin.details.
type Guard struct {
	Keys      []string `json:"keys"`
	Predicate string   `json:"pred"`
}

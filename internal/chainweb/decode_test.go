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
	"encoding/base64"
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBase64JSONRoundTrip(t *testing.T) {
	inner := `{"reqKey":"abc","gas":7}`
	wire, err := json.Marshal(base64.StdEncoding.EncodeToString([]byte(inner)))
	require.NoError(t, err)

	var b Base64JSON
	require.NoError(t, json.Unmarshal(wire, &b))
	require.JSONEq(t, inner, string(b))

	out, err := json.Marshal(b)
	require.NoError(t, err)
	require.Equal(t, string(wire), string(out))
}

func TestBase64JSONRejectsGarbage(t *testing.T) {
	var b Base64JSON
	require.Error(t, json.Unmarshal([]byte(`"not-base64!!"`), &b))
}

func TestFlagsRoundTrip(t *testing.T) {
	for _, u := range []uint64{0, 1, 1 << 63, math.MaxUint64} {
		require.Equal(t, u, FlagsToUnsigned(FlagsToSigned(u)))
	}
	require.Equal(t, int64(-1), FlagsToSigned(math.MaxUint64))
}

func TestHeaderTimesPreserved(t *testing.T) {
	raw := `{"hash":"h","chainId":3,"height":42,"creationTime":"1700000000","epochStart":1699999000}`
	var h Header
	require.NoError(t, json.Unmarshal([]byte(raw), &h))

	creation, err := h.CreationSeconds()
	require.NoError(t, err)
	require.Equal(t, int64(1700000000), creation)

	epoch, err := h.EpochSeconds()
	require.NoError(t, err)
	require.Equal(t, int64(1699999000), epoch)
}

func TestPayloadVariants(t *testing.T) {
	var p Payload
	require.NoError(t, json.Unmarshal([]byte(`{"exec":{"code":"(+ 1 2)","data":{}}}`), &p))
	require.NotNil(t, p.Exec)
	require.Nil(t, p.Cont)
	require.Equal(t, "(+ 1 2)", p.Exec.Code)

	p = Payload{}
	require.NoError(t, json.Unmarshal([]byte(`{"cont":{"pactId":"pid","step":1,"rollback":false}}`), &p))
	require.Nil(t, p.Exec)
	require.NotNil(t, p.Cont)
	require.Equal(t, "pid", p.Cont.PactID)

	// Untagged forms: a code field selects execution.
	p = Payload{}
	require.NoError(t, json.Unmarshal([]byte(`{"code":"(coin.transfer)","data":null}`), &p))
	require.NotNil(t, p.Exec)

	p = Payload{}
	require.NoError(t, json.Unmarshal([]byte(`{"pactId":"pid2","step":0,"rollback":true}`), &p))
	require.NotNil(t, p.Cont)
	require.True(t, p.Cont.Rollback)
}

func TestModuleName(t *testing.T) {
	var m ModuleName
	require.NoError(t, json.Unmarshal([]byte(`"coin"`), &m))
	require.Equal(t, "coin", m.String())

	require.NoError(t, json.Unmarshal([]byte(`{"namespace":"free","name":"token"}`), &m))
	require.Equal(t, "free.token", m.String())

	require.NoError(t, json.Unmarshal([]byte(`{"namespace":null,"name":"coin"}`), &m))
	require.Equal(t, "coin", m.String())
}

func TestEventQualified(t *testing.T) {
	ev := PactEvent{Module: ModuleName{Namespace: "free", Name: "token"}, Name: "TRANSFER"}
	require.Equal(t, "free.token.TRANSFER", ev.Qualified())

	ev = PactEvent{Module: ModuleName{Name: "coin"}, Name: "TRANSFER"}
	require.Equal(t, "coin.TRANSFER", ev.Qualified())
}

func TestParseCommand(t *testing.T) {
	inner := `{"networkId":"testnet04","payload":{"exec":{"code":"(+ 1 2)","data":{}}},"signers":[{"pubKey":"k1"}],"meta":{"chainId":"0","sender":"alice","gasLimit":1000,"gasPrice":1e-7,"ttl":600,"creationTime":1700000000},"nonce":"n"}`
	tx := SignedTx{Hash: "h1", Cmd: inner}

	cmd, err := tx.ParseCommand()
	require.NoError(t, err)
	require.Equal(t, "testnet04", cmd.NetworkID)
	require.Equal(t, "alice", cmd.Meta.Sender)
	require.Len(t, cmd.Signers, 1)
	require.NotNil(t, cmd.Payload.Exec)

	tx.Cmd = "{broken"
	_, err = tx.ParseCommand()
	require.Error(t, err)
}

func TestDecodeTxPair(t *testing.T) {
	pair := [2]Base64JSON{
		Base64JSON(`{"hash":"h1","sigs":[{"sig":"s"}],"cmd":"{}"}`),
		Base64JSON(`{"reqKey":"rk1","txId":9,"result":{"status":"success"},"gas":5}`),
	}
	tx, out, err := DecodeTxPair(pair)
	require.NoError(t, err)
	require.Equal(t, "h1", tx.Hash)
	require.Equal(t, "rk1", out.ReqKey)
	require.Equal(t, int64(9), *out.TxID)
}

func TestDecodeAmount(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{`3.5`, "3.5"},
		{`12`, "12"},
		{`{"decimal":"10.000000000001"}`, "10.000000000001"},
		{`{"int":7}`, "7"},
	}
	for _, c := range cases {
		got, err := DecodeAmount(json.RawMessage(c.raw))
		require.NoError(t, err, c.raw)
		require.Equal(t, c.want, got.String(), c.raw)
	}

	_, err := DecodeAmount(json.RawMessage(`{"guard":{}}`))
	require.Error(t, err)
	_, err = DecodeAmount(json.RawMessage(`"not-a-number"`))
	require.Error(t, err)
}

func TestDecodeString(t *testing.T) {
	s, ok := DecodeString(json.RawMessage(`"alice"`))
	require.True(t, ok)
	require.Equal(t, "alice", s)

	_, ok = DecodeString(json.RawMessage(`{"keys":[]}`))
	require.False(t, ok)
}

func TestCutTipHeight(t *testing.T) {
	var cut Cut
	require.NoError(t, json.Unmarshal([]byte(`{"hashes":{"0":{"hash":"a","height":100},"5":{"hash":"b","height":95}}}`), &cut))

	h, ok := cut.TipHeight(0)
	require.True(t, ok)
	require.Equal(t, uint64(100), h)

	h, ok = cut.TipHeight(5)
	require.True(t, ok)
	require.Equal(t, uint64(95), h)

	_, ok = cut.TipHeight(7)
	require.False(t, ok)
}

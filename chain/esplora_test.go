package chain

import (
	"context"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

// opReturnScript builds an OP_RETURN script pushing the given payload.
func opReturnScript(t *testing.T, payload string) string {
	t.Helper()

	require.Less(t, len(payload), 76)

	script := append(
		[]byte{0x6a, byte(len(payload))}, []byte(payload)...,
	)

	return hex.EncodeToString(script)
}

// TestEsploraListUnspent asserts utxo responses map onto the Utxo type.
func TestEsploraListUnspent(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/address/tb1qissuer/utxo",
				r.URL.Path)

			_, _ = w.Write([]byte(`[
				{"txid": "aa11", "vout": 1, "value": 10000,
				 "status": {"confirmed": true}},
				{"txid": "bb22", "vout": 0, "value": 2500,
				 "status": {"confirmed": false}}
			]`))
		},
	))
	defer server.Close()

	client := NewEsploraClient(EsploraConfig{BaseURL: server.URL})

	utxos, err := client.ListUnspent(context.Background(), "tb1qissuer")
	require.NoError(t, err)
	require.Len(t, utxos, 2)
	require.Equal(t, Utxo{
		TxID:      "aa11",
		Vout:      1,
		Value:     10000,
		Confirmed: true,
	}, utxos[0])
	require.False(t, utxos[1].Confirmed)
}

// TestEsploraTransactionDetail asserts detail fetches resolve output
// scripts, derive confirmation counts from the tip height, and expose the
// data-carrier payload.
func TestEsploraTransactionDetail(t *testing.T) {
	t.Parallel()

	carrier := opReturnScript(t, "bafyCID1")

	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/tx/aa11":
				_, _ = w.Write([]byte(`{
					"txid": "aa11",
					"fee": 1000,
					"vin": [{"prevout": {
						"scriptpubkey_address": "tb1qissuer",
						"value": 10000}}],
					"vout": [
						{"scriptpubkey": "` + carrier + `",
						 "value": 0},
						{"scriptpubkey": "0014000000000000000000000000000000000000dead",
						 "scriptpubkey_address": "tb1qcontractor",
						 "value": 50000}
					],
					"status": {"confirmed": true,
						"block_height": 98,
						"block_time": 1700000000}
				}`))

			case "/blocks/tip/height":
				_, _ = w.Write([]byte("100"))

			default:
				t.Errorf("unexpected path %s", r.URL.Path)
			}
		},
	))
	defer server.Close()

	client := NewEsploraClient(EsploraConfig{BaseURL: server.URL})

	detail, err := client.TransactionDetail(context.Background(), "aa11")
	require.NoError(t, err)

	require.Equal(t, "aa11", detail.TxID)
	require.Equal(t, btcutil.Amount(1000), detail.Fee)
	require.True(t, detail.Status.Confirmed)
	require.Equal(t, uint32(3), detail.Status.Confirmations)
	require.Equal(t, int64(1700000000), detail.Status.BlockTime.Unix())

	payload, ok := detail.DataCarrierPayload()
	require.True(t, ok)
	require.Equal(t, []byte("bafyCID1"), payload)

	require.Equal(t, btcutil.Amount(50000),
		detail.PaidTo("tb1qcontractor"))
	require.Zero(t, detail.PaidTo("tb1qother"))
}

// TestEsploraTxNotFound asserts a backend 404 maps to ErrTxNotFound.
func TestEsploraTxNotFound(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		},
	))
	defer server.Close()

	client := NewEsploraClient(EsploraConfig{BaseURL: server.URL})

	_, err := client.TransactionDetail(context.Background(), "dead")
	require.ErrorIs(t, err, ErrTxNotFound)
}

// TestEsploraBroadcast asserts a successful broadcast returns the backend
// assigned txid and a rejection surfaces as BroadcastError.
func TestEsploraBroadcast(t *testing.T) {
	t.Parallel()

	reject := false
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "/tx", r.URL.Path)

			if reject {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte("bad-txns-inputs-missingorspent"))
				return
			}

			_, _ = w.Write([]byte("feed0123\n"))
		},
	))
	defer server.Close()

	client := NewEsploraClient(EsploraConfig{BaseURL: server.URL})

	txid, err := client.Broadcast(context.Background(), wire.NewMsgTx(2))
	require.NoError(t, err)
	require.Equal(t, "feed0123", txid)

	reject = true
	_, err = client.Broadcast(context.Background(), wire.NewMsgTx(2))

	var bErr *BroadcastError
	require.True(t, errors.As(err, &bErr))
	require.Equal(t, "bad-txns-inputs-missingorspent", bErr.Reason)
}

package chain

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
)

const (
	// defaultRequestTimeout caps a single REST round trip.
	defaultRequestTimeout = 30 * time.Second

	// maxErrorBody bounds how much of a rejection body is surfaced in
	// a BroadcastError.
	maxErrorBody = 1024
)

// EsploraConfig parameterizes an EsploraClient.
type EsploraConfig struct {
	// BaseURL is the REST endpoint root, e.g.
	// "https://mempool.space/testnet/api".
	BaseURL string

	// HTTPClient optionally overrides the HTTP client used for all
	// requests. Nil selects a client with a sane default timeout.
	HTTPClient *http.Client
}

// EsploraClient talks to a mempool.space / blockstream.info style REST
// backend. It is safe for concurrent use.
type EsploraClient struct {
	baseURL string
	client  *http.Client
}

// A compile-time assertion to ensure EsploraClient implements Client.
var _ Client = (*EsploraClient)(nil)

// NewEsploraClient constructs a client against the given REST endpoint.
func NewEsploraClient(cfg EsploraConfig) *EsploraClient {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultRequestTimeout}
	}

	return &EsploraClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  client,
	}
}

// esploraStatus mirrors the "status" object attached to transactions and
// utxos.
type esploraStatus struct {
	Confirmed   bool   `json:"confirmed"`
	BlockHeight uint32 `json:"block_height"`
	BlockTime   int64  `json:"block_time"`
}

// esploraUtxo mirrors /address/{addr}/utxo entries.
type esploraUtxo struct {
	TxID   string        `json:"txid"`
	Vout   uint32        `json:"vout"`
	Value  int64         `json:"value"`
	Status esploraStatus `json:"status"`
}

// esploraVout mirrors transaction output objects.
type esploraVout struct {
	ScriptPubKey string `json:"scriptpubkey"`
	Address      string `json:"scriptpubkey_address"`
	Value        int64  `json:"value"`
}

// esploraVin mirrors transaction input objects; only the resolved prevout
// matters here.
type esploraVin struct {
	Prevout *esploraVout `json:"prevout"`
}

// esploraTx mirrors /tx/{txid} and /address/{addr}/txs entries.
type esploraTx struct {
	TxID   string        `json:"txid"`
	Fee    int64         `json:"fee"`
	Vin    []esploraVin  `json:"vin"`
	Vout   []esploraVout `json:"vout"`
	Status esploraStatus `json:"status"`
}

// ListUnspent returns the spendable outputs of an address.
//
// NOTE: This method is part of the Client interface.
func (c *EsploraClient) ListUnspent(ctx context.Context,
	address string) ([]Utxo, error) {

	var raw []esploraUtxo
	err := c.getJSON(ctx, "/address/"+address+"/utxo", &raw)
	if err != nil {
		return nil, err
	}

	utxos := make([]Utxo, 0, len(raw))
	for _, u := range raw {
		utxos = append(utxos, Utxo{
			TxID:      u.TxID,
			Vout:      u.Vout,
			Value:     btcutil.Amount(u.Value),
			Confirmed: u.Status.Confirmed,
		})
	}

	return utxos, nil
}

// AddressTxIDs returns the ids of all transactions touching an address.
//
// NOTE: This method is part of the Client interface.
func (c *EsploraClient) AddressTxIDs(ctx context.Context,
	address string) ([]string, error) {

	var raw []esploraTx
	err := c.getJSON(ctx, "/address/"+address+"/txs", &raw)
	if err != nil {
		return nil, err
	}

	txids := make([]string, 0, len(raw))
	for _, tx := range raw {
		txids = append(txids, tx.TxID)
	}

	return txids, nil
}

// TransactionDetail fetches the full view of a transaction.
//
// NOTE: This method is part of the Client interface.
func (c *EsploraClient) TransactionDetail(ctx context.Context,
	txid string) (*TxDetail, error) {

	var raw esploraTx
	if err := c.getJSON(ctx, "/tx/"+txid, &raw); err != nil {
		return nil, err
	}

	detail := &TxDetail{
		TxID: raw.TxID,
		Fee:  btcutil.Amount(raw.Fee),
		Status: TxStatus{
			Confirmed: raw.Status.Confirmed,
		},
	}
	if raw.Status.Confirmed {
		detail.Status.BlockTime = time.Unix(raw.Status.BlockTime, 0)

		// Esplora reports the including block's height, not a
		// confirmation count, so derive the count from the current
		// tip.
		tip, err := c.tipHeight(ctx)
		if err != nil {
			return nil, err
		}
		if tip >= raw.Status.BlockHeight {
			detail.Status.Confirmations =
				tip - raw.Status.BlockHeight + 1
		}
	}

	for _, vin := range raw.Vin {
		if vin.Prevout == nil {
			continue
		}
		detail.Inputs = append(detail.Inputs, TxInput{
			Address: vin.Prevout.Address,
			Value:   btcutil.Amount(vin.Prevout.Value),
		})
	}

	for _, vout := range raw.Vout {
		pkScript, err := hex.DecodeString(vout.ScriptPubKey)
		if err != nil {
			return nil, fmt.Errorf("tx %s: invalid output "+
				"script: %w", txid, err)
		}
		detail.Outputs = append(detail.Outputs, TxOutput{
			Value:    btcutil.Amount(vout.Value),
			PkScript: pkScript,
			Address:  vout.Address,
		})
	}

	return detail, nil
}

// Broadcast submits a signed transaction as raw hex.
//
// NOTE: This method is part of the Client interface.
func (c *EsploraClient) Broadcast(ctx context.Context,
	tx *wire.MsgTx) (string, error) {

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return "", fmt.Errorf("serialize tx: %w", err)
	}
	txHex := hex.EncodeToString(buf.Bytes())

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.baseURL+"/tx",
		strings.NewReader(txHex),
	)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		return "", &BroadcastError{
			Reason: strings.TrimSpace(string(body)),
		}
	}

	txid := strings.TrimSpace(string(body))
	log.Debugf("Broadcast tx %s (%d bytes)", txid, buf.Len())

	return txid, nil
}

// tipHeight fetches the current best block height.
func (c *EsploraClient) tipHeight(ctx context.Context) (uint32, error) {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, c.baseURL+"/blocks/tip/height", nil,
	)
	if err != nil {
		return 0, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("tip height: unexpected status %d",
			resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32))
	if err != nil {
		return 0, err
	}

	height, err := strconv.ParseUint(
		strings.TrimSpace(string(body)), 10, 32,
	)
	if err != nil {
		return 0, fmt.Errorf("tip height: %w", err)
	}

	return uint32(height), nil
}

// getJSON performs a GET against path and decodes the JSON response into
// target. A 404 maps to ErrTxNotFound.
func (c *EsploraClient) getJSON(ctx context.Context, path string,
	target interface{}) error {

	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, c.baseURL+path, nil,
	)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:

	case http.StatusNotFound:
		return ErrTxNotFound

	default:
		return fmt.Errorf("GET %s: unexpected status %d", path,
			resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(target)
}

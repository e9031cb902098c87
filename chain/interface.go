// Package chain defines the read/write interface the audit-trail engine
// needs from a blockchain backend: address-indexed transaction lookup,
// per-transaction detail, unspent output listing, and raw transaction
// broadcast. An Esplora style REST backend is provided; everything else in
// the engine depends only on the Client interface.
package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

var (
	// ErrTxNotFound is returned when a transaction id is unknown to the
	// backend.
	ErrTxNotFound = errors.New("transaction not found")
)

// BroadcastError wraps a backend rejection of a submitted transaction. The
// engine never retries a rejected broadcast; the caller decides whether to
// rebuild with different inputs or fee.
type BroadcastError struct {
	// Reason is the backend's rejection message.
	Reason string
}

// Error returns a human readable description of the rejection.
func (e *BroadcastError) Error() string {
	return fmt.Sprintf("broadcast rejected: %s", e.Reason)
}

// Utxo describes a spendable output owned by an address.
type Utxo struct {
	// TxID is the funding transaction id.
	TxID string

	// Vout is the output index within the funding transaction.
	Vout uint32

	// Value is the output value in satoshis.
	Value btcutil.Amount

	// Confirmed reports whether the funding transaction is confirmed.
	Confirmed bool
}

// TxStatus is the confirmation state of a transaction as reported by the
// backend.
type TxStatus struct {
	// Confirmed reports whether the transaction is included in a block.
	Confirmed bool

	// Confirmations is the depth of the including block, zero while
	// the transaction sits in the mempool.
	Confirmations uint32

	// BlockTime is the timestamp of the including block, zero while
	// unconfirmed.
	BlockTime time.Time
}

// TxInput is a spent outpoint within a transaction, resolved to the
// address and value of the output it consumes.
type TxInput struct {
	// Address is the address of the spent output, empty when the
	// script is non standard.
	Address string

	// Value is the spent output value in satoshis.
	Value btcutil.Amount
}

// TxOutput is a single output of a fetched transaction.
type TxOutput struct {
	// Value is the output value in satoshis.
	Value btcutil.Amount

	// PkScript is the raw output script.
	PkScript []byte

	// Address is the decoded destination, empty for data-carrier and
	// non standard scripts.
	Address string
}

// DataPayload returns the bytes pushed by a data-carrier (OP_RETURN)
// output, or false when the output carries no data.
func (o *TxOutput) DataPayload() ([]byte, bool) {
	if txscript.GetScriptClass(o.PkScript) != txscript.NullDataTy {
		return nil, false
	}

	pushes, err := txscript.PushedData(o.PkScript)
	if err != nil || len(pushes) == 0 {
		return nil, false
	}

	return pushes[0], true
}

// TxDetail is the full view of a transaction needed to classify it.
type TxDetail struct {
	// TxID is the transaction id.
	TxID string

	// Inputs are the resolved spent outpoints.
	Inputs []TxInput

	// Outputs are the transaction outputs in wire order.
	Outputs []TxOutput

	// Fee is the miner fee in satoshis.
	Fee btcutil.Amount

	// Status is the confirmation state at fetch time.
	Status TxStatus
}

// DataCarrierPayload returns the payload of the transaction's first
// data-carrier output, or false when the transaction carries none.
func (d *TxDetail) DataCarrierPayload() ([]byte, bool) {
	for i := range d.Outputs {
		if payload, ok := d.Outputs[i].DataPayload(); ok {
			return payload, true
		}
	}

	return nil, false
}

// PaidTo sums the value of all outputs paying the given address.
func (d *TxDetail) PaidTo(address string) btcutil.Amount {
	var total btcutil.Amount
	for i := range d.Outputs {
		if d.Outputs[i].Address == address {
			total += d.Outputs[i].Value
		}
	}

	return total
}

// Client is the blockchain backend the engine talks to. Implementations
// must be safe for concurrent use; the history reconstructor issues its
// queries in parallel.
type Client interface {
	// ListUnspent returns the spendable outputs of an address.
	ListUnspent(ctx context.Context, address string) ([]Utxo, error)

	// AddressTxIDs returns the ids of all transactions touching an
	// address, confirmed or not.
	AddressTxIDs(ctx context.Context, address string) ([]string, error)

	// TransactionDetail fetches the full view of a transaction. It
	// returns ErrTxNotFound for unknown ids.
	TransactionDetail(ctx context.Context, txid string) (*TxDetail,
		error)

	// Broadcast submits a signed transaction to the network and
	// returns the assigned transaction id. Rejections surface as
	// *BroadcastError.
	Broadcast(ctx context.Context, tx *wire.MsgTx) (string, error)
}

// Package txbuilder assembles, signs and broadcasts the anchor
// transactions that carry audit records. Each transaction spends exactly
// one of the issuer's unspent outputs and creates, in fixed order, a
// zero-value data-carrier output holding the encoded record, an optional
// payment output to the project's counterparty, and a change output back
// to the issuer.
package txbuilder

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/ram0verflow/ironledger/chain"
	"github.com/ram0verflow/ironledger/chainfee"
	"github.com/ram0verflow/ironledger/record"
)

var (
	// ErrNoSpendableOutputs is returned when the issuer's address owns
	// no unspent outputs at all.
	ErrNoSpendableOutputs = errors.New("no spendable outputs")

	// ErrInsufficientFunds is returned when no single unspent output
	// covers the payment plus the fee. The builder never combines
	// inputs.
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Payment instructs Publish to attach a value transfer to the anchor
// transaction.
type Payment struct {
	// Address is the counterparty destination.
	Address string

	// Amount is the transfer value in satoshis.
	Amount btcutil.Amount
}

// Config bundles the collaborators a Builder needs.
type Config struct {
	// Chain provides unspent output listing and broadcast.
	Chain chain.Client

	// Estimator prices the transaction. Use chainfee.StaticEstimator
	// to reproduce a fixed per-transaction fee.
	Estimator chainfee.Estimator
}

// Builder publishes audit records to the chain.
type Builder struct {
	cfg Config
}

// New validates the configuration and returns a Builder.
func New(cfg Config) (*Builder, error) {
	if cfg.Chain == nil {
		return nil, fmt.Errorf("txbuilder: nil chain client")
	}
	if cfg.Estimator == nil {
		return nil, fmt.Errorf("txbuilder: nil fee estimator")
	}

	return &Builder{cfg: cfg}, nil
}

// Publish embeds rec in a new transaction, optionally paying pay, and
// broadcasts it. It returns the chain-assigned transaction id. Funding and
// broadcast failures are fatal to the attempt; the builder never retries
// on its own.
func (b *Builder) Publish(ctx context.Context, rec *record.Record,
	signer *SigningContext, pay *Payment) (string, error) {

	payload, err := rec.Encode()
	if err != nil {
		return "", err
	}

	pkScript, err := signer.PkScript()
	if err != nil {
		return "", err
	}
	addr, err := signer.Address()
	if err != nil {
		return "", err
	}

	utxos, err := b.cfg.Chain.ListUnspent(ctx, addr.EncodeAddress())
	if err != nil {
		return "", fmt.Errorf("list unspent: %w", err)
	}
	if len(utxos) == 0 {
		return "", ErrNoSpendableOutputs
	}

	// Data carrier plus change, plus the optional payment output.
	numOutputs := 2
	var payAmount btcutil.Amount
	if pay != nil {
		numOutputs++
		payAmount = pay.Amount
	}

	fee, err := b.cfg.Estimator.EstimateFee(1, numOutputs)
	if err != nil {
		return "", fmt.Errorf("estimate fee: %w", err)
	}

	utxo, err := selectInput(utxos, payAmount+fee)
	if err != nil {
		return "", err
	}

	tx, err := b.assemble(payload, utxo, pkScript, pay, fee, signer)
	if err != nil {
		return "", err
	}

	txid, err := b.cfg.Chain.Broadcast(ctx, tx)
	if err != nil {
		return "", err
	}

	log.Infof("Published %v record in tx %s (fee %v, payment %v)",
		rec.Kind, txid, fee, payAmount)

	return txid, nil
}

// selectInput picks the single input to spend: largest value first, first
// output whose value strictly exceeds the required amount. Spending the
// largest output keeps the issuer's remaining funds in one piece across
// the long chains of small anchor transactions this engine produces.
func selectInput(utxos []chain.Utxo,
	required btcutil.Amount) (*chain.Utxo, error) {

	sort.Slice(utxos, func(i, j int) bool {
		return utxos[i].Value > utxos[j].Value
	})

	for i := range utxos {
		if utxos[i].Value > required {
			return &utxos[i], nil
		}
	}

	return nil, fmt.Errorf("%w: need more than %v across %d outputs",
		ErrInsufficientFunds, required, len(utxos))
}

// assemble builds and signs the anchor transaction.
func (b *Builder) assemble(payload []byte, utxo *chain.Utxo,
	changeScript []byte, pay *Payment, fee btcutil.Amount,
	signer *SigningContext) (*wire.MsgTx, error) {

	fundingHash, err := chainhash.NewHashFromStr(utxo.TxID)
	if err != nil {
		return nil, fmt.Errorf("funding txid: %w", err)
	}

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(wire.NewTxIn(
		wire.NewOutPoint(fundingHash, utxo.Vout), nil, nil,
	))

	carrierScript, err := txscript.NullDataScript(payload)
	if err != nil {
		return nil, fmt.Errorf("data carrier script: %w", err)
	}
	tx.AddTxOut(wire.NewTxOut(0, carrierScript))

	var payAmount btcutil.Amount
	if pay != nil {
		payAddr, err := btcutil.DecodeAddress(
			pay.Address, signer.Params,
		)
		if err != nil {
			return nil, fmt.Errorf("payee address: %w", err)
		}
		payScript, err := txscript.PayToAddrScript(payAddr)
		if err != nil {
			return nil, fmt.Errorf("payee script: %w", err)
		}

		tx.AddTxOut(wire.NewTxOut(int64(pay.Amount), payScript))
		payAmount = pay.Amount
	}

	change := utxo.Value - payAmount - fee
	tx.AddTxOut(wire.NewTxOut(int64(change), changeScript))

	// The single input spends one of the signer's own p2wpkh outputs.
	fetcher := txscript.NewCannedPrevOutputFetcher(
		changeScript, int64(utxo.Value),
	)
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)

	witness, err := txscript.WitnessSignature(
		tx, sigHashes, 0, int64(utxo.Value), changeScript,
		txscript.SigHashAll, signer.PrivKey, true,
	)
	if err != nil {
		return nil, fmt.Errorf("sign input: %w", err)
	}
	tx.TxIn[0].Witness = witness

	return tx, nil
}

// Package history rebuilds a project's audit trail from nothing but chain
// data. Given the two participant addresses and the project's current and
// previous content identifiers, the reconstructor scans every transaction
// touching either address, keeps those carrying an audit record, classifies
// each one, and returns the ordered trail. There is no off-chain index: the
// chain plus the record codec is the whole source of truth.
package history

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"golang.org/x/sync/errgroup"

	"github.com/ram0verflow/ironledger/chain"
	"github.com/ram0verflow/ironledger/record"
)

// maxConcurrentDetailFetches bounds the fan-out of per-transaction detail
// requests against the chain backend.
const maxConcurrentDetailFetches = 8

// TxType is the classified role of a reconstructed transaction.
type TxType string

const (
	// TypeCreation marks the transaction anchoring the project's first
	// revision.
	TypeCreation TxType = "creation"

	// TypeUpdate marks a revision anchor without a counterparty
	// payment.
	TypeUpdate TxType = "update"

	// TypePayment marks any transaction paying the counterparty,
	// whatever record it carries.
	TypePayment TxType = "payment"
)

// Status is the confirmation state of a reconstructed transaction.
type Status string

const (
	// StatusConfirmed means the transaction is included in a block.
	StatusConfirmed Status = "confirmed"

	// StatusPending means the transaction is still in the mempool.
	StatusPending Status = "pending"
)

// LedgerTransaction is one reconstructed entry of the audit trail. It is
// derived from chain data on every call and carries no identity beyond the
// transaction id.
type LedgerTransaction struct {
	// TxID is the chain transaction id.
	TxID string `json:"txId"`

	// Timestamp is the including block's time, zero while pending.
	Timestamp time.Time `json:"timestamp"`

	// Confirmations is the chain-reported depth, zero while pending.
	Confirmations uint32 `json:"confirmations"`

	// Type is the classified role of the transaction.
	Type TxType `json:"type"`

	// Amount is the total value paid to the counterparty, zero for
	// non-payments.
	Amount btcutil.Amount `json:"amount"`

	// Fee is the miner fee.
	Fee btcutil.Amount `json:"fee"`

	// Status reports whether the transaction is confirmed.
	Status Status `json:"status"`

	// Verified reports whether the carried record matches the digest
	// re-derived from the project's known CID pair. Always true under
	// VerifyStrict, since mismatches are dropped there.
	Verified bool `json:"verified"`
}

// VerifyPolicy controls how digest mismatches are treated during
// reconstruction.
type VerifyPolicy uint8

const (
	// VerifyPermissive includes transactions whose record does not
	// match the known CID pair, flagging them via Verified=false. This
	// mirrors the original deployment's behavior and is the default.
	VerifyPermissive VerifyPolicy = iota

	// VerifyStrict excludes transactions whose record does not match
	// the known CID pair.
	VerifyStrict
)

// FetchError wraps any chain query failure during reconstruction. The
// whole call fails: a partial audit trail would be misleading, so no
// results accompany this error.
type FetchError struct {
	// Op names the failed query.
	Op string

	// Err is the underlying failure.
	Err error
}

// Error returns a human readable description of the failure.
func (e *FetchError) Error() string {
	return fmt.Sprintf("history: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying failure.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Config bundles the collaborators and policy a Reconstructor needs.
type Config struct {
	// Chain provides address scans and transaction detail.
	Chain chain.Client

	// Policy selects strict or permissive digest verification.
	Policy VerifyPolicy
}

// Reconstructor rebuilds audit trails. It holds no mutable state and is
// safe for concurrent use.
type Reconstructor struct {
	cfg Config
}

// New validates the configuration and returns a Reconstructor.
func New(cfg Config) (*Reconstructor, error) {
	if cfg.Chain == nil {
		return nil, errors.New("history: nil chain client")
	}

	return &Reconstructor{cfg: cfg}, nil
}

// GetHistory returns the project's audit trail, most recent first, with
// pending transactions after all confirmed ones. projectCid and
// previousCid are the project's latest and superseded content identifiers;
// they anchor digest verification. Any chain query failure aborts the
// whole call with a *FetchError and no partial results.
func (r *Reconstructor) GetHistory(ctx context.Context, projectCid,
	previousCid, issuerAddress,
	counterpartyAddress string) ([]LedgerTransaction, error) {

	txids, err := r.scanAddresses(
		ctx, issuerAddress, counterpartyAddress,
	)
	if err != nil {
		return nil, err
	}

	details, err := r.fetchDetails(ctx, txids)
	if err != nil {
		return nil, err
	}

	txs := make([]LedgerTransaction, 0, len(details))
	for _, detail := range details {
		tx, ok := r.classify(
			detail, projectCid, previousCid, counterpartyAddress,
		)
		if !ok {
			continue
		}

		txs = append(txs, tx)
	}

	sortByRecency(txs)

	log.Debugf("Reconstructed %d trail entries from %d candidate txs "+
		"for project %s", len(txs), len(details), projectCid)

	return txs, nil
}

// scanAddresses queries both participant addresses concurrently and
// returns the union of their transaction ids, deduplicated: a transaction
// paying the counterparty from the issuer touches both addresses but must
// appear once.
func (r *Reconstructor) scanAddresses(ctx context.Context, issuer,
	counterparty string) ([]string, error) {

	var issuerTxs, counterpartyTxs []string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		issuerTxs, err = r.cfg.Chain.AddressTxIDs(gctx, issuer)
		if err != nil {
			return &FetchError{
				Op:  "scan " + issuer,
				Err: err,
			}
		}
		return nil
	})
	g.Go(func() error {
		var err error
		counterpartyTxs, err = r.cfg.Chain.AddressTxIDs(
			gctx, counterparty,
		)
		if err != nil {
			return &FetchError{
				Op:  "scan " + counterparty,
				Err: err,
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	union := make([]string, 0, len(issuerTxs)+len(counterpartyTxs))
	for _, txid := range append(issuerTxs, counterpartyTxs...) {
		if _, ok := seen[txid]; ok {
			continue
		}
		seen[txid] = struct{}{}
		union = append(union, txid)
	}

	return union, nil
}

// fetchDetails fans out detail fetches for every candidate transaction and
// joins them before classification begins. Completion order is irrelevant:
// each goroutine writes its own slot and the final result is sorted later.
func (r *Reconstructor) fetchDetails(ctx context.Context,
	txids []string) ([]*chain.TxDetail, error) {

	details := make([]*chain.TxDetail, len(txids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentDetailFetches)
	for i, txid := range txids {
		i, txid := i, txid
		g.Go(func() error {
			detail, err := r.cfg.Chain.TransactionDetail(
				gctx, txid,
			)
			if err != nil {
				return &FetchError{
					Op:  "detail " + txid,
					Err: err,
				}
			}

			details[i] = detail
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return details, nil
}

// classify turns one fetched transaction into a trail entry, or reports
// false for transactions that are not part of any record chain.
//
// The type tie-break is fixed: any nonzero value paid to the counterparty
// makes the transaction a payment regardless of its record tag; otherwise
// an UPDATE tag makes it an update; everything else is a creation.
func (r *Reconstructor) classify(detail *chain.TxDetail, projectCid,
	previousCid, counterparty string) (LedgerTransaction, bool) {

	// No data carrier means the transaction is ordinary value
	// transfer, unrelated to any record chain.
	payload, ok := detail.DataCarrierPayload()
	if !ok {
		return LedgerTransaction{}, false
	}

	rec, err := record.Decode(payload)
	if err != nil {
		// Carrier data some other application embedded; not an
		// audit record, so not an error either.
		log.Tracef("Skipping tx %s: undecodable carrier payload: %v",
			detail.TxID, err)
		return LedgerTransaction{}, false
	}

	verified := rec.Matches(previousCid, projectCid)
	if r.cfg.Policy == VerifyStrict && !verified {
		log.Debugf("Dropping tx %s: record does not bind %s -> %s",
			detail.TxID, previousCid, projectCid)
		return LedgerTransaction{}, false
	}

	amount := detail.PaidTo(counterparty)

	var txType TxType
	switch {
	case amount > 0:
		txType = TypePayment

	case rec.Kind == record.KindUpdate:
		txType = TypeUpdate

	default:
		txType = TypeCreation
	}

	tx := LedgerTransaction{
		TxID:     detail.TxID,
		Type:     txType,
		Amount:   amount,
		Fee:      detail.Fee,
		Status:   StatusPending,
		Verified: verified,
	}
	if detail.Status.Confirmed {
		tx.Status = StatusConfirmed
		tx.Timestamp = detail.Status.BlockTime
		tx.Confirmations = detail.Status.Confirmations
	}

	return tx, true
}

// sortByRecency orders entries most recent first; pending entries, which
// have no block time, sort after all confirmed ones.
func sortByRecency(txs []LedgerTransaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		ti, tj := txs[i].Timestamp, txs[j].Timestamp
		switch {
		case ti.IsZero():
			return false

		case tj.IsZero():
			return true

		default:
			return ti.After(tj)
		}
	})
}

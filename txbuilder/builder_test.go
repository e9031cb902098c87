package txbuilder

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ram0verflow/ironledger/chain"
	"github.com/ram0verflow/ironledger/chainfee"
	"github.com/ram0verflow/ironledger/record"
)

var testFundingTxID = strings.Repeat("ab", 32)

// testHarness bundles a builder wired to mocks with the signer and payee
// identities used across the tests.
type testHarness struct {
	builder *Builder
	chain   *chain.MockClient
	signer  *SigningContext
	payee   string

	// broadcastTx captures the transaction handed to Broadcast.
	broadcastTx *wire.MsgTx
}

func newTestHarness(t *testing.T, fee btcutil.Amount) *testHarness {
	t.Helper()

	privKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	signer, err := NewSigningContext(privKey, &chaincfg.TestNet3Params)
	require.NoError(t, err)

	payeeKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	payeeHash := btcutil.Hash160(payeeKey.PubKey().SerializeCompressed())
	payeeAddr, err := btcutil.NewAddressWitnessPubKeyHash(
		payeeHash, &chaincfg.TestNet3Params,
	)
	require.NoError(t, err)

	mockChain := &chain.MockClient{}
	builder, err := New(Config{
		Chain:     mockChain,
		Estimator: chainfee.NewStaticEstimator(fee),
	})
	require.NoError(t, err)

	return &testHarness{
		builder: builder,
		chain:   mockChain,
		signer:  signer,
		payee:   payeeAddr.EncodeAddress(),
	}
}

// expectBroadcast wires the mock to accept one broadcast and capture the
// submitted transaction.
func (h *testHarness) expectBroadcast(txid string) {
	h.chain.On("Broadcast", mock.Anything, mock.Anything).Run(
		func(args mock.Arguments) {
			h.broadcastTx = args.Get(1).(*wire.MsgTx)
		},
	).Return(txid, nil).Once()
}

func (h *testHarness) expectUnspent(t *testing.T, utxos []chain.Utxo) {
	t.Helper()

	addr, err := h.signer.Address()
	require.NoError(t, err)

	h.chain.On(
		"ListUnspent", mock.Anything, addr.EncodeAddress(),
	).Return(utxos, nil).Once()
}

func testRecord(t *testing.T) *record.Record {
	t.Helper()

	rec, err := record.New(record.KindUpdate, "bafyCID1", "bafyCID2")
	require.NoError(t, err)

	return rec
}

// TestPublishChangeWithoutPayment asserts that spending a 10000 sat output
// at a 1000 sat fee with no payment returns 9000 sats of change, with the
// data-carrier output first.
func TestPublishChangeWithoutPayment(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, 1000)
	h.expectUnspent(t, []chain.Utxo{{
		TxID:      testFundingTxID,
		Vout:      0,
		Value:     10000,
		Confirmed: true,
	}})
	h.expectBroadcast("txid1")

	txid, err := h.builder.Publish(
		context.Background(), testRecord(t), h.signer, nil,
	)
	require.NoError(t, err)
	require.Equal(t, "txid1", txid)

	tx := h.broadcastTx
	require.NotNil(t, tx)
	require.Len(t, tx.TxOut, 2)

	// Data carrier first, zero value, holding the encoded record.
	require.Zero(t, tx.TxOut[0].Value)
	require.Equal(t, txscript.NullDataTy,
		txscript.GetScriptClass(tx.TxOut[0].PkScript))
	pushes, err := txscript.PushedData(tx.TxOut[0].PkScript)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(pushes[0]), "UPDATE:"))

	// Change last, back to the signer.
	expectedChange, err := h.signer.PkScript()
	require.NoError(t, err)
	require.Equal(t, int64(9000), tx.TxOut[1].Value)
	require.Equal(t, expectedChange, tx.TxOut[1].PkScript)

	h.chain.AssertExpectations(t)
}

// TestPublishChangeWithPayment asserts the output ordering data carrier /
// payment / change and the 7000 sat change after a 2000 sat payment.
func TestPublishChangeWithPayment(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, 1000)
	h.expectUnspent(t, []chain.Utxo{{
		TxID:      testFundingTxID,
		Vout:      1,
		Value:     10000,
		Confirmed: true,
	}})
	h.expectBroadcast("txid2")

	_, err := h.builder.Publish(
		context.Background(), testRecord(t), h.signer,
		&Payment{Address: h.payee, Amount: 2000},
	)
	require.NoError(t, err)

	tx := h.broadcastTx
	require.Len(t, tx.TxOut, 3)

	require.Equal(t, txscript.NullDataTy,
		txscript.GetScriptClass(tx.TxOut[0].PkScript))

	require.Equal(t, int64(2000), tx.TxOut[1].Value)
	payeeAddr, err := btcutil.DecodeAddress(
		h.payee, &chaincfg.TestNet3Params,
	)
	require.NoError(t, err)
	payeeScript, err := txscript.PayToAddrScript(payeeAddr)
	require.NoError(t, err)
	require.Equal(t, payeeScript, tx.TxOut[1].PkScript)

	require.Equal(t, int64(7000), tx.TxOut[2].Value)

	h.chain.AssertExpectations(t)
}

// TestPublishSignsValidWitness runs the signed input through the script
// engine to prove the witness actually spends the issuer's p2wpkh output.
func TestPublishSignsValidWitness(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, 1000)
	h.expectUnspent(t, []chain.Utxo{{
		TxID:      testFundingTxID,
		Vout:      0,
		Value:     10000,
		Confirmed: true,
	}})
	h.expectBroadcast("txid3")

	_, err := h.builder.Publish(
		context.Background(), testRecord(t), h.signer, nil,
	)
	require.NoError(t, err)

	pkScript, err := h.signer.PkScript()
	require.NoError(t, err)

	fetcher := txscript.NewCannedPrevOutputFetcher(pkScript, 10000)
	vm, err := txscript.NewEngine(
		pkScript, h.broadcastTx, 0, txscript.StandardVerifyFlags,
		nil, txscript.NewTxSigHashes(h.broadcastTx, fetcher),
		10000, fetcher,
	)
	require.NoError(t, err)
	require.NoError(t, vm.Execute())
}

// TestPublishSelectsLargestOutput asserts the largest-value-first
// selection policy.
func TestPublishSelectsLargestOutput(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, 1000)
	h.expectUnspent(t, []chain.Utxo{
		{TxID: testFundingTxID, Vout: 0, Value: 5000},
		{TxID: testFundingTxID, Vout: 7, Value: 20000},
	})
	h.expectBroadcast("txid4")

	_, err := h.builder.Publish(
		context.Background(), testRecord(t), h.signer, nil,
	)
	require.NoError(t, err)

	require.Len(t, h.broadcastTx.TxIn, 1)
	require.Equal(t, uint32(7),
		h.broadcastTx.TxIn[0].PreviousOutPoint.Index)
}

// TestPublishNoSpendableOutputs asserts an empty utxo set fails before any
// broadcast is attempted.
func TestPublishNoSpendableOutputs(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, 1000)
	h.expectUnspent(t, []chain.Utxo{})

	_, err := h.builder.Publish(
		context.Background(), testRecord(t), h.signer, nil,
	)
	require.ErrorIs(t, err, ErrNoSpendableOutputs)

	h.chain.AssertNotCalled(t, "Broadcast", mock.Anything, mock.Anything)
}

// TestPublishInsufficientFunds asserts selection demands a single output
// strictly exceeding payment plus fee.
func TestPublishInsufficientFunds(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, 1000)
	h.expectUnspent(t, []chain.Utxo{
		{TxID: testFundingTxID, Vout: 0, Value: 3000},
	})

	_, err := h.builder.Publish(
		context.Background(), testRecord(t), h.signer,
		&Payment{Address: h.payee, Amount: 2000},
	)
	require.ErrorIs(t, err, ErrInsufficientFunds)

	h.chain.AssertNotCalled(t, "Broadcast", mock.Anything, mock.Anything)
}

// TestPublishBroadcastRejected asserts backend rejections surface to the
// caller unchanged, with no retry.
func TestPublishBroadcastRejected(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, 1000)
	h.expectUnspent(t, []chain.Utxo{{
		TxID:  testFundingTxID,
		Vout:  0,
		Value: 10000,
	}})
	h.chain.On("Broadcast", mock.Anything, mock.Anything).Return(
		"", &chain.BroadcastError{Reason: "txn-mempool-conflict"},
	).Once()

	_, err := h.builder.Publish(
		context.Background(), testRecord(t), h.signer, nil,
	)

	var bErr *chain.BroadcastError
	require.True(t, errors.As(err, &bErr))

	h.chain.AssertExpectations(t)
}

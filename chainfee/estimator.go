// Package chainfee provides fee estimation for anchor transactions. The
// engine itself never hardcodes a fee; callers inject an Estimator. The
// StaticEstimator reproduces the fixed-fee behavior of the original
// deployment and is the documented simplification for tests and demos,
// while RateEstimator scales with transaction size for real deployments.
package chainfee

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
)

const (
	// txOverheadVBytes approximates the fixed cost of a transaction:
	// version, segwit marker, in/out counts and locktime.
	txOverheadVBytes = 11

	// inputVBytes approximates a p2wpkh input including its witness.
	inputVBytes = 68

	// outputVBytes approximates a p2wpkh or small data-carrier output.
	outputVBytes = 43
)

// Estimator returns the absolute fee to attach to a transaction with the
// given shape. Amounts are integer satoshis.
type Estimator interface {
	// EstimateFee returns the fee for a transaction spending numInputs
	// inputs and creating numOutputs outputs.
	EstimateFee(numInputs, numOutputs int) (btcutil.Amount, error)
}

// StaticEstimator returns the same fee for every transaction, regardless
// of its size.
type StaticEstimator struct {
	fee btcutil.Amount
}

// NewStaticEstimator returns an estimator pinned to the given fee.
func NewStaticEstimator(fee btcutil.Amount) *StaticEstimator {
	return &StaticEstimator{fee: fee}
}

// EstimateFee returns the static fee.
//
// NOTE: This method is part of the Estimator interface.
func (e *StaticEstimator) EstimateFee(numInputs,
	numOutputs int) (btcutil.Amount, error) {

	return e.fee, nil
}

// A compile-time assertion to ensure StaticEstimator implements the
// Estimator interface.
var _ Estimator = (*StaticEstimator)(nil)

// RateEstimator computes fees from a satoshi-per-vbyte rate and a coarse
// virtual-size model of the transaction shape.
type RateEstimator struct {
	satPerVByte btcutil.Amount
}

// NewRateEstimator returns an estimator charging the given rate per
// virtual byte.
func NewRateEstimator(satPerVByte btcutil.Amount) *RateEstimator {
	return &RateEstimator{satPerVByte: satPerVByte}
}

// EstimateFee returns rate * estimated vsize for the transaction shape.
//
// NOTE: This method is part of the Estimator interface.
func (e *RateEstimator) EstimateFee(numInputs,
	numOutputs int) (btcutil.Amount, error) {

	if numInputs <= 0 || numOutputs <= 0 {
		return 0, fmt.Errorf("chainfee: invalid tx shape %d in / "+
			"%d out", numInputs, numOutputs)
	}

	vsize := txOverheadVBytes +
		numInputs*inputVBytes +
		numOutputs*outputVBytes

	return e.satPerVByte * btcutil.Amount(vsize), nil
}

// A compile-time assertion to ensure RateEstimator implements the
// Estimator interface.
var _ Estimator = (*RateEstimator)(nil)

package chainfee

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/stretchr/testify/require"
)

// TestStaticEstimator asserts the static estimator ignores the tx shape.
func TestStaticEstimator(t *testing.T) {
	t.Parallel()

	estimator := NewStaticEstimator(1000)

	fee, err := estimator.EstimateFee(1, 2)
	require.NoError(t, err)
	require.Equal(t, btcutil.Amount(1000), fee)

	fee, err = estimator.EstimateFee(10, 10)
	require.NoError(t, err)
	require.Equal(t, btcutil.Amount(1000), fee)
}

// TestRateEstimator asserts fees grow with the tx shape and invalid shapes
// are rejected.
func TestRateEstimator(t *testing.T) {
	t.Parallel()

	estimator := NewRateEstimator(2)

	small, err := estimator.EstimateFee(1, 2)
	require.NoError(t, err)

	large, err := estimator.EstimateFee(2, 3)
	require.NoError(t, err)
	require.Greater(t, large, small)

	_, err = estimator.EstimateFee(0, 2)
	require.Error(t, err)

	_, err = estimator.EstimateFee(1, 0)
	require.Error(t, err)
}

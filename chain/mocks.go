package chain

import (
	"context"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/mock"
)

// MockClient is a mock implementation of the Client interface for use in
// tests across the module.
type MockClient struct {
	mock.Mock
}

// Compile-time constraint to ensure MockClient implements Client.
var _ Client = (*MockClient)(nil)

func (m *MockClient) ListUnspent(ctx context.Context,
	address string) ([]Utxo, error) {

	args := m.Called(ctx, address)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]Utxo), args.Error(1)
}

func (m *MockClient) AddressTxIDs(ctx context.Context,
	address string) ([]string, error) {

	args := m.Called(ctx, address)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]string), args.Error(1)
}

func (m *MockClient) TransactionDetail(ctx context.Context,
	txid string) (*TxDetail, error) {

	args := m.Called(ctx, txid)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*TxDetail), args.Error(1)
}

func (m *MockClient) Broadcast(ctx context.Context,
	tx *wire.MsgTx) (string, error) {

	args := m.Called(ctx, tx)

	return args.String(0), args.Error(1)
}

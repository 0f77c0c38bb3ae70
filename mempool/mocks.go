// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/pkgpool/chain"
	"github.com/stretchr/testify/mock"
)

// MockTxValidator is a mock implementation of the TxValidator interface.
type MockTxValidator struct {
	mock.Mock
}

// Ensure the MockTxValidator implements the TxValidator interface.
var _ TxValidator = (*MockTxValidator)(nil)

// ValidateTransaction returns the fee and error configured for the
// transaction.
func (m *MockTxValidator) ValidateTransaction(tx *btcutil.Tx,
	view chain.OutputView) (btcutil.Amount, error) {

	args := m.Called(tx, view)
	return args.Get(0).(btcutil.Amount), args.Error(1)
}

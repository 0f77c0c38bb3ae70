// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/pkgpool/chain"
)

// TxValidator checks a transaction against everything the pool does not
// track itself: input existence, scripts, standardness.  It returns the base
// fee the transaction pays.  Inputs that are not confirmed must be looked up
// in the passed view of pool outputs.
type TxValidator interface {
	ValidateTransaction(tx *btcutil.Tx,
		view chain.OutputView) (btcutil.Amount, error)
}

// poolView exposes the outputs of pool transactions to the validator.  It
// reads the pool without locking: the validator is only called from inside a
// pool mutation.
type poolView struct {
	mp *TxPool
}

// Ensure poolView implements the chain.OutputView interface.
var _ chain.OutputView = poolView{}

// FetchOutput returns the output created by a pool transaction, or nil if the
// creating transaction is not in the pool or has no such output.
func (v poolView) FetchOutput(op wire.OutPoint) *wire.TxOut {
	entry, ok := v.mp.pool[op.Hash]
	if !ok {
		return nil
	}

	txOuts := entry.Tx.MsgTx().TxOut
	if op.Index >= uint32(len(txOuts)) {
		return nil
	}
	return txOuts[op.Index]
}

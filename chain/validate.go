// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"fmt"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
)

// outputLookup returns the value of an unspent output.
type outputLookup func(op wire.OutPoint) (int64, bool)

// checkTransactionInputs checks that every input of a non-coinbase
// transaction is available and that the transaction does not create value.
// The fee is returned.
func checkTransactionInputs(tx *btcutil.Tx,
	lookup outputLookup) (btcutil.Amount, error) {

	var totalIn int64
	for txInIndex, txIn := range tx.MsgTx().TxIn {
		amount, ok := lookup(txIn.PreviousOutPoint)
		if !ok {
			str := fmt.Sprintf("output %v referenced from "+
				"transaction %v:%d either does not exist or "+
				"has already been spent", txIn.PreviousOutPoint,
				tx.Hash(), txInIndex)
			return 0, ruleError(ErrMissingInputs, str)
		}
		totalIn += amount
	}

	var totalOut int64
	for _, txOut := range tx.MsgTx().TxOut {
		totalOut += txOut.Value
	}

	if totalIn < totalOut {
		str := fmt.Sprintf("total value of all transaction inputs for "+
			"transaction %v is %v which is less than the amount "+
			"spent of %v", tx.Hash(), btcutil.Amount(totalIn),
			btcutil.Amount(totalOut))
		return 0, ruleError(ErrBadFee, str)
	}

	return btcutil.Amount(totalIn - totalOut), nil
}

// ValidateTransaction checks a loose transaction against the current tip and
// returns the fee it pays.  Inputs that are not confirmed are looked up in the
// passed view, which may be nil.  Scripts are not evaluated.
//
// This function is safe for concurrent access.
func (c *Chain) ValidateTransaction(tx *btcutil.Tx,
	view OutputView) (btcutil.Amount, error) {

	if blockchain.IsCoinBase(tx) {
		str := fmt.Sprintf("transaction %v is an individual coinbase",
			tx.Hash())
		return 0, ruleError(ErrUnexpectedCoinbase, str)
	}
	if err := blockchain.CheckTransactionSanity(tx); err != nil {
		return 0, err
	}

	c.chainLock.RLock()
	defer c.chainLock.RUnlock()

	return checkTransactionInputs(tx, func(op wire.OutPoint) (int64, bool) {
		if entry := c.utxos[op]; entry != nil {
			return entry.amount, true
		}
		if view != nil {
			if txOut := view.FetchOutput(op); txOut != nil {
				return txOut.Value, true
			}
		}
		return 0, false
	})
}

// checkBlockSanity checks the transaction layout of a block: exactly one
// coinbase, in first position, and every transaction well formed.  Inputs
// are checked when the block is connected.
func checkBlockSanity(block *btcutil.Block) error {
	transactions := block.Transactions()
	if len(transactions) == 0 || !blockchain.IsCoinBase(transactions[0]) {
		str := fmt.Sprintf("first transaction of block %v is not a "+
			"coinbase", block.Hash())
		return ruleError(ErrFirstTxNotCoinbase, str)
	}

	for i, tx := range transactions {
		if i > 0 && blockchain.IsCoinBase(tx) {
			str := fmt.Sprintf("block %v contains second coinbase "+
				"at index %d", block.Hash(), i)
			return ruleError(ErrUnexpectedCoinbase, str)
		}
		if err := blockchain.CheckTransactionSanity(tx); err != nil {
			return err
		}
	}

	return nil
}

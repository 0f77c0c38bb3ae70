// Copyright (c) 2015-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"fmt"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
)

// OutputView provides outputs that are not in the confirmed UTXO set, such as
// those created by unconfirmed transactions.
type OutputView interface {
	// FetchOutput returns the output for the passed outpoint or nil if
	// the view does not know it.
	FetchOutput(op wire.OutPoint) *wire.TxOut
}

// UtxoEntry houses details about an individual unspent transaction output.
type UtxoEntry struct {
	amount      int64
	pkScript    []byte
	blockHeight int32
	isCoinBase  bool
}

// Amount returns the amount of the output.
func (entry *UtxoEntry) Amount() int64 {
	return entry.amount
}

// PkScript returns the public key script for the output.
func (entry *UtxoEntry) PkScript() []byte {
	return entry.pkScript
}

// BlockHeight returns the height of the block containing the output.
func (entry *UtxoEntry) BlockHeight() int32 {
	return entry.blockHeight
}

// IsCoinBase returns whether or not the output was contained in a coinbase
// transaction.
func (entry *UtxoEntry) IsCoinBase() bool {
	return entry.isCoinBase
}

// TxOut returns the output as a wire.TxOut.
func (entry *UtxoEntry) TxOut() *wire.TxOut {
	return wire.NewTxOut(entry.amount, entry.pkScript)
}

// SpentTxOut contains a spent transaction output and potentially additional
// contextual information such as whether or not it was contained in a
// coinbase transaction and the height of the block that contains it.  The
// spend journal of a block holds one per input of its non-coinbase
// transactions, in order.
type SpentTxOut struct {
	Amount     int64
	PkScript   []byte
	Height     int32
	IsCoinBase bool
}

// utxoViewpoint represents a view into the set of unspent transaction outputs
// from a specific point of view in the chain.  Changes to a view are only
// applied to the chain when the view is committed, so a block that fails
// validation leaves the set untouched.
type utxoViewpoint struct {
	base map[wire.OutPoint]*UtxoEntry

	// entries holds modified outputs.  A nil entry marks an output spent.
	entries map[wire.OutPoint]*UtxoEntry
}

func newUtxoViewpoint(base map[wire.OutPoint]*UtxoEntry) *utxoViewpoint {
	return &utxoViewpoint{
		base:    base,
		entries: make(map[wire.OutPoint]*UtxoEntry),
	}
}

// lookupEntry returns the unspent output for the outpoint, or nil.
func (view *utxoViewpoint) lookupEntry(op wire.OutPoint) *UtxoEntry {
	if entry, ok := view.entries[op]; ok {
		return entry
	}
	return view.base[op]
}

// addTxOuts adds every output of the transaction as unspent.
func (view *utxoViewpoint) addTxOuts(tx *btcutil.Tx, blockHeight int32) {
	isCoinBase := blockchain.IsCoinBase(tx)
	prevOut := wire.OutPoint{Hash: *tx.Hash()}
	for txOutIdx, txOut := range tx.MsgTx().TxOut {
		prevOut.Index = uint32(txOutIdx)
		view.entries[prevOut] = &UtxoEntry{
			amount:      txOut.Value,
			pkScript:    txOut.PkScript,
			blockHeight: blockHeight,
			isCoinBase:  isCoinBase,
		}
	}
}

// connectTransaction spends the transaction's inputs and adds its outputs,
// appending to stxos an entry for every spent output.
func (view *utxoViewpoint) connectTransaction(tx *btcutil.Tx,
	blockHeight int32, stxos *[]SpentTxOut) error {

	// Coinbase transactions don't have any inputs to spend.
	if blockchain.IsCoinBase(tx) {
		view.addTxOuts(tx, blockHeight)
		return nil
	}

	for _, txIn := range tx.MsgTx().TxIn {
		entry := view.lookupEntry(txIn.PreviousOutPoint)
		if entry == nil {
			str := fmt.Sprintf("output %v referenced from "+
				"transaction %v either does not exist or has "+
				"already been spent", txIn.PreviousOutPoint,
				tx.Hash())
			return ruleError(ErrMissingInputs, str)
		}
		view.entries[txIn.PreviousOutPoint] = nil

		*stxos = append(*stxos, SpentTxOut{
			Amount:     entry.amount,
			PkScript:   entry.pkScript,
			Height:     entry.blockHeight,
			IsCoinBase: entry.isCoinBase,
		})
	}

	view.addTxOuts(tx, blockHeight)
	return nil
}

// disconnectTransactions removes the outputs created by the block and
// restores the outputs it spent from its spend journal.
func (view *utxoViewpoint) disconnectTransactions(block *btcutil.Block,
	stxos []SpentTxOut) error {

	// Loop backwards through all transactions so everything is unspent in
	// reverse order.  This is necessary since transactions later in a block
	// can spend from previous ones.
	stxoIdx := len(stxos) - 1
	transactions := block.Transactions()
	for txIdx := len(transactions) - 1; txIdx > -1; txIdx-- {
		tx := transactions[txIdx]

		prevOut := wire.OutPoint{Hash: *tx.Hash()}
		for txOutIdx := range tx.MsgTx().TxOut {
			prevOut.Index = uint32(txOutIdx)
			view.entries[prevOut] = nil
		}

		if txIdx == 0 {
			continue
		}
		for txInIdx := len(tx.MsgTx().TxIn) - 1; txInIdx > -1; txInIdx-- {
			if stxoIdx < 0 {
				return fmt.Errorf("spend journal of block %v is "+
					"short", block.Hash())
			}
			stxo := &stxos[stxoIdx]
			stxoIdx--

			txIn := tx.MsgTx().TxIn[txInIdx]
			view.entries[txIn.PreviousOutPoint] = &UtxoEntry{
				amount:      stxo.Amount,
				pkScript:    stxo.PkScript,
				blockHeight: stxo.Height,
				isCoinBase:  stxo.IsCoinBase,
			}
		}
	}

	if stxoIdx != -1 {
		return fmt.Errorf("spend journal of block %v has %d unused "+
			"entries", block.Hash(), stxoIdx+1)
	}
	return nil
}

// commit applies the view to its base set.
func (view *utxoViewpoint) commit() {
	for op, entry := range view.entries {
		if entry == nil {
			delete(view.base, op)
			continue
		}
		view.base[op] = entry
	}
	view.entries = make(map[wire.OutPoint]*UtxoEntry)
}

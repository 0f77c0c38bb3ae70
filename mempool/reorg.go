// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"fmt"
	"time"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/pkgpool/chain"
	"github.com/btcsuite/pkgpool/mempool/txgraph"
	"github.com/decred/dcrd/lru"
)

// ReorgResult summarizes how the pool changed in response to block events.
type ReorgResult struct {
	// Confirmed is the number of pool transactions included in connected
	// blocks.
	Confirmed int

	// Conflicted is the number of pool transactions evicted because a
	// connected block spent one of their inputs or an ancestor's input.
	Conflicted int

	// Readmitted is the number of disconnected block transactions that
	// re-entered the pool.
	Readmitted int

	// Rejected is the number of disconnected block transactions that did
	// not re-enter the pool.
	Rejected int

	// Evicted is the number of pool transactions removed because they
	// spent an output of a rejected transaction.
	Evicted int

	// Errors counts mutations halted by an inconsistency.
	Errors int
}

// add accumulates other into r.
func (r *ReorgResult) add(other ReorgResult) {
	r.Confirmed += other.Confirmed
	r.Conflicted += other.Conflicted
	r.Readmitted += other.Readmitted
	r.Rejected += other.Rejected
	r.Evicted += other.Evicted
	r.Errors += other.Errors
}

// String returns a one line summary of the result.
func (r ReorgResult) String() string {
	return fmt.Sprintf("confirmed %d, conflicted %d, readmitted %d, "+
		"rejected %d, evicted %d", r.Confirmed, r.Conflicted,
		r.Readmitted, r.Rejected, r.Evicted)
}

// noteError records a halted mutation.  Only inconsistencies count; an
// ordinary rejection is an expected outcome of a reorg.
func (r *ReorgResult) noteError(err error, format string, args ...interface{}) {
	if err == nil {
		return
	}
	if IsAssertError(err) {
		r.Errors++
		log.Criticalf(format+": %v", append(args, err)...)
		return
	}
	log.Debugf(format+": %v", append(args, err)...)
}

// BlockConnected removes the block's transactions from the pool, along with
// every pool transaction that conflicts with them.  Descendants of confirmed
// transactions stay in the pool.  Priority deltas of the block's
// transactions are cleared.
//
// This function is safe for concurrent access.
func (mp *TxPool) BlockConnected(block *btcutil.Block) ReorgResult {
	mp.mtx.Lock()
	defer mp.mtx.Unlock()

	result := mp.blockConnectedLocked(block)
	mp.finishBlockEvent(&result)
	return result
}

// blockConnectedLocked implements BlockConnected without refreshing stale
// entries.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) blockConnectedLocked(block *btcutil.Block) ReorgResult {
	var result ReorgResult
	for _, tx := range block.Transactions() {
		if blockchain.IsCoinBase(tx) {
			continue
		}
		txHash := *tx.Hash()

		if _, ok := mp.pool[txHash]; ok {
			err := mp.removeEntry(txHash, RemovedConfirmed)
			if err == nil {
				result.Confirmed++
			}
			result.noteError(err, "Unable to remove confirmed "+
				"transaction %v", txHash)
		}

		if _, ok := mp.deltas.clear(txHash); ok {
			log.Debugf("Cleared fee delta of confirmed transaction %v",
				txHash)
		}

		for _, conflict := range mp.graph.GetConflicts(tx) {
			n, err := mp.removeWithDescendants(conflict.TxHash,
				RemovedConflict)
			result.Conflicted += n
			result.noteError(err, "Unable to evict %v double spent "+
				"by block transaction %v", conflict.TxHash, txHash)
		}
	}

	log.Debugf("Processed connected block %v: %v", block.Hash(), result)
	return result
}

// BlockDisconnected re-offers the block's transactions to the pool in
// dependency order.  Transactions that no longer fit the limits or no longer
// validate are dropped, along with the pool transactions that spend their
// outputs.
//
// This function is safe for concurrent access.
func (mp *TxPool) BlockDisconnected(block *btcutil.Block) ReorgResult {
	return mp.ProcessReorg([]*btcutil.Block{block}, nil)
}

// ProcessReorg applies a chain switch as one mutation.  Detached blocks are
// listed tip first and attached blocks in connection order.  The
// transactions of every detached block are re-offered together, parents
// first, then each attached block is connected.  Detached transactions that
// are also in an attached block stay confirmed and are not offered.  A failed
// re-admission never aborts the batch.
//
// This function is safe for concurrent access.
func (mp *TxPool) ProcessReorg(detached,
	attached []*btcutil.Block) ReorgResult {

	mp.mtx.Lock()
	defer mp.mtx.Unlock()

	reconfirmed := make(map[chainhash.Hash]struct{})
	for _, block := range attached {
		for _, tx := range block.Transactions() {
			if blockchain.IsCoinBase(tx) {
				continue
			}
			reconfirmed[*tx.Hash()] = struct{}{}
		}
	}

	result := mp.readmitLocked(detached, reconfirmed)
	for _, block := range attached {
		result.add(mp.blockConnectedLocked(block))
	}
	mp.finishBlockEvent(&result)

	log.Infof("Processed reorg of %d detached and %d attached %s: %v",
		len(detached), len(attached), pickNoun(len(attached), "block",
			"blocks"), result)
	return result
}

// readmitLocked re-offers the non-coinbase transactions of the detached
// blocks, except those in skip, and evicts pool transactions left spending
// outputs of the ones that were dropped.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) readmitLocked(detached []*btcutil.Block,
	skip map[chainhash.Hash]struct{}) ReorgResult {

	var result ReorgResult

	// Collect oldest block first so that, among unrelated transactions,
	// block order is kept.
	var txs []*btcutil.Tx
	for i := len(detached) - 1; i >= 0; i-- {
		for _, tx := range detached[i].Transactions() {
			if blockchain.IsCoinBase(tx) {
				continue
			}
			if _, ok := skip[*tx.Hash()]; ok {
				log.Debugf("Transaction %v is confirmed on the "+
					"new chain", tx.Hash())
				continue
			}
			txs = append(txs, tx)
		}
	}

	var dropped []*btcutil.Tx
	for _, tx := range txgraph.TopologicalSort(txs) {
		_, err := mp.maybeAcceptTransactionLocked(tx, time.Time{})
		if err == nil {
			result.Readmitted++
			continue
		}

		result.Rejected++
		dropped = append(dropped, tx)
		result.noteError(err, "Dropped disconnected transaction %v",
			tx.Hash())
	}

	for _, tx := range dropped {
		txHash := *tx.Hash()
		for i := range tx.MsgTx().TxOut {
			op := wire.OutPoint{Hash: txHash, Index: uint32(i)}
			spender, ok := mp.graph.GetSpender(op)
			if !ok {
				continue
			}
			n, err := mp.removeWithDescendants(spender.TxHash,
				RemovedReorg)
			result.Evicted += n
			result.noteError(err, "Unable to evict %v spending "+
				"dropped transaction %v", spender.TxHash, txHash)
		}
	}

	return result
}

// finishBlockEvent completes a block driven mutation: stale package stats are
// recomputed and the recent rejects are forgotten since the tip changed.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) finishBlockEvent(result *ReorgResult) {
	if err := mp.refreshStale(); err != nil {
		result.noteError(err, "Unable to refresh package stats")
	}
	mp.recentRejects = lru.NewCache(mp.cfg.MaxRecentRejects)
	mp.touch()
}

// HandleChainNotification applies a chain notification to the pool and
// returns how the pool changed.  Notifications of other types are ignored.
func (mp *TxPool) HandleChainNotification(n *chain.Notification) ReorgResult {
	switch n.Type {
	case chain.NTBlockConnected:
		block, ok := n.Data.(*btcutil.Block)
		if !ok {
			log.Warnf("Chain connected notification is not a block.")
			return ReorgResult{}
		}
		return mp.BlockConnected(block)

	case chain.NTBlockDisconnected:
		block, ok := n.Data.(*btcutil.Block)
		if !ok {
			log.Warnf("Chain disconnected notification is not a " +
				"block.")
			return ReorgResult{}
		}
		return mp.BlockDisconnected(block)

	case chain.NTReorganization:
		data, ok := n.Data.(*chain.ReorganizationData)
		if !ok {
			log.Warnf("Chain reorganization notification has " +
				"unexpected data.")
			return ReorgResult{}
		}
		return mp.ProcessReorg(data.Detached, data.Attached)
	}

	return ReorgResult{}
}

// ChainListener returns a notification callback that keeps the pool in step
// with a chain.
func ChainListener(mp *TxPool) chain.NotificationCallback {
	return func(n *chain.Notification) {
		mp.HandleChainNotification(n)
	}
}

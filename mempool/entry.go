// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// PackageStats aggregates a set of transactions: a transaction together with
// all of its in-pool ancestors, or all of its in-pool descendants. The
// transaction itself is always counted.
type PackageStats struct {
	Count int64
	Size  int64
	Fees  btcutil.Amount
}

// add folds one transaction into the stats.
func (s *PackageStats) add(size int64, fee btcutil.Amount) {
	s.Count++
	s.Size += size
	s.Fees += fee
}

// TxEntry is the pool's ledger record for one admitted transaction along with
// its cached package statistics.
type TxEntry struct {
	// Tx is the transaction.
	Tx *btcutil.Tx

	// Added is the time the transaction entered the pool.
	Added time.Time

	// Height is the best chain height when the transaction entered the
	// pool.
	Height int32

	// Size is the serialized size of the transaction in bytes.
	Size int64

	// Fee is the base fee reported by validation. It never changes once
	// the entry exists.
	Fee btcutil.Amount

	// FeeDelta is the operator priority adjustment. It may be negative.
	FeeDelta btcutil.Amount

	ancestors   PackageStats
	descendants PackageStats

	// stale is set when a removal shrank one of the closures. The stats
	// are recomputed before the mutation that set it returns.
	stale bool
}

// newTxEntry returns an entry whose stats describe the transaction on its
// own.
func newTxEntry(tx *btcutil.Tx, size int64, fee, delta btcutil.Amount,
	added time.Time, height int32) *TxEntry {

	e := &TxEntry{
		Tx:       tx,
		Added:    added,
		Height:   height,
		Size:     size,
		Fee:      fee,
		FeeDelta: delta,
	}
	e.ancestors.add(size, e.ModifiedFee())
	e.descendants.add(size, e.ModifiedFee())
	return e
}

// Hash returns the transaction hash of the entry.
func (e *TxEntry) Hash() *chainhash.Hash {
	return e.Tx.Hash()
}

// ModifiedFee returns the base fee plus the priority delta.
func (e *TxEntry) ModifiedFee() btcutil.Amount {
	return e.Fee + e.FeeDelta
}

// AncestorStats returns the stats over the entry and its in-pool ancestors.
func (e *TxEntry) AncestorStats() PackageStats {
	return e.ancestors
}

// DescendantStats returns the stats over the entry and its in-pool
// descendants.
func (e *TxEntry) DescendantStats() PackageStats {
	return e.descendants
}

// EntrySnapshot is a copy of an entry's fields taken under the pool lock. It
// stays valid after the entry changes or leaves the pool.
type EntrySnapshot struct {
	Tx          *btcutil.Tx
	Hash        chainhash.Hash
	Added       time.Time
	Height      int32
	Size        int64
	Fee         btcutil.Amount
	FeeDelta    btcutil.Amount
	ModifiedFee btcutil.Amount
	Ancestors   PackageStats
	Descendants PackageStats

	// Depends lists the in-pool parents of the transaction.
	Depends []chainhash.Hash
}

// snapshot copies the entry. The parents are supplied by the caller since
// they live in the dependency index.
func (e *TxEntry) snapshot(depends []chainhash.Hash) *EntrySnapshot {
	return &EntrySnapshot{
		Tx:          e.Tx,
		Hash:        *e.Tx.Hash(),
		Added:       e.Added,
		Height:      e.Height,
		Size:        e.Size,
		Fee:         e.Fee,
		FeeDelta:    e.FeeDelta,
		ModifiedFee: e.ModifiedFee(),
		Ancestors:   e.ancestors,
		Descendants: e.descendants,
		Depends:     depends,
	}
}

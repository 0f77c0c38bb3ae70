// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// DeltaMode selects how SetFeeDelta combines a new delta with an existing one.
type DeltaMode uint8

const (
	// DeltaAdditive adds the new delta to the existing one.
	DeltaAdditive DeltaMode = iota

	// DeltaAbsolute replaces the existing delta.
	DeltaAbsolute
)

var deltaModeStrings = map[DeltaMode]string{
	DeltaAdditive: "additive",
	DeltaAbsolute: "absolute",
}

// String returns the DeltaMode in human-readable form.
func (m DeltaMode) String() string {
	if s, ok := deltaModeStrings[m]; ok {
		return s
	}
	return fmt.Sprintf("Unknown DeltaMode (%d)", int(m))
}

// feeDeltas is the priority table.  It is keyed by transaction hash and holds
// deltas for transactions whether or not they are in the pool, so a delta set
// before admission is merged in when the transaction arrives.  A delta that
// reaches zero is dropped.
type feeDeltas map[chainhash.Hash]btcutil.Amount

// next returns the current delta for hash and the value it would have after
// applying delta in the passed mode.  The table is not changed.
func (d feeDeltas) next(hash chainhash.Hash, delta btcutil.Amount,
	mode DeltaMode) (btcutil.Amount, btcutil.Amount) {

	old := d[hash]
	if mode == DeltaAdditive {
		return old, old + delta
	}
	return old, delta
}

// store records the delta for hash.
func (d feeDeltas) store(hash chainhash.Hash, delta btcutil.Amount) {
	if delta == 0 {
		delete(d, hash)
		return
	}
	d[hash] = delta
}

// clear drops the delta for hash, returning what it was.
func (d feeDeltas) clear(hash chainhash.Hash) (btcutil.Amount, bool) {
	old, ok := d[hash]
	delete(d, hash)
	return old, ok
}

// snapshot returns a copy of the table.
func (d feeDeltas) snapshot() map[chainhash.Hash]btcutil.Amount {
	deltas := make(map[chainhash.Hash]btcutil.Amount, len(d))
	for hash, delta := range d {
		deltas[hash] = delta
	}
	return deltas
}

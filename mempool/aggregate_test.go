// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"errors"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestCheckConsistencyDetectsDrift ensures a corrupted cached stat is
// reported.
func TestCheckConsistencyDetectsDrift(t *testing.T) {
	t.Parallel()

	h := newPoolHarness(t, DefaultLimits())
	txs := h.createChain(h.funding[0], 3, 1000)
	h.acceptAll(txs)
	require.NoError(t, h.pool.CheckConsistency())

	h.pool.mtx.Lock()
	h.pool.pool[*txs[0].Hash()].descendants.Fees++
	h.pool.mtx.Unlock()

	err := h.pool.CheckConsistency()
	require.Error(t, err)
	require.True(t, IsAssertError(err))
}

// TestPackageStatsProperty applies random sequences of admissions, priority
// changes, removals, confirmations and reorgs and checks after every step that
// each entry's cached package stats equal the stats of its closures.
func TestPackageStatsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		h := newPoolHarness(t, DefaultLimits())

		// outputs holds every output that may still be spendable.
		// Stale entries are tolerated and produce rejections.
		outputs := append([]spendableOutput(nil), h.funding...)
		var invalidated []chainhash.Hash

		const minOutput = 10000

		ops := rapid.IntRange(10, 40).Draw(t, "ops")
		for i := 0; i < ops; i++ {
			switch rapid.IntRange(0, 5).Draw(t, "operation") {
			// Admission.
			case 0, 1:
				if len(outputs) == 0 {
					continue
				}
				indices := rapid.SliceOfNDistinct(
					rapid.IntRange(0, len(outputs)-1), 1,
					min(3, len(outputs)), rapid.ID[int],
				).Draw(t, "inputs")
				var inputs []spendableOutput
				var total btcutil.Amount
				for _, idx := range indices {
					inputs = append(inputs, outputs[idx])
					total += outputs[idx].amount
				}
				numOutputs := rapid.IntRange(1, 3).Draw(t, "numOutputs")
				fee := btcutil.Amount(rapid.IntRange(100, 5000).
					Draw(t, "fee"))
				if total-fee < btcutil.Amount(numOutputs*minOutput) {
					continue
				}

				tx := h.createTx(inputs, numOutputs, fee)
				_, err := h.pool.MaybeAcceptTransaction(tx)
				if err != nil {
					require.True(t, acceptableRejection(err),
						"unexpected rejection: %v", err)
					continue
				}

				spent := make(map[wire.OutPoint]struct{})
				for _, input := range inputs {
					spent[input.outPoint] = struct{}{}
				}
				kept := outputs[:0]
				for _, output := range outputs {
					if _, ok := spent[output.outPoint]; !ok {
						kept = append(kept, output)
					}
				}
				outputs = append(kept, outputsOf(tx)...)

			// Priority change on a pool entry or an unknown hash.
			case 2:
				hashes := h.pool.TxHashes()
				hash := chainhash.Hash{0xff, byte(i)}
				if len(hashes) > 0 && rapid.Bool().Draw(t, "inPool") {
					idx := rapid.IntRange(0, len(hashes)-1).
						Draw(t, "prioritised")
					hash = *hashes[idx]
				}
				delta := btcutil.Amount(rapid.IntRange(-3000, 3000).
					Draw(t, "delta"))
				mode := DeltaMode(rapid.IntRange(0, 1).Draw(t, "mode"))
				require.NoError(t, h.pool.SetFeeDelta(hash, delta, mode))

			// Explicit removal.
			case 3:
				hashes := h.pool.TxHashes()
				if len(hashes) == 0 {
					continue
				}
				idx := rapid.IntRange(0, len(hashes)-1).Draw(t, "removed")
				redeemers := rapid.Bool().Draw(t, "removeRedeemers")
				require.NoError(t, h.pool.RemoveTransaction(hashes[idx],
					redeemers))

			// Confirm a prefix of the pool in topological order.
			case 4:
				hashes := h.pool.TxHashes()
				n := rapid.IntRange(0, len(hashes)).Draw(t, "confirmed")
				txs := make([]*btcutil.Tx, 0, n)
				for _, hash := range hashes[:n] {
					tx, err := h.pool.FetchTransaction(hash)
					require.NoError(t, err)
					txs = append(txs, tx)
				}

				// A pool transaction whose parent was removed
				// alone cannot be mined and the block is refused.
				_, _ = h.chain.GenerateBlock(txs)

			// Invalidate the tip or reconsider the last invalidated
			// block.
			case 5:
				if len(invalidated) > 0 && rapid.Bool().Draw(t, "reconsider") {
					hash := invalidated[len(invalidated)-1]
					invalidated = invalidated[:len(invalidated)-1]

					// The branch may no longer attach to the main
					// chain.
					_ = h.chain.ReconsiderBlock(&hash)
					break
				}
				if h.chain.BestHeight() == 0 {
					continue
				}
				tip := h.chain.BestHash()
				require.NoError(t, h.chain.InvalidateBlock(&tip))
				invalidated = append(invalidated, tip)
			}

			h.requireConsistent()
		}

		for _, result := range h.results {
			require.Zero(t, result.Errors, "result %v", result)
		}
	})
}

// acceptableRejection reports whether err is an expected outcome of offering
// a random transaction.
func acceptableRejection(err error) bool {
	if errors.Is(err, ErrTooLongMempoolChain) ||
		errors.Is(err, ErrValidationRejected) {

		return true
	}

	var ruleErr RuleError
	if errors.As(err, &ruleErr) {
		return ruleErr.ErrorCode == ErrDoubleSpend ||
			ruleErr.ErrorCode == ErrRecentlyRejected
	}
	return false
}

// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/pkgpool/chain"
	"github.com/stretchr/testify/require"
)

// TestConfirmRoot ensures confirming the root of a chain leaves its
// descendants in the pool with one ancestor fewer.
func TestConfirmRoot(t *testing.T) {
	t.Parallel()

	h := newPoolHarness(t, DefaultLimits())
	txs := h.createChain(h.funding[0], 4, 1000)
	h.acceptAll(txs)

	before := make(map[int]int64)
	for i, tx := range txs[1:] {
		before[i] = h.entry(tx).Ancestors.Count
	}

	h.mine(txs[0])
	result := h.lastResult()
	require.Equal(t, ReorgResult{Confirmed: 1}, result)

	require.False(t, h.pool.HaveTransaction(txs[0].Hash()))
	require.Equal(t, 3, h.pool.Count())
	for i, tx := range txs[1:] {
		entry := h.entry(tx)
		require.Equal(t, before[i]-1, entry.Ancestors.Count)
		require.EqualValues(t, 3-i, entry.Descendants.Count)
	}
	require.Empty(t, h.entry(txs[1]).Depends)
	h.requireConsistent()
}

// TestConflictEviction ensures a block spending a pool transaction's input
// evicts it along with its descendants.
func TestConflictEviction(t *testing.T) {
	t.Parallel()

	h := newPoolHarness(t, DefaultLimits())
	txs := h.createChain(h.funding[0], 3, 1000)
	h.acceptAll(txs)
	unrelated := h.createTx(h.funding[1:2], 1, 1000)
	h.accept(unrelated)

	recorder := &notificationRecorder{}
	h.pool.Subscribe(recorder.record)

	conflict := h.createTx(h.funding[:1], 2, 2500)
	h.mine(conflict)

	require.Equal(t, ReorgResult{Conflicted: 3}, h.lastResult())
	require.Equal(t, 1, h.pool.Count())
	require.True(t, h.pool.HaveTransaction(unrelated.Hash()))
	for _, tx := range txs {
		require.Equal(t, []RemovalReason{RemovedConflict},
			recorder.removed(*tx.Hash()))
	}
	h.requireConsistent()
}

// TestReorgPendingDelta ensures a delta set while a transaction is confirmed
// applies when a disconnect returns it to the pool, and that reconnecting the
// block empties the pool again.
func TestReorgPendingDelta(t *testing.T) {
	t.Parallel()

	h := newPoolHarness(t, DefaultLimits())
	tx := h.createTx(h.funding[:1], 1, 1000)
	h.accept(tx)
	block := h.mine(tx)
	tip := h.chain.BestHash()
	require.Zero(t, h.pool.Count())

	require.NoError(t, h.pool.PrioritiseTransaction(*tx.Hash(), 2000))
	delta, ok := h.pool.FeeDelta(*tx.Hash())
	require.True(t, ok)
	require.Equal(t, btcutil.Amount(2000), delta)

	require.NoError(t, h.chain.InvalidateBlock(block.Hash()))
	require.Equal(t, ReorgResult{Readmitted: 1}, h.lastResult())

	entry := h.entry(tx)
	require.Equal(t, btcutil.Amount(1000), entry.Fee)
	require.Equal(t, btcutil.Amount(2000), entry.FeeDelta)
	require.Equal(t, btcutil.Amount(3000), entry.ModifiedFee)
	require.Equal(t, btcutil.Amount(3000), entry.Descendants.Fees)

	require.NoError(t, h.chain.ReconsiderBlock(block.Hash()))
	require.Equal(t, ReorgResult{Confirmed: 1}, h.lastResult())
	require.Zero(t, h.pool.Count())
	require.Equal(t, tip, h.chain.BestHash())

	_, ok = h.pool.FeeDelta(*tx.Hash())
	require.False(t, ok)
}

// TestReorgPendingDeltaChain confirms a chain in one block, prioritises a
// middle link while it is confirmed, and disconnects the block.  The whole
// chain returns with the delta reflected in every package holding the link.
func TestReorgPendingDeltaChain(t *testing.T) {
	t.Parallel()

	const (
		n     = 5
		fee   = btcutil.Amount(1000)
		delta = btcutil.Amount(2000)
	)

	h := newPoolHarness(t, DefaultLimits())
	txs := h.createChain(h.funding[0], n, fee)
	h.acceptAll(txs)
	block := h.mine(txs...)
	tip := h.chain.BestHash()
	require.Zero(t, h.pool.Count())

	const middle = 2
	require.NoError(t, h.pool.PrioritiseTransaction(*txs[middle].Hash(),
		delta))

	require.NoError(t, h.chain.InvalidateBlock(block.Hash()))
	require.Equal(t, ReorgResult{Readmitted: n}, h.lastResult())

	for i, tx := range txs {
		entry := h.entry(tx)
		require.EqualValues(t, n-i, entry.Descendants.Count, "tx %d", i)
		require.EqualValues(t, i+1, entry.Ancestors.Count, "tx %d", i)

		descFees := btcutil.Amount(n-i) * fee
		if i <= middle {
			descFees += delta
		}
		ancFees := btcutil.Amount(i+1) * fee
		if i >= middle {
			ancFees += delta
		}
		require.Equal(t, descFees, entry.Descendants.Fees, "tx %d", i)
		require.Equal(t, ancFees, entry.Ancestors.Fees, "tx %d", i)
	}
	require.Equal(t, fee+delta, h.entry(txs[middle]).ModifiedFee)
	h.requireConsistent()

	require.NoError(t, h.chain.ReconsiderBlock(block.Hash()))
	require.Equal(t, ReorgResult{Confirmed: n}, h.lastResult())
	require.Zero(t, h.pool.Count())
	require.Equal(t, tip, h.chain.BestHash())
	require.Empty(t, h.pool.FeeDeltas())
}

// TestReorgLimits disconnects a block whose transactions no longer all fit
// the ancestor limit.
//
// The block holds the chain tx0 -> tx1 -> tx2 -> tx3 -> tx4, an unrelated
// tx5, tx6 spending tx4 and tx7 spending tx6.  While it is confirmed, tx8
// enters the pool spending tx7 and tx9 spending tx5.  On disconnect tx0
// through tx5 return, tx6 is over the ancestor limit, tx7 lost its input, and
// tx8 must be evicted.
func TestReorgLimits(t *testing.T) {
	t.Parallel()

	limits := DefaultLimits()
	limits.MaxAncestorCount = 5
	h := newPoolHarness(t, limits)

	txs := h.createChain(h.funding[0], 5, 1000)
	tx5 := h.createTx(h.funding[1:2], 1, 1000)
	tx6 := h.createTx(outputsOf(txs[4]), 1, 1000)
	tx7 := h.createTx(outputsOf(tx6), 1, 1000)
	txs = append(txs, tx5, tx6, tx7)
	block := h.mine(txs...)

	tx8 := h.createTx(outputsOf(tx7), 1, 1000)
	tx9 := h.createTx(outputsOf(tx5), 1, 1000)
	h.acceptAll([]*btcutil.Tx{tx8, tx9})
	require.EqualValues(t, 1, h.entry(tx9).Ancestors.Count)

	recorder := &notificationRecorder{}
	h.pool.Subscribe(recorder.record)

	require.NoError(t, h.chain.InvalidateBlock(block.Hash()))
	require.Equal(t, ReorgResult{Readmitted: 6, Rejected: 2, Evicted: 1},
		h.lastResult())

	for _, tx := range txs[:6] {
		require.True(t, h.pool.HaveTransaction(tx.Hash()))
	}
	for _, tx := range []*btcutil.Tx{tx6, tx7, tx8} {
		require.False(t, h.pool.HaveTransaction(tx.Hash()))
	}
	require.Equal(t, []RemovalReason{RemovedReorg},
		recorder.removed(*tx8.Hash()))
	require.Equal(t, 7, h.pool.Count())

	require.EqualValues(t, 5, h.entry(txs[4]).Ancestors.Count)
	require.EqualValues(t, 5, h.entry(txs[0]).Descendants.Count)

	// tx5 came back under its pool child.
	require.EqualValues(t, 2, h.entry(tx5).Descendants.Count)
	require.EqualValues(t, 2, h.entry(tx9).Ancestors.Count)
	require.Equal(t, btcutil.Amount(2000), h.entry(tx9).Ancestors.Fees)
	h.requireConsistent()
}

// TestReorgSwitchBranch reconsiders a longer branch over a shorter one that
// spent the same output.
func TestReorgSwitchBranch(t *testing.T) {
	t.Parallel()

	h := newPoolHarness(t, DefaultLimits())
	a := h.createTx(h.funding[:1], 1, 1000)
	b := h.createTx(h.funding[1:2], 1, 1000)
	block1 := h.mine(a)
	block2 := h.mine(b)

	require.NoError(t, h.chain.InvalidateBlock(block1.Hash()))
	require.Equal(t, ReorgResult{Readmitted: 2}, h.lastResult())
	require.Equal(t, 2, h.pool.Count())

	// A competing block double spends b.
	conflict := h.createTx(h.funding[1:2], 2, 3000)
	h.mine(conflict)
	require.Equal(t, ReorgResult{Conflicted: 1}, h.lastResult())
	require.False(t, h.pool.HaveTransaction(b.Hash()))

	// The original branch is longer and wins.  The conflict cannot come
	// back since b is confirmed again.
	require.NoError(t, h.chain.ReconsiderBlock(block1.Hash()))
	require.Equal(t, ReorgResult{Confirmed: 1, Rejected: 1}, h.lastResult())
	require.Equal(t, *block2.Hash(), h.chain.BestHash())
	require.Zero(t, h.pool.Count())
	h.requireConsistent()
}

// TestReorgSharedTransaction switches between branches that both confirm the
// same transaction.  It is not re-offered, and the pool child spending it
// keeps its input.
func TestReorgSharedTransaction(t *testing.T) {
	t.Parallel()

	h := newPoolHarness(t, DefaultLimits())
	a := h.createTx(h.funding[:1], 1, 1000)
	block1 := h.mine(a)
	block2 := h.mine()

	require.NoError(t, h.chain.InvalidateBlock(block1.Hash()))
	require.Equal(t, ReorgResult{Readmitted: 1}, h.lastResult())

	child := h.createTx(outputsOf(a), 1, 1000)
	h.accept(child)

	// A one block branch confirms a again.
	h.mine(a)
	require.Equal(t, ReorgResult{Confirmed: 1}, h.lastResult())
	require.EqualValues(t, 1, h.entry(child).Ancestors.Count)

	recorder := &notificationRecorder{}
	h.pool.Subscribe(recorder.record)

	// The original branch is longer and confirms a as well.
	require.NoError(t, h.chain.ReconsiderBlock(block1.Hash()))
	require.Equal(t, ReorgResult{}, h.lastResult())
	require.Equal(t, *block2.Hash(), h.chain.BestHash())

	require.False(t, h.pool.HaveTransaction(a.Hash()))
	require.True(t, h.pool.HaveTransaction(child.Hash()))
	require.Empty(t, recorder.removed(*child.Hash()))
	require.NotNil(t, h.chain.FetchUtxo(outputsOf(a)[0].outPoint))

	entry := h.entry(child)
	require.Empty(t, entry.Depends)
	require.EqualValues(t, 1, entry.Ancestors.Count)
	require.EqualValues(t, 1, entry.Descendants.Count)
	h.requireConsistent()
}

// TestChainListener drives the pool through the listener returned by
// ChainListener.
func TestChainListener(t *testing.T) {
	t.Parallel()

	c, err := chain.New(chain.DefaultParams())
	require.NoError(t, err)
	pool, err := New(&Config{
		Limits:     DefaultLimits(),
		Validator:  c,
		BestHeight: c.BestHeight,
	})
	require.NoError(t, err)
	c.Subscribe(ChainListener(pool))

	genesis, err := c.BlockByHeight(0)
	require.NoError(t, err)
	h := &poolHarness{
		t:       t,
		chain:   c,
		pool:    pool,
		funding: outputsOf(genesis.Transactions()[0]),
	}

	txs := h.createChain(h.funding[0], 2, 1000)
	h.acceptAll(txs)

	h.mine(txs[0])
	require.Equal(t, 1, pool.Count())

	_, err = c.DisconnectTip()
	require.NoError(t, err)
	require.Equal(t, 2, pool.Count())
	require.EqualValues(t, 2, h.entry(txs[0]).Descendants.Count)
	require.Zero(t, h.entry(txs[0]).Height)
	h.requireConsistent()

	// Notifications with unexpected data are ignored.
	result := pool.HandleChainNotification(&chain.Notification{
		Type: chain.NTBlockConnected,
		Data: "not a block",
	})
	require.Equal(t, ReorgResult{}, result)
}

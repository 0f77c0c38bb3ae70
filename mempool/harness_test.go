// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/pkgpool/chain"
	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/require"
)

// spendableOutput is an output the harness knows how to spend.
type spendableOutput struct {
	outPoint wire.OutPoint
	amount   btcutil.Amount
}

// outputsOf returns every output of tx as spendable.
func outputsOf(tx *btcutil.Tx) []spendableOutput {
	outputs := make([]spendableOutput, 0, len(tx.MsgTx().TxOut))
	for i, txOut := range tx.MsgTx().TxOut {
		outputs = append(outputs, spendableOutput{
			outPoint: wire.OutPoint{Hash: *tx.Hash(), Index: uint32(i)},
			amount:   btcutil.Amount(txOut.Value),
		})
	}
	return outputs
}

// harnessT is satisfied by both *testing.T and *rapid.T.
type harnessT interface {
	require.TestingT
	Helper()
}

// poolHarness couples a pool to an in-memory chain the way a node would: the
// chain validates transactions for the pool and its block notifications keep
// the pool current.
type poolHarness struct {
	t     harnessT
	chain *chain.Chain
	pool  *TxPool

	// results holds the outcome of every chain notification the pool
	// handled.
	results []ReorgResult

	// funding holds the genesis coinbase outputs.
	funding []spendableOutput
}

// newPoolHarness returns a harness whose pool enforces the passed limits.
func newPoolHarness(t harnessT, limits Limits) *poolHarness {
	t.Helper()

	c, err := chain.New(chain.DefaultParams())
	require.NoError(t, err)

	clock := time.Unix(1700000000, 0)
	pool, err := New(&Config{
		Limits:     limits,
		Validator:  c,
		BestHeight: c.BestHeight,
		TimeSource: func() time.Time { return clock },
	})
	require.NoError(t, err)

	genesis, err := c.BlockByHeight(0)
	require.NoError(t, err)

	h := &poolHarness{
		t:       t,
		chain:   c,
		pool:    pool,
		funding: outputsOf(genesis.Transactions()[0]),
	}
	c.Subscribe(func(n *chain.Notification) {
		h.results = append(h.results, pool.HandleChainNotification(n))
	})
	return h
}

// lastResult returns the outcome of the most recent chain notification.
func (h *poolHarness) lastResult() ReorgResult {
	h.t.Helper()

	require.NotEmpty(h.t, h.results)
	return h.results[len(h.results)-1]
}

// createTx returns a transaction spending the inputs into numOutputs equal
// outputs and paying exactly fee.
func (h *poolHarness) createTx(inputs []spendableOutput, numOutputs int,
	fee btcutil.Amount) *btcutil.Tx {

	h.t.Helper()

	var total btcutil.Amount
	tx := wire.NewMsgTx(wire.TxVersion)
	for _, input := range inputs {
		tx.AddTxIn(wire.NewTxIn(&input.outPoint, nil, nil))
		total += input.amount
	}

	spend := total - fee
	require.Positive(h.t, int64(spend), "inputs do not cover the fee")
	each := spend / btcutil.Amount(numOutputs)
	for i := 0; i < numOutputs; i++ {
		amount := each
		if i == numOutputs-1 {
			amount = spend - each*btcutil.Amount(numOutputs-1)
		}
		tx.AddTxOut(wire.NewTxOut(int64(amount),
			[]byte{txscript.OP_TRUE}))
	}

	return btcutil.NewTx(tx)
}

// createChain returns n transactions, each spending the single output of the
// previous one, starting from input.
func (h *poolHarness) createChain(input spendableOutput, n int,
	fee btcutil.Amount) []*btcutil.Tx {

	h.t.Helper()

	txs := make([]*btcutil.Tx, 0, n)
	for i := 0; i < n; i++ {
		tx := h.createTx([]spendableOutput{input}, 1, fee)
		txs = append(txs, tx)
		input = outputsOf(tx)[0]
	}
	return txs
}

// accept offers tx to the pool and requires it to be accepted.
func (h *poolHarness) accept(tx *btcutil.Tx) *EntrySnapshot {
	h.t.Helper()

	entry, err := h.pool.MaybeAcceptTransaction(tx)
	require.NoError(h.t, err, "accept %v", tx.Hash())
	return entry
}

// acceptAll accepts every transaction in order.
func (h *poolHarness) acceptAll(txs []*btcutil.Tx) {
	h.t.Helper()

	for _, tx := range txs {
		h.accept(tx)
	}
}

// entry returns the current snapshot of tx.
func (h *poolHarness) entry(tx *btcutil.Tx) *EntrySnapshot {
	h.t.Helper()

	entry, err := h.pool.FetchEntry(tx.Hash())
	require.NoError(h.t, err)
	return entry
}

// mine generates a block holding txs.
func (h *poolHarness) mine(txs ...*btcutil.Tx) *btcutil.Block {
	h.t.Helper()

	block, err := h.chain.GenerateBlock(txs)
	require.NoError(h.t, err)
	return block
}

// requireConsistent checks the cached stats of every entry against closures
// computed independently from the Depends lists.
func (h *poolHarness) requireConsistent() {
	h.t.Helper()

	require.NoError(h.t, h.pool.CheckConsistency())

	entries := h.pool.Entries()
	byHash := make(map[chainhash.Hash]*EntrySnapshot, len(entries))
	children := make(map[chainhash.Hash][]chainhash.Hash)
	for _, entry := range entries {
		byHash[entry.Hash] = entry
		for _, parent := range entry.Depends {
			children[parent] = append(children[parent], entry.Hash)
		}
	}

	closure := func(start chainhash.Hash,
		next func(chainhash.Hash) []chainhash.Hash) PackageStats {

		seen := map[chainhash.Hash]struct{}{start: {}}
		stack := []chainhash.Hash{start}
		var stats PackageStats
		for len(stack) > 0 {
			hash := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			e := byHash[hash]
			stats.add(e.Size, e.ModifiedFee)
			for _, n := range next(hash) {
				if _, ok := seen[n]; !ok {
					seen[n] = struct{}{}
					stack = append(stack, n)
				}
			}
		}
		return stats
	}

	parentsOf := func(hash chainhash.Hash) []chainhash.Hash {
		return byHash[hash].Depends
	}
	childrenOf := func(hash chainhash.Hash) []chainhash.Hash {
		return children[hash]
	}
	for hash, entry := range byHash {
		require.Equal(h.t, closure(hash, parentsOf), entry.Ancestors,
			"ancestors of %v: %v", hash, spew.Sdump(entry))
		require.Equal(h.t, closure(hash, childrenOf), entry.Descendants,
			"descendants of %v: %v", hash, spew.Sdump(entry))
	}
}

// notificationRecorder collects pool notifications.
type notificationRecorder struct {
	notifications []*Notification
}

func (r *notificationRecorder) record(n *Notification) {
	r.notifications = append(r.notifications, n)
}

// removed returns the reasons of every NTTxRemoved for hash.
func (r *notificationRecorder) removed(hash chainhash.Hash) []RemovalReason {
	var reasons []RemovalReason
	for _, n := range r.notifications {
		if n.Type != NTTxRemoved {
			continue
		}
		data := n.Data.(*TxRemovedData)
		if *data.Tx.Hash() == hash {
			reasons = append(reasons, data.Reason)
		}
	}
	return reasons
}

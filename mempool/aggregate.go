// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/pkgpool/mempool/txgraph"
)

// entryForNode returns the ledger entry of a graph node.  Every node in the
// dependency index must have one.
//
// This function MUST be called with the mempool lock held (for reads).
func (mp *TxPool) entryForNode(node *txgraph.TxGraphNode) (*TxEntry, error) {
	entry, ok := mp.pool[node.TxHash]
	if !ok {
		str := fmt.Sprintf("graph node %v has no ledger entry",
			node.TxHash)
		return nil, AssertError(str)
	}
	return entry, nil
}

// entriesForNodes maps graph nodes to their ledger entries, preserving order.
//
// This function MUST be called with the mempool lock held (for reads).
func (mp *TxPool) entriesForNodes(
	nodes []*txgraph.TxGraphNode) ([]*TxEntry, error) {

	entries := make([]*TxEntry, 0, len(nodes))
	for _, node := range nodes {
		entry, err := mp.entryForNode(node)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// applyAdmission brings the package stats up to date after entry was inserted
// into the ledger and the dependency index.
//
// When the new entry has no in-pool children, which is always the case for
// transactions arriving from outside, its ancestor stats are summed from the
// package and it is folded into the descendant stats of every ancestor.
// A re-admitted block transaction may already have children, in which case
// the new entry, its ancestors and the descendants it connects to are
// recomputed from their closures.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) applyAdmission(entry *TxEntry, pkg *prospectivePackage) error {
	if len(pkg.descendants) == 0 {
		for _, ancestor := range pkg.ancestors {
			entry.ancestors.add(ancestor.Size, ancestor.ModifiedFee())
			ancestor.descendants.add(entry.Size, entry.ModifiedFee())
		}
		return nil
	}

	affected := make([]*TxEntry, 0,
		1+len(pkg.ancestors)+len(pkg.descendants))
	affected = append(affected, entry)
	affected = append(affected, pkg.ancestors...)
	affected = append(affected, pkg.descendants...)
	for _, e := range affected {
		if err := mp.recompute(e); err != nil {
			return err
		}
	}
	return nil
}

// propagateFeeDelta adds diff to the fee totals of entry and to those of
// every entry whose closure contains it. No other entry is touched.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) propagateFeeDelta(entry *TxEntry, diff btcutil.Amount) error {
	hash := *entry.Hash()
	ancestors, err := mp.entriesForNodes(mp.graph.GetAncestors(hash))
	if err != nil {
		return err
	}
	descendants, err := mp.entriesForNodes(mp.graph.GetDescendants(hash))
	if err != nil {
		return err
	}

	entry.ancestors.Fees += diff
	entry.descendants.Fees += diff
	for _, ancestor := range ancestors {
		ancestor.descendants.Fees += diff
	}
	for _, descendant := range descendants {
		descendant.ancestors.Fees += diff
	}
	return nil
}

// markStale flags the entries of the passed nodes for recomputation.  Nodes
// without a ledger entry are ignored since they are about to leave the pool
// along with the mutation that found them.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) markStale(nodes []*txgraph.TxGraphNode) {
	for _, node := range nodes {
		entry, ok := mp.pool[node.TxHash]
		if !ok || entry.stale {
			continue
		}
		entry.stale = true
		mp.staleEntries = append(mp.staleEntries, entry)
	}
}

// refreshStale recomputes every entry marked stale that is still in the pool.
// The first error is returned but every remaining entry is still refreshed so
// a single inconsistency does not spread.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) refreshStale() error {
	var firstErr error
	for _, entry := range mp.staleEntries {
		entry.stale = false
		if mp.pool[*entry.Hash()] != entry {
			continue
		}
		if err := mp.recompute(entry); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	mp.staleEntries = mp.staleEntries[:0]
	return firstErr
}

// computeStats sums the ancestor and descendant stats of an entry from its
// closures in the dependency index.
//
// This function MUST be called with the mempool lock held (for reads).
func (mp *TxPool) computeStats(entry *TxEntry) (PackageStats, PackageStats,
	error) {

	var anc, desc PackageStats
	anc.add(entry.Size, entry.ModifiedFee())
	desc.add(entry.Size, entry.ModifiedFee())

	hash := *entry.Hash()
	for _, node := range mp.graph.GetAncestors(hash) {
		ancestor, err := mp.entryForNode(node)
		if err != nil {
			return anc, desc, err
		}
		anc.add(ancestor.Size, ancestor.ModifiedFee())
	}
	for _, node := range mp.graph.GetDescendants(hash) {
		descendant, err := mp.entryForNode(node)
		if err != nil {
			return anc, desc, err
		}
		desc.add(descendant.Size, descendant.ModifiedFee())
	}

	return anc, desc, nil
}

// recompute replaces the cached stats of an entry with freshly summed ones.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) recompute(entry *TxEntry) error {
	anc, desc, err := mp.computeStats(entry)
	if err != nil {
		return err
	}
	entry.ancestors = anc
	entry.descendants = desc
	return nil
}

// checkConsistency verifies the cached stats of every entry against its
// closures and that the ledger and the dependency index hold the same set.
//
// This function MUST be called with the mempool lock held (for reads).
func (mp *TxPool) checkConsistency() error {
	if n := mp.graph.GetNodeCount(); n != len(mp.pool) {
		str := fmt.Sprintf("dependency index holds %d transactions, "+
			"ledger holds %d", n, len(mp.pool))
		return AssertError(str)
	}

	for hash, entry := range mp.pool {
		if !mp.graph.HasTransaction(hash) {
			str := fmt.Sprintf("ledger entry %v is not indexed", hash)
			return AssertError(str)
		}
		anc, desc, err := mp.computeStats(entry)
		if err != nil {
			return err
		}
		if anc != entry.ancestors {
			return statsMismatch(hash, "ancestor", entry.ancestors, anc)
		}
		if desc != entry.descendants {
			return statsMismatch(hash, "descendant", entry.descendants,
				desc)
		}
	}
	return nil
}

// CheckConsistency returns an AssertError if any cached package statistic
// disagrees with the dependency index.  It walks every closure and is meant
// for tests and debugging.
//
// This function is safe for concurrent access.
func (mp *TxPool) CheckConsistency() error {
	mp.mtx.RLock()
	defer mp.mtx.RUnlock()

	return mp.checkConsistency()
}

func statsMismatch(hash chainhash.Hash, which string, cached,
	actual PackageStats) error {

	str := fmt.Sprintf("%s stats of %v are %+v, closure sums to %+v",
		which, hash, cached, actual)
	return AssertError(str)
}

package txgraph

import (
	"iter"
	"slices"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Iterate returns an iterator over graph nodes. The graph read lock is held
// while the iterator runs, so the loop body must not mutate the graph.
func (g *TxGraph) Iterate(options ...IterOption) iter.Seq[*TxGraphNode] {
	opts := DefaultIteratorOption()
	for _, option := range options {
		option(&opts)
	}

	return func(yield func(*TxGraphNode) bool) {
		g.mu.RLock()
		defer g.mu.RUnlock()

		filtered := func(n *TxGraphNode) bool {
			if opts.Filter != nil && !opts.Filter(n) {
				return true
			}
			return yield(n)
		}

		switch opts.Order {
		case TraversalDefault:
			for _, node := range g.sortedNodes() {
				if !filtered(node) {
					return
				}
			}

		case TraversalTopological:
			g.iterateTopological(parentsOf, childrenOf, filtered)

		case TraversalReverseTopo:
			g.iterateTopological(childrenOf, parentsOf, filtered)

		case TraversalAncestors, TraversalDescendants:
			if opts.StartNode == nil {
				return
			}
			start, exists := g.nodes[*opts.StartNode]
			if !exists {
				return
			}
			if opts.IncludeStart && !filtered(start) {
				return
			}

			next := neighbours(parentsOf)
			if opts.Order == TraversalDescendants {
				next = childrenOf
			}
			g.walk(start, next, opts.MaxDepth, filtered)
		}
	}
}

// sortedNodes returns every node in insertion order. Must be called with the
// lock held.
func (g *TxGraph) sortedNodes() []*TxGraphNode {
	return bySeq(g.nodes)
}

// iterateTopological runs Kahn's algorithm over the whole graph. With
// in=parentsOf and out=childrenOf every parent is yielded before its
// children; swapping them gives the reverse order. Ties are broken by
// insertion order.
func (g *TxGraph) iterateTopological(in, out neighbours,
	yield func(*TxGraphNode) bool) {

	degree := make(map[chainhash.Hash]int, len(g.nodes))
	queue := NewQueue[*TxGraphNode](len(g.nodes))
	for _, node := range g.sortedNodes() {
		degree[node.TxHash] = len(in(node))
		if degree[node.TxHash] == 0 {
			queue.Enqueue(node)
		}
	}

	for {
		node, ok := queue.Dequeue()
		if !ok {
			return
		}
		if !yield(node) {
			return
		}

		for _, next := range bySeq(out(node)) {
			degree[next.TxHash]--
			if degree[next.TxHash] == 0 {
				queue.Enqueue(next)
			}
		}
	}
}

// TopologicalSort orders txs so that every transaction comes after any of
// the passed transactions it spends from. Transactions with no ordering
// constraint between them keep their relative input order, and duplicates
// are dropped. The graph is not consulted; this is used to order
// transactions that are about to be (re)inserted.
func TopologicalSort(txs []*btcutil.Tx) []*btcutil.Tx {
	index := make(map[chainhash.Hash]int, len(txs))
	unique := make([]*btcutil.Tx, 0, len(txs))
	for _, tx := range txs {
		if _, dup := index[*tx.Hash()]; dup {
			continue
		}
		index[*tx.Hash()] = len(unique)
		unique = append(unique, tx)
	}

	inDegree := make([]int, len(unique))
	children := make([][]int, len(unique))
	for i, tx := range unique {
		parents := make(map[int]struct{})
		for _, txIn := range tx.MsgTx().TxIn {
			p, ok := index[txIn.PreviousOutPoint.Hash]
			if !ok || p == i {
				continue
			}
			parents[p] = struct{}{}
		}
		for p := range parents {
			children[p] = append(children[p], i)
			inDegree[i]++
		}
	}

	// A ready set ordered by original position keeps the result stable.
	var ready []int
	for i := range unique {
		if inDegree[i] == 0 {
			ready = append(ready, i)
		}
	}

	sorted := make([]*btcutil.Tx, 0, len(unique))
	for len(ready) > 0 {
		i := ready[0]
		ready = ready[1:]
		sorted = append(sorted, unique[i])

		for _, c := range children[i] {
			inDegree[c]--
			if inDegree[c] == 0 {
				pos, _ := slices.BinarySearch(ready, c)
				ready = slices.Insert(ready, pos, c)
			}
		}
	}

	return sorted
}

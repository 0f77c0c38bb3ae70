// Package txgraph provides the dependency index of the mempool: a
// bidirectional graph of spends between unconfirmed transactions.
//
// # Graph Structure
//
// Every transaction is a node. When a transaction spends an output created by
// another transaction in the graph, an edge is created from parent to child
// and recorded on both ends (Parents and Children). Inputs whose creating
// transaction is not in the graph, typically because it is confirmed, are
// external and produce no edge.
//
// Insertion also links existing children: if a graph transaction already
// spends an output of the transaction being added, the edge is created then.
// This is what lets a transaction from a disconnected block rejoin the
// children it left behind when it was confirmed.
//
// # Removal
//
// RemoveTransactionNoCascade deletes a node and its incident edges only. It is
// used for confirmation: the children stay and simply lose a parent.
// RemoveTransaction deletes a node together with every descendant, which is
// what conflicts and invalidations need.
//
// # Closures
//
// GetAncestors and GetDescendants return the transitive closure of a node,
// excluding the node itself, in breadth-first discovery order. A visited set
// keeps diamond shaped graphs linear in the closure size. The graph is a DAG
// by construction and no cycle check is performed.
//
// # Iteration
//
// The graph supports several orders using iter.Seq:
//
//	// Parents before children.
//	for node := range graph.Iterate(WithOrder(TraversalTopological)) {
//	    // Process node
//	}
//
//	// Ancestors of a specific transaction, at most two levels up.
//	for node := range graph.Iterate(
//	    WithOrder(TraversalAncestors),
//	    WithStartNode(&txHash),
//	    WithMaxDepth(2),
//	) {
//	    // Process ancestor
//	}
//
// TopologicalSort orders transactions that are not in the graph yet, which is
// how a reorg re-admits a disconnected block's transactions parents first.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Iterators hold the read lock for
// the duration of the loop.
package txgraph

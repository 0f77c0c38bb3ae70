package txgraph

import (
	"iter"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// TxDesc carries the ledger values the graph keeps alongside each node. The
// mempool owns the authoritative copy; this one lets graph level tooling
// (iteration filters, dumps) see sizes and fees without a pool lookup.
type TxDesc struct {
	// TxHash is the transaction identifier used for graph lookups.
	TxHash chainhash.Hash

	// Size is the serialized size of the transaction in bytes.
	Size int64

	// Fee is the base fee paid by the transaction in satoshis.
	Fee int64

	// Added is the time the transaction entered the graph.
	Added time.Time
}

// GraphMetrics provides statistics about the transaction graph.
type GraphMetrics struct {
	// NodeCount is the number of transactions in the graph.
	NodeCount int

	// EdgeCount is the number of parent-child spend relationships.
	EdgeCount int
}

// TxGraphNode represents a single transaction in the graph.
type TxGraphNode struct {
	// TxHash enables O(1) lookups in maps without dereferencing Tx.
	TxHash chainhash.Hash

	// Tx provides access to inputs and outputs for edge creation.
	Tx *btcutil.Tx

	// TxDesc stores the fee and size recorded at insertion.
	TxDesc *TxDesc

	// Parents maps to in-graph transactions whose outputs this one
	// spends.
	Parents map[chainhash.Hash]*TxGraphNode

	// Children maps to in-graph transactions spending this one's outputs.
	Children map[chainhash.Hash]*TxGraphNode

	// seq is the insertion sequence number. Traversals visit neighbours
	// in seq order so closures come back in a stable discovery order.
	seq uint64
}

// Seq returns the insertion sequence number of the node.
func (n *TxGraphNode) Seq() uint64 {
	return n.seq
}

// Graph is the read and write surface of the dependency index.
type Graph interface {
	// AddTransaction inserts tx and wires it to every in-graph parent
	// and to every in-graph child already spending its outputs.
	AddTransaction(tx *btcutil.Tx, desc *TxDesc) error

	// RemoveTransaction removes hash together with all of its
	// descendants and returns the removed hashes, children first.
	RemoveTransaction(hash chainhash.Hash) ([]chainhash.Hash, error)

	// RemoveTransactionNoCascade removes hash and its incident edges
	// only. Descendants stay in the graph.
	RemoveTransactionNoCascade(hash chainhash.Hash) error

	// GetNode retrieves a node from the graph.
	GetNode(hash chainhash.Hash) (*TxGraphNode, bool)

	// HasTransaction reports whether hash is in the graph.
	HasTransaction(hash chainhash.Hash) bool

	// GetAncestors returns the ancestor closure of hash, without hash
	// itself, in discovery order.
	GetAncestors(hash chainhash.Hash) []*TxGraphNode

	// GetDescendants returns the descendant closure of hash, without
	// hash itself, in discovery order.
	GetDescendants(hash chainhash.Hash) []*TxGraphNode

	// GetSpender returns the in-graph transaction spending op.
	GetSpender(op wire.OutPoint) (*TxGraphNode, bool)

	// GetConflicts returns the in-graph transactions that spend any
	// outpoint also spent by tx.
	GetConflicts(tx *btcutil.Tx) []*TxGraphNode

	// Iterate returns an iterator over graph nodes.
	Iterate(options ...IterOption) iter.Seq[*TxGraphNode]

	// GetNodeCount returns the number of nodes in the graph.
	GetNodeCount() int

	// GetMetrics returns the current graph metrics.
	GetMetrics() GraphMetrics
}

// TraversalOrder defines the traversal strategy for graph iteration.
type TraversalOrder uint8

const (
	// TraversalDefault iterates all nodes in insertion order.
	TraversalDefault TraversalOrder = iota

	// TraversalTopological visits parents before children.
	TraversalTopological

	// TraversalReverseTopo visits children before parents.
	TraversalReverseTopo

	// TraversalAncestors visits the ancestors of the start node.
	TraversalAncestors

	// TraversalDescendants visits the descendants of the start node.
	TraversalDescendants
)

// IteratorOption configures graph iteration.
type IteratorOption struct {
	// Order selects the traversal strategy.
	Order TraversalOrder

	// StartNode anchors the ancestor and descendant traversals.
	StartNode *chainhash.Hash

	// MaxDepth bounds ancestor and descendant traversals. A negative
	// value means unbounded.
	MaxDepth int

	// Filter skips nodes for which it returns false. Skipped nodes are
	// still traversed through.
	Filter func(*TxGraphNode) bool

	// IncludeStart yields the start node itself first.
	IncludeStart bool
}

// DefaultIteratorOption returns the default iteration options.
func DefaultIteratorOption() IteratorOption {
	return IteratorOption{
		Order:    TraversalDefault,
		MaxDepth: -1,
	}
}

// IterOption is a functional option for configuring iteration.
type IterOption func(*IteratorOption)

// WithOrder sets the traversal order.
func WithOrder(order TraversalOrder) IterOption {
	return func(o *IteratorOption) {
		o.Order = order
	}
}

// WithMaxDepth bounds the traversal depth.
func WithMaxDepth(depth int) IterOption {
	return func(o *IteratorOption) {
		o.MaxDepth = depth
	}
}

// WithFilter sets a node filter.
func WithFilter(filter func(*TxGraphNode) bool) IterOption {
	return func(o *IteratorOption) {
		o.Filter = filter
	}
}

// WithStartNode sets the start node for ancestor and descendant traversal.
func WithStartNode(hash *chainhash.Hash) IterOption {
	return func(o *IteratorOption) {
		o.StartNode = hash
	}
}

// WithIncludeStart controls whether the start node is yielded.
func WithIncludeStart(include bool) IterOption {
	return func(o *IteratorOption) {
		o.IncludeStart = include
	}
}

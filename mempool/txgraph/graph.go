package txgraph

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

var (
	// ErrTransactionExists is returned when attempting to add a duplicate
	// transaction.
	ErrTransactionExists = errors.New("transaction already exists in graph")

	// ErrNodeNotFound is returned when a node is not found in the graph.
	ErrNodeNotFound = errors.New("node not found in graph")

	// ErrGraphFull is returned when the graph has reached MaxNodes.
	ErrGraphFull = errors.New("graph at capacity")
)

// Config defines configuration for the transaction graph.
type Config struct {
	// MaxNodes limits graph capacity to prevent unbounded memory growth.
	// When reached, new transaction additions are rejected.
	MaxNodes int
}

// DefaultConfig returns the default graph configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxNodes: 100000,
	}
}

// TxGraph implements the Graph interface.
//
// The spend graph is acyclic by construction: a transaction cannot spend an
// output of itself or of any of its descendants. The graph relies on the
// validation layer for that and does not check it.
type TxGraph struct {
	config *Config

	// nodes stores every transaction currently in the graph.
	nodes map[chainhash.Hash]*TxGraphNode

	// spentBy maps every outpoint spent by a graph transaction to that
	// transaction, whether or not the creating transaction is in the
	// graph. It is used to link children on insertion of a parent and
	// to find conflicts.
	spentBy map[wire.OutPoint]*TxGraphNode

	// metrics are updated atomically so they can be read without the
	// graph lock.
	metrics struct {
		nodeCount int32
		edgeCount int32
	}

	// nextSeq is the insertion sequence counter. Protected by mu.
	nextSeq uint64

	// mu protects the graph structure.
	mu sync.RWMutex
}

// Ensure TxGraph implements the Graph interface.
var _ Graph = (*TxGraph)(nil)

// New creates a new transaction graph.
func New(config *Config) *TxGraph {
	if config == nil {
		config = DefaultConfig()
	}

	return &TxGraph{
		config:  config,
		nodes:   make(map[chainhash.Hash]*TxGraphNode),
		spentBy: make(map[wire.OutPoint]*TxGraphNode),
	}
}

// AddTransaction adds a transaction to the graph.
func (g *TxGraph) AddTransaction(tx *btcutil.Tx, desc *TxDesc) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	hash := tx.Hash()
	if _, exists := g.nodes[*hash]; exists {
		return ErrTransactionExists
	}

	if len(g.nodes) >= g.config.MaxNodes {
		return fmt.Errorf("%w: %d nodes", ErrGraphFull,
			g.config.MaxNodes)
	}

	if desc == nil {
		desc = &TxDesc{
			TxHash: *hash,
			Size:   int64(tx.MsgTx().SerializeSize()),
			Added:  time.Now(),
		}
	}

	g.nextSeq++
	node := &TxGraphNode{
		TxHash:   *hash,
		Tx:       tx,
		TxDesc:   desc,
		Parents:  make(map[chainhash.Hash]*TxGraphNode),
		Children: make(map[chainhash.Hash]*TxGraphNode),
		seq:      g.nextSeq,
	}
	g.nodes[*hash] = node

	// Wire edges to parents already in the graph. Inputs whose creating
	// transaction is absent are external and stay unlinked.
	for _, txIn := range tx.MsgTx().TxIn {
		g.spentBy[txIn.PreviousOutPoint] = node

		parentHash := txIn.PreviousOutPoint.Hash
		parent, exists := g.nodes[parentHash]
		if !exists || parent == node {
			continue
		}
		if _, linked := node.Parents[parentHash]; linked {
			continue
		}
		node.Parents[parentHash] = parent
		parent.Children[*hash] = node
		atomic.AddInt32(&g.metrics.edgeCount, 1)
	}

	// Wire edges to children that already spend this transaction. This
	// happens when a confirmed parent is re-added after its block was
	// disconnected while its children stayed in the graph.
	for i := range tx.MsgTx().TxOut {
		op := wire.OutPoint{Hash: *hash, Index: uint32(i)}
		child, exists := g.spentBy[op]
		if !exists {
			continue
		}
		if _, linked := node.Children[child.TxHash]; linked {
			continue
		}
		node.Children[child.TxHash] = child
		child.Parents[*hash] = node
		atomic.AddInt32(&g.metrics.edgeCount, 1)
	}

	atomic.AddInt32(&g.metrics.nodeCount, 1)

	return nil
}

// RemoveTransaction removes a transaction and all of its descendants from the
// graph. This is used when a transaction is evicted or invalidated, since
// every descendant spends an output that no longer exists. The removed hashes
// are returned children first.
func (g *TxGraph) RemoveTransaction(
	hash chainhash.Hash) ([]chainhash.Hash, error) {

	g.mu.Lock()
	defer g.mu.Unlock()

	node, exists := g.nodes[hash]
	if !exists {
		return nil, ErrNodeNotFound
	}

	toRemove := append([]*TxGraphNode{node}, g.collect(
		node, childrenOf, -1,
	)...)

	removed := make([]chainhash.Hash, 0, len(toRemove))
	for i := len(toRemove) - 1; i >= 0; i-- {
		g.removeTransactionUnsafe(toRemove[i])
		removed = append(removed, toRemove[i].TxHash)
	}

	return removed, nil
}

// RemoveTransactionNoCascade removes a transaction without removing its
// descendants. This is used when a transaction is confirmed in a block: it
// leaves the graph but its children remain valid since they now spend a
// confirmed output.
func (g *TxGraph) RemoveTransactionNoCascade(hash chainhash.Hash) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	node, exists := g.nodes[hash]
	if !exists {
		return ErrNodeNotFound
	}

	g.removeTransactionUnsafe(node)

	return nil
}

// removeTransactionUnsafe removes a single node and every incident edge. Must
// be called with the lock held.
func (g *TxGraph) removeTransactionUnsafe(node *TxGraphNode) {
	for parentHash, parent := range node.Parents {
		delete(parent.Children, node.TxHash)
		delete(node.Parents, parentHash)
		atomic.AddInt32(&g.metrics.edgeCount, -1)
	}

	for childHash, child := range node.Children {
		delete(child.Parents, node.TxHash)
		delete(node.Children, childHash)
		atomic.AddInt32(&g.metrics.edgeCount, -1)
	}

	for _, txIn := range node.Tx.MsgTx().TxIn {
		if g.spentBy[txIn.PreviousOutPoint] == node {
			delete(g.spentBy, txIn.PreviousOutPoint)
		}
	}

	delete(g.nodes, node.TxHash)
	atomic.AddInt32(&g.metrics.nodeCount, -1)
}

// GetNode retrieves a node from the graph.
func (g *TxGraph) GetNode(hash chainhash.Hash) (*TxGraphNode, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	node, exists := g.nodes[hash]
	return node, exists
}

// HasTransaction checks if a transaction exists in the graph.
func (g *TxGraph) HasTransaction(hash chainhash.Hash) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	_, exists := g.nodes[hash]
	return exists
}

// GetAncestors returns all in-graph ancestors of a transaction in discovery
// order. The transaction itself is not included. Nil is returned for an
// unknown hash.
func (g *TxGraph) GetAncestors(hash chainhash.Hash) []*TxGraphNode {
	g.mu.RLock()
	defer g.mu.RUnlock()

	node, exists := g.nodes[hash]
	if !exists {
		return nil
	}

	return g.collect(node, parentsOf, -1)
}

// GetDescendants returns all in-graph descendants of a transaction in
// discovery order. The transaction itself is not included. Nil is returned for
// an unknown hash.
func (g *TxGraph) GetDescendants(hash chainhash.Hash) []*TxGraphNode {
	g.mu.RLock()
	defer g.mu.RUnlock()

	node, exists := g.nodes[hash]
	if !exists {
		return nil
	}

	return g.collect(node, childrenOf, -1)
}

// GetSpender returns the graph transaction spending the passed outpoint.
func (g *TxGraph) GetSpender(op wire.OutPoint) (*TxGraphNode, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	node, exists := g.spentBy[op]
	return node, exists
}

// GetConflicts returns the graph transactions that spend an outpoint also
// spent by tx, excluding tx itself. Descendants of the conflicts are not
// included; callers evict them with RemoveTransaction.
func (g *TxGraph) GetConflicts(tx *btcutil.Tx) []*TxGraphNode {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var (
		conflicts []*TxGraphNode
		seen      = make(map[chainhash.Hash]struct{})
	)
	for _, txIn := range tx.MsgTx().TxIn {
		node, exists := g.spentBy[txIn.PreviousOutPoint]
		if !exists || node.TxHash == *tx.Hash() {
			continue
		}
		if _, dup := seen[node.TxHash]; dup {
			continue
		}
		seen[node.TxHash] = struct{}{}
		conflicts = append(conflicts, node)
	}

	return conflicts
}

// GetMetrics returns current graph metrics.
func (g *TxGraph) GetMetrics() GraphMetrics {
	return GraphMetrics{
		NodeCount: int(atomic.LoadInt32(&g.metrics.nodeCount)),
		EdgeCount: int(atomic.LoadInt32(&g.metrics.edgeCount)),
	}
}

// GetNodeCount returns the number of nodes in the graph.
func (g *TxGraph) GetNodeCount() int {
	return int(atomic.LoadInt32(&g.metrics.nodeCount))
}

// neighbours selects one direction of the spend relation.
type neighbours func(*TxGraphNode) map[chainhash.Hash]*TxGraphNode

func parentsOf(n *TxGraphNode) map[chainhash.Hash]*TxGraphNode {
	return n.Parents
}

func childrenOf(n *TxGraphNode) map[chainhash.Hash]*TxGraphNode {
	return n.Children
}

// bySeq returns the nodes of m in insertion order.
func bySeq(m map[chainhash.Hash]*TxGraphNode) []*TxGraphNode {
	nodes := make([]*TxGraphNode, 0, len(m))
	for _, n := range m {
		nodes = append(nodes, n)
	}
	slices.SortFunc(nodes, func(a, b *TxGraphNode) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})

	return nodes
}

// collect performs a breadth-first walk from start in the direction given by
// next and returns every node reached, excluding start. The visited set keeps
// diamond shaped graphs linear in the closure size. Must be called with the
// lock held.
func (g *TxGraph) collect(start *TxGraphNode, next neighbours,
	maxDepth int) []*TxGraphNode {

	var result []*TxGraphNode
	g.walk(start, next, maxDepth, func(n *TxGraphNode) bool {
		result = append(result, n)
		return true
	})

	return result
}

// walk visits every node reachable from start through next, excluding start,
// in breadth-first discovery order. It stops early when yield returns false.
func (g *TxGraph) walk(start *TxGraphNode, next neighbours, maxDepth int,
	yield func(*TxGraphNode) bool) bool {

	type item struct {
		node  *TxGraphNode
		depth int
	}

	visited := map[chainhash.Hash]struct{}{start.TxHash: {}}
	queue := NewQueue[item](len(next(start)))
	for _, n := range bySeq(next(start)) {
		visited[n.TxHash] = struct{}{}
		queue.Enqueue(item{node: n, depth: 1})
	}

	for queue.Len() > 0 {
		it, _ := queue.Dequeue()
		if maxDepth >= 0 && it.depth > maxDepth {
			continue
		}
		if !yield(it.node) {
			return false
		}

		for _, n := range bySeq(next(it.node)) {
			if _, seen := visited[n.TxHash]; seen {
				continue
			}
			visited[n.TxHash] = struct{}{}
			queue.Enqueue(item{node: n, depth: it.depth + 1})
		}
	}
	return true
}

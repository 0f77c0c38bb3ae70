// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

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
	"github.com/btcsuite/pkgpool/mempool/txgraph"
	"github.com/decred/dcrd/lru"
)

const (
	// DefaultMaxRecentRejects is the default number of transaction hashes
	// remembered as rejected for package limits since the last tip change.
	DefaultMaxRecentRejects = 1000
)

// AdmissionState is the state of a transaction offered to the pool.
type AdmissionState uint8

const (
	// Candidate is a transaction that has been offered but not decided.
	Candidate AdmissionState = iota

	// Accepted is a transaction that entered the pool.
	Accepted

	// Rejected is a transaction that was refused.  Nothing in the pool
	// changed because of it.
	Rejected
)

var admissionStateStrings = map[AdmissionState]string{
	Candidate: "candidate",
	Accepted:  "accepted",
	Rejected:  "rejected",
}

// String returns the AdmissionState in human-readable form.
func (s AdmissionState) String() string {
	if str, ok := admissionStateStrings[s]; ok {
		return str
	}
	return fmt.Sprintf("Unknown AdmissionState (%d)", int(s))
}

// Config is a descriptor containing the memory pool configuration.
type Config struct {
	// Limits bounds the ancestor and descendant packages of every pool
	// transaction.  Every field must be positive; start from
	// DefaultLimits.
	Limits Limits

	// Validator checks transactions and computes their fee.  Required.
	Validator TxValidator

	// BestHeight returns the height of the current best chain.
	// Required.
	BestHeight func() int32

	// MaxRecentRejects is the size of the recent rejects cache.  Zero
	// selects DefaultMaxRecentRejects.
	MaxRecentRejects uint

	// GraphConfig configures the dependency index.  If nil, defaults are
	// applied.
	GraphConfig *txgraph.Config

	// TimeSource returns the time recorded for new entries.  If nil,
	// time.Now is used.
	TimeSource func() time.Time
}

// TxPool tracks unconfirmed transactions together with their in-pool
// ancestor and descendant packages and keeps the aggregated size and fee of
// every package current while transactions arrive, confirm and come back
// from disconnected blocks.
type TxPool struct {
	// The following variables must only be used atomically.
	lastUpdated atomic.Int64 // last time pool was updated

	mtx   sync.RWMutex
	cfg   Config
	graph *txgraph.TxGraph
	pool  map[chainhash.Hash]*TxEntry

	// deltas holds the priority table, including deltas of transactions
	// that are not in the pool.
	deltas feeDeltas

	// recentRejects holds the hashes of transactions rejected for
	// package limits.  It is reset whenever the chain tip changes since
	// the pool contents the rejection depended on may have changed.
	recentRejects lru.Cache

	// staleEntries lists entries whose stats must be recomputed before
	// the current mutation returns.
	staleEntries []*TxEntry

	notificationsLock sync.RWMutex
	notifications     []NotificationCallback
}

// New returns a new memory pool for tracking transaction packages.
func New(cfg *Config) (*TxPool, error) {
	if cfg == nil {
		return nil, errors.New("mempool config cannot be nil")
	}
	if cfg.Validator == nil {
		return nil, errors.New("Validator is required")
	}
	if cfg.BestHeight == nil {
		return nil, errors.New("BestHeight is required")
	}
	if err := cfg.Limits.Validate(); err != nil {
		return nil, fmt.Errorf("invalid limits: %w", err)
	}

	graphCfg := cfg.GraphConfig
	if graphCfg == nil {
		graphCfg = txgraph.DefaultConfig()
	}

	mp := &TxPool{
		cfg:    *cfg,
		graph:  txgraph.New(graphCfg),
		pool:   make(map[chainhash.Hash]*TxEntry),
		deltas: make(feeDeltas),
	}
	if mp.cfg.MaxRecentRejects == 0 {
		mp.cfg.MaxRecentRejects = DefaultMaxRecentRejects
	}
	if mp.cfg.TimeSource == nil {
		mp.cfg.TimeSource = time.Now
	}
	mp.recentRejects = lru.NewCache(mp.cfg.MaxRecentRejects)
	mp.lastUpdated.Store(mp.cfg.TimeSource().Unix())

	log.Debugf("Mempool limits: ancestors %d/%d bytes, descendants "+
		"%d/%d bytes", cfg.Limits.MaxAncestorCount,
		cfg.Limits.MaxAncestorSize, cfg.Limits.MaxDescendantCount,
		cfg.Limits.MaxDescendantSize)

	return mp, nil
}

// Limits returns the package limits in force.
func (mp *TxPool) Limits() Limits {
	return mp.cfg.Limits
}

// LastUpdated returns the last time a transaction was added to or removed
// from the pool, or an entry's fee delta changed.
//
// This function is safe for concurrent access.
func (mp *TxPool) LastUpdated() time.Time {
	return time.Unix(mp.lastUpdated.Load(), 0)
}

// touch records a change to the pool contents.
func (mp *TxPool) touch() {
	mp.lastUpdated.Store(mp.cfg.TimeSource().Unix())
}

// Count returns the number of transactions in the pool.
//
// This function is safe for concurrent access.
func (mp *TxPool) Count() int {
	mp.mtx.RLock()
	defer mp.mtx.RUnlock()

	return len(mp.pool)
}

// HaveTransaction returns whether or not the passed transaction is in the
// pool.
//
// This function is safe for concurrent access.
func (mp *TxPool) HaveTransaction(hash *chainhash.Hash) bool {
	mp.mtx.RLock()
	defer mp.mtx.RUnlock()

	_, exists := mp.pool[*hash]
	return exists
}

// MaybeAcceptTransaction offers a transaction to the pool.  On acceptance a
// snapshot of the new entry is returned.  On rejection the pool is unchanged
// and the error is one of: a RuleError, an error wrapping
// ErrValidationRejected, a *LimitError, or an AssertError when the pool
// found itself inconsistent.
//
// This function is safe for concurrent access.
func (mp *TxPool) MaybeAcceptTransaction(tx *btcutil.Tx) (*EntrySnapshot,
	error) {

	return mp.AcceptTransactionAddedAt(tx, time.Time{})
}

// AcceptTransactionAddedAt is MaybeAcceptTransaction for a transaction that
// already spent time in a pool, such as one restored from disk.  The entry
// records added as its admission time so that its age carries over.  A zero
// added selects the pool's time source.
//
// This function is safe for concurrent access.
func (mp *TxPool) AcceptTransactionAddedAt(tx *btcutil.Tx,
	added time.Time) (*EntrySnapshot, error) {

	mp.mtx.Lock()
	defer mp.mtx.Unlock()

	entry, err := mp.maybeAcceptTransactionLocked(tx, added)
	if err != nil {
		return nil, err
	}
	return entry.snapshot(mp.depends(entry)), nil
}

// maybeAcceptTransactionLocked is the internal function which implements the
// admission path.  The state of the candidate moves from Candidate to either
// Accepted or Rejected before it returns.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) maybeAcceptTransactionLocked(tx *btcutil.Tx,
	added time.Time) (*TxEntry, error) {

	txHash := tx.Hash()
	state := Candidate
	defer func() {
		log.Tracef("Transaction %v %v", txHash, state)
	}()

	// Don't accept the transaction if it already exists in the pool.
	if _, exists := mp.pool[*txHash]; exists {
		state = Rejected
		str := fmt.Sprintf("already have transaction %v", txHash)
		return nil, ruleError(ErrDuplicate, str)
	}

	// A transaction rejected for package limits stays rejected until
	// the pool contents change because of a new tip.
	if mp.recentRejects.Contains(*txHash) {
		state = Rejected
		str := fmt.Sprintf("transaction %v was recently rejected",
			txHash)
		return nil, ruleError(ErrRecentlyRejected, str)
	}

	for _, txIn := range tx.MsgTx().TxIn {
		prevOut := &txIn.PreviousOutPoint
		if spender, ok := mp.graph.GetSpender(*prevOut); ok {
			state = Rejected
			str := fmt.Sprintf("output %v already spent by "+
				"transaction %v in the memory pool", prevOut,
				spender.TxHash)
			return nil, ruleError(ErrDoubleSpend, str)
		}
	}

	fee, err := mp.cfg.Validator.ValidateTransaction(tx, poolView{mp})
	if err != nil {
		state = Rejected
		return nil, fmt.Errorf("%w: %w", ErrValidationRejected, err)
	}

	size := int64(tx.MsgTx().SerializeSize())
	pkg, err := mp.buildPackage(tx, size)
	if err != nil {
		state = Rejected
		log.Criticalf("Unable to resolve package of %v: %v", txHash, err)
		return nil, err
	}
	if err := mp.cfg.Limits.checkPackage(pkg); err != nil {
		state = Rejected
		mp.recentRejects.Add(*txHash)
		log.Debugf("Rejected transaction %v: %v", txHash, err)
		return nil, err
	}

	if added.IsZero() {
		added = mp.cfg.TimeSource()
	}
	entry := newTxEntry(tx, size, fee, mp.deltas[*txHash], added,
		mp.cfg.BestHeight())
	desc := &txgraph.TxDesc{
		TxHash: *txHash,
		Size:   size,
		Fee:    int64(fee),
		Added:  added,
	}
	if err := mp.graph.AddTransaction(tx, desc); err != nil {
		state = Rejected
		if errors.Is(err, txgraph.ErrGraphFull) {
			return nil, ruleError(ErrPoolFull, err.Error())
		}
		return nil, err
	}
	mp.pool[*txHash] = entry

	if err := mp.applyAdmission(entry, pkg); err != nil {
		state = Rejected
		log.Criticalf("Unable to sum package of %v: %v", txHash, err)
		mp.undoAdmission(*txHash)
		return nil, err
	}

	state = Accepted
	mp.touch()
	log.Debugf("Accepted transaction %v (pool size: %v)", txHash,
		len(mp.pool))

	mp.sendNotification(NTTxAccepted, entry.snapshot(mp.depends(entry)))

	return entry, nil
}

// undoAdmission takes a just inserted entry back out of the ledger and the
// dependency index and recomputes the relatives whose stats it may have
// touched.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) undoAdmission(hash chainhash.Hash) {
	mp.markStale(mp.graph.GetAncestors(hash))
	mp.markStale(mp.graph.GetDescendants(hash))
	if err := mp.graph.RemoveTransactionNoCascade(hash); err != nil {
		log.Criticalf("Unable to unindex %v: %v", hash, err)
	}
	delete(mp.pool, hash)
	if err := mp.refreshStale(); err != nil {
		log.Criticalf("Unable to refresh packages around %v: %v",
			hash, err)
	}
}

// buildPackage resolves the in-pool ancestors and descendants a candidate
// would have and how much their sets would grow.
//
// This function MUST be called with the mempool lock held (for reads).
func (mp *TxPool) buildPackage(tx *btcutil.Tx,
	size int64) (*prospectivePackage, error) {

	txHash := *tx.Hash()
	pkg := &prospectivePackage{hash: txHash, size: size}

	// collectInto appends the entry for hash and the entries of its
	// closure in one direction to the passed list unless already seen.
	seen := make(map[chainhash.Hash]struct{})
	collectInto := func(list *[]*TxEntry, hash chainhash.Hash,
		closure func(chainhash.Hash) []*txgraph.TxGraphNode) error {

		if _, ok := seen[hash]; ok {
			return nil
		}
		nodes := append([]*txgraph.TxGraphNode{{TxHash: hash}},
			closure(hash)...)
		for _, node := range nodes {
			if _, ok := seen[node.TxHash]; ok {
				continue
			}
			entry, err := mp.entryForNode(node)
			if err != nil {
				return err
			}
			seen[node.TxHash] = struct{}{}
			*list = append(*list, entry)
		}
		return nil
	}

	for _, txIn := range tx.MsgTx().TxIn {
		parent := txIn.PreviousOutPoint.Hash
		if _, ok := mp.pool[parent]; !ok {
			continue
		}
		err := collectInto(&pkg.ancestors, parent, mp.graph.GetAncestors)
		if err != nil {
			return nil, err
		}
	}

	for i := range tx.MsgTx().TxOut {
		op := wire.OutPoint{Hash: txHash, Index: uint32(i)}
		child, ok := mp.graph.GetSpender(op)
		if !ok {
			continue
		}
		err := collectInto(&pkg.descendants, child.TxHash,
			mp.graph.GetDescendants)
		if err != nil {
			return nil, err
		}
	}

	// Without in-pool children every ancestor gains exactly the
	// candidate.
	if len(pkg.descendants) == 0 {
		for _, ancestor := range pkg.ancestors {
			pkg.descendantGrowth = append(pkg.descendantGrowth,
				growth{entry: ancestor, count: 1, size: size})
		}
		return pkg, nil
	}

	// Otherwise the candidate joins two packages together.  Each
	// ancestor gains the candidate plus whichever of the candidate's
	// descendants it did not already have, and each descendant gains
	// the candidate plus the ancestors it did not already have.
	for _, ancestor := range pkg.ancestors {
		have := hashSet(mp.graph.GetDescendants(*ancestor.Hash()))
		pkg.descendantGrowth = append(pkg.descendantGrowth,
			missingFrom(ancestor, have, pkg.descendants, size))
	}
	for _, descendant := range pkg.descendants {
		have := hashSet(mp.graph.GetAncestors(*descendant.Hash()))
		pkg.ancestorGrowth = append(pkg.ancestorGrowth,
			missingFrom(descendant, have, pkg.ancestors, size))
	}

	return pkg, nil
}

// missingFrom returns the growth of entry's set when the candidate of the
// passed size and every member of others not already in have join it.
func missingFrom(entry *TxEntry, have map[chainhash.Hash]struct{},
	others []*TxEntry, size int64) growth {

	g := growth{entry: entry, count: 1, size: size}
	for _, other := range others {
		if _, ok := have[*other.Hash()]; ok {
			continue
		}
		g.count++
		g.size += other.Size
	}
	return g
}

func hashSet(nodes []*txgraph.TxGraphNode) map[chainhash.Hash]struct{} {
	set := make(map[chainhash.Hash]struct{}, len(nodes))
	for _, node := range nodes {
		set[node.TxHash] = struct{}{}
	}
	return set
}

// SetFeeDelta changes the priority delta of a transaction.  The transaction
// does not need to be in the pool; the delta is applied when it arrives.
// When it is in the pool its modified fee and the fee totals of every
// package containing it change at once.
//
// This function is safe for concurrent access.
func (mp *TxPool) SetFeeDelta(hash chainhash.Hash, delta btcutil.Amount,
	mode DeltaMode) error {

	mp.mtx.Lock()
	defer mp.mtx.Unlock()

	return mp.setFeeDeltaLocked(hash, delta, mode)
}

// setFeeDeltaLocked is the internal implementation of SetFeeDelta.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) setFeeDeltaLocked(hash chainhash.Hash,
	delta btcutil.Amount, mode DeltaMode) error {

	old, updated := mp.deltas.next(hash, delta, mode)
	if entry, ok := mp.pool[hash]; ok {
		if err := mp.propagateFeeDelta(entry, updated-old); err != nil {
			log.Criticalf("Unable to change fee delta of %v: %v",
				hash, err)
			return err
		}
		entry.FeeDelta = updated
		mp.touch()
	}
	mp.deltas.store(hash, updated)

	log.Debugf("Fee delta of %v changed from %v to %v (%v)", hash, old,
		updated, mode)

	if old != updated {
		mp.sendNotification(NTFeeDeltaChanged, &FeeDeltaData{
			Hash: hash,
			Old:  old,
			New:  updated,
		})
	}
	return nil
}

// PrioritiseTransaction adds delta to the priority delta of a transaction.
//
// This function is safe for concurrent access.
func (mp *TxPool) PrioritiseTransaction(hash chainhash.Hash,
	delta btcutil.Amount) error {

	return mp.SetFeeDelta(hash, delta, DeltaAdditive)
}

// ClearPrioritisation cancels the priority delta of a transaction.  An entry
// in the pool goes back to its base fee.
//
// This function is safe for concurrent access.
func (mp *TxPool) ClearPrioritisation(hash chainhash.Hash) error {
	return mp.SetFeeDelta(hash, 0, DeltaAbsolute)
}

// FeeDelta returns the priority delta recorded for a transaction.
//
// This function is safe for concurrent access.
func (mp *TxPool) FeeDelta(hash chainhash.Hash) (btcutil.Amount, bool) {
	mp.mtx.RLock()
	defer mp.mtx.RUnlock()

	delta, ok := mp.deltas[hash]
	return delta, ok
}

// FeeDeltas returns a copy of the priority table.
//
// This function is safe for concurrent access.
func (mp *TxPool) FeeDeltas() map[chainhash.Hash]btcutil.Amount {
	mp.mtx.RLock()
	defer mp.mtx.RUnlock()

	return mp.deltas.snapshot()
}

// Contents returns snapshots of every pool entry, parents before children,
// together with a copy of the priority table, both taken under one lock.
//
// This function is safe for concurrent access.
func (mp *TxPool) Contents() ([]*EntrySnapshot,
	map[chainhash.Hash]btcutil.Amount) {

	mp.mtx.RLock()
	defer mp.mtx.RUnlock()

	return mp.entrySnapshots(), mp.deltas.snapshot()
}

// removeEntry removes one transaction and leaves its descendants in the pool.
// The remaining relatives are marked stale.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) removeEntry(hash chainhash.Hash, reason RemovalReason) error {
	entry, ok := mp.pool[hash]
	if !ok {
		return fmt.Errorf("%w: %v", ErrNotFound, hash)
	}

	mp.markStale(mp.graph.GetAncestors(hash))
	mp.markStale(mp.graph.GetDescendants(hash))
	if err := mp.graph.RemoveTransactionNoCascade(hash); err != nil {
		str := fmt.Sprintf("ledger entry %v missing from index: %v",
			hash, err)
		return AssertError(str)
	}
	delete(mp.pool, hash)

	log.Debugf("Removed transaction %v (%v)", hash, reason)
	mp.sendNotification(NTTxRemoved, &TxRemovedData{
		Tx:     entry.Tx,
		Reason: reason,
	})
	return nil
}

// removeWithDescendants removes a transaction together with every pool
// transaction that depends on it and returns how many left.  Ancestors of the
// removed set are marked stale.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) removeWithDescendants(hash chainhash.Hash,
	reason RemovalReason) (int, error) {

	if _, ok := mp.pool[hash]; !ok {
		return 0, fmt.Errorf("%w: %v", ErrNotFound, hash)
	}

	// A descendant may have parents outside the removed set, so the
	// ancestors of every member lose descendants.
	mp.markStale(mp.graph.GetAncestors(hash))
	for _, node := range mp.graph.GetDescendants(hash) {
		mp.markStale(mp.graph.GetAncestors(node.TxHash))
	}

	removed, err := mp.graph.RemoveTransaction(hash)
	if err != nil {
		str := fmt.Sprintf("ledger entry %v missing from index: %v",
			hash, err)
		return 0, AssertError(str)
	}

	for _, removedHash := range removed {
		entry, ok := mp.pool[removedHash]
		if !ok {
			str := fmt.Sprintf("indexed transaction %v has no "+
				"ledger entry", removedHash)
			return 0, AssertError(str)
		}
		delete(mp.pool, removedHash)

		log.Debugf("Removed transaction %v (%v)", removedHash, reason)
		mp.sendNotification(NTTxRemoved, &TxRemovedData{
			Tx:     entry.Tx,
			Reason: reason,
		})
	}
	return len(removed), nil
}

// RemoveTransaction removes the passed transaction from the pool.  When the
// removeRedeemers flag is set, any transactions that redeem outputs from the
// removed transaction will also be removed recursively from the pool, as
// they would otherwise become orphans.
//
// This function is safe for concurrent access.
func (mp *TxPool) RemoveTransaction(hash *chainhash.Hash,
	removeRedeemers bool) error {

	mp.mtx.Lock()
	defer mp.mtx.Unlock()

	var err error
	if removeRedeemers {
		_, err = mp.removeWithDescendants(*hash, RemovedEvicted)
	} else {
		err = mp.removeEntry(*hash, RemovedEvicted)
	}
	if err != nil {
		if IsAssertError(err) {
			log.Criticalf("Unable to remove %v: %v", hash, err)
		}
		return err
	}

	mp.touch()
	if err := mp.refreshStale(); err != nil {
		log.Criticalf("Unable to refresh packages after removing "+
			"%v: %v", hash, err)
		return err
	}
	return nil
}

// depends returns the in-pool parents of an entry in input order.
//
// This function MUST be called with the mempool lock held (for reads).
func (mp *TxPool) depends(entry *TxEntry) []chainhash.Hash {
	var depends []chainhash.Hash
	for _, txIn := range entry.Tx.MsgTx().TxIn {
		parent := txIn.PreviousOutPoint.Hash
		if _, ok := mp.pool[parent]; !ok {
			continue
		}
		if slices.Contains(depends, parent) {
			continue
		}
		depends = append(depends, parent)
	}
	return depends
}

// FetchEntry returns a snapshot of the pool entry for the passed hash.  An
// error wrapping ErrNotFound is returned if it is not in the pool.
//
// This function is safe for concurrent access.
func (mp *TxPool) FetchEntry(hash *chainhash.Hash) (*EntrySnapshot, error) {
	mp.mtx.RLock()
	defer mp.mtx.RUnlock()

	entry, ok := mp.pool[*hash]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, hash)
	}
	return entry.snapshot(mp.depends(entry)), nil
}

// FetchTransaction returns the requested transaction from the pool.
//
// This function is safe for concurrent access.
func (mp *TxPool) FetchTransaction(hash *chainhash.Hash) (*btcutil.Tx,
	error) {

	mp.mtx.RLock()
	defer mp.mtx.RUnlock()

	entry, ok := mp.pool[*hash]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, hash)
	}
	return entry.Tx, nil
}

// topoEntries returns every entry with parents before children.
//
// This function MUST be called with the mempool lock held (for reads).
func (mp *TxPool) topoEntries() []*TxEntry {
	nodes := slices.Collect(mp.graph.Iterate(
		txgraph.WithOrder(txgraph.TraversalTopological),
	))

	entries := make([]*TxEntry, 0, len(nodes))
	for _, node := range nodes {
		if entry, ok := mp.pool[node.TxHash]; ok {
			entries = append(entries, entry)
		}
	}
	return entries
}

// Entries returns snapshots of every pool entry, parents before children.
//
// This function is safe for concurrent access.
func (mp *TxPool) Entries() []*EntrySnapshot {
	mp.mtx.RLock()
	defer mp.mtx.RUnlock()

	return mp.entrySnapshots()
}

// entrySnapshots implements Entries.
//
// This function MUST be called with the mempool lock held (for reads).
func (mp *TxPool) entrySnapshots() []*EntrySnapshot {
	entries := mp.topoEntries()
	snapshots := make([]*EntrySnapshot, 0, len(entries))
	for _, entry := range entries {
		snapshots = append(snapshots, entry.snapshot(mp.depends(entry)))
	}
	return snapshots
}

// TxHashes returns a slice of hashes for all of the transactions in the
// pool, parents before children.
//
// This function is safe for concurrent access.
func (mp *TxPool) TxHashes() []*chainhash.Hash {
	mp.mtx.RLock()
	defer mp.mtx.RUnlock()

	entries := mp.topoEntries()
	hashes := make([]*chainhash.Hash, 0, len(entries))
	for _, entry := range entries {
		hash := *entry.Hash()
		hashes = append(hashes, &hash)
	}
	return hashes
}

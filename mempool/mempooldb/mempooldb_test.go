// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempooldb

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/pkgpool/chain"
	"github.com/btcsuite/pkgpool/database/engine"
	"github.com/btcsuite/pkgpool/mempool"
	"github.com/stretchr/testify/require"
)

var testTime = time.Unix(1700000000, 0)

// newTestPool returns a pool backed by a fresh chain.  Every chain built from
// the default parameters shares the same genesis block, so transactions built
// against one are valid against all of them.
func newTestPool(t *testing.T) (*mempool.TxPool, *chain.Chain) {
	t.Helper()

	return newTestPoolAt(t, testTime)
}

// newTestPoolAt is newTestPool with a clock stopped at now.
func newTestPoolAt(t *testing.T, now time.Time) (*mempool.TxPool,
	*chain.Chain) {

	t.Helper()

	c, err := chain.New(chain.DefaultParams())
	require.NoError(t, err)
	pool, err := mempool.New(&mempool.Config{
		Limits:     mempool.DefaultLimits(),
		Validator:  c,
		BestHeight: c.BestHeight,
		TimeSource: func() time.Time { return now },
	})
	require.NoError(t, err)
	c.Subscribe(mempool.ChainListener(pool))
	return pool, c
}

// spendChain returns n transactions each spending output 0 of the previous
// one, starting at output index of the genesis coinbase.
func spendChain(t *testing.T, c *chain.Chain, index uint32,
	n int) []*btcutil.Tx {

	t.Helper()

	genesis, err := c.BlockByHeight(0)
	require.NoError(t, err)
	coinbase := genesis.Transactions()[0]

	prev := wire.OutPoint{Hash: *coinbase.Hash(), Index: index}
	value := coinbase.MsgTx().TxOut[index].Value
	txs := make([]*btcutil.Tx, 0, n)
	for i := 0; i < n; i++ {
		value -= 1000
		msgTx := wire.NewMsgTx(wire.TxVersion)
		msgTx.AddTxIn(wire.NewTxIn(&prev, nil, nil))
		msgTx.AddTxOut(wire.NewTxOut(value, []byte{txscript.OP_TRUE}))
		tx := btcutil.NewTx(msgTx)
		txs = append(txs, tx)
		prev = wire.OutPoint{Hash: *tx.Hash(), Index: 0}
	}
	return txs
}

func openBackends(t *testing.T) map[string]engine.Engine {
	t.Helper()

	dbs := make(map[string]engine.Engine)
	for _, dbType := range SupportedTypes {
		db, err := Open(dbType, filepath.Join(t.TempDir(), dbType))
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		dbs[dbType] = db
	}
	return dbs
}

// TestStoreLoad persists a pool and restores it into a pool on a fresh chain.
func TestStoreLoad(t *testing.T) {
	t.Parallel()

	for dbType, db := range openBackends(t) {
		t.Run(dbType, func(t *testing.T) {
			pool, c := newTestPool(t)
			txs := spendChain(t, c, 0, 4)
			txs = append(txs, spendChain(t, c, 1, 1)...)
			for _, tx := range txs {
				_, err := pool.MaybeAcceptTransaction(tx)
				require.NoError(t, err)
			}
			require.NoError(t, pool.PrioritiseTransaction(
				*txs[2].Hash(), 500))
			unknown := chainhash.Hash{0x42}
			require.NoError(t, pool.PrioritiseTransaction(unknown, -70))

			require.NoError(t, Store(pool, db))

			dump, err := Read(db)
			require.NoError(t, err)
			require.EqualValues(t, CurrentVersion, dump.Version)
			require.Len(t, dump.Txs, len(txs))
			for _, record := range dump.Txs {
				require.Equal(t, testTime, record.Added)
			}
			require.Equal(t, pool.FeeDeltas(), dump.Deltas)

			restored, _ := newTestPool(t)
			stats, err := Load(restored, db, 0, testTime)
			require.NoError(t, err)
			require.Equal(t, &LoadStats{Accepted: 5, Deltas: 2}, stats)

			require.Equal(t, pool.FeeDeltas(), restored.FeeDeltas())
			for _, entry := range pool.Entries() {
				got, err := restored.FetchEntry(&entry.Hash)
				require.NoError(t, err)
				require.Equal(t, entry.ModifiedFee, got.ModifiedFee)
				require.Equal(t, entry.Ancestors, got.Ancestors)
				require.Equal(t, entry.Descendants, got.Descendants)
			}
			require.NoError(t, restored.CheckConsistency())
		})
	}
}

// TestStoreReplaces ensures a second dump does not leave rows of the first.
func TestStoreReplaces(t *testing.T) {
	t.Parallel()

	for dbType, db := range openBackends(t) {
		t.Run(dbType, func(t *testing.T) {
			pool, c := newTestPool(t)
			txs := spendChain(t, c, 0, 3)
			for _, tx := range txs {
				_, err := pool.MaybeAcceptTransaction(tx)
				require.NoError(t, err)
			}
			require.NoError(t, pool.PrioritiseTransaction(
				*txs[0].Hash(), 10))
			require.NoError(t, Store(pool, db))

			_, err := c.GenerateBlock(txs[:2])
			require.NoError(t, err)
			require.Equal(t, 1, pool.Count())
			require.NoError(t, Store(pool, db))

			dump, err := Read(db)
			require.NoError(t, err)
			require.Len(t, dump.Txs, 1)
			require.Equal(t, *txs[2].Hash(), *dump.Txs[0].Tx.Hash())
			require.Empty(t, dump.Deltas)
		})
	}
}

// TestLoadRejectsAndExpiry ensures transactions the pool refuses or that are
// too old are skipped and counted.
func TestLoadRejectsAndExpiry(t *testing.T) {
	t.Parallel()

	db, err := Open(TypeLevelDB, filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	defer db.Close()

	pool, c := newTestPool(t)
	txs := spendChain(t, c, 0, 3)
	for _, tx := range txs {
		_, err := pool.MaybeAcceptTransaction(tx)
		require.NoError(t, err)
	}
	require.NoError(t, Store(pool, db))

	// The root is confirmed on the restoring chain so it is refused and its
	// child is still accepted.
	restored, c2 := newTestPool(t)
	_, err = c2.GenerateBlock(txs[:1])
	require.NoError(t, err)

	stats, err := Load(restored, db, 0, testTime)
	require.NoError(t, err)
	require.Equal(t, &LoadStats{Accepted: 2, Rejected: 1}, stats)

	fresh, _ := newTestPool(t)
	stats, err = Load(fresh, db, time.Hour, testTime.Add(2*time.Hour))
	require.NoError(t, err)
	require.Equal(t, &LoadStats{Expired: 3}, stats)
	require.Zero(t, fresh.Count())
}

// TestExpirySpansRestarts restarts twice with less than the expiry between
// restarts and ensures the transaction still ages from its first admission.
func TestExpirySpansRestarts(t *testing.T) {
	t.Parallel()

	const expiry = 14 * 24 * time.Hour
	db, err := Open(TypePebble, filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	defer db.Close()

	pool, c := newTestPool(t)
	tx := spendChain(t, c, 0, 1)[0]
	_, err = pool.MaybeAcceptTransaction(tx)
	require.NoError(t, err)
	require.NoError(t, Store(pool, db))

	first := testTime.Add(200 * time.Hour)
	restarted, _ := newTestPoolAt(t, first)
	stats, err := Load(restarted, db, expiry, first)
	require.NoError(t, err)
	require.Equal(t, &LoadStats{Accepted: 1}, stats)

	entry, err := restarted.FetchEntry(tx.Hash())
	require.NoError(t, err)
	require.Equal(t, testTime, entry.Added)
	require.NoError(t, Store(restarted, db))

	dump, err := Read(db)
	require.NoError(t, err)
	require.Len(t, dump.Txs, 1)
	require.Equal(t, testTime, dump.Txs[0].Added)

	second := testTime.Add(400 * time.Hour)
	restarted, _ = newTestPoolAt(t, second)
	stats, err = Load(restarted, db, expiry, second)
	require.NoError(t, err)
	require.Equal(t, &LoadStats{Expired: 1}, stats)
	require.Zero(t, restarted.Count())
}

// TestReadEmpty ensures an empty database reads as an empty dump.
func TestReadEmpty(t *testing.T) {
	t.Parallel()

	for dbType, db := range openBackends(t) {
		t.Run(dbType, func(t *testing.T) {
			dump, err := Read(db)
			require.NoError(t, err)
			require.Zero(t, dump.Version)
			require.Empty(t, dump.Txs)
			require.Empty(t, dump.Deltas)
		})
	}
}

// TestReadFutureVersion ensures a dump of a newer format is refused.
func TestReadFutureVersion(t *testing.T) {
	t.Parallel()

	db, err := Open(TypePebble, filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	defer db.Close()

	tx, err := db.Transaction()
	require.NoError(t, err)
	require.NoError(t, tx.Put(versionKey, []byte{0, 0, 0, 9}))
	require.NoError(t, tx.Commit())
	tx.Discard()

	_, err = Read(db)
	require.ErrorIs(t, err, ErrUnknownVersion)
}

func TestOpenUnsupported(t *testing.T) {
	_, err := Open("bolt", t.TempDir())
	require.Error(t, err)
}

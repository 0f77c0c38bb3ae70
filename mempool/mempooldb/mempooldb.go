// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package mempooldb persists the contents of a transaction pool across
// restarts.
//
// A dump holds a version record, every pool transaction in topological order
// and the priority table.  Transactions are stored under the "tx" prefix
// followed by a big-endian sequence number, so iterating the prefix returns
// them parents first.  Each value is the entry's admission time in unix
// seconds followed by the serialized transaction.  Fee deltas are stored
// under the "dl" prefix followed by the transaction hash.
package mempooldb

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/pkgpool/database/engine"
	"github.com/btcsuite/pkgpool/database/engine/leveldb"
	"github.com/btcsuite/pkgpool/database/engine/pebbledb"
	"github.com/btcsuite/pkgpool/mempool"
)

const (
	// CurrentVersion is the dump format written by Dump.
	CurrentVersion = 1

	// TypeLevelDB selects the goleveldb backend.
	TypeLevelDB = "leveldb"

	// TypePebble selects the pebble backend.
	TypePebble = "pebble"
)

var (
	versionKey  = []byte("version")
	txPrefix    = []byte("tx")
	deltaPrefix = []byte("dl")

	// ErrUnknownVersion is returned by Load for a dump written by a newer
	// format.
	ErrUnknownVersion = errors.New("unknown mempool dump version")
)

// SupportedTypes lists the backends accepted by Open.
var SupportedTypes = []string{TypeLevelDB, TypePebble}

// Open opens or creates the database of the given type at path.
func Open(dbType, path string) (engine.Engine, error) {
	switch dbType {
	case TypeLevelDB:
		return leveldb.NewDB(path, false)
	case TypePebble:
		return pebbledb.NewDB(path, false, 0, 0)
	}
	return nil, fmt.Errorf("unsupported database type %q, must be one "+
		"of %v", dbType, SupportedTypes)
}

// DefaultPath returns the location of the database of the given type under
// dataDir.
func DefaultPath(dataDir, dbType string) string {
	return filepath.Join(dataDir, "mempool_"+dbType)
}

// Record is a persisted pool transaction.
type Record struct {
	Tx    *btcutil.Tx
	Added time.Time
}

// Dump is the decoded content of a database.
type Dump struct {
	Version uint32
	Txs     []Record
	Deltas  map[chainhash.Hash]btcutil.Amount
}

// LoadStats reports the outcome of Load.
type LoadStats struct {
	Accepted int
	Rejected int
	Expired  int
	Deltas   int
}

func txKey(seq uint64) []byte {
	key := make([]byte, len(txPrefix)+8)
	copy(key, txPrefix)
	binary.BigEndian.PutUint64(key[len(txPrefix):], seq)
	return key
}

func deltaKey(hash *chainhash.Hash) []byte {
	key := make([]byte, 0, len(deltaPrefix)+chainhash.HashSize)
	key = append(key, deltaPrefix...)
	return append(key, hash[:]...)
}

func encodeRecord(entry *mempool.EntrySnapshot) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(8 + entry.Tx.MsgTx().SerializeSize())

	var added [8]byte
	binary.BigEndian.PutUint64(added[:], uint64(entry.Added.Unix()))
	buf.Write(added[:])
	if err := entry.Tx.MsgTx().Serialize(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRecord(value []byte) (Record, error) {
	if len(value) < 8 {
		return Record{}, fmt.Errorf("short transaction record of %d "+
			"bytes", len(value))
	}
	added := int64(binary.BigEndian.Uint64(value[:8]))

	var msgTx wire.MsgTx
	if err := msgTx.Deserialize(bytes.NewReader(value[8:])); err != nil {
		return Record{}, err
	}
	return Record{Tx: btcutil.NewTx(&msgTx), Added: time.Unix(added, 0)}, nil
}

// keysWithPrefix returns the keys currently stored under each prefix.
func keysWithPrefix(db engine.Engine, prefixes ...[]byte) ([][]byte, error) {
	snapshot, err := db.Snapshot()
	if err != nil {
		return nil, err
	}
	defer snapshot.Release()

	var keys [][]byte
	for _, prefix := range prefixes {
		iter := snapshot.NewIterator(engine.BytesPrefix(prefix))
		for iter.Next() {
			keys = append(keys, bytes.Clone(iter.Key()))
		}
		err := iter.Error()
		iter.Release()
		if err != nil {
			return nil, err
		}
	}
	return keys, nil
}

// Store writes the pool's entries and priority table to db, replacing any
// previous dump.  The write is atomic.
func Store(pool *mempool.TxPool, db engine.Engine) error {
	entries, deltas := pool.Contents()

	stale, err := keysWithPrefix(db, txPrefix, deltaPrefix)
	if err != nil {
		return err
	}

	tx, err := db.Transaction()
	if err != nil {
		return err
	}
	defer tx.Discard()

	for _, key := range stale {
		if err := tx.Delete(key); err != nil {
			return err
		}
	}

	var version [4]byte
	binary.BigEndian.PutUint32(version[:], CurrentVersion)
	if err := tx.Put(versionKey, version[:]); err != nil {
		return err
	}

	for seq, entry := range entries {
		value, err := encodeRecord(entry)
		if err != nil {
			return fmt.Errorf("serialize %v: %w", entry.Hash, err)
		}
		if err := tx.Put(txKey(uint64(seq)), value); err != nil {
			return err
		}
	}

	for hash, delta := range deltas {
		var value [8]byte
		binary.BigEndian.PutUint64(value[:], uint64(delta))
		if err := tx.Put(deltaKey(&hash), value[:]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	log.Infof("Dumped %d %s and %d fee %s", len(entries),
		pickNoun(len(entries), "transaction", "transactions"),
		len(deltas), pickNoun(len(deltas), "delta", "deltas"))
	return nil
}

// Read decodes the dump held by db.  An empty database yields a dump with no
// transactions and a zero version.
func Read(db engine.Engine) (*Dump, error) {
	snapshot, err := db.Snapshot()
	if err != nil {
		return nil, err
	}
	defer snapshot.Release()

	dump := &Dump{Deltas: make(map[chainhash.Hash]btcutil.Amount)}
	version, err := snapshot.Get(versionKey)
	switch {
	case errors.Is(err, engine.ErrNotFound):
		return dump, nil
	case err != nil:
		return nil, err
	case len(version) != 4:
		return nil, fmt.Errorf("malformed version record")
	}
	dump.Version = binary.BigEndian.Uint32(version)
	if dump.Version > CurrentVersion {
		return nil, fmt.Errorf("%w %d", ErrUnknownVersion, dump.Version)
	}

	iter := snapshot.NewIterator(engine.BytesPrefix(txPrefix))
	for iter.Next() {
		record, err := decodeRecord(iter.Value())
		if err != nil {
			iter.Release()
			return nil, fmt.Errorf("decode record %x: %w", iter.Key(), err)
		}
		dump.Txs = append(dump.Txs, record)
	}
	err = iter.Error()
	iter.Release()
	if err != nil {
		return nil, err
	}

	iter = snapshot.NewIterator(engine.BytesPrefix(deltaPrefix))
	defer iter.Release()
	for iter.Next() {
		key, value := iter.Key(), iter.Value()
		if len(key) != len(deltaPrefix)+chainhash.HashSize ||
			len(value) != 8 {

			return nil, fmt.Errorf("malformed fee delta %x", key)
		}
		var hash chainhash.Hash
		copy(hash[:], key[len(deltaPrefix):])
		dump.Deltas[hash] = btcutil.Amount(int64(
			binary.BigEndian.Uint64(value)))
	}
	return dump, iter.Error()
}

// Load restores a dump from db into pool.  Fee deltas are applied first so
// that re-admitted transactions carry them from the start.  Transactions are
// offered in stored order and the ones the pool refuses are counted and
// skipped.  Each transaction keeps its recorded admission time, so its age
// spans restarts.  When expiry is positive, transactions added longer than
// expiry before now are dropped without being offered.
func Load(pool *mempool.TxPool, db engine.Engine, expiry time.Duration,
	now time.Time) (*LoadStats, error) {

	dump, err := Read(db)
	if err != nil {
		return nil, err
	}

	stats := &LoadStats{}
	for hash, delta := range dump.Deltas {
		err := pool.SetFeeDelta(hash, delta, mempool.DeltaAbsolute)
		if err != nil {
			return nil, err
		}
		stats.Deltas++
	}

	for _, record := range dump.Txs {
		if expiry > 0 && now.Sub(record.Added) > expiry {
			stats.Expired++
			continue
		}

		_, err := pool.AcceptTransactionAddedAt(record.Tx, record.Added)
		if err != nil {
			log.Debugf("Skipping persisted transaction %v: %v",
				record.Tx.Hash(), err)
			stats.Rejected++
			continue
		}
		stats.Accepted++
	}

	log.Infof("Loaded %d persisted %s (%d rejected, %d expired)",
		stats.Accepted, pickNoun(stats.Accepted, "transaction",
			"transactions"), stats.Rejected, stats.Expired)
	return stats, nil
}

// pickNoun returns the singular or plural form of a noun depending
// on the count n.
func pickNoun(n int, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}

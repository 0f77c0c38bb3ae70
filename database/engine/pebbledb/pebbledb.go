// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package pebbledb implements engine.Engine on pebble.
package pebbledb

import (
	"errors"
	"runtime"
	"sync/atomic"

	"github.com/btcsuite/pkgpool/database/engine"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/bloom"
)

var (
	ErrDbClosed         = errors.New("pebbledb: closed")
	ErrTxClosed         = errors.New("pebbledb: transaction already closed")
	ErrSnapshotReleased = errors.New("pebbledb: snapshot released")
)

const (
	// DefaultCache is the block cache size in MiB used when none is
	// given.
	DefaultCache = 16

	// DefaultHandles is the open file limit used when none is given.
	DefaultHandles = 16
)

// NewDB opens the pebble database at dbPath.  When create is set the database
// must not exist yet.  Non-positive cache and handles select the defaults.
func NewDB(dbPath string, create bool, cache, handles int) (engine.Engine, error) {
	if cache <= 0 {
		cache = DefaultCache
	}
	if handles <= 0 {
		handles = DefaultHandles
	}

	// A persisted pool is small and written in one batch, so a couple of
	// levels with bloom filters are plenty.
	levels := make([]pebble.LevelOptions, 3)
	targetSize := int64(2 * 1024 * 1024)
	for i := range levels {
		levels[i] = pebble.LevelOptions{
			TargetFileSize: targetSize,
			FilterPolicy:   bloom.FilterPolicy(10),
		}
		targetSize *= 2
	}

	bcache := pebble.NewCache(int64(cache) * 1024 * 1024)
	defer bcache.Unref()

	opts := &pebble.Options{
		Cache:                    bcache,
		ErrorIfExists:            create,
		MaxOpenFiles:             handles,
		MaxConcurrentCompactions: runtime.NumCPU,
		Levels:                   levels,
	}
	opts.Experimental.ReadSamplingMultiplier = -1

	db, err := pebble.Open(dbPath, opts)
	if err != nil {
		return nil, err
	}
	return &DB{DB: db}, nil
}

// DB wraps a pebble database.
type DB struct {
	*pebble.DB

	closed atomic.Bool
}

// Transaction starts a write batch.
func (d *DB) Transaction() (engine.Transaction, error) {
	if d.closed.Load() {
		return nil, ErrDbClosed
	}
	return &Transaction{Batch: d.DB.NewBatch()}, nil
}

// Snapshot returns a pebble snapshot.
func (d *DB) Snapshot() (engine.Snapshot, error) {
	if d.closed.Load() {
		return nil, ErrDbClosed
	}
	return &Snapshot{Snapshot: d.DB.NewSnapshot()}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	if d.closed.Swap(true) {
		return ErrDbClosed
	}
	return d.DB.Close()
}

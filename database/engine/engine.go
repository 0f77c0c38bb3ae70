// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package engine defines the key/value storage interface shared by the
// persistence backends.  Writes are grouped in transactions that apply
// atomically on Commit and reads go through point-in-time snapshots.
package engine

import "errors"

var (
	// ErrNotFound is returned by Snapshot.Get when the key does not exist.
	ErrNotFound = errors.New("engine: key not found")

	// ErrIterReleased is returned by Iterator.Error once the iterator was
	// released.
	ErrIterReleased = errors.New("engine: iterator released")
)

// Engine is a key/value store.
type Engine interface {
	// Transaction starts a write batch.
	Transaction() (Transaction, error)

	// Snapshot returns a consistent read view of the store.
	Snapshot() (Snapshot, error)

	// Close closes the store.  Closing twice is an error.
	Close() error
}

// Transaction is a group of writes applied atomically by Commit.  Nothing is
// visible to snapshots until then.
type Transaction interface {
	Put(key, value []byte) error
	Delete(key []byte) error
	Commit() error

	// Discard drops the pending writes.  It may be called more than once
	// and after Commit.
	Discard()
}

// Snapshot is a read view of the store at the time it was taken.
type Snapshot interface {
	// Get returns a copy of the value for key, or ErrNotFound.
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)

	// NewIterator iterates the keys in r in ascending order.  A nil range
	// covers every key.
	NewIterator(r *Range) Iterator
	Releaser
}

// Releaser is implemented by resources that must be released after use.
// Release may be called more than once.
type Releaser interface {
	Release()
}

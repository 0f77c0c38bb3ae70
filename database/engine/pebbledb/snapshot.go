// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pebbledb

import (
	"bytes"
	"errors"

	"github.com/btcsuite/pkgpool/database/engine"
	"github.com/cockroachdb/pebble"
)

// Snapshot wraps a pebble snapshot.
type Snapshot struct {
	*pebble.Snapshot
	released bool
}

func (s *Snapshot) Has(key []byte) (bool, error) {
	_, err := s.Get(key)
	switch {
	case errors.Is(err, engine.ErrNotFound):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

// Get returns a copy of the value for key.  Pebble only lends the value
// until the closer is closed.
func (s *Snapshot) Get(key []byte) ([]byte, error) {
	if s.released {
		return nil, ErrSnapshotReleased
	}

	ori, closer, err := s.Snapshot.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, engine.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	val := make([]byte, len(ori))
	copy(val, ori)
	return val, nil
}

func (s *Snapshot) Release() {
	if !s.released {
		s.released = true
		s.Snapshot.Close()
	}
}

// NewIterator returns an iterator over r.  An iterator of a released snapshot
// only reports the error.
func (s *Snapshot) NewIterator(r *engine.Range) engine.Iterator {
	if s.released {
		return &Iterator{err: ErrSnapshotReleased}
	}

	var opts pebble.IterOptions
	if r != nil {
		// An empty range yields an iterator with nothing to visit.
		if r.Limit != nil && bytes.Compare(r.Start, r.Limit) >= 0 {
			return &Iterator{}
		}
		opts.LowerBound = r.Start
		opts.UpperBound = r.Limit
	}
	iter, err := s.Snapshot.NewIter(&opts)
	if err != nil {
		return &Iterator{err: err}
	}
	return &Iterator{Iterator: iter}
}

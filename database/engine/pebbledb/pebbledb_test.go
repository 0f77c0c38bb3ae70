// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pebbledb

import (
	"path/filepath"
	"testing"

	"github.com/btcsuite/pkgpool/database/engine"
	"github.com/stretchr/testify/require"
)

func TestSuitePebbleDB(t *testing.T) {
	engine.TestSuiteEngine(t, func() engine.Engine {
		dbPath := filepath.Join(t.TempDir(), "pebbledb-testsuite")

		db, err := NewDB(dbPath, true, 0, 0)
		require.NoError(t, err, "failed to create pebbledb")
		return db
	})
}

// TestReleasedSnapshotIterator ensures an iterator of a released snapshot
// reports the release instead of panicking.
func TestReleasedSnapshotIterator(t *testing.T) {
	db, err := NewDB(filepath.Join(t.TempDir(), "released"), true, 0, 0)
	require.NoError(t, err)
	defer db.Close()

	snapshot, err := db.Snapshot()
	require.NoError(t, err)
	snapshot.Release()

	iter := snapshot.NewIterator(nil)
	require.False(t, iter.Next())
	require.Nil(t, iter.Key())
	require.ErrorIs(t, iter.Error(), ErrSnapshotReleased)
	iter.Release()
}

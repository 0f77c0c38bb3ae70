// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package leveldb

import (
	"path/filepath"
	"testing"

	"github.com/btcsuite/pkgpool/database/engine"
	"github.com/stretchr/testify/require"
)

func TestSuiteLevelDB(t *testing.T) {
	engine.TestSuiteEngine(t, func() engine.Engine {
		dbPath := filepath.Join(t.TempDir(), "leveldb-testsuite")

		db, err := NewDB(dbPath, true)
		require.NoError(t, err, "failed to create leveldb")
		return db
	})
}

// TestReopen ensures committed data survives closing the database and an
// existing database cannot be created again.
func TestReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "reopen")

	db, err := NewDB(dbPath, true)
	require.NoError(t, err)
	tx, err := db.Transaction()
	require.NoError(t, err)
	require.NoError(t, tx.Put([]byte("k"), []byte("v")))
	require.NoError(t, tx.Commit())
	require.NoError(t, db.Close())

	_, err = NewDB(dbPath, true)
	require.Error(t, err)

	db, err = NewDB(dbPath, false)
	require.NoError(t, err)
	defer db.Close()

	snapshot, err := db.Snapshot()
	require.NoError(t, err)
	defer snapshot.Release()
	got, err := snapshot.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), got)
}

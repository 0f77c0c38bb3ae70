// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestSuiteEngine runs the behavior every backend must share against engines
// returned by open.  Each call to open must return a fresh, empty store.
func TestSuiteEngine(t *testing.T, open func() Engine) {
	t.Run("TransactionSnapshot", func(t *testing.T) {
		engine := open()
		defer engine.Close()

		tx, err := engine.Transaction()
		require.NoError(t, err)

		key := []byte("key1")
		value := []byte("value1")
		require.NoError(t, tx.Put(key, value))

		// Pending writes stay invisible.
		snapshot, err := engine.Snapshot()
		require.NoError(t, err)
		has, err := snapshot.Has(key)
		require.NoError(t, err)
		require.False(t, has)
		got, err := snapshot.Get(key)
		require.ErrorIs(t, err, ErrNotFound)
		require.Nil(t, got)
		snapshot.Release()

		require.NoError(t, tx.Commit())
		tx.Discard()

		snapshot, err = engine.Snapshot()
		require.NoError(t, err)
		got, err = snapshot.Get(key)
		require.NoError(t, err)
		require.Equal(t, value, got)

		// A snapshot does not see later commits.
		tx, err = engine.Transaction()
		require.NoError(t, err)
		require.NoError(t, tx.Delete(key))
		require.NoError(t, tx.Put([]byte("key2"), []byte("value2")))
		require.NoError(t, tx.Commit())

		got, err = snapshot.Get(key)
		require.NoError(t, err)
		require.Equal(t, value, got)
		snapshot.Release()

		snapshot, err = engine.Snapshot()
		require.NoError(t, err)
		defer snapshot.Release()
		has, err = snapshot.Has(key)
		require.NoError(t, err)
		require.False(t, has)
		has, err = snapshot.Has([]byte("key2"))
		require.NoError(t, err)
		require.True(t, has)
	})

	t.Run("TransactionIterator", func(t *testing.T) {
		tests := []struct {
			name   string
			kvs    map[string]string
			rng    *Range
			expect [][2]string
		}{
			{
				name:   "before first key",
				kvs:    map[string]string{"key1": "value1", "key2": "value2"},
				rng:    &Range{Start: []byte("key0"), Limit: []byte("key1")},
				expect: nil,
			},
			{
				name: "limit is exclusive",
				kvs: map[string]string{"key1": "value1", "key2": "value2",
					"key3": "value3"},
				rng: &Range{Start: []byte("key1"), Limit: []byte("key3")},
				expect: [][2]string{{"key1", "value1"},
					{"key2", "value2"}},
			},
			{
				name: "bounds between keys",
				kvs: map[string]string{"key1": "value1", "key2": "value2",
					"key3": "value3"},
				rng: &Range{Start: []byte("key10"), Limit: []byte("key30")},
				expect: [][2]string{{"key2", "value2"},
					{"key3", "value3"}},
			},
			{
				name:   "empty range",
				kvs:    map[string]string{"key2": "value2"},
				rng:    &Range{Start: []byte("key2"), Limit: []byte("key2")},
				expect: nil,
			},
			{
				name: "prefix",
				kvs: map[string]string{"tx1": "a", "tx2": "b",
					"dl1": "c", "u": "d"},
				rng:    BytesPrefix([]byte("tx")),
				expect: [][2]string{{"tx1", "a"}, {"tx2", "b"}},
			},
			{
				name: "whole store",
				kvs:  map[string]string{"b": "2", "a": "1"},
				expect: [][2]string{{"a", "1"},
					{"b", "2"}},
			},
		}

		for _, test := range tests {
			t.Run(test.name, func(t *testing.T) {
				engine := open()
				defer engine.Close()

				tx, err := engine.Transaction()
				require.NoError(t, err)
				for k, v := range test.kvs {
					require.NoError(t, tx.Put([]byte(k), []byte(v)))
				}
				require.NoError(t, tx.Commit())

				snapshot, err := engine.Snapshot()
				require.NoError(t, err)
				defer snapshot.Release()

				iter := snapshot.NewIterator(test.rng)
				defer iter.Release()

				var got [][2]string
				for iter.Next() {
					got = append(got, [2]string{string(iter.Key()),
						string(iter.Value())})
				}
				require.NoError(t, iter.Error())
				require.Equal(t, test.expect, got)
			})
		}
	})

	t.Run("IteratorSeek", func(t *testing.T) {
		engine := open()
		defer engine.Close()

		tx, err := engine.Transaction()
		require.NoError(t, err)
		for _, k := range []string{"a", "c", "e"} {
			require.NoError(t, tx.Put([]byte(k), []byte(k)))
		}
		require.NoError(t, tx.Commit())

		snapshot, err := engine.Snapshot()
		require.NoError(t, err)
		defer snapshot.Release()

		iter := snapshot.NewIterator(nil)
		defer iter.Release()

		require.True(t, iter.Seek([]byte("b")))
		require.Equal(t, []byte("c"), iter.Key())
		require.True(t, iter.Next())
		require.Equal(t, []byte("e"), iter.Key())
		require.False(t, iter.Next())
		require.Nil(t, iter.Key())

		require.True(t, iter.First())
		require.Equal(t, []byte("a"), iter.Value())
		require.False(t, iter.Seek([]byte("f")))
	})

	t.Run("DbClose", func(t *testing.T) {
		engine := open()

		tx, err := engine.Transaction()
		require.NoError(t, err)
		tx.Discard()
		tx.Discard()
		require.Error(t, tx.Commit(), "commit after discard")

		snapshot, err := engine.Snapshot()
		require.NoError(t, err)

		iter := snapshot.NewIterator(&Range{})
		require.NoError(t, iter.Error())
		iter.Release()
		iter.Release()

		snapshot.Release()
		snapshot.Release()
		_, err = snapshot.Get([]byte("key"))
		require.Error(t, err, "get from released snapshot")

		require.NoError(t, engine.Close())
		require.Error(t, engine.Close(), "second close")

		_, err = engine.Transaction()
		require.Error(t, err, "transaction from closed engine")
		_, err = engine.Snapshot()
		require.Error(t, err, "snapshot from closed engine")
	})
}

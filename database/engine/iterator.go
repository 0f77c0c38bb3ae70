// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package engine

// Iterator walks a key range of a snapshot in ascending key order.  A new
// iterator is positioned before the first key, so Next must be called before
// reading.
type Iterator interface {
	// First moves the iterator to the first key/value pair.  It returns
	// whether such pair exists.
	First() bool

	// Seek moves the iterator to the first key/value pair whose key is
	// greater than or equal to the given key.  It returns whether such
	// pair exists.
	Seek(key []byte) bool

	// Next moves the iterator to the next key/value pair.  It returns
	// false if the iterator is exhausted.
	Next() bool

	// Error returns any accumulated error.  Exhausting all the key/value
	// pairs is not considered to be an error.
	Error() error

	// Key returns the key of the current key/value pair, or nil if done.
	// The contents may change on the next call to any positioning
	// method.
	Key() []byte

	// Value returns the value of the current key/value pair, or nil if
	// done.  The contents may change on the next call to any positioning
	// method.
	Value() []byte

	Releaser
}

// Range is a key range.  Start is inclusive and Limit exclusive; a nil bound
// is unbounded.
type Range struct {
	Start []byte
	Limit []byte
}

// BytesPrefix returns the range of keys beginning with prefix.
func BytesPrefix(prefix []byte) *Range {
	var limit []byte
	for i := len(prefix) - 1; i >= 0; i-- {
		if c := prefix[i]; c < 0xff {
			limit = make([]byte, i+1)
			copy(limit, prefix)
			limit[i] = c + 1
			break
		}
	}
	return &Range{Start: prefix, Limit: limit}
}

// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pebbledb

import (
	"github.com/btcsuite/pkgpool/database/engine"
	"github.com/cockroachdb/pebble"
)

// Iterator adapts a pebble iterator to the engine semantics: a new iterator
// sits before the first key and the first Next moves onto it.
type Iterator struct {
	*pebble.Iterator

	positioned bool
	released   bool

	// err is set when the iterator could not be created.
	err error
}

func (i *Iterator) usable() bool {
	return i.Iterator != nil && !i.released
}

func (i *Iterator) First() bool {
	if !i.usable() {
		return false
	}
	i.positioned = true
	return i.Iterator.First()
}

func (i *Iterator) Seek(key []byte) bool {
	if !i.usable() {
		return false
	}
	i.positioned = true
	return i.Iterator.SeekGE(key)
}

func (i *Iterator) Next() bool {
	if !i.usable() {
		return false
	}
	if !i.positioned {
		return i.First()
	}
	return i.Iterator.Next()
}

func (i *Iterator) Key() []byte {
	if !i.usable() || !i.Iterator.Valid() {
		return nil
	}
	return i.Iterator.Key()
}

func (i *Iterator) Value() []byte {
	if !i.usable() || !i.Iterator.Valid() {
		return nil
	}
	return i.Iterator.Value()
}

func (i *Iterator) Release() {
	if i.released {
		return
	}
	i.released = true
	if i.Iterator != nil {
		i.Iterator.Close()
	}
}

func (i *Iterator) Error() error {
	switch {
	case i.err != nil:
		return i.err
	case i.released:
		return engine.ErrIterReleased
	case i.Iterator == nil:
		return nil
	}
	return i.Iterator.Error()
}

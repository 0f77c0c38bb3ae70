// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"errors"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

const (
	// DefaultMaxAncestorCount is the default maximum number of in-pool
	// ancestors of a transaction, including the transaction itself.
	DefaultMaxAncestorCount = 100

	// DefaultMaxAncestorSize is the default maximum total serialized size
	// in bytes of a transaction and its in-pool ancestors.
	DefaultMaxAncestorSize = 900000

	// DefaultMaxDescendantCount is the default maximum number of in-pool
	// descendants of any transaction, including the transaction itself.
	DefaultMaxDescendantCount = 1000

	// DefaultMaxDescendantSize is the default maximum total serialized
	// size in bytes of a transaction and its in-pool descendants.
	DefaultMaxDescendantSize = 1000000
)

// Limits bounds the shape of every package in the pool. All counts and sizes
// include the transaction they are measured from.
type Limits struct {
	// MaxAncestorCount is the maximum size of the ancestor set.
	MaxAncestorCount int64

	// MaxAncestorSize is the maximum total size in bytes of the ancestor
	// set.
	MaxAncestorSize int64

	// MaxDescendantCount is the maximum size of any descendant set.
	MaxDescendantCount int64

	// MaxDescendantSize is the maximum total size in bytes of any
	// descendant set.
	MaxDescendantSize int64
}

// DefaultLimits returns the default package limits.
func DefaultLimits() Limits {
	return Limits{
		MaxAncestorCount:   DefaultMaxAncestorCount,
		MaxAncestorSize:    DefaultMaxAncestorSize,
		MaxDescendantCount: DefaultMaxDescendantCount,
		MaxDescendantSize:  DefaultMaxDescendantSize,
	}
}

// Validate returns an error if any limit is not positive.
func (l *Limits) Validate() error {
	switch {
	case l.MaxAncestorCount <= 0:
		return errors.New("max ancestor count must be positive")
	case l.MaxAncestorSize <= 0:
		return errors.New("max ancestor size must be positive")
	case l.MaxDescendantCount <= 0:
		return errors.New("max descendant count must be positive")
	case l.MaxDescendantSize <= 0:
		return errors.New("max descendant size must be positive")
	}
	return nil
}

// growth is how much one existing entry's ancestor or descendant set would
// grow if a candidate were admitted.
type growth struct {
	entry *TxEntry
	count int64
	size  int64
}

// prospectivePackage describes the package a candidate transaction would
// join. Nothing in it is applied to the pool until the candidate is accepted.
type prospectivePackage struct {
	hash chainhash.Hash
	size int64

	// ancestors is every in-pool ancestor of the candidate, in discovery
	// order.
	ancestors []*TxEntry

	// descendants is every in-pool transaction that already spends an
	// output of the candidate, plus their descendants. It is only
	// non-empty when a disconnected block transaction is re-admitted.
	descendants []*TxEntry

	// descendantGrowth holds the change to the descendant set of each
	// ancestor.
	descendantGrowth []growth

	// ancestorGrowth holds the change to the ancestor set of each
	// descendant.
	ancestorGrowth []growth
}

// ancestorCount returns the candidate's own ancestor count.
func (p *prospectivePackage) ancestorCount() int64 {
	return int64(len(p.ancestors)) + 1
}

// ancestorSize returns the candidate's own ancestor size.
func (p *prospectivePackage) ancestorSize() int64 {
	size := p.size
	for _, entry := range p.ancestors {
		size += entry.Size
	}
	return size
}

// descendantCount returns the candidate's own descendant count.
func (p *prospectivePackage) descendantCount() int64 {
	return int64(len(p.descendants)) + 1
}

// descendantSize returns the candidate's own descendant size.
func (p *prospectivePackage) descendantSize() int64 {
	size := p.size
	for _, entry := range p.descendants {
		size += entry.Size
	}
	return size
}

// checkPackage returns a LimitError for the first limit the package would
// exceed. Limits are checked in a fixed order: ancestor count, ancestor size,
// descendant count, descendant size. Within a kind the candidate is checked
// before the entries whose sets it would grow.
func (l *Limits) checkPackage(p *prospectivePackage) error {
	limitErr := func(kind LimitKind, limit, value int64) error {
		return &LimitError{Kind: kind, Limit: limit, Value: value}
	}

	if n := p.ancestorCount(); n > l.MaxAncestorCount {
		return limitErr(AncestorCount, l.MaxAncestorCount, n)
	}
	for _, g := range p.ancestorGrowth {
		n := g.entry.ancestors.Count + g.count
		if n > l.MaxAncestorCount {
			return limitErr(AncestorCount, l.MaxAncestorCount, n)
		}
	}

	if n := p.ancestorSize(); n > l.MaxAncestorSize {
		return limitErr(AncestorSize, l.MaxAncestorSize, n)
	}
	for _, g := range p.ancestorGrowth {
		n := g.entry.ancestors.Size + g.size
		if n > l.MaxAncestorSize {
			return limitErr(AncestorSize, l.MaxAncestorSize, n)
		}
	}

	if n := p.descendantCount(); n > l.MaxDescendantCount {
		return limitErr(DescendantCount, l.MaxDescendantCount, n)
	}
	for _, g := range p.descendantGrowth {
		n := g.entry.descendants.Count + g.count
		if n > l.MaxDescendantCount {
			return limitErr(DescendantCount, l.MaxDescendantCount, n)
		}
	}

	if n := p.descendantSize(); n > l.MaxDescendantSize {
		return limitErr(DescendantSize, l.MaxDescendantSize, n)
	}
	for _, g := range p.descendantGrowth {
		n := g.entry.descendants.Size + g.size
		if n > l.MaxDescendantSize {
			return limitErr(DescendantSize, l.MaxDescendantSize, n)
		}
	}

	return nil
}

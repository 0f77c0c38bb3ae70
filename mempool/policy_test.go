// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestLimitsValidate ensures every limit must be positive.
func TestLimitsValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, (&Limits{1, 1, 1, 1}).Validate())

	mutations := []func(*Limits){
		func(l *Limits) { l.MaxAncestorCount = 0 },
		func(l *Limits) { l.MaxAncestorSize = -1 },
		func(l *Limits) { l.MaxDescendantCount = 0 },
		func(l *Limits) { l.MaxDescendantSize = -100 },
	}
	for i, mutate := range mutations {
		limits := DefaultLimits()
		mutate(&limits)
		require.Error(t, limits.Validate(), "mutation %d", i)
	}
}

// TestCheckPackageOrder ensures the first limit exceeded is reported when a
// package breaks several at once.
func TestCheckPackageOrder(t *testing.T) {
	t.Parallel()

	ancestor := &TxEntry{Size: 100}
	ancestor.ancestors = PackageStats{Count: 1, Size: 100}
	ancestor.descendants = PackageStats{Count: 3, Size: 300}

	pkg := &prospectivePackage{
		size:      200,
		ancestors: []*TxEntry{ancestor},
		descendantGrowth: []growth{
			{entry: ancestor, count: 1, size: 200},
		},
	}

	tests := []struct {
		name   string
		limits Limits
		kind   LimitKind
		limit  int64
		value  int64
	}{
		{
			name:   "all exceeded",
			limits: Limits{1, 1, 1, 1},
			kind:   AncestorCount,
			limit:  1,
			value:  2,
		},
		{
			name:   "ancestor size before descendants",
			limits: Limits{2, 299, 1, 1},
			kind:   AncestorSize,
			limit:  299,
			value:  300,
		},
		{
			name:   "descendant count of the ancestor",
			limits: Limits{2, 300, 3, 1000},
			kind:   DescendantCount,
			limit:  3,
			value:  4,
		},
		{
			name:   "descendant size of the ancestor",
			limits: Limits{2, 300, 4, 499},
			kind:   DescendantSize,
			limit:  499,
			value:  500,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.limits.checkPackage(pkg)
			require.True(t, errors.Is(err, ErrTooLongMempoolChain))

			var limitErr *LimitError
			require.ErrorAs(t, err, &limitErr)
			require.Equal(t, &LimitError{
				Kind:  test.kind,
				Limit: test.limit,
				Value: test.value,
			}, limitErr)
		})
	}

	require.NoError(t, (&Limits{2, 300, 4, 500}).checkPackage(pkg))
}

// TestLimitErrorString checks the rendering of limit errors.
func TestLimitErrorString(t *testing.T) {
	t.Parallel()

	err := &LimitError{Kind: AncestorCount, Limit: 100, Value: 101}
	require.Equal(t, "too-long-mempool-chain: ancestor count 101 exceeds "+
		"limit 100", err.Error())
	require.Equal(t, "descendant size", DescendantSize.String())
}

// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/btcsuite/pkgpool/chain"
	"github.com/btcsuite/pkgpool/mempool"
	"github.com/btcsuite/pkgpool/sampleconfig"
	"github.com/stretchr/testify/require"
)

func newTestRunner(t *testing.T, limits mempool.Limits) *scenarioRunner {
	t.Helper()

	c, err := chain.New(chain.DefaultParams())
	require.NoError(t, err)
	pool, err := mempool.New(&mempool.Config{
		Limits:     limits,
		Validator:  c,
		BestHeight: c.BestHeight,
	})
	require.NoError(t, err)
	c.Subscribe(mempool.ChainListener(pool))
	return newScenarioRunner(c, pool)
}

func TestSampleScenario(t *testing.T) {
	t.Parallel()

	s, err := ParseScenario([]byte(sampleconfig.Scenario))
	require.NoError(t, err)
	require.Equal(t, "package-walkthrough", s.Name)

	r := newTestRunner(t, mempool.DefaultLimits())
	require.NoError(t, r.Run(s, make(chan struct{})))
	require.EqualValues(t, 2, r.chain.BestHeight())
	require.Zero(t, r.pool.Count())
}

// TestScenarioLimits ensures a chain longer than the ancestor limit stops
// being accepted at the limit and the rejection can be expected.
func TestScenarioLimits(t *testing.T) {
	t.Parallel()

	s, err := ParseScenario([]byte(`
name: limits
steps:
  - fund: {label: coin, output: 3}
  - chain: {name: t, from: coin, count: 4, fee: 1000}
  - expect:
      count: 3
      rejected: [t3]
      entries:
        t2: {ancestorcount: 3, ancestorfees: 3000}
`))
	require.NoError(t, err)

	limits := mempool.DefaultLimits()
	limits.MaxAncestorCount = 3
	r := newTestRunner(t, limits)
	require.NoError(t, r.Run(s, make(chan struct{})))
	require.ErrorIs(t, r.rejected["t3"], mempool.ErrTooLongMempoolChain)
}

func TestScenarioFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		scenario string
	}{
		{
			name: "count",
			scenario: `
steps:
  - fund: {label: coin, output: 0}
  - fanout: {name: a, from: [coin], outputs: 2, fee: 100}
  - expect: {count: 2}
`,
		},
		{
			name: "entry",
			scenario: `
steps:
  - fund: {label: coin, output: 0}
  - fanout: {name: a, from: [coin], outputs: 2, fee: 100}
  - expect:
      entries:
        a: {modifiedfee: 101}
`,
		},
		{
			name: "unknown output",
			scenario: `
steps:
  - chain: {name: c, from: nothing, count: 1, fee: 100}
`,
		},
		{
			name: "fee too high",
			scenario: `
steps:
  - fund: {label: coin, output: 0}
  - fanout: {name: a, from: [coin], outputs: 1, fee: 600000000}
`,
		},
		{
			name: "reconsider without invalidate",
			scenario: `
steps:
  - reconsider: {}
`,
		},
		{
			name: "not rejected",
			scenario: `
steps:
  - fund: {label: coin, output: 0}
  - fanout: {name: a, from: [coin], outputs: 1, fee: 100}
  - expect: {rejected: [a]}
`,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s, err := ParseScenario([]byte(test.scenario))
			require.NoError(t, err)

			r := newTestRunner(t, mempool.DefaultLimits())
			require.Error(t, r.Run(s, make(chan struct{})))
		})
	}
}

func TestParseScenarioActions(t *testing.T) {
	t.Parallel()

	_, err := ParseScenario([]byte(`
steps:
  - fund: {label: coin, output: 0}
    mine: {all: true}
`))
	require.ErrorContains(t, err, "2 actions")

	_, err = ParseScenario([]byte("steps:\n  - {}\n"))
	require.ErrorContains(t, err, "0 actions")
}

func TestLoadScenarioExpandsEnv(t *testing.T) {
	t.Setenv("PKGPOOL_TEST_FEE", "1234")

	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
steps:
  - chain: {name: c, from: coin, count: 1, fee: $PKGPOOL_TEST_FEE}
`), 0600))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	require.EqualValues(t, 1234, s.Steps[0].Chain.Fee)
}

func TestScenarioInterrupt(t *testing.T) {
	t.Parallel()

	s, err := ParseScenario([]byte(sampleconfig.Scenario))
	require.NoError(t, err)

	interrupt := make(chan struct{})
	close(interrupt)
	r := newTestRunner(t, mempool.DefaultLimits())
	require.ErrorIs(t, r.Run(s, interrupt), errInterrupted)
	require.Zero(t, r.chain.BestHeight())
}

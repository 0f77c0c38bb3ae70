// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/pkgpool/chain"
	"github.com/btcsuite/pkgpool/mempool"
	"gopkg.in/yaml.v3"
)

// Scenario is a scripted sequence of transactions, priority changes and chain
// events replayed against a pool.
//
// Outputs are referred to as "<tx>:<index>" or by the label of a fund step.
// Blocks are referred to by the label given to the mine step that built them.
type Scenario struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`
}

// Step holds exactly one action.
type Step struct {
	Fund       *FundStep       `yaml:"fund,omitempty"`
	Chain      *ChainStep      `yaml:"chain,omitempty"`
	Fanout     *FanoutStep     `yaml:"fanout,omitempty"`
	Prioritise *PrioritiseStep `yaml:"prioritise,omitempty"`
	Clear      *ClearStep      `yaml:"clear,omitempty"`
	Mine       *MineStep       `yaml:"mine,omitempty"`
	Invalidate *BlockStep      `yaml:"invalidate,omitempty"`
	Reconsider *BlockStep      `yaml:"reconsider,omitempty"`
	Expect     *ExpectStep     `yaml:"expect,omitempty"`
}

// FundStep labels a genesis coinbase output.
type FundStep struct {
	Label  string `yaml:"label"`
	Output uint32 `yaml:"output"`
}

// ChainStep offers Count transactions, each spending the single output of the
// previous one.  They are named <name>0 through <name><count-1>.
type ChainStep struct {
	Name  string `yaml:"name"`
	From  string `yaml:"from"`
	Count int    `yaml:"count"`
	Fee   int64  `yaml:"fee"`
}

// FanoutStep offers one transaction spending From into Outputs outputs.
type FanoutStep struct {
	Name    string   `yaml:"name"`
	From    []string `yaml:"from"`
	Outputs int      `yaml:"outputs"`
	Fee     int64    `yaml:"fee"`
}

// PrioritiseStep adds Delta to the fee delta of a named transaction.  With
// Absolute set the delta replaces the current one.
type PrioritiseStep struct {
	Tx       string `yaml:"tx"`
	Delta    int64  `yaml:"delta"`
	Absolute bool   `yaml:"absolute"`
}

// ClearStep removes the fee delta of a named transaction.
type ClearStep struct {
	Tx string `yaml:"tx"`
}

// MineStep connects a block holding the named transactions, or the whole pool
// in topological order when All is set.
type MineStep struct {
	Label string   `yaml:"label"`
	Txs   []string `yaml:"txs"`
	All   bool     `yaml:"all"`
}

// BlockStep names a block.  An empty label means the tip for invalidate and
// the most recently invalidated block for reconsider.
type BlockStep struct {
	Block string `yaml:"block"`
}

// EntryExpectation lists the values a pool entry must have.  Unset fields are
// not checked.
type EntryExpectation struct {
	ModifiedFee     *int64 `yaml:"modifiedfee"`
	AncestorCount   *int64 `yaml:"ancestorcount"`
	AncestorSize    *int64 `yaml:"ancestorsize"`
	AncestorFees    *int64 `yaml:"ancestorfees"`
	DescendantCount *int64 `yaml:"descendantcount"`
	DescendantSize  *int64 `yaml:"descendantsize"`
	DescendantFees  *int64 `yaml:"descendantfees"`
}

// ExpectStep checks the state of the pool.
type ExpectStep struct {
	Count    *int                        `yaml:"count"`
	Entries  map[string]EntryExpectation `yaml:"entries"`
	Absent   []string                    `yaml:"absent"`
	Rejected []string                    `yaml:"rejected"`
}

// LoadScenario reads the scenario at path.  Environment variables in the file
// are expanded before it is decoded.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseScenario([]byte(os.ExpandEnv(string(data))))
}

// ParseScenario decodes and checks a scenario.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	for i, step := range s.Steps {
		if n := step.actions(); n != 1 {
			return nil, fmt.Errorf("step %d holds %d actions, "+
				"want exactly one", i, n)
		}
	}
	return &s, nil
}

func (s *Step) actions() int {
	var n int
	for _, set := range []bool{
		s.Fund != nil, s.Chain != nil, s.Fanout != nil,
		s.Prioritise != nil, s.Clear != nil, s.Mine != nil,
		s.Invalidate != nil, s.Reconsider != nil, s.Expect != nil,
	} {
		if set {
			n++
		}
	}
	return n
}

// spendable is an output the runner can spend.
type spendable struct {
	outPoint wire.OutPoint
	amount   btcutil.Amount
}

// scenarioRunner replays scenarios against a chain and the pool it feeds.
type scenarioRunner struct {
	chain *chain.Chain
	pool  *mempool.TxPool

	outputs     map[string]spendable
	txs         map[string]*btcutil.Tx
	blocks      map[string]chainhash.Hash
	rejected    map[string]error
	invalidated []chainhash.Hash
}

func newScenarioRunner(c *chain.Chain, pool *mempool.TxPool) *scenarioRunner {
	return &scenarioRunner{
		chain:    c,
		pool:     pool,
		outputs:  make(map[string]spendable),
		txs:      make(map[string]*btcutil.Tx),
		blocks:   make(map[string]chainhash.Hash),
		rejected: make(map[string]error),
	}
}

// Run replays every step of s.  It stops at the first step that cannot be
// executed or whose expectation fails, or once interrupt is closed.
func (r *scenarioRunner) Run(s *Scenario, interrupt <-chan struct{}) error {
	pkgpLog.Infof("Replaying scenario %q (%d steps)", s.Name, len(s.Steps))
	for i := range s.Steps {
		if interruptRequested(interrupt) {
			return errInterrupted
		}
		if err := r.step(&s.Steps[i]); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
	}
	return nil
}

// errInterrupted is returned by Run when a shutdown was requested.
var errInterrupted = errors.New("scenario interrupted")

func (r *scenarioRunner) step(s *Step) error {
	switch {
	case s.Fund != nil:
		return r.fund(s.Fund)
	case s.Chain != nil:
		return r.spendChain(s.Chain)
	case s.Fanout != nil:
		return r.fanout(s.Fanout)
	case s.Prioritise != nil:
		hash, err := r.txHash(s.Prioritise.Tx)
		if err != nil {
			return err
		}
		mode := mempool.DeltaAdditive
		if s.Prioritise.Absolute {
			mode = mempool.DeltaAbsolute
		}
		return r.pool.SetFeeDelta(*hash,
			btcutil.Amount(s.Prioritise.Delta), mode)
	case s.Clear != nil:
		hash, err := r.txHash(s.Clear.Tx)
		if err != nil {
			return err
		}
		return r.pool.ClearPrioritisation(*hash)
	case s.Mine != nil:
		return r.mine(s.Mine)
	case s.Invalidate != nil:
		return r.invalidate(s.Invalidate)
	case s.Reconsider != nil:
		return r.reconsider(s.Reconsider)
	case s.Expect != nil:
		return r.expect(s.Expect)
	}
	return errors.New("empty step")
}

func (r *scenarioRunner) fund(s *FundStep) error {
	genesis, err := r.chain.BlockByHeight(0)
	if err != nil {
		return err
	}
	coinbase := genesis.Transactions()[0]
	if int(s.Output) >= len(coinbase.MsgTx().TxOut) {
		return fmt.Errorf("genesis coinbase has no output %d", s.Output)
	}
	r.outputs[s.Label] = spendable{
		outPoint: wire.OutPoint{Hash: *coinbase.Hash(), Index: s.Output},
		amount:   btcutil.Amount(coinbase.MsgTx().TxOut[s.Output].Value),
	}
	return nil
}

// output resolves an output reference.
func (r *scenarioRunner) output(ref string) (spendable, error) {
	if out, ok := r.outputs[ref]; ok {
		return out, nil
	}

	name, index, ok := strings.Cut(ref, ":")
	if !ok {
		return spendable{}, fmt.Errorf("unknown output %q", ref)
	}
	tx, ok := r.txs[name]
	if !ok {
		return spendable{}, fmt.Errorf("unknown transaction %q", name)
	}
	idx, err := strconv.ParseUint(index, 10, 32)
	if err != nil || int(idx) >= len(tx.MsgTx().TxOut) {
		return spendable{}, fmt.Errorf("bad output index in %q", ref)
	}
	return spendable{
		outPoint: wire.OutPoint{Hash: *tx.Hash(), Index: uint32(idx)},
		amount:   btcutil.Amount(tx.MsgTx().TxOut[idx].Value),
	}, nil
}

func (r *scenarioRunner) txHash(name string) (*chainhash.Hash, error) {
	tx, ok := r.txs[name]
	if !ok {
		return nil, fmt.Errorf("unknown transaction %q", name)
	}
	return tx.Hash(), nil
}

// buildTx returns a transaction spending inputs into numOutputs outputs and
// paying exactly fee.
func buildTx(inputs []spendable, numOutputs int,
	fee btcutil.Amount) (*btcutil.Tx, error) {

	if numOutputs < 1 {
		return nil, errors.New("a transaction needs an output")
	}

	var total btcutil.Amount
	msgTx := wire.NewMsgTx(wire.TxVersion)
	for _, input := range inputs {
		msgTx.AddTxIn(wire.NewTxIn(&input.outPoint, nil, nil))
		total += input.amount
	}

	spend := total - fee
	if spend < btcutil.Amount(numOutputs) {
		return nil, fmt.Errorf("inputs of %v do not cover fee %v",
			total, fee)
	}
	each := spend / btcutil.Amount(numOutputs)
	for i := 0; i < numOutputs; i++ {
		amount := each
		if i == numOutputs-1 {
			amount = spend - each*btcutil.Amount(numOutputs-1)
		}
		msgTx.AddTxOut(wire.NewTxOut(int64(amount),
			[]byte{txscript.OP_TRUE}))
	}
	return btcutil.NewTx(msgTx), nil
}

// offer registers tx under name and offers it to the pool.  A rejection is
// recorded rather than returned since scenarios may expect it.
func (r *scenarioRunner) offer(name string, tx *btcutil.Tx) {
	r.txs[name] = tx
	delete(r.rejected, name)

	entry, err := r.pool.MaybeAcceptTransaction(tx)
	if err != nil {
		pkgpLog.Infof("Transaction %s (%v) rejected: %v", name,
			tx.Hash(), err)
		r.rejected[name] = err
		return
	}
	pkgpLog.Debugf("Transaction %s (%v) accepted with %d ancestors and "+
		"modified fee %v", name, tx.Hash(), entry.Ancestors.Count,
		entry.ModifiedFee)
}

func (r *scenarioRunner) spendChain(s *ChainStep) error {
	input, err := r.output(s.From)
	if err != nil {
		return err
	}
	for i := 0; i < s.Count; i++ {
		tx, err := buildTx([]spendable{input}, 1, btcutil.Amount(s.Fee))
		if err != nil {
			return err
		}
		r.offer(s.Name+strconv.Itoa(i), tx)
		input = spendable{
			outPoint: wire.OutPoint{Hash: *tx.Hash()},
			amount:   btcutil.Amount(tx.MsgTx().TxOut[0].Value),
		}
	}
	return nil
}

func (r *scenarioRunner) fanout(s *FanoutStep) error {
	inputs := make([]spendable, 0, len(s.From))
	for _, ref := range s.From {
		input, err := r.output(ref)
		if err != nil {
			return err
		}
		inputs = append(inputs, input)
	}
	tx, err := buildTx(inputs, s.Outputs, btcutil.Amount(s.Fee))
	if err != nil {
		return err
	}
	r.offer(s.Name, tx)
	return nil
}

func (r *scenarioRunner) mine(s *MineStep) error {
	var txs []*btcutil.Tx
	if s.All {
		for _, entry := range r.pool.Entries() {
			txs = append(txs, entry.Tx)
		}
	}
	for _, name := range s.Txs {
		tx, ok := r.txs[name]
		if !ok {
			return fmt.Errorf("unknown transaction %q", name)
		}
		txs = append(txs, tx)
	}

	block, err := r.chain.GenerateBlock(txs)
	if err != nil {
		return err
	}
	if s.Label != "" {
		r.blocks[s.Label] = *block.Hash()
	}
	return nil
}

func (r *scenarioRunner) invalidate(s *BlockStep) error {
	hash := r.chain.BestHash()
	if s.Block != "" {
		var ok bool
		hash, ok = r.blocks[s.Block]
		if !ok {
			return fmt.Errorf("unknown block %q", s.Block)
		}
	}
	if err := r.chain.InvalidateBlock(&hash); err != nil {
		return err
	}
	r.invalidated = append(r.invalidated, hash)
	return nil
}

func (r *scenarioRunner) reconsider(s *BlockStep) error {
	var hash chainhash.Hash
	switch {
	case s.Block != "":
		var ok bool
		hash, ok = r.blocks[s.Block]
		if !ok {
			return fmt.Errorf("unknown block %q", s.Block)
		}
	case len(r.invalidated) > 0:
		hash = r.invalidated[len(r.invalidated)-1]
	default:
		return errors.New("no invalidated block to reconsider")
	}

	if err := r.chain.ReconsiderBlock(&hash); err != nil {
		return err
	}
	for i, invalid := range r.invalidated {
		if invalid == hash {
			r.invalidated = append(r.invalidated[:i],
				r.invalidated[i+1:]...)
			break
		}
	}
	return nil
}

func (r *scenarioRunner) expect(s *ExpectStep) error {
	if s.Count != nil && r.pool.Count() != *s.Count {
		return fmt.Errorf("pool holds %d transactions, want %d",
			r.pool.Count(), *s.Count)
	}

	for name, want := range s.Entries {
		hash, err := r.txHash(name)
		if err != nil {
			return err
		}
		entry, err := r.pool.FetchEntry(hash)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if err := want.check(entry); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	for _, name := range s.Absent {
		hash, err := r.txHash(name)
		if err != nil {
			return err
		}
		if r.pool.HaveTransaction(hash) {
			return fmt.Errorf("%s is in the pool", name)
		}
	}

	for _, name := range s.Rejected {
		if _, ok := r.rejected[name]; !ok {
			return fmt.Errorf("%s was not rejected", name)
		}
	}

	return r.pool.CheckConsistency()
}

func (e *EntryExpectation) check(entry *mempool.EntrySnapshot) error {
	fields := []struct {
		name string
		want *int64
		got  int64
	}{
		{"modified fee", e.ModifiedFee, int64(entry.ModifiedFee)},
		{"ancestor count", e.AncestorCount, entry.Ancestors.Count},
		{"ancestor size", e.AncestorSize, entry.Ancestors.Size},
		{"ancestor fees", e.AncestorFees, int64(entry.Ancestors.Fees)},
		{"descendant count", e.DescendantCount, entry.Descendants.Count},
		{"descendant size", e.DescendantSize, entry.Descendants.Size},
		{"descendant fees", e.DescendantFees,
			int64(entry.Descendants.Fees)},
	}
	for _, field := range fields {
		if field.want != nil && *field.want != field.got {
			return fmt.Errorf("%s is %d, want %d", field.name,
				field.got, *field.want)
		}
	}
	return nil
}

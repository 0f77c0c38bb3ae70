// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

const (
	// DefaultCoinbaseOutputs is the default number of outputs paid by each
	// generated coinbase.
	DefaultCoinbaseOutputs = 10

	// DefaultCoinbaseValue is the default value of each coinbase output.
	DefaultCoinbaseValue = 5 * btcutil.SatoshiPerBitcoin

	// DefaultBlockInterval is the timestamp spacing of generated blocks.
	DefaultBlockInterval = 10 * time.Minute

	// regressionBits is the difficulty of generated blocks.  It is never
	// checked.
	regressionBits = 0x207fffff
)

// Params defines the shape of a simulated chain.
type Params struct {
	// CoinbaseOutputs is the number of outputs of every coinbase,
	// genesis included.
	CoinbaseOutputs int

	// CoinbaseValue is the value of each coinbase output.
	CoinbaseValue btcutil.Amount

	// GenesisTime is the timestamp of the genesis block.
	GenesisTime time.Time

	// BlockInterval is added to the timestamp of each later block.
	BlockInterval time.Duration
}

// DefaultParams returns the default chain parameters.
func DefaultParams() *Params {
	return &Params{
		CoinbaseOutputs: DefaultCoinbaseOutputs,
		CoinbaseValue:   DefaultCoinbaseValue,
		GenesisTime:     time.Unix(1296688602, 0),
		BlockInterval:   DefaultBlockInterval,
	}
}

// blockNode is a block on the main chain together with its spend journal.
type blockNode struct {
	block *btcutil.Block
	stxos []SpentTxOut
}

// Chain is an in-memory block chain.  It keeps the unspent output set of the
// main chain and a spend journal per block so blocks can be disconnected.
// There is no proof of work and no script evaluation: it exists to drive the
// mempool through confirmations and reorganizations.
type Chain struct {
	params *Params

	// chainLock protects every field below.
	chainLock sync.RWMutex
	utxos     map[wire.OutPoint]*UtxoEntry
	bestChain []*blockNode
	heights   map[chainhash.Hash]int32

	// invalid holds the hashes of blocks marked invalid and detached
	// holds the blocks disconnected when each was marked, in connection
	// order, so they can be reconnected by ReconsiderBlock.
	invalid  map[chainhash.Hash]struct{}
	detached map[chainhash.Hash][]*btcutil.Block

	// extraNonce makes every generated coinbase unique.
	extraNonce int64

	notificationsLock sync.RWMutex
	notifications     []NotificationCallback
}

// New returns a chain holding only a genesis block built from the passed
// parameters.
func New(params *Params) (*Chain, error) {
	if params == nil {
		params = DefaultParams()
	}
	if params.CoinbaseOutputs <= 0 {
		return nil, errors.New("coinbase outputs must be positive")
	}
	if params.CoinbaseValue <= 0 {
		return nil, errors.New("coinbase value must be positive")
	}

	c := &Chain{
		params:   params,
		utxos:    make(map[wire.OutPoint]*UtxoEntry),
		heights:  make(map[chainhash.Hash]int32),
		invalid:  make(map[chainhash.Hash]struct{}),
		detached: make(map[chainhash.Hash][]*btcutil.Block),
	}

	genesis, err := c.newBlock(chainhash.Hash{}, 0, nil)
	if err != nil {
		return nil, err
	}
	if err := c.connectBlock(genesis); err != nil {
		return nil, err
	}

	log.Debugf("Created chain with genesis block %v", genesis.Hash())
	return c, nil
}

// BestHash returns the hash of the tip.
//
// This function is safe for concurrent access.
func (c *Chain) BestHash() chainhash.Hash {
	c.chainLock.RLock()
	defer c.chainLock.RUnlock()

	return *c.tip().block.Hash()
}

// BestHeight returns the height of the tip.
//
// This function is safe for concurrent access.
func (c *Chain) BestHeight() int32 {
	c.chainLock.RLock()
	defer c.chainLock.RUnlock()

	return int32(len(c.bestChain) - 1)
}

// BlockByHeight returns the main chain block at the passed height.
//
// This function is safe for concurrent access.
func (c *Chain) BlockByHeight(height int32) (*btcutil.Block, error) {
	c.chainLock.RLock()
	defer c.chainLock.RUnlock()

	if height < 0 || int(height) >= len(c.bestChain) {
		str := fmt.Sprintf("no block at height %d exists", height)
		return nil, ruleError(ErrUnknownBlock, str)
	}
	return c.bestChain[height].block, nil
}

// FetchUtxo returns the unspent output for the passed outpoint, or nil if it
// does not exist or is spent.
//
// This function is safe for concurrent access.
func (c *Chain) FetchUtxo(op wire.OutPoint) *UtxoEntry {
	c.chainLock.RLock()
	defer c.chainLock.RUnlock()

	return c.utxos[op]
}

// tip returns the node at the end of the main chain.
//
// This function MUST be called with the chain lock held (for reads).
func (c *Chain) tip() *blockNode {
	return c.bestChain[len(c.bestChain)-1]
}

// newBlock builds a block on prevHash at the passed height with a fresh
// coinbase followed by txs.
func (c *Chain) newBlock(prevHash chainhash.Hash, height int32,
	txs []*btcutil.Tx) (*btcutil.Block, error) {

	coinbaseScript, err := txscript.NewScriptBuilder().
		AddInt64(int64(height)).
		AddInt64(c.extraNonce).
		Script()
	if err != nil {
		return nil, err
	}
	c.extraNonce++

	coinbase := wire.NewMsgTx(wire.TxVersion)
	coinbase.AddTxIn(&wire.TxIn{
		PreviousOutPoint: *wire.NewOutPoint(&chainhash.Hash{},
			wire.MaxPrevOutIndex),
		SignatureScript: coinbaseScript,
		Sequence:        wire.MaxTxInSequenceNum,
	})
	for i := 0; i < c.params.CoinbaseOutputs; i++ {
		coinbase.AddTxOut(wire.NewTxOut(int64(c.params.CoinbaseValue),
			[]byte{txscript.OP_TRUE}))
	}

	blockTxns := make([]*btcutil.Tx, 0, len(txs)+1)
	blockTxns = append(blockTxns, btcutil.NewTx(coinbase))
	blockTxns = append(blockTxns, txs...)

	timestamp := c.params.GenesisTime.Add(
		time.Duration(height) * c.params.BlockInterval)
	msgBlock := &wire.MsgBlock{
		Header: wire.BlockHeader{
			Version:    1,
			PrevBlock:  prevHash,
			MerkleRoot: blockchain.CalcMerkleRoot(blockTxns, false),
			Timestamp:  timestamp,
			Bits:       regressionBits,
		},
	}
	for _, tx := range blockTxns {
		if err := msgBlock.AddTransaction(tx.MsgTx()); err != nil {
			return nil, err
		}
	}

	block := btcutil.NewBlock(msgBlock)
	block.SetHeight(height)
	return block, nil
}

// connectBlock validates the block against the tip and connects it.  Nothing
// changes if it fails.
//
// This function MUST be called with the chain lock held (for writes).
func (c *Chain) connectBlock(block *btcutil.Block) error {
	blockHash := block.Hash()
	if _, ok := c.invalid[*blockHash]; ok {
		str := fmt.Sprintf("block %v is marked invalid", blockHash)
		return ruleError(ErrInvalidBlock, str)
	}

	var prevHash chainhash.Hash
	height := int32(len(c.bestChain))
	if height > 0 {
		prevHash = *c.tip().block.Hash()
	}
	if block.MsgBlock().Header.PrevBlock != prevHash {
		str := fmt.Sprintf("block %v does not extend the tip %v",
			blockHash, prevHash)
		return ruleError(ErrPrevBlockMismatch, str)
	}
	block.SetHeight(height)

	if err := checkBlockSanity(block); err != nil {
		return err
	}

	view := newUtxoViewpoint(c.utxos)
	var stxos []SpentTxOut
	for i, tx := range block.Transactions() {
		if i > 0 {
			_, err := checkTransactionInputs(tx,
				func(op wire.OutPoint) (int64, bool) {
					entry := view.lookupEntry(op)
					if entry == nil {
						return 0, false
					}
					return entry.amount, true
				})
			if err != nil {
				return err
			}
		}
		if err := view.connectTransaction(tx, height, &stxos); err != nil {
			return err
		}
	}
	view.commit()

	c.bestChain = append(c.bestChain, &blockNode{block: block, stxos: stxos})
	c.heights[*blockHash] = height

	log.Debugf("Connected block %v (height %d, %d %s)", blockHash, height,
		len(block.Transactions()), pickNoun(len(block.Transactions()),
			"transaction", "transactions"))
	return nil
}

// disconnectTip removes the tip from the main chain and restores the outputs
// it spent.
//
// This function MUST be called with the chain lock held (for writes).
func (c *Chain) disconnectTip() (*btcutil.Block, error) {
	if len(c.bestChain) <= 1 {
		return nil, ruleError(ErrGenesisBlock,
			"the genesis block cannot be disconnected")
	}

	node := c.tip()
	view := newUtxoViewpoint(c.utxos)
	if err := view.disconnectTransactions(node.block, node.stxos); err != nil {
		return nil, err
	}
	view.commit()

	c.bestChain = c.bestChain[:len(c.bestChain)-1]
	delete(c.heights, *node.block.Hash())

	log.Debugf("Disconnected block %v (height %d)", node.block.Hash(),
		node.block.Height())
	return node.block, nil
}

// ConnectBlock connects a block extending the tip and sends an
// NTBlockConnected notification.
//
// This function is safe for concurrent access.
func (c *Chain) ConnectBlock(block *btcutil.Block) error {
	c.chainLock.Lock()
	err := c.connectBlock(block)
	c.chainLock.Unlock()
	if err != nil {
		return err
	}

	c.sendNotifications([]*Notification{{
		Type: NTBlockConnected,
		Data: block,
	}})
	return nil
}

// GenerateBlock builds a block on the tip containing a fresh coinbase and the
// passed transactions, in order, and connects it.
//
// This function is safe for concurrent access.
func (c *Chain) GenerateBlock(txs []*btcutil.Tx) (*btcutil.Block, error) {
	c.chainLock.Lock()
	block, err := c.newBlock(*c.tip().block.Hash(),
		int32(len(c.bestChain)), txs)
	if err == nil {
		err = c.connectBlock(block)
	}
	c.chainLock.Unlock()
	if err != nil {
		return nil, err
	}

	c.sendNotifications([]*Notification{{
		Type: NTBlockConnected,
		Data: block,
	}})
	return block, nil
}

// DisconnectTip disconnects the tip and sends an NTBlockDisconnected
// notification.
//
// This function is safe for concurrent access.
func (c *Chain) DisconnectTip() (*btcutil.Block, error) {
	c.chainLock.Lock()
	block, err := c.disconnectTip()
	c.chainLock.Unlock()
	if err != nil {
		return nil, err
	}

	c.sendNotifications([]*Notification{{
		Type: NTBlockDisconnected,
		Data: block,
	}})
	return block, nil
}

// InvalidateBlock marks a main chain block invalid and disconnects it along
// with every block built on it.  A single NTReorganization notification
// lists the disconnected blocks, tip first.
//
// This function is safe for concurrent access.
func (c *Chain) InvalidateBlock(hash *chainhash.Hash) error {
	c.chainLock.Lock()
	height, ok := c.heights[*hash]
	if !ok {
		c.chainLock.Unlock()
		str := fmt.Sprintf("block %v is not in the main chain", hash)
		return ruleError(ErrUnknownBlock, str)
	}
	if height == 0 {
		c.chainLock.Unlock()
		return ruleError(ErrGenesisBlock,
			"the genesis block cannot be invalidated")
	}

	var detached []*btcutil.Block
	for int32(len(c.bestChain)) > height {
		block, err := c.disconnectTip()
		if err != nil {
			c.chainLock.Unlock()
			return err
		}
		detached = append(detached, block)
	}

	connectOrder := make([]*btcutil.Block, len(detached))
	for i, block := range detached {
		connectOrder[len(detached)-1-i] = block
	}
	c.invalid[*hash] = struct{}{}
	c.detached[*hash] = connectOrder
	c.chainLock.Unlock()

	log.Infof("Invalidated block %v, disconnected %d %s", hash,
		len(detached), pickNoun(len(detached), "block", "blocks"))

	c.sendNotifications([]*Notification{{
		Type: NTReorganization,
		Data: &ReorganizationData{Detached: detached},
	}})
	return nil
}

// ReconsiderBlock clears the invalid mark of a block and reconnects the
// blocks disconnected when it was marked.  When blocks were connected in the
// meantime the stored branch only replaces them if it is longer.  A single
// NTReorganization notification describes the switch.
//
// This function is safe for concurrent access.
func (c *Chain) ReconsiderBlock(hash *chainhash.Hash) error {
	c.chainLock.Lock()
	branch, ok := c.detached[*hash]
	if !ok {
		c.chainLock.Unlock()
		str := fmt.Sprintf("block %v is not marked invalid", hash)
		return ruleError(ErrUnknownBlock, str)
	}
	delete(c.invalid, *hash)
	delete(c.detached, *hash)

	forkHash := branch[0].MsgBlock().Header.PrevBlock
	forkHeight, ok := c.heights[forkHash]
	if !ok {
		c.chainLock.Unlock()
		str := fmt.Sprintf("parent %v of reconsidered block %v is not "+
			"in the main chain", forkHash, hash)
		return ruleError(ErrUnknownBlock, str)
	}

	current := int32(len(c.bestChain)-1) - forkHeight
	if int32(len(branch)) <= current {
		c.chainLock.Unlock()
		log.Infof("Reconsidered block %v, keeping current chain "+
			"with %d blocks past the fork", hash, current)
		return nil
	}

	data, err := c.switchBranch(forkHeight, branch)
	c.chainLock.Unlock()
	if err != nil {
		return err
	}

	log.Infof("Reconsidered block %v, connected %d %s", hash,
		len(data.Attached), pickNoun(len(data.Attached), "block",
			"blocks"))

	c.sendNotifications([]*Notification{{
		Type: NTReorganization,
		Data: data,
	}})
	return nil
}

// switchBranch disconnects the main chain down to forkHeight and connects
// branch.  If any block of the branch fails to connect the original chain is
// restored.
//
// This function MUST be called with the chain lock held (for writes).
func (c *Chain) switchBranch(forkHeight int32,
	branch []*btcutil.Block) (*ReorganizationData, error) {

	var detached []*btcutil.Block
	for int32(len(c.bestChain)-1) > forkHeight {
		block, err := c.disconnectTip()
		if err != nil {
			return nil, err
		}
		detached = append(detached, block)
	}

	for i, block := range branch {
		err := c.connectBlock(block)
		if err == nil {
			continue
		}

		// Roll back to the original chain.
		for j := 0; j < i; j++ {
			if _, rbErr := c.disconnectTip(); rbErr != nil {
				return nil, rbErr
			}
		}
		for j := len(detached) - 1; j >= 0; j-- {
			if rbErr := c.connectBlock(detached[j]); rbErr != nil {
				return nil, rbErr
			}
		}
		return nil, err
	}

	return &ReorganizationData{Detached: detached, Attached: branch}, nil
}

// pickNoun returns the singular or plural form of a noun depending
// on the count n.
func pickNoun(n int, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}

// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"github.com/btcsuite/btcd/btcjson"
)

// VerboseEntry models a verbose getrawmempool entry extended with the
// package statistics.  Fee and ModifiedFee are in coins, the package fee
// totals are in satoshis.
type VerboseEntry struct {
	btcjson.GetRawMempoolVerboseResult

	Vsize           int32   `json:"vsize"`
	Weight          int32   `json:"weight"`
	ModifiedFee     float64 `json:"modifiedfee"`
	DescendantCount int64   `json:"descendantcount"`
	DescendantSize  int64   `json:"descendantsize"`
	DescendantFees  int64   `json:"descendantfees"`
	AncestorCount   int64   `json:"ancestorcount"`
	AncestorSize    int64   `json:"ancestorsize"`
	AncestorFees    int64   `json:"ancestorfees"`
}

// Verbose renders the snapshot in verbose getrawmempool form.
func (s *EntrySnapshot) Verbose() *VerboseEntry {
	depends := make([]string, 0, len(s.Depends))
	for _, hash := range s.Depends {
		depends = append(depends, hash.String())
	}

	msgTx := s.Tx.MsgTx()
	weight := int64(msgTx.SerializeSizeStripped())*3 +
		int64(msgTx.SerializeSize())

	return &VerboseEntry{
		GetRawMempoolVerboseResult: btcjson.GetRawMempoolVerboseResult{
			Size:    int32(s.Size),
			Fee:     s.Fee.ToBTC(),
			Time:    s.Added.Unix(),
			Height:  int64(s.Height),
			Depends: depends,
		},
		Vsize:           int32((weight + 3) / 4),
		Weight:          int32(weight),
		ModifiedFee:     s.ModifiedFee.ToBTC(),
		DescendantCount: s.Descendants.Count,
		DescendantSize:  s.Descendants.Size,
		DescendantFees:  int64(s.Descendants.Fees),
		AncestorCount:   s.Ancestors.Count,
		AncestorSize:    s.Ancestors.Size,
		AncestorFees:    int64(s.Ancestors.Fees),
	}
}

// RawMempoolVerbose returns every pool entry in verbose getrawmempool form
// keyed by transaction hash.
//
// This function is safe for concurrent access.
func (mp *TxPool) RawMempoolVerbose() map[string]*VerboseEntry {
	mp.mtx.RLock()
	defer mp.mtx.RUnlock()

	result := make(map[string]*VerboseEntry, len(mp.pool))
	for hash, entry := range mp.pool {
		result[hash.String()] = entry.snapshot(mp.depends(entry)).Verbose()
	}
	return result
}

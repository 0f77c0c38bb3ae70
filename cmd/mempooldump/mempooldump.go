// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// mempooldump prints the mempool persisted by pkgpool.
package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/btcsuite/btclog"
	"github.com/btcsuite/pkgpool/mempool/mempooldb"
	"github.com/davecgh/go-spew/spew"
)

var log btclog.Logger

// dumpTx is the JSON form of a persisted transaction.
type dumpTx struct {
	Txid  string `json:"txid"`
	Added int64  `json:"time"`
	Size  int    `json:"size"`
	Hex   string `json:"hex"`
}

// dumpJSON is the JSON form of a dump.
type dumpJSON struct {
	Version uint32           `json:"version"`
	Txs     []dumpTx         `json:"transactions"`
	Deltas  map[string]int64 `json:"feedeltas"`
}

func toJSON(dump *mempooldb.Dump) (*dumpJSON, error) {
	out := &dumpJSON{
		Version: dump.Version,
		Txs:     make([]dumpTx, 0, len(dump.Txs)),
		Deltas:  make(map[string]int64, len(dump.Deltas)),
	}
	for _, record := range dump.Txs {
		var buf bytes.Buffer
		if err := record.Tx.MsgTx().Serialize(&buf); err != nil {
			return nil, err
		}
		raw := buf.Bytes()
		out.Txs = append(out.Txs, dumpTx{
			Txid:  record.Tx.Hash().String(),
			Added: record.Added.Unix(),
			Size:  len(raw),
			Hex:   hex.EncodeToString(raw),
		})
	}
	for hash, delta := range dump.Deltas {
		out.Deltas[hash.String()] = int64(delta)
	}
	return out, nil
}

// writeText prints one line per transaction followed by the fee deltas sorted
// by hash.
func writeText(w io.Writer, dump *mempooldb.Dump) {
	fmt.Fprintf(w, "version %d, %d transactions, %d fee deltas\n",
		dump.Version, len(dump.Txs), len(dump.Deltas))
	for i, record := range dump.Txs {
		fmt.Fprintf(w, "%4d %v %s %d bytes\n", i, record.Tx.Hash(),
			record.Added.UTC().Format("2006-01-02 15:04:05"),
			record.Tx.MsgTx().SerializeSize())
	}

	deltas := make(map[string]int64, len(dump.Deltas))
	hashes := make([]string, 0, len(dump.Deltas))
	for hash, delta := range dump.Deltas {
		deltas[hash.String()] = int64(delta)
		hashes = append(hashes, hash.String())
	}
	sort.Strings(hashes)
	for _, hash := range hashes {
		fmt.Fprintf(w, "delta %s %+d\n", hash, deltas[hash])
	}
}

// writeDump renders dump to w in the format selected by cfg.
func writeDump(w io.Writer, cfg *config, dump *mempooldb.Dump) error {
	switch {
	case cfg.JSON:
		out, err := toJSON(dump)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	case cfg.Spew:
		spew.Fdump(w, dump)
		return nil
	}
	writeText(w, dump)
	return nil
}

func realMain() error {
	backendLogger := btclog.NewBackend(os.Stderr)
	defer os.Stderr.Sync()
	log = backendLogger.Logger("MAIN")
	mempooldb.UseLogger(backendLogger.Logger("MPDB"))

	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		return err
	}

	db, err := mempooldb.Open(cfg.DbType, cfg.DbPath)
	if err != nil {
		log.Errorf("Failed to open database: %v", err)
		return err
	}
	defer db.Close()

	dump, err := mempooldb.Read(db)
	if err != nil {
		log.Errorf("Failed to read mempool: %v", err)
		return err
	}

	return writeDump(os.Stdout, cfg, dump)
}

func main() {
	if err := realMain(); err != nil {
		os.Exit(1)
	}
}

// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/pkgpool/mempool/mempooldb"
	flags "github.com/jessevdk/go-flags"
)

var (
	pkgpoolHomeDir = btcutil.AppDataDir("pkgpool", false)
	defaultDataDir = filepath.Join(pkgpoolHomeDir, "data")
)

// config defines the configuration options for mempooldump.
type config struct {
	DataDir string `short:"b" long:"datadir" description:"Location of the pkgpool data directory"`
	DbPath  string `long:"dbpath" description:"Path of the mempool database, overriding --datadir"`
	DbType  string `long:"dbtype" description:"Database backend {leveldb, pebble}"`
	JSON    bool   `short:"j" long:"json" description:"Print the dump as JSON"`
	Spew    bool   `short:"s" long:"spew" description:"Print a spew dump of the decoded records"`
}

// validDbType returns whether or not dbType is a supported database type.
func validDbType(dbType string) bool {
	for _, knownType := range mempooldb.SupportedTypes {
		if dbType == knownType {
			return true
		}
	}
	return false
}

// loadConfig parses the command line options.
func loadConfig(args []string) (*config, error) {
	cfg := config{
		DataDir: defaultDataDir,
		DbType:  mempooldb.TypeLevelDB,
	}

	parser := flags.NewParser(&cfg, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}

	if !validDbType(cfg.DbType) {
		return nil, fmt.Errorf("the specified database type [%v] is "+
			"invalid -- supported types %v", cfg.DbType,
			mempooldb.SupportedTypes)
	}
	if cfg.JSON && cfg.Spew {
		return nil, fmt.Errorf("the --json and --spew options can " +
			"not be used together")
	}
	if cfg.DbPath == "" {
		cfg.DbPath = mempooldb.DefaultPath(cfg.DataDir, cfg.DbType)
	}
	if _, err := os.Stat(cfg.DbPath); err != nil {
		return nil, fmt.Errorf("mempool database %s: %w", cfg.DbPath, err)
	}
	return &cfg, nil
}

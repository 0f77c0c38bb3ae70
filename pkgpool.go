// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/pkgpool/chain"
	"github.com/btcsuite/pkgpool/database/engine"
	"github.com/btcsuite/pkgpool/internal/log"
	"github.com/btcsuite/pkgpool/internal/version"
	"github.com/btcsuite/pkgpool/mempool"
	"github.com/btcsuite/pkgpool/mempool/mempooldb"
)

var pkgpLog = log.PkgpLog

// pkgpoolMain is the real main function for pkgpool.  It is necessary to work
// around the fact that deferred functions do not run when os.Exit() is called.
func pkgpoolMain() error {
	cfg, _, err := loadConfig(os.Args[1:])
	if err != nil {
		return err
	}

	if err := log.InitLogRotator(filepath.Join(cfg.LogDir,
		defaultLogFilename)); err != nil {

		fmt.Fprintln(os.Stderr, err)
		return err
	}
	defer func() {
		if log.LogRotator != nil {
			log.LogRotator.Close()
		}
	}()

	interrupt := interruptListener()
	defer pkgpLog.Info("Shutdown complete")

	pkgpLog.Infof("Version %s", version.String())

	c, err := chain.New(chain.DefaultParams())
	if err != nil {
		return err
	}
	pool, err := mempool.New(&mempool.Config{
		Limits:     cfg.limits(),
		Validator:  c,
		BestHeight: c.BestHeight,
	})
	if err != nil {
		return err
	}
	c.Subscribe(mempool.ChainListener(pool))

	var db engine.Engine
	if !cfg.NoPersist {
		dbPath := mempooldb.DefaultPath(cfg.DataDir, cfg.DbType)
		db, err = mempooldb.Open(cfg.DbType, dbPath)
		if err != nil {
			pkgpLog.Errorf("Unable to open mempool database %s: %v",
				dbPath, err)
			return err
		}
		defer func() {
			pkgpLog.Infof("Storing mempool to %s", dbPath)
			if err := mempooldb.Store(pool, db); err != nil {
				pkgpLog.Errorf("Unable to store mempool: %v", err)
			}
			db.Close()
		}()

		_, err := mempooldb.Load(pool, db, cfg.MempoolExpiry, time.Now())
		if err != nil {
			pkgpLog.Errorf("Unable to load mempool: %v", err)
			return err
		}
	}

	if cfg.Scenario != "" {
		scenario, err := LoadScenario(cfg.Scenario)
		if err != nil {
			pkgpLog.Errorf("Unable to load scenario: %v", err)
			return err
		}
		err = newScenarioRunner(c, pool).Run(scenario, interrupt)
		switch {
		case errors.Is(err, errInterrupted):
			return nil
		case err != nil:
			pkgpLog.Errorf("Scenario %q failed: %v", scenario.Name, err)
			return err
		}
		pkgpLog.Infof("Scenario %q completed with %d pool %s at height "+
			"%d", scenario.Name, pool.Count(), pickNoun(pool.Count(),
			"transaction", "transactions"), c.BestHeight())
	}

	if cfg.DumpJSON {
		out, err := json.MarshalIndent(pool.RawMempoolVerbose(), "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	}

	return nil
}

// pickNoun returns the singular or plural form of a noun depending
// on the count n.
func pickNoun(n int, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}

func main() {
	if err := pkgpoolMain(); err != nil {
		os.Exit(1)
	}
}

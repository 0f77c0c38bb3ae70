// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/pkgpool/internal/log"
	"github.com/btcsuite/pkgpool/internal/version"
	"github.com/btcsuite/pkgpool/mempool"
	"github.com/btcsuite/pkgpool/mempool/mempooldb"
	"github.com/btcsuite/pkgpool/sampleconfig"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename = "pkgpool.conf"
	defaultDataDirname    = "data"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "pkgpool.log"
	defaultLogLevel       = "info"
	defaultDbType         = mempooldb.TypeLevelDB
	defaultExpiry         = 14 * 24 * time.Hour
)

var (
	defaultHomeDir    = btcutil.AppDataDir("pkgpool", false)
	defaultConfigFile = filepath.Join(defaultHomeDir, defaultConfigFilename)
	defaultDataDir    = filepath.Join(defaultHomeDir, defaultDataDirname)
	defaultLogDir     = filepath.Join(defaultHomeDir, defaultLogDirname)
)

// config defines the configuration options for pkgpool.
//
// See loadConfig for details on the configuration load process.
type config struct {
	ShowVersion          bool          `short:"V" long:"version" description:"Display version information and exit"`
	ConfigFile           string        `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir              string        `short:"b" long:"datadir" description:"Directory to store the persisted mempool"`
	LogDir               string        `long:"logdir" description:"Directory to log output"`
	DbType               string        `long:"dbtype" description:"Database backend to use for the persisted mempool {leveldb, pebble}"`
	DebugLevel           string        `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`
	LimitAncestorCount   int64         `long:"limitancestorcount" description:"Maximum number of in-pool ancestors of a transaction, itself included"`
	LimitAncestorSize    int64         `long:"limitancestorsize" description:"Maximum virtual size in bytes of a transaction with all its in-pool ancestors"`
	LimitDescendantCount int64         `long:"limitdescendantcount" description:"Maximum number of in-pool descendants of any pool transaction, itself included"`
	LimitDescendantSize  int64         `long:"limitdescendantsize" description:"Maximum virtual size in bytes of a pool transaction with all its in-pool descendants"`
	MempoolExpiry        time.Duration `long:"mempoolexpiry" description:"Do not restore persisted transactions older than this.  Valid time units are {s, m, h}.  Zero keeps all"`
	Scenario             string        `short:"s" long:"scenario" description:"Path to a YAML scenario to replay against the pool"`
	NoPersist            bool          `long:"nopersist" description:"Do not load the mempool on startup or store it on shutdown"`
	DumpJSON             bool          `long:"dumpjson" description:"Print the verbose mempool as JSON before exiting"`
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		homeDir := filepath.Dir(defaultHomeDir)
		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but the variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
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

// fileExists reports whether the named file or directory exists.
func fileExists(name string) bool {
	if _, err := os.Stat(name); err != nil {
		if os.IsNotExist(err) {
			return false
		}
	}
	return true
}

// createDefaultConfigFile writes the sample configuration to destPath.
func createDefaultConfigFile(destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0700); err != nil {
		return err
	}
	return os.WriteFile(destPath, []byte(sampleconfig.FileContents), 0600)
}

// limits returns the package limits selected by the configuration.
func (cfg *config) limits() mempool.Limits {
	return mempool.Limits{
		MaxAncestorCount:   cfg.LimitAncestorCount,
		MaxAncestorSize:    cfg.LimitAncestorSize,
		MaxDescendantCount: cfg.LimitDescendantCount,
		MaxDescendantSize:  cfg.LimitDescendantSize,
	}
}

// newConfigParser returns a new command line flags parser.
func newConfigParser(cfg *config, options flags.Options) *flags.Parser {
	return flags.NewParser(cfg, options)
}

// defaultConfig returns the configuration before any file or command line
// option is applied.
func defaultConfig() config {
	limits := mempool.DefaultLimits()
	return config{
		ConfigFile:           defaultConfigFile,
		DataDir:              defaultDataDir,
		LogDir:               defaultLogDir,
		DbType:               defaultDbType,
		DebugLevel:           defaultLogLevel,
		LimitAncestorCount:   limits.MaxAncestorCount,
		LimitAncestorSize:    limits.MaxAncestorSize,
		LimitDescendantCount: limits.MaxDescendantCount,
		LimitDescendantSize:  limits.MaxDescendantSize,
		MempoolExpiry:        defaultExpiry,
	}
}

// loadConfig initializes and parses the config using a config file and command
// line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
//
// The above results in pkgpool functioning properly without any config
// settings while still allowing the user to override settings with config
// files and command line options.  Command line options always take
// precedence.
func loadConfig(args []string) (*config, []string, error) {
	cfg := defaultConfig()

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified.
	preCfg := cfg
	preParser := newConfigParser(&preCfg, flags.HelpFlag)
	_, err := preParser.ParseArgs(args)
	if err != nil {
		var e *flags.Error
		if errors.As(err, &e) && e.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, err)
			os.Exit(0)
		}
		return nil, nil, err
	}

	// Show the version and exit if the version flag was specified.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	usageMessage := fmt.Sprintf("Use %s -h to show usage", appName)
	if preCfg.ShowVersion {
		fmt.Println(appName, "version", version.String())
		os.Exit(0)
	}

	// Create the default config file from the sample when it does not exist
	// yet.
	if preCfg.ConfigFile == defaultConfigFile && !fileExists(defaultConfigFile) {
		if err := createDefaultConfigFile(defaultConfigFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating a default config "+
				"file: %v\n", err)
		}
	}

	// Load additional config from file.  A missing default config file is
	// not an error.
	parser := newConfigParser(&cfg, flags.Default)
	err = flags.NewIniParser(parser).ParseFile(preCfg.ConfigFile)
	if err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) ||
			preCfg.ConfigFile != defaultConfigFile {

			fmt.Fprintf(os.Stderr, "Error parsing config file: %v\n", err)
			fmt.Fprintln(os.Stderr, usageMessage)
			return nil, nil, err
		}
	}

	// Parse command line options again to ensure they take precedence.
	remainingArgs, err := parser.ParseArgs(args)
	if err != nil {
		return nil, nil, err
	}

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", log.SupportedSubsystems())
		os.Exit(0)
	}

	// Parse, validate, and set debug log level(s).
	if err := log.ParseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		err := fmt.Errorf("%s: %v", "loadConfig", err)
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}

	// Validate database type.
	if !validDbType(cfg.DbType) {
		str := "%s: The specified database type [%v] is invalid -- " +
			"supported types %v"
		err := fmt.Errorf(str, "loadConfig", cfg.DbType,
			mempooldb.SupportedTypes)
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}

	// Validate the package limits.
	limits := cfg.limits()
	if err := limits.Validate(); err != nil {
		err := fmt.Errorf("%s: %v", "loadConfig", err)
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}

	if cfg.MempoolExpiry < 0 {
		str := "%s: The mempoolexpiry option may not be negative " +
			"-- parsed [%v]"
		err := fmt.Errorf(str, "loadConfig", cfg.MempoolExpiry)
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}

	cfg.DataDir = cleanAndExpandPath(cfg.DataDir)
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)
	if cfg.Scenario != "" {
		cfg.Scenario = cleanAndExpandPath(cfg.Scenario)
	}

	if !cfg.NoPersist {
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			str := "%s: failed to create data directory: %v"
			err := fmt.Errorf(str, "loadConfig", err)
			fmt.Fprintln(os.Stderr, err)
			return nil, nil, err
		}
	}

	return &cfg, remainingArgs, nil
}

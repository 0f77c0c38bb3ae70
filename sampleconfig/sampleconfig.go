// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sampleconfig

import (
	_ "embed"
)

// FileContents is a string containing the commented example config for
// pkgpool.
//
//go:embed sample-pkgpool.conf
var FileContents string

// Scenario is a sample scenario walking a pool through package building,
// prioritisation, a confirmation and a reorganization.
//
//go:embed sample-scenario.yaml
var Scenario string

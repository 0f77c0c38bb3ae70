// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package sampleconfig provides the contents of the sample configuration file
for pkgpool and a sample scenario.  The configuration is written to the default
location on first start so users find every option documented in place.
*/
package sampleconfig

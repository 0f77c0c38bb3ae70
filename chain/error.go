// Copyright (c) 2014-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"fmt"
)

// ErrorCode identifies a kind of error.
type ErrorCode int

// These constants are used to identify a specific RuleError.
const (
	// ErrMissingInputs indicates a transaction spends an output that is
	// neither unspent in the chain nor created by a pool transaction.
	ErrMissingInputs ErrorCode = iota

	// ErrBadFee indicates a transaction spends more than its inputs
	// provide.
	ErrBadFee

	// ErrUnexpectedCoinbase indicates a coinbase transaction was offered
	// outside the first position of a block.
	ErrUnexpectedCoinbase

	// ErrFirstTxNotCoinbase indicates the first transaction of a block is
	// not a coinbase.
	ErrFirstTxNotCoinbase

	// ErrPrevBlockMismatch indicates a block does not extend the current
	// tip.
	ErrPrevBlockMismatch

	// ErrInvalidBlock indicates a block was marked invalid.
	ErrInvalidBlock

	// ErrUnknownBlock indicates the referenced block is not known.
	ErrUnknownBlock

	// ErrGenesisBlock indicates an attempt to disconnect the genesis
	// block.
	ErrGenesisBlock
)

// Map of ErrorCode values back to their constant names for pretty printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrMissingInputs:      "ErrMissingInputs",
	ErrBadFee:             "ErrBadFee",
	ErrUnexpectedCoinbase: "ErrUnexpectedCoinbase",
	ErrFirstTxNotCoinbase: "ErrFirstTxNotCoinbase",
	ErrPrevBlockMismatch:  "ErrPrevBlockMismatch",
	ErrInvalidBlock:       "ErrInvalidBlock",
	ErrUnknownBlock:       "ErrUnknownBlock",
	ErrGenesisBlock:       "ErrGenesisBlock",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// RuleError identifies a rule violation.  It is used to indicate that
// processing of a block or transaction failed due to one of the many
// validation rules.  The caller can use type assertions to determine if a
// failure was specifically due to a rule violation and access the ErrorCode
// field to ascertain the specific reason for the rule violation.
type RuleError struct {
	ErrorCode   ErrorCode // Describes the kind of error
	Description string    // Human readable description of the issue
}

// Error satisfies the error interface and prints human-readable errors.
func (e RuleError) Error() string {
	return e.Description
}

// ruleError creates an RuleError given a set of arguments.
func ruleError(c ErrorCode, desc string) RuleError {
	return RuleError{ErrorCode: c, Description: desc}
}

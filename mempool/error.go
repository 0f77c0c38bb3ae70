// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by queries for a transaction that is not in
	// the pool.
	ErrNotFound = errors.New("transaction not in mempool")

	// ErrTooLongMempoolChain is wrapped by every LimitError. Callers that
	// only care whether a rejection was a package limit can test for it
	// with errors.Is.
	ErrTooLongMempoolChain = errors.New("too-long-mempool-chain")

	// ErrValidationRejected is wrapped around errors returned by the
	// validation collaborator so they stay distinguishable from limit
	// rejections.
	ErrValidationRejected = errors.New("rejected by validation")
)

// LimitKind identifies which package limit a transaction would exceed.
type LimitKind uint8

const (
	// AncestorCount is the number of in-pool ancestors including the
	// transaction itself.
	AncestorCount LimitKind = iota

	// AncestorSize is the total size of in-pool ancestors including the
	// transaction itself.
	AncestorSize

	// DescendantCount is the number of in-pool descendants of some
	// ancestor, including the ancestor itself.
	DescendantCount

	// DescendantSize is the total size of in-pool descendants of some
	// ancestor, including the ancestor itself.
	DescendantSize
)

var limitKindStrings = map[LimitKind]string{
	AncestorCount:   "ancestor count",
	AncestorSize:    "ancestor size",
	DescendantCount: "descendant count",
	DescendantSize:  "descendant size",
}

// String returns the LimitKind in human-readable form.
func (k LimitKind) String() string {
	if s, ok := limitKindStrings[k]; ok {
		return s
	}
	return fmt.Sprintf("Unknown LimitKind (%d)", int(k))
}

// LimitError describes an admission refused because the transaction's
// package would exceed a configured limit. The transaction never enters the
// pool and no other entry is changed.
type LimitError struct {
	// Kind is the limit that was exceeded.
	Kind LimitKind

	// Limit is the configured maximum.
	Limit int64

	// Value is what the count or size would have been after admission.
	Value int64
}

// Error satisfies the error interface.
func (e *LimitError) Error() string {
	return fmt.Sprintf("%v: %v %d exceeds limit %d",
		ErrTooLongMempoolChain, e.Kind, e.Value, e.Limit)
}

// Unwrap returns ErrTooLongMempoolChain.
func (e *LimitError) Unwrap() error {
	return ErrTooLongMempoolChain
}

// ErrorCode identifies a kind of pool rule violation.
type ErrorCode int

// These constants are used to identify a specific RuleError.
const (
	// ErrDuplicate indicates the transaction is already in the pool.
	ErrDuplicate ErrorCode = iota

	// ErrDoubleSpend indicates the transaction spends an output that is
	// already spent by another pool transaction.
	ErrDoubleSpend

	// ErrRecentlyRejected indicates the exact same transaction was
	// rejected for package limits since the last chain tip change.
	ErrRecentlyRejected

	// ErrPoolFull indicates the dependency index is at capacity.
	ErrPoolFull
)

// Map of ErrorCode values back to their constant names for pretty printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrDuplicate:        "ErrDuplicate",
	ErrDoubleSpend:      "ErrDoubleSpend",
	ErrRecentlyRejected: "ErrRecentlyRejected",
	ErrPoolFull:         "ErrPoolFull",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// RuleError identifies a pool rule violation. The caller can use errors.As
// to determine if a failure was specifically due to a rule violation and
// access the ErrorCode field to ascertain the specific reason.
type RuleError struct {
	ErrorCode   ErrorCode // Describes the kind of error
	Description string    // Human readable description of the issue
}

// Error satisfies the error interface and prints human-readable errors.
func (e RuleError) Error() string {
	return e.Description
}

// ruleError creates a RuleError given a set of arguments.
func ruleError(c ErrorCode, desc string) RuleError {
	return RuleError{ErrorCode: c, Description: desc}
}

// AssertError identifies an error that indicates an internal code consistency
// issue. It halts the mutation that detected it and is logged loudly, but the
// rest of the pool stays usable.
type AssertError string

// Error returns the assertion error as a human-readable string and satisfies
// the error interface.
func (e AssertError) Error() string {
	return "assertion failed: " + string(e)
}

// IsAssertError reports whether err is or wraps an AssertError.
func IsAssertError(err error) bool {
	var assertErr AssertError
	return errors.As(err, &assertErr)
}

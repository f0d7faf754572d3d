// Copyright 2025 The neocore Authors
//
// Package ledger implements the native ledger contract: block/transaction
// persistence, the traceability window, and conflict-stub admission.
package ledger

import "errors"

// Sentinel errors for ledger operations.
var (
	ErrUnknownBlock       = errors.New("ledger: unknown block")
	ErrUnknownTransaction = errors.New("ledger: unknown transaction")
	ErrNoCurrentBlock     = errors.New("ledger: no current block persisted yet")
	ErrHasConflicts       = errors.New("ledger: transaction conflicts with a persisted transaction")
	ErrMalformedHeader    = errors.New("ledger: malformed block header")
	ErrMalformedRecord    = errors.New("ledger: malformed transaction state record")
	ErrOutOfOrderBlock    = errors.New("ledger: block index is not current+1")
)

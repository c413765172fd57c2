package domain

import "errors"

var (
	// ErrNotFound means the ledger has no campaign at the requested
	// identifier. Expected for ids outside 1..count, not a failure.
	ErrNotFound = errors.New("campaign not found")

	// ErrReverted means the ledger rejected the submitted transaction.
	// Terminal, never retried.
	ErrReverted = errors.New("transaction reverted")

	// ErrLedgerUnavailable is a transport-level failure reaching the ledger
	// node. Transient, retryable by the caller.
	ErrLedgerUnavailable = errors.New("ledger unavailable")

	// ErrLedgerUnconfigured means no ledger client was injected at startup.
	ErrLedgerUnconfigured = errors.New("ledger client not configured")

	// ErrIdentifierUnresolved means a creation is known to have succeeded on
	// the ledger but its assigned identifier could not be determined. The
	// caller must queue a deferred reconciliation keyed by transaction hash
	// instead of inventing an identifier.
	ErrIdentifierUnresolved = errors.New("campaign identifier unresolved")

	// ErrCacheUnavailable is a secondary-store failure. Always non-fatal to
	// the primary flow: the ledger write already succeeded.
	ErrCacheUnavailable = errors.New("cache store unavailable")

	// ErrConfirmationTimeout means confirmation polling gave up before a
	// receipt appeared. The transaction state is unknown; recovery is to poll
	// ledger state, never to resubmit.
	ErrConfirmationTimeout = errors.New("confirmation timed out")
)

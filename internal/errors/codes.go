// Package errors provides machine-readable error codes for the sync core.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Precondition errors
	CodeAccountMissing Code = "ACCOUNT_MISSING"
	CodeRoundIDMissing Code = "ROUND_ID_MISSING"

	// Transaction errors
	CodeTxInFlight    Code = "TX_IN_FLIGHT"
	CodeQueueCleared  Code = "QUEUE_CLEARED"
	CodeChainCall     Code = "CHAIN_CALL_FAILED"
	CodeTxUnknown     Code = "TX_UNKNOWN"
	CodeTxDuplicateID Code = "TX_DUPLICATE_ID"

	// Reconciliation errors
	CodeRoundNotFound    Code = "ROUND_NOT_FOUND"
	CodeRoundSyncTimeout Code = "ROUND_SYNC_TIMEOUT"

	// Phase machine errors
	CodePhaseTransition Code = "PHASE_INVALID_TRANSITION"
	CodeNotAnswerable   Code = "NOT_ANSWERABLE"

	// Decode errors
	CodeCardParse Code = "CARD_PARSE"

	// Journal errors
	CodeJournalAppend Code = "JOURNAL_APPEND_FAILED"
)

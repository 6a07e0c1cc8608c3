// Package core implements the transaction execution pipeline: prologue,
// payload dispatch, gas metering, epilogue, and failure cleanup (spec.md §4),
// plus the block-level speculative driver (spec.md §4.5).
package core

import "errors"

// Sentinel errors for the taxonomy spec.md §7 describes. Every Discard or
// invariant-violation pipeline failure wraps its category
// (ErrDiscard/ErrInvariantViolation), and where the failing condition is one
// of the specific ones named below, that sentinel too — callers can
// errors.Is/errors.As against either level instead of matching strings
// (SPEC_FULL.md §7 "Go error-handling convention"). Keep failures (MoveAbort,
// out of gas, execution failure) carry no category sentinel.
var (
	// ErrDiscard marks a Discard(code) classification: no gas charged, empty
	// output (spec.md §7 taxonomy row "Discard(code)").
	ErrDiscard = errors.New("transaction discarded")

	// ErrInvariantViolation marks a runtime invariant, paranoid-mode, or
	// reference-counting failure (spec.md §7 "InvariantViolation" row).
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrSpeculativeExecutionAbort marks a read-validation conflict under
	// parallel execution (spec.md §7 "SpeculativeExecutionAbort" row). The
	// parallel executor re-runs conflicting transactions itself; an error
	// carrying this sentinel that still reaches the BlockDriver is logged
	// silently and the transaction's output is a Discard.
	ErrSpeculativeExecutionAbort = errors.New("speculative execution abort")

	// ErrStorage marks a base-view read failure (spec.md §7 "StorageError"
	// row); legacy callers may wrap this as a speculative abort instead.
	ErrStorage = errors.New("storage read failure")

	// ErrDuplicateSigners is raised in stage 1 of the user pipeline (spec.md
	// §4.2 "Check duplicate signers").
	ErrDuplicateSigners = errors.New("transaction signers contain duplicates")

	// ErrFeatureUnderGating is raised when an authenticator kind requires a
	// feature flag that is not enabled (spec.md §4.2 stage 1).
	ErrFeatureUnderGating = errors.New("feature required by this authenticator is not enabled")

	// ErrInvalidGasAmount is raised when max_gas_amount is zero (spec.md §8
	// boundary behavior).
	ErrInvalidGasAmount = errors.New("invalid gas amount")

	// ErrSequenceNumberTooNew is a valid validator outcome, not a discard
	// (spec.md §4.2 stage 1 "Prologue failures with SEQUENCE_NUMBER_TOO_NEW
	// are a valid validator outcome").
	ErrSequenceNumberTooNew = errors.New("sequence number too new")

	// ErrFailureEpilogue marks the failure-epilogue path itself failing,
	// which must escalate to Discard (spec.md §4.2 stage 9).
	ErrFailureEpilogue = errors.New("failure epilogue itself failed")

	// ErrGasConsistency marks the gas meter's self-consistency check
	// failing in the success epilogue at gas_feature_version >= 12 — fatal,
	// not advisory, at that point (spec.md §4.1, §8).
	ErrGasConsistency = errors.New("gas meter consistency check failed in success epilogue")

	// ErrModuleBundleDisallowed marks a legacy ModuleBundle payload arriving
	// while the process-wide gate params.ModuleBundleDisallowed is on, as it
	// is by default (spec.md §9 "deprecated ModuleBundle gating").
	ErrModuleBundleDisallowed = errors.New("module bundle payload disallowed")

	// ErrMultisigInnerFailure marks an isolated failure inside a multisig's
	// inner execution, as opposed to a failure in the outer execute/cleanup
	// bookkeeping (spec.md §4.3).
	ErrMultisigInnerFailure = errors.New("multisig inner transaction failed")

	// ErrIncompatibleUpgrade marks a module publish rejected by the
	// Compatibility checker (spec.md §4.2 stage 6).
	ErrIncompatibleUpgrade = errors.New("incompatible module upgrade")
)

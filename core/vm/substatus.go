package vm

// Paranoid-mode / reference-counting sub-status codes. These mirror the
// runtime's own invariant-violation namespace verbatim (spec.md §9 Open
// Questions: "taken verbatim from the runtime's invariant-violation
// namespace") — they are not renumbered or remapped to anything in this
// core's own status space, since a sub-status is meaningless without the
// runtime that raised it.
const (
	// SubStatusUnknownInvariantViolation is the catch-all the respawned
	// session's finish invariant reports (spec.md §4.4).
	SubStatusUnknownInvariantViolation uint64 = 2000

	// SubStatusParanoidTypecheckFailed fires when paranoid mode's extra type
	// checking rejects a value the bytecode verifier should have caught.
	SubStatusParanoidTypecheckFailed uint64 = 2001

	// SubStatusReferenceCountingFailed fires when the reference-safety
	// reference-counting invariant in the interpreter's borrow graph is
	// violated — always loudly logged, never silently retried (spec.md §4.5
	// "paranoid-mode and reference-counting failures are always loudly
	// logged").
	SubStatusReferenceCountingFailed uint64 = 2002

	// SubStatusSpeculativeExecutionAbort marks a read-validation conflict
	// under parallel execution (spec.md §7 "SpeculativeExecutionAbort" row):
	// silent, the BlockDriver re-runs the transaction.
	SubStatusSpeculativeExecutionAbort uint64 = 3000
)

// IsAlwaysLoud reports whether a sub-status must always be logged loudly
// regardless of the speculative-execution context it was raised in (spec.md
// §4.5).
func IsAlwaysLoud(subStatus uint64) bool {
	return subStatus == SubStatusParanoidTypecheckFailed || subStatus == SubStatusReferenceCountingFailed
}

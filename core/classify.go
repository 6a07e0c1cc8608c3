package core

import (
	"errors"
	"fmt"

	"github.com/young-rocks/aptos-core/core/gas"
	"github.com/young-rocks/aptos-core/params"
	"github.com/young-rocks/aptos-core/core/types"
	"github.com/young-rocks/aptos-core/core/vm"
)

// pipelineError carries enough structure for classify to reconstruct the
// VMStatus a stage failure becomes (spec.md §7 taxonomy, §4.2 stage 9
// "TransactionStatus::from_vm_status"). It is never returned to a caller
// outside this package; every exported entry point classifies it first.
type pipelineError struct {
	discardCode *types.StatusCode
	keep        *types.ExecutionStatus
	invariant   bool
	cause       error
	// sentinel is the condition-specific error (e.g. ErrDuplicateSigners)
	// this pipelineError was raised for, in addition to its discard/keep/
	// invariant category — nil when no sentinel more specific than the
	// category itself applies.
	sentinel error
}

func (e *pipelineError) Error() string {
	if e.cause != nil {
		return e.cause.Error()
	}
	return "pipeline error"
}

// Unwrap exposes both the category marker (ErrDiscard/ErrInvariantViolation)
// and, when set, the condition-specific sentinel — errors.Is/errors.As can
// match either.
func (e *pipelineError) Unwrap() []error {
	var errs []error
	switch {
	case e.discardCode != nil:
		errs = append(errs, ErrDiscard)
	case e.invariant:
		errs = append(errs, ErrInvariantViolation)
	}
	if e.sentinel != nil {
		errs = append(errs, e.sentinel)
	}
	return errs
}

func discardErr(code types.StatusCode) error { return &pipelineError{discardCode: &code} }

// discardErrWith is discardErr plus a condition-specific sentinel, for the
// stage-1/stage-6 checks spec.md §4.2 and §9 name individually.
func discardErrWith(sentinel error, code types.StatusCode) error {
	return &pipelineError{discardCode: &code, sentinel: sentinel}
}

// tagSentinel attaches a condition-specific sentinel to an already-built
// pipelineError without disturbing its discard/keep/invariant classification
// — used where the distinguishing fact (e.g. "this failure happened inside
// a multisig's inner execution") is orthogonal to how the failure classifies.
func tagSentinel(err error, sentinel error) error {
	if err == nil {
		return nil
	}
	var pe *pipelineError
	if errors.As(err, &pe) {
		tagged := *pe
		tagged.sentinel = sentinel
		return &tagged
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

func moveAbortErr(loc types.AbortLocation, code uint64, info *types.AbortInfo) error {
	return &pipelineError{keep: &types.ExecutionStatus{Kind: types.ExecutionMoveAbort, Location: loc, Code: code, Info: info}}
}

func outOfGasErr() error {
	return &pipelineError{keep: &types.ExecutionStatus{Kind: types.ExecutionOutOfGas}}
}

func executionFailureErr(msg string) error {
	return &pipelineError{keep: &types.ExecutionStatus{Kind: types.ExecutionFailure, Message: msg}}
}

func invariantErr(cause error) error {
	return &pipelineError{invariant: true, cause: fmt.Errorf("%w: %v", ErrInvariantViolation, cause)}
}

// wrapStageErr turns whatever a Session/gas-meter call returned into a
// pipelineError, preserving MoveAbort identity and gas exhaustion, and
// treating anything else as an invariant violation per spec.md §7's "no
// panics escape the pipeline" rule.
func wrapStageErr(err error, abortInfo func(types.AbortLocation, uint64) *types.AbortInfo) error {
	if err == nil {
		return nil
	}
	var pe *pipelineError
	if errors.As(err, &pe) {
		return err
	}
	var abort *vm.MoveAbortError
	if errors.As(err, &abort) {
		var info *types.AbortInfo
		if abortInfo != nil {
			info = abortInfo(abort.Location, abort.Code)
		}
		return moveAbortErr(abort.Location, abort.Code, info)
	}
	if errors.Is(err, gas.ErrOutOfGas) {
		return outOfGasErr()
	}
	return invariantErr(err)
}

// classify implements spec.md §7's
// "TransactionStatus::from_vm_status(err, CHARGE_INVARIANT_VIOLATION)".
func classify(err error, features params.Features) types.VMStatus {
	var pe *pipelineError
	if !errors.As(err, &pe) {
		// Genuinely unexpected Go error (should not happen if every stage
		// goes through wrapStageErr) — treat as the most conservative
		// invariant-violation disposition rather than panicking.
		pe = &pipelineError{invariant: true, cause: err}
	}
	switch {
	case pe.discardCode != nil:
		return types.Discard(*pe.discardCode)
	case pe.invariant:
		if features.IsEnabled(params.ChargeInvariantViolation) {
			return types.VMStatus{Kind: types.VMStatusKeep, Execution: &types.ExecutionStatus{Kind: types.ExecutionMiscellaneousError}}
		}
		return types.Discard(types.StatusUnknownInvariantViolationError)
	case pe.keep != nil:
		return types.VMStatus{Kind: types.VMStatusKeep, Execution: pe.keep}
	default:
		return types.Discard(types.StatusUnknown)
	}
}

package types

import "fmt"

// StatusCode enumerates the discard/failure codes the pipeline can attach to
// a VMStatus. Numeric values are not meaningful outside this process; they
// exist only so a code can be logged and compared without string matching.
type StatusCode uint32

const (
	StatusUnknown StatusCode = iota
	StatusSequenceNumberTooNew
	StatusSequenceNumberTooOld
	StatusSignersContainDuplicates
	StatusFeatureUnderGating
	StatusInvalidGasAmount
	StatusInsufficientBalanceForTransactionFee
	StatusStorageError
	StatusFailedToDeserializeArgument
	StatusConstraintNotSatisfied
	StatusUnknownInvariantViolationError
	StatusOutOfGas
	StatusMiscellaneousError
	StatusExecutionFailure
	StatusMoveAbort
)

func (c StatusCode) String() string {
	switch c {
	case StatusSequenceNumberTooNew:
		return "SEQUENCE_NUMBER_TOO_NEW"
	case StatusSequenceNumberTooOld:
		return "SEQUENCE_NUMBER_TOO_OLD"
	case StatusSignersContainDuplicates:
		return "SIGNERS_CONTAIN_DUPLICATES"
	case StatusFeatureUnderGating:
		return "FEATURE_UNDER_GATING"
	case StatusInvalidGasAmount:
		return "INVALID_GAS_AMOUNT"
	case StatusInsufficientBalanceForTransactionFee:
		return "INSUFFICIENT_BALANCE_FOR_TRANSACTION_FEE"
	case StatusStorageError:
		return "STORAGE_ERROR"
	case StatusFailedToDeserializeArgument:
		return "FAILED_TO_DESERIALIZE_ARGUMENT"
	case StatusConstraintNotSatisfied:
		return "CONSTRAINT_NOT_SATISFIED"
	case StatusUnknownInvariantViolationError:
		return "UNKNOWN_INVARIANT_VIOLATION_ERROR"
	case StatusOutOfGas:
		return "OUT_OF_GAS"
	case StatusMiscellaneousError:
		return "MISCELLANEOUS_ERROR"
	case StatusExecutionFailure:
		return "EXECUTION_FAILURE"
	case StatusMoveAbort:
		return "MOVE_ABORT"
	default:
		return "UNKNOWN"
	}
}

// AbortLocation identifies where a MoveAbort originated.
type AbortLocation struct {
	IsScript bool
	Module   string // "<address>::<name>", empty when IsScript
}

// AbortInfo is human-readable context extracted from a module's error
// metadata for a given abort code (spec.md §4.2 "MoveAbort enrichment").
type AbortInfo struct {
	Reason    string
	ErrorCode string
}

// ExecutionStatusKind discriminates the payload carried by a Keep status.
type ExecutionStatusKind int

const (
	ExecutionSuccess ExecutionStatusKind = iota
	ExecutionMoveAbort
	ExecutionFailure
	ExecutionOutOfGas
	ExecutionMiscellaneousError
)

// ExecutionStatus is the payload of a Keep VMStatus.
type ExecutionStatus struct {
	Kind     ExecutionStatusKind
	Location AbortLocation
	Code     uint64
	Info     *AbortInfo
	Message  string
}

func (s ExecutionStatus) String() string {
	switch s.Kind {
	case ExecutionSuccess:
		return "Success"
	case ExecutionMoveAbort:
		return fmt.Sprintf("MoveAbort{location=%s, code=%d}", s.Location.Module, s.Code)
	case ExecutionOutOfGas:
		return "OutOfGas"
	case ExecutionMiscellaneousError:
		return "MiscellaneousError"
	default:
		return fmt.Sprintf("ExecutionFailure(%s)", s.Message)
	}
}

// VMStatusKind discriminates a VMStatus's disposition (spec.md §3
// TransactionStatus / §7 taxonomy).
type VMStatusKind int

const (
	VMStatusKeep VMStatusKind = iota
	VMStatusDiscard
	VMStatusRetry
)

// VMStatus is the outcome of running one transaction through the pipeline.
type VMStatus struct {
	Kind      VMStatusKind
	Code      StatusCode       // meaningful when Kind == VMStatusDiscard
	Execution *ExecutionStatus // meaningful when Kind == VMStatusKeep
}

func KeepSuccess() VMStatus {
	return VMStatus{Kind: VMStatusKeep, Execution: &ExecutionStatus{Kind: ExecutionSuccess}}
}

func KeepOutOfGas() VMStatus {
	return VMStatus{Kind: VMStatusKeep, Execution: &ExecutionStatus{Kind: ExecutionOutOfGas}}
}

func KeepMiscellaneousError() VMStatus {
	return VMStatus{Kind: VMStatusKeep, Execution: &ExecutionStatus{Kind: ExecutionMiscellaneousError}}
}

func KeepMoveAbort(loc AbortLocation, code uint64, info *AbortInfo) VMStatus {
	return VMStatus{Kind: VMStatusKeep, Execution: &ExecutionStatus{
		Kind: ExecutionMoveAbort, Location: loc, Code: code, Info: info,
	}}
}

func KeepExecutionFailure(msg string) VMStatus {
	return VMStatus{Kind: VMStatusKeep, Execution: &ExecutionStatus{Kind: ExecutionFailure, Message: msg}}
}

func Discard(code StatusCode) VMStatus {
	return VMStatus{Kind: VMStatusDiscard, Code: code}
}

func Retry() VMStatus {
	return VMStatus{Kind: VMStatusRetry}
}

func (s VMStatus) IsDiscarded() bool { return s.Kind == VMStatusDiscard }
func (s VMStatus) IsKept() bool      { return s.Kind == VMStatusKeep }

func (s VMStatus) String() string {
	switch s.Kind {
	case VMStatusDiscard:
		return fmt.Sprintf("Discard(%s)", s.Code)
	case VMStatusRetry:
		return "Retry"
	default:
		if s.Execution != nil {
			return fmt.Sprintf("Keep(%s)", s.Execution.String())
		}
		return "Keep(?)"
	}
}

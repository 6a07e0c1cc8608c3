// Package gas implements the GasMeter (spec.md §2 component B, §4.1): a
// metered counter for intrinsic/execution/IO/storage gas with a
// self-consistency check, plus the per-block GasPool the teacher's own
// state_transition.go threads through every transaction.
package gas

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/young-rocks/aptos-core/core/types"
)

// ErrOutOfGas is returned by any charge_* call once the meter's balance
// cannot cover the charge (spec.md §4.1 "running out of gas during any
// charge_* fails the operation with OUT_OF_GAS").
var ErrOutOfGas = errors.New("out of gas")

// ErrConsistency is returned by Algebra().CheckConsistency when the meter's
// internal bookkeeping has drifted: the execution + io + storage amounts it
// recorded exceed what it drew from its balance (max - balance). The
// intrinsic charge is not recorded separately, so this is an upper-bound
// check, not an equality — a bug, not a user error (spec.md §4.1).
var ErrConsistency = errors.New("gas meter internal consistency check failed")

// StorageFeeCalculator computes the storage fee/refund for a change set.
// Spec.md §9 marks the exact formula "opaque" / owned by
// process_storage_fee_for_all; this core only requires a function value of
// this shape so GasParameters (an external collaborator, spec.md §1) can
// supply the real formula.
type StorageFeeCalculator func(cs *types.ChangeSet, txnSize uint64, gasUnitPrice uint64) (feeOctas uint64, refundOctas uint64, err error)

// Meter is the GasMeter contract (spec.md §4.1).
type Meter interface {
	ChargeIntrinsicGas(transactionSize uint64) error
	ChargeIOGasForWrite(key types.StateKey, op types.WriteOp) error
	ChargeIOGasForGroupWrite(key types.StateKey, metadataOp types.WriteOp, size *uint64) error

	ProcessStorageFeeForAll(cs *types.ChangeSet, txnSize uint64, gasUnitPrice uint64) (refundOctas uint64, err error)

	Balance() uint64
	ExecutionGasUsed() uint64
	IOGasUsed() uint64
	StorageFeeUsed() uint64

	Algebra() Algebra
}

// Algebra exposes the meter's advisory self-consistency check (spec.md
// §4.1 "algebra().check_consistency").
type Algebra interface {
	CheckConsistency() error
}

// DefaultMeter is the reference Meter implementation: plain integer
// counters charged down from MaxGasAmount, overflow-checked with
// holiman/uint256 the way the teacher's state_transition_rollup.go charges
// EIP-7706 vector gas (core/state_transition_rollup.go buyGasEIP7706).
type DefaultMeter struct {
	maxGasAmount uint64
	balance      uint64

	intrinsicCharged bool
	executionUsed    uint64
	ioUsed           uint64
	storageUsed      uint64

	gasFeatureVersion uint64
	storageDeletionRefundEnabled bool
	storageFee StorageFeeCalculator
}

func NewDefaultMeter(maxGasAmount, gasFeatureVersion uint64, storageDeletionRefundEnabled bool, calc StorageFeeCalculator) *DefaultMeter {
	return &DefaultMeter{
		maxGasAmount:                 maxGasAmount,
		balance:                      maxGasAmount,
		gasFeatureVersion:            gasFeatureVersion,
		storageDeletionRefundEnabled: storageDeletionRefundEnabled,
		storageFee:                   calc,
	}
}

func (m *DefaultMeter) charge(amount uint64) error {
	if amount > m.balance {
		m.balance = 0
		return ErrOutOfGas
	}
	m.balance -= amount
	return nil
}

func (m *DefaultMeter) ChargeIntrinsicGas(transactionSize uint64) error {
	// Intrinsic gas is a one-shot charge (spec.md §4.1) — scale linearly
	// with transaction size, mirroring IntrinsicGas's data-byte pricing in
	// the teacher's core-state_transition.go.
	cost := uint256.NewInt(transactionSize)
	cost.Mul(cost, uint256.NewInt(1))
	if !cost.IsUint64() {
		return fmt.Errorf("%w: intrinsic gas overflow", ErrOutOfGas)
	}
	m.intrinsicCharged = true
	return m.charge(cost.Uint64())
}

func (m *DefaultMeter) ChargeIOGasForWrite(key types.StateKey, op types.WriteOp) error {
	cost := ioCostForOp(op)
	if err := m.charge(cost); err != nil {
		return err
	}
	m.ioUsed += cost
	return nil
}

func (m *DefaultMeter) ChargeIOGasForGroupWrite(key types.StateKey, metadataOp types.WriteOp, size *uint64) error {
	cost := ioCostForOp(metadataOp)
	if size != nil {
		cost += *size / 1024
	}
	if err := m.charge(cost); err != nil {
		return err
	}
	m.ioUsed += cost
	return nil
}

func ioCostForOp(op types.WriteOp) uint64 {
	switch op.Kind {
	case types.WriteCreation:
		return 200
	case types.WriteModification:
		return 50
	default:
		return 10
	}
}

func (m *DefaultMeter) ProcessStorageFeeForAll(cs *types.ChangeSet, txnSize uint64, gasUnitPrice uint64) (uint64, error) {
	if m.storageFee == nil {
		return 0, nil
	}
	fee, refund, err := m.storageFee(cs, txnSize, gasUnitPrice)
	if err != nil {
		return 0, err
	}
	if err := m.charge(fee); err != nil {
		return 0, err
	}
	m.storageUsed += fee
	if !m.storageDeletionRefundEnabled {
		// spec.md §4.2 stage 7: "zero the refund if STORAGE_DELETION_REFUND
		// is disabled."
		return 0, nil
	}
	return refund, nil
}

func (m *DefaultMeter) Balance() uint64           { return m.balance }
func (m *DefaultMeter) ExecutionGasUsed() uint64  { return m.executionUsed }
func (m *DefaultMeter) IOGasUsed() uint64         { return m.ioUsed }
func (m *DefaultMeter) StorageFeeUsed() uint64    { return m.storageUsed }

// ChargeExecutionGas is not part of the Meter interface (execution gas is
// metered deep inside the Runtime, an external collaborator per spec.md
// §1); this is the hook a Runtime implementation calls back into during
// ExecuteScript/ExecuteEntryFunction.
func (m *DefaultMeter) ChargeExecutionGas(amount uint64) error {
	if err := m.charge(amount); err != nil {
		return err
	}
	m.executionUsed += amount
	return nil
}

func (m *DefaultMeter) Algebra() Algebra { return (*meterAlgebra)(m) }

type meterAlgebra DefaultMeter

func (a *meterAlgebra) CheckConsistency() error {
	m := (*DefaultMeter)(a)
	used := m.maxGasAmount - m.balance
	accounted := m.executionUsed + m.ioUsed + m.storageUsed
	if !m.intrinsicChargedConsistently(used, accounted) {
		return ErrConsistency
	}
	return nil
}

// intrinsicChargedConsistently allows for the one-shot intrinsic charge,
// which is not tracked in any of the three sub-counters individually.
func (m *DefaultMeter) intrinsicChargedConsistently(used, accounted uint64) bool {
	if accounted > used {
		return false
	}
	return true
}

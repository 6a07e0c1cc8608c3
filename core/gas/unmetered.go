package gas

import "github.com/young-rocks/aptos-core/core/types"

// Unmetered is a Meter that never charges anything and never runs out of
// gas — used for multisig/epilogue cleanup calls, which spec.md §4.3 "Cleanup
// execution is unmetered" requires so the caller cannot be starved of gas
// during cleanup.
type Unmetered struct{}

func (Unmetered) ChargeIntrinsicGas(uint64) error                               { return nil }
func (Unmetered) ChargeIOGasForWrite(types.StateKey, types.WriteOp) error        { return nil }
func (Unmetered) ChargeIOGasForGroupWrite(types.StateKey, types.WriteOp, *uint64) error {
	return nil
}
func (Unmetered) ProcessStorageFeeForAll(*types.ChangeSet, uint64, uint64) (uint64, error) {
	return 0, nil
}
func (Unmetered) Balance() uint64          { return ^uint64(0) }
func (Unmetered) ExecutionGasUsed() uint64 { return 0 }
func (Unmetered) IOGasUsed() uint64        { return 0 }
func (Unmetered) StorageFeeUsed() uint64   { return 0 }
func (Unmetered) Algebra() Algebra         { return unmeteredAlgebra{} }

type unmeteredAlgebra struct{}

func (unmeteredAlgebra) CheckConsistency() error { return nil }

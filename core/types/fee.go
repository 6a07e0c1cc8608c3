package types

// FeeStatement is the structured gas receipt returned alongside every Keep
// output (spec.md §3 "Lifecycle", SPEC_FULL §3 supplement from
// aptos_vm.rs). All units are gas units except the two *Octas fields.
type FeeStatement struct {
	TotalChargeGasUnits  uint64
	ExecutionGasUnits    uint64
	IOGasUnits           uint64
	StorageFeeUsedOctas  uint64
	StorageFeeRefundOctas uint64
}

// GasUsed implements spec.md §8 invariant 3:
// fee_statement.gas_used = txn.max_gas_amount - gas_meter.balance
func GasUsed(maxGasAmount, balance uint64) uint64 {
	if balance > maxGasAmount {
		return 0
	}
	return maxGasAmount - balance
}

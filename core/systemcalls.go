package core

import "github.com/young-rocks/aptos-core/core/types"

// Well-known addresses and module/function identifiers the pipeline calls by
// name (spec.md §6 "System module contract"). These are never resolved by
// this core — they are just the arguments handed to Session.Execute*, which
// the Runtime black box loads and runs.
var (
	frameworkAddress = [32]byte{31: 1} // 0x1

	accountModule         = types.ModuleId{Address: frameworkAddress, Name: "account"}
	transactionValidation = types.ModuleId{Address: frameworkAddress, Name: "transaction_validation"}
	multisigAccountModule = types.ModuleId{Address: frameworkAddress, Name: "multisig_account"}
	blockModule            = types.ModuleId{Address: frameworkAddress, Name: "block"}
)

const (
	fnCreateAccountIfDoesNotExist = "create_account_if_does_not_exist"

	fnScriptPrologue   = "script_prologue"
	fnModulePrologue   = "module_prologue"
	fnMultisigPrologue = "multisig_prologue"

	fnEpilogue         = "epilogue"
	fnEpilogueGasPayer = "epilogue_gas_payer"

	fnGetNextTransactionPayload             = "get_next_transaction_payload"
	fnSuccessfulTransactionExecutionCleanup = "successful_transaction_execution_cleanup"
	fnFailedTransactionExecutionCleanup    = "failed_transaction_execution_cleanup"

	fnBlockPrologue = "block_prologue"
)

// reservedVMAddress is the signer identity system calls run under when no
// real user is the caller (spec.md §6 "invoked with reserved_vm_address() as
// signer").
var reservedVMAddress = [32]byte{}

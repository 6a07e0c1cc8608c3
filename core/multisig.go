package core

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/young-rocks/aptos-core/core/gas"
	"github.com/young-rocks/aptos-core/params"
	"github.com/young-rocks/aptos-core/core/types"
	"github.com/young-rocks/aptos-core/core/vm"
)

// multisigInnerPayload is the decoded shape of a MultisigTransactionPayload::EntryFunction
// (spec.md §4.3 step 2: "must deserialize twice: first as Vec<u8>, then as
// MultisigTransactionPayload::EntryFunction").
type multisigInnerPayload struct {
	Module   types.ModuleId
	Function string
	TyArgs   []string
	Args     [][]byte
}

// decodeMultisigInnerPayload parses the opaque byte vector returned by
// get_next_transaction_payload (or a simulation's provided bytes). The wire
// format is a simple layout read by rawReader below (a 32-byte address, then
// u32-length-prefixed module name, function name and arguments, after a u32
// argument count) since the real BCS schema is owned by the Move framework,
// not this core.
func decodeMultisigInnerPayload(raw []byte) (multisigInnerPayload, error) {
	r := rawReader{buf: raw}
	addr, err := r.address()
	if err != nil {
		return multisigInnerPayload{}, err
	}
	moduleName, err := r.string_()
	if err != nil {
		return multisigInnerPayload{}, err
	}
	function, err := r.string_()
	if err != nil {
		return multisigInnerPayload{}, err
	}
	nArgs, err := r.u32()
	if err != nil {
		return multisigInnerPayload{}, err
	}
	args := make([][]byte, 0, nArgs)
	for i := uint32(0); i < nArgs; i++ {
		arg, err := r.bytes()
		if err != nil {
			return multisigInnerPayload{}, err
		}
		args = append(args, arg)
	}
	return multisigInnerPayload{
		Module:   types.ModuleId{Address: addr, Name: moduleName},
		Function: function,
		Args:     args,
	}, nil
}

type rawReader struct {
	buf []byte
	pos int
}

var errTruncated = errors.New("truncated multisig payload")

func (r *rawReader) address() ([32]byte, error) {
	var a [32]byte
	if r.pos+32 > len(r.buf) {
		return a, errTruncated
	}
	copy(a[:], r.buf[r.pos:r.pos+32])
	r.pos += 32
	return a, nil
}

func (r *rawReader) u32() (uint32, error) {
	if r.pos+4 > len(r.buf) {
		return 0, errTruncated
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos : r.pos+4])
	r.pos += 4
	return v, nil
}

func (r *rawReader) bytes() ([]byte, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	if r.pos+int(n) > len(r.buf) {
		return nil, errTruncated
	}
	out := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return out, nil
}

func (r *rawReader) string_() (string, error) {
	b, err := r.bytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// executeMultisigTransaction runs the non-simulation multisig flow (spec.md
// §4.3 "Execution mode"), end to end: its own intrinsic gas charge, inner
// execution, and one of the two cleanup-then-epilogue sequences.
func (p *TransactionPipeline) executeMultisigTransaction(txn types.UserTransaction, baseResolver vm.MoveResolver) VMOutput {
	meta := txn.Metadata
	ms := txn.Payload.Multisig
	meter := p.newMeter(meta.MaxGasAmount)

	sessionID := types.NewMetaSessionId(types.SessionTxnMeta, txn.Hash)
	session := p.runtime.NewSession(baseResolver, sessionID)

	// Step 1: intrinsic gas.
	if err := meter.ChargeIntrinsicGas(meta.TransactionSize); err != nil {
		return p.handleFailure(session, baseResolver, txn, meter, false, wrapStageErr(err, p.abortInfo))
	}

	// Step 2: fetch the on-chain-agreed payload.
	provided := ms.InnerPayload
	result, err := session.ExecuteFunctionBypassVisibility(multisigAccountModule, fnGetNextTransactionPayload, nil,
		[][]byte{encodeAddress(ms.MultisigAddress), provided}, [][32]byte{meta.Sender}, meter)
	if err != nil {
		return p.handleFailure(session, baseResolver, txn, meter, false, wrapStageErr(err, p.abortInfo))
	}
	if len(result.ReturnValues) == 0 {
		return p.handleFailure(session, baseResolver, txn, meter, false, discardErr(types.StatusFailedToDeserializeArgument))
	}
	payloadBytes := result.ReturnValues[0]
	inner, err := decodeMultisigInnerPayload(payloadBytes)
	if err != nil {
		return p.handleFailure(session, baseResolver, txn, meter, false, discardErr(types.StatusFailedToDeserializeArgument))
	}

	// Step 3: execute the inner entry function in the same session, signed
	// solely by the multisig address.
	newPublishedModulesLoaded := false
	innerErr := tagSentinel(func() error {
		if err := session.LoadFunction(inner.Module, inner.Function, inner.TyArgs); err != nil {
			return wrapStageErr(err, p.abortInfo)
		}
		if _, err := session.ExecuteEntryFunction(inner.Module, inner.Function, inner.TyArgs, inner.Args, [][32]byte{ms.MultisigAddress}, meter); err != nil {
			return wrapStageErr(err, p.abortInfo)
		}
		published, err := p.resolvePendingPublish(session, meter, p.features.IsEnabled(params.TreatFriendAsPrivate))
		if err != nil {
			return err
		}
		newPublishedModulesLoaded = published
		return nil
	}(), ErrMultisigInnerFailure)

	var cleanup gas.Meter = &gas.Unmetered{}

	if innerErr == nil {
		// Step 4 (success): charge I/O for step 3's writes, then clean up in
		// a respawned session that has already absorbed those writes.
		changeSet, err := session.Finish()
		if err != nil {
			return p.handleFailure(session, baseResolver, txn, meter, newPublishedModulesLoaded, wrapStageErr(err, p.abortInfo))
		}
		if err := chargeChangeSetIO(meter, changeSet); err != nil {
			return p.handleFailure(session, baseResolver, txn, meter, newPublishedModulesLoaded, wrapStageErr(err, p.abortInfo))
		}
		refund, err := meter.ProcessStorageFeeForAll(changeSet, meta.TransactionSize, meta.GasUnitPrice)
		if err != nil {
			return p.handleFailure(session, baseResolver, txn, meter, newPublishedModulesLoaded, wrapStageErr(err, p.abortInfo))
		}

		respawned := vm.Spawn(p.runtime, types.NewMetaSessionId(types.SessionEpilogueMeta, txn.Hash), baseResolver, changeSet, refund, p.algebra)
		if _, err := respawned.Session().ExecuteFunctionBypassVisibility(multisigAccountModule, fnSuccessfulTransactionExecutionCleanup, nil,
			[][]byte{encodeAddress(meta.Sender), encodeAddress(ms.MultisigAddress), payloadBytes}, [][32]byte{meta.Sender}, cleanup); err != nil {
			return p.handleFailure(session, baseResolver, txn, meter, newPublishedModulesLoaded, wrapStageErr(err, p.abortInfo))
		}
		return p.finishMultisigEpilogue(respawned, baseResolver, txn, meter, refund)
	}

	// Step 4 (failure): discard step 3's session, respawn on an empty
	// change set, serialize the inner failure, call the failed cleanup.
	if newPublishedModulesLoaded {
		p.runtime.InvalidateLoaderCache()
	}
	respawned := vm.Spawn(p.runtime, types.NewMetaSessionId(types.SessionEpilogueMeta, txn.Hash), baseResolver, types.NewChangeSet(), 0, p.algebra)
	executionError := encodeExecutionError(innerErr)
	if _, err := respawned.Session().ExecuteFunctionBypassVisibility(multisigAccountModule, fnFailedTransactionExecutionCleanup, nil,
		[][]byte{encodeAddress(meta.Sender), encodeAddress(ms.MultisigAddress), payloadBytes, executionError}, [][32]byte{meta.Sender}, cleanup); err != nil {
		return p.handleFailure(session, baseResolver, txn, meter, newPublishedModulesLoaded, wrapStageErr(err, p.abortInfo))
	}
	return p.finishMultisigEpilogue(respawned, baseResolver, txn, meter, 0)
}

// finishMultisigEpilogue runs step 5: the outer success epilogue on the
// respawned session, regardless of whether step 3 itself succeeded — the
// cleanup call already absorbed that outcome.
func (p *TransactionPipeline) finishMultisigEpilogue(respawned *vm.RespawnedSession, baseResolver vm.MoveResolver, txn types.UserTransaction, meter *gas.DefaultMeter, refund uint64) VMOutput {
	meta := txn.Metadata
	fee := feeStatementFromMeter(meter, meta.MaxGasAmount, refund)
	if _, err := respawned.Session().ExecuteFunctionBypassVisibility(transactionValidation, fnEpilogue, nil,
		[][]byte{encodeU64(meter.Balance()), encodeU64(fee.TotalChargeGasUnits), encodeU64(fee.StorageFeeUsedOctas), encodeU64(fee.StorageFeeRefundOctas)},
		[][32]byte{meta.Sender}, &gas.Unmetered{}); err != nil {
		return emptyOutput(classify(discardErrWith(ErrFailureEpilogue, types.StatusUnknownInvariantViolationError), p.features))
	}
	final, err := respawned.Finish()
	if err != nil {
		return emptyOutput(classify(discardErrWith(ErrFailureEpilogue, types.StatusUnknownInvariantViolationError), p.features))
	}
	if p.gasFeatureVersion >= 12 {
		if cerr := meter.Algebra().CheckConsistency(); cerr != nil {
			return emptyOutput(classify(discardErrWith(ErrGasConsistency, types.StatusUnknownInvariantViolationError), p.features))
		}
	}
	return VMOutput{ChangeSet: final, FeeStatement: fee, Status: types.KeepSuccess()}
}

// encodeExecutionError serializes the inner failure as an ExecutionError
// argument to failed_transaction_execution_cleanup (spec.md §4.3 step 4).
func encodeExecutionError(err error) []byte {
	return []byte(fmt.Sprintf("%v", err))
}

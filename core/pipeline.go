package core

import (
	"errors"

	"github.com/young-rocks/aptos-core/core/gas"
	"github.com/young-rocks/aptos-core/params"
	"github.com/young-rocks/aptos-core/core/types"
	"github.com/young-rocks/aptos-core/core/vm"
)

// VMOutput is what running one transaction through the pipeline produces
// (spec.md §4.2 "Output: (VMStatus, VMOutput) with VMOutput = (change_set,
// fee_statement, status)").
type VMOutput struct {
	ChangeSet    *types.ChangeSet
	FeeStatement types.FeeStatement
	Status       types.VMStatus
}

func emptyOutput(status types.VMStatus) VMOutput {
	return VMOutput{ChangeSet: types.NewChangeSet(), Status: status}
}

// AbortInfoLookup resolves a MoveAbort's (location, code) pair to
// human-readable context from the aborting module's registered error
// metadata (spec.md §4.2 "MoveAbort enrichment").
type AbortInfoLookup func(loc types.AbortLocation, code uint64) *types.AbortInfo

// TransactionPipeline runs one user transaction end to end: prologue,
// payload dispatch, gas metering, epilogue, and failure cleanup (spec.md
// §4.2). One pipeline is built per block-execution call from the on-chain
// configuration in effect for that block (spec.md §3 Lifecycle).
type TransactionPipeline struct {
	runtime           vm.Runtime
	features          params.Features
	gasFeatureVersion uint64
	storageParams     params.StorageGasParameters
	storageFeeCalc    gas.StorageFeeCalculator
	algebra           types.DelayedFieldAlgebra
	abortInfo         AbortInfoLookup
}

func NewTransactionPipeline(
	runtime vm.Runtime,
	features params.Features,
	gasFeatureVersion uint64,
	storageParams params.StorageGasParameters,
	storageFeeCalc gas.StorageFeeCalculator,
	algebra types.DelayedFieldAlgebra,
	abortInfo AbortInfoLookup,
) *TransactionPipeline {
	return &TransactionPipeline{
		runtime:           runtime,
		features:          features,
		gasFeatureVersion: gasFeatureVersion,
		storageParams:     storageParams,
		storageFeeCalc:    storageFeeCalc,
		algebra:           algebra,
		abortInfo:         abortInfo,
	}
}

func (p *TransactionPipeline) storageDeletionRefundEnabled() bool {
	// Modeled as a gas_feature_version floor, the same way gas-algebra
	// behavior in general is gated (spec.md §6 "gas_feature_version: u64 —
	// selects gas-algebra behavior, storage-refund rules").
	return p.gasFeatureVersion >= 7
}

func (p *TransactionPipeline) newMeter(maxGasAmount uint64) *gas.DefaultMeter {
	return gas.NewDefaultMeter(maxGasAmount, p.gasFeatureVersion, p.storageDeletionRefundEnabled(), p.storageFeeCalc)
}

// ExecuteUserTransaction runs spec.md §4.2's nine-stage pipeline for a
// single User(SignedTxn) against baseResolver.
func (p *TransactionPipeline) ExecuteUserTransaction(txn types.UserTransaction, baseResolver vm.MoveResolver) VMOutput {
	meta := txn.Metadata

	// Stage 1: metadata extraction & prologue session.
	if hasDuplicateSigners(meta.AllSigners()) {
		return emptyOutput(classify(discardErrWith(ErrDuplicateSigners, types.StatusSignersContainDuplicates), p.features))
	}
	if meta.Authenticator == types.AuthSingleSender && !p.features.IsEnabled(params.SingleSenderAuthenticator) {
		return emptyOutput(classify(discardErrWith(ErrFeatureUnderGating, types.StatusFeatureUnderGating), p.features))
	}
	if meta.MaxGasAmount == 0 {
		return emptyOutput(classify(discardErrWith(ErrInvalidGasAmount, types.StatusInvalidGasAmount), p.features))
	}

	// Multisig execution mode runs its own five-step flow end to end
	// (spec.md §4.3); only simulation mode reuses the generic pipeline
	// below, via dispatchPayload's Multisig case.
	if txn.Payload.Kind == types.PayloadMultisig && !meta.IsSimulation {
		return p.executeMultisigTransaction(txn, baseResolver)
	}

	prologueSessionID := types.NewMetaSessionId(types.SessionPrologueMeta, txn.Hash)
	prologueSession := p.runtime.NewSession(baseResolver, prologueSessionID)
	prologueMeter := p.newMeter(meta.MaxGasAmount)
	if err := p.runPrologue(prologueSession, txn, prologueMeter); err != nil {
		return emptyOutput(prologueDiscardStatus(err, p.features))
	}
	// Prologue runs read-only checks; its session is closed without being
	// merged into the main flow (stage 2 opens a fresh one).
	if _, err := prologueSession.Finish(); err != nil {
		return emptyOutput(types.Discard(types.StatusUnknown))
	}

	// Stage 2: resolver refresh.
	if p.gasFeatureVersion >= 1 {
		baseResolver.ReleaseResourceGroupCache()
	}
	meter := p.newMeter(meta.MaxGasAmount)
	txnSessionID := types.NewMetaSessionId(types.SessionTxnMeta, txn.Hash)
	session := p.runtime.NewSession(baseResolver, txnSessionID)

	newPublishedModulesLoaded := false

	runStages := func() (*types.ChangeSet, types.FeeStatement, error) {
		// Stage 3: sponsored account auto-creation.
		if meta.Authenticator == types.AuthFeePayer && meta.FeePayer != nil && p.features.IsEnabled(params.SponsoredAutomaticAccountCreation) {
			if _, err := session.ExecuteFunctionBypassVisibility(accountModule, fnCreateAccountIfDoesNotExist, nil, [][]byte{encodeAddress(meta.Sender)}, [][32]byte{reservedVMAddress}, meter); err != nil {
				// Spec carves this one failure out as a hard Discard rather
				// than routing through the generic failure-epilogue path
				// (spec.md §4.2 stage 3 "Any failure here -> Discard").
				return nil, types.FeeStatement{}, discardErr(types.StatusConstraintNotSatisfied)
			}
		}

		// Stage 4: intrinsic gas.
		if err := meter.ChargeIntrinsicGas(meta.TransactionSize); err != nil {
			return nil, types.FeeStatement{}, wrapStageErr(err, p.abortInfo)
		}

		// Stage 5: payload dispatch.
		published, err := p.dispatchPayload(session, txn, meter)
		if err != nil {
			return nil, types.FeeStatement{}, err
		}
		newPublishedModulesLoaded = newPublishedModulesLoaded || published

		// Stage 6: resolve any pending code publish left in native context.
		publishedPending, err := p.resolvePendingPublish(session, meter, p.features.IsEnabled(params.TreatFriendAsPrivate))
		if err != nil {
			return nil, types.FeeStatement{}, err
		}
		newPublishedModulesLoaded = newPublishedModulesLoaded || publishedPending

		// Stage 7: charge change-set & respawn.
		changeSet, err := session.Finish()
		if err != nil {
			return nil, types.FeeStatement{}, wrapStageErr(err, p.abortInfo)
		}
		if err := chargeChangeSetIO(meter, changeSet); err != nil {
			return nil, types.FeeStatement{}, wrapStageErr(err, p.abortInfo)
		}
		refund, err := meter.ProcessStorageFeeForAll(changeSet, meta.TransactionSize, meta.GasUnitPrice)
		if err != nil {
			return nil, types.FeeStatement{}, wrapStageErr(err, p.abortInfo)
		}

		respawned := vm.Spawn(p.runtime, types.NewMetaSessionId(types.SessionEpilogueMeta, txn.Hash), baseResolver, changeSet, refund, p.algebra)

		// Stage 8: success epilogue.
		fee := feeStatementFromMeter(meter, meta.MaxGasAmount, refund)
		if _, err := respawned.Session().ExecuteFunctionBypassVisibility(transactionValidation, fnEpilogue, nil,
			[][]byte{encodeU64(meter.Balance()), encodeU64(fee.TotalChargeGasUnits), encodeU64(fee.StorageFeeUsedOctas), encodeU64(fee.StorageFeeRefundOctas)},
			[][32]byte{meta.Sender}, &gas.Unmetered{}); err != nil {
			return nil, types.FeeStatement{}, wrapStageErr(err, p.abortInfo)
		}

		final, err := respawned.Finish()
		if err != nil {
			return nil, types.FeeStatement{}, wrapStageErr(err, p.abortInfo)
		}
		return final, fee, nil
	}

	changeSet, fee, err := runStages()
	if err == nil {
		if p.gasFeatureVersion >= 12 {
			if cerr := meter.Algebra().CheckConsistency(); cerr != nil {
				// Fatal in the success epilogue (spec.md §4.1, §8).
				return emptyOutput(classify(discardErrWith(ErrGasConsistency, types.StatusUnknownInvariantViolationError), p.features))
			}
		}
		return VMOutput{ChangeSet: changeSet, FeeStatement: fee, Status: types.KeepSuccess()}
	}

	// Stage 9: failure path.
	return p.handleFailure(session, baseResolver, txn, meter, newPublishedModulesLoaded, err)
}

// handleFailure implements spec.md §4.2 stage 9.
func (p *TransactionPipeline) handleFailure(session vm.Session, baseResolver vm.MoveResolver, txn types.UserTransaction, meter *gas.DefaultMeter, newPublishedModulesLoaded bool, stageErr error) VMOutput {
	if newPublishedModulesLoaded {
		p.runtime.InvalidateLoaderCache()
	}

	status := classify(stageErr, p.features)
	if status.IsDiscarded() {
		return emptyOutput(status)
	}

	meta := txn.Metadata
	failureSessionID := types.NewMetaSessionId(types.SessionEpilogueMeta, txn.Hash)
	failureSession := p.runtime.NewSession(baseResolver, failureSessionID)

	var info *types.AbortInfo
	if status.Execution != nil {
		info = status.Execution.Info
		if info == nil && status.Execution.Kind == types.ExecutionMoveAbort && p.abortInfo != nil {
			info = p.abortInfo(status.Execution.Location, status.Execution.Code)
		}
	}

	fee := feeStatementFromMeter(meter, meta.MaxGasAmount, 0)
	_, err := failureSession.ExecuteFunctionBypassVisibility(transactionValidation, fnEpilogue, nil,
		[][]byte{encodeU64(meter.Balance()), encodeU64(fee.TotalChargeGasUnits), encodeU64(fee.StorageFeeUsedOctas), encodeU64(0)},
		[][32]byte{meta.Sender}, &gas.Unmetered{})
	if err != nil {
		// Failure epilogue itself failed: escalate to Discard.
		return emptyOutput(classify(discardErrWith(ErrFailureEpilogue, types.StatusUnknownInvariantViolationError), p.features))
	}

	changeSet, err := failureSession.Finish()
	if err != nil {
		return emptyOutput(classify(discardErrWith(ErrFailureEpilogue, types.StatusUnknownInvariantViolationError), p.features))
	}
	if info != nil {
		status.Execution.Info = info
	}
	return VMOutput{ChangeSet: changeSet, FeeStatement: fee, Status: status}
}

func hasDuplicateSigners(signers [][32]byte) bool {
	seen := make(map[[32]byte]struct{}, len(signers))
	for _, s := range signers {
		if _, ok := seen[s]; ok {
			return true
		}
		seen[s] = struct{}{}
	}
	return false
}

// runPrologue dispatches to the payload-specific prologue check (spec.md
// §4.2 stage 1). Simulation-mode multisig transactions skip prologue
// validation entirely (spec.md §4.3 "Simulation mode").
func (p *TransactionPipeline) runPrologue(session vm.Session, txn types.UserTransaction, meter gas.Meter) error {
	meta := txn.Metadata
	if txn.Payload.Kind == types.PayloadMultisig && meta.IsSimulation {
		return nil
	}
	args := [][]byte{encodeU64(meta.SequenceNumber), encodeU64(meta.GasUnitPrice), encodeU64(meta.MaxGasAmount), encodeU64(meta.ExpirationTimestamp)}
	var fn string
	switch txn.Payload.Kind {
	case types.PayloadScript, types.PayloadEntryFunction:
		fn = fnScriptPrologue
	case types.PayloadModuleBundle:
		fn = fnModulePrologue
	case types.PayloadMultisig:
		fn = fnMultisigPrologue
	}
	_, err := session.ExecuteFunctionBypassVisibility(transactionValidation, fn, nil, args, [][32]byte{meta.Sender}, meter)
	return err
}

// prologueDiscardStatus classifies a prologue failure. Every prologue
// failure discards (spec.md §4.2 stage 1); SEQUENCE_NUMBER_TOO_NEW is
// singled out only because it is "a valid validator outcome" worth a
// distinct code, not because its disposition differs.
func prologueDiscardStatus(err error, features params.Features) types.VMStatus {
	var seqErr *vm.SequenceNumberTooNewError
	if errors.As(err, &seqErr) {
		return classify(discardErrWith(ErrSequenceNumberTooNew, types.StatusSequenceNumberTooNew), features)
	}
	var abortErr *vm.MoveAbortError
	if errors.As(err, &abortErr) {
		return classify(discardErr(types.StatusMoveAbort), features)
	}
	return classify(discardErr(types.StatusUnknown), features)
}

// dispatchPayload implements spec.md §4.2 stage 5. Returns whether a module
// bundle publish occurred (ModuleBundle variant only — the common "pending
// publish request" path is tracked separately in stage 6).
func (p *TransactionPipeline) dispatchPayload(session vm.Session, txn types.UserTransaction, meter gas.Meter) (bool, error) {
	payload := txn.Payload
	switch payload.Kind {
	case types.PayloadScript:
		s := payload.Script
		if err := session.LoadScript(s.Code); err != nil {
			return false, wrapStageErr(err, p.abortInfo)
		}
		if _, err := session.ExecuteScript(s.Code, s.TyArgs, s.Args, [][32]byte{txn.Metadata.Sender}, meter); err != nil {
			return false, wrapStageErr(err, p.abortInfo)
		}
		return false, nil

	case types.PayloadEntryFunction:
		ef := payload.EntryFunction
		if err := session.LoadFunction(ef.Module, ef.Function, ef.TyArgs); err != nil {
			return false, wrapStageErr(err, p.abortInfo)
		}
		if _, err := session.ExecuteEntryFunction(ef.Module, ef.Function, ef.TyArgs, ef.Args, [][32]byte{txn.Metadata.Sender}, meter); err != nil {
			return false, wrapStageErr(err, p.abortInfo)
		}
		return false, nil

	case types.PayloadMultisig:
		// Only reached in simulation mode: non-simulation multisig is
		// intercepted before the generic pipeline starts (spec.md §4.3
		// "Simulation mode ... reusing the standard success path").
		ms := payload.Multisig
		inner, err := decodeMultisigInnerPayload(ms.InnerPayload)
		if err != nil {
			return false, discardErr(types.StatusFailedToDeserializeArgument)
		}
		if err := session.LoadFunction(inner.Module, inner.Function, inner.TyArgs); err != nil {
			return false, wrapStageErr(err, p.abortInfo)
		}
		if _, err := session.ExecuteEntryFunction(inner.Module, inner.Function, inner.TyArgs, inner.Args, [][32]byte{ms.MultisigAddress}, meter); err != nil {
			return false, wrapStageErr(err, p.abortInfo)
		}
		return false, nil

	case types.PayloadModuleBundle:
		if params.ModuleBundleDisallowed() {
			return false, discardErrWith(ErrModuleBundleDisallowed, types.StatusFeatureUnderGating)
		}
		bundle := payload.ModuleBundle
		if err := rejectDuplicateModuleIDs(session, p.runtime, bundle.Modules, p.deserializerConfig(p.features), txn.Metadata.Sender); err != nil {
			return false, err
		}
		compat := vm.Compatibility{Upgradable: true, CheckStructLayout: true, CheckFriendLinking: !p.features.IsEnabled(params.TreatFriendAsPrivate)}
		if err := p.publishBundle(session, bundle.Modules, txn.Metadata.Sender, compat, meter); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, invariantErr(errors.New("unknown payload kind"))
}

func rejectDuplicateModuleIDs(session vm.Session, runtime vm.Runtime, modules [][]byte, cfg vm.DeserializerConfig, addr [32]byte) error {
	seen := make(map[string]struct{}, len(modules))
	for _, mod := range modules {
		meta, err := runtime.ParseModuleMetadata(mod, cfg)
		if err != nil {
			return publishValidationErr(err.Error())
		}
		if _, ok := seen[meta.ShortName]; ok {
			return publishValidationErr("duplicate module id " + meta.ShortName + " in bundle")
		}
		seen[meta.ShortName] = struct{}{}
	}
	return nil
}

// chargeChangeSetIO charges I/O gas for every write in a finished change
// set, including resource-group metadata writes (spec.md §4.2 stage 7).
func chargeChangeSetIO(meter gas.Meter, cs *types.ChangeSet) error {
	for key, op := range cs.ResourceWriteSet {
		if err := meter.ChargeIOGasForWrite(key, op); err != nil {
			return err
		}
	}
	for key, op := range cs.ModuleWriteSet {
		if err := meter.ChargeIOGasForWrite(key, op); err != nil {
			return err
		}
	}
	for key, op := range cs.AggregatorV1WriteSet {
		if err := meter.ChargeIOGasForWrite(key, op); err != nil {
			return err
		}
	}
	for key, gw := range cs.ResourceGroupWriteSet {
		size := gw.Size
		if err := meter.ChargeIOGasForGroupWrite(key, gw.MetadataOp, &size); err != nil {
			return err
		}
	}
	return nil
}

func feeStatementFromMeter(meter interface {
	Balance() uint64
	ExecutionGasUsed() uint64
	IOGasUsed() uint64
	StorageFeeUsed() uint64
}, maxGasAmount, refund uint64) types.FeeStatement {
	return types.FeeStatement{
		TotalChargeGasUnits:   types.GasUsed(maxGasAmount, meter.Balance()),
		ExecutionGasUnits:     meter.ExecutionGasUsed(),
		IOGasUnits:            meter.IOGasUsed(),
		StorageFeeUsedOctas:   meter.StorageFeeUsed(),
		StorageFeeRefundOctas: refund,
	}
}

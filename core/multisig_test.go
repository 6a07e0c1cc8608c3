package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/young-rocks/aptos-core/core/gas"
	"github.com/young-rocks/aptos-core/core/types"
	"github.com/young-rocks/aptos-core/core/vm"
	"github.com/young-rocks/aptos-core/params"
)

func encodeMultisigInnerPayloadForTest(t *testing.T, module types.ModuleId, function string, args [][]byte) []byte {
	t.Helper()
	var buf []byte
	putBytes := func(b []byte) {
		var lenBuf [4]byte
		n := uint32(len(b))
		lenBuf[0] = byte(n >> 24)
		lenBuf[1] = byte(n >> 16)
		lenBuf[2] = byte(n >> 8)
		lenBuf[3] = byte(n)
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, b...)
	}
	buf = append(buf, module.Address[:]...)
	putBytes([]byte(module.Name))
	putBytes([]byte(function))
	var nArgsBuf [4]byte
	n := uint32(len(args))
	nArgsBuf[0] = byte(n >> 24)
	nArgsBuf[1] = byte(n >> 16)
	nArgsBuf[2] = byte(n >> 8)
	nArgsBuf[3] = byte(n)
	buf = append(buf, nArgsBuf[:]...)
	for _, a := range args {
		putBytes(a)
	}
	return buf
}

func TestDecodeMultisigInnerPayload_RoundTrip(t *testing.T) {
	module := types.ModuleId{Address: [32]byte{9}, Name: "coin"}
	raw := encodeMultisigInnerPayloadForTest(t, module, "transfer", [][]byte{{1, 2}, {3}})

	decoded, err := decodeMultisigInnerPayload(raw)
	require.NoError(t, err)
	assert.Equal(t, module, decoded.Module)
	assert.Equal(t, "transfer", decoded.Function)
	assert.Equal(t, [][]byte{{1, 2}, {3}}, decoded.Args)
}

func TestDecodeMultisigInnerPayload_TruncatedErrors(t *testing.T) {
	_, err := decodeMultisigInnerPayload([]byte{1, 2, 3})
	assert.ErrorIs(t, err, errTruncated)
}

// multisigFakeSession routes ExecuteFunctionBypassVisibility by function name
// so the multisig flow's three distinct calls (get_next_transaction_payload,
// the inner entry function, the cleanup call) can each be scripted
// independently, unlike the block_driver_test noopSession's uniform success.
type multisigFakeSession struct {
	nextPayload   []byte
	innerFails    bool
	cleanupCalled string
}

func (s *multisigFakeSession) LoadFunction(types.ModuleId, string, []string) error { return nil }
func (s *multisigFakeSession) LoadScript([]byte) error                            { return nil }
func (s *multisigFakeSession) ExecuteScript([]byte, []string, [][]byte, [][32]byte, gas.Meter) (vm.CallResult, error) {
	return vm.CallResult{}, nil
}
func (s *multisigFakeSession) ExecuteEntryFunction(module types.ModuleId, function string, tyArgs []string, args [][]byte, signers [][32]byte, meter gas.Meter) (vm.CallResult, error) {
	if s.innerFails {
		return vm.CallResult{}, assert.AnError
	}
	return vm.CallResult{}, nil
}
func (s *multisigFakeSession) ExecuteFunctionBypassVisibility(module types.ModuleId, function string, tyArgs []string, args [][]byte, signers [][32]byte, meter gas.Meter) (vm.CallResult, error) {
	switch function {
	case fnGetNextTransactionPayload:
		return vm.CallResult{ReturnValues: [][]byte{s.nextPayload}}, nil
	case fnSuccessfulTransactionExecutionCleanup, fnFailedTransactionExecutionCleanup:
		s.cleanupCalled = function
		return vm.CallResult{}, nil
	case fnEpilogue:
		return vm.CallResult{}, nil
	default:
		return vm.CallResult{}, nil
	}
}
func (s *multisigFakeSession) PublishModuleBundleWithCompatConfig([][]byte, [32]byte, vm.Compatibility, gas.Meter) error {
	return nil
}
func (s *multisigFakeSession) ExtractPublishRequest() (*vm.PublishRequest, bool) { return nil, false }
func (s *multisigFakeSession) ExistsModule(types.ModuleId) (bool, error)         { return false, nil }
func (s *multisigFakeSession) Finish() (*types.ChangeSet, error)                 { return types.NewChangeSet(), nil }

type multisigFakeRuntime struct {
	session *multisigFakeSession
}

func (r *multisigFakeRuntime) NewSession(vm.MoveResolver, types.SessionId) vm.Session { return r.session }
func (r *multisigFakeRuntime) ParseModuleMetadata(code []byte, cfg vm.DeserializerConfig) (vm.ModuleMetadata, error) {
	return vm.ModuleMetadata{}, nil
}
func (r *multisigFakeRuntime) InvalidateLoaderCache() {}

func testMultisigTransaction(innerPayload []byte) types.UserTransaction {
	return types.UserTransaction{
		Metadata: types.TransactionMetadata{Sender: [32]byte{1}, MaxGasAmount: 1000},
		Payload: types.Payload{
			Kind: types.PayloadMultisig,
			Multisig: &types.MultisigPayload{
				MultisigAddress: [32]byte{2},
				InnerPayload:    innerPayload,
			},
		},
	}
}

func TestExecuteMultisigTransaction_SuccessRunsSuccessfulCleanup(t *testing.T) {
	payload := encodeMultisigInnerPayloadForTest(t, types.ModuleId{Address: [32]byte{9}, Name: "coin"}, "transfer", nil)
	session := &multisigFakeSession{nextPayload: payload}
	pipeline := NewTransactionPipeline(
		&multisigFakeRuntime{session: session},
		params.NewFeatures(),
		10,
		params.StorageGasParameters{},
		func(cs *types.ChangeSet, txnSize, gasUnitPrice uint64) (uint64, uint64, error) { return 0, 0, nil },
		nil,
		func(loc types.AbortLocation, code uint64) *types.AbortInfo { return nil },
	)

	out := pipeline.ExecuteUserTransaction(testMultisigTransaction(nil), fakeBaseResolver{})
	require.True(t, out.Status.IsKept())
	assert.Equal(t, fnSuccessfulTransactionExecutionCleanup, session.cleanupCalled)
}

func TestExecuteMultisigTransaction_InnerFailureRunsFailedCleanup(t *testing.T) {
	payload := encodeMultisigInnerPayloadForTest(t, types.ModuleId{Address: [32]byte{9}, Name: "coin"}, "transfer", nil)
	session := &multisigFakeSession{nextPayload: payload, innerFails: true}
	pipeline := NewTransactionPipeline(
		&multisigFakeRuntime{session: session},
		params.NewFeatures(),
		10,
		params.StorageGasParameters{},
		func(cs *types.ChangeSet, txnSize, gasUnitPrice uint64) (uint64, uint64, error) { return 0, 0, nil },
		nil,
		func(loc types.AbortLocation, code uint64) *types.AbortInfo { return nil },
	)

	out := pipeline.ExecuteUserTransaction(testMultisigTransaction(nil), fakeBaseResolver{})
	require.True(t, out.Status.IsKept(), "cleanup-path multisig failures still Keep at the outer level")
	assert.Equal(t, fnFailedTransactionExecutionCleanup, session.cleanupCalled)
}

func TestExecuteMultisigTransaction_EmptyNextPayloadDiscards(t *testing.T) {
	session := &multisigFakeSession{nextPayload: nil}
	pipeline := NewTransactionPipeline(
		&multisigFakeRuntime{session: session},
		params.NewFeatures(),
		10,
		params.StorageGasParameters{},
		func(cs *types.ChangeSet, txnSize, gasUnitPrice uint64) (uint64, uint64, error) { return 0, 0, nil },
		nil,
		func(loc types.AbortLocation, code uint64) *types.AbortInfo { return nil },
	)

	out := pipeline.ExecuteUserTransaction(testMultisigTransaction(nil), fakeBaseResolver{})
	assert.True(t, out.Status.IsDiscarded())
}

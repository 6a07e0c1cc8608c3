package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/young-rocks/aptos-core/core/gas"
	"github.com/young-rocks/aptos-core/params"
	"github.com/young-rocks/aptos-core/core/types"
	"github.com/young-rocks/aptos-core/core/vm"
)

// noopRuntime/noopSession let block_driver_test drive the dispatch logic
// without a real Move VM: every call succeeds and produces an empty change
// set, which is all the no-op/genesis/checkpoint paths need.
type noopRuntime struct{ invalidated int }

func (r *noopRuntime) NewSession(resolver vm.MoveResolver, id types.SessionId) vm.Session {
	return &noopSession{}
}
func (r *noopRuntime) ParseModuleMetadata(code []byte, cfg vm.DeserializerConfig) (vm.ModuleMetadata, error) {
	return vm.ModuleMetadata{}, nil
}
func (r *noopRuntime) InvalidateLoaderCache() { r.invalidated++ }

type noopSession struct {
	events []types.Event
}

func (s *noopSession) LoadFunction(types.ModuleId, string, []string) error { return nil }
func (s *noopSession) LoadScript([]byte) error                             { return nil }
func (s *noopSession) ExecuteScript(code []byte, tyArgs []string, args [][]byte, signers [][32]byte, meter gas.Meter) (vm.CallResult, error) {
	return vm.CallResult{}, nil
}
func (s *noopSession) ExecuteEntryFunction(module types.ModuleId, function string, tyArgs []string, args [][]byte, signers [][32]byte, meter gas.Meter) (vm.CallResult, error) {
	return vm.CallResult{}, nil
}
func (s *noopSession) ExecuteFunctionBypassVisibility(module types.ModuleId, function string, tyArgs []string, args [][]byte, signers [][32]byte, meter gas.Meter) (vm.CallResult, error) {
	return vm.CallResult{}, nil
}
func (s *noopSession) PublishModuleBundleWithCompatConfig([][]byte, [32]byte, vm.Compatibility, gas.Meter) error {
	return nil
}
func (s *noopSession) ExtractPublishRequest() (*vm.PublishRequest, bool) { return nil, false }
func (s *noopSession) ExistsModule(types.ModuleId) (bool, error)         { return false, nil }
func (s *noopSession) Finish() (*types.ChangeSet, error) {
	cs := types.NewChangeSet()
	cs.Events = s.events
	return cs, nil
}

type fakeBaseResolver struct{}

func (fakeBaseResolver) GetModule(types.StateKey) (*vm.StateValue, error)   { return nil, nil }
func (fakeBaseResolver) GetResource(types.StateKey) (*vm.StateValue, error) { return nil, nil }
func (fakeBaseResolver) GetResourceFromGroup(types.StateKey, string, []byte) ([]byte, error) {
	return nil, nil
}
func (fakeBaseResolver) GetAggregatorV1Value(types.StateKey) (uint64, error) { return 0, nil }
func (fakeBaseResolver) GetDelayedFieldValue(types.DelayedFieldID) (uint64, error) {
	return 0, nil
}
func (fakeBaseResolver) DelayedFieldTryAddDeltaOutcome(types.DelayedFieldID, types.DelayedApplyChange, uint64) (bool, error) {
	return false, nil
}
func (fakeBaseResolver) IsDelayedFieldOptimizationCapable() bool { return false }
func (fakeBaseResolver) ReleaseResourceGroupCache()              {}

func newTestPipeline() *TransactionPipeline {
	return NewTransactionPipeline(
		&noopRuntime{},
		params.NewFeatures(),
		10,
		params.StorageGasParameters{},
		func(cs *types.ChangeSet, txnSize uint64, gasUnitPrice uint64) (uint64, uint64, error) { return 0, 0, nil },
		nil,
		func(loc types.AbortLocation, code uint64) *types.AbortInfo { return nil },
	)
}

func TestBlockDriver_NoOpKinds(t *testing.T) {
	driver := NewBlockDriver(newTestPipeline(), 2, nil)
	txns := []types.Transaction{
		{Kind: types.TransactionStateCheckpoint},
		{Kind: types.TransactionValidator},
	}
	result := driver.Run(context.Background(), txns, fakeBaseResolver{})
	require.Len(t, result.Outputs, 2)
	for _, out := range result.Outputs {
		assert.True(t, out.Status.IsKept())
	}
	assert.False(t, result.ShouldRestartExecution)
	assert.Equal(t, 2, result.StoppedAt)
}

func TestBlockDriver_GenesisDirectWriteSet(t *testing.T) {
	driver := NewBlockDriver(newTestPipeline(), 1, nil)
	direct := types.NewChangeSet()
	direct.ResourceWriteSet[types.StateKey{Tag: "x"}] = types.NewCreation([]byte{1}, types.StateValueMetadata{})
	txns := []types.Transaction{
		{Kind: types.TransactionGenesis, Genesis: &types.GenesisTransaction{Kind: types.WriteSetDirect, Direct: direct}},
	}
	result := driver.Run(context.Background(), txns, fakeBaseResolver{})
	require.Len(t, result.Outputs, 1)
	assert.True(t, result.Outputs[0].Status.IsKept())
	assert.Same(t, direct, result.Outputs[0].ChangeSet)
}

// prefixAwareRuntime/prefixAwareSession exercise a block where transaction 1
// reads a resource only transaction 0 writes, without a real Move VM. Role
// (writer vs. reader) is decided from the block_prologue round argument
// baked into each transaction, not from call order — the executor's own
// speculative/rerun passes and BlockDriver's own final-derivation pass each
// call NewSession again for the same transaction, so a call counter would
// misattribute roles on rerun.
type prefixAwareRuntime struct {
	key types.StateKey
}

func (r *prefixAwareRuntime) NewSession(resolver vm.MoveResolver, id types.SessionId) vm.Session {
	return &prefixAwareSession{resolver: resolver, key: r.key}
}
func (r *prefixAwareRuntime) ParseModuleMetadata(code []byte, cfg vm.DeserializerConfig) (vm.ModuleMetadata, error) {
	return vm.ModuleMetadata{}, nil
}
func (r *prefixAwareRuntime) InvalidateLoaderCache() {}

type prefixAwareSession struct {
	resolver vm.MoveResolver
	key      types.StateKey
	isWriter bool
}

func decodeRound(args [][]byte) uint64 {
	var v uint64
	for _, b := range args[0] {
		v = v<<8 | uint64(b)
	}
	return v
}

func (s *prefixAwareSession) LoadFunction(types.ModuleId, string, []string) error { return nil }
func (s *prefixAwareSession) LoadScript([]byte) error                             { return nil }
func (s *prefixAwareSession) ExecuteScript(code []byte, tyArgs []string, args [][]byte, signers [][32]byte, meter gas.Meter) (vm.CallResult, error) {
	return vm.CallResult{}, nil
}
func (s *prefixAwareSession) ExecuteEntryFunction(module types.ModuleId, function string, tyArgs []string, args [][]byte, signers [][32]byte, meter gas.Meter) (vm.CallResult, error) {
	return vm.CallResult{}, nil
}
func (s *prefixAwareSession) ExecuteFunctionBypassVisibility(module types.ModuleId, function string, tyArgs []string, args [][]byte, signers [][32]byte, meter gas.Meter) (vm.CallResult, error) {
	if decodeRound(args) == 0 {
		s.isWriter = true
		return vm.CallResult{}, nil
	}
	v, err := s.resolver.GetResource(s.key)
	if err != nil {
		return vm.CallResult{}, err
	}
	if v == nil {
		return vm.CallResult{}, errors.New("insufficient funds: credit not yet visible")
	}
	return vm.CallResult{}, nil
}
func (s *prefixAwareSession) PublishModuleBundleWithCompatConfig([][]byte, [32]byte, vm.Compatibility, gas.Meter) error {
	return nil
}
func (s *prefixAwareSession) ExtractPublishRequest() (*vm.PublishRequest, bool) { return nil, false }
func (s *prefixAwareSession) ExistsModule(types.ModuleId) (bool, error)         { return false, nil }
func (s *prefixAwareSession) Finish() (*types.ChangeSet, error) {
	cs := types.NewChangeSet()
	if s.isWriter {
		cs.ResourceWriteSet[s.key] = types.NewCreation([]byte{1}, types.StateValueMetadata{})
	}
	return cs, nil
}

// TestBlockDriver_FinalDerivationSeesCommittedPrefix pins the fix for the
// final Status/Fee re-derivation pass reading baseResolver directly instead
// of an overlay of baseResolver plus every earlier transaction's committed
// ChangeSet: transaction 1 here only succeeds if it can see the credit
// transaction 0 writes earlier in the same block.
func TestBlockDriver_FinalDerivationSeesCommittedPrefix(t *testing.T) {
	key := types.StateKey{Address: [32]byte{7}, Tag: "balance"}
	runtime := &prefixAwareRuntime{key: key}
	pipeline := NewTransactionPipeline(
		runtime,
		params.NewFeatures(),
		10,
		params.StorageGasParameters{},
		func(cs *types.ChangeSet, txnSize uint64, gasUnitPrice uint64) (uint64, uint64, error) { return 0, 0, nil },
		nil,
		func(loc types.AbortLocation, code uint64) *types.AbortInfo { return nil },
	)
	driver := NewBlockDriver(pipeline, 1, nil)

	txns := []types.Transaction{
		{Kind: types.TransactionBlockMetadata, BlockMetadata: &types.BlockMetadataTransaction{Round: 0}},
		{Kind: types.TransactionBlockMetadata, BlockMetadata: &types.BlockMetadataTransaction{Round: 1}},
	}

	result := driver.Run(context.Background(), txns, fakeBaseResolver{})
	require.Len(t, result.Outputs, 2)
	assert.True(t, result.Outputs[0].Status.IsKept())
	assert.True(t, result.Outputs[1].Status.IsKept(),
		"transaction 1 reads a resource transaction 0 just wrote; the final Status derivation must see the committed prefix, not the stale pre-block base resolver")
}

func TestBlockDriver_NewEpochEventStopsTheBlock(t *testing.T) {
	driver := NewBlockDriver(newTestPipeline(), 2, nil)
	direct0 := types.NewChangeSet()
	direct1 := types.NewChangeSet()
	direct1.Events = []types.Event{{TypeTag: types.NewEpochEventType}}
	direct2 := types.NewChangeSet()

	txns := []types.Transaction{
		{Kind: types.TransactionGenesis, Genesis: &types.GenesisTransaction{Kind: types.WriteSetDirect, Direct: direct0}},
		{Kind: types.TransactionGenesis, Genesis: &types.GenesisTransaction{Kind: types.WriteSetDirect, Direct: direct1}},
		{Kind: types.TransactionGenesis, Genesis: &types.GenesisTransaction{Kind: types.WriteSetDirect, Direct: direct2}},
	}
	result := driver.Run(context.Background(), txns, fakeBaseResolver{})
	assert.True(t, result.ShouldRestartExecution)
	assert.Equal(t, 2, result.StoppedAt)
	assert.Len(t, result.Outputs, 2, "the third transaction must not be materialized once new_epoch fires")
}

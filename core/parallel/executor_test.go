package parallel

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/young-rocks/aptos-core/core/types"
	"github.com/young-rocks/aptos-core/core/vm"
)

// fakeResolver answers every read from an in-memory map and nothing else;
// good enough to exercise the executor without a real Move runtime.
type fakeResolver struct {
	resources map[types.StateKey][]byte
}

func newFakeResolver() *fakeResolver { return &fakeResolver{resources: map[types.StateKey][]byte{}} }

func (r *fakeResolver) GetModule(key types.StateKey) (*vm.StateValue, error) { return nil, nil }
func (r *fakeResolver) GetResource(key types.StateKey) (*vm.StateValue, error) {
	if b, ok := r.resources[key]; ok {
		return &vm.StateValue{Bytes: b}, nil
	}
	return nil, nil
}
func (r *fakeResolver) GetResourceFromGroup(key types.StateKey, tag string, layout []byte) ([]byte, error) {
	return nil, nil
}
func (r *fakeResolver) GetAggregatorV1Value(key types.StateKey) (uint64, error) { return 0, nil }
func (r *fakeResolver) GetDelayedFieldValue(id types.DelayedFieldID) (uint64, error) {
	return 0, nil
}
func (r *fakeResolver) DelayedFieldTryAddDeltaOutcome(id types.DelayedFieldID, base types.DelayedApplyChange, maxValue uint64) (bool, error) {
	return false, nil
}
func (r *fakeResolver) IsDelayedFieldOptimizationCapable() bool { return false }
func (r *fakeResolver) ReleaseResourceGroupCache()              {}

// readWriteTask reads one key and writes another, incrementing a counter
// seeded from whatever it read — the simplest possible conflict generator.
type readWriteTask struct {
	readKey, writeKey types.StateKey
}

func (t *readWriteTask) Execute(resolver vm.MoveResolver) (*types.ChangeSet, error) {
	val, err := resolver.GetResource(t.readKey)
	if err != nil {
		return nil, err
	}
	base := uint64(0)
	if val != nil && len(val.Bytes) > 0 {
		base = uint64(val.Bytes[0])
	}
	cs := types.NewChangeSet()
	cs.ResourceWriteSet[t.writeKey] = types.NewCreation([]byte{byte(base + 1)}, types.StateValueMetadata{})
	return cs, nil
}

func keyFor(tag string) types.StateKey { return types.StateKey{Tag: tag} }

func TestExecutor_NoConflicts_RunsEveryTaskOnce(t *testing.T) {
	base := newFakeResolver()
	tasks := []Task{
		&readWriteTask{readKey: keyFor("a"), writeKey: keyFor("out-0")},
		&readWriteTask{readKey: keyFor("b"), writeKey: keyFor("out-1")},
		&readWriteTask{readKey: keyFor("c"), writeKey: keyFor("out-2")},
	}

	exec := NewExecutor(4)
	outcomes := exec.Run(context.Background(), tasks, base)
	require.Len(t, outcomes, 3)
	for i, oc := range outcomes {
		assert.NoError(t, oc.Err)
		assert.Equal(t, 0, oc.Reruns, "task %d should not need a rerun when nothing conflicts", i)
		assert.Equal(t, byte(1), oc.ChangeSet.ResourceWriteSet[keyFor(fmt.Sprintf("out-%d", i))].Bytes[0])
	}
}

func TestExecutor_Conflict_RerunsDownstreamTask(t *testing.T) {
	base := newFakeResolver()
	chained := keyFor("chained")
	// Task 0 writes `chained`; task 1 reads `chained` and writes `out`. Run
	// speculatively, task 1 will have read the BASE's (absent) value of
	// `chained`, which is wrong once task 0 commits — the executor must
	// detect this and re-run task 1 against the true prefix.
	tasks := []Task{
		&readWriteTask{readKey: keyFor("seed"), writeKey: chained},
		&readWriteTask{readKey: chained, writeKey: keyFor("out")},
	}

	exec := NewExecutor(2)
	outcomes := exec.Run(context.Background(), tasks, base)
	require.Len(t, outcomes, 2)
	assert.NoError(t, outcomes[0].Err)
	assert.NoError(t, outcomes[1].Err)
	assert.Equal(t, 1, outcomes[1].Reruns, "task 1 read a key task 0 wrote, so it must re-run")
	// task 0 wrote chained=1 (seed absent -> base 0 -> +1); task 1 must have
	// observed that 1, not the base's absence, once corrected.
	assert.Equal(t, byte(2), outcomes[1].ChangeSet.ResourceWriteSet[keyFor("out")].Bytes[0])
}

// abortingTask always reports a speculative abort on its first call and
// succeeds thereafter — modeling a task whose first run hit a transient
// read inconsistency unrelated to write-set validation.
type abortingTask struct {
	calls int
}

func (t *abortingTask) Execute(resolver vm.MoveResolver) (*types.ChangeSet, error) {
	t.calls++
	if t.calls == 1 {
		return nil, &ErrExecAbort{Cause: fmt.Errorf("transient")}
	}
	return types.NewChangeSet(), nil
}

func TestExecutor_SpeculativeAbort_IsRetriedNotSurfaced(t *testing.T) {
	base := newFakeResolver()
	task := &abortingTask{}
	exec := NewExecutor(1)
	outcomes := exec.Run(context.Background(), []Task{task}, base)
	require.Len(t, outcomes, 1)
	assert.NoError(t, outcomes[0].Err, "a speculative abort must not surface as the final error once retried")
	assert.Equal(t, 1, outcomes[0].Reruns)
}

func TestExecutor_EmptyBlock(t *testing.T) {
	exec := NewExecutor(4)
	outcomes := exec.Run(context.Background(), nil, newFakeResolver())
	assert.Nil(t, outcomes)
}

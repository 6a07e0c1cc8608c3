package tracer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/young-rocks/aptos-core/core/types"
)

func TestScriptTracer_PartialHooksOnlyWireDefinedCallbacks(t *testing.T) {
	st, err := NewScriptTracer(`
		var writes = [];
		function onResourceWrite(addr, tag, kind) {
			writes.push(addr + ":" + tag + ":" + kind);
		}
	`)
	require.NoError(t, err)

	h := st.Hooks()
	assert.Nil(t, h.OnModuleLoad)
	assert.Nil(t, h.OnResourceRead)
	assert.Nil(t, h.OnEventEmit)
	require.NotNil(t, h.OnResourceWrite)

	key := types.StateKey{Address: [32]byte{1}, Tag: "0x1::coin::CoinStore"}
	op := types.NewModification([]byte{1, 2, 3}, nil)
	h.OnResourceWrite(key, op)

	got := st.vm.Get("writes").Export().([]interface{})
	require.Len(t, got, 1)
	assert.Contains(t, got[0].(string), "0x1::coin::CoinStore")
	assert.Contains(t, got[0].(string), "modification")
}

func TestScriptTracer_ScriptErrorDoesNotPanic(t *testing.T) {
	st, err := NewScriptTracer(`function onEventEmit(typeTag, size) { throw new Error("boom"); }`)
	require.NoError(t, err)

	h := st.Hooks()
	require.NotNil(t, h.OnEventEmit)
	assert.NotPanics(t, func() {
		h.OnEventEmit(types.Event{TypeTag: types.NewEpochEventType, Data: []byte{1}})
	})
}

func TestTraceChangeSet_NilHooksIsNoop(t *testing.T) {
	assert.NotPanics(t, func() {
		TraceChangeSet(nil, types.NewChangeSet())
	})
}

func TestTraceChangeSet_VisitsWritesAndEvents(t *testing.T) {
	var writeCount, eventCount int
	h := &Hooks{
		OnResourceWrite: func(types.StateKey, types.WriteOp) { writeCount++ },
		OnEventEmit:     func(types.Event) { eventCount++ },
	}
	cs := types.NewChangeSet()
	cs.ResourceWriteSet[types.StateKey{Address: [32]byte{1}, Tag: "a"}] = types.NewModification([]byte{1}, nil)
	cs.ModuleWriteSet[types.StateKey{Address: [32]byte{2}, Tag: "b", IsModule: true}] = types.NewModification([]byte{2}, nil)
	cs.Events = append(cs.Events, types.Event{TypeTag: "x"})

	TraceChangeSet(h, cs)

	assert.Equal(t, 2, writeCount)
	assert.Equal(t, 1, eventCount)
}

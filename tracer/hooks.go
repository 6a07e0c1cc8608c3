// Package tracer implements the optional, disabled-by-default execution
// tracer hook from SPEC_FULL.md §4.9: a user-supplied script observes a
// transaction's module loads, resource reads/writes, and emitted events
// without perturbing the pipeline itself.
package tracer

import "github.com/young-rocks/aptos-core/core/types"

// Hooks is a struct of nil-checked callbacks, the same shape the teacher's
// EVM tracer config uses (core/state_transition_rollup.go's
// "st.evm.Config.Tracer != nil && st.evm.Config.Tracer.OnGasChange != nil"
// guard pattern) — every caller checks a hook for nil before invoking it, so
// a Hooks value with some fields unset behaves as a partial tracer rather
// than requiring a full implementation.
type Hooks struct {
	OnModuleLoad   func(module types.ModuleId)
	OnResourceRead func(key types.StateKey)
	OnResourceWrite func(key types.StateKey, op types.WriteOp)
	OnEventEmit    func(event types.Event)
}

func (h *Hooks) moduleLoad(module types.ModuleId) {
	if h != nil && h.OnModuleLoad != nil {
		h.OnModuleLoad(module)
	}
}

func (h *Hooks) resourceRead(key types.StateKey) {
	if h != nil && h.OnResourceRead != nil {
		h.OnResourceRead(key)
	}
}

func (h *Hooks) resourceWrite(key types.StateKey, op types.WriteOp) {
	if h != nil && h.OnResourceWrite != nil {
		h.OnResourceWrite(key, op)
	}
}

func (h *Hooks) eventEmit(event types.Event) {
	if h != nil && h.OnEventEmit != nil {
		h.OnEventEmit(event)
	}
}

// TraceChangeSet replays every write and event in a finished ChangeSet
// through h, in the ChangeSet's own iteration order. A ChangeSet carries no
// read-set of its own (spec.md §3), so reads and module loads are not
// traced here; OnResourceRead and OnModuleLoad run only when a caller
// invokes them directly.
func TraceChangeSet(h *Hooks, cs *types.ChangeSet) {
	if h == nil || cs == nil {
		return
	}
	for key, op := range cs.ResourceWriteSet {
		h.resourceWrite(key, op)
	}
	for key, op := range cs.ModuleWriteSet {
		h.resourceWrite(key, op)
	}
	for _, ev := range cs.Events {
		h.eventEmit(ev)
	}
}

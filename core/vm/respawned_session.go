package vm

import (
	"errors"
	"fmt"

	"github.com/young-rocks/aptos-core/core/types"
)

// ErrRespawnedSessionCreatedSlot is the invariant violation spec.md §4.4
// names explicitly: an epilogue must never observe a brand-new slot, since
// every slot the epilogue touches (fee statement resources, event handles)
// was already created during prologue/payload execution.
var ErrRespawnedSessionCreatedSlot = errors.New("respawned session produced a Creation write, expected only Modification/Deletion")

// RespawnedSession lets the pipeline open a fresh Session against a base
// resolver overlaid with a previously-finished ChangeSet, so an epilogue can
// observe the effects of payload execution without those effects having
// been committed to real storage yet (spec.md §4.4, GLOSSARY "Respawned
// session"). It is a self-referential borrow chain by construction: the
// overlay owns the change set, the resolver borrows the overlay, and the
// inner session borrows the resolver — Go's GC lets us express this
// directly as three owned fields instead of the unsafe self-borrow the
// original Rust type needs a pin for.
type RespawnedSession struct {
	overlay *ExecutorViewWithChangeSet
	inner   Session
	storageRefund uint64
	finished bool
}

// Spawn opens a new session against vm with resolver set to a fresh overlay
// of baseResolver plus previousChangeSet (spec.md §4.4 "spawn(vm, session_id,
// base_resolver, previous_change_set, storage_refund)").
func Spawn(rt Runtime, sessionID types.SessionId, baseResolver MoveResolver, previousChangeSet *types.ChangeSet, storageRefund uint64, algebra types.DelayedFieldAlgebra) *RespawnedSession {
	overlay := NewExecutorViewWithChangeSet(baseResolver, previousChangeSet, algebra)
	inner := rt.NewSession(overlay, sessionID)
	return &RespawnedSession{overlay: overlay, inner: inner, storageRefund: storageRefund}
}

// Session exposes the inner Session for the epilogue logic to drive
// (execute_entry_function / execute_function_bypass_visibility etc).
func (r *RespawnedSession) Session() Session { return r.inner }

// StorageRefund is threaded through unchanged; epilogues consult it when
// computing the final fee statement (spec.md §4.2 stage 7).
func (r *RespawnedSession) StorageRefund() uint64 { return r.storageRefund }

// Finish drains the inner session, squashes the resulting ChangeSet onto the
// overlay's base change set, and enforces the no-Creation invariant (spec.md
// §4.4 "finish() ... must contain no Creation writes; violating this is an
// UNKNOWN_INVARIANT_VIOLATION_ERROR"). It must not be called twice.
func (r *RespawnedSession) Finish() (*types.ChangeSet, error) {
	if r.finished {
		return nil, errors.New("vm: RespawnedSession.Finish called twice")
	}
	r.finished = true

	additional, err := r.inner.Finish()
	if err != nil {
		return nil, fmt.Errorf("respawned session finish: %w", err)
	}
	if additional.HasAnyCreation() {
		return nil, ErrRespawnedSessionCreatedSlot
	}

	merged, err := types.Squash(r.overlay.ChangeSet(), additional)
	if err != nil {
		return nil, fmt.Errorf("respawned session squash: %w", err)
	}
	return merged, nil
}

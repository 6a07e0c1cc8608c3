package types

import "fmt"

// GroupReadNeedingExchange / ReadNeedingExchange record that a read observed
// a delayed-field identifier that the writer must later rehydrate into a
// concrete value before the write can be committed (spec.md §3 "auxiliary
// read-sets used when delayed-field identifiers appear in reads").
type ReadNeedingExchange struct {
	Key    StateKey
	Layout []byte
}

type GroupReadNeedingExchange struct {
	Key    StateKey
	Tag    string
	Layout []byte
}

// ChangeSet is the ordered, key-indexed bundle of pending mutations and
// events produced by finishing a Session (spec.md §3, §GLOSSARY).
type ChangeSet struct {
	ResourceWriteSet      map[StateKey]WriteOp
	ResourceGroupWriteSet map[StateKey]GroupWrite
	ModuleWriteSet        map[StateKey]WriteOp
	AggregatorV1WriteSet  map[StateKey]WriteOp
	AggregatorV1DeltaSet  map[StateKey]DelayedApplyChange
	DelayedFieldChangeSet map[DelayedFieldID]DelayedFieldChange

	ReadsNeedingDelayedFieldExchange      []ReadNeedingExchange
	GroupReadsNeedingDelayedFieldExchange []GroupReadNeedingExchange

	Events []Event
}

func NewChangeSet() *ChangeSet {
	return &ChangeSet{
		ResourceWriteSet:      make(map[StateKey]WriteOp),
		ResourceGroupWriteSet: make(map[StateKey]GroupWrite),
		ModuleWriteSet:        make(map[StateKey]WriteOp),
		AggregatorV1WriteSet:  make(map[StateKey]WriteOp),
		AggregatorV1DeltaSet:  make(map[StateKey]DelayedApplyChange),
		DelayedFieldChangeSet: make(map[DelayedFieldID]DelayedFieldChange),
	}
}

// Validate enforces spec.md §3's invariant that a key appears in at most one
// of {resource_write_set, resource_group_write_set member}.
func (cs *ChangeSet) Validate() error {
	for key := range cs.ResourceWriteSet {
		if _, ok := cs.ResourceGroupWriteSet[key]; ok {
			return fmt.Errorf("key %v present in both resource_write_set and resource_group_write_set", key)
		}
	}
	return nil
}

// HasAnyCreation reports whether any write in the change set is a Creation
// — used by the respawned-session finish invariant (spec.md §4.4, §8
// invariant 5).
func (cs *ChangeSet) HasAnyCreation() bool {
	for _, op := range cs.ResourceWriteSet {
		if op.IsCreation() {
			return true
		}
	}
	for _, op := range cs.ModuleWriteSet {
		if op.IsCreation() {
			return true
		}
	}
	for _, op := range cs.AggregatorV1WriteSet {
		if op.IsCreation() {
			return true
		}
	}
	for _, g := range cs.ResourceGroupWriteSet {
		if g.MetadataOp.IsCreation() {
			return true
		}
		for _, inner := range g.InnerOps {
			if inner.Op.IsCreation() {
				return true
			}
		}
	}
	for _, d := range cs.DelayedFieldChangeSet {
		if d.Kind == DelayedFieldCreate {
			return true
		}
	}
	return false
}

// IsEmpty reports whether the change set has no writes and no events —
// spec.md §8 invariant 4, "Discard purity".
func (cs *ChangeSet) IsEmpty() bool {
	return len(cs.ResourceWriteSet) == 0 &&
		len(cs.ResourceGroupWriteSet) == 0 &&
		len(cs.ModuleWriteSet) == 0 &&
		len(cs.AggregatorV1WriteSet) == 0 &&
		len(cs.AggregatorV1DeltaSet) == 0 &&
		len(cs.DelayedFieldChangeSet) == 0 &&
		len(cs.Events) == 0
}

// Squash merges next onto base: next's writes override base's per key
// (right-biased), events concatenate in order, and a Creation immediately
// followed by a Deletion on the same key cancels out rather than leaving a
// Deletion with stale creation intent (spec.md §3 invariant, §8 round-trip
// property "squash(A, empty) = A; squash(empty, B) = B; associative modulo
// event concatenation").
func Squash(base, next *ChangeSet) (*ChangeSet, error) {
	out := NewChangeSet()

	for k, v := range base.ResourceWriteSet {
		out.ResourceWriteSet[k] = v
	}
	for k, v := range base.ModuleWriteSet {
		out.ModuleWriteSet[k] = v
	}
	for k, v := range base.AggregatorV1WriteSet {
		out.AggregatorV1WriteSet[k] = v
	}
	for k, v := range base.AggregatorV1DeltaSet {
		out.AggregatorV1DeltaSet[k] = v
	}
	for k, v := range base.ResourceGroupWriteSet {
		out.ResourceGroupWriteSet[k] = v.Clone()
	}
	for k, v := range base.DelayedFieldChangeSet {
		out.DelayedFieldChangeSet[k] = v
	}

	if err := squashResourceLike(out.ResourceWriteSet, next.ResourceWriteSet); err != nil {
		return nil, err
	}
	if err := squashResourceLike(out.ModuleWriteSet, next.ModuleWriteSet); err != nil {
		return nil, err
	}
	if err := squashResourceLike(out.AggregatorV1WriteSet, next.AggregatorV1WriteSet); err != nil {
		return nil, err
	}
	for k, v := range next.AggregatorV1DeltaSet {
		// A later delta composes with an earlier one on the same key; the
		// actual bounded-math composition is delegated to the algebra
		// (spec.md §4.4, §9 Open Questions) — here we just keep the later
		// write intent visible, matching "right operand's writes override".
		out.AggregatorV1DeltaSet[k] = v
	}

	for k, gw := range next.ResourceGroupWriteSet {
		existing, ok := out.ResourceGroupWriteSet[k]
		if !ok {
			out.ResourceGroupWriteSet[k] = gw.Clone()
			continue
		}
		merged := existing.Clone()
		merged.MetadataOp = gw.MetadataOp
		merged.Size = gw.Size
		for tag, inner := range gw.InnerOps {
			merged.InnerOps[tag] = inner
		}
		out.ResourceGroupWriteSet[k] = merged
	}

	for id, change := range next.DelayedFieldChangeSet {
		out.DelayedFieldChangeSet[id] = change
	}

	out.ReadsNeedingDelayedFieldExchange = append(append([]ReadNeedingExchange{}, base.ReadsNeedingDelayedFieldExchange...), next.ReadsNeedingDelayedFieldExchange...)
	out.GroupReadsNeedingDelayedFieldExchange = append(append([]GroupReadNeedingExchange{}, base.GroupReadsNeedingDelayedFieldExchange...), next.GroupReadsNeedingDelayedFieldExchange...)

	out.Events = append(append([]Event{}, base.Events...), next.Events...)

	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

func squashResourceLike(base map[StateKey]WriteOp, next map[StateKey]WriteOp) error {
	for k, nextOp := range next {
		if baseOp, ok := base[k]; ok {
			merged, keep := SquashWriteOp(baseOp, nextOp)
			if !keep {
				delete(base, k)
				continue
			}
			base[k] = merged
			continue
		}
		base[k] = nextOp
	}
	return nil
}

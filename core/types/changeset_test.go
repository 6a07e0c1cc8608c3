package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(tag string) StateKey { return StateKey{Address: [32]byte{1}, Tag: tag} }

func TestSquash_IdentityWithEmpty(t *testing.T) {
	a := NewChangeSet()
	a.ResourceWriteSet[key("a")] = NewModification([]byte{1}, nil)
	a.Events = append(a.Events, Event{TypeTag: "e1"})

	merged, err := Squash(a, NewChangeSet())
	require.NoError(t, err)
	assert.Equal(t, a.ResourceWriteSet, merged.ResourceWriteSet)
	assert.Equal(t, a.Events, merged.Events)

	merged2, err := Squash(NewChangeSet(), a)
	require.NoError(t, err)
	assert.Equal(t, a.ResourceWriteSet, merged2.ResourceWriteSet)
	assert.Equal(t, a.Events, merged2.Events)
}

func TestSquash_CreationThenDeletionCancels(t *testing.T) {
	base := NewChangeSet()
	base.ResourceWriteSet[key("a")] = NewCreation([]byte{1}, StateValueMetadata{})

	next := NewChangeSet()
	next.ResourceWriteSet[key("a")] = NewDeletion(nil)

	merged, err := Squash(base, next)
	require.NoError(t, err)
	_, present := merged.ResourceWriteSet[key("a")]
	assert.False(t, present, "creation immediately followed by deletion should cancel out")
}

func TestSquash_RightBiasedOnOverlappingKey(t *testing.T) {
	base := NewChangeSet()
	base.ResourceWriteSet[key("a")] = NewModification([]byte{1}, nil)

	next := NewChangeSet()
	next.ResourceWriteSet[key("a")] = NewModification([]byte{2}, nil)

	merged, err := Squash(base, next)
	require.NoError(t, err)
	assert.Equal(t, []byte{2}, merged.ResourceWriteSet[key("a")].Bytes)
}

func TestSquash_EventsConcatenateInOrder(t *testing.T) {
	base := NewChangeSet()
	base.Events = []Event{{TypeTag: "first"}}
	next := NewChangeSet()
	next.Events = []Event{{TypeTag: "second"}}

	merged, err := Squash(base, next)
	require.NoError(t, err)
	require.Len(t, merged.Events, 2)
	assert.Equal(t, "first", merged.Events[0].TypeTag)
	assert.Equal(t, "second", merged.Events[1].TypeTag)
}

func TestSquash_Associative(t *testing.T) {
	a := NewChangeSet()
	a.ResourceWriteSet[key("a")] = NewCreation([]byte{1}, StateValueMetadata{})
	a.Events = []Event{{TypeTag: "a"}}

	b := NewChangeSet()
	b.ResourceWriteSet[key("a")] = NewModification([]byte{2}, nil)
	b.ResourceWriteSet[key("b")] = NewCreation([]byte{3}, StateValueMetadata{})
	b.Events = []Event{{TypeTag: "b"}}

	c := NewChangeSet()
	c.ResourceWriteSet[key("b")] = NewDeletion(nil)
	c.Events = []Event{{TypeTag: "c"}}

	ab, err := Squash(a, b)
	require.NoError(t, err)
	abc, err := Squash(ab, c)
	require.NoError(t, err)

	bc, err := Squash(b, c)
	require.NoError(t, err)
	aBC, err := Squash(a, bc)
	require.NoError(t, err)

	assert.Equal(t, abc.ResourceWriteSet, aBC.ResourceWriteSet)
	assert.Equal(t, abc.Events, aBC.Events)
}

func TestChangeSet_ValidateRejectsKeyInBothWriteSets(t *testing.T) {
	cs := NewChangeSet()
	k := key("a")
	cs.ResourceWriteSet[k] = NewModification([]byte{1}, nil)
	cs.ResourceGroupWriteSet[k] = GroupWrite{MetadataOp: NewModification([]byte{2}, nil), InnerOps: map[string]GroupInnerOp{}}

	assert.Error(t, cs.Validate())
}

func TestChangeSet_IsEmpty(t *testing.T) {
	cs := NewChangeSet()
	assert.True(t, cs.IsEmpty())

	cs.Events = append(cs.Events, Event{TypeTag: "e"})
	assert.False(t, cs.IsEmpty())
}

func TestChangeSet_HasAnyCreation(t *testing.T) {
	cs := NewChangeSet()
	assert.False(t, cs.HasAnyCreation())

	cs.ResourceWriteSet[key("a")] = NewModification([]byte{1}, nil)
	assert.False(t, cs.HasAnyCreation())

	cs.ModuleWriteSet[key("m")] = NewCreation([]byte{1}, StateValueMetadata{})
	assert.True(t, cs.HasAnyCreation())
}

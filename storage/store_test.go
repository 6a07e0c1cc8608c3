package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/young-rocks/aptos-core/core/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(Options{Dir: dir})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_ResourceRoundTrip(t *testing.T) {
	s := newTestStore(t)
	key := types.StateKey{Address: [32]byte{1}, Tag: "0x1::coin::CoinStore"}

	v, err := s.GetResource(key)
	require.NoError(t, err)
	assert.Nil(t, v, "an unwritten slot reads as absent, not an error")

	cs := types.NewChangeSet()
	cs.ResourceWriteSet[key] = types.NewCreation([]byte{9, 9}, types.StateValueMetadata{SlotDepositOctas: 100})
	require.NoError(t, s.Apply(cs))

	v, err = s.GetResource(key)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, []byte{9, 9}, v.Bytes)
	assert.Equal(t, uint64(100), v.Metadata.SlotDepositOctas)
}

func TestStore_ModuleLoaderCache_InvalidatedOnWrite(t *testing.T) {
	s := newTestStore(t)
	key := types.StateKey{Address: [32]byte{2}, Tag: "0x2::m", IsModule: true}

	cs := types.NewChangeSet()
	cs.ModuleWriteSet[key] = types.NewCreation([]byte{1}, types.StateValueMetadata{})
	require.NoError(t, s.Apply(cs))

	v, err := s.GetModule(key)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, []byte{1}, v.Bytes)

	cs2 := types.NewChangeSet()
	cs2.ModuleWriteSet[key] = types.NewModification([]byte{2}, nil)
	require.NoError(t, s.Apply(cs2))

	v, err = s.GetModule(key)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, []byte{2}, v.Bytes, "stale cache entry must be invalidated by the write, not served")
}

func TestStore_DeletionRemovesSlot(t *testing.T) {
	s := newTestStore(t)
	key := types.StateKey{Address: [32]byte{3}, Tag: "0x3::x"}

	cs := types.NewChangeSet()
	cs.ResourceWriteSet[key] = types.NewCreation([]byte{1}, types.StateValueMetadata{})
	require.NoError(t, s.Apply(cs))

	cs2 := types.NewChangeSet()
	cs2.ResourceWriteSet[key] = types.NewDeletion(nil)
	require.NoError(t, s.Apply(cs2))

	v, err := s.GetResource(key)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestStore_ResourceGroup_MemberAndSize(t *testing.T) {
	s := newTestStore(t)
	groupKey := types.StateKey{Address: [32]byte{4}, Tag: "0x4::object::ObjectGroup"}

	cs := types.NewChangeSet()
	cs.ResourceGroupWriteSet[groupKey] = types.GroupWrite{
		MetadataOp: types.NewCreation(nil, types.StateValueMetadata{}),
		InnerOps: map[string]types.GroupInnerOp{
			"0x4::a::A": {Op: types.NewCreation([]byte{1, 2, 3}, types.StateValueMetadata{})},
		},
		Size: 3,
	}
	require.NoError(t, s.Apply(cs))

	member, err := s.GetResourceFromGroup(groupKey, "0x4::a::A", nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, member)

	size, err := s.ResourceGroupSize(groupKey)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), size, "metadata op carries no bytes, matching an empty group marker")
}

func TestStore_AggregatorV1Value(t *testing.T) {
	s := newTestStore(t)
	key := types.StateKey{Address: [32]byte{5}, Tag: "0x5::supply"}

	v, err := s.GetAggregatorV1Value(key)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), v)

	var buf [8]byte
	buf[7] = 42
	cs := types.NewChangeSet()
	cs.AggregatorV1WriteSet[key] = types.NewCreation(buf[:], types.StateValueMetadata{})
	require.NoError(t, s.Apply(cs))

	v, err = s.GetAggregatorV1Value(key)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), v)
}

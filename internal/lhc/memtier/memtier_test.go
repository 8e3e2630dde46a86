package memtier_test

import (
	"testing"

	"eve.evalgo.org/internal/chash"
	"eve.evalgo.org/internal/lhc/memtier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdmitThenGetRoundTrip(t *testing.T) {
	tier, err := memtier.New(16, 1000, 1000)
	require.NoError(t, err)

	key := chash.Of([]byte("skid row"))
	assert.True(t, tier.Admit("entries", key, []byte("slave to the grind")))

	value, ok := tier.Get("entries", key)
	require.True(t, ok)
	assert.Equal(t, "slave to the grind", string(value))
}

func TestAdmissionRateLimited(t *testing.T) {
	tier, err := memtier.New(16, 0, 0)
	require.NoError(t, err)

	admitted := tier.Admit("entries", chash.Of([]byte("x")), []byte("y"))
	assert.False(t, admitted)
}

func TestLRUEvictsBeyondCapacity(t *testing.T) {
	tier, err := memtier.New(2, 1000, 1000)
	require.NoError(t, err)

	tier.Admit("entries", chash.Of([]byte("a")), []byte("a"))
	tier.Admit("entries", chash.Of([]byte("b")), []byte("b"))
	tier.Admit("entries", chash.Of([]byte("c")), []byte("c"))

	assert.Equal(t, 2, tier.Len())
}

func TestRemoveEvictsEntry(t *testing.T) {
	tier, err := memtier.New(16, 1000, 1000)
	require.NoError(t, err)
	key := chash.Of([]byte("k"))
	tier.Admit("entries", key, []byte("v"))

	tier.Remove("entries", key)

	_, ok := tier.Get("entries", key)
	assert.False(t, ok)
}

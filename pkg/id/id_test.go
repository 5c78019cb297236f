package id

import (
	"sort"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewULIDIsSortableAndUnique(t *testing.T) {
	g := NewULIDGenerator()
	ids := make([]string, 200)
	for i := range ids {
		ids[i] = g.Generate()
	}

	assert.True(t, sort.StringsAreSorted(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, s := range ids {
		_, err := ulid.ParseStrict(s)
		require.NoError(t, err)
		seen[s] = struct{}{}
	}
	assert.Len(t, seen, len(ids))
}

func TestNewUUID(t *testing.T) {
	a, b := NewUUID(), NewUUID()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 36)
	assert.True(t, IsUUID(a))
	assert.False(t, IsUUID("not-a-uuid"))
}

package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/profile-harvester/internal/embedding"
)

func TestStoreReplacesByID(t *testing.T) {
	t.Parallel()

	store := New()
	ctx := context.Background()
	require.NoError(t, store.Upsert(ctx, []embedding.Vector{{ID: "b", Values: []float32{1}}, {ID: "a"}}))
	require.NoError(t, store.Upsert(ctx, []embedding.Vector{{ID: "b", Values: []float32{2}}}))

	assert.Equal(t, []string{"a", "b"}, store.IDs())
	v, ok := store.Get("b")
	require.True(t, ok)
	assert.Equal(t, []float32{2}, v.Values)
	assert.Equal(t, 2, store.Upserts())

	require.Error(t, store.Upsert(ctx, []embedding.Vector{{ID: "c"}, {}}))
	_, ok = store.Get("c")
	assert.False(t, ok, "rejected batches are not partially applied")
}

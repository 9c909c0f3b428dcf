package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestVectorIndex(t *testing.T, dim int) *VectorIndex {
	t.Helper()
	idx, err := NewVectorIndex(VectorConfig{
		Path:       t.TempDir(),
		Collection: "test_items",
		Dimension:  dim,
	}, zap.NewNop())
	require.NoError(t, err)
	return idx
}

func TestVectorIndexInsertDimensionMismatch(t *testing.T) {
	idx := newTestVectorIndex(t, 3)
	ctx := context.Background()

	err := idx.Insert(ctx, "a", []float32{1, 0}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDimensionMismatch))
	assert.Equal(t, 0, idx.Count(), "nothing should be written on mismatch")

	err = idx.Insert(ctx, "a", []float32{1, 0, 0, 0}, nil)
	assert.True(t, errors.Is(err, ErrDimensionMismatch))
	assert.Equal(t, 0, idx.Count())
}

func TestVectorIndexQueryEmptyIndex(t *testing.T) {
	idx := newTestVectorIndex(t, 3)

	results, err := idx.Query(context.Background(), []float32{1, 0, 0}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestVectorIndexQueryOrdering(t *testing.T) {
	idx := newTestVectorIndex(t, 3)
	ctx := context.Background()

	require.NoError(t, idx.Insert(ctx, "far", []float32{0, 1, 0}, nil))
	require.NoError(t, idx.Insert(ctx, "near", []float32{1, 0.1, 0}, nil))
	require.NoError(t, idx.Insert(ctx, "exact", []float32{1, 0, 0}, nil))

	results, err := idx.Query(ctx, []float32{1, 0, 0}, 3, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "exact", results[0].ID)
	assert.Equal(t, "near", results[1].ID)
	assert.Equal(t, "far", results[2].ID)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-6)

	// Repeated calls return the same ordering.
	again, err := idx.Query(ctx, []float32{1, 0, 0}, 3, nil)
	require.NoError(t, err)
	for i := range results {
		assert.Equal(t, results[i].ID, again[i].ID)
	}
}

func TestVectorIndexTiesBrokenByInsertionOrder(t *testing.T) {
	idx := newTestVectorIndex(t, 3)
	ctx := context.Background()

	// Identical vectors: the earlier insert wins.
	require.NoError(t, idx.Insert(ctx, "second-id-alphabetically-first", []float32{0, 0, 1}, nil))
	require.NoError(t, idx.Insert(ctx, "a-later-insert", []float32{0, 0, 1}, nil))

	results, err := idx.Query(ctx, []float32{0, 0, 1}, 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "second-id-alphabetically-first", results[0].ID)
	assert.Equal(t, "a-later-insert", results[1].ID)
}

func TestVectorIndexMetadataFilter(t *testing.T) {
	idx := newTestVectorIndex(t, 3)
	ctx := context.Background()

	require.NoError(t, idx.Insert(ctx, "cats-1", []float32{1, 0, 0}, map[string]string{"topic": "cats"}))
	require.NoError(t, idx.Insert(ctx, "dogs-1", []float32{1, 0, 0}, map[string]string{"topic": "dogs"}))
	require.NoError(t, idx.Insert(ctx, "cats-2", []float32{0, 1, 0}, map[string]string{"topic": "cats"}))

	// The dogs item is closest but is excluded before the top-k cut.
	results, err := idx.Query(ctx, []float32{1, 0, 0}, 2, map[string]string{"topic": "cats"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "cats-1", results[0].ID)
	assert.Equal(t, "cats-2", results[1].ID)
}

func TestVectorIndexQueryDimensionMismatch(t *testing.T) {
	idx := newTestVectorIndex(t, 3)
	ctx := context.Background()
	require.NoError(t, idx.Insert(ctx, "a", []float32{1, 0, 0}, nil))

	_, err := idx.Query(ctx, []float32{1, 0}, 1, nil)
	assert.True(t, errors.Is(err, ErrDimensionMismatch))
}

func TestVectorIndexKCappedAtCount(t *testing.T) {
	idx := newTestVectorIndex(t, 3)
	ctx := context.Background()
	require.NoError(t, idx.Insert(ctx, "only", []float32{1, 0, 0}, nil))

	results, err := idx.Query(ctx, []float32{1, 0, 0}, 10, nil)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

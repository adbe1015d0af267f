package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryVectorStoreUpsertSkipsExisting(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryVectorStore()
	recs := []ChunkRecord{
		{ID: "a.pdf:0:0", WorkflowID: "w1", Content: "one", Embedding: []float32{1, 0}},
		{ID: "a.pdf:0:1", WorkflowID: "w1", Content: "two", Embedding: []float32{0, 1}},
	}

	n, err := s.Upsert(ctx, "ns", recs)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.Upsert(ctx, "ns", recs)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	count, _ := s.Count(ctx, "ns", "w1")
	assert.Equal(t, 2, count)

	// Same ids in another workflow are a different partition.
	recs[0].WorkflowID = "w2"
	n, err = s.Upsert(ctx, "ns", recs[:1])
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	existing, err := s.ExistingIDs(ctx, "ns", "w1", []string{"a.pdf:0:0", "a.pdf:9:9"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"a.pdf:0:0": true}, existing)
}

func TestMemoryVectorStoreQueryStaysInPartition(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryVectorStore()
	_, err := s.Upsert(ctx, "ns", []ChunkRecord{
		{ID: "near", WorkflowID: "other", Content: "exact match", Embedding: []float32{1, 0}},
		{ID: "mid", WorkflowID: "mine", Content: "close", Embedding: []float32{0.8, 0.2}},
		{ID: "far", WorkflowID: "mine", Content: "far", Embedding: []float32{0, 1}},
	})
	require.NoError(t, err)

	matches, err := s.Query(ctx, "ns", "mine", []float32{1, 0}, 4)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "mid", matches[0].ID)
	assert.Equal(t, "far", matches[1].ID)
	for _, m := range matches {
		assert.Equal(t, "mine", m.WorkflowID)
	}

	matches, err = s.Query(ctx, "ns", "mine", []float32{1, 0}, 1)
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	require.NoError(t, s.DeleteWorkflow(ctx, "ns", "mine"))
	count, _ := s.Count(ctx, "ns", "mine")
	assert.Zero(t, count)
}

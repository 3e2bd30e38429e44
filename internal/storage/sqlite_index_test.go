package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-analyzer/internal/constants"
)

func TestSQLiteIndex_Lifecycle(t *testing.T) {
	root := t.TempDir()
	idx := NewSQLiteIndex(root, "resume_")
	t.Cleanup(func() { _ = idx.Close() })
	ctx := context.Background()

	require.NoError(t, idx.Create(ctx, "resume_s1", 2))
	assert.FileExists(t, filepath.Join(root, "s1", constants.LocalIndexFile))

	docs := []*schema.Document{
		{ID: "0", Content: "education", MetaData: map[string]any{MetaChunkIndex: 0, MetaChunkStart: 0}},
		{ID: "1", Content: "experience", MetaData: map[string]any{MetaChunkIndex: 1, MetaChunkStart: 800}},
		{ID: "2", Content: "skills", MetaData: map[string]any{MetaChunkIndex: 2, MetaChunkStart: 1600}},
	}
	vectors := [][]float64{{1, 0}, {0.7, 0.7}, {0, 1}}
	require.NoError(t, idx.Upsert(ctx, "resume_s1", docs, vectors))

	hits, err := idx.Search(ctx, "resume_s1", []float64{0, 1}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "skills", hits[0].Content)
	assert.Equal(t, "experience", hits[1].Content)
	assert.InDelta(t, 1.0, hits[0].Score(), 1e-9)
	assert.Equal(t, 1600, hits[0].MetaData[MetaChunkStart])

	names, err := idx.List(ctx, "resume_")
	require.NoError(t, err)
	assert.Equal(t, []string{"resume_s1"}, names)

	require.NoError(t, idx.Drop(ctx, "resume_s1"))
	assert.NoFileExists(t, filepath.Join(root, "s1", constants.LocalIndexFile))
	require.NoError(t, idx.Drop(ctx, "resume_s1"))

	names, err = idx.List(ctx, "resume_")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestSQLiteIndex_SearchUnknownNamespace(t *testing.T) {
	idx := NewSQLiteIndex(t.TempDir(), "resume_")
	_, err := idx.Search(context.Background(), "resume_missing", []float64{1}, 3)
	assert.ErrorIs(t, err, ErrNamespaceNotFound)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float64{1, 2}, []float64{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, cosine([]float64{1, 0}, []float64{0, 1}), 1e-9)
	assert.Equal(t, 0.0, cosine([]float64{1}, []float64{1, 2}))
	assert.Equal(t, 0.0, cosine([]float64{0, 0}, []float64{1, 1}))
}

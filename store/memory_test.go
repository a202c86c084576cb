package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedpulse/feedpulse/apperr"
)

type testDoc struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestMemoryCreateInjectsID(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	id, err := m.Create(ctx, "docs", testDoc{Name: "a"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	var got testDoc
	require.NoError(t, m.Get(ctx, "docs", id, &got))
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "a", got.Name)
}

func TestMemoryGetUnknown(t *testing.T) {
	m := NewMemory()

	var got testDoc
	err := m.Get(context.Background(), "docs", "missing", &got)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestMemoryQueryFilters(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, "docs", "1", testDoc{Name: "a", Count: 1}))
	require.NoError(t, m.Put(ctx, "docs", "2", testDoc{Name: "b", Count: 1}))
	require.NoError(t, m.Put(ctx, "docs", "3", testDoc{Name: "a", Count: 2}))

	var docs []testDoc
	require.NoError(t, m.Query(ctx, "docs", Filters{"name": "a"}, &docs))
	require.Len(t, docs, 2)

	docs = nil
	require.NoError(t, m.Query(ctx, "docs", Filters{"name": "a", "count": 2}, &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, "3", docs[0].ID)

	docs = nil
	require.NoError(t, m.Query(ctx, "docs", nil, &docs))
	assert.Len(t, docs, 3)
}

func TestMemoryUpdateMergesFields(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, "docs", "1", testDoc{Name: "a", Count: 1}))
	require.NoError(t, m.Update(ctx, "docs", "1", Fields{"count": 7}))

	var got testDoc
	require.NoError(t, m.Get(ctx, "docs", "1", &got))
	assert.Equal(t, "a", got.Name)
	assert.Equal(t, 7, got.Count)

	err := m.Update(ctx, "docs", "missing", Fields{"count": 1})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestMemoryDeleteIsIdempotent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, "docs", "1", testDoc{Name: "a"}))
	require.NoError(t, m.Delete(ctx, "docs", "1"))
	require.NoError(t, m.Delete(ctx, "docs", "1"))

	var got testDoc
	assert.ErrorIs(t, m.Get(ctx, "docs", "1", &got), apperr.ErrNotFound)
}

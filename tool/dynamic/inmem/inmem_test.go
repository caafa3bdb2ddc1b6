package inmem

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appforge/toolflow/tool/dynamic"
)

func TestSaveAssignsIDAndTimestamps(t *testing.T) {
	s := New()
	ctx := context.Background()

	def := &dynamic.Definition{Name: "greet", Expression: `upper(params.name)`}
	require.NoError(t, s.SaveDefinition(ctx, def))
	require.NotEmpty(t, def.ID)
	assert.False(t, def.CreatedAt.IsZero())
	assert.False(t, def.UpdatedAt.IsZero())

	got, err := s.GetDefinition(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, "greet", got.Name)
}

func TestSavePreservesCreatedAtOnUpdate(t *testing.T) {
	s := New()
	ctx := context.Background()

	def := &dynamic.Definition{Name: "v1", Expression: "1"}
	require.NoError(t, s.SaveDefinition(ctx, def))
	created := def.CreatedAt

	def.Name = "v2"
	require.NoError(t, s.SaveDefinition(ctx, def))

	got, err := s.GetDefinition(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Name)
	assert.Equal(t, created, got.CreatedAt)
}

func TestGetAndDeleteUnknownID(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.GetDefinition(ctx, "nope")
	require.ErrorIs(t, err, dynamic.ErrNotFound)
	require.ErrorIs(t, s.DeleteDefinition(ctx, "nope"), dynamic.ErrNotFound)
}

func TestDeleteRemovesDefinition(t *testing.T) {
	s := New()
	ctx := context.Background()

	def := &dynamic.Definition{Name: "gone", Expression: "1"}
	require.NoError(t, s.SaveDefinition(ctx, def))
	require.NoError(t, s.DeleteDefinition(ctx, def.ID))
	_, err := s.GetDefinition(ctx, def.ID)
	require.ErrorIs(t, err, dynamic.ErrNotFound)
}

func TestListReturnsCopies(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.SaveDefinition(ctx, &dynamic.Definition{Name: "a", Expression: "1"}))
	require.NoError(t, s.SaveDefinition(ctx, &dynamic.Definition{Name: "b", Expression: "2"}))

	defs, err := s.ListDefinitions(ctx)
	require.NoError(t, err)
	require.Len(t, defs, 2)

	defs[0].Name = "mutated"
	again, err := s.ListDefinitions(ctx)
	require.NoError(t, err)
	for _, d := range again {
		assert.NotEqual(t, "mutated", d.Name)
	}
}

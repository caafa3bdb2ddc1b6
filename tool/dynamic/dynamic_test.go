package dynamic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appforge/toolflow/tool"
)

func TestCompileAndExecuteExpression(t *testing.T) {
	def := &Definition{
		ID:         "def-1",
		Name:       "greet",
		Expression: `upper(params.name) + "!"`,
	}
	d, err := Compile(def)
	require.NoError(t, err)
	assert.Equal(t, "def-1", d.ID)
	assert.Equal(t, tool.CategoryCustom, d.Category)

	got, err := d.Executor.Execute(context.Background(), map[string]any{"name": "ada"})
	require.NoError(t, err)
	assert.Equal(t, "ADA!", got)
}

func TestCompileWithParameterSchema(t *testing.T) {
	def := &Definition{
		Name: "double",
		ParameterSchema: []byte(`{
			"type": "object",
			"properties": {"n": {"type": "number"}},
			"required": ["n"]
		}`),
		Expression: `params.n`,
	}
	d, err := Compile(def)
	require.NoError(t, err)
	require.NotNil(t, d.Schema)

	require.NoError(t, d.ValidateParams(map[string]any{"n": 2.0}))
	require.Error(t, d.ValidateParams(map[string]any{}))
}

func TestCompileRejectsMalformedDefinitions(t *testing.T) {
	cases := []struct {
		name string
		def  Definition
	}{
		{"missing name", Definition{Expression: "1"}},
		{"missing expression", Definition{Name: "x"}},
		{"bad expression", Definition{Name: "x", Expression: "params +"}},
		{"unknown identifier", Definition{Name: "x", Expression: "os.Exit(1)"}},
		{"bad schema", Definition{Name: "x", Expression: "1", ParameterSchema: []byte("{")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Compile(&tc.def)
			require.Error(t, err)
		})
	}
}

// stubStore returns a fixed definition list.
type stubStore struct {
	defs []*Definition
	err  error
}

func (s *stubStore) SaveDefinition(context.Context, *Definition) error { return nil }
func (s *stubStore) GetDefinition(context.Context, string) (*Definition, error) {
	return nil, ErrNotFound
}
func (s *stubStore) DeleteDefinition(context.Context, string) error { return nil }
func (s *stubStore) ListDefinitions(context.Context) ([]*Definition, error) {
	return s.defs, s.err
}

func TestOriginSkipsMalformedDefinitions(t *testing.T) {
	store := &stubStore{defs: []*Definition{
		{ID: "ok", Name: "good", Expression: `trim(params.text)`},
		{ID: "broken", Name: "bad", Expression: `((`},
		{ID: "empty", Name: "worse"},
	}}
	origin, err := NewOrigin(store, nil)
	require.NoError(t, err)

	descs, err := origin.Tools(context.Background())
	require.NoError(t, err)
	require.Len(t, descs, 1)
	assert.Equal(t, "good", descs[0].Name)
}

func TestOriginPropagatesStoreFailure(t *testing.T) {
	origin, err := NewOrigin(&stubStore{err: assert.AnError}, nil)
	require.NoError(t, err)

	_, err = origin.Tools(context.Background())
	require.ErrorIs(t, err, assert.AnError)
}

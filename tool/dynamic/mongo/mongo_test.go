package mongo

import (
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/appforge/toolflow/tool/dynamic"
)

var (
	testMongoClient    *mongo.Client
	testMongoContainer testcontainers.Container
	skipMongoTests     bool
	mongoSetupDone     bool
)

func setupMongoDB() {
	if mongoSetupDone {
		return
	}
	mongoSetupDone = true
	ctx := context.Background()

	var containerErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				containerErr = fmt.Errorf("docker not available: %v", r)
			}
		}()
		req := testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForLog("Waiting for connections"),
			Tmpfs:        map[string]string{"/data/db": "rw"},
		}
		testMongoContainer, containerErr = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: req,
			Started:          true,
		})
	}()

	if containerErr != nil {
		fmt.Printf("Docker not available, MongoDB tests will be skipped: %v\n", containerErr)
		skipMongoTests = true
		return
	}

	host, err := testMongoContainer.Host(ctx)
	if err != nil {
		fmt.Printf("Failed to get container host: %v\n", err)
		skipMongoTests = true
		return
	}

	port, err := testMongoContainer.MappedPort(ctx, "27017")
	if err != nil {
		fmt.Printf("Failed to get container port: %v\n", err)
		skipMongoTests = true
		return
	}

	uri := fmt.Sprintf("mongodb://%s:%s", host, port.Port())
	testMongoClient, err = mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		fmt.Printf("Failed to connect to MongoDB: %v\n", err)
		skipMongoTests = true
		return
	}

	if err := testMongoClient.Ping(ctx, readpref.Primary()); err != nil {
		fmt.Printf("Failed to ping MongoDB: %v\n", err)
		skipMongoTests = true
	}
}

func getMongoStore(t *testing.T) *Store {
	t.Helper()
	setupMongoDB()
	if skipMongoTests {
		t.Skip("Docker not available, skipping MongoDB test")
	}
	collection := testMongoClient.Database("toolflow_test").Collection(t.Name())
	require.NoError(t, collection.Drop(context.Background()))
	return New(collection)
}

func TestSaveGetRoundTrip(t *testing.T) {
	st := getMongoStore(t)
	ctx := context.Background()

	def := &dynamic.Definition{
		Name:            "greet",
		Description:     "uppercases a name",
		Category:        "custom",
		ParameterSchema: []byte(`{"type":"object"}`),
		Expression:      `upper(params.name)`,
	}
	require.NoError(t, st.SaveDefinition(ctx, def))
	require.NotEmpty(t, def.ID)

	got, err := st.GetDefinition(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, def.Name, got.Name)
	assert.Equal(t, def.Description, got.Description)
	assert.Equal(t, def.Category, got.Category)
	assert.Equal(t, def.ParameterSchema, got.ParameterSchema)
	assert.Equal(t, def.Expression, got.Expression)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestSaveUpsertsExistingDefinition(t *testing.T) {
	st := getMongoStore(t)
	ctx := context.Background()

	def := &dynamic.Definition{Name: "v1", Expression: "1"}
	require.NoError(t, st.SaveDefinition(ctx, def))

	def.Name = "v2"
	require.NoError(t, st.SaveDefinition(ctx, def))

	got, err := st.GetDefinition(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Name)

	defs, err := st.ListDefinitions(ctx)
	require.NoError(t, err)
	assert.Len(t, defs, 1)
}

func TestGetAndDeleteUnknownID(t *testing.T) {
	st := getMongoStore(t)
	ctx := context.Background()

	_, err := st.GetDefinition(ctx, "nope")
	require.ErrorIs(t, err, dynamic.ErrNotFound)
	require.ErrorIs(t, st.DeleteDefinition(ctx, "nope"), dynamic.ErrNotFound)
}

func TestDeleteRemovesDefinition(t *testing.T) {
	st := getMongoStore(t)
	ctx := context.Background()

	def := &dynamic.Definition{Name: "gone", Expression: "1"}
	require.NoError(t, st.SaveDefinition(ctx, def))
	require.NoError(t, st.DeleteDefinition(ctx, def.ID))
	_, err := st.GetDefinition(ctx, def.ID)
	require.ErrorIs(t, err, dynamic.ErrNotFound)
}

func TestPing(t *testing.T) {
	st := getMongoStore(t)
	assert.Equal(t, "tool-definitions-mongo", st.Name())
	require.NoError(t, st.Ping(context.Background()))
}

// TestDefinitionPersistenceRoundTrip verifies that definitions persist across
// store recreation over the same collection.
func TestDefinitionPersistenceRoundTrip(t *testing.T) {
	setupMongoDB()
	if skipMongoTests {
		t.Skip("Docker not available, skipping MongoDB test")
	}
	collection := testMongoClient.Database("toolflow_test").Collection(t.Name())
	ctx := context.Background()
	defer func() { _ = collection.Drop(ctx) }()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("definitions persist across store recreation", prop.ForAll(
		func(defs []*dynamic.Definition) bool {
			if err := collection.Drop(ctx); err != nil {
				return false
			}

			store1 := New(collection)
			for _, def := range defs {
				def.ID = ""
				if err := store1.SaveDefinition(ctx, def); err != nil {
					return false
				}
			}

			store2 := New(collection)
			restored, err := store2.ListDefinitions(ctx)
			if err != nil || len(restored) != len(defs) {
				return false
			}
			for _, original := range defs {
				retrieved, err := store2.GetDefinition(ctx, original.ID)
				if err != nil {
					return false
				}
				if retrieved.Name != original.Name ||
					retrieved.Expression != original.Expression ||
					retrieved.Category != original.Category {
					return false
				}
			}
			return true
		},
		genDefinitionSlice(),
	))

	properties.TestingRun(t)
}

func genDefinitionSlice() gopter.Gen {
	return gen.SliceOfN(4, genDefinition())
}

func genDefinition() gopter.Gen {
	return gopter.CombineGens(
		gen.OneConstOf("shout", "trim_text", "word_join", "rename"),
		gen.OneConstOf("", "a user-defined tool"),
		gen.OneConstOf("custom", "data", ""),
		gen.OneConstOf(`upper(params.text)`, `trim(params.text)`, `join(params.parts, ",")`),
	).Map(func(vals []any) *dynamic.Definition {
		return &dynamic.Definition{
			Name:        vals[0].(string),
			Description: vals[1].(string),
			Category:    vals[2].(string),
			Expression:  vals[3].(string),
		}
	})
}

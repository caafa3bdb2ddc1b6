// Package mongo provides a MongoDB implementation of the dynamic tool
// definition store, persisting definitions for durability across restarts.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"goa.design/clue/health"

	"github.com/appforge/toolflow/tool/dynamic"
)

// Store is a MongoDB implementation of dynamic.Store.
type Store struct {
	collection *mongo.Collection
}

// Compile-time checks that Store implements dynamic.Store and health.Pinger.
var (
	_ dynamic.Store = (*Store)(nil)
	_ health.Pinger = (*Store)(nil)
)

// definitionDocument is the MongoDB document representation of a Definition.
type definitionDocument struct {
	ID              string    `bson:"_id"`
	Name            string    `bson:"name"`
	Description     string    `bson:"description,omitempty"`
	Category        string    `bson:"category,omitempty"`
	ParameterSchema []byte    `bson:"parameter_schema,omitempty"`
	Expression      string    `bson:"expression"`
	CreatedAt       time.Time `bson:"created_at"`
	UpdatedAt       time.Time `bson:"updated_at"`
}

// New creates a new MongoDB store using the provided collection. The
// collection should come from a connected MongoDB client.
func New(collection *mongo.Collection) *Store {
	return &Store{collection: collection}
}

// SaveDefinition stores or updates a definition, assigning an id when empty.
func (s *Store) SaveDefinition(ctx context.Context, def *dynamic.Definition) error {
	now := time.Now().UTC()
	if def.ID == "" {
		def.ID = uuid.New().String()
		def.CreatedAt = now
	}
	def.UpdatedAt = now
	doc := toDocument(def)
	opts := options.Replace().SetUpsert(true)
	if _, err := s.collection.ReplaceOne(ctx, bson.M{"_id": def.ID}, doc, opts); err != nil {
		return fmt.Errorf("mongodb save definition %q: %w", def.ID, err)
	}
	return nil
}

// GetDefinition retrieves a definition by id.
func (s *Store) GetDefinition(ctx context.Context, id string) (*dynamic.Definition, error) {
	var doc definitionDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, dynamic.ErrNotFound
		}
		return nil, fmt.Errorf("mongodb get definition %q: %w", id, err)
	}
	return fromDocument(&doc), nil
}

// DeleteDefinition removes a definition by id.
func (s *Store) DeleteDefinition(ctx context.Context, id string) error {
	result, err := s.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("mongodb delete definition %q: %w", id, err)
	}
	if result.DeletedCount == 0 {
		return dynamic.ErrNotFound
	}
	return nil
}

// ListDefinitions returns all definitions.
func (s *Store) ListDefinitions(ctx context.Context) ([]*dynamic.Definition, error) {
	cursor, err := s.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("mongodb list definitions: %w", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var docs []definitionDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongodb list definitions decode: %w", err)
	}
	out := make([]*dynamic.Definition, len(docs))
	for i := range docs {
		out[i] = fromDocument(&docs[i])
	}
	return out, nil
}

// Name implements clue/health.Pinger.
func (s *Store) Name() string { return "tool-definitions-mongo" }

// Ping implements clue/health.Pinger.
func (s *Store) Ping(ctx context.Context) error {
	return s.collection.Database().Client().Ping(ctx, readpref.Primary())
}

func toDocument(def *dynamic.Definition) *definitionDocument {
	return &definitionDocument{
		ID:              def.ID,
		Name:            def.Name,
		Description:     def.Description,
		Category:        def.Category,
		ParameterSchema: def.ParameterSchema,
		Expression:      def.Expression,
		CreatedAt:       def.CreatedAt,
		UpdatedAt:       def.UpdatedAt,
	}
}

func fromDocument(doc *definitionDocument) *dynamic.Definition {
	return &dynamic.Definition{
		ID:              doc.ID,
		Name:            doc.Name,
		Description:     doc.Description,
		Category:        doc.Category,
		ParameterSchema: doc.ParameterSchema,
		Expression:      doc.Expression,
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
	}
}

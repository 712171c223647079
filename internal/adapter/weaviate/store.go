package weaviate

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/FadiShak3r/rag-system/internal/retrieval"
	"github.com/FadiShak3r/rag-system/internal/text"
	"github.com/FadiShak3r/rag-system/internal/vector"
)

// chunkNamespace seeds UUIDv5 derivation so an entry's Weaviate id is a pure
// function of its chunk id. Never change it: re-indexing depends on hitting
// the same object ids run after run.
var chunkNamespace = uuid.MustParse("8f1c2b34-9d5e-4a6f-b7c8-d90e12f34a56")

// Entry pairs a chunk with its vector; the persisted object carries id,
// vector, text and metadata together or not at all.
type Entry struct {
	Chunk  text.Chunk
	Vector []float32
}

// UpsertError is a store write failure, fatal for the run.
type UpsertError struct {
	DocIDs []string
	Err    error
}

func (e *UpsertError) Error() string {
	if len(e.DocIDs) > 0 {
		return fmt.Sprintf("vector store write failed for %d document(s): %v", len(e.DocIDs), e.Err)
	}
	return fmt.Sprintf("vector store write failed: %v", e.Err)
}

func (e *UpsertError) Unwrap() error { return e.Err }

// EntryID derives the deterministic object id for a chunk id.
func EntryID(chunkID string) string {
	return uuid.NewSHA1(chunkNamespace, []byte(chunkID)).String()
}

type Store struct {
	client *weaviate.Client
	schema vector.SchemaClient
}

func NewStore(client *weaviate.Client) *Store {
	return &Store{client: client, schema: vector.NewWeaviateClientAdapter(client)}
}

// Upsert writes one object per entry, keyed by the deterministic id. An
// existing object with the same id is fully replaced, never merged.
func (s *Store) Upsert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	objects := make([]*models.Object, len(entries))
	for i, e := range entries {
		chunkIndex := 0
		if v, ok := e.Chunk.Metadata["chunk_index"]; ok {
			chunkIndex, _ = strconv.Atoi(v)
		}
		objects[i] = &models.Object{
			Class: vector.ClassName,
			ID:    strfmt.UUID(EntryID(e.Chunk.ID)),
			Properties: map[string]interface{}{
				"content":    e.Chunk.Text,
				"docId":      e.Chunk.ID,
				"tableName":  e.Chunk.Metadata["table"],
				"rowKey":     e.Chunk.Metadata["row_key"],
				"chunkIndex": chunkIndex,
			},
			Vector: models.C11yVector(e.Vector),
		}
	}

	resp, err := s.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return &UpsertError{DocIDs: docIDs(entries), Err: err}
	}

	var failed []string
	var firstErr error
	for _, r := range resp {
		if r.Result != nil && r.Result.Errors != nil && len(r.Result.Errors.Error) > 0 {
			if docID, ok := r.Properties.(map[string]interface{})["docId"].(string); ok {
				failed = append(failed, docID)
			}
			if firstErr == nil {
				firstErr = fmt.Errorf("%s", r.Result.Errors.Error[0].Message)
			}
		}
	}
	if firstErr != nil {
		return &UpsertError{DocIDs: failed, Err: firstErr}
	}
	return nil
}

// EnsureSchema creates the class when missing and backfills properties.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return vector.EnsureSchema(ctx, s.schema)
}

// Clear drops the class and recreates it empty, for full reindex runs.
func (s *Store) Clear(ctx context.Context) error {
	if err := vector.ResetSchema(ctx, s.schema); err != nil {
		return &UpsertError{Err: err}
	}
	return nil
}

// Count returns the number of stored entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	res, err := s.client.GraphQL().Aggregate().
		WithClassName(vector.ClassName).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(res.Errors) > 0 {
		return 0, fmt.Errorf("graphql error: %v", res.Errors)
	}

	if data, ok := res.Data["Aggregate"].(map[string]interface{}); ok {
		if classes, ok := data[vector.ClassName].([]interface{}); ok && len(classes) > 0 {
			if agg, ok := classes[0].(map[string]interface{}); ok {
				if meta, ok := agg["meta"].(map[string]interface{}); ok {
					if count, ok := meta["count"].(float64); ok {
						return int(count), nil
					}
				}
			}
		}
	}
	return 0, nil
}

// Search returns the limit nearest entries to the query vector.
func (s *Store) Search(ctx context.Context, queryVector []float32, limit int) ([]retrieval.SearchResult, error) {
	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(queryVector)

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "docId"},
		{Name: "tableName"},
		{Name: "rowKey"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
	}

	res, err := s.client.GraphQL().Get().
		WithClassName(vector.ClassName).
		WithNearVector(nearVector).
		WithLimit(limit).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors)
	}

	var results []retrieval.SearchResult
	if data, ok := res.Data["Get"].(map[string]interface{}); ok {
		if chunks, ok := data[vector.ClassName].([]interface{}); ok {
			for _, c := range chunks {
				props, ok := c.(map[string]interface{})
				if !ok {
					continue
				}
				result := retrieval.SearchResult{}
				if content, ok := props["content"].(string); ok {
					result.Content = content
				}
				if docID, ok := props["docId"].(string); ok {
					result.DocID = docID
				}
				if table, ok := props["tableName"].(string); ok {
					result.Table = table
				}
				if rowKey, ok := props["rowKey"].(string); ok {
					result.RowKey = rowKey
				}
				if additional, ok := props["_additional"].(map[string]interface{}); ok {
					if distance, ok := additional["distance"].(float64); ok {
						result.Distance = float32(distance)
					}
				}
				results = append(results, result)
			}
		}
	}

	return results, nil
}

func docIDs(entries []Entry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.Chunk.ID
	}
	return ids
}

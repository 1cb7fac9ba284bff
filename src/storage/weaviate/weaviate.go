package weaviate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"pdfchat/src/core/rag"
)

const DefaultClass = "PdfChunk"

const (
	propContent  = "content"
	propSource   = "source"
	propMetadata = "metadata"
)

// Index stores chunks in a Weaviate class with externally supplied vectors.
type Index struct {
	client    *weaviate.Client
	className string
}

// NewClient connects to the Weaviate server at rawURL ("http://localhost:8080").
func NewClient(rawURL string) (*weaviate.Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid weaviate url %q", rawURL)
	}
	client, err := weaviate.NewClient(weaviate.Config{Host: u.Host, Scheme: u.Scheme})
	if err != nil {
		return nil, fmt.Errorf("failed to create Weaviate client: %w", err)
	}
	return client, nil
}

// New returns an index on className, creating the class when it does not exist.
func New(ctx context.Context, client *weaviate.Client, className string) (*Index, error) {
	if className == "" {
		className = DefaultClass
	}
	idx := &Index{client: client, className: className}
	if err := idx.ensureClass(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

func (w *Index) Backend() string { return "weaviate" }

func (w *Index) ensureClass(ctx context.Context) error {
	exists, err := w.classExists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	class := &models.Class{
		Class:      w.className,
		Vectorizer: "none",
		Properties: []*models.Property{
			{Name: propContent, DataType: []string{"text"}},
			{Name: propSource, DataType: []string{"text"}},
			{Name: propMetadata, DataType: []string{"text"}},
		},
	}
	if err := w.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("failed to create Weaviate class: %w", err)
	}
	return nil
}

func (w *Index) classExists(ctx context.Context) (bool, error) {
	schema, err := w.client.Schema().Getter().Do(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to get schema: %w", err)
	}
	for _, class := range schema.Classes {
		if class.Class == w.className {
			return true, nil
		}
	}
	return false, nil
}

func (w *Index) Upsert(ctx context.Context, chunks []rag.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	objs := make([]*models.Object, len(chunks))
	for i, c := range chunks {
		obj, err := toObject(w.className, c)
		if err != nil {
			return err
		}
		objs[i] = obj
	}

	resp, err := w.client.Batch().ObjectsBatcher().WithObjects(objs...).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to batch add vectors: %w", err)
	}
	for _, r := range resp {
		if r.Result != nil && r.Result.Errors != nil && len(r.Result.Errors.Error) > 0 {
			return fmt.Errorf("failed to add object %s: %s", r.ID, r.Result.Errors.Error[0].Message)
		}
	}
	return nil
}

func (w *Index) Query(ctx context.Context, vector []float32, k int) ([]rag.ScoredChunk, error) {
	fields := []graphql.Field{
		{Name: propContent},
		{Name: propSource},
		{Name: propMetadata},
		{Name: "_additional", Fields: []graphql.Field{{Name: "id"}, {Name: "distance"}}},
	}
	nearVector := w.client.GraphQL().NearVectorArgBuilder().WithVector(vector)

	result, err := w.client.GraphQL().Get().
		WithClassName(w.className).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(k).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %w", err)
	}
	if err := graphQLError(result.Errors); err != nil {
		return nil, err
	}

	return parseGet(result.Data, w.className)
}

func (w *Index) Count(ctx context.Context) (int, error) {
	result, err := w.client.GraphQL().Aggregate().
		WithClassName(w.className).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count objects: %w", err)
	}
	if err := graphQLError(result.Errors); err != nil {
		return 0, err
	}
	return parseCount(result.Data, w.className)
}

// Reset drops the class and recreates it empty.
func (w *Index) Reset(ctx context.Context) error {
	exists, err := w.classExists(ctx)
	if err != nil {
		return err
	}
	if exists {
		if err := w.client.Schema().ClassDeleter().WithClassName(w.className).Do(ctx); err != nil {
			return fmt.Errorf("failed to delete Weaviate class: %w", err)
		}
	}
	return w.ensureClass(ctx)
}

func toObject(className string, c rag.Chunk) (*models.Object, error) {
	meta, err := json.Marshal(c.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata of %s: %w", c.ID, err)
	}
	return &models.Object{
		Class: className,
		ID:    strfmt.UUID(c.ID),
		Properties: map[string]interface{}{
			propContent:  c.Content,
			propSource:   c.Metadata[rag.MetaSource],
			propMetadata: string(meta),
		},
		Vector: c.Vector,
	}, nil
}

func graphQLError(errs []*models.GraphQLError) error {
	if len(errs) == 0 {
		return nil
	}
	messages := make([]string, 0, len(errs))
	for _, e := range errs {
		messages = append(messages, e.Message)
	}
	return fmt.Errorf("graphql: %s", strings.Join(messages, "; "))
}

// parseGet reads a Get response. Weaviate reports cosine distance; the score is
// 1 - distance so that higher means more similar.
func parseGet(data map[string]models.JSONObject, className string) ([]rag.ScoredChunk, error) {
	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return nil, nil
	}
	objects, ok := get[className].([]interface{})
	if !ok {
		return nil, nil
	}

	results := make([]rag.ScoredChunk, 0, len(objects))
	for _, obj := range objects {
		objMap, ok := obj.(map[string]interface{})
		if !ok {
			continue
		}
		additional, _ := objMap["_additional"].(map[string]interface{})
		id, _ := additional["id"].(string)
		distance, _ := additional["distance"].(float64)
		content, _ := objMap[propContent].(string)

		c := rag.ScoredChunk{
			ID:       id,
			Content:  content,
			Metadata: map[string]string{},
			Score:    1 - distance,
		}
		if raw, _ := objMap[propMetadata].(string); raw != "" {
			if err := json.Unmarshal([]byte(raw), &c.Metadata); err != nil {
				return nil, fmt.Errorf("corrupt metadata for %s: %w", id, err)
			}
		}
		results = append(results, c)
	}
	return results, nil
}

func parseCount(data map[string]models.JSONObject, className string) (int, error) {
	agg, ok := data["Aggregate"].(map[string]interface{})
	if !ok {
		return 0, fmt.Errorf("unexpected aggregate response")
	}
	groups, ok := agg[className].([]interface{})
	if !ok || len(groups) == 0 {
		return 0, nil
	}
	group, _ := groups[0].(map[string]interface{})
	meta, _ := group["meta"].(map[string]interface{})
	count, ok := meta["count"].(float64)
	if !ok {
		return 0, fmt.Errorf("unexpected aggregate response")
	}
	return int(count), nil
}

package formengine

import (
	"context"
	"encoding/json"
	"fmt"
)

// DataSource is the upstream data API as seen by the renderers.
type DataSource interface {
	// Schema fetches the property schema of an entity family.
	Schema(ctx context.Context, entity string) (*PropertySchema, error)
	// Collection fetches every record of a collection.
	Collection(ctx context.Context, name string) ([]*Record, error)
}

// JSONGetter performs a GET against the upstream API and decodes the JSON
// body into v.
type JSONGetter interface {
	GetJSON(ctx context.Context, path string, v interface{}) error
}

// UpstreamSource adapts a JSONGetter to DataSource using the fixed
// endpoint layout: /formulario/{entity} and /{collection}.
type UpstreamSource struct {
	client JSONGetter
}

func NewUpstreamSource(client JSONGetter) *UpstreamSource {
	return &UpstreamSource{client: client}
}

func (s *UpstreamSource) Schema(ctx context.Context, entity string) (*PropertySchema, error) {
	var raw json.RawMessage
	if err := s.client.GetJSON(ctx, SchemaPath(entity), &raw); err != nil {
		return nil, err
	}
	schema, err := ParseSchema(raw)
	if err != nil {
		return nil, fmt.Errorf("decode schema %s: %w", entity, err)
	}
	return schema, nil
}

func (s *UpstreamSource) Collection(ctx context.Context, name string) ([]*Record, error) {
	var raw json.RawMessage
	if err := s.client.GetJSON(ctx, "/"+name, &raw); err != nil {
		return nil, err
	}
	records, err := DecodeRecords(raw)
	if err != nil {
		return nil, fmt.Errorf("decode collection %s: %w", name, err)
	}
	return records, nil
}

// SchemaPath is the upstream path of an entity's schema document.
func SchemaPath(entity string) string {
	return "/formulario/" + entity
}

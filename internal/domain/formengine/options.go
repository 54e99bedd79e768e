package formengine

import (
	"context"
	"fmt"
)

// ReferenceOption is one selectable choice of a reference field.
type ReferenceOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// ReferenceOptionsProvider fetches and projects the option list of a
// reference role.
type ReferenceOptionsProvider struct {
	source   DataSource
	registry *Registry
}

func NewReferenceOptionsProvider(source DataSource, registry *Registry) *ReferenceOptionsProvider {
	return &ReferenceOptionsProvider{source: source, registry: registry}
}

// Options fetches the full related collection for role and projects every
// record to an option. Fetch failures are reported as ErrReferenceFetch.
func (p *ReferenceOptionsProvider) Options(ctx context.Context, role FieldRole) ([]ReferenceOption, error) {
	src, ok := p.registry.Reference(role)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownReference, role)
	}
	records, err := p.source.Collection(ctx, src.Collection)
	if err != nil {
		return nil, NewRenderError(ErrReferenceFetch, "/"+src.Collection, err)
	}
	opts := make([]ReferenceOption, 0, len(records))
	for _, r := range records {
		if r == nil {
			continue
		}
		opts = append(opts, src.Option(r))
	}
	return opts, nil
}

// SelectID returns the fixed element id of the role's choice list.
func (p *ReferenceOptionsProvider) SelectID(role FieldRole) string {
	if src, ok := p.registry.Reference(role); ok {
		return src.SelectID
	}
	return ""
}

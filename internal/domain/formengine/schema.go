package formengine

import (
	"encoding/json"
	"fmt"
)

// FieldDescriptor is the declared shape of one schema property.
type FieldDescriptor struct {
	Type string `json:"type"`
}

// SchemaField is one property of a PropertySchema.
type SchemaField struct {
	Name string
	FieldDescriptor
}

// PropertySchema is the server-declared form document. Field order follows
// the JSON document and drives form field order.
type PropertySchema struct {
	Fields []SchemaField
}

// UnmarshalJSON decodes {"properties": {name: {type}}} preserving property
// order.
func (s *PropertySchema) UnmarshalJSON(data []byte) error {
	var doc struct {
		Properties *Record `json:"properties"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	if doc.Properties == nil {
		return fmt.Errorf("schema: missing properties")
	}
	fields := make([]SchemaField, 0, doc.Properties.Len())
	for _, name := range doc.Properties.Keys() {
		v, _ := doc.Properties.Get(name)
		desc, ok := v.(*Record)
		if !ok {
			return fmt.Errorf("schema: property %q is not an object", name)
		}
		fields = append(fields, SchemaField{
			Name:            name,
			FieldDescriptor: FieldDescriptor{Type: desc.String("type")},
		})
	}
	s.Fields = fields
	return nil
}

// ParseSchema decodes a schema document.
func ParseSchema(data []byte) (*PropertySchema, error) {
	var s PropertySchema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

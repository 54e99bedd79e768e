package formengine

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed entities.yaml
var defaultRegistryYAML []byte

// ProjectionField selects one source path of a record. In YAML it is either
// a bare path or a mapping {path, as}.
type ProjectionField struct {
	Path string `yaml:"path"`
	As   string `yaml:"as"`
}

func (p *ProjectionField) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		p.Path = node.Value
		return nil
	}
	type plain ProjectionField
	return node.Decode((*plain)(p))
}

// key is the column name the projected value is stored under.
func (p ProjectionField) key() string {
	if p.As != "" {
		return p.As
	}
	path := strings.TrimSuffix(p.Path, PathSeparator+"*")
	if i := strings.LastIndex(path, PathSeparator); i >= 0 {
		return path[i+1:]
	}
	return path
}

// Endpoints are the upstream write paths of an entity. Delete may contain
// the {key} placeholder for the natural key.
type Endpoints struct {
	Create string `yaml:"create"`
	Update string `yaml:"update"`
	Delete string `yaml:"delete"`
}

// DeletePath returns the delete endpoint for the given natural key.
func (e Endpoints) DeletePath(key string) string {
	return strings.ReplaceAll(e.Delete, "{key}", url.PathEscape(key))
}

// Entity describes how records of one kind are displayed and addressed.
type Entity struct {
	Kind         string            `yaml:"kind"`
	Collection   string            `yaml:"collection"`
	NaturalKey   string            `yaml:"natural_key"`
	Flatten      bool              `yaml:"flatten"`
	Projection   []ProjectionField `yaml:"projection"`
	Endpoints    Endpoints         `yaml:"endpoints"`
	SubmitFields map[string]string `yaml:"submit_fields"`
}

// Project maps a source record onto the entity's display shape. Without a
// projection the record is returned as is, or flattened when Flatten is set.
// Missing paths yield a nil value so every projected record has the same
// keys.
func (e *Entity) Project(r *Record) *Record {
	if len(e.Projection) == 0 {
		if e.Flatten {
			return Flatten(r)
		}
		return r
	}
	out := NewRecord()
	for _, f := range e.Projection {
		if strings.HasSuffix(f.Path, PathSeparator+"*") {
			base := strings.TrimSuffix(f.Path, PathSeparator+"*")
			sub, _ := r.Lookup(base)
			nested, ok := sub.(*Record)
			if !ok {
				continue
			}
			flat := Flatten(nested)
			for _, k := range flat.Keys() {
				v, _ := flat.Get(k)
				out.Set(f.key()+PathSeparator+k, v)
			}
			continue
		}
		v, _ := r.Lookup(f.Path)
		out.Set(f.key(), v)
	}
	return out
}

// NaturalKeyValue returns the natural key of a source record.
func (e *Entity) NaturalKeyValue(r *Record) (string, bool) {
	v, ok := r.Lookup(e.NaturalKey)
	if !ok || v == nil {
		return "", false
	}
	s := scalarText(v)
	return s, s != ""
}

// ReferenceSource describes where the options of a reference role come from
// and how each fetched record becomes an option.
type ReferenceSource struct {
	Role       string `yaml:"role"`
	Collection string `yaml:"collection"`
	SelectID   string `yaml:"select_id"`
	Value      string `yaml:"value"`
	Label      string `yaml:"label"`

	role FieldRole
}

var placeholderRe = regexp.MustCompile(`\{([^{}]+)\}`)

// Option projects a fetched record to a ReferenceOption.
func (s *ReferenceSource) Option(r *Record) ReferenceOption {
	label := placeholderRe.ReplaceAllStringFunc(s.Label, func(m string) string {
		return r.String(m[1 : len(m)-1])
	})
	return ReferenceOption{Value: r.String(s.Value), Label: label}
}

// Registry is the declarative table of entity kinds and reference sources.
type Registry struct {
	Entities   []*Entity          `yaml:"entities"`
	References []*ReferenceSource `yaml:"references"`
}

// ParseRegistry decodes and validates a registry document.
func ParseRegistry(data []byte) (*Registry, error) {
	var reg Registry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("decode entity registry: %w", err)
	}
	if err := reg.validate(); err != nil {
		return nil, err
	}
	return &reg, nil
}

// LoadRegistry reads a registry file. An empty path yields the built-in
// registry.
func LoadRegistry(path string) (*Registry, error) {
	if path == "" {
		return DefaultRegistry()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read entity registry %s: %w", path, err)
	}
	return ParseRegistry(data)
}

// DefaultRegistry returns the built-in registry for patients, doctors and
// appointments.
func DefaultRegistry() (*Registry, error) {
	return ParseRegistry(defaultRegistryYAML)
}

func (reg *Registry) validate() error {
	seen := make(map[string]bool)
	for i, e := range reg.Entities {
		if e.Kind == "" {
			return fmt.Errorf("entity #%d: kind is required", i)
		}
		k := strings.ToLower(e.Kind)
		if seen[k] {
			return fmt.Errorf("entity %s: duplicate kind", e.Kind)
		}
		seen[k] = true
		if e.NaturalKey == "" {
			return fmt.Errorf("entity %s: natural_key is required", e.Kind)
		}
		if e.Collection == "" {
			return fmt.Errorf("entity %s: collection is required", e.Kind)
		}
		for _, f := range e.Projection {
			if f.Path == "" {
				return fmt.Errorf("entity %s: empty projection path", e.Kind)
			}
		}
	}
	roles := make(map[FieldRole]bool)
	for _, ref := range reg.References {
		role, ok := ParseFieldRole(ref.Role)
		if !ok || !role.IsReference() {
			return fmt.Errorf("reference %q: unknown role", ref.Role)
		}
		if roles[role] {
			return fmt.Errorf("reference %q: duplicate role", ref.Role)
		}
		roles[role] = true
		if ref.Collection == "" || ref.SelectID == "" || ref.Value == "" {
			return fmt.Errorf("reference %q: collection, select_id and value are required", ref.Role)
		}
		ref.role = role
	}
	return nil
}

// Entity finds an entity by kind or collection name, ignoring case.
func (reg *Registry) Entity(name string) (*Entity, error) {
	for _, e := range reg.Entities {
		if strings.EqualFold(e.Kind, name) || strings.EqualFold(e.Collection, name) {
			return e, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEntity, name)
}

// Reference returns the option source for a reference role.
func (reg *Registry) Reference(role FieldRole) (*ReferenceSource, bool) {
	for _, ref := range reg.References {
		if ref.role == role {
			return ref, true
		}
	}
	return nil, false
}

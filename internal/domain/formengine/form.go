package formengine

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"
)

const (
	ActionCreate = "crear"
	ActionEdit   = "editar"
)

// FormKind is a parsed form request such as "crear-Cita" or
// "editar-Paciente".
type FormKind struct {
	Raw    string
	ID     string // lower-cased Raw, e.g. "crear-cita"
	Action string // text before the last '-'
	Entity string // text after the first '-', used to fetch the schema
}

// ParseFormKind applies the two independent trims of a form kind: the action
// drops everything after the last '-', the schema entity drops everything
// before the first '-'.
func ParseFormKind(raw string) FormKind {
	id := strings.ToLower(raw)
	action := id
	if i := strings.LastIndex(id, "-"); i >= 0 {
		action = id[:i]
	}
	entity := raw
	if i := strings.Index(raw, "-"); i >= 0 {
		entity = raw[i+1:]
	}
	return FormKind{Raw: raw, ID: id, Action: action, Entity: entity}
}

func (k FormKind) IsEdit() bool { return k.Action == ActionEdit }

// IsCreateAppointment reports whether identifier fields are server generated
// for this form.
func (k FormKind) IsCreateAppointment() bool { return k.ID == "crear-cita" }

// FormID is the element id of the rendered form.
func (k FormKind) FormID() string { return "form-" + k.ID }

// Input is a plain form input.
type Input struct {
	ID       string
	Name     string
	Type     string
	Value    string
	ReadOnly bool
}

// Select is the choice list of a reference field.
type Select struct {
	ID       string
	Name     string
	Options  []ReferenceOption
	Selected string
}

// Control is one labeled field of a form. Exactly one of Input and Select is
// set.
type Control struct {
	Field  string
	Role   FieldRole
	Label  string
	Input  *Input
	Select *Select
}

// Submit is the form's submit button.
type Submit struct {
	ID       string
	Text     string
	Disabled bool
	// RequireComplete enables live re-evaluation of Disabled as inputs
	// change.
	RequireComplete bool
}

// Form is a rendered input form.
type Form struct {
	ID       string
	Kind     FormKind
	Controls []Control
	Submit   Submit
}

// Inputs returns the plain inputs of the form in order.
func (f *Form) Inputs() []*Input {
	var out []*Input
	for _, c := range f.Controls {
		if c.Input != nil {
			out = append(out, c.Input)
		}
	}
	return out
}

// Control returns the control rendered for a schema field.
func (f *Form) Control(field string) (*Control, bool) {
	for i := range f.Controls {
		if f.Controls[i].Field == field {
			return &f.Controls[i], true
		}
	}
	return nil, false
}

// SubmitEnabled evaluates the submit rule for the given input values, keyed
// by input name: edit forms are always submittable, other forms only when
// every rendered input has a value; whitespace counts as a value, as it does
// for the inline rule in the browser. Choice lists always carry a value and
// are not considered.
func (f *Form) SubmitEnabled(values map[string]string) bool {
	if !f.Submit.RequireComplete {
		return true
	}
	for _, in := range f.Inputs() {
		if values[in.Name] == "" {
			return false
		}
	}
	return true
}

// Prefill copies the values of a source record into the form. Date inputs
// take the calendar date of ISO timestamps. The input named lock becomes
// read-only.
func (f *Form) Prefill(rec *Record, lock string) {
	for i := range f.Controls {
		c := &f.Controls[i]
		switch {
		case c.Input != nil:
			v := rec.String(c.Field)
			if c.Input.Type == "date" && isoDateTime.MatchString(v) {
				v = v[:len("2006-01-02")]
			}
			c.Input.Value = v
			c.Input.ReadOnly = lock != "" && c.Field == lock
		case c.Select != nil:
			v := rec.String(c.Field)
			if v == "" {
				v = rec.String(c.Select.ID)
			}
			c.Select.Selected = v
		}
	}
}

var identifierField = regexp.MustCompile(`^id[a-z]*[A-Z]`)

// IsIdentifierField reports whether a field name follows the internal
// identifier convention (idCita, idEspecialidad).
func IsIdentifierField(name string) bool {
	return identifierField.MatchString(name)
}

// FormRenderer builds forms from upstream property schemas.
type FormRenderer struct {
	source   DataSource
	options  *ReferenceOptionsProvider
	classify Classifier
	parallel bool
}

type FormOption func(*FormRenderer)

// WithClassifier replaces the naming-convention classifier.
func WithClassifier(c Classifier) FormOption {
	return func(r *FormRenderer) { r.classify = c }
}

// WithParallelReferences fetches distinct reference collections
// concurrently.
func WithParallelReferences(on bool) FormOption {
	return func(r *FormRenderer) { r.parallel = on }
}

func NewFormRenderer(source DataSource, registry *Registry, opts ...FormOption) *FormRenderer {
	r := &FormRenderer{
		source:   source,
		options:  NewReferenceOptionsProvider(source, registry),
		classify: Classify,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Render fetches the schema for formKind and builds the form. Any fetch
// failure aborts the render; no partial form is returned.
func (r *FormRenderer) Render(ctx context.Context, formKind string) (*Form, error) {
	kind := ParseFormKind(formKind)

	schema, err := r.source.Schema(ctx, kind.Entity)
	if err != nil {
		return nil, NewRenderError(ErrSchemaFetch, SchemaPath(kind.Entity), err)
	}

	roles := make([]FieldRole, len(schema.Fields))
	var refRoles []FieldRole
	seen := make(map[FieldRole]bool)
	for i, f := range schema.Fields {
		roles[i] = r.classify(f.Name, f.Type)
		if roles[i].IsReference() && !seen[roles[i]] {
			seen[roles[i]] = true
			refRoles = append(refRoles, roles[i])
		}
	}

	options, err := r.fetchOptions(ctx, refRoles)
	if err != nil {
		return nil, err
	}

	form := &Form{ID: kind.FormID(), Kind: kind}
	for i, f := range schema.Fields {
		role := roles[i]
		suppressed := kind.IsCreateAppointment() && IsIdentifierField(f.Name)
		if role.IsReference() {
			// the choice list survives suppression, only its label goes
			label := Label(f.Name)
			if suppressed {
				label = ""
			}
			id := r.options.SelectID(role)
			form.Controls = append(form.Controls, Control{
				Field:  f.Name,
				Role:   role,
				Label:  label,
				Select: &Select{ID: id, Name: id, Options: options[role]},
			})
			continue
		}
		if suppressed {
			continue
		}
		form.Controls = append(form.Controls, Control{
			Field: f.Name,
			Role:  role,
			Label: Label(f.Name),
			Input: &Input{ID: f.Name, Name: f.Name, Type: role.InputType()},
		})
	}

	form.Submit = Submit{ID: "btn-" + kind.ID, Text: "Crear"}
	if kind.IsEdit() {
		form.Submit.Text = "Editar"
	} else {
		form.Submit.Disabled = true
		form.Submit.RequireComplete = true
	}
	return form, nil
}

// fetchOptions loads each distinct reference collection once.
func (r *FormRenderer) fetchOptions(ctx context.Context, roles []FieldRole) (map[FieldRole][]ReferenceOption, error) {
	for _, role := range roles {
		if r.options.SelectID(role) == "" {
			return nil, fmt.Errorf("%w: %w: %s", ErrRender, ErrUnknownReference, role)
		}
	}

	results := make([][]ReferenceOption, len(roles))
	if r.parallel && len(roles) > 1 {
		g, gctx := errgroup.WithContext(ctx)
		for i, role := range roles {
			i, role := i, role
			g.Go(func() error {
				opts, err := r.options.Options(gctx, role)
				if err != nil {
					return err
				}
				results[i] = opts
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i, role := range roles {
			opts, err := r.options.Options(ctx, role)
			if err != nil {
				return nil, err
			}
			results[i] = opts
		}
	}

	out := make(map[FieldRole][]ReferenceOption, len(roles))
	for i, role := range roles {
		out[role] = results[i]
	}
	return out, nil
}

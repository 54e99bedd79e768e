package console

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/formengine/internal/domain/formengine"
)

var (
	// ErrValidation marks a submission with an empty field.
	ErrValidation = errors.New("validation failed")
	// ErrRecordNotFound is returned when an edit form names a key the
	// upstream collection does not contain.
	ErrRecordNotFound = errors.New("record not found")
	ErrInvalidAction  = errors.New("invalid form action")
)

// Writer sends entity writes to the upstream API.
type Writer interface {
	SendJSON(ctx context.Context, method, path string, body, v interface{}) error
	Delete(ctx context.Context, path string) error
}

// Actor identifies who triggered a write, for the audit trail.
type Actor struct {
	UserID    string
	RequestID string
}

// TablePage is one page of a rendered table.
type TablePage struct {
	Table  *formengine.Table
	Total  int
	Limit  int
	Offset int
}

type Service struct {
	registry *formengine.Registry
	source   formengine.DataSource
	writer   Writer
	forms    *formengine.FormRenderer
	tables   *formengine.TableRenderer
	gens     *formengine.Generations
	audit    AuditRepository
	logger   zerolog.Logger
}

func NewService(
	registry *formengine.Registry,
	source formengine.DataSource,
	writer Writer,
	audit AuditRepository,
	logger zerolog.Logger,
	opts ...formengine.FormOption,
) *Service {
	return &Service{
		registry: registry,
		source:   source,
		writer:   writer,
		forms:    formengine.NewFormRenderer(source, registry, opts...),
		tables:   formengine.NewTableRenderer(registry),
		gens:     formengine.NewGenerations(),
		audit:    audit,
		logger:   logger,
	}
}

// RenderForm renders formKind into target. For edit forms a non-empty key
// prefills the form from the entity's record with that natural key and
// locks the key input.
func (s *Service) RenderForm(ctx context.Context, target, formKind, key string) (*formengine.Form, error) {
	start := time.Now()
	ctx, ticket := s.gens.Begin(ctx, target)
	defer ticket.Release()

	form, err := s.forms.Render(ctx, formKind)
	if err == nil && key != "" && form.Kind.IsEdit() {
		err = s.prefill(ctx, form, key)
	}
	if err = ticket.Settle(err); err != nil {
		return nil, err
	}

	s.logger.Debug().
		Str("form", form.ID).
		Str("target", target).
		Uint64("generation", ticket.Generation).
		Int("controls", len(form.Controls)).
		Dur("elapsed", time.Since(start)).
		Msg("form rendered")
	return form, nil
}

func (s *Service) prefill(ctx context.Context, form *formengine.Form, key string) error {
	entity, err := s.registry.Entity(form.Kind.Entity)
	if err != nil {
		return err
	}
	records, err := s.source.Collection(ctx, entity.Collection)
	if err != nil {
		return formengine.NewRenderError(formengine.ErrRecordFetch, "/"+entity.Collection, err)
	}
	for _, r := range records {
		if v, ok := entity.NaturalKeyValue(r); ok && v == key {
			form.Prefill(r, entity.NaturalKey)
			return nil
		}
	}
	return fmt.Errorf("%w: %s %s", ErrRecordNotFound, entity.Kind, key)
}

// RenderTable fetches the entity's collection and renders one page of it
// into target. A non-positive limit renders every record.
func (s *Service) RenderTable(ctx context.Context, target, entityKind string, limit, offset int) (*TablePage, error) {
	entity, err := s.registry.Entity(entityKind)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	ctx, ticket := s.gens.Begin(ctx, target)
	defer ticket.Release()

	page, err := s.renderTable(ctx, entity, limit, offset)
	if err = ticket.Settle(err); err != nil {
		return nil, err
	}

	s.logger.Debug().
		Str("entity", entity.Kind).
		Str("target", target).
		Uint64("generation", ticket.Generation).
		Int("rows", len(page.Table.Rows)).
		Int("total", page.Total).
		Dur("elapsed", time.Since(start)).
		Msg("table rendered")
	return page, nil
}

func (s *Service) renderTable(ctx context.Context, entity *formengine.Entity, limit, offset int) (*TablePage, error) {
	records, err := s.source.Collection(ctx, entity.Collection)
	if err != nil {
		return nil, formengine.NewRenderError(formengine.ErrRecordFetch, "/"+entity.Collection, err)
	}

	total := len(records)
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}

	table, err := s.tables.Render(records[offset:end], entity.Kind)
	if err != nil {
		return nil, err
	}
	return &TablePage{Table: table, Total: total, Limit: limit, Offset: offset}, nil
}

// Submit sends the fields of a create ("crear") or edit ("editar") form to
// the entity's write endpoint. Field names are remapped to the upstream
// payload names first. Every field must be non-empty.
func (s *Service) Submit(ctx context.Context, entityKind, action string, fields map[string]string, actor Actor) error {
	entity, err := s.registry.Entity(entityKind)
	if err != nil {
		return err
	}

	var method, path, auditAction string
	switch action {
	case formengine.ActionCreate:
		method, path, auditAction = http.MethodPost, entity.Endpoints.Create, ActionCreate
	case formengine.ActionEdit:
		method, path, auditAction = http.MethodPut, entity.Endpoints.Update, ActionUpdate
	default:
		return fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
	if path == "" {
		return fmt.Errorf("%w: %s has no %s endpoint", ErrInvalidAction, entity.Kind, auditAction)
	}

	if len(fields) == 0 {
		return fmt.Errorf("%w: no fields submitted", ErrValidation)
	}
	payload := make(map[string]string, len(fields))
	for name, v := range fields {
		if v == "" {
			return fmt.Errorf("%w: %s is empty", ErrValidation, name)
		}
		if mapped, ok := entity.SubmitFields[name]; ok {
			name = mapped
		}
		payload[name] = v
	}

	err = s.writer.SendJSON(ctx, method, path, payload, nil)
	s.record(ctx, entity.Kind, auditAction, payload[entity.NaturalKey], actor, err)
	if err != nil {
		return fmt.Errorf("%s %s: %w", auditAction, entity.Kind, err)
	}
	return nil
}

// Delete removes the record with the given natural key.
func (s *Service) Delete(ctx context.Context, entityKind, key string, actor Actor) error {
	entity, err := s.registry.Entity(entityKind)
	if err != nil {
		return err
	}
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: %s is empty", ErrValidation, entity.NaturalKey)
	}
	if entity.Endpoints.Delete == "" {
		return fmt.Errorf("%w: %s has no delete endpoint", ErrInvalidAction, entity.Kind)
	}

	err = s.writer.Delete(ctx, entity.Endpoints.DeletePath(key))
	s.record(ctx, entity.Kind, ActionDelete, key, actor, err)
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", entity.Kind, key, err)
	}
	return nil
}

// ListAudit returns recorded writes, newest first.
func (s *Service) ListAudit(ctx context.Context, limit, offset int) ([]*AuditEntry, int, error) {
	return s.audit.List(ctx, limit, offset)
}

func (s *Service) record(ctx context.Context, entity, action, key string, actor Actor, writeErr error) {
	entry := &AuditEntry{
		UserID:     actor.UserID,
		Entity:     entity,
		Action:     action,
		NaturalKey: key,
		Outcome:    OutcomeSuccess,
		RequestID:  actor.RequestID,
	}
	if writeErr != nil {
		entry.Outcome = OutcomeFailed
		detail := writeErr.Error()
		entry.Detail = &detail
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn().Err(err).
			Str("entity", entity).
			Str("action", action).
			Str("request_id", actor.RequestID).
			Msg("audit record failed")
	}
}

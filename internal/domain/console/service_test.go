package console

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ehr/formengine/internal/domain/formengine"
)

// -- Fakes --

type fakeSource struct {
	schemas     map[string]string
	collections map[string]string
	errs        map[string]error
}

func (f *fakeSource) Schema(_ context.Context, entity string) (*formengine.PropertySchema, error) {
	doc, ok := f.schemas[entity]
	if !ok {
		return nil, fmt.Errorf("schema %s not found", entity)
	}
	return formengine.ParseSchema([]byte(doc))
}

func (f *fakeSource) Collection(_ context.Context, name string) ([]*formengine.Record, error) {
	if err := f.errs[name]; err != nil {
		return nil, err
	}
	return formengine.DecodeRecords([]byte(f.collections[name]))
}

type sentWrite struct {
	Method string
	Path   string
	Body   map[string]string
}

type fakeWriter struct {
	mu     sync.Mutex
	writes []sentWrite
	err    error
}

func (w *fakeWriter) SendJSON(_ context.Context, method, path string, body, _ interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writes = append(w.writes, sentWrite{Method: method, Path: path, Body: body.(map[string]string)})
	return w.err
}

func (w *fakeWriter) Delete(_ context.Context, path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writes = append(w.writes, sentWrite{Method: http.MethodDelete, Path: path})
	return w.err
}

type upstreamStatus struct{ status string }

func (e *upstreamStatus) Error() string             { return "upstream " + e.status }
func (e *upstreamStatus) StatusDescription() string { return e.status }

func newTestSource() *fakeSource {
	return &fakeSource{
		schemas: map[string]string{
			"Paciente": `{"properties":{"cedula":{"type":"string"},"nombre":{"type":"string"},"fechaNacimiento":{"type":"string"}}}`,
			"cita":     `{"properties":{"idCita":{"type":"integer"},"fechaCita":{"type":"string"},"pacienteCedula":{"type":"string"}}}`,
		},
		collections: map[string]string{
			"pacientes": `[{"cedula":"100","nombre":"Ana","fechaNacimiento":"1990-07-15T00:00:00.000Z"},{"cedula":"200","nombre":"Juan","fechaNacimiento":"1985-01-02T00:00:00.000Z"},{"cedula":"300","nombre":"Eva","fechaNacimiento":null}]`,
			"citas":     `[{"idCita":7,"fechaCita":"2024-03-05T00:00:00.000Z","Paciente":{"nombre":"Ana"},"Medico":{"nombre":"Luis","Especialidad":{"nombre":"Pediatria"}}}]`,
		},
		errs: map[string]error{},
	}
}

func newTestService(t *testing.T) (*Service, *fakeSource, *fakeWriter, *InMemoryAuditRepo) {
	t.Helper()
	reg, err := formengine.DefaultRegistry()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	src := newTestSource()
	w := &fakeWriter{}
	audit := NewInMemoryAuditRepo()
	return NewService(reg, src, w, audit, zerolog.Nop()), src, w, audit
}

// -- Render Tests --

func TestService_RenderForm_CreateAppointment(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	form, err := svc.RenderForm(context.Background(), "u:main", "crear-cita", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(form.Controls) != 2 {
		t.Errorf("expected 2 controls, got %d", len(form.Controls))
	}
	if !form.Submit.Disabled {
		t.Error("expected submit initially disabled")
	}
}

func TestService_RenderForm_EditPrefill(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	form, err := svc.RenderForm(context.Background(), "u:main", "editar-Paciente", "200")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c, ok := form.Control("cedula")
	if !ok || c.Input.Value != "200" || !c.Input.ReadOnly {
		t.Fatalf("expected locked cedula 200, got %+v", c)
	}
	if c, _ := form.Control("fechaNacimiento"); c.Input.Value != "1985-01-02" {
		t.Errorf("expected date prefill 1985-01-02, got %q", c.Input.Value)
	}
}

func TestService_RenderForm_EditUnknownKey(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	_, err := svc.RenderForm(context.Background(), "u:main", "editar-Paciente", "999")
	if !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestService_RenderForm_SchemaFailure(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	_, err := svc.RenderForm(context.Background(), "u:main", "crear-Medico", "")
	if !errors.Is(err, formengine.ErrSchemaFetch) {
		t.Errorf("expected schema fetch failure, got %v", err)
	}
}

func TestService_RenderTable_Paging(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	page, err := svc.RenderTable(context.Background(), "u:main", "pacientes", 2, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Total != 3 {
		t.Errorf("expected total 3, got %d", page.Total)
	}
	if len(page.Table.Rows) != 2 || page.Table.Rows[0].Key != "200" {
		t.Errorf("expected rows 200 and 300, got %+v", page.Table.Rows)
	}

	all, err := svc.RenderTable(context.Background(), "u:main", "Paciente", 0, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all.Table.Rows) != 0 || all.Offset != 3 {
		t.Errorf("expected empty page past the end, got %d rows offset %d", len(all.Table.Rows), all.Offset)
	}
}

func TestService_RenderTable_Errors(t *testing.T) {
	svc, src, _, _ := newTestService(t)

	if _, err := svc.RenderTable(context.Background(), "u:main", "Enfermera", 0, 0); !errors.Is(err, formengine.ErrUnknownEntity) {
		t.Errorf("expected ErrUnknownEntity, got %v", err)
	}

	src.errs["citas"] = &upstreamStatus{status: "500 Internal Server Error"}
	_, err := svc.RenderTable(context.Background(), "u:main", "Cita", 0, 0)
	var re *formengine.RenderError
	if !errors.As(err, &re) || !errors.Is(err, formengine.ErrRecordFetch) {
		t.Fatalf("expected record fetch render error, got %v", err)
	}
	if re.Status != "500 Internal Server Error" || re.Target != "/citas" {
		t.Errorf("unexpected render error %+v", re)
	}
}

// -- Write Tests --

func TestService_Submit_CreateAppointmentRemapsFields(t *testing.T) {
	svc, _, w, audit := newTestService(t)
	fields := map[string]string{
		"fechaCita":          "2024-03-05",
		"cedulaPaciente":     "100",
		"tarjetaProfesional": "TP-1",
	}
	err := svc.Submit(context.Background(), "Cita", formengine.ActionCreate, fields, Actor{UserID: "u1", RequestID: "r1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(w.writes) != 1 {
		t.Fatalf("expected 1 write, got %d", len(w.writes))
	}
	got := w.writes[0]
	if got.Method != http.MethodPost || got.Path != "crearCita" {
		t.Errorf("unexpected write %s %s", got.Method, got.Path)
	}
	if got.Body["pacienteCedula"] != "100" || got.Body["medicoTarjetaProfesional"] != "TP-1" {
		t.Errorf("expected remapped payload, got %v", got.Body)
	}
	if _, ok := got.Body["cedulaPaciente"]; ok {
		t.Error("expected original field name to be replaced")
	}

	entries, total, _ := audit.List(context.Background(), 10, 0)
	if total != 1 || entries[0].Action != ActionCreate || entries[0].Outcome != OutcomeSuccess {
		t.Fatalf("unexpected audit trail %+v", entries)
	}
	if entries[0].UserID != "u1" || entries[0].RequestID != "r1" {
		t.Errorf("expected actor on audit entry, got %+v", entries[0])
	}
}

func TestService_Submit_EditUsesUpdateEndpoint(t *testing.T) {
	svc, _, w, audit := newTestService(t)
	err := svc.Submit(context.Background(), "Paciente", formengine.ActionEdit, map[string]string{"cedula": "100", "nombre": "Ana"}, Actor{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.writes[0].Method != http.MethodPut || w.writes[0].Path != "actualizarPaciente" {
		t.Errorf("unexpected write %+v", w.writes[0])
	}
	entries, _, _ := audit.List(context.Background(), 10, 0)
	if entries[0].NaturalKey != "100" || entries[0].Action != ActionUpdate {
		t.Errorf("unexpected audit entry %+v", entries[0])
	}
}

func TestService_Submit_Validation(t *testing.T) {
	svc, _, w, _ := newTestService(t)
	err := svc.Submit(context.Background(), "Paciente", formengine.ActionCreate, map[string]string{"cedula": "100", "nombre": ""}, Actor{})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
	if err := svc.Submit(context.Background(), "Paciente", formengine.ActionCreate, nil, Actor{}); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for empty submission, got %v", err)
	}
	if err := svc.Submit(context.Background(), "Paciente", "borrar", map[string]string{"cedula": "1"}, Actor{}); !errors.Is(err, ErrInvalidAction) {
		t.Errorf("expected ErrInvalidAction, got %v", err)
	}
	if len(w.writes) != 0 {
		t.Errorf("expected no upstream writes, got %d", len(w.writes))
	}
}

func TestService_Submit_WhitespaceAgreesWithForm(t *testing.T) {
	svc, _, w, _ := newTestService(t)
	form, err := svc.RenderForm(context.Background(), "u1:main", "crear-Paciente", "")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	fields := map[string]string{"cedula": "100", "nombre": " ", "apellido": "Diaz", "fechaNacimiento": "2000-01-01"}
	if !form.SubmitEnabled(fields) {
		t.Fatal("expected the form to enable submit")
	}
	if err := svc.Submit(context.Background(), "Paciente", formengine.ActionCreate, fields, Actor{}); err != nil {
		t.Fatalf("expected an enabled form to submit, got %v", err)
	}
	if len(w.writes) != 1 || w.writes[0].Body["nombre"] != " " {
		t.Errorf("unexpected writes %+v", w.writes)
	}
}

func TestService_Submit_UpstreamFailureIsAudited(t *testing.T) {
	svc, _, w, audit := newTestService(t)
	w.err = &upstreamStatus{status: "409 Conflict"}

	err := svc.Submit(context.Background(), "Medico", formengine.ActionCreate, map[string]string{"tarjetaProfesional": "TP-2"}, Actor{})
	var sd formengine.StatusDescriber
	if !errors.As(err, &sd) || sd.StatusDescription() != "409 Conflict" {
		t.Fatalf("expected upstream status error, got %v", err)
	}
	entries, _, _ := audit.List(context.Background(), 10, 0)
	if entries[0].Outcome != OutcomeFailed || entries[0].Detail == nil {
		t.Errorf("expected failed audit entry, got %+v", entries[0])
	}
}

func TestService_Delete(t *testing.T) {
	svc, _, w, audit := newTestService(t)
	if err := svc.Delete(context.Background(), "Medico", "TP 1", Actor{UserID: "u1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.writes[0].Method != http.MethodDelete || w.writes[0].Path != "medico/TP%201" {
		t.Errorf("unexpected write %+v", w.writes[0])
	}
	entries, _, _ := audit.List(context.Background(), 10, 0)
	if entries[0].Action != ActionDelete || entries[0].NaturalKey != "TP 1" {
		t.Errorf("unexpected audit entry %+v", entries[0])
	}

	if err := svc.Delete(context.Background(), "Medico", "", Actor{}); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestInMemoryAuditRepo_ListNewestFirst(t *testing.T) {
	repo := NewInMemoryAuditRepo()
	for i := 0; i < 5; i++ {
		repo.Record(context.Background(), &AuditEntry{NaturalKey: fmt.Sprint(i)})
	}
	items, total, err := repo.List(context.Background(), 2, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 5 || len(items) != 2 || items[0].NaturalKey != "3" || items[1].NaturalKey != "2" {
		t.Errorf("unexpected page total=%d items=%+v", total, items)
	}
	if items[0].ID.String() == "00000000-0000-0000-0000-000000000000" {
		t.Error("expected id to be assigned")
	}
	empty, _, _ := repo.List(context.Background(), 2, 10)
	if len(empty) != 0 {
		t.Errorf("expected empty page, got %d", len(empty))
	}
}

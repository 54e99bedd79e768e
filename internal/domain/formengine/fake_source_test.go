package formengine

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// fakeSource serves canned schemas and collections and counts fetches.
type fakeSource struct {
	mu          sync.Mutex
	schemas     map[string]string
	collections map[string]string
	schemaErr   error
	collErr     map[string]error
	calls       map[string]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		schemas:     make(map[string]string),
		collections: make(map[string]string),
		collErr:     make(map[string]error),
		calls:       make(map[string]int),
	}
}

func (f *fakeSource) Schema(ctx context.Context, entity string) (*PropertySchema, error) {
	f.mu.Lock()
	f.calls[SchemaPath(entity)]++
	f.mu.Unlock()
	if f.schemaErr != nil {
		return nil, f.schemaErr
	}
	doc, ok := f.schemas[entity]
	if !ok {
		return nil, errors.New("not found")
	}
	return ParseSchema([]byte(doc))
}

func (f *fakeSource) Collection(ctx context.Context, name string) ([]*Record, error) {
	f.mu.Lock()
	f.calls["/"+name]++
	f.mu.Unlock()
	if err := f.collErr[name]; err != nil {
		return nil, err
	}
	doc, ok := f.collections[name]
	if !ok {
		return nil, nil
	}
	return DecodeRecords([]byte(doc))
}

func (f *fakeSource) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

// statusErr mimics a transport error carrying an upstream status line.
type statusErr struct{ status string }

func (e *statusErr) Error() string             { return "upstream: " + e.status }
func (e *statusErr) StatusDescription() string { return e.status }

func appointmentSource() *fakeSource {
	src := newFakeSource()
	src.schemas["cita"] = `{"properties":{"idCita":{"type":"integer"},"fechaCita":{"type":"string"},"pacienteCedula":{"type":"string"}}}`
	src.schemas["Cita"] = `{"properties":{"idCita":{"type":"integer"},"fechaCita":{"type":"string"},"horaCita":{"type":"string"},"cedulaPaciente":{"type":"string"},"medicoTarjetaProfesional":{"type":"string"}}}`
	src.collections["pacientes"] = `[{"cedula":"100","nombre":"Ana","apellido":"Diaz"},{"cedula":"200","nombre":"Juan","apellido":"Perez"}]`
	src.collections["medicos"] = `[{"tarjetaProfesional":"TP-1","nombre":"Luis","apellido":"Rojas","Especialidad":{"nombre":"Pediatria"}}]`
	src.collections["especialidades"] = `[{"idEspecialidad":1,"nombre":"Pediatria"},{"idEspecialidad":2,"nombre":"Cardiologia"}]`
	return src
}

func newTestFormRenderer(t *testing.T, src DataSource, opts ...FormOption) *FormRenderer {
	t.Helper()
	return NewFormRenderer(src, mustRegistry(t), opts...)
}

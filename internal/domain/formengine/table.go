package formengine

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ActionsLabel is the caption of the trailing action column.
const ActionsLabel = "Acciones"

// displayDateLayout is the es-ES day/month/year rendering.
const displayDateLayout = "02/01/2006"

var isoDateTime = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}Z$`)

// Column is one header cell.
type Column struct {
	Key   string
	Label string
}

// Cell is one body cell; Key is the column it belongs to.
type Cell struct {
	Key  string
	Text string
}

// Button is an action control. Value carries the row's natural key.
type Button struct {
	ID     string
	Class  string
	Text   string
	Value  string
	Target string
}

// Row is one body row with its edit and delete controls.
type Row struct {
	Key    string
	Cells  []Cell
	Edit   Button
	Delete Button
}

// Table is a rendered record table.
type Table struct {
	Kind    string
	Add     Button
	Columns []Column
	Rows    []Row
}

// TableRenderer builds tables from already fetched records.
type TableRenderer struct {
	registry *Registry
}

func NewTableRenderer(registry *Registry) *TableRenderer {
	return &TableRenderer{registry: registry}
}

// Render builds the table for records of entityKind. Columns come from the
// first record only; later records are aligned to those columns, missing
// values render empty and extra keys are dropped. Every record must carry
// the entity's natural key.
func (t *TableRenderer) Render(records []*Record, entityKind string) (*Table, error) {
	entity, err := t.registry.Entity(entityKind)
	if err != nil {
		return nil, err
	}
	kind := entity.Kind
	lower := strings.ToLower(kind)

	table := &Table{
		Kind: kind,
		Add: Button{
			ID:     "crear-" + kind,
			Class:  "btn btn-success mx-1 w-25",
			Text:   "Agregar",
			Target: "#modal-" + kind,
		},
	}

	projected := make([]*Record, 0, len(records))
	sources := make([]*Record, 0, len(records))
	for _, r := range records {
		if r == nil {
			continue
		}
		projected = append(projected, entity.Project(r))
		sources = append(sources, r)
	}
	if len(projected) == 0 {
		return table, nil
	}

	for _, k := range projected[0].Keys() {
		table.Columns = append(table.Columns, Column{Key: k, Label: Label(k)})
	}

	for i, p := range projected {
		key, ok := entity.NaturalKeyValue(sources[i])
		if !ok {
			return nil, fmt.Errorf("%w: %s row %d lacks %s", ErrMissingNaturalKey, kind, i, entity.NaturalKey)
		}
		row := Row{Key: key}
		for _, col := range table.Columns {
			v, _ := p.Get(col.Key)
			row.Cells = append(row.Cells, Cell{Key: col.Key, Text: FormatCell(v)})
		}
		row.Edit = Button{
			ID:     "editar-" + kind,
			Class:  "btn btn-warning mx-1 editar-" + lower,
			Text:   "Editar",
			Value:  key,
			Target: "#modal-" + kind,
		}
		row.Delete = Button{
			ID:    "eliminar-" + kind,
			Class: "btn btn-danger mx-1 eliminar-" + lower,
			Text:  "Eliminar",
			Value: key,
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// FormatCell renders one cell value: nested records show their "nombre",
// ISO-8601 UTC timestamps show as dd/mm/yyyy, null shows empty.
func FormatCell(v interface{}) string {
	switch t := v.(type) {
	case *Record:
		return t.String("nombre")
	case string:
		if d, ok := FormatISODate(t); ok {
			return d
		}
		return t
	default:
		return scalarText(v)
	}
}

// FormatISODate reformats a YYYY-MM-DDTHH:MM:SS.mmmZ timestamp as a
// day/month/year date. The trailing Z is stripped and the wall clock parsed
// as UTC so the calendar day never shifts.
func FormatISODate(s string) (string, bool) {
	if !isoDateTime.MatchString(s) {
		return "", false
	}
	ts, err := time.ParseInLocation("2006-01-02T15:04:05.000", strings.TrimSuffix(s, "Z"), time.UTC)
	if err != nil {
		return "", false
	}
	return ts.Format(displayDateLayout), true
}

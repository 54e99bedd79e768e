package formengine

import (
	"embed"
	"html/template"
	"io"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(
	template.New("formengine").
		Funcs(template.FuncMap{"actionsLabel": func() string { return ActionsLabel }}).
		ParseFS(templateFS, "templates/*.html"),
)

// Template names understood by ExecuteTemplate.
const (
	FormTemplate  = "form"
	TableTemplate = "table"
)

// ExecuteTemplate writes the named fragment for data.
func ExecuteTemplate(w io.Writer, name string, data interface{}) error {
	return templates.ExecuteTemplate(w, name, data)
}

// WriteForm writes the HTML fragment of a form.
func WriteForm(w io.Writer, f *Form) error {
	return ExecuteTemplate(w, FormTemplate, f)
}

// WriteTable writes the HTML fragment of a table, including its add button.
func WriteTable(w io.Writer, t *Table) error {
	return ExecuteTemplate(w, TableTemplate, t)
}

package console

import (
	"io"

	"github.com/labstack/echo/v4"

	"github.com/ehr/formengine/internal/domain/formengine"
)

// TemplateRenderer lets handlers emit form and table fragments with
// c.Render.
type TemplateRenderer struct{}

func NewTemplateRenderer() *TemplateRenderer {
	return &TemplateRenderer{}
}

func (TemplateRenderer) Render(w io.Writer, name string, data interface{}, _ echo.Context) error {
	return formengine.ExecuteTemplate(w, name, data)
}

package console

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ehr/formengine/internal/domain/formengine"
	"github.com/ehr/formengine/internal/platform/auth"
	"github.com/ehr/formengine/internal/platform/middleware"
	"github.com/ehr/formengine/pkg/pagination"
)

// DefaultRenderTarget is used when a request names no render target.
const DefaultRenderTarget = "main"

type Handler struct {
	svc     *Service
	writeMW []echo.MiddlewareFunc
}

type HandlerOption func(*Handler)

// WithWriteRateLimit throttles create, update and delete requests per user.
func WithWriteRateLimit(cfg middleware.RateLimitConfig) HandlerOption {
	return func(h *Handler) {
		h.writeMW = append(h.writeMW, middleware.RateLimit(cfg))
	}
}

func NewHandler(svc *Service, opts ...HandlerOption) *Handler {
	h := &Handler{svc: svc}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *Handler) RegisterRoutes(ui *echo.Group) {
	readGroup := ui.Group("", auth.RequireRole(auth.RoleReceptionist, auth.RolePhysician))
	readGroup.GET("/forms/:kind", h.GetForm)
	readGroup.GET("/tables/:entity", h.GetTable)

	writeMW := append([]echo.MiddlewareFunc{auth.RequireRole(auth.RoleReceptionist)}, h.writeMW...)
	writeGroup := ui.Group("", writeMW...)
	writeGroup.POST("/entities/:entity", h.CreateEntity)
	writeGroup.PUT("/entities/:entity", h.UpdateEntity)
	writeGroup.DELETE("/entities/:entity/:key", h.DeleteEntity)

	adminGroup := ui.Group("", auth.RequireRole(auth.RoleAdmin))
	adminGroup.GET("/audit", h.ListAudit)
}

// GetForm renders the form fragment for :kind, e.g. crear-Cita. An edit
// form with ?key= is prefilled from that record.
func (h *Handler) GetForm(c echo.Context) error {
	ctx := c.Request().Context()
	form, err := h.svc.RenderForm(ctx, renderTarget(c), c.Param("kind"), c.QueryParam("key"))
	if err != nil {
		return httpError(err)
	}
	return c.Render(http.StatusOK, formengine.FormTemplate, form)
}

// GetTable renders one page of the :entity table fragment.
func (h *Handler) GetTable(c echo.Context) error {
	pg := pagination.FromContext(c)
	page, err := h.svc.RenderTable(c.Request().Context(), renderTarget(c), c.Param("entity"), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	pg.Offset = page.Offset
	if link := pg.LinkHeader(c.Request().URL.Path, page.Total); link != "" {
		c.Response().Header().Set("Link", link)
	}
	return renderPage(c, http.StatusOK, page)
}

func (h *Handler) CreateEntity(c echo.Context) error {
	return h.submit(c, formengine.ActionCreate, http.StatusCreated)
}

func (h *Handler) UpdateEntity(c echo.Context) error {
	return h.submit(c, formengine.ActionEdit, http.StatusOK)
}

// submit forwards the form and answers with the re-rendered table.
func (h *Handler) submit(c echo.Context, action string, status int) error {
	fields, err := submittedFields(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	entity := c.Param("entity")
	if err := h.svc.Submit(ctx, entity, action, fields, actorFrom(ctx)); err != nil {
		return httpError(err)
	}
	return h.refreshTable(c, entity, status)
}

func (h *Handler) DeleteEntity(c echo.Context) error {
	ctx := c.Request().Context()
	entity := c.Param("entity")
	if err := h.svc.Delete(ctx, entity, c.Param("key"), actorFrom(ctx)); err != nil {
		return httpError(err)
	}
	return h.refreshTable(c, entity, http.StatusOK)
}

func (h *Handler) refreshTable(c echo.Context, entity string, status int) error {
	page, err := h.svc.RenderTable(c.Request().Context(), renderTarget(c), entity, 0, 0)
	if err != nil {
		return httpError(err)
	}
	return renderPage(c, status, page)
}

func (h *Handler) ListAudit(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListAudit(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func renderPage(c echo.Context, status int, page *TablePage) error {
	c.Response().Header().Set("X-Total-Count", strconv.Itoa(page.Total))
	return c.Render(status, formengine.TableTemplate, page.Table)
}

// renderTarget keys the render container per user so one user's renders
// never supersede another's.
func renderTarget(c echo.Context) string {
	target := c.Request().Header.Get(middleware.RenderTargetHeader)
	if target == "" {
		target = DefaultRenderTarget
	}
	return auth.UserIDFromContext(c.Request().Context()) + ":" + target
}

func actorFrom(ctx context.Context) Actor {
	return Actor{
		UserID:    auth.UserIDFromContext(ctx),
		RequestID: middleware.RequestIDFromContext(ctx),
	}
}

// submittedFields reads a JSON object of strings or an url-encoded form.
// Values are stripped of control characters.
func submittedFields(c echo.Context) (map[string]string, error) {
	req := c.Request()
	if strings.HasPrefix(req.Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		var fields map[string]string
		if err := json.NewDecoder(req.Body).Decode(&fields); err != nil {
			return nil, err
		}
		for name, v := range fields {
			fields[name] = middleware.SanitizeFormValue(v)
		}
		return fields, nil
	}
	params, err := c.FormParams()
	if err != nil {
		return nil, err
	}
	fields := make(map[string]string, len(params))
	for name, values := range params {
		if len(values) > 0 {
			fields[name] = middleware.SanitizeFormValue(values[0])
		}
	}
	return fields, nil
}

func httpError(err error) error {
	var re *formengine.RenderError
	var sd formengine.StatusDescriber
	switch {
	case errors.Is(err, formengine.ErrSuperseded):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, formengine.ErrUnknownEntity), errors.Is(err, ErrRecordNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrInvalidAction):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusGatewayTimeout, err.Error())
	case errors.As(err, &re):
		msg := re.Target + ": " + re.Kind.Error()
		if re.Status != "" {
			msg += " (" + re.Status + ")"
		}
		return echo.NewHTTPError(http.StatusBadGateway, msg)
	case errors.Is(err, formengine.ErrRender), errors.Is(err, formengine.ErrMissingNaturalKey), errors.As(err, &sd):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/certificate-issuance/internal/service"
)

// TemplateHandler administers certificate designs.
type TemplateHandler struct {
	Templates *service.Templates
	Log       *zap.Logger
}

func NewTemplateHandler(templates *service.Templates, log *zap.Logger) *TemplateHandler {
	if templates == nil {
		panic("nil service passed to NewTemplateHandler")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &TemplateHandler{Templates: templates, Log: log}
}

// List: GET /v1/templates.
func (h *TemplateHandler) List(c echo.Context) error {
	list, err := h.Templates.List(c.Request().Context())
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, list)
}

// Get: GET /v1/templates/:id.
func (h *TemplateHandler) Get(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badID(c)
	}
	t, err := h.Templates.Get(c.Request().Context(), id)
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, t)
}

// Create takes multipart fields nombre, config, activo and an optional
// fondo image: POST /v1/templates.
func (h *TemplateHandler) Create(c echo.Context) error {
	in, bg, ok := templateForm(c)
	if !ok {
		return jsonError(c, http.StatusBadRequest, "invalid_body", "formulario inválido")
	}
	t, err := h.Templates.Create(c.Request().Context(), in, bg)
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, t)
}

// Update edits a template with the same multipart fields as Create. Empty
// nombre or config keep the stored values: PUT /v1/templates/:id.
func (h *TemplateHandler) Update(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badID(c)
	}
	in, bg, ok := templateForm(c)
	if !ok {
		return jsonError(c, http.StatusBadRequest, "invalid_body", "formulario inválido")
	}
	t, err := h.Templates.Update(c.Request().Context(), id, in, bg)
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, t)
}

func templateForm(c echo.Context) (service.TemplateInput, *service.Background, bool) {
	in := service.TemplateInput{
		Name:   c.FormValue("nombre"),
		Config: c.FormValue("config"),
	}
	in.Activate, _ = strconv.ParseBool(c.FormValue("activo"))

	fh, err := c.FormFile("fondo")
	switch {
	case err == nil:
		return in, &service.Background{Filename: fh.Filename, Size: fh.Size, Open: opener(fh)}, true
	case errors.Is(err, http.ErrMissingFile):
		return in, nil, true
	}
	return in, nil, false
}

// Activate: PUT /v1/templates/:id/activate.
func (h *TemplateHandler) Activate(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badID(c)
	}
	if err := h.Templates.Activate(c.Request().Context(), id); err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"id": id, "activo": true})
}

// Delete: DELETE /v1/templates/:id.
func (h *TemplateHandler) Delete(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badID(c)
	}
	if err := h.Templates.Delete(c.Request().Context(), id); err != nil {
		return respond(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Preview renders a watermarked sample: GET /v1/templates/:id/preview.
func (h *TemplateHandler) Preview(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badID(c)
	}
	pdf, err := h.Templates.Preview(c.Request().Context(), id)
	if err != nil {
		return respond(c, h.Log, err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `inline; filename="vista_previa.pdf"`)
	return c.Blob(http.StatusOK, "application/pdf", pdf)
}

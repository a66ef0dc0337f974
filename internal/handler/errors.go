package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/certificate-issuance/internal/batch"
	"github.com/iliyamo/certificate-issuance/internal/codes"
	"github.com/iliyamo/certificate-issuance/internal/render"
	"github.com/iliyamo/certificate-issuance/internal/repository"
	"github.com/iliyamo/certificate-issuance/internal/service"
)

// errorBody is every error response: a machine code and a readable message.
type errorBody struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func jsonError(c echo.Context, status int, code, msg string) error {
	return c.JSON(status, errorBody{Error: code, Message: msg})
}

// respond maps service and repository errors to HTTP statuses. Unknown
// errors are logged and hidden behind a generic 500.
func respond(c echo.Context, log *zap.Logger, err error) error {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, errorBody{Error: "validation_failed", Message: "datos inválidos", Fields: verr.Fields})
	case errors.Is(err, repository.ErrNotFound):
		return jsonError(c, http.StatusNotFound, "not_found", "no encontrado")
	case errors.Is(err, repository.ErrDuplicateActive):
		return jsonError(c, http.StatusConflict, "duplicate_active", batch.MsgDuplicateActive)
	case errors.Is(err, batch.ErrAlreadyProcessed):
		return jsonError(c, http.StatusConflict, "already_processed", "la carga ya fue procesada")
	case errors.Is(err, service.ErrTooLarge):
		return jsonError(c, http.StatusRequestEntityTooLarge, "file_too_large", "el archivo excede el tamaño permitido")
	case errors.Is(err, service.ErrUnsupportedFile), errors.Is(err, batch.ErrUnsupportedFormat):
		return jsonError(c, http.StatusBadRequest, "unsupported_file", "tipo de archivo no permitido")
	case errors.Is(err, batch.ErrEmptySheet), errors.Is(err, batch.ErrMissingColumns), errors.Is(err, batch.ErrTooManyRows):
		return jsonError(c, http.StatusBadRequest, "invalid_spreadsheet", err.Error())
	case errors.Is(err, render.ErrMissingField):
		log.Error("certificate not rendered", zap.Error(err))
		return jsonError(c, http.StatusInternalServerError, "render_failed", "no se pudo generar el PDF")
	case errors.Is(err, codes.ErrExhausted), errors.Is(err, repository.ErrDuplicateCode):
		log.Error("verification code allocation failed", zap.Error(err))
		return jsonError(c, http.StatusServiceUnavailable, "code_allocation_failed", "no se pudo asignar un código de verificación")
	case errors.Is(err, batch.ErrPipeline):
		log.Error("batch rolled back", zap.Error(err))
		return jsonError(c, http.StatusInternalServerError, "batch_failed", "la carga no se procesó; ningún certificado fue creado")
	}
	log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	return jsonError(c, http.StatusInternalServerError, "internal_error", "error interno")
}

func paramID(c echo.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

func badID(c echo.Context) error {
	return jsonError(c, http.StatusBadRequest, "invalid_id", "identificador inválido")
}

package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/certificate-issuance/internal/service"
)

// PublicHandler serves downloads and verification without a session.
type PublicHandler struct {
	Issuer *service.Issuer
	Log    *zap.Logger
}

func NewPublicHandler(issuer *service.Issuer, log *zap.Logger) *PublicHandler {
	if issuer == nil {
		panic("nil service passed to NewPublicHandler")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &PublicHandler{Issuer: issuer, Log: log}
}

// Download: GET /download/:code, ?download=1 for an attachment.
func (h *PublicHandler) Download(c echo.Context) error {
	code := strings.TrimSpace(c.Param("code"))
	if code == "" {
		return jsonError(c, http.StatusBadRequest, "missing_code", "código obligatorio")
	}
	doc, err := h.Issuer.FetchByCode(c.Request().Context(), code)
	if err != nil {
		return respond(c, h.Log, err)
	}
	return sendPDF(c, doc, c.QueryParam("download") == "1")
}

// Verify: GET /verify/:code.
func (h *PublicHandler) Verify(c echo.Context) error {
	code := strings.TrimSpace(c.Param("code"))
	if code == "" {
		return jsonError(c, http.StatusBadRequest, "missing_code", "código obligatorio")
	}
	sum, err := h.Issuer.Verify(c.Request().Context(), code)
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, sum)
}

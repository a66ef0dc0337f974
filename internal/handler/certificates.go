package handler

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/certificate-issuance/internal/batch"
	"github.com/iliyamo/certificate-issuance/internal/service"
)

// CertificateHandler serves the administrative issuance endpoints.
type CertificateHandler struct {
	Issuer   *service.Issuer
	Uploads  *service.Uploads
	Pipeline *batch.Pipeline
	Log      *zap.Logger
}

func NewCertificateHandler(issuer *service.Issuer, uploads *service.Uploads, pipeline *batch.Pipeline, log *zap.Logger) *CertificateHandler {
	if issuer == nil || uploads == nil || pipeline == nil {
		panic("nil dependency passed to NewCertificateHandler")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CertificateHandler{Issuer: issuer, Uploads: uploads, Pipeline: pipeline, Log: log}
}

// batchResp flattens the report next to the success flag.
type batchResp struct {
	Success bool `json:"success"`
	*batch.Report
}

// Generate issues one certificate: POST /v1/certificates.
func (h *CertificateHandler) Generate(c echo.Context) error {
	var req service.GenerateRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid_body", "cuerpo inválido")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()

	res, err := h.Issuer.Generate(ctx, req)
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, res)
}

// Batch stores a spreadsheet and processes it in one request:
// POST /v1/certificates/batch with multipart fields file and templateId.
func (h *CertificateHandler) Batch(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "missing_file", "el archivo es obligatorio")
	}
	templateID, ok := optionalID(c.FormValue("templateId"))
	if !ok {
		return jsonError(c, http.StatusBadRequest, "invalid_template", "templateId inválido")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Minute)
	defer cancel()

	upload, err := h.Uploads.Save(ctx, templateID, fh.Filename, fh.Size, opener(fh))
	if err != nil {
		return respond(c, h.Log, err)
	}
	return h.process(ctx, c, upload.ID)
}

// Process runs a stored, unprocessed upload: POST /v1/uploads/:id/process.
func (h *CertificateHandler) Process(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badID(c)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Minute)
	defer cancel()
	return h.process(ctx, c, id)
}

func (h *CertificateHandler) process(ctx context.Context, c echo.Context, uploadID int64) error {
	report, err := h.Pipeline.Process(ctx, uploadID)
	if err != nil {
		c.Response().Header().Set("X-Upload-Id", strconv.FormatInt(uploadID, 10))
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, batchResp{Success: true, Report: report})
}

// PDF streams a certificate by id: GET /v1/certificates/:id/pdf.
func (h *CertificateHandler) PDF(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badID(c)
	}
	doc, err := h.Issuer.FetchByID(c.Request().Context(), id)
	if err != nil {
		return respond(c, h.Log, err)
	}
	return sendPDF(c, doc, c.QueryParam("download") == "1")
}

type regenerateReq struct {
	TemplateID *int64 `json:"templateId"`
}

// Regenerate re-renders with another template:
// POST /v1/certificates/:id/regenerate.
func (h *CertificateHandler) Regenerate(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badID(c)
	}
	var req regenerateReq
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return jsonError(c, http.StatusBadRequest, "invalid_body", "cuerpo inválido")
		}
	}
	doc, err := h.Issuer.Regenerate(c.Request().Context(), id, req.TemplateID)
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"id":                 doc.Certificate.ID,
		"codigoVerificacion": doc.Certificate.VerificationCode,
		"downloadUrl":        h.Issuer.DownloadURL(doc.Certificate.VerificationCode),
	})
}

// Deactivate soft-deletes: DELETE /v1/certificates/:id.
func (h *CertificateHandler) Deactivate(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badID(c)
	}
	if err := h.Issuer.Deactivate(c.Request().Context(), id); err != nil {
		return respond(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Purge hard-deletes: DELETE /v1/certificates/:id/purge.
func (h *CertificateHandler) Purge(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badID(c)
	}
	if err := h.Issuer.Purge(c.Request().Context(), id); err != nil {
		return respond(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// sendPDF writes the fully rendered document, inline unless attachment.
func sendPDF(c echo.Context, doc *service.Document, attachment bool) error {
	disposition := "inline"
	if attachment {
		disposition = "attachment"
	}
	h := c.Response().Header()
	h.Set(echo.HeaderContentDisposition, fmt.Sprintf("%s; filename=%q", disposition, doc.Filename))
	h.Set("Cache-Control", "private, no-store")
	return c.Blob(http.StatusOK, "application/pdf", doc.PDF)
}

// optionalID parses an empty value as nil.
func optionalID(s string) (*int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, true
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return nil, false
	}
	return &id, true
}

func opener(fh *multipart.FileHeader) func() (io.ReadCloser, error) {
	return func() (io.ReadCloser, error) { return fh.Open() }
}

package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/certificate-issuance/internal/batch"
	"github.com/iliyamo/certificate-issuance/internal/codes"
	"github.com/iliyamo/certificate-issuance/internal/database"
	"github.com/iliyamo/certificate-issuance/internal/model"
	"github.com/iliyamo/certificate-issuance/internal/queue"
	"github.com/iliyamo/certificate-issuance/internal/render"
	"github.com/iliyamo/certificate-issuance/internal/repository"
	"github.com/iliyamo/certificate-issuance/internal/utils"
)

const maxInsertAttempts = 3

// IssuerConfig carries the public addressing of issued certificates.
type IssuerConfig struct {
	// PublicBaseURL prefixes download links, e.g. https://certs.example.edu.
	PublicBaseURL string
	// OrgCode is appended to download filenames.
	OrgCode string
	// ArchiveDir holds PDFs exported by operators as <CODE>.pdf; purge
	// removes them.
	ArchiveDir string
}

// Issuer issues single certificates and serves them back.
type Issuer struct {
	certs     *repository.CertificateRepo
	templates *repository.TemplateRepo
	renderer  Renderer
	events    queue.Publisher
	alloc     codes.Allocator
	cfg       IssuerConfig
	log       *zap.Logger
	now       func() time.Time
}

// NewIssuer wires an Issuer. events may be nil.
func NewIssuer(certs *repository.CertificateRepo, templates *repository.TemplateRepo, renderer Renderer,
	events queue.Publisher, cfg IssuerConfig, log *zap.Logger) *Issuer {
	if events == nil {
		events = queue.NopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	return &Issuer{
		certs:     certs,
		templates: templates,
		renderer:  renderer,
		events:    events,
		alloc:     codes.Legacy(),
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

// GenerateRequest is the single-issue payload.
type GenerateRequest struct {
	TemplateID       *int64 `json:"templateId"`
	DNI              string `json:"dni" validate:"required,len=8,numeric"`
	FullName         string `json:"nombreCompleto" validate:"required,max=255"`
	Email            string `json:"correoElectronico" validate:"omitempty,email"`
	CertificateType  string `json:"tipoCertificado" validate:"required"`
	Role             string `json:"rol" validate:"max=100"`
	EventName        string `json:"nombreEvento" validate:"required,max=255"`
	EventDescription string `json:"descripcionEvento"`
	StartDate        string `json:"fechaInicio"`
	EndDate          string `json:"fechaFin"`
	Hours            *int   `json:"horasAcademicas" validate:"omitempty,gt=0"`
}

// IssueResult is returned after a certificate is stored.
type IssueResult struct {
	ID               int64  `json:"id"`
	VerificationCode string `json:"codigoVerificacion"`
	DownloadURL      string `json:"downloadUrl"`
}

// Document is a ready-to-send PDF.
type Document struct {
	Certificate *model.Certificate
	PDF         []byte
	Filename    string
	// Cached reports whether PDF came from the store.
	Cached bool
}

// Summary is the public verification view. It never carries the PDF.
type Summary struct {
	VerificationCode string     `json:"codigoVerificacion"`
	FullName         string     `json:"nombreCompleto"`
	DNI              string     `json:"dni"`
	CertificateType  string     `json:"tipoCertificado"`
	Role             string     `json:"rol"`
	EventName        string     `json:"nombreEvento"`
	Period           string     `json:"periodo,omitempty"`
	StartDate        *time.Time `json:"fechaInicio,omitempty"`
	EndDate          *time.Time `json:"fechaFin,omitempty"`
	Hours            *int       `json:"horasAcademicas,omitempty"`
	IssuedAt         time.Time  `json:"fechaEmision"`
	Valid            bool       `json:"valido"`
}

// Generate validates req, allocates a code, renders and stores the
// certificate in one transaction.
func (s *Issuer) Generate(ctx context.Context, req GenerateRequest) (*IssueResult, error) {
	cert, verr := s.certificateFrom(req)
	if verr != nil {
		return nil, verr
	}

	var tpl *model.Template
	var err error
	if req.TemplateID != nil {
		tpl, err = s.templates.Get(ctx, *req.TemplateID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, invalid("templateId", "no existe")
		}
		if err != nil && !errors.Is(err, repository.ErrInvalidStoredConfig) {
			return nil, err
		}
	} else if tpl, err = s.templates.Resolve(ctx, nil, ""); err != nil {
		return nil, err
	}
	applyTemplate(cert, tpl)

	caps, err := s.certs.Capabilities(ctx)
	if err != nil {
		return nil, err
	}
	dup, err := s.certs.ActiveExistsForEvent(ctx, cert.DNI, cert.EventName)
	if err != nil {
		return nil, err
	}
	if dup {
		return nil, ErrDuplicateActive
	}

	err = database.Tx(ctx, s.certs.DB(), func(tx *sql.Tx) error {
		for attempt := 1; ; attempt++ {
			code, err := s.alloc.Allocate(ctx, func(ctx context.Context, c string) (bool, error) {
				return s.certs.CodeExistsTx(ctx, tx, c)
			})
			if err != nil {
				return err
			}
			cert.VerificationCode = code
			if caps.HasPDFCache {
				pdf, err := s.renderer.Render(ctx, cert, tpl, render.Options{Footer: true})
				if err != nil {
					return err
				}
				at := s.now().UTC()
				cert.PDF, cert.PDFGeneratedAt = pdf, &at
			}
			err = s.certs.InsertTx(ctx, tx, caps, cert)
			if errors.Is(err, repository.ErrDuplicateCode) && attempt < maxInsertAttempts {
				continue
			}
			return err
		}
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("certificate issued", zap.Int64("id", cert.ID), zap.String("code", cert.VerificationCode))
	ev := queue.CertificatesIssuedEvent{
		Source:    "single",
		EventName: cert.EventName,
		IssuedAt:  s.now().UTC().Format(time.RFC3339),
		Certificates: []queue.IssuedCertificate{{
			ID: cert.ID, VerificationCode: cert.VerificationCode, DNI: cert.DNI, FullName: cert.FullName,
		}},
	}
	if tpl != nil {
		ev.DesignID = tpl.ID
	}
	if err := s.events.PublishIssued(ctx, ev); err != nil {
		s.log.Warn("issuance event not published", zap.String("code", cert.VerificationCode), zap.Error(err))
	}
	return &IssueResult{ID: cert.ID, VerificationCode: cert.VerificationCode, DownloadURL: s.DownloadURL(cert.VerificationCode)}, nil
}

// DownloadURL is the public download link of a code.
func (s *Issuer) DownloadURL(code string) string {
	return s.cfg.PublicBaseURL + "/download/" + model.NormalizeCode(code)
}

func (s *Issuer) certificateFrom(req GenerateRequest) (*model.Certificate, *ValidationError) {
	req.DNI = strings.TrimSpace(req.DNI)
	req.FullName = strings.Join(strings.Fields(req.FullName), " ")
	req.EventName = strings.TrimSpace(req.EventName)
	req.Email = strings.TrimSpace(req.Email)
	if verr := checkStruct(req); verr != nil {
		return nil, verr
	}
	verr := &ValidationError{Fields: map[string]string{}}
	certType, ok := batch.NormalizeType(req.CertificateType)
	if !ok {
		verr.Fields["tipoCertificado"] = "no es un tipo reconocido"
	}
	start, err := batch.ParseDate(req.StartDate)
	if err != nil {
		verr.Fields["fechaInicio"] = "fecha inválida"
	}
	end, err := batch.ParseDate(req.EndDate)
	if err != nil {
		verr.Fields["fechaFin"] = "fecha inválida"
	}
	if start != nil && end != nil && start.After(*end) {
		verr.Fields["fechaInicio"] = "es posterior a la fecha de fin"
	}
	if len(verr.Fields) > 0 {
		return nil, verr
	}
	now := s.now().UTC()
	return &model.Certificate{
		DNI:              req.DNI,
		FullName:         req.FullName,
		Email:            req.Email,
		CertificateType:  certType,
		Role:             strings.TrimSpace(req.Role),
		EventName:        req.EventName,
		EventDescription: strings.TrimSpace(req.EventDescription),
		StartDate:        start,
		EndDate:          end,
		AcademicHours:    req.Hours,
		IssuedAt:         now,
		Active:           true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

func applyTemplate(cert *model.Certificate, tpl *model.Template) {
	if tpl == nil {
		return
	}
	id := tpl.ID
	cert.DesignID = &id
	cert.TemplateFile = model.TemplateFilename(tpl.ID, filepath.Ext(tpl.Background))
	cert.ConfigSnapshot = tpl.Config.JSON()
	cert.BackgroundUsed = tpl.Background
}

// FetchByCode returns the PDF of the active certificate with code.
func (s *Issuer) FetchByCode(ctx context.Context, code string) (*Document, error) {
	cert, err := s.certs.GetByCode(ctx, code, true)
	if err != nil {
		return nil, err
	}
	return s.document(ctx, cert)
}

// FetchByID returns the PDF of the active certificate with id.
func (s *Issuer) FetchByID(ctx context.Context, id int64) (*Document, error) {
	cert, err := s.certs.GetByID(ctx, id, true)
	if err != nil {
		return nil, err
	}
	return s.document(ctx, cert)
}

// document serves the cached PDF while it is newer than the template it
// was drawn with, and renders on demand otherwise.
func (s *Issuer) document(ctx context.Context, cert *model.Certificate) (*Document, error) {
	if !cert.Active {
		return nil, ErrNotFound
	}
	tpl, err := s.templates.Resolve(ctx, cert.DesignID, cert.TemplateFile)
	if err != nil {
		return nil, err
	}
	doc := &Document{Certificate: cert, Filename: utils.DownloadFilename(cert.FullName, s.cfg.OrgCode)}
	if fresh(cert, tpl) {
		doc.PDF, doc.Cached = cert.PDF, true
		return doc, nil
	}

	pdf, err := s.renderer.Render(ctx, cert, tpl, render.Options{Footer: true})
	if err != nil {
		return nil, fmt.Errorf("render certificate %s: %w", cert.VerificationCode, err)
	}
	doc.PDF = pdf
	if err := s.certs.UpdateRender(ctx, cert.ID, s.renderUpdate(cert, tpl, pdf)); err != nil {
		s.log.Warn("rendered pdf not cached", zap.Int64("id", cert.ID), zap.Error(err))
	}
	return doc, nil
}

func fresh(cert *model.Certificate, tpl *model.Template) bool {
	if len(cert.PDF) == 0 || cert.PDFGeneratedAt == nil {
		return false
	}
	return tpl == nil || !tpl.UpdatedAt.After(*cert.PDFGeneratedAt)
}

func (s *Issuer) renderUpdate(cert *model.Certificate, tpl *model.Template, pdf []byte) repository.RenderUpdate {
	u := repository.RenderUpdate{
		DesignID:     cert.DesignID,
		TemplateFile: cert.TemplateFile,
		Config:       cert.ConfigSnapshot,
		Background:   cert.BackgroundUsed,
		PDF:          pdf,
		RenderedAt:   s.now().UTC(),
	}
	if tpl != nil {
		id := tpl.ID
		u.DesignID = &id
		u.TemplateFile = model.TemplateFilename(tpl.ID, filepath.Ext(tpl.Background))
		u.Config = tpl.Config.JSON()
		u.Background = tpl.Background
	}
	return u
}

// Verify returns the public summary of an active certificate.
func (s *Issuer) Verify(ctx context.Context, code string) (*Summary, error) {
	cert, err := s.certs.GetByCode(ctx, code, false)
	if err != nil {
		return nil, err
	}
	if !cert.Active {
		return nil, ErrNotFound
	}
	return &Summary{
		VerificationCode: cert.VerificationCode,
		FullName:         cert.FullName,
		DNI:              cert.DNI,
		CertificateType:  cert.CertificateType,
		Role:             render.RoleLabel(cert.Role, cert.CertificateType),
		EventName:        cert.EventName,
		Period:           render.PeriodPhrase(cert.StartDate, cert.EndDate),
		StartDate:        cert.StartDate,
		EndDate:          cert.EndDate,
		Hours:            cert.AcademicHours,
		IssuedAt:         cert.IssuedAt,
		Valid:            true,
	}, nil
}

// Regenerate re-renders certificate id with templateID (or the template
// it already resolves to when nil) and overwrites the cache and the audit
// columns.
func (s *Issuer) Regenerate(ctx context.Context, id int64, templateID *int64) (*Document, error) {
	cert, err := s.certs.GetByID(ctx, id, false)
	if err != nil {
		return nil, err
	}
	var tpl *model.Template
	if templateID != nil {
		tpl, err = s.templates.Get(ctx, *templateID)
		if err != nil && !errors.Is(err, repository.ErrInvalidStoredConfig) {
			return nil, err
		}
	} else if tpl, err = s.templates.Resolve(ctx, cert.DesignID, cert.TemplateFile); err != nil {
		return nil, err
	}

	pdf, err := s.renderer.Render(ctx, cert, tpl, render.Options{Footer: true})
	if err != nil {
		return nil, fmt.Errorf("render certificate %s: %w", cert.VerificationCode, err)
	}
	if err := s.certs.UpdateRender(ctx, cert.ID, s.renderUpdate(cert, tpl, pdf)); err != nil {
		return nil, err
	}
	s.log.Info("certificate regenerated", zap.Int64("id", cert.ID), zap.Int64p("template_id", templateID))
	return &Document{Certificate: cert, PDF: pdf, Filename: utils.DownloadFilename(cert.FullName, s.cfg.OrgCode)}, nil
}

// Deactivate soft-deletes a certificate. It stops verifying and
// downloading; the holder may then be issued a new one for the event.
func (s *Issuer) Deactivate(ctx context.Context, id int64) error {
	return s.certs.SetActive(ctx, id, false)
}

// Purge removes the certificate row and any archived PDF.
func (s *Issuer) Purge(ctx context.Context, id int64) error {
	cert, err := s.certs.GetByID(ctx, id, false)
	if err != nil {
		return err
	}
	if err := s.certs.Delete(ctx, id); err != nil {
		return err
	}
	if s.cfg.ArchiveDir != "" {
		path := filepath.Join(s.cfg.ArchiveDir, cert.VerificationCode+".pdf")
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.log.Warn("archived pdf not removed", zap.String("path", path), zap.Error(err))
		}
	}
	s.log.Info("certificate purged", zap.Int64("id", id), zap.String("code", cert.VerificationCode))
	return nil
}

// Archive writes the certificate PDF to ArchiveDir as <CODE>.pdf and
// returns the path.
func (s *Issuer) Archive(ctx context.Context, code string) (string, error) {
	if s.cfg.ArchiveDir == "" {
		return "", errors.New("archive directory not configured")
	}
	doc, err := s.FetchByCode(ctx, code)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.cfg.ArchiveDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(s.cfg.ArchiveDir, doc.Certificate.VerificationCode+".pdf")
	if err := os.WriteFile(path, doc.PDF, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

package batch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/certificate-issuance/internal/codes"
	"github.com/iliyamo/certificate-issuance/internal/database"
	"github.com/iliyamo/certificate-issuance/internal/model"
	"github.com/iliyamo/certificate-issuance/internal/queue"
	"github.com/iliyamo/certificate-issuance/internal/render"
	"github.com/iliyamo/certificate-issuance/internal/repository"
)

var (
	// ErrPipeline wraps any store failure that rolled the whole batch
	// back. The upload stays unprocessed and can be retried.
	ErrPipeline = errors.New("batch issuance failed")
	// ErrAlreadyProcessed is returned for an upload that already ran.
	ErrAlreadyProcessed = errors.New("upload already processed")
)

// MsgDuplicateActive is the row-level skip reported when the holder
// already has an active certificate for the event.
const MsgDuplicateActive = "ya tiene un certificado activo para este evento"

const maxInsertAttempts = 3

// State is the batch lifecycle. There is no failed state: a store
// failure leaves the upload Uploaded.
type State int

const (
	StateUploaded State = iota
	StateValidated
	StateIssuing
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateValidated:
		return "validated"
	case StateIssuing:
		return "issuing"
	case StateCompleted:
		return "completed"
	}
	return "uploaded"
}

// MarshalText renders the state as its name in JSON.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// RowResult is the outcome of one spreadsheet row.
type RowResult struct {
	Index            int    `json:"index"`
	Row              int    `json:"row"`
	DNI              string `json:"dni"`
	Success          bool   `json:"success"`
	Error            string `json:"error,omitempty"`
	VerificationCode string `json:"codigoVerificacion,omitempty"`
	CertificateID    int64  `json:"id,omitempty"`

	fullName string
}

// RowFailure is the short form listed under "errores".
type RowFailure struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

// Report summarizes a processed upload.
type Report struct {
	UploadID int64        `json:"uploadId"`
	State    State        `json:"state"`
	Total    int          `json:"total"`
	Created  int          `json:"creados"`
	Errors   []RowFailure `json:"errores"`
	Results  []RowResult  `json:"resultados"`
}

// ErrorLog joins every row-level failure, one per line.
func (r *Report) ErrorLog() string {
	lines := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		lines = append(lines, fmt.Sprintf("Fila %d: %s", e.Row, e.Error))
	}
	return strings.Join(lines, "\n")
}

func (r *Report) fail(index, row int, dni, msg string) {
	r.Results = append(r.Results, RowResult{Index: index, Row: row, DNI: dni, Error: msg})
	r.Errors = append(r.Errors, RowFailure{Row: row, Error: msg})
}

// Renderer draws a certificate PDF.
type Renderer interface {
	Render(ctx context.Context, cert *model.Certificate, tpl *model.Template, opts render.Options) ([]byte, error)
}

// Config bounds a batch run.
type Config struct {
	UploadsDir string
	MaxRows    int
	// RenderPDF caches a rendered PDF for every certificate inside the
	// transaction when the store has the cache columns.
	RenderPDF bool
}

// Pipeline runs uploads through parse, validate and issue.
type Pipeline struct {
	certs     *repository.CertificateRepo
	templates *repository.TemplateRepo
	uploads   *repository.UploadRepo
	renderer  Renderer
	events    queue.Publisher
	alloc     codes.Allocator
	cfg       Config
	log       *zap.Logger
	now       func() time.Time
}

// NewPipeline wires a pipeline. renderer may be nil when RenderPDF is
// off; events may be nil.
func NewPipeline(certs *repository.CertificateRepo, templates *repository.TemplateRepo, uploads *repository.UploadRepo,
	renderer Renderer, events queue.Publisher, cfg Config, log *zap.Logger) *Pipeline {
	if events == nil {
		events = queue.NopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		certs:     certs,
		templates: templates,
		uploads:   uploads,
		renderer:  renderer,
		events:    events,
		alloc:     codes.Extended(),
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

// Process issues every valid row of upload uploadID in one transaction.
// Validation failures and duplicate holders are reported per row and
// never abort the batch; any store error rolls everything back and is
// returned wrapped in ErrPipeline.
func (p *Pipeline) Process(ctx context.Context, uploadID int64) (*Report, error) {
	log := p.log.With(zap.Int64("upload_id", uploadID))
	upload, err := p.uploads.Get(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	if upload.Processed {
		return nil, ErrAlreadyProcessed
	}
	report := &Report{UploadID: uploadID, State: StateUploaded, Errors: []RowFailure{}, Results: []RowResult{}}

	path := filepath.Join(p.cfg.UploadsDir, filepath.Base(upload.Filename))
	rows, err := ParseFile(path, p.cfg.MaxRows)
	if err != nil {
		return nil, err
	}
	report.Total = len(rows)

	records := make([]*Record, 0, len(rows))
	for _, row := range rows {
		rec, rowErr := ValidateRow(row)
		if rowErr != nil {
			report.fail(rowErr.Index, rowErr.Row, rowErr.DNI, strings.Join(rowErr.Messages, "; "))
			continue
		}
		records = append(records, rec)
	}
	report.State = StateValidated

	// Everything that reads outside the transaction happens before it
	// opens: a single-connection store would block otherwise.
	caps, err := p.certs.Capabilities(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPipeline, err)
	}
	tpl, err := p.templates.Resolve(ctx, upload.DesignID, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPipeline, err)
	}
	renderPDF := p.cfg.RenderPDF && caps.HasPDFCache && p.renderer != nil

	issued := make([]RowResult, 0, len(records))
	var skipped []RowResult
	report.State = StateIssuing
	err = database.Tx(ctx, p.certs.DB(), func(tx *sql.Tx) error {
		issued = issued[:0]
		skipped = skipped[:0]
		for _, rec := range records {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := p.issueRow(ctx, tx, caps, tpl, rec, renderPDF)
			if err != nil {
				return err
			}
			if res.Success {
				issued = append(issued, res)
			} else {
				skipped = append(skipped, res)
			}
		}
		return p.uploads.MarkProcessedTx(ctx, tx, uploadID, len(issued), errorLog(report.Errors, skipped))
	})
	if err != nil {
		log.Error("batch rolled back", zap.Error(err))
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrAlreadyProcessed
		}
		return nil, fmt.Errorf("%w: %w", ErrPipeline, err)
	}

	for _, s := range skipped {
		report.fail(s.Index, s.Row, s.DNI, s.Error)
	}
	report.Results = append(report.Results, issued...)
	sortResults(report)
	report.Created = len(issued)
	report.State = StateCompleted

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warn("could not delete processed spreadsheet", zap.String("path", path), zap.Error(err))
	}
	p.publish(ctx, upload, tpl, report, issued)
	log.Info("batch processed", zap.Int("created", report.Created), zap.Int("failed", len(report.Errors)))
	return report, nil
}

// issueRow returns a failed RowResult for business-rule skips and an
// error only for store failures.
func (p *Pipeline) issueRow(ctx context.Context, tx *sql.Tx, caps repository.Capabilities, tpl *model.Template, rec *Record, renderPDF bool) (RowResult, error) {
	res := RowResult{Index: rec.Index, Row: rec.Row, DNI: rec.DNI}
	exists, err := p.certs.ActiveExistsForEventTx(ctx, tx, rec.DNI, rec.EventName)
	if err != nil {
		return res, err
	}
	if exists {
		res.Error = MsgDuplicateActive
		return res, nil
	}

	cert := p.certificateFor(rec, tpl)
	for attempt := 1; ; attempt++ {
		code, err := p.alloc.Allocate(ctx, func(ctx context.Context, c string) (bool, error) {
			return p.certs.CodeExistsTx(ctx, tx, c)
		})
		if err != nil {
			return res, err
		}
		cert.VerificationCode = code
		cert.PDF, cert.PDFGeneratedAt = nil, nil
		if renderPDF {
			p.renderInto(ctx, cert, tpl)
		}
		err = p.certs.InsertTx(ctx, tx, caps, cert)
		switch {
		case err == nil:
			res.Success = true
			res.VerificationCode = cert.VerificationCode
			res.CertificateID = cert.ID
			res.fullName = cert.FullName
			return res, nil
		case errors.Is(err, repository.ErrDuplicateActive):
			res.Error = MsgDuplicateActive
			return res, nil
		case errors.Is(err, repository.ErrDuplicateCode) && attempt < maxInsertAttempts:
			continue
		default:
			return res, err
		}
	}
}

func (p *Pipeline) certificateFor(rec *Record, tpl *model.Template) *model.Certificate {
	now := p.now().UTC()
	cert := &model.Certificate{
		DNI:              rec.DNI,
		FullName:         rec.FullName(),
		Email:            rec.Email,
		CertificateType:  rec.CertificateType,
		Role:             rec.Role,
		EventName:        rec.EventName,
		EventDescription: rec.EventDescription,
		StartDate:        rec.StartDate,
		EndDate:          rec.EndDate,
		AcademicHours:    rec.Hours,
		IssuedAt:         now,
		Active:           true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if tpl != nil {
		id := tpl.ID
		cert.DesignID = &id
		cert.TemplateFile = model.TemplateFilename(tpl.ID, filepath.Ext(tpl.Background))
		cert.ConfigSnapshot = tpl.Config.JSON()
		cert.BackgroundUsed = tpl.Background
	}
	return cert
}

// renderInto caches a PDF on cert. A failed render leaves the cache empty;
// the certificate is rendered on demand later.
func (p *Pipeline) renderInto(ctx context.Context, cert *model.Certificate, tpl *model.Template) {
	pdf, err := p.renderer.Render(ctx, cert, tpl, render.Options{Footer: true})
	if err != nil {
		p.log.Warn("batch render failed, certificate stored without cached pdf",
			zap.String("code", cert.VerificationCode), zap.Error(err))
		return
	}
	at := p.now().UTC()
	cert.PDF = pdf
	cert.PDFGeneratedAt = &at
}

func (p *Pipeline) publish(ctx context.Context, upload *model.BatchUpload, tpl *model.Template, report *Report, issued []RowResult) {
	if len(issued) == 0 {
		return
	}
	ev := queue.CertificatesIssuedEvent{
		Source:   "batch",
		UploadID: upload.ID,
		Failed:   len(report.Errors),
		IssuedAt: p.now().UTC().Format(time.RFC3339),
	}
	if tpl != nil {
		ev.DesignID = tpl.ID
	}
	for _, r := range issued {
		ev.Certificates = append(ev.Certificates, queue.IssuedCertificate{
			ID: r.CertificateID, VerificationCode: r.VerificationCode, DNI: r.DNI, FullName: r.fullName,
		})
	}
	if err := p.events.PublishIssued(ctx, ev); err != nil {
		p.log.Warn("issuance event not published", zap.Int64("upload_id", upload.ID), zap.Error(err))
	}
}

func errorLog(invalid []RowFailure, skipped []RowResult) string {
	all := append([]RowFailure(nil), invalid...)
	for _, r := range skipped {
		all = append(all, RowFailure{Row: r.Row, Error: r.Error})
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Row < all[j].Row })
	return (&Report{Errors: all}).ErrorLog()
}

func sortResults(r *Report) {
	sort.SliceStable(r.Results, func(i, j int) bool { return r.Results[i].Row < r.Results[j].Row })
	sort.SliceStable(r.Errors, func(i, j int) bool { return r.Errors[i].Row < r.Errors[j].Row })
}

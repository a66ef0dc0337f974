package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/certificate-issuance/internal/database"
	"github.com/iliyamo/certificate-issuance/internal/model"
)

// CertificateRepo provides access to the certificados table. Methods with
// a Tx suffix run inside a caller-owned transaction and take the
// Capabilities up front: on a single-connection store the prober cannot
// query while the transaction holds the connection.
type CertificateRepo struct {
	db     *sql.DB
	schema *SchemaProber
}

// NewCertificateRepo returns a new CertificateRepo bound to the given
// database.
func NewCertificateRepo(db *sql.DB, schema *SchemaProber) *CertificateRepo {
	return &CertificateRepo{db: db, schema: schema}
}

// DB exposes the underlying handle for callers that open their own
// transaction (batch processing, single issuance).
func (r *CertificateRepo) DB() *sql.DB { return r.db }

// Capabilities returns the current schema capabilities.
func (r *CertificateRepo) Capabilities(ctx context.Context) (Capabilities, error) {
	return r.schema.Capabilities(ctx)
}

var certificateBaseColumns = []string{
	"codigo_verificacion", "dni", "nombre_completo", "correo_electronico",
	"tipo_certificado", "rol", "nombre_evento", "descripcion_evento",
	"fecha_inicio", "fecha_fin", "horas_academicas", "fecha_emision",
	"activo", "plantilla_certificado", "created_at", "updated_at",
}

// CertificateColumns is the write column list for the given schema. The
// order matches CertificateValues.
func CertificateColumns(c Capabilities) []string {
	cols := append([]string(nil), certificateBaseColumns...)
	if c.HasDesignID {
		cols = append(cols, "diseno_id")
	}
	if c.HasAuditColumns {
		cols = append(cols, "config_usada", "fondo_usado")
	}
	if c.HasPDFCache {
		cols = append(cols, "pdf_content", "pdf_generado_en")
	}
	return cols
}

// CertificateValues projects the canonical record onto CertificateColumns.
func CertificateValues(c Capabilities, cert *model.Certificate) []any {
	vals := []any{
		model.NormalizeCode(cert.VerificationCode),
		cert.DNI,
		cert.FullName,
		nullString(cert.Email),
		cert.CertificateType,
		nullString(cert.Role),
		cert.EventName,
		nullString(cert.EventDescription),
		nullTime(cert.StartDate),
		nullTime(cert.EndDate),
		nullInt(cert.AcademicHours),
		cert.IssuedAt.UTC(),
		boolInt(cert.Active),
		nullString(cert.TemplateFile),
		cert.CreatedAt.UTC(),
		cert.UpdatedAt.UTC(),
	}
	if c.HasDesignID {
		vals = append(vals, nullInt64(cert.DesignID))
	}
	if c.HasAuditColumns {
		vals = append(vals, nullString(cert.ConfigSnapshot), nullString(cert.BackgroundUsed))
	}
	if c.HasPDFCache {
		var pdf any
		if len(cert.PDF) > 0 {
			pdf = cert.PDF
		}
		vals = append(vals, pdf, nullTime(cert.PDFGeneratedAt))
	}
	return vals
}

// certificateSelectSQL reads a fixed shape: id, the base columns, then
// diseno_id, config_usada, fondo_usado, pdf_content, pdf_generado_en with
// NULL standing in for absent columns.
func certificateSelectSQL(c Capabilities, withPDF bool) string {
	cols := append([]string{"id"}, certificateBaseColumns...)
	if c.HasDesignID {
		cols = append(cols, "diseno_id")
	} else {
		cols = append(cols, "NULL")
	}
	if c.HasAuditColumns {
		cols = append(cols, "config_usada", "fondo_usado")
	} else {
		cols = append(cols, "NULL", "NULL")
	}
	if c.HasPDFCache && withPDF {
		cols = append(cols, "pdf_content")
	} else {
		cols = append(cols, "NULL")
	}
	if c.HasPDFCache {
		cols = append(cols, "pdf_generado_en")
	} else {
		cols = append(cols, "NULL")
	}
	return "SELECT " + strings.Join(cols, ", ") + " FROM " + tableCertificates
}

func scanCertificate(row rowScanner) (*model.Certificate, error) {
	var (
		c                          model.Certificate
		email, role, desc, tplFile sql.NullString
		cfg, bg                    sql.NullString
		start, end, pdfAt          sql.NullTime
		hours, designID            sql.NullInt64
		pdf                        []byte
	)
	err := row.Scan(&c.ID, &c.VerificationCode, &c.DNI, &c.FullName, &email,
		&c.CertificateType, &role, &c.EventName, &desc,
		&start, &end, &hours, &c.IssuedAt,
		&c.Active, &tplFile, &c.CreatedAt, &c.UpdatedAt,
		&designID, &cfg, &bg, &pdf, &pdfAt)
	if err != nil {
		return nil, err
	}
	c.Email = email.String
	c.Role = role.String
	c.EventDescription = desc.String
	c.TemplateFile = tplFile.String
	c.StartDate = timePtr(start)
	c.EndDate = timePtr(end)
	c.AcademicHours = intPtr(hours)
	c.DesignID = int64Ptr(designID)
	c.ConfigSnapshot = cfg.String
	c.BackgroundUsed = bg.String
	c.PDF = pdf
	c.PDFGeneratedAt = timePtr(pdfAt)
	return &c, nil
}

func (r *CertificateRepo) getOne(ctx context.Context, withPDF bool, where string, args ...any) (*model.Certificate, error) {
	caps, err := r.schema.Capabilities(ctx)
	if err != nil {
		return nil, err
	}
	c, err := scanCertificate(r.db.QueryRowContext(ctx, certificateSelectSQL(caps, withPDF)+" "+where, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// GetByCode looks a certificate up by verification code, case-insensitive,
// whatever its active flag.
func (r *CertificateRepo) GetByCode(ctx context.Context, code string, withPDF bool) (*model.Certificate, error) {
	return r.getOne(ctx, withPDF, "WHERE UPPER(codigo_verificacion) = ?", model.NormalizeCode(code))
}

// GetByID looks a certificate up by primary key.
func (r *CertificateRepo) GetByID(ctx context.Context, id int64, withPDF bool) (*model.Certificate, error) {
	return r.getOne(ctx, withPDF, "WHERE id = ?", id)
}

// CodeExistsTx reports whether any certificate, active or not, already
// carries code.
func (r *CertificateRepo) CodeExistsTx(ctx context.Context, tx *sql.Tx, code string) (bool, error) {
	return codeExists(ctx, tx, code)
}

func codeExists(ctx context.Context, q database.DBTX, code string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM "+tableCertificates+" WHERE UPPER(codigo_verificacion) = ?",
		model.NormalizeCode(code)).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ActiveExistsForEvent reports whether dni already holds an active
// certificate for eventName.
func (r *CertificateRepo) ActiveExistsForEvent(ctx context.Context, dni, eventName string) (bool, error) {
	return activeExists(ctx, r.db, dni, eventName)
}

// ActiveExistsForEventTx is ActiveExistsForEvent inside tx.
func (r *CertificateRepo) ActiveExistsForEventTx(ctx context.Context, tx *sql.Tx, dni, eventName string) (bool, error) {
	return activeExists(ctx, tx, dni, eventName)
}

func activeExists(ctx context.Context, q database.DBTX, dni, eventName string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM "+tableCertificates+" WHERE dni = ? AND nombre_evento = ? AND activo = 1",
		dni, eventName).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// InsertTx writes cert inside tx and sets its ID. Unique violations are
// mapped onto ErrDuplicateCode or ErrDuplicateActive.
func (r *CertificateRepo) InsertTx(ctx context.Context, tx *sql.Tx, caps Capabilities, cert *model.Certificate) error {
	return insertCertificate(ctx, tx, caps, cert)
}

func insertCertificate(ctx context.Context, q database.DBTX, caps Capabilities, cert *model.Certificate) error {
	now := time.Now().UTC()
	if cert.CreatedAt.IsZero() {
		cert.CreatedAt = now
	}
	if cert.UpdatedAt.IsZero() {
		cert.UpdatedAt = now
	}
	if cert.IssuedAt.IsZero() {
		cert.IssuedAt = now
	}
	cert.VerificationCode = model.NormalizeCode(cert.VerificationCode)
	cols := CertificateColumns(caps)
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		tableCertificates, strings.Join(cols, ", "), placeholders(len(cols)))
	res, err := q.ExecContext(ctx, query, CertificateValues(caps, cert)...)
	if err != nil {
		return classifyInsertError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	cert.ID = id
	return nil
}

// RenderUpdate carries the columns rewritten after a (re)render.
type RenderUpdate struct {
	DesignID     *int64
	TemplateFile string
	Config       string
	Background   string
	PDF          []byte
	RenderedAt   time.Time
}

// UpdateRender stores a fresh render.
func (r *CertificateRepo) UpdateRender(ctx context.Context, id int64, u RenderUpdate) error {
	caps, err := r.schema.Capabilities(ctx)
	if err != nil {
		return err
	}
	return updateRender(ctx, r.db, caps, id, u)
}

func updateRender(ctx context.Context, q database.DBTX, caps Capabilities, id int64, u RenderUpdate) error {
	sets := []string{}
	args := []any{}
	if u.TemplateFile != "" {
		sets = append(sets, "plantilla_certificado = ?")
		args = append(args, u.TemplateFile)
	}
	if caps.HasDesignID {
		sets = append(sets, "diseno_id = ?")
		args = append(args, nullInt64(u.DesignID))
	}
	if caps.HasAuditColumns {
		sets = append(sets, "config_usada = ?", "fondo_usado = ?")
		args = append(args, nullString(u.Config), nullString(u.Background))
	}
	if caps.HasPDFCache && len(u.PDF) > 0 {
		at := u.RenderedAt.UTC()
		sets = append(sets, "pdf_content = ?", "pdf_generado_en = ?")
		args = append(args, u.PDF, at)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC(), id)
	res, err := q.ExecContext(ctx,
		"UPDATE "+tableCertificates+" SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetActive flips the soft-delete flag.
func (r *CertificateRepo) SetActive(ctx context.Context, id int64, active bool) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE "+tableCertificates+" SET activo = ?, updated_at = ? WHERE id = ?",
		boolInt(active), time.Now().UTC(), id)
	if err != nil {
		return classifyInsertError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the row permanently. Only the administrative purge uses
// it.
func (r *CertificateRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM "+tableCertificates+" WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountByEvent returns how many certificates (any status) exist for
// eventName. Used by operators to check a batch landed.
func (r *CertificateRepo) CountByEvent(ctx context.Context, eventName string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM "+tableCertificates+" WHERE nombre_evento = ?", eventName).Scan(&n)
	return n, err
}

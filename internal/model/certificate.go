package model

import (
	"strings"
	"time"
)

// Certificate is the canonical shape of a certificados row. Repositories
// project it onto whichever columns the live schema carries, so optional
// columns (design id, audit snapshot, cached PDF) are plain fields here and
// simply not written when the store lacks them.
//
// Fields:
//
//	ID                 – certificados.id, assigned by the store.
//	VerificationCode   – certificados.codigo_verificacion, unique, upper-case.
//	DNI                – holder national id, exactly 8 digits.
//	FullName           – holder name as printed on the certificate.
//	Email              – optional contact address from batch uploads.
//	CertificateType    – normalized type (asistente, ponente, ...).
//	Role               – explicit role label; empty means derived.
//	EventName          – event title.
//	EventDescription   – optional free text.
//	StartDate/EndDate  – event period; nil when unknown.
//	AcademicHours      – nil when not provided.
//	IssuedAt           – issuance timestamp.
//	Active             – soft-delete flag.
//	TemplateFile       – legacy plantilla_certificado (diseno_<id>.<ext>).
//	DesignID           – template reference when the audit column exists.
//	ConfigSnapshot     – JSON of the layout used for the last render.
//	BackgroundUsed     – background reference used for the last render.
//	PDF/PDFGeneratedAt – cached render.
type Certificate struct {
	ID               int64
	VerificationCode string
	DNI              string
	FullName         string
	Email            string
	CertificateType  string
	Role             string
	EventName        string
	EventDescription string
	StartDate        *time.Time
	EndDate          *time.Time
	AcademicHours    *int
	IssuedAt         time.Time
	Active           bool
	TemplateFile     string
	DesignID         *int64
	ConfigSnapshot   string
	BackgroundUsed   string
	PDF              []byte
	PDFGeneratedAt   *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NormalizeCode upper-cases and trims a verification code so lookups are
// case-insensitive regardless of how the code was typed.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

package batch

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/xuri/excelize/v2"

	"github.com/iliyamo/certificate-issuance/internal/utils"
)

// Certificate types accepted after synonym mapping.
const (
	TypeAsistente   = "asistente"
	TypePonente     = "ponente"
	TypeOrganizador = "organizador"
	TypeEstudiante  = "estudiante"
)

var typeSynonyms = map[string]string{
	"asistente": TypeAsistente, "asistentes": TypeAsistente, "participante": TypeAsistente, "oyente": TypeAsistente,
	"ponente": TypePonente, "expositor": TypePonente, "expositora": TypePonente, "conferencista": TypePonente, "ponencia": TypePonente,
	"organizador": TypeOrganizador, "organizadora": TypeOrganizador, "comiteorganizador": TypeOrganizador,
	"estudiante": TypeEstudiante, "alumno": TypeEstudiante, "alumna": TypeEstudiante,
}

// NormalizeType maps free text onto the certificate type enum.
func NormalizeType(s string) (string, bool) {
	t, ok := typeSynonyms[utils.FoldKey(s)]
	return t, ok
}

var dniPattern = regexp.MustCompile(`^\d{8}$`)

var validate = validator.New()

// Record is a validated row ready to be issued.
type Record struct {
	Index            int
	Row              int
	DNI              string
	ApellidoPaterno  string
	ApellidoMaterno  string
	Nombres          string
	CertificateType  string
	Role             string
	EventName        string
	EventDescription string
	Email            string
	StartDate        *time.Time
	EndDate          *time.Time
	Hours            *int
}

// FullName is "Nombres ApellidoPaterno ApellidoMaterno" without the
// blanks of missing parts.
func (r *Record) FullName() string {
	return strings.Join(strings.Fields(strings.Join([]string{r.Nombres, r.ApellidoPaterno, r.ApellidoMaterno}, " ")), " ")
}

// RowError carries every problem found in one row.
type RowError struct {
	Index    int
	Row      int
	DNI      string
	Messages []string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("Fila %d: %s", e.Row, strings.Join(e.Messages, "; "))
}

// ValidateRow checks one row independently of the others.
func ValidateRow(row Row) (*Record, *RowError) {
	rec := &Record{
		Index:            row.Index,
		Row:              row.SheetRow(),
		DNI:              row.Get(ColDNI),
		ApellidoPaterno:  row.Get(ColApellidoPaterno),
		ApellidoMaterno:  row.Get(ColApellidoMaterno),
		Nombres:          row.Get(ColNombres),
		Role:             row.Get(ColRol),
		EventName:        row.Get(ColNombreEvento),
		EventDescription: row.Get(ColDescripcion),
		Email:            row.Get(ColCorreo),
	}
	var msgs []string
	fail := func(format string, args ...any) { msgs = append(msgs, fmt.Sprintf(format, args...)) }

	if !dniPattern.MatchString(rec.DNI) {
		fail("DNI inválido %q (debe tener 8 dígitos)", rec.DNI)
	}
	if rec.Nombres == "" {
		fail("nombres es obligatorio")
	}
	if rec.ApellidoPaterno == "" {
		fail("apellido paterno es obligatorio")
	}
	if rec.EventName == "" {
		fail("nombre del evento es obligatorio")
	}
	if t, ok := NormalizeType(row.Get(ColTipoCertificado)); ok {
		rec.CertificateType = t
	} else {
		fail("tipo de certificado no reconocido %q", row.Get(ColTipoCertificado))
	}

	var err error
	if rec.StartDate, err = ParseDate(row.Get(ColFechaInicio)); err != nil {
		fail("fecha de inicio inválida %q", row.Get(ColFechaInicio))
	}
	if rec.EndDate, err = ParseDate(row.Get(ColFechaFin)); err != nil {
		fail("fecha de fin inválida %q", row.Get(ColFechaFin))
	}
	if rec.StartDate != nil && rec.EndDate != nil && rec.StartDate.After(*rec.EndDate) {
		fail("la fecha de inicio es posterior a la fecha de fin")
	}
	if rec.Hours, err = ParseHours(row.Get(ColHorasAcademicas)); err != nil {
		fail("horas académicas inválidas %q (entero positivo)", row.Get(ColHorasAcademicas))
	}
	if rec.Email != "" {
		if err := validate.Var(rec.Email, "email"); err != nil {
			fail("correo electrónico inválido %q", rec.Email)
		}
	}

	if len(msgs) > 0 {
		return nil, &RowError{Index: row.Index, Row: row.SheetRow(), DNI: rec.DNI, Messages: msgs}
	}
	return rec, nil
}

var dateLayouts = []string{"2006-01-02", "2/1/2006", "2-1-2006", "2006/1/2", "2006-01-02 15:04:05", time.RFC3339}

// ParseDate accepts ISO dates, DD/MM/YYYY and Excel serial numbers. A
// blank cell is nil with no error.
func ParseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			return &d, nil
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial >= 1 && serial < 2958466 {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err == nil {
			d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			return &d, nil
		}
	}
	return nil, fmt.Errorf("unrecognized date %q", s)
}

// ParseHours accepts a positive integer, also written as "40.0". Blank
// is nil with no error.
func ParseHours(s string) (*int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 || f != float64(int(f)) {
		return nil, fmt.Errorf("invalid hours %q", s)
	}
	n := int(f)
	return &n, nil
}

// Package batch turns an uploaded spreadsheet into certificates: it
// parses and normalizes rows, validates each one independently and
// issues the valid ones inside a single transaction.
package batch

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	"github.com/iliyamo/certificate-issuance/internal/utils"
)

// Canonical column names.
const (
	ColDNI             = "dni"
	ColApellidoPaterno = "apellidoPaterno"
	ColApellidoMaterno = "apellidoMaterno"
	ColNombres         = "nombres"
	ColTipoCertificado = "tipoCertificado"
	ColNombreEvento    = "nombreEvento"
	ColFechaInicio     = "fechaInicio"
	ColFechaFin        = "fechaFin"
	ColHorasAcademicas = "horasAcademicas"
	ColCorreo          = "correoElectronico"
	ColRol             = "rol"
	ColDescripcion     = "descripcionEvento"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported spreadsheet format")
	ErrEmptySheet        = errors.New("spreadsheet has no header row")
	ErrTooManyRows       = errors.New("spreadsheet exceeds the row limit")
	ErrMissingColumns    = errors.New("spreadsheet is missing required columns")
)

// headerSynonyms maps folded header text onto canonical columns.
var headerSynonyms = map[string]string{
	"dni": ColDNI, "documento": ColDNI, "nrodni": ColDNI, "numerodni": ColDNI,
	"nrodocumento": ColDNI, "numerodedocumento": ColDNI,

	"apellidopaterno": ColApellidoPaterno, "paterno": ColApellidoPaterno, "appaterno": ColApellidoPaterno,
	"apellidomaterno": ColApellidoMaterno, "materno": ColApellidoMaterno, "apmaterno": ColApellidoMaterno,
	"nombres": ColNombres, "nombre": ColNombres,

	"tipocertificado": ColTipoCertificado, "tipodecertificado": ColTipoCertificado, "tipo": ColTipoCertificado,
	"nombreevento": ColNombreEvento, "nombredelevento": ColNombreEvento, "evento": ColNombreEvento,
	"fechainicio": ColFechaInicio, "fechadeinicio": ColFechaInicio, "inicio": ColFechaInicio,
	"fechafin": ColFechaFin, "fechadefin": ColFechaFin, "fechafinal": ColFechaFin, "fin": ColFechaFin,
	"horasacademicas": ColHorasAcademicas, "horas": ColHorasAcademicas, "horaslectivas": ColHorasAcademicas,
	"correoelectronico": ColCorreo, "correo": ColCorreo, "email": ColCorreo,

	"rol": ColRol, "descripcionevento": ColDescripcion, "descripcion": ColDescripcion,
}

// RequiredColumns must be present in the header row.
var RequiredColumns = []string{ColDNI, ColApellidoPaterno, ColNombres, ColTipoCertificado, ColNombreEvento}

// NormalizeHeader maps a header cell to its canonical column, or "".
func NormalizeHeader(h string) string {
	return headerSynonyms[utils.FoldKey(h)]
}

// Row is one data row keyed by canonical column. Index is the 0-based
// position below the sheet's first line, so the sheet row number is
// Index+2 even when blank lines precede the header.
type Row struct {
	Index  int
	Fields map[string]string
}

// Get returns the trimmed value of a canonical column.
func (r Row) Get(col string) string { return strings.TrimSpace(r.Fields[col]) }

// SheetRow is the 1-based spreadsheet row number.
func (r Row) SheetRow() int { return r.Index + 2 }

// ParseFile reads a .xlsx, .xls or .csv file. Blank rows are skipped but
// keep their position, so reported row numbers match the sheet.
// maxRows <= 0 disables the cap.
func ParseFile(path string, maxRows int) ([]Row, error) {
	var (
		table [][]string
		err   error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		table, err = readXLSX(path)
	case ".xls":
		table, err = readXLS(path)
	case ".csv", ".txt":
		table, err = readCSVFile(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	return buildRows(table, maxRows)
}

func buildRows(table [][]string, maxRows int) ([]Row, error) {
	headerAt := -1
	for i, rec := range table {
		if !blank(rec) {
			headerAt = i
			break
		}
	}
	if headerAt < 0 {
		return nil, ErrEmptySheet
	}
	header := make([]string, len(table[headerAt]))
	present := map[string]bool{}
	for i, h := range table[headerAt] {
		header[i] = NormalizeHeader(h)
		if header[i] != "" {
			present[header[i]] = true
		}
	}
	var missing []string
	for _, col := range RequiredColumns {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	rows := make([]Row, 0, len(table)-headerAt-1)
	for i, rec := range table[headerAt+1:] {
		if blank(rec) {
			continue
		}
		fields := make(map[string]string, len(header))
		for c, col := range header {
			if col == "" || c >= len(rec) {
				continue
			}
			if _, seen := fields[col]; seen && strings.TrimSpace(rec[c]) == "" {
				continue
			}
			fields[col] = rec[c]
		}
		rows = append(rows, Row{Index: headerAt + i, Fields: fields})
		if maxRows > 0 && len(rows) > maxRows {
			return nil, fmt.Errorf("%w (%d)", ErrTooManyRows, maxRows)
		}
	}
	return rows, nil
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// readXLSX reads the first sheet with raw cell values so dates arrive as
// Excel serials instead of locale-formatted text.
func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptySheet
	}
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read xlsx: %w", err)
	}
	return rows, nil
}

func readXLS(path string) ([][]string, error) {
	wb, err := xls.Open(path, "utf-8")
	if err != nil {
		return nil, fmt.Errorf("open xls: %w", err)
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, ErrEmptySheet
	}
	var out [][]string
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			out = append(out, nil)
			continue
		}
		rec := make([]string, 0, row.LastCol())
		for c := 0; c < row.LastCol(); c++ {
			rec = append(rec, row.Col(c))
		}
		out = append(out, rec)
	}
	return out, nil
}

func readCSVFile(path string) ([][]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	return ReadCSV(bytes.NewReader(raw))
}

// ReadCSV parses comma or semicolon separated text. The separator is
// taken from whichever appears more often in the first line; a UTF-8 BOM
// is dropped.
func ReadCSV(r io.Reader) ([][]string, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))
	first := raw
	if i := bytes.IndexByte(raw, '\n'); i >= 0 {
		first = raw[:i]
	}
	cr := csv.NewReader(bytes.NewReader(raw))
	if bytes.Count(first, []byte(";")) > bytes.Count(first, []byte(",")) {
		cr.Comma = ';'
	}
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	var out [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		// encoding/csv skips empty lines; pad them back so positions match the file.
		line, _ := cr.FieldPos(0)
		for len(out) < line-1 {
			out = append(out, nil)
		}
		out = append(out, rec)
	}
}

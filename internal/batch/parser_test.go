package batch

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNormalizeHeader(t *testing.T) {
	cases := map[string]string{
		"DNI":                 ColDNI,
		" Nro. DNI ":          ColDNI,
		"Apellido Paterno":    ColApellidoPaterno,
		"apellido_materno":    ColApellidoMaterno,
		"NOMBRES":             ColNombres,
		"Tipo de Certificado": ColTipoCertificado,
		"Nombre del Evento":   ColNombreEvento,
		"Fecha de Inicio":     ColFechaInicio,
		"Horas Académicas":    ColHorasAcademicas,
		"Correo Electrónico":  ColCorreo,
		"Descripción":         ColDescripcion,
		"columna desconocida": "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeHeader(in), in)
	}
}

func TestReadCSV_SemicolonAndBOM(t *testing.T) {
	table, err := ReadCSV(strings.NewReader("\xef\xbb\xbfDNI;Nombres;Evento\n12345678;Ana, María;Congreso\n"))
	require.NoError(t, err)
	require.Len(t, table, 2)
	assert.Equal(t, []string{"DNI", "Nombres", "Evento"}, table[0])
	assert.Equal(t, "Ana, María", table[1][1])
}

func TestParseFile_CSVKeepsRowPositions(t *testing.T) {
	path := writeFile(t, "lote.csv", strings.Join([]string{
		"DNI,Apellido Paterno,Nombres,Tipo,Evento,Extra",
		"12345678,Quispe,Ana,asistente,Congreso,x",
		",,,,,",
		"87654321,Mamani,Luis,ponente,Congreso,y",
	}, "\n"))

	rows, err := ParseFile(path, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 2, rows[0].SheetRow())
	assert.Equal(t, 4, rows[1].SheetRow())
	assert.Equal(t, "87654321", rows[1].Get(ColDNI))
	assert.Equal(t, "ponente", rows[1].Get(ColTipoCertificado))
	_, extra := rows[0].Fields["Extra"]
	assert.False(t, extra)
}

func TestParseFile_LeadingBlankLinesKeepSheetRows(t *testing.T) {
	path := writeFile(t, "lote.csv", strings.Join([]string{
		"",
		",,,,",
		"DNI,Apellido Paterno,Nombres,Tipo,Evento",
		"12345678,Quispe,Ana,asistente,Congreso",
		"",
		"87654321,Mamani,Luis,ponente,Congreso",
	}, "\n"))

	rows, err := ParseFile(path, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 4, rows[0].SheetRow())
	assert.Equal(t, 6, rows[1].SheetRow())
	assert.Equal(t, "87654321", rows[1].Get(ColDNI))
}

func TestParseFile_Errors(t *testing.T) {
	_, err := ParseFile(writeFile(t, "lote.pdf", "x"), 0)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = ParseFile(writeFile(t, "vacio.csv", "\n,,\n"), 0)
	assert.ErrorIs(t, err, ErrEmptySheet)

	_, err = ParseFile(writeFile(t, "faltan.csv", "DNI,Nombres\n12345678,Ana\n"), 0)
	require.ErrorIs(t, err, ErrMissingColumns)
	assert.Contains(t, err.Error(), ColApellidoPaterno)
	assert.Contains(t, err.Error(), ColNombreEvento)

	body := "DNI,Apellido Paterno,Nombres,Tipo,Evento\n" + strings.Repeat("12345678,Q,A,asistente,E\n", 4)
	_, err = ParseFile(writeFile(t, "grande.csv", body), 3)
	assert.ErrorIs(t, err, ErrTooManyRows)
	rows, err := ParseFile(writeFile(t, "justo.csv", body), 4)
	require.NoError(t, err)
	assert.Len(t, rows, 4)
}

func TestParseFile_XLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	data := [][]any{
		{"DNI", "Apellido Paterno", "Apellido Materno", "Nombres", "Tipo de Certificado", "Nombre del Evento", "Fecha Inicio", "Horas"},
		{"12345678", "Quispe", "Mamani", "Ana", "Asistente", "Congreso", 45566, 40},
	}
	for i, row := range data {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	path := filepath.Join(t.TempDir(), "lote.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	rows, err := ParseFile(path, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Mamani", rows[0].Get(ColApellidoMaterno))
	assert.Equal(t, "45566", rows[0].Get(ColFechaInicio))

	rec, rowErr := ValidateRow(rows[0])
	require.Nil(t, rowErr)
	assert.Equal(t, "2024-10-01", rec.StartDate.Format("2006-01-02"))
	assert.Equal(t, 40, *rec.Hours)
	assert.Equal(t, "Ana Quispe Mamani", rec.FullName())
}

package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRow() Row {
	return Row{Index: 0, Fields: map[string]string{
		ColDNI:             "12345678",
		ColApellidoPaterno: "Quispe",
		ColNombres:         "Ana",
		ColTipoCertificado: "Participante",
		ColNombreEvento:    "Congreso",
		ColFechaInicio:     "01/10/2024",
		ColFechaFin:        "2024-10-15",
		ColHorasAcademicas: "40.0",
		ColCorreo:          "ana@example.edu",
	}}
}

func TestValidateRow_Valid(t *testing.T) {
	rec, rowErr := ValidateRow(validRow())
	require.Nil(t, rowErr)
	assert.Equal(t, TypeAsistente, rec.CertificateType)
	assert.Equal(t, "Ana Quispe", rec.FullName())
	assert.Equal(t, "2024-10-01", rec.StartDate.Format("2006-01-02"))
	assert.Equal(t, 40, *rec.Hours)
	assert.Equal(t, 2, rec.Row)
}

func TestValidateRow_OptionalBlanks(t *testing.T) {
	row := validRow()
	row.Fields[ColFechaInicio] = ""
	row.Fields[ColFechaFin] = ""
	row.Fields[ColHorasAcademicas] = " "
	row.Fields[ColCorreo] = ""
	rec, rowErr := ValidateRow(row)
	require.Nil(t, rowErr)
	assert.Nil(t, rec.StartDate)
	assert.Nil(t, rec.EndDate)
	assert.Nil(t, rec.Hours)
}

func TestValidateRow_CollectsEveryProblem(t *testing.T) {
	row := validRow()
	row.Index = 2
	row.Fields[ColDNI] = "1234567"
	row.Fields[ColTipoCertificado] = "invitado"
	row.Fields[ColHorasAcademicas] = "-3"
	row.Fields[ColCorreo] = "no-es-correo"
	row.Fields[ColFechaInicio] = "2024-11-01"

	rec, rowErr := ValidateRow(row)
	assert.Nil(t, rec)
	require.NotNil(t, rowErr)
	assert.Equal(t, 4, rowErr.Row)
	assert.Len(t, rowErr.Messages, 5)
	assert.Contains(t, rowErr.Error(), "Fila 4: DNI inválido")
}

func TestNormalizeType(t *testing.T) {
	for in, want := range map[string]string{
		"ASISTENTE": TypeAsistente, "Expositor": TypePonente, "Comité Organizador": TypeOrganizador, "alumna": TypeEstudiante,
	} {
		got, ok := NormalizeType(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := NormalizeType("")
	assert.False(t, ok)
}

func TestParseDateAndHours(t *testing.T) {
	d, err := ParseDate("45566")
	require.NoError(t, err)
	assert.Equal(t, "2024-10-01", d.Format("2006-01-02"))

	_, err = ParseDate("mañana")
	assert.Error(t, err)

	h, err := ParseHours("8")
	require.NoError(t, err)
	assert.Equal(t, 8, *h)
	for _, bad := range []string{"0", "1.5", "ocho"} {
		_, err := ParseHours(bad)
		assert.Error(t, err, bad)
	}
}

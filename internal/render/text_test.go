package render

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestPeriodPhrase(t *testing.T) {
	cases := []struct {
		name       string
		start, end *time.Time
		want       string
	}{
		{"same month", date(2024, 10, 1), date(2024, 10, 15), "del 1 al 15 de octubre del 2024"},
		{"spanning months", date(2024, 9, 28), date(2024, 10, 3), "del 28 de septiembre al 3 de octubre del 2024"},
		{"spanning years", date(2023, 12, 30), date(2024, 1, 2), "del 30 de diciembre al 2 de enero del 2024"},
		{"same month other year", date(2023, 5, 1), date(2024, 5, 3), "del 1 de mayo al 3 de mayo del 2024"},
		{"single day", date(2024, 6, 5), date(2024, 6, 5), "el 5 de junio del 2024"},
		{"start only", date(2024, 2, 29), nil, "el 29 de febrero del 2024"},
		{"none", nil, nil, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, PeriodPhrase(tc.start, tc.end))
		})
	}
}

func TestPeriodPhrase_SameMonthAllDays(t *testing.T) {
	for d := 1; d <= 30; d++ {
		got := PeriodPhrase(date(2024, 11, 1), date(2024, 11, d))
		if d == 1 {
			assert.Equal(t, "el 1 de noviembre del 2024", got)
			continue
		}
		assert.Regexp(t, `^del 1 al \d{1,2} de noviembre del 2024$`, got)
	}
}

func TestHoursSentence(t *testing.T) {
	h := 40
	one := 1
	assert.Equal(t, ", con una duración de 40 horas.", HoursSentence(&h))
	assert.Equal(t, ", con una duración de 1 hora.", HoursSentence(&one))
	assert.Equal(t, "", HoursSentence(nil))
	assert.Equal(t, "Con una duración de 40 horas.", HoursText(&h))
	assert.Equal(t, "Realizado del 1 al 15 de octubre del 2024, con una duración de 40 horas.",
		EventPeriodLine(date(2024, 10, 1), date(2024, 10, 15), &h))
	assert.Equal(t, "Realizado del 1 al 15 de octubre del 2024.",
		EventPeriodLine(date(2024, 10, 1), date(2024, 10, 15), nil))
}

func TestIssuanceLine(t *testing.T) {
	now := time.Date(2025, 3, 9, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, "Puno, 20 de octubre del 2024", IssuanceLine("Puno", *date(2024, 10, 20)))
	assert.Equal(t, "20 de octubre del 2024", IssuanceLine(" ", *date(2024, 10, 20)))

	assert.Equal(t, *date(2024, 1, 1), IssuanceDate(*date(2024, 1, 1), date(2024, 2, 2), now))
	assert.Equal(t, *date(2024, 2, 2), IssuanceDate(time.Time{}, date(2024, 2, 2), now))
	assert.Equal(t, now, IssuanceDate(time.Time{}, nil, now))
}

func TestRoleLabel(t *testing.T) {
	assert.Equal(t, "Ponente principal", RoleLabel(" Ponente principal ", "asistente"))
	assert.Equal(t, "Asistente", RoleLabel("", "ASISTENTE"))
	assert.Equal(t, "Participante", RoleLabel("", "ponente"))
	assert.Equal(t, "", MonthName(13))
}

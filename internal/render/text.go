package render

import (
	"fmt"
	"strings"
	"time"
)

var months = [12]string{
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
}

// MonthName returns the lower-case Spanish month name.
func MonthName(m time.Month) string {
	if m < time.January || m > time.December {
		return ""
	}
	return months[m-1]
}

// PeriodPhrase renders the event period in Spanish:
//
//	same month and year:  "del 1 al 15 de octubre del 2024"
//	otherwise:            "del 28 de septiembre al 3 de octubre del 2024"
//
// A single known date (or start == end) renders as "el 5 de junio del 2024".
func PeriodPhrase(start, end *time.Time) string {
	switch {
	case start == nil && end == nil:
		return ""
	case start == nil:
		return singleDay(*end)
	case end == nil:
		return singleDay(*start)
	}
	s, e := *start, *end
	if sameDay(s, e) {
		return singleDay(s)
	}
	if s.Month() == e.Month() && s.Year() == e.Year() {
		return fmt.Sprintf("del %d al %d de %s del %d", s.Day(), e.Day(), MonthName(e.Month()), e.Year())
	}
	return fmt.Sprintf("del %d de %s al %d de %s del %d",
		s.Day(), MonthName(s.Month()), e.Day(), MonthName(e.Month()), e.Year())
}

func singleDay(t time.Time) string {
	return fmt.Sprintf("el %d de %s del %d", t.Day(), MonthName(t.Month()), t.Year())
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

// HoursSentence is the tail appended to the period phrase, or "" when the
// hours are unknown.
func HoursSentence(hours *int) string {
	if hours == nil || *hours <= 0 {
		return ""
	}
	unit := "horas"
	if *hours == 1 {
		unit = "hora"
	}
	return fmt.Sprintf(", con una duración de %d %s.", *hours, unit)
}

// HoursText is HoursSentence as a standalone line.
func HoursText(hours *int) string {
	s := strings.TrimPrefix(HoursSentence(hours), ", ")
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// EventPeriodLine joins period and hours the way the fallback layout and
// the "periodo" field print them.
func EventPeriodLine(start, end *time.Time, hours *int) string {
	period := PeriodPhrase(start, end)
	tail := HoursSentence(hours)
	switch {
	case period == "" && tail == "":
		return ""
	case period == "":
		return HoursText(hours)
	case tail == "":
		return "Realizado " + period + "."
	}
	return "Realizado " + period + tail
}

// IssuanceDate picks the date printed on the certificate: issuance date,
// else the period end, else now.
func IssuanceDate(issued time.Time, end *time.Time, now time.Time) time.Time {
	if !issued.IsZero() {
		return issued
	}
	if end != nil && !end.IsZero() {
		return *end
	}
	return now
}

// IssuanceLine renders "Puno, 20 de octubre del 2024".
func IssuanceLine(city string, t time.Time) string {
	date := fmt.Sprintf("%d de %s del %d", t.Day(), MonthName(t.Month()), t.Year())
	if city = strings.TrimSpace(city); city == "" {
		return date
	}
	return city + ", " + date
}

// RoleLabel returns the explicit role, or infers one from the
// certificate type.
func RoleLabel(role, certificateType string) string {
	if r := strings.TrimSpace(role); r != "" {
		return r
	}
	if strings.Contains(strings.ToLower(certificateType), "asis") {
		return "Asistente"
	}
	return "Participante"
}

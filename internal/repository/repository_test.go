package repository

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/certificate-issuance/internal/database"
	"github.com/iliyamo/certificate-issuance/internal/model"
)

func openStore(t *testing.T, layout database.Layout) (*sql.DB, *SchemaProber) {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "certs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db, database.SQLite, layout))
	return db, NewSchemaProber(db, database.SQLite, time.Minute)
}

func sampleCertificate(code, dni string) *model.Certificate {
	start := time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 10, 15, 0, 0, 0, 0, time.UTC)
	hours := 40
	return &model.Certificate{
		VerificationCode: code,
		DNI:              dni,
		FullName:         "Ana Quispe Mamani",
		CertificateType:  "asistente",
		EventName:        "Congreso de Ingenieria",
		StartDate:        &start,
		EndDate:          &end,
		AcademicHours:    &hours,
		IssuedAt:         time.Date(2024, 10, 20, 12, 0, 0, 0, time.UTC),
		Active:           true,
	}
}

package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/certificate-issuance/internal/database"
	"github.com/iliyamo/certificate-issuance/internal/model"
)

func insert(t *testing.T, repo *CertificateRepo, cert *model.Certificate) error {
	t.Helper()
	ctx := context.Background()
	caps, err := repo.Capabilities(ctx)
	require.NoError(t, err)
	return database.Tx(ctx, repo.DB(), func(tx *sql.Tx) error {
		return repo.InsertTx(ctx, tx, caps, cert)
	})
}

func TestCertificateRepo_RoundTripCurrentSchema(t *testing.T) {
	ctx := context.Background()
	db, probe := openStore(t, database.LayoutCurrent)
	repo := NewCertificateRepo(db, probe)

	design := int64(3)
	cert := sampleCertificate("ab12cd", "12345678")
	cert.DesignID = &design
	cert.ConfigSnapshot = `{"titulo":{"x":1,"y":2}}`
	cert.PDF = []byte("%PDF-1.3 test")
	at := time.Date(2024, 10, 20, 12, 0, 0, 0, time.UTC)
	cert.PDFGeneratedAt = &at
	require.NoError(t, insert(t, repo, cert))
	require.NotZero(t, cert.ID)

	got, err := repo.GetByCode(ctx, " AB12cd", true)
	require.NoError(t, err)
	assert.Equal(t, "AB12CD", got.VerificationCode)
	assert.Equal(t, cert.FullName, got.FullName)
	require.NotNil(t, got.StartDate)
	assert.True(t, got.StartDate.Equal(*cert.StartDate))
	require.NotNil(t, got.AcademicHours)
	assert.Equal(t, 40, *got.AcademicHours)
	require.NotNil(t, got.DesignID)
	assert.Equal(t, design, *got.DesignID)
	assert.Equal(t, cert.PDF, got.PDF)
	assert.True(t, got.Active)

	noPDF, err := repo.GetByID(ctx, cert.ID, false)
	require.NoError(t, err)
	assert.Nil(t, noPDF.PDF)
	assert.NotNil(t, noPDF.PDFGeneratedAt)

	_, err = repo.GetByCode(ctx, "ZZZZZZ", false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCertificateRepo_LegacySchemaSkipsOptionalColumns(t *testing.T) {
	ctx := context.Background()
	db, probe := openStore(t, database.LayoutLegacy)
	repo := NewCertificateRepo(db, probe)

	design := int64(9)
	cert := sampleCertificate("QWERTY", "87654321")
	cert.DesignID = &design
	cert.TemplateFile = model.TemplateFilename(design, "png")
	cert.PDF = []byte("%PDF-")
	require.NoError(t, insert(t, repo, cert))

	got, err := repo.GetByID(ctx, cert.ID, true)
	require.NoError(t, err)
	assert.Nil(t, got.DesignID, "legacy store has no diseno_id")
	assert.Nil(t, got.PDF)
	id, ok := model.DesignIDFromFilename(got.TemplateFile)
	assert.True(t, ok)
	assert.Equal(t, design, id)
}

func TestCertificateRepo_DuplicateSignals(t *testing.T) {
	ctx := context.Background()
	db, probe := openStore(t, database.LayoutCurrent)
	repo := NewCertificateRepo(db, probe)

	require.NoError(t, insert(t, repo, sampleCertificate("CODE01", "11111111")))

	exists, err := codeExists(ctx, db, "code01")
	require.NoError(t, err)
	assert.True(t, exists)

	err = insert(t, repo, sampleCertificate("code01", "22222222"))
	assert.ErrorIs(t, err, ErrDuplicateCode)

	err = insert(t, repo, sampleCertificate("CODE02", "11111111"))
	assert.ErrorIs(t, err, ErrDuplicateActive)

	active, err := repo.ActiveExistsForEvent(ctx, "11111111", "Congreso de Ingenieria")
	require.NoError(t, err)
	assert.True(t, active)
}

func TestCertificateRepo_SoftDeleteFreesEventAndKeepsCode(t *testing.T) {
	ctx := context.Background()
	db, probe := openStore(t, database.LayoutCurrent)
	repo := NewCertificateRepo(db, probe)

	first := sampleCertificate("FIRST1", "33333333")
	require.NoError(t, insert(t, repo, first))
	require.NoError(t, repo.SetActive(ctx, first.ID, false))

	active, err := repo.ActiveExistsForEvent(ctx, "33333333", first.EventName)
	require.NoError(t, err)
	assert.False(t, active)

	exists, err := codeExists(ctx, db, "FIRST1")
	require.NoError(t, err)
	assert.True(t, exists, "inactive certificates still own their code")

	require.NoError(t, insert(t, repo, sampleCertificate("SECOND", "33333333")))

	require.NoError(t, repo.Delete(ctx, first.ID))
	assert.ErrorIs(t, repo.Delete(ctx, first.ID), ErrNotFound)
}

func TestCertificateRepo_UpdateRender(t *testing.T) {
	ctx := context.Background()
	db, probe := openStore(t, database.LayoutCurrent)
	repo := NewCertificateRepo(db, probe)

	cert := sampleCertificate("RENDER", "44444444")
	require.NoError(t, insert(t, repo, cert))

	design := int64(5)
	at := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.UpdateRender(ctx, cert.ID, RenderUpdate{
		DesignID:     &design,
		TemplateFile: model.TemplateFilename(design, "png"),
		Config:       "{}",
		Background:   "fondo.png",
		PDF:          []byte("%PDF-new"),
		RenderedAt:   at,
	}))

	got, err := repo.GetByID(ctx, cert.ID, true)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-new"), got.PDF)
	assert.Equal(t, "fondo.png", got.BackgroundUsed)
	assert.Equal(t, "diseno_5.png", got.TemplateFile)
	require.NotNil(t, got.PDFGeneratedAt)
	assert.True(t, got.PDFGeneratedAt.Equal(at))

	assert.ErrorIs(t, repo.UpdateRender(ctx, 999, RenderUpdate{}), ErrNotFound)
}

func TestTemplateRepo_ActivateIsExclusive(t *testing.T) {
	ctx := context.Background()
	for name, layout := range map[string]database.Layout{"current": database.LayoutCurrent, "legacy": database.LayoutLegacy} {
		t.Run(name, func(t *testing.T) {
			db, probe := openStore(t, layout)
			repo := NewTemplateRepo(db, probe)

			a := &model.Template{Name: "A", Config: model.TemplateConfig{}}
			b := &model.Template{Name: "B", Config: model.TemplateConfig{}}
			require.NoError(t, repo.Create(ctx, a))
			require.NoError(t, repo.Create(ctx, b))

			require.NoError(t, repo.Activate(ctx, a.ID))
			require.NoError(t, repo.Activate(ctx, b.ID))

			list, err := repo.List(ctx)
			require.NoError(t, err)
			active := 0
			for _, tpl := range list {
				if tpl.Active {
					active++
					assert.Equal(t, b.ID, tpl.ID)
				}
			}
			assert.Equal(t, 1, active)

			got, err := repo.Active(ctx)
			require.NoError(t, err)
			assert.Equal(t, b.ID, got.ID)

			assert.ErrorIs(t, repo.Activate(ctx, 999), ErrNotFound)
			got, err = repo.Active(ctx)
			require.NoError(t, err)
			assert.Equal(t, b.ID, got.ID, "failed activation rolls back the deactivate-all")
		})
	}
}

func TestTemplateRepo_MalformedStoredConfigStillLoads(t *testing.T) {
	ctx := context.Background()
	db, probe := openStore(t, database.LayoutCurrent)
	repo := NewTemplateRepo(db, probe)
	now := time.Now().UTC()
	res, err := db.Exec(`INSERT INTO disenos_certificados (nombre, activo, campos_json, created_at, updated_at) VALUES ('roto', 0, '{"titulo":', ?, ?)`, now, now)
	require.NoError(t, err)
	id, _ := res.LastInsertId()

	tpl, err := repo.Get(ctx, id)
	assert.ErrorIs(t, err, ErrInvalidStoredConfig)
	require.NotNil(t, tpl)
	assert.Empty(t, tpl.Config)

	deleted, err := repo.Delete(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "roto", deleted.Name)
}

func TestUploadRepo_MarkProcessedOnce(t *testing.T) {
	ctx := context.Background()
	db, _ := openStore(t, database.LayoutCurrent)
	repo := NewUploadRepo(db)

	u := &model.BatchUpload{Filename: "a.csv", OriginalName: "lista.csv"}
	require.NoError(t, repo.Create(ctx, u))
	markTx := func(id int64, n int, log string) error {
		tx, err := db.BeginTx(ctx, nil)
		require.NoError(t, err)
		defer func() { _ = tx.Rollback() }()
		if err := repo.MarkProcessedTx(ctx, tx, id, n, log); err != nil {
			return err
		}
		return tx.Commit()
	}
	require.NoError(t, markTx(u.ID, 8, "Fila 3: DNI invalido"))

	got, err := repo.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.Processed)
	assert.Equal(t, 8, got.NumCertificates)
	assert.NotNil(t, got.ProcessedAt)

	assert.ErrorIs(t, markTx(u.ID, 1, ""), ErrConflict)
	assert.ErrorIs(t, markTx(404, 1, ""), ErrNotFound)
}

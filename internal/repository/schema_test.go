package repository

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/certificate-issuance/internal/database"
	"github.com/iliyamo/certificate-issuance/internal/model"
)

func TestDeriveCapabilities(t *testing.T) {
	legacy := ColumnSet{}
	for _, c := range []string{"id", "nombre", "activa", "configuracion", "fondo_certificado"} {
		legacy.Add(tableTemplates, c)
	}
	legacy.Add(tableCertificates, "codigo_verificacion")

	caps := DeriveCapabilities(legacy)
	assert.Equal(t, Capabilities{HasLegacyTemplateColumns: true, TemplateActiveColumn: "activa"}, caps)

	current := ColumnSet{}
	for _, c := range []string{"ID", "Campos_JSON", "fondo_url", "activo", "activa"} {
		current.Add("DISENOS_CERTIFICADOS", c)
	}
	for _, c := range []string{"diseno_id", "config_usada", "fondo_usado", "pdf_content", "pdf_generado_en"} {
		current.Add(tableCertificates, c)
	}
	caps = DeriveCapabilities(current)
	assert.True(t, caps.HasNewTemplateColumns)
	assert.False(t, caps.HasLegacyTemplateColumns)
	assert.Equal(t, "activo", caps.TemplateActiveColumn, "activo wins over activa")
	assert.True(t, caps.HasAuditColumns)
	assert.True(t, caps.HasDesignID)
	assert.True(t, caps.HasPDFCache)
}

func TestDeriveCapabilities_DesignIDWithoutSnapshot(t *testing.T) {
	cols := ColumnSet{}
	cols.Add(tableCertificates, "diseno_id")
	caps := DeriveCapabilities(cols)
	assert.True(t, caps.HasDesignID)
	assert.False(t, caps.HasAuditColumns)
	assert.Contains(t, CertificateColumns(caps), "diseno_id")
	assert.NotContains(t, CertificateColumns(caps), "config_usada")
}

func TestCertificateProjection_ColumnsMatchValues(t *testing.T) {
	cert := sampleCertificate("abc123", "12345678")
	for _, caps := range []Capabilities{
		{},
		{HasDesignID: true},
		{HasDesignID: true, HasAuditColumns: true},
		{HasDesignID: true, HasAuditColumns: true, HasPDFCache: true},
	} {
		assert.Len(t, CertificateValues(caps, cert), len(CertificateColumns(caps)))
	}
	assert.Equal(t, "ABC123", CertificateValues(Capabilities{}, cert)[0])
}

func TestTemplateSelectSQL_IsPureOverCapabilities(t *testing.T) {
	legacy := TemplateSelectSQL(Capabilities{HasLegacyTemplateColumns: true, TemplateActiveColumn: "activa"})
	assert.Equal(t,
		"SELECT id, nombre, activa, NULL, NULL, configuracion, fondo_certificado, created_at, updated_at FROM disenos_certificados",
		legacy)
	current := TemplateSelectSQL(Capabilities{HasNewTemplateColumns: true, TemplateActiveColumn: "activo"})
	assert.Contains(t, current, "campos_json, fondo_url, NULL, NULL")
}

func TestSchemaProber_ProbesBothLayouts(t *testing.T) {
	ctx := context.Background()

	_, legacy := openStore(t, database.LayoutLegacy)
	caps, err := legacy.Capabilities(ctx)
	require.NoError(t, err)
	assert.True(t, caps.HasLegacyTemplateColumns)
	assert.False(t, caps.HasNewTemplateColumns)
	assert.Equal(t, "activa", caps.TemplateActiveColumn)
	assert.False(t, caps.HasAuditColumns)
	assert.False(t, caps.HasPDFCache)

	_, current := openStore(t, database.LayoutCurrent)
	caps, err = current.Capabilities(ctx)
	require.NoError(t, err)
	assert.True(t, caps.HasNewTemplateColumns)
	assert.Equal(t, "activo", caps.TemplateActiveColumn)
	assert.True(t, caps.HasAuditColumns)
	assert.True(t, caps.HasPDFCache)
}

func TestSchemaProber_CachesUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	db, p := openStore(t, database.LayoutLegacy)
	caps, err := p.Capabilities(ctx)
	require.NoError(t, err)
	require.False(t, caps.HasNewTemplateColumns)

	_, err = db.Exec(`ALTER TABLE disenos_certificados ADD COLUMN campos_json TEXT NULL`)
	require.NoError(t, err)
	_, err = db.Exec(`ALTER TABLE disenos_certificados ADD COLUMN fondo_url TEXT NULL`)
	require.NoError(t, err)

	caps, err = p.Capabilities(ctx)
	require.NoError(t, err)
	assert.False(t, caps.HasNewTemplateColumns, "cached within ttl")

	p.Invalidate()
	caps, err = p.Capabilities(ctx)
	require.NoError(t, err)
	assert.True(t, caps.HasNewTemplateColumns)
	assert.True(t, caps.HasLegacyTemplateColumns)
}

// A store that carries both column pairs (mid-migration) must read the
// same configuration as a store that only has the legacy pair.
func TestTemplateRead_LegacyAndMixedSchemasAgree(t *testing.T) {
	ctx := context.Background()
	cfg, err := model.ParseTemplateConfig(`{"nombreCompleto":{"x":100,"y":200,"fontSize":28,"color":"#1a1a1a","align":"center","width":600},"codigo":{"x":10,"y":560,"visible":false}}`)
	require.NoError(t, err)

	legacyDB, legacyProbe := openStore(t, database.LayoutLegacy)
	legacyRepo := NewTemplateRepo(legacyDB, legacyProbe)
	lt := &model.Template{Name: "Congreso", Config: cfg, Background: "uploads/certificados/diseno_1.png"}
	require.NoError(t, legacyRepo.Create(ctx, lt))

	mixedDB := openMixedStore(t)
	mixedProbe := NewSchemaProber(mixedDB, database.SQLite, 0)
	mixedRepo := NewTemplateRepo(mixedDB, mixedProbe)
	// Row written before the new columns were populated.
	_, err = mixedDB.Exec(`INSERT INTO disenos_certificados (nombre, activo, configuracion, fondo_certificado, campos_json, fondo_url, created_at, updated_at)
		VALUES (?, 0, ?, ?, '{}', NULL, ?, ?)`, "Congreso", cfg.JSON(), "uploads/certificados/diseno_1.png", time.Now().UTC(), time.Now().UTC())
	require.NoError(t, err)

	fromLegacy, err := legacyRepo.Get(ctx, lt.ID)
	require.NoError(t, err)
	fromMixed, err := mixedRepo.Get(ctx, 1)
	require.NoError(t, err)

	assert.Equal(t, fromLegacy.Config, fromMixed.Config)
	assert.Equal(t, fromLegacy.Background, fromMixed.Background)

	// Writes through the repository fill both pairs.
	mt := &model.Template{Name: "Nuevo", Config: cfg, Background: "fondo.png"}
	require.NoError(t, mixedRepo.Create(ctx, mt))
	var newCfg, oldCfg string
	require.NoError(t, mixedDB.QueryRow(`SELECT campos_json, configuracion FROM disenos_certificados WHERE id = ?`, mt.ID).Scan(&newCfg, &oldCfg))
	assert.JSONEq(t, newCfg, oldCfg)
}

func openMixedStore(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "mixed.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(`CREATE TABLE disenos_certificados (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		nombre TEXT NOT NULL,
		activo INTEGER NOT NULL DEFAULT 0,
		configuracion TEXT NOT NULL,
		fondo_certificado TEXT NULL,
		campos_json TEXT NULL,
		fondo_url TEXT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE certificados (id INTEGER PRIMARY KEY AUTOINCREMENT, codigo_verificacion TEXT NOT NULL)`)
	require.NoError(t, err)
	return db
}

package batch

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/iliyamo/certificate-issuance/internal/assets"
	"github.com/iliyamo/certificate-issuance/internal/database"
	"github.com/iliyamo/certificate-issuance/internal/model"
	"github.com/iliyamo/certificate-issuance/internal/queue"
	"github.com/iliyamo/certificate-issuance/internal/render"
	"github.com/iliyamo/certificate-issuance/internal/repository"
)

const testEvent = "Congreso de Ingenieria"

type recordingPublisher struct {
	events []queue.CertificatesIssuedEvent
}

func (p *recordingPublisher) PublishIssued(_ context.Context, ev queue.CertificatesIssuedEvent) error {
	p.events = append(p.events, ev)
	return nil
}

type fixture struct {
	db        *sql.DB
	dir       string
	certs     *repository.CertificateRepo
	templates *repository.TemplateRepo
	uploads   *repository.UploadRepo
	events    *recordingPublisher
	pipeline  *Pipeline
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	dir := t.TempDir()
	db, err := database.OpenSQLite(filepath.Join(dir, "certs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db, database.SQLite, database.LayoutCurrent))

	schema := repository.NewSchemaProber(db, database.SQLite, time.Minute)
	f := &fixture{
		db:        db,
		dir:       filepath.Join(dir, "uploads"),
		certs:     repository.NewCertificateRepo(db, schema),
		templates: repository.NewTemplateRepo(db, schema),
		uploads:   repository.NewUploadRepo(db),
		events:    &recordingPublisher{},
	}
	require.NoError(t, os.MkdirAll(f.dir, 0o755))
	cfg.UploadsDir = f.dir

	log := zaptest.NewLogger(t)
	res := assets.NewResolver(dir, filepath.Join(dir, "uploads", "certificados"), filepath.Join(dir, "tmp"))
	r := render.New(render.Config{Institution: "Universidad", City: "Puno"}, res, render.NewQRGenerator("https://certs.example.edu", log), log)
	f.pipeline = NewPipeline(f.certs, f.templates, f.uploads, r, f.events, cfg, log)
	return f
}

// upload writes the rows below a standard header and registers them.
func (f *fixture) upload(t *testing.T, rows []string) (*model.BatchUpload, string) {
	t.Helper()
	name := fmt.Sprintf("lote-%d.csv", time.Now().UnixNano())
	body := "DNI;Apellido Paterno;Apellido Materno;Nombres;Tipo de Certificado;Nombre del Evento;Fecha Inicio;Fecha Fin;Horas\n" +
		strings.Join(rows, "\n") + "\n"
	path := filepath.Join(f.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	u := &model.BatchUpload{Filename: name, OriginalName: "lote.csv"}
	require.NoError(t, f.uploads.Create(context.Background(), u))
	return u, path
}

func (f *fixture) seed(t *testing.T, dni string) {
	t.Helper()
	ctx := context.Background()
	caps, err := f.certs.Capabilities(ctx)
	require.NoError(t, err)
	cert := &model.Certificate{
		VerificationCode: "SEED" + dni[:4],
		DNI:              dni,
		FullName:         "Registro Previo",
		CertificateType:  TypeAsistente,
		EventName:        testEvent,
		Active:           true,
	}
	require.NoError(t, database.Tx(ctx, f.db, func(tx *sql.Tx) error {
		return f.certs.InsertTx(ctx, tx, caps, cert)
	}))
}

func (f *fixture) count(t *testing.T) int {
	t.Helper()
	n, err := f.certs.CountByEvent(context.Background(), testEvent)
	require.NoError(t, err)
	return n
}

func row(dni, nombres string) string {
	return strings.Join([]string{dni, "Quispe", "Mamani", nombres, "asistente", testEvent, "2024-10-01", "2024-10-15", "40"}, ";")
}

func tenRows() []string {
	rows := make([]string, 10)
	for i := range rows {
		rows[i] = row(fmt.Sprintf("4000000%d", i), fmt.Sprintf("Persona %d", i))
	}
	rows[2] = row("4000002", "DNI corto")
	return rows
}

func TestProcess_MixedBatch(t *testing.T) {
	f := newFixture(t, Config{})
	f.seed(t, "40000006")
	u, path := f.upload(t, tenRows())

	report, err := f.pipeline.Process(context.Background(), u.ID)
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, report.State)
	assert.Equal(t, 10, report.Total)
	assert.Equal(t, 8, report.Created)
	require.Len(t, report.Errors, 2)
	assert.Equal(t, 4, report.Errors[0].Row)
	assert.Contains(t, report.Errors[0].Error, "DNI inválido")
	assert.Equal(t, 8, report.Errors[1].Row)
	assert.Equal(t, MsgDuplicateActive, report.Errors[1].Error)
	require.Len(t, report.Results, 10)
	for i, r := range report.Results {
		assert.Equal(t, i+2, r.Row)
	}

	// one seeded plus eight issued
	assert.Equal(t, 9, f.count(t))

	for _, r := range report.Results {
		if !r.Success {
			continue
		}
		assert.Len(t, r.VerificationCode, 8)
		cert, err := f.certs.GetByCode(context.Background(), r.VerificationCode, false)
		require.NoError(t, err)
		assert.Equal(t, r.DNI, cert.DNI)
		assert.Equal(t, 40, *cert.AcademicHours)
	}

	stored, err := f.uploads.Get(context.Background(), u.ID)
	require.NoError(t, err)
	assert.True(t, stored.Processed)
	assert.Equal(t, 8, stored.NumCertificates)
	assert.Equal(t, report.ErrorLog(), stored.ErrorLog)
	assert.Contains(t, stored.ErrorLog, "Fila 8: "+MsgDuplicateActive)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	require.Len(t, f.events.events, 1)
	ev := f.events.events[0]
	assert.Equal(t, "batch", ev.Source)
	assert.Equal(t, u.ID, ev.UploadID)
	assert.Len(t, ev.Certificates, 8)
	assert.Equal(t, 2, ev.Failed)
	assert.Equal(t, "Persona 0 Quispe Mamani", ev.Certificates[0].FullName)
}

func TestProcess_DuplicateWithinSameUpload(t *testing.T) {
	f := newFixture(t, Config{})
	u, _ := f.upload(t, []string{row("50000001", "Ana"), row("50000001", "Ana otra vez")})

	report, err := f.pipeline.Process(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, 3, report.Errors[0].Row)
}

func TestProcess_StoreFailureRollsBackEverything(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := f.db.Exec(`CREATE TRIGGER fail_insert BEFORE INSERT ON certificados
		WHEN NEW.dni = '99999999' BEGIN SELECT RAISE(ABORT, 'injected failure'); END`)
	require.NoError(t, err)

	rows := tenRows()
	rows[5] = row("99999999", "Falla")
	u, path := f.upload(t, rows)

	report, err := f.pipeline.Process(context.Background(), u.ID)
	assert.Nil(t, report)
	require.ErrorIs(t, err, ErrPipeline)
	assert.Contains(t, err.Error(), "injected failure")

	assert.Equal(t, 0, f.count(t))
	stored, err := f.uploads.Get(context.Background(), u.ID)
	require.NoError(t, err)
	assert.False(t, stored.Processed)
	assert.Equal(t, 0, stored.NumCertificates)
	_, err = os.Stat(path)
	assert.NoError(t, err, "source file kept for a retry")
	assert.Empty(t, f.events.events)

	_, err = f.db.Exec(`DROP TRIGGER fail_insert`)
	require.NoError(t, err)
	report, err = f.pipeline.Process(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, report.Created)
}

func TestProcess_AlreadyProcessed(t *testing.T) {
	f := newFixture(t, Config{})
	u, _ := f.upload(t, []string{row("60000001", "Ana")})
	_, err := f.pipeline.Process(context.Background(), u.ID)
	require.NoError(t, err)

	_, err = f.pipeline.Process(context.Background(), u.ID)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)

	_, err = f.pipeline.Process(context.Background(), 9999)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestProcess_RendersWithActiveTemplate(t *testing.T) {
	f := newFixture(t, Config{RenderPDF: true})
	ctx := context.Background()
	cfg, err := model.ParseTemplateConfig(`{"nombreCompleto": {"x": 100, "y": 200, "fontSize": 24}}`)
	require.NoError(t, err)
	tpl := &model.Template{Name: "Congreso", Config: cfg, Background: "fondo.png"}
	require.NoError(t, f.templates.Create(ctx, tpl))
	require.NoError(t, f.templates.Activate(ctx, tpl.ID))

	u, _ := f.upload(t, []string{row("70000001", "Ana")})
	report, err := f.pipeline.Process(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, 1, report.Created)

	cert, err := f.certs.GetByCode(ctx, report.Results[0].VerificationCode, true)
	require.NoError(t, err)
	require.NotNil(t, cert.DesignID)
	assert.Equal(t, tpl.ID, *cert.DesignID)
	assert.Equal(t, model.TemplateFilename(tpl.ID, ".png"), cert.TemplateFile)
	assert.Equal(t, "fondo.png", cert.BackgroundUsed)
	assert.NotEmpty(t, cert.PDF)
	assert.NotNil(t, cert.PDFGeneratedAt)
	assert.Equal(t, tpl.ID, f.events.events[0].DesignID)
}

func TestProcess_UnreadableFile(t *testing.T) {
	f := newFixture(t, Config{})
	u := &model.BatchUpload{Filename: "falta.xlsx", OriginalName: "falta.xlsx"}
	require.NoError(t, f.uploads.Create(context.Background(), u))
	_, err := f.pipeline.Process(context.Background(), u.ID)
	assert.Error(t, err)
	stored, err := f.uploads.Get(context.Background(), u.ID)
	require.NoError(t, err)
	assert.False(t, stored.Processed)
}

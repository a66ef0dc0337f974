// Package app wires the store, renderer and services shared by the HTTP
// server and the operator CLI.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/iliyamo/certificate-issuance/internal/assets"
	"github.com/iliyamo/certificate-issuance/internal/batch"
	"github.com/iliyamo/certificate-issuance/internal/config"
	"github.com/iliyamo/certificate-issuance/internal/database"
	"github.com/iliyamo/certificate-issuance/internal/queue"
	"github.com/iliyamo/certificate-issuance/internal/render"
	"github.com/iliyamo/certificate-issuance/internal/repository"
	"github.com/iliyamo/certificate-issuance/internal/service"
)

// App holds the wired components.
type App struct {
	Cfg     config.Config
	Log     *zap.Logger
	DB      *sql.DB
	Dialect database.Dialect
	Schema  *repository.SchemaProber

	Certs       *repository.CertificateRepo
	TemplateRep *repository.TemplateRepo
	UploadRep   *repository.UploadRepo

	Renderer  *render.Renderer
	Events    queue.Publisher
	Issuer    *service.Issuer
	Templates *service.Templates
	Uploads   *service.Uploads
	Pipeline  *batch.Pipeline
}

// Open connects to the configured store and builds every component.
func Open(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	var (
		db      *sql.DB
		dialect database.Dialect
		err     error
	)
	switch cfg.DBDriver {
	case "sqlite":
		dialect = database.SQLite
		db, err = database.OpenSQLite(cfg.DBPath)
	default:
		dialect = database.MySQL
		db, err = database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	if cfg.AutoMigrate {
		if err := database.Migrate(ctx, db, dialect, database.LayoutCurrent); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		log.Info("schema migrated", zap.String("dialect", string(dialect)))
	}
	return New(cfg, log, db, dialect), nil
}

// New builds the components on an open database.
func New(cfg config.Config, log *zap.Logger, db *sql.DB, dialect database.Dialect) *App {
	if log == nil {
		log = zap.NewNop()
	}
	a := &App{Cfg: cfg, Log: log, DB: db, Dialect: dialect}
	a.Schema = repository.NewSchemaProber(db, dialect, cfg.SchemaTTL)
	a.Certs = repository.NewCertificateRepo(db, a.Schema)
	a.TemplateRep = repository.NewTemplateRepo(db, a.Schema)
	a.UploadRep = repository.NewUploadRepo(db)

	resolver := assets.NewResolver(cfg.InstallRoot, cfg.AssetDir, cfg.TempDir)
	qr := render.NewQRGenerator(cfg.PublicBaseURL, log.Named("qr"))
	a.Renderer = render.New(render.Config{
		Institution:        cfg.Institution,
		City:               cfg.City,
		DefaultBackgrounds: cfg.DefaultBackgrounds,
	}, resolver, qr, log.Named("render"))

	a.Events = queue.NopPublisher{}
	if cfg.EventsEnabled {
		a.Events = queue.NewAMQPPublisher(cfg.RabbitURL, log.Named("events"))
	}

	a.Issuer = service.NewIssuer(a.Certs, a.TemplateRep, a.Renderer, a.Events, service.IssuerConfig{
		PublicBaseURL: cfg.PublicBaseURL,
		OrgCode:       cfg.OrgCode,
		ArchiveDir:    cfg.ArchiveDir,
	}, log.Named("issuer"))
	a.Templates = service.NewTemplates(a.TemplateRep, a.Renderer, cfg.AssetDir, cfg.MaxBackgroundBytes, log.Named("templates"))
	a.Uploads = service.NewUploads(a.UploadRep, a.TemplateRep, cfg.UploadsDir, cfg.MaxUploadBytes, log.Named("uploads"))
	a.Pipeline = batch.NewPipeline(a.Certs, a.TemplateRep, a.UploadRep, a.Renderer, a.Events, batch.Config{
		UploadsDir: cfg.UploadsDir,
		MaxRows:    cfg.MaxBatchRows,
		RenderPDF:  cfg.BatchRenderPDF,
	}, log.Named("batch"))
	return a
}

// Close releases the database.
func (a *App) Close() error {
	return a.DB.Close()
}

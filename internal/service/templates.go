package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/certificate-issuance/internal/model"
	"github.com/iliyamo/certificate-issuance/internal/render"
	"github.com/iliyamo/certificate-issuance/internal/repository"
)

// BackgroundURLPrefix is the public path template backgrounds are served
// and stored under.
const BackgroundURLPrefix = "/uploads/certificados/"

var backgroundExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".webp": true}

// TemplateInput is a create or update request. Config is the raw JSON
// layout; an empty string keeps the stored layout on update.
type TemplateInput struct {
	Name     string
	Config   string
	Activate bool
}

// Background is an optional uploaded image.
type Background struct {
	Filename string
	Size     int64
	Open     func() (io.ReadCloser, error)
}

// Templates administers certificate designs and their background files.
type Templates struct {
	repo     *repository.TemplateRepo
	renderer Renderer
	dir      string
	maxBytes int64
	log      *zap.Logger
}

// NewTemplates wires the template service. dir is where backgrounds are
// written; maxBytes caps each background.
func NewTemplates(repo *repository.TemplateRepo, renderer Renderer, dir string, maxBytes int64, log *zap.Logger) *Templates {
	if log == nil {
		log = zap.NewNop()
	}
	return &Templates{repo: repo, renderer: renderer, dir: dir, maxBytes: maxBytes, log: log}
}

// List returns every template.
func (s *Templates) List(ctx context.Context) ([]model.Template, error) {
	return s.repo.List(ctx)
}

// Get returns one template. A stored layout that no longer parses is
// returned empty rather than as an error.
func (s *Templates) Get(ctx context.Context, id int64) (*model.Template, error) {
	t, err := s.repo.Get(ctx, id)
	if errors.Is(err, repository.ErrInvalidStoredConfig) {
		s.log.Warn("template has an unreadable layout", zap.Int64("id", id), zap.Error(err))
		return t, nil
	}
	return t, err
}

// Create stores a template and, when bg is set, its background as
// diseno_<id>.<ext>.
func (s *Templates) Create(ctx context.Context, in TemplateInput, bg *Background) (*model.Template, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid("nombre", "es obligatorio")
	}
	cfg, err := model.ParseTemplateConfig(in.Config)
	if err != nil {
		return nil, invalid("config", "no es un JSON de configuración válido")
	}
	var staged string
	if bg != nil {
		if staged, err = s.stage(bg); err != nil {
			return nil, err
		}
		defer os.Remove(staged)
	}

	t := &model.Template{Name: name, Config: cfg}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, err
	}
	if staged != "" {
		if err := s.attach(ctx, t, staged); err != nil {
			return nil, err
		}
	}
	if in.Activate {
		if err := s.repo.Activate(ctx, t.ID); err != nil {
			return nil, err
		}
		t.Active = true
	}
	s.log.Info("template created", zap.Int64("id", t.ID), zap.String("name", t.Name))
	return t, nil
}

// Update rewrites name and layout, and the background when bg is set.
// Cached PDFs drawn from the template become stale.
func (s *Templates) Update(ctx context.Context, id int64, in TemplateInput, bg *Background) (*model.Template, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if name := strings.TrimSpace(in.Name); name != "" {
		t.Name = name
	}
	if strings.TrimSpace(in.Config) != "" {
		cfg, err := model.ParseTemplateConfig(in.Config)
		if err != nil {
			return nil, invalid("config", "no es un JSON de configuración válido")
		}
		t.Config = cfg
	}
	if bg != nil {
		staged, err := s.stage(bg)
		if err != nil {
			return nil, err
		}
		defer os.Remove(staged)
		old := t.Background
		if err := s.attach(ctx, t, staged); err != nil {
			return nil, err
		}
		if old != t.Background {
			s.removeBackground(old)
		}
	} else if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}
	if in.Activate && !t.Active {
		if err := s.repo.Activate(ctx, t.ID); err != nil {
			return nil, err
		}
		t.Active = true
	}
	return t, nil
}

// Activate makes id the only active template.
func (s *Templates) Activate(ctx context.Context, id int64) error {
	if err := s.repo.Activate(ctx, id); err != nil {
		return err
	}
	s.log.Info("template activated", zap.Int64("id", id))
	return nil
}

// Delete removes the template and its background file. Certificates
// drawn from it keep rendering with the active or built-in layout.
func (s *Templates) Delete(ctx context.Context, id int64) error {
	t, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if t != nil {
		s.removeBackground(t.Background)
	}
	s.log.Info("template deleted", zap.Int64("id", id))
	return nil
}

// Preview renders a watermarked sample certificate with template id.
func (s *Templates) Preview(ctx context.Context, id int64) ([]byte, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.renderer.Render(ctx, SampleCertificate(time.Now()), t, render.Options{Footer: true, Watermark: true})
}

// SampleCertificate is the placeholder holder used for previews.
func SampleCertificate(now time.Time) *model.Certificate {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 2)
	hours := 20
	return &model.Certificate{
		VerificationCode: "PREVIEW",
		DNI:              "00000000",
		FullName:         "Nombre Apellido Ejemplo",
		CertificateType:  "asistente",
		EventName:        "Nombre del Evento",
		StartDate:        &start,
		EndDate:          &end,
		AcademicHours:    &hours,
		IssuedAt:         now,
		Active:           true,
	}
}

// stage copies the upload to a uniquely named file in dir after checking
// its type, size and that it decodes as an image.
func (s *Templates) stage(bg *Background) (string, error) {
	ext := strings.ToLower(filepath.Ext(bg.Filename))
	if !backgroundExts[ext] {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFile, ext)
	}
	if s.maxBytes > 0 && bg.Size > s.maxBytes {
		return "", ErrTooLarge
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", err
	}
	staged := filepath.Join(s.dir, "staged-"+uuid.NewString()+ext)
	if err := copyCapped(staged, bg.Open, s.maxBytes); err != nil {
		return "", err
	}
	f, err := os.Open(staged)
	if err != nil {
		return "", err
	}
	_, err = imaging.Decode(f)
	f.Close()
	if err != nil {
		os.Remove(staged)
		return "", invalid("fondo", "no es una imagen válida")
	}
	return staged, nil
}

// attach moves a staged background to diseno_<id>.<ext> and records it.
func (s *Templates) attach(ctx context.Context, t *model.Template, staged string) error {
	name := model.TemplateFilename(t.ID, filepath.Ext(staged))
	if err := os.Rename(staged, filepath.Join(s.dir, name)); err != nil {
		return err
	}
	t.Background = BackgroundURLPrefix + name
	return s.repo.Update(ctx, t)
}

// removeBackground deletes a background this service wrote. Shared
// defaults and external URLs are left alone.
func (s *Templates) removeBackground(ref string) {
	if !strings.HasPrefix(ref, BackgroundURLPrefix) {
		return
	}
	name := filepath.Base(ref)
	if _, ok := model.DesignIDFromFilename(name); !ok {
		return
	}
	path := filepath.Join(s.dir, name)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.log.Warn("background not removed", zap.String("path", path), zap.Error(err))
	}
}

// copyCapped writes the opened stream to path, failing with ErrTooLarge
// once more than limit bytes arrive. limit <= 0 disables the cap.
func copyCapped(path string, open func() (io.ReadCloser, error), limit int64) error {
	src, err := open()
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	var r io.Reader = src
	if limit > 0 {
		r = io.LimitReader(src, limit+1)
	}
	n, err := io.Copy(dst, r)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err == nil && limit > 0 && n > limit {
		err = ErrTooLarge
	}
	if err != nil {
		os.Remove(path)
	}
	return err
}

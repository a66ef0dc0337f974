package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/certificate-issuance/internal/model"
	"github.com/iliyamo/certificate-issuance/internal/repository"
)

var spreadsheetExts = map[string]bool{".xlsx": true, ".xls": true, ".csv": true}

// Uploads stores incoming spreadsheets and records them in
// cargas_masivas for the batch pipeline.
type Uploads struct {
	repo      *repository.UploadRepo
	templates *repository.TemplateRepo
	dir       string
	maxBytes  int64
	log       *zap.Logger
}

// NewUploads wires the intake. maxBytes <= 0 disables the size cap.
func NewUploads(repo *repository.UploadRepo, templates *repository.TemplateRepo, dir string, maxBytes int64, log *zap.Logger) *Uploads {
	if log == nil {
		log = zap.NewNop()
	}
	return &Uploads{repo: repo, templates: templates, dir: dir, maxBytes: maxBytes, log: log}
}

// Save writes the spreadsheet under a uuid-based name and records an
// unprocessed upload. templateID, when set, must exist.
func (s *Uploads) Save(ctx context.Context, templateID *int64, originalName string, size int64, open func() (io.ReadCloser, error)) (*model.BatchUpload, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	if !spreadsheetExts[ext] {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFile, ext)
	}
	if s.maxBytes > 0 && size > s.maxBytes {
		return nil, ErrTooLarge
	}
	if templateID != nil {
		if _, err := s.templates.Get(ctx, *templateID); err != nil && !errors.Is(err, repository.ErrInvalidStoredConfig) {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, invalid("templateId", "no existe")
			}
			return nil, err
		}
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, err
	}
	name := uuid.NewString() + ext
	path := filepath.Join(s.dir, name)
	if err := copyCapped(path, open, s.maxBytes); err != nil {
		return nil, err
	}

	u := &model.BatchUpload{Filename: name, OriginalName: filepath.Base(originalName), DesignID: templateID}
	if err := s.repo.Create(ctx, u); err != nil {
		os.Remove(path)
		return nil, err
	}
	s.log.Info("spreadsheet stored", zap.Int64("upload_id", u.ID), zap.String("file", name), zap.String("original", u.OriginalName))
	return u, nil
}

// SaveFile is Save for a file already on disk, used by the CLI.
func (s *Uploads) SaveFile(ctx context.Context, templateID *int64, path string) (*model.BatchUpload, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	return s.Save(ctx, templateID, filepath.Base(path), st.Size(), func() (io.ReadCloser, error) { return os.Open(path) })
}

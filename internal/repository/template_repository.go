package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/certificate-issuance/internal/database"
	"github.com/iliyamo/certificate-issuance/internal/model"
)

// TemplateRepo provides access to disenos_certificados. Every statement
// is chosen from the Capabilities reported by the SchemaProber, so the
// same code reads and writes the legacy (configuracion /
// fondo_certificado / activa) and the current (campos_json / fondo_url /
// activo) layouts.
type TemplateRepo struct {
	db     *sql.DB
	schema *SchemaProber
}

// NewTemplateRepo returns a new TemplateRepo bound to the given database.
func NewTemplateRepo(db *sql.DB, schema *SchemaProber) *TemplateRepo {
	return &TemplateRepo{db: db, schema: schema}
}

// templateSelectColumns returns a fixed-shape column list: id, nombre,
// active flag, new config, new background, legacy config, legacy
// background, created_at, updated_at. Missing columns are projected as
// literals so the scan is identical for every schema.
func templateSelectColumns(c Capabilities) []string {
	cols := []string{"id", "nombre"}
	if c.TemplateActiveColumn != "" {
		cols = append(cols, c.TemplateActiveColumn)
	} else {
		cols = append(cols, "0")
	}
	if c.HasNewTemplateColumns {
		cols = append(cols, "campos_json", "fondo_url")
	} else {
		cols = append(cols, "NULL", "NULL")
	}
	if c.HasLegacyTemplateColumns {
		cols = append(cols, "configuracion", "fondo_certificado")
	} else {
		cols = append(cols, "NULL", "NULL")
	}
	return append(cols, "created_at", "updated_at")
}

// TemplateSelectSQL is the read statement for a given schema.
func TemplateSelectSQL(c Capabilities) string {
	return "SELECT " + strings.Join(templateSelectColumns(c), ", ") + " FROM " + tableTemplates
}

// emptyConfig treats "{}" and blanks as absent so the legacy column can
// fill in when only the legacy column was ever written.
func emptyConfig(s sql.NullString) bool {
	if !s.Valid {
		return true
	}
	v := strings.TrimSpace(s.String)
	return v == "" || v == "{}" || v == "null"
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner) (*model.Template, error) {
	var (
		t             model.Template
		newCfg, newBg sql.NullString
		oldCfg, oldBg sql.NullString
	)
	if err := row.Scan(&t.ID, &t.Name, &t.Active, &newCfg, &newBg, &oldCfg, &oldBg, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	raw := newCfg.String
	if emptyConfig(newCfg) {
		raw = oldCfg.String
	}
	t.Background = strings.TrimSpace(newBg.String)
	if t.Background == "" {
		t.Background = strings.TrimSpace(oldBg.String)
	}
	cfg, err := model.ParseTemplateConfig(raw)
	t.Config = cfg
	return &t, err
}

// ErrInvalidStoredConfig wraps a configuration that could not be parsed.
// The template is still returned with an empty configuration.
var ErrInvalidStoredConfig = errors.New("stored template configuration is not valid JSON")

func (r *TemplateRepo) queryOne(ctx context.Context, q database.DBTX, where string, args ...any) (*model.Template, error) {
	caps, err := r.schema.Capabilities(ctx)
	if err != nil {
		return nil, err
	}
	query := TemplateSelectSQL(caps) + " " + where
	t, err := scanTemplate(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil && t != nil {
		return t, fmt.Errorf("template %d: %w: %v", t.ID, ErrInvalidStoredConfig, err)
	}
	return t, err
}

// Get returns the template with the given id or ErrNotFound.
func (r *TemplateRepo) Get(ctx context.Context, id int64) (*model.Template, error) {
	return r.queryOne(ctx, r.db, "WHERE id = ?", id)
}

// Active returns the most recently activated template or ErrNotFound.
func (r *TemplateRepo) Active(ctx context.Context) (*model.Template, error) {
	caps, err := r.schema.Capabilities(ctx)
	if err != nil {
		return nil, err
	}
	if caps.TemplateActiveColumn == "" {
		return nil, ErrNotFound
	}
	return r.queryOne(ctx, r.db,
		"WHERE "+caps.TemplateActiveColumn+" = 1 ORDER BY updated_at DESC, id DESC LIMIT 1")
}

// List returns all templates ordered by id.
func (r *TemplateRepo) List(ctx context.Context) ([]model.Template, error) {
	caps, err := r.schema.Capabilities(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, TemplateSelectSQL(caps)+" ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Template, 0)
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil && t == nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// Create inserts a template, filling every configuration/background
// column pair the schema has. The generated ID is set on t.
func (r *TemplateRepo) Create(ctx context.Context, t *model.Template) error {
	caps, err := r.schema.Capabilities(ctx)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	cols := []string{"nombre"}
	args := []any{t.Name}
	if caps.TemplateActiveColumn != "" {
		cols = append(cols, caps.TemplateActiveColumn)
		args = append(args, boolInt(t.Active))
	}
	cfg := t.Config.JSON()
	if caps.HasNewTemplateColumns {
		cols = append(cols, "campos_json", "fondo_url")
		args = append(args, cfg, nullString(t.Background))
	}
	if caps.HasLegacyTemplateColumns {
		cols = append(cols, "configuracion", "fondo_certificado")
		args = append(args, cfg, nullString(t.Background))
	}
	cols = append(cols, "created_at", "updated_at")
	args = append(args, now, now)

	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		tableTemplates, strings.Join(cols, ", "), placeholders(len(cols)))
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = id
	t.CreatedAt, t.UpdatedAt = now, now
	return nil
}

// Update rewrites name, configuration and background of an existing
// template and bumps updated_at, which marks cached certificate PDFs
// rendered from it as stale.
func (r *TemplateRepo) Update(ctx context.Context, t *model.Template) error {
	caps, err := r.schema.Capabilities(ctx)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	sets := []string{"nombre = ?"}
	args := []any{t.Name}
	cfg := t.Config.JSON()
	if caps.HasNewTemplateColumns {
		sets = append(sets, "campos_json = ?", "fondo_url = ?")
		args = append(args, cfg, nullString(t.Background))
	}
	if caps.HasLegacyTemplateColumns {
		sets = append(sets, "configuracion = ?", "fondo_certificado = ?")
		args = append(args, cfg, nullString(t.Background))
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, now, t.ID)
	res, err := r.db.ExecContext(ctx,
		"UPDATE "+tableTemplates+" SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	t.UpdatedAt = now
	return nil
}

// Activate makes id the single active template: every template is
// deactivated and the chosen one activated inside one transaction, so
// concurrent activations resolve as last-writer-wins without ever
// leaving two active rows.
func (r *TemplateRepo) Activate(ctx context.Context, id int64) error {
	caps, err := r.schema.Capabilities(ctx)
	if err != nil {
		return err
	}
	col := caps.TemplateActiveColumn
	if col == "" {
		return fmt.Errorf("activate template: %w: no active flag column", ErrConflict)
	}
	return database.Tx(ctx, r.db, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx, "UPDATE "+tableTemplates+" SET "+col+" = 0 WHERE "+col+" <> 0"); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, "UPDATE "+tableTemplates+" SET "+col+" = 1, updated_at = ? WHERE id = ?", now, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// Delete removes the template row and returns it so the caller can
// remove its asset files. Certificates referencing it are left intact;
// renderers fall back to the active or built-in layout.
func (r *TemplateRepo) Delete(ctx context.Context, id int64) (*model.Template, error) {
	t, err := r.Get(ctx, id)
	if err != nil && !errors.Is(err, ErrInvalidStoredConfig) {
		return nil, err
	}
	res, err := r.db.ExecContext(ctx, "DELETE FROM "+tableTemplates+" WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return t, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

// Resolve finds the template a certificate should be drawn with: its
// diseno_id, else the id encoded in a legacy diseno_<id>.<ext> filename,
// else the active template. It returns nil, nil when none of them exist;
// callers then use the built-in layout. A stored configuration that does
// not parse still yields the template with an empty configuration.
func (r *TemplateRepo) Resolve(ctx context.Context, designID *int64, legacyFile string) (*model.Template, error) {
	var candidates []int64
	if designID != nil && *designID > 0 {
		candidates = append(candidates, *designID)
	}
	if id, ok := model.DesignIDFromFilename(legacyFile); ok {
		candidates = append(candidates, id)
	}
	for _, id := range candidates {
		t, err := r.Get(ctx, id)
		switch {
		case err == nil, errors.Is(err, ErrInvalidStoredConfig):
			return t, nil
		case errors.Is(err, ErrNotFound):
			continue
		default:
			return nil, err
		}
	}
	t, err := r.Active(ctx)
	switch {
	case err == nil, errors.Is(err, ErrInvalidStoredConfig):
		return t, nil
	case errors.Is(err, ErrNotFound):
		return nil, nil
	}
	return nil, err
}

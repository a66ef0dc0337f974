package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/certificate-issuance/internal/database"
)

const (
	tableCertificates = "certificados"
	tableTemplates    = "disenos_certificados"
	tableUploads      = "cargas_masivas"
)

// ColumnSet records which columns exist per table, all names lower-case.
type ColumnSet map[string]map[string]bool

// Has reports whether table.column exists.
func (s ColumnSet) Has(table, column string) bool {
	return s[strings.ToLower(table)][strings.ToLower(column)]
}

// Add records table.column as present.
func (s ColumnSet) Add(table, column string) {
	t := strings.ToLower(table)
	if s[t] == nil {
		s[t] = map[string]bool{}
	}
	s[t][strings.ToLower(column)] = true
}

// Capabilities is the tagged decision the read and write paths branch
// on. It is derived once from the probed column set; nothing else in the
// repositories inspects the live schema.
type Capabilities struct {
	// campos_json + fondo_url on disenos_certificados
	HasNewTemplateColumns bool
	// configuracion + fondo_certificado on disenos_certificados
	HasLegacyTemplateColumns bool
	// "activo" or "activa"; empty when the table carries neither
	TemplateActiveColumn string
	// diseno_id + config_usada + fondo_usado on certificados
	HasAuditColumns bool
	// diseno_id alone; some intermediate schemas added it first
	HasDesignID bool
	// pdf_content + pdf_generado_en on certificados
	HasPDFCache bool
}

// DeriveCapabilities is the pure mapping from probed columns to the
// statement-selection flags.
func DeriveCapabilities(cols ColumnSet) Capabilities {
	c := Capabilities{
		HasNewTemplateColumns:    cols.Has(tableTemplates, "campos_json") && cols.Has(tableTemplates, "fondo_url"),
		HasLegacyTemplateColumns: cols.Has(tableTemplates, "configuracion") && cols.Has(tableTemplates, "fondo_certificado"),
		HasDesignID:              cols.Has(tableCertificates, "diseno_id"),
		HasPDFCache:              cols.Has(tableCertificates, "pdf_content") && cols.Has(tableCertificates, "pdf_generado_en"),
	}
	c.HasAuditColumns = c.HasDesignID &&
		cols.Has(tableCertificates, "config_usada") &&
		cols.Has(tableCertificates, "fondo_usado")
	switch {
	case cols.Has(tableTemplates, "activo"):
		c.TemplateActiveColumn = "activo"
	case cols.Has(tableTemplates, "activa"):
		c.TemplateActiveColumn = "activa"
	}
	return c
}

// ProbeColumns reads column metadata for the certificate and template
// tables.
func ProbeColumns(ctx context.Context, db database.DBTX, dialect database.Dialect) (ColumnSet, error) {
	cols := ColumnSet{}
	switch dialect {
	case database.MySQL:
		const q = `SELECT TABLE_NAME, COLUMN_NAME FROM INFORMATION_SCHEMA.COLUMNS
		           WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME IN (?, ?)`
		rows, err := db.QueryContext(ctx, q, tableCertificates, tableTemplates)
		if err != nil {
			return nil, fmt.Errorf("probe columns: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var table, column string
			if err := rows.Scan(&table, &column); err != nil {
				return nil, fmt.Errorf("probe columns: %w", err)
			}
			cols.Add(table, column)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("probe columns: %w", err)
		}
	case database.SQLite:
		for _, table := range []string{tableCertificates, tableTemplates} {
			if err := probeSQLiteTable(ctx, db, table, cols); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("probe columns: unsupported dialect %q", dialect)
	}
	return cols, nil
}

func probeSQLiteTable(ctx context.Context, db database.DBTX, table string, cols ColumnSet) error {
	rows, err := db.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return fmt.Errorf("probe columns of %s: %w", table, err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("probe columns of %s: %w", table, err)
		}
		cols.Add(table, name)
	}
	return rows.Err()
}

// SchemaProber memoizes Capabilities for a TTL. Schema changes are rare
// but can happen during a deploy window, so the cache expires and can be
// invalidated explicitly (e.g. after running migrations).
type SchemaProber struct {
	db      database.DBTX
	dialect database.Dialect
	ttl     time.Duration
	now     func() time.Time

	mu       sync.Mutex
	cached   Capabilities
	probedAt time.Time
	valid    bool
}

// NewSchemaProber returns a prober bound to db. A ttl <= 0 disables
// caching and probes on every call.
func NewSchemaProber(db database.DBTX, dialect database.Dialect, ttl time.Duration) *SchemaProber {
	return &SchemaProber{db: db, dialect: dialect, ttl: ttl, now: time.Now}
}

// Dialect returns the SQL dialect of the probed store.
func (p *SchemaProber) Dialect() database.Dialect { return p.dialect }

// Capabilities returns the cached capabilities or probes the store.
func (p *SchemaProber) Capabilities(ctx context.Context) (Capabilities, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.valid && p.ttl > 0 && p.now().Sub(p.probedAt) < p.ttl {
		return p.cached, nil
	}
	cols, err := ProbeColumns(ctx, p.db, p.dialect)
	if err != nil {
		return Capabilities{}, err
	}
	p.cached = DeriveCapabilities(cols)
	p.probedAt = p.now()
	p.valid = true
	return p.cached, nil
}

// Invalidate forces the next Capabilities call to re-probe.
func (p *SchemaProber) Invalidate() {
	p.mu.Lock()
	p.valid = false
	p.mu.Unlock()
}

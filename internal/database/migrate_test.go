package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMigrate_SQLiteLayouts(t *testing.T) {
	for name, layout := range map[string]Layout{"current": LayoutCurrent, "legacy": LayoutLegacy} {
		t.Run(name, func(t *testing.T) {
			db, err := OpenSQLite(filepath.Join(t.TempDir(), "certs.db"))
			require.NoError(t, err)
			defer db.Close()

			ctx := context.Background()
			require.NoError(t, Migrate(ctx, db, SQLite, layout))
			// idempotent
			require.NoError(t, Migrate(ctx, db, SQLite, layout))

			var n int
			err = db.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('certificados', 'disenos_certificados', 'cargas_masivas')`,
			).Scan(&n)
			require.NoError(t, err)
			require.Equal(t, 3, n)
		})
	}
}

func TestMigrate_UnknownDialect(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "certs.db"))
	require.NoError(t, err)
	defer db.Close()
	require.Error(t, Migrate(context.Background(), db, Dialect("oracle"), LayoutCurrent))
}

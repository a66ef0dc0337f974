package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/certificate-issuance/internal/database"
	"github.com/iliyamo/certificate-issuance/internal/model"
)

// UploadRepo stores the cargas_masivas audit rows.
type UploadRepo struct {
	db *sql.DB
}

// NewUploadRepo returns a new UploadRepo bound to the given database.
func NewUploadRepo(db *sql.DB) *UploadRepo {
	return &UploadRepo{db: db}
}

// Create records a freshly stored spreadsheet as unprocessed.
func (r *UploadRepo) Create(ctx context.Context, u *model.BatchUpload) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO `+tableUploads+` (filename, original_name, diseno_id, processed, num_certificates, created_at)
		 VALUES (?, ?, ?, 0, 0, ?)`,
		u.Filename, u.OriginalName, nullInt64(u.DesignID), u.CreatedAt.UTC())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = id
	u.Processed = false
	return nil
}

// Get returns the upload row or ErrNotFound.
func (r *UploadRepo) Get(ctx context.Context, id int64) (*model.BatchUpload, error) {
	var (
		u           model.BatchUpload
		designID    sql.NullInt64
		errLog      sql.NullString
		processedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, filename, original_name, diseno_id, processed, num_certificates, error_log, created_at, processed_at
		 FROM `+tableUploads+` WHERE id = ?`, id).
		Scan(&u.ID, &u.Filename, &u.OriginalName, &designID, &u.Processed, &u.NumCertificates, &errLog, &u.CreatedAt, &processedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.DesignID = int64Ptr(designID)
	u.ErrorLog = errLog.String
	u.ProcessedAt = timePtr(processedAt)
	return &u, nil
}

// MarkProcessedTx flips processed to 1 exactly once, inside tx so the
// upload flips in the same commit as the certificates it produced. A
// second call returns ErrConflict so a retried request cannot overwrite
// the first report; an unknown id returns ErrNotFound.
func (r *UploadRepo) MarkProcessedTx(ctx context.Context, tx *sql.Tx, id int64, numCertificates int, errorLog string) error {
	return markProcessed(ctx, tx, id, numCertificates, errorLog)
}

func markProcessed(ctx context.Context, q database.DBTX, id int64, numCertificates int, errorLog string) error {
	res, err := q.ExecContext(ctx,
		`UPDATE `+tableUploads+` SET processed = 1, num_certificates = ?, error_log = ?, processed_at = ?
		 WHERE id = ? AND processed = 0`,
		numCertificates, nullString(errorLog), time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	var seen int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+tableUploads+` WHERE id = ?`, id).Scan(&seen); err != nil {
		return err
	}
	if seen == 0 {
		return ErrNotFound
	}
	return ErrConflict
}

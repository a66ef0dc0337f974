package model

import "time"

// BatchUpload records one spreadsheet upload (cargas_masivas). The row
// is kept after processing as an audit trail; only the source file is
// removed from disk.
type BatchUpload struct {
	ID              int64
	Filename        string // stored name under the uploads directory
	OriginalName    string // name supplied by the client
	DesignID        *int64
	Processed       bool
	NumCertificates int
	ErrorLog        string
	CreatedAt       time.Time
	ProcessedAt     *time.Time
}

// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// services and handlers to distinguish between different failure
// scenarios without inspecting driver errors. For example,
// ErrDuplicateCode tells the issuer to draw a new verification code,
// while ErrDuplicateActive is a business-rule skip that batch processing
// reports per row.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrNotFound is returned when the requested row does not exist.
// Handlers should translate this into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an update cannot be performed because of
// conflicting state. Handlers should translate this into an HTTP 409
// response.
var ErrConflict = errors.New("conflict")

// ErrDuplicateCode signals that the store rejected an insert because the
// verification code is already taken. The unique index is the
// authoritative signal; callers re-allocate and retry.
var ErrDuplicateCode = errors.New("verification code already exists")

// ErrDuplicateActive signals that the holder already has an active
// certificate for the same event.
var ErrDuplicateActive = errors.New("active certificate already exists for this event")

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// isDuplicateKey reports whether err is a unique-constraint violation on
// either supported driver.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlDuplicateEntry
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// classifyInsertError maps a unique violation on certificados onto the
// matching sentinel. Driver messages name the index (MySQL) or the
// columns (SQLite); both mention the verification code column or index.
func classifyInsertError(err error) error {
	if !isDuplicateKey(err) {
		return err
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "codigo"):
		return ErrDuplicateCode
	case strings.Contains(msg, "dni"):
		return ErrDuplicateActive
	}
	return ErrConflict
}

package database

// Schema bootstrap and forward migrations. The service may be pointed at a
// database created by an older deployment whose reservations table predates
// the catalog and reminder columns; Migrate brings such a table up to date by
// adding the missing columns with safe defaults. Running it repeatedly is a
// no-op, and existing rows are never rewritten or dropped.

import (
	"context"
	"database/sql"
	"fmt"
)

// Migrate creates the users and reservations tables when absent and then
// adds any columns introduced after the initial schema. It must run once at
// startup before any repository is used.
func Migrate(ctx context.Context, db *sql.DB) error {
	const usersDDL = `
		CREATE TABLE IF NOT EXISTS users (
			id BIGINT NOT NULL,
			display_name VARCHAR(255) NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (id)
		)`
	if _, err := db.ExecContext(ctx, usersDDL); err != nil {
		return fmt.Errorf("create users table: %w", err)
	}

	const reservationsDDL = `
		CREATE TABLE IF NOT EXISTS reservations (
			id BIGINT NOT NULL AUTO_INCREMENT,
			owner_id BIGINT NOT NULL,
			title VARCHAR(255) NOT NULL,
			venue VARCHAR(255) NOT NULL,
			legacy_date VARCHAR(10) NOT NULL DEFAULT '',
			occurs_at DATETIME NULL,
			source VARCHAR(16) NOT NULL DEFAULT 'manual',
			external_ref BIGINT NULL,
			url VARCHAR(512) NULL,
			notify_at DATETIME NULL,
			notified TINYINT(1) NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (id),
			KEY idx_reservations_owner (owner_id),
			KEY idx_reservations_due (notify_at, notified)
		)`
	if _, err := db.ExecContext(ctx, reservationsDDL); err != nil {
		return fmt.Errorf("create reservations table: %w", err)
	}

	// Columns added after the first release. A pre-existing table created by
	// the DDL of that release lacks them, so probe information_schema and add
	// each one individually.
	addenda := []struct {
		column string
		ddl    string
	}{
		{"occurs_at", "ALTER TABLE reservations ADD COLUMN occurs_at DATETIME NULL"},
		{"source", "ALTER TABLE reservations ADD COLUMN source VARCHAR(16) NOT NULL DEFAULT 'manual'"},
		{"external_ref", "ALTER TABLE reservations ADD COLUMN external_ref BIGINT NULL"},
		{"url", "ALTER TABLE reservations ADD COLUMN url VARCHAR(512) NULL"},
		{"notify_at", "ALTER TABLE reservations ADD COLUMN notify_at DATETIME NULL"},
		{"notified", "ALTER TABLE reservations ADD COLUMN notified TINYINT(1) NOT NULL DEFAULT 0"},
	}
	for _, a := range addenda {
		if err := addColumnIfMissing(ctx, db, "reservations", a.column, a.ddl); err != nil {
			return err
		}
	}
	return nil
}

// addColumnIfMissing applies ddl only when table does not already have the
// named column in the current schema.
func addColumnIfMissing(ctx context.Context, db *sql.DB, table, column, ddl string) error {
	const probe = `SELECT COUNT(*) FROM information_schema.COLUMNS
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND COLUMN_NAME = ?`
	var n int
	if err := db.QueryRowContext(ctx, probe, table, column).Scan(&n); err != nil {
		return fmt.Errorf("probe column %s.%s: %w", table, column, err)
	}
	if n > 0 {
		return nil
	}
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("add column %s.%s: %w", table, column, err)
	}
	return nil
}

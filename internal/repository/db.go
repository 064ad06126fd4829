package repository

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by lookups that matched no row.
var ErrNotFound = errors.New("not found")

// InitDB opens (or creates) a SQLite database at the given path and ensures
// all required tables exist. Pass ":memory:" for an in-memory database.
func InitDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return db, nil
}

func createTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS students (
			id TEXT PRIMARY KEY,
			email TEXT UNIQUE NOT NULL,
			last_name TEXT NOT NULL,
			first_name TEXT NOT NULL,
			registration_id TEXT,
			phone TEXT,
			address TEXT,
			enrollment_status TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_students_last_name ON students(last_name)`,

		`CREATE TABLE IF NOT EXISTS reference_dimensions (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			name TEXT NOT NULL,
			ordering_hint INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reference_dimensions_kind ON reference_dimensions(kind)`,

		`CREATE TABLE IF NOT EXISTS dossiers (
			id TEXT PRIMARY KEY,
			student_id TEXT NOT NULL,
			campus_id TEXT,
			program_id TEXT,
			academic_year_id TEXT,
			base_price TEXT NOT NULL,
			prior_balance TEXT NOT NULL,
			schedule_rhythm TEXT,
			comment TEXT,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (student_id) REFERENCES students(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_dossiers_student ON dossiers(student_id)`,

		`CREATE TABLE IF NOT EXISTS payments (
			id TEXT PRIMARY KEY,
			dossier_id TEXT NOT NULL,
			amount TEXT NOT NULL,
			method TEXT NOT NULL,
			payment_date DATETIME NOT NULL,
			piece_number TEXT,
			status TEXT NOT NULL,
			raw_date TEXT,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (dossier_id) REFERENCES dossiers(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_dossier ON payments(dossier_id)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_status ON payments(status)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_date ON payments(payment_date)`,

		`CREATE TABLE IF NOT EXISTS anomalies (
			id TEXT PRIMARY KEY,
			dossier_id TEXT,
			student_id TEXT,
			category TEXT NOT NULL,
			severity TEXT NOT NULL,
			description TEXT NOT NULL,
			details TEXT,
			suggested_action TEXT,
			detected_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_anomalies_category ON anomalies(category)`,
		`CREATE INDEX IF NOT EXISTS idx_anomalies_severity ON anomalies(severity)`,
		`CREATE INDEX IF NOT EXISTS idx_anomalies_student ON anomalies(student_id)`,

		`CREATE TABLE IF NOT EXISTS import_runs (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			error TEXT,
			rows_total INTEGER NOT NULL DEFAULT 0,
			rows_skipped INTEGER NOT NULL DEFAULT 0,
			students_found INTEGER NOT NULL DEFAULT 0,
			students_unique INTEGER NOT NULL DEFAULT 0,
			students_imported INTEGER NOT NULL DEFAULT 0,
			payments_found INTEGER NOT NULL DEFAULT 0,
			payments_imported INTEGER NOT NULL DEFAULT 0,
			payments_rejected INTEGER NOT NULL DEFAULT 0,
			anomalies_found INTEGER NOT NULL DEFAULT 0,
			student_import_rate REAL NOT NULL DEFAULT 0,
			payment_import_rate REAL NOT NULL DEFAULT 0,
			insert_success_rate REAL NOT NULL DEFAULT 0,
			rejections TEXT,
			insert_failures TEXT,
			started_at DATETIME NOT NULL,
			finished_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_import_runs_status ON import_runs(status)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:60], err)
		}
	}

	return nil
}

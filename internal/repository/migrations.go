package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
)

type migration struct {
	Version     int
	Description string
	Statements  []string
}

// Column types are chosen to mean the same thing on Postgres and SQLite.
var migrations = []migration{
	{
		Version:     1,
		Description: "initial schema",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS scan_files (
				id TEXT PRIMARY KEY,
				document_type TEXT NOT NULL,
				source_path TEXT NOT NULL,
				filename TEXT NOT NULL,
				file_ext TEXT NOT NULL,
				file_size BIGINT NOT NULL,
				content_hash TEXT NOT NULL UNIQUE,
				uploaded_at TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS extract_jobs (
				id TEXT PRIMARY KEY,
				file_id TEXT NOT NULL REFERENCES scan_files(id),
				status TEXT NOT NULL,
				started_at TEXT NOT NULL,
				finished_at TEXT,
				error_message TEXT,
				ocr_text TEXT,
				ocr_method TEXT,
				ocr_confidence DOUBLE PRECISION,
				needs_review BOOLEAN NOT NULL DEFAULT FALSE,
				extracted_json TEXT
			)`,
			`CREATE INDEX IF NOT EXISTS idx_extract_jobs_file_id ON extract_jobs(file_id)`,
			`CREATE TABLE IF NOT EXISTS documents (
				id TEXT PRIMARY KEY,
				file_id TEXT NOT NULL UNIQUE REFERENCES scan_files(id),
				job_id TEXT NOT NULL REFERENCES extract_jobs(id),
				document_type TEXT NOT NULL,
				full_name TEXT NOT NULL,
				document_number TEXT NOT NULL,
				expiration_date TEXT NOT NULL,
				needs_review BOOLEAN NOT NULL DEFAULT FALSE,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_documents_type ON documents(document_type)`,
		},
	},
}

// LatestSchemaVersion is the version Migrate brings a database to.
func LatestSchemaVersion() int {
	return migrations[len(migrations)-1].Version
}

// Migrate applies pending migrations, each in its own transaction.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.SQL().ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	current, err := db.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := db.apply(ctx, m); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}
		db.logger.Info("applied migration", "version", m.Version, "description", m.Description)
	}
	return nil
}

// SchemaVersion returns the highest applied migration, 0 for a fresh database.
func (db *DB) SchemaVersion(ctx context.Context) (int, error) {
	t := db.builder().Table("schema_migrations")
	sel := db.builder().Select(entsql.Max(t.C("version"))).From(t)
	var v sql.NullInt64
	if err := queryRowBuilder(ctx, db.SQL(), sel).Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return int(v.Int64), nil
}

func (db *DB) apply(ctx context.Context, m migration) error {
	tx, err := db.SQL().BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range m.Statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	ins := db.builder().Insert("schema_migrations").
		Columns("version", "description", "applied_at").
		Values(m.Version, m.Description, formatTime(time.Now()))
	if _, err := execBuilder(ctx, tx, ins); err != nil {
		return err
	}
	return tx.Commit()
}

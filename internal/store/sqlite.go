// This file implements an SQLite-backed study store.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"

	"github.com/BTreeMap/StudyPipe/internal/models"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully", "path", dsn)

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) CreateStudy(ctx context.Context, study models.Study) (models.Study, error) {
	study, err := prepareNewStudy(study, time.Now().UTC())
	if err != nil {
		return models.Study{}, err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO studies (`+studyColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		study.ID, study.Title, study.Description, study.StudyType, study.Objective, study.TargetAudience,
		study.InterviewQuestions, string(study.Status), study.CreatedAt, study.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore CreateStudy failed", "error", err, "studyID", study.ID)
		return models.Study{}, fmt.Errorf("failed to insert study %s: %w", study.ID, err)
	}
	slog.Debug("SQLiteStore CreateStudy succeeded", "studyID", study.ID)
	return study, nil
}

func (s *SQLiteStore) GetStudy(ctx context.Context, id string) (models.Study, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+studyColumns+` FROM studies WHERE id = ?`, id)
	study, err := scanStudy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Study{}, ErrStudyNotFound
	}
	if err != nil {
		slog.Error("SQLiteStore GetStudy failed", "error", err, "studyID", id)
		return models.Study{}, fmt.Errorf("failed to get study %s: %w", id, err)
	}
	return study, nil
}

func (s *SQLiteStore) ListStudies(ctx context.Context) ([]models.Study, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+studyColumns+` FROM studies ORDER BY created_at DESC, id`)
	if err != nil {
		slog.Error("SQLiteStore ListStudies query failed", "error", err)
		return nil, fmt.Errorf("failed to query studies: %w", err)
	}
	studies, err := scanStudies(rows)
	if err != nil {
		slog.Error("SQLiteStore ListStudies scan failed", "error", err)
		return nil, err
	}
	slog.Debug("SQLiteStore ListStudies succeeded", "count", len(studies))
	return studies, nil
}

func (s *SQLiteStore) UpdateStudyField(ctx context.Context, id string, field models.FieldName, value string) error {
	column, err := fieldColumn(field)
	if err != nil {
		return err
	}
	value, err = models.NormalizeFieldValue(field, value)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE studies SET `+column+` = ?, updated_at = ? WHERE id = ?`, value, time.Now().UTC(), id)
	if err != nil {
		slog.Error("SQLiteStore UpdateStudyField failed", "error", err, "studyID", id, "field", field)
		return fmt.Errorf("failed to update %s for study %s: %w", field, id, err)
	}
	if err := checkAffected(res); err != nil {
		return err
	}
	slog.Debug("SQLiteStore UpdateStudyField succeeded", "studyID", id, "field", field)
	return nil
}

func (s *SQLiteStore) SetStudyStatus(ctx context.Context, id string, status models.StudyStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE studies SET status = ?, updated_at = ? WHERE id = ?`, string(status), time.Now().UTC(), id)
	if err != nil {
		slog.Error("SQLiteStore SetStudyStatus failed", "error", err, "studyID", id, "status", status)
		return fmt.Errorf("failed to set status for study %s: %w", id, err)
	}
	if err := checkAffected(res); err != nil {
		return err
	}
	slog.Debug("SQLiteStore SetStudyStatus succeeded", "studyID", id, "status", status)
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}

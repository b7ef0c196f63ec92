// This file implements a PostgreSQL-backed study store.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"

	"github.com/BTreeMap/StudyPipe/internal/models"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) CreateStudy(ctx context.Context, study models.Study) (models.Study, error) {
	study, err := prepareNewStudy(study, time.Now().UTC())
	if err != nil {
		return models.Study{}, err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO studies (`+studyColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		study.ID, study.Title, study.Description, study.StudyType, study.Objective, study.TargetAudience,
		study.InterviewQuestions, string(study.Status), study.CreatedAt, study.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore CreateStudy failed", "error", err, "studyID", study.ID)
		return models.Study{}, fmt.Errorf("failed to insert study %s: %w", study.ID, err)
	}
	slog.Debug("PostgresStore CreateStudy succeeded", "studyID", study.ID)
	return study, nil
}

func (s *PostgresStore) GetStudy(ctx context.Context, id string) (models.Study, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+studyColumns+` FROM studies WHERE id = $1`, id)
	study, err := scanStudy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Study{}, ErrStudyNotFound
	}
	if err != nil {
		slog.Error("PostgresStore GetStudy failed", "error", err, "studyID", id)
		return models.Study{}, fmt.Errorf("failed to get study %s: %w", id, err)
	}
	return study, nil
}

func (s *PostgresStore) ListStudies(ctx context.Context) ([]models.Study, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+studyColumns+` FROM studies ORDER BY created_at DESC, id`)
	if err != nil {
		slog.Error("PostgresStore ListStudies query failed", "error", err)
		return nil, fmt.Errorf("failed to query studies: %w", err)
	}
	studies, err := scanStudies(rows)
	if err != nil {
		slog.Error("PostgresStore ListStudies scan failed", "error", err)
		return nil, err
	}
	slog.Debug("PostgresStore ListStudies succeeded", "count", len(studies))
	return studies, nil
}

func (s *PostgresStore) UpdateStudyField(ctx context.Context, id string, field models.FieldName, value string) error {
	column, err := fieldColumn(field)
	if err != nil {
		return err
	}
	value, err = models.NormalizeFieldValue(field, value)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE studies SET `+column+` = $1, updated_at = $2 WHERE id = $3`, value, time.Now().UTC(), id)
	if err != nil {
		slog.Error("PostgresStore UpdateStudyField failed", "error", err, "studyID", id, "field", field)
		return fmt.Errorf("failed to update %s for study %s: %w", field, id, err)
	}
	if err := checkAffected(res); err != nil {
		return err
	}
	slog.Debug("PostgresStore UpdateStudyField succeeded", "studyID", id, "field", field)
	return nil
}

func (s *PostgresStore) SetStudyStatus(ctx context.Context, id string, status models.StudyStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE studies SET status = $1, updated_at = $2 WHERE id = $3`, string(status), time.Now().UTC(), id)
	if err != nil {
		slog.Error("PostgresStore SetStudyStatus failed", "error", err, "studyID", id, "status", status)
		return fmt.Errorf("failed to set status for study %s: %w", id, err)
	}
	if err := checkAffected(res); err != nil {
		return err
	}
	slog.Debug("PostgresStore SetStudyStatus succeeded", "studyID", id, "status", status)
	return nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}

package store

import (
	"log/slog"
	"strings"
)

// Opts holds configuration options for store implementations.
type Opts struct {
	DSN    string // Database connection string
	Driver string // "sqlite3", "postgres" or "mongodb"; empty means in-memory
}

// Option defines a configuration option for store implementations.
type Option func(*Opts)

// WithSQLiteDSN configures a SQLite store at the given file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
		o.Driver = "sqlite3"
	}
}

// WithPostgresDSN configures a PostgreSQL store with the given connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
		o.Driver = "postgres"
	}
}

// WithMongoDSN configures a MongoDB store with the given connection URI.
func WithMongoDSN(uri string) Option {
	return func(o *Opts) {
		o.DSN = uri
		o.Driver = "mongodb"
	}
}

// DetectDSNType returns "mongodb" for MongoDB URIs, "postgres" for PostgreSQL
// URLs or key=value connection strings, and "sqlite3" for everything else (file paths).
func DetectDSNType(dsn string) string {
	trimmed := strings.TrimSpace(dsn)
	lower := strings.ToLower(trimmed)
	if strings.HasPrefix(lower, "mongodb://") || strings.HasPrefix(lower, "mongodb+srv://") {
		return "mongodb"
	}
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return "postgres"
	}
	for _, key := range []string{"host=", "user=", "dbname=", "sslmode=", "password="} {
		if strings.Contains(lower, key) {
			return "postgres"
		}
	}
	return "sqlite3"
}

// New builds the store selected by opts. Without a DSN it returns an InMemoryStore.
func New(opts ...Option) (StudyStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	switch {
	case cfg.DSN == "":
		slog.Info("store.New: no database DSN configured, using in-memory store")
		return NewInMemoryStore(), nil
	case cfg.Driver == "postgres":
		return NewPostgresStore(opts...)
	case cfg.Driver == "mongodb":
		return NewMongoStore(opts...)
	default:
		return NewSQLiteStore(opts...)
	}
}

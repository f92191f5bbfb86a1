package db

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/AzPepoze/gdrive-bisync/internal/utils"
	"github.com/jmoiron/sqlx"
)

const defaultPragma = `
PRAGMA journal_mode=WAL;
PRAGMA busy_timeout=5000;
PRAGMA foreign_keys=ON;
PRAGMA synchronous=NORMAL;
PRAGMA temp_store=MEMORY;
`

const memoryPath = ":memory:"

type options struct {
	path            string
	pragmas         string
	maxOpenConns    int
	maxIdleConns    int
	connMaxLifetime time.Duration
	schema          []string
}

// SqliteOption configures NewSqliteDB
type SqliteOption func(*options)

// WithPath sets the database file. ":memory:" keeps everything in memory.
func WithPath(path string) SqliteOption {
	return func(o *options) {
		o.path = path
	}
}

// WithPragmas replaces the default pragma block
func WithPragmas(pragmas string) SqliteOption {
	return func(o *options) {
		o.pragmas = pragmas
	}
}

func WithMaxOpenConns(n int) SqliteOption {
	return func(o *options) {
		o.maxOpenConns = n
	}
}

func WithMaxIdleConns(n int) SqliteOption {
	return func(o *options) {
		o.maxIdleConns = n
	}
}

func WithConnMaxLifetime(d time.Duration) SqliteOption {
	return func(o *options) {
		o.connMaxLifetime = d
	}
}

// WithSchema adds statements executed once after connecting, in order.
// Statements should be idempotent (CREATE ... IF NOT EXISTS).
func WithSchema(stmts ...string) SqliteOption {
	return func(o *options) {
		o.schema = append(o.schema, stmts...)
	}
}

// NewSqliteDB opens a sqlx handle using the driver selected at build time.
func NewSqliteDB(opts ...SqliteOption) (*sqlx.DB, error) {
	o := &options{
		path:         memoryPath,
		pragmas:      defaultPragma,
		maxIdleConns: 2,
	}
	for _, opt := range opts {
		opt(o)
	}

	dsn := memoryPath
	if o.path != memoryPath {
		if err := utils.EnsureParent(o.path); err != nil {
			return nil, fmt.Errorf("ensure parent directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_txlock=immediate&mode=rwc", o.path)
	} else {
		// every pooled connection to :memory: would otherwise see its own database
		o.maxOpenConns = 1
	}

	slog.Debug("db open", "driver", driverID, "path", o.path)
	db, err := sqlx.Connect(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if o.maxOpenConns > 0 {
		db.SetMaxOpenConns(o.maxOpenConns)
	}
	if o.maxIdleConns > 0 {
		db.SetMaxIdleConns(o.maxIdleConns)
	}
	if o.connMaxLifetime > 0 {
		db.SetConnMaxLifetime(o.connMaxLifetime)
	}

	if _, err := db.Exec(o.pragmas); err != nil {
		db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	for _, stmt := range o.schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}

	return db, nil
}

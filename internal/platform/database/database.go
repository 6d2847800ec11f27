package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/mattn/go-sqlite3"
)

// Dialect identifies the SQL flavour behind a DB.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// DB wraps *sql.DB with the dialect-specific bits the repositories need.
type DB struct {
	*sql.DB
	dialect Dialect
}

// Open opens a database for the given driver. Supported drivers are pgx
// (postgres) and sqlite3.
func Open(driver, dsn string) (*DB, error) {
	if dsn == "" {
		return nil, errors.New("database: empty dsn")
	}
	switch strings.ToLower(driver) {
	case "pgx", "postgres", "postgresql":
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, err
		}
		return &DB{DB: db, dialect: DialectPostgres}, nil
	case "sqlite3", "sqlite":
		db, err := sql.Open("sqlite3", sqliteDSN(dsn))
		if err != nil {
			return nil, err
		}
		// One connection keeps :memory: databases shared and makes every
		// transaction a writer.
		db.SetMaxOpenConns(1)
		return &DB{DB: db, dialect: DialectSQLite}, nil
	default:
		return nil, fmt.Errorf("database: unsupported driver %q", driver)
	}
}

// Wrap adopts an existing handle.
func Wrap(db *sql.DB, dialect Dialect) *DB {
	if db == nil {
		return nil
	}
	return &DB{DB: db, dialect: dialect}
}

func sqliteDSN(dsn string) string {
	params := []string{}
	if !strings.Contains(dsn, "_txlock=") {
		params = append(params, "_txlock=immediate")
	}
	if !strings.Contains(dsn, "_foreign_keys=") {
		params = append(params, "_foreign_keys=on")
	}
	if len(params) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

// Dialect returns the SQL flavour.
func (db *DB) Dialect() Dialect {
	if db == nil {
		return ""
	}
	return db.dialect
}

// ForUpdate returns the row-lock suffix for SELECT statements. SQLite
// transactions are opened as immediate writers, so no suffix is needed.
func (db *DB) ForUpdate() string {
	if db.Dialect() == DialectPostgres {
		return " FOR UPDATE"
	}
	return ""
}

// LockKey takes a transaction-scoped advisory lock on key. It must run inside
// WithinTx.
func (db *DB) LockKey(ctx context.Context, key string) error {
	if db.Dialect() != DialectPostgres {
		return nil
	}
	if txFromContext(ctx) == nil {
		return errors.New("database: advisory lock outside transaction")
	}
	_, err := db.Conn(ctx).ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key)
	return err
}

// IsUniqueViolation reports whether err is a unique constraint failure.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

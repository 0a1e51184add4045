package database

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Driver string // "postgres" или "sqlite"
	DSN    string
}

type DB struct {
	*sql.DB
	driver string
}

func NewConnection(cfg Config) (*DB, error) {
	switch cfg.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", cfg.Driver)
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}

	if cfg.Driver == DriverSQLite {
		// Файловый SQLite не любит конкурентных писателей
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db, driver: cfg.Driver}, nil
}

func (db *DB) Driver() string { return db.driver }

func (db *DB) Close() error {
	return db.DB.Close()
}

// Rebind переводит $N-плейсхолдеры (Postgres) в ? для SQLite.
// Запросы по коду пишутся один раз, в нотации Postgres.
func (db *DB) Rebind(query string) string {
	if db.driver != DriverSQLite {
		return query
	}
	var b strings.Builder
	for i := 0; i < len(query); i++ {
		if query[i] != '$' {
			b.WriteByte(query[i])
			continue
		}
		j := i + 1
		for j < len(query) && query[j] >= '0' && query[j] <= '9' {
			j++
		}
		if j == i+1 {
			b.WriteByte(query[i])
			continue
		}
		if _, err := strconv.Atoi(query[i+1 : j]); err == nil {
			b.WriteByte('?')
			i = j - 1
		}
	}
	return b.String()
}

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS licenses (
	id               BIGSERIAL PRIMARY KEY,
	key              TEXT NOT NULL UNIQUE,
	holder_name      TEXT,
	holder_phone_enc TEXT,
	created_at       TIMESTAMPTZ NOT NULL
)`

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS licenses (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	key              TEXT NOT NULL UNIQUE,
	holder_name      TEXT,
	holder_phone_enc TEXT,
	created_at       TIMESTAMP NOT NULL
)`

// EnsureSchema создает таблицу licenses, если её еще нет.
// Коллекция append-only: ни UPDATE, ни DELETE по ней код не выполняет.
func (db *DB) EnsureSchema() error {
	ddl := schemaPostgres
	if db.driver == DriverSQLite {
		ddl = schemaSQLite
	}
	if _, err := db.Exec(ddl); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

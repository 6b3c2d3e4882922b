package sqlite

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/shrimpsizemoose/narvaro/internal/store"
)

type SQLiteStore struct {
	store.BaseStore
}

func New(dsn string) (*SQLiteStore, error) {
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &SQLiteStore{BaseStore: store.BaseStore{
		DB: db,
		Converter: func(query string) string {
			return query
		},
	}}

	return s, nil
}

func (s *SQLiteStore) ApplyMigrations(dir string) error {
	return s.BaseStore.ApplyMigrations(dir, translateToSQLite)
}

// translateToSQLite converts Postgres SQL to SQLite dialect
func translateToSQLite(sql string) string {
	replacements := map[string]string{
		"BIGSERIAL":   "INTEGER PRIMARY KEY AUTOINCREMENT",
		"SERIAL":      "INTEGER PRIMARY KEY AUTOINCREMENT",
		"BIGINT":      "INTEGER",
		"UUID":        "TEXT",
		"TRUE":        "1",
		"FALSE":       "0",
		"now()":       "CURRENT_TIMESTAMP",
		"VARCHAR(6)":  "TEXT",
		"VARCHAR(10)": "TEXT",
		"VARCHAR(16)": "TEXT",
		"::text":      "",
	}
	result := sql
	for from, to := range replacements {
		result = strings.ReplaceAll(result, from, to)
	}
	return result
}

package app

import (
	"fmt"
	"strings"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/narvaro/internal/store"
	"github.com/shrimpsizemoose/narvaro/internal/store/postgres"
	"github.com/shrimpsizemoose/narvaro/internal/store/sqlite"
)

// NewStore picks the store implementation once, at startup. A postgres DSN
// selects postgres; anything else is treated as a sqlite path. When postgres
// is unreachable and the fallback is enabled, the process runs against a
// transient in-memory sqlite instead of refusing to start.
func NewStore(config *Config) (store.AttendanceStore, error) {
	dsn := config.Database.DSN

	dbType := store.DBTypeSQLite
	if strings.HasPrefix(dsn, "postgres") {
		dbType = store.DBTypePostgres
	}

	switch dbType {
	case store.DBTypePostgres:
		s, err := postgres.New(dsn)
		if err == nil {
			return s, nil
		}
		if !config.Database.FallbackToMemory {
			return nil, fmt.Errorf("failed to init postgres store: %w", err)
		}
		logger.Error.Printf("Postgres unreachable, falling back to in-memory sqlite: %v", err)
		return sqlite.New(":memory:")
	case store.DBTypeSQLite:
		return sqlite.New(dsn)
	default:
		return nil, fmt.Errorf("unable to determine database type from DSN: %s", dsn)
	}
}

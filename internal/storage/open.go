package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Open picks a repository by driver name: "sqlite" (default) or "postgres".
func Open(driver, dsn string) (Repository, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite", "sqlite3":
		if dsn == "" {
			dsn = "murph.db"
		}
		if dir := filepath.Dir(dsn); dir != "." && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create storage directory: %w", err)
			}
		}
		return NewSQLiteRepository(dsn)
	case "postgres", "postgresql":
		if dsn == "" {
			return nil, fmt.Errorf("postgres storage requires a connection string")
		}
		return NewPostgresRepository(dsn)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", driver)
	}
}

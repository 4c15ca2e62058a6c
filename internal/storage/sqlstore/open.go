package sqlstore

import (
	"strings"

	"github.com/BearBump/ParcelBox/config"
	"github.com/pkg/errors"
)

const defaultSQLitePath = "parcelbox.db"

// Open connects to the backend named by cfg.Driver. An empty driver means
// Postgres.
func Open(cfg config.DatabaseConfig) (*Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DialectPostgres, "pgx":
		return New(cfg.PostgresDSN())
	case DialectSQLite:
		path := cfg.Path
		if path == "" {
			path = defaultSQLitePath
		}
		return NewSQLite(path)
	}
	return nil, errors.Errorf("unknown database driver %q", cfg.Driver)
}

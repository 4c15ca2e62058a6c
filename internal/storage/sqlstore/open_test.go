package sqlstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/BearBump/ParcelBox/config"
	"github.com/stretchr/testify/require"
)

func TestOpen_SQLiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pb.db")
	st, err := Open(config.DatabaseConfig{Driver: "SQLite", Path: path})
	require.NoError(t, err)
	defer st.Close()

	require.Equal(t, DialectSQLite, st.Dialect())
	require.NoError(t, st.Ping(context.Background()))
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Driver: "mysql"})
	require.ErrorContains(t, err, "mysql")
}

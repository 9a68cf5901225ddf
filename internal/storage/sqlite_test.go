package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteSchema(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "vault.sqlite3"))
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	rows, err := s.reader.QueryContext(ctx, `SELECT name FROM pragma_table_info('credentials') ORDER BY cid`)
	require.NoError(t, err)
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		columns = append(columns, name)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"id", "name", "entries"}, columns)
}

func TestSQLiteMigrationsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.sqlite3")

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, RunMigrations(s.writer))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

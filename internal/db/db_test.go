package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSqliteDB_Memory(t *testing.T) {
	database, err := NewSqliteDB()
	require.NoError(t, err)
	defer database.Close()

	_, err = database.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT);")
	require.NoError(t, err)
}

func TestNewSqliteDB_FileCreatesParent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "index.db")

	database, err := NewSqliteDB(WithPath(dbPath))
	require.NoError(t, err)
	defer database.Close()

	assert.DirExists(t, filepath.Dir(dbPath))
	assert.FileExists(t, dbPath)
}

func TestNewSqliteDB_Schema(t *testing.T) {
	database, err := NewSqliteDB(WithSchema(
		"CREATE TABLE IF NOT EXISTS kv (k TEXT PRIMARY KEY, v TEXT)",
		"INSERT INTO kv (k, v) VALUES ('a', '1')",
	))
	require.NoError(t, err)
	defer database.Close()

	var v string
	require.NoError(t, database.Get(&v, "SELECT v FROM kv WHERE k = ?", "a"))
	assert.Equal(t, "1", v)
}

func TestNewSqliteDB_BadSchema(t *testing.T) {
	_, err := NewSqliteDB(WithSchema("NOT SQL"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apply schema")
}

package migration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMigrator_RequiresDatabasePath(t *testing.T) {
	_, err := NewMigrator(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database path is required")
}

func TestNewMigrator_DefaultsTableName(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	m, err := NewMigrator(Config{DatabasePath: dbPath})
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, "aic_schema_migrations", m.config.TableName)
}

func TestMigrator_UpAppliesEmbeddedSchema(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	m, err := NewMigrator(Config{DatabasePath: dbPath})
	require.NoError(t, err)
	defer m.Close()

	version, dirty, err := m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
	assert.False(t, dirty)

	require.NoError(t, m.Up())

	version, dirty, err = m.Version()
	require.NoError(t, err)
	assert.Greater(t, version, uint(0))
	assert.False(t, dirty)

	info, err := m.Info()
	require.NoError(t, err)
	assert.Equal(t, info.TotalMigrations, info.AppliedMigrations)
	assert.Equal(t, 0, info.PendingMigrations)

	statuses, err := m.Status()
	require.NoError(t, err)
	require.NotEmpty(t, statuses)
	for _, s := range statuses {
		assert.True(t, s.Applied)
	}
}

func TestMigrator_DownRollsBackOneStep(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	m, err := NewMigrator(Config{DatabasePath: dbPath})
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.Up())
	before, _, err := m.Version()
	require.NoError(t, err)

	require.NoError(t, m.Down())
	after, _, err := m.Version()
	require.NoError(t, err)

	assert.Less(t, after, before)
}

func TestCLI_RunVersion_NoMigrationsYet(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	m, err := NewMigrator(Config{DatabasePath: dbPath})
	require.NoError(t, err)
	defer m.Close()

	cli := NewCLI(m)

	r, w, err := os.Pipe()
	require.NoError(t, err)
	cli.SetOutput(w)

	require.NoError(t, cli.RunVersion())

	w.Close()
	buf := make([]byte, 1024)
	n, _ := r.Read(buf)
	assert.Contains(t, string(buf[:n]), "No migrations applied yet")
}

func TestCLI_RunUp_ReportsVersion(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	m, err := NewMigrator(Config{DatabasePath: dbPath})
	require.NoError(t, err)
	defer m.Close()

	cli := NewCLI(m)

	r, w, err := os.Pipe()
	require.NoError(t, err)
	cli.SetOutput(w)

	require.NoError(t, cli.RunUp())

	w.Close()
	buf := make([]byte, 1024)
	n, _ := r.Read(buf)
	assert.Contains(t, string(buf[:n]), "Migrations complete")
}

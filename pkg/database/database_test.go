package database

import (
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(Config{Path: filepath.Join(t.TempDir(), "test.db")}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRunMigrations_Embedded(t *testing.T) {
	db := openTestDB(t)
	m := NewMigrator(db, zap.NewNop())

	applied, err := m.RunMigrations(EmbeddedMigrations())
	require.NoError(t, err)
	assert.Positive(t, applied)

	for _, table := range []string{"reimbursements", "reimbursement_line_items", "deposits", "audit_log", "attachments", "profiles"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		assert.NoError(t, err, table)
	}

	again, err := m.RunMigrations(EmbeddedMigrations())
	require.NoError(t, err)
	assert.Zero(t, again, "second run should be a no-op")
}

func TestAuditLogIsAppendOnly(t *testing.T) {
	db := openTestDB(t)
	_, err := NewMigrator(db, zap.NewNop()).RunMigrations(EmbeddedMigrations())
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO audit_log (record_kind, record_id, action, actor_id) VALUES ('deposit', 'd1', 'created', 'u1')`)
	require.NoError(t, err)

	_, err = db.Exec(`UPDATE audit_log SET action = 'verified' WHERE record_id = 'd1'`)
	assert.Error(t, err)
}

func TestStoreTimestampsParse(t *testing.T) {
	db := openTestDB(t)

	var raw string
	require.NoError(t, db.QueryRow("SELECT "+NowExpr).Scan(&raw))

	ts, err := ParseTime(raw)
	require.NoError(t, err)
	assert.False(t, ts.IsZero())
}

func TestLoadMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"002_add_index.sql": {Data: []byte("CREATE INDEX x ON t(a);")},
		"001_init.sql":      {Data: []byte("CREATE TABLE t (a TEXT);")},
		"README.md":         {Data: []byte("ignored")},
	}

	migrations, err := LoadMigrations(fsys)
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "init", migrations[0].Name)
	assert.Equal(t, "add_index", migrations[1].Name)
}

func TestLoadMigrations_RejectsBadNames(t *testing.T) {
	_, err := LoadMigrations(fstest.MapFS{"init.sql": {Data: []byte("SELECT 1;")}})
	assert.Error(t, err)

	_, err = LoadMigrations(fstest.MapFS{
		"001_a.sql": {Data: []byte("SELECT 1;")},
		"001_b.sql": {Data: []byte("SELECT 1;")},
	})
	assert.Error(t, err)
}

func TestRunMigrations_RefusesEditedMigration(t *testing.T) {
	db := openTestDB(t)
	m := NewMigrator(db, zap.NewNop())

	_, err := m.RunMigrations(fstest.MapFS{"001_init.sql": {Data: []byte("CREATE TABLE t (a TEXT);")}})
	require.NoError(t, err)

	_, err = m.RunMigrations(fstest.MapFS{"001_init.sql": {Data: []byte("CREATE TABLE t (a TEXT, b TEXT);")}})
	assert.ErrorContains(t, err, "changed after it was applied")
}

func TestMigrator_Status(t *testing.T) {
	db := openTestDB(t)
	m := NewMigrator(db, zap.NewNop())

	first := fstest.MapFS{"001_init.sql": {Data: []byte("CREATE TABLE t (a TEXT);")}}
	_, err := m.RunMigrations(first)
	require.NoError(t, err)

	both := fstest.MapFS{
		"001_init.sql":  first["001_init.sql"],
		"002_index.sql": {Data: []byte("CREATE INDEX t_a ON t(a);")},
	}
	status, err := m.Status(both)
	require.NoError(t, err)
	require.Len(t, status, 2)
	assert.True(t, status[0].Applied)
	assert.NotEmpty(t, status[0].AppliedAt)
	assert.False(t, status[1].Applied)
	assert.Equal(t, "index", status[1].Name)
}

func TestNew_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "app.db")

	db, err := New(Config{Path: path}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var mode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestNew_RequiresPath(t *testing.T) {
	_, err := New(Config{}, zap.NewNop())
	assert.Error(t, err)
}

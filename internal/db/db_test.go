package db

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SteveOnorato/moat-temp-hum-ble/internal/config"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildDSN(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		cfg  config.Config
		want string
	}{
		{name: "explicit dsn", cfg: config.Config{SQLiteDSN: "file:x.db?mode=ro"}, want: "file:x.db?mode=ro"},
		{name: "plain path", cfg: config.Config{SQLitePath: filepath.Join(dir, "a", "t.db")}, want: "file:" + filepath.Join(dir, "a", "t.db") + "?_busy_timeout=5000&_journal_mode=WAL"},
		{name: "file uri", cfg: config.Config{SQLitePath: "file:t.db?cache=shared"}, want: "file:t.db?cache=shared&_busy_timeout=5000&_journal_mode=WAL"},
		{name: "memory", cfg: config.Config{SQLitePath: ":memory:"}, want: "file::memory:?_busy_timeout=5000&_journal_mode=WAL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildDSN(tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := buildDSN(config.Config{})
	assert.Error(t, err, "empty path")
}

func TestOpenAndMigrate(t *testing.T) {
	for _, logSQL := range []bool{false, true} {
		name := "plain"
		if logSQL {
			name = "logged"
		}
		t.Run(name, func(t *testing.T) {
			cfg := config.Config{SQLitePath: filepath.Join(t.TempDir(), "data", "temphum.db"), DBLogSQL: logSQL}
			db, err := Open(cfg, discard())
			require.NoError(t, err)
			defer func() { _ = Close(db) }()

			ctx := context.Background()
			require.NoError(t, Migrate(ctx, db, discard()))
			// A second run finds nothing to do.
			require.NoError(t, Migrate(ctx, db, discard()))

			var n int
			require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&n))
			assert.Equal(t, 2, n)
			for _, table := range []string{"devices", "reports", "rejections"} {
				_, err := db.Exec(`SELECT 1 FROM ` + table + ` LIMIT 1`)
				assert.NoError(t, err, table)
			}
			_, err = db.Exec(`SELECT raw FROM rejections LIMIT 1`)
			assert.NoError(t, err, "rejections.raw")
		})
	}
}

func TestPendingMigrations_OrderAndFilter(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/0002_b.sql":   {Data: []byte("B")},
		"sql/0001_a.sql":   {Data: []byte("A")},
		"sql/0003_c.sql":   {Data: []byte("C")},
		"sql/README.md":    {Data: []byte("ignored")},
		"sql/01_short.sql": {Data: []byte("ignored")},
	}

	got, err := pendingMigrations(fsys, "sql", map[string]bool{"0002": true})
	require.NoError(t, err)

	var names []string
	for _, m := range got {
		names = append(names, m.version+"_"+m.name+"="+m.body)
	}
	assert.Equal(t, []string{"0001_a=A", "0003_c=C"}, names)
}

func TestClose_Nil(t *testing.T) {
	assert.NoError(t, Close(nil))
}

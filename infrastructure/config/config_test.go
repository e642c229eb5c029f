package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func writeFile(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom("")
	require.NoError(t, err)

	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Equal(t, "applistvideos", cfg.Store.DynamoDBTable)
	assert.Equal(t, 2*time.Second, cfg.Store.PollInterval)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadFrom_FileThenEnv(t *testing.T) {
	path := writeFile(t, t.TempDir(), `
log_level: debug
store:
  backend: dynamodb
  dynamodb_table: videos-table
  poll_interval: 5s
sync:
  strict_favorite_toggle: true
`)
	t.Setenv("DYNAMODB_TABLE", "from-env")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, BackendDynamoDB, cfg.Store.Backend)
	assert.Equal(t, "from-env", cfg.Store.DynamoDBTable)
	assert.Equal(t, 5*time.Second, cfg.Store.PollInterval)
	assert.True(t, cfg.Sync.StrictFavoriteToggle)
	assert.Equal(t, path, cfg.File)
}

func TestLoadFrom_MissingFileIsIgnored(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Empty(t, cfg.File)
}

func TestLoadFrom_UnknownKeyRejected(t *testing.T) {
	path := writeFile(t, t.TempDir(), "no_such_key: 1\n")

	_, err := LoadFrom(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"unknown backend", func(c *Config) { c.Store.Backend = "redis" }, false},
		{"postgres without dsn", func(c *Config) { c.Store.Backend = BackendPostgres }, false},
		{"zero poll interval", func(c *Config) { c.Store.PollInterval = 0 }, false},
		{"production without secret", func(c *Config) {
			c.Environment = "production"
			c.Store.Backend = BackendDynamoDB
		}, false},
		{"production memory store", func(c *Config) {
			c.Environment = "production"
			c.Auth.JWTSecret = "s"
		}, false},
		{"production dev identity", func(c *Config) {
			c.Environment = "production"
			c.Store.Backend = BackendDynamoDB
			c.Auth.JWTSecret = "s"
			c.Auth.DevIdentity = "u1"
		}, false},
		{"production ok", func(c *Config) {
			c.Environment = "production"
			c.Store.Backend = BackendDynamoDB
			c.Auth.JWTSecret = "s"
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("TEST_LIST", " a, b ,,c")
	t.Setenv("TEST_DURATION", "bogus")
	t.Setenv("TEST_BOOL", "yes")

	assert.Equal(t, []string{"a", "b", "c"}, getEnvList("TEST_LIST", nil))
	assert.Equal(t, time.Second, getEnvDuration("TEST_DURATION", time.Second))
	assert.True(t, getEnvBool("TEST_BOOL", false))
	assert.Equal(t, 7, getEnvInt("TEST_UNSET_INT", 7))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("nonsense"))
}

func TestWatcher_ReloadUpdatesLevel(t *testing.T) {
	path := writeFile(t, t.TempDir(), "log_level: info\n")
	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	w, err := NewWatcher(cfg, zap.NewNop())
	require.NoError(t, err)
	defer w.Stop()

	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	ApplyLogLevel(w, level)

	writeFile(t, filepath.Dir(path), "log_level: debug\n")

	assert.Eventually(t, func() bool {
		return level.Level() == zapcore.DebugLevel
	}, 5*time.Second, 50*time.Millisecond)
	assert.Equal(t, "debug", w.Current().LogLevel)
}

func TestWatcher_InvalidReloadKeepsPrevious(t *testing.T) {
	cfg := Default()
	cfg.File = writeFile(t, t.TempDir(), "store:\n  backend: nope\n")
	w := &Watcher{config: cfg, logger: zap.NewNop(), stopCh: make(chan struct{}), loader: LoadFrom}

	called := false
	w.OnChange(func(*Config) { called = true })
	w.reload()

	assert.False(t, called)
	assert.Equal(t, BackendMemory, w.Current().Store.Backend)
}

func TestWatcher_WithoutFileIsInert(t *testing.T) {
	cfg := Default()
	w, err := NewWatcher(cfg, zap.NewNop())
	require.NoError(t, err)

	assert.Same(t, cfg, w.Current())
	w.Stop()
}

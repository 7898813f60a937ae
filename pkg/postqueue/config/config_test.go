package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/postqueue/pkg/postqueue/config"
	pqerrors "github.com/randalmurphal/postqueue/pkg/postqueue/errors"
)

// TestNew verifies Config creation from maps.
func TestNew(t *testing.T) {
	assert.NotNil(t, config.New(nil).Raw())
	assert.Equal(t, "v", config.New(map[string]any{"k": "v"}).String("k", ""))
}

// TestDottedLookup verifies nested map traversal.
func TestDottedLookup(t *testing.T) {
	cfg := config.New(map[string]any{
		"queue": map[string]any{
			"batch_size": 20,
			"retry": map[string]any{
				"max_attempts": int64(3),
			},
		},
		"legacy": map[any]any{"key": "value"},
		"a.b":    "literal",
		"a":      map[string]any{"b": "nested"},
		"scalar": "x",
	})

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"one level", cfg.Int("queue.batch_size", 0), 20},
		{"two levels int64", cfg.Int("queue.retry.max_attempts", 0), 3},
		{"missing leaf", cfg.Int("queue.retry.missing", 7), 7},
		{"missing branch", cfg.String("nope.key", "d"), "d"},
		{"through scalar", cfg.String("scalar.key", "d"), "d"},
		{"any-keyed map", cfg.String("legacy.key", ""), "value"},
		{"literal key wins", cfg.String("a.b", ""), "literal"},
		{"has nested", cfg.Has("queue.retry"), true},
		{"has missing", cfg.Has("queue.nothing"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

// TestDuration verifies duration extraction with various input types.
func TestDuration(t *testing.T) {
	tests := []struct {
		name string
		val  any
		want time.Duration
	}{
		{"string", "250ms", 250 * time.Millisecond},
		{"complex string", "1h30m", 90 * time.Minute},
		{"int seconds", 5, 5 * time.Second},
		{"int64 seconds", int64(2), 2 * time.Second},
		{"float seconds", 1.5, 1500 * time.Millisecond},
		{"duration", 3 * time.Second, 3 * time.Second},
		{"invalid string", "soon", time.Minute},
		{"wrong type", true, time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.New(map[string]any{"timeout": tt.val})
			assert.Equal(t, tt.want, cfg.Duration("timeout", time.Minute))
		})
	}
}

// TestInt verifies integer coercion.
func TestInt(t *testing.T) {
	tests := []struct {
		name string
		val  any
		want int
	}{
		{"int", 3, 3},
		{"int64", int64(4), 4},
		{"whole float", 5.0, 5},
		{"fractional float", 5.5, -1},
		{"string", "5", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.New(map[string]any{"n": tt.val})
			assert.Equal(t, tt.want, cfg.Int("n", -1))
		})
	}
}

func TestFloatAndBool(t *testing.T) {
	cfg := config.New(map[string]any{"f": 2, "g": int64(3), "h": 0.5, "b": true, "s": "true"})

	assert.Equal(t, 2.0, cfg.Float("f", 0))
	assert.Equal(t, 3.0, cfg.Float("g", 0))
	assert.Equal(t, 0.5, cfg.Float("h", 0))
	assert.Equal(t, 9.0, cfg.Float("missing", 9))
	assert.True(t, cfg.Bool("b", false))
	assert.False(t, cfg.Bool("s", false), "strings are not coerced to bool")
}

const yamlDoc = `
database:
  path: /var/lib/postqueue/data.db
queue:
  batch_size: 20
  item_delay: 250ms
  retry:
    max_attempts: 5
    initial_backoff: 10s
transport:
  timeout: 5s
  user_agent: stats-agent/3
log:
  level: debug
schedule:
  drain: "@every 30s"
  cleanup_hours: 48
`

const tomlDoc = `
[database]
path = "/var/lib/postqueue/data.db"

[queue]
batch_size = 20
item_delay = "250ms"

[queue.retry]
max_attempts = 5
initial_backoff = "10s"

[transport]
timeout = "5s"
user_agent = "stats-agent/3"

[log]
level = "debug"

[schedule]
drain = "@every 30s"
cleanup_hours = 48
`

const jsonDoc = `{
  "database": {"path": "/var/lib/postqueue/data.db"},
  "queue": {"batch_size": 20, "item_delay": "250ms",
            "retry": {"max_attempts": 5, "initial_backoff": "10s"}},
  "transport": {"timeout": "5s", "user_agent": "stats-agent/3"},
  "log": {"level": "debug"},
  "schedule": {"drain": "@every 30s", "cleanup_hours": 48}
}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// TestFromFile verifies that every format yields the same settings.
func TestFromFile(t *testing.T) {
	files := map[string]string{
		"postqueue.yaml": yamlDoc,
		"postqueue.yml":  yamlDoc,
		"postqueue.toml": tomlDoc,
		"postqueue.json": jsonDoc,
	}

	for name, content := range files {
		t.Run(name, func(t *testing.T) {
			cfg, err := config.FromFile(writeFile(t, name, content))
			require.NoError(t, err)

			s := config.FromConfig(cfg)
			assert.Equal(t, "/var/lib/postqueue/data.db", s.DatabasePath)
			assert.Equal(t, 20, s.BatchSize)
			assert.Equal(t, 250*time.Millisecond, s.ItemDelay)
			assert.Equal(t, 5, s.Retry.MaxAttempts)
			assert.Equal(t, 10*time.Second, s.Retry.InitialBackoff)
			assert.Equal(t, 5*time.Second, s.TransportTimeout)
			assert.Equal(t, "stats-agent/3", s.UserAgent)
			assert.Equal(t, "debug", s.LogLevel)
			assert.Equal(t, "@every 30s", s.DrainSchedule)
			assert.Equal(t, "@daily", s.CleanupSchedule, "unset keys keep defaults")
			assert.Equal(t, 48, s.CleanupHours)
		})
	}
}

func TestFromFile_Errors(t *testing.T) {
	_, err := config.FromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = config.FromFile(writeFile(t, "config.ini", "a=b"))
	assert.ErrorContains(t, err, "unsupported config file extension")

	_, err = config.FromFile(writeFile(t, "bad.toml", "[queue\nbatch_size = "))
	assert.ErrorContains(t, err, "parse toml")

	_, err = config.FromFile(writeFile(t, "bad.json", "{"))
	assert.ErrorContains(t, err, "parse json")

	_, err = config.FromFile(writeFile(t, "bad.yaml", "queue: [unclosed"))
	assert.ErrorContains(t, err, "parse yaml")
}

func TestLoad(t *testing.T) {
	t.Run("defaults without path or env", func(t *testing.T) {
		t.Setenv(config.EnvConfigPath, "")
		s, err := config.Load("")
		require.NoError(t, err)
		assert.Equal(t, config.DefaultSettings(), s)
	})

	t.Run("env path", func(t *testing.T) {
		t.Setenv(config.EnvConfigPath, writeFile(t, "env.yaml", "queue:\n  batch_size: 7\n"))
		s, err := config.Load("")
		require.NoError(t, err)
		assert.Equal(t, 7, s.BatchSize)
	})

	t.Run("explicit path wins", func(t *testing.T) {
		t.Setenv(config.EnvConfigPath, writeFile(t, "env.yaml", "queue:\n  batch_size: 7\n"))
		s, err := config.Load(writeFile(t, "explicit.toml", "[queue]\nbatch_size = 9\n"))
		require.NoError(t, err)
		assert.Equal(t, 9, s.BatchSize)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}

func TestDefaultSettings(t *testing.T) {
	s := config.DefaultSettings()
	assert.Equal(t, 50, s.BatchSize)
	assert.Equal(t, 100*time.Millisecond, s.ItemDelay)
	assert.Equal(t, "GStatistics/1.0", s.UserAgent)
	assert.Equal(t, config.RetrySettings{}, s.Retry)
}

func TestRetrySettings_Policy(t *testing.T) {
	boom := errors.New("boom")

	t.Run("zero value retries forever", func(t *testing.T) {
		p := config.RetrySettings{}.Policy()
		for attempt := 1; attempt < 100; attempt += 33 {
			d := p.Decide(attempt, boom)
			assert.Equal(t, pqerrors.ActionKeep, d.Action)
			assert.Zero(t, d.Delay)
		}
	})

	t.Run("max attempts drops", func(t *testing.T) {
		p := config.RetrySettings{MaxAttempts: 2, InitialBackoff: time.Second}.Policy()
		assert.Equal(t, pqerrors.ActionKeep, p.Decide(1, boom).Action)
		assert.Equal(t, time.Second, p.Decide(1, boom).Delay)
		assert.Equal(t, pqerrors.ActionDrop, p.Decide(2, boom).Action)
	})

	t.Run("factor and cap", func(t *testing.T) {
		p := config.RetrySettings{InitialBackoff: time.Second, Factor: 3, MaxBackoff: 5 * time.Second}.Policy()
		assert.Equal(t, 3*time.Second, p.Decide(2, boom).Delay)
		assert.Equal(t, 5*time.Second, p.Decide(3, boom).Delay)
	})
}

package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/postqueue/pkg/postqueue"
	"github.com/randalmurphal/postqueue/pkg/postqueue/config"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

// run executes the CLI with args against a fresh command tree.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func newEnv(t *testing.T) (db string, srv *httptest.Server) {
	t.Helper()
	t.Setenv(config.EnvConfigPath, "")
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if r.URL.Path == "/fail" {
			http.Error(w, "nope", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("reply:" + string(body)))
	}))
	t.Cleanup(srv.Close)
	return filepath.Join(t.TempDir(), "queue.db"), srv
}

func TestEnqueueProcessTake(t *testing.T) {
	db, srv := newEnv(t)

	out, err := run(t, "--db", db, "enqueue", "-r", srv.URL, `{"k":1}`)
	require.NoError(t, err)
	assert.Contains(t, out, "[QUEUE_ADD_SUCCESS]")

	out, err = run(t, "--db", db, "pending")
	require.NoError(t, err)
	assert.Contains(t, out, "1 queued, 1 eligible shown")
	assert.Contains(t, out, srv.URL)
	assert.NotContains(t, out, "[LIBRARY_LOADED]", "pending prints no events")

	out, err = run(t, "--db", db, "process")
	require.NoError(t, err)
	assert.Contains(t, out, "[REQUEST_SUCCESS]")
	assert.Contains(t, out, "1 found, 1 delivered, 0 failed, 0 dropped")

	out, err = run(t, "--db", db, "-q", "take", srv.URL, `{"k":1}`)
	require.NoError(t, err)
	assert.Equal(t, "reply:{\"k\":1}\n", out)

	_, err = run(t, "--db", db, "-q", "take", srv.URL, `{"k":1}`)
	assert.EqualError(t, err, postqueue.TextNoResponse)
}

func TestProcess_FailureKept(t *testing.T) {
	db, srv := newEnv(t)

	_, err := run(t, "--db", db, "enqueue", srv.URL+"/fail", `{}`)
	require.NoError(t, err)

	out, err := run(t, "--db", db, "process")
	require.NoError(t, err)
	assert.Contains(t, out, "[REQUEST_FAILED]")
	assert.Contains(t, out, "1 found, 0 delivered, 1 failed")

	out, err = run(t, "--db", db, "pending")
	require.NoError(t, err)
	assert.Contains(t, out, "1 queued")
}

func TestSend(t *testing.T) {
	db, srv := newEnv(t)

	out, err := run(t, "--db", db, "send", srv.URL, `{}`)
	require.NoError(t, err)
	assert.Contains(t, out, "[SEND_REQUEST_SUCCESS]")

	_, err = run(t, "--db", db, "send", srv.URL+"/fail", `{}`)
	assert.ErrorIs(t, err, errCommandFailed)

	out, err = run(t, "--db", db, "-q", "send", "--wait", srv.URL, `{"w":1}`)
	require.NoError(t, err)
	assert.Equal(t, "reply:{\"w\":1}\n", out)

	_, err = run(t, "--db", db, "-q", "send", "--wait", srv.URL+"/fail", `{}`)
	assert.EqualError(t, err, "ERROR: HTTP 502 - nope\n")
}

func TestPurgeAndCount(t *testing.T) {
	db, srv := newEnv(t)

	_, err := run(t, "--db", db, "enqueue", srv.URL, `{}`)
	require.NoError(t, err)

	out, err := run(t, "--db", db, "-q", "count", "--hours", "1")
	require.NoError(t, err)
	assert.Equal(t, "0\n", out)

	out, err = run(t, "--db", db, "count", "--hours", "1", "--responses")
	require.NoError(t, err)
	assert.Contains(t, out, "Found 0 responses older than 1 hours")

	out, err = run(t, "--db", db, "purge")
	require.NoError(t, err)
	assert.Contains(t, out, "[CLEAN_START] Cleaning records older than 168 hours")
	assert.Contains(t, out, "0 deleted")

	_, err = run(t, "--db", db, "purge", "--hours=-5")
	require.NoError(t, err, "negative flag value falls back to the configured threshold")
}

func TestConfigFile(t *testing.T) {
	db, _ := newEnv(t)
	cfgPath := filepath.Join(t.TempDir(), "postqueue.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("database:\n  path: "+db+"\nschedule:\n  cleanup_hours: 5\n"), 0o600))

	out, err := run(t, "--config", cfgPath, "purge")
	require.NoError(t, err)
	assert.Contains(t, out, "older than 5 hours")

	_, err = os.Stat(db)
	assert.NoError(t, err, "database.path from the config file is used")

	_, err = run(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "pending")
	assert.ErrorContains(t, err, "loading config")
}

func TestServe_InvalidSchedule(t *testing.T) {
	db, _ := newEnv(t)
	cfgPath := filepath.Join(t.TempDir(), "postqueue.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("[schedule]\ndrain = \"every so often\"\n"), 0o600))

	_, err := run(t, "--config", cfgPath, "--db", db, "serve")
	assert.ErrorContains(t, err, "schedule.drain")
}

func TestNewScheduler(t *testing.T) {
	db, _ := newEnv(t)
	client, err := postqueue.Open(postqueue.WithDatabasePath(db))
	require.NoError(t, err)
	defer client.Close(context.Background())

	s := config.DefaultSettings()
	c, err := newScheduler(context.Background(), client, s)
	require.NoError(t, err)
	assert.Len(t, c.Entries(), 2)

	s.CleanupSchedule = ""
	c, err = newScheduler(context.Background(), client, s)
	require.NoError(t, err)
	assert.Len(t, c.Entries(), 1)

	s.CleanupSchedule = "61 * * * *"
	_, err = newScheduler(context.Background(), client, s)
	assert.ErrorContains(t, err, "schedule.cleanup")
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "postqueue version "+Version)
}

func TestArgs(t *testing.T) {
	_, err := run(t, "enqueue", "only-url")
	assert.Error(t, err)
}

func TestEventColor(t *testing.T) {
	assert.Equal(t, "[REQUEST_FAILED]", eventColor("REQUEST_FAILED").Sprint("[REQUEST_FAILED]"))
	assert.Equal(t, "abc…", abbreviate("abcdef", 4))
	assert.Equal(t, "abc", abbreviate("abc", 4))
}

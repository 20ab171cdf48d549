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
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feed_updater/internal/service"
)

func testFeed() string {
	pub := time.Now().Add(-time.Hour).Format(time.RFC1123Z)
	return `<?xml version="1.0"?>
<rss version="2.0"><channel><title>CLI Feed</title>
<item><title>hello</title><link>https://example.com/hello</link><pubDate>` + pub + `</pubDate></item>
</channel></rss>`
}

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	cfg := "database:\n  path: " + filepath.Join(dir, "feeds.db") + "\nlog_level: error\n"
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := newCommand()
	cmd.Writer = &out
	require.NoError(t, cmd.Run(context.Background(), append([]string{"updater"}, args...)))
	return out.String()
}

func TestCLI_SourcesAndUpdate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, testFeed())
	}))
	defer srv.Close()

	cfg := writeConfig(t)

	var hint bytes.Buffer
	cmd := newCommand()
	cmd.Writer = &hint
	err := cmd.Run(context.Background(), []string{"updater", "--config", cfg, "update"})
	require.ErrorIs(t, err, errNothingToDo)
	require.ErrorIs(t, err, service.ErrNoSources)
	assert.Equal(t, exitNothingToDo, exitCode(err))
	assert.Contains(t, hint.String(), "no sources configured")

	out := run(t, "--config", cfg, "sources", "add", srv.URL)
	assert.Contains(t, out, "added #1 CLI Feed with 1 entries")

	run(t, "--config", cfg, "sources", "rename", "1", "My", "Feed")
	out = run(t, "--config", cfg, "sources", "list")
	assert.Contains(t, out, "My Feed")
	assert.Contains(t, out, srv.URL)

	// Just fetched and without validators, so the source sits out the cooldown.
	out = run(t, "--config", cfg, "update")
	assert.Contains(t, out, "updated 0 of 1 sources")

	out = run(t, "--config", cfg, "rank")
	assert.Contains(t, out, "My Feed (1 unread)")
	out = run(t, "--config", cfg, "rank", "--window-days", "7")
	assert.Contains(t, out, "My Feed (1 unread)")

	out = run(t, "--config", cfg, "stats", "--timeframe", "week")
	assert.Contains(t, out, "SOURCES")

	run(t, "--config", cfg, "sources", "remove", "1")
	out = run(t, "--config", cfg, "sources", "list")
	assert.NotContains(t, out, srv.URL)
}

func TestCLI_RejectsBadInput(t *testing.T) {
	cfg := writeConfig(t)

	cmd := newCommand()
	cmd.Writer = io.Discard
	err := cmd.Run(context.Background(), []string{"updater", "--config", cfg, "sources", "remove", "abc"})
	require.Error(t, err)
	assert.Equal(t, 1, exitCode(err))

	cmd = newCommand()
	cmd.Writer = io.Discard
	assert.Error(t, cmd.Run(context.Background(), []string{"updater", "--config", cfg, "stats", "--timeframe", "year"}))
}

func TestParseID(t *testing.T) {
	id, err := parseID("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	_, err = parseID("0")
	assert.Error(t, err)
	_, err = parseID("")
	assert.Error(t, err)
}

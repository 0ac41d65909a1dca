package main

import (
	"bytes"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meetline/server/config"
	"github.com/meetline/server/persist"
	"github.com/meetline/server/segment"
)

const outlineYAML = `items:
  - title: Opening
    children:
      - title: Budget
  - title: Roadmap
`

func isolateEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv("LOG_FILE", filepath.Join(dir, "test.log"))
	for _, k := range []string{
		"MEETLINE_ADDR", "MEETLINE_TOKEN", "MEETLINE_DATA_DIR", "MEETLINE_STORE",
		"MEETLINE_DB_PATH", "MEETLINE_AGENDA_FILE", "MEETLINE_PAUSE_POLICY",
		"MEETLINE_DEV_MODE", "MEETLINE_JOURNAL",
	} {
		t.Setenv(k, "")
	}
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSeedThenReport(t *testing.T) {
	for _, kind := range []string{"file", "sqlite"} {
		t.Run(kind, func(t *testing.T) {
			dir := isolateEnv(t)
			dataDir := filepath.Join(dir, "meet")
			outline := filepath.Join(dir, "agenda.yaml")
			require.NoError(t, os.WriteFile(outline, []byte(outlineYAML), 0o644))

			out, err := run(t, "seed", outline, "--data-dir", dataDir, "--store", kind)
			require.NoError(t, err)
			assert.Contains(t, out, "imported 3 items")

			out, err = run(t, "report", "--json", "--data-dir", dataDir, "--store", kind)
			require.NoError(t, err)
			var rep segment.Report
			require.NoError(t, json.Unmarshal([]byte(out), &rep))
			require.Len(t, rep.Entries, 3)
			assert.Equal(t, "Opening", rep.Entries[0].Title)
			assert.Equal(t, "1.1", rep.Entries[1].Number)
			assert.Zero(t, rep.TotalSeconds)

			out, err = run(t, "report", "--data-dir", dataDir, "--store", kind)
			require.NoError(t, err)
			assert.Contains(t, out, "Roadmap")
			assert.Contains(t, out, "TOTAL")
		})
	}
}

func TestSeed_ClearsPendingJournal(t *testing.T) {
	dir := isolateEnv(t)
	dataDir := filepath.Join(dir, "meet")
	outline := filepath.Join(dir, "agenda.yaml")
	require.NoError(t, os.WriteFile(outline, []byte(outlineYAML), 0o644))

	j, err := persist.OpenJournal(filepath.Join(dataDir, "pending.json"))
	require.NoError(t, err)
	j.Record("old", persist.NewPatch(nil, "", 3))

	_, err = run(t, "seed", outline, "--data-dir", dataDir)
	require.NoError(t, err)

	j, err = persist.OpenJournal(filepath.Join(dataDir, "pending.json"))
	require.NoError(t, err)
	assert.Zero(t, j.Len())
}

func TestSeed_RequiresOutline(t *testing.T) {
	dir := isolateEnv(t)
	_, err := run(t, "seed", "--data-dir", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no outline")
}

func TestGlobalFlags_InvalidStore(t *testing.T) {
	dir := isolateEnv(t)
	_, err := run(t, "report", "--data-dir", dir, "--store", "postgres")
	require.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestDisplayHost(t *testing.T) {
	addr := &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 8080}
	assert.Equal(t, "127.0.0.1:8080", displayHost(addr))

	addr = &net.TCPAddr{IP: net.IPv4zero, Port: 9000}
	assert.True(t, strings.HasSuffix(displayHost(addr), ":9000"))
	assert.NotContains(t, displayHost(addr), "0.0.0.0")
}

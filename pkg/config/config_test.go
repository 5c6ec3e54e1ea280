package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultConfigFilename)
	require.NoError(t, os.WriteFile(path, []byte(`
market: de
services:
  - api
  - web
retry_max: 5
settle_grace: 45s
skip_jenkins: true
slack:
  webhook_url: https://hooks.slack.com/services/T0/B0/xyz
  channel: "#deployments"
history_db: /tmp/history.db
roster:
  shift: weekday
  oncall: alice
  escalation: bob
`), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, "de", cfg.Market)
	require.Equal(t, []string{"api", "web"}, cfg.Services)
	require.Equal(t, 5, cfg.RetryMax)
	require.Equal(t, 45*time.Second, cfg.SettleGrace.Std())
	require.True(t, cfg.SkipJenkins)
	require.Equal(t, "#deployments", cfg.Slack.Channel)
	require.Equal(t, "weekday", cfg.Roster.Shift)
	require.Equal(t, "alice", cfg.Roster.Oncall)
	require.Equal(t, "bob", cfg.Roster.Escalation)
}

func TestLoadOptionalMissingFileGetsDefaults(t *testing.T) {
	cfg, err := LoadOptional(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.Equal(t, 3, cfg.RetryMax)
	require.Equal(t, 20*time.Second, cfg.SettleGrace.Std())
	require.Equal(t, "opsdash-history.db", cfg.HistoryDB)
}

func TestLoadFromFileBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("services: [unclosed"), 0o644))
	_, err := LoadFromFile(path)
	require.Error(t, err)
}

func TestParseEmailMap(t *testing.T) {
	raw := `Alice Example <alice@example.com>
Bob <bob@example.com>, Carol C <carol@example.com>
broken entry
<noname@example.com>
Dave <not-an-email>`

	m := ParseEmailMap(raw)
	require.Len(t, m, 3)
	require.Equal(t, "alice@example.com", m["Alice Example"])
	require.Equal(t, "bob@example.com", m["Bob"])
	require.Equal(t, "carol@example.com", m["Carol C"])
}

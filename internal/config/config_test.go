package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{configPathEnv, rulesDirEnv, seenDSNEnv, logLevelEnv} {
		t.Setenv(k, "")
	}
}

func TestLoad_DefaultsWhenNoFile(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "./rules", cfg.Rules.Dir)
	assert.Equal(t, "*.rule", cfg.Rules.Pattern)
	assert.Equal(t, "seen.list", cfg.Seen.Log)
	assert.Equal(t, time.Local, cfg.Location())
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "modbot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rules:
  dir: /srv/rules
  pattern: "**/*.rule"
seen:
  log: /var/lib/modbot/seen.list
log:
  level: debug
metrics:
  addr: ":9102"
timezone: UTC
`), 0644))

	t.Setenv(seenDSNEnv, "postgres://localhost/modbot")
	t.Setenv(logLevelEnv, "warn")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/rules", cfg.Rules.Dir)
	assert.Equal(t, "**/*.rule", cfg.Rules.Pattern)
	assert.Equal(t, "/var/lib/modbot/seen.list", cfg.Seen.Log)
	assert.Equal(t, "modbot_seen", cfg.Seen.Table)
	assert.Equal(t, "postgres://localhost/modbot", cfg.Seen.DSN)
	assert.Equal(t, ":9102", cfg.Metrics.Addr)
	assert.Equal(t, time.UTC, cfg.Location())

	level, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)
}

func TestLoad_ConfigPathFromEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "other.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rules:\n  dir: ./elsewhere\n"), 0644))
	t.Setenv(configPathEnv, path)
	t.Setenv(rulesDirEnv, "/from/env")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/from/env", cfg.Rules.Dir)
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err, "an explicit path must exist")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("rules: [not, a, map"), 0644))
	_, err = Load(bad)
	assert.Error(t, err)

	tz := filepath.Join(dir, "tz.yaml")
	require.NoError(t, os.WriteFile(tz, []byte("timezone: Mars/Olympus\n"), 0644))
	_, err = Load(tz)
	assert.Error(t, err)

	_, err = Config{Log: LogConfig{Level: "loud"}}.Level()
	assert.Error(t, err)
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWritesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, resolved, err := Load(nil, path, nil)
	require.NoError(t, err)
	assert.Equal(t, path, resolved)
	assert.Equal(t, Default(), cfg)

	_, err = os.Stat(path)
	require.NoError(t, err, "default config file should be created")
}

func TestLoadPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: \":9000\"\nsession_idle_timeout: 10m\nlog_level: warn\n"), 0o600))

	t.Setenv("WIRECHAT_ADDR", ":9100")
	t.Setenv("WIRECHAT_LOG_LEVEL", "error")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("log-level", "", "")
	flags.String("unrelated", "", "")
	require.NoError(t, flags.Parse([]string{"--log-level=debug"}))

	cfg, _, err := Load(nil, path, flags)
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.Addr, "env beats file")
	assert.Equal(t, 10*time.Minute, cfg.SessionIdleTimeout, "file beats default")
	assert.Equal(t, "debug", cfg.LogLevel, "flag beats env")
	assert.Equal(t, 24*time.Hour, cfg.Retention)
	assert.Equal(t, 500, cfg.MaxMessageLength)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("jwt_secret: \"\"\n"), 0o600))

	_, _, err := Load(nil, path, nil)
	require.ErrorIs(t, err, ErrInvalid)
}

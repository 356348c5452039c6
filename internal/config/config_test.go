package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type sample struct {
	Addr    string   `yaml:"addr"`
	Workers int      `yaml:"workers"`
	Wait    Duration `yaml:"wait"`
	Keep    string   `yaml:"keep"`
}

func TestParseExpandsEnv(t *testing.T) {
	t.Setenv("BRIDGE_TEST_ADDR", "redis:6379")

	cfg := sample{Keep: "default"}
	err := Parse([]byte(`
addr: ${BRIDGE_TEST_ADDR}
workers: ${BRIDGE_TEST_WORKERS:-8}
wait: 250ms
`), &cfg)
	require.NoError(t, err)

	require.Equal(t, "redis:6379", cfg.Addr)
	require.Equal(t, 8, cfg.Workers)
	require.Equal(t, 250*time.Millisecond, cfg.Wait.Duration())
	require.Equal(t, "default", cfg.Keep)
}

func TestParseBadDuration(t *testing.T) {
	var cfg sample
	err := Parse([]byte("wait: soon\n"), &cfg)
	require.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: localhost:1\n"), 0o600))

	var cfg sample
	require.NoError(t, Load(path, &cfg))
	require.Equal(t, "localhost:1", cfg.Addr)

	require.Error(t, Load(filepath.Join(t.TempDir(), "missing.yaml"), &cfg))
}

func TestGetenv(t *testing.T) {
	t.Setenv("BRIDGE_TEST_INT", "12")
	t.Setenv("BRIDGE_TEST_BAD_INT", "x")
	t.Setenv("BRIDGE_TEST_DUR", "3s")

	require.Equal(t, "fallback", Getenv("BRIDGE_TEST_UNSET", "fallback"))
	require.Equal(t, 12, GetenvInt("BRIDGE_TEST_INT", 1))
	require.Equal(t, 1, GetenvInt("BRIDGE_TEST_BAD_INT", 1))
	require.Equal(t, 3*time.Second, GetenvDuration("BRIDGE_TEST_DUR", time.Second))
	require.Equal(t, time.Second, GetenvDuration("BRIDGE_TEST_UNSET", time.Second))
}

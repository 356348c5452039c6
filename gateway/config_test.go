package gateway

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alovak/cardflow-bridge/internal/config"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	err := os.WriteFile(path, []byte(`
http_addr: ${GATEWAY_TEST_ADDR:-0.0.0.0:8181}
redis:
  addr: redis:6379
wait_timeout: 3s
correlation_ttl: 1m
rate_limit: 25
`), 0o600)
	require.NoError(t, err)

	t.Setenv("CORRELATION_TTL", "90s")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, "0.0.0.0:8181", cfg.HTTPAddr)
	require.Equal(t, "redis:6379", cfg.Redis.Addr)
	require.Equal(t, "cardflow:", cfg.Redis.Prefix, "defaults survive a partial file")
	require.Equal(t, 3*time.Second, cfg.WaitTimeout.Duration())
	require.Equal(t, 90*time.Second, cfg.CorrelationTTL.Duration(), "environment wins over the file")
	require.Equal(t, 25.0, cfg.RateLimit)
	require.Equal(t, 30*time.Second, cfg.MaxWait.Duration())
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.CorrelationTTL = config.Duration(10 * time.Second)
	require.ErrorContains(t, cfg.Validate(), "max_wait")

	cfg.MaxWait = config.Duration(5 * time.Second)
	require.NoError(t, cfg.Validate())

	cfg.WaitTimeout = config.Duration(6 * time.Second)
	require.ErrorContains(t, cfg.Validate(), "wait_timeout")

	t.Setenv("CORRELATION_TTL", "10s")
	_, err := LoadConfig("")
	require.Error(t, err)
}

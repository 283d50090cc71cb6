package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ZW_CONFIG", "")
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "zw-fingerprint", cfg.App.Name)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "ZW20", cfg.Device.Variant)
	assert.Equal(t, "FFFFFFFF", cfg.Device.Address)
	assert.False(t, cfg.Link.Enabled)
	assert.Equal(t, 2*time.Second, cfg.Link.ReadTimeout)
	assert.Equal(t, 512, cfg.Link.MaxFrameLen)
	assert.Equal(t, 3, cfg.Link.BreakerThreshold)
	assert.Equal(t, 15*time.Second, cfg.Link.StageTimeout)
	assert.Equal(t, 70*time.Second, cfg.HTTP.WriteTimeout)
	assert.Equal(t, "zw:", cfg.Redis.KeyPrefix)
	assert.True(t, cfg.Console.Enabled)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `app:
  env: prod
device:
  variant: ZW0623
  address: "12345678"
link:
  enabled: true
  target: /dev/ttyUSB0
  readTimeout: 500ms
console:
  authEnabled: true
  apiKeys: ["k1", "k2"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("ZW_HTTP_ADDR", ":9090")
	t.Setenv("ZW_LINK_BURST", "4")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.App.Env)
	assert.Equal(t, "ZW0623", cfg.Device.Variant)
	assert.Equal(t, "12345678", cfg.Device.Address)
	assert.True(t, cfg.Link.Enabled)
	assert.Equal(t, "/dev/ttyUSB0", cfg.Link.Target)
	assert.Equal(t, 500*time.Millisecond, cfg.Link.ReadTimeout)
	assert.Equal(t, 4, cfg.Link.Burst)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Console.APIKeys)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

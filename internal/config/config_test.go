package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SOLANA_RPC_URL", "")
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, DefaultRPCURL, cfg.Solana.RPCURL)
	assert.Equal(t, time.Second, cfg.Confirm.PollInterval)
	assert.Equal(t, 30, cfg.Confirm.MaxPolls)
	assert.Equal(t, "finalized", cfg.Confirm.Commitment)
	assert.Equal(t, "file", cfg.Storage.Driver)
	assert.Equal(t, "solana_wallets.json", cfg.Storage.WalletFile)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	yaml := `
solana:
  rpc_url: "http://file-endpoint:8899"
confirm:
  poll_interval: 250ms
  max_polls: 4
storage:
  data_dir: /tmp/records
app:
  port: 9090
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "http://file-endpoint:8899", cfg.Solana.RPCURL)
	assert.Equal(t, 250*time.Millisecond, cfg.Confirm.PollInterval)
	assert.Equal(t, 4, cfg.Confirm.MaxPolls)
	assert.Equal(t, "/tmp/records", cfg.Storage.DataDir)
	assert.Equal(t, 9090, cfg.App.Port)

	t.Setenv("SOLANA_RPC_URL", "http://env-endpoint:8899")
	cfg, err = Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "http://env-endpoint:8899", cfg.Solana.RPCURL)
}

func TestValidate(t *testing.T) {
	t.Setenv("SOLANA_RPC_URL", "")
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	bad := *cfg
	bad.Storage.Driver = "mysql"
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Confirm.Commitment = "eventually"
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Confirm.MaxPolls = 0
	assert.Error(t, bad.Validate())
}

func TestValidateMode(t *testing.T) {
	t.Setenv("SOLANA_RPC_URL", "")
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "release", cfg.App.Mode)

	bad := *cfg
	bad.App.Mode = "production"
	assert.Error(t, bad.Validate())
}

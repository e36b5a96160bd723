package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const treasury = "0x00000000000000000000000000000000000000ff"

func validConfig() Config {
	cfg := Defaults()
	cfg.Ledger.TreasuryAddress = treasury
	return cfg
}

func TestValidateDefaultsWithTreasury(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidateRequiresTreasury(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "treasury_address")
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "scrape"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateArchiveRequiresS3(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "archive"
	cfg.S3.Bucket = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket")
}

func TestValidateRejectsBadAccessAddress(t *testing.T) {
	cfg := validConfig()
	cfg.Access.Pause = []string{"nope"}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a valid hex address")
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "full"

[ledger]
treasury_address = "`+treasury+`"
platform_fee_pct = 5
min_pool_duration = "48h"
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "full", cfg.Mode)
	assert.Equal(t, int64(5), cfg.Ledger.PlatformFeePct)
	assert.Equal(t, 48*time.Hour, cfg.Ledger.MinPoolDuration.Duration)
	// Untouched fields keep their defaults.
	assert.Equal(t, int64(3), cfg.Ledger.CreatorFeePct)
	assert.Equal(t, 8000, cfg.Server.Port)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[ledger]
treasury_address = "`+treasury+`"
`), 0o600))

	t.Setenv("OPINION_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("OPINION_SERVER_ADMIN_API_KEY", "sekret")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, "sekret", cfg.Server.AdminAPIKey)
}

func TestGrantsShape(t *testing.T) {
	cfg := validConfig()
	cfg.Access.Pause = []string{treasury}

	grants := cfg.Grants()
	assert.Equal(t, []string{treasury}, grants["pause"])
	assert.Empty(t, grants["moderate"])
}

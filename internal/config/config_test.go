package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DB_DSN", "postgres://localhost/blockon_test")
	t.Setenv("JWT_ACCESS_SECRET", "secret")
	t.Setenv("LEDGER_RPC_URL", "ws://localhost:8546")
	t.Setenv("LEDGER_AGENT_KEY", "4c0883a69102937d6231471b5dbb6204fe512961708279feb1be6ae5538da033")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "0.0.0.0", cfg.HTTP.Host)
	assert.Equal(t, 7090, cfg.HTTP.Port)
	assert.Equal(t, int64(1337), cfg.Ledger.ChainID)
	assert.Equal(t, 2*time.Minute, cfg.Ledger.ConfirmTimeout)
	assert.Equal(t, time.Duration(0), cfg.Ledger.ReconcileInterval)
	assert.Equal(t, "./uploads", cfg.Upload.Dir)
}

func TestLoadOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("LEDGER_CONFIRM_TIMEOUT", "45s")
	t.Setenv("LEDGER_RECONCILE_INTERVAL", "5m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, 9000, cfg.HTTP.Port)
	assert.Equal(t, 45*time.Second, cfg.Ledger.ConfirmTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Ledger.ReconcileInterval)
}

func TestLoadRequiresDSN(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DB_DSN", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRequiresLedgerSettings(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LEDGER_RPC_URL", "")

	_, err := Load()
	assert.Error(t, err)
}

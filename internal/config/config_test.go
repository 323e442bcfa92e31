package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENV", "production")
	for _, k := range []string{"STORAGE", "HOLD_TIMEOUT_SEC", "ALERT_SINK", "LOCK_TIMEOUT_MS", "MESSAGING_ENABLED"} {
		t.Setenv(k, "")
	}

	cfg := Load()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, StoragePostgres, cfg.Storage)
	assert.Equal(t, 15*time.Minute, cfg.HoldTimeout())
	assert.Equal(t, 2*time.Second, cfg.LockTimeout())
	assert.Equal(t, AlertSinkOutbox, cfg.AlertSink)
	assert.True(t, cfg.MessagingEnabled)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("STORAGE", "Memory")
	t.Setenv("HOLD_TIMEOUT_SEC", "60")
	t.Setenv("SWEEP_BATCH_SIZE", "not-a-number")
	t.Setenv("MESSAGING_ENABLED", "false")

	cfg := Load()
	assert.Equal(t, StorageMemory, cfg.Storage)
	assert.Equal(t, time.Minute, cfg.HoldTimeout())
	assert.Equal(t, 200, cfg.SweepBatchSize)
	assert.False(t, cfg.MessagingEnabled)
}

func TestValidate(t *testing.T) {
	base := Config{Storage: StorageMemory, AlertSink: AlertSinkLog, HoldTimeoutSec: 900}
	require.NoError(t, base.Validate())

	bad := base
	bad.Storage = "sqlite"
	assert.Error(t, bad.Validate())

	bad = base
	bad.AlertSink = AlertSinkKafka
	assert.Error(t, bad.Validate())
	bad.KafkaBrokers = "localhost:9092"
	assert.NoError(t, bad.Validate())

	bad = base
	bad.HoldTimeoutSec = 0
	assert.Error(t, bad.Validate())
}

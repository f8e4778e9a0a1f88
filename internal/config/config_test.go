package config

import (
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, 5432, cfg.DBPort)
	assert.Equal(t, "order-notifications", cfg.NotificationTopic)
	assert.Equal(t, 5*time.Minute, cfg.TrackingCacheTTL)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Empty(t, cfg.RedisAddr)
	assert.Equal(t, time.Second, cfg.OutboxPollInterval)
	assert.Equal(t, 100, cfg.OutboxBatchSize)
	assert.Equal(t, 10, cfg.OutboxMaxAttempts)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("REQUEST_TIMEOUT", "5s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.HTTPPort)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)

	creds := cfg.Credentials()
	assert.Equal(t, "db", creds.Host)
	assert.Equal(t, 6543, creds.Port)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("DB_PORT", "not-a-number")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_NonPositiveOutboxSettings(t *testing.T) {
	for env, value := range map[string]string{
		"OUTBOX_BATCH_SIZE":    "0",
		"OUTBOX_MAX_ATTEMPTS":  "-1",
		"OUTBOX_POLL_INTERVAL": "0s",
		"OUTBOX_SEND_TIMEOUT":  "0s",
	} {
		t.Run(env, func(t *testing.T) {
			t.Setenv(env, value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestConfigureLogging(t *testing.T) {
	defer log.SetLevel(log.InfoLevel)

	cfg := &Config{LogLevel: "debug", LogFormat: "text"}
	require.NoError(t, cfg.ConfigureLogging())
	assert.Equal(t, log.DebugLevel, log.GetLevel())

	cfg.LogLevel = "loud"
	assert.Error(t, cfg.ConfigureLogging())
}

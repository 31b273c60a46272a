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
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, DefaultPropertyID, cfg.Analytics.PropertyID)
	assert.Empty(t, cfg.Analytics.CredentialsFile)
	assert.True(t, cfg.Upstream.CircuitBreaker.Enabled)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowOrigins)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
server:
  port: 9000
  requestTimeout: 5s
analytics:
  propertyId: "987"
  credentialsFile: /etc/ga/sa.json
kafka:
  enabled: true
  topic: access
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, "987", cfg.Analytics.PropertyID)
	assert.Equal(t, "/etc/ga/sa.json", cfg.Analytics.CredentialsFile)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, "access", cfg.Kafka.Topic)
	// untouched sections keep their defaults
	assert.Equal(t, 100, cfg.Kafka.BatchSize)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "3001")
	t.Setenv("GA4_PROPERTY_ID", "555")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "/tmp/sa.json")
	t.Setenv("DASH_KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("DASH_CIRCUIT_BREAKER_ENABLED", "false")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 3001, cfg.Server.Port)
	assert.Equal(t, "555", cfg.Analytics.PropertyID)
	assert.Equal(t, "/tmp/sa.json", cfg.Analytics.CredentialsFile)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.False(t, cfg.Upstream.CircuitBreaker.Enabled)
}

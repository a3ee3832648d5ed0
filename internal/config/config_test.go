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
	inTempDir(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "file", cfg.Storage.Backend)
	assert.Equal(t, "models/model.json", cfg.Artifacts.Model)
	assert.Equal(t, 0.2, cfg.Training.TestFraction)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Empty(t, cfg.Metrics.PushgatewayURL)
	assert.Equal(t, "churn_batch", cfg.Metrics.Job)
}

func TestLoad_YAMLAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "churn.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  dir: /var/lib/churn
scoring:
  workers: 16
server:
  read_timeout: 2s
kafka:
  brokers: [kafka:9092]
`), 0o644))

	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("CHURN_PUSHGATEWAY_URL", "http://pushgateway:9091")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/churn", cfg.Storage.Dir)
	assert.Equal(t, 16, cfg.Scoring.Workers)
	assert.Equal(t, 2*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 10*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "http://pushgateway:9091", cfg.Metrics.PushgatewayURL)
}

func TestLoad_DatabaseURLSwitchesBackend(t *testing.T) {
	inTempDir(t)
	t.Setenv("CHURN_DATABASE_URL", "postgres://localhost:5432/churn")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Storage.Backend)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("training: [1"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Storage.Backend = "s3"
	cfg.Training.TestFraction = 1
	cfg.Scoring.Workers = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "storage.backend")
	assert.ErrorContains(t, err, "test_fraction")
	assert.ErrorContains(t, err, "scoring.workers")
}

func inTempDir(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

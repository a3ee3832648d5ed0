package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no config file is named explicitly.
const DefaultPath = "config.yaml"

type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Training  TrainingConfig  `yaml:"training"`
	Scoring   ScoringConfig   `yaml:"scoring"`
	Server    ServerConfig    `yaml:"server"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Warehouse WarehouseConfig `yaml:"warehouse"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type StorageConfig struct {
	// Backend is "file" or "postgres".
	Backend     string `yaml:"backend"`
	Dir         string `yaml:"dir"`
	DatabaseURL string `yaml:"database_url"`
}

// ArtifactsConfig names every artifact the pipeline reads or writes.
type ArtifactsConfig struct {
	Raw          string `yaml:"raw"`
	Clean        string `yaml:"clean"`
	Features     string `yaml:"features"`
	Model        string `yaml:"model"`
	Metrics      string `yaml:"metrics"`
	CustomerBase string `yaml:"customer_base"`
	Scoring      string `yaml:"scoring"`
}

type IngestConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type TrainingConfig struct {
	TestFraction float64 `yaml:"test_fraction"`
	Seed         int64   `yaml:"seed"`
	Epochs       int     `yaml:"epochs"`
	LearningRate float64 `yaml:"learning_rate"`
	L2           float64 `yaml:"l2"`
	Threshold    float64 `yaml:"threshold"`
}

type ScoringConfig struct {
	Workers int `yaml:"workers"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// KafkaConfig enables publishing when Brokers is non-empty.
type KafkaConfig struct {
	Brokers          []string `yaml:"brokers"`
	ScoresTopic      string   `yaml:"scores_topic"`
	PredictionsTopic string   `yaml:"predictions_topic"`
}

// WarehouseConfig enables the churn_predictions sink when DatabaseURL is set.
type WarehouseConfig struct {
	DatabaseURL string `yaml:"database_url"`
}

// MetricsConfig enables pushing batch metrics when PushgatewayURL is set.
type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgateway_url"`
	Job            string `yaml:"job"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	Output      string `yaml:"output"`
	Development bool   `yaml:"development"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend: "file",
			Dir:     "data",
		},
		Artifacts: ArtifactsConfig{
			Raw:          "raw/telco_customer_churn.csv",
			Clean:        "processed/clean.csv",
			Features:     "processed/features.csv",
			Model:        "models/model.json",
			Metrics:      "reports/metrics.json",
			CustomerBase: "mart/customer_base.csv",
			Scoring:      "mart/customer_scoring.csv",
		},
		Ingest: IngestConfig{
			URL:     "https://raw.githubusercontent.com/IBM/telco-customer-churn-on-icp4d/master/data/Telco-Customer-Churn.csv",
			Timeout: 60 * time.Second,
		},
		Training: TrainingConfig{
			TestFraction: 0.2,
			Seed:         42,
			Epochs:       500,
			LearningRate: 0.1,
			L2:           1e-4,
			Threshold:    0.5,
		},
		Scoring: ScoringConfig{
			Workers: 4,
		},
		Server: ServerConfig{
			Addr:            ":8000",
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Kafka: KafkaConfig{
			ScoresTopic:      "churn-scores",
			PredictionsTopic: "churn-predictions",
		},
		Metrics: MetricsConfig{
			Job: "churn_batch",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
	}
}

// Load reads defaults, then the YAML file at path, then the environment.
// An empty path reads DefaultPath if it exists.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case explicit || !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("CHURN_STORAGE_DIR"); v != "" {
		cfg.Storage.Dir = v
	}
	if v := os.Getenv("CHURN_DATABASE_URL"); v != "" {
		cfg.Storage.DatabaseURL = v
		cfg.Storage.Backend = "postgres"
	}
	if v := os.Getenv("CHURN_WAREHOUSE_URL"); v != "" {
		cfg.Warehouse.DatabaseURL = v
	}
	if v := os.Getenv("CHURN_PUSHGATEWAY_URL"); v != "" {
		cfg.Metrics.PushgatewayURL = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("CHURN_HTTP_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("CHURN_DATASET_URL"); v != "" {
		cfg.Ingest.URL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Backend {
	case "file":
		if c.Storage.Dir == "" {
			errs = append(errs, errors.New("storage.dir is required for the file backend"))
		}
	case "postgres":
		if c.Storage.DatabaseURL == "" {
			errs = append(errs, errors.New("storage.database_url is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q is not one of file, postgres", c.Storage.Backend))
	}
	if f := c.Training.TestFraction; f <= 0 || f >= 1 {
		errs = append(errs, fmt.Errorf("training.test_fraction %v must be in (0,1)", f))
	}
	if c.Training.Epochs < 1 {
		errs = append(errs, errors.New("training.epochs must be at least 1"))
	}
	if c.Training.LearningRate <= 0 {
		errs = append(errs, errors.New("training.learning_rate must be positive"))
	}
	if th := c.Training.Threshold; th <= 0 || th >= 1 {
		errs = append(errs, fmt.Errorf("training.threshold %v must be in (0,1)", th))
	}
	if c.Scoring.Workers < 1 {
		errs = append(errs, errors.New("scoring.workers must be at least 1"))
	}
	if len(c.Kafka.Brokers) > 0 && (c.Kafka.ScoresTopic == "" || c.Kafka.PredictionsTopic == "") {
		errs = append(errs, errors.New("kafka topics are required when brokers are set"))
	}
	if c.Metrics.PushgatewayURL != "" && c.Metrics.Job == "" {
		errs = append(errs, errors.New("metrics.job is required when pushgateway_url is set"))
	}
	return errors.Join(errs...)
}

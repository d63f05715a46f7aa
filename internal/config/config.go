// Package config loads and validates ingest configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/journal-ingest/internal/ingest"
	"github.com/JakeFAU/journal-ingest/internal/logging"
)

// Storage provider names accepted by storage.provider.
const (
	ProviderGCS    = "gcs"
	ProviderS3     = "s3"
	ProviderLocal  = "local"
	ProviderMemory = "memory"
	ProviderNoop   = "noop"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Source  SourceConfig   `mapstructure:"source"`
	HTTP    HTTPConfig     `mapstructure:"http"`
	Storage StorageConfig  `mapstructure:"storage"`
	Ingest  IngestConfig   `mapstructure:"ingest"`
	PubSub  PubSubConfig   `mapstructure:"pubsub"`
	DB      DBConfig       `mapstructure:"db"`
	Server  ServerConfig   `mapstructure:"server"`
	Metrics MetricsConfig  `mapstructure:"metrics"`
	Logging logging.Config `mapstructure:"logging"`
}

// SourceConfig describes the upstream article API and pagination.
type SourceConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	Sort      string `mapstructure:"sort"`
	PerPage   int    `mapstructure:"per_page"`
	StartPage int    `mapstructure:"start_page"`
	UserAgent string `mapstructure:"user_agent"`
}

// HTTPConfig configures the upstream HTTP client.
type HTTPConfig struct {
	// TimeoutSeconds of 0 leaves requests unbounded.
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// StorageConfig selects the object store and where pages land in it.
type StorageConfig struct {
	Provider string      `mapstructure:"provider"`
	Project  string      `mapstructure:"project"`
	Bucket   string      `mapstructure:"bucket"`
	Prefix   string      `mapstructure:"prefix"`
	GCS      GCSConfig   `mapstructure:"gcs"`
	S3       S3Config    `mapstructure:"s3"`
	Local    LocalConfig `mapstructure:"local"`
}

// GCSConfig holds Cloud Storage overrides.
type GCSConfig struct {
	Endpoint string `mapstructure:"endpoint"`
}

// S3Config holds S3-compatible connection settings.
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Region    string `mapstructure:"region"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// LocalConfig holds the filesystem store root.
type LocalConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// IngestConfig tunes the page loop.
type IngestConfig struct {
	ProbePolicy string `mapstructure:"probe_policy"`
}

// PubSubConfig holds metadata for upload notifications. Empty TopicName disables them.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// DBConfig controls the optional run ledger. Empty DSN disables it.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int    `mapstructure:"max_conns"`
}

// ServerConfig controls the status HTTP server. Port 0 disables it.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// MetricsConfig controls pushing metrics when the run finishes.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	JobName        string `mapstructure:"job_name"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("INGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source.base_url", "https://journal.crossfit.com/media-api/api/v1/media/journal")
	v.SetDefault("source.sort", "publishingDate")
	v.SetDefault("source.per_page", 20)
	v.SetDefault("source.start_page", 1)
	v.SetDefault("source.user_agent", "journal-ingest/1.0")
	v.SetDefault("http.timeout_seconds", 60)
	v.SetDefault("storage.provider", ProviderGCS)
	v.SetDefault("storage.project", "crossfit-journal-rag-app")
	v.SetDefault("storage.bucket", "cf-journal")
	v.SetDefault("storage.prefix", ingest.DefaultKeyPrefix)
	v.SetDefault("storage.gcs.endpoint", "")
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.access_key", "")
	v.SetDefault("storage.s3.secret_key", "")
	v.SetDefault("storage.s3.region", "")
	v.SetDefault("storage.s3.use_ssl", true)
	v.SetDefault("storage.local.base_dir", "data/journal")
	v.SetDefault("ingest.probe_policy", string(ingest.ProbeFailOpen))
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "ingest_runs")
	v.SetDefault("db.max_conns", 2)
	v.SetDefault("server.port", 0)
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job_name", "journal_ingest")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	u, err := url.Parse(c.Source.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("source.base_url must be an absolute http(s) URL")
	}
	if c.Source.PerPage <= 0 {
		return fmt.Errorf("source.per_page must be > 0")
	}
	if c.Source.StartPage < 1 {
		return fmt.Errorf("source.start_page must be >= 1")
	}
	if c.HTTP.TimeoutSeconds < 0 {
		return fmt.Errorf("http.timeout_seconds must be >= 0")
	}
	switch c.Storage.Provider {
	case ProviderGCS:
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for the gcs provider")
		}
	case ProviderS3:
		if c.Storage.Bucket == "" || c.Storage.S3.Endpoint == "" {
			return fmt.Errorf("storage.bucket and storage.s3.endpoint are required for the s3 provider")
		}
	case ProviderLocal:
		if c.Storage.Local.BaseDir == "" {
			return fmt.Errorf("storage.local.base_dir is required for the local provider")
		}
	case ProviderMemory, ProviderNoop:
	default:
		return fmt.Errorf("storage.provider %q is not one of gcs, s3, local, memory, noop", c.Storage.Provider)
	}
	if !ingest.ProbePolicy(c.Ingest.ProbePolicy).Valid() {
		return fmt.Errorf("ingest.probe_policy must be fail_open or fail_closed")
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	if c.Server.Port < 0 {
		return fmt.Errorf("server.port must be >= 0")
	}
	return nil
}

// HTTPTimeout converts the configured timeout into a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// Driver returns the ingest loop configuration derived from c.
func (c Config) Driver() ingest.Config {
	return ingest.Config{
		Project:     c.Storage.Project,
		Bucket:      c.Storage.Bucket,
		KeyPrefix:   c.Storage.Prefix,
		PerPage:     c.Source.PerPage,
		StartPage:   c.Source.StartPage,
		ProbePolicy: ingest.ProbePolicy(c.Ingest.ProbePolicy),
		Topic:       c.PubSub.TopicName,
	}
}

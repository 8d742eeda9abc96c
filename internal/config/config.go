// Package config loads and validates migration settings via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. MIGRATE_RATE_LIMIT_COUNT.
const EnvPrefix = "MIGRATE"

// Config captures every knob of a migration run.
type Config struct {
	Source      SourceConfig      `mapstructure:"source"`
	Destination DestinationConfig `mapstructure:"destination"`
	Labels      LabelsConfig      `mapstructure:"labels"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Retry       RetryConfig       `mapstructure:"retry"`
	Pipeline    PipelineConfig    `mapstructure:"pipeline"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Report      ReportConfig      `mapstructure:"report"`
	Progress    ProgressConfig    `mapstructure:"progress"`
	PubSub      PubSubConfig      `mapstructure:"pubsub"`
	Server      ServerConfig      `mapstructure:"server"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// SourceConfig selects the Pocket API or a local export file.
type SourceConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	ConsumerKey string `mapstructure:"consumer_key"`
	Cookie      string `mapstructure:"cookie"`
	PageSize    int    `mapstructure:"page_size"`
	// ExportFile, when set, replaces the API with a parsed HTML export.
	ExportFile string `mapstructure:"export_file"`
}

// DestinationConfig addresses the Omnivore API.
type DestinationConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	APIKey   string `mapstructure:"api_key"`
}

// LabelsConfig holds the optional extra labels.
type LabelsConfig struct {
	Favorite string `mapstructure:"favorite"`
	Global   string `mapstructure:"global"`
}

// RateLimitConfig allows Count calls per Window. Count 0 disables limiting.
type RateLimitConfig struct {
	Count  int           `mapstructure:"count"`
	Window time.Duration `mapstructure:"window"`
	Burst  int           `mapstructure:"burst"`
}

// RetryConfig bounds the fetch and write retry policies.
type RetryConfig struct {
	FetchMaxAttempts  int           `mapstructure:"fetch_max_attempts"`
	WriteMaxAttempts  int           `mapstructure:"write_max_attempts"`
	BaseDelay         time.Duration `mapstructure:"base_delay"`
	MaxDelay          time.Duration `mapstructure:"max_delay"`
	ValidationRetries int           `mapstructure:"validation_retries"`
}

// PipelineConfig sizes the handoff queue and worker pool.
type PipelineConfig struct {
	BufferSize   int           `mapstructure:"buffer_size"`
	Concurrency  int           `mapstructure:"concurrency"`
	FlushTimeout time.Duration `mapstructure:"flush_timeout"`
}

// HTTPConfig configures outbound API calls.
type HTTPConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// ReportConfig chooses where the failure report lands. GCSBucket wins over Dir.
type ReportConfig struct {
	Dir       string `mapstructure:"dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// ProgressConfig tunes the progress hub and its optional Postgres store.
type ProgressConfig struct {
	DSN          string        `mapstructure:"dsn"`
	LogEvents    bool          `mapstructure:"log_events"`
	BufferSize   int           `mapstructure:"buffer_size"`
	MaxBatch     int           `mapstructure:"max_batch"`
	MaxBatchWait time.Duration `mapstructure:"max_batch_wait"`
}

// PubSubConfig enables run summary publication when both fields are set.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Enabled reports whether a topic is configured.
func (p PubSubConfig) Enabled() bool {
	return p.ProjectID != "" && p.Topic != ""
}

// ServerConfig controls the status server. An empty Addr disables it.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// legacyEnv maps the environment names of the original script onto keys.
var legacyEnv = map[string]string{
	"source.cookie":       "POCKET_COOKIE",
	"source.consumer_key": "POCKET_CONSUMER_KEY",
	"destination.api_key": "OMNIVORE_API_KEY",
	"labels.favorite":     "FAVORITE_LABEL",
	"labels.global":       "GLOBAL_IMPORT_LABEL",
}

// Load builds a Config from an optional file plus the environment.
func Load(path string) (Config, error) {
	v := viper.New()
	Prepare(v)
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	return FromViper(v)
}

// Prepare installs defaults and environment bindings on v.
func Prepare(v *viper.Viper) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		// Prefixed names bound by AutomaticEnv still take precedence.
		_ = v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env)
	}
}

// FromViper unmarshals and validates v.
func FromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// SetDefaults registers default values on v. Every key gets a default, even
// an empty one, so AutomaticEnv overrides reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	for _, key := range []string{
		"source.consumer_key", "source.cookie", "source.export_file",
		"destination.api_key", "labels.favorite", "labels.global",
		"report.gcs_bucket", "report.prefix", "progress.dsn",
		"pubsub.project_id", "pubsub.topic", "server.addr", "logging.level",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("source.endpoint", "https://getpocket.com/graphql")
	v.SetDefault("source.page_size", 30)
	v.SetDefault("destination.endpoint", "https://api-prod.omnivore.app/api/graphql")
	v.SetDefault("rate_limit.count", 60)
	v.SetDefault("rate_limit.window", "60s")
	v.SetDefault("rate_limit.burst", 1)
	v.SetDefault("retry.fetch_max_attempts", 5)
	v.SetDefault("retry.write_max_attempts", 5)
	v.SetDefault("retry.base_delay", "500ms")
	v.SetDefault("retry.max_delay", "30s")
	v.SetDefault("retry.validation_retries", 0)
	v.SetDefault("pipeline.buffer_size", 30)
	v.SetDefault("pipeline.concurrency", 1)
	v.SetDefault("pipeline.flush_timeout", "30s")
	v.SetDefault("http.timeout", "30s")
	v.SetDefault("report.dir", ".")
	v.SetDefault("progress.log_events", true)
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch", 256)
	v.SetDefault("progress.max_batch_wait", "500ms")
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	var errs []error
	if c.Source.ExportFile == "" {
		if c.Source.ConsumerKey == "" {
			errs = append(errs, errors.New("source.consumer_key is required without source.export_file"))
		}
		if c.Source.Cookie == "" {
			errs = append(errs, errors.New("source.cookie is required without source.export_file"))
		}
	}
	if c.Source.PageSize <= 0 {
		errs = append(errs, errors.New("source.page_size must be > 0"))
	}
	if c.Destination.APIKey == "" {
		errs = append(errs, errors.New("destination.api_key is required"))
	}
	if c.RateLimit.Count < 0 {
		errs = append(errs, errors.New("rate_limit.count must be >= 0"))
	}
	if c.RateLimit.Count > 0 && c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("rate_limit.window must be > 0 when rate_limit.count is set"))
	}
	if c.Retry.FetchMaxAttempts <= 0 || c.Retry.WriteMaxAttempts <= 0 {
		errs = append(errs, errors.New("retry max attempts must be > 0"))
	}
	if c.Retry.ValidationRetries < 0 || c.Retry.ValidationRetries > 1 {
		errs = append(errs, errors.New("retry.validation_retries must be 0 or 1"))
	}
	if c.Retry.MaxDelay > 0 && c.Retry.BaseDelay > c.Retry.MaxDelay {
		errs = append(errs, errors.New("retry.base_delay must not exceed retry.max_delay"))
	}
	if c.Pipeline.BufferSize <= 0 {
		errs = append(errs, errors.New("pipeline.buffer_size must be > 0"))
	}
	if c.Pipeline.Concurrency <= 0 {
		errs = append(errs, errors.New("pipeline.concurrency must be > 0"))
	}
	if c.HTTP.Timeout <= 0 {
		errs = append(errs, errors.New("http.timeout must be > 0"))
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.Topic == "") {
		errs = append(errs, errors.New("pubsub.project_id and pubsub.topic must be set together"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

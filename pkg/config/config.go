package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string           `yaml:"environment" default:"development" validate:"required"`
	Server      ServerConfig     `yaml:"server"`
	Log         LogConfig        `yaml:"log"`
	Metrics     MetricsConfig    `yaml:"metrics"`
	Engine      EngineConfig     `yaml:"engine"`
	Detectors   DetectorsConfig  `yaml:"detectors"`
	Aggregator  AggregatorConfig `yaml:"aggregator"`
	Guard       GuardConfig      `yaml:"guard"`
	Storage     StorageConfig    `yaml:"storage"`
	Kafka       KafkaConfig      `yaml:"kafka"`
	Redis       RedisConfig      `yaml:"redis"`
	Stream      StreamConfig     `yaml:"stream"`
	Content     ContentConfig    `yaml:"content"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"15s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	// IngestRate limits POST /api/samples per asset, in samples per second.
	IngestRate  float64 `yaml:"ingest_rate" default:"20" validate:"gt=0"`
	IngestBurst int     `yaml:"ingest_burst" default:"40" validate:"gte=1"`
}

type LogConfig struct {
	Level      string `yaml:"level" default:"info" validate:"oneof=debug info warn error fatal panic"`
	Format     string `yaml:"format" default:"json" validate:"oneof=json console"`
	Output     string `yaml:"output" default:"stdout"`
	MaxSizeMB  int    `yaml:"max_size_mb" default:"100"`
	MaxBackups int    `yaml:"max_backups" default:"5"`
	MaxAgeDays int    `yaml:"max_age_days" default:"14"`
	Compress   bool   `yaml:"compress"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"/metrics"`
}

// EngineConfig describes the tracked assets and how cycles run.
type EngineConfig struct {
	// Assets are the focal assets that get full detection and content.
	Assets []string `yaml:"assets" validate:"required,min=1,dive,required"`
	// ReferenceAssets are only compared against focal assets.
	ReferenceAssets []string      `yaml:"reference_assets" validate:"dive,required"`
	BufferCapacity  int           `yaml:"buffer_capacity" default:"1440" validate:"gte=2"`
	Workers         int           `yaml:"workers" default:"4" validate:"gte=1"`
	CycleInterval   time.Duration `yaml:"cycle_interval" default:"1m" validate:"gt=0"`
	SeedOnStart     bool          `yaml:"seed_on_start" default:"true"`
}

type DetectorsConfig struct {
	Volume      VolumeConfig      `yaml:"volume"`
	Divergence  DivergenceConfig  `yaml:"divergence"`
	Correlation CorrelationConfig `yaml:"correlation"`
}

type VolumeConfig struct {
	Window      int     `yaml:"window" default:"24" validate:"gte=3"`
	MinSamples  int     `yaml:"min_samples" default:"12" validate:"gte=3"`
	Moderate    float64 `yaml:"moderate" default:"2" validate:"gt=0"`
	Significant float64 `yaml:"significant" default:"3" validate:"gt=0"`
}

type DivergenceConfig struct {
	Window              int     `yaml:"window" default:"48" validate:"gte=3"`
	MinSamples          int     `yaml:"min_samples" default:"24" validate:"gte=3"`
	Stealth             bool    `yaml:"stealth" default:"true"`
	UnusualHour         bool    `yaml:"unusual_hour" default:"true"`
	Clustering          bool    `yaml:"clustering" default:"true"`
	FlatPricePct        float64 `yaml:"flat_price_pct" default:"2" validate:"gt=0"`
	UnusualHourMultiple float64 `yaml:"unusual_hour_multiple" default:"2" validate:"gt=1"`
	MinActiveHours      int     `yaml:"min_active_hours" default:"6" validate:"gte=2,lte=24"`
	ClusterMultiple     float64 `yaml:"cluster_multiple" default:"1.3" validate:"gt=0"`
	MinClusterLength    int     `yaml:"min_cluster_length" default:"3" validate:"gte=2"`
}

type CorrelationConfig struct {
	Window                 int     `yaml:"window" default:"48" validate:"gte=3"`
	MinOverlap             int     `yaml:"min_overlap" default:"10" validate:"gte=3"`
	CorrelationCheck       bool    `yaml:"correlation_check" default:"true"`
	RelativeStrengthCheck  bool    `yaml:"relative_strength_check" default:"true"`
	CorrelationFloor       float64 `yaml:"correlation_floor" default:"0.3" validate:"gt=0,lte=1"`
	RelativeStrengthSpread float64 `yaml:"relative_strength_spread" default:"5" validate:"gt=0"`
}

type AggregatorConfig struct {
	DefaultCooldown time.Duration `yaml:"default_cooldown" default:"1h" validate:"gte=0"`
	// Cooldowns overrides the default per signal kind name.
	Cooldowns   map[string]time.Duration `yaml:"cooldowns"`
	MinSeverity float64                  `yaml:"min_severity" validate:"gte=0"`
	// PersistCooldowns keeps last-fired stamps in the cache across restarts.
	PersistCooldowns bool `yaml:"persist_cooldowns" default:"true"`
}

type GuardConfig struct {
	Threshold   float64       `yaml:"threshold" default:"0.85" validate:"gt=0,lte=1"`
	Timeframe   time.Duration `yaml:"timeframe" default:"24h" validate:"gt=0"`
	Similarity  string        `yaml:"similarity" default:"token_jaccard" validate:"oneof=token_jaccard shingle_jaccard"`
	ShingleSize int           `yaml:"shingle_size" default:"3" validate:"gte=1"`
	MaxRecords  int           `yaml:"max_records" default:"500" validate:"gte=1"`
}

type StorageConfig struct {
	Backend     string           `yaml:"backend" default:"memory" validate:"oneof=memory clickhouse sqlite"`
	SeedSamples int              `yaml:"seed_samples" default:"288" validate:"gte=0"`
	ClickHouse  ClickHouseConfig `yaml:"clickhouse"`
	SQLite      SQLiteConfig     `yaml:"sqlite"`
}

type ClickHouseConfig struct {
	Host             string        `yaml:"host" default:"localhost"`
	Port             int           `yaml:"port" default:"9000"`
	Database         string        `yaml:"database" default:"marketpulse"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	AsyncInsert      bool          `yaml:"async_insert"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
}

type SQLiteConfig struct {
	Path string `yaml:"path" default:"data/marketpulse.db"`
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers" default:"[\"localhost:9092\"]"`
	Topics  struct {
		Samples string `yaml:"samples" default:"marketpulse.samples"`
		Signals string `yaml:"signals" default:"marketpulse.signals"`
		Content string `yaml:"content" default:"marketpulse.content"`
	} `yaml:"topics"`
	RequiredAcks int    `yaml:"required_acks" default:"-1"`
	Compression  string `yaml:"compression" default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`
	Producer     struct {
		MaxAttempts  int           `yaml:"max_attempts" default:"5"`
		Linger       time.Duration `yaml:"linger" default:"50ms"`
		BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
		BatchSize    int           `yaml:"batch_size" default:"100"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		Async        bool          `yaml:"async"`
	} `yaml:"producer"`
	Consumer struct {
		GroupID    string        `yaml:"group_id" default:"marketpulse-engine"`
		Workers    int           `yaml:"workers" default:"4" validate:"gte=1"`
		BufferSize int           `yaml:"buffer_size" default:"256"`
		RetryMax   int           `yaml:"retry_max" default:"3"`
		BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
		BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
		DLQTopic   string        `yaml:"dlq_topic"`
		MinBytes   int           `yaml:"min_bytes" default:"1"`
		MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
	} `yaml:"consumer"`
}

type RedisConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr" default:"localhost:6379"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix" default:"marketpulse"`
	PoolSize  int    `yaml:"pool_size" default:"10"`
}

// StreamConfig is an optional WebSocket feed of parsed samples.
type StreamConfig struct {
	Enabled        bool          `yaml:"enabled"`
	URL            string        `yaml:"url" validate:"omitempty,url"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s" validate:"gt=0"`
	PingInterval   time.Duration `yaml:"ping_interval" default:"30s" validate:"gt=0"`
}

// ContentConfig drives the generate, guard, publish loop.
type ContentConfig struct {
	Enabled     bool          `yaml:"enabled"`
	ServiceURL  string        `yaml:"service_url" validate:"omitempty,url"`
	Timeout     time.Duration `yaml:"timeout" default:"30s"`
	MaxAttempts int           `yaml:"max_attempts" default:"3" validate:"gte=1"`
	Queue       QueueConfig   `yaml:"queue"`
}

// QueueConfig moves content generation off the cycle path when enabled.
type QueueConfig struct {
	Enabled    bool          `yaml:"enabled" default:"true"`
	Backend    string        `yaml:"backend" default:"memory" validate:"oneof=memory redis"`
	Size       int           `yaml:"size" default:"256" validate:"gte=1"`
	Workers    int           `yaml:"workers" default:"2" validate:"gte=1"`
	RetryLimit int           `yaml:"retry_limit" default:"3" validate:"gte=0"`
	RetryDelay time.Duration `yaml:"retry_delay" default:"10s" validate:"gt=0"`
}

// Load reads and parses a YAML configuration file. Missing keys take their defaults.
func Load(path string) (*Config, error) {
	c, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Parse decodes raw YAML into a validated Config.
func Parse(b []byte) (*Config, error) {
	c, err := decode(b)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
// Validation runs after the overrides are applied.
func LoadWithEnv(path string) (*Config, error) {
	c, err := read(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv(os.Getenv)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func read(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return decode(b)
}

func decode(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("ASSETS"); v != "" {
		c.Engine.Assets = splitList(v)
	}
	if v := getenv("REFERENCE_ASSETS"); v != "" {
		c.Engine.ReferenceAssets = splitList(v)
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := getenv("STORAGE_BACKEND"); v != "" {
		c.Storage.Backend = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := getenv("CONTENT_SERVICE_URL"); v != "" {
		c.Content.ServiceURL = v
	}
	if v := getenv("STREAM_URL"); v != "" {
		c.Stream.URL = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate checks struct tags and the rules that span several fields.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	var errs []error
	v := c.Detectors.Volume
	if v.Moderate >= v.Significant {
		errs = append(errs, fmt.Errorf("detectors.volume: moderate (%v) must be below significant (%v)", v.Moderate, v.Significant))
	}
	if v.MinSamples > v.Window {
		errs = append(errs, fmt.Errorf("detectors.volume: min_samples (%d) exceeds window (%d)", v.MinSamples, v.Window))
	}
	d := c.Detectors.Divergence
	if d.MinSamples > d.Window {
		errs = append(errs, fmt.Errorf("detectors.divergence: min_samples (%d) exceeds window (%d)", d.MinSamples, d.Window))
	}
	cr := c.Detectors.Correlation
	if cr.MinOverlap > cr.Window {
		errs = append(errs, fmt.Errorf("detectors.correlation: min_overlap (%d) exceeds window (%d)", cr.MinOverlap, cr.Window))
	}
	if !cr.CorrelationCheck && !cr.RelativeStrengthCheck && len(c.Engine.ReferenceAssets) > 0 {
		errs = append(errs, errors.New("detectors.correlation: at least one check must be enabled when reference_assets are set"))
	}
	for name, d := range c.Aggregator.Cooldowns {
		if !knownKind(name) {
			errs = append(errs, fmt.Errorf("aggregator.cooldowns: unknown signal kind %q", name))
		}
		if d < 0 {
			errs = append(errs, fmt.Errorf("aggregator.cooldowns.%s: must not be negative", name))
		}
	}
	seen := make(map[string]bool)
	for _, a := range append(append([]string{}, c.Engine.Assets...), c.Engine.ReferenceAssets...) {
		if seen[a] {
			errs = append(errs, fmt.Errorf("engine: asset %q listed more than once", a))
		}
		seen[a] = true
	}
	if c.Engine.BufferCapacity < maxInt(v.Window, d.Window, cr.Window) {
		errs = append(errs, fmt.Errorf("engine.buffer_capacity (%d) is smaller than the largest detector window", c.Engine.BufferCapacity))
	}
	if c.Content.Enabled && c.Content.ServiceURL == "" {
		errs = append(errs, errors.New("content.service_url is required when content is enabled"))
	}
	if c.Content.Queue.Enabled && c.Content.Queue.Backend == "redis" && !c.Redis.Enabled {
		errs = append(errs, errors.New("content.queue.backend redis requires redis.enabled"))
	}
	if c.Stream.Enabled && c.Stream.URL == "" {
		errs = append(errs, errors.New("stream.url is required when stream is enabled"))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers cannot be empty when kafka is enabled"))
	}
	return errors.Join(errs...)
}

// kindNames mirrors models.AllKinds; config must not import the domain layer.
var kindNames = []string{
	"volume_anomaly",
	"smart_money_accumulation",
	"smart_money_distribution",
	"unusual_hour_activity",
	"volume_clustering",
	"cross_asset_divergence",
}

func knownKind(name string) bool {
	for _, k := range kindNames {
		if k == name {
			return true
		}
	}
	return false
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func maxInt(vals ...int) int {
	m := 0
	for _, v := range vals {
		if v > m {
			m = v
		}
	}
	return m
}

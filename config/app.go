package config

import (
	"fmt"
	"time"

	validatorV10 "github.com/go-playground/validator/v10"

	"github.com/leeforge/mediaedit/logging"
)

// AppConfig is the full service configuration.
type AppConfig struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Logging  logging.Config `mapstructure:"logging" yaml:"logging"`
	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline"`
	Export   ExportConfig   `mapstructure:"export" yaml:"export"`
	Redis    RedisConfig    `mapstructure:"redis" yaml:"redis"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr" default:":8080" validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read-timeout" yaml:"read-timeout" default:"30s"`
	WriteTimeout    time.Duration `mapstructure:"write-timeout" yaml:"write-timeout" default:"60s"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown-timeout" yaml:"shutdown-timeout" default:"15s"`
	CORSOrigins     []string      `mapstructure:"cors-origins" yaml:"cors-origins"`
}

type PipelineConfig struct {
	Workers        int           `mapstructure:"workers" yaml:"workers" default:"4" validate:"gte=1"`
	QueueSize      int           `mapstructure:"queue-size" yaml:"queue-size" default:"64" validate:"gte=1"`
	RenderTimeout  time.Duration `mapstructure:"render-timeout" yaml:"render-timeout" default:"30s"`
	MaxUploadBytes int64         `mapstructure:"max-upload-bytes" yaml:"max-upload-bytes" default:"10485760" validate:"gte=1"`
	MaxPixels      int64         `mapstructure:"max-pixels" yaml:"max-pixels" default:"50000000" validate:"gte=1"`
	CacheTTL       time.Duration `mapstructure:"cache-ttl" yaml:"cache-ttl" default:"10m"`
	ThumbnailSize  uint          `mapstructure:"thumbnail-size" yaml:"thumbnail-size" default:"245"`
}

// ExportConfig selects the sink that receives exported edits.
type ExportConfig struct {
	// Type is local or oss. Empty disables export.
	Type     string         `mapstructure:"type" yaml:"type" validate:"omitempty,oneof=local oss"`
	Settings map[string]any `mapstructure:"settings" yaml:"settings"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Host     string `mapstructure:"host" yaml:"host" default:"localhost"`
	Port     string `mapstructure:"port" yaml:"port" default:"6379"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
	Channel  string `mapstructure:"channel" yaml:"channel" default:"mediaedit:events"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// knownKeys lists keys env vars may set even when no file declares them.
var knownKeys = []string{
	"server.addr",
	"server.read-timeout",
	"server.write-timeout",
	"server.shutdown-timeout",
	"server.cors-origins",
	"logging.director",
	"logging.level",
	"logging.format",
	"logging.log-in-terminal",
	"logging.log-to-file",
	"pipeline.workers",
	"pipeline.queue-size",
	"pipeline.render-timeout",
	"pipeline.max-upload-bytes",
	"pipeline.max-pixels",
	"pipeline.cache-ttl",
	"pipeline.thumbnail-size",
	"export.type",
	"redis.enabled",
	"redis.host",
	"redis.port",
	"redis.password",
	"redis.db",
	"redis.channel",
}

var validate = validatorV10.New()

// Validate checks struct tags on the loaded configuration.
func (c *AppConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// Load reads, defaults and validates the application configuration.
func Load(opts Options) (*AppConfig, error) {
	cfg, err := New(opts)
	if err != nil {
		return nil, err
	}

	var app AppConfig
	if err := cfg.BindWithDefaults(&app); err != nil {
		return nil, err
	}
	if err := app.Validate(); err != nil {
		return nil, err
	}
	return &app, nil
}

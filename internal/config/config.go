// Package config loads runtime configuration from an optional yaml file and
// BOOKSTORE_-prefixed environment variables, env winning over file.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config contains the runtime configuration shared by all binaries.
type Config struct {
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Storage    StorageConfig    `yaml:"storage" mapstructure:"storage"`
	Redis      RedisConfig      `yaml:"redis" mapstructure:"redis"`
	OpenSearch OpenSearchConfig `yaml:"opensearch" mapstructure:"opensearch"`
	Auth       AuthConfig       `yaml:"auth" mapstructure:"auth"`
	Tenancy    TenancyConfig    `yaml:"tenancy" mapstructure:"tenancy"`
	Projector  ProjectorConfig  `yaml:"projector" mapstructure:"projector"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Logging    LoggingConfig    `yaml:"logging" mapstructure:"logging"`
}

// ServerConfig captures HTTP server settings. Port serves the API binary,
// StreamPort the change streamer, so both can share one config file.
type ServerConfig struct {
	Port                  int      `yaml:"port" mapstructure:"port"`
	StreamPort            int      `yaml:"stream_port" mapstructure:"stream_port"`
	ReadTimeoutSeconds    int      `yaml:"read_timeout_seconds" mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds   int      `yaml:"write_timeout_seconds" mapstructure:"write_timeout_seconds"`
	IdleTimeoutSeconds    int      `yaml:"idle_timeout_seconds" mapstructure:"idle_timeout_seconds"`
	CORSOrigins           []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	SearchPageSize        int      `yaml:"search_page_size" mapstructure:"search_page_size"`
	IdempotencyTTLSeconds int      `yaml:"idempotency_ttl_seconds" mapstructure:"idempotency_ttl_seconds"`
}

// ReadTimeout returns the configured read timeout as a duration.
func (s ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutSeconds) * time.Second
}

// WriteTimeout returns the configured write timeout as a duration.
func (s ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutSeconds) * time.Second
}

// IdleTimeout returns the configured idle timeout as a duration.
func (s ServerConfig) IdleTimeout() time.Duration {
	return time.Duration(s.IdleTimeoutSeconds) * time.Second
}

// IdempotencyTTL returns how long claimed idempotency keys are remembered.
func (s ServerConfig) IdempotencyTTL() time.Duration {
	return time.Duration(s.IdempotencyTTLSeconds) * time.Second
}

// StorageConfig captures Azure Storage settings. Each projection keeps its
// documents in its own table named DocTablePrefix plus the projection name.
// ControlQueue carries both projector nudges and rebuild requests; the
// message kind tells them apart.
type StorageConfig struct {
	ConnectionString string `yaml:"connection_string" mapstructure:"connection_string"`
	EventsTable      string `yaml:"events_table" mapstructure:"events_table"`
	TenantsTable     string `yaml:"tenants_table" mapstructure:"tenants_table"`
	DocTablePrefix   string `yaml:"doc_table_prefix" mapstructure:"doc_table_prefix"`
	ControlQueue     string `yaml:"control_queue" mapstructure:"control_queue"`
}

// DocTable returns the table name holding the named projection's documents.
func (s StorageConfig) DocTable(projection string) string {
	return s.DocTablePrefix + strings.ToLower(projection)
}

// RedisConfig captures the cache and pub/sub connection. URL may be a full
// redis:// url or an Azure-style "host:port,password=...,ssl=true" string.
type RedisConfig struct {
	URL     string `yaml:"url" mapstructure:"url"`
	Channel string `yaml:"channel" mapstructure:"channel"`
}

// Client builds a redis client from the URL.
func (r RedisConfig) Client() *redis.Client {
	opts, err := redis.ParseURL(r.URL)
	if err != nil {
		parts := strings.Split(r.URL, ",")
		opts = &redis.Options{Addr: parts[0]}
		for _, p := range parts[1:] {
			kv := strings.SplitN(p, "=", 2)
			if len(kv) != 2 {
				continue
			}
			switch strings.ToLower(kv[0]) {
			case "password":
				opts.Password = kv[1]
			case "ssl":
				if strings.ToLower(kv[1]) == "true" {
					opts.TLSConfig = &tls.Config{}
				}
			}
		}
	}
	return redis.NewClient(opts)
}

// OpenSearchConfig captures the optional search index connection. Search is
// disabled when Enabled is false or the url is empty.
type OpenSearchConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	URL      string `yaml:"url" mapstructure:"url"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	Insecure bool   `yaml:"insecure" mapstructure:"insecure"`
	Index    string `yaml:"index" mapstructure:"index"`
}

// AuthConfig captures token validation settings. A non-empty DevSecret
// switches validation to the HS256 shared-secret mode.
type AuthConfig struct {
	JWKSURL   string `yaml:"jwks_url" mapstructure:"jwks_url"`
	Audience  string `yaml:"audience" mapstructure:"audience"`
	Issuer    string `yaml:"issuer" mapstructure:"issuer"`
	DevSecret string `yaml:"dev_secret" mapstructure:"dev_secret"`
}

// TenancyConfig captures the tenant fallback and presentation defaults.
type TenancyConfig struct {
	DefaultTenant   string `yaml:"default_tenant" mapstructure:"default_tenant"`
	DefaultLocale   string `yaml:"default_locale" mapstructure:"default_locale"`
	DefaultCurrency string `yaml:"default_currency" mapstructure:"default_currency"`
}

// ProjectorConfig captures the projection runner settings.
type ProjectorConfig struct {
	BatchSize        int `yaml:"batch_size" mapstructure:"batch_size"`
	IntervalSeconds  int `yaml:"interval_seconds" mapstructure:"interval_seconds"`
	QueuePollSeconds int `yaml:"queue_poll_seconds" mapstructure:"queue_poll_seconds"`
}

// Interval returns the sweep interval as a duration.
func (p ProjectorConfig) Interval() time.Duration {
	return time.Duration(p.IntervalSeconds) * time.Second
}

// QueuePoll returns the nudge queue poll interval as a duration.
func (p ProjectorConfig) QueuePoll() time.Duration {
	return time.Duration(p.QueuePollSeconds) * time.Second
}

// CacheConfig captures read cache settings. A zero TTL disables caching.
type CacheConfig struct {
	TTLSeconds int `yaml:"ttl_seconds" mapstructure:"ttl_seconds"`
}

// TTL returns the cache entry lifetime as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// LoggingConfig captures logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // json or text
}

// Logger builds a logrus logger from the settings. Unknown levels fall back
// to info.
func (l LoggingConfig) Logger() *logrus.Logger {
	logger := logrus.New()
	if level, err := logrus.ParseLevel(l.Level); err == nil {
		logger.SetLevel(level)
	}
	if l.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger
}

// Load reads configuration from the provided path and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.stream_port", 9000)
	v.SetDefault("server.read_timeout_seconds", 15)
	v.SetDefault("server.write_timeout_seconds", 15)
	v.SetDefault("server.idle_timeout_seconds", 60)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.search_page_size", 25)
	v.SetDefault("server.idempotency_ttl_seconds", 86400)

	v.SetDefault("storage.connection_string", "")
	v.SetDefault("storage.events_table", "bookstoreevents")
	v.SetDefault("storage.tenants_table", "bookstoretenants")
	v.SetDefault("storage.doc_table_prefix", "bookstore")
	v.SetDefault("storage.control_queue", "bookstore-projector")

	v.SetDefault("redis.url", "localhost:6379")
	v.SetDefault("redis.channel", "")

	v.SetDefault("opensearch.enabled", false)
	v.SetDefault("opensearch.url", "https://localhost:9200")
	v.SetDefault("opensearch.username", "admin")
	v.SetDefault("opensearch.password", "admin")
	v.SetDefault("opensearch.insecure", true)
	v.SetDefault("opensearch.index", "")

	v.SetDefault("auth.jwks_url", "")
	v.SetDefault("auth.audience", "")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.dev_secret", "")

	v.SetDefault("tenancy.default_tenant", "default")
	v.SetDefault("tenancy.default_locale", "en")
	v.SetDefault("tenancy.default_currency", "USD")

	v.SetDefault("projector.batch_size", 128)
	v.SetDefault("projector.interval_seconds", 2)
	v.SetDefault("projector.queue_poll_seconds", 1)

	v.SetDefault("cache.ttl_seconds", 300)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/bookstore")
	}

	v.SetEnvPrefix("BOOKSTORE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

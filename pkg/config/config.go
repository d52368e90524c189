// Package config assembles the service configuration from defaults, an
// optional YAML file, a .env file and COMICCACHE_* environment variables, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/illmade-knight/go-comiccache/pkg/microservice"
	"github.com/illmade-knight/go-comiccache/pkg/settings"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "COMICCACHE_"

// DefaultTimezone decides "today" when none is configured.
const DefaultTimezone = "Europe/Amsterdam"

// Durable tier backends.
const (
	BackendFilesystem = "filesystem"
	BackendGCS        = "gcs"
	BackendRedis      = "redis"
)

// Settings sources.
const (
	SourceHTTP      = "http"
	SourceFile      = "file"
	SourceFirestore = "firestore"
)

// Config is the complete service configuration.
type Config struct {
	microservice.BaseConfig `yaml:",inline"`

	App      settings.AppConfig `yaml:"app"`
	Settings SettingsConfig     `yaml:"settings"`
	Cache    CacheConfig        `yaml:"cache"`
	GCS      GCSConfig          `yaml:"gcs"`
	Redis    RedisConfig        `yaml:"redis"`
	Events   EventsConfig       `yaml:"events"`
}

// SettingsConfig selects where the settings document comes from.
type SettingsConfig struct {
	Source string `yaml:"source"`
	// URL overrides the AppConfig settings URL for the http source.
	URL string `yaml:"url"`
	// File is the path for the file source.
	File       string `yaml:"file"`
	Collection string `yaml:"collection"`
	Document   string `yaml:"document"`
}

// CacheConfig holds the cache policy and the durable tier choice.
type CacheConfig struct {
	Backend string `yaml:"backend"`
	Dir     string `yaml:"dir"`
	// MemoryItems bounds the memory tier; zero keeps every blob for the
	// lifetime of the process.
	MemoryItems  int           `yaml:"memory_items"`
	PastWindow   int           `yaml:"past_window"`
	FutureWindow int           `yaml:"future_window"`
	Workers      int           `yaml:"workers"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	Timezone     string        `yaml:"timezone"`
	// ImagesURL overrides the AppConfig images URL; it may be http(s), gs:// or a path.
	ImagesURL string `yaml:"images_url"`
}

type GCSConfig struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
}

type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"`
}

// EventsConfig enables cache event publishing when TopicID is set.
type EventsConfig struct {
	TopicID string `yaml:"topic_id"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		BaseConfig: microservice.BaseConfig{
			LogLevel:    "info",
			HTTPPort:    ":8080",
			ServiceName: "comiccache",
		},
		App: settings.DefaultAppConfig(),
		Settings: SettingsConfig{
			Source:     SourceHTTP,
			Collection: "comic-settings",
			Document:   "current",
		},
		Cache: CacheConfig{
			Backend:      BackendFilesystem,
			Dir:          "ZeurkalenderImages",
			PastWindow:   3,
			FutureWindow: 1,
			Workers:      4,
			FetchTimeout: 30 * time.Second,
			Timezone:     DefaultTimezone,
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "comic:",
		},
	}
}

// Load builds the configuration. path names an optional YAML file; a missing
// .env file is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.HTTPPort = getEnv("HTTP_PORT", c.HTTPPort)
	c.ProjectID = getEnv("PROJECT_ID", c.ProjectID)
	c.CredentialsFile = getEnv("CREDENTIALS_FILE", c.CredentialsFile)

	c.App.BaseURL = getEnv("APP_BASE_URL", c.App.BaseURL)
	c.App.BundleID = getEnv("APP_BUNDLE_ID", c.App.BundleID)
	c.App.Version = getEnv("APP_VERSION", c.App.Version)

	c.Settings.Source = getEnv("SETTINGS_SOURCE", c.Settings.Source)
	c.Settings.URL = getEnv("SETTINGS_URL", c.Settings.URL)
	c.Settings.File = getEnv("SETTINGS_FILE", c.Settings.File)
	c.Settings.Collection = getEnv("SETTINGS_COLLECTION", c.Settings.Collection)
	c.Settings.Document = getEnv("SETTINGS_DOCUMENT", c.Settings.Document)

	c.Cache.Backend = getEnv("CACHE_BACKEND", c.Cache.Backend)
	c.Cache.Dir = getEnv("CACHE_DIR", c.Cache.Dir)
	c.Cache.MemoryItems = getIntEnv("CACHE_MEMORY_ITEMS", c.Cache.MemoryItems)
	c.Cache.PastWindow = getIntEnv("CACHE_PAST_WINDOW", c.Cache.PastWindow)
	c.Cache.FutureWindow = getIntEnv("CACHE_FUTURE_WINDOW", c.Cache.FutureWindow)
	c.Cache.Workers = getIntEnv("CACHE_WORKERS", c.Cache.Workers)
	c.Cache.FetchTimeout = getDurationEnv("CACHE_FETCH_TIMEOUT", c.Cache.FetchTimeout)
	c.Cache.Timezone = getEnv("CACHE_TIMEZONE", c.Cache.Timezone)
	c.Cache.ImagesURL = getEnv("CACHE_IMAGES_URL", c.Cache.ImagesURL)

	c.GCS.Bucket = getEnv("GCS_BUCKET", c.GCS.Bucket)
	c.GCS.Prefix = getEnv("GCS_PREFIX", c.GCS.Prefix)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getIntEnv("REDIS_DB", c.Redis.DB)
	c.Redis.KeyPrefix = getEnv("REDIS_KEY_PREFIX", c.Redis.KeyPrefix)
	c.Redis.TTL = getDurationEnv("REDIS_TTL", c.Redis.TTL)

	c.Events.TopicID = getEnv("EVENTS_TOPIC_ID", c.Events.TopicID)
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Cache.Backend {
	case BackendFilesystem:
		if c.Cache.Dir == "" {
			errs = append(errs, errors.New("cache.dir is required for the filesystem backend"))
		}
	case BackendGCS:
		if c.GCS.Bucket == "" {
			errs = append(errs, errors.New("gcs.bucket is required for the gcs backend"))
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown cache backend %q", c.Cache.Backend))
	}

	switch c.Settings.Source {
	case SourceHTTP:
	case SourceFile:
		if c.Settings.File == "" {
			errs = append(errs, errors.New("settings.file is required for the file source"))
		}
	case SourceFirestore:
		if c.ProjectID == "" {
			errs = append(errs, errors.New("project_id is required for the firestore source"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown settings source %q", c.Settings.Source))
	}

	if c.Cache.FetchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("cache.fetch_timeout must be positive, got %s", c.Cache.FetchTimeout))
	}
	if c.Cache.PastWindow < 0 || c.Cache.FutureWindow < 0 {
		errs = append(errs, errors.New("cache windows must not be negative"))
	}
	if c.Cache.MemoryItems < 0 {
		errs = append(errs, errors.New("cache.memory_items must not be negative"))
	}
	if c.Events.TopicID != "" && c.ProjectID == "" {
		errs = append(errs, errors.New("project_id is required to publish events"))
	}
	return errors.Join(errs...)
}

// SettingsURL is the configured settings URL, or the AppConfig default.
func (c *Config) SettingsURL() string {
	if c.Settings.URL != "" {
		return c.Settings.URL
	}
	return c.App.SettingsURL()
}

// ImagesURL is the configured image location, or the AppConfig default.
func (c *Config) ImagesURL() string {
	if c.Cache.ImagesURL != "" {
		return c.Cache.ImagesURL
	}
	return c.App.ImagesURL()
}

// Location loads the configured timezone, falling back to UTC when the name
// is unknown.
func (c *Config) Location() (*time.Location, error) {
	name := c.Cache.Timezone
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC, fmt.Errorf("timezone %q not found; using UTC: %w", name, err)
	}
	return loc, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

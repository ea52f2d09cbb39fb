// Package config loads service configuration from an optional YAML file, .env files and the
// environment. Environment variables always win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage backend kinds.
const (
	BackendS3     = "s3"
	BackendMemory = "memory"
)

const (
	defaultPort         = "8080"
	defaultFetchTimeout = 30 * time.Second
	defaultFeedWorkers  = 5
	defaultLockTTL      = 30 * time.Second
	defaultRefresh      = time.Hour
)

// Config is the full service configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Redis   RedisConfig   `yaml:"redis"`
	Kafka   KafkaConfig   `yaml:"kafka"`
	Fetch   FetchConfig   `yaml:"fetch"`
	Logging LoggingConfig `yaml:"logging"`
}

type ServerConfig struct {
	Port string `yaml:"port" env:"PORT"`
}

// StorageConfig selects and configures the content blob backend.
type StorageConfig struct {
	Backend         string        `yaml:"backend" env:"STORAGE_BACKEND"`
	Bucket          string        `yaml:"bucket" env:"S3_BUCKET"`
	Region          string        `yaml:"region" env:"S3_REGION"`
	Profile         string        `yaml:"profile" env:"S3_PROFILE"`
	Prefix          string        `yaml:"prefix" env:"S3_PREFIX"`
	Endpoint        string        `yaml:"endpoint" env:"S3_ENDPOINT"`
	UsePathStyle    bool          `yaml:"use_path_style" env:"S3_USE_PATH_STYLE"`
	RefreshInterval time.Duration `yaml:"refresh_interval" env:"STORAGE_REFRESH_INTERVAL"`
}

// RedisConfig enables the hash index and per-slug upload locks when Addr is set.
type RedisConfig struct {
	Addr        string        `yaml:"addr" env:"REDIS_ADDR"`
	Password    string        `yaml:"password" env:"REDIS_PASS"`
	DB          int           `yaml:"db" env:"REDIS_DB"`
	IndexPrefix string        `yaml:"index_prefix" env:"INDEX_KEY_PREFIX"`
	LockTTL     time.Duration `yaml:"lock_ttl" env:"LOCK_TTL"`
}

// Enabled reports whether a Redis server is configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.Addr) != ""
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS"`
	Topic   string   `yaml:"topic" env:"KAFKA_TOPIC"`
	GroupID string   `yaml:"group_id" env:"KAFKA_GROUP_ID"`
}

// Validate checks the settings the event consumer needs.
func (k KafkaConfig) Validate() error {
	var errs []error
	if len(k.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers is required"))
	}
	if k.Topic == "" {
		errs = append(errs, errors.New("kafka.topic is required"))
	}
	if k.GroupID == "" {
		errs = append(errs, errors.New("kafka.group_id is required"))
	}
	return errors.Join(errs...)
}

// FetchConfig controls page fetching and feed ingestion.
type FetchConfig struct {
	Timeout time.Duration `yaml:"timeout" env:"FETCH_TIMEOUT"`
	Workers int           `yaml:"workers" env:"FEED_WORKERS"`
}

type LoggingConfig struct {
	Level       string `yaml:"level" env:"LOG_LEVEL"`
	Development bool   `yaml:"development" env:"LOG_DEVELOPMENT"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Server:  ServerConfig{Port: defaultPort},
		Storage: StorageConfig{Backend: BackendS3, RefreshInterval: defaultRefresh},
		Redis:   RedisConfig{LockTTL: defaultLockTTL},
		Fetch:   FetchConfig{Timeout: defaultFetchTimeout, Workers: defaultFeedWorkers},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads .env files, then the YAML file at path (skipped when path is empty or the file does
// not exist), then applies environment overrides.
func Load(path string) (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, fmt.Errorf("load environment files: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	return &cfg, nil
}

// Path returns CONFIG_PATH, or def when it is unset.
func Path(def string) string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return def
}

// Validate checks the settings every service needs.
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Backend {
	case BackendS3:
		if c.Storage.Bucket == "" {
			errs = append(errs, errors.New("storage.bucket (S3_BUCKET) is required for the s3 backend"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q must be %q or %q", c.Storage.Backend, BackendS3, BackendMemory))
	}
	if c.Storage.RefreshInterval <= 0 {
		errs = append(errs, errors.New("storage.refresh_interval must be positive"))
	}
	if c.Redis.Enabled() && c.Redis.LockTTL <= 0 {
		errs = append(errs, errors.New("redis.lock_ttl must be positive"))
	}
	if c.Fetch.Timeout <= 0 {
		errs = append(errs, errors.New("fetch.timeout must be positive"))
	}
	if c.Fetch.Workers <= 0 {
		errs = append(errs, errors.New("fetch.workers must be positive"))
	}
	return errors.Join(errs...)
}

// loadEnvFiles loads ENV_FILE when set, otherwise .env.local and then .env. Missing files are
// ignored; godotenv never overrides variables that are already set.
func loadEnvFiles() error {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	}
	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", name, err)
		}
	}
	return nil
}

func applyEnvOverrides(cfg any) error {
	v := reflect.ValueOf(cfg)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	return applyEnvToStruct(v)
}

func applyEnvToStruct(v reflect.Value) error {
	if v.Kind() != reflect.Struct {
		return nil
	}

	t := v.Type()
	for i := range v.NumField() {
		field := v.Field(i)
		if !field.CanSet() {
			continue
		}
		if field.Kind() == reflect.Struct {
			if err := applyEnvToStruct(field); err != nil {
				return err
			}
			continue
		}

		name := t.Field(i).Tag.Get("env")
		if name == "" {
			continue
		}
		val := strings.TrimSpace(os.Getenv(name))
		if val == "" {
			continue
		}
		if err := setField(field, val); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func setField(field reflect.Value, val string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(val)

	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(val)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)

	case reflect.Bool:
		field.SetBool(parseBool(val))

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type %s", field.Type())
		}
		var parts []string
		for _, p := range strings.Split(val, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		field.Set(reflect.ValueOf(parts))

	default:
		return fmt.Errorf("unsupported field type %s", field.Type())
	}
	return nil
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes"
}

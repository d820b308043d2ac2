package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPath    = "/etc/gohome-flipr/config.yaml"
	DefaultBaseURL = "https://apis.goflipr.com"

	EnvUsername = "FLIPR_USERNAME"
	EnvPassword = "FLIPR_PASSWORD"
)

// Bridge runtimes.
const (
	RuntimeHomeKit = "homekit"
	RuntimeMQTT    = "mqtt"
	RuntimeNone    = "none"
)

// Accessory cache backends.
const (
	CacheFile = "file"
	CacheS3   = "s3"
)

type Config struct {
	Core    CoreConfig    `yaml:"core" toml:"core"`
	Log     LogConfig     `yaml:"log" toml:"log"`
	Flipr   FliprConfig   `yaml:"flipr" toml:"flipr"`
	Bridge  BridgeConfig  `yaml:"bridge" toml:"bridge"`
	History HistoryConfig `yaml:"history" toml:"history"`
}

type CoreConfig struct {
	HTTPAddr           string `yaml:"http_addr" toml:"http_addr" default:"0.0.0.0:8080" validate:"required"`
	GRPCAddr           string `yaml:"grpc_addr" toml:"grpc_addr" default:"0.0.0.0:9000" validate:"required"`
	DashboardDir       string `yaml:"dashboard_dir" toml:"dashboard_dir"`
	HealthSyncInterval string `yaml:"health_sync_interval" toml:"health_sync_interval" default:"30s"`
}

type LogConfig struct {
	Level  string `yaml:"level" toml:"level" default:"info" validate:"oneof=debug info warn warning error"`
	Format string `yaml:"format" toml:"format" default:"console" validate:"oneof=console text json"`
}

type FliprConfig struct {
	Username      string         `yaml:"username" toml:"username"`
	Password      string         `yaml:"password" toml:"password"`
	PasswordFile  string         `yaml:"password_file" toml:"password_file"`
	BaseURL       string         `yaml:"base_url" toml:"base_url" default:"https://apis.goflipr.com" validate:"url"`
	PollInterval  string         `yaml:"poll_interval" toml:"poll_interval" default:"60s"`
	NameOverrides []NameOverride `yaml:"name_overrides" toml:"name_overrides" validate:"dive"`
}

// NameOverride renames accessories whose serial matches a glob pattern.
// "{serial}" in Name is replaced with the module serial.
type NameOverride struct {
	Match string `yaml:"match" toml:"match" validate:"required"`
	Name  string `yaml:"name" toml:"name" validate:"required"`
}

type BridgeConfig struct {
	Runtime string        `yaml:"runtime" toml:"runtime" default:"homekit" validate:"oneof=homekit mqtt none"`
	Cache   CacheConfig   `yaml:"cache" toml:"cache"`
	HomeKit HomeKitConfig `yaml:"homekit" toml:"homekit"`
	MQTT    MQTTConfig    `yaml:"mqtt" toml:"mqtt"`
}

type CacheConfig struct {
	Kind          string `yaml:"kind" toml:"kind" default:"file" validate:"oneof=file s3"`
	Dir           string `yaml:"dir" toml:"dir" default:"/var/lib/gohome-flipr/cache"`
	Endpoint      string `yaml:"endpoint" toml:"endpoint"`
	Bucket        string `yaml:"bucket" toml:"bucket"`
	Prefix        string `yaml:"prefix" toml:"prefix" default:"gohome/flipr"`
	Region        string `yaml:"region" toml:"region"`
	AccessKeyFile string `yaml:"access_key_file" toml:"access_key_file"`
	SecretKeyFile string `yaml:"secret_key_file" toml:"secret_key_file"`
}

type HomeKitConfig struct {
	Name     string `yaml:"name" toml:"name" default:"Flipr Bridge"`
	Addr     string `yaml:"addr" toml:"addr"`
	Pin      string `yaml:"pin" toml:"pin" default:"00102003" validate:"len=8,numeric"`
	StoreDir string `yaml:"store_dir" toml:"store_dir" default:"/var/lib/gohome-flipr/homekit"`
}

type MQTTConfig struct {
	Broker       string `yaml:"broker" toml:"broker"`
	Username     string `yaml:"username" toml:"username"`
	PasswordFile string `yaml:"password_file" toml:"password_file"`
	TopicPrefix  string `yaml:"topic_prefix" toml:"topic_prefix" default:"flipr"`
	ClientID     string `yaml:"client_id" toml:"client_id" default:"gohome-flipr"`
}

type HistoryConfig struct {
	Influx InfluxConfig `yaml:"influx" toml:"influx"`
}

type InfluxConfig struct {
	Addr         string `yaml:"addr" toml:"addr"`
	Username     string `yaml:"username" toml:"username"`
	PasswordFile string `yaml:"password_file" toml:"password_file"`
	Database     string `yaml:"database" toml:"database" default:"flipr"`
}

// Enabled reports whether surveys are exported to InfluxDB.
func (c InfluxConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

// Load reads a YAML or TOML config file, expands ${VAR} references,
// applies defaults, resolves credentials and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data, formatFromPath(path))
}

// Parse decodes raw config bytes. format is "yaml" or "toml".
func Parse(data []byte, format string) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	switch format {
	case "toml":
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	default:
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := resolveCredentials(&cfg.Flipr); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a config with every default applied and credentials
// taken from the environment.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := resolveCredentials(&cfg.Flipr); err != nil {
		return nil, err
	}
	return cfg, nil
}

func formatFromPath(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return "toml"
	}
	return "yaml"
}

func resolveCredentials(cfg *FliprConfig) error {
	if cfg.Password == "" && cfg.PasswordFile != "" {
		password, err := ReadSecretFile(cfg.PasswordFile)
		if err != nil {
			return fmt.Errorf("read flipr password: %w", err)
		}
		cfg.Password = password
	}
	if cfg.Username == "" {
		cfg.Username = os.Getenv(EnvUsername)
	}
	if cfg.Password == "" {
		cfg.Password = os.Getenv(EnvPassword)
	}
	return nil
}

var validate = validator.New()

// Validate enforces required invariants beyond struct tags.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			first := verrs[0]
			return fmt.Errorf("%s is invalid (%s)", first.Namespace(), first.Tag())
		}
		return err
	}

	if cfg.Flipr.Username == "" {
		return fmt.Errorf("flipr.username is required (or set %s)", EnvUsername)
	}
	if cfg.Flipr.Password == "" {
		return fmt.Errorf("flipr.password is required (or set %s)", EnvPassword)
	}
	if _, err := cfg.Flipr.Interval(); err != nil {
		return err
	}
	if _, err := cfg.Core.HealthSync(); err != nil {
		return err
	}

	switch cfg.Bridge.Cache.Kind {
	case CacheFile:
		if cfg.Bridge.Cache.Dir == "" {
			return fmt.Errorf("bridge.cache.dir is required")
		}
	case CacheS3:
		if cfg.Bridge.Cache.Endpoint == "" {
			return fmt.Errorf("bridge.cache.endpoint is required")
		}
		if cfg.Bridge.Cache.Bucket == "" {
			return fmt.Errorf("bridge.cache.bucket is required")
		}
		if cfg.Bridge.Cache.AccessKeyFile == "" {
			return fmt.Errorf("bridge.cache.access_key_file is required")
		}
		if cfg.Bridge.Cache.SecretKeyFile == "" {
			return fmt.Errorf("bridge.cache.secret_key_file is required")
		}
	}

	if cfg.Bridge.Runtime == RuntimeMQTT && cfg.Bridge.MQTT.Broker == "" {
		return fmt.Errorf("bridge.mqtt.broker is required")
	}
	if cfg.Bridge.Runtime == RuntimeHomeKit && cfg.Bridge.HomeKit.StoreDir == "" {
		return fmt.Errorf("bridge.homekit.store_dir is required")
	}

	return nil
}

// Interval returns the parsed poll interval.
func (c FliprConfig) Interval() (time.Duration, error) {
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil {
		return 0, fmt.Errorf("flipr.poll_interval: %w", err)
	}
	if d < time.Second {
		return 0, fmt.Errorf("flipr.poll_interval must be at least 1s")
	}
	return d, nil
}

// HealthSync returns how often plugin health is pushed to the gRPC health service.
func (c CoreConfig) HealthSync() (time.Duration, error) {
	d, err := time.ParseDuration(c.HealthSyncInterval)
	if err != nil {
		return 0, fmt.Errorf("core.health_sync_interval: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("core.health_sync_interval must be positive")
	}
	return d, nil
}

// ReadSecretFile returns the trimmed content of a secret file.
func ReadSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// Package config loads application settings from defaults, an optional YAML file, an optional
// .env file and the process environment, in increasing order of precedence.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Session drivers.
const (
	SessionMemory = "memory"
	SessionRedis  = "redis"
)

// Config is the root configuration.
type Config struct {
	App     AppConfig     `mapstructure:"app"`
	DB      DBConfig      `mapstructure:"db"`
	Session SessionConfig `mapstructure:"session"`
	Redis   RedisConfig   `mapstructure:"redis"`
	JWT     JWTConfig     `mapstructure:"jwt"`
	Log     LogConfig     `mapstructure:"log"`
	Assets  AssetsConfig  `mapstructure:"assets"`
	Uploads UploadsConfig `mapstructure:"uploads"`
	CORS    CORSConfig    `mapstructure:"cors"`
}

type AppConfig struct {
	Name            string        `mapstructure:"name" validate:"required"`
	Env             string        `mapstructure:"env" validate:"oneof=local testing production"`
	URL             string        `mapstructure:"url" validate:"required,url"`
	Key             string        `mapstructure:"key" validate:"required"`
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DBConfig struct {
	Driver      string `mapstructure:"driver" validate:"oneof=postgres sqlite"`
	DSN         string `mapstructure:"dsn"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
	MaxConns    int    `mapstructure:"max_conns" validate:"min=0"`
}

type SessionConfig struct {
	Driver   string        `mapstructure:"driver" validate:"oneof=memory redis"`
	Cookie   string        `mapstructure:"cookie" validate:"required"`
	Lifetime time.Duration `mapstructure:"lifetime" validate:"gt=0"`
	Secure   bool          `mapstructure:"secure"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret" validate:"required"`
	AccessTTL  time.Duration `mapstructure:"access_ttl" validate:"gt=0"`
	RefreshTTL time.Duration `mapstructure:"refresh_ttl" validate:"gt=0"`
}

// LogConfig mirrors the console/file split of a rotating logger.
type LogConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn warning error"`
	Type       string `mapstructure:"type" validate:"oneof=console json file"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

type AssetsConfig struct {
	Manifest string `mapstructure:"manifest"`
	BaseURL  string `mapstructure:"base_url"`
}

type UploadsConfig struct {
	Base    string `mapstructure:"base" validate:"required"`
	MaxSize int64  `mapstructure:"max_size" validate:"gt=0"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load reads config from the optional YAML file at path, then the .env file in the working
// directory (never overriding variables already set), then the environment. Keys map to
// variables by upper-casing and replacing dots, e.g. db.dsn -> DB_DSN.
func Load(path string) (*Config, error) {
	if err := LoadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// historical variable name kept for existing deployments
	_ = v.BindEnv("uploads.base", "UPLOADS_BASE", "UPLOAD_BASE")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDotEnv copies KEY=value pairs from path into the environment without overwriting
// variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	for _, key := range v.AllKeys() {
		name := strings.ToUpper(key)
		if _, exists := os.LookupEnv(name); !exists {
			_ = os.Setenv(name, v.GetString(key))
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "Ultrashots")
	v.SetDefault("app.env", "local")
	v.SetDefault("app.url", "http://localhost:8081")
	v.SetDefault("app.key", "dev-insecure-key-change")
	v.SetDefault("app.port", 8081)
	v.SetDefault("app.read_timeout", 15*time.Second)
	v.SetDefault("app.write_timeout", 30*time.Second)
	v.SetDefault("app.shutdown_timeout", 15*time.Second)

	v.SetDefault("db.driver", DriverPostgres)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.auto_migrate", true)
	v.SetDefault("db.max_conns", 25)

	v.SetDefault("session.driver", SessionMemory)
	v.SetDefault("session.cookie", "ultrashots_session")
	v.SetDefault("session.lifetime", 120*time.Minute)
	v.SetDefault("session.secure", false)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("jwt.secret", "dev-insecure-secret-change")
	v.SetDefault("jwt.access_ttl", 15*time.Minute)
	v.SetDefault("jwt.refresh_ttl", 30*24*time.Hour)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.type", "console")
	v.SetDefault("log.file_path", "storage/logs/app.log")
	v.SetDefault("log.max_size", 10)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age", 30)

	v.SetDefault("assets.manifest", "public/build/manifest.json")
	v.SetDefault("assets.base_url", "/build/")

	v.SetDefault("uploads.base", "uploads")
	v.SetDefault("uploads.max_size", 5*1024*1024)

	v.SetDefault("cors.allowed_origins", []string{})
}

// Validate checks field constraints and the cross-field rules the tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("validation failed for config: %w", err)
	}
	if c.DB.Driver == DriverPostgres && c.DB.DSN == "" {
		return fmt.Errorf("DB_DSN is not set. The postgres driver requires a DSN in DB_DSN")
	}
	if c.Session.Driver == SessionRedis && c.Redis.Addr == "" {
		return fmt.Errorf("redis session driver requires REDIS_ADDR")
	}
	if c.Log.Type == "file" {
		if c.Log.FilePath == "" {
			return fmt.Errorf("file path is required for file logger")
		}
		if c.Log.MaxSize < 1 || c.Log.MaxSize > 100 {
			return fmt.Errorf("max size must be between 1 and 100 MB")
		}
	}
	if _, err := c.App.KeyBytes(); err != nil {
		return err
	}
	return nil
}

// KeyBytes decodes APP_KEY. Keys prefixed with "base64:" must decode to 32 bytes; any other
// value is used as a passphrase.
func (a AppConfig) KeyBytes() ([]byte, error) {
	if rest, ok := strings.CutPrefix(a.Key, "base64:"); ok {
		b, err := base64.StdEncoding.DecodeString(rest)
		if err != nil {
			return nil, fmt.Errorf("decoding APP_KEY: %w", err)
		}
		if len(b) != 32 {
			return nil, fmt.Errorf("APP_KEY must decode to 32 bytes, got %d", len(b))
		}
		return b, nil
	}
	return []byte(a.Key), nil
}

// Addr returns the listen address for the HTTP server.
func (a AppConfig) Addr() string {
	return fmt.Sprintf(":%d", a.Port)
}

package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"

	"github.com/nnaka2992/peaceful-postgresql/internal/analyzer"
	"github.com/nnaka2992/peaceful-postgresql/internal/logger"
)

// Config represents the root configuration structure
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	Size       SizeConfig       `mapstructure:"size"`
	Migrations MigrationsConfig `mapstructure:"migrations"`
	Rules      RulesConfig      `mapstructure:"rules"`
	Log        LogConfig        `mapstructure:"log"`
}

// DatabaseConfig holds database connection parameters
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"sslmode"`
	ApplicationName string `mapstructure:"application_name"`
}

// Configured reports whether enough is set to open a connection
func (d DatabaseConfig) Configured() bool {
	return d.Host != "" && d.Name != "" && d.User != ""
}

// SizeConfig controls the table size probe
type SizeConfig struct {
	// Threshold is a human readable size such as "1GB" or "512MiB"
	Threshold   string `mapstructure:"threshold"`
	Concurrency int    `mapstructure:"concurrency"`
}

// ThresholdBytes parses Threshold
func (s SizeConfig) ThresholdBytes() (int64, error) {
	n, err := humanize.ParseBytes(s.Threshold)
	if err != nil {
		return 0, fmt.Errorf("size.threshold: %w", err)
	}
	return int64(n), nil
}

// MigrationsConfig locates migrations on disk and in the database
type MigrationsConfig struct {
	Dir   string `mapstructure:"dir"`
	Table string `mapstructure:"table"`
}

// RulesConfig holds lock policy overrides
type RulesConfig struct {
	SelectLock string `mapstructure:"select_lock"`
}

// Analyzer converts the policy into analyzer rules
func (r RulesConfig) Analyzer() (analyzer.Rules, error) {
	lock, err := analyzer.ParseLockType(r.SelectLock)
	if err != nil {
		return analyzer.Rules{}, fmt.Errorf("rules.select_lock: %w", err)
	}
	return analyzer.Rules{Select: lock}, nil
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

var validSSLModes = []string{"disable", "allow", "prefer", "require", "verify-ca", "verify-full"}

// pgEnv lists the libpq environment variables used as fallbacks
var pgEnv = map[string]string{
	"database.host":             "PGHOST",
	"database.port":             "PGPORT",
	"database.name":             "PGDATABASE",
	"database.user":             "PGUSER",
	"database.password":         "PGPASSWORD",
	"database.sslmode":          "PGSSLMODE",
	"database.application_name": "PGAPPNAME",
}

// Load reads configuration from path, or from peaceful.yaml in the working
// directory or $HOME/.config/peaceful-pg when path is empty. PEACEFUL_*
// environment variables override the file, and PG* variables fill in
// connection fields nothing else sets.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("peaceful")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/peaceful-pg")
	}

	v.SetEnvPrefix("PEACEFUL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, pgVar := range pgEnv {
		envVar := "PEACEFUL_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envVar, pgVar); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	applyDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	v := viper.New()
	applyDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Validate validates the configuration values
func Validate(cfg *Config) error {
	if cfg.Database.Port < 1 || cfg.Database.Port > 65535 {
		return fmt.Errorf("database.port must be between 1 and 65535, got %d", cfg.Database.Port)
	}
	if !slices.Contains(validSSLModes, cfg.Database.SSLMode) {
		return fmt.Errorf("database.sslmode must be one of: %v, got %s", validSSLModes, cfg.Database.SSLMode)
	}
	if cfg.Size.Concurrency < 1 {
		return fmt.Errorf("size.concurrency must be >= 1, got %d", cfg.Size.Concurrency)
	}
	if _, err := cfg.Size.ThresholdBytes(); err != nil {
		return err
	}
	if cfg.Migrations.Table == "" {
		return fmt.Errorf("migrations.table cannot be empty")
	}
	if _, err := cfg.Rules.Analyzer(); err != nil {
		return err
	}
	if _, err := logger.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// applyDefaults sets default configuration values
func applyDefaults(v *viper.Viper) {
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.sslmode", "prefer")
	v.SetDefault("database.application_name", "peaceful-pg")

	// 1GB matches the size at which a table lock is considered disruptive
	v.SetDefault("size.threshold", "1GB")
	v.SetDefault("size.concurrency", 4)

	v.SetDefault("migrations.dir", "migrations")
	v.SetDefault("migrations.table", "django_migrations")

	v.SetDefault("rules.select_lock", analyzer.RowShare.String())

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
}

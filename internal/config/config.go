// Package config loads and writes the feedmail settings file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/bryan-buckman/feedmail/internal/model"
	"github.com/bryan-buckman/feedmail/internal/watermark"
)

// EnvPrefix prefixes environment overrides, e.g. FEEDMAIL_EMAIL_SERVER.
const EnvPrefix = "FEEDMAIL"

// Email holds the IMAP account settings.
type Email struct {
	Server   string `mapstructure:"server" yaml:"server"`
	Port     int    `mapstructure:"port" yaml:"port,omitempty"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`
	// Secure is one of tls, starttls or insecure.
	Secure        string        `mapstructure:"secure" yaml:"secure"`
	RetryMaxCount int           `mapstructure:"retry_max_count" yaml:"retry_max_count"`
	RetryDelay    time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
}

// SES holds the Amazon SES settings used by the ses sink.
type SES struct {
	Region          string `mapstructure:"region" yaml:"region,omitempty"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key,omitempty"`
	Sender          string `mapstructure:"sender" yaml:"sender,omitempty"`
}

// Store selects where feeds are kept.
type Store struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
	Path    string `mapstructure:"path" yaml:"path,omitempty"`
	DSN     string `mapstructure:"dsn" yaml:"dsn,omitempty"`
}

// Fetch configures feed downloads.
type Fetch struct {
	Concurrency int           `mapstructure:"concurrency" yaml:"concurrency"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	UserAgent   string        `mapstructure:"user_agent" yaml:"user_agent"`
}

// Images configures image downloads for inlining.
type Images struct {
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// Logging configures the default logger.
type Logging struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Serve configures daemon mode.
type Serve struct {
	Listen   string        `mapstructure:"listen" yaml:"listen"`
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

// Config is the whole settings file.
type Config struct {
	Email           Email            `mapstructure:"email" yaml:"email"`
	Defaults        model.FeedConfig `mapstructure:"defaults" yaml:"defaults"`
	DoNotSave       bool             `mapstructure:"do_not_save" yaml:"do_not_save"`
	WatermarkPolicy string           `mapstructure:"watermark_policy" yaml:"watermark_policy"`
	Sink            string           `mapstructure:"sink" yaml:"sink"`
	SES             SES              `mapstructure:"ses" yaml:"ses,omitempty"`
	Store           Store            `mapstructure:"store" yaml:"store"`
	Fetch           Fetch            `mapstructure:"fetch" yaml:"fetch"`
	Images          Images           `mapstructure:"images" yaml:"images"`
	Logging         Logging          `mapstructure:"logging" yaml:"logging"`
	Serve           Serve            `mapstructure:"serve" yaml:"serve"`
}

// Dir returns the feedmail configuration directory.
func Dir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(base, "feedmail")
}

// DefaultPath returns the default location of the settings file.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("email.server", "")
	v.SetDefault("email.port", 0)
	v.SetDefault("email.user", "")
	v.SetDefault("email.password", "")
	v.SetDefault("email.secure", "tls")
	v.SetDefault("email.retry_max_count", 3)
	v.SetDefault("email.retry_delay", time.Second)

	v.SetDefault("defaults.email", "")
	v.SetDefault("defaults.folder", "")
	v.SetDefault("defaults.from", "")
	v.SetDefault("defaults.inline_image_as_data", false)

	v.SetDefault("do_not_save", false)
	v.SetDefault("watermark_policy", "best_effort")
	v.SetDefault("sink", "imap")

	v.SetDefault("ses.region", "")
	v.SetDefault("ses.access_key_id", "")
	v.SetDefault("ses.secret_access_key", "")
	v.SetDefault("ses.sender", "")

	v.SetDefault("store.backend", "json")
	v.SetDefault("store.path", filepath.Join(Dir(), "feeds.json"))
	v.SetDefault("store.dsn", "")

	v.SetDefault("fetch.concurrency", 8)
	v.SetDefault("fetch.timeout", 30*time.Second)
	v.SetDefault("fetch.user_agent", "feedmail/1.0")

	v.SetDefault("images.timeout", 15*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("serve.listen", "127.0.0.1:8080")
	v.SetDefault("serve.interval", 30*time.Minute)
}

// Load reads the settings file at path. A missing file yields the defaults.
// FEEDMAIL_* environment variables override both.
func Load(path string) (*Config, error) {
	return load(path, true)
}

// LoadFile reads the settings file at path without environment overrides.
// It is the starting point for edits written back with Save.
func LoadFile(path string) (*Config, error) {
	return load(path, false)
}

// Update applies edit to the settings stored at path and saves them.
// Environment overrides are never written to the file.
func Update(path string, edit func(*Config)) error {
	cfg, err := LoadFile(path)
	if err != nil {
		return err
	}
	edit(cfg)
	return Save(path, cfg)
}

func load(path string, withEnv bool) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if withEnv {
		v.SetEnvPrefix(EnvPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()
	}
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		var pathErr *fs.PathError
		if !errors.As(err, &notFound) && !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path, creating parent directories if needed.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	// may contain a password
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Validate checks the enumerated settings.
func (c *Config) Validate() error {
	switch c.Sink {
	case "imap", "ses", "stdout":
	default:
		return fmt.Errorf("unknown sink %q", c.Sink)
	}
	switch c.Email.Secure {
	case "tls", "starttls", "insecure":
	default:
		return fmt.Errorf("unknown email.secure %q", c.Email.Secure)
	}
	if _, err := watermark.ParsePolicy(c.WatermarkPolicy); err != nil {
		return err
	}
	if c.Sink == "imap" && (c.Email.Server == "" || c.Email.User == "") {
		return errors.New("email.server and email.user are required, run `feedmail new` first")
	}
	return nil
}

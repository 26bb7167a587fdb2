// Package config loads process configuration from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the relay process configuration.
type Config struct {
	Host string `mapstructure:"HOST"`
	Port int    `mapstructure:"PORT"`

	// PurgeInterval is how often every stored event is discarded. Zero disables purging.
	PurgeInterval time.Duration `mapstructure:"PURGE_INTERVAL"`

	RelayName        string `mapstructure:"RELAY_NAME"`
	RelayDescription string `mapstructure:"RELAY_DESCRIPTION"`
	RelayPubKey      string `mapstructure:"RELAY_PUBKEY"`
	RelayContact     string `mapstructure:"RELAY_CONTACT"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	SendBuffer     int   `mapstructure:"SEND_BUFFER"`
	MaxMessageSize int64 `mapstructure:"MAX_MESSAGE_SIZE"`

	// MaxLimit caps the events replayed per filter. Zero means no cap.
	MaxLimit int `mapstructure:"MAX_LIMIT"`

	VerifyEventID  bool `mapstructure:"VERIFY_EVENT_ID"`
	MetricsEnabled bool `mapstructure:"METRICS_ENABLED"`
}

// Load reads configuration into v, which may already carry bound command
// line flags. Precedence: flags, then environment, then the file named by
// ENV_FILE (default ".env"), then defaults. A missing env file is not an error.
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.New()
	}

	v.AutomaticEnv()

	v.SetDefault("ENV_FILE", ".env")
	v.SetDefault("HOST", "")
	v.SetDefault("PORT", 8080)
	v.SetDefault("PURGE_INTERVAL", "1h")
	v.SetDefault("RELAY_NAME", "ephemeral-relay")
	v.SetDefault("RELAY_DESCRIPTION", "")
	v.SetDefault("RELAY_PUBKEY", "")
	v.SetDefault("RELAY_CONTACT", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("SEND_BUFFER", 4096)
	v.SetDefault("MAX_MESSAGE_SIZE", 512<<10)
	v.SetDefault("MAX_LIMIT", 0)
	v.SetDefault("VERIFY_EVENT_ID", false)
	v.SetDefault("METRICS_ENABLED", true)

	v.SetConfigFile(v.GetString("ENV_FILE"))
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore a missing file

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("config: PORT %d out of range", c.Port)
	}
	if c.PurgeInterval < 0 {
		return errors.New("config: PURGE_INTERVAL must not be negative")
	}
	if c.SendBuffer <= 0 {
		return errors.New("config: SEND_BUFFER must be positive")
	}
	if c.MaxMessageSize <= 0 {
		return errors.New("config: MAX_MESSAGE_SIZE must be positive")
	}
	if c.MaxLimit < 0 {
		return errors.New("config: MAX_LIMIT must not be negative")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("config: LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("config: LOG_LEVEL: %w", err)
	}
	return level, nil
}

// NewLogger builds the process logger described by LogLevel and LogFormat.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := c.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

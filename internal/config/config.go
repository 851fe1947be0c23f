// Package config loads MultiChat settings: built-in defaults, then an
// optional YAML file, then MULTICHAT_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/Tyrowin/multichat/internal/client"
	"github.com/Tyrowin/multichat/internal/hub"
	"github.com/Tyrowin/multichat/internal/session"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds hub and client settings. Each command validates only the
// fields it uses.
type Config struct {
	LogLevel string `yaml:"log_level" env:"MULTICHAT_LOG_LEVEL" validate:"oneof=DEBUG INFO WARN ERROR"`

	// Hub
	BindAddress     string        `yaml:"bind_address" env:"MULTICHAT_BIND_ADDRESS" validate:"required,ip,local_ip"`
	Port            int           `yaml:"port" env:"MULTICHAT_PORT" validate:"min=1,max=65535"`
	BufferSize      int           `yaml:"buffer_size" env:"MULTICHAT_BUFFER_SIZE" validate:"min=1"`
	MaxFrameSize    int           `yaml:"max_frame_size" env:"MULTICHAT_MAX_FRAME_SIZE" validate:"min=16"`
	SendQueueSize   int           `yaml:"send_queue_size" env:"MULTICHAT_SEND_QUEUE_SIZE" validate:"min=1"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"MULTICHAT_WRITE_TIMEOUT" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"MULTICHAT_SHUTDOWN_TIMEOUT" validate:"gt=0"`
	StrictFrames    bool          `yaml:"strict_frames" env:"MULTICHAT_STRICT_FRAMES"`
	StrictPresence  bool          `yaml:"strict_presence" env:"MULTICHAT_STRICT_PRESENCE"`
	// RateLimitBurst of 0 disables Message rate limiting.
	RateLimitBurst    int           `yaml:"rate_limit_burst" env:"MULTICHAT_RATE_LIMIT_BURST" validate:"min=0"`
	RateLimitInterval time.Duration `yaml:"rate_limit_interval" env:"MULTICHAT_RATE_LIMIT_INTERVAL" validate:"gt=0"`
	// HTTPAddress enables the HTTP side-car when set, e.g. ":8080".
	HTTPAddress    string   `yaml:"http_address" env:"MULTICHAT_HTTP_ADDRESS" validate:"omitempty,hostname_port|startswith=:"`
	AllowedOrigins []string `yaml:"allowed_origins" env:"MULTICHAT_ALLOWED_ORIGINS,separator=;"`

	// Client
	ConnectAddress string        `yaml:"connect_address" env:"MULTICHAT_CONNECT_ADDRESS" validate:"required,hostname|ip"`
	DisplayName    string        `yaml:"display_name" env:"MULTICHAT_DISPLAY_NAME" validate:"required,max=64"`
	DialTimeout    time.Duration `yaml:"dial_timeout" env:"MULTICHAT_DIAL_TIMEOUT" validate:"gt=0"`
	Colors         bool          `yaml:"colors" env:"MULTICHAT_COLORS"`
}

var hubFields = []string{
	"LogLevel", "BindAddress", "Port", "BufferSize", "MaxFrameSize", "SendQueueSize",
	"WriteTimeout", "ShutdownTimeout", "RateLimitBurst", "RateLimitInterval", "HTTPAddress",
}

var clientFields = []string{
	"LogLevel", "ConnectAddress", "Port", "DisplayName", "BufferSize", "MaxFrameSize", "DialTimeout",
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		LogLevel:          "INFO",
		BindAddress:       "0.0.0.0",
		Port:              9000,
		BufferSize:        1024,
		MaxFrameSize:      64 << 10,
		SendQueueSize:     256,
		WriteTimeout:      10 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		RateLimitBurst:    5,
		RateLimitInterval: time.Second,
		AllowedOrigins:    []string{"http://localhost:8080"},
		ConnectAddress:    "127.0.0.1",
		DialTimeout:       5 * time.Second,
		Colors:            true,
	}
}

// Load builds a Config from the defaults, the YAML file at path when path
// is not empty, and the process environment, in that order.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}
	return sanitize(cfg), nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func sanitize(cfg Config) Config {
	cfg.LogLevel = strings.ToUpper(strings.TrimSpace(cfg.LogLevel))
	cfg.BindAddress = strings.TrimSpace(cfg.BindAddress)
	cfg.ConnectAddress = strings.TrimSpace(cfg.ConnectAddress)
	cfg.DisplayName = strings.TrimSpace(cfg.DisplayName)
	cfg.HTTPAddress = strings.TrimSpace(cfg.HTTPAddress)

	origins := make([]string, 0, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	cfg.AllowedOrigins = origins
	return cfg
}

// SessionOptions returns the per-connection settings.
func (c Config) SessionOptions() session.Options {
	return session.Options{
		BufferSize:    c.BufferSize,
		MaxFrameSize:  c.MaxFrameSize,
		SendQueueSize: c.SendQueueSize,
		WriteTimeout:  c.WriteTimeout,
		StrictFrames:  c.StrictFrames,
		RateLimit: session.RateLimit{
			Burst:          c.RateLimitBurst,
			RefillInterval: c.RateLimitInterval,
		},
	}
}

// HubOptions returns the settings for hub.New.
func (c Config) HubOptions() hub.Options {
	return hub.Options{
		BindAddress:    c.BindAddress,
		Port:           c.Port,
		Session:        c.SessionOptions(),
		StrictPresence: c.StrictPresence,
	}
}

// ClientConfig returns the settings for client.Dial. Clients are not rate
// limited locally.
func (c Config) ClientConfig() client.Config {
	opts := c.SessionOptions()
	opts.RateLimit = session.RateLimit{}
	return client.Config{
		Address:     c.ConnectAddress,
		Port:        c.Port,
		DisplayName: c.DisplayName,
		DialTimeout: c.DialTimeout,
		Session:     opts,
	}
}

// Package config loads the bot's runtime configuration from the process
// environment.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is the bot's full runtime configuration.
type Config struct {
	// BotToken authenticates every chatapi call.
	BotToken string `envconfig:"BOT_TOKEN" required:"true"`

	// RingSize bounds the submission queue; rounded up to the next
	// power of two by ring.New.
	RingSize uint32 `envconfig:"BOT_RING_SIZE" default:"8192"`

	// HTTPTimeout bounds every outbound chatapi request.
	HTTPTimeout time.Duration `envconfig:"BOT_HTTP_TIMEOUT" default:"30s"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `envconfig:"BOT_LOG_LEVEL" default:"info"`
}

// Load reads Config from the environment, applying defaults for unset
// optional fields.
func Load() (Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if c.BotToken == "" {
		return Config{}, fmt.Errorf("config: BOT_TOKEN must not be empty")
	}
	return c, nil
}

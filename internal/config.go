package internal

import (
	"chat-session/errors"
	"chat-session/runtime"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/samber/lo"
)

var validate = validator.New()

type Config struct {
	RelayURL string `env:"CHAT_RELAY_URL,default=http://localhost:5000" validate:"required,url"`
	LogLevel string `env:"LOG_LEVEL,default=WARN" validate:"required"`
	// CHAT_USERNAME and CHAT_ROOM seed the console, nothing is sent until asked.
	Username string `env:"CHAT_USERNAME"`
	Room     string `env:"CHAT_ROOM"`

	ReconnectPolicy      string        `env:"RECONNECT_POLICY,default=exponential" validate:"oneof=none fixed exponential"`
	ReconnectDelay       time.Duration `env:"RECONNECT_DELAY,default=1s" validate:"gt=0"`
	ReconnectMaxDelay    time.Duration `env:"RECONNECT_MAX_DELAY,default=5s" validate:"gtefield=ReconnectDelay"`
	ReconnectMultiplier  float64       `env:"RECONNECT_MULTIPLIER,default=2" validate:"gte=1"`
	ReconnectJitter      float64       `env:"RECONNECT_JITTER,default=0.5" validate:"gte=0,lte=1"`
	ReconnectMaxAttempts int           `env:"RECONNECT_MAX_ATTEMPTS,default=0" validate:"min=0"`

	ConnectTimeout   time.Duration `env:"CONNECT_TIMEOUT,default=20s" validate:"gt=0"`
	WriteTimeout     time.Duration `env:"WRITE_TIMEOUT,default=10s" validate:"gt=0"`
	OutboxSize       int           `env:"OUTBOX_SIZE,default=64" validate:"min=1"`
	SubscriberBuffer int           `env:"SUBSCRIBER_BUFFER_SIZE,default=64" validate:"min=1"`
	RestartInterval  time.Duration `env:"RESTART_INTERVAL,default=200ms" validate:"gt=0"`
	// STATS_INTERVAL of 0 disables the periodic stats log
	StatsInterval time.Duration `env:"STATS_INTERVAL,default=0s" validate:"gte=0"`
	Colours       bool          `env:"CHAT_COLOURS,default=true"`
	AutoConnect   bool          `env:"AUTO_CONNECT,default=true"`
}

// Load reads an optional .env file, then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	es, err := env.EnvironToEnvSet(os.Environ())
	if err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	return Parse(es)
}

// Parse decodes and validates a configuration from es.
func Parse(es env.EnvSet) (Config, error) {
	var config Config
	if err := env.Unmarshal(es, &config); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	scheme, err := c.Scheme()
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if !lo.Contains(supportedSchemes, scheme) {
		return fmt.Errorf("invalid config: %w: %q", errors.ErrUnsupportedScheme, scheme)
	}
	return nil
}

// Scheme is the relay endpoint scheme, which selects the transport.
func (c Config) Scheme() (string, error) {
	u, err := url.Parse(c.RelayURL)
	if err != nil {
		return "", err
	}
	return u.Scheme, nil
}

func (c Config) ReconnectConfig() runtime.ReconnectConfig {
	return runtime.ReconnectConfig{
		Policy:       runtime.ReconnectPolicy(c.ReconnectPolicy),
		InitialDelay: c.ReconnectDelay,
		Multiplier:   c.ReconnectMultiplier,
		MaxDelay:     c.ReconnectMaxDelay,
		Jitter:       c.ReconnectJitter,
		MaxAttempts:  c.ReconnectMaxAttempts,
	}
}

func (c Config) SessionOptions() runtime.Options {
	return runtime.Options{
		Username:         c.Username,
		Reconnect:        c.ReconnectConfig(),
		SubscriberBuffer: c.SubscriberBuffer,
	}
}

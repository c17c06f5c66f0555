package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type RateLimit struct {
	Events   int           `mapstructure:"events"`
	Interval time.Duration `mapstructure:"interval"`
}

type Database struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type Redis struct {
	URL         string        `mapstructure:"url"`
	DB          int           `mapstructure:"db"`
	PresenceTTL time.Duration `mapstructure:"presence_ttl"`
}

type Config struct {
	Mode         string        `mapstructure:"mode"`
	Port         int           `mapstructure:"port"`
	StaticPath   string        `mapstructure:"static_path"`
	LogLevel     string        `mapstructure:"log_level"`
	ReadLimit    int64         `mapstructure:"read_limit"`
	PingPeriod   time.Duration `mapstructure:"ping_period"`
	SendBuffer   int           `mapstructure:"send_buffer"`
	Secret       string        `mapstructure:"secret"`
	TypingExpiry time.Duration `mapstructure:"typing_expiry"`
	RingTimeout  time.Duration `mapstructure:"ring_timeout"`
	RateLimit    RateLimit     `mapstructure:"rate_limit"`
	Database     Database      `mapstructure:"database"`
	Redis        Redis         `mapstructure:"redis"`
	ICEServers   []string      `mapstructure:"ice_servers"`
}

var ErrInvalid = errors.New("invalid config")

// Load reads config/config.<CONFIG_ENV>.yaml on top of the defaults.
// A .env file, if present, is loaded into the process environment first and
// PARLEY_* variables override file values (rate_limit.events becomes
// PARLEY_RATE_LIMIT_EVENTS).
func Load() (*Config, error) {
	if err := godotenv.Load(); err == nil {
		log.Debug().Str("module", "config").Msg("loaded .env")
	}

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)

	v.SetEnvPrefix("PARLEY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).
		Str("static", cfg.StaticPath).Str("db", cfg.Database.Driver).Bool("redis", cfg.Redis.URL != "").
		Bool("auth", cfg.Secret != "").Msg("config ready")
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("log_level", "info")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("secret", "")
	v.SetDefault("typing_expiry", "3s")
	v.SetDefault("ring_timeout", "45s")
	v.SetDefault("rate_limit.events", 30)
	v.SetDefault("rate_limit.interval", "1s")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "file:parley.db?cache=shared")
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.presence_ttl", "120s")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
}

func (c *Config) Validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("%w: port %d", ErrInvalid, c.Port)
	case c.SendBuffer <= 0:
		return fmt.Errorf("%w: send_buffer must be positive", ErrInvalid)
	case c.PingPeriod <= 0:
		return fmt.Errorf("%w: ping_period must be positive", ErrInvalid)
	case c.Database.Driver != "sqlite" && c.Database.Driver != "postgres":
		return fmt.Errorf("%w: database.driver %q", ErrInvalid, c.Database.Driver)
	}
	return nil
}

// PongWait is how long a connection may stay silent before it is dropped.
func (c *Config) PongWait() time.Duration {
	return c.PingPeriod * 10 / 9
}

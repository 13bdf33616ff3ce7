package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	DB struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"db"`

	API struct {
		Listen string `mapstructure:"listen"`
	} `mapstructure:"api"`

	Auth struct {
		JWTSecret              string        `mapstructure:"jwt_secret"`
		SessionCacheTTLSeconds int           `mapstructure:"session_cache_ttl_seconds"`
		SessionCacheTTL        time.Duration `mapstructure:"-"`
		SessionCacheSize       int           `mapstructure:"session_cache_size"`
		AllowAnonymous         bool          `mapstructure:"allow_anonymous"`
		AnonymousChannels      []string      `mapstructure:"anonymous_channels"`
	} `mapstructure:"auth"`

	Push struct {
		// Bcrypt hash of the internal push key. Empty disables the
		// /internal/push guard (local development only).
		KeyHash string `mapstructure:"key_hash"`
	} `mapstructure:"push"`

	Hub struct {
		QueueSize           int           `mapstructure:"queue_size"`
		SendBuffer          int           `mapstructure:"send_buffer"`
		WriteTimeoutSeconds int           `mapstructure:"write_timeout_seconds"`
		WriteTimeout        time.Duration `mapstructure:"-"`
	} `mapstructure:"hub"`

	Presence struct {
		WindowSeconds int           `mapstructure:"window_seconds"`
		Window        time.Duration `mapstructure:"-"`
	} `mapstructure:"presence"`

	Poll struct {
		FastIntervalMS int `mapstructure:"fast_interval_ms"`
		SlowIntervalMS int `mapstructure:"slow_interval_ms"`
		MaxItems       int `mapstructure:"max_items"`
	} `mapstructure:"poll"`
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// Defaults
	v.SetDefault("api.listen", "127.0.0.1:8090")
	v.SetDefault("auth.session_cache_ttl_seconds", 300)
	v.SetDefault("auth.session_cache_size", 10000)
	v.SetDefault("auth.allow_anonymous", false)
	v.SetDefault("auth.anonymous_channels", []string{"system"})
	v.SetDefault("hub.queue_size", 1024)
	v.SetDefault("hub.send_buffer", 256)
	v.SetDefault("hub.write_timeout_seconds", 10)
	v.SetDefault("presence.window_seconds", 300)
	v.SetDefault("poll.fast_interval_ms", 15000)
	v.SetDefault("poll.slow_interval_ms", 45000)
	v.SetDefault("poll.max_items", 200)

	// Env overrides
	v.SetEnvPrefix("PULSE")
	v.AutomaticEnv()
	_ = v.BindEnv("db.dsn", "PULSE_DB_DSN")
	_ = v.BindEnv("api.listen", "PULSE_API_LISTEN")
	_ = v.BindEnv("auth.jwt_secret", "PULSE_AUTH_JWT_SECRET")
	_ = v.BindEnv("push.key_hash", "PULSE_PUSH_KEY_HASH")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	c.Auth.SessionCacheTTL = time.Duration(c.Auth.SessionCacheTTLSeconds) * time.Second
	c.Hub.WriteTimeout = time.Duration(c.Hub.WriteTimeoutSeconds) * time.Second
	c.Presence.Window = time.Duration(c.Presence.WindowSeconds) * time.Second

	if c.DB.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required (set PULSE_DB_DSN or config file)")
	}
	return &c, nil
}

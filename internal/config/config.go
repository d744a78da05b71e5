package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat         string        `mapstructure:"log_format" yaml:"log_format"`

	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL      time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`

	SuperuserRole string `mapstructure:"superuser_role" yaml:"superuser_role"`

	MaxMessageBytes int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	MaxBodyRunes    int           `mapstructure:"max_body_runes" yaml:"max_body_runes"`
	PingInterval    time.Duration `mapstructure:"ping_interval" yaml:"ping_interval"`
	PongTimeout     time.Duration `mapstructure:"pong_timeout" yaml:"pong_timeout"`
	SendBuffer      int           `mapstructure:"send_buffer" yaml:"send_buffer"`
	HistoryLimit    int           `mapstructure:"history_limit" yaml:"history_limit"`

	Typing        TypingConfig        `mapstructure:"typing" yaml:"typing"`
	Notifications NotificationsConfig `mapstructure:"notifications" yaml:"notifications"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit" yaml:"rate_limit"`
	Redis         RedisConfig         `mapstructure:"redis" yaml:"redis"`
	Metrics       MetricsConfig       `mapstructure:"metrics" yaml:"metrics"`
}

// TypingConfig tunes the typing indicator.
type TypingConfig struct {
	Idle time.Duration `mapstructure:"idle" yaml:"idle"`
}

// NotificationsConfig tunes the unread inbox.
type NotificationsConfig struct {
	HistorySize int `mapstructure:"history_size" yaml:"history_size"`
}

// RateLimitConfig throttles sends per session and logins per address.
type RateLimitConfig struct {
	PerSecond float64 `mapstructure:"per_second" yaml:"per_second"`
	Burst     int     `mapstructure:"burst" yaml:"burst"`

	// LoginPerMinute limits login attempts per client address. Zero disables.
	LoginPerMinute int `mapstructure:"login_per_minute" yaml:"login_per_minute"`
	LoginBurst     int `mapstructure:"login_burst" yaml:"login_burst"`
}

// RedisConfig enables the presence mirror when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		LogFormat:         "console",
		DatabasePath:      "chat.db",
		JWTSecret:         "change-me",
		JWTIssuer:         "intranet-chat",
		JWTAudience:       "intranet-chat",
		JWTTTL:            12 * time.Hour,
		SuperuserRole:     "SUPERUSER",
		MaxMessageBytes:   16 << 10,
		MaxBodyRunes:      4000,
		PingInterval:      25 * time.Second,
		PongTimeout:       20 * time.Second,
		SendBuffer:        64,
		HistoryLimit:      50,
		Typing:            TypingConfig{Idle: time.Second},
		Notifications:     NotificationsConfig{HistorySize: 50},
		RateLimit:         RateLimitConfig{PerSecond: 5, Burst: 10, LoginPerMinute: 20, LoginBurst: 5},
		Metrics:           MetricsConfig{Enabled: true},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.LogFormat != "" {
		c.LogFormat = other.LogFormat
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.JWTSecret != "" {
		c.JWTSecret = other.JWTSecret
	}
	if other.JWTTTL != 0 {
		c.JWTTTL = other.JWTTTL
	}
	if other.SuperuserRole != "" {
		c.SuperuserRole = other.SuperuserRole
	}
	if other.Redis.Addr != "" {
		c.Redis.Addr = other.Redis.Addr
	}
}

package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"` // console or json

	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL      time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`

	SessionIdleTimeout time.Duration `mapstructure:"session_idle_timeout" yaml:"session_idle_timeout"`
	Retention          time.Duration `mapstructure:"retention" yaml:"retention"`
	SweepInterval      time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`

	UploadDir      string `mapstructure:"upload_dir" yaml:"upload_dir"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes" yaml:"max_upload_bytes"`
	EventBuffer    int    `mapstructure:"event_buffer" yaml:"event_buffer"`

	// MaxMessageLength caps message bodies in characters; zero disables it.
	MaxMessageLength int `mapstructure:"max_message_length" yaml:"max_message_length"`

	// RateLimitPerMinute caps inbound socket events per connection; zero disables it.
	RateLimitPerMinute int `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:               ":8080",
		ReadHeaderTimeout:  5 * time.Second,
		ShutdownTimeout:    5 * time.Second,
		LogLevel:           "info",
		LogFormat:          "console",
		DatabasePath:       "wirechat.db",
		JWTSecret:          "change-me",
		JWTIssuer:          "wirechat",
		JWTAudience:        "wirechat-clients",
		JWTTTL:             24 * time.Hour,
		SessionIdleTimeout: 15 * time.Minute,
		Retention:          24 * time.Hour,
		SweepInterval:      time.Minute,
		UploadDir:          "uploads",
		MaxUploadBytes:     50 << 20,
		MaxMessageLength:   500,
		EventBuffer:        64,
		RateLimitPerMinute: 120,
	}
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	switch {
	case c.Addr == "":
		return errInvalid("addr is empty")
	case c.DatabasePath == "":
		return errInvalid("database_path is empty")
	case c.JWTSecret == "":
		return errInvalid("jwt_secret is empty")
	case c.JWTTTL <= 0:
		return errInvalid("jwt_ttl must be positive")
	case c.SessionIdleTimeout <= 0:
		return errInvalid("session_idle_timeout must be positive")
	case c.Retention <= 0 || c.SweepInterval <= 0:
		return errInvalid("retention and sweep_interval must be positive")
	case c.UploadDir == "":
		return errInvalid("upload_dir is empty")
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	envConfigDefaultPath = "WIRECHAT_CONFIG_DEFAULT_PATH"
	defaultConfigName    = "config.yaml"
)

// ErrInvalid marks configuration that fails validation.
var ErrInvalid = errors.New("invalid config")

func errInvalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalid, msg)
}

// Load builds configuration and returns the resolved file path.
// Precedence: defaults < config file < env vars (WIRECHAT_*) < flags.
// Flags are matched by key with dashes, e.g. --log-level binds log_level.
// A missing config file is created with the defaults.
func Load(logger *zerolog.Logger, explicitPath string, flags *pflag.FlagSet) (Config, string, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	keys := defaults(cfg)
	for key, value := range keys {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix("WIRECHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if _, ok := keys[key]; !ok {
				return
			}
			if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return cfg, "", fmt.Errorf("bind flags: %w", bindErr)
		}
	}

	configPath := resolveConfigPath(explicitPath)
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			if writeErr := writeDefaultConfig(configPath, cfg); writeErr != nil && logger != nil {
				logger.Warn().Err(writeErr).Str("path", configPath).Msg("failed to write default config")
			} else if logger != nil {
				logger.Info().Str("path", configPath).Msg("created default config")
			}
			// try reading again in case it was just written
			if readErr := v.ReadInConfig(); readErr != nil && logger != nil {
				logger.Warn().Err(readErr).Str("path", configPath).Msg("failed to read config after writing default")
			}
		} else {
			return cfg, configPath, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, configPath, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, configPath, err
	}

	return cfg, configPath, nil
}

func defaults(cfg Config) map[string]any {
	return map[string]any{
		"addr":                  cfg.Addr,
		"read_header_timeout":   cfg.ReadHeaderTimeout,
		"shutdown_timeout":      cfg.ShutdownTimeout,
		"log_level":             cfg.LogLevel,
		"log_format":            cfg.LogFormat,
		"database_path":         cfg.DatabasePath,
		"jwt_secret":            cfg.JWTSecret,
		"jwt_issuer":            cfg.JWTIssuer,
		"jwt_audience":          cfg.JWTAudience,
		"jwt_ttl":               cfg.JWTTTL,
		"session_idle_timeout":  cfg.SessionIdleTimeout,
		"retention":             cfg.Retention,
		"sweep_interval":        cfg.SweepInterval,
		"upload_dir":            cfg.UploadDir,
		"max_upload_bytes":      cfg.MaxUploadBytes,
		"max_message_length":    cfg.MaxMessageLength,
		"event_buffer":          cfg.EventBuffer,
		"rate_limit_per_minute": cfg.RateLimitPerMinute,
	}
}

func resolveConfigPath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}

	if base := os.Getenv(envConfigDefaultPath); base != "" {
		if err := os.MkdirAll(base, 0o755); err == nil {
			return filepath.Join(base, defaultConfigName)
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return defaultConfigName
	}
	return filepath.Join(cwd, defaultConfigName)
}

func writeDefaultConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

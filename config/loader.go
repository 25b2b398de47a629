package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/kbukum/eventsource"
)

const defaultEnvPrefix = "EVENTSOURCE"

// LoaderConfig controls where configuration is read from.
type LoaderConfig struct {
	// ConfigFile is an explicit path to a YAML config file. When empty,
	// standard locations are searched and a missing file is not an error.
	ConfigFile string

	// EnvFile is an explicit path to a dotenv file loaded before reading
	// environment variables. When empty, ./.env is used if present.
	EnvFile string

	// EnvPrefix is the prefix for environment variable overrides.
	// Defaults to "EVENTSOURCE".
	EnvPrefix string
}

// Load reads client configuration from a YAML file and the environment.
// Values resolve in order: defaults < config file < environment variables.
func Load(opts LoaderConfig) (eventsource.Config, error) {
	var cfg eventsource.Config

	if err := loadEnvFile(opts.EnvFile); err != nil {
		return cfg, err
	}

	v := viper.New()
	prefix := opts.EnvPrefix
	if prefix == "" {
		prefix = defaultEnvPrefix
	}
	v.SetEnvPrefix(prefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindKeys(v)

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("config: reading %s: %w", opts.ConfigFile, err)
		}
	} else {
		v.SetConfigName("eventsource")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return cfg, fmt.Errorf("config: reading config file: %w", err)
			}
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("config: unmarshaling: %w", err)
	}
	return cfg, nil
}

// bindKeys registers every recognized key so AutomaticEnv resolves it even
// when the config file does not mention it.
func bindKeys(v *viper.Viper) {
	for _, key := range []string{
		"url",
		"method",
		"headers",
		"last_event_id",
		"name",
		"reconnect_time",
		"max_reconnect_time",
		"backoff_reset_threshold",
		"connect_timeout",
		"read_timeout",
		"write_timeout",
		"read_buffer_size",
		"stream_event_data",
		"expect_fields",
		"max_event_tasks_in_flight",
	} {
		_ = v.BindEnv(key)
	}
}

func loadEnvFile(path string) error {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("config: loading env file %s: %w", path, err)
		}
		return nil
	}
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return fmt.Errorf("config: loading .env: %w", err)
		}
	}
	return nil
}

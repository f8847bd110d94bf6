package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	StatusPort  int      `mapstructure:"status_port"`
	DBPath      string   `mapstructure:"db_path"`
	IgnoreList  []string `mapstructure:"ignore_list"`
	Parallelism int      `mapstructure:"parallelism"`
}

// Default leaves the status server and the pass history disabled and
// mirrors every entry.
var Default = Config{
	StatusPort:  0,
	DBPath:      "",
	IgnoreList:  []string{},
	Parallelism: 1,
}

// ConfigError is a fatal misconfiguration detected before any pass runs.
type ConfigError struct {
	Field string
	Value string
	Msg   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Msg)
}

func IsConfigError(err error) bool {
	_, ok := errors.AsType[*ConfigError](err)
	return ok
}

func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home dir: %w", err)
	}

	return filepath.Join(home, ".replisync"), nil
}

func Load() (*Config, error) {
	configDir, err := Dir()
	if err != nil {
		return nil, err
	}

	return LoadFrom(viper.New(), configDir)
}

func LoadFrom(v *viper.Viper, configDir string) (*Config, error) {
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)

	v.SetDefault("status_port", Default.StatusPort)
	v.SetDefault("db_path", Default.DBPath)
	v.SetDefault("ignore_list", Default.IgnoreList)
	v.SetDefault("parallelism", Default.Parallelism)

	v.SetEnvPrefix("REPLISYNC")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := errors.AsType[viper.ConfigFileNotFoundError](err); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Parallelism < 1 {
		return &ConfigError{Field: "parallelism", Value: strconv.Itoa(c.Parallelism), Msg: "must be a positive integer"}
	}
	if c.StatusPort < 0 || c.StatusPort > 65535 {
		return &ConfigError{Field: "status_port", Value: strconv.Itoa(c.StatusPort), Msg: "must be between 0 and 65535"}
	}
	for _, pattern := range c.IgnoreList {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return &ConfigError{Field: "ignore_list", Value: pattern, Msg: err.Error()}
		}
	}

	return nil
}

// ParseInterval turns the interval argument, in whole seconds, into a
// duration. Anything but a positive integer is a ConfigError.
func ParseInterval(raw string) (time.Duration, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &ConfigError{Field: "interval", Value: raw, Msg: "must be an integer number of seconds"}
	}

	if n <= 0 {
		return 0, &ConfigError{Field: "interval", Value: raw, Msg: "must be a positive integer"}
	}

	return time.Duration(n) * time.Second, nil
}

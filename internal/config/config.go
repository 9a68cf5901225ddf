// Package config resolves credvault settings from a config file, the
// environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/illarion/credvault/internal/crypto"
	"github.com/illarion/credvault/internal/logging"
	"github.com/illarion/credvault/internal/security"
	"github.com/illarion/credvault/internal/storage"
)

const (
	EnvPrefix = "CREDVAULT"

	defaultDirName    = ".credvault"
	defaultMasterFile = "app.key"
	defaultStoreFile  = "app.db"
	defaultLogLevel   = "warn"
	defaultBcryptCost = 12
	minBcryptCost     = 10
	configName        = "config"
	dotEnvFile        = ".env"
)

// Config is the resolved configuration. It is built once by Load and not
// changed afterwards.
type Config struct {
	Dir           string `mapstructure:"dir"`
	MasterPath    string `mapstructure:"master_path"`
	StorePath     string `mapstructure:"store_path"`
	Driver        string `mapstructure:"driver"`
	KDFIterations int    `mapstructure:"kdf_iterations"`
	BcryptCost    int    `mapstructure:"bcrypt_cost"`
	LogLevel      string `mapstructure:"log_level"`
	LogFormat     string `mapstructure:"log_format"`
}

// Options controls where Load looks for settings
type Options struct {
	// ConfigFile overrides the <dir>/config.yaml lookup
	ConfigFile string
	// DotEnv is the .env file to load; empty means ".env" in the working
	// directory. Variables already set in the environment win.
	DotEnv string
}

// Load resolves the configuration, validates it and creates the data
// directory.
func Load(opts Options) (*Config, error) {
	if err := loadDotEnv(opts.DotEnv); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	dir := v.GetString("dir")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to locate home directory: %w", err)
		}
		dir = filepath.Join(home, defaultDirName)
		v.SetDefault("dir", dir)
	}

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.AddConfigPath(dir)
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.ConfigFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.resolvePaths()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := security.EnsurePrivateDir(cfg.Dir); err != nil {
		return nil, err
	}
	for _, path := range []string{cfg.MasterPath, cfg.StorePath} {
		if err := security.EnsureParent(path); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("dir", "")
	v.SetDefault("master_path", "")
	v.SetDefault("store_path", "")
	v.SetDefault("driver", storage.DriverBolt)
	v.SetDefault("kdf_iterations", crypto.DefaultIterations)
	v.SetDefault("bcrypt_cost", defaultBcryptCost)
	v.SetDefault("log_level", defaultLogLevel)
	v.SetDefault("log_format", logging.FormatText)
}

func loadDotEnv(path string) error {
	if path == "" {
		path = dotEnvFile
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func (c *Config) resolvePaths() {
	c.Dir = expandHome(c.Dir)
	if c.MasterPath == "" {
		c.MasterPath = filepath.Join(c.Dir, defaultMasterFile)
	}
	if c.StorePath == "" {
		c.StorePath = filepath.Join(c.Dir, defaultStoreFile)
	}
	c.MasterPath = expandHome(c.MasterPath)
	c.StorePath = expandHome(c.StorePath)
}

// Validate checks bounds and path sanity
func (c *Config) Validate() error {
	if c.Dir == "" {
		return errors.New("dir must not be empty")
	}
	if c.MasterPath == "" || c.StorePath == "" {
		return errors.New("master_path and store_path must not be empty")
	}
	if filepath.Clean(c.MasterPath) == filepath.Clean(c.StorePath) {
		return errors.New("master_path and store_path must differ")
	}
	switch c.Driver {
	case storage.DriverBolt, storage.DriverSQLite:
	default:
		return fmt.Errorf("driver %q: %w", c.Driver, storage.ErrUnknownDriver)
	}
	if c.KDFIterations < crypto.MinIterations {
		return fmt.Errorf("kdf_iterations must be at least %d, got %d", crypto.MinIterations, c.KDFIterations)
	}
	if c.BcryptCost < minBcryptCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("bcrypt_cost must be between %d and %d, got %d", minBcryptCost, bcrypt.MaxCost, c.BcryptCost)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case logging.FormatText, logging.FormatJSON:
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	return nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

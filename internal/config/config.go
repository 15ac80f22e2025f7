package config

import (
	"os"
	"path/filepath"

	"github.com/go-faster/errors"
	"gopkg.in/yaml.v3"
)

// DataDirEnv overrides the configured data directory.
const DataDirEnv = "TELESYNC_DATA_DIR"

const (
	defaultChatBatchSize   = 20
	defaultHistoryPageSize = 50
)

type Config struct {
	Telegram TelegramConfig `yaml:"telegram"`
	LogLevel string         `yaml:"log_level"`

	// DataDir holds one directory per account. Defaults to the accounts
	// directory under Dir().
	DataDir string `yaml:"data_dir"`
	// UseTestDC selects the test environment for newly added accounts.
	UseTestDC       bool `yaml:"use_test_dc"`
	ChatBatchSize   int  `yaml:"chat_batch_size"`
	HistoryPageSize int  `yaml:"history_page_size"`
}

type TelegramConfig struct {
	APIID   int    `yaml:"api_id"`
	APIHash string `yaml:"api_hash"`
}

func Dir() string {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		cfgDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(cfgDir, "telesync")
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if dir := os.Getenv(DataDirEnv); dir != "" {
		c.DataDir = dir
	}
	if c.DataDir == "" {
		c.DataDir = filepath.Join(Dir(), "accounts")
	}
	if c.ChatBatchSize <= 0 {
		c.ChatBatchSize = defaultChatBatchSize
	}
	if c.HistoryPageSize <= 0 {
		c.HistoryPageSize = defaultHistoryPageSize
	}
}

// Validate reports settings the application cannot start without.
func (c *Config) Validate() error {
	if c.Telegram.APIID == 0 || c.Telegram.APIHash == "" {
		return errors.New("telegram api_id and api_hash are required (see https://my.telegram.org)")
	}
	return nil
}

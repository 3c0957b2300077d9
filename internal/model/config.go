package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// MailboxConfig holds the IMAP connection settings for the inbound mailbox.
type MailboxConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     string `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`

	// Password may be left empty in the file and supplied through the
	// PROCURE_MAILBOX_PASSWORD variable or the OS keyring.
	Password string `mapstructure:"password" yaml:"password,omitempty"`

	// TLS selects implicit TLS (port 993); false uses STARTTLS.
	TLS bool `mapstructure:"tls" yaml:"tls"`

	// Folder is the mailbox to poll.
	Folder string `mapstructure:"folder" yaml:"folder"`

	// MaxMessages caps how many of the most recent matches one cycle fetches.
	MaxMessages int `mapstructure:"max_messages" yaml:"max_messages"`
}

// Configured reports whether enough settings are present to connect.
func (c MailboxConfig) Configured() bool {
	return c.Host != "" && c.Username != "" && c.Password != ""
}

// DatabaseConfig selects the SQL driver and data source.
type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `mapstructure:"driver" yaml:"driver"`
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
}

// AIConfig holds settings for the proposal extraction model.
type AIConfig struct {
	// BaseURL is an OpenAI-compatible endpoint; empty means api.openai.com.
	BaseURL    string `mapstructure:"base_url" yaml:"base_url"`
	Model      string `mapstructure:"model" yaml:"model"`
	APIKey     string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	TimeoutSec int    `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// PollingConfig controls the background mailbox scheduler.
type PollingConfig struct {
	IntervalMinutes int  `mapstructure:"interval_minutes" yaml:"interval_minutes"`
	AutoStart       bool `mapstructure:"auto_start" yaml:"auto_start"`
	CycleTimeoutSec int  `mapstructure:"cycle_timeout_sec" yaml:"cycle_timeout_sec"`
}

// ResolverConfig toggles optional RFP resolution strategies.
type ResolverConfig struct {
	ThreadMatching bool `mapstructure:"thread_matching" yaml:"thread_matching"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Mailbox  MailboxConfig  `mapstructure:"mailbox" yaml:"mailbox"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	AI       AIConfig       `mapstructure:"ai" yaml:"ai"`
	Polling  PollingConfig  `mapstructure:"polling" yaml:"polling"`
	Resolver ResolverConfig `mapstructure:"resolver" yaml:"resolver"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

const envPrefix = "PROCURE"

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/procure/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "procure", "config.yaml")
}

// defaultDataPath returns the default SQLite database location.
func defaultDataPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "procure.db"
	}
	return filepath.Join(home, ".local", "share", "procure", "procure.db")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mailbox.host", "")
	v.SetDefault("mailbox.username", "")
	v.SetDefault("mailbox.password", "")
	v.SetDefault("mailbox.port", "993")
	v.SetDefault("mailbox.tls", true)
	v.SetDefault("mailbox.folder", "INBOX")
	v.SetDefault("mailbox.max_messages", 100)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", defaultDataPath())
	v.SetDefault("ai.base_url", "")
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.model", "gpt-4o-mini")
	v.SetDefault("ai.timeout_sec", 60)
	v.SetDefault("polling.interval_minutes", 5)
	v.SetDefault("polling.auto_start", false)
	v.SetDefault("polling.cycle_timeout_sec", 600)
	v.SetDefault("resolver.thread_matching", false)
	v.SetDefault("server.addr", "127.0.0.1:8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// LoadConfig reads configuration from the given YAML file path using Viper,
// layering PROCURE_* environment variables on top. A missing file yields
// the defaults.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.Mailbox.Username = strings.TrimSpace(cfg.Mailbox.Username)
	if cfg.Polling.IntervalMinutes <= 0 {
		cfg.Polling.IntervalMinutes = 5
	}
	if cfg.Database.Driver != "sqlite" && cfg.Database.Driver != "postgres" {
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed. Secrets are not written.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	mailbox := cfg.Mailbox
	mailbox.Password = ""
	ai := cfg.AI
	ai.APIKey = ""

	v.Set("mailbox", mailbox)
	v.Set("database", cfg.Database)
	v.Set("ai", ai)
	v.Set("polling", cfg.Polling)
	v.Set("resolver", cfg.Resolver)
	v.Set("server", cfg.Server)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}

package model

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// ConfigName is the config file looked up in the working directory,
	// in any format viper understands (yaml, toml, json).
	ConfigName = "stn_config"

	// EnvPrefix prefixes environment overrides, which use "__" between
	// key segments: STN_CONFIG__MAIL__SMTP_HOST.
	EnvPrefix = "STN_CONFIG_"
)

// MailConfig holds the SMTP relay settings and recipients.
type MailConfig struct {
	SMTPHost     string `mapstructure:"smtp_host" yaml:"smtp_host"`
	SMTPPort     uint16 `mapstructure:"smtp_port" yaml:"smtp_port"`
	SMTPUsername string `mapstructure:"smtp_username" yaml:"smtp_username"`
	SMTPPassword string `mapstructure:"smtp_password" yaml:"smtp_password"`

	// SMTPTimeout is the connect timeout in seconds; 0 leaves it unset.
	SMTPTimeout uint64 `mapstructure:"smtp_timeout" yaml:"smtp_timeout"`

	SMTPSendTo []string `mapstructure:"smtp_send_to" yaml:"smtp_send_to"`
}

// BrowserlessConfig describes the screenshot service call.
type BrowserlessConfig struct {
	Endpoint     string `mapstructure:"endpoint" yaml:"endpoint"`
	Token        string `mapstructure:"token" yaml:"token"`
	TargetURL    string `mapstructure:"target_url" yaml:"target_url"`
	WaitSelector string `mapstructure:"wait_selector" yaml:"wait_selector"`
}

// DataDumpConfig locates the zipped market data dumps. Empty ListURL
// disables dump ingestion.
type DataDumpConfig struct {
	ListURL string `mapstructure:"list_url" yaml:"list_url"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

// FetchConfig holds the payload ceilings, in bytes.
type FetchConfig struct {
	MaxResponseBytes     int64 `mapstructure:"max_response_bytes" yaml:"max_response_bytes"`
	MaxArchiveBytes      int64 `mapstructure:"max_archive_bytes" yaml:"max_archive_bytes"`
	MaxUncompressedBytes int64 `mapstructure:"max_uncompressed_bytes" yaml:"max_uncompressed_bytes"`
	TimeoutSec           int   `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// SchedulerConfig holds the cron trigger. An empty Cron disables
// periodic notifications.
type SchedulerConfig struct {
	Cron     string `mapstructure:"cron" yaml:"cron"`
	Timezone string `mapstructure:"timezone" yaml:"timezone"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	MaxLevel   string `mapstructure:"max_level" yaml:"max_level"`
	File       string `mapstructure:"file" yaml:"file"`
	AlsoStdout bool   `mapstructure:"also_stdout" yaml:"also_stdout"`
}

// StoreConfig holds the delivery history database location.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// MetricsConfig holds the Prometheus endpoint. Empty Listen disables it.
type MetricsConfig struct {
	Listen string `mapstructure:"listen" yaml:"listen"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Mail        MailConfig        `mapstructure:"mail" yaml:"mail"`
	Browserless BrowserlessConfig `mapstructure:"browserless" yaml:"browserless"`
	DataDump    DataDumpConfig    `mapstructure:"datadump" yaml:"datadump"`
	Fetch       FetchConfig       `mapstructure:"fetch" yaml:"fetch"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler" yaml:"scheduler"`
	Log         LogConfig         `mapstructure:"log" yaml:"log"`
	Store       StoreConfig       `mapstructure:"store" yaml:"store"`
	Metrics     MetricsConfig     `mapstructure:"metrics" yaml:"metrics"`
}

// SMTPTimeoutDuration converts the configured timeout to a Duration.
func (c MailConfig) SMTPTimeoutDuration() time.Duration {
	return time.Duration(c.SMTPTimeout) * time.Second
}

// defaults lists every key so that environment overrides apply even when
// the file does not mention the key.
var defaults = map[string]any{
	"mail.smtp_host":     "",
	"mail.smtp_port":     0,
	"mail.smtp_username": "",
	"mail.smtp_password": "",
	"mail.smtp_timeout":  0,
	"mail.smtp_send_to":  []string{},

	"browserless.endpoint":      "https://production-sfo.browserless.io/chrome/screenshot",
	"browserless.token":         "",
	"browserless.target_url":    "https://www.iflow.work/?page_num=1&platforms=uuyp-buff-igxe-eco-c5&games=csgo-dota2&sort_by=safe_buy&min_price=1&max_price=5000&min_volume=10000&max_latency=600&price_mode=buy",
	"browserless.wait_selector": ".ant-spin",

	"datadump.list_url": "",
	"datadump.base_url": "",

	"fetch.max_response_bytes":     1 << 20,
	"fetch.max_archive_bytes":      10 << 20,
	"fetch.max_uncompressed_bytes": 30 << 20,
	"fetch.timeout_sec":            30,

	"scheduler.cron":     "",
	"scheduler.timezone": "Local",

	"log.max_level":   "info",
	"log.file":        "logs/stn.log",
	"log.also_stdout": true,

	"store.path": "stn.db",

	"metrics.listen": "",
}

// LoadConfig reads configuration with viper. When path is empty the
// optional stn_config file in the working directory is used; a missing
// file leaves the defaults in place. Environment variables override both.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(ConfigName)
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		var pathErr *os.PathError
		switch {
		case errors.As(err, &notFound):
		case errors.As(err, &pathErr) && path == "":
		default:
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.Mail.SMTPSendTo = splitRecipients(cfg.Mail.SMTPSendTo)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks settings that have no sensible fallback. SMTP
// credentials are checked later by the transport layer.
func (c *AppConfig) Validate() error {
	if c.Fetch.MaxResponseBytes <= 0 {
		return fmt.Errorf("fetch.max_response_bytes must be positive, got %d", c.Fetch.MaxResponseBytes)
	}
	if c.Fetch.MaxArchiveBytes <= 0 {
		return fmt.Errorf("fetch.max_archive_bytes must be positive, got %d", c.Fetch.MaxArchiveBytes)
	}
	if c.Fetch.MaxUncompressedBytes <= 0 {
		return fmt.Errorf("fetch.max_uncompressed_bytes must be positive, got %d", c.Fetch.MaxUncompressedBytes)
	}
	if c.DataDump.ListURL != "" && c.DataDump.BaseURL == "" {
		return errors.New("datadump.base_url is required when datadump.list_url is set")
	}
	return nil
}

// splitRecipients flattens comma-separated entries and drops blanks.
func splitRecipients(in []string) []string {
	out := make([]string, 0, len(in))
	for _, entry := range in {
		for _, addr := range strings.Split(entry, ",") {
			if addr = strings.TrimSpace(addr); addr != "" {
				out = append(out, addr)
			}
		}
	}
	return out
}

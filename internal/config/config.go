package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"ves-rate-watch/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Logging    logging.Config   `mapstructure:"logging"`
	Database   DatabaseConfig   `mapstructure:"database"`
	LocalStore LocalStoreConfig `mapstructure:"localstore"`
	Business   BusinessConfig   `mapstructure:"business"`
	Official   OfficialConfig   `mapstructure:"official"`
	Peers      []PeerConfig     `mapstructure:"peers"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Freshness  FreshnessConfig  `mapstructure:"freshness"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Export     ExportConfig     `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// LocalStoreConfig locates the embedded key-value store.
type LocalStoreConfig struct {
	Path     string `mapstructure:"path"`
	InMemory bool   `mapstructure:"in_memory"`
}

// BusinessConfig pins "what is today" to the rate authority's timezone.
type BusinessConfig struct {
	Timezone string `mapstructure:"timezone"`
}

// OfficialConfig covers the central bank page.
type OfficialConfig struct {
	URL            string        `mapstructure:"url"`
	USDSelector    string        `mapstructure:"usd_selector"`
	EURSelector    string        `mapstructure:"eur_selector"`
	DateSelector   string        `mapstructure:"date_selector"`
	DateAttr       string        `mapstructure:"date_attr"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// PeerConfig describes one peer-to-peer market endpoint.
type PeerConfig struct {
	Name           string        `mapstructure:"name"`
	URL            string        `mapstructure:"url"`
	Method         string        `mapstructure:"method"`
	BuyPayload     string        `mapstructure:"buy_payload"`
	SellPayload    string        `mapstructure:"sell_payload"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// CacheConfig sets the per-dataset TTLs.
type CacheConfig struct {
	HistoryTTL   time.Duration `mapstructure:"history_ttl"`
	PeerDailyTTL time.Duration `mapstructure:"peer_daily_ttl"`
	HourlyTTL    time.Duration `mapstructure:"hourly_ttl"`
}

// FreshnessConfig governs refresh suppression and connectivity probing.
type FreshnessConfig struct {
	Debounce        time.Duration `mapstructure:"debounce"`
	MinAutoInterval time.Duration `mapstructure:"min_auto_interval"`
	ProbeAddr       string        `mapstructure:"probe_addr"`
	ProbeTimeout    time.Duration `mapstructure:"probe_timeout"`
}

// NotifyConfig defines notification windows and routing.
type NotifyConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Windows  []string       `mapstructure:"windows"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 通知参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// SchedulerConfig governs the refresh loop and the background check.
type SchedulerConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	StaleCheckCron  string        `mapstructure:"stale_check_cron"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("VESWATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "veswatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")

	v.SetDefault("localstore.path", "data/localstore")
	v.SetDefault("localstore.in_memory", false)

	v.SetDefault("business.timezone", "America/Caracas")

	v.SetDefault("official.url", "https://www.bcv.org.ve/")
	v.SetDefault("official.usd_selector", "#dolar strong")
	v.SetDefault("official.eur_selector", "#euro strong")
	v.SetDefault("official.date_selector", "span.date-display-single")
	v.SetDefault("official.date_attr", "content")
	v.SetDefault("official.request_timeout", "8s")
	v.SetDefault("official.user_agent", "veswatcher/1.0")

	v.SetDefault("cache.history_ttl", "60s")
	v.SetDefault("cache.peer_daily_ttl", "30m")
	v.SetDefault("cache.hourly_ttl", "2m")

	v.SetDefault("freshness.debounce", "15s")
	v.SetDefault("freshness.min_auto_interval", "120s")
	v.SetDefault("freshness.probe_addr", "1.1.1.1:53")
	v.SetDefault("freshness.probe_timeout", "3s")

	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.windows", []string{"13:00", "20:00"})
	v.SetDefault("notify.telegram.enabled", false)
	v.SetDefault("notify.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("scheduler.refresh_interval", "5m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.startup_delay", "0s")
	// Hourly-class cadence; the platform minimum is an external constraint.
	v.SetDefault("scheduler.stale_check_cron", "0 15 * * * *")

	v.SetDefault("export.max_data_points", 100000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Scheduler.RefreshInterval <= 0 {
		return fmt.Errorf("scheduler.refresh_interval must be greater than zero")
	}
	if c.Freshness.Debounce <= 0 {
		return fmt.Errorf("freshness.debounce must be greater than zero")
	}
	if c.Freshness.MinAutoInterval < c.Freshness.Debounce {
		return fmt.Errorf("freshness.min_auto_interval must not undercut the debounce")
	}
	if _, err := time.LoadLocation(c.Business.Timezone); err != nil {
		return fmt.Errorf("business.timezone 配置无效: %w", err)
	}
	for i, peer := range c.Peers {
		if peer.Name == "" {
			return fmt.Errorf("peers[%d].name 必须配置", i)
		}
	}
	if c.Notify.Telegram.Enabled {
		if c.Notify.Telegram.BotToken == "" {
			return fmt.Errorf("notify.telegram.bot_token 必须配置")
		}
		if c.Notify.Telegram.ChatID == "" {
			return fmt.Errorf("notify.telegram.chat_id 必须配置")
		}
	}
	return nil
}

// Location resolves the configured business timezone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Business.Timezone)
	if err != nil {
		return time.FixedZone("UTC-4", -4*60*60)
	}
	return loc
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}

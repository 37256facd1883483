package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cryptodash/internal/market"
	"cryptodash/pkg/coingecko"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	CoinGecko CoinGeckoConfig `mapstructure:"coingecko"`
	Market    MarketConfig    `mapstructure:"market"`
	Refresh   RefreshConfig   `mapstructure:"refresh"`
	News      NewsConfig      `mapstructure:"news"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
}

type CoinGeckoConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	APIKey          string        `mapstructure:"api_key"`
	APIKeyParameter string        `mapstructure:"api_key_parameter"` // SSM parameter name, used in prod
	Pro             bool          `mapstructure:"pro"`               // send the pro key header instead of the demo one
	Timeout         time.Duration `mapstructure:"timeout"`
}

type MarketConfig struct {
	VsCurrency      string   `mapstructure:"vs_currency"`      // currency the upstream quotes in
	DisplayCurrency string   `mapstructure:"display_currency"` // currency totals are shown in
	ConversionRate  string   `mapstructure:"conversion_rate"`  // vs -> display, decimal string
	ListingLimit    int      `mapstructure:"listing_limit"`
	Order           string   `mapstructure:"order"`
	Stablecoins     []string `mapstructure:"stablecoins"`
}

type RefreshConfig struct {
	ListingInterval time.Duration `mapstructure:"listing_interval"`
	GlobalInterval  time.Duration `mapstructure:"global_interval"`
	NewsInterval    time.Duration `mapstructure:"news_interval"`
}

type NewsSource struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}

type NewsConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Sources []NewsSource  `mapstructure:"sources"`
	Limit   int           `mapstructure:"limit"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type ServerConfig struct {
	Addr        string        `mapstructure:"addr"`
	CORSOrigins []string      `mapstructure:"cors_origins"`
	SessionTTL  time.Duration `mapstructure:"session_ttl"`
}

// LogConfig defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"
}

const envPrefix = "CRYPTODASH"

// Load reads configuration from path, or from config.yaml in the usual
// locations when path is empty, and applies CRYPTODASH_* environment
// overrides (e.g. CRYPTODASH_MARKET_LISTING_LIMIT). A .env file in the
// working directory is loaded first. A missing config.yaml is not an error
// unless path was given explicitly.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config") // config.yaml
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		if ex, err := os.Executable(); err == nil && !strings.Contains(ex, "go-build") {
			v.AddConfigPath(filepath.Join(filepath.Dir(ex), "../config"))
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
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

func setDefaults(v *viper.Viper) {
	v.SetDefault("coingecko.base_url", coingecko.DefaultBaseURL)
	v.SetDefault("coingecko.api_key", "")
	v.SetDefault("coingecko.api_key_parameter", "")
	v.SetDefault("coingecko.pro", false)
	v.SetDefault("coingecko.timeout", 10*time.Second)

	v.SetDefault("market.vs_currency", "usd")
	v.SetDefault("market.display_currency", "eur")
	v.SetDefault("market.conversion_rate", "0.93")
	v.SetDefault("market.listing_limit", 10)
	v.SetDefault("market.order", string(coingecko.OrderMarketCapDesc))
	v.SetDefault("market.stablecoins", []string{"usdt", "usdc"})

	v.SetDefault("refresh.listing_interval", time.Minute)
	v.SetDefault("refresh.global_interval", 5*time.Minute)
	v.SetDefault("refresh.news_interval", 10*time.Minute)

	v.SetDefault("news.enabled", true)
	v.SetDefault("news.sources", []map[string]string{})
	v.SetDefault("news.limit", 4)
	v.SetDefault("news.timeout", 10*time.Second)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.session_ttl", 30*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output_file", "")
	v.SetDefault("log.environment", "dev")
}

// Validate reports the first invalid setting as *market.ConfigError.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.CoinGecko.BaseURL) == "" {
		return market.NewConfigError("coingecko.base_url", "must not be empty")
	}
	if c.CoinGecko.Timeout <= 0 {
		return market.NewConfigError("coingecko.timeout", "must be positive, got %s", c.CoinGecko.Timeout)
	}

	if strings.TrimSpace(c.Market.VsCurrency) == "" {
		return market.NewConfigError("market.vs_currency", "must not be empty")
	}
	if strings.TrimSpace(c.Market.DisplayCurrency) == "" {
		return market.NewConfigError("market.display_currency", "must not be empty")
	}
	if _, err := c.Market.Rate(); err != nil {
		return err
	}
	if c.Market.ListingLimit <= 0 || c.Market.ListingLimit > coingecko.MaxPerPage {
		return market.NewConfigError("market.listing_limit", "must be within 1..%d, got %d", coingecko.MaxPerPage, c.Market.ListingLimit)
	}
	if _, err := coingecko.ParseMarketOrder(c.Market.Order); err != nil {
		return market.NewConfigError("market.order", "%v", err)
	}

	intervals := []struct {
		field string
		d     time.Duration
	}{
		{"refresh.listing_interval", c.Refresh.ListingInterval},
		{"refresh.global_interval", c.Refresh.GlobalInterval},
		{"refresh.news_interval", c.Refresh.NewsInterval},
	}
	for _, iv := range intervals {
		if iv.d <= 0 {
			return market.NewConfigError(iv.field, "must be positive, got %s", iv.d)
		}
	}

	if c.News.Enabled {
		if c.News.Limit <= 0 {
			return market.NewConfigError("news.limit", "must be positive, got %d", c.News.Limit)
		}
		if c.News.Timeout <= 0 {
			return market.NewConfigError("news.timeout", "must be positive, got %s", c.News.Timeout)
		}
		for i, s := range c.News.Sources {
			if strings.TrimSpace(s.URL) == "" {
				return market.NewConfigError(fmt.Sprintf("news.sources[%d].url", i), "must not be empty")
			}
		}
	}

	if strings.TrimSpace(c.Server.Addr) == "" {
		return market.NewConfigError("server.addr", "must not be empty")
	}
	if c.Server.SessionTTL <= 0 {
		return market.NewConfigError("server.session_ttl", "must be positive, got %s", c.Server.SessionTTL)
	}
	return nil
}

// Rate parses the configured conversion rate.
func (m MarketConfig) Rate() (decimal.Decimal, error) {
	r, err := decimal.NewFromString(strings.TrimSpace(m.ConversionRate))
	if err != nil {
		return decimal.Zero, market.NewConfigError("market.conversion_rate", "not a number: %q", m.ConversionRate)
	}
	if !r.IsPositive() {
		return decimal.Zero, market.NewConfigError("market.conversion_rate", "must be positive, got %s", r)
	}
	return r, nil
}

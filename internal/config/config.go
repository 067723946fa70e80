package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the gateway configuration.
type Config struct {
	BindAddr         string
	PortCandidates   string
	PortAutoFallback bool
	UpstreamURL      string

	LogLevel string
	LogFile  string

	// Price source
	Strategy       string
	AjaxURL        string
	AjaxAction     string
	Nonce          string
	CDNRatesURL    string
	CDNPricesURL   string
	FetchTimeoutMS int

	// Price cache
	CacheTTLSeconds  int
	CacheBackend     string
	CacheDir         string
	CacheQuotaBytes  int
	KeyScheme        string
	KeyPrefix        string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	StorefrontConfig string

	JournalDir     string
	JournalEnabled bool
	AlertURL       string
}

const (
	minFetchTimeoutMS = 3000
	maxFetchTimeoutMS = 30000
)

// Load reads configuration from environment variables and an optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		BindAddr:         getEnvOrDefault("PRICEGATE_BIND_ADDR", "127.0.0.1:8190"),
		PortCandidates:   getEnvOrDefault("PRICEGATE_PORT_CANDIDATES", "8191,8192,8193"),
		PortAutoFallback: getEnvBoolOrDefault("PRICEGATE_PORT_AUTO_FALLBACK", true),
		UpstreamURL:      getEnvOrDefault("PRICEGATE_UPSTREAM_URL", ""),
		LogLevel:         strings.ToLower(getEnvOrDefault("PRICEGATE_LOG_LEVEL", "info")),
		LogFile:          getEnvOrDefault("PRICEGATE_LOG_FILE", "logs/pricegate.log"),
		Strategy:         strings.ToLower(getEnvOrDefault("PRICEGATE_STRATEGY", "direct")),
		AjaxURL:          getEnvOrDefault("PRICEGATE_AJAX_URL", ""),
		AjaxAction:       getEnvOrDefault("PRICEGATE_AJAX_ACTION", "prefetch_all_prices"),
		Nonce:            getEnvOrDefault("PRICEGATE_NONCE", ""),
		CDNRatesURL:      getEnvOrDefault("PRICEGATE_CDN_RATES_URL", ""),
		CDNPricesURL:     getEnvOrDefault("PRICEGATE_CDN_PRICES_URL", ""),
		FetchTimeoutMS:   getEnvIntOrDefault("PRICEGATE_FETCH_TIMEOUT_MS", 5000),
		CacheTTLSeconds:  getEnvIntOrDefault("PRICEGATE_CACHE_TTL_SECONDS", 86400),
		CacheBackend:     strings.ToLower(getEnvOrDefault("PRICEGATE_CACHE_BACKEND", "memory")),
		CacheDir:         getEnvOrDefault("PRICEGATE_CACHE_DIR", "./cache"),
		CacheQuotaBytes:  getEnvIntOrDefault("PRICEGATE_CACHE_QUOTA_BYTES", 5*1024*1024),
		KeyScheme:        strings.ToLower(getEnvOrDefault("PRICEGATE_KEY_SCHEME", "product")),
		KeyPrefix:        getEnvOrDefault("PRICEGATE_KEY_PREFIX", "betterestech"),
		RedisAddr:        getEnvOrDefault("PRICEGATE_REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:    getEnvOrDefault("PRICEGATE_REDIS_PASSWORD", ""),
		RedisDB:          getEnvIntOrDefault("PRICEGATE_REDIS_DB", 0),
		StorefrontConfig: getEnvOrDefault("PRICEGATE_STOREFRONT_CONFIG", ""),
		JournalDir:       getEnvOrDefault("PRICEGATE_JOURNAL_DIR", "./journal"),
		JournalEnabled:   getEnvBoolOrDefault("PRICEGATE_JOURNAL_ENABLED", true),
		AlertURL:         getEnvOrDefault("PRICEGATE_ALERT_URL", ""),
	}

	if cfg.FetchTimeoutMS < minFetchTimeoutMS {
		cfg.FetchTimeoutMS = minFetchTimeoutMS
	}
	if cfg.FetchTimeoutMS > maxFetchTimeoutMS {
		cfg.FetchTimeoutMS = maxFetchTimeoutMS
	}
	if cfg.CacheTTLSeconds <= 0 {
		cfg.CacheTTLSeconds = 86400
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Strategy {
	case "direct":
		if c.AjaxURL == "" && c.UpstreamURL == "" {
			return fmt.Errorf("config: PRICEGATE_AJAX_URL or PRICEGATE_UPSTREAM_URL is required for the direct strategy")
		}
	case "cdn":
		if c.CDNRatesURL == "" || c.CDNPricesURL == "" {
			return fmt.Errorf("config: PRICEGATE_CDN_RATES_URL and PRICEGATE_CDN_PRICES_URL are required for the cdn strategy")
		}
	default:
		return fmt.Errorf("config: unknown PRICEGATE_STRATEGY %q", c.Strategy)
	}
	switch c.CacheBackend {
	case "memory", "file", "redis":
	default:
		return fmt.Errorf("config: unknown PRICEGATE_CACHE_BACKEND %q", c.CacheBackend)
	}
	switch c.KeyScheme {
	case "product", "cdn":
	default:
		return fmt.Errorf("config: unknown PRICEGATE_KEY_SCHEME %q", c.KeyScheme)
	}
	if c.UpstreamURL != "" {
		if u, err := url.Parse(c.UpstreamURL); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("config: invalid PRICEGATE_UPSTREAM_URL %q", c.UpstreamURL)
		}
	}
	return nil
}

// FetchTimeout returns the remote fetch timeout.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutMS) * time.Millisecond
}

// CacheTTL returns the cache max age.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// DirectAjaxURL is the configured AJAX URL, or admin-ajax.php on the upstream.
func (c *Config) DirectAjaxURL() string {
	if c.AjaxURL != "" {
		return c.AjaxURL
	}
	if c.UpstreamURL == "" {
		return ""
	}
	return strings.TrimRight(c.UpstreamURL, "/") + "/wp-admin/admin-ajax.php"
}

// BindHost returns the host part of BindAddr, used for bare-port candidates.
func (c *Config) BindHost() string {
	if i := strings.LastIndex(c.BindAddr, ":"); i >= 0 {
		return c.BindAddr[:i]
	}
	return ""
}

// CheckerConfig holds configuration for the page checker.
type CheckerConfig struct {
	CDPURL    string
	TimeoutMS int
	SettleMS  int
	LogLevel  string
}

// LoadChecker reads page checker configuration.
func LoadChecker() (*CheckerConfig, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}
	cfg := &CheckerConfig{
		CDPURL:    getEnvOrDefault("PRICECHECK_CDP_URL", ""),
		TimeoutMS: getEnvIntOrDefault("PRICECHECK_TIMEOUT_MS", 30000),
		SettleMS:  getEnvIntOrDefault("PRICECHECK_SETTLE_MS", 1500),
		LogLevel:  strings.ToLower(getEnvOrDefault("PRICEGATE_LOG_LEVEL", "info")),
	}
	if cfg.TimeoutMS < 1000 {
		cfg.TimeoutMS = 1000
	}
	if cfg.SettleMS < 0 {
		cfg.SettleMS = 0
	}
	return cfg, nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

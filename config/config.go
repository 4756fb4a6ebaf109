// Package config loads the trader's settings once at startup: defaults, then
// an optional YAML file, then environment overrides, then validation. The
// resulting *Config is passed explicitly to every component.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"papertrader/internal/execution"
	"papertrader/internal/marketdata"
	"papertrader/internal/model"
	"papertrader/internal/risk"
)

// Config holds all application configuration.
type Config struct {
	// Market
	Exchange     string  `yaml:"exchange"`
	Symbol       string  `yaml:"symbol"`
	Timeframe    string  `yaml:"timeframe"`
	PollSeconds  int     `yaml:"poll_seconds"`
	GraceSeconds int     `yaml:"grace_seconds"`
	RateLimitRPS float64 `yaml:"rate_limit_rps"`
	SimSeed      int64   `yaml:"sim_seed"`

	// Strategy
	SMAFast int `yaml:"sma_fast"`
	SMASlow int `yaml:"sma_slow"`

	// Execution
	FeesBps          float64 `yaml:"fees_bps"`
	SlippagePct      float64 `yaml:"slippage_pct"`
	SizeFraction     float64 `yaml:"size_fraction"`
	MinCashBufferPct float64 `yaml:"min_cash_buffer_pct"` // fraction of cash kept back on buys
	StartingCash     float64 `yaml:"starting_cash"`

	// Risk
	RiskDailyMaxLossPct float64 `yaml:"risk_daily_max_loss_pct"`
	RiskTradingWindow   string  `yaml:"risk_trading_window"`
	Timezone            string  `yaml:"timezone"` // IANA name; empty uses the host's local zone

	// Infrastructure
	DBPath           string `yaml:"db_path"`
	LogLevel         string `yaml:"log_level"`
	LogPath          string `yaml:"log_path"`
	LogMaxMB         int    `yaml:"log_max_mb"`
	LogBackups       int    `yaml:"log_backups"`
	MetricsAddr      string `yaml:"metrics_addr"`
	RedisAddr        string `yaml:"redis_addr"`
	RedisPassword    string `yaml:"redis_password"`
	NotifyWebhookURL string `yaml:"notify_webhook_url"`
	TelegramBotToken string `yaml:"telegram_bot_token"`
	TelegramChatID   string `yaml:"telegram_chat_id"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Exchange:     "kucoin",
		Symbol:       "BTC/USDT",
		Timeframe:    "1m",
		PollSeconds:  15,
		GraceSeconds: 2,
		RateLimitRPS: 5,

		SMAFast: 9,
		SMASlow: 21,

		FeesBps:      10,
		SlippagePct:  0.0005,
		SizeFraction: 1.0,
		StartingCash: 1000,

		RiskDailyMaxLossPct: 0.05,
		RiskTradingWindow:   "00:00-23:59",

		DBPath:      "data/papertrader.db",
		LogLevel:    "info",
		LogMaxMB:    5,
		LogBackups:  3,
		MetricsAddr: ":9090",
	}
}

// Load builds the configuration from defaults, the YAML file at path (a
// missing file is not an error), and environment overrides, then validates.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", path, err)
			}
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromBytes parses YAML over the defaults without reading the environment.
func LoadFromBytes(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Exchange = getEnv("EXCHANGE", c.Exchange)
	c.Symbol = getEnv("SYMBOL", c.Symbol)
	c.Timeframe = getEnv("TIMEFRAME", c.Timeframe)
	c.RiskTradingWindow = getEnv("RISK_TRADING_WINDOW", c.RiskTradingWindow)
	c.Timezone = getEnv("TIMEZONE", c.Timezone)
	c.DBPath = getEnv("DB_PATH", c.DBPath)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogPath = getEnv("LOG_PATH", c.LogPath)
	c.MetricsAddr = getEnv("METRICS_ADDR", c.MetricsAddr)
	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = getEnv("REDIS_PASSWORD", c.RedisPassword)
	c.NotifyWebhookURL = getEnv("NOTIFY_WEBHOOK_URL", c.NotifyWebhookURL)
	c.TelegramBotToken = getEnv("TELEGRAM_BOT_TOKEN", c.TelegramBotToken)
	c.TelegramChatID = getEnv("TELEGRAM_CHAT_ID", c.TelegramChatID)

	var errs []error
	envInt("POLL_SECONDS", &c.PollSeconds, &errs)
	envInt("GRACE_SECONDS", &c.GraceSeconds, &errs)
	envInt("SMA_FAST", &c.SMAFast, &errs)
	envInt("SMA_SLOW", &c.SMASlow, &errs)
	envInt("LOG_MAX_MB", &c.LogMaxMB, &errs)
	envInt("LOG_BACKUPS", &c.LogBackups, &errs)
	envInt64("SIM_SEED", &c.SimSeed, &errs)
	envFloat("RATE_LIMIT_RPS", &c.RateLimitRPS, &errs)
	envFloat("FEES_BPS", &c.FeesBps, &errs)
	envFloat("SLIPPAGE_PCT", &c.SlippagePct, &errs)
	envFloat("SIZE_FRACTION", &c.SizeFraction, &errs)
	envFloat("MIN_CASH_BUFFER_PCT", &c.MinCashBufferPct, &errs)
	envFloat("STARTING_CASH", &c.StartingCash, &errs)
	envFloat("RISK_DAILY_MAX_LOSS_PCT", &c.RiskDailyMaxLossPct, &errs)
	return errors.Join(errs...)
}

// Validate checks every setting the loop depends on. Failures are fatal at
// startup.
func (c *Config) Validate() error {
	if !contains(marketdata.Exchanges(), strings.ToLower(c.Exchange)) {
		return fmt.Errorf("exchange %q not supported (supported: %v)", c.Exchange, marketdata.Exchanges())
	}
	if !strings.Contains(c.Symbol, "/") {
		return fmt.Errorf("symbol %q must be BASE/QUOTE", c.Symbol)
	}
	if _, err := model.TimeframeDuration(c.Timeframe); err != nil {
		return err
	}
	if c.PollSeconds <= 0 {
		return fmt.Errorf("poll_seconds must be > 0, got %d", c.PollSeconds)
	}
	if c.GraceSeconds < 0 {
		return fmt.Errorf("grace_seconds must be >= 0, got %d", c.GraceSeconds)
	}
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("rate_limit_rps must be >= 0, got %v", c.RateLimitRPS)
	}
	if c.SMAFast <= 0 || c.SMASlow <= 0 || c.SMAFast >= c.SMASlow {
		return fmt.Errorf("need 0 < sma_fast < sma_slow, got fast=%d slow=%d", c.SMAFast, c.SMASlow)
	}
	if err := c.ExecutionParams().Validate(); err != nil {
		return err
	}
	if c.StartingCash <= 0 {
		return fmt.Errorf("starting_cash must be > 0, got %v", c.StartingCash)
	}
	if c.RiskDailyMaxLossPct <= 0 || c.RiskDailyMaxLossPct >= 1 {
		return fmt.Errorf("risk_daily_max_loss_pct must be in (0,1), got %v", c.RiskDailyMaxLossPct)
	}
	if _, err := c.Window(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.DBPath == "" {
		return errors.New("db_path must be set")
	}
	if c.LogMaxMB < 1 {
		return fmt.Errorf("log_max_mb must be >= 1, got %d", c.LogMaxMB)
	}
	if c.LogBackups < 0 {
		return fmt.Errorf("log_backups must be >= 0, got %d", c.LogBackups)
	}
	return nil
}

// Poll is the poll interval, used for error backoff.
func (c *Config) Poll() time.Duration {
	return time.Duration(c.PollSeconds) * time.Second
}

// Grace is the delay after a candle boundary before fetching.
func (c *Config) Grace() time.Duration {
	return time.Duration(c.GraceSeconds) * time.Second
}

// FetchLimit is the number of candles requested per iteration.
func (c *Config) FetchLimit() int {
	if n := c.SMASlow + 10; n > 100 {
		return n
	}
	return 100
}

// Window parses the trading window.
func (c *Config) Window() (risk.Window, error) {
	return risk.ParseWindow(c.RiskTradingWindow)
}

// Location resolves the timezone used for the trading window and day rollover.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// ExecutionParams returns the fill model settings.
func (c *Config) ExecutionParams() execution.Params {
	return execution.Params{
		FeeBps:            c.FeesBps,
		SlippagePct:       c.SlippagePct,
		SizeFraction:      c.SizeFraction,
		MinCashBufferFrac: c.MinCashBufferPct,
	}
}

// MemoryDBPath as db_path keeps the account in process memory only.
const MemoryDBPath = ":memory:"

// InMemoryStore reports whether db_path selects the in-process store.
func (c *Config) InMemoryStore() bool { return c.DBPath == MemoryDBPath }

// Redacted returns a copy safe to log.
func (c *Config) Redacted() Config {
	cp := *c
	for _, s := range []*string{&cp.RedisPassword, &cp.TelegramBotToken, &cp.NotifyWebhookURL} {
		if *s != "" {
			*s = "***"
		}
	}
	return cp
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func envInt(key string, dst *int, errs *[]error) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		*errs = append(*errs, fmt.Errorf("env %s=%q: %w", key, v, err))
		return
	}
	*dst = n
}

func envInt64(key string, dst *int64, errs *[]error) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("env %s=%q: %w", key, v, err))
		return
	}
	*dst = n
}

func envFloat(key string, dst *float64, errs *[]error) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("env %s=%q: %w", key, v, err))
		return
	}
	*dst = f
}

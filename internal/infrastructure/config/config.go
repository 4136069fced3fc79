package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	App struct {
		PrintEverySec int  `toml:"print_every_sec"`
		Color         bool `toml:"color"`
	} `toml:"app"`

	API struct {
		BaseURL         string   `toml:"base_url"`
		Token           string   `toml:"token"`
		TimeoutMs       int      `toml:"timeout_ms"`
		QuoteCurrencies []string `toml:"quote_currencies"`
	} `toml:"api"`

	Feed struct {
		WsURL             string `toml:"ws_url"`
		MaxRetries        int    `toml:"max_retries"`
		BatchLimit        int    `toml:"batch_limit"`
		Ticket            string `toml:"ticket"`
		Type              string `toml:"type"`
		BaseDelayMs       int    `toml:"base_delay_ms"`
		MaxDelayMs        int    `toml:"max_delay_ms"`
		Quote             string `toml:"quote"`
		ReopenOnExhausted bool   `toml:"reopen_on_exhausted"`
		ReopenDelaySec    int    `toml:"reopen_delay_sec"`
	} `toml:"feed"`

	Redis struct {
		Enabled    bool   `toml:"enabled"`
		Addr       string `toml:"addr"`
		Password   string `toml:"password"`
		DB         int    `toml:"db"`
		Prefix     string `toml:"prefix"`
		TTLSeconds int    `toml:"ttl_seconds"`
		Stream     string `toml:"stream"`
	} `toml:"redis"`

	Metrics struct {
		Enabled bool   `toml:"enabled"`
		Addr    string `toml:"addr"`
	} `toml:"metrics"`

	Log struct {
		Level string `toml:"level"`
	} `toml:"log"`
}

func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Parse decodes a TOML document, mainly for tests.
func Parse(doc string) (*Config, error) {
	var cfg Config
	if _, err := toml.Decode(doc, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.PrintEverySec <= 0 {
		cfg.App.PrintEverySec = 60
	}
	if strings.TrimSpace(cfg.API.BaseURL) == "" {
		cfg.API.BaseURL = "https://api.upbit.com/v1"
	}
	if cfg.API.TimeoutMs <= 0 {
		cfg.API.TimeoutMs = 5000
	}
	if len(cfg.API.QuoteCurrencies) == 0 {
		cfg.API.QuoteCurrencies = []string{"KRW", "BTC"}
	}
	if strings.TrimSpace(cfg.Feed.WsURL) == "" {
		cfg.Feed.WsURL = "wss://api.upbit.com/websocket/v1"
	}
	// negative disables reconnects; zero means unset
	if cfg.Feed.MaxRetries == 0 {
		cfg.Feed.MaxRetries = 5
	}
	if cfg.Feed.BatchLimit <= 0 {
		cfg.Feed.BatchLimit = 50
	}
	if cfg.Feed.Type == "" {
		cfg.Feed.Type = "ticker"
	}
	if cfg.Feed.BaseDelayMs <= 0 {
		cfg.Feed.BaseDelayMs = 1000
	}
	if cfg.Feed.MaxDelayMs <= 0 {
		cfg.Feed.MaxDelayMs = 5000
	}
	if cfg.Feed.Quote == "" {
		cfg.Feed.Quote = "KRW"
	}
	if cfg.Feed.ReopenDelaySec <= 0 {
		cfg.Feed.ReopenDelaySec = 30
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "127.0.0.1:6379"
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = "coinfeed"
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9102"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

func validate(cfg *Config) error {
	cfg.API.QuoteCurrencies = normalizeCodes(cfg.API.QuoteCurrencies)
	if len(cfg.API.QuoteCurrencies) == 0 {
		return errors.New("api.quote_currencies is empty")
	}
	cfg.Feed.Quote = strings.ToUpper(strings.TrimSpace(cfg.Feed.Quote))

	if err := checkURL("api.base_url", cfg.API.BaseURL, "http", "https"); err != nil {
		return err
	}
	if err := checkURL("feed.ws_url", cfg.Feed.WsURL, "ws", "wss"); err != nil {
		return err
	}
	if cfg.Feed.MaxDelayMs < cfg.Feed.BaseDelayMs {
		return fmt.Errorf("feed.max_delay_ms (%d) below feed.base_delay_ms (%d)", cfg.Feed.MaxDelayMs, cfg.Feed.BaseDelayMs)
	}
	if cfg.Redis.Enabled && strings.TrimSpace(cfg.Redis.Addr) == "" {
		return errors.New("redis.addr empty but enabled")
	}
	return nil
}

func checkURL(field, raw string, schemes ...string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s %q: want a %s URL", field, raw, strings.Join(schemes, "/"))
}

func normalizeCodes(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, s := range in {
		u := strings.ToUpper(strings.TrimSpace(s))
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.API.TimeoutMs) * time.Millisecond
}

func (c *Config) PrintEvery() time.Duration {
	return time.Duration(c.App.PrintEverySec) * time.Second
}

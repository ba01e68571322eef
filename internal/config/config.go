// Package config reads the global ~/.doska/config.toml and the per-instance
// config.toml that describes one bot.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/matheus3301/doska/internal/expiry"
	"github.com/matheus3301/doska/internal/listing"
)

// TokenEnv names the environment variable holding the bot token.
const TokenEnv = "DOSKA_BOT_TOKEN"

// ErrNoToken is returned when neither the environment nor .env carries a token.
var ErrNoToken = errors.New(TokenEnv + " is not set")

// Global represents ~/.doska/config.toml.
type Global struct {
	DefaultInstance string `toml:"default_instance"`
}

// Duration is a time.Duration written as "30s" in TOML.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Config describes one bot instance.
type Config struct {
	Bot       Bot       `toml:"bot"`
	Flow      Flow      `toml:"flow"`
	Expiry    Expiry    `toml:"expiry"`
	Transport Transport `toml:"transport"`
	Session   Session   `toml:"session"`
	Metrics   Metrics   `toml:"metrics"`
}

type Bot struct {
	Handle     string `toml:"handle"`
	FeedChatID int64  `toml:"feed_chat_id"`
	Channel    string `toml:"channel"`
	Variant    string `toml:"variant"`
}

type Flow struct {
	Preview  bool     `toml:"preview"`
	DateDays int      `toml:"date_days"`
	Presets  []Preset `toml:"presets"`
	Prices   []int    `toml:"prices"`
}

type Preset struct {
	Origin      string `toml:"origin"`
	Destination string `toml:"destination"`
}

type Expiry struct {
	Zone     string   `toml:"zone"`
	Fallback Duration `toml:"fallback"`
}

type Transport struct {
	CallTimeout   Duration `toml:"call_timeout"`
	HTTPTimeout   Duration `toml:"http_timeout"`
	PollTimeout   int      `toml:"poll_timeout"`
	RatePerSecond float64  `toml:"rate_per_second"`
	Burst         int      `toml:"burst"`
}

type Session struct {
	TTL Duration `toml:"ttl"`
}

type Metrics struct {
	Addr string `toml:"addr"`
}

// Default returns the configuration written for a new instance.
func Default() *Config {
	return &Config{
		Bot: Bot{Variant: string(listing.Classifieds)},
		Flow: Flow{
			DateDays: 7,
		},
		Expiry: Expiry{
			Zone:     expiry.DefaultZone,
			Fallback: Duration{expiry.DefaultFallback},
		},
		Transport: Transport{
			CallTimeout:   Duration{10 * time.Second},
			HTTPTimeout:   Duration{70 * time.Second},
			PollTimeout:   50,
			RatePerSecond: 25,
			Burst:         5,
		},
		Session: Session{TTL: Duration{24 * time.Hour}},
		Metrics: Metrics{Addr: "127.0.0.1:9464"},
	}
}

// DefaultFor returns Default for variant v. Rides instances get the Асино ⇄
// Томск route pair and the 480/450/420 price keyboard.
func DefaultFor(v listing.Variant) *Config {
	cfg := Default()
	cfg.Bot.Variant = string(v)
	if v == listing.Rides {
		cfg.Flow.Presets = []Preset{
			{Origin: "Асино", Destination: "Томск"},
			{Origin: "Томск", Destination: "Асино"},
		}
		cfg.Flow.Prices = []int{480, 450, 420}
	}
	return cfg
}

// Load reads an instance config, filling unset fields from Default.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path, creating parent dirs as needed.
func Save(path string, cfg any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// LoadGlobal reads the global config.
func LoadGlobal(path string) (*Global, error) {
	var g Global
	if _, err := toml.DecodeFile(path, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// Validate checks the fields the daemon cannot start without.
func (c *Config) Validate() error {
	if _, err := listing.ParseVariant(c.Bot.Variant); err != nil {
		return fmt.Errorf("bot.variant: %w", err)
	}
	if c.Bot.FeedChatID == 0 {
		return errors.New("bot.feed_chat_id is required")
	}
	if strings.TrimPrefix(c.Bot.Handle, "@") == "" {
		return errors.New("bot.handle is required")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("expiry.zone: %w", err)
	}
	for i, p := range c.Flow.Presets {
		if p.Origin == "" || p.Destination == "" {
			return fmt.Errorf("flow.presets[%d]: origin and destination are required", i)
		}
	}
	for i, p := range c.Flow.Prices {
		if p <= 0 || p > listing.MaxPrice {
			return fmt.Errorf("flow.prices[%d]: %d out of range", i, p)
		}
	}
	return nil
}

// Variant returns the parsed bot.variant.
func (c *Config) Variant() listing.Variant {
	v, err := listing.ParseVariant(c.Bot.Variant)
	if err != nil {
		return listing.Classifieds
	}
	return v
}

// Location resolves expiry.zone.
func (c *Config) Location() (*time.Location, error) {
	return expiry.LoadZone(c.Expiry.Zone)
}

// Routes converts the configured presets.
func (c *Config) Routes() []listing.Route {
	routes := make([]listing.Route, 0, len(c.Flow.Presets))
	for _, p := range c.Flow.Presets {
		routes = append(routes, listing.Route{Origin: p.Origin, Destination: p.Destination})
	}
	return routes
}

// Token returns the bot token from the environment. A .env file in dir, when
// present, is loaded first without overriding variables already set.
func Token(dir string) (string, error) {
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("load .env: %w", err)
	}
	tok := strings.TrimSpace(os.Getenv(TokenEnv))
	if tok == "" {
		return "", ErrNoToken
	}
	return tok, nil
}

// Package config loads runtime settings. Sources are merged in order, later
// ones winning: defaults, config file, environment, command line.
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"l2-order-book/internal/domain"
)

const defaultConfigFile = "config.yaml"

// AllowedDepthLimits are the depth tiers upstream venues publish.
var AllowedDepthLimits = []int{1, 10, 20}

// Duration decodes "250ms" or "2s" style strings from YAML and JSON.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

type Config struct {
	Exchange struct {
		DepthLimit int    `yaml:"depth_limit" json:"depth_limit"`
		Instrument string `yaml:"instrument" json:"instrument"`
		Provider   string `yaml:"provider" json:"provider"`
	} `yaml:"exchange" json:"exchange"`

	Feed struct {
		PollInterval  Duration `yaml:"poll_interval" json:"poll_interval"`
		LunoKeyID     string   `yaml:"luno_api_key_id" json:"luno_api_key_id"`
		LunoKeySecret string   `yaml:"luno_api_key_secret" json:"luno_api_key_secret"`
	} `yaml:"feed" json:"feed"`

	Log struct {
		Level string `yaml:"level" json:"level"`
		Dir   string `yaml:"dir" json:"dir"`
	} `yaml:"log" json:"log"`

	HTTP struct {
		Enabled        bool     `yaml:"enabled" json:"enabled"`
		Addr           string   `yaml:"addr" json:"addr"`
		StreamInterval Duration `yaml:"stream_interval" json:"stream_interval"`
	} `yaml:"http" json:"http"`

	Display struct {
		Enabled  bool     `yaml:"enabled" json:"enabled"`
		Interval Duration `yaml:"interval" json:"interval"`
		Levels   int      `yaml:"levels" json:"levels"`
	} `yaml:"display" json:"display"`

	Recorder struct {
		Enabled  bool     `yaml:"enabled" json:"enabled"`
		Driver   string   `yaml:"driver" json:"driver"`
		Path     string   `yaml:"path" json:"path"`
		Interval Duration `yaml:"interval" json:"interval"`
	} `yaml:"recorder" json:"recorder"`

	Alerter struct {
		WebhookURL string   `yaml:"webhook_url" json:"webhook_url"`
		Interval   Duration `yaml:"interval" json:"interval"`
	} `yaml:"alerter" json:"alerter"`

	Publisher struct {
		Brokers  []string `yaml:"brokers" json:"brokers"`
		Topic    string   `yaml:"topic" json:"topic"`
		Interval Duration `yaml:"interval" json:"interval"`
	} `yaml:"publisher" json:"publisher"`
}

func Default() *Config {
	cfg := &Config{}
	cfg.Exchange.DepthLimit = 10
	cfg.Feed.PollInterval = Duration(2 * time.Second)
	cfg.Log.Level = "info"
	cfg.Log.Dir = "logs"
	cfg.HTTP.Enabled = true
	cfg.HTTP.Addr = ":8080"
	cfg.HTTP.StreamInterval = Duration(250 * time.Millisecond)
	cfg.Display.Enabled = true
	cfg.Display.Interval = Duration(time.Second)
	cfg.Display.Levels = 10
	cfg.Recorder.Driver = "sqlite"
	cfg.Recorder.Path = "quotes.db"
	cfg.Recorder.Interval = Duration(time.Second)
	cfg.Alerter.Interval = Duration(time.Second)
	cfg.Publisher.Topic = "l2book.quotes"
	cfg.Publisher.Interval = Duration(250 * time.Millisecond)
	return cfg
}

// ProviderEnum parses the configured provider name.
func (c *Config) ProviderEnum() (domain.ProviderEnum, error) {
	return domain.ParseProvider(c.Exchange.Provider)
}

func (c *Config) AlerterEnabled() bool   { return c.Alerter.WebhookURL != "" }
func (c *Config) PublisherEnabled() bool { return len(c.Publisher.Brokers) > 0 }

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Exchange.Instrument) == "" {
		return errors.New("exchange instrument is required")
	}
	if !validDepth(c.Exchange.DepthLimit) {
		return fmt.Errorf("depth limit must be one of %v, got %d", AllowedDepthLimits, c.Exchange.DepthLimit)
	}
	if strings.TrimSpace(c.Exchange.Provider) == "" {
		return errors.New("provider is required")
	}
	if _, err := c.ProviderEnum(); err != nil {
		return err
	}

	intervals := map[string]Duration{
		"feed poll interval":     c.Feed.PollInterval,
		"http stream interval":   c.HTTP.StreamInterval,
		"display interval":       c.Display.Interval,
		"recorder interval":      c.Recorder.Interval,
		"alerter check interval": c.Alerter.Interval,
		"publisher interval":     c.Publisher.Interval,
	}
	for name, d := range intervals {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d.Std())
		}
	}

	if c.Display.Levels <= 0 {
		return fmt.Errorf("display levels must be positive, got %d", c.Display.Levels)
	}
	if c.Recorder.Enabled {
		switch c.Recorder.Driver {
		case "sqlite", "pebble":
		default:
			return fmt.Errorf("unknown recorder driver %q", c.Recorder.Driver)
		}
		if c.Recorder.Path == "" {
			return errors.New("recorder path is required")
		}
	}
	if c.PublisherEnabled() && c.Publisher.Topic == "" {
		return errors.New("publisher topic is required when brokers are set")
	}
	return nil
}

func validDepth(depth int) bool {
	for _, allowed := range AllowedDepthLimits {
		if depth == allowed {
			return true
		}
	}
	return false
}

type cliFlags struct {
	depthLimit int
	instrument string
	provider   string
	configFile string
	noDisplay  bool
}

// Load builds the configuration from defaults, the config file, the
// environment and args (without the program name). The result is validated.
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("l2book", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var cli cliFlags
	fs.IntVar(&cli.depthLimit, "d", 0, "order book depth limit (1, 10 or 20)")
	fs.IntVar(&cli.depthLimit, "depth_limit", 0, "order book depth limit (1, 10 or 20)")
	fs.StringVar(&cli.instrument, "i", "", "instrument, e.g. BTC-PERPETUAL")
	fs.StringVar(&cli.instrument, "instrument", "", "instrument, e.g. BTC-PERPETUAL")
	fs.StringVar(&cli.provider, "p", "", "provider: deribit, bitstamp, kucoin or luno")
	fs.StringVar(&cli.provider, "provider", "", "provider: deribit, bitstamp, kucoin or luno")
	fs.StringVar(&cli.configFile, "config", "", "path to a YAML or JSON config file")
	fs.BoolVar(&cli.noDisplay, "no-display", false, "disable the terminal display")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	cfg := Default()

	path, explicit := cli.configFile, cli.configFile != ""
	if !explicit {
		if env := os.Getenv("L2BOOK_CONFIG"); env != "" {
			path, explicit = env, true
		} else {
			path = defaultConfigFile
		}
	}
	if err := cfg.loadFile(path); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "d", "depth_limit":
			cfg.Exchange.DepthLimit = cli.depthLimit
		case "i", "instrument":
			cfg.Exchange.Instrument = cli.instrument
		case "p", "provider":
			cfg.Exchange.Provider = cli.provider
		case "no-display":
			cfg.Display.Enabled = !cli.noDisplay
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	configBytes, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(configBytes, c)
	case ".yaml", ".yml", "":
		err = yaml.Unmarshal(configBytes, c)
	default:
		return fmt.Errorf("unsupported config file type %q", filepath.Ext(path))
	}
	if err != nil {
		return fmt.Errorf("decode config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("EXCHANGE_DEPTH_LIMIT"); v != "" {
		depth, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("EXCHANGE_DEPTH_LIMIT: %w", err)
		}
		c.Exchange.DepthLimit = depth
	}
	setString(&c.Exchange.Instrument, "EXCHANGE_INSTRUMENT")
	setString(&c.Exchange.Provider, "PROVIDER_NAME")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.HTTP.Addr, "HTTP_ADDR")
	setString(&c.Alerter.WebhookURL, "DISCORD_WEBHOOK_URL")
	setString(&c.Feed.LunoKeyID, "LUNO_API_KEY_ID")
	setString(&c.Feed.LunoKeySecret, "LUNO_API_KEY_SECRET")

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		var brokers []string
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
		c.Publisher.Brokers = brokers
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

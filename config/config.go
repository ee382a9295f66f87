package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"moments/api"
	"moments/feed"
)

// Duration decodes TOML strings such as "15s" into a time.Duration
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// TomlClient configures the API client and the feed controller
type TomlClient struct {
	BaseURL        string   `toml:"base_url"`
	PageSize       int      `toml:"page_size"`
	ConnectTimeout Duration `toml:"connect_timeout"`
	ReadTimeout    Duration `toml:"read_timeout"`
	UserAgent      string   `toml:"user_agent"`
	AuthorName     string   `toml:"author_name"`
	PollInterval   Duration `toml:"poll_interval"`
}

// TomlServer configures the development server
type TomlServer struct {
	Host         string   `toml:"host"`
	Port         int      `toml:"port"`
	Database     string   `toml:"database"`
	DefaultLimit int      `toml:"default_limit"`
	MaxLimit     int      `toml:"max_limit"`
	Retention    Duration `toml:"retention"`
}

// Config represents the top-level configuration
type Config struct {
	Client TomlClient `toml:"client"`
	Server TomlServer `toml:"server"`
}

func Default() *Config {
	return &Config{
		Client: TomlClient{
			BaseURL:        api.DefaultBaseURL,
			PageSize:       feed.DefaultPageSize,
			ConnectTimeout: Duration{api.DefaultConnectTimeout},
			ReadTimeout:    Duration{api.DefaultReadTimeout},
			UserAgent:      "moments-cli",
			PollInterval:   Duration{30 * time.Second},
		},
		Server: TomlServer{
			Host:         "0.0.0.0",
			Port:         3000,
			Database:     "moments.db",
			DefaultLimit: 10,
			MaxLimit:     100,
			Retention:    Duration{90 * 24 * time.Hour},
		},
	}
}

// LoadConfig reads the TOML file at path over the defaults. An empty path
// returns the defaults.
func LoadConfig(path string) (*Config, error) {
	config := Default()
	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return config, nil
}

func (c *Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.Client.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("client.base_url %q is not an http(s) URL", c.Client.BaseURL))
	}
	if c.Client.PageSize <= 0 {
		errs = append(errs, errors.New("client.page_size must be positive"))
	}
	if c.Client.ConnectTimeout.Duration <= 0 {
		errs = append(errs, errors.New("client.connect_timeout must be positive"))
	}
	if c.Client.ReadTimeout.Duration <= 0 {
		errs = append(errs, errors.New("client.read_timeout must be positive"))
	}
	if c.Client.PollInterval.Duration <= 0 {
		errs = append(errs, errors.New("client.poll_interval must be positive"))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range", c.Server.Port))
	}
	if c.Server.Database == "" {
		errs = append(errs, errors.New("server.database is required"))
	}
	if c.Server.DefaultLimit <= 0 || c.Server.MaxLimit < c.Server.DefaultLimit {
		errs = append(errs, errors.New("server.default_limit must be positive and not above server.max_limit"))
	}
	if c.Server.Retention.Duration <= 0 {
		errs = append(errs, errors.New("server.retention must be positive"))
	}

	return errors.Join(errs...)
}

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// TomlAuthor is an author tracked from the moment the service starts
type TomlAuthor struct {
	Handle string `toml:"handle"`
}

// TomlWorker holds the pass interval of a worker loop
type TomlWorker struct {
	Interval time.Duration `toml:"interval"`
}

// TomlTwitter configures the feed source client
type TomlTwitter struct {
	BaseURL    string        `toml:"base_url"`
	MaxResults int           `toml:"max_results"`
	MaxRetries uint64        `toml:"max_retries"`
	Timeout    time.Duration `toml:"timeout"`
}

type TomlServer struct {
	Port int `toml:"port"`
}

// TomlConfig represents the top-level configuration
type TomlConfig struct {
	Ingest  TomlWorker   `toml:"ingest"`
	Publish TomlWorker   `toml:"publish"`
	Twitter TomlTwitter  `toml:"twitter"`
	Server  TomlServer   `toml:"server"`
	Authors []TomlAuthor `toml:"authors"`
}

// Default returns the configuration the reference deployment runs with
func Default() *TomlConfig {
	return &TomlConfig{
		Ingest:  TomlWorker{Interval: 120 * time.Second},
		Publish: TomlWorker{Interval: 120 * time.Second},
		Twitter: TomlTwitter{
			BaseURL:    "https://api.twitter.com",
			MaxResults: 5,
			MaxRetries: 2,
			Timeout:    30 * time.Second,
		},
		Server: TomlServer{Port: 3000},
	}
}

// LoadConfig reads the TOML file at path on top of the defaults.
// A missing file is not an error.
func LoadConfig(path string) (*TomlConfig, error) {
	config := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return config, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *TomlConfig) Validate() error {
	if c.Ingest.Interval <= 0 {
		return fmt.Errorf("ingest.interval must be positive, got %s", c.Ingest.Interval)
	}
	if c.Publish.Interval <= 0 {
		return fmt.Errorf("publish.interval must be positive, got %s", c.Publish.Interval)
	}
	if c.Twitter.MaxResults < 5 || c.Twitter.MaxResults > 100 {
		return fmt.Errorf("twitter.max_results must be between 5 and 100, got %d", c.Twitter.MaxResults)
	}
	for i, author := range c.Authors {
		if author.Handle == "" {
			return fmt.Errorf("authors[%d].handle is empty", i)
		}
	}
	return nil
}

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// NotificationPath is the REST path Airtable pings when a watched base
// changes. The public address plus this path is the notification URL
// registered on every webhook this deployment creates.
const NotificationPath = "/airtable-webhook-notification"

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	NATS      NATSConfig      `yaml:"nats"`
	Airtable  AirtableConfig  `yaml:"airtable"`
	Transform TransformConfig `yaml:"transform"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Listen string `yaml:"listen"`
	// PublicAddress is the externally reachable https address of this
	// deployment. Airtable refuses non-https notification URLs.
	PublicAddress string `yaml:"public_address"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"` // sqlite, mysql
	DSN    string `yaml:"dsn"`
}

type NATSConfig struct {
	URL           string        `yaml:"url"`
	SubjectPrefix string        `yaml:"subject_prefix"`
	MaxReconnect  int           `yaml:"max_reconnect"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
}

type AirtableConfig struct {
	BaseURL           string        `yaml:"base_url"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	MaxPages          int           `yaml:"max_pages"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
}

type TransformConfig struct {
	Script string `yaml:"script"` // optional JavaScript transform applied before publish
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults
	if config.Server.Listen == "" {
		config.Server.Listen = ":3434"
	}
	if config.Store.Driver == "" {
		config.Store.Driver = "sqlite"
	}
	if config.Store.DSN == "" && config.Store.Driver == "sqlite" {
		config.Store.DSN = "airtable-sync.db"
	}
	if config.NATS.SubjectPrefix == "" {
		config.NATS.SubjectPrefix = "airtable.bases"
	}
	if config.NATS.MaxReconnect == 0 {
		config.NATS.MaxReconnect = 10
	}
	if config.NATS.ReconnectWait == 0 {
		config.NATS.ReconnectWait = 2 * time.Second
	}
	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}

	if config.Server.PublicAddress == "" {
		return nil, fmt.Errorf("server.public_address must be set: it is registered as the webhook notification URL")
	}

	return &config, nil
}

// NotificationURL is the full callback address registered upstream.
func (c *Config) NotificationURL() string {
	return strings.TrimRight(c.Server.PublicAddress, "/") + NotificationPath
}

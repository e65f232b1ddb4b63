package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Translator    TranslatorConfig    `yaml:"translator"`
	ObjectStorage ObjectStorageConfig `yaml:"object_storage"`
	Artifact      ArtifactConfig      `yaml:"artifact"`
	Enrichment    EnrichmentConfig    `yaml:"enrichment"`
	RabbitMQ      RabbitMQConfig      `yaml:"rabbitmq"`
	Logging       LoggingConfig       `yaml:"logging"`
	App           AppConfig           `yaml:"app"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// TranslatorConfig holds translation API configuration
type TranslatorConfig struct {
	Endpoint       string        `yaml:"endpoint"`
	APIKey         string        `yaml:"api_key"`
	Model          string        `yaml:"model"`
	TargetLanguage string        `yaml:"target_language"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// ObjectStorageConfig holds subtitle publishing configuration
type ObjectStorageConfig struct {
	BaseURL        string        `yaml:"base_url"`
	AuthToken      string        `yaml:"auth_token"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// ArtifactConfig holds subtitle fetching configuration
type ArtifactConfig struct {
	BaseURL        string        `yaml:"base_url"`
	MaxSizeBytes   int64         `yaml:"max_size_bytes"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// EnrichmentConfig holds dispatcher and retry settings for enrichment tasks
type EnrichmentConfig struct {
	Concurrency    int           `yaml:"concurrency"`
	MaxAttempts    int           `yaml:"max_attempts"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
	DrainTimeout   time.Duration `yaml:"drain_timeout"`
}

// RabbitMQConfig holds the optional outcome-event feed configuration
type RabbitMQConfig struct {
	Enabled    bool             `yaml:"enabled"`
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// Load reads and parses the configuration file. Secrets can be supplied via
// environment variables, which take precedence over file values.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyEnvOverrides()

	return &config, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DATABASE_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("TRANSLATOR_API_KEY"); v != "" {
		c.Translator.APIKey = v
	}
	if v := os.Getenv("OBJECT_STORAGE_AUTH_TOKEN"); v != "" {
		c.ObjectStorage.AuthToken = v
	}
	if v := os.Getenv("RABBITMQ_PASSWORD"); v != "" {
		c.RabbitMQ.Password = v
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.Translator.Endpoint == "" {
		return fmt.Errorf("translator endpoint is required")
	}

	if c.Translator.Model == "" {
		return fmt.Errorf("translator model is required")
	}

	if c.ObjectStorage.BaseURL == "" {
		return fmt.Errorf("object storage base_url is required")
	}

	if c.Enrichment.Concurrency <= 0 {
		return fmt.Errorf("enrichment concurrency must be greater than 0")
	}

	if c.Enrichment.MaxAttempts <= 0 {
		return fmt.Errorf("enrichment max_attempts must be greater than 0")
	}

	if c.Enrichment.RetryBaseDelay <= 0 {
		return fmt.Errorf("enrichment retry_base_delay must be greater than 0")
	}

	if c.RabbitMQ.Enabled {
		if c.RabbitMQ.Host == "" {
			return fmt.Errorf("rabbitmq host is required")
		}

		if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
			return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
		}

		if c.RabbitMQ.Exchange.Name == "" {
			return fmt.Errorf("rabbitmq exchange name is required")
		}
	}

	return nil
}

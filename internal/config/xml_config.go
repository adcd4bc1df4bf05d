// Package config provides XML-based configuration management for the well
// timeline backend.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// AppConfig represents the root XML configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"WellTimeline"`

	// Server configuration
	Server ServerConfig `xml:"Server"`

	// Document storage configuration
	Storage StorageConfig `xml:"Storage"`

	// Session persistence configuration
	Persistence PersistenceConfig `xml:"Persistence"`

	// Session processing configuration
	Processing ProcessingConfig `xml:"Processing"`

	// LLM extraction configuration
	LLM LLMConfig `xml:"LLM"`

	// Well state domain configuration
	Domain DomainConfig `xml:"Domain"`

	// Event publishing configuration
	Events EventsConfig `xml:"Events"`

	// Security configuration
	Security SecurityConfig `xml:"Security"`

	// Advanced options
	Advanced AdvancedConfig `xml:"Advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `xml:"Port"`
	BindAddress  string `xml:"BindAddress"`
	EnableCORS   bool   `xml:"EnableCORS"`
	AllowOrigins string `xml:"AllowOrigins"`
	ReadTimeout  int    `xml:"ReadTimeoutSeconds"`
	WriteTimeout int    `xml:"WriteTimeoutSeconds"`
	IdleTimeout  int    `xml:"IdleTimeoutSeconds"`
	BodyLimit    string `xml:"BodyLimit"`
}

// StorageConfig contains document storage settings. Backend is "local" or
// "s3".
type StorageConfig struct {
	Backend          string   `xml:"Backend"`
	DataDirectory    string   `xml:"DataDirectory"`
	UploadsDirectory string   `xml:"UploadsDirectory"`
	MaxUploadSize    string   `xml:"MaxUploadSize"`
	S3               S3Config `xml:"S3"`
}

// S3Config contains S3 bucket settings
type S3Config struct {
	Bucket          string `xml:"Bucket"`
	Region          string `xml:"Region"`
	Endpoint        string `xml:"Endpoint"`
	Prefix          string `xml:"Prefix"`
	AccessKeyID     string `xml:"AccessKeyID"`
	SecretAccessKey string `xml:"SecretAccessKey"`
	PathStyle       bool   `xml:"PathStyle"`
}

// PersistenceConfig selects the session database. Driver is "duckdb",
// "sqlite" or "postgres"; an empty DSN for the file drivers defaults to a
// file under the data directory.
type PersistenceConfig struct {
	Enabled bool   `xml:"Enabled"`
	Driver  string `xml:"Driver"`
	DSN     string `xml:"DSN"`
}

// ProcessingConfig contains session lifecycle settings
type ProcessingConfig struct {
	MaxSessions            int `xml:"MaxSessions"`
	SessionTimeoutMinutes  int `xml:"SessionTimeoutMinutes"`
	CleanupIntervalMinutes int `xml:"CleanupIntervalMinutes"`
}

// LLMConfig contains the extraction model settings
type LLMConfig struct {
	Enabled        bool    `xml:"Enabled"`
	BaseURL        string  `xml:"BaseURL"`
	EndpointPath   string  `xml:"EndpointPath"`
	Model          string  `xml:"Model"`
	APIKeyEnv      string  `xml:"APIKeyEnv"`
	TimeoutSeconds int     `xml:"TimeoutSeconds"`
	Temperature    float64 `xml:"Temperature"`
	MaxAttempts    int     `xml:"MaxAttempts"`
	BackoffMillis  int     `xml:"BackoffMilliseconds"`
	DetailMode     string  `xml:"DetailMode"`
}

// DomainConfig contains well state folding settings
type DomainConfig struct {
	VocabularyFile string  `xml:"VocabularyFile"`
	UnitPolicy     string  `xml:"UnitPolicy"`
	Tolerance      float64 `xml:"ToleranceMeters"`
}

// EventsConfig contains the optional Kafka publisher settings
type EventsConfig struct {
	KafkaEnabled bool   `xml:"KafkaEnabled"`
	KafkaBrokers string `xml:"KafkaBrokers"`
	KafkaTopic   string `xml:"KafkaTopic"`
	HubBuffer    int    `xml:"HubBuffer"`
}

// SecurityConfig contains security settings
type SecurityConfig struct {
	AllowFileDeletion    bool   `xml:"AllowFileDeletion"`
	AllowSessionDeletion bool   `xml:"AllowSessionDeletion"`
	AllowedFileTypes     string `xml:"AllowedFileTypes"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	LogLevel             string `xml:"LogLevel"`
	EnableRequestLogging bool   `xml:"EnableRequestLogging"`
	EnableMetrics        bool   `xml:"EnableMetrics"`
	DuckDBThreads        int    `xml:"DuckDBThreads"`
	DuckDBMemoryLimit    string `xml:"DuckDBMemoryLimit"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8089,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:  30,
			WriteTimeout: 180,
			IdleTimeout:  120,
			BodyLimit:    "50M",
		},
		Storage: StorageConfig{
			Backend:          "local",
			DataDirectory:    "./data",
			UploadsDirectory: "./data/uploads",
			MaxUploadSize:    "50M",
		},
		Persistence: PersistenceConfig{
			Enabled: true,
			Driver:  "duckdb",
		},
		Processing: ProcessingConfig{
			MaxSessions:            50,
			SessionTimeoutMinutes:  120,
			CleanupIntervalMinutes: 5,
		},
		LLM: LLMConfig{
			Enabled:        true,
			BaseURL:        "https://api.openai.com/v1",
			EndpointPath:   "/chat/completions",
			Model:          "gpt-4o-mini",
			APIKeyEnv:      "OPENAI_API_KEY",
			TimeoutSeconds: 60,
			MaxAttempts:    3,
			BackoffMillis:  1000,
			DetailMode:     "auto",
		},
		Domain: DomainConfig{
			UnitPolicy: "meters",
		},
		Events: EventsConfig{
			KafkaTopic: "well-timeline.sessions",
			HubBuffer:  64,
		},
		Security: SecurityConfig{
			AllowFileDeletion:    true,
			AllowSessionDeletion: true,
			AllowedFileTypes:     ".docx,.html,.htm,.txt",
		},
		Advanced: AdvancedConfig{
			LogLevel:             "info",
			EnableRequestLogging: true,
			EnableMetrics:        true,
			DuckDBThreads:        4,
			DuckDBMemoryLimit:    "1GB",
		},
	}
}

// LoadConfig loads configuration from XML file
func LoadConfig(configPath string) (*AppConfig, error) {
	// If file doesn't exist, create default
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		config := DefaultConfig()
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		config.applyEnvironmentOverrides()
		config.resolvePaths(filepath.Dir(configPath))
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := xml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides
	config.applyEnvironmentOverrides()

	// Resolve relative paths
	config.resolvePaths(filepath.Dir(configPath))

	return config, nil
}

// Save saves the configuration to XML file
func (c *AppConfig) Save(configPath string) error {
	output, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(xml.Header + "\n<!-- Well Timeline Configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
	content := append(header, output...)

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	// PORT override
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	// DATA_DIR override
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
		c.Storage.UploadsDirectory = filepath.Join(dataDir, "uploads")
	}

	if dsn := os.Getenv("PERSISTENCE_DSN"); dsn != "" {
		c.Persistence.Enabled = true
		c.Persistence.DSN = dsn
		if driver := os.Getenv("PERSISTENCE_DRIVER"); driver != "" {
			c.Persistence.Driver = driver
		}
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		c.Events.KafkaEnabled = true
		c.Events.KafkaBrokers = brokers
	}

	if bucket := os.Getenv("S3_BUCKET"); bucket != "" {
		c.Storage.Backend = "s3"
		c.Storage.S3.Bucket = bucket
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	resolve := func(p *string) {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(configDir, *p)
		}
	}
	resolve(&c.Storage.DataDirectory)
	resolve(&c.Storage.UploadsDirectory)
	resolve(&c.Domain.VocabularyFile)
}

// GetDataDir returns the absolute data directory path
func (c *AppConfig) GetDataDir() string {
	return c.Storage.DataDirectory
}

// GetUploadDir returns the absolute uploads directory path
func (c *AppConfig) GetUploadDir() string {
	return c.Storage.UploadsDirectory
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// PersistenceDSN returns the configured DSN, defaulting file drivers to a
// database under the data directory.
func (c *AppConfig) PersistenceDSN() string {
	if c.Persistence.DSN != "" {
		return c.Persistence.DSN
	}
	switch strings.ToLower(c.Persistence.Driver) {
	case "sqlite":
		return filepath.Join(c.Storage.DataDirectory, "sessions.db")
	default:
		return filepath.Join(c.Storage.DataDirectory, "sessions.duckdb")
	}
}

// KafkaBrokerList splits the comma separated broker list.
func (c *AppConfig) KafkaBrokerList() []string {
	var out []string
	for _, b := range strings.Split(c.Events.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// AllowedExtensions returns the lower-cased allowed upload extensions.
func (c *AppConfig) AllowedExtensions() []string {
	var out []string
	for _, ext := range strings.Split(c.Security.AllowedFileTypes, ",") {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out = append(out, ext)
	}
	return out
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
	}
	if c.Storage.Backend != "s3" {
		dirs = append(dirs, c.Storage.UploadsDirectory)
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

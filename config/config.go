// Package config loads and validates the service configuration from the environment
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment is the deployment environment
type Environment string

const (
	EnvDevelopment Environment = "dev"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "prod"
	EnvTest        Environment = "test"
)

// Extractor modes
const (
	ExtractorLLM       = "llm"
	ExtractorHeuristic = "heuristic"
)

// Config holds all application configuration
type Config struct {
	Port              string
	Address           string
	Env               Environment
	LogLevel          string
	LogRetentionWeeks int   // Number of weeks to keep log files
	MaxLogFileSize    int64 // Maximum log file size in bytes
	MaxRequestBody    int64 // Maximum request body size in bytes
	MaxHeaderSize     int64 // Maximum header size in bytes
	MaxUploadSize     int64 // Maximum multipart upload size in bytes

	OpenAIAPIKey       string
	OpenAIBaseURL      string
	OpenAIModel        string
	OpenAISummaryModel string
	CompletionTimeout  time.Duration
	CompletionRate     float64 // Outbound completion requests per second
	ExtractorMode      string

	BackendURL    string // External auth/records API; empty disables bearer auth
	UploadDir     string
	PublicBaseURL string
	DraftTTL      time.Duration

	AllowedOrigins []string
}

// Load loads and validates configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:              getEnvWithDefault("PORT", "8000"),
		Address:           getEnvWithDefault("ADDRESS", "127.0.0.1"),
		Env:               Environment(strings.ToLower(getEnvWithDefault("ENV", string(EnvDevelopment)))),
		LogLevel:          strings.ToLower(getEnvWithDefault("LOG_LEVEL", "info")),
		LogRetentionWeeks: getIntEnvWithDefault("LOG_RETENTION_WEEKS", 4),
		MaxLogFileSize:    getInt64EnvWithDefault("MAX_LOG_FILE_SIZE", 100*1024*1024),
		MaxRequestBody:    getInt64EnvWithDefault("MAX_REQUEST_BODY", 1024*1024),
		MaxHeaderSize:     getInt64EnvWithDefault("MAX_HEADER_SIZE", 1024*1024),
		MaxUploadSize:     getInt64EnvWithDefault("MAX_UPLOAD_SIZE", 10*1024*1024),

		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:      strings.TrimRight(getEnvWithDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"), "/"),
		OpenAIModel:        getEnvWithDefault("OPENAI_MODEL", "gpt-3.5-turbo"),
		OpenAISummaryModel: getEnvWithDefault("OPENAI_SUMMARY_MODEL", "gpt-4.1"),
		CompletionTimeout:  time.Duration(getIntEnvWithDefault("COMPLETION_TIMEOUT_SECONDS", 30)) * time.Second,
		CompletionRate:     getFloatEnvWithDefault("COMPLETION_RATE_PER_SECOND", 2),
		ExtractorMode:      strings.ToLower(getEnvWithDefault("EXTRACTOR_MODE", ExtractorLLM)),

		BackendURL:    strings.TrimRight(os.Getenv("BACKEND_URL"), "/"),
		UploadDir:     getEnvWithDefault("UPLOAD_DIR", "uploads"),
		PublicBaseURL: strings.TrimRight(getEnvWithDefault("PUBLIC_BASE_URL", "http://localhost:8000"), "/"),
		DraftTTL:      time.Duration(getIntEnvWithDefault("DRAFT_TTL_MINUTES", 120)) * time.Minute,

		AllowedOrigins: splitList(getEnvWithDefault("ALLOWED_ORIGINS", "*")),
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// validateConfig validates all configuration values
func validateConfig(cfg *Config) error {
	if err := validatePort(cfg.Port); err != nil {
		return fmt.Errorf("invalid PORT: %w", err)
	}

	if err := validateAddress(cfg.Address); err != nil {
		return fmt.Errorf("invalid ADDRESS: %w", err)
	}

	if err := validateEnv(cfg.Env); err != nil {
		return fmt.Errorf("invalid ENV: %w", err)
	}

	if err := validateLogLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	if err := validateSizeLimit(cfg.MaxRequestBody, "MAX_REQUEST_BODY"); err != nil {
		return fmt.Errorf("invalid MAX_REQUEST_BODY: %w", err)
	}

	if err := validateSizeLimit(cfg.MaxHeaderSize, "MAX_HEADER_SIZE"); err != nil {
		return fmt.Errorf("invalid MAX_HEADER_SIZE: %w", err)
	}

	if err := validateSizeLimit(cfg.MaxUploadSize, "MAX_UPLOAD_SIZE"); err != nil {
		return fmt.Errorf("invalid MAX_UPLOAD_SIZE: %w", err)
	}

	if err := validateLogRetentionWeeks(cfg.LogRetentionWeeks); err != nil {
		return fmt.Errorf("invalid LOG_RETENTION_WEEKS: %w", err)
	}

	if err := validateMaxLogFileSize(cfg.MaxLogFileSize); err != nil {
		return fmt.Errorf("invalid MAX_LOG_FILE_SIZE: %w", err)
	}

	if err := validateExtractor(cfg); err != nil {
		return fmt.Errorf("invalid EXTRACTOR_MODE: %w", err)
	}

	if err := validateURL(cfg.OpenAIBaseURL, false); err != nil {
		return fmt.Errorf("invalid OPENAI_BASE_URL: %w", err)
	}

	if err := validateURL(cfg.BackendURL, true); err != nil {
		return fmt.Errorf("invalid BACKEND_URL: %w", err)
	}

	if err := validateURL(cfg.PublicBaseURL, false); err != nil {
		return fmt.Errorf("invalid PUBLIC_BASE_URL: %w", err)
	}

	if cfg.CompletionTimeout <= 0 || cfg.CompletionTimeout > 5*time.Minute {
		return fmt.Errorf("invalid COMPLETION_TIMEOUT_SECONDS: must be between 1 and 300, got %s", cfg.CompletionTimeout)
	}

	if cfg.CompletionRate <= 0 {
		return fmt.Errorf("invalid COMPLETION_RATE_PER_SECOND: must be positive, got %v", cfg.CompletionRate)
	}

	if cfg.DraftTTL < time.Minute {
		return fmt.Errorf("invalid DRAFT_TTL_MINUTES: must be at least 1, got %s", cfg.DraftTTL)
	}

	if strings.TrimSpace(cfg.UploadDir) == "" {
		return fmt.Errorf("invalid UPLOAD_DIR: cannot be empty")
	}

	return nil
}

// validatePort validates the PORT environment variable
func validatePort(port string) error {
	if port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}

	portNum, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("PORT must be a valid number: %w", err)
	}

	if portNum < 1 || portNum > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}

	if portNum < 1024 {
		return fmt.Errorf("PORT %d is privileged (less than 1024), use ports 1024-65535", portNum)
	}

	return nil
}

// validateAddress validates the ADDRESS environment variable
func validateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("ADDRESS cannot be empty")
	}

	if address == "localhost" {
		return nil
	}

	ip := net.ParseIP(address)
	if ip == nil {
		return fmt.Errorf("ADDRESS must be a valid IP address or 'localhost', got: %s", address)
	}

	// Only loopback, private or wildcard binds; public traffic comes through the proxy
	if !ip.IsLoopback() && !ip.IsPrivate() && !ip.IsUnspecified() {
		return fmt.Errorf("ADDRESS %s is a public IP, consider using private network ranges for security", address)
	}

	return nil
}

// validateEnv validates the ENV environment variable
func validateEnv(env Environment) error {
	switch env {
	case EnvDevelopment, EnvStaging, EnvProduction, EnvTest:
		return nil
	case "":
		return fmt.Errorf("ENV cannot be empty")
	}
	return fmt.Errorf("ENV must be one of: [dev staging prod test], got: %s", env)
}

// validateLogLevel validates the LOG_LEVEL environment variable
func validateLogLevel(logLevel string) error {
	if logLevel == "" {
		return fmt.Errorf("LOG_LEVEL cannot be empty")
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	for _, level := range validLevels {
		if logLevel == level {
			return nil
		}
	}

	return fmt.Errorf("LOG_LEVEL must be one of: %v, got: %s", validLevels, logLevel)
}

// validateSizeLimit validates size limit configuration values
func validateSizeLimit(size int64, configName string) error {
	if size <= 0 {
		return fmt.Errorf("%s must be positive, got: %d", configName, size)
	}

	if size > 100*1024*1024 {
		return fmt.Errorf("%s is too large (max 100MB), got: %d bytes", configName, size)
	}

	return nil
}

// validateLogRetentionWeeks validates the LOG_RETENTION_WEEKS environment variable
func validateLogRetentionWeeks(weeks int) error {
	if weeks <= 0 {
		return fmt.Errorf("LOG_RETENTION_WEEKS must be positive, got: %d", weeks)
	}

	if weeks > 52 {
		return fmt.Errorf("LOG_RETENTION_WEEKS is too large (max 52 weeks), got: %d", weeks)
	}

	return nil
}

// validateMaxLogFileSize validates the MAX_LOG_FILE_SIZE environment variable
func validateMaxLogFileSize(size int64) error {
	if size < 1024*1024 {
		return fmt.Errorf("MAX_LOG_FILE_SIZE is too small (min 1MB), got: %d bytes", size)
	}

	if size > 1024*1024*1024 {
		return fmt.Errorf("MAX_LOG_FILE_SIZE is too large (max 1GB), got: %d bytes", size)
	}

	return nil
}

// validateExtractor checks the extractor mode and the credentials it needs
func validateExtractor(cfg *Config) error {
	switch cfg.ExtractorMode {
	case ExtractorLLM:
		if cfg.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when EXTRACTOR_MODE is %q", ExtractorLLM)
		}
		return nil
	case ExtractorHeuristic:
		return nil
	}
	return fmt.Errorf("EXTRACTOR_MODE must be one of: [%s %s], got: %s", ExtractorLLM, ExtractorHeuristic, cfg.ExtractorMode)
}

// validateURL checks that raw is an absolute http(s) URL
func validateURL(raw string, optional bool) error {
	if raw == "" {
		if optional {
			return nil
		}
		return fmt.Errorf("URL cannot be empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("malformed URL: %w", err)
	}

	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("URL must be absolute http(s), got: %s", raw)
	}

	return nil
}

// CompletionEnabled reports whether an API key for the completion service is configured
func (c *Config) CompletionEnabled() bool {
	return c.OpenAIAPIKey != ""
}

// getEnvWithDefault gets an environment variable with a default value
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnvWithDefault gets an environment variable as int with a default value
func getIntEnvWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getInt64EnvWithDefault gets an environment variable as int64 with a default value
func getInt64EnvWithDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatEnvWithDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// GetEnvVars returns a list of all expected environment variables
func GetEnvVars() []string {
	return []string{
		"PORT",
		"ADDRESS",
		"ENV",
		"LOG_LEVEL",
		"LOG_RETENTION_WEEKS",
		"MAX_LOG_FILE_SIZE",
		"MAX_REQUEST_BODY",
		"MAX_HEADER_SIZE",
		"MAX_UPLOAD_SIZE",
		"OPENAI_API_KEY",
		"OPENAI_BASE_URL",
		"OPENAI_MODEL",
		"OPENAI_SUMMARY_MODEL",
		"COMPLETION_TIMEOUT_SECONDS",
		"COMPLETION_RATE_PER_SECOND",
		"EXTRACTOR_MODE",
		"BACKEND_URL",
		"UPLOAD_DIR",
		"PUBLIC_BASE_URL",
		"DRAFT_TTL_MINUTES",
		"ALLOWED_ORIGINS",
	}
}

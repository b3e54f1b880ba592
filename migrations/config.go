package main

import (
	"fmt"
	"os"
	"strings"
)

// Config holds all configuration for the migration tool.
type Config struct {
	// DatabaseURL is the PostgreSQL connection string.
	DatabaseURL string

	// MigrationTable is the name of the table tracking applied migrations.
	MigrationTable string
}

// LoadConfig loads configuration from environment variables with sensible defaults.
func LoadConfig() (*Config, error) {
	config := &Config{
		DatabaseURL:    getEnvOrDefault("DATABASE_URL", ""),
		MigrationTable: getEnvOrDefault("MIGRATION_TABLE", "schema_migrations"),
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL cannot be empty")
	}

	if c.MigrationTable == "" {
		return fmt.Errorf("MIGRATION_TABLE cannot be empty")
	}

	return nil
}

// String returns a representation of the configuration safe for logging.
func (c *Config) String() string {
	return fmt.Sprintf("Config{DatabaseURL: %s, MigrationTable: %s}",
		maskDatabaseURL(c.DatabaseURL), c.MigrationTable)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return defaultValue
}

// maskDatabaseURL masks the password component of a database URL for logging.
func maskDatabaseURL(url string) string {
	schemeEnd := strings.Index(url, "://")
	if schemeEnd == -1 {
		return url
	}

	authority := url[schemeEnd+3:]

	// Authority ends at the first path, query or fragment separator.
	authorityEnd := strings.IndexAny(authority, "/?#")
	if authorityEnd == -1 {
		authorityEnd = len(authority)
	}

	// The last @ within the authority separates userinfo from host, in case
	// the password itself contains @.
	atPos := strings.LastIndex(authority[:authorityEnd], "@")
	if atPos == -1 {
		return url
	}

	userInfo := authority[:atPos]

	colonPos := strings.Index(userInfo, ":")
	if colonPos == -1 || colonPos == len(userInfo)-1 {
		// No password, or empty password.
		return url
	}

	prefix := url[:schemeEnd+3]

	return prefix + userInfo[:colonPos+1] + "***" + authority[atPos:]
}

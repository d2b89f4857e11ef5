package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	ServerConfig       ServerConfig       `json:"server"`
	DatabaseConfig     DatabaseConfig     `json:"database"`
	RedisConfig        RedisConfig        `json:"redis"`
	AuthConfig         AuthConfig         `json:"auth"`
	VaultConfig        VaultConfig        `json:"vault"`
	FeeConfig          FeeConfig          `json:"fees"`
	SchedulerConfig    SchedulerConfig    `json:"scheduler"`
	NotificationConfig NotificationConfig `json:"notification"`
	LoggingConfig      LoggingConfig      `json:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"`  // CORS allowed origins
	TLSEnabled      bool   `json:"tls_enabled"`
	TLSCertFile     string `json:"tls_cert_file"`
	TLSKeyFile      string `json:"tls_key_file"`
	ReadTimeout     int    `json:"read_timeout"`     // Seconds
	WriteTimeout    int    `json:"write_timeout"`    // Seconds
	ShutdownTimeout int    `json:"shutdown_timeout"` // Seconds
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig holds Redis configuration for caching and the payout queue
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret           string        `json:"jwt_secret"`
	AccessTokenDuration time.Duration `json:"access_token_duration"`
	MinPasswordLength   int           `json:"min_password_length"`
}

// VaultConfig holds HashiCorp Vault configuration
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`  // KV secrets engine mount path
	SecretPath string `json:"secret_path"` // Path prefix for platform secrets
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

// FeeConfig holds custody fee and commission distribution configuration.
// Rates are fractions of profit, e.g. 0.10 for 10%.
type FeeConfig struct {
	PlatformAccountID    string  `json:"platform_account_id"`
	PlatformRate         float64 `json:"platform_rate"`
	Tier1Rate            float64 `json:"tier1_rate"`
	Tier2Rate            float64 `json:"tier2_rate"`
	UserRetentionFloor   float64 `json:"user_retention_floor"`
	FloorPlatformRate    float64 `json:"floor_platform_rate"`
	GiftGrantAmount      float64 `json:"gift_grant_amount"`
	GiftLowThreshold     float64 `json:"gift_low_threshold"`
	CadencePromotionDays int     `json:"cadence_promotion_days"`
}

// SchedulerConfig holds settlement sweep and payout reconciliation timing
type SchedulerConfig struct {
	CheckInterval     time.Duration `json:"check_interval"`
	MaxConcurrent     int           `json:"max_concurrent"`
	SettlementTimeout time.Duration `json:"settlement_timeout"`
	ReconcileInterval time.Duration `json:"reconcile_interval"`
}

type NotificationConfig struct {
	Enabled bool        `json:"enabled"`
	Email   EmailConfig `json:"email"`
}

// EmailConfig holds SMTP delivery settings for email notifications
type EmailConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     string `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	From     string `json:"from"`
	FromName string `json:"from_name"`
}

type LoggingConfig struct {
	Level       string `json:"level"`        // DEBUG, INFO, WARN, ERROR
	Output      string `json:"output"`       // stdout, stderr, or file path
	JSONFormat  bool   `json:"json_format"`  // Output as JSON
	IncludeFile bool   `json:"include_file"` // Include file and line number
}

func Load() (*Config, error) {
	// First try to load base config from file
	cfg, err := loadFromFile("config.json")
	if err != nil {
		// If no config file, start with empty config
		cfg = &Config{}
	}

	// Apply environment variable overrides (these take precedence)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Note: the database password is normally fetched from Vault; the
// DATABASE_PASSWORD variable is the fallback for local development.
func applyEnvOverrides(cfg *Config) {
	// Server config
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", 8080)
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", "0.0.0.0")
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", "*")
	cfg.ServerConfig.TLSEnabled = getEnvOrDefault("SERVER_TLS_ENABLED", "false") == "true"
	cfg.ServerConfig.TLSCertFile = getEnvOrDefault("SERVER_TLS_CERT", "")
	cfg.ServerConfig.TLSKeyFile = getEnvOrDefault("SERVER_TLS_KEY", "")
	cfg.ServerConfig.ReadTimeout = getEnvIntOrDefault("SERVER_READ_TIMEOUT", 30)
	cfg.ServerConfig.WriteTimeout = getEnvIntOrDefault("SERVER_WRITE_TIMEOUT", 30)
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10)

	// Database config
	cfg.DatabaseConfig.Host = getEnvOrDefault("DATABASE_HOST", "localhost")
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DATABASE_PORT", 5432)
	cfg.DatabaseConfig.User = getEnvOrDefault("DATABASE_USER", "custody")
	cfg.DatabaseConfig.Password = getEnvOrDefault("DATABASE_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DATABASE_NAME", "custody_platform")
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DATABASE_SSL_MODE", "disable")

	// Redis config
	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", "false") == "true"
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", "localhost:6379")
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", 0)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", 10)

	// Auth config - ALWAYS apply from environment
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.AccessTokenDuration = getEnvDurationOrDefault("AUTH_ACCESS_TOKEN_DURATION", 15*time.Minute)
	cfg.AuthConfig.MinPasswordLength = getEnvIntOrDefault("AUTH_MIN_PASSWORD_LENGTH", 8)

	// Vault config
	cfg.VaultConfig.Enabled = getEnvOrDefault("VAULT_ENABLED", "false") == "true"
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", "http://localhost:8200")
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", "secret")
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", "custody-platform")
	cfg.VaultConfig.TLSEnabled = getEnvOrDefault("VAULT_TLS_ENABLED", "false") == "true"
	cfg.VaultConfig.CACert = getEnvOrDefault("VAULT_CA_CERT", cfg.VaultConfig.CACert)

	// Fee config
	cfg.FeeConfig.PlatformAccountID = getEnvOrDefault("FEE_PLATFORM_ACCOUNT_ID", cfg.FeeConfig.PlatformAccountID)
	cfg.FeeConfig.PlatformRate = getEnvFloatOrDefault("FEE_PLATFORM_RATE", 0.10)
	cfg.FeeConfig.Tier1Rate = getEnvFloatOrDefault("FEE_TIER1_RATE", 0.20)
	cfg.FeeConfig.Tier2Rate = getEnvFloatOrDefault("FEE_TIER2_RATE", 0.10)
	cfg.FeeConfig.UserRetentionFloor = getEnvFloatOrDefault("FEE_USER_RETENTION_FLOOR", 0.50)
	cfg.FeeConfig.FloorPlatformRate = getEnvFloatOrDefault("FEE_FLOOR_PLATFORM_RATE", 0.30)
	cfg.FeeConfig.GiftGrantAmount = getEnvFloatOrDefault("GIFT_GRANT_AMOUNT", 30)
	cfg.FeeConfig.GiftLowThreshold = getEnvFloatOrDefault("GIFT_LOW_THRESHOLD", 5)
	cfg.FeeConfig.CadencePromotionDays = getEnvIntOrDefault("FEE_CADENCE_PROMOTION_DAYS", 30)

	// Scheduler config
	cfg.SchedulerConfig.CheckInterval = getEnvDurationOrDefault("SCHEDULER_CHECK_INTERVAL", 1*time.Hour)
	cfg.SchedulerConfig.MaxConcurrent = getEnvIntOrDefault("SCHEDULER_MAX_CONCURRENT", 5)
	cfg.SchedulerConfig.SettlementTimeout = getEnvDurationOrDefault("SCHEDULER_SETTLEMENT_TIMEOUT", 30*time.Second)
	cfg.SchedulerConfig.ReconcileInterval = getEnvDurationOrDefault("SCHEDULER_RECONCILE_INTERVAL", 5*time.Second)

	// Notification config
	cfg.NotificationConfig.Enabled = getEnvOrDefault("NOTIFICATIONS_ENABLED", "true") == "true"
	cfg.NotificationConfig.Email.Enabled = getEnvOrDefault("EMAIL_ENABLED", "false") == "true"
	cfg.NotificationConfig.Email.Host = getEnvOrDefault("SMTP_HOST", cfg.NotificationConfig.Email.Host)
	cfg.NotificationConfig.Email.Port = getEnvOrDefault("SMTP_PORT", "587")
	cfg.NotificationConfig.Email.Username = getEnvOrDefault("SMTP_USERNAME", cfg.NotificationConfig.Email.Username)
	cfg.NotificationConfig.Email.Password = getEnvOrDefault("SMTP_PASSWORD", cfg.NotificationConfig.Email.Password)
	cfg.NotificationConfig.Email.From = getEnvOrDefault("SMTP_FROM", cfg.NotificationConfig.Email.From)
	cfg.NotificationConfig.Email.FromName = getEnvOrDefault("SMTP_FROM_NAME", cfg.NotificationConfig.Email.FromName)

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", "INFO")
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", "stdout")
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", "true") == "true"
	cfg.LoggingConfig.IncludeFile = getEnvOrDefault("LOG_INCLUDE_FILE", "false") == "true"
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// GenerateSampleConfig creates a sample configuration file
func GenerateSampleConfig(filename string) error {
	config := Config{
		ServerConfig: ServerConfig{
			Port:            8080,
			Host:            "0.0.0.0",
			AllowedOrigins:  "*",
			ReadTimeout:     30,
			WriteTimeout:    30,
			ShutdownTimeout: 10,
		},
		DatabaseConfig: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "custody",
			Password: "change_me",
			Database: "custody_platform",
			SSLMode:  "disable",
		},
		RedisConfig: RedisConfig{
			Enabled:  false,
			Address:  "localhost:6379",
			DB:       0,
			PoolSize: 10,
		},
		AuthConfig: AuthConfig{
			JWTSecret:           "change_me_in_production",
			AccessTokenDuration: 15 * time.Minute,
			MinPasswordLength:   8,
		},
		FeeConfig: FeeConfig{
			PlatformAccountID:    "",
			PlatformRate:         0.10,
			Tier1Rate:            0.20,
			Tier2Rate:            0.10,
			UserRetentionFloor:   0.50,
			FloorPlatformRate:    0.30,
			GiftGrantAmount:      30,
			GiftLowThreshold:     5,
			CadencePromotionDays: 30,
		},
		SchedulerConfig: SchedulerConfig{
			CheckInterval:     1 * time.Hour,
			MaxConcurrent:     5,
			SettlementTimeout: 30 * time.Second,
			ReconcileInterval: 5 * time.Second,
		},
		NotificationConfig: NotificationConfig{
			Enabled: true,
		},
		LoggingConfig: LoggingConfig{
			Level:       "INFO",
			Output:      "stdout",
			JSONFormat:  true,
			IncludeFile: false,
		},
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}

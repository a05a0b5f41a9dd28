package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	MongoDB  MongoDBConfig
	Postgres PostgresConfig
	Storage  StorageConfig
	JWT      JWTConfig
	Internal InternalConfig
	Accrual  AccrualConfig
	Liveness LivenessConfig
	Worker   WorkerConfig
	Retry    RetryConfig
	Users    UsersConfig
	LogLevel string
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port            string
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
}

// MongoDBConfig holds MongoDB-specific configuration
type MongoDBConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

// PostgresConfig holds the SQL store configuration
type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// StorageConfig selects the persistence backend
type StorageConfig struct {
	// Driver is one of mongodb, postgres or memory
	Driver  string
	Timeout time.Duration
}

// JWTConfig holds JWT-specific configuration
type JWTConfig struct {
	Secret string
	TTL    time.Duration
	// Required rejects node requests without a bearer token
	Required bool
}

// InternalConfig guards the ledger and admin endpoints
type InternalConfig struct {
	// KeyHash is the bcrypt hash of the X-Internal-Key header value
	KeyHash string
}

// AccrualConfig holds the reward rate
type AccrualConfig struct {
	RatePerMinute float64
	Multiplier    float64
}

// LivenessConfig holds the heartbeat grace window
type LivenessConfig struct {
	StaleAfter time.Duration
}

// WorkerConfig controls the in-process accrual and sweep loops
type WorkerConfig struct {
	Enabled         bool
	AccrualInterval time.Duration
	SweepInterval   time.Duration
	BatchSize       int
}

// RetryConfig bounds retries of conflicts and unavailable storage
type RetryConfig struct {
	MaxConflictRetries int
	MaxAttempts        int
	InitialBackoff     time.Duration
	MaxBackoff         time.Duration
}

// UsersConfig holds user directory behaviour
type UsersConfig struct {
	AutoRegister bool
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	setDefaults(v)

	// Read configuration
	if err := v.ReadInConfig(); err != nil {
		// It's okay if config file is not found, we'll use environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	// Unmarshal configuration
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects settings the engine cannot run with
func (c *Config) Validate() error {
	var errs []error
	if c.Accrual.RatePerMinute <= 0 {
		errs = append(errs, fmt.Errorf("Accrual.RatePerMinute must be positive, got %v", c.Accrual.RatePerMinute))
	}
	if c.Liveness.StaleAfter <= 0 {
		errs = append(errs, fmt.Errorf("Liveness.StaleAfter must be positive, got %v", c.Liveness.StaleAfter))
	}
	if c.Storage.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("Storage.Timeout must be positive, got %v", c.Storage.Timeout))
	}
	switch c.Storage.Driver {
	case "mongodb", "postgres", "memory":
	default:
		errs = append(errs, fmt.Errorf("Storage.Driver must be mongodb, postgres or memory, got %q", c.Storage.Driver))
	}
	if c.Storage.Driver == "postgres" && c.Postgres.DSN == "" {
		errs = append(errs, errors.New("Postgres.DSN is required for the postgres driver"))
	}
	if c.Worker.Enabled && (c.Worker.AccrualInterval <= 0 || c.Worker.SweepInterval <= 0) {
		errs = append(errs, errors.New("Worker intervals must be positive when the worker is enabled"))
	}
	return errors.Join(errs...)
}

// setDefaults sets default values for configuration
func setDefaults(v *viper.Viper) {
	v.SetDefault("Server.Port", "4000")
	v.SetDefault("Server.AllowedOrigins", []string{"http://localhost:3000"})
	v.SetDefault("Server.ShutdownTimeout", 15*time.Second)
	v.SetDefault("MongoDB.URI", "mongodb://localhost:27017/?replicaSet=rs0")
	v.SetDefault("MongoDB.Database", "uptime-rewards")
	v.SetDefault("MongoDB.ConnectTimeout", 10*time.Second)
	// AutomaticEnv only resolves keys viper already knows, so secrets get empty defaults.
	v.SetDefault("Postgres.DSN", "")
	v.SetDefault("Postgres.MaxOpenConns", 20)
	v.SetDefault("Postgres.ConnMaxLifetime", 30*time.Minute)
	v.SetDefault("Storage.Driver", "mongodb")
	v.SetDefault("Storage.Timeout", 5*time.Second)
	v.SetDefault("JWT.Secret", "")
	v.SetDefault("JWT.TTL", 24*time.Hour)
	v.SetDefault("JWT.Required", false)
	v.SetDefault("Internal.KeyHash", "")
	v.SetDefault("Accrual.RatePerMinute", 12.0)
	v.SetDefault("Accrual.Multiplier", 1.0)
	v.SetDefault("Liveness.StaleAfter", 2*time.Minute)
	v.SetDefault("Worker.Enabled", true)
	v.SetDefault("Worker.AccrualInterval", time.Minute)
	v.SetDefault("Worker.SweepInterval", time.Minute)
	v.SetDefault("Worker.BatchSize", 500)
	v.SetDefault("Retry.MaxConflictRetries", 5)
	v.SetDefault("Retry.MaxAttempts", 3)
	v.SetDefault("Retry.InitialBackoff", 100*time.Millisecond)
	v.SetDefault("Retry.MaxBackoff", 2*time.Second)
	v.SetDefault("Users.AutoRegister", true)
	v.SetDefault("LogLevel", "info")
}

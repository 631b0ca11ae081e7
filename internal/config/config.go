package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Storage      StorageConfig
	Queue        QueueConfig
	Webhook      WebhookConfig
	AWS          AWSConfig
	Provisioning ProvisioningConfig
	Health       HealthConfig
	Auth         AuthConfig
	Logging      LoggingConfig
	Metrics      MetricsConfig
	Tracing      TracingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int    `validate:"min=1,max=65535"`
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RateLimitRPS    int `validate:"min=1"`
	RateLimitBurst  int `validate:"min=1"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver   string `validate:"oneof=postgres memory"`
	Host     string `validate:"required"`
	Port     int    `validate:"min=1,max=65535"`
	User     string
	Password string
	DBName   string `validate:"required"`
	SSLMode  string
	MaxConns int `validate:"min=1"`
	MinConns int `validate:"min=0"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	CacheTTL time.Duration
}

// StorageConfig holds object storage configuration for bootstrap script archives
type StorageConfig struct {
	Enabled         bool
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	Region          string
	UseSSL          bool
}

// QueueConfig holds message queue configuration
type QueueConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Vhost    string
}

// WebhookConfig holds the lifecycle event webhook endpoint
type WebhookConfig struct {
	Enabled     bool
	URL         string `validate:"required_if=Enabled true"`
	Secret      string
	Timeout     time.Duration
	MaxAttempts int `validate:"min=0"`
}

// AWSConfig holds compute provider configuration
type AWSConfig struct {
	Region           string
	AccessKeyID      string
	SecretAccessKey  string
	LaunchTemplateID string
	SecurityGroupIDs []string
	ImageID          string
	InstanceType     string
}

// Configured reports whether enough credentials exist to talk to EC2
func (c AWSConfig) Configured() bool {
	return c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// ProvisioningConfig holds the lifecycle orchestration constants
type ProvisioningConfig struct {
	MaxPollAttempts int           `validate:"min=1"`
	PollInterval    time.Duration
	MockFallback    bool
	ChannelLocking  bool
	LockExpiry      time.Duration
	RepositoryURL   string
}

// HealthConfig holds transcoding health check configuration
type HealthConfig struct {
	Timeout       time.Duration
	SweepSchedule string
}

// AuthConfig holds token verification configuration
type AuthConfig struct {
	JWTSecret string `validate:"required"`
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Level  string `validate:"oneof=debug info warn error"`
	Format string `validate:"oneof=json console"`
	Output string
}

// MetricsConfig holds metrics server configuration
type MetricsConfig struct {
	Enabled bool
	Port    int
}

// TracingConfig holds Jaeger configuration
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Endpoint    string
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// A missing .env is fine; it only seeds the environment for local runs.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.readTimeout", "30s")
	// Provisioning can poll for several minutes before answering.
	v.SetDefault("server.writeTimeout", "6m")
	v.SetDefault("server.shutdownTimeout", "10s")
	v.SetDefault("server.rateLimitRPS", 10)
	v.SetDefault("server.rateLimitBurst", 20)

	// Database defaults
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "streamflow")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.maxConns", 25)
	v.SetDefault("database.minConns", 5)

	// Redis defaults
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cacheTTL", "5m")

	// Storage defaults
	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.accessKeyID", "minioadmin")
	v.SetDefault("storage.secretAccessKey", "minioadmin")
	v.SetDefault("storage.bucketName", "bootstrap-scripts")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.useSSL", false)

	// Queue defaults
	v.SetDefault("queue.enabled", true)
	v.SetDefault("queue.host", "localhost")
	v.SetDefault("queue.port", 5672)
	v.SetDefault("queue.user", "guest")
	v.SetDefault("queue.password", "guest")
	v.SetDefault("queue.vhost", "/")

	// Webhook defaults
	v.SetDefault("webhook.enabled", false)
	v.SetDefault("webhook.url", "")
	v.SetDefault("webhook.secret", "")
	v.SetDefault("webhook.timeout", "10s")
	v.SetDefault("webhook.maxAttempts", 4)

	// AWS defaults
	v.SetDefault("aws.region", "us-east-1")
	v.SetDefault("aws.accessKeyID", "")
	v.SetDefault("aws.secretAccessKey", "")
	v.SetDefault("aws.launchTemplateID", "")
	v.SetDefault("aws.imageID", "ami-0d5d9d301c853a04a") // Ubuntu 22.04 LTS in us-east-1
	v.SetDefault("aws.instanceType", "c5.xlarge")
	v.SetDefault("aws.securityGroupIDs", []string{})

	// Provisioning defaults
	v.SetDefault("provisioning.maxPollAttempts", 30)
	v.SetDefault("provisioning.pollInterval", "10s")
	v.SetDefault("provisioning.mockFallback", true)
	v.SetDefault("provisioning.channelLocking", false)
	v.SetDefault("provisioning.lockExpiry", "6m")
	v.SetDefault("provisioning.repositoryURL", "https://github.com/streamflow/node-transcoding.git")

	// Health defaults
	v.SetDefault("health.timeout", "5s")
	v.SetDefault("health.sweepSchedule", "0 */5 * * * *")

	// Auth defaults; an empty secret is rejected by validation
	v.SetDefault("auth.jwtSecret", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.serviceName", "streamflow")
	v.SetDefault("tracing.endpoint", "http://localhost:14268/api/traces")
}

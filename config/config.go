package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultJWTSecret = "change-me"

type Config struct {
	AppPort string `yaml:"app_port"`
	AppMode string `yaml:"app_mode"`

	DBDriver   string `yaml:"db_driver"`
	DBHost     string `yaml:"db_host"`
	DBUser     string `yaml:"db_user"`
	DBPassword string `yaml:"db_password"`
	DBName     string `yaml:"db_name"`
	DBPort     string `yaml:"db_port"`
	DBSSLMode  string `yaml:"db_sslmode"`

	JWTSecret     string `yaml:"jwt_secret"`
	JWTIssuer     string `yaml:"jwt_issuer"`
	JWTAudience   string `yaml:"jwt_audience"`
	JWTExpiryMin  int    `yaml:"jwt_expiry_min"`
	RefreshExpiry int    `yaml:"refresh_expiry_days"`

	AuthEmailPasswordEnabled bool     `yaml:"auth_email_password_enabled"`
	AuthTrustedOrigins       []string `yaml:"auth_trusted_origins"`
	BcryptCost               int      `yaml:"bcrypt_cost"`

	RedisHost     string `yaml:"redis_host"`
	RedisPort     string `yaml:"redis_port"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	CacheExternalTTLMin int `yaml:"cache_external_ttl_min"`

	RateLimitRequests  int `yaml:"rate_limit_requests"`
	RateLimitWindowSec int `yaml:"rate_limit_window_sec"`

	ExternalAPIBaseURL    string `yaml:"external_api_base_url"`
	ExternalAPITimeoutSec int    `yaml:"external_api_timeout_sec"`
	ExternalAPIRetryCount int    `yaml:"external_api_retry_count"`
	ExternalAPIUserAgent  string `yaml:"external_api_user_agent"`

	EventBroker        string `yaml:"event_broker"`
	EventTopic         string `yaml:"event_topic"`
	EventConsumerGroup string `yaml:"event_consumer_group"`
	NATSURL            string `yaml:"nats_url"`

	S3Region        string `yaml:"s3_region"`
	S3Bucket        string `yaml:"s3_bucket"`
	S3AccessKey     string `yaml:"s3_access_key"`
	S3SecretKey     string `yaml:"s3_secret_key"`
	S3Endpoint      string `yaml:"s3_endpoint"`
	S3PresignTTLMin int    `yaml:"s3_presign_ttl_min"`

	TracingExporter    string  `yaml:"tracing_exporter"`
	TracingZipkinURL   string  `yaml:"tracing_zipkin_url"`
	TracingSampleRatio float64 `yaml:"tracing_sample_ratio"`
}

// Default returns the built-in configuration before file and environment overrides.
func Default() *Config {
	return &Config{
		AppPort:                  "8080",
		AppMode:                  "debug",
		DBDriver:                 "pgx",
		DBHost:                   "localhost",
		DBUser:                   "postgres",
		DBPassword:               "postgres",
		DBName:                   "todos",
		DBPort:                   "5432",
		DBSSLMode:                "disable",
		JWTSecret:                defaultJWTSecret,
		JWTIssuer:                "todo-system",
		JWTAudience:              "todo-system-clients",
		JWTExpiryMin:             60,
		RefreshExpiry:            14,
		AuthEmailPasswordEnabled: true,
		AuthTrustedOrigins:       []string{"http://localhost:3001"},
		BcryptCost:               10,
		RedisHost:                "localhost",
		RedisPort:                "6379",
		CacheExternalTTLMin:      5,
		RateLimitRequests:        100,
		RateLimitWindowSec:       60,
		ExternalAPIBaseURL:       "https://jsonplaceholder.typicode.com/",
		ExternalAPITimeoutSec:    30,
		ExternalAPIRetryCount:    3,
		ExternalAPIUserAgent:     "TodoSystem/1.0",
		EventBroker:              "redis",
		EventTopic:               "external-todos-created",
		EventConsumerGroup:       "todo-system-consumers",
		NATSURL:                  "nats://127.0.0.1:4222",
		S3Region:                 "us-east-1",
		S3PresignTTLMin:          15,
		TracingExporter:          "none",
		TracingZipkinURL:         "http://localhost:9411/api/v2/spans",
		TracingSampleRatio:       1,
	}
}

// LoadConfig builds the configuration from defaults, an optional YAML file
// named by CONFIG_FILE, and finally environment variables.
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeYAMLFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeYAMLFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.AppPort = getEnv("APP_PORT", c.AppPort)
	c.AppMode = getEnv("APP_MODE", c.AppMode)

	c.DBDriver = getEnv("DB_DRIVER", c.DBDriver)
	c.DBHost = getEnv("DB_HOST", c.DBHost)
	c.DBUser = getEnv("DB_USER", c.DBUser)
	c.DBPassword = getEnv("DB_PASSWORD", c.DBPassword)
	c.DBName = getEnv("DB_NAME", c.DBName)
	c.DBPort = getEnv("DB_PORT", c.DBPort)
	c.DBSSLMode = getEnv("DB_SSLMODE", c.DBSSLMode)

	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)
	c.JWTIssuer = getEnv("JWT_ISSUER", c.JWTIssuer)
	c.JWTAudience = getEnv("JWT_AUDIENCE", c.JWTAudience)
	c.JWTExpiryMin = getEnvAsInt("JWT_EXPIRY_MIN", c.JWTExpiryMin)
	c.RefreshExpiry = getEnvAsInt("REFRESH_EXPIRY_DAYS", c.RefreshExpiry)

	c.AuthEmailPasswordEnabled = getEnvAsBool("AUTH_EMAIL_PASSWORD_ENABLED", c.AuthEmailPasswordEnabled)
	c.AuthTrustedOrigins = getEnvAsList("AUTH_TRUSTED_ORIGINS", c.AuthTrustedOrigins)
	c.BcryptCost = getEnvAsInt("BCRYPT_COST", c.BcryptCost)

	c.RedisHost = getEnv("REDIS_HOST", c.RedisHost)
	c.RedisPort = getEnv("REDIS_PORT", c.RedisPort)
	c.RedisPassword = getEnv("REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = getEnvAsInt("REDIS_DB", c.RedisDB)

	c.CacheExternalTTLMin = getEnvAsInt("CACHE_EXTERNAL_TTL_MIN", c.CacheExternalTTLMin)

	c.RateLimitRequests = getEnvAsInt("RATE_LIMIT_REQUESTS", c.RateLimitRequests)
	c.RateLimitWindowSec = getEnvAsInt("RATE_LIMIT_WINDOW_SEC", c.RateLimitWindowSec)

	c.ExternalAPIBaseURL = getEnv("EXTERNAL_API_BASE_URL", c.ExternalAPIBaseURL)
	c.ExternalAPITimeoutSec = getEnvAsInt("EXTERNAL_API_TIMEOUT_SEC", c.ExternalAPITimeoutSec)
	c.ExternalAPIRetryCount = getEnvAsInt("EXTERNAL_API_RETRY_COUNT", c.ExternalAPIRetryCount)
	c.ExternalAPIUserAgent = getEnv("EXTERNAL_API_USER_AGENT", c.ExternalAPIUserAgent)

	c.EventBroker = getEnv("EVENT_BROKER", c.EventBroker)
	c.EventTopic = getEnv("EVENT_TOPIC", c.EventTopic)
	c.EventConsumerGroup = getEnv("EVENT_CONSUMER_GROUP", c.EventConsumerGroup)
	c.NATSURL = getEnv("NATS_URL", c.NATSURL)

	c.S3Region = getEnv("S3_REGION", c.S3Region)
	c.S3Bucket = getEnv("S3_BUCKET", c.S3Bucket)
	c.S3AccessKey = getEnv("S3_ACCESS_KEY", c.S3AccessKey)
	c.S3SecretKey = getEnv("S3_SECRET_KEY", c.S3SecretKey)
	c.S3Endpoint = getEnv("S3_ENDPOINT", c.S3Endpoint)
	c.S3PresignTTLMin = getEnvAsInt("S3_PRESIGN_TTL_MIN", c.S3PresignTTLMin)

	c.TracingExporter = getEnv("TRACING_EXPORTER", c.TracingExporter)
	c.TracingZipkinURL = getEnv("TRACING_ZIPKIN_URL", c.TracingZipkinURL)
	c.TracingSampleRatio = getEnvAsFloat("TRACING_SAMPLE_RATIO", c.TracingSampleRatio)
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.AppMode == "release" && c.JWTSecret == defaultJWTSecret {
		errs = append(errs, errors.New("JWT_SECRET must be set in release mode"))
	}
	if c.JWTExpiryMin <= 0 {
		errs = append(errs, errors.New("JWT_EXPIRY_MIN must be positive"))
	}
	if c.RateLimitRequests <= 0 || c.RateLimitWindowSec <= 0 {
		errs = append(errs, errors.New("rate limit requests and window must be positive"))
	}
	switch c.DBDriver {
	case "pgx", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver))
	}
	switch c.EventBroker {
	case "redis", "nats", "none":
	default:
		errs = append(errs, fmt.Errorf("unknown EVENT_BROKER %q", c.EventBroker))
	}
	switch c.TracingExporter {
	case "none", "stdout", "zipkin":
	default:
		errs = append(errs, fmt.Errorf("unknown TRACING_EXPORTER %q", c.TracingExporter))
	}
	if c.TracingSampleRatio <= 0 || c.TracingSampleRatio > 1 {
		errs = append(errs, errors.New("TRACING_SAMPLE_RATIO must be above 0 and at most 1"))
	}
	return errors.Join(errs...)
}

// DatabaseDSN returns a pgx connection URL.
func (c *Config) DatabaseDSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     c.DBHost + ":" + c.DBPort,
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + c.DBSSLMode,
	}
	return u.String()
}

func (c *Config) AccessTTL() time.Duration {
	return time.Duration(c.JWTExpiryMin) * time.Minute
}

func (c *Config) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshExpiry) * 24 * time.Hour
}

func (c *Config) ExternalCacheTTL() time.Duration {
	return time.Duration(c.CacheExternalTTLMin) * time.Minute
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsList(key string, fallback []string) []string {
	valueStr := strings.TrimSpace(getEnv(key, ""))
	if valueStr == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

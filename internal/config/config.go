package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Config captures runtime configuration for the payment webhook service.
type Config struct {
	HTTP      HTTPConfig
	Database  DatabaseConfig
	Cache     CacheConfig
	Gateway   GatewayConfig
	Telemetry TelemetryConfig
	Service   ServiceConfig
}

type HTTPConfig struct {
	Port          int
	ShutdownGrace int
}

type DatabaseConfig struct {
	URL            string
	AutoMigrate    bool
	MigrationsPath string
}

// CacheConfig controls the Redis-backed result cache that replays
// responses for duplicate deliveries.
type CacheConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	ResultTTL     time.Duration
}

// GatewayConfig holds everything needed to authenticate inbound webhooks
// and call the payment gateway's verify endpoint.
type GatewayConfig struct {
	Name            string
	WebhookSecret   string
	SignatureHeader string
	TimestampHeader string
	MaxSkew         time.Duration
	VerifyURL       string
	VerifyTimeout   time.Duration
}

type TelemetryConfig struct {
	LogLevel      string
	OTelEndpoint  string
	EnableTracing bool
	EnableMetrics bool
	SampleRate    float64
}

type ServiceConfig struct {
	Name        string
	Version     string
	Environment string
}

const (
	defaultHTTPPort        = 8080
	defaultShutdownGrace   = 15
	defaultMigrationsPath  = "migrations"
	defaultAutoMigrate     = true
	defaultGatewayName     = "bitpay"
	defaultSignatureHeader = "X-Signature"
	defaultTimestampHeader = "X-Timestamp"
	defaultMaxSkewSeconds  = 300
	defaultVerifyTimeout   = 10 * time.Second
	defaultResultTTL       = time.Hour
	defaultServiceName     = "paygate-api"
	defaultServiceVersion  = "0.1.0"
	defaultEnvironment     = "development"
	defaultLogLevel        = "info"
	defaultOTelSampleRate  = 1.0
)

// Load reads configuration from environment variables, applying defaults when needed.
func Load() (*Config, error) {
	httpCfg, err := loadHTTPConfig()
	if err != nil {
		return nil, fmt.Errorf("loading HTTP config: %w", err)
	}

	dbCfg := loadDatabaseConfig()

	cacheCfg, err := loadCacheConfig()
	if err != nil {
		return nil, fmt.Errorf("loading cache config: %w", err)
	}

	gatewayCfg, err := loadGatewayConfig()
	if err != nil {
		return nil, fmt.Errorf("loading gateway config: %w", err)
	}

	telCfg, err := loadTelemetryConfig()
	if err != nil {
		return nil, fmt.Errorf("loading telemetry config: %w", err)
	}

	serviceCfg := loadServiceConfig()

	return &Config{
		HTTP:      httpCfg,
		Database:  dbCfg,
		Cache:     cacheCfg,
		Gateway:   gatewayCfg,
		Telemetry: telCfg,
		Service:   serviceCfg,
	}, nil
}

func loadHTTPConfig() (HTTPConfig, error) {
	port := defaultHTTPPort
	if value, ok := os.LookupEnv("API_HTTP_PORT"); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return HTTPConfig{}, fmt.Errorf("invalid API_HTTP_PORT: %w", err)
		}
		port = parsed
	}

	shutdownGrace := defaultShutdownGrace
	if value, ok := os.LookupEnv("API_SHUTDOWN_GRACE_SECONDS"); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return HTTPConfig{}, fmt.Errorf("invalid API_SHUTDOWN_GRACE_SECONDS: %w", err)
		}
		shutdownGrace = parsed
	}

	return HTTPConfig{
		Port:          port,
		ShutdownGrace: shutdownGrace,
	}, nil
}

func loadDatabaseConfig() DatabaseConfig {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		databaseURL = buildDatabaseURL()
	}

	autoMigrate := defaultAutoMigrate
	if value, ok := os.LookupEnv("AUTO_MIGRATE"); ok {
		autoMigrate = value == "true"
	}

	migrationsPath := getEnvOrDefault("MIGRATIONS_PATH", defaultMigrationsPath)

	return DatabaseConfig{
		URL:            databaseURL,
		AutoMigrate:    autoMigrate,
		MigrationsPath: migrationsPath,
	}
}

func loadCacheConfig() (CacheConfig, error) {
	redisDB := 0
	if value, ok := os.LookupEnv("REDIS_DB"); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return CacheConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		redisDB = parsed
	}

	resultTTL := defaultResultTTL
	if value, ok := os.LookupEnv("RESULT_CACHE_TTL_SECONDS"); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return CacheConfig{}, fmt.Errorf("invalid RESULT_CACHE_TTL_SECONDS: %w", err)
		}
		resultTTL = time.Duration(parsed) * time.Second
	}

	return CacheConfig{
		RedisAddr:     getEnvOrDefault("REDIS_ADDR", ""),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),
		RedisDB:       redisDB,
		ResultTTL:     resultTTL,
	}, nil
}

func loadGatewayConfig() (GatewayConfig, error) {
	maxSkew := defaultMaxSkewSeconds
	if value, ok := os.LookupEnv("PAY_SIG_MAX_SKEW_SECONDS"); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return GatewayConfig{}, fmt.Errorf("invalid PAY_SIG_MAX_SKEW_SECONDS: %w", err)
		}
		maxSkew = parsed
	}

	verifyTimeout := defaultVerifyTimeout
	if value, ok := os.LookupEnv("GATEWAY_VERIFY_TIMEOUT_SECONDS"); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return GatewayConfig{}, fmt.Errorf("invalid GATEWAY_VERIFY_TIMEOUT_SECONDS: %w", err)
		}
		verifyTimeout = time.Duration(parsed) * time.Second
	}

	cfg := GatewayConfig{
		Name:            getEnvOrDefault("PAYMENT_GATEWAY", defaultGatewayName),
		WebhookSecret:   os.Getenv("GATEWAY_WEBHOOK_SECRET"),
		SignatureHeader: getEnvOrDefault("GATEWAY_SIGNATURE_HEADER", defaultSignatureHeader),
		TimestampHeader: getEnvOrDefault("GATEWAY_TIMESTAMP_HEADER", defaultTimestampHeader),
		MaxSkew:         time.Duration(maxSkew) * time.Second,
		VerifyURL:       getEnvOrDefault("GATEWAY_VERIFY_URL", "https://bitpay.example/verify"),
		VerifyTimeout:   verifyTimeout,
	}

	if err := cfg.validateVerifyURL(); err != nil {
		return GatewayConfig{}, err
	}

	return cfg, nil
}

// validateVerifyURL rejects verify endpoints that are not HTTPS with a host,
// so a misconfigured gateway URL fails at startup rather than on the first
// verify request.
func (g GatewayConfig) validateVerifyURL() error {
	parsed, err := url.Parse(g.VerifyURL)
	if err != nil {
		return fmt.Errorf("invalid GATEWAY_VERIFY_URL: %w", err)
	}
	if parsed.Scheme != "https" {
		return fmt.Errorf("invalid GATEWAY_VERIFY_URL %q: scheme must be https", g.VerifyURL)
	}
	if parsed.Host == "" {
		return fmt.Errorf("invalid GATEWAY_VERIFY_URL %q: missing host", g.VerifyURL)
	}
	return nil
}

func loadTelemetryConfig() (TelemetryConfig, error) {
	logLevel := getEnvOrDefault("LOG_LEVEL", defaultLogLevel)
	otelEndpoint := getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	enableTracing := getBoolEnv("OTEL_ENABLE_TRACING", true)
	enableMetrics := getBoolEnv("OTEL_ENABLE_METRICS", true)

	sampleRate := defaultOTelSampleRate
	if value, ok := os.LookupEnv("OTEL_SAMPLE_RATE"); ok {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return TelemetryConfig{}, fmt.Errorf("invalid OTEL_SAMPLE_RATE: %w", err)
		}
		sampleRate = parsed
	}

	return TelemetryConfig{
		LogLevel:      logLevel,
		OTelEndpoint:  otelEndpoint,
		EnableTracing: enableTracing,
		EnableMetrics: enableMetrics,
		SampleRate:    sampleRate,
	}, nil
}

func loadServiceConfig() ServiceConfig {
	return ServiceConfig{
		Name:        getEnvOrDefault("API_SERVICE_NAME", defaultServiceName),
		Version:     getEnvOrDefault("SERVICE_VERSION", defaultServiceVersion),
		Environment: getEnvOrDefault("ENVIRONMENT", defaultEnvironment),
	}
}

func buildDatabaseURL() string {
	host := getEnvOrDefault("DB_HOST", "localhost")
	port := getEnvOrDefault("DB_PORT", "5432")
	user := getEnvOrDefault("DB_USER", "postgres")
	password := getEnvOrDefault("DB_PASSWORD", "postgres")
	dbName := getEnvOrDefault("DB_NAME", "paygate")
	sslMode := getEnvOrDefault("DB_SSLMODE", "disable")

	maxConns := getEnvOrDefault("DB_MAX_CONNS", "25")
	minConns := getEnvOrDefault("DB_MIN_CONNS", "5")
	maxLifetime := getEnvOrDefault("DB_MAX_CONN_LIFETIME", "5m")

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s&pool_max_conns=%s&pool_min_conns=%s&pool_max_conn_lifetime=%s",
		user, password, host, port, dbName, sslMode, maxConns, minConns, maxLifetime,
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		return value == "true"
	}
	return defaultValue
}

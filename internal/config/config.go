package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

type Config struct {
	// Storage backends
	CredentialStore  string
	MetricsStore     string
	StoreDatabaseURL string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	MetricsRetention time.Duration

	// Service addresses
	NatsURL    string
	HTTPPort   string
	HealthPort string
	GRPCPort   string

	// Credential protection
	EncryptionKey   string
	BcryptCost      int
	SSLLocalAliases []string

	// Probe and batch settings
	ProbeTimeout      time.Duration
	BatchTimeout      time.Duration
	LatencyRounds     int
	LoadConcurrency   int
	LoadDuration      time.Duration
	TopQueriesLimit   int
	RecorderQueueSize int
	Region            string

	// Scheduling
	ScheduleInterval time.Duration
	ScheduleKinds    []string

	// Logging
	LogLevel  string
	LogFormat string

	SeedFile string

	// EnvFile is the .env file that was loaded, empty when none was found.
	EnvFile string
}

var envPaths = []string{
	".env",
	"../.env",
	"/app/.env", // Docker
}

// Load reads the first .env file found, then the process environment.
// Variables already set in the environment win over the file.
func Load() (*Config, error) {
	envFile := ""
	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			envFile = path
			break
		}
	}

	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}
	cfg.EnvFile = envFile

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv parses the environment without validating cross-field rules.
func FromEnv() (*Config, error) {
	cfg := &Config{
		CredentialStore:  getEnvOrDefault("CREDENTIAL_STORE", StoreMemory),
		MetricsStore:     getEnvOrDefault("METRICS_STORE", StoreMemory),
		StoreDatabaseURL: os.Getenv("STORE_DATABASE_URL"),
		RedisAddr:        getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),

		NatsURL:    os.Getenv("NATS_URL"),
		HTTPPort:   getEnvOrDefault("HTTP_PORT", "8090"),
		HealthPort: getEnvOrDefault("HEALTH_PORT", "8084"),
		GRPCPort:   getEnvOrDefault("GRPC_PORT", "50054"),

		EncryptionKey:   os.Getenv("CREDENTIAL_ENCRYPTION_KEY"),
		SSLLocalAliases: splitList(getEnvOrDefault("SSL_LOCAL_ALIASES", "localhost,127.0.0.1,::1,postgres")),

		Region:        os.Getenv("PROBER_REGION"),
		ScheduleKinds: splitList(getEnvOrDefault("SCHEDULE_KINDS", "connectivity,health")),

		LogLevel:  strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnvOrDefault("LOG_FORMAT", "json")),

		SeedFile: os.Getenv("SEED_FILE"),
	}

	ints := []struct {
		key  string
		def  int
		dest *int
	}{
		{"REDIS_DB", 0, &cfg.RedisDB},
		{"BCRYPT_COST", 12, &cfg.BcryptCost},
		{"LATENCY_ROUNDS", 5, &cfg.LatencyRounds},
		{"LOAD_CONCURRENCY", 10, &cfg.LoadConcurrency},
		{"TOP_QUERIES_LIMIT", 10, &cfg.TopQueriesLimit},
		{"RECORDER_QUEUE_SIZE", 1024, &cfg.RecorderQueueSize},
	}
	for _, i := range ints {
		v, err := getInt(i.key, i.def)
		if err != nil {
			return nil, err
		}
		*i.dest = v
	}

	durations := []struct {
		key  string
		def  string
		dest *time.Duration
	}{
		{"PROBE_TIMEOUT", "10s", &cfg.ProbeTimeout},
		{"BATCH_TIMEOUT", "60s", &cfg.BatchTimeout},
		{"LOAD_DURATION", "2s", &cfg.LoadDuration},
		{"METRICS_RETENTION", "2160h", &cfg.MetricsRetention},
		{"SCHEDULE_INTERVAL", "0", &cfg.ScheduleInterval},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(getEnvOrDefault(d.key, d.def))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.dest = v
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.EncryptionKey == "" {
		return fmt.Errorf("CREDENTIAL_ENCRYPTION_KEY is required")
	}

	switch c.CredentialStore {
	case StoreMemory, StorePostgres:
	default:
		return fmt.Errorf("CREDENTIAL_STORE must be memory or postgres, got %q", c.CredentialStore)
	}

	switch c.MetricsStore {
	case StoreMemory, StorePostgres, StoreRedis:
	default:
		return fmt.Errorf("METRICS_STORE must be memory, postgres or redis, got %q", c.MetricsStore)
	}

	if (c.CredentialStore == StorePostgres || c.MetricsStore == StorePostgres) && c.StoreDatabaseURL == "" {
		return fmt.Errorf("STORE_DATABASE_URL is required when a store is postgres")
	}
	if c.MetricsStore == StoreRedis && c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required when METRICS_STORE is redis")
	}

	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 31")
	}

	positive := map[string]time.Duration{
		"PROBE_TIMEOUT":     c.ProbeTimeout,
		"BATCH_TIMEOUT":     c.BatchTimeout,
		"LOAD_DURATION":     c.LoadDuration,
		"METRICS_RETENTION": c.MetricsRetention,
	}
	for name, value := range positive {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	counts := map[string]int{
		"LATENCY_ROUNDS":      c.LatencyRounds,
		"LOAD_CONCURRENCY":    c.LoadConcurrency,
		"TOP_QUERIES_LIMIT":   c.TopQueriesLimit,
		"RECORDER_QUEUE_SIZE": c.RecorderQueueSize,
	}
	for name, value := range counts {
		if value < 1 {
			return fmt.Errorf("%s must be at least 1", name)
		}
	}

	if c.ScheduleInterval < 0 || (c.ScheduleInterval > 0 && c.ScheduleInterval < time.Second) {
		return fmt.Errorf("SCHEDULE_INTERVAL must be 0 or at least 1 second")
	}
	if c.ScheduleInterval > 0 && len(c.ScheduleKinds) == 0 {
		return fmt.Errorf("SCHEDULE_KINDS is required when SCHEDULE_INTERVAL is set")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be debug, info, warn or error, got %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.LogFormat)
	}

	required := map[string]string{
		"HTTP_PORT":   c.HTTPPort,
		"HEALTH_PORT": c.HealthPort,
		"GRPC_PORT":   c.GRPCPort,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	return nil
}

// Helper function for defaults
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/fx"
)

// Config carries the environment-driven settings for the audit service.
type Config struct {
	Environment string
	HTTPAddr    string
	DatabaseDSN string

	// Audit pipeline behaviour.
	AuditBestEffort bool
	RuleCacheTTL    time.Duration

	// Vocabulary allow-lists enforced at rule-configuration time.
	AllowedActions     []string
	AllowedEntityTypes []string

	// Outbound delivery.
	DispatchTimeout   time.Duration
	DispatchQueueSize int
	SMTPAddr          string
	SMTPFrom          string

	// Observability.
	ServiceName      string
	ServiceVersion   string
	TracingEnabled   bool
	TracingEndpoint  string
	TracingProtocol  string
	TracingSampling  float64
	StatsTimezone    string
	RateLimitPerMin  int
	RequestBodyLimit int64
}

// Load reads configuration from the process environment.
func Load() (Config, error) {
	cfg := Config{
		Environment:        getEnv("STRIDE_ENV", "development"),
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		DatabaseDSN:        getEnv("DATABASE_DSN", ""),
		AuditBestEffort:    getBool("AUDIT_BEST_EFFORT", false),
		RuleCacheTTL:       getDuration("RULE_CACHE_TTL", 3*time.Second),
		AllowedActions:     getList("AUDIT_ACTIONS", defaultActions),
		AllowedEntityTypes: getList("AUDIT_ENTITY_TYPES", defaultEntityTypes),
		DispatchTimeout:    getDuration("DISPATCH_TIMEOUT", 10*time.Second),
		DispatchQueueSize:  getInt("DISPATCH_QUEUE_SIZE", 256),
		SMTPAddr:           getEnv("SMTP_ADDR", ""),
		SMTPFrom:           getEnv("SMTP_FROM", "alerts@stride.local"),
		ServiceName:        getEnv("SERVICE_NAME", "stride"),
		ServiceVersion:     getEnv("SERVICE_VERSION", "dev"),
		TracingEnabled:     getBool("TRACING_ENABLED", false),
		TracingEndpoint:    getEnv("TRACING_ENDPOINT", ""),
		TracingProtocol:    getEnv("TRACING_PROTOCOL", "http"),
		TracingSampling:    getFloat("TRACING_SAMPLING", 1.0),
		StatsTimezone:      getEnv("STATS_TIMEZONE", "UTC"),
		RateLimitPerMin:    getInt("RATE_LIMIT_PER_MIN", 600),
		RequestBodyLimit:   int64(getInt("REQUEST_BODY_LIMIT", 1<<20)),
	}
	return cfg, nil
}

var defaultActions = []string{
	"CREATE", "UPDATE", "DELETE",
	"LOGIN", "LOGIN_FAILED", "EXPORT_CSV",
}

var defaultEntityTypes = []string{
	"Objective", "Rock", "Sprint", "Story", "Task", "User",
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}

func getInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func getFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return value
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return value
}

func getList(key string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	if len(values) == 0 {
		return fallback
	}
	return values
}

// Module provides configuration to the fx graph.
var Module = fx.Module("config",
	fx.Provide(Load),
)

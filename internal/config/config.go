package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the pipeline.
type Config struct {
	App       AppConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Logger    LoggerConfig
	Auth      AuthConfig
	Kafka     KafkaConfig
	GLPI      GLPIConfig
	Gateway   GatewayConfig
	SLA       SLAConfig
	Dialog    DialogConfig
	Dashboard DashboardConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines service-token verification parameters for the
// operator-facing endpoints.
type AuthConfig struct {
	JWTSecret string
}

// KafkaConfig holds broker connection values.
type KafkaConfig struct {
	Brokers              []string
	ConsumerGroup        string
	ReconnectDelaySecond int
}

// GLPIConfig holds the external ticketing system's API parameters.
type GLPIConfig struct {
	BaseURL           string
	AppToken          string
	UserToken         string
	SessionTTLMinutes int
	TimeoutSeconds    int
}

// GatewayConfig holds the chat-gateway connection parameters.
type GatewayConfig struct {
	URL                   string
	APIKey                string
	ReconnectDelaySeconds int
	IntegrityThreshold    int
	PairingTimeoutSeconds int
}

// SLAConfig controls the escalation monitor.
type SLAConfig struct {
	PollIntervalMinutes int
}

// DialogConfig controls the conversation state machine.
type DialogConfig struct {
	ActiveTTLHours   int
	AwaitingTTLHours int
	MinProblemLength int
}

// DashboardConfig holds the live dashboard push listener address.
type DashboardConfig struct {
	Addr string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "intake-pipeline"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", "dev-secret"),
		},
		Kafka: KafkaConfig{
			Brokers:              splitCSV(getEnv("KAFKA_BROKERS", "localhost:9092")),
			ConsumerGroup:        getEnv("KAFKA_CONSUMER_GROUP", "intake-pipeline"),
			ReconnectDelaySecond: getEnvAsInt("KAFKA_RECONNECT_DELAY_SECONDS", 5),
		},
		GLPI: GLPIConfig{
			BaseURL:           getEnv("GLPI_BASE_URL", "http://localhost/apirest.php"),
			AppToken:          os.Getenv("GLPI_APP_TOKEN"),
			UserToken:         os.Getenv("GLPI_USER_TOKEN"),
			SessionTTLMinutes: getEnvAsInt("GLPI_SESSION_TTL_MINUTES", 55),
			TimeoutSeconds:    getEnvAsInt("GLPI_TIMEOUT_SECONDS", 15),
		},
		Gateway: GatewayConfig{
			URL:                   getEnv("GATEWAY_URL", "ws://localhost:9001/ws"),
			APIKey:                os.Getenv("GATEWAY_API_KEY"),
			ReconnectDelaySeconds: getEnvAsInt("GATEWAY_RECONNECT_DELAY_SECONDS", 5),
			IntegrityThreshold:    getEnvAsInt("GATEWAY_INTEGRITY_THRESHOLD", 5),
			PairingTimeoutSeconds: getEnvAsInt("GATEWAY_PAIRING_TIMEOUT_SECONDS", 30),
		},
		SLA: SLAConfig{
			PollIntervalMinutes: getEnvAsInt("SLA_POLL_INTERVAL_MINUTES", 5),
		},
		Dialog: DialogConfig{
			ActiveTTLHours:   getEnvAsInt("DIALOG_ACTIVE_TTL_HOURS", 2),
			AwaitingTTLHours: getEnvAsInt("DIALOG_AWAITING_TTL_HOURS", 24),
			MinProblemLength: getEnvAsInt("DIALOG_MIN_PROBLEM_LENGTH", 10),
		},
		Dashboard: DashboardConfig{
			Addr: getEnv("DASHBOARD_ADDR", "0.0.0.0:8081"),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// ReconnectDelay returns the fixed delay between broker reconnect attempts.
func (k KafkaConfig) ReconnectDelay() time.Duration {
	if k.ReconnectDelaySecond <= 0 {
		return 5 * time.Second
	}
	return time.Duration(k.ReconnectDelaySecond) * time.Second
}

// SessionTTL returns the cached external-session lifetime.
func (g GLPIConfig) SessionTTL() time.Duration {
	if g.SessionTTLMinutes <= 0 {
		return 55 * time.Minute
	}
	return time.Duration(g.SessionTTLMinutes) * time.Minute
}

// Timeout returns the HTTP client timeout for ticketing calls.
func (g GLPIConfig) Timeout() time.Duration {
	if g.TimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(g.TimeoutSeconds) * time.Second
}

// ReconnectDelay returns the fixed delay before the connector redials.
func (g GatewayConfig) ReconnectDelay() time.Duration {
	if g.ReconnectDelaySeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(g.ReconnectDelaySeconds) * time.Second
}

// PairingTimeout bounds how long a pairing-code request waits for the gateway.
func (g GatewayConfig) PairingTimeout() time.Duration {
	if g.PairingTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(g.PairingTimeoutSeconds) * time.Second
}

// PollInterval returns the escalation monitor tick interval.
func (s SLAConfig) PollInterval() time.Duration {
	if s.PollIntervalMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(s.PollIntervalMinutes) * time.Minute
}

// ActiveTTL is the session TTL while the requester is mid-dialog.
func (d DialogConfig) ActiveTTL() time.Duration {
	if d.ActiveTTLHours <= 0 {
		return 2 * time.Hour
	}
	return time.Duration(d.ActiveTTLHours) * time.Hour
}

// AwaitingTTL is the longer session TTL once a ticket awaits assignment.
func (d DialogConfig) AwaitingTTL() time.Duration {
	if d.AwaitingTTLHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(d.AwaitingTTLHours) * time.Hour
}

func splitCSV(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/opsdesk-io/servicedesk/internal/domain"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App       AppConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Logger    LoggerConfig
	SLA       SLAConfig
	Rules     RulesConfig
	Teams     TeamsConfig
	Ingest    IngestConfig
	SMTP      SMTPConfig
	Graph     GraphConfig
	Kafka     KafkaConfig
	Scheduler SchedulerConfig
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

// PostgresConfig holds DB connection values. An empty DSN selects the
// in-memory store.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values. An empty Addr disables the
// ingestion dedup cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// SLAConfig holds the per-priority response and resolution windows.
type SLAConfig struct {
	HighResponseHours     int
	HighResolutionHours   int
	MediumResponseHours   int
	MediumResolutionHours int
	LowResponseHours      int
	LowResolutionHours    int
	WarningThreshold      float64
}

// RulesConfig points at an optional classification rules file. An empty
// path selects the built-in rule set.
type RulesConfig struct {
	Path string
}

// TeamsConfig maps ticket categories to resolver teams.
type TeamsConfig struct {
	Routes   map[domain.Category]domain.Team
	Fallback domain.Team
}

// IngestConfig selects and configures the inbound message source.
type IngestConfig struct {
	// Source is "file" or "graph".
	Source        string
	FilePath      string
	DedupTTLHours int
}

// SMTPConfig configures the outbound mail relay. An empty Host selects
// the log-only notifier.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// GraphConfig configures the Microsoft Graph mailbox source.
type GraphConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	Mailbox      string
	BaseURL      string
}

// KafkaConfig configures the optional event stream bridge. No brokers
// means the bridge stays off.
type KafkaConfig struct {
	Brokers string
	Topic   string
}

// SchedulerConfig controls the background ingestion and SLA sweep loops.
type SchedulerConfig struct {
	Enabled               bool
	IngestIntervalSeconds int
	SweepIntervalSeconds  int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "servicedesk"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		SLA: SLAConfig{
			HighResponseHours:     getEnvAsInt("SLA_HIGH_RESPONSE_HOURS", 1),
			HighResolutionHours:   getEnvAsInt("SLA_HIGH_RESOLUTION_HOURS", 4),
			MediumResponseHours:   getEnvAsInt("SLA_MEDIUM_RESPONSE_HOURS", 4),
			MediumResolutionHours: getEnvAsInt("SLA_MEDIUM_RESOLUTION_HOURS", 24),
			LowResponseHours:      getEnvAsInt("SLA_LOW_RESPONSE_HOURS", 24),
			LowResolutionHours:    getEnvAsInt("SLA_LOW_RESOLUTION_HOURS", 72),
			WarningThreshold:      getEnvAsFloat("SLA_WARNING_THRESHOLD", 0.8),
		},
		Rules: RulesConfig{
			Path: getEnv("CLASSIFIER_RULES_PATH", ""),
		},
		Teams: loadTeams(),
		Ingest: IngestConfig{
			Source:        getEnv("INGEST_SOURCE", "file"),
			FilePath:      getEnv("INGEST_FILE_PATH", "emails.txt"),
			DedupTTLHours: getEnvAsInt("INGEST_DEDUP_TTL_HOURS", 720),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     getEnv("SMTP_FROM", "servicedesk@example.com"),
		},
		Graph: GraphConfig{
			TenantID:     os.Getenv("GRAPH_TENANT_ID"),
			ClientID:     os.Getenv("GRAPH_CLIENT_ID"),
			ClientSecret: os.Getenv("GRAPH_CLIENT_SECRET"),
			Mailbox:      os.Getenv("GRAPH_MAILBOX"),
			BaseURL:      getEnv("GRAPH_BASE_URL", "https://graph.microsoft.com/v1.0"),
		},
		Kafka: KafkaConfig{
			Brokers: getEnv("KAFKA_BROKERS", ""),
			Topic:   getEnv("KAFKA_TOPIC", "servicedesk.ticket-events"),
		},
		Scheduler: SchedulerConfig{
			Enabled:               getEnvAsBool("SCHEDULER_ENABLED", false),
			IngestIntervalSeconds: getEnvAsInt("SCHEDULER_INGEST_INTERVAL_SECONDS", 60),
			SweepIntervalSeconds:  getEnvAsInt("SCHEDULER_SWEEP_INTERVAL_SECONDS", 300),
		},
	}

	if err := cfg.SLA.Policy().Validate(); err != nil {
		return nil, fmt.Errorf("invalid SLA configuration: %w", err)
	}
	if cfg.Ingest.Source != "file" && cfg.Ingest.Source != "graph" {
		return nil, fmt.Errorf("invalid INGEST_SOURCE %q: must be \"file\" or \"graph\"", cfg.Ingest.Source)
	}

	return cfg, nil
}

func loadTeams() TeamsConfig {
	return TeamsConfig{
		Routes: map[domain.Category]domain.Team{
			domain.CategoryAccess: {
				Name:  "Identity & Access",
				Email: getEnv("TEAM_ACCESS_EMAIL", "identity-team@example.com"),
			},
			domain.CategoryNetwork: {
				Name:  "Network Operations",
				Email: getEnv("TEAM_NETWORK_EMAIL", "network-team@example.com"),
			},
			domain.CategoryInfrastructure: {
				Name:  "Infrastructure",
				Email: getEnv("TEAM_INFRASTRUCTURE_EMAIL", "infra-team@example.com"),
			},
			domain.CategoryEmail: {
				Name:  "Messaging",
				Email: getEnv("TEAM_EMAIL_EMAIL", "messaging-team@example.com"),
			},
			domain.CategorySoftware: {
				Name:  "Desktop Support",
				Email: getEnv("TEAM_SOFTWARE_EMAIL", "desktop-team@example.com"),
			},
		},
		Fallback: domain.Team{
			Name:  "Service Desk",
			Email: getEnv("TEAM_FALLBACK_EMAIL", "helpdesk@example.com"),
		},
	}
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

// Policy builds the SLA policy from the configured windows.
func (s SLAConfig) Policy() domain.SlaPolicy {
	return domain.SlaPolicy{
		Windows: map[domain.TicketPriority]domain.SlaWindows{
			domain.TicketPriorityHigh: {
				Response:   time.Duration(s.HighResponseHours) * time.Hour,
				Resolution: time.Duration(s.HighResolutionHours) * time.Hour,
			},
			domain.TicketPriorityMedium: {
				Response:   time.Duration(s.MediumResponseHours) * time.Hour,
				Resolution: time.Duration(s.MediumResolutionHours) * time.Hour,
			},
			domain.TicketPriorityLow: {
				Response:   time.Duration(s.LowResponseHours) * time.Hour,
				Resolution: time.Duration(s.LowResolutionHours) * time.Hour,
			},
		},
		WarningThreshold: s.WarningThreshold,
	}
}

// DedupTTL returns how long processed message fingerprints are cached.
func (i IngestConfig) DedupTTL() time.Duration {
	return time.Duration(i.DedupTTLHours) * time.Hour
}

// Enabled reports whether an SMTP relay is configured.
func (s SMTPConfig) Enabled() bool {
	return s.Host != ""
}

// Configured reports whether all Graph credentials are present.
func (g GraphConfig) Configured() bool {
	return g.TenantID != "" && g.ClientID != "" && g.ClientSecret != "" && g.Mailbox != ""
}

// Enabled reports whether the event stream bridge should start.
func (k KafkaConfig) Enabled() bool {
	return k.Brokers != ""
}

// BrokerList splits the comma-separated broker string.
func (k KafkaConfig) BrokerList() []string {
	parts := strings.Split(k.Brokers, ",")
	brokers := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	return brokers
}

// IngestInterval returns the delay between ingestion cycles.
func (s SchedulerConfig) IngestInterval() time.Duration {
	return time.Duration(s.IngestIntervalSeconds) * time.Second
}

// SweepInterval returns the delay between SLA sweeps.
func (s SchedulerConfig) SweepInterval() time.Duration {
	return time.Duration(s.SweepIntervalSeconds) * time.Second
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

func getEnvAsFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
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

package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	AppName                       string `env:"APP_NAME" envDefault:"fern-api"`
	Version                       string `env:"APP_VERSION" envDefault:"dev"`
	Port                          int    `env:"PORT" envDefault:"3000"`
	LogLevel                      string `env:"LOG_LEVEL" envDefault:"info"`
	PrettyLogs                    bool   `env:"PRETTY_LOGS" envDefault:"false"`
	HttpServerWriteTimeoutSeconds int    `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" envDefault:"360"`
	HttpServerReadTimeoutSeconds  int    `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" envDefault:"30"`
	HttpServerIdleTimeoutSeconds  int    `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" envDefault:"60"`
	// Upload size limit in echo's BodyLimit format
	HttpServerBodyLimit string   `env:"HTTP_SERVER_BODY_LIMIT" envDefault:"10M"`
	AllowOrigins        []string `env:"HTTP_SERVER_ALLOW_ORIGINS" envDefault:"*"`
	StartupMaxAttempts  int      `env:"STARTUP_MAX_ATTEMPTS" envDefault:"5"`

	// Database host
	DatabaseHost string `env:"DB_HOST" envDefault:"localhost"`
	// Database port
	DatabasePort string `env:"DB_PORT" envDefault:"5432"`
	// Database user
	DatabaseUserName string `env:"DB_USER_NAME" envDefault:""`
	// Database user password
	DatabasePassword string `env:"DB_PASSWORD" envDefault:""`
	// Database name
	DatabaseName string `env:"DB_NAME" envDefault:"fern"`
	// Database SSL mode
	DatabaseSSLMode         string        `env:"DB_SSL_MODE" envDefault:"disable"`
	DatabaseMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DatabaseMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DatabaseConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"5m"`
	// Migration Folder Path
	DatabaseMigrationFolderPath string `env:"DB_MIGRATION_FOLDER_PATH" envDefault:"db/pg"`
	// Database Migration Version, 0 migrates to latest
	DatabaseMigrationVersion uint `env:"DB_MIGRATION_VERSION" envDefault:"0"`
	// Database Migration Force
	DatabaseMigrationForce int `env:"DB_MIGRATION_FORCE" envDefault:"0"`
	// Database Migration Auto Rollback
	DatabaseMigrationAutoRollback bool `env:"DB_MIGRATION_AUTO_ROLLBACK" envDefault:"true"`

	// Auth Enabled - when false, X-Owner-ID and X-User-ID headers identify the caller
	AuthEnabled   bool   `env:"AUTH_ENABLED" envDefault:"false"`
	AuthIssuerURL string `env:"AUTH_ISSUER_URL" envDefault:""`
	AuthClientID  string `env:"AUTH_CLIENT_ID" envDefault:""`

	// Redis backs the distributed document lock. When disabled an in-process lock is used.
	RedisEnabled    bool          `env:"REDIS_ENABLED" envDefault:"false"`
	RedisHost       string        `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort       int           `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword   string        `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB         int           `env:"REDIS_DB" envDefault:"0"`
	LockKeyPrefix   string        `env:"LOCK_KEY_PREFIX" envDefault:"fern:lock:"`
	LockTTL         time.Duration `env:"LOCK_TTL" envDefault:"30s"`
	LockWaitTimeout time.Duration `env:"LOCK_WAIT_TIMEOUT" envDefault:"10s"`

	// Kafka audit events
	KafkaEnabled      bool          `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers      []string      `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaAuditTopic   string        `env:"KAFKA_AUDIT_TOPIC" envDefault:"fern-audit"`
	KafkaBatchSize    int           `env:"KAFKA_BATCH_SIZE" envDefault:"100"`
	KafkaBatchTimeout time.Duration `env:"KAFKA_BATCH_TIMEOUT" envDefault:"100ms"`
	KafkaRequiredAcks int           `env:"KAFKA_REQUIRED_ACKS" envDefault:"-1"`
	KafkaCompression  string        `env:"KAFKA_COMPRESSION" envDefault:"snappy"`

	// Graph topology projection
	GraphEnabled  bool   `env:"GRAPH_ENABLED" envDefault:"false"`
	GraphHost     string `env:"GRAPH_HOST" envDefault:"localhost"`
	GraphPort     int    `env:"GRAPH_PORT" envDefault:"7687"`
	GraphUsername string `env:"GRAPH_USERNAME" envDefault:"neo4j"`
	GraphPassword string `env:"GRAPH_PASSWORD" envDefault:""`

	// Intake tuning
	IntakeWorkerCount   int           `env:"INTAKE_WORKER_COUNT" envDefault:"8"`
	IntakeBatchTimeout  time.Duration `env:"INTAKE_BATCH_TIMEOUT" envDefault:"5m"`
	DecisionWorkerCount int           `env:"DECISION_WORKER_COUNT" envDefault:"4"`
	DecisionMaxAttempts int           `env:"DECISION_MAX_ATTEMPTS" envDefault:"3"`
	MatchMinConfidence  float64       `env:"MATCH_MIN_CONFIDENCE" envDefault:"0.6"`
	MatchMaxMatches     int           `env:"MATCH_MAX_MATCHES" envDefault:"5"`
	MatchMergeThreshold float64       `env:"MATCH_MERGE_THRESHOLD" envDefault:"0.8"`

	// Tracing settings
	// Enable OTLP tracing export
	OTLPEnabled bool `env:"OTLP_ENABLED" envDefault:"false"`
	// OTLP collector endpoint
	OTLPEndpoint string `env:"OTLP_ENDPOINT" envDefault:"localhost:4317"`
	// OTLP protocol (grpc or http)
	OTLPProtocol string `env:"OTLP_PROTOCOL" envDefault:"grpc"`
	// Disable TLS for OTLP (for local development)
	OTLPInsecure bool `env:"OTLP_INSECURE" envDefault:"true"`
}

// Load reads the optional env files and parses the environment into a Config
func Load(envFiles ...string) (*Config, error) {
	existing := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			existing = append(existing, file)
		}
	}
	if len(existing) > 0 {
		if err := godotenv.Load(existing...); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that depend on each other
func (c *Config) Validate() error {
	var errs []error
	if c.AuthEnabled && (c.AuthIssuerURL == "" || c.AuthClientID == "") {
		errs = append(errs, errors.New("AUTH_ISSUER_URL and AUTH_CLIENT_ID are required when AUTH_ENABLED is true"))
	}
	if c.IntakeWorkerCount < 1 {
		errs = append(errs, errors.New("INTAKE_WORKER_COUNT must be at least 1"))
	}
	if c.DecisionWorkerCount < 1 {
		errs = append(errs, errors.New("DECISION_WORKER_COUNT must be at least 1"))
	}
	if c.IntakeBatchTimeout <= 0 {
		errs = append(errs, errors.New("INTAKE_BATCH_TIMEOUT must be positive"))
	}
	switch strings.ToLower(c.OTLPProtocol) {
	case "grpc", "http":
	default:
		errs = append(errs, errors.New("OTLP_PROTOCOL must be grpc or http"))
	}
	return errors.Join(errs...)
}

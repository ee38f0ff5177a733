package config

import (
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	AppName                       string        `env:"APP_NAME" env-default:"clover-api"`
	Port                          int           `env:"PORT" env-default:"3010"`
	LogLevel                      string        `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool          `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int           `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"30"`
	HttpServerReadTimeoutSeconds  int           `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int           `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"60"`
	MaxHeaderBytes                int           `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"`
	AllowOrigins                  []string      `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods                  []string      `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST"`
	StartupMaxAttempts            int           `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`
	ShutdownTimeout               time.Duration `env:"SHUTDOWN_TIMEOUT" env-default:"15s"`

	// PostgreSQL
	DatabaseDriver                string        `env:"DB_DRIVER" env-default:"postgres"`
	DatabaseHost                  string        `env:"DB_HOST" env-default:"localhost"`
	DatabasePort                  string        `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName              string        `env:"DB_USER_NAME" env-default:""`
	DatabasePassword              string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName                  string        `env:"DB_NAME" env-default:"clover"`
	DatabaseSSLMode               string        `env:"DB_SSL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns          int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	DatabaseMaxIdleConns          int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime       time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"5m"`
	DatabaseMigrationFolderPath   string        `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	DatabaseMigrationVersion      uint          `env:"DB_MIGRATION_VERSION" env-default:"0"`
	DatabaseMigrationForce        int           `env:"DB_MIGRATION_FORCE" env-default:"0"`
	DatabaseMigrationAutoRollback bool          `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`

	// Redis (lease backend)
	RedisAddr     string `env:"REDIS_ADDR" env-default:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" env-default:""`
	RedisDB       int    `env:"REDIS_DB" env-default:"0"`

	// Lease
	LeaseBackend string        `env:"LEASE_BACKEND" env-default:"memory"`
	LeaseTTL     time.Duration `env:"LEASE_TTL" env-default:"2m"`

	// Kafka producer
	KafkaEnabled      bool     `env:"KAFKA_ENABLED" env-default:"false"`
	KafkaBrokers      []string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaOutputTopic  string   `env:"KAFKA_OUTPUT_TOPIC" env-default:"resource-events"`
	KafkaBatchSize    int      `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout int      `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	KafkaRequiredAcks int      `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	KafkaCompression  string   `env:"KAFKA_COMPRESSION" env-default:"snappy"`

	// S3 archive of removed resources
	ArchiveEnabled  bool   `env:"ARCHIVE_ENABLED" env-default:"false"`
	ArchiveBucket   string `env:"ARCHIVE_BUCKET" env-default:""`
	ArchivePrefix   string `env:"ARCHIVE_PREFIX" env-default:"consolidations"`
	ArchiveRegion   string `env:"ARCHIVE_REGION" env-default:"us-east-1"`
	ArchiveEndpoint string `env:"ARCHIVE_ENDPOINT" env-default:""`

	// Tracing
	TracingExporter string        `env:"TRACING_EXPORTER" env-default:"none"`
	OTLPEndpoint    string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT" env-default:"localhost:4317"`
	OTLPProtocol    string        `env:"OTEL_EXPORTER_OTLP_PROTOCOL" env-default:"grpc"`
	OTLPInsecure    bool          `env:"OTEL_EXPORTER_OTLP_INSECURE" env-default:"true"`
	OTLPTimeout     time.Duration `env:"OTEL_EXPORTER_OTLP_TIMEOUT" env-default:"10s"`

	// Scoring weights
	ScoreWeightChildRecord   float64  `env:"SCORE_WEIGHT_CHILD_RECORD" env-default:"3.0"`
	ScoreWeightSchema        float64  `env:"SCORE_WEIGHT_SCHEMA" env-default:"2.5"`
	ScoreWeightDocumentation float64  `env:"SCORE_WEIGHT_DOCUMENTATION" env-default:"15"`
	ScoreWeightActive        float64  `env:"SCORE_WEIGHT_ACTIVE" env-default:"10"`
	ScoreWeightBaseURL       float64  `env:"SCORE_WEIGHT_BASE_URL" env-default:"5"`
	ScoreWeightCanonicalName float64  `env:"SCORE_WEIGHT_CANONICAL_NAME" env-default:"5"`
	CanonicalNames           []string `env:"CANONICAL_NAMES"`

	// Consolidation policy
	ConsolidationStrictSchema  bool          `env:"CONSOLIDATION_STRICT_SCHEMA" env-default:"false"`
	ConsolidationTransactional bool          `env:"CONSOLIDATION_TRANSACTIONAL" env-default:"true"`
	ConsolidationStoreTimeout  time.Duration `env:"CONSOLIDATION_STORE_TIMEOUT" env-default:"5s"`
	DetectorPageSize           int           `env:"DETECTOR_PAGE_SIZE" env-default:"500"`
}

// Load reads an optional .env file and then binds the process environment onto Config.
func Load(files ...string) (*Config, error) {
	// a missing .env is normal outside local development
	_ = godotenv.Load(files...)

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

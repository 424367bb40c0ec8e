package config

import (
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	AppName                       string `env:"APP_NAME" env-default:"fern-ingest"`
	Port                          int    `env:"PORT" env-default:"3004"`
	LogLevel                      string `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool   `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int    `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerReadTimeoutSeconds  int    `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int    `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	MaxHeaderBytes                int    `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB

	// PostgreSQL (warehouse)
	DatabaseDriver                string        `env:"DB_DRIVER" env-default:"postgres"`
	DatabaseHost                  string        `env:"DB_HOST" env-default:"localhost"`
	DatabasePort                  string        `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName              string        `env:"DB_USER_NAME" env-default:""`
	DatabasePassword              string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName                  string        `env:"DB_NAME" env-default:"fern"`
	DatabaseSSLMode               string        `env:"DB_SSL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns          int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	DatabaseMaxIdleConns          int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime       time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	DatabaseMigrationFolderPath   string        `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	DatabaseMigrationVersion      int           `env:"DB_MIGRATION_VERSION" env-default:"0"`
	DatabaseMigrationForce        int           `env:"DB_MIGRATION_FORCE" env-default:"0"`
	DatabaseMigrationAutoRollback bool          `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`

	// Quality scoring
	QualityMinScore        float64 `env:"QC_MIN_SCORE" env-default:"75.0" validate:"gte=0,lte=100"`
	QualityHardFloor       float64 `env:"QC_HARD_FLOOR" env-default:"50.0" validate:"gte=0,lte=100"`
	QualityMaxNullPct      float64 `env:"QC_MAX_NULL_PCT" env-default:"5.0"`
	QualityFailNullPct     float64 `env:"QC_FAIL_NULL_PCT" env-default:"20.0"`
	QualityMaxDuplicatePct float64 `env:"QC_MAX_DUPLICATE_PCT" env-default:"1.0"`
	QualityMinDate         string  `env:"QC_MIN_DATE" env-default:"1970-01-01"`
	WeightCompleteness     float64 `env:"QC_WEIGHT_COMPLETENESS" env-default:"0.3"`
	WeightValidity         float64 `env:"QC_WEIGHT_VALIDITY" env-default:"0.3"`
	WeightConsistency      float64 `env:"QC_WEIGHT_CONSISTENCY" env-default:"0.3"`
	WeightUniqueness       float64 `env:"QC_WEIGHT_UNIQUENESS" env-default:"0.1"`

	// Loading
	LoadBatchSize      int           `env:"LOAD_BATCH_SIZE" env-default:"10000" validate:"gt=0"`
	LoadTxTimeout      time.Duration `env:"LOAD_TX_TIMEOUT" env-default:"5m"`
	DefaultGranularity string        `env:"DEFAULT_GRANULARITY" env-default:"DAILY"`
	DefaultSourceName  string        `env:"DEFAULT_SOURCE_NAME" env-default:"csv_file"`
	PipelineWorkers    int           `env:"PIPELINE_WORKER_COUNT" env-default:"4" validate:"gt=0"`

	// Gold refresh
	GoldRefreshConcurrent  bool          `env:"GOLD_REFRESH_CONCURRENT" env-default:"true"`
	GoldRefreshAfterLoad   bool          `env:"GOLD_REFRESH_AFTER_LOAD" env-default:"true"`
	GoldRefreshLockTTL     time.Duration `env:"GOLD_REFRESH_LOCK_TTL" env-default:"10m"`
	GoldRefreshLockTimeout time.Duration `env:"GOLD_REFRESH_LOCK_TIMEOUT" env-default:"5s"`

	// Redis (refresh serialization)
	RedisEnabled  bool   `env:"REDIS_ENABLED" env-default:"false"`
	RedisHost     string `env:"REDIS_HOST" env-default:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" env-default:""`
	RedisDB       int    `env:"REDIS_DB" env-default:"0"`

	// Kafka producer (lifecycle events)
	KafkaEnabled      bool     `env:"KAFKA_ENABLED" env-default:"false"`
	KafkaBrokers      []string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaOutputTopic  string   `env:"KAFKA_OUTPUT_TOPIC" env-default:"batch-events"`
	KafkaBatchSize    int      `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout int      `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	KafkaRequiredAcks int      `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	KafkaCompression  string   `env:"KAFKA_COMPRESSION" env-default:"snappy"`

	// Auth
	AuthEnabled   bool   `env:"AUTH_ENABLED" env-default:"false"`
	AuthIssuerURL string `env:"AUTH_ISSUER_URL" env-default:""`
	AuthClientID  string `env:"AUTH_CLIENT_ID" env-default:""`

	// Tracing
	TracingEnabled      bool   `env:"TRACING_ENABLED" env-default:"false"`
	TracingOTLPEndpoint string `env:"TRACING_OTLP_ENDPOINT" env-default:"localhost:4318"`
	TracingOTLPInsecure bool   `env:"TRACING_OTLP_INSECURE" env-default:"true"`
}

// Load reads .env if present, binds environment variables onto the config
// struct, and validates threshold sanity. The result is immutable by
// convention; components receive it at construction.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := ectoenv.BindEnv(cfg); err != nil {
		return nil, err
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

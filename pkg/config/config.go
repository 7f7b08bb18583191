package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Outbox       OutboxConfig
	Settlement   SettlementConfig
	RateLimit    RateLimitConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Settlement.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string `envconfig:"STOREFRONT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"STOREFRONT_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"STOREFRONT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"STOREFRONT_DB_DSN"`
	Driver string `envconfig:"STOREFRONT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"STOREFRONT_DB_HOST"`
	LegacyPort     int    `envconfig:"STOREFRONT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STOREFRONT_DB_USER"`
	LegacyPassword string `envconfig:"STOREFRONT_DB_PASSWORD"`
	LegacyName     string `envconfig:"STOREFRONT_DB_NAME"`
	LegacySSLMode  string `envconfig:"STOREFRONT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"STOREFRONT_DB_SLOW_QUERY" default:"500ms"`
}

// IsSQLite reports whether the sqlite driver was requested.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
	KeyPrefix    string        `envconfig:"STOREFRONT_REDIS_KEY_PREFIX" default:"sf"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"STOREFRONT_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"STOREFRONT_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"STOREFRONT_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	OrdersTopic           string `envconfig:"STOREFRONT_PUBSUB_ORDERS_TOPIC" default:"storefront-orders"`
	ProcurementTopic      string `envconfig:"STOREFRONT_PUBSUB_PROCUREMENT_TOPIC" default:"storefront-procurement"`
	AnalyticsSubscription string `envconfig:"STOREFRONT_PUBSUB_ANALYTICS_SUBSCRIPTION" default:"storefront-analytics"`
}

// BigQueryConfig names the warehouse tables fed by the analytics worker.
type BigQueryConfig struct {
	Dataset               string `envconfig:"STOREFRONT_BIGQUERY_DATASET"`
	SettlementEventsTable string `envconfig:"STOREFRONT_BIGQUERY_SETTLEMENT_EVENTS_TABLE" default:"settlement_events"`
	BatchSize             int    `envconfig:"STOREFRONT_BIGQUERY_BATCH_SIZE" default:"1"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"STOREFRONT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	MaxAttempts    int           `envconfig:"STOREFRONT_OUTBOX_MAX_ATTEMPTS" default:"10"`
	PollInterval   time.Duration `envconfig:"STOREFRONT_OUTBOX_POLL_INTERVAL" default:"500ms"`
	MaxBackoff     time.Duration `envconfig:"STOREFRONT_OUTBOX_MAX_BACKOFF" default:"10s"`
	PublishTimeout time.Duration `envconfig:"STOREFRONT_OUTBOX_PUBLISH_TIMEOUT" default:"15s"`

	ConsumerIdempotencyTTL time.Duration `envconfig:"STOREFRONT_OUTBOX_CONSUMER_IDEMPOTENCY_TTL" default:"168h"`
}

// SettlementConfig tunes the settlement pipeline and its follow-up tasks.
type SettlementConfig struct {
	Currency                string        `envconfig:"STOREFRONT_CURRENCY" default:"ZAR"`
	DefaultLocationID       string        `envconfig:"STOREFRONT_SETTLEMENT_DEFAULT_LOCATION_ID"`
	StockCommitAttempts     int           `envconfig:"STOREFRONT_SETTLEMENT_STOCK_COMMIT_ATTEMPTS" default:"3"`
	ImportVATReclaimPercent string        `envconfig:"STOREFRONT_IMPORT_VAT_RECLAIM_PERCENT" default:"100"`
	FollowUpConcurrency     int           `envconfig:"STOREFRONT_SETTLEMENT_FOLLOWUP_CONCURRENCY" default:"4"`
	FollowUpMaxAttempts     int           `envconfig:"STOREFRONT_SETTLEMENT_FOLLOWUP_MAX_ATTEMPTS" default:"8"`
	FollowUpBaseBackoff     time.Duration `envconfig:"STOREFRONT_SETTLEMENT_FOLLOWUP_BACKOFF" default:"30s"`
	FollowUpGraceWindow     time.Duration `envconfig:"STOREFRONT_SETTLEMENT_FOLLOWUP_GRACE" default:"10m"`
}

// DefaultLocation parses the configured fallback location, if any.
func (s SettlementConfig) DefaultLocation() (*uuid.UUID, error) {
	raw := strings.TrimSpace(s.DefaultLocationID)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", EnvSettlementDefaultLocation, err)
	}
	return &id, nil
}

// ReclaimPercent returns the configured import VAT reclaim share in percent.
func (s SettlementConfig) ReclaimPercent() decimal.Decimal {
	value, err := decimal.NewFromString(strings.TrimSpace(s.ImportVATReclaimPercent))
	if err != nil {
		return decimal.NewFromInt(100)
	}
	return value
}

func (s SettlementConfig) validate() error {
	if _, err := s.DefaultLocation(); err != nil {
		return err
	}
	pct, err := decimal.NewFromString(strings.TrimSpace(s.ImportVATReclaimPercent))
	if err != nil {
		return fmt.Errorf("%s: %w", EnvImportVATReclaimPercent, err)
	}
	if pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("%s must be between 0 and 100", EnvImportVATReclaimPercent)
	}
	if strings.TrimSpace(s.Currency) == "" {
		return fmt.Errorf("%s is required", EnvCurrency)
	}
	return nil
}

// RateLimitConfig throttles the public settlement endpoint. A zero limit
// disables that dimension.
type RateLimitConfig struct {
	SettlementWindow     time.Duration `envconfig:"STOREFRONT_RATE_LIMIT_SETTLEMENT_WINDOW" default:"1m"`
	SettlementIPLimit    int           `envconfig:"STOREFRONT_RATE_LIMIT_SETTLEMENT_IP_LIMIT" default:"30"`
	SettlementEmailLimit int           `envconfig:"STOREFRONT_RATE_LIMIT_SETTLEMENT_EMAIL_LIMIT" default:"10"`
}

type CronConfig struct {
	Interval            time.Duration `envconfig:"STOREFRONT_CRON_INTERVAL" default:"5m"`
	LockTTL             time.Duration `envconfig:"STOREFRONT_CRON_LOCK_TTL" default:"15m"`
	OutboxRetentionDays int           `envconfig:"STOREFRONT_OUTBOX_RETENTION_DAYS" default:"30"`
	OutboxPruneBatch    int           `envconfig:"STOREFRONT_OUTBOX_PRUNE_BATCH" default:"500"`
	FollowUpBatchSize   int           `envconfig:"STOREFRONT_CRON_FOLLOWUP_BATCH_SIZE" default:"100"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		return fmt.Errorf("%s is required for the sqlite driver", EnvDBDSN)
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}

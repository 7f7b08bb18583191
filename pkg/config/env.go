package config

// EnvPrefix is passed to envconfig; every field declares its full variable name.
const EnvPrefix = "STOREFRONT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const (
	EnvAppEnv   = "STOREFRONT_APP_ENV"
	EnvPort     = "STOREFRONT_APP_PORT"
	EnvLogLevel = "STOREFRONT_LOG_LEVEL"

	EnvDBDSN    = "STOREFRONT_DB_DSN"
	EnvDBDriver = "STOREFRONT_DB_DRIVER"
	EnvDBHost   = "STOREFRONT_DB_HOST"
	EnvDBUser   = "STOREFRONT_DB_USER"
	EnvDBName   = "STOREFRONT_DB_NAME"

	EnvRedisURL = "STOREFRONT_REDIS_URL"

	EnvGCPProjectID      = "STOREFRONT_GCP_PROJECT_ID"
	EnvPubSubOrdersTopic = "STOREFRONT_PUBSUB_ORDERS_TOPIC"
	EnvRedisKeyPrefix    = "STOREFRONT_REDIS_KEY_PREFIX"

	EnvCurrency                  = "STOREFRONT_CURRENCY"
	EnvSettlementDefaultLocation = "STOREFRONT_SETTLEMENT_DEFAULT_LOCATION_ID"
	EnvSettlementCommitAttempts  = "STOREFRONT_SETTLEMENT_STOCK_COMMIT_ATTEMPTS"
	EnvImportVATReclaimPercent   = "STOREFRONT_IMPORT_VAT_RECLAIM_PERCENT"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

package config

const EnvPrefix = "ATELIER"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "production"
)

const (
	EnvAppEnv   = "ATELIER_APP_ENV"
	EnvPort     = "ATELIER_APP_PORT"
	EnvLogLevel = "ATELIER_LOG_LEVEL"

	EnvDBDSN  = "ATELIER_DB_DSN"
	EnvDBHost = "ATELIER_DB_HOST"
	EnvDBUser = "ATELIER_DB_USER"
	EnvDBName = "ATELIER_DB_NAME"

	EnvRedisURL = "ATELIER_REDIS_URL"

	EnvJWTSecret  = "ATELIER_JWT_SECRET"
	EnvJWTIssuer  = "ATELIER_JWT_ISSUER"
	EnvJWTExpMins = "ATELIER_JWT_EXPIRATION_MINUTES"

	EnvGatewayBaseURL       = "ATELIER_GATEWAY_BASE_URL"
	EnvGatewayKeyID         = "ATELIER_GATEWAY_KEY_ID"
	EnvGatewayClientSecret  = "ATELIER_GATEWAY_CLIENT_SECRET"
	EnvGatewayWebhookSecret = "ATELIER_GATEWAY_WEBHOOK_SECRET"

	EnvGCSBucket = "ATELIER_GCS_BUCKET_NAME"

	EnvDownloadExpiry    = "ATELIER_DOWNLOAD_URL_EXPIRY"
	EnvDownloadMaxExpiry = "ATELIER_DOWNLOAD_URL_MAX_EXPIRY"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

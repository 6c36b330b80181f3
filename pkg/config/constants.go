package config

const EnvPrefix = "STOREFRONT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "production"
)

const (
	EnvAppEnv   = "STOREFRONT_APP_ENV"
	EnvPort     = "STOREFRONT_APP_PORT"
	EnvDBDSN    = "STOREFRONT_DB_DSN"
	EnvDBHost   = "STOREFRONT_DB_HOST"
	EnvDBUser   = "STOREFRONT_DB_USER"
	EnvDBName   = "STOREFRONT_DB_NAME"
	EnvRedisURL = "STOREFRONT_REDIS_URL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

package config

// EnvPrefix namespaces every environment variable the service reads.
const EnvPrefix = "TUBEDIGEST"

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

const (
	EnvAppEnv         = "TUBEDIGEST_APP_ENV"
	EnvPort           = "TUBEDIGEST_APP_PORT"
	EnvDBDSN          = "TUBEDIGEST_DB_DSN"
	EnvDBHost         = "TUBEDIGEST_DB_HOST"
	EnvDBUser         = "TUBEDIGEST_DB_USER"
	EnvDBName         = "TUBEDIGEST_DB_NAME"
	EnvRedisURL       = "TUBEDIGEST_REDIS_URL"
	EnvJWTSecret      = "TUBEDIGEST_JWT_SECRET"
	EnvJWTIssuer      = "TUBEDIGEST_JWT_ISSUER"
	EnvSchedulerToken = "TUBEDIGEST_SCHEDULER_TOKEN"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

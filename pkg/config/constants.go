package config

// EnvPrefix scopes every environment variable this service reads.
const EnvPrefix = "CHATMARKET"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN  = "CHATMARKET_DB_DSN"
	EnvDBHost = "CHATMARKET_DB_HOST"
	EnvDBUser = "CHATMARKET_DB_USER"
	EnvDBName = "CHATMARKET_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

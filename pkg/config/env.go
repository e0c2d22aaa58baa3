package config

const (
	EnvPrefix = "WISDOM"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv        = "WISDOM_APP_ENV"
	EnvPort          = "WISDOM_APP_PORT"
	EnvJWTSecret     = "WISDOM_JWT_SECRET"
	EnvJWTIssuer     = "WISDOM_JWT_ISSUER"
	EnvRedisURL      = "WISDOM_REDIS_URL"
	EnvRemoteBaseURL = "WISDOM_REMOTE_BASE_URL"

	EnvCartQuantityDebounce = "WISDOM_CART_QUANTITY_DEBOUNCE"
	EnvCartDiscardStale     = "WISDOM_CART_DISCARD_STALE"
)

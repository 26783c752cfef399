package config

const (
	EnvPrefix = "GAMEHOST"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "GAMEHOST_APP_ENV"
	EnvPort     = "GAMEHOST_APP_PORT"
	EnvLogLevel = "GAMEHOST_LOG_LEVEL"

	EnvDBDSN  = "GAMEHOST_DB_DSN"
	EnvDBHost = "GAMEHOST_DB_HOST"
	EnvDBUser = "GAMEHOST_DB_USER"
	EnvDBName = "GAMEHOST_DB_NAME"

	EnvRedisURL = "GAMEHOST_REDIS_URL"

	EnvJWTSecret  = "GAMEHOST_JWT_SECRET"
	EnvJWTIssuer  = "GAMEHOST_JWT_ISSUER"
	EnvJWTExpMins = "GAMEHOST_JWT_EXPIRATION_MINUTES"

	EnvGCPProjectID = "GAMEHOST_GCP_PROJECT_ID"

	EnvPubSubProvisioningTopic = "GAMEHOST_PUBSUB_PROVISIONING_TOPIC"
	EnvPubSubProvisioningSub   = "GAMEHOST_PUBSUB_PROVISIONING_SUBSCRIPTION"

	EnvMidtransServerKey    = "GAMEHOST_MIDTRANS_SERVER_KEY"
	EnvMidtransIsProduction = "GAMEHOST_MIDTRANS_IS_PRODUCTION"

	EnvPterodactylURL    = "GAMEHOST_PTERODACTYL_URL"
	EnvPterodactylAPIKey = "GAMEHOST_PTERODACTYL_API_KEY"

	EnvProvisioningMockMode    = "GAMEHOST_PROVISIONING_MOCK_MODE"
	EnvProvisioningMaxAttempts = "GAMEHOST_PROVISIONING_MAX_ATTEMPTS"

	EnvCORSAllowedOrigins = "GAMEHOST_CORS_ALLOWED_ORIGINS"
	EnvAllowSimulation    = "GAMEHOST_BILLING_ALLOW_SIMULATION"

	MidtransSandboxURL    = "https://api.sandbox.midtrans.com"
	MidtransProductionURL = "https://api.midtrans.com"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Midtrans     MidtransConfig
	Pterodactyl  PterodactylConfig
	Provisioning ProvisioningConfig
	Cron         CronConfig
	API          APIConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Provisioning.validate(cfg.Pterodactyl); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"GAMEHOST_APP_ENV" required:"true"`
	Port         string `envconfig:"GAMEHOST_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"GAMEHOST_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"GAMEHOST_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"GAMEHOST_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"GAMEHOST_SERVICE_KIND" default:"api"`
	// MetricsAddr is where background processes expose /metrics; empty disables it.
	MetricsAddr string `envconfig:"GAMEHOST_METRICS_ADDR" default:":9090"`
}

type DBConfig struct {
	DSN    string `envconfig:"GAMEHOST_DB_DSN"`
	Driver string `envconfig:"GAMEHOST_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"GAMEHOST_DB_HOST"`
	LegacyPort     int    `envconfig:"GAMEHOST_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"GAMEHOST_DB_USER"`
	LegacyPassword string `envconfig:"GAMEHOST_DB_PASSWORD"`
	LegacyName     string `envconfig:"GAMEHOST_DB_NAME"`
	LegacySSLMode  string `envconfig:"GAMEHOST_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"GAMEHOST_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"GAMEHOST_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"GAMEHOST_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"GAMEHOST_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"GAMEHOST_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"GAMEHOST_REDIS_URL" required:"true"`
	Address      string        `envconfig:"GAMEHOST_REDIS_ADDR"`
	Password     string        `envconfig:"GAMEHOST_REDIS_PASSWORD"`
	DB           int           `envconfig:"GAMEHOST_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"GAMEHOST_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"GAMEHOST_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"GAMEHOST_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"GAMEHOST_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"GAMEHOST_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig configures verification of access tokens minted by the account service.
type JWTConfig struct {
	Secret            string `envconfig:"GAMEHOST_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"GAMEHOST_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"GAMEHOST_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"GAMEHOST_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"GAMEHOST_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"GAMEHOST_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"GAMEHOST_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"GAMEHOST_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"GAMEHOST_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	ProvisioningTopic        string `envconfig:"GAMEHOST_PUBSUB_PROVISIONING_TOPIC" required:"true"`
	ProvisioningSubscription string `envconfig:"GAMEHOST_PUBSUB_PROVISIONING_SUBSCRIPTION" required:"true"`
	BillingTopic             string `envconfig:"GAMEHOST_PUBSUB_BILLING_TOPIC" default:"gh-billing-events"`
	ServersTopic             string `envconfig:"GAMEHOST_PUBSUB_SERVERS_TOPIC" default:"gh-server-events"`
	MaxOutstandingMessages   int    `envconfig:"GAMEHOST_PUBSUB_MAX_OUTSTANDING" default:"4"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"GAMEHOST_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"GAMEHOST_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"GAMEHOST_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// MidtransConfig holds credentials for the Midtrans Core API.
type MidtransConfig struct {
	ServerKey       string        `envconfig:"GAMEHOST_MIDTRANS_SERVER_KEY"`
	ClientKey       string        `envconfig:"GAMEHOST_MIDTRANS_CLIENT_KEY"`
	IsProduction    bool          `envconfig:"GAMEHOST_MIDTRANS_IS_PRODUCTION" default:"false"`
	VerifySignature bool          `envconfig:"GAMEHOST_MIDTRANS_VERIFY_SIGNATURE" default:"true"`
	Timeout         time.Duration `envconfig:"GAMEHOST_MIDTRANS_TIMEOUT" default:"15s"`
}

// BaseURL returns the Core API host for the configured environment.
func (m MidtransConfig) BaseURL() string {
	if m.IsProduction {
		return MidtransProductionURL
	}
	return MidtransSandboxURL
}

type PterodactylConfig struct {
	URL         string        `envconfig:"GAMEHOST_PTERODACTYL_URL"`
	APIKey      string        `envconfig:"GAMEHOST_PTERODACTYL_API_KEY"`
	NodeID      int           `envconfig:"GAMEHOST_PTERODACTYL_NODE_ID" default:"1"`
	NestID      int           `envconfig:"GAMEHOST_PTERODACTYL_NEST_ID" default:"1"`
	EggID       int           `envconfig:"GAMEHOST_PTERODACTYL_EGG_ID" default:"1"`
	DockerImage string        `envconfig:"GAMEHOST_PTERODACTYL_DOCKER_IMAGE" default:"ghcr.io/pterodactyl/yolks:java_17"`
	Timeout     time.Duration `envconfig:"GAMEHOST_PTERODACTYL_TIMEOUT" default:"15s"`
}

// PanelURL returns the end-user panel link for a server identifier.
func (p PterodactylConfig) PanelURL(identifier string) string {
	base := strings.TrimRight(strings.TrimSpace(p.URL), "/")
	if base == "" || identifier == "" {
		return ""
	}
	return fmt.Sprintf("%s/server/%s", base, identifier)
}

type ProvisioningConfig struct {
	MockMode    bool          `envconfig:"GAMEHOST_PROVISIONING_MOCK_MODE" default:"true"`
	MaxAttempts int           `envconfig:"GAMEHOST_PROVISIONING_MAX_ATTEMPTS" default:"5"`
	JobTimeout  time.Duration `envconfig:"GAMEHOST_PROVISIONING_JOB_TIMEOUT" default:"2m"`
}

func (p ProvisioningConfig) validate(ptero PterodactylConfig) error {
	if p.MaxAttempts <= 0 {
		return fmt.Errorf("%s must be positive", EnvProvisioningMaxAttempts)
	}
	if p.MockMode {
		return nil
	}
	if strings.TrimSpace(ptero.URL) == "" || strings.TrimSpace(ptero.APIKey) == "" {
		return fmt.Errorf("%s and %s are required when mock mode is off", EnvPterodactylURL, EnvPterodactylAPIKey)
	}
	return nil
}

type CronConfig struct {
	Interval                time.Duration `envconfig:"GAMEHOST_CRON_INTERVAL" default:"1m"`
	ProvisioningGracePeriod time.Duration `envconfig:"GAMEHOST_CRON_PROVISIONING_GRACE" default:"15m"`
	RecoveryBatchSize       int           `envconfig:"GAMEHOST_CRON_RECOVERY_BATCH_SIZE" default:"100"`
	PaymentRefreshAge       time.Duration `envconfig:"GAMEHOST_CRON_PAYMENT_REFRESH_AGE" default:"10m"`
	OutboxRetention         time.Duration `envconfig:"GAMEHOST_CRON_OUTBOX_RETENTION" default:"720h"`
	DisabledJobs            []string      `envconfig:"GAMEHOST_CRON_DISABLED_JOBS"`
}

// APIConfig tunes the public HTTP surface.
type APIConfig struct {
	CORSAllowedOrigins []string      `envconfig:"GAMEHOST_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
	AllowSimulation    bool          `envconfig:"GAMEHOST_BILLING_ALLOW_SIMULATION" default:"false"`
	RateLimitWindow    time.Duration `envconfig:"GAMEHOST_RATE_LIMIT_WINDOW" default:"1m"`
	OrderRateLimit     int           `envconfig:"GAMEHOST_RATE_LIMIT_ORDERS" default:"10"`
	WebhookRateLimit   int           `envconfig:"GAMEHOST_RATE_LIMIT_WEBHOOKS" default:"120"`
	ShutdownTimeout    time.Duration `envconfig:"GAMEHOST_API_SHUTDOWN_TIMEOUT" default:"15s"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
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

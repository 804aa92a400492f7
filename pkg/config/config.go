package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// EnvPrefix namespaces every environment variable the service reads.
	EnvPrefix = "MERKADO"

	AppEnvDev  = "development"
	AppEnvProd = "production"

	EnvAppEnv   = "MERKADO_APP_ENV"
	EnvPort     = "MERKADO_APP_PORT"
	EnvDBDSN    = "MERKADO_DB_DSN"
	EnvDBHost   = "MERKADO_DB_HOST"
	EnvDBUser   = "MERKADO_DB_USER"
	EnvDBName   = "MERKADO_DB_NAME"
	EnvRedisURL = "MERKADO_REDIS_URL"

	EnvGCPProjectID            = "MERKADO_GCP_PROJECT_ID"
	EnvPubSubOrdersTopic       = "MERKADO_PUBSUB_ORDERS_TOPIC"
	EnvPubSubOrdersSub         = "MERKADO_PUBSUB_ORDERS_SUBSCRIPTION"
	EnvPubSubSettlementsTopic  = "MERKADO_PUBSUB_SETTLEMENTS_TOPIC"
	EnvPubSubPayoutAlertsTopic = "MERKADO_PUBSUB_PAYOUT_ALERTS_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Commission   CommissionConfig
	Payouts      PayoutConfig
	Settlements  SettlementConfig
	Square       SquareConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MERKADO_APP_ENV" required:"true"`
	Port         string `envconfig:"MERKADO_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MERKADO_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MERKADO_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"MERKADO_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"MERKADO_DB_DSN"`
	Driver string `envconfig:"MERKADO_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MERKADO_DB_HOST"`
	LegacyPort     int    `envconfig:"MERKADO_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MERKADO_DB_USER"`
	LegacyPassword string `envconfig:"MERKADO_DB_PASSWORD"`
	LegacyName     string `envconfig:"MERKADO_DB_NAME"`
	LegacySSLMode  string `envconfig:"MERKADO_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MERKADO_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MERKADO_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MERKADO_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MERKADO_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MERKADO_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MERKADO_REDIS_ADDR"`
	Password     string        `envconfig:"MERKADO_REDIS_PASSWORD"`
	DB           int           `envconfig:"MERKADO_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MERKADO_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MERKADO_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MERKADO_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MERKADO_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MERKADO_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"MERKADO_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"MERKADO_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"MERKADO_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic        string `envconfig:"MERKADO_PUBSUB_ORDERS_TOPIC" required:"true"`
	OrdersSubscription string `envconfig:"MERKADO_PUBSUB_ORDERS_SUBSCRIPTION" required:"true"`
	SettlementsTopic   string `envconfig:"MERKADO_PUBSUB_SETTLEMENTS_TOPIC" required:"true"`
	PayoutAlertsTopic  string `envconfig:"MERKADO_PUBSUB_PAYOUT_ALERTS_TOPIC" required:"true"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"MERKADO_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"MERKADO_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"MERKADO_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// CommissionConfig carries the platform-wide fallback applied when no
// persisted rule matches a seller/category pair.
type CommissionConfig struct {
	DefaultRate     string `envconfig:"MERKADO_COMMISSION_DEFAULT_RATE" default:"0.10"`
	DefaultFixedFee string `envconfig:"MERKADO_COMMISSION_DEFAULT_FIXED_FEE" default:"0"`
}

type PayoutConfig struct {
	MaxRetryCount    int           `envconfig:"MERKADO_PAYOUT_MAX_RETRY_COUNT" default:"3"`
	RetryBackoffBase time.Duration `envconfig:"MERKADO_PAYOUT_RETRY_BACKOFF_BASE" default:"24h"`
	DispatchBatch    int           `envconfig:"MERKADO_PAYOUT_DISPATCH_BATCH" default:"100"`
}

type SettlementConfig struct {
	LockTTL time.Duration `envconfig:"MERKADO_SETTLEMENT_LOCK_TTL" default:"5m"`
}

type SquareConfig struct {
	AccessToken   string `envconfig:"MERKADO_SQUARE_ACCESS_TOKEN"`
	Env           string `envconfig:"MERKADO_SQUARE_ENV" default:"sandbox"`
	LocationID    string `envconfig:"MERKADO_SQUARE_LOCATION_ID"`
	WebhookSecret string `envconfig:"MERKADO_SQUARE_WEBHOOK_SECRET"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"MERKADO_AUTO_MIGRATE" default:"false"`
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

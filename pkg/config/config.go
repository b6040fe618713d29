package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Basket       BasketConfig
	Sweeper      SweeperConfig
	Payments     PaymentsConfig
	Chat         ChatConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
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
	if err := cfg.Payments.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CHATMARKET_APP_ENV" required:"true"`
	Port         string `envconfig:"CHATMARKET_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"CHATMARKET_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CHATMARKET_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"CHATMARKET_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"CHATMARKET_DB_DSN"`
	Driver string `envconfig:"CHATMARKET_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CHATMARKET_DB_HOST"`
	LegacyPort     int    `envconfig:"CHATMARKET_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CHATMARKET_DB_USER"`
	LegacyPassword string `envconfig:"CHATMARKET_DB_PASSWORD"`
	LegacyName     string `envconfig:"CHATMARKET_DB_NAME"`
	LegacySSLMode  string `envconfig:"CHATMARKET_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CHATMARKET_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CHATMARKET_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CHATMARKET_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CHATMARKET_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CHATMARKET_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CHATMARKET_REDIS_ADDR"`
	Password     string        `envconfig:"CHATMARKET_REDIS_PASSWORD"`
	DB           int           `envconfig:"CHATMARKET_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CHATMARKET_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CHATMARKET_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CHATMARKET_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CHATMARKET_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CHATMARKET_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type BasketConfig struct {
	ReservationTTL time.Duration `envconfig:"CHATMARKET_BASKET_RESERVATION_TTL" default:"15m"`
}

type SweeperConfig struct {
	Interval time.Duration `envconfig:"CHATMARKET_SWEEPER_INTERVAL" default:"1m"`
	LockTTL  time.Duration `envconfig:"CHATMARKET_SWEEPER_LOCK_TTL" default:"5m"`
}

// PaymentsConfig wires the external crypto payment processor.
type PaymentsConfig struct {
	BaseURL        string        `envconfig:"CHATMARKET_PAYMENTS_BASE_URL" default:"https://api.nowpayments.io/v1"`
	APIKey         string        `envconfig:"CHATMARKET_PAYMENTS_API_KEY" required:"true"`
	IPNSecret      string        `envconfig:"CHATMARKET_PAYMENTS_IPN_SECRET" required:"true"`
	CallbackURL    string        `envconfig:"CHATMARKET_PAYMENTS_CALLBACK_URL" required:"true"`
	RequestTimeout time.Duration `envconfig:"CHATMARKET_PAYMENTS_REQUEST_TIMEOUT" default:"15s"`
	FeeAdjustment  string        `envconfig:"CHATMARKET_PAYMENTS_FEE_ADJUSTMENT" default:"0.995"`
}

func (p PaymentsConfig) validate() error {
	factor, err := decimal.NewFromString(p.FeeAdjustment)
	if err != nil {
		return fmt.Errorf("invalid fee adjustment %q: %w", p.FeeAdjustment, err)
	}
	if factor.LessThanOrEqual(decimal.Zero) || factor.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("fee adjustment %q must be in (0, 1]", p.FeeAdjustment)
	}
	return nil
}

// FeeFactor returns the validated fee adjustment as a decimal.
func (p PaymentsConfig) FeeFactor() decimal.Decimal {
	factor, err := decimal.NewFromString(p.FeeAdjustment)
	if err != nil {
		return decimal.NewFromInt(1)
	}
	return factor
}

type ChatConfig struct {
	BotToken       string        `envconfig:"CHATMARKET_CHAT_BOT_TOKEN" required:"true"`
	APIBaseURL     string        `envconfig:"CHATMARKET_CHAT_API_BASE_URL" default:"https://api.telegram.org"`
	RequestTimeout time.Duration `envconfig:"CHATMARKET_CHAT_REQUEST_TIMEOUT" default:"10s"`
	OperatorChatID int64         `envconfig:"CHATMARKET_CHAT_OPERATOR_CHAT_ID"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"CHATMARKET_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"CHATMARKET_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"CHATMARKET_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	NotificationTopic        string `envconfig:"CHATMARKET_PUBSUB_NOTIFICATION_TOPIC" default:"cm-notification-events"`
	NotificationSubscription string `envconfig:"CHATMARKET_PUBSUB_NOTIFICATION_SUBSCRIPTION" required:"true"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"CHATMARKET_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"CHATMARKET_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"CHATMARKET_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"CHATMARKET_OUTBOX_RETENTION" default:"168h"`
	IdempotencyTTL time.Duration `envconfig:"CHATMARKET_OUTBOX_IDEMPOTENCY_TTL" default:"720h"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"CHATMARKET_FEATURE_AUTO_MIGRATE" default:"false"`
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

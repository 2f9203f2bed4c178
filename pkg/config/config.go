package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "REPAIRHUB_DB_DSN"
	EnvDBHost = "REPAIRHUB_DB_HOST"
	EnvDBUser = "REPAIRHUB_DB_USER"
	EnvDBName = "REPAIRHUB_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Fees     FeesConfig
	Payment  PaymentConfig
	Couriers CouriersConfig
	Features FeaturesConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if _, err := cfg.Fees.RepairCommission(); err != nil {
		return nil, err
	}
	if _, err := cfg.Fees.DeliveryCommission(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"REPAIRHUB_APP_ENV" required:"true"`
	Port         string `envconfig:"REPAIRHUB_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"REPAIRHUB_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"REPAIRHUB_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"REPAIRHUB_DB_DSN"`
	Driver string `envconfig:"REPAIRHUB_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"REPAIRHUB_DB_HOST"`
	LegacyPort     int    `envconfig:"REPAIRHUB_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"REPAIRHUB_DB_USER"`
	LegacyPassword string `envconfig:"REPAIRHUB_DB_PASSWORD"`
	LegacyName     string `envconfig:"REPAIRHUB_DB_NAME"`
	LegacySSLMode  string `envconfig:"REPAIRHUB_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"REPAIRHUB_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"REPAIRHUB_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"REPAIRHUB_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"REPAIRHUB_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"REPAIRHUB_REDIS_URL" required:"true"`
	Address      string        `envconfig:"REPAIRHUB_REDIS_ADDR"`
	Password     string        `envconfig:"REPAIRHUB_REDIS_PASSWORD"`
	DB           int           `envconfig:"REPAIRHUB_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"REPAIRHUB_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"REPAIRHUB_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"REPAIRHUB_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"REPAIRHUB_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"REPAIRHUB_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"REPAIRHUB_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"REPAIRHUB_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"REPAIRHUB_JWT_EXPIRATION_MINUTES" default:"60"`
}

// FeesConfig owns the platform fee rates. Both are decimal strings so the
// rates are injected rather than scattered as literals through handlers.
type FeesConfig struct {
	RepairCommissionRate   string `envconfig:"REPAIRHUB_REPAIR_COMMISSION_RATE" default:"0.075"`
	DeliveryCommissionRate string `envconfig:"REPAIRHUB_DELIVERY_COMMISSION_RATE" default:"0.05"`
	BankAccountLockDays    int    `envconfig:"REPAIRHUB_BANK_ACCOUNT_LOCK_DAYS" default:"14"`
}

// RepairCommission parses the repair commission rate applied to completed jobs.
func (f FeesConfig) RepairCommission() (decimal.Decimal, error) {
	return parseRate("repair commission", f.RepairCommissionRate)
}

// DeliveryCommission parses the platform cut of courier delivery fees.
func (f FeesConfig) DeliveryCommission() (decimal.Decimal, error) {
	return parseRate("delivery commission", f.DeliveryCommissionRate)
}

func parseRate(name, raw string) (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s rate %q: %w", name, raw, err)
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("%s rate %q must be within [0,1]", name, raw)
	}
	return rate, nil
}

type PaymentConfig struct {
	WebhookSecret string `envconfig:"REPAIRHUB_PAYMENT_WEBHOOK_SECRET"`
}

type CouriersConfig struct {
	Wheely WheelyConfig
	Shipra ShipraConfig
}

type WheelyConfig struct {
	BaseURL       string        `envconfig:"REPAIRHUB_WHEELY_BASE_URL"`
	APIKey        string        `envconfig:"REPAIRHUB_WHEELY_API_KEY"`
	WebhookSecret string        `envconfig:"REPAIRHUB_WHEELY_WEBHOOK_SECRET"`
	Timeout       time.Duration `envconfig:"REPAIRHUB_WHEELY_TIMEOUT" default:"15s"`
}

type ShipraConfig struct {
	BaseURL       string        `envconfig:"REPAIRHUB_SHIPRA_BASE_URL"`
	APIKey        string        `envconfig:"REPAIRHUB_SHIPRA_API_KEY"`
	WebhookSecret string        `envconfig:"REPAIRHUB_SHIPRA_WEBHOOK_SECRET"`
	Timeout       time.Duration `envconfig:"REPAIRHUB_SHIPRA_TIMEOUT" default:"20s"`
}

type FeaturesConfig struct {
	AutoMigrate bool `envconfig:"REPAIRHUB_AUTO_MIGRATE" default:"false"`
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

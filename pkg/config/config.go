package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Gateway   GatewayConfig
	GCS       GCSConfig
	Downloads DownloadsConfig
	Notify    NotifyConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Downloads.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"ATELIER_APP_ENV" required:"true"`
	Port         string `envconfig:"ATELIER_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"ATELIER_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"ATELIER_LOG_WARN_STACK" default:"false"`
	AutoMigrate  bool   `envconfig:"ATELIER_AUTO_MIGRATE" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"ATELIER_DB_DSN"`
	Driver string `envconfig:"ATELIER_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"ATELIER_DB_HOST"`
	LegacyPort     int    `envconfig:"ATELIER_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"ATELIER_DB_USER"`
	LegacyPassword string `envconfig:"ATELIER_DB_PASSWORD"`
	LegacyName     string `envconfig:"ATELIER_DB_NAME"`
	LegacySSLMode  string `envconfig:"ATELIER_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ATELIER_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ATELIER_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ATELIER_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ATELIER_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ATELIER_REDIS_URL" required:"true"`
	Address      string        `envconfig:"ATELIER_REDIS_ADDR"`
	Password     string        `envconfig:"ATELIER_REDIS_PASSWORD"`
	DB           int           `envconfig:"ATELIER_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ATELIER_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ATELIER_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ATELIER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ATELIER_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ATELIER_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"ATELIER_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"ATELIER_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"ATELIER_JWT_EXPIRATION_MINUTES" default:"60"`
}

// GatewayConfig carries the payment gateway credentials. The client secret
// signs the browser confirmation payload; the webhook secret signs the
// asynchronous callback body. They are distinct on purpose and must never be
// swapped.
type GatewayConfig struct {
	Name          string        `envconfig:"ATELIER_GATEWAY_NAME" default:"razorpay"`
	BaseURL       string        `envconfig:"ATELIER_GATEWAY_BASE_URL" required:"true"`
	KeyID         string        `envconfig:"ATELIER_GATEWAY_KEY_ID" required:"true"`
	ClientSecret  string        `envconfig:"ATELIER_GATEWAY_CLIENT_SECRET" required:"true"`
	WebhookSecret string        `envconfig:"ATELIER_GATEWAY_WEBHOOK_SECRET" required:"true"`
	Timeout       time.Duration `envconfig:"ATELIER_GATEWAY_TIMEOUT" default:"10s"`
	Currency      string        `envconfig:"ATELIER_GATEWAY_CURRENCY" default:"INR"`
}

type GCSConfig struct {
	BucketName      string `envconfig:"ATELIER_GCS_BUCKET_NAME" required:"true"`
	CredentialsJSON string `envconfig:"ATELIER_GCP_CREDENTIALS_JSON"`
	CredentialsFile string `envconfig:"ATELIER_GOOGLE_APPLICATION_CREDENTIALS"`
}

// DownloadsConfig bounds the lifetime of issued download capabilities.
// Expiry is what operators ask for; MaxExpiry is the hard ceiling the
// entitlement gate clamps to regardless of configuration.
type DownloadsConfig struct {
	Expiry    time.Duration `envconfig:"ATELIER_DOWNLOAD_URL_EXPIRY" default:"120s"`
	MaxExpiry time.Duration `envconfig:"ATELIER_DOWNLOAD_URL_MAX_EXPIRY" default:"300s"`
}

func (d DownloadsConfig) validate() error {
	if d.Expiry <= 0 {
		return fmt.Errorf("download url expiry must be positive")
	}
	if d.MaxExpiry <= 0 {
		return fmt.Errorf("download url max expiry must be positive")
	}
	return nil
}

// EffectiveTTL clamps the configured expiry to the absolute ceiling.
func (d DownloadsConfig) EffectiveTTL() time.Duration {
	if d.Expiry > d.MaxExpiry {
		return d.MaxExpiry
	}
	return d.Expiry
}

type NotifyConfig struct {
	FromEmail string `envconfig:"ATELIER_NOTIFY_FROM_EMAIL" default:"orders@atelierworks.dev"`
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

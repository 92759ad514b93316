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
	Service   ServiceConfig
	DB        DBConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Codes     CodeConfig
	RateLimit RateLimitConfig
	Features  FeatureFlagsConfig
	Scheduler SchedulerConfig
	Pipeline  PipelineConfig
	YouTube   YouTubeConfig
	OpenAI    OpenAIConfig
	WhatsApp  WhatsAppConfig
	Stripe    StripeConfig
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
	Env          string `envconfig:"TUBEDIGEST_APP_ENV" required:"true"`
	Port         string `envconfig:"TUBEDIGEST_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"TUBEDIGEST_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TUBEDIGEST_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"TUBEDIGEST_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"TUBEDIGEST_DB_DSN"`
	Driver string `envconfig:"TUBEDIGEST_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"TUBEDIGEST_DB_HOST"`
	LegacyPort     int    `envconfig:"TUBEDIGEST_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"TUBEDIGEST_DB_USER"`
	LegacyPassword string `envconfig:"TUBEDIGEST_DB_PASSWORD"`
	LegacyName     string `envconfig:"TUBEDIGEST_DB_NAME"`
	LegacySSLMode  string `envconfig:"TUBEDIGEST_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TUBEDIGEST_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TUBEDIGEST_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TUBEDIGEST_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TUBEDIGEST_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TUBEDIGEST_REDIS_URL" required:"true"`
	Address      string        `envconfig:"TUBEDIGEST_REDIS_ADDR"`
	Password     string        `envconfig:"TUBEDIGEST_REDIS_PASSWORD"`
	DB           int           `envconfig:"TUBEDIGEST_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TUBEDIGEST_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TUBEDIGEST_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TUBEDIGEST_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TUBEDIGEST_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TUBEDIGEST_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"TUBEDIGEST_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"TUBEDIGEST_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"TUBEDIGEST_JWT_EXPIRATION_MINUTES" default:"60"`
}

// CodeConfig tunes the Argon2id parameters used to hash WhatsApp
// verification codes before storage.
type CodeConfig struct {
	ArgonMemoryKB    int           `envconfig:"TUBEDIGEST_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int           `envconfig:"TUBEDIGEST_ARGON_TIME" default:"3"`
	ArgonParallelism int           `envconfig:"TUBEDIGEST_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int           `envconfig:"TUBEDIGEST_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int           `envconfig:"TUBEDIGEST_ARGON_KEY_LEN" default:"32"`
	TTL              time.Duration `envconfig:"TUBEDIGEST_VERIFICATION_CODE_TTL" default:"10m"`
}

// RateLimitConfig throttles WhatsApp verification code requests.
type RateLimitConfig struct {
	CodeWindow      time.Duration `envconfig:"TUBEDIGEST_RATELIMIT_CODE_WINDOW" default:"10m"`
	CodeIPLimit     int           `envconfig:"TUBEDIGEST_RATELIMIT_CODE_IP_LIMIT" default:"10"`
	CodeTargetLimit int           `envconfig:"TUBEDIGEST_RATELIMIT_CODE_TARGET_LIMIT" default:"3"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"TUBEDIGEST_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"TUBEDIGEST_AUTO_MIGRATE" default:"false"`
}

// SchedulerConfig guards the internal endpoints invoked by the external
// scheduler (discovery runs and delivery sweeps).
type SchedulerConfig struct {
	Token string `envconfig:"TUBEDIGEST_SCHEDULER_TOKEN" required:"true"`
}

type PipelineConfig struct {
	ChannelBatchSize   int           `envconfig:"TUBEDIGEST_PIPELINE_CHANNEL_BATCH" default:"50"`
	SweepBatchSize     int           `envconfig:"TUBEDIGEST_PIPELINE_SWEEP_BATCH" default:"20"`
	BootstrapWindow    time.Duration `envconfig:"TUBEDIGEST_PIPELINE_BOOTSTRAP_WINDOW" default:"24h"`
	MaxChannelFailures int           `envconfig:"TUBEDIGEST_PIPELINE_MAX_CHANNEL_FAILURES" default:"5"`
	PauseRetryAfter    time.Duration `envconfig:"TUBEDIGEST_PIPELINE_PAUSE_RETRY_AFTER" default:"6h"`
	Interval           time.Duration `envconfig:"TUBEDIGEST_PIPELINE_INTERVAL" default:"15m"`
}

type YouTubeConfig struct {
	APIKey string `envconfig:"TUBEDIGEST_YOUTUBE_API_KEY"`
}

type OpenAIConfig struct {
	APIKey string `envconfig:"TUBEDIGEST_OPENAI_API_KEY"`
	Model  string `envconfig:"TUBEDIGEST_OPENAI_MODEL" default:"gpt-4o-mini"`
}

type WhatsAppConfig struct {
	AccessToken   string `envconfig:"TUBEDIGEST_WHATSAPP_ACCESS_TOKEN"`
	PhoneNumberID string `envconfig:"TUBEDIGEST_WHATSAPP_PHONE_NUMBER_ID"`
	Simulate      bool   `envconfig:"TUBEDIGEST_WHATSAPP_SIMULATE" default:"true"`
}

type StripeConfig struct {
	APIKey              string `envconfig:"TUBEDIGEST_STRIPE_API_KEY"`
	Secret              string `envconfig:"TUBEDIGEST_STRIPE_SECRET"`
	Env                 string `envconfig:"TUBEDIGEST_STRIPE_ENV" default:"test"`
	SubscriptionPriceID string `envconfig:"TUBEDIGEST_STRIPE_SUBSCRIPTION_PRICE_ID"`
	PortalReturnURL     string `envconfig:"TUBEDIGEST_STRIPE_PORTAL_RETURN_URL"`
	CheckoutSuccessURL  string `envconfig:"TUBEDIGEST_STRIPE_CHECKOUT_SUCCESS_URL"`
	CheckoutCancelURL   string `envconfig:"TUBEDIGEST_STRIPE_CHECKOUT_CANCEL_URL"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
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

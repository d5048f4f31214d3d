package config

import (
	"fmt"
	"os"
	"strings"

	httpapi "github.com/ketowell/waitlist-manager/internal/api/http"
	"github.com/ketowell/waitlist-manager/internal/auth"
	"github.com/ketowell/waitlist-manager/internal/drip"
	"github.com/ketowell/waitlist-manager/internal/mail"
	"github.com/ketowell/waitlist-manager/internal/purchase"
	"github.com/ketowell/waitlist-manager/internal/runlock"
	"github.com/ketowell/waitlist-manager/internal/store"
	"github.com/ketowell/waitlist-manager/internal/waitlist"
	"github.com/ketowell/waitlist-manager/log"
	"github.com/spf13/viper"
)

// Config represents the global configuration for the service.
type Config struct {
	DB       store.Config    `mapstructure:"mysql"`
	Logger   log.Config      `mapstructure:"logger"`
	HTTP     httpapi.Config  `mapstructure:"http"`
	Auth     auth.Config     `mapstructure:"auth"`
	Mailer   mail.Config     `mapstructure:"mailer"`
	Waitlist waitlist.Config `mapstructure:"waitlist"`
	Drip     drip.Config     `mapstructure:"drip"`
	RunLock  runlock.Config  `mapstructure:"redis"`
	// Stripe is optional, checkout routes are disabled without a secret key.
	Stripe purchase.Config `mapstructure:"stripe"`
}

// LoadConfig loads the configuration from a file and/or environment variables.
// Environment variables take precedence over config file values.
// Nested config keys use double underscore, e.g., MYSQL__DSN for mysql.dsn
func LoadConfig(cfgFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__", "-", "__"))

	setDefaults(v)
	bindEnvVars(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %v", err)
			}
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/config/ketowell-waitlist")
		v.AddConfigPath("/etc/ketowell-waitlist")
		_ = v.ReadInConfig()
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config into struct: %v", err)
	}

	// Managed MySQL hands out the connection as separate variables.
	if config.DB.DSN == "" {
		host := os.Getenv("MYSQL_HOST")
		port := os.Getenv("MYSQL_PORT")
		user := os.Getenv("MYSQL_USER")
		password := os.Getenv("MYSQL_PASSWORD")
		database := os.Getenv("MYSQL_DATABASE")
		if port == "" {
			port = "3306"
		}
		if host != "" && user != "" && password != "" && database != "" {
			config.DB.DSN = fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&tls=custom",
				user, password, host, port, database)
		}
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	dc := drip.DefaultConfig()
	v.SetDefault("drip.send_interval", dc.SendInterval)
	v.SetDefault("drip.lease_ttl", dc.LeaseTTL)
	v.SetDefault("drip.stale_attempt_after", dc.StaleAttemptAfter)
	v.SetDefault("drip.rate_limit_retries", dc.RateLimitRetries)
	v.SetDefault("drip.rate_limit_backoff", dc.RateLimitBackoff)
	v.SetDefault("drip.rate_limit_max_backoff", dc.RateLimitMaxBackoff)

	v.SetDefault("mysql.automigrate", true)
	v.SetDefault("http.port", "8080")
	v.SetDefault("auth.jwt_ttl", "24h")
	v.SetDefault("redis.prefix", "ketowell:drip:")
	v.SetDefault("stripe.currency", "usd")
	v.SetDefault("stripe.product_name", "The KetoWell Book")
}

// bindEnvVars binds environment variables to config keys
// This allows using both nested keys (MYSQL__DSN) and flat keys (MYSQL_DSN)
func bindEnvVars(v *viper.Viper) {
	// MySQL
	v.BindEnv("mysql.dsn", "MYSQL_DSN", "DATABASE_URL")
	v.BindEnv("mysql.automigrate", "MYSQL_AUTOMIGRATE")
	v.BindEnv("mysql.max_open_connections", "MYSQL_MAX_OPEN_CONNECTIONS")
	v.BindEnv("mysql.max_idle_connections", "MYSQL_MAX_IDLE_CONNECTIONS")
	v.BindEnv("mysql.tls_ca_path", "MYSQL_TLS_CA_PATH")

	// Logger
	v.BindEnv("logger.level", "LOG_LEVEL")
	v.BindEnv("logger.add_source", "LOG_ADD_SOURCE")
	v.BindEnv("logger.text", "LOG_TEXT")

	// HTTP
	v.BindEnv("http.port", "HTTP_PORT", "PORT")
	v.BindEnv("http.address", "HTTP_ADDRESS")
	v.BindEnv("http.allowed_origins", "HTTP_ALLOWED_ORIGINS")
	v.BindEnv("http.confirm_redirect_url", "HTTP_CONFIRM_REDIRECT_URL")

	// Auth
	v.BindEnv("auth.jwt_secret", "AUTH_JWT_SECRET")
	v.BindEnv("auth.master_password", "AUTH_MASTER_PASSWORD")
	v.BindEnv("auth.jwt_ttl", "AUTH_JWT_TTL")

	// Mailer
	v.BindEnv("mailer.sendgrid_api_key", "MAILER_SENDGRID_API_KEY", "SENDGRID_API_KEY")
	v.BindEnv("mailer.from_email", "MAILER_FROM_EMAIL")
	v.BindEnv("mailer.from_email_name", "MAILER_FROM_EMAIL_NAME")
	v.BindEnv("mailer.reply_to", "MAILER_REPLY_TO")
	v.BindEnv("mailer.base_url", "MAILER_BASE_URL", "BASE_URL")
	v.BindEnv("mailer.webhook_verification_key", "MAILER_WEBHOOK_VERIFICATION_KEY")

	// Waitlist
	v.BindEnv("waitlist.base_url", "WAITLIST_BASE_URL", "BASE_URL")

	// Drip
	v.BindEnv("drip.send_interval", "DRIP_SEND_INTERVAL")
	v.BindEnv("drip.lease_ttl", "DRIP_LEASE_TTL")
	v.BindEnv("drip.stale_attempt_after", "DRIP_STALE_ATTEMPT_AFTER")
	v.BindEnv("drip.rate_limit_retries", "DRIP_RATE_LIMIT_RETRIES")
	v.BindEnv("drip.worker_interval", "DRIP_WORKER_INTERVAL")

	// Redis run lock
	v.BindEnv("redis.addr", "REDIS_ADDR")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")

	// Stripe
	v.BindEnv("stripe.secret_key", "STRIPE_SECRET_KEY")
	v.BindEnv("stripe.webhook_secret", "STRIPE_WEBHOOK_SECRET")
	v.BindEnv("stripe.price", "STRIPE_PRICE", "BOOK_PRICE")
	v.BindEnv("stripe.currency", "STRIPE_CURRENCY")
	v.BindEnv("stripe.success_url", "STRIPE_SUCCESS_URL")
	v.BindEnv("stripe.cancel_url", "STRIPE_CANCEL_URL")
	v.BindEnv("stripe.download_url", "STRIPE_DOWNLOAD_URL", "BOOK_DOWNLOAD_URL")
}

package config

import (
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime settings loaded from the environment
type Config struct {
	Port string
	Env  string

	// Storage is "mongo" or "memory". Memory is refused in production.
	Storage  string
	MongoURI string
	DBName   string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret string

	WhishBaseURL    string
	WhishChannel    string
	WhishSecret     string
	WhishWebsiteURL string
	WhishDebug      bool
	CallbackBaseURL string
	Currency        string

	// CORSAllowedOrigins are added to the built-in development origins
	CORSAllowedOrigins []string

	// Policy values. Amounts are in cents.
	ReferralRewardAmount int64
	CreditExpiryMonths   int
	PaymentTimeout       time.Duration
	ReferralWindow       time.Duration
	CodeMaxAttempts      int
	DebitMaxAttempts     int
	IdempotencyTTL       time.Duration
	SweepInterval        time.Duration
	ReferralLinkBase     string
}

// IsProduction reports whether the service runs with production defaults
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("STORAGE", "mongo")
	v.SetDefault("DB_NAME", "moving")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("WHISH_BASE_URL", "https://api.sandbox.whish.money/itel-service/api/")
	v.SetDefault("CURRENCY", "USD")
	v.SetDefault("REFERRAL_REWARD_AMOUNT", 10000)
	v.SetDefault("CREDIT_EXPIRY_MONTHS", 12)
	v.SetDefault("PAYMENT_TIMEOUT", 30*time.Minute)
	v.SetDefault("REFERRAL_WINDOW", 365*24*time.Hour)
	v.SetDefault("CODE_MAX_ATTEMPTS", 5)
	v.SetDefault("DEBIT_MAX_ATTEMPTS", 64)
	v.SetDefault("IDEMPOTENCY_TTL", 24*time.Hour)
	v.SetDefault("SWEEP_INTERVAL", time.Minute)
	v.SetDefault("REFERRAL_LINK_BASE", "https://moving.example.com/referral?code=")
}

// Load reads .env (if present) and the process environment
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	mongoURI := v.GetString("MONGO_URI")
	if mongoURI == "" {
		mongoURI = v.GetString("MONGODB_URI")
	}

	return &Config{
		Port:                 v.GetString("PORT"),
		Env:                  v.GetString("ENV"),
		Storage:              strings.ToLower(v.GetString("STORAGE")),
		MongoURI:             mongoURI,
		DBName:               v.GetString("DB_NAME"),
		RedisAddr:            v.GetString("REDIS_ADDR"),
		RedisPassword:        v.GetString("REDIS_PASSWORD"),
		RedisDB:              v.GetInt("REDIS_DB"),
		JWTSecret:            v.GetString("JWT_SECRET"),
		WhishBaseURL:         v.GetString("WHISH_BASE_URL"),
		WhishChannel:         v.GetString("WHISH_CHANNEL"),
		WhishSecret:          v.GetString("WHISH_SECRET"),
		WhishWebsiteURL:      v.GetString("WHISH_WEBSITE_URL"),
		WhishDebug:           v.GetBool("WHISH_DEBUG"),
		CallbackBaseURL:      v.GetString("CALLBACK_BASE_URL"),
		Currency:             v.GetString("CURRENCY"),
		ReferralRewardAmount: v.GetInt64("REFERRAL_REWARD_AMOUNT"),
		CreditExpiryMonths:   v.GetInt("CREDIT_EXPIRY_MONTHS"),
		PaymentTimeout:       v.GetDuration("PAYMENT_TIMEOUT"),
		ReferralWindow:       v.GetDuration("REFERRAL_WINDOW"),
		CodeMaxAttempts:      v.GetInt("CODE_MAX_ATTEMPTS"),
		DebitMaxAttempts:     v.GetInt("DEBIT_MAX_ATTEMPTS"),
		IdempotencyTTL:       v.GetDuration("IDEMPOTENCY_TTL"),
		SweepInterval:        v.GetDuration("SWEEP_INTERVAL"),
		ReferralLinkBase:     v.GetString("REFERRAL_LINK_BASE"),
		CORSAllowedOrigins:   splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
	}
}

// splitList parses a comma separated setting, dropping blank items
func splitList(raw string) []string {
	var items []string
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
